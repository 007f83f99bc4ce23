package service

import (
	"context"
	"errors"
	"log"
	"time"

	"marketpay/internal/metrics"
	"marketpay/internal/model"
	"marketpay/internal/money"
	"marketpay/internal/repository"
	"marketpay/pkg/idgen"

	"github.com/shopspring/decimal"
)

// Locker 按 key 串行化事务外还有外部调用的流程
type Locker interface {
	Acquire(ctx context.Context, key, owner string) (release func(), err error)
}

// SettlementService 购买结算
type SettlementService struct {
	store    repository.Store
	queries  repository.Queries
	splitter *money.Splitter
	ids      *idgen.Snowflake
	notifier *Notifier
	now      func() time.Time
}

func NewSettlementService(store repository.Store, queries repository.Queries, splitter *money.Splitter, ids *idgen.Snowflake, notifier *Notifier) *SettlementService {
	return &SettlementService{
		store:    store,
		queries:  queries,
		splitter: splitter,
		ids:      ids,
		notifier: notifier,
		now:      time.Now,
	}
}

type OrderSummary struct {
	OrderNo      string          `json:"order_no"`
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Price        decimal.Decimal `json:"price"`
	Commission   decimal.Decimal `json:"commission"`
	SellerCredit decimal.Decimal `json:"seller_credit"`
	BuyerBalance decimal.Decimal `json:"buyer_balance"`
	PurchasedAt  time.Time       `json:"purchased_at"`
}

// Purchase 买家用钱包余额购买商品。
//
// 扣买家、加卖家、累计平台收入、写订单在同一个事务里完成，
// 所有前置条件都在事务内重新读取；并发修改导致版本冲突时整个事务重跑，
// 重跑时会基于最新余额重新校验，因此不会出现"检查通过后余额已被花掉"的情况。
func (s *SettlementService) Purchase(ctx context.Context, buyerID, productID string) (*OrderSummary, error) {
	if buyerID == "" || productID == "" {
		return nil, ErrInvalidParam.withMessage("buyer_id 和 product_id 不能为空")
	}

	var summary *OrderSummary
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		buyer, err := tx.GetAccount(buyerID)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return ErrBuyerNotFound
			}
			return err
		}
		if buyer.Banned {
			return ErrAccountBanned
		}

		product, err := tx.GetProduct(productID)
		if err != nil {
			if errors.Is(err, repository.ErrProductNotFound) {
				return ErrProductNotFound
			}
			return err
		}
		// 商品价格先取整到分再判断，取整后不为正才算无效
		if !money.Round(product.Price).IsPositive() {
			return ErrInvalidPrice
		}

		split := s.splitter.Split(product.Price)

		if buyer.Balance.LessThan(split.Price) {
			return ErrInsufficientFunds
		}

		if product.SellerID == "" {
			return ErrMissingSeller
		}
		if product.SellerID == buyerID {
			return ErrSelfPurchaseForbidden
		}

		seller, err := tx.GetAccount(product.SellerID)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return ErrSellerNotFound
			}
			return err
		}

		buyer.Balance = money.Sub(buyer.Balance, split.Price)
		if err := tx.UpdateAccount(buyer); err != nil {
			return err
		}

		seller.Balance = money.Add(seller.Balance, split.SellerCredit)
		if err := tx.UpdateAccount(seller); err != nil {
			return err
		}

		platform, err := tx.GetPlatformMetrics()
		if err != nil {
			return err
		}
		platform.Revenue = money.Add(platform.Revenue, split.Commission)
		if err := tx.UpdatePlatformMetrics(platform); err != nil {
			return err
		}

		order := &model.Order{
			OrderNo:      s.ids.OrderNo(),
			ProductID:    product.ProductID,
			ProductName:  product.Name,
			Price:        split.Price,
			BuyerID:      buyerID,
			SellerID:     seller.UserID,
			Commission:   split.Commission,
			SellerCredit: split.SellerCredit,
			PurchasedAt:  s.now(),
		}
		if err := tx.CreateOrder(order); err != nil {
			return err
		}

		err = s.notifier.Notify(tx,
			Notice{
				UserID:  buyerID,
				Title:   "购买成功",
				Message: "你已购买 " + product.Name + "，支付 ₦" + split.Price.StringFixed(2),
				Type:    model.NotificationTypePurchase,
			},
			Notice{
				UserID:  seller.UserID,
				Title:   "商品已售出",
				Message: product.Name + " 已售出，入账 ₦" + split.SellerCredit.StringFixed(2),
				Type:    model.NotificationTypeSale,
			},
		)
		if err != nil {
			return err
		}

		err = s.notifier.Publish(tx, model.EventPurchaseCompleted, order.OrderNo, []string{buyerID, seller.UserID}, map[string]interface{}{
			"order_no":      order.OrderNo,
			"product_id":    order.ProductID,
			"price":         order.Price.StringFixed(2),
			"commission":    order.Commission.StringFixed(2),
			"seller_credit": order.SellerCredit.StringFixed(2),
		})
		if err != nil {
			return err
		}

		summary = &OrderSummary{
			OrderNo:      order.OrderNo,
			ProductID:    order.ProductID,
			ProductName:  order.ProductName,
			Price:        order.Price,
			Commission:   order.Commission,
			SellerCredit: order.SellerCredit,
			BuyerBalance: buyer.Balance,
			PurchasedAt:  order.PurchasedAt,
		}
		return nil
	})

	if err != nil {
		return nil, s.purchaseFailed(buyerID, productID, err)
	}

	metrics.RecordPurchase("success")
	metrics.RecordCommission(summary.Commission.InexactFloat64())
	log.Printf("[Settlement] 购买成功: orderNo=%s, buyer=%s, product=%s, price=%s, commission=%s",
		summary.OrderNo, buyerID, productID, summary.Price, summary.Commission)
	return summary, nil
}

func (s *SettlementService) purchaseFailed(buyerID, productID string, err error) error {
	if errors.Is(err, repository.ErrOptimisticLock) {
		metrics.RecordPurchase("conflict")
		log.Printf("[Settlement] 购买冲突重试耗尽: buyer=%s, product=%s", buyerID, productID)
		return ErrSystemBusy.wrap(err)
	}

	be := AsBusinessError(err)
	metrics.RecordPurchase(be.Code)
	if be.Kind == KindDependency {
		log.Printf("[Settlement] 购买失败: buyer=%s, product=%s, err=%v", buyerID, productID, err)
	}
	return be
}

// MarkReviewed 订单创建后唯一允许的修改
func (s *SettlementService) MarkReviewed(ctx context.Context, orderNo, buyerID string) error {
	if orderNo == "" || buyerID == "" {
		return ErrInvalidParam.withMessage("order_no 和 buyer_id 不能为空")
	}

	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		order, err := tx.GetOrder(orderNo)
		if err != nil {
			if errors.Is(err, repository.ErrOrderNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if order.BuyerID != buyerID {
			return ErrNotOrderBuyer
		}
		if order.Reviewed {
			return ErrOrderAlreadyReviewed
		}
		if err := tx.MarkOrderReviewed(orderNo); err != nil {
			if errors.Is(err, repository.ErrOrderAlreadyReviewed) {
				return ErrOrderAlreadyReviewed
			}
			return err
		}
		return nil
	})
	if err != nil {
		return AsBusinessError(err)
	}
	return nil
}

// ListOrders 买家或卖家视角的订单历史
func (s *SettlementService) ListOrders(ctx context.Context, userID string, asSeller bool, page, pageSize int) ([]*model.Order, int64, error) {
	if userID == "" {
		return nil, 0, ErrInvalidParam.withMessage("user_id 不能为空")
	}
	return s.queries.ListOrders(ctx, userID, asSeller, page, pageSize)
}
