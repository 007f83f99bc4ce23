package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"marketpay/internal/infrastructure/lock"
	"marketpay/internal/metrics"
	"marketpay/internal/model"
	"marketpay/internal/money"
	"marketpay/internal/provider"
	"marketpay/internal/repository"
	"marketpay/pkg/idgen"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 提现 / 打款
// ============================================================================
//
// 顺序：先扣款、再调渠道、失败补偿
//
//   1. 卖家维度加锁
//   2. 事务1：重新读余额，校验并扣款，写 pending 提现记录
//   3. 事务外调用渠道转账（带超时）
//   4. 事务2：成功 -> sent；失败 -> failed + 补偿入账，两者都和状态写入同一事务
//
// 事务2本身失败时记录停留在 pending，钱已经从余额里扣出，
// PendingWithdrawalJob 会向渠道查询转账状态后再收尾，因此任何时刻
// 余额 + 在途提现都能和渠道实际出款对上。
// ============================================================================

var (
	errBelowThreshold = errors.New("余额未达到打款门槛")
	errNoRecipient    = errors.New("未登记收款人")
)

const (
	PayoutStatusSent  = "sent"
	PayoutStatusError = "error"
)

const (
	defaultTransferTimeout = 30 * time.Second
	// 锁在渠道超时之外留给两段事务和补偿的时间
	payoutLockMargin = 15 * time.Second
)

// PayoutLockTTL 卖家锁的过期时间，必须长于一次完整打款，
// 否则渠道调用还没超时锁就过期，另一个请求能拿到锁重复扣款
func PayoutLockTTL(transferTimeout time.Duration) time.Duration {
	if transferTimeout <= 0 {
		transferTimeout = defaultTransferTimeout
	}
	return transferTimeout + payoutLockMargin
}

type WithdrawalDetails struct {
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	BankName      string `json:"bank_name"`
	BankCode      string `json:"bank_code"`
	RecipientCode string `json:"recipient_code"`
	WalletAddress string `json:"wallet_address"`
}

type WithdrawalRequest struct {
	SellerID string
	Amount   decimal.Decimal
	Method   string
	Details  WithdrawalDetails
}

// PayoutOutcome 自动打款中单个卖家的结果
type PayoutOutcome struct {
	SellerID     string          `json:"seller_id"`
	Email        string          `json:"email"`
	Amount       decimal.Decimal `json:"amount"`
	WithdrawalNo string          `json:"withdrawal_no,omitempty"`
	Status       string          `json:"status"`
	Error        string          `json:"error,omitempty"`
}

type PayoutService struct {
	store           repository.Store
	queries         repository.Queries
	locker          Locker
	notifier        *Notifier
	ids             *idgen.Snowflake
	transferers     map[string]provider.Transferer
	threshold       decimal.Decimal
	transferTimeout time.Duration
	now             func() time.Time
}

// NewPayoutService transferers 的 key 是打款方式（bank / crypto）
func NewPayoutService(store repository.Store, queries repository.Queries, locker Locker, notifier *Notifier, ids *idgen.Snowflake,
	transferers map[string]provider.Transferer, threshold decimal.Decimal, transferTimeout time.Duration) *PayoutService {
	if transferTimeout <= 0 {
		transferTimeout = defaultTransferTimeout
	}
	return &PayoutService{
		store:           store,
		queries:         queries,
		locker:          locker,
		notifier:        notifier,
		ids:             ids,
		transferers:     transferers,
		threshold:       money.Round(threshold),
		transferTimeout: transferTimeout,
		now:             time.Now,
	}
}

func validateWithdrawal(req WithdrawalRequest) error {
	if req.SellerID == "" {
		return ErrInvalidParam.withMessage("seller_id 不能为空")
	}
	if !money.IsPositive(req.Amount) {
		return ErrInvalidAmount
	}

	d := req.Details
	switch req.Method {
	case model.PayoutMethodBank:
		if d.RecipientCode != "" {
			return nil
		}
		if d.AccountName == "" || d.AccountNumber == "" || d.BankName == "" {
			return ErrInvalidDetails.withMessage("银行提现需要填写户名、账号和银行名称")
		}
	case model.PayoutMethodCrypto:
		if d.WalletAddress == "" {
			return ErrInvalidDetails.withMessage("加密货币提现需要填写钱包地址")
		}
	default:
		return ErrInvalidDetails.withMessage("不支持的提现方式")
	}
	return nil
}

// resolveBankCode 只填了银行名称时先向渠道换取银行编码，查不到直接拒绝，此时还没有扣款
func resolveBankCode(ctx context.Context, transferer provider.Transferer, req *WithdrawalRequest) error {
	d := &req.Details
	if req.Method != model.PayoutMethodBank || d.RecipientCode != "" || d.BankCode != "" {
		return nil
	}
	resolver, ok := transferer.(provider.BankResolver)
	if !ok {
		return nil
	}

	code, err := resolver.ResolveBankCode(ctx, d.BankName)
	if err != nil {
		if errors.Is(err, provider.ErrBankNotFound) {
			return ErrInvalidDetails.withMessage("无法识别的银行名称: " + d.BankName)
		}
		return ErrDependency.wrap(err)
	}
	d.BankCode = code
	return nil
}

// RequestWithdrawal 卖家手动提现。
//
// 渠道拒绝或超时时返回记录（状态 failed，余额已补偿）和 ErrPayoutFailed。
func (s *PayoutService) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*model.Withdrawal, error) {
	if err := validateWithdrawal(req); err != nil {
		metrics.RecordPayout(req.Method, AsBusinessError(err).Code)
		return nil, err
	}

	transferer, ok := s.transferers[req.Method]
	if !ok {
		return nil, ErrPayoutNotReady
	}

	if err := resolveBankCode(ctx, transferer, &req); err != nil {
		be := AsBusinessError(err)
		metrics.RecordPayout(req.Method, be.Code)
		if be.Kind == KindDependency {
			log.Printf("[Payout] 查询银行编码失败: seller=%s, bank=%s, err=%v", req.SellerID, req.Details.BankName, err)
		}
		return nil, be
	}

	release, err := s.locker.Acquire(ctx, lock.PayoutKey(req.SellerID), req.SellerID)
	if err != nil {
		metrics.RecordPayout(req.Method, "lock_busy")
		return nil, ErrSystemBusy.wrap(err)
	}
	defer release()

	w := &model.Withdrawal{
		WithdrawalNo:  s.ids.WithdrawalNo(),
		SellerID:      req.SellerID,
		Amount:        money.Round(req.Amount),
		Method:        req.Method,
		AccountName:   req.Details.AccountName,
		AccountNumber: req.Details.AccountNumber,
		BankName:      req.Details.BankName,
		BankCode:      req.Details.BankCode,
		RecipientCode: req.Details.RecipientCode,
		WalletAddress: req.Details.WalletAddress,
		Source:        model.WithdrawalSourceManual,
		Status:        model.WithdrawalStatusPending,
	}

	if err := s.reserve(ctx, w, false); err != nil {
		be := AsBusinessError(err)
		if errors.Is(err, repository.ErrOptimisticLock) {
			be = ErrSystemBusy.wrap(err)
		}
		metrics.RecordPayout(req.Method, be.Code)
		if be.Kind == KindDependency {
			log.Printf("[Payout] 提现扣款失败: seller=%s, amount=%s, err=%v", req.SellerID, w.Amount, err)
		}
		return nil, be
	}

	return s.execute(ctx, transferer, w)
}

// reserve 事务1：扣款并写入 pending 记录。
// full 为 true 时是自动打款：金额取事务内读到的全部余额，收款人取账户登记的收款人。
func (s *PayoutService) reserve(ctx context.Context, w *model.Withdrawal, full bool) error {
	return s.store.RunInTx(ctx, func(tx repository.Tx) error {
		seller, err := tx.GetAccount(w.SellerID)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		if seller.Banned {
			return ErrAccountBanned
		}

		if full {
			if seller.Balance.LessThan(s.threshold) {
				return errBelowThreshold
			}
			if seller.RecipientCode == "" {
				return errNoRecipient
			}
			w.Amount = seller.Balance
			w.RecipientCode = seller.RecipientCode
		} else if w.Amount.GreaterThan(seller.Balance) {
			return ErrInvalidAmount.withMessage("提现金额超过可用余额")
		}

		seller.Balance = money.Sub(seller.Balance, w.Amount)
		if err := tx.UpdateAccount(seller); err != nil {
			return err
		}
		return tx.CreateWithdrawal(w)
	})
}

// execute 调渠道并收尾。调用方必须持有该卖家的打款锁。
func (s *PayoutService) execute(ctx context.Context, transferer provider.Transferer, w *model.Withdrawal) (*model.Withdrawal, error) {
	// 扣款已经落库，请求取消也要把这笔打款走完
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.transferTimeout)
	res, err := transferer.Transfer(tctx, provider.TransferRequest{
		Reference:     w.WithdrawalNo,
		Amount:        w.Amount,
		Reason:        "Marketplace Payout " + w.WithdrawalNo,
		RecipientCode: w.RecipientCode,
		AccountName:   w.AccountName,
		AccountNumber: w.AccountNumber,
		BankName:      w.BankName,
		BankCode:      w.BankCode,
		WalletAddress: w.WalletAddress,
	})
	cancel()

	if err == nil && res.State == provider.TransferFailed {
		err = fmt.Errorf("%w: status=%s", provider.ErrTransferRejected, res.Status)
	}

	fctx := context.WithoutCancel(ctx)
	if err != nil {
		log.Printf("[Payout] 渠道打款失败，准备补偿: withdrawalNo=%s, seller=%s, amount=%s, err=%v",
			w.WithdrawalNo, w.SellerID, w.Amount, err)
		done, ferr := s.markFailed(fctx, w.WithdrawalNo, err.Error())
		if ferr != nil {
			metrics.RecordPayout(w.Method, "unresolved")
			log.Printf("[Payout] 告警: 补偿入账失败，记录保持 pending 等待后台收尾: withdrawalNo=%s, seller=%s, amount=%s, err=%v",
				w.WithdrawalNo, w.SellerID, w.Amount, ferr)
			return w, ErrDependency.wrap(ferr)
		}
		metrics.RecordPayout(w.Method, "failed")
		return done, ErrPayoutFailed.wrap(err)
	}

	done, ferr := s.markSent(fctx, w.WithdrawalNo, res.TransferCode)
	if ferr != nil {
		// 钱已经出去了，不能再报失败
		metrics.RecordPayout(w.Method, "unresolved")
		log.Printf("[Payout] 告警: 打款成功但状态更新失败，记录保持 pending 等待后台收尾: withdrawalNo=%s, seller=%s, amount=%s, err=%v",
			w.WithdrawalNo, w.SellerID, w.Amount, ferr)
		return w, nil
	}

	metrics.RecordPayout(w.Method, "sent")
	log.Printf("[Payout] 打款成功: withdrawalNo=%s, seller=%s, amount=%s, source=%s",
		w.WithdrawalNo, w.SellerID, w.Amount, w.Source)
	return done, nil
}

// markSent pending -> sent
func (s *PayoutService) markSent(ctx context.Context, withdrawalNo, transferRef string) (*model.Withdrawal, error) {
	var out *model.Withdrawal
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		w, err := tx.GetWithdrawal(withdrawalNo)
		if err != nil {
			return err
		}
		now := s.now()
		w.Status = model.WithdrawalStatusSent
		w.TransferRef = transferRef
		w.ResolvedAt = &now
		if err := tx.UpdateWithdrawalStatus(w, model.WithdrawalStatusPending); err != nil {
			return err
		}

		seller, err := tx.GetAccount(w.SellerID)
		if err != nil {
			return err
		}
		seller.LastPayoutAt = &now
		if err := tx.UpdateAccount(seller); err != nil {
			return err
		}

		err = s.notifier.Notify(tx, Notice{
			UserID:  w.SellerID,
			Title:   "打款已发出",
			Message: "₦" + w.Amount.StringFixed(2) + " 已打款到你的收款账户",
			Type:    model.NotificationTypePayout,
		})
		if err != nil {
			return err
		}
		err = s.notifier.Publish(tx, model.EventPayoutSent, w.WithdrawalNo, []string{w.SellerID}, map[string]interface{}{
			"withdrawal_no": w.WithdrawalNo,
			"amount":        w.Amount.StringFixed(2),
			"method":        w.Method,
			"source":        w.Source,
			"transfer_ref":  transferRef,
		})
		if err != nil {
			return err
		}
		out = w
		return nil
	})
	return out, err
}

// markFailed pending -> failed，同一事务内把金额加回余额
func (s *PayoutService) markFailed(ctx context.Context, withdrawalNo, reason string) (*model.Withdrawal, error) {
	if len(reason) > 500 {
		reason = reason[:500]
	}

	var out *model.Withdrawal
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		w, err := tx.GetWithdrawal(withdrawalNo)
		if err != nil {
			return err
		}
		now := s.now()
		w.Status = model.WithdrawalStatusFailed
		w.FailureReason = reason
		w.ResolvedAt = &now
		if err := tx.UpdateWithdrawalStatus(w, model.WithdrawalStatusPending); err != nil {
			return err
		}

		seller, err := tx.GetAccount(w.SellerID)
		if err != nil {
			return err
		}
		seller.Balance = money.Add(seller.Balance, w.Amount)
		if err := tx.UpdateAccount(seller); err != nil {
			return err
		}

		err = s.notifier.Notify(tx, Notice{
			UserID:  w.SellerID,
			Title:   "打款失败",
			Message: "₦" + w.Amount.StringFixed(2) + " 打款失败，金额已退回钱包",
			Type:    model.NotificationTypePayout,
		})
		if err != nil {
			return err
		}
		err = s.notifier.Publish(tx, model.EventPayoutFailed, w.WithdrawalNo, []string{w.SellerID}, map[string]interface{}{
			"withdrawal_no": w.WithdrawalNo,
			"amount":        w.Amount.StringFixed(2),
			"method":        w.Method,
			"source":        w.Source,
			"reason":        reason,
		})
		if err != nil {
			return err
		}
		out = w
		return nil
	})
	return out, err
}

// RunAutoPayout 批量自动打款：余额达到门槛且登记了收款人的卖家，每人一笔全额银行转账。
// 每个卖家独立加锁、独立事务，一个卖家失败不影响其他卖家。
func (s *PayoutService) RunAutoPayout(ctx context.Context) ([]PayoutOutcome, error) {
	transferer, ok := s.transferers[model.PayoutMethodBank]
	if !ok {
		return nil, ErrPayoutNotReady
	}

	candidates, err := s.queries.ListPayoutCandidates(ctx, s.threshold)
	if err != nil {
		return nil, ErrDependency.wrap(err)
	}

	outcomes := make([]PayoutOutcome, 0, len(candidates))
	sent := 0
	for _, acc := range candidates {
		if ctx.Err() != nil {
			break
		}
		outcome, listed := s.sweepOne(ctx, transferer, acc)
		if !listed {
			continue
		}
		if outcome.Status == PayoutStatusSent {
			sent++
		}
		outcomes = append(outcomes, outcome)
	}

	if len(outcomes) > 0 {
		log.Printf("[Payout] 自动打款完成: 候选=%d, 成功=%d, 失败=%d", len(outcomes), sent, len(outcomes)-sent)
	}
	return outcomes, nil
}

func (s *PayoutService) sweepOne(ctx context.Context, transferer provider.Transferer, acc *model.Account) (PayoutOutcome, bool) {
	outcome := PayoutOutcome{SellerID: acc.UserID, Email: acc.Email, Amount: acc.Balance}

	release, err := s.locker.Acquire(ctx, lock.PayoutKey(acc.UserID), "auto-payout")
	if err != nil {
		outcome.Status = PayoutStatusError
		outcome.Error = ErrSystemBusy.Message
		return outcome, true
	}
	defer release()

	w := &model.Withdrawal{
		WithdrawalNo: s.ids.WithdrawalNo(),
		SellerID:     acc.UserID,
		Method:       model.PayoutMethodBank,
		Source:       model.WithdrawalSourceAuto,
		Status:       model.WithdrawalStatusPending,
	}
	if err := s.reserve(ctx, w, true); err != nil {
		// 候选名单是事务外读的，加锁后余额已不满足条件就跳过
		if errors.Is(err, errBelowThreshold) || errors.Is(err, errNoRecipient) {
			return outcome, false
		}
		log.Printf("[Payout] 自动打款扣款失败: seller=%s, err=%v", acc.UserID, err)
		outcome.Status = PayoutStatusError
		outcome.Error = err.Error()
		return outcome, true
	}

	outcome.Amount = w.Amount
	outcome.WithdrawalNo = w.WithdrawalNo

	done, err := s.execute(ctx, transferer, w)
	switch {
	case err != nil:
		outcome.Status = PayoutStatusError
		outcome.Error = err.Error()
	case done.Status != model.WithdrawalStatusSent:
		outcome.Status = PayoutStatusError
		outcome.Error = "打款结果待确认"
	default:
		outcome.Status = PayoutStatusSent
	}
	return outcome, true
}

// ResolvePending 收尾长时间停留在 pending 的提现：向渠道查询转账状态，
// 已受理的标记 sent，失败或渠道查无此单的标记 failed 并补偿，查询出错的留到下一轮。
func (s *PayoutService) ResolvePending(ctx context.Context, olderThan time.Duration) (int, error) {
	list, err := s.queries.ListPendingWithdrawals(ctx, s.now().Add(-olderThan), 100)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, w := range list {
		if ctx.Err() != nil {
			break
		}
		ok, err := s.resolveOne(ctx, w)
		if err != nil {
			log.Printf("[Payout] 收尾 pending 提现失败: withdrawalNo=%s, seller=%s, amount=%s, err=%v",
				w.WithdrawalNo, w.SellerID, w.Amount, err)
			continue
		}
		if ok {
			resolved++
		}
	}
	return resolved, nil
}

func (s *PayoutService) resolveOne(ctx context.Context, w *model.Withdrawal) (bool, error) {
	transferer, ok := s.transferers[w.Method]
	if !ok {
		return false, fmt.Errorf("打款方式未配置: %s", w.Method)
	}

	release, err := s.locker.Acquire(ctx, lock.PayoutKey(w.SellerID), "resolve-pending")
	if err != nil {
		return false, err
	}
	defer release()

	tctx, cancel := context.WithTimeout(ctx, s.transferTimeout)
	res, err := transferer.TransferStatus(tctx, w.WithdrawalNo)
	cancel()

	switch {
	case errors.Is(err, provider.ErrTransferNotFound):
		_, err = s.markFailed(ctx, w.WithdrawalNo, "渠道无此转账记录")
	case err != nil:
		return false, err
	case res.State == provider.TransferFailed:
		_, err = s.markFailed(ctx, w.WithdrawalNo, "渠道确认转账失败: "+res.Status)
	default:
		_, err = s.markSent(ctx, w.WithdrawalNo, res.TransferCode)
	}

	if err != nil {
		// 别的实例已经收尾
		if errors.Is(err, repository.ErrWithdrawalStatusInvalid) {
			return false, nil
		}
		return false, err
	}
	log.Printf("[Payout] pending 提现已收尾: withdrawalNo=%s, seller=%s", w.WithdrawalNo, w.SellerID)
	return true, nil
}

// History 卖家提现记录
func (s *PayoutService) History(ctx context.Context, sellerID string, page, pageSize int) ([]*model.Withdrawal, int64, error) {
	if sellerID == "" {
		return nil, 0, ErrInvalidParam.withMessage("seller_id 不能为空")
	}
	return s.queries.ListWithdrawals(ctx, sellerID, page, pageSize)
}
