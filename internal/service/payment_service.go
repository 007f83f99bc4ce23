package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"marketpay/internal/model"
	"marketpay/internal/money"
	"marketpay/internal/provider"
	"marketpay/internal/repository"

	"github.com/shopspring/decimal"
)

// 充值方式，crypto 走 Coinbase Commerce
const (
	PaymentMethodPaystack    = "paystack"
	PaymentMethodFlutterwave = "flutterwave"
	PaymentMethodCrypto      = "crypto"
)

type InitiateRequest struct {
	UserID string          `json:"user_id" binding:"required"`
	Email  string          `json:"email"`
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" binding:"required"`
}

// PaymentService 充值下单：向渠道申请收银台链接。
// 这里不动余额，钱只在渠道回调核验通过后由 DepositService 入账。
type PaymentService struct {
	queries    repository.Queries
	initiators map[string]provider.Initiator
}

func NewPaymentService(queries repository.Queries, initiators map[string]provider.Initiator) *PaymentService {
	return &PaymentService{queries: queries, initiators: initiators}
}

func (s *PaymentService) Initiate(ctx context.Context, req InitiateRequest) (*provider.Checkout, error) {
	if req.UserID == "" {
		return nil, ErrInvalidParam.withMessage("user_id 不能为空")
	}
	if !money.IsPositive(req.Amount) {
		return nil, ErrInvalidAmount.withMessage("充值金额无效")
	}

	initiator, ok := s.initiators[req.Method]
	if !ok {
		return nil, ErrUnsupportedProvider
	}

	acc, err := s.queries.GetAccount(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, ErrDependency.wrap(err)
	}

	// 邮箱是渠道回调时定位用户的兜底线索，优先用账户登记的
	email := acc.Email
	if email == "" {
		email = strings.ToLower(strings.TrimSpace(req.Email))
	}
	if email == "" && req.Method != PaymentMethodCrypto {
		return nil, ErrInvalidParam.withMessage("email 不能为空")
	}

	checkout, err := initiator.Initiate(ctx, provider.InitiateRequest{
		UserID: acc.UserID,
		Email:  email,
		Amount: money.Round(req.Amount),
	})
	if err != nil {
		log.Printf("[Payment] 渠道下单失败: method=%s, user=%s, amount=%s, err=%v", req.Method, req.UserID, req.Amount, err)
		return nil, ErrDependency.wrap(err)
	}

	log.Printf("[Payment] 渠道下单成功: method=%s, user=%s, amount=%s, reference=%s",
		req.Method, req.UserID, req.Amount, checkout.Reference)
	return checkout, nil
}

// Methods 当前已配置的充值方式
func (s *PaymentService) Methods() []string {
	out := make([]string, 0, len(s.initiators))
	for _, m := range []string{PaymentMethodPaystack, PaymentMethodFlutterwave, PaymentMethodCrypto} {
		if _, ok := s.initiators[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

// ProviderForRoute webhook 路由段到渠道名的映射
func ProviderForRoute(route string) string {
	if route == PaymentMethodCrypto {
		return model.ProviderCoinbase
	}
	return route
}
