package service

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"marketpay/internal/infrastructure/lock"
	"marketpay/internal/metrics"
	"marketpay/internal/model"
	"marketpay/internal/money"
	"marketpay/internal/provider"
	"marketpay/internal/repository"

	"github.com/shopspring/decimal"
)

// ReconcileOutcome webhook 处理结果
type ReconcileOutcome string

const (
	OutcomeAccepted         ReconcileOutcome = "accepted"
	OutcomeDuplicate        ReconcileOutcome = "duplicate"
	OutcomeIgnored          ReconcileOutcome = "ignored"
	OutcomeUserNotFound     ReconcileOutcome = "user_not_found"
	OutcomeInvalidSignature ReconcileOutcome = "invalid_signature"
)

type ReconcileResult struct {
	Outcome   ReconcileOutcome `json:"outcome"`
	Provider  string           `json:"provider"`
	Reference string           `json:"reference,omitempty"`
	UserID    string           `json:"user_id,omitempty"`
	Amount    decimal.Decimal  `json:"amount"`
}

// DepositService 充值入账流水线。
//
// 三个渠道共用同一套流程：鉴权 -> 过滤事件类型 -> 参考号幂等 -> 定位用户 -> 原子入账。
// 渠道差异全部在 provider.WebhookAdapter 里。
type DepositService struct {
	store    repository.Store
	queries  repository.Queries
	locker   Locker
	notifier *Notifier
	adapters map[string]provider.WebhookAdapter
	currency string
}

func NewDepositService(store repository.Store, queries repository.Queries, locker Locker, notifier *Notifier, currency string, adapters ...provider.WebhookAdapter) *DepositService {
	m := make(map[string]provider.WebhookAdapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &DepositService{
		store:    store,
		queries:  queries,
		locker:   locker,
		notifier: notifier,
		adapters: m,
		currency: currency,
	}
}

// Reconcile 处理一次 webhook 推送。
//
// 返回 error 表示应该让渠道重推（核验失败、超时、存储故障、拿不到锁）；
// 重复推送、无关事件都以正常结果返回。同一事件重复调用任意次最多入账一次。
func (s *DepositService) Reconcile(ctx context.Context, providerName string, rawBody []byte, header http.Header) (*ReconcileResult, error) {
	adapter, ok := s.adapters[providerName]
	if !ok {
		return nil, ErrUnsupportedProvider
	}

	result := &ReconcileResult{Provider: providerName}

	ev, err := adapter.Authenticate(ctx, rawBody, header)
	if err != nil {
		if errors.Is(err, provider.ErrInvalidSignature) {
			result.Outcome = OutcomeInvalidSignature
			metrics.RecordDeposit(providerName, string(result.Outcome))
			log.Printf("[Deposit] 签名校验失败: provider=%s", providerName)
			return result, nil
		}
		metrics.RecordDeposit(providerName, "verify_error")
		log.Printf("[Deposit] 渠道核验失败，等待渠道重推: provider=%s, err=%v", providerName, err)
		return nil, err
	}

	if !ev.Relevant {
		result.Outcome = OutcomeIgnored
		metrics.RecordDeposit(providerName, string(result.Outcome))
		return result, nil
	}

	result.Reference = ev.Reference
	result.Amount = ev.Amount

	// 渠道并发重推同一参考号时只放一个进来，真正的去重仍然靠参考号主键
	release, err := s.locker.Acquire(ctx, lock.DepositKey(providerName, ev.Reference), ev.Reference)
	if err != nil {
		metrics.RecordDeposit(providerName, "lock_busy")
		log.Printf("[Deposit] 获取入账锁失败: provider=%s, reference=%s, err=%v", providerName, ev.Reference, err)
		return nil, ErrSystemBusy.wrap(err)
	}
	defer release()

	err = s.store.RunInTx(ctx, func(tx repository.Tx) error {
		existing, err := tx.GetDeposit(ev.Reference)
		if err != nil {
			return err
		}
		if existing != nil {
			result.Outcome = OutcomeDuplicate
			result.UserID = existing.UserID
			return nil
		}

		account, err := s.resolveUser(tx, ev)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				result.Outcome = OutcomeUserNotFound
				return nil
			}
			return err
		}

		// 封禁用户照常入账，钱不能丢
		account.Balance = money.Add(account.Balance, ev.Amount)
		if err := tx.UpdateAccount(account); err != nil {
			return err
		}

		currency := ev.Currency
		if currency == "" {
			currency = s.currency
		}
		email := ev.Email
		if email == "" {
			email = account.Email
		}
		err = tx.CreateDeposit(&model.Deposit{
			Reference: ev.Reference,
			Type:      model.DepositTypeDeposit,
			Amount:    ev.Amount,
			Currency:  currency,
			Email:     email,
			UserID:    account.UserID,
			Provider:  providerName,
		})
		if err != nil {
			return err
		}

		err = s.notifier.Notify(tx, Notice{
			UserID:  account.UserID,
			Title:   "充值到账",
			Message: "钱包已入账 ₦" + ev.Amount.StringFixed(2),
			Type:    model.NotificationTypeDeposit,
		})
		if err != nil {
			return err
		}
		err = s.notifier.Publish(tx, model.EventDepositCredited, ev.Reference, []string{account.UserID}, map[string]interface{}{
			"provider":  providerName,
			"reference": ev.Reference,
			"amount":    ev.Amount.StringFixed(2),
			"currency":  currency,
		})
		if err != nil {
			return err
		}

		result.Outcome = OutcomeAccepted
		result.UserID = account.UserID
		return nil
	})

	if err != nil {
		if errors.Is(err, repository.ErrDuplicateReference) {
			result.Outcome = OutcomeDuplicate
			metrics.RecordDeposit(providerName, string(result.Outcome))
			return result, nil
		}
		metrics.RecordDeposit(providerName, "store_error")
		log.Printf("[Deposit] 入账失败，等待渠道重推: provider=%s, reference=%s, amount=%s, err=%v",
			providerName, ev.Reference, ev.Amount, err)
		return nil, err
	}

	metrics.RecordDeposit(providerName, string(result.Outcome))
	switch result.Outcome {
	case OutcomeAccepted:
		log.Printf("[Deposit] 入账成功: provider=%s, reference=%s, user=%s, amount=%s",
			providerName, ev.Reference, result.UserID, ev.Amount)
	case OutcomeUserNotFound:
		log.Printf("[Deposit] 告警: 找不到入账用户，需要人工对账: provider=%s, reference=%s, uid=%s, email=%s, amount=%s",
			providerName, ev.Reference, ev.UserID, ev.Email, ev.Amount)
	}
	return result, nil
}

// resolveUser 优先用渠道回传的用户ID，找不到再按邮箱匹配
func (s *DepositService) resolveUser(tx repository.Tx, ev *provider.Event) (*model.Account, error) {
	if ev.UserID != "" {
		account, err := tx.GetAccount(ev.UserID)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, repository.ErrAccountNotFound) {
			return nil, err
		}
	}
	if email := strings.ToLower(strings.TrimSpace(ev.Email)); email != "" {
		return tx.FindAccountByEmail(email)
	}
	return nil, repository.ErrAccountNotFound
}

// ListDeposits 充值流水，供钱包页和对账工具读取
func (s *DepositService) ListDeposits(ctx context.Context, userID string, page, pageSize int) ([]*model.Deposit, int64, error) {
	if userID == "" {
		return nil, 0, ErrInvalidParam.withMessage("user_id 不能为空")
	}
	return s.queries.ListDeposits(ctx, userID, page, pageSize)
}
