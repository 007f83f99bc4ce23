package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"marketpay/internal/model"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormStore 基于 MySQL 的余额存储
type GormStore struct {
	db            *gorm.DB
	maxRetries    uint64
	accounts      *AccountRepository
	products      *ProductRepository
	orders        *OrderRepository
	deposits      *DepositRepository
	withdrawals   *WithdrawalRepository
	platform      *PlatformRepository
	notifications *NotificationRepository
	outbox        *OutboxRepository
}

func NewGormStore(db *gorm.DB, maxRetries int) *GormStore {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &GormStore{
		db:            db,
		maxRetries:    uint64(maxRetries),
		accounts:      NewAccountRepository(db),
		products:      NewProductRepository(db),
		orders:        NewOrderRepository(db),
		deposits:      NewDepositRepository(db),
		withdrawals:   NewWithdrawalRepository(db),
		platform:      NewPlatformRepository(db),
		notifications: NewNotificationRepository(db),
		outbox:        NewOutboxRepository(db),
	}
}

// RetryPolicy 乐观锁冲突时的退避策略
func RetryPolicy(ctx context.Context, maxRetries uint64) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx)
}

// RunWithRetry 只有 ErrOptimisticLock 会触发重试，其他错误立即返回
func RunWithRetry(ctx context.Context, maxRetries uint64, attempt func() error) error {
	return backoff.Retry(func() error {
		err := attempt()
		if err == nil || errors.Is(err, ErrOptimisticLock) {
			return err
		}
		return backoff.Permanent(err)
	}, RetryPolicy(ctx, maxRetries))
}

// 行锁读取下真正会出现的并发冲突是死锁和锁等待超时，按版本冲突一样整体重跑
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

func asConflict(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && (me.Number == mysqlErrDeadlock || me.Number == mysqlErrLockWaitTimeout) {
		return fmt.Errorf("%w: %v", ErrOptimisticLock, err)
	}
	return err
}

func (s *GormStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	return RunWithRetry(ctx, s.maxRetries, func() error {
		return asConflict(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(&gormTx{ctx: ctx, tx: tx, s: s})
		}))
	})
}

func (s *GormStore) EnsureAccount(ctx context.Context, acc *model.Account) (*model.Account, error) {
	return s.accounts.GetOrCreate(ctx, acc)
}

// ============================================================================
// 只读查询
// ============================================================================

func (s *GormStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	return s.accounts.GetByUserID(ctx, userID)
}

func (s *GormStore) ListOrders(ctx context.Context, userID string, asSeller bool, page, pageSize int) ([]*model.Order, int64, error) {
	page, pageSize = Normalize(page, pageSize)
	return s.orders.ListByUserID(ctx, userID, asSeller, page, pageSize)
}

func (s *GormStore) ListDeposits(ctx context.Context, userID string, page, pageSize int) ([]*model.Deposit, int64, error) {
	page, pageSize = Normalize(page, pageSize)
	return s.deposits.ListByUserID(ctx, userID, page, pageSize)
}

func (s *GormStore) ListWithdrawals(ctx context.Context, sellerID string, page, pageSize int) ([]*model.Withdrawal, int64, error) {
	page, pageSize = Normalize(page, pageSize)
	return s.withdrawals.ListBySellerID(ctx, sellerID, page, pageSize)
}

func (s *GormStore) ListPayoutCandidates(ctx context.Context, threshold decimal.Decimal) ([]*model.Account, error) {
	return s.accounts.ListPayoutCandidates(ctx, threshold)
}

func (s *GormStore) ListPendingWithdrawals(ctx context.Context, before time.Time, limit int) ([]*model.Withdrawal, error) {
	return s.withdrawals.GetPending(ctx, before, limit)
}

// Totals 所有汇总在同一个只读事务里查询，保证读到同一个快照
func (s *GormStore) Totals(ctx context.Context) (*Totals, error) {
	t := &Totals{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if t.Users, t.Sellers, err = s.accounts.Count(ctx, tx); err != nil {
			return err
		}
		if t.Balances, err = s.accounts.SumBalances(ctx, tx); err != nil {
			return err
		}
		if t.Revenue, err = s.platform.Revenue(ctx, tx); err != nil {
			return err
		}
		if t.Deposits, err = s.deposits.Sum(ctx, tx); err != nil {
			return err
		}
		if t.PayoutsSent, err = s.withdrawals.SumByStatus(ctx, tx, model.WithdrawalStatusSent); err != nil {
			return err
		}
		t.PayoutsInFlight, err = s.withdrawals.SumByStatus(ctx, tx, model.WithdrawalStatusPending)
		return err
	}, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ============================================================================
// 事务内操作
// ============================================================================

type gormTx struct {
	ctx context.Context
	tx  *gorm.DB
	s   *GormStore
}

func (t *gormTx) GetAccount(userID string) (*model.Account, error) {
	return t.s.accounts.GetByUserIDForUpdate(t.ctx, t.tx, userID)
}

func (t *gormTx) FindAccountByEmail(email string) (*model.Account, error) {
	return t.s.accounts.GetByEmailForUpdate(t.ctx, t.tx, email)
}

func (t *gormTx) UpdateAccount(acc *model.Account) error {
	return t.s.accounts.Update(t.ctx, t.tx, acc)
}

func (t *gormTx) GetProduct(productID string) (*model.Product, error) {
	return t.s.products.GetForShare(t.ctx, t.tx, productID)
}

func (t *gormTx) GetPlatformMetrics() (*model.PlatformMetrics, error) {
	return t.s.platform.GetForUpdate(t.ctx, t.tx)
}

func (t *gormTx) UpdatePlatformMetrics(m *model.PlatformMetrics) error {
	return t.s.platform.Update(t.ctx, t.tx, m)
}

func (t *gormTx) CreateOrder(order *model.Order) error {
	return t.s.orders.Create(t.ctx, t.tx, order)
}

func (t *gormTx) GetOrder(orderNo string) (*model.Order, error) {
	return t.s.orders.GetByOrderNoForUpdate(t.ctx, t.tx, orderNo)
}

func (t *gormTx) MarkOrderReviewed(orderNo string) error {
	return t.s.orders.MarkReviewed(t.ctx, t.tx, orderNo)
}

func (t *gormTx) GetDeposit(reference string) (*model.Deposit, error) {
	return t.s.deposits.GetByReference(t.ctx, t.tx, reference)
}

func (t *gormTx) CreateDeposit(d *model.Deposit) error {
	return t.s.deposits.Create(t.ctx, t.tx, d)
}

func (t *gormTx) CreateWithdrawal(w *model.Withdrawal) error {
	return t.s.withdrawals.Create(t.ctx, t.tx, w)
}

func (t *gormTx) GetWithdrawal(withdrawalNo string) (*model.Withdrawal, error) {
	return t.s.withdrawals.GetForUpdate(t.ctx, t.tx, withdrawalNo)
}

func (t *gormTx) UpdateWithdrawalStatus(w *model.Withdrawal, fromStatus string) error {
	return t.s.withdrawals.UpdateStatus(t.ctx, t.tx, w, fromStatus)
}

func (t *gormTx) CreateNotification(n *model.Notification) error {
	return t.s.notifications.Create(t.ctx, t.tx, n)
}

func (t *gormTx) CreateOutbox(msg *model.OutboxMessage) error {
	return t.s.outbox.Create(t.ctx, t.tx, msg)
}
