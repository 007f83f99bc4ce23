package repository

import (
	"context"
	"errors"
	"time"

	"marketpay/internal/model"

	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound         = errors.New("账户不存在")
	ErrProductNotFound         = errors.New("商品不存在")
	ErrOrderNotFound           = errors.New("订单不存在")
	ErrWithdrawalNotFound      = errors.New("提现记录不存在")
	ErrWithdrawalStatusInvalid = errors.New("提现状态不合法")
	ErrDuplicateReference      = errors.New("渠道参考号已入账")
	ErrOptimisticLock          = errors.New("乐观锁冲突，请重试")
)

// Tx 一个事务作用域内可用的读写操作。
//
// 【约束】所有读取都在事务内完成（gorm 实现使用 SELECT ... FOR UPDATE），
// 写入余额和平台收入时校验 version，读集合在提交前被并发修改会返回
// ErrOptimisticLock，由 Store.RunInTx 整体重试。
type Tx interface {
	GetAccount(userID string) (*model.Account, error)
	FindAccountByEmail(email string) (*model.Account, error)
	// UpdateAccount 按 version 条件写回余额及资料字段，成功后 acc.Version 自增
	UpdateAccount(acc *model.Account) error

	GetProduct(productID string) (*model.Product, error)

	GetPlatformMetrics() (*model.PlatformMetrics, error)
	UpdatePlatformMetrics(m *model.PlatformMetrics) error

	CreateOrder(order *model.Order) error
	GetOrder(orderNo string) (*model.Order, error)
	MarkOrderReviewed(orderNo string) error

	// GetDeposit 未找到时返回 nil, nil
	GetDeposit(reference string) (*model.Deposit, error)
	// CreateDeposit 参考号已存在时返回 ErrDuplicateReference
	CreateDeposit(d *model.Deposit) error

	CreateWithdrawal(w *model.Withdrawal) error
	GetWithdrawal(withdrawalNo string) (*model.Withdrawal, error)
	// UpdateWithdrawalStatus 仅当当前状态等于 fromStatus 时写入 w 的终态字段
	UpdateWithdrawalStatus(w *model.Withdrawal, fromStatus string) error

	CreateNotification(n *model.Notification) error
	CreateOutbox(msg *model.OutboxMessage) error
}

// Store 余额存储的事务入口
type Store interface {
	// RunInTx 以单个原子单元执行 fn。fn 可能因乐观锁冲突被重复执行，
	// 因此 fn 内不允许有外部调用等副作用。
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
	// EnsureAccount 首次认证时创建零余额账户，已存在则原样返回
	EnsureAccount(ctx context.Context, acc *model.Account) (*model.Account, error)
}

// Queries 只读查询。
// 结果只用于展示或挑选候选对象，任何写入都必须在事务内重新读取。
type Queries interface {
	GetAccount(ctx context.Context, userID string) (*model.Account, error)
	ListOrders(ctx context.Context, userID string, asSeller bool, page, pageSize int) ([]*model.Order, int64, error)
	ListDeposits(ctx context.Context, userID string, page, pageSize int) ([]*model.Deposit, int64, error)
	ListWithdrawals(ctx context.Context, sellerID string, page, pageSize int) ([]*model.Withdrawal, int64, error)
	ListPayoutCandidates(ctx context.Context, threshold decimal.Decimal) ([]*model.Account, error)
	ListPendingWithdrawals(ctx context.Context, before time.Time, limit int) ([]*model.Withdrawal, error)
	Totals(ctx context.Context) (*Totals, error)
}

// Totals 资金守恒校验用的汇总
type Totals struct {
	Users           int64
	Sellers         int64
	Balances        decimal.Decimal
	Revenue         decimal.Decimal
	Deposits        decimal.Decimal
	PayoutsSent     decimal.Decimal
	PayoutsInFlight decimal.Decimal
}

// Normalize 分页参数兜底
func Normalize(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
