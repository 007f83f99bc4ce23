package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DepositTypeDeposit = "deposit"
)

const (
	ProviderPaystack    = "paystack"
	ProviderFlutterwave = "flutterwave"
	ProviderCoinbase    = "coinbase"
)

// Deposit 充值流水表
//
// 【重要】主键就是支付渠道的交易参考号，而不是自增ID。
// 这是 webhook 幂等的唯一依据：同一个参考号最多只会入账一次，
// 渠道重复推送时插入会命中主键冲突，整个入账事务回滚。
type Deposit struct {
	Reference string          `gorm:"type:varchar(128);primaryKey" json:"reference"`
	Type      string          `gorm:"type:varchar(20);not null" json:"type"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency  string          `gorm:"type:varchar(8)" json:"currency"`
	Email     string          `gorm:"type:varchar(191)" json:"email"`
	UserID    string          `gorm:"type:varchar(64);index;not null" json:"user_id"`
	Provider  string          `gorm:"type:varchar(32);not null" json:"provider"`
	CreatedAt time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Deposit) TableName() string {
	return "deposit_transaction"
}
