package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	WithdrawalStatusPending = "pending"
	WithdrawalStatusSent    = "sent"
	WithdrawalStatusFailed  = "failed"
)

const (
	PayoutMethodBank   = "bank"
	PayoutMethodCrypto = "crypto"
)

const (
	WithdrawalSourceManual = "manual"
	WithdrawalSourceAuto   = "auto"
)

// 状态只能单向流转
var ValidWithdrawalTransitions = map[string][]string{
	WithdrawalStatusPending: {WithdrawalStatusSent, WithdrawalStatusFailed},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidWithdrawalTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// Withdrawal 提现/打款记录表
type Withdrawal struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	WithdrawalNo  string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"withdrawal_no"`
	SellerID      string          `gorm:"type:varchar(64);index;not null" json:"seller_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Method        string          `gorm:"type:varchar(16);not null" json:"method"`
	AccountName   string          `gorm:"type:varchar(128)" json:"account_name,omitempty"`
	AccountNumber string          `gorm:"type:varchar(32)" json:"account_number,omitempty"`
	BankName      string          `gorm:"type:varchar(128)" json:"bank_name,omitempty"`
	BankCode      string          `gorm:"type:varchar(16)" json:"bank_code,omitempty"`
	RecipientCode string          `gorm:"type:varchar(64)" json:"recipient_code,omitempty"`
	WalletAddress string          `gorm:"type:varchar(128)" json:"wallet_address,omitempty"`
	Source        string          `gorm:"type:varchar(16);not null;default:manual" json:"source"`
	Status        string          `gorm:"type:varchar(16);index;not null" json:"status"`
	TransferRef   string          `gorm:"type:varchar(128)" json:"transfer_ref,omitempty"` // 渠道返回的转账标识
	FailureReason string          `gorm:"type:varchar(512)" json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	ResolvedAt    *time.Time      `json:"resolved_at,omitempty"`
}

func (Withdrawal) TableName() string {
	return "withdrawal"
}
