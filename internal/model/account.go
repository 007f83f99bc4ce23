package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleBuyer  = "Buyer"
	RoleSeller = "Seller"
	RoleAdmin  = "Admin"
)

// Account 用户钱包账户表
// 记录用户的钱包余额，是整个结算核心唯一的共享可变数据。
// 余额只能在事务内通过"读-改-写"变更，不能在请求处理器中直接写入。
type Account struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"user_id"` // 用户ID，认证系统传入
	Email         string          `gorm:"type:varchar(191);index" json:"email"`
	DisplayName   string          `gorm:"type:varchar(128)" json:"display_name"`
	Role          string          `gorm:"type:varchar(16);index;not null;default:Buyer" json:"role"`
	Balance       decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"` // 钱包余额（₦）
	RecipientCode string          `gorm:"type:varchar(64)" json:"recipient_code,omitempty"`     // 自动打款收款人标识
	Banned        bool            `gorm:"not null;default:false" json:"banned"`                 // 软封禁，账户永不物理删除
	Version       int             `gorm:"not null;default:0" json:"version"`                    // 乐观锁版本号
	LastPayoutAt  *time.Time      `json:"last_payout_at,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

func ValidRole(role string) bool {
	switch role {
	case RoleBuyer, RoleSeller, RoleAdmin:
		return true
	}
	return false
}
