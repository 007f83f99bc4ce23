package model

import "time"

const (
	NotificationTypeDeposit  = "deposit"
	NotificationTypePayout   = "payout"
	NotificationTypePurchase = "purchase"
	NotificationTypeSale     = "sale"
)

// Notification 站内通知，由前端通知页读取
type Notification struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(64);index;not null" json:"user_id"`
	Title     string    `gorm:"type:varchar(128);not null" json:"title"`
	Message   string    `gorm:"type:varchar(512);not null" json:"message"`
	Type      string    `gorm:"type:varchar(20);not null" json:"type"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Notification) TableName() string {
	return "notification"
}
