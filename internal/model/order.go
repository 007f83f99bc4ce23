package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order 订单表
// 每次成功购买生成一条，创建后除 Reviewed 外不可修改
type Order struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo      string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	ProductID    string          `gorm:"type:varchar(64);not null" json:"product_id"`
	ProductName  string          `gorm:"type:varchar(255)" json:"product_name"` // 成交时的商品名快照
	Price        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"price"`
	BuyerID      string          `gorm:"type:varchar(64);index;not null" json:"buyer_id"`
	SellerID     string          `gorm:"type:varchar(64);index;not null" json:"seller_id"`
	Commission   decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"commission"`
	SellerCredit decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"seller_credit"`
	Reviewed     bool            `gorm:"not null;default:false" json:"reviewed"`
	PurchasedAt  time.Time       `gorm:"index;not null" json:"purchased_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "marketplace_order"
}
