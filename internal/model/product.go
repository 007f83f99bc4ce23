package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product 商品表（只读）
// 商品目录由其他系统维护，结算核心只在事务内读取价格和卖家
type Product struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"product_id"`
	SellerID  string          `gorm:"type:varchar(64);index" json:"seller_id"`
	Name      string          `gorm:"type:varchar(255);not null" json:"name"`
	Price     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"price"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Product) TableName() string {
	return "product"
}
