package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlatformMetricsID 平台汇总只有一行
const PlatformMetricsID int64 = 1

// PlatformMetrics 平台收入累加器
// 只能在触发它的购买事务内做"读-加-写"
type PlatformMetrics struct {
	ID        int64           `gorm:"primaryKey" json:"id"`
	Revenue   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"revenue"`
	Version   int             `gorm:"not null;default:0" json:"version"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PlatformMetrics) TableName() string {
	return "platform_metrics"
}
