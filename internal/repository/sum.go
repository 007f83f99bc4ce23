package repository

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// sumColumn 对金额列求和，空表返回 0
func sumColumn(query *gorm.DB, column string) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := query.Select("COALESCE(SUM(" + column + "), 0) AS total").Scan(&row).Error
	return row.Total, err
}
