package repository

import (
	"context"

	"marketpay/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PlatformRepository struct {
	db *gorm.DB
}

func NewPlatformRepository(db *gorm.DB) *PlatformRepository {
	return &PlatformRepository{db: db}
}

// GetForUpdate 读取平台汇总行，不存在时先插入零值行
func (r *PlatformRepository) GetForUpdate(ctx context.Context, tx *gorm.DB) (*model.PlatformMetrics, error) {
	seed := &model.PlatformMetrics{ID: model.PlatformMetricsID, Revenue: decimal.Zero}
	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(seed).Error
	if err != nil {
		return nil, err
	}

	var m model.PlatformMetrics
	err = tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", model.PlatformMetricsID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PlatformRepository) Update(ctx context.Context, tx *gorm.DB, m *model.PlatformMetrics) error {
	result := tx.WithContext(ctx).
		Model(&model.PlatformMetrics{}).
		Where("id = ? AND version = ?", model.PlatformMetricsID, m.Version).
		Updates(map[string]interface{}{
			"revenue": m.Revenue,
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}

	m.Version++
	return nil
}

func (r *PlatformRepository) Revenue(ctx context.Context, tx *gorm.DB) (decimal.Decimal, error) {
	return sumColumn(tx.WithContext(ctx).Model(&model.PlatformMetrics{}), "revenue")
}
