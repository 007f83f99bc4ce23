package repository

import (
	"context"
	"errors"

	"marketpay/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type DepositRepository struct {
	db *gorm.DB
}

func NewDepositRepository(db *gorm.DB) *DepositRepository {
	return &DepositRepository{db: db}
}

// Create 依赖主键去重；命中唯一约束说明该参考号已被并发入账
func (r *DepositRepository) Create(ctx context.Context, tx *gorm.DB, deposit *model.Deposit) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(deposit).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateReference
	}
	return err
}

func (r *DepositRepository) GetByReference(ctx context.Context, tx *gorm.DB, reference string) (*model.Deposit, error) {
	if tx == nil {
		tx = r.db
	}
	var deposit model.Deposit
	err := tx.WithContext(ctx).Where("reference = ?", reference).First(&deposit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &deposit, nil
}

func (r *DepositRepository) ListByUserID(ctx context.Context, userID string, page, pageSize int) ([]*model.Deposit, int64, error) {
	var deposits []*model.Deposit
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Deposit{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&deposits).Error

	return deposits, total, err
}

func (r *DepositRepository) Sum(ctx context.Context, tx *gorm.DB) (decimal.Decimal, error) {
	return sumColumn(tx.WithContext(ctx).Model(&model.Deposit{}), "amount")
}
