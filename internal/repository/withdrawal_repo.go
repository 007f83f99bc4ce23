package repository

import (
	"context"
	"errors"
	"time"

	"marketpay/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WithdrawalRepository struct {
	db *gorm.DB
}

func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) Create(ctx context.Context, tx *gorm.DB, w *model.Withdrawal) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(w).Error
}

func (r *WithdrawalRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, withdrawalNo string) (*model.Withdrawal, error) {
	var w model.Withdrawal
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("withdrawal_no = ?", withdrawalNo).
		First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &w, nil
}

// UpdateStatus 状态单向流转，WHERE 带上原状态防止并发重复处理
func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, w *model.Withdrawal, fromStatus string) error {
	if !model.CanTransitionTo(fromStatus, w.Status) {
		return ErrWithdrawalStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Withdrawal{}).
		Where("withdrawal_no = ? AND status = ?", w.WithdrawalNo, fromStatus).
		Updates(map[string]interface{}{
			"status":         w.Status,
			"transfer_ref":   w.TransferRef,
			"failure_reason": w.FailureReason,
			"resolved_at":    w.ResolvedAt,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrWithdrawalStatusInvalid
	}

	return nil
}

func (r *WithdrawalRepository) ListBySellerID(ctx context.Context, sellerID string, page, pageSize int) ([]*model.Withdrawal, int64, error) {
	var list []*model.Withdrawal
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Withdrawal{}).Where("seller_id = ?", sellerID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&list).Error

	return list, total, err
}

// GetPending 长时间停留在 pending 的打款，交给补偿任务核实
func (r *WithdrawalRepository) GetPending(ctx context.Context, before time.Time, limit int) ([]*model.Withdrawal, error) {
	var list []*model.Withdrawal
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.WithdrawalStatusPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *WithdrawalRepository) SumByStatus(ctx context.Context, tx *gorm.DB, status string) (decimal.Decimal, error) {
	return sumColumn(tx.WithContext(ctx).Model(&model.Withdrawal{}).Where("status = ?", status), "amount")
}
