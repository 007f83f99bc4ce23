package repository

import (
	"context"
	"errors"

	"marketpay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrOrderAlreadyReviewed = errors.New("订单已评价")

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(order).Error
}

func (r *OrderRepository) GetByOrderNoForUpdate(ctx context.Context, tx *gorm.DB, orderNo string) (*model.Order, error) {
	var order model.Order
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_no = ?", orderNo).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// MarkReviewed 订单创建后唯一允许修改的字段
func (r *OrderRepository) MarkReviewed(ctx context.Context, tx *gorm.DB, orderNo string) error {
	result := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("order_no = ? AND reviewed = ?", orderNo, false).
		Update("reviewed", true)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderAlreadyReviewed
	}
	return nil
}

// ListByUserID 买家视角或卖家视角的订单历史
func (r *OrderRepository) ListByUserID(ctx context.Context, userID string, asSeller bool, page, pageSize int) ([]*model.Order, int64, error) {
	var orders []*model.Order
	var total int64

	column := "buyer_id"
	if asSeller {
		column = "seller_id"
	}

	query := r.db.WithContext(ctx).Model(&model.Order{}).Where(column+" = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("purchased_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}
