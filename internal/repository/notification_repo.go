package repository

import (
	"context"

	"marketpay/internal/model"

	"gorm.io/gorm"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, tx *gorm.DB, n *model.Notification) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(n).Error
}
