package repository

import (
	"context"
	"errors"

	"marketpay/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByUserID(ctx context.Context, userID string) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) GetByUserIDForUpdate(ctx context.Context, tx *gorm.DB, userID string) (*model.Account, error) {
	var account model.Account
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetByEmailForUpdate 邮箱不唯一时取最早注册的账户
func (r *AccountRepository) GetByEmailForUpdate(ctx context.Context, tx *gorm.DB, email string) (*model.Account, error) {
	var account model.Account
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("email = ?", email).
		Order("id ASC").
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// Update 乐观锁写回。余额由调用方在事务内基于最新读取计算好，
// version 不匹配说明读集合已被并发修改。
func (r *AccountRepository) Update(ctx context.Context, tx *gorm.DB, account *model.Account) error {
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ? AND version = ?", account.UserID, account.Version).
		Updates(map[string]interface{}{
			"balance":        account.Balance,
			"banned":         account.Banned,
			"recipient_code": account.RecipientCode,
			"last_payout_at": account.LastPayoutAt,
			"version":        gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}

	account.Version++
	return nil
}

// GetOrCreate 首次认证时建档，并发建档依赖 user_id 唯一索引去重
func (r *AccountRepository) GetOrCreate(ctx context.Context, account *model.Account) (*model.Account, error) {
	existing, err := r.GetByUserID(ctx, account.UserID)
	if err == nil {
		return existing, nil
	}

	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	newAccount := &model.Account{
		UserID:      account.UserID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		Role:        account.Role,
		Balance:     decimal.Zero,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newAccount).Error

	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, account.UserID)
}

// ListPayoutCandidates 达到打款门槛且登记了收款人的卖家
func (r *AccountRepository) ListPayoutCandidates(ctx context.Context, threshold decimal.Decimal) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).
		Where("role = ? AND balance >= ? AND recipient_code <> ''", model.RoleSeller, threshold).
		Order("id ASC").
		Find(&accounts).Error
	return accounts, err
}

func (r *AccountRepository) Count(ctx context.Context, tx *gorm.DB) (users int64, sellers int64, err error) {
	if err = tx.WithContext(ctx).Model(&model.Account{}).Count(&users).Error; err != nil {
		return 0, 0, err
	}
	err = tx.WithContext(ctx).Model(&model.Account{}).Where("role = ?", model.RoleSeller).Count(&sellers).Error
	return users, sellers, err
}

func (r *AccountRepository) SumBalances(ctx context.Context, tx *gorm.DB) (decimal.Decimal, error) {
	return sumColumn(tx.WithContext(ctx).Model(&model.Account{}), "balance")
}
