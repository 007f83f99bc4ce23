package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"marketpay/internal/model"
	"marketpay/internal/repository"

	"github.com/shopspring/decimal"
)

type AccountService struct {
	store   repository.Store
	queries repository.Queries
}

func NewAccountService(store repository.Store, queries repository.Queries) *AccountService {
	return &AccountService{store: store, queries: queries}
}

type RegisterRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// Register 首次认证时建零余额账户，重复调用返回已有账户，不会改动余额
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*model.Account, error) {
	if req.UserID == "" {
		return nil, ErrInvalidParam.withMessage("user_id 不能为空")
	}
	role := req.Role
	if role == "" {
		role = model.RoleBuyer
	}
	if !model.ValidRole(role) {
		return nil, ErrInvalidParam.withMessage("role 只能是 Buyer、Seller 或 Admin")
	}

	acc, err := s.store.EnsureAccount(ctx, &model.Account{
		UserID:      req.UserID,
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		DisplayName: req.DisplayName,
		Role:        role,
		Balance:     decimal.Zero,
	})
	if err != nil {
		return nil, AsBusinessError(err)
	}
	return acc, nil
}

func (s *AccountService) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	acc, err := s.queries.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, AsBusinessError(err)
	}
	return acc, nil
}

func (s *AccountService) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	acc, err := s.GetAccount(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Balance, nil
}

// SetBanned 软封禁。账户和余额都保留，被封禁的用户不能购买或提现，但充值照常入账。
func (s *AccountService) SetBanned(ctx context.Context, userID string, banned bool) error {
	err := s.update(ctx, userID, func(acc *model.Account) { acc.Banned = banned })
	if err == nil {
		log.Printf("[Account] 封禁状态变更: user=%s, banned=%v", userID, banned)
	}
	return err
}

// SetRecipientCode 登记自动打款收款人，传空字符串即取消自动打款
func (s *AccountService) SetRecipientCode(ctx context.Context, userID, code string) error {
	return s.update(ctx, userID, func(acc *model.Account) { acc.RecipientCode = strings.TrimSpace(code) })
}

func (s *AccountService) update(ctx context.Context, userID string, mutate func(acc *model.Account)) error {
	if userID == "" {
		return ErrInvalidParam.withMessage("user_id 不能为空")
	}
	err := s.store.RunInTx(ctx, func(tx repository.Tx) error {
		acc, err := tx.GetAccount(userID)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		mutate(acc)
		return tx.UpdateAccount(acc)
	})
	if err != nil {
		return AsBusinessError(err)
	}
	return nil
}
