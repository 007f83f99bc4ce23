package service

import (
	"context"
	"testing"

	"marketpay/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountService_Register(t *testing.T) {
	f := newFixture(t)
	svc := NewAccountService(f.store, f.store)

	acc, err := svc.Register(context.Background(), RegisterRequest{UserID: "u1", Email: " Ada@Example.com ", Role: model.RoleSeller})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", acc.Email)
	assert.Equal(t, model.RoleSeller, acc.Role)
	assert.True(t, acc.Balance.IsZero())

	// 已有余额的账户重复注册不受影响
	f.fund(t, "u1", "70")
	again, err := svc.Register(context.Background(), RegisterRequest{UserID: "u1", Role: model.RoleBuyer})
	require.NoError(t, err)
	assert.Equal(t, model.RoleSeller, again.Role)
	assert.True(t, d("70").Equal(again.Balance))
}

func TestAccountService_RegisterValidation(t *testing.T) {
	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"缺少用户ID", RegisterRequest{Email: "a@example.com"}},
		{"非法角色", RegisterRequest{UserID: "u1", Role: "Root"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := NewAccountService(f.store, f.store).Register(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidParam)
		})
	}
}

func TestAccountService_DefaultRoleIsBuyer(t *testing.T) {
	f := newFixture(t)
	acc, err := NewAccountService(f.store, f.store).Register(context.Background(), RegisterRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleBuyer, acc.Role)
}

func TestAccountService_SetBanned(t *testing.T) {
	f := newFixture(t)
	f.account("u1", model.RoleBuyer, "0")
	f.fund(t, "u1", "30")
	svc := NewAccountService(f.store, f.store)

	require.NoError(t, svc.SetBanned(context.Background(), "u1", true))
	acc, _ := f.store.Account("u1")
	assert.True(t, acc.Banned)
	assert.True(t, d("30").Equal(acc.Balance))

	require.NoError(t, svc.SetBanned(context.Background(), "u1", false))
	acc, _ = f.store.Account("u1")
	assert.False(t, acc.Banned)

	assert.ErrorIs(t, svc.SetBanned(context.Background(), "ghost", true), ErrAccountNotFound)
}

func TestAccountService_SetRecipientCode(t *testing.T) {
	f := newFixture(t)
	f.account("seller", model.RoleSeller, "0")
	svc := NewAccountService(f.store, f.store)

	require.NoError(t, svc.SetRecipientCode(context.Background(), "seller", " RCP_1 "))
	acc, _ := f.store.Account("seller")
	assert.Equal(t, "RCP_1", acc.RecipientCode)

	assert.ErrorIs(t, svc.SetRecipientCode(context.Background(), "", "RCP_1"), ErrInvalidParam)
}

func TestAccountService_GetBalance(t *testing.T) {
	f := newFixture(t)
	f.account("u1", model.RoleBuyer, "0")
	f.fund(t, "u1", "12.34")
	svc := NewAccountService(f.store, f.store)

	balance, err := svc.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, d("12.34").Equal(balance))

	_, err = svc.GetBalance(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
