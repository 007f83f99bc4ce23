package service

import (
	"context"
	"errors"
	"testing"

	"marketpay/internal/model"
	"marketpay/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPaymentService_Initiate(t *testing.T) {
	f := newFixture(t)
	f.account("u1", model.RoleBuyer, "0")

	paystack := &mockInitiator{}
	paystack.On("Initiate", mock.Anything, mock.MatchedBy(func(r provider.InitiateRequest) bool {
		return r.UserID == "u1" && r.Email == "u1@example.com" && r.Amount.Equal(d("2500"))
	})).Return(&provider.Checkout{Provider: model.ProviderPaystack, Reference: "ref-1", Link: "https://checkout.paystack.com/x"}, nil)

	svc := NewPaymentService(f.store, map[string]provider.Initiator{PaymentMethodPaystack: paystack})
	out, err := svc.Initiate(context.Background(), InitiateRequest{UserID: "u1", Amount: d("2500"), Method: PaymentMethodPaystack})
	require.NoError(t, err)
	assert.Equal(t, "ref-1", out.Reference)
	paystack.AssertExpectations(t)

	// 下单不动余额
	assert.True(t, f.store.Balance("u1").IsZero())
}

func TestPaymentService_InitiateErrors(t *testing.T) {
	failing := &mockInitiator{}
	failing.On("Initiate", mock.Anything, mock.Anything).Return(nil, errors.New("503"))

	tests := []struct {
		name    string
		req     InitiateRequest
		wantErr error
	}{
		{"缺少用户", InitiateRequest{Amount: d("10"), Method: PaymentMethodPaystack}, ErrInvalidParam},
		{"金额非法", InitiateRequest{UserID: "u1", Amount: d("0"), Method: PaymentMethodPaystack}, ErrInvalidAmount},
		{"未知渠道", InitiateRequest{UserID: "u1", Amount: d("10"), Method: "paypal"}, ErrUnsupportedProvider},
		{"账户不存在", InitiateRequest{UserID: "ghost", Amount: d("10"), Method: PaymentMethodPaystack}, ErrAccountNotFound},
		{"渠道故障", InitiateRequest{UserID: "u1", Amount: d("10"), Method: PaymentMethodFlutterwave}, ErrDependency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.account("u1", model.RoleBuyer, "0")
			svc := NewPaymentService(f.store, map[string]provider.Initiator{
				PaymentMethodPaystack:    &mockInitiator{},
				PaymentMethodFlutterwave: failing,
			})
			_, err := svc.Initiate(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPaymentService_Methods(t *testing.T) {
	svc := NewPaymentService(nil, map[string]provider.Initiator{
		PaymentMethodCrypto:   &mockInitiator{},
		PaymentMethodPaystack: &mockInitiator{},
	})
	assert.Equal(t, []string{PaymentMethodPaystack, PaymentMethodCrypto}, svc.Methods())
	assert.Equal(t, model.ProviderCoinbase, ProviderForRoute(PaymentMethodCrypto))
	assert.Equal(t, model.ProviderPaystack, ProviderForRoute("paystack"))
}
