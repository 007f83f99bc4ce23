package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"

	"marketpay/internal/infrastructure/lock"
	"marketpay/internal/model"
	"marketpay/internal/money"
	"marketpay/internal/provider"
	"marketpay/internal/repository/memstore"
	"marketpay/pkg/idgen"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	store    *memstore.Store
	locker   *lock.MemoryLocker
	notifier *Notifier
	ids      *idgen.Snowflake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ids, err := idgen.New(1)
	require.NoError(t, err)
	return &fixture{
		store:    memstore.New(),
		locker:   lock.NewMemoryLocker(),
		notifier: NewNotifier("marketpay.notification"),
		ids:      ids,
	}
}

func (f *fixture) settlement(t *testing.T) *SettlementService {
	t.Helper()
	splitter, err := money.NewSplitter(0.05)
	require.NoError(t, err)
	return NewSettlementService(f.store, f.store, splitter, f.ids, f.notifier)
}

func (f *fixture) deposits(adapters ...provider.WebhookAdapter) *DepositService {
	if len(adapters) == 0 {
		adapters = []provider.WebhookAdapter{&stubAdapter{name: model.ProviderPaystack}}
	}
	return NewDepositService(f.store, f.store, f.locker, f.notifier, "NGN", adapters...)
}

func (f *fixture) payouts(transferers map[string]provider.Transferer) *PayoutService {
	return NewPayoutService(f.store, f.store, f.locker, f.notifier, f.ids, transferers, d("10000"), 0)
}

func (f *fixture) account(userID, role, balance string) {
	f.store.PutAccount(model.Account{
		UserID:  userID,
		Email:   userID + "@example.com",
		Role:    role,
		Balance: d(balance),
	})
}

// fund 经由充值流水线给用户入账，保持资金守恒
func (f *fixture) fund(t *testing.T, userID, amount string) {
	t.Helper()
	res, err := f.deposits().Reconcile(context.Background(), model.ProviderPaystack,
		depositBody(f.ids.NextNo("FUND"), userID, "", amount), nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeAccepted, res.Outcome)
}

// ============================================================================
// 渠道替身
// ============================================================================

// stubAdapter 把报文直接解析为 provider.Event，X-Test-Signature: bad 视为签名错误
type stubAdapter struct {
	name  string
	err   error
	calls int32
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Authenticate(ctx context.Context, rawBody []byte, header http.Header) (*provider.Event, error) {
	atomic.AddInt32(&a.calls, 1)
	if a.err != nil {
		return nil, a.err
	}
	if header.Get("X-Test-Signature") == "bad" {
		return nil, provider.ErrInvalidSignature
	}
	var ev provider.Event
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return nil, provider.ErrMalformedEvent
	}
	ev.Provider = a.name
	return &ev, nil
}

func depositBody(ref, uid, email, amount string) []byte {
	b, _ := json.Marshal(provider.Event{
		Type:      "charge.success",
		Relevant:  true,
		Reference: ref,
		Amount:    d(amount),
		Currency:  "NGN",
		Email:     email,
		UserID:    uid,
	})
	return b
}

type mockTransferer struct {
	mock.Mock
}

func (m *mockTransferer) Transfer(ctx context.Context, req provider.TransferRequest) (*provider.TransferResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*provider.TransferResult)
	return res, args.Error(1)
}

func (m *mockTransferer) TransferStatus(ctx context.Context, reference string) (*provider.TransferResult, error) {
	args := m.Called(ctx, reference)
	res, _ := args.Get(0).(*provider.TransferResult)
	return res, args.Error(1)
}

func accepted(code string) *provider.TransferResult {
	return &provider.TransferResult{TransferCode: code, Status: "success", State: provider.TransferAccepted}
}

type mockInitiator struct {
	mock.Mock
}

func (m *mockInitiator) Initiate(ctx context.Context, req provider.InitiateRequest) (*provider.Checkout, error) {
	args := m.Called(ctx, req)
	out, _ := args.Get(0).(*provider.Checkout)
	return out, args.Error(1)
}
