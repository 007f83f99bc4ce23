package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketpay/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlutterwave(t *testing.T, secret string, h http.HandlerFunc) *Flutterwave {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewFlutterwave(config.ProviderConfig{
		BaseURL:       srv.URL,
		SecretKey:     "FLWSECK_TEST",
		WebhookSecret: secret,
		Timeout:       2 * time.Second,
	}, "https://shop.example/wallet", "NGN")
}

func TestUserIDFromTxRef(t *testing.T) {
	tests := []struct {
		txRef string
		want  string
	}{
		{"u1_1700000000000", "u1"},
		{"user_with_underscores_1700000000000", "user_with_underscores"},
		{"u1_abc", ""},
		{"no-separator", ""},
		{"_1700000000000", ""},
		{"u1_", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UserIDFromTxRef(tt.txRef), tt.txRef)
	}
}

func TestFlutterwave_Authenticate(t *testing.T) {
	f := newFlutterwave(t, "", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/transactions/verify_by_reference", r.URL.Path)
		assert.Equal(t, "u1_1700000000000", r.URL.Query().Get("tx_ref"))
		_, _ = io.WriteString(w, `{"status":"success","data":{"status":"successful","tx_ref":"u1_1700000000000","amount":1500.75,"currency":"NGN","customer":{"email":"a@example.com"},"meta":{"uid":"ignored"}}}`)
	})

	body := []byte(`{"event":"charge.completed","data":{"status":"successful","tx_ref":"u1_1700000000000","amount":1}}`)
	ev, err := f.Authenticate(context.Background(), body, http.Header{})
	require.NoError(t, err)
	assert.True(t, ev.Relevant)
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, "u1_1700000000000", ev.Reference)
	assert.True(t, decimal.RequireFromString("1500.75").Equal(ev.Amount))
}

func TestFlutterwave_AuthenticateMetaFallback(t *testing.T) {
	f := newFlutterwave(t, "", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"success","data":{"status":"successful","tx_ref":"legacy-ref","amount":200,"customer":{"email":"b@example.com"},"meta":{"uid":"u9"}}}`)
	})

	body := []byte(`{"data":{"status":"successful","tx_ref":"legacy-ref"}}`)
	ev, err := f.Authenticate(context.Background(), body, http.Header{})
	require.NoError(t, err)
	assert.Equal(t, "u9", ev.UserID)
	assert.Equal(t, "b@example.com", ev.Email)
}

func TestFlutterwave_AuthenticateIgnoresPending(t *testing.T) {
	f := newFlutterwave(t, "", func(w http.ResponseWriter, r *http.Request) {
		t.Error("非成功事件不应回查")
	})

	ev, err := f.Authenticate(context.Background(), []byte(`{"data":{"status":"pending","tx_ref":"r"}}`), http.Header{})
	require.NoError(t, err)
	assert.False(t, ev.Relevant)
}

func TestFlutterwave_AuthenticateHash(t *testing.T) {
	f := newFlutterwave(t, "my-hash", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"success","data":{"status":"successful","tx_ref":"u1_1","amount":10}}`)
	})
	body := []byte(`{"data":{"status":"successful","tx_ref":"u1_1"}}`)

	_, err := f.Authenticate(context.Background(), body, http.Header{})
	assert.ErrorIs(t, err, ErrInvalidSignature)

	h := http.Header{}
	h.Set(flutterwaveHashHeader, "my-hash")
	ev, err := f.Authenticate(context.Background(), body, h)
	require.NoError(t, err)
	assert.True(t, ev.Relevant)
}

func TestFlutterwave_VerifyFailedStatus(t *testing.T) {
	f := newFlutterwave(t, "", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"success","data":{"status":"failed","tx_ref":"u1_1","amount":10}}`)
	})

	_, err := f.Authenticate(context.Background(), []byte(`{"data":{"status":"successful","tx_ref":"u1_1"}}`), http.Header{})
	assert.ErrorIs(t, err, ErrVerifyFailed)
}

func TestFlutterwave_Initiate(t *testing.T) {
	f := newFlutterwave(t, "", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/payments", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "u1_1700000000123", body["tx_ref"])
		assert.Equal(t, "2500.00", body["amount"])
		_, _ = io.WriteString(w, `{"status":"success","data":{"link":"https://checkout.flutterwave.com/x"}}`)
	})
	f.now = func() time.Time { return time.UnixMilli(1700000000123) }

	c, err := f.Initiate(context.Background(), InitiateRequest{
		UserID: "u1",
		Email:  "a@example.com",
		Amount: decimal.NewFromInt(2500),
	})
	require.NoError(t, err)
	assert.Equal(t, "u1_1700000000123", c.Reference)
	assert.Equal(t, "u1", UserIDFromTxRef(c.Reference))
}
