package provider

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"marketpay/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ccSecret = "whsec_test"

const confirmedBody = `{"event":{"id":"evt-1","type":"charge:confirmed","data":{"id":"charge-1","code":"ABC","metadata":{"uid":"u1","email":"a@example.com"},"pricing":{"local":{"amount":"75.50","currency":"USD"}}}}}`

func TestCoinbase_VerifySignature(t *testing.T) {
	c := NewCoinbase(config.ProviderConfig{WebhookSecret: ccSecret}, "USD")
	body := []byte(confirmedBody)
	good := sign(sha256.New, ccSecret, body)

	tests := []struct {
		name string
		c    *Coinbase
		body []byte
		sig  string
		want bool
	}{
		{"签名正确", c, body, good, true},
		{"大写十六进制也接受", c, body, strings.ToUpper(good), true},
		{"缺少签名头", c, body, "", false},
		{"报文被篡改", c, []byte(strings.Replace(confirmedBody, "75.50", "7550.00", 1)), good, false},
		{"未配置密钥", NewCoinbase(config.ProviderConfig{}, "USD"), body, good, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.VerifySignature(tt.body, tt.sig))
		})
	}
}

func TestCoinbase_Authenticate(t *testing.T) {
	c := NewCoinbase(config.ProviderConfig{WebhookSecret: ccSecret}, "USD")

	t.Run("charge:confirmed", func(t *testing.T) {
		h := http.Header{}
		h.Set(coinbaseSignatureHeader, sign(sha256.New, ccSecret, []byte(confirmedBody)))

		ev, err := c.Authenticate(context.Background(), []byte(confirmedBody), h)
		require.NoError(t, err)
		assert.True(t, ev.Relevant)
		assert.Equal(t, "charge-1", ev.Reference)
		assert.Equal(t, "u1", ev.UserID)
		assert.Equal(t, "a@example.com", ev.Email)
		assert.True(t, decimal.RequireFromString("75.50").Equal(ev.Amount))
	})

	t.Run("其他事件类型", func(t *testing.T) {
		body := []byte(`{"event":{"type":"charge:pending","data":{"id":"charge-1"}}}`)
		h := http.Header{}
		h.Set(coinbaseSignatureHeader, sign(sha256.New, ccSecret, body))

		ev, err := c.Authenticate(context.Background(), body, h)
		require.NoError(t, err)
		assert.False(t, ev.Relevant)
	})

	t.Run("签名错误", func(t *testing.T) {
		h := http.Header{}
		h.Set(coinbaseSignatureHeader, "00")
		_, err := c.Authenticate(context.Background(), []byte(confirmedBody), h)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("金额非正", func(t *testing.T) {
		body := []byte(strings.Replace(confirmedBody, `"75.50"`, `"0"`, 1))
		h := http.Header{}
		h.Set(coinbaseSignatureHeader, sign(sha256.New, ccSecret, body))
		_, err := c.Authenticate(context.Background(), body, h)
		assert.ErrorIs(t, err, ErrVerifyFailed)
	})
}

func TestCoinbase_Initiate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/charges", r.URL.Path)
		assert.Equal(t, "cc-key", r.Header.Get("X-CC-Api-Key"))
		assert.Equal(t, coinbaseAPIVersion, r.Header.Get("X-CC-Version"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "fixed_price", body["pricing_type"])
		_, _ = io.WriteString(w, `{"data":{"id":"charge-9","hosted_url":"https://commerce.coinbase.com/charges/ABC"}}`)
	}))
	defer srv.Close()

	c := NewCoinbase(config.ProviderConfig{BaseURL: srv.URL, SecretKey: "cc-key", Timeout: time.Second}, "USD")
	out, err := c.Initiate(context.Background(), InitiateRequest{UserID: "u1", Email: "a@example.com", Amount: decimal.NewFromInt(20)})
	require.NoError(t, err)
	assert.Equal(t, "charge-9", out.Reference)
}

func TestCryptoPayout_TransferStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/payouts/WDR1":
			_, _ = io.WriteString(w, `{"data":{"id":"po-1","reference":"WDR1","status":"completed"}}`)
		case "/payouts/WDR2":
			_, _ = io.WriteString(w, `{"data":{"id":"po-2","reference":"WDR2","status":"failed"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewCryptoPayout(config.ProviderConfig{BaseURL: srv.URL, Timeout: time.Second}, "USDT")

	res, err := c.TransferStatus(context.Background(), "WDR1")
	require.NoError(t, err)
	assert.Equal(t, TransferAccepted, res.State)

	res, err = c.TransferStatus(context.Background(), "WDR2")
	require.NoError(t, err)
	assert.Equal(t, TransferFailed, res.State)

	_, err = c.TransferStatus(context.Background(), "WDR3")
	assert.ErrorIs(t, err, ErrTransferNotFound)
}

func TestCryptoPayout_TransferNeedsAddress(t *testing.T) {
	c := NewCryptoPayout(config.ProviderConfig{BaseURL: "http://127.0.0.1:1"}, "USDT")
	_, err := c.Transfer(context.Background(), TransferRequest{Reference: "WDR1", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrInvalidTransfer)
}
