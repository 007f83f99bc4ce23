package provider

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketpay/internal/config"
	"marketpay/internal/model"
	"marketpay/internal/money"

	"github.com/shopspring/decimal"
)

const flutterwaveHashHeader = "verif-hash"

// Flutterwave 银行卡/转账渠道 B。金额已经是主币单位。
//
// 下单时 tx_ref 编码为 "<uid>_<毫秒时间戳>"，webhook 回来时据此还原用户，
// 比按邮箱匹配更可靠。
type Flutterwave struct {
	cfg         config.ProviderConfig
	callbackURL string
	currency    string
	client      *client
	now         func() time.Time
}

func NewFlutterwave(cfg config.ProviderConfig, callbackURL, currency string) *Flutterwave {
	return &Flutterwave{
		cfg:         cfg,
		callbackURL: callbackURL,
		currency:    currency,
		client: newClient(cfg, map[string]string{
			"Authorization": "Bearer " + cfg.SecretKey,
		}),
		now: time.Now,
	}
}

func (f *Flutterwave) Name() string {
	return model.ProviderFlutterwave
}

type flutterwaveMeta struct {
	UID string `json:"uid"`
}

type flutterwaveWebhook struct {
	Event string `json:"event"`
	Data  struct {
		Status string `json:"status"`
		TxRef  string `json:"tx_ref"`
	} `json:"data"`
}

// Authenticate 配置了 webhook_secret 时要求 verif-hash 头与之相等；
// 金额和状态始终以回查结果为准。
func (f *Flutterwave) Authenticate(ctx context.Context, rawBody []byte, header http.Header) (*Event, error) {
	if f.cfg.WebhookSecret != "" {
		got := header.Get(flutterwaveHashHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(f.cfg.WebhookSecret)) != 1 {
			return nil, ErrInvalidSignature
		}
	}

	var hook flutterwaveWebhook
	if err := json.Unmarshal(rawBody, &hook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	event := &Event{Provider: f.Name(), Type: hook.Event}
	if hook.Data.Status != "successful" {
		return event, nil
	}
	if hook.Data.TxRef == "" {
		return nil, fmt.Errorf("%w: 缺少 tx_ref", ErrMalformedEvent)
	}

	v, err := f.Verify(ctx, hook.Data.TxRef)
	if err != nil {
		return nil, err
	}
	if !v.Success || !money.IsPositive(v.Amount) {
		return nil, fmt.Errorf("%w: provider=flutterwave, reference=%s", ErrVerifyFailed, hook.Data.TxRef)
	}

	event.Relevant = true
	event.Reference = hook.Data.TxRef
	event.Amount = v.Amount
	event.Currency = v.Currency
	event.Email = v.Email
	event.UserID = v.UserID
	return event, nil
}

type flutterwaveVerifyResponse struct {
	Status string `json:"status"`
	Data   struct {
		Status   string          `json:"status"`
		TxRef    string          `json:"tx_ref"`
		Amount   json.Number     `json:"amount"`
		Currency string          `json:"currency"`
		Meta     json.RawMessage `json:"meta"`
		Customer struct {
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

func (f *Flutterwave) Verify(ctx context.Context, reference string) (*Verification, error) {
	var resp flutterwaveVerifyResponse
	path := "/v3/transactions/verify_by_reference?tx_ref=" + url.QueryEscape(reference)
	if err := f.client.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("flutterwave 核验失败: %w", err)
	}

	amount := decimal.Zero
	if resp.Data.Amount != "" {
		parsed, err := decimal.NewFromString(resp.Data.Amount.String())
		if err != nil {
			return nil, fmt.Errorf("%w: amount=%s", ErrMalformedEvent, resp.Data.Amount)
		}
		amount = money.Round(parsed)
	}

	var meta flutterwaveMeta
	_ = json.Unmarshal(resp.Data.Meta, &meta)

	uid := UserIDFromTxRef(resp.Data.TxRef)
	if uid == "" {
		uid = meta.UID
	}

	return &Verification{
		Success:   resp.Status == "success" && resp.Data.Status == "successful",
		Reference: resp.Data.TxRef,
		Amount:    amount,
		Currency:  resp.Data.Currency,
		Email:     resp.Data.Customer.Email,
		UserID:    uid,
	}, nil
}

// UserIDFromTxRef 解析 "<uid>_<毫秒时间戳>"，格式不符返回空串
func UserIDFromTxRef(txRef string) string {
	i := strings.LastIndex(txRef, "_")
	if i <= 0 || i == len(txRef)-1 {
		return ""
	}
	if _, err := strconv.ParseInt(txRef[i+1:], 10, 64); err != nil {
		return ""
	}
	return txRef[:i]
}

func (f *Flutterwave) Initiate(ctx context.Context, req InitiateRequest) (*Checkout, error) {
	currency := req.Currency
	if currency == "" {
		currency = f.currency
	}
	txRef := fmt.Sprintf("%s_%d", req.UserID, f.now().UnixMilli())

	body := map[string]interface{}{
		"tx_ref":       txRef,
		"amount":       req.Amount.StringFixed(2),
		"currency":     currency,
		"redirect_url": f.callbackURL,
		"customer":     map[string]string{"email": req.Email},
		"meta":         map[string]string{"uid": req.UserID},
	}

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Link string `json:"link"`
		} `json:"data"`
	}
	if err := f.client.post(ctx, "/v3/payments", body, &resp); err != nil {
		return nil, fmt.Errorf("flutterwave 下单失败: %w", err)
	}
	if resp.Data.Link == "" {
		return nil, fmt.Errorf("%w: flutterwave 未返回支付链接", ErrProviderStatus)
	}

	return &Checkout{
		Provider:  f.Name(),
		Reference: txRef,
		Link:      resp.Data.Link,
	}, nil
}
