package provider

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"

	"marketpay/internal/config"
	"marketpay/internal/model"
	"marketpay/internal/money"

	"github.com/shopspring/decimal"
)

const (
	coinbaseSignatureHeader = "X-CC-Webhook-Signature"
	coinbaseAPIVersion      = "2018-03-22"
	coinbaseChargeConfirmed = "charge:confirmed"
)

// Coinbase Coinbase Commerce 加密货币渠道。
// 没有回查接口可用，可信度完全来自对原始报文的 HMAC-SHA256 签名。
type Coinbase struct {
	cfg      config.ProviderConfig
	currency string
	client   *client
}

func NewCoinbase(cfg config.ProviderConfig, currency string) *Coinbase {
	return &Coinbase{
		cfg:      cfg,
		currency: currency,
		client: newClient(cfg, map[string]string{
			"X-CC-Api-Key": cfg.SecretKey,
			"X-CC-Version": coinbaseAPIVersion,
		}),
	}
}

func (c *Coinbase) Name() string {
	return model.ProviderCoinbase
}

// VerifySignature 必须传入未经解析的原始字节
func (c *Coinbase) VerifySignature(rawBody []byte, signature string) bool {
	return verifyHMAC(sha256.New, c.cfg.WebhookSecret, rawBody, signature)
}

type coinbaseWebhook struct {
	Event struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			ID       string `json:"id"`
			Code     string `json:"code"`
			Metadata struct {
				UID   string `json:"uid"`
				Email string `json:"email"`
			} `json:"metadata"`
			Pricing struct {
				Local struct {
					Amount   string `json:"amount"`
					Currency string `json:"currency"`
				} `json:"local"`
			} `json:"pricing"`
		} `json:"data"`
	} `json:"event"`
}

func (c *Coinbase) ParseEvent(rawBody []byte) (*Event, error) {
	var hook coinbaseWebhook
	if err := json.Unmarshal(rawBody, &hook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	event := &Event{
		Provider: c.Name(),
		Type:     hook.Event.Type,
		Relevant: hook.Event.Type == coinbaseChargeConfirmed,
	}
	if !event.Relevant {
		return event, nil
	}

	data := hook.Event.Data
	if data.ID == "" {
		return nil, fmt.Errorf("%w: 缺少 charge id", ErrMalformedEvent)
	}
	amount, err := decimal.NewFromString(data.Pricing.Local.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: amount=%q", ErrMalformedEvent, data.Pricing.Local.Amount)
	}

	event.Reference = data.ID
	event.Amount = money.Round(amount)
	event.Currency = data.Pricing.Local.Currency
	event.UserID = data.Metadata.UID
	event.Email = data.Metadata.Email
	return event, nil
}

func (c *Coinbase) Authenticate(ctx context.Context, rawBody []byte, header http.Header) (*Event, error) {
	if !c.VerifySignature(rawBody, header.Get(coinbaseSignatureHeader)) {
		return nil, ErrInvalidSignature
	}

	event, err := c.ParseEvent(rawBody)
	if err != nil {
		return nil, err
	}
	if event.Relevant && !money.IsPositive(event.Amount) {
		return nil, fmt.Errorf("%w: provider=coinbase, reference=%s", ErrVerifyFailed, event.Reference)
	}
	return event, nil
}

func (c *Coinbase) Initiate(ctx context.Context, req InitiateRequest) (*Checkout, error) {
	currency := req.Currency
	if currency == "" {
		currency = c.currency
	}

	body := map[string]interface{}{
		"name":         "Wallet Top-up",
		"description":  "Top-up for user " + req.UserID,
		"pricing_type": "fixed_price",
		"local_price": map[string]string{
			"amount":   req.Amount.StringFixed(2),
			"currency": currency,
		},
		"metadata": map[string]string{
			"uid":   req.UserID,
			"email": req.Email,
		},
	}

	var resp struct {
		Data struct {
			ID        string `json:"id"`
			HostedURL string `json:"hosted_url"`
		} `json:"data"`
	}
	if err := c.client.post(ctx, "/charges", body, &resp); err != nil {
		return nil, fmt.Errorf("coinbase 创建 charge 失败: %w", err)
	}
	if resp.Data.ID == "" {
		return nil, fmt.Errorf("%w: coinbase 未返回 charge id", ErrProviderStatus)
	}

	return &Checkout{
		Provider:  c.Name(),
		Reference: resp.Data.ID,
		Link:      resp.Data.HostedURL,
	}, nil
}
