package provider

import (
	"context"
	"crypto/sha512"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"marketpay/internal/config"
	"marketpay/internal/model"
	"marketpay/internal/money"
)

const (
	paystackEventChargeSuccess = "charge.success"
	paystackSignatureHeader    = "X-Paystack-Signature"
	paystackBankListTTL        = time.Hour
)

// Paystack 银行卡/转账渠道 A：充值走回查核验，打款走 Transfer API。
// 金额单位为 kobo，进出都要换算。
type Paystack struct {
	cfg         config.ProviderConfig
	callbackURL string
	currency    string
	client      *client

	banksMu      sync.Mutex
	banks        map[string]string // 小写的银行名称 / slug / 编码 -> 编码
	banksFetched time.Time
	now          func() time.Time
}

func NewPaystack(cfg config.ProviderConfig, callbackURL, currency string) *Paystack {
	return &Paystack{
		cfg:         cfg,
		callbackURL: callbackURL,
		currency:    currency,
		client: newClient(cfg, map[string]string{
			"Authorization": "Bearer " + cfg.SecretKey,
		}),
		now: time.Now,
	}
}

func (p *Paystack) Name() string {
	return model.ProviderPaystack
}

type paystackMetadata struct {
	UID string `json:"uid"`
}

// metadata 在 Paystack 里可能是对象也可能是空字符串
func parsePaystackMetadata(raw json.RawMessage) paystackMetadata {
	var m paystackMetadata
	_ = json.Unmarshal(raw, &m)
	return m
}

type paystackWebhook struct {
	Event string `json:"event"`
	Data  struct {
		Reference string          `json:"reference"`
		Metadata  json.RawMessage `json:"metadata"`
	} `json:"data"`
}

// Authenticate 只信任核验接口返回的金额和状态，推送报文里的金额一律忽略。
// 带签名头时额外校验 HMAC-SHA512，签名不符直接拒绝。
func (p *Paystack) Authenticate(ctx context.Context, rawBody []byte, header http.Header) (*Event, error) {
	if sig := header.Get(paystackSignatureHeader); sig != "" {
		if !verifyHMAC(sha512.New, p.cfg.SecretKey, rawBody, sig) {
			return nil, ErrInvalidSignature
		}
	}

	var hook paystackWebhook
	if err := json.Unmarshal(rawBody, &hook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	event := &Event{Provider: p.Name(), Type: hook.Event}
	if hook.Event != paystackEventChargeSuccess {
		return event, nil
	}
	if hook.Data.Reference == "" {
		return nil, fmt.Errorf("%w: 缺少 reference", ErrMalformedEvent)
	}

	v, err := p.Verify(ctx, hook.Data.Reference)
	if err != nil {
		return nil, err
	}
	if !v.Success || !money.IsPositive(v.Amount) {
		return nil, fmt.Errorf("%w: provider=paystack, reference=%s", ErrVerifyFailed, hook.Data.Reference)
	}

	event.Relevant = true
	event.Reference = hook.Data.Reference
	event.Amount = v.Amount
	event.Currency = v.Currency
	event.Email = v.Email
	event.UserID = v.UserID
	if event.UserID == "" {
		event.UserID = parsePaystackMetadata(hook.Data.Metadata).UID
	}
	return event, nil
}

type paystackVerifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status    string          `json:"status"`
		Reference string          `json:"reference"`
		Amount    int64           `json:"amount"`
		Currency  string          `json:"currency"`
		Metadata  json.RawMessage `json:"metadata"`
		Customer  struct {
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

func (p *Paystack) Verify(ctx context.Context, reference string) (*Verification, error) {
	var resp paystackVerifyResponse
	if err := p.client.get(ctx, "/transaction/verify/"+url.PathEscape(reference), &resp); err != nil {
		return nil, fmt.Errorf("paystack 核验失败: %w", err)
	}

	return &Verification{
		Success:   resp.Status && resp.Data.Status == "success",
		Reference: resp.Data.Reference,
		Amount:    money.FromMinor(resp.Data.Amount),
		Currency:  resp.Data.Currency,
		Email:     resp.Data.Customer.Email,
		UserID:    parsePaystackMetadata(resp.Data.Metadata).UID,
	}, nil
}

func (p *Paystack) Initiate(ctx context.Context, req InitiateRequest) (*Checkout, error) {
	currency := req.Currency
	if currency == "" {
		currency = p.currency
	}

	body := map[string]interface{}{
		"amount":       money.ToMinor(req.Amount),
		"email":        req.Email,
		"currency":     currency,
		"callback_url": p.callbackURL,
		"metadata":     map[string]string{"uid": req.UserID},
	}

	var resp struct {
		Status bool `json:"status"`
		Data   struct {
			AuthorizationURL string `json:"authorization_url"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	if err := p.client.post(ctx, "/transaction/initialize", body, &resp); err != nil {
		return nil, fmt.Errorf("paystack 下单失败: %w", err)
	}
	if !resp.Status || resp.Data.AuthorizationURL == "" {
		return nil, fmt.Errorf("%w: paystack 未返回支付链接", ErrProviderStatus)
	}

	return &Checkout{
		Provider:  p.Name(),
		Reference: resp.Data.Reference,
		Link:      resp.Data.AuthorizationURL,
	}, nil
}

// ============================================================================
// 打款
// ============================================================================

type paystackTransferData struct {
	Reference    string `json:"reference"`
	TransferCode string `json:"transfer_code"`
	Status       string `json:"status"`
}

func paystackTransferState(status string) TransferState {
	switch status {
	case "failed", "reversed", "abandoned", "rejected":
		return TransferFailed
	}
	return TransferAccepted
}

type paystackBank struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
	Code string `json:"code"`
}

// loadBanks 拉取银行列表，成功的结果缓存 paystackBankListTTL，失败不缓存
func (p *Paystack) loadBanks(ctx context.Context) (map[string]string, error) {
	p.banksMu.Lock()
	defer p.banksMu.Unlock()

	if p.banks != nil && p.now().Sub(p.banksFetched) < paystackBankListTTL {
		return p.banks, nil
	}

	var resp struct {
		Status bool           `json:"status"`
		Data   []paystackBank `json:"data"`
	}
	if err := p.client.get(ctx, "/bank?currency="+url.QueryEscape(p.currency), &resp); err != nil {
		return nil, fmt.Errorf("paystack 查询银行列表失败: %w", err)
	}
	if !resp.Status || len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: paystack 银行列表为空", ErrProviderStatus)
	}

	banks := make(map[string]string, len(resp.Data)*3)
	for _, b := range resp.Data {
		if b.Code == "" {
			continue
		}
		for _, key := range []string{b.Name, b.Slug, b.Code} {
			if key = strings.ToLower(strings.TrimSpace(key)); key != "" {
				banks[key] = b.Code
			}
		}
	}
	p.banks = banks
	p.banksFetched = p.now()
	return banks, nil
}

// ResolveBankCode 按银行名称、slug 或编码匹配，不区分大小写
func (p *Paystack) ResolveBankCode(ctx context.Context, bankName string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(bankName))
	if key == "" {
		return "", fmt.Errorf("%w: 银行名称为空", ErrBankNotFound)
	}

	banks, err := p.loadBanks(ctx)
	if err != nil {
		return "", err
	}
	code, ok := banks[key]
	if !ok {
		return "", fmt.Errorf("%w: bank=%s", ErrBankNotFound, bankName)
	}
	return code, nil
}

func (p *Paystack) createRecipient(ctx context.Context, req TransferRequest) (string, error) {
	if req.AccountNumber == "" || req.AccountName == "" || (req.BankCode == "" && req.BankName == "") {
		return "", fmt.Errorf("%w: 需要 account_name、account_number 以及 bank_code 或 bank_name", ErrInvalidTransfer)
	}

	bankCode := req.BankCode
	if bankCode == "" {
		code, err := p.ResolveBankCode(ctx, req.BankName)
		if err != nil {
			return "", err
		}
		bankCode = code
	}

	body := map[string]string{
		"type":           "nuban",
		"name":           req.AccountName,
		"account_number": req.AccountNumber,
		"bank_code":      bankCode,
		"currency":       p.currency,
	}

	var resp struct {
		Status bool `json:"status"`
		Data   struct {
			RecipientCode string `json:"recipient_code"`
		} `json:"data"`
	}
	if err := p.client.post(ctx, "/transferrecipient", body, &resp); err != nil {
		return "", fmt.Errorf("paystack 创建收款人失败: %w", err)
	}
	if resp.Data.RecipientCode == "" {
		return "", fmt.Errorf("%w: paystack 未返回 recipient_code", ErrProviderStatus)
	}
	return resp.Data.RecipientCode, nil
}

func (p *Paystack) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	recipient := req.RecipientCode
	if recipient == "" {
		code, err := p.createRecipient(ctx, req)
		if err != nil {
			return nil, err
		}
		recipient = code
	}

	reason := req.Reason
	if reason == "" {
		reason = "Marketplace Payout"
	}

	body := map[string]interface{}{
		"source":    "balance",
		"reason":    reason,
		"amount":    money.ToMinor(req.Amount),
		"recipient": recipient,
		// Paystack 的 reference 只接受小写字母、数字、- 和 _
		"reference": strings.ToLower(req.Reference),
	}

	var resp struct {
		Status  bool                 `json:"status"`
		Message string               `json:"message"`
		Data    paystackTransferData `json:"data"`
	}
	if err := p.client.post(ctx, "/transfer", body, &resp); err != nil {
		return nil, fmt.Errorf("paystack 转账失败: %w", err)
	}

	result := &TransferResult{
		Reference:    req.Reference,
		TransferCode: resp.Data.TransferCode,
		Status:       resp.Data.Status,
		State:        paystackTransferState(resp.Data.Status),
	}
	if !resp.Status || result.State == TransferFailed {
		return result, fmt.Errorf("%w: status=%s, message=%s", ErrTransferRejected, resp.Data.Status, resp.Message)
	}
	return result, nil
}

func (p *Paystack) TransferStatus(ctx context.Context, reference string) (*TransferResult, error) {
	var resp struct {
		Status bool                 `json:"status"`
		Data   paystackTransferData `json:"data"`
	}
	err := p.client.get(ctx, "/transfer/verify/"+url.PathEscape(strings.ToLower(reference)), &resp)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrTransferNotFound
		}
		return nil, fmt.Errorf("paystack 查询转账失败: %w", err)
	}

	return &TransferResult{
		Reference:    reference,
		TransferCode: resp.Data.TransferCode,
		Status:       resp.Data.Status,
		State:        paystackTransferState(resp.Data.Status),
	}, nil
}
