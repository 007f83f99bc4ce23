package provider

import (
	"context"
	"fmt"
	"net/url"

	"marketpay/internal/config"
)

// CryptoPayout 通用加密货币打款网关：POST /payouts 发起，GET /payouts/{reference} 查询
type CryptoPayout struct {
	currency string
	client   *client
}

func NewCryptoPayout(cfg config.ProviderConfig, currency string) *CryptoPayout {
	return &CryptoPayout{
		currency: currency,
		client: newClient(cfg, map[string]string{
			"Authorization": "Bearer " + cfg.SecretKey,
		}),
	}
}

type cryptoPayoutData struct {
	ID        string `json:"id"`
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

func cryptoPayoutState(status string) TransferState {
	switch status {
	case "failed", "rejected", "cancelled", "expired":
		return TransferFailed
	}
	return TransferAccepted
}

func (c *CryptoPayout) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.WalletAddress == "" {
		return nil, fmt.Errorf("%w: 缺少钱包地址", ErrInvalidTransfer)
	}

	currency := req.Currency
	if currency == "" {
		currency = c.currency
	}

	body := map[string]string{
		"reference": req.Reference,
		"amount":    req.Amount.StringFixed(2),
		"currency":  currency,
		"address":   req.WalletAddress,
	}

	var resp struct {
		Data cryptoPayoutData `json:"data"`
	}
	if err := c.client.post(ctx, "/payouts", body, &resp); err != nil {
		return nil, fmt.Errorf("加密货币打款失败: %w", err)
	}

	result := &TransferResult{
		Reference:    req.Reference,
		TransferCode: resp.Data.ID,
		Status:       resp.Data.Status,
		State:        cryptoPayoutState(resp.Data.Status),
	}
	if result.State == TransferFailed {
		return result, fmt.Errorf("%w: status=%s", ErrTransferRejected, resp.Data.Status)
	}
	return result, nil
}

func (c *CryptoPayout) TransferStatus(ctx context.Context, reference string) (*TransferResult, error) {
	var resp struct {
		Data cryptoPayoutData `json:"data"`
	}
	if err := c.client.get(ctx, "/payouts/"+url.PathEscape(reference), &resp); err != nil {
		if isNotFound(err) {
			return nil, ErrTransferNotFound
		}
		return nil, fmt.Errorf("查询加密货币打款失败: %w", err)
	}

	return &TransferResult{
		Reference:    reference,
		TransferCode: resp.Data.ID,
		Status:       resp.Data.Status,
		State:        cryptoPayoutState(resp.Data.Status),
	}, nil
}
