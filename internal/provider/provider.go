// Package provider 封装第三方支付渠道：充值核验、收银台下单、打款转账。
//
// 每个渠道的 HTTP 细节、鉴权方式和金额单位都收敛在这里，
// 对外只暴露归一化后的 Event / Verification / TransferResult，金额一律为主币单位。
package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
)

var (
	ErrProviderStatus   = errors.New("支付渠道返回异常状态")
	ErrInvalidSignature = errors.New("webhook 签名校验失败")
	ErrMalformedEvent   = errors.New("webhook 报文格式错误")
	ErrVerifyFailed     = errors.New("渠道核验未通过")
	ErrNotConfigured    = errors.New("支付渠道未配置")
	ErrTransferRejected = errors.New("渠道拒绝转账")
	ErrInvalidTransfer  = errors.New("转账参数不完整")
)

// Event 归一化后的充值事件
type Event struct {
	Provider  string
	Type      string
	Relevant  bool // 支付成功类事件才需要入账
	Reference string
	Amount    decimal.Decimal
	Currency  string
	Email     string
	UserID    string
}

// Verification 渠道核验接口返回的权威结果
type Verification struct {
	Success   bool
	Reference string
	Amount    decimal.Decimal
	Currency  string
	Email     string
	UserID    string
}

// WebhookAdapter 入账流水线对各渠道的统一抽象。
//
// Authenticate 返回 ErrInvalidSignature 表示请求不可信；
// 返回 Relevant=false 的事件表示可以直接确认的无关事件；
// 其余错误（核验失败、渠道超时）都应让渠道重推。
type WebhookAdapter interface {
	Name() string
	Authenticate(ctx context.Context, rawBody []byte, header http.Header) (*Event, error)
}

// PullVerifier 回查渠道核验接口的渠道（Paystack、Flutterwave）
type PullVerifier interface {
	Verify(ctx context.Context, reference string) (*Verification, error)
}

// SignatureVerifier 依赖推送签名的渠道（Coinbase Commerce）
type SignatureVerifier interface {
	VerifySignature(rawBody []byte, signature string) bool
	ParseEvent(rawBody []byte) (*Event, error)
}

type InitiateRequest struct {
	UserID   string
	Email    string
	Amount   decimal.Decimal
	Currency string
}

// Checkout 收银台信息，前端跳转 Link 完成支付
type Checkout struct {
	Provider  string `json:"provider"`
	Reference string `json:"reference"`
	Link      string `json:"link"`
}

type Initiator interface {
	Initiate(ctx context.Context, req InitiateRequest) (*Checkout, error)
}

// TransferRequest 打款请求，Reference 使用我方提现单号，渠道侧据此幂等
type TransferRequest struct {
	Reference     string
	Amount        decimal.Decimal
	Currency      string
	Reason        string
	RecipientCode string
	AccountName   string
	AccountNumber string
	BankName      string
	BankCode      string
	WalletAddress string
}

type TransferState string

const (
	TransferAccepted TransferState = "accepted"
	TransferFailed   TransferState = "failed"
)

type TransferResult struct {
	Reference    string
	TransferCode string
	Status       string // 渠道原始状态
	State        TransferState
}

// Transferer 打款通道。Transfer 返回 error 即视为本次打款失败。
type Transferer interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	// TransferStatus 按我方单号查询；渠道查无此单时返回 ErrTransferNotFound
	TransferStatus(ctx context.Context, reference string) (*TransferResult, error)
}

var (
	ErrTransferNotFound = errors.New("渠道查无此转账")
	ErrBankNotFound     = errors.New("渠道不支持该银行")
)

// BankResolver 收款人只给了银行名称时，按名称向渠道换取银行编码。
// 名称无法匹配时返回 ErrBankNotFound。
type BankResolver interface {
	ResolveBankCode(ctx context.Context, bankName string) (string, error)
}
