package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"marketpay/internal/model"
	"marketpay/internal/service"
	"marketpay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	settlement *service.SettlementService
	deposits   *service.DepositService
	payouts    *service.PayoutService
	accounts   *service.AccountService
	admin      *service.AdminService
	payments   *service.PaymentService
}

// Services 路由需要的全部服务
type Services struct {
	Settlement *service.SettlementService
	Deposits   *service.DepositService
	Payouts    *service.PayoutService
	Accounts   *service.AccountService
	Admin      *service.AdminService
	Payments   *service.PaymentService
}

func NewHandler(s Services) *Handler {
	return &Handler{
		settlement: s.Settlement,
		deposits:   s.Deposits,
		payouts:    s.Payouts,
		accounts:   s.Accounts,
		admin:      s.Admin,
		payments:   s.Payments,
	}
}

// writeError 业务错误按类别映射 HTTP 状态码，依赖失败只给通用提示
func writeError(c *gin.Context, err error, data interface{}) {
	be := service.AsBusinessError(err)

	status := http.StatusBadRequest
	switch be.Kind {
	case service.KindNotFound:
		status = http.StatusNotFound
	case service.KindDependency:
		switch {
		case errors.Is(be, service.ErrSystemBusy):
			status = http.StatusServiceUnavailable
		case errors.Is(be, service.ErrPayoutFailed), errors.Is(be, service.ErrPayoutNotReady):
			status = http.StatusBadGateway
		default:
			status = http.StatusInternalServerError
		}
		log.Printf("[Handler] 依赖失败: %s %s, err=%v", c.Request.Method, c.FullPath(), err)
	}

	response.Fail(c, status, be.Code, be.Message, data)
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}

// ============================================================
// 交易相关接口
// ============================================================

type PurchaseRequest struct {
	BuyerID   string `json:"buyer_id" binding:"required"`
	ProductID string `json:"product_id" binding:"required"`
}

// Purchase 钱包余额购买商品
// POST /api/v1/transactions/purchase
func (h *Handler) Purchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	summary, err := h.settlement.Purchase(c.Request.Context(), req.BuyerID, req.ProductID)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, summary)
}

// ReviewOrder 买家评价订单
// POST /api/v1/orders/:order_no/review
func (h *Handler) ReviewOrder(c *gin.Context) {
	var req struct {
		BuyerID string `json:"buyer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	orderNo := c.Param("order_no")
	if err := h.settlement.MarkReviewed(c.Request.Context(), orderNo, req.BuyerID); err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, gin.H{"order_no": orderNo, "reviewed": true})
}

// ListOrders 查询订单，role=seller 时按卖家维度
// GET /api/v1/orders?user_id=xxx&role=buyer&page=1&page_size=20
func (h *Handler) ListOrders(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id 参数不能为空")
		return
	}
	role := c.DefaultQuery("role", "buyer")
	if role != "buyer" && role != "seller" {
		response.ParamError(c, "role 只能是 buyer 或 seller")
		return
	}
	page, pageSize := pageParams(c)

	orders, total, err := h.settlement.ListOrders(c.Request.Context(), userID, role == "seller", page, pageSize)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, gin.H{
		"list":      orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 充值相关接口
// ============================================================

// Webhook 渠道回调，验签需要原始字节，不能先做 JSON 绑定
// POST /api/v1/webhooks/:provider
func (h *Handler) Webhook(c *gin.Context) {
	providerName := service.ProviderForRoute(c.Param("provider"))

	raw, err := c.GetRawData()
	if err != nil {
		response.ServerError(c, "读取请求体失败")
		return
	}

	result, err := h.deposits.Reconcile(c.Request.Context(), providerName, raw, c.Request.Header)
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedProvider) {
			response.NotFound(c, "不支持的支付渠道")
			return
		}
		writeError(c, err, nil)
		return
	}

	switch result.Outcome {
	case service.OutcomeInvalidSignature:
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "签名校验失败")
	case service.OutcomeUserNotFound:
		// 404 让渠道继续重投，等用户注册后自动入账
		response.Fail(c, http.StatusNotFound, "AccountNotFound", "未找到充值用户", result)
	default:
		response.Success(c, result)
	}
}

// InitiatePayment 申请收银台链接
// POST /api/v1/payments/initiate
func (h *Handler) InitiatePayment(c *gin.Context) {
	var req service.InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	checkout, err := h.payments.Initiate(c.Request.Context(), req)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, checkout)
}

// ListDeposits 充值记录
// GET /api/v1/deposits?user_id=xxx
func (h *Handler) ListDeposits(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id 参数不能为空")
		return
	}
	page, pageSize := pageParams(c)

	deposits, total, err := h.deposits.ListDeposits(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, gin.H{"list": deposits, "total": total, "page": page, "page_size": pageSize})
}

// ============================================================
// 提现相关接口
// ============================================================

type WithdrawRequest struct {
	SellerID string                    `json:"seller_id" binding:"required"`
	Amount   decimal.Decimal           `json:"amount"`
	Method   string                    `json:"method" binding:"required"`
	Details  service.WithdrawalDetails `json:"details"`
}

// Withdraw 卖家提现，打款失败时金额已退回，返回体带上失败的提现单
// POST /api/v1/payouts/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	w, err := h.payouts.RequestWithdrawal(c.Request.Context(), service.WithdrawalRequest{
		SellerID: req.SellerID,
		Amount:   req.Amount,
		Method:   req.Method,
		Details:  req.Details,
	})
	if err != nil {
		var data interface{}
		if w != nil {
			data = w
		}
		writeError(c, err, data)
		return
	}
	response.Success(c, w)
}

// PayoutHistory 提现记录
// GET /api/v1/payouts/history?seller_id=xxx
func (h *Handler) PayoutHistory(c *gin.Context) {
	sellerID := c.Query("seller_id")
	if sellerID == "" {
		response.ParamError(c, "seller_id 参数不能为空")
		return
	}
	page, pageSize := pageParams(c)

	list, total, err := h.payouts.History(c.Request.Context(), sellerID, page, pageSize)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, gin.H{"list": list, "total": total, "page": page, "page_size": pageSize})
}

// ============================================================
// 管理接口
// ============================================================

// RunAutoPayout 手动触发一轮自动打款
// POST /api/v1/admin/payouts/auto
func (h *Handler) RunAutoPayout(c *gin.Context) {
	outcomes, err := h.payouts.RunAutoPayout(c.Request.Context())
	if err != nil {
		writeError(c, err, nil)
		return
	}

	sent := 0
	for _, o := range outcomes {
		if o.Status == service.PayoutStatusSent {
			sent++
		}
	}
	response.Success(c, gin.H{
		"processed": len(outcomes),
		"sent":      sent,
		"results":   outcomes,
	})
}

// Overview GET /api/v1/admin/overview
func (h *Handler) Overview(c *gin.Context) {
	ov, err := h.admin.Overview(c.Request.Context())
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, ov)
}

// Audit GET /api/v1/admin/audit
func (h *Handler) Audit(c *gin.Context) {
	report, err := h.admin.Audit(c.Request.Context())
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, report)
}

// Ban 封禁或解封账户
// POST /api/v1/admin/ban
func (h *Handler) Ban(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
		Banned *bool  `json:"banned" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.accounts.SetBanned(c.Request.Context(), req.UserID, *req.Banned); err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, gin.H{"user_id": req.UserID, "banned": *req.Banned})
}

// ============================================================
// 账户相关接口
// ============================================================

// Register 注册钱包账户，重复调用幂等
// POST /api/v1/accounts
func (h *Handler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	acc, err := h.accounts.Register(c.Request.Context(), req)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, acc)
}

// GetBalance 查询余额
// GET /api/v1/accounts/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id 参数不能为空")
		return
	}

	acc, err := h.accounts.GetAccount(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, gin.H{
		"user_id": acc.UserID,
		"balance": acc.Balance,
		"banned":  acc.Banned,
		"seller":  acc.Role == model.RoleSeller,
	})
}

// SetRecipient 绑定自动打款的收款人编码
// PUT /api/v1/accounts/recipient
func (h *Handler) SetRecipient(c *gin.Context) {
	var req struct {
		UserID        string `json:"user_id" binding:"required"`
		RecipientCode string `json:"recipient_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.accounts.SetRecipientCode(c.Request.Context(), req.UserID, req.RecipientCode); err != nil {
		writeError(c, err, nil)
		return
	}
	response.Success(c, gin.H{"user_id": req.UserID})
}
