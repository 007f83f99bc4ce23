package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 配置路由，webhookLimiter 为 nil 时 webhook 不限流
func SetupRouter(s Services, webhookLimiter *IPRateLimiter) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(MetricsMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(s)

	api := r.Group("/api/v1")
	{
		// 钱包购买
		api.POST("/transactions/purchase", h.Purchase)

		// 订单
		orders := api.Group("/orders")
		{
			orders.GET("", h.ListOrders)
			orders.POST("/:order_no/review", h.ReviewOrder)
		}

		// 渠道回调：paystack / flutterwave / crypto
		webhooks := api.Group("/webhooks", RateLimitMiddleware(webhookLimiter))
		{
			webhooks.POST("/:provider", h.Webhook)
		}

		// 充值
		api.POST("/payments/initiate", h.InitiatePayment)
		api.GET("/deposits", h.ListDeposits)

		// 提现
		payouts := api.Group("/payouts")
		{
			payouts.POST("/withdraw", h.Withdraw)
			payouts.GET("/history", h.PayoutHistory)
		}

		// 管理
		admin := api.Group("/admin")
		{
			admin.POST("/payouts/auto", h.RunAutoPayout)
			admin.GET("/overview", h.Overview)
			admin.GET("/audit", h.Audit)
			admin.POST("/ban", h.Ban)
		}

		// 账户
		accounts := api.Group("/accounts")
		{
			accounts.POST("", h.Register)
			accounts.GET("/balance", h.GetBalance)
			accounts.PUT("/recipient", h.SetRecipient)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
