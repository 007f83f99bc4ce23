package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketpay/internal/config"
	"marketpay/internal/handler"
	"marketpay/internal/infrastructure/cache"
	"marketpay/internal/infrastructure/database"
	"marketpay/internal/infrastructure/lock"
	"marketpay/internal/infrastructure/mq"
	"marketpay/internal/job"
	"marketpay/internal/model"
	"marketpay/internal/money"
	"marketpay/internal/provider"
	"marketpay/internal/repository"
	"marketpay/internal/service"
	"marketpay/pkg/idgen"

	"github.com/shopspring/decimal"
)

func main() {
	fs := flag.NewFlagSet("marketpay", flag.ExitOnError)
	configPath := fs.String("config", "config/config.yaml", "配置文件路径")
	workerID := fs.Int64("worker-id", 1, "单号生成器的机器号")
	_ = fs.Parse(os.Args[1:])

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	ids, err := idgen.New(*workerID)
	if err != nil {
		log.Fatalf("初始化 ID 生成器失败: %v", err)
	}

	// 初始化 MySQL
	db, err := database.InitMySQL(&cfg.MySQL)
	if err != nil {
		log.Fatalf("%v", err)
	}

	// 初始化 Redis
	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer redisClient.Close()

	// 初始化 Kafka
	producer, err := mq.InitKafka(&cfg.Kafka)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer producer.Close()

	store := repository.NewGormStore(db, cfg.Business.TxMaxRetries)
	transferTimeout := cfg.Providers.Paystack.Timeout * 2
	locker := lock.NewRedisLocker(redisClient, service.PayoutLockTTL(transferTimeout), 50*time.Millisecond, 20)
	notifier := service.NewNotifier(cfg.Kafka.Topic.Notification)

	splitter, err := money.NewSplitter(cfg.Business.CommissionRate)
	if err != nil {
		log.Fatalf("佣金配置错误: %v", err)
	}

	// 支付渠道
	currency := cfg.Business.Currency
	paystack := provider.NewPaystack(cfg.Providers.Paystack, cfg.Providers.CallbackURL, currency)
	flutterwave := provider.NewFlutterwave(cfg.Providers.Flutterwave, cfg.Providers.CallbackURL, currency)
	coinbase := provider.NewCoinbase(cfg.Providers.Coinbase, currency)

	transferers := map[string]provider.Transferer{model.PayoutMethodBank: paystack}
	if cfg.Providers.CryptoPayout.BaseURL != "" {
		transferers[model.PayoutMethodCrypto] = provider.NewCryptoPayout(cfg.Providers.CryptoPayout, currency)
	} else {
		log.Println("[Main] 未配置加密货币打款网关，crypto 提现不可用")
	}

	payouts := service.NewPayoutService(store, store, locker, notifier, ids, transferers,
		decimal.NewFromFloat(cfg.Business.PayoutThreshold), transferTimeout)

	services := handler.Services{
		Settlement: service.NewSettlementService(store, store, splitter, ids, notifier),
		Deposits:   service.NewDepositService(store, store, locker, notifier, currency, paystack, flutterwave, coinbase),
		Payouts:    payouts,
		Accounts:   service.NewAccountService(store, store),
		Admin:      service.NewAdminService(store),
		Payments: service.NewPaymentService(store, map[string]provider.Initiator{
			service.PaymentMethodPaystack:    paystack,
			service.PaymentMethodFlutterwave: flutterwave,
			service.PaymentMethodCrypto:      coinbase,
		}),
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	outboxSender := job.NewOutboxSender(repository.NewOutboxRepository(db), producer, cfg.Business.MaxRetryCount)
	go outboxSender.Start(ctx)

	autoPayoutJob := job.NewAutoPayoutJob(payouts, cfg.Business.AutoPayoutInterval)
	go autoPayoutJob.Start(ctx)

	pendingJob := job.NewPendingWithdrawalJob(payouts, cfg.Business.PendingPayoutAge)
	go pendingJob.Start(ctx)

	webhookLimiter := handler.NewIPRateLimiter(cfg.Server.WebhookRPS, cfg.Server.WebhookBurst, 3*time.Minute)
	go webhookLimiter.StartCleanup(ctx, time.Minute)

	// 设置路由
	router := handler.SetupRouter(services, webhookLimiter)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	log.Println("服务已关闭")
}
