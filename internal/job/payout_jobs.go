package job

import (
	"context"
	"log"
	"time"

	"marketpay/internal/service"
)

// PayoutRunner 由 service.PayoutService 实现
type PayoutRunner interface {
	RunAutoPayout(ctx context.Context) ([]service.PayoutOutcome, error)
	ResolvePending(ctx context.Context, olderThan time.Duration) (int, error)
}

// AutoPayoutJob 定时批量自动打款
type AutoPayoutJob struct {
	payouts  PayoutRunner
	stopCh   chan struct{}
	interval time.Duration
}

// NewAutoPayoutJob interval 为 0 时任务不启动，由管理员接口手动触发
func NewAutoPayoutJob(payouts PayoutRunner, interval time.Duration) *AutoPayoutJob {
	return &AutoPayoutJob{
		payouts:  payouts,
		stopCh:   make(chan struct{}),
		interval: interval,
	}
}

func (j *AutoPayoutJob) Enabled() bool {
	return j.interval > 0
}

func (j *AutoPayoutJob) Start(ctx context.Context) {
	if !j.Enabled() {
		log.Println("[AutoPayoutJob] 未配置执行间隔，任务不启动")
		return
	}
	log.Printf("[AutoPayoutJob] 自动打款任务启动: interval=%s", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[AutoPayoutJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[AutoPayoutJob] 任务停止")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *AutoPayoutJob) Stop() {
	close(j.stopCh)
}

func (j *AutoPayoutJob) runOnce(ctx context.Context) {
	outcomes, err := j.payouts.RunAutoPayout(ctx)
	if err != nil {
		log.Printf("[AutoPayoutJob] 自动打款失败: %v", err)
		return
	}
	for _, o := range outcomes {
		if o.Status != service.PayoutStatusSent {
			log.Printf("[AutoPayoutJob] 卖家打款未成功: seller=%s, amount=%s, err=%s", o.SellerID, o.Amount, o.Error)
		}
	}
}

// PendingWithdrawalJob 收尾长时间停留在 pending 的提现
type PendingWithdrawalJob struct {
	payouts   PayoutRunner
	stopCh    chan struct{}
	interval  time.Duration
	olderThan time.Duration
}

func NewPendingWithdrawalJob(payouts PayoutRunner, olderThan time.Duration) *PendingWithdrawalJob {
	if olderThan <= 0 {
		olderThan = 5 * time.Minute
	}
	return &PendingWithdrawalJob{
		payouts:   payouts,
		stopCh:    make(chan struct{}),
		interval:  30 * time.Second,
		olderThan: olderThan,
	}
}

func (j *PendingWithdrawalJob) Start(ctx context.Context) {
	log.Println("[PendingWithdrawalJob] 提现收尾任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[PendingWithdrawalJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[PendingWithdrawalJob] 任务停止")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *PendingWithdrawalJob) Stop() {
	close(j.stopCh)
}

func (j *PendingWithdrawalJob) runOnce(ctx context.Context) {
	n, err := j.payouts.ResolvePending(ctx, j.olderThan)
	if err != nil {
		log.Printf("[PendingWithdrawalJob] 查询 pending 提现失败: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[PendingWithdrawalJob] 本次收尾 %d 笔提现", n)
	}
}
