package job

import (
	"context"
	"log"
	"time"

	"marketpay/internal/metrics"
	"marketpay/internal/model"
)

// OutboxStore 发件箱的读写，由 repository.OutboxRepository 实现
type OutboxStore interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	MarkSent(ctx context.Context, id int64) error
	MarkRetry(ctx context.Context, id int64, exhausted bool) error
}

// Publisher 消息投递，由 mq.Producer 实现
type Publisher interface {
	SendMessage(topic, key, eventType, value string) error
}

// OutboxSender 把事务内写入的通知事件投递到 Kafka
type OutboxSender struct {
	store         OutboxStore
	publisher     Publisher
	maxRetryCount int
	stopCh        chan struct{}
	interval      time.Duration
	batchSize     int
}

func NewOutboxSender(store OutboxStore, publisher Publisher, maxRetryCount int) *OutboxSender {
	if maxRetryCount <= 0 {
		maxRetryCount = 5
	}
	return &OutboxSender{
		store:         store,
		publisher:     publisher,
		maxRetryCount: maxRetryCount,
		stopCh:        make(chan struct{}),
		interval:      100 * time.Millisecond,
		batchSize:     100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	log.Println("[OutboxSender] 消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			log.Println("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.store.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		log.Printf("[OutboxSender] 查询消息失败: %v", err)
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	err := s.publisher.SendMessage(msg.Topic, msg.MessageKey, msg.EventType, msg.Payload)

	if err == nil {
		metrics.RecordOutbox("sent")
		if updateErr := s.store.MarkSent(ctx, msg.ID); updateErr != nil {
			// 状态没更新会导致重复投递，通知消费方按事件ID去重
			log.Printf("[OutboxSender] 更新消息状态失败: id=%d, err=%v", msg.ID, updateErr)
		}
		return
	}

	exhausted := msg.RetryCount+1 >= s.maxRetryCount
	log.Printf("[OutboxSender] 消息发送失败: id=%d, event=%s, retry=%d, err=%v", msg.ID, msg.EventType, msg.RetryCount+1, err)

	if err := s.store.MarkRetry(ctx, msg.ID, exhausted); err != nil {
		log.Printf("[OutboxSender] 记录重试失败: id=%d, err=%v", msg.ID, err)
		return
	}

	if exhausted {
		metrics.RecordOutbox("failed")
		log.Printf("[OutboxSender] 消息超过最大重试次数，标记为失败: id=%d, key=%s", msg.ID, msg.MessageKey)
		return
	}
	metrics.RecordOutbox("retry")
}
