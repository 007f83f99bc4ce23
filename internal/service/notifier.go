package service

import (
	"encoding/json"
	"fmt"
	"time"

	"marketpay/internal/model"
	"marketpay/internal/repository"

	"github.com/google/uuid"
)

// Notice 一条站内通知
type Notice struct {
	UserID  string
	Title   string
	Message string
	Type    string
}

// Event 投递给通知系统的结构化事件
type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	UserIDs    []string               `json:"user_ids"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Notifier 通知出口。
// 通知和事件都写在调用方的事务里，资金变动回滚时不会留下孤立通知；
// 事件由 OutboxSender 异步投递到 Kafka。
type Notifier struct {
	topic string
	now   func() time.Time
}

func NewNotifier(topic string) *Notifier {
	return &Notifier{topic: topic, now: time.Now}
}

func (n *Notifier) Notify(tx repository.Tx, notices ...Notice) error {
	for _, notice := range notices {
		err := tx.CreateNotification(&model.Notification{
			ID:      uuid.NewString(),
			UserID:  notice.UserID,
			Title:   notice.Title,
			Message: notice.Message,
			Type:    notice.Type,
		})
		if err != nil {
			return fmt.Errorf("写入通知失败: %w", err)
		}
	}
	return nil
}

// Publish key 用业务单号，保证同一笔业务的事件落在同一个分区
func (n *Notifier) Publish(tx repository.Tx, eventType, key string, userIDs []string, data map[string]interface{}) error {
	event := Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		UserIDs:    userIDs,
		Data:       data,
		OccurredAt: n.now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	if key == "" {
		key = event.ID
	}
	err = tx.CreateOutbox(&model.OutboxMessage{
		MessageKey: key,
		EventType:  eventType,
		Topic:      n.topic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	})
	if err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}
