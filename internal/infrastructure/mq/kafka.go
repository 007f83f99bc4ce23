package mq

import (
	"fmt"
	"log"

	"marketpay/internal/config"

	"github.com/IBM/sarama"
)

// Producer 对 sarama 同步生产者的薄封装，便于注入和在测试中替换
type Producer struct {
	producer sarama.SyncProducer
}

// NewProducer 包装已有的同步生产者
func NewProducer(p sarama.SyncProducer) *Producer {
	return &Producer{producer: p}
}

// InitKafka 初始化 Kafka 生产者
func InitKafka(cfg *config.KafkaConfig) (*Producer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Idempotent = true
	kafkaConfig.Net.MaxOpenRequests = 1 // 幂等生产者要求

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}

	log.Println("Kafka 生产者创建成功")
	return NewProducer(producer), nil
}

// SendMessage 发送消息到 Kafka，eventType 放在消息头里方便消费方路由
func (p *Producer) SendMessage(topic, key, eventType, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventType)},
		},
	}

	_, _, err := p.producer.SendMessage(msg)
	return err
}

// Close 关闭 Kafka 生产者
func (p *Producer) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
