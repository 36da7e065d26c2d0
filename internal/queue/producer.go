package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// RunMessage 归因执行消息
type RunMessage struct {
	RunID string `json:"run_id"`
	Crawl string `json:"crawl"`
}

// Producer 消息生产者
type Producer struct {
	mq     *RabbitMQ
	logger *logrus.Logger
}

// NewProducer 创建生产者
func NewProducer(mq *RabbitMQ, logger *logrus.Logger) *Producer {
	return &Producer{mq: mq, logger: logger}
}

// PublishRun 发布归因执行消息
func (p *Producer) PublishRun(ctx context.Context, msg *RunMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := p.mq.Publish(ctx, body); err != nil {
		p.logger.WithError(err).WithField("run_id", msg.RunID).Error("Failed to publish run")
		return fmt.Errorf("failed to publish: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"run_id": msg.RunID,
		"crawl":  msg.Crawl,
	}).Info("Run published to queue")

	return nil
}

// QueueSize 获取队列中等待的消息数
func (p *Producer) QueueSize() (int, error) {
	messageCount, _, err := p.mq.QueueStats()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue stats: %w", err)
	}
	return messageCount, nil
}
