package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// RunHandler 归因执行处理函数
type RunHandler func(ctx context.Context, msg *RunMessage) error

// Consumer 消息消费者
type Consumer struct {
	mq         *RabbitMQ
	logger     *logrus.Logger
	handler    RunHandler
	workerWg   sync.WaitGroup
	mu         sync.Mutex
	running    bool
	cancelFunc context.CancelFunc
}

// NewConsumer 创建消费者
func NewConsumer(mq *RabbitMQ, handler RunHandler, logger *logrus.Logger) *Consumer {
	return &Consumer{
		mq:      mq,
		logger:  logger,
		handler: handler,
	}
}

// Start 启动消费循环，并监听重连信号
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.logger.Warn("Consumer already running, skipping start")
		return nil
	}
	c.running = true
	c.mu.Unlock()

	msgs, err := c.mq.Consume()
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelFunc = cancel
	c.mu.Unlock()

	c.workerWg.Add(1)
	go c.consumeLoop(workerCtx, msgs)

	c.mq.StartConnectionWatcher()
	go c.handleReconnect(ctx)

	c.logger.Info("Consumer started")
	return nil
}

// consumeLoop 消费循环
func (c *Consumer) consumeLoop(ctx context.Context, msgs <-chan amqp.Delivery) {
	defer c.workerWg.Done()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer loop stopped by context")
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("Message channel closed")
				return
			}
			c.processMessage(ctx, msg)
		}
	}
}

// processMessage 处理单条消息，成功 ack，失败 nack 且不重新入队
func (c *Consumer) processMessage(ctx context.Context, delivery amqp.Delivery) {
	startTime := time.Now()

	var msg RunMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		c.logger.WithError(err).Error("Failed to unmarshal message")
		delivery.Nack(false, false)
		return
	}

	c.logger.WithFields(logrus.Fields{
		"run_id": msg.RunID,
		"crawl":  msg.Crawl,
	}).Info("Processing run message")

	if err := c.handler(ctx, &msg); err != nil {
		c.logger.WithError(err).WithField("run_id", msg.RunID).Error("Run processing failed")
		// 失败状态已写回数据库，重新入队只会重复失败
		delivery.Nack(false, false)
		return
	}

	if err := delivery.Ack(false); err != nil {
		c.logger.WithError(err).Error("Failed to acknowledge message")
	}

	c.logger.WithFields(logrus.Fields{
		"run_id":   msg.RunID,
		"duration": time.Since(startTime).Seconds(),
	}).Info("Run message processed")
}

// handleReconnect 处理重连信号
func (c *Consumer) handleReconnect(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-c.mq.GetReconnectChan():
			if !ok {
				return
			}

			c.logger.Warn("Connection lost, attempting to reconnect...")
			c.stopWorkers()

			if err := c.mq.Reconnect(); err != nil {
				c.logger.WithError(err).Error("Failed to reconnect, will retry on next signal")
				continue
			}

			if err := c.Start(ctx); err != nil {
				c.logger.WithError(err).Error("Failed to restart consumer")
			}
		}
	}
}

// stopWorkers 停止消费循环并等待退出
func (c *Consumer) stopWorkers() {
	c.mu.Lock()
	if c.cancelFunc != nil {
		c.cancelFunc()
		c.cancelFunc = nil
	}
	c.running = false
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.workerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Consumer loop stopped gracefully")
	case <-time.After(30 * time.Second):
		c.logger.Warn("Timeout waiting for consumer loop to stop")
	}
}

// Stop 停止消费者
func (c *Consumer) Stop() {
	c.logger.Info("Stopping consumer...")
	c.stopWorkers()
	c.logger.Info("Consumer stopped")
}

// IsRunning 检查消费者是否正在运行
func (c *Consumer) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
