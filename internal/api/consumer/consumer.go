// Package consumer applies store commands received from a message queue.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Zereker/storekit/pkg/mq"
	"github.com/Zereker/storekit/pkg/storage"
)

// CommandDeleteRefDoc removes a reference document with its nodes and vectors.
const CommandDeleteRefDoc = "ref_doc.delete"

// Command 存储命令
type Command struct {
	Type     string `json:"type"`
	RefDocID string `json:"ref_doc_id"`
}

// Config 消费者配置
type Config struct {
	Kafka mq.KafkaConfig
}

// Consumer 存储命令消费者
type Consumer struct {
	logger    *slog.Logger
	storage   *storage.Context
	consumers []*mq.KafkaConsumer
}

// NewConsumer 创建消费者
// Without explicit consumers a single group "storekit" reads the commands topic.
func NewConsumer(sc *storage.Context, cfg Config) (*Consumer, error) {
	c := &Consumer{
		logger:  slog.Default().With("module", "consumer"),
		storage: sc,
	}

	if !cfg.Kafka.Enabled {
		c.logger.Info("kafka disabled, consumer not started")
		return c, nil
	}

	groups := cfg.Kafka.Consumers
	if len(groups) == 0 && cfg.Kafka.CommandsTopic != "" {
		groups = []mq.ConsumerConfig{{Name: "commands", Group: "storekit", Topics: []string{cfg.Kafka.CommandsTopic}}}
	}

	for _, group := range groups {
		kc, err := mq.NewKafkaConsumer(cfg.Kafka, group, c.Handle)
		if err != nil {
			c.Stop()
			return nil, fmt.Errorf("consumer %s: %w", group.Group, err)
		}
		c.consumers = append(c.consumers, kc)
	}

	return c, nil
}

// Subscribe routes topic of q into Handle, used with the in-memory queue.
func (c *Consumer) Subscribe(q mq.MessageQueue, topic string) error {
	return q.Subscribe(topic, func(message []byte) error {
		return c.Handle(context.Background(), topic, message)
	})
}

// Handle decodes and applies one command.
func (c *Consumer) Handle(ctx context.Context, topic string, message []byte) error {
	var cmd Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		return fmt.Errorf("decode command: %w", err)
	}

	switch cmd.Type {
	case CommandDeleteRefDoc:
		if cmd.RefDocID == "" {
			return fmt.Errorf("%s: ref_doc_id is required", cmd.Type)
		}
		if err := c.storage.DeleteRefDoc(ctx, cmd.RefDocID); err != nil {
			return err
		}
		c.logger.Info("ref doc deleted", "topic", topic, "ref_doc_id", cmd.RefDocID)
		return nil
	default:
		return fmt.Errorf("unknown command type %q", cmd.Type)
	}
}

// Start 启动所有消费者
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.consumers) == 0 {
		c.logger.Info("no consumers configured, skipping start")
		return nil
	}

	c.logger.Info("starting consumers", "count", len(c.consumers))

	g, ctx := errgroup.WithContext(ctx)
	for _, consumer := range c.consumers {
		g.Go(func() error {
			return consumer.Start(ctx)
		})
	}

	return g.Wait()
}

// Stop 停止所有消费者
func (c *Consumer) Stop() error {
	c.logger.Info("stopping consumers")

	for _, consumer := range c.consumers {
		if err := consumer.Stop(); err != nil {
			c.logger.Error("failed to stop consumer", "error", err)
		}
	}

	return nil
}
