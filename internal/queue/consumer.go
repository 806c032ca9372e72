package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"HabitQuest/internal/cache"
	"HabitQuest/internal/model"
	"HabitQuest/pkg/errors"
	"HabitQuest/pkg/logger"
	"HabitQuest/storage/mq"
)

// ProgressApplier 由 service.QuestService 实现
type ProgressApplier interface {
	ApplyProgressEvent(ctx context.Context, evt *model.QuestProgressEvent) (int, error)
}

// ProgressConsumer 消费 quest.progress 队列
type ProgressConsumer struct {
	applier ProgressApplier
	marker  *cache.MessageMarker
	log     *zap.Logger
}

func NewProgressConsumer(applier ProgressApplier, marker *cache.MessageMarker) *ProgressConsumer {
	return &ProgressConsumer{
		applier: applier,
		marker:  marker,
		log:     logger.Component("quest_progress_consumer"),
	}
}

// Start 阻塞直到 ctx 取消
func (c *ProgressConsumer) Start(ctx context.Context, prefetch int) error {
	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         mq.QuestProgressQueue,
		ConsumerTag:   "quest_progress_consumer",
		PrefetchCount: prefetch,
		Handler: func(ctx context.Context, d amqp.Delivery) error {
			return c.Handle(ctx, d.MessageId, d.Body)
		},
	})
}

// Handle 返回 error 时消息进入死信队列；重复消息直接确认
func (c *ProgressConsumer) Handle(ctx context.Context, messageID string, body []byte) error {
	var evt model.QuestProgressEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("failed to unmarshal quest progress event: %w", err)
	}
	if evt.MessageID == "" {
		evt.MessageID = messageID
	}

	if evt.MessageID != "" {
		ok, err := c.marker.TryMarkProcessing(ctx, evt.MessageID)
		if err != nil {
			// 标记失败时继续处理，可能重复应用一次
			c.log.Warn("Failed to check message processed status",
				zap.String("message_id", evt.MessageID),
				zap.Error(err),
			)
		} else if !ok {
			c.log.Info("Message already processed or being processed, skipping",
				zap.String("message_id", evt.MessageID),
			)
			return nil
		}
	}

	updated, err := c.applier.ApplyProgressEvent(ctx, &evt)
	if err != nil {
		switch _, business := errors.As(err); {
		case evt.MessageID == "" || business:
			// 业务错误保留标记，重放结果相同
		case updated > 0:
			// 已有部分写入，重放会重复累加
			c.markProcessed(ctx, evt.MessageID)
		default:
			// 临时故障且没有任何写入，允许从死信队列重放
			if uerr := c.marker.Unmark(ctx, evt.MessageID); uerr != nil {
				c.log.Warn("Failed to unmark message", zap.String("message_id", evt.MessageID), zap.Error(uerr))
			}
		}
		return fmt.Errorf("failed to apply quest progress event %s: %w", evt.MessageID, err)
	}

	if evt.MessageID != "" {
		c.markProcessed(ctx, evt.MessageID)
	}

	c.log.Info("Quest progress event applied",
		zap.String("message_id", evt.MessageID),
		zap.String("user_id", evt.UserID),
		zap.String("trigger", string(evt.Trigger)),
		zap.Int("updated", updated),
	)
	return nil
}

func (c *ProgressConsumer) markProcessed(ctx context.Context, messageID string) {
	if err := c.marker.MarkProcessed(ctx, messageID); err != nil {
		c.log.Warn("Failed to mark message as processed",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}
