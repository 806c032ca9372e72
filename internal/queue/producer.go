package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"HabitQuest/internal/model"
	"HabitQuest/pkg/logger"
	"HabitQuest/pkg/snowflake"
	"HabitQuest/storage/mq"
)

// publishFunc 与 mq.PublishJSON 同签名，测试时替换
type publishFunc func(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error

// QuestEventProducer 发布任务进度事件
type QuestEventProducer struct {
	publish publishFunc
}

func NewQuestEventProducer() *QuestEventProducer {
	return &QuestEventProducer{publish: mq.PublishJSON}
}

// PublishQuestProgress 发布进度事件，缺少消息 ID 时补一个
func (p *QuestEventProducer) PublishQuestProgress(ctx context.Context, evt *model.QuestProgressEvent) error {
	if evt.MessageID == "" {
		id, err := snowflake.NextMessageID("qp")
		if err != nil {
			logger.Logger.Warn("Snowflake unavailable, falling back to uuid message id", zap.Error(err))
			id = "qp_" + uuid.NewString()
		}
		evt.MessageID = id
	}

	if err := p.publish(ctx, mq.QuestEventsExchange, mq.QuestProgressRoutingKey, evt.MessageID, evt); err != nil {
		return fmt.Errorf("failed to publish quest progress event: %w", err)
	}

	logger.Logger.Debug("Quest progress event published",
		zap.String("message_id", evt.MessageID),
		zap.String("user_id", evt.UserID),
		zap.String("trigger", string(evt.Trigger)),
	)
	return nil
}
