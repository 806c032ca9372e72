package cache

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"HabitQuest/storage/redis"
)

const (
	messageProcessedPrefix = "message:processed"

	processingTTL = 5 * time.Minute
	processedTTL  = 48 * time.Hour
)

// MessageMarker 消费端幂等标记，按消息 ID 去重
type MessageMarker struct {
	client *goredis.Client
}

func NewMessageMarker(client *goredis.Client) *MessageMarker {
	return &MessageMarker{client: client}
}

// TryMarkProcessing SETNX 标记处理中，false 表示重复消息或正在被其他消费者处理
func (m *MessageMarker) TryMarkProcessing(ctx context.Context, messageID string) (bool, error) {
	if m == nil || m.client == nil {
		return true, nil
	}
	ok, err := m.client.SetNX(ctx, redis.Key(messageProcessedPrefix, messageID), "processing", processingTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark message as processing: %w", err)
	}
	return ok, nil
}

// MarkProcessed 处理成功，延长 TTL
func (m *MessageMarker) MarkProcessed(ctx context.Context, messageID string) error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Set(ctx, redis.Key(messageProcessedPrefix, messageID), "completed", processedTTL).Err()
}

// Unmark 处理失败时清除标记，允许重投后再次处理
func (m *MessageMarker) Unmark(ctx context.Context, messageID string) error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Del(ctx, redis.Key(messageProcessedPrefix, messageID)).Err()
}
