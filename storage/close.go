package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"HabitQuest/pkg/logger"
	"HabitQuest/storage/database"
	"HabitQuest/storage/mq"
	"HabitQuest/storage/redis"
)

// Close 按 MQ -> Redis -> Database 的顺序关闭连接
func Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	closers := []struct {
		name  string
		close func(context.Context) error
	}{
		{"rabbitmq", mq.Close},
		{"redis", redis.Close},
		{"postgres", database.Close},
	}

	for _, c := range closers {
		if err := c.close(ctx); err != nil {
			logger.Logger.Error("Failed to close storage connection", zap.String("component", c.name), zap.Error(err))
			continue
		}
		logger.Logger.Info("Storage connection closed", zap.String("component", c.name))
	}
}
