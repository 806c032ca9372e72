package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"HabitQuest/pkg/logger"
	"HabitQuest/storage/redis"
)

const claimLockPrefix = "lock:claim"

// 只删除自己持有的锁
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ClaimLocker 按 (user, quest) 串行化领取，SETNX + TTL
type ClaimLocker struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewClaimLocker(client *goredis.Client, ttl time.Duration) *ClaimLocker {
	return &ClaimLocker{client: client, ttl: ttl}
}

// TryLock 成功时返回释放函数；client 为 nil 时直接放行
func (l *ClaimLocker) TryLock(ctx context.Context, userID string, questID int64) (func(), bool, error) {
	if l == nil || l.client == nil {
		return func() {}, true, nil
	}

	key := redis.Key(claimLockPrefix, userID, strconv.FormatInt(questID, 10))
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire claim lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// 请求 ctx 可能已取消，释放锁用独立的短超时
		rctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{key}, token).Err(); err != nil {
			// 释放失败时锁会在 TTL 后过期
			logger.Logger.Warn("Failed to release claim lock",
				zap.String("key", key),
				zap.String("user_id", userID),
				zap.Int64("quest_id", questID),
				zap.Error(err),
			)
		}
	}
	return release, true, nil
}
