package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"HabitQuest/pkg/errors"
	"HabitQuest/pkg/logger"
	"HabitQuest/pkg/response"
	"HabitQuest/storage/redis"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// 限流键前缀
	KeyPrefix string
	// 时间窗口
	Window time.Duration
	// 超过限制后禁止访问的时间，0 表示不封禁
	BlockDuration time.Duration
	// 时间窗口内最大请求数
	MaxRequests int
	// 是否按用户ID限流（需要认证）
	ByUserID bool
	// 是否按IP限流
	ByIP bool
}

// ClaimRateLimitConfig 领取奖励限流
var ClaimRateLimitConfig = RateLimitConfig{
	KeyPrefix:     "rate:claim",
	Window:        10 * time.Second,
	MaxRequests:   10,
	ByUserID:      true,
	BlockDuration: time.Minute,
}

// CheckInRateLimitConfig 签到/连胜限流
var CheckInRateLimitConfig = RateLimitConfig{
	KeyPrefix:   "rate:checkin",
	Window:      time.Minute,
	MaxRequests: 10,
	ByUserID:    true,
}

// EventRateLimitConfig 进度事件上报限流
var EventRateLimitConfig = RateLimitConfig{
	KeyPrefix:   "rate:events",
	Window:      time.Minute,
	MaxRequests: 120,
	ByUserID:    true,
	ByIP:        true,
}

// RateLimiter 基于 Redis zset 的滑动窗口限流
type RateLimiter struct {
	client *redislib.Client
	config RateLimitConfig
	now    func() time.Time
}

func NewRateLimiter(client *redislib.Client, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{client: client, config: config, now: time.Now}
}

// getKey 生成限流键
func (rl *RateLimiter) getKey(ctx context.Context, c *app.RequestContext) string {
	var identifier string

	if rl.config.ByUserID {
		if userID, exists := GetUserID(ctx, c); exists {
			identifier = "user:" + userID
		}
	}

	if identifier == "" && rl.config.ByIP {
		identifier = "ip:" + c.ClientIP()
	}

	return redis.Key(rl.config.KeyPrefix, identifier)
}

// Allow 检查是否允许请求，返回窗口内已有的请求数
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	now := rl.now()
	windowStart := now.Add(-rl.config.Window)

	pipe := rl.client.Pipeline()

	// 移除窗口开始时间之前的所有请求记录
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))

	// member 加随机后缀，同一纳秒内的两次请求不会互相覆盖
	pipe.ZAdd(ctx, key, redislib.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString()[:8]),
	})

	zcardCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, rl.config.Window+10*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to execute pipeline: %w", err)
	}

	count := int(zcardCmd.Val())
	return count <= rl.config.MaxRequests, count, nil
}

func (rl *RateLimiter) blockKey(key string) string {
	return redis.Key(rl.config.KeyPrefix, "block", key)
}

func (rl *RateLimiter) Block(ctx context.Context, key string) error {
	if rl.config.BlockDuration <= 0 {
		return nil
	}
	return rl.client.Set(ctx, rl.blockKey(key), "1", rl.config.BlockDuration).Err()
}

func (rl *RateLimiter) IsBlocked(ctx context.Context, key string) (bool, error) {
	if rl.config.BlockDuration <= 0 {
		return false, nil
	}
	n, err := rl.client.Exists(ctx, rl.blockKey(key)).Result()
	return n > 0, err
}

// RateLimitMiddleware 创建限流中间件；client 为 nil 或 Redis 故障时放行
func RateLimitMiddleware(client *redislib.Client, config RateLimitConfig) app.HandlerFunc {
	if client == nil {
		return func(ctx context.Context, c *app.RequestContext) { c.Next(ctx) }
	}
	limiter := NewRateLimiter(client, config)

	return func(ctx context.Context, c *app.RequestContext) {
		key := limiter.getKey(ctx, c)

		blocked, err := limiter.IsBlocked(ctx, key)
		if err != nil {
			logger.Logger.Warn("Failed to check block status, allowing request", zap.Error(err))
			c.Next(ctx)
			return
		}
		if blocked {
			c.Abort()
			response.Error(ctx, c, errors.TooManyRequests)
			return
		}

		allowed, count, err := limiter.Allow(ctx, key)
		if err != nil {
			logger.Logger.Warn("Failed to check rate limit, allowing request", zap.Error(err))
			c.Next(ctx)
			return
		}

		remaining := config.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
		c.Response.Header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Response.Header.Set("X-RateLimit-Reset", strconv.FormatInt(limiter.now().Add(config.Window).Unix(), 10))

		if !allowed {
			if err := limiter.Block(ctx, key); err != nil {
				logger.Logger.Warn("Failed to block client", zap.String("key", key), zap.Error(err))
			}
			c.Abort()
			response.Error(ctx, c, errors.TooManyRequests)
			return
		}

		c.Next(ctx)
	}
}
