package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"HabitQuest/storage/redis"
)

const (
	// 空值缓存标识
	emptyValueFlag = "__EMPTY__"
	// 空值缓存TTL
	emptyValueTTL = time.Minute
	// TTL 随机抖动上限，防止同一批 key 同时过期
	ttlJitterMax = 30 * time.Second
)

// ProtectedCache JSON 缓存，带空值保护和熔断；client 为 nil 时始终未命中
type ProtectedCache struct {
	client    *goredis.Client
	breaker   *CircuitBreaker
	keyPrefix string
	ttl       time.Duration
	emptyTTL  time.Duration
}

// NewProtectedCache 创建受保护的缓存实例
func NewProtectedCache(client *goredis.Client, keyPrefix string, ttl time.Duration) *ProtectedCache {
	return &ProtectedCache{
		client:    client,
		breaker:   NewCircuitBreaker(keyPrefix, 5, 30*time.Second),
		keyPrefix: keyPrefix,
		ttl:       ttl,
		emptyTTL:  emptyValueTTL,
	}
}

// Set value 为 nil 时写入空值标识
func (pc *ProtectedCache) Set(ctx context.Context, key string, value interface{}) error {
	if pc.client == nil {
		return nil
	}

	data := emptyValueFlag
	ttl := pc.emptyTTL
	if value != nil {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal cache value: %w", err)
		}
		data = string(raw)
		ttl = pc.ttl + jitter()
	}

	return pc.breaker.Call(func() error {
		return pc.client.Set(ctx, redis.Key(pc.keyPrefix, key), data, ttl).Err()
	})
}

// Get 返回 (命中, 是否空值, error)
func (pc *ProtectedCache) Get(ctx context.Context, key string, dest interface{}) (hit bool, empty bool, err error) {
	if pc.client == nil {
		return false, false, nil
	}

	var data string
	err = pc.breaker.Call(func() error {
		var getErr error
		data, getErr = pc.client.Get(ctx, redis.Key(pc.keyPrefix, key)).Result()
		if errors.Is(getErr, goredis.Nil) {
			return nil
		}
		return getErr
	})
	if err != nil {
		return false, false, fmt.Errorf("failed to get cache: %w", err)
	}

	switch data {
	case "":
		return false, false, nil
	case emptyValueFlag:
		return true, true, nil
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return true, false, nil
}

// Delete 删除缓存
func (pc *ProtectedCache) Delete(ctx context.Context, key string) error {
	if pc.client == nil {
		return nil
	}
	return pc.breaker.Call(func() error {
		return pc.client.Del(ctx, redis.Key(pc.keyPrefix, key)).Err()
	})
}

func jitter() time.Duration {
	return time.Duration(rand.Int63n(int64(ttlJitterMax)))
}
