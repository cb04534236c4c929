package otp

import (
	"context"
	"time"

	"tuitionpay/pkg/redis"
)

// attemptSuffix 错误尝试计数键的后缀，与验证码键共用同一个 TTL
const attemptSuffix = ":attempt"

// RedisStore 基于 Redis 的验证码存储，TTL 由 Redis 原生保证
type RedisStore struct {
	rds *redis.RedisClient
}

// NewRedisStore 创建 Redis 验证码存储
func NewRedisStore(rds *redis.RedisClient) *RedisStore {
	return &RedisStore{rds: rds}
}

// Issue 签发新验证码，覆盖旧值并删除错误计数键
func (s *RedisStore) Issue(ctx context.Context, key string, ttl time.Duration) (string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", err
	}

	if err := s.rds.Set(ctx, key, code, ttl); err != nil {
		return "", err
	}

	// 重置错误计数，失败不影响签发结果
	_ = s.rds.Del(ctx, key+attemptSuffix)

	return code, nil
}

// Peek 查询验证码，过期键由 Redis 自动剔除
func (s *RedisStore) Peek(ctx context.Context, key string) (string, bool, error) {
	return s.rds.Get(ctx, key)
}

// IncrementAttempts 原子递增错误尝试次数
func (s *RedisStore) IncrementAttempts(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return s.rds.IncrementWithTTL(ctx, key+attemptSuffix, ttl)
}

// Delete 删除验证码及其错误计数
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rds.Del(ctx, key, key+attemptSuffix)
}
