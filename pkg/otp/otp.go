// Package otp 提供一次性验证码的签发、查询与错误尝试计数
//
// 支付验证和学费查询两条业务线都依赖这里的语义：
//   - 验证码为 6 位数字，使用加密安全的随机源生成
//   - Issue 会覆盖旧验证码并清零错误尝试次数
//   - 过期的验证码与从未签发过的验证码不可区分
//   - IncrementAttempts 对同一个 key 的并发调用不会丢失计数
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// CodeLength 验证码位数
const CodeLength = 6

// Store 一次性验证码存储接口
// 提供 Redis 实现（线上）和内存实现（测试，可注入时钟）
type Store interface {
	// Issue 为 key 签发一个新验证码，覆盖旧值并重置错误计数
	Issue(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Peek 查询 key 当前的验证码，不存在或已过期时 ok 为 false
	Peek(ctx context.Context, key string) (code string, ok bool, err error)

	// IncrementAttempts 原子递增 key 的错误尝试次数并返回递增后的值
	IncrementAttempts(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Delete 删除 key 的验证码和错误计数
	Delete(ctx context.Context, key string) error
}

// GenerateCode 生成 6 位数字验证码
func GenerateCode() (string, error) {
	// [0, 1000000) 区间内的加密安全随机数，左侧补零
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("生成验证码失败: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
