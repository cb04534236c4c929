package otp

import (
	"context"
	"sync"
	"time"
)

// memoryEntry 内存存储中的一条验证码记录
type memoryEntry struct {
	code      string
	attempts  int64
	expiresAt time.Time
}

// MemoryStore 内存版验证码存储
// 时钟可注入，测试里可以直接拨动时间验证过期行为
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry

	// Now 返回当前时间，默认 time.Now
	Now func() time.Time
}

// NewMemoryStore 创建内存验证码存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		Now:     time.Now,
	}
}

// Issue 签发新验证码，覆盖旧值并清零错误计数
func (s *MemoryStore) Issue(ctx context.Context, key string, ttl time.Duration) (string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &memoryEntry{
		code:      code,
		expiresAt: s.Now().Add(ttl),
	}
	return code, nil
}

// Peek 查询验证码，过期条目等同于不存在
func (s *MemoryStore) Peek(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.liveEntry(key)
	if !ok || entry.code == "" {
		// code 为空说明条目只承载错误计数（验证码已过期后的残留计数）
		return "", false, nil
	}
	return entry.code, true, nil
}

// IncrementAttempts 递增错误尝试次数
// 条目已过期时从 1 重新计数，与 Redis 计数键过期后的行为一致
func (s *MemoryStore) IncrementAttempts(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.liveEntry(key)
	if !ok {
		entry = &memoryEntry{expiresAt: s.Now().Add(ttl)}
		s.entries[key] = entry
	}
	entry.attempts++
	return entry.attempts, nil
}

// Delete 删除验证码
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// liveEntry 取出未过期的条目，过期条目顺手清理掉
// 调用方必须持有锁
func (s *MemoryStore) liveEntry(key string) (*memoryEntry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.Now().After(entry.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	return entry, true
}
