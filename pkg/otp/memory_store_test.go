package otp

import (
	"context"
	"sync"
	"testing"
	"time"
)

// newTestStore 返回带可拨动时钟的内存存储
func newTestStore(start time.Time) (*MemoryStore, *time.Time) {
	now := start
	store := NewMemoryStore()
	store.Now = func() time.Time { return now }
	return store, &now
}

func TestMemoryStoreIssueAndPeek(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))

	code, err := store.Issue(ctx, "payment:otp:1", time.Minute)
	if err != nil {
		t.Fatalf("Issue 失败: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("验证码应为 6 位，得到 %q", code)
	}

	stored, ok, err := store.Peek(ctx, "payment:otp:1")
	if err != nil {
		t.Fatalf("Peek 失败: %v", err)
	}
	if !ok || stored != code {
		t.Fatalf("Peek 应返回刚签发的验证码，ok=%v stored=%q code=%q", ok, stored, code)
	}
}

func TestMemoryStorePeekMissingKey(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(time.Now())

	if _, ok, err := store.Peek(ctx, "payment:otp:404"); err != nil || ok {
		t.Fatalf("未签发的键应返回 ok=false，ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store, now := newTestStore(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))

	if _, err := store.Issue(ctx, "payment:otp:2", time.Minute); err != nil {
		t.Fatalf("Issue 失败: %v", err)
	}

	// 拨动到截止时间之后
	*now = now.Add(time.Minute + time.Second)

	if _, ok, err := store.Peek(ctx, "payment:otp:2"); err != nil || ok {
		t.Fatalf("过期验证码应等同于不存在，ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreIssueResetsAttempts(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))

	if _, err := store.Issue(ctx, "payment:otp:3", time.Minute); err != nil {
		t.Fatalf("Issue 失败: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := store.IncrementAttempts(ctx, "payment:otp:3", time.Minute); err != nil {
			t.Fatalf("IncrementAttempts 失败: %v", err)
		}
	}

	// 重新签发后错误计数归零
	if _, err := store.Issue(ctx, "payment:otp:3", time.Minute); err != nil {
		t.Fatalf("重新 Issue 失败: %v", err)
	}
	count, err := store.IncrementAttempts(ctx, "payment:otp:3", time.Minute)
	if err != nil {
		t.Fatalf("IncrementAttempts 失败: %v", err)
	}
	if count != 1 {
		t.Fatalf("重新签发后计数应从 1 开始，得到 %d", count)
	}
}

func TestMemoryStoreIncrementAfterExpiry(t *testing.T) {
	ctx := context.Background()
	store, now := newTestStore(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))

	if _, err := store.Issue(ctx, "payment:otp:4", time.Minute); err != nil {
		t.Fatalf("Issue 失败: %v", err)
	}
	if _, err := store.IncrementAttempts(ctx, "payment:otp:4", time.Minute); err != nil {
		t.Fatalf("IncrementAttempts 失败: %v", err)
	}

	*now = now.Add(2 * time.Minute)

	// 过期后计数重新从 1 开始，且残留的计数条目不会被当成验证码
	count, err := store.IncrementAttempts(ctx, "payment:otp:4", time.Minute)
	if err != nil {
		t.Fatalf("IncrementAttempts 失败: %v", err)
	}
	if count != 1 {
		t.Fatalf("过期后计数应从 1 重新开始，得到 %d", count)
	}
	if _, ok, _ := store.Peek(ctx, "payment:otp:4"); ok {
		t.Fatal("只承载计数的条目不应被 Peek 当成有效验证码")
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(time.Now())

	if _, err := store.Issue(ctx, "payment:otp:5", time.Minute); err != nil {
		t.Fatalf("Issue 失败: %v", err)
	}
	if err := store.Delete(ctx, "payment:otp:5"); err != nil {
		t.Fatalf("Delete 失败: %v", err)
	}
	if _, ok, _ := store.Peek(ctx, "payment:otp:5"); ok {
		t.Fatal("删除后不应再能读到验证码")
	}
}

func TestMemoryStoreConcurrentIncrement(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(time.Now())

	if _, err := store.Issue(ctx, "payment:otp:6", time.Minute); err != nil {
		t.Fatalf("Issue 失败: %v", err)
	}

	const goroutines = 20
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_, _ = store.IncrementAttempts(ctx, "payment:otp:6", time.Minute)
		}()
	}
	wg.Wait()

	count, err := store.IncrementAttempts(ctx, "payment:otp:6", time.Minute)
	if err != nil {
		t.Fatalf("IncrementAttempts 失败: %v", err)
	}
	if count != goroutines+1 {
		t.Fatalf("并发递增应不丢计数，期望 %d 得到 %d", goroutines+1, count)
	}
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode 失败: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("验证码应为 6 位，得到 %q", code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("验证码应只含数字，得到 %q", code)
			}
		}
	}
}
