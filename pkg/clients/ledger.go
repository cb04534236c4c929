package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Ledger 账户余额服务的冻结/扣款/解冻契约
//
// 三个操作在下游各自原子，但 reserve → deduct/release 的序列整体
// 不原子；中断留下的冻结由过期清扫兜底释放
type Ledger interface {
	// Reserve 冻结余额，可用余额不足时返回 ErrInsufficientFunds
	Reserve(ctx context.Context, userID uint64, amount int64) error
	// Deduct 将此前冻结的金额正式扣除
	Deduct(ctx context.Context, userID uint64, amount int64) error
	// Release 将冻结金额退回可用余额
	Release(ctx context.Context, userID uint64, amount int64) error
}

// LedgerClient 基于 HTTP 的账户余额客户端
type LedgerClient struct {
	client *resty.Client
}

// NewLedgerClient 创建账户余额客户端
func NewLedgerClient(baseURL string, timeout time.Duration) *LedgerClient {
	return &LedgerClient{
		client: newRestyClient(baseURL, timeout),
	}
}

// balanceRequest 余额操作请求体
type balanceRequest struct {
	Amount int64 `json:"amount"`
}

// Reserve 冻结余额
func (c *LedgerClient) Reserve(ctx context.Context, userID uint64, amount int64) error {
	return c.post(ctx, fmt.Sprintf("/api/users/%d/reserve-balance", userID), amount)
}

// Deduct 扣除已冻结的余额
func (c *LedgerClient) Deduct(ctx context.Context, userID uint64, amount int64) error {
	return c.post(ctx, fmt.Sprintf("/api/users/%d/deduct-balance", userID), amount)
}

// Release 解冻余额
func (c *LedgerClient) Release(ctx context.Context, userID uint64, amount int64) error {
	return c.post(ctx, fmt.Sprintf("/api/users/%d/release-balance", userID), amount)
}

// post 发起余额操作并映射下游错误码
func (c *LedgerClient) post(ctx context.Context, path string, amount int64) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(balanceRequest{Amount: amount}).
		Post(path)
	if err != nil {
		return fmt.Errorf("余额服务请求失败: %w", err)
	}

	if resp.IsError() {
		apiErr := parseAPIError(resp)
		switch apiErr.Code {
		case "INSUFFICIENT_BALANCE":
			return fmt.Errorf("%w: %s", ErrInsufficientFunds, apiErr.Message)
		case "USER_NOT_FOUND":
			return fmt.Errorf("%w: %s", ErrUserNotFound, apiErr.Message)
		default:
			return fmt.Errorf("余额服务错误 [%s]: %s", apiErr.Code, apiErr.Message)
		}
	}
	return nil
}
