package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Billing 学费账单服务契约
type Billing interface {
	// Get 查询账单，不存在时返回 ErrBillNotFound
	Get(ctx context.Context, billCode string) (*Bill, error)
	// GetByStudent 查询某个学生的全部账单
	GetByStudent(ctx context.Context, studentCode string) ([]Bill, error)
	// SetStatus 更新账单状态，成功路径上由调用方按尽力而为处理
	SetStatus(ctx context.Context, billCode, status string) error
}

// BillingClient 基于 HTTP 的学费账单客户端
type BillingClient struct {
	client *resty.Client
}

// NewBillingClient 创建学费账单客户端
func NewBillingClient(baseURL string, timeout time.Duration) *BillingClient {
	return &BillingClient{
		client: newRestyClient(baseURL, timeout),
	}
}

// Get 按账单编号查询
func (c *BillingClient) Get(ctx context.Context, billCode string) (*Bill, error) {
	var bill Bill
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&bill).
		Get("/api/tuition/" + billCode)
	if err != nil {
		return nil, fmt.Errorf("账单服务请求失败: %w", err)
	}

	if resp.IsError() {
		apiErr := parseAPIError(resp)
		if resp.StatusCode() == 404 || apiErr.Code == "TUITION_NOT_FOUND" {
			return nil, fmt.Errorf("%w: %s", ErrBillNotFound, billCode)
		}
		return nil, fmt.Errorf("账单服务错误 [%s]: %s", apiErr.Code, apiErr.Message)
	}
	return &bill, nil
}

// GetByStudent 按学号查询账单列表
func (c *BillingClient) GetByStudent(ctx context.Context, studentCode string) ([]Bill, error) {
	var bills []Bill
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&bills).
		Get("/api/tuition/student/" + studentCode)
	if err != nil {
		return nil, fmt.Errorf("账单服务请求失败: %w", err)
	}

	if resp.IsError() {
		apiErr := parseAPIError(resp)
		if resp.StatusCode() == 404 || apiErr.Code == "STUDENT_NOT_FOUND" {
			return nil, fmt.Errorf("%w: %s", ErrStudentNotFound, studentCode)
		}
		return nil, fmt.Errorf("账单服务错误 [%s]: %s", apiErr.Code, apiErr.Message)
	}
	return bills, nil
}

// statusUpdate 账单状态更新请求体
type statusUpdate struct {
	Status string `json:"status"`
}

// SetStatus 更新账单状态
func (c *BillingClient) SetStatus(ctx context.Context, billCode, status string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(statusUpdate{Status: status}).
		Put("/api/tuition/" + billCode + "/status")
	if err != nil {
		return fmt.Errorf("账单服务请求失败: %w", err)
	}

	if resp.IsError() {
		apiErr := parseAPIError(resp)
		return fmt.Errorf("账单状态更新失败 [%s]: %s", apiErr.Code, apiErr.Message)
	}
	return nil
}
