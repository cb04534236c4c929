// Package clients 封装对下游服务的访问
//
// 四个下游：账户余额（user-service）、学费账单（tuition-service）、
// 通知（notification-service）、用户信息（user-service）。
// 所有请求都带有限定超时；下游的业务错误会被映射为本包的哨兵错误，
// 调用方通过 errors.Is 判断原因，不做字符串匹配。
package clients

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// 下游业务错误，调用方用 errors.Is 判断
var (
	// ErrInsufficientFunds 余额不足或冻结失败
	ErrInsufficientFunds = errors.New("余额不足")
	// ErrBillNotFound 学费账单不存在
	ErrBillNotFound = errors.New("学费账单不存在")
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("用户不存在")
	// ErrStudentNotFound 学生不存在
	ErrStudentNotFound = errors.New("学生不存在")
)

// 账单状态
const (
	BillStatusUnpaid = "unpaid" // 未缴费
	BillStatusPaid   = "paid"   // 已缴费
)

// Bill 学费账单
type Bill struct {
	Code        string `json:"code"`
	StudentCode string `json:"student_code"`
	Amount      int64  `json:"amount"`
	Semester    string `json:"semester"`
	Status      string `json:"status"`
}

// User 用户信息
type User struct {
	ID       uint64 `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// apiError 下游服务统一的错误响应体
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// newRestyClient 创建带超时和重试的 resty 客户端
func newRestyClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Content-Type", "application/json")
}

// parseAPIError 从错误响应体中解析下游错误码
// 解析失败时返回携带状态码的通用错误
func parseAPIError(resp *resty.Response) apiError {
	var apiErr apiError
	if err := json.Unmarshal(resp.Body(), &apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = fmt.Sprintf("HTTP_%d", resp.StatusCode())
		apiErr.Message = resp.Status()
	}
	return apiErr
}
