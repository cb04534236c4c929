package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// Notifier 通知服务契约
// 两类邮件对编排器都是 fire-and-forget：失败记日志，不影响支付结果
type Notifier interface {
	// SendOtp 发送验证码邮件
	SendOtp(ctx context.Context, email, code string, ttlMinutes int) error
	// SendSuccess 发送缴费成功邮件
	SendSuccess(ctx context.Context, email, name, billCode string, amount int64, semester string) error
}

// NotifierClient 基于 HTTP 的通知客户端
// 出站邮件经过限速器，突发的清扫批次不会压垮通知服务
type NotifierClient struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// NewNotifierClient 创建通知客户端
func NewNotifierClient(baseURL string, timeout time.Duration) *NotifierClient {
	return &NotifierClient{
		client: newRestyClient(baseURL, timeout),
		// 每秒 10 封，容忍 20 封的突发
		limiter: rate.NewLimiter(10, 20),
	}
}

// otpEmailRequest 验证码邮件请求体
type otpEmailRequest struct {
	ToEmail       string `json:"to_email"`
	OtpCode       string `json:"otp_code"`
	ExpireMinutes int    `json:"expire_minutes"`
}

// successEmailRequest 缴费成功邮件请求体
type successEmailRequest struct {
	ToEmail  string `json:"to_email"`
	UserName string `json:"user_name"`
	BillCode string `json:"bill_code"`
	Amount   int64  `json:"amount"`
	Semester string `json:"semester"`
}

// SendOtp 发送验证码邮件
func (c *NotifierClient) SendOtp(ctx context.Context, email, code string, ttlMinutes int) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("通知限速等待失败: %w", err)
	}

	return c.post(ctx, "/api/notification/send-otp", otpEmailRequest{
		ToEmail:       email,
		OtpCode:       code,
		ExpireMinutes: ttlMinutes,
	})
}

// SendSuccess 发送缴费成功邮件
func (c *NotifierClient) SendSuccess(ctx context.Context, email, name, billCode string, amount int64, semester string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("通知限速等待失败: %w", err)
	}

	return c.post(ctx, "/api/notification/payment-success", successEmailRequest{
		ToEmail:  email,
		UserName: name,
		BillCode: billCode,
		Amount:   amount,
		Semester: semester,
	})
}

// post 发送通知请求
func (c *NotifierClient) post(ctx context.Context, path string, body interface{}) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		return fmt.Errorf("通知服务请求失败: %w", err)
	}

	if resp.IsError() {
		apiErr := parseAPIError(resp)
		return fmt.Errorf("通知服务错误 [%s]: %s", apiErr.Code, apiErr.Message)
	}
	return nil
}
