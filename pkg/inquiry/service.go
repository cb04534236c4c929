// Package inquiry 学费查询的验证码流程
//
// 与支付验证同一套模式的小规模复用：按学号签发验证码发到学生邮箱，
// 在有限的错误次数内验证通过后才返回该学生的账单列表
package inquiry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tuitionpay/pkg/biz"
	"tuitionpay/pkg/clients"
	"tuitionpay/pkg/logger"
	"tuitionpay/pkg/otp"
)

// 默认配置
const (
	DefaultOtpTTL      = time.Minute
	DefaultMaxAttempts = 3
)

// otpKeyPrefix 查询验证码在 OTP 存储中的键前缀
const otpKeyPrefix = "tuition:otp:inquiry:"

// 业务错误哨兵
var (
	ErrStudentNotFound = &biz.BusinessError{Status: 404, Code: "STUDENT_NOT_FOUND", Message: "学生不存在"}
	ErrEmailMissing    = &biz.BusinessError{Status: 422, Code: "USER_EMAIL_NOT_FOUND", Message: "学生没有配置邮箱，无法接收验证码"}
	ErrOtpExpired      = &biz.BusinessError{Status: 410, Code: "OTP_EXPIRED", Message: "验证码已过期"}
	ErrOtpInvalid      = &biz.BusinessError{Status: 422, Code: "OTP_INVALID", Message: "验证码不正确"}
	ErrOtpRejected     = &biz.BusinessError{Status: 410, Code: "OTP_REJECTED", Message: "验证码错误次数过多，查询已被拒绝"}
	ErrInquiryFailed   = &biz.BusinessError{Status: 500, Code: "INQUIRY_ERROR", Message: "学费查询失败"}
)

// Config 查询流程配置
type Config struct {
	OtpTTL      time.Duration
	MaxAttempts int64
}

// Service 学费查询服务
type Service struct {
	otp      otp.Store
	billing  clients.Billing
	users    clients.Users
	notifier clients.Notifier
	cfg      Config
}

// NewService 创建学费查询服务
func NewService(otpStore otp.Store, billing clients.Billing, users clients.Users, notifier clients.Notifier, cfg Config) *Service {
	if cfg.OtpTTL <= 0 {
		cfg.OtpTTL = DefaultOtpTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Service{
		otp:      otpStore,
		billing:  billing,
		users:    users,
		notifier: notifier,
		cfg:      cfg,
	}
}

// otpKey 学号对应的验证码键
func otpKey(studentCode string) string {
	return otpKeyPrefix + studentCode
}

// RequestOtp 为学号签发查询验证码并发送到学生邮箱
// 与支付流程不同，邮件在这里就是交付物本身，发送失败要报给调用方
func (s *Service) RequestOtp(ctx context.Context, studentCode string) error {
	user, err := s.users.GetByStudentCode(ctx, studentCode)
	if err != nil {
		if errors.Is(err, clients.ErrUserNotFound) {
			return ErrStudentNotFound
		}
		return fmt.Errorf("%w: %v", ErrInquiryFailed, err)
	}
	if user.Email == "" {
		return ErrEmailMissing
	}

	code, err := s.otp.Issue(ctx, otpKey(studentCode), s.cfg.OtpTTL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInquiryFailed, err)
	}

	if err := s.notifier.SendOtp(ctx, user.Email, code, int(s.cfg.OtpTTL.Minutes())); err != nil {
		return fmt.Errorf("%w: %v", ErrInquiryFailed, err)
	}
	return nil
}

// Confirm 验证查询验证码，通过后返回该学生的账单列表
// 错误次数达到上限时作废验证码，必须重新发起查询
func (s *Service) Confirm(ctx context.Context, studentCode, code string) ([]clients.Bill, error) {
	key := otpKey(studentCode)

	stored, ok, err := s.otp.Peek(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInquiryFailed, err)
	}
	if !ok {
		return nil, ErrOtpExpired
	}

	if stored != code {
		count, err := s.otp.IncrementAttempts(ctx, key, s.cfg.OtpTTL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInquiryFailed, err)
		}
		if count >= s.cfg.MaxAttempts {
			_ = s.otp.Delete(ctx, key)
			return nil, ErrOtpRejected
		}
		return nil, ErrOtpInvalid
	}

	bills, err := s.billing.GetByStudent(ctx, studentCode)
	if err != nil {
		if errors.Is(err, clients.ErrStudentNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrInquiryFailed, err)
	}

	// 验证码一次性使用，删除失败不影响本次已通过的查询
	if err := s.otp.Delete(ctx, key); err != nil {
		logger.ErrorString("学费查询", "删除验证码", err.Error())
	}
	return bills, nil
}
