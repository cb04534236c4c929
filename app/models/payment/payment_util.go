package payment

import "time"

// IsTerminal 是否处于终态
func (p *PaymentSession) IsTerminal() bool {
	return p.Status == StatusSuccess || p.Status == StatusFailed || p.Status == StatusCancelled
}

// IsPendingOtp 是否在等待 OTP 验证
func (p *PaymentSession) IsPendingOtp() bool {
	return p.Status == StatusPendingOtp
}

// IsExpired 等待验证的会话是否已越过 OTP 截止时间
// OtpExpiresAt 为空视为已过期（会话不完整，按可替换处理）
func (p *PaymentSession) IsExpired(now time.Time) bool {
	return p.OtpExpiresAt == nil || p.OtpExpiresAt.Before(now)
}
