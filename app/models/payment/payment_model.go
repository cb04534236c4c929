package payment

import (
	"time"
)

// 支付会话状态
// 状态只会沿 pending_otp -> {success, failed} 前进，
// cancelled 仅由外部的显式取消请求进入；终态不会被再次修改
const (
	StatusPendingOtp = "pending_otp" // 等待 OTP 验证
	StatusSuccess    = "success"     // 缴费成功
	StatusFailed     = "failed"      // 缴费失败
	StatusCancelled  = "cancelled"   // 已取消
)

// PaymentSession 支付会话模型
// 一次会话对应一次对某张账单的缴费尝试，与账单本身是不同的实体
type PaymentSession struct {
	ID           uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       uint64     `gorm:"index" json:"user_id"`
	BillCode     string     `gorm:"type:varchar(64);index" json:"bill_code"`
	Amount       int64      `json:"amount"`
	Status       string     `gorm:"type:varchar(20);index" json:"status"`
	OtpExpiresAt *time.Time `json:"otp_expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (PaymentSession) TableName() string {
	return "payment_sessions"
}
