package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"tuitionpay/app/models/payment"
)

// PaymentRepository 支付会话仓库
type PaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建仓库实例
func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create 创建支付会话
func (r *PaymentRepository) Create(ctx context.Context, session *payment.PaymentSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// Save 保存支付会话（状态迁移时使用，UpdatedAt 由 gorm 刷新）
func (r *PaymentRepository) Save(ctx context.Context, session *payment.PaymentSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}

// GetByID 根据 ID 获取支付会话，不存在时返回 nil
func (r *PaymentRepository) GetByID(ctx context.Context, id uint64) (*payment.PaymentSession, error) {
	var session payment.PaymentSession
	err := r.db.WithContext(ctx).First(&session, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// FindPendingByBillCode 查找某张账单当前等待验证的会话，没有时返回 nil
//
// 注意：调用方基于这里的结果做"先查再写"的冲突检查，两个并发创建
// 之间存在竞态窗口（见编排器的说明），这里不提供事务隔离
func (r *PaymentRepository) FindPendingByBillCode(ctx context.Context, billCode string) (*payment.PaymentSession, error) {
	var session payment.PaymentSession
	err := r.db.WithContext(ctx).
		Where("bill_code = ? AND status = ?", billCode, payment.StatusPendingOtp).
		Order("id").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// FindExpiredPending 查找所有已越过 OTP 截止时间、仍在等待验证的会话
func (r *PaymentRepository) FindExpiredPending(ctx context.Context, now time.Time) ([]payment.PaymentSession, error) {
	var sessions []payment.PaymentSession
	err := r.db.WithContext(ctx).
		Where("status = ? AND otp_expires_at < ?", payment.StatusPendingOtp, now).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// Delete 物理删除支付会话
// 仅用于"过期未验证会话被新会话取代"这一种场景
func (r *PaymentRepository) Delete(ctx context.Context, session *payment.PaymentSession) error {
	return r.db.WithContext(ctx).Delete(session).Error
}
