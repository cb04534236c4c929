package repositories

import (
	"context"

	"gorm.io/gorm"

	"tuitionpay/app/models/transaction"
)

// TransactionRepository 交易流水仓库，只追加
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository 创建仓库实例
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Append 追加一条流水记录
func (r *TransactionRepository) Append(ctx context.Context, history *transaction.TransactionHistory) error {
	return r.db.WithContext(ctx).Create(history).Error
}

// ListByUser 查询某个用户的全部流水，按时间倒序
func (r *TransactionRepository) ListByUser(ctx context.Context, userID uint64) ([]transaction.TransactionHistory, error) {
	var histories []transaction.TransactionHistory
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&histories).Error
	if err != nil {
		return nil, err
	}
	return histories, nil
}
