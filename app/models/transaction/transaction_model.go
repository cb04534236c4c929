package transaction

import (
	"time"
)

// 流水结果
const (
	OutcomePending = "pending" // 会话已创建，等待验证
	OutcomeSuccess = "success" // 缴费成功
	OutcomeFailed  = "failed"  // 缴费失败
)

// TransactionHistory 交易流水模型
// 只追加的审计记录：每次状态迁移写一条，永不更新、永不删除
// PaymentID 可为空：会话尚未落库就失败的场景没有会话 ID 可记
type TransactionHistory struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentID *uint64   `gorm:"index" json:"payment_id"`
	UserID    uint64    `gorm:"index" json:"user_id"`
	BillCode  string    `gorm:"type:varchar(64)" json:"bill_code"`
	Amount    int64     `json:"amount"`
	Outcome   string    `gorm:"type:varchar(20)" json:"outcome"`
	Message   string    `gorm:"type:varchar(255)" json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 指定表名
func (TransactionHistory) TableName() string {
	return "transaction_histories"
}
