// Package migrations 注册需要自动迁移的数据表
package migrations

import (
	"tuitionpay/app/models/payment"
	"tuitionpay/app/models/transaction"
)

// RegisterTables 返回所有需要迁移的模型
func RegisterTables() []interface{} {
	return []interface{}{
		&payment.PaymentSession{},
		&transaction.TransactionHistory{},
	}
}
