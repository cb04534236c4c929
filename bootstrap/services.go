package bootstrap

import (
	"time"

	"tuitionpay/app/repositories"
	"tuitionpay/pkg/clients"
	"tuitionpay/pkg/config"
	"tuitionpay/pkg/database"
	"tuitionpay/pkg/inquiry"
	"tuitionpay/pkg/logger"
	"tuitionpay/pkg/otp"
	"tuitionpay/pkg/payment"
	"tuitionpay/pkg/redis"
	"tuitionpay/pkg/sweeper"
)

// Services 汇集所有业务服务，供路由注册和后台任务使用
type Services struct {
	Payment *payment.Service
	Inquiry *inquiry.Service
	Sweeper *sweeper.Sweeper
}

// SetupServices 构建下游客户端与业务服务
// 依赖 SetupDB 和 SetupRedis 已完成
func SetupServices() *Services {
	timeout := time.Duration(config.GetInt("services.timeout")) * time.Second

	ledger := clients.NewLedgerClient(config.GetString("services.user_url"), timeout)
	users := clients.NewUserClient(config.GetString("services.user_url"), timeout)
	billing := clients.NewBillingClient(config.GetString("services.tuition_url"), timeout)
	notifier := clients.NewNotifierClient(config.GetString("services.notification_url"), timeout)

	otpStore := otp.NewRedisStore(redis.Redis)

	paymentService := payment.NewService(
		repositories.NewPaymentRepository(database.DB),
		repositories.NewTransactionRepository(database.DB),
		otpStore,
		ledger,
		billing,
		notifier,
		users,
		payment.Config{
			OtpTTL:         time.Duration(config.GetInt("payment.otp_ttl_seconds")) * time.Second,
			MaxOtpAttempts: config.GetInt64("payment.max_otp_attempts"),
		},
	)

	inquiryService := inquiry.NewService(otpStore, billing, users, notifier, inquiry.Config{
		OtpTTL:      time.Duration(config.GetInt("payment.otp_ttl_seconds")) * time.Second,
		MaxAttempts: config.GetInt64("payment.max_otp_attempts"),
	})

	sweepInterval := time.Duration(config.GetInt("payment.sweep_interval_seconds")) * time.Second
	paymentSweeper := sweeper.NewSweeper(paymentService, sweepInterval)

	logger.InfoString("服务", "初始化", "业务服务初始化完成")

	return &Services{
		Payment: paymentService,
		Inquiry: inquiryService,
		Sweeper: paymentSweeper,
	}
}
