// Package routes 注册路由
package routes

import (
	"github.com/gin-gonic/gin"

	paymentctrl "tuitionpay/app/http/controllers/api/v1/payment"
	"tuitionpay/app/http/controllers/api/v1/tuition"
	"tuitionpay/app/http/middlewares"
	"tuitionpay/pkg/inquiry"
	"tuitionpay/pkg/payment"
)

// 路由限流配置
const (
	// 全局限流：每小时每 IP 10000 请求
	GlobalRateLimit = "10000-H"
	// 创建支付会话限流：每小时每 IP 60 请求
	CreatePaymentLimit = "60-H"
	// OTP 验证限流：每分钟每 IP 30 请求
	VerifyOtpLimit = "30-M"
	// 查询类接口限流：每分钟每 IP 300 请求
	QueryLimit = "300-M"
)

// RegisterAPIRoutes 注册所有 API 路由
func RegisterAPIRoutes(r *gin.Engine, paymentService *payment.Service, inquiryService *inquiry.Service) {
	v1 := r.Group("/v1")

	v1.Use(
		middlewares.SecurityHeaders(),
		middlewares.LimitIP(GlobalRateLimit),
		middlewares.Cors(),
	)

	// 支付相关路由
	{
		pc := paymentctrl.NewPaymentController(paymentService)

		// 创建支付会话
		// POST /v1/payments
		v1.POST("/payments",
			middlewares.LimitPerRoute(CreatePaymentLimit),
			pc.Store,
		)

		// 验证 OTP，终结支付会话
		// POST /v1/payments/:id/verify-otp
		v1.POST("/payments/:id/verify-otp",
			middlewares.LimitPerRoute(VerifyOtpLimit),
			pc.VerifyOtp,
		)

		// 取消等待验证的支付会话
		// POST /v1/payments/:id/cancel
		v1.POST("/payments/:id/cancel", pc.Cancel)

		// 查询用户交易流水
		// GET /v1/users/:user_id/transactions
		v1.GET("/users/:user_id/transactions",
			middlewares.LimitPerRoute(QueryLimit),
			pc.History,
		)
	}

	// 学费查询相关路由
	tuitionRoutes := v1.Group("/tuition")
	{
		ic := tuition.NewInquiryController(inquiryService)

		// 发起查询，发送验证码
		// POST /v1/tuition/inquiry
		tuitionRoutes.POST("/inquiry",
			middlewares.LimitPerRoute(VerifyOtpLimit),
			ic.Request,
		)

		// 验证并返回账单列表
		// POST /v1/tuition/inquiry/confirm
		tuitionRoutes.POST("/inquiry/confirm",
			middlewares.LimitPerRoute(VerifyOtpLimit),
			ic.Confirm,
		)
	}
}
