// Package payment 支付相关的 API 控制器
package payment

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"tuitionpay/app/requests"
	paymentsvc "tuitionpay/pkg/payment"
	"tuitionpay/pkg/response"
)

// PaymentController 支付控制器
type PaymentController struct {
	service *paymentsvc.Service
}

// NewPaymentController 创建支付控制器
func NewPaymentController(service *paymentsvc.Service) *PaymentController {
	return &PaymentController{service: service}
}

// Store 创建支付会话
// POST /v1/payments
func (pc *PaymentController) Store(c *gin.Context) {
	req, err := requests.ValidateCreatePayment(c)
	if err != nil {
		response.BadRequest(c, err, "请求参数错误")
		return
	}

	session, err := pc.service.CreatePayment(c.Request.Context(), req.UserID, req.BillCode, req.Amount)
	if err != nil {
		response.BusinessError(c, err)
		return
	}

	response.Created(c, session, "支付会话已创建，验证码已发送至邮箱")
}

// VerifyOtp 验证 OTP 并终结支付会话
// POST /v1/payments/:id/verify-otp
func (pc *PaymentController) VerifyOtp(c *gin.Context) {
	paymentID := cast.ToUint64(c.Param("id"))
	if paymentID == 0 {
		response.Abort404(c, "支付会话不存在")
		return
	}

	req, err := requests.ValidateVerifyOtp(c)
	if err != nil {
		response.BadRequest(c, err, "请求参数错误")
		return
	}

	session, err := pc.service.VerifyOtp(c.Request.Context(), paymentID, req.OtpCode)
	if err != nil {
		response.BusinessError(c, err)
		return
	}

	response.Data(c, session)
}

// Cancel 取消等待验证的支付会话
// POST /v1/payments/:id/cancel
func (pc *PaymentController) Cancel(c *gin.Context) {
	paymentID := cast.ToUint64(c.Param("id"))
	if paymentID == 0 {
		response.Abort404(c, "支付会话不存在")
		return
	}

	session, err := pc.service.Cancel(c.Request.Context(), paymentID)
	if err != nil {
		response.BusinessError(c, err)
		return
	}

	response.Data(c, session)
}

// History 查询用户的交易流水
// GET /v1/users/:user_id/transactions
func (pc *PaymentController) History(c *gin.Context) {
	userID := cast.ToUint64(c.Param("user_id"))
	if userID == 0 {
		response.Abort404(c, "用户不存在")
		return
	}

	items, err := pc.service.GetHistory(c.Request.Context(), userID)
	if err != nil {
		response.BusinessError(c, err)
		return
	}

	response.Data(c, items)
}
