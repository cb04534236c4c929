package requests

import (
	"github.com/gin-gonic/gin"
	"github.com/thedevsaddam/govalidator"
)

// CreatePaymentRequest 创建支付会话请求
type CreatePaymentRequest struct {
	UserID   uint64 `json:"user_id" valid:"user_id"`
	BillCode string `json:"bill_code" valid:"bill_code"`
	Amount   int64  `json:"amount" valid:"amount"`
}

// ValidateCreatePayment 验证创建支付会话请求
func ValidateCreatePayment(c *gin.Context) (CreatePaymentRequest, error) {
	rules := govalidator.MapData{
		"user_id":   []string{"required", "numeric"},
		"bill_code": []string{"required", "min:1", "max:64"},
		"amount":    []string{"required", "numeric"},
	}

	messages := govalidator.MapData{
		"user_id": []string{
			"required:用户 ID 不能为空",
			"numeric:用户 ID 必须为数字",
		},
		"bill_code": []string{
			"required:账单编号不能为空",
			"max:账单编号长度不能超过 64 个字符",
		},
		"amount": []string{
			"required:缴费金额不能为空",
			"numeric:缴费金额必须为数字",
		},
	}

	return ValidateRequest[CreatePaymentRequest](c, rules, messages)
}

// VerifyOtpRequest 验证 OTP 请求
type VerifyOtpRequest struct {
	OtpCode string `json:"otp_code" valid:"otp_code"`
}

// ValidateVerifyOtp 验证 OTP 请求
func ValidateVerifyOtp(c *gin.Context) (VerifyOtpRequest, error) {
	rules := govalidator.MapData{
		"otp_code": []string{"required", "digits:6"},
	}

	messages := govalidator.MapData{
		"otp_code": []string{
			"required:验证码不能为空",
			"digits:验证码必须是 6 位数字",
		},
	}

	return ValidateRequest[VerifyOtpRequest](c, rules, messages)
}
