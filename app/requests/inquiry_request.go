package requests

import (
	"github.com/gin-gonic/gin"
	"github.com/thedevsaddam/govalidator"
)

// InquiryRequest 学费查询验证码请求
type InquiryRequest struct {
	StudentCode string `json:"student_code" valid:"student_code"`
}

// ValidateInquiry 验证学费查询请求
func ValidateInquiry(c *gin.Context) (InquiryRequest, error) {
	rules := govalidator.MapData{
		"student_code": []string{"required", "min:1", "max:64"},
	}

	messages := govalidator.MapData{
		"student_code": []string{
			"required:学号不能为空",
			"max:学号长度不能超过 64 个字符",
		},
	}

	return ValidateRequest[InquiryRequest](c, rules, messages)
}

// InquiryConfirmRequest 学费查询验证码确认请求
type InquiryConfirmRequest struct {
	StudentCode string `json:"student_code" valid:"student_code"`
	OtpCode     string `json:"otp_code" valid:"otp_code"`
}

// ValidateInquiryConfirm 验证学费查询确认请求
func ValidateInquiryConfirm(c *gin.Context) (InquiryConfirmRequest, error) {
	rules := govalidator.MapData{
		"student_code": []string{"required", "min:1", "max:64"},
		"otp_code":     []string{"required", "digits:6"},
	}

	messages := govalidator.MapData{
		"student_code": []string{
			"required:学号不能为空",
		},
		"otp_code": []string{
			"required:验证码不能为空",
			"digits:验证码必须是 6 位数字",
		},
	}

	return ValidateRequest[InquiryConfirmRequest](c, rules, messages)
}
