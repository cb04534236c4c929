// Package tuition 学费查询相关的 API 控制器
package tuition

import (
	"github.com/gin-gonic/gin"

	"tuitionpay/app/requests"
	"tuitionpay/pkg/inquiry"
	"tuitionpay/pkg/response"
)

// InquiryController 学费查询控制器
type InquiryController struct {
	service *inquiry.Service
}

// NewInquiryController 创建学费查询控制器
func NewInquiryController(service *inquiry.Service) *InquiryController {
	return &InquiryController{service: service}
}

// Request 发起学费查询，发送验证码到学生邮箱
// POST /v1/tuition/inquiry
func (ic *InquiryController) Request(c *gin.Context) {
	req, err := requests.ValidateInquiry(c)
	if err != nil {
		response.BadRequest(c, err, "请求参数错误")
		return
	}

	if err := ic.service.RequestOtp(c.Request.Context(), req.StudentCode); err != nil {
		response.BusinessError(c, err)
		return
	}

	response.Data(c, gin.H{
		"message": "验证码已发送至学生邮箱，请查收",
	})
}

// Confirm 验证查询验证码并返回学生的账单列表
// POST /v1/tuition/inquiry/confirm
func (ic *InquiryController) Confirm(c *gin.Context) {
	req, err := requests.ValidateInquiryConfirm(c)
	if err != nil {
		response.BadRequest(c, err, "请求参数错误")
		return
	}

	bills, err := ic.service.Confirm(c.Request.Context(), req.StudentCode, req.OtpCode)
	if err != nil {
		response.BusinessError(c, err)
		return
	}

	response.Data(c, bills)
}
