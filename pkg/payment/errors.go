package payment

import "tuitionpay/pkg/biz"

// 业务错误哨兵，调用方通过 errors.Is 判断
var (
	// 校验类错误：除一条失败快照和流水外，不产生任何副作用
	ErrBillNotFound   = &biz.BusinessError{Status: 404, Code: "TUITION_NOT_FOUND", Message: "学费账单不存在"}
	ErrAlreadyPaid    = &biz.BusinessError{Status: 409, Code: "PAYMENT_ALREADY_COMPLETED", Message: "该学费账单已缴清，无法重复缴费"}
	ErrAmountMismatch = &biz.BusinessError{Status: 422, Code: "AMOUNT_MISMATCH", Message: "缴费金额不能低于账单金额"}
	ErrUserNotFound   = &biz.BusinessError{Status: 404, Code: "USER_NOT_FOUND", Message: "用户不存在"}
	ErrEmailMissing   = &biz.BusinessError{Status: 422, Code: "USER_EMAIL_NOT_FOUND", Message: "用户没有配置邮箱，无法接收验证码"}

	// 竞争类错误：尚未冻结余额，无需补偿
	ErrPaymentInProgress = &biz.BusinessError{Status: 409, Code: "PAYMENT_IN_PROGRESS", Message: "该账单已有等待验证的缴费会话"}

	// 资金类错误：与一般下游故障区分开
	ErrInsufficientFunds = &biz.BusinessError{Status: 410, Code: "INSUFFICIENT_BALANCE", Message: "账户余额不足，或已有占用余额的在途交易"}

	// 会话类错误
	ErrPaymentNotFound = &biz.BusinessError{Status: 404, Code: "PAYMENT_NOT_FOUND", Message: "支付会话不存在"}
	ErrAlreadySuccess  = &biz.BusinessError{Status: 409, Code: "PAYMENT_ALREADY_SUCCESS", Message: "该支付会话已经成功"}
	ErrAlreadyResolved = &biz.BusinessError{Status: 409, Code: "PAYMENT_ALREADY_RESOLVED", Message: "该支付会话已经终结"}

	// OTP 类错误：OtpInvalid 可重试，其余两个对会话是终结性的
	ErrOtpExpired  = &biz.BusinessError{Status: 410, Code: "OTP_EXPIRED", Message: "验证码已过期"}
	ErrOtpInvalid  = &biz.BusinessError{Status: 422, Code: "OTP_INVALID", Message: "验证码不正确"}
	ErrOtpRejected = &biz.BusinessError{Status: 410, Code: "OTP_REJECTED", Message: "验证码错误次数过多，交易已被拒绝"}

	// 处理类错误：终结阶段下游故障的兜底，伴随尽力而为的解冻
	ErrPaymentProcessing = &biz.BusinessError{Status: 500, Code: "PAYMENT_PROCESSING_ERROR", Message: "支付处理失败"}
)
