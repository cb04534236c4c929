// Package biz 定义可直接返回给调用方渲染的业务错误类型
package biz

// BusinessError 业务错误
// Status 是建议的 HTTP 状态码，Code 是稳定的机器可读错误码，
// 哨兵用 errors.Is 判断，包装时用 fmt.Errorf("%w: ...") 保持链上可识别
type BusinessError struct {
	Status  int
	Code    string
	Message string
}

// Error 实现 error 接口
func (e *BusinessError) Error() string {
	return e.Message
}
