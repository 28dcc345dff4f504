// Package dto 提供数据传输对象定义
package dto

import "net/http"

// BizError 业务错误
type BizError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

// Error 实现 error 接口
func (e *BizError) Error() string {
	return e.Message
}

// 通用错误 (10xxx)
var (
	ErrInvalidParams = &BizError{10001, "INVALID_PARAMS", http.StatusBadRequest}
)

// 订单错误 (11xxx)
var (
	ErrInvalidTransaction = &BizError{11001, "INVALID_TRANSACTION", http.StatusBadRequest}
	ErrOrderNotFound      = &BizError{11002, "ORDER_NOT_FOUND", http.StatusNotFound}
	ErrOrderLocked        = &BizError{11003, "ORDER_LOCKED", http.StatusConflict}
	ErrOrderNotCancelable = &BizError{11004, "ORDER_NOT_CANCELABLE", http.StatusBadRequest}
	ErrTransferFailed     = &BizError{11005, "TRANSFER_FAILED", http.StatusBadRequest}
	ErrSubmitTimeout      = &BizError{11006, "SUBMIT_TIMEOUT", http.StatusGatewayTimeout}
)

// 系统错误 (20xxx)
var (
	ErrInternalError = &BizError{20001, "INTERNAL_ERROR", http.StatusInternalServerError}
)

// NewBizError 创建自定义业务错误
func NewBizError(code int, message string, httpStatus int) *BizError {
	return &BizError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// WithMessage 返回带自定义消息的错误副本
func (e *BizError) WithMessage(msg string) *BizError {
	return &BizError{
		Code:       e.Code,
		Message:    msg,
		HTTPStatus: e.HTTPStatus,
	}
}
