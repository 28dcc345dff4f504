// Package service 实现订单生命周期与对账逻辑
package service

import "errors"

var (
	// ErrInvalidTransaction 交易格式或业务规则校验失败，未产生任何状态变更
	ErrInvalidTransaction = errors.New("invalid transaction")
	// ErrOrderNotFound 订单不存在
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderLocked 抢单失败，订单已被他人锁定或不可抢
	ErrOrderLocked = errors.New("order locked")
	// ErrOrderNotCancelable 订单不属于请求者或已不可取消
	ErrOrderNotCancelable = errors.New("order not cancelable")
	// ErrTransferFailed 链上执行失败，订单已被标记为 FAILED
	ErrTransferFailed = errors.New("transfer failed")
	// ErrSubmitTimeout 提交后等待最终化超时，结果未知
	// 订单行保持在提交前的子状态，等待对账或人工处理
	ErrSubmitTimeout = errors.New("submit timeout, outcome unknown")
)
