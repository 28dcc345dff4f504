// Package handler 提供 HTTP 请求处理
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/liuxiaoxue22/market/internal/dto"
	"github.com/liuxiaoxue22/market/internal/service"
	"github.com/liuxiaoxue22/market/pkg/logger"
)

// Success 返回成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Error 返回业务错误响应
func Error(c *gin.Context, err *dto.BizError) {
	c.JSON(err.HTTPStatus, dto.NewErrorResponse(err))
}

// handleServiceError 把服务层错误映射为业务错误响应
func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidTransaction):
		Error(c, dto.ErrInvalidTransaction.WithMessage(err.Error()))
	case errors.Is(err, service.ErrOrderNotFound):
		Error(c, dto.ErrOrderNotFound)
	case errors.Is(err, service.ErrOrderLocked):
		Error(c, dto.ErrOrderLocked)
	case errors.Is(err, service.ErrOrderNotCancelable):
		Error(c, dto.ErrOrderNotCancelable)
	case errors.Is(err, service.ErrTransferFailed):
		Error(c, dto.ErrTransferFailed.WithMessage(err.Error()))
	case errors.Is(err, service.ErrSubmitTimeout):
		Error(c, dto.ErrSubmitTimeout)
	default:
		logger.Error("internal error", zap.Error(err))
		Error(c, dto.ErrInternalError)
	}
}
