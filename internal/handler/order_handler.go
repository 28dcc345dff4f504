package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/liuxiaoxue22/market/internal/dto"
	"github.com/liuxiaoxue22/market/internal/model"
	"github.com/liuxiaoxue22/market/internal/service"
)

// OrderHandler 订单处理器
type OrderHandler struct {
	svc service.OrderService
}

// NewOrderHandler 创建订单处理器
func NewOrderHandler(svc service.OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// Sell 挂单
// POST /api/v1/orders/sell
func (h *OrderHandler) Sell(c *gin.Context) {
	var req dto.SellOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, dto.ErrInvalidParams.WithMessage(err.Error()))
		return
	}

	resp, err := h.svc.Sell(c.Request.Context(), &service.SellRequest{
		Seller:          req.Seller,
		TotalPrice:      req.TotalPrice,
		ServiceFee:      req.ServiceFee,
		SignedExtrinsic: req.SignedExtrinsic,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	Success(c, resp)
}

// Buy 买单
// POST /api/v1/orders/buy
func (h *OrderHandler) Buy(c *gin.Context) {
	var req dto.BuyOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, dto.ErrInvalidParams.WithMessage(err.Error()))
		return
	}

	resp, err := h.svc.Buy(c.Request.Context(), &service.BuyRequest{
		ID:              req.ID,
		Buyer:           req.Buyer,
		SignedExtrinsic: req.SignedExtrinsic,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	Success(c, resp)
}

// Cancel 取消挂单
// POST /api/v1/orders/cancel
func (h *OrderHandler) Cancel(c *gin.Context) {
	var req dto.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, dto.ErrInvalidParams.WithMessage(err.Error()))
		return
	}

	resp, err := h.svc.Cancel(c.Request.Context(), &service.CancelRequest{
		ID:     req.ID,
		Seller: req.Seller,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	Success(c, resp)
}

// Detail 订单详情
// GET /api/v1/orders/:id
func (h *OrderHandler) Detail(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		Error(c, dto.ErrInvalidParams.WithMessage("invalid order id"))
		return
	}

	order, err := h.svc.Detail(c.Request.Context(), id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	Success(c, order)
}

// List 订单列表
// GET /api/v1/orders
func (h *OrderHandler) List(c *gin.Context) {
	req := &service.ListRequest{
		Seller: c.Query("seller"),
	}

	if statuses := c.Query("statuses"); statuses != "" {
		for _, s := range strings.Split(statuses, ",") {
			req.Statuses = append(req.Statuses, model.OrderStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	if cursor := c.Query("cursor"); cursor != "" {
		if v, err := strconv.ParseInt(cursor, 10, 64); err == nil && v > 0 {
			req.Cursor = v
		}
	}
	if limit := c.Query("limit"); limit != "" {
		if v, err := strconv.Atoi(limit); err == nil && v > 0 {
			req.Limit = v
		}
	}

	resp, err := h.svc.List(c.Request.Context(), req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	Success(c, resp)
}
