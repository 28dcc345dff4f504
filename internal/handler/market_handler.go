package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/liuxiaoxue22/market/internal/service"
)

// MarketHandler 行情处理器
type MarketHandler struct {
	priceSvc service.PriceService
}

// NewMarketHandler 创建行情处理器
func NewMarketHandler(priceSvc service.PriceService) *MarketHandler {
	return &MarketHandler{priceSvc: priceSvc}
}

// DotPrice DOT/USD 价格
// GET /api/v1/market/dot_price
func (h *MarketHandler) DotPrice(c *gin.Context) {
	price, err := h.priceSvc.DotPrice(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	Success(c, gin.H{"price": price.String()})
}
