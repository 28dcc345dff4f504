package dto

// SellOrderRequest 挂单请求
type SellOrderRequest struct {
	Seller          string `json:"seller" binding:"required"`
	TotalPrice      string `json:"total_price" binding:"required"`
	ServiceFee      string `json:"service_fee" binding:"required"`
	SignedExtrinsic string `json:"signed_extrinsic" binding:"required"`
}

// BuyOrderRequest 买单请求
type BuyOrderRequest struct {
	ID              int64  `json:"id" binding:"required"`
	Buyer           string `json:"buyer" binding:"required"`
	SignedExtrinsic string `json:"signed_extrinsic" binding:"required"`
}

// CancelOrderRequest 取消挂单请求
type CancelOrderRequest struct {
	ID     int64  `json:"id" binding:"required"`
	Seller string `json:"seller" binding:"required"`
}
