package chain

import (
	"github.com/shopspring/decimal"
)

// Dot2Planck DOT 转 Planck
func Dot2Planck(dot decimal.Decimal, decimals int32) decimal.Decimal {
	return dot.Shift(decimals)
}

// Planck2Dot Planck 转 DOT
func Planck2Dot(planck decimal.Decimal, decimals int32) decimal.Decimal {
	return planck.Shift(-decimals)
}
