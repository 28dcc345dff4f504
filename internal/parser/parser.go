// Package parser 将已解码的签名交易解析为市场理解的两种领域形态
//
// 这是把不透明签名数据转成领域语义的唯一入口，必须精确匹配语法：
// 多余调用、调用顺序错误、remark 载荷不合法都直接拒绝，绝不做尽力解析。
package parser

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/liuxiaoxue22/market/internal/chain"
)

// InscribeTransfer 铭文转账：一笔转账紧跟一条描述铭文转移的 remark
type InscribeTransfer struct {
	To     string          // 转账接收方
	Value  decimal.Decimal // 转账金额 (Planck)
	Tick   string          // 铭文符号 (大写)
	Amount decimal.Decimal // 铭文数量 (整数)
}

// TransferItem 批量转账中的单笔转账
type TransferItem struct {
	To    string
	Value decimal.Decimal
}

// BatchTransfer 批量转账：两笔以上转账加恰好一条 remark
// List 保持调用顺序
type BatchTransfer struct {
	List []TransferItem
}

// remarkPayload 铭文协议 remark 载荷
// 固定语法: {"p":"<protocol>","op":"transfer","tick":"<TICK>","amt":<integer>}
type remarkPayload struct {
	P    string      `json:"p"`
	Op   string      `json:"op"`
	Tick string      `json:"tick"`
	Amt  json.Number `json:"amt"`
}

// Parser 交易解析器
type Parser struct {
	protocolID string
}

// New 创建解析器
func New(protocolID string) *Parser {
	return &Parser{protocolID: protocolID}
}

// ParseInscribeTransfer 解析铭文转账交易
// 要求恰为 batch_all[transfer, remark] 且 remark 载荷匹配协议语法，
// 否则返回 nil
func (p *Parser) ParseInscribeTransfer(ext *chain.SignedExtrinsic) *InscribeTransfer {
	if ext == nil || !ext.Batched || len(ext.Calls) != 2 {
		return nil
	}
	transfer := ext.Calls[0].Transfer
	remark := ext.Calls[1].Remark
	if transfer == nil || remark == nil {
		return nil
	}

	payload := p.parseRemark(remark.Data)
	if payload == nil {
		return nil
	}
	amt, ok := parseIntegerAmount(payload.Amt)
	if !ok {
		return nil
	}

	return &InscribeTransfer{
		To:     transfer.To,
		Value:  transfer.Value,
		Tick:   strings.ToUpper(payload.Tick),
		Amount: amt,
	}
}

// ParseBatchTransfer 解析批量转账交易
// 要求为 batch_all，包含两笔以上转账和恰好一条 remark，无其他调用；
// remark 内容在本层不校验。不匹配返回 nil
func (p *Parser) ParseBatchTransfer(ext *chain.SignedExtrinsic) *BatchTransfer {
	if ext == nil || !ext.Batched {
		return nil
	}

	var list []TransferItem
	remarks := 0
	for _, call := range ext.Calls {
		switch {
		case call.Transfer != nil:
			list = append(list, TransferItem{To: call.Transfer.To, Value: call.Transfer.Value})
		case call.Remark != nil:
			remarks++
		default:
			return nil
		}
	}
	if len(list) < 2 || remarks != 1 {
		return nil
	}
	return &BatchTransfer{List: list}
}

// parseRemark 严格解析 remark 载荷
func (p *Parser) parseRemark(data []byte) *remarkPayload {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var payload remarkPayload
	if err := dec.Decode(&payload); err != nil {
		return nil
	}
	// 载荷后不允许有多余内容
	if dec.More() {
		return nil
	}
	if payload.P != p.protocolID || payload.Op != "transfer" || payload.Tick == "" {
		return nil
	}
	return &payload
}

// parseIntegerAmount 解析铭文数量，必须为正整数
func parseIntegerAmount(n json.Number) (decimal.Decimal, bool) {
	s := n.String()
	if s == "" || strings.ContainsAny(s, ".eE") {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}
