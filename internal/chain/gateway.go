// Package chain 定义链网关能力接口与交易的领域表示
//
// 网关是系统访问基础链的唯一入口：解码已签名交易、提交并等待最终化、
// 构造并签名平台账户的铭文转账。链接连接的生命周期由网关实现自行管理，
// 不以全局状态形式暴露。
package chain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnsupportedCall 交易包含无法识别的调用
	ErrUnsupportedCall = errors.New("unsupported call in extrinsic")
	// ErrMalformedExtrinsic 交易字节无法解码
	ErrMalformedExtrinsic = errors.New("malformed extrinsic")
)

// Call 交易中的单个调用，Transfer / Remark 恰有一个非空
// 无法识别的调用以 Unknown 标记，由上层拒绝
type Call struct {
	Transfer *TransferCall
	Remark   *RemarkCall
	Unknown  bool
}

// TransferCall 余额转账调用
type TransferCall struct {
	To    string          // 接收方地址 (SS58)
	Value decimal.Decimal // 金额 (Planck)
}

// RemarkCall remark 调用，铭文协议语义的唯一载体
type RemarkCall struct {
	Data []byte
}

// SignedExtrinsic 已签名交易的领域表示
type SignedExtrinsic struct {
	Raw     string // SCALE 编码的十六进制原文，提交时使用
	Hash    string // blake2-256 交易哈希 (0x 前缀)
	Signer  string // 签名者地址 (SS58)
	Batched bool   // 顶层调用是否为 batch_all
	Calls   []Call // 顶层调用列表 (batch 展开为内部调用)
}

// SubmitOutcome 提交结果
type SubmitOutcome int

const (
	// OutcomeFinalized 交易已最终化且未触发 ExtrinsicFailed
	OutcomeFinalized SubmitOutcome = iota
	// OutcomeFailed 交易已最终化但链上执行失败
	OutcomeFailed
	// OutcomeTimeout 等待最终化超时，结果未知，不得当作成功或失败
	OutcomeTimeout
)

// SubmitResult 提交并等待最终化的结果
type SubmitResult struct {
	Outcome   SubmitOutcome
	BlockHash string // 最终化所在区块 (Finalized/Failed 时有效)
	// FailReason 链上执行失败原因 (module.error 形式，仅 Failed 时非空)
	FailReason string
}

// Gateway 链网关能力接口
type Gateway interface {
	// DecodeSignedExtrinsic 解码客户端提交的已签名交易
	// 返回 ErrMalformedExtrinsic 或 ErrUnsupportedCall (包装后) 表示不可用输入
	DecodeSignedExtrinsic(raw string) (*SignedExtrinsic, error)

	// SubmitAndWait 提交交易并阻塞等待最终化
	// 超时返回 OutcomeTimeout，调用方必须将其视为结果未知
	SubmitAndWait(ctx context.Context, ext *SignedExtrinsic) (*SubmitResult, error)

	// BuildAndSignInscribeTransfer 用平台账户构造并签名一笔铭文转账
	// (batch_all[transfer(to, value), remark(铭文载荷)])
	BuildAndSignInscribeTransfer(ctx context.Context, to string, tick string, amount decimal.Decimal) (*SignedExtrinsic, error)
}
