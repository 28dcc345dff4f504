package rpc

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"

	"github.com/liuxiaoxue22/market/internal/chain"
)

// callIndexes 解码所需的调用索引，连接时从链元数据解析
// 索引之外的调用一律视为无法识别
type callIndexes struct {
	transfers map[types.CallIndex]struct{} // Balances.transfer 族
	remarks   map[types.CallIndex]struct{} // System.remark 族
	batchAll  types.CallIndex              // Utility.batch_all
}

// resolveCallIndexes 从元数据解析调用索引
// transfer_allow_death / transfer 在不同 runtime 版本二选一，缺失的跳过
func resolveCallIndexes(meta *types.Metadata) (*callIndexes, error) {
	idx := &callIndexes{
		transfers: make(map[types.CallIndex]struct{}),
		remarks:   make(map[types.CallIndex]struct{}),
	}

	for _, name := range []string{
		"Balances.transfer_keep_alive",
		"Balances.transfer_allow_death",
		"Balances.transfer",
	} {
		ci, err := meta.FindCallIndex(name)
		if err != nil {
			continue
		}
		idx.transfers[ci] = struct{}{}
	}
	if len(idx.transfers) == 0 {
		return nil, fmt.Errorf("no balance transfer call in metadata")
	}

	for _, name := range []string{"System.remark", "System.remark_with_event"} {
		ci, err := meta.FindCallIndex(name)
		if err != nil {
			continue
		}
		idx.remarks[ci] = struct{}{}
	}
	if len(idx.remarks) == 0 {
		return nil, fmt.Errorf("no system remark call in metadata")
	}

	batchAll, err := meta.FindCallIndex("Utility.batch_all")
	if err != nil {
		return nil, fmt.Errorf("find Utility.batch_all: %w", err)
	}
	idx.batchAll = batchAll

	return idx, nil
}

// decodeExtrinsic 将原始签名交易解码为领域表示
func (c *Client) decodeExtrinsic(raw string) (*chain.SignedExtrinsic, error) {
	var ext types.Extrinsic
	if err := codec.DecodeFromHex(raw, &ext); err != nil {
		return nil, fmt.Errorf("%w: %v", chain.ErrMalformedExtrinsic, err)
	}
	if !ext.IsSigned() {
		return nil, fmt.Errorf("%w: extrinsic is not signed", chain.ErrMalformedExtrinsic)
	}

	signer, err := c.multiAddressToSS58(ext.Signature.Signer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chain.ErrMalformedExtrinsic, err)
	}

	hash, err := extrinsicHash(&ext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chain.ErrMalformedExtrinsic, err)
	}

	decoded := &chain.SignedExtrinsic{
		Raw:    raw,
		Hash:   hash,
		Signer: signer,
	}

	if ext.Method.CallIndex == c.indexes.batchAll {
		decoded.Batched = true
		calls, err := c.decodeBatchCalls(ext.Method.Args)
		if err != nil {
			return nil, err
		}
		decoded.Calls = calls
		return decoded, nil
	}

	call, err := c.decodeCallArgs(ext.Method.CallIndex, scale.NewDecoder(bytes.NewReader(ext.Method.Args)))
	if err != nil {
		return nil, err
	}
	decoded.Calls = []chain.Call{call}
	return decoded, nil
}

// decodeBatchCalls 解码 batch_all 的内层调用列表
// 遇到无法识别的调用索引即中止：后续参数长度未知，无法继续
func (c *Client) decodeBatchCalls(args []byte) ([]chain.Call, error) {
	dec := scale.NewDecoder(bytes.NewReader(args))

	n, err := dec.DecodeUintCompact()
	if err != nil {
		return nil, fmt.Errorf("%w: decode batch length: %v", chain.ErrMalformedExtrinsic, err)
	}

	count := n.Int64()
	if count <= 0 || count > 64 {
		return nil, fmt.Errorf("%w: batch of %d calls", chain.ErrUnsupportedCall, count)
	}

	calls := make([]chain.Call, 0, count)
	for i := int64(0); i < count; i++ {
		var ci types.CallIndex
		if err := dec.Decode(&ci); err != nil {
			return nil, fmt.Errorf("%w: decode call index: %v", chain.ErrMalformedExtrinsic, err)
		}
		call, err := c.decodeCallArgs(ci, dec)
		if err != nil {
			return nil, err
		}
		if call.Unknown {
			// 标记后中止解码，上层据此整体拒绝
			calls = append(calls, call)
			return calls, nil
		}
		calls = append(calls, call)
	}
	return calls, nil
}

// decodeCallArgs 按调用索引解码参数
func (c *Client) decodeCallArgs(ci types.CallIndex, dec *scale.Decoder) (chain.Call, error) {
	if _, ok := c.indexes.transfers[ci]; ok {
		var dest types.MultiAddress
		if err := dec.Decode(&dest); err != nil {
			return chain.Call{}, fmt.Errorf("%w: decode transfer dest: %v", chain.ErrMalformedExtrinsic, err)
		}
		var value types.UCompact
		if err := dec.Decode(&value); err != nil {
			return chain.Call{}, fmt.Errorf("%w: decode transfer value: %v", chain.ErrMalformedExtrinsic, err)
		}
		to, err := c.multiAddressToSS58(dest)
		if err != nil {
			return chain.Call{}, fmt.Errorf("%w: %v", chain.ErrMalformedExtrinsic, err)
		}
		bi := big.Int(value)
		return chain.Call{Transfer: &chain.TransferCall{
			To:    to,
			Value: decimal.NewFromBigInt(&bi, 0),
		}}, nil
	}

	if _, ok := c.indexes.remarks[ci]; ok {
		var data types.Bytes
		if err := dec.Decode(&data); err != nil {
			return chain.Call{}, fmt.Errorf("%w: decode remark: %v", chain.ErrMalformedExtrinsic, err)
		}
		return chain.Call{Remark: &chain.RemarkCall{Data: data}}, nil
	}

	return chain.Call{Unknown: true}, nil
}

// multiAddressToSS58 将 MultiAddress 转为 SS58 地址
func (c *Client) multiAddressToSS58(addr types.MultiAddress) (string, error) {
	if !addr.IsID {
		return "", fmt.Errorf("unsupported address type")
	}
	return ss58Encode(addr.AsID[:], c.ss58Prefix), nil
}

// extrinsicHash 计算交易哈希 (blake2-256)
func extrinsicHash(ext *types.Extrinsic) (string, error) {
	enc, err := codec.Encode(ext)
	if err != nil {
		return "", err
	}
	h := blake2b.Sum256(enc)
	return codec.HexEncodeToString(h[:]), nil
}
