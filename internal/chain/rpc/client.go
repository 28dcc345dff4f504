// Package rpc 提供基于 Substrate JSON-RPC 的链网关实现
package rpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/liuxiaoxue22/market/internal/chain"
	"github.com/liuxiaoxue22/market/internal/config"
	"github.com/liuxiaoxue22/market/pkg/logger"
)

// Client 链网关实现
// 连接与重连是网关内部事务，对上层只暴露能力接口
type Client struct {
	api        *gsrpc.SubstrateAPI
	meta       *types.Metadata
	genesis    types.Hash
	indexes    *callIndexes
	ss58Prefix uint16
	protocolID string

	keyring       signature.KeyringPair
	relayValue    uint64
	submitTimeout time.Duration

	// 平台账户的构造/签名串行化，保证签名顺序与 nonce 分配顺序一致
	signMu sync.Mutex
	// 平台账户的 nonce 分配：链上读数只反映已最终化的交易，
	// 连续提交时由 nonces 在内存中顺延
	nonces noncePool
}

// 编译期断言
var _ chain.Gateway = (*Client)(nil)

// NewClient 连接节点并初始化网关
func NewClient(cfg *config.ChainConfig) (*Client, error) {
	api, err := gsrpc.NewSubstrateAPI(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect chain node: %w", err)
	}

	meta, err := api.RPC.State.GetMetadataLatest()
	if err != nil {
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}

	genesis, err := api.RPC.Chain.GetBlockHash(0)
	if err != nil {
		return nil, fmt.Errorf("fetch genesis hash: %w", err)
	}

	indexes, err := resolveCallIndexes(meta)
	if err != nil {
		return nil, fmt.Errorf("resolve call indexes: %w", err)
	}

	var keyring signature.KeyringPair
	if cfg.MarketAccountSecret != "" {
		keyring, err = signature.KeyringPairFromSecret(cfg.MarketAccountSecret, cfg.SS58Prefix)
		if err != nil {
			return nil, fmt.Errorf("load market account keyring: %w", err)
		}
	}

	timeout := time.Duration(cfg.SubmitTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	logger.Info("chain gateway connected",
		zap.String("endpoint", cfg.Endpoint),
		zap.Uint16("ss58_prefix", cfg.SS58Prefix),
	)

	return &Client{
		api:           api,
		meta:          meta,
		genesis:       genesis,
		indexes:       indexes,
		ss58Prefix:    cfg.SS58Prefix,
		protocolID:    cfg.ProtocolID,
		keyring:       keyring,
		relayValue:    cfg.RelayTransferPlanck,
		submitTimeout: timeout,
	}, nil
}

// DecodeSignedExtrinsic 解码客户端提交的已签名交易
func (c *Client) DecodeSignedExtrinsic(raw string) (*chain.SignedExtrinsic, error) {
	return c.decodeExtrinsic(raw)
}

// SubmitAndWait 提交交易并等待最终化
// 超时返回 OutcomeTimeout：结果未知，行级状态由调用方保持在提交前的子状态
func (c *Client) SubmitAndWait(ctx context.Context, ext *chain.SignedExtrinsic) (*chain.SubmitResult, error) {
	var raw types.Extrinsic
	if err := codec.DecodeFromHex(ext.Raw, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", chain.ErrMalformedExtrinsic, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	sub, err := c.api.RPC.Author.SubmitAndWatchExtrinsic(raw)
	if err != nil {
		// 交易池直接拒绝，等同链上失败
		return &chain.SubmitResult{
			Outcome:    chain.OutcomeFailed,
			FailReason: err.Error(),
		}, nil
	}
	defer sub.Unsubscribe()

	return c.watchSubmission(ctx, sub.Chan(), sub.Err(), ext.Hash)
}

// watchSubmission 消费订阅通道直到拿到确定结果
// 节点关闭订阅通道时结果未知，按网关错误上报，不空转等到超时
func (c *Client) watchSubmission(
	ctx context.Context,
	statusCh <-chan types.ExtrinsicStatus,
	errCh <-chan error,
	extHash string,
) (*chain.SubmitResult, error) {
	for {
		select {
		case status, ok := <-statusCh:
			if !ok {
				return nil, fmt.Errorf("watch extrinsic: subscription closed")
			}
			switch {
			case status.IsFinalized:
				return c.checkExtrinsicOutcome(status.AsFinalized, extHash)
			case status.IsDropped:
				return &chain.SubmitResult{Outcome: chain.OutcomeFailed, FailReason: "extrinsic dropped"}, nil
			case status.IsInvalid:
				return &chain.SubmitResult{Outcome: chain.OutcomeFailed, FailReason: "extrinsic invalid"}, nil
			case status.IsUsurped:
				return &chain.SubmitResult{Outcome: chain.OutcomeFailed, FailReason: "extrinsic usurped"}, nil
			}
		case err := <-errCh:
			return nil, fmt.Errorf("watch extrinsic: %w", err)
		case <-ctx.Done():
			logger.Warn("submit extrinsic timed out, outcome unknown",
				zap.String("hash", extHash),
			)
			return &chain.SubmitResult{Outcome: chain.OutcomeTimeout}, nil
		}
	}
}

// checkExtrinsicOutcome 在最终化区块中核对交易的事件结果
func (c *Client) checkExtrinsicOutcome(blockHash types.Hash, extHash string) (*chain.SubmitResult, error) {
	block, err := c.api.RPC.Chain.GetBlock(blockHash)
	if err != nil {
		return nil, fmt.Errorf("fetch finalized block: %w", err)
	}

	extIndex := -1
	for i := range block.Block.Extrinsics {
		h, err := extrinsicHash(&block.Block.Extrinsics[i])
		if err != nil {
			continue
		}
		if h == extHash {
			extIndex = i
			break
		}
	}
	if extIndex < 0 {
		return nil, fmt.Errorf("extrinsic %s not found in finalized block %s", extHash, blockHash.Hex())
	}

	key, err := types.CreateStorageKey(c.meta, "System", "Events")
	if err != nil {
		return nil, fmt.Errorf("create events storage key: %w", err)
	}
	rawEvents, err := c.api.RPC.State.GetStorageRaw(key, blockHash)
	if err != nil {
		return nil, fmt.Errorf("fetch block events: %w", err)
	}

	events := types.EventRecords{}
	if err := types.EventRecordsRaw(*rawEvents).DecodeEventRecords(c.meta, &events); err != nil {
		return nil, fmt.Errorf("decode block events: %w", err)
	}

	result := &chain.SubmitResult{Outcome: chain.OutcomeFinalized, BlockHash: blockHash.Hex()}
	for _, failed := range events.System_ExtrinsicFailed {
		if !failed.Phase.IsApplyExtrinsic || int(failed.Phase.AsApplyExtrinsic) != extIndex {
			continue
		}
		result.Outcome = chain.OutcomeFailed
		result.FailReason = formatDispatchError(failed.DispatchError)
		break
	}
	return result, nil
}

// formatDispatchError 格式化链上执行错误
func formatDispatchError(e types.DispatchError) string {
	switch {
	case e.IsModule:
		return fmt.Sprintf("module %d error %v", e.ModuleError.Index, e.ModuleError.Error)
	case e.IsBadOrigin:
		return "bad origin"
	case e.IsCannotLookup:
		return "cannot lookup"
	case e.IsToken:
		return "token error"
	case e.IsArithmetic:
		return "arithmetic error"
	default:
		return "dispatch error"
	}
}

// BuildAndSignInscribeTransfer 用平台账户构造并签名铭文转账
// batch_all[transfer_keep_alive(to, relayValue), remark_with_event(载荷)]
func (c *Client) BuildAndSignInscribeTransfer(ctx context.Context, to string, tick string, amount decimal.Decimal) (*chain.SignedExtrinsic, error) {
	if c.keyring.Address == "" {
		return nil, fmt.Errorf("market account keyring not configured")
	}

	c.signMu.Lock()
	defer c.signMu.Unlock()

	pub, err := ss58Decode(to)
	if err != nil {
		return nil, fmt.Errorf("decode recipient address: %w", err)
	}
	dest, err := types.NewMultiAddressFromAccountID(pub)
	if err != nil {
		return nil, fmt.Errorf("build recipient address: %w", err)
	}

	transferCall, err := types.NewCall(c.meta, "Balances.transfer_keep_alive",
		dest, types.NewUCompactFromUInt(c.relayValue)) // 铭文转账的伴随金额
	if err != nil {
		return nil, fmt.Errorf("build transfer call: %w", err)
	}

	payload := fmt.Sprintf(`{"p":%q,"op":"transfer","tick":%q,"amt":%s}`,
		c.protocolID, tick, amount.String())
	remarkCall, err := types.NewCall(c.meta, "System.remark_with_event", types.NewBytes([]byte(payload)))
	if err != nil {
		return nil, fmt.Errorf("build remark call: %w", err)
	}

	batchCall, err := types.NewCall(c.meta, "Utility.batch_all", []types.Call{transferCall, remarkCall})
	if err != nil {
		return nil, fmt.Errorf("build batch call: %w", err)
	}

	ext := types.NewExtrinsic(batchCall)

	rv, err := c.api.RPC.State.GetRuntimeVersionLatest()
	if err != nil {
		return nil, fmt.Errorf("fetch runtime version: %w", err)
	}

	accountKey, err := types.CreateStorageKey(c.meta, "System", "Account", c.keyring.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("create account storage key: %w", err)
	}
	var accountInfo types.AccountInfo
	ok, err := c.api.RPC.State.GetStorageLatest(accountKey, &accountInfo)
	if err != nil {
		return nil, fmt.Errorf("fetch market account info: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("market account not found on chain")
	}

	opts := types.SignatureOptions{
		BlockHash:          c.genesis, // 不朽期以创世哈希为锚
		Era:                types.ExtrinsicEra{IsImmortalEra: true},
		GenesisHash:        c.genesis,
		Nonce:              types.NewUCompactFromUInt(c.nonces.Reserve(uint64(accountInfo.Nonce))),
		SpecVersion:        rv.SpecVersion,
		Tip:                types.NewUCompactFromUInt(0),
		TransactionVersion: rv.TransactionVersion,
	}
	if err := ext.Sign(c.keyring, opts); err != nil {
		return nil, fmt.Errorf("sign extrinsic: %w", err)
	}

	raw, err := codec.EncodeToHex(ext)
	if err != nil {
		return nil, fmt.Errorf("encode extrinsic: %w", err)
	}

	return c.decodeExtrinsic(raw)
}
