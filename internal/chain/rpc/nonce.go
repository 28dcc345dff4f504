package rpc

import "sync"

// noncePool 平台账户的 nonce 分配器
//
// System.Account 读到的 nonce 只反映已最终化的交易：前一笔平台交易
// 还在交易池里等待最终化时，链上读数不变，撤单腿和成交转账腿会拿到
// 同一个 nonce，后提交的一笔被节点按 usurped/invalid 拒绝。
// 在内存中记录已分配到的位置，取链上值与本地值的较大者，
// 保证每次签名分配到不同的 nonce。
type noncePool struct {
	mu   sync.Mutex
	next uint64
	init bool
}

// Reserve 以链上 nonce 为下界分配下一个可用 nonce
func (p *noncePool) Reserve(chainNonce uint64) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := chainNonce
	if p.init && p.next > n {
		n = p.next
	}
	p.next = n + 1
	p.init = true
	return n
}
