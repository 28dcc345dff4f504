package rpc

import (
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// ss58 地址编码
// 参考 substrate SS58 规范：checksum = blake2b-512("SS58PRE" || prefix || pubkey)[:2]

var ss58Prelude = []byte("SS58PRE")

// ss58Encode 将 32 字节公钥编码为 SS58 地址
func ss58Encode(pubKey []byte, prefix uint16) string {
	var data []byte
	if prefix < 64 {
		data = append(data, byte(prefix))
	} else {
		// 两字节前缀编码
		data = append(data,
			byte(((prefix&0b1111_1100)>>2)|0b0100_0000),
			byte((prefix>>8)|((prefix&0b11)<<6)),
		)
	}
	data = append(data, pubKey...)

	checksum := blake2b.Sum512(append(append([]byte{}, ss58Prelude...), data...))
	data = append(data, checksum[:2]...)

	return base58.Encode(data)
}

// ss58Decode 解码 SS58 地址，返回 32 字节公钥
func ss58Decode(address string) ([]byte, error) {
	data, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("decode ss58 address: %w", err)
	}
	// 前缀 1~2 字节 + 公钥 32 字节 + 校验和 2 字节
	var prefixLen int
	switch {
	case len(data) == 35:
		prefixLen = 1
	case len(data) == 36:
		prefixLen = 2
	default:
		return nil, fmt.Errorf("invalid ss58 address length: %d", len(data))
	}

	body := data[:len(data)-2]
	checksum := blake2b.Sum512(append(append([]byte{}, ss58Prelude...), body...))
	if data[len(data)-2] != checksum[0] || data[len(data)-1] != checksum[1] {
		return nil, fmt.Errorf("invalid ss58 checksum")
	}

	return data[prefixLen : len(data)-2], nil
}
