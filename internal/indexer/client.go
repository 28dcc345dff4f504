// Package indexer 提供铭文索引服务客户端
//
// 索引服务负责解释链上 remark 中的铭文协议语义，本服务只消费其结论：
// 给定交易哈希，返回一个小状态码。
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/liuxiaoxue22/market/internal/config"
)

// 索引状态码
const (
	// StatusConfirmed 铭文转移已确认
	StatusConfirmed = 1
	// StatusInsufficientBalance 铭文余额不足，协议层面失败
	StatusInsufficientBalance = 9
)

// Client 索引服务接口
type Client interface {
	// TransactionStatus 查询交易的铭文协议状态
	// 1=已确认，9=铭文不足，其他=待定/未知
	TransactionStatus(ctx context.Context, txHash string) (int, error)
}

// httpClient HTTP 实现
type httpClient struct {
	baseURL string
	client  *http.Client
}

// NewClient 创建索引客户端
func NewClient(cfg *config.IndexerConfig) Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// statusResponse 索引服务响应
type statusResponse struct {
	Status int `json:"status"`
}

// TransactionStatus 查询交易的铭文协议状态
func (c *httpClient) TransactionStatus(ctx context.Context, txHash string) (int, error) {
	endpoint := fmt.Sprintf("%s/get_transaction_status?tx_hash=%s", c.baseURL, url.QueryEscape(txHash))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build indexer request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("query indexer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("indexer returned http %d", resp.StatusCode)
	}

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode indexer response: %w", err)
	}
	return body.Status, nil
}
