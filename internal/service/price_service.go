package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/liuxiaoxue22/market/internal/config"
	"github.com/liuxiaoxue22/market/pkg/logger"
)

// priceCacheKey DOT 行情缓存键
const priceCacheKey = "market:price:dot_usd"

// defaultDotPrice 行情接口不可用且无缓存时的兜底价格
var defaultDotPrice = decimal.NewFromInt(5)

// PriceService DOT 行情服务
type PriceService interface {
	// DotPrice 返回 DOT/USD 价格，带 Redis 缓存
	DotPrice(ctx context.Context) (decimal.Decimal, error)
}

// priceService 实现
// 行情来自外部接口，成功后写入 Redis 缓存；接口失败时退回缓存的
// 旧值，连缓存都没有时返回兜底价格
type priceService struct {
	rdb      redis.UniversalClient
	client   *http.Client
	apiURL   string
	cacheTTL time.Duration
}

// NewPriceService 创建行情服务
func NewPriceService(rdb redis.UniversalClient, cfg *config.MarketConfig) PriceService {
	ttl := time.Duration(cfg.PriceCacheTTLSec) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &priceService{
		rdb:      rdb,
		client:   &http.Client{Timeout: 10 * time.Second},
		apiURL:   cfg.PriceAPIURL,
		cacheTTL: ttl,
	}
}

// DotPrice 返回 DOT/USD 价格
func (s *priceService) DotPrice(ctx context.Context) (decimal.Decimal, error) {
	if s.rdb != nil {
		cached, err := s.rdb.Get(ctx, priceCacheKey).Result()
		if err == nil {
			if price, perr := decimal.NewFromString(cached); perr == nil {
				return price, nil
			}
		} else if err != redis.Nil {
			logger.Warn("read price cache failed", zap.Error(err))
		}
	}

	price, err := s.fetch(ctx)
	if err != nil {
		logger.Warn("fetch dot price failed, using fallback", zap.Error(err))
		return defaultDotPrice, nil
	}

	if s.rdb != nil {
		if err := s.rdb.Set(ctx, priceCacheKey, price.String(), s.cacheTTL).Err(); err != nil {
			logger.Warn("write price cache failed", zap.Error(err))
		}
	}
	return price, nil
}

// fetch 从行情接口拉取价格
func (s *priceService) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price api returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return decimal.Zero, err
	}

	// CoinGecko simple/price 响应: {"polkadot":{"usd":6.78}}
	var payload map[string]map[string]json.Number
	if err := json.Unmarshal(body, &payload); err != nil {
		return decimal.Zero, fmt.Errorf("decode price response: %w", err)
	}
	quote, ok := payload["polkadot"]
	if !ok {
		return decimal.Zero, fmt.Errorf("price response missing polkadot quote")
	}
	usd, ok := quote["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("price response missing usd quote")
	}
	price, err := decimal.NewFromString(usd.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q: %w", usd.String(), err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive price %s", price)
	}
	return price, nil
}
