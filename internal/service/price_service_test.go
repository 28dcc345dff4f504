package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuxiaoxue22/market/internal/config"
)

func setupPriceTest(t *testing.T, handler http.HandlerFunc) (PriceService, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc := NewPriceService(rdb, &config.MarketConfig{
		PriceAPIURL:      server.URL,
		PriceCacheTTLSec: 3600,
	})
	return svc, mr
}

func TestPriceService_DotPrice_FetchAndCache(t *testing.T) {
	var calls atomic.Int32
	svc, mr := setupPriceTest(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"polkadot":{"usd":6.78}}`))
	})

	ctx := context.Background()

	price, err := svc.DotPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, "6.78", price.String())
	assert.Equal(t, int32(1), calls.Load())

	// 第二次命中缓存，不再请求行情接口
	price, err = svc.DotPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, "6.78", price.String())
	assert.Equal(t, int32(1), calls.Load())

	// 缓存过期后重新拉取
	mr.FastForward(2 * time.Hour)
	_, err = svc.DotPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPriceService_DotPrice_FallbackOnAPIError(t *testing.T) {
	svc, _ := setupPriceTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	price, err := svc.DotPrice(context.Background())

	// 行情接口不可用时返回兜底价格而不是错误
	require.NoError(t, err)
	assert.True(t, price.Equal(defaultDotPrice))
}

func TestPriceService_DotPrice_RejectsBadQuote(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"缺少 polkadot", `{"bitcoin":{"usd":60000}}`},
		{"缺少 usd", `{"polkadot":{"eur":6.0}}`},
		{"非正价格", `{"polkadot":{"usd":0}}`},
		{"非 JSON", `oops`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := setupPriceTest(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})

			price, err := svc.DotPrice(context.Background())

			require.NoError(t, err)
			assert.True(t, price.Equal(defaultDotPrice))
		})
	}
}
