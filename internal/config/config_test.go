package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/nonexistent/config.yaml")
	t.Setenv("MARKET_ACCOUNT", "13UVJyLnbVp9RBZYFwFGyDvVd1y27Tt8tkntv6Q7JVPhFsTB")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dot20-market", cfg.Service.Name)
	assert.Equal(t, 8080, cfg.Service.HTTPPort)
	assert.Equal(t, "dot-20", cfg.Chain.ProtocolID)
	assert.Equal(t, int32(10), cfg.Chain.Decimals)
	assert.True(t, cfg.Market.MinSellTotalPrice.Equal(decimal.NewFromInt(1)))
	assert.True(t, cfg.Market.ServiceFeeRate.Equal(decimal.NewFromFloat(0.03)))
	assert.True(t, cfg.Worker.Enabled)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service:
  http_port: 9090
chain:
  market_account: file-account
market:
  service_fee_rate: "0.05"
`), 0o644))

	t.Setenv("CONFIG_PATH", path)
	// 环境变量优先于配置文件
	t.Setenv("MARKET_ACCOUNT", "env-account")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Service.HTTPPort)
	assert.Equal(t, "env-account", cfg.Chain.MarketAccount)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Market.ServiceFeeRate.Equal(decimal.NewFromFloat(0.05)))
}

func TestLoad_RequiresMarketAccount(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/nonexistent/config.yaml")
	t.Setenv("MARKET_ACCOUNT", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	cfg := defaultConfig()
	cfg.Chain.MarketAccount = "some-account"
	assert.NoError(t, cfg.Validate())

	cfg.Market.ServiceFeeRate = decimal.NewFromFloat(-0.01)
	assert.Error(t, cfg.Validate())
}
