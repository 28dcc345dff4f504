// Package config 提供服务配置加载
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config 服务配置
type Config struct {
	Service  ServiceConfig  `yaml:"service" json:"service"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka" json:"kafka"`
	Chain    ChainConfig    `yaml:"chain" json:"chain"`
	Market   MarketConfig   `yaml:"market" json:"market"`
	Indexer  IndexerConfig  `yaml:"indexer" json:"indexer"`
	Worker   WorkerConfig   `yaml:"worker" json:"worker"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

// ServiceConfig 服务配置
type ServiceConfig struct {
	Name     string `yaml:"name" json:"name"`
	HTTPPort int    `yaml:"http_port" json:"http_port"`
	Env      string `yaml:"env" json:"env"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host                   string `yaml:"host" json:"host"`
	Port                   int    `yaml:"port" json:"port"`
	User                   string `yaml:"user" json:"user"`
	Password               string `yaml:"password" json:"password"`
	Database               string `yaml:"database" json:"database"`
	MaxIdleConns           int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns           int    `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" json:"conn_max_lifetime_minutes"`
}

// DSN 返回 Postgres 连接串
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Database)
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// Addr 返回 host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Brokers []string `yaml:"brokers" json:"brokers"`
}

// ChainConfig 链网关配置
type ChainConfig struct {
	// Endpoint 节点 websocket 地址
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// Decimals 基础币种精度 (DOT 为 10)
	Decimals int32 `yaml:"decimals" json:"decimals"`
	// SS58Prefix 地址网络前缀 (Polkadot 为 0)
	SS58Prefix uint16 `yaml:"ss58_prefix" json:"ss58_prefix"`
	// ProtocolID 铭文协议标识 (remark 载荷中的 "p" 字段)
	ProtocolID string `yaml:"protocol_id" json:"protocol_id"`
	// MarketAccount 平台托管账户地址
	MarketAccount string `yaml:"market_account" json:"market_account"`
	// MarketAccountSecret 平台托管账户私钥 (助记词或 seed)
	MarketAccountSecret string `yaml:"market_account_secret" json:"market_account_secret"`
	// SubmitTimeoutSec 提交并等待最终化的超时 (秒)
	SubmitTimeoutSec int `yaml:"submit_timeout_sec" json:"submit_timeout_sec"`
	// RelayTransferPlanck 平台转铭文给买家时附带的转账金额 (Planck)
	RelayTransferPlanck uint64 `yaml:"relay_transfer_planck" json:"relay_transfer_planck"`
}

// MarketConfig 市场业务配置
type MarketConfig struct {
	// MinSellTotalPrice 最小挂单总价 (DOT)
	MinSellTotalPrice decimal.Decimal `yaml:"min_sell_total_price" json:"min_sell_total_price"`
	// ServiceFeeRate 买单服务费率 (fee = ceil(totalPrice * rate))
	ServiceFeeRate decimal.Decimal `yaml:"service_fee_rate" json:"service_fee_rate"`
	// PriceAPIURL DOT 行情接口地址
	PriceAPIURL string `yaml:"price_api_url" json:"price_api_url"`
	// PriceCacheTTLSec 行情缓存时长 (秒)
	PriceCacheTTLSec int `yaml:"price_cache_ttl_sec" json:"price_cache_ttl_sec"`
}

// IndexerConfig 铭文索引服务配置
type IndexerConfig struct {
	BaseURL    string `yaml:"base_url" json:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec" json:"timeout_sec"`
}

// WorkerConfig 对账 Worker 配置
type WorkerConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// SweepIntervalSec 各扫描任务的执行间隔 (秒)
	SweepIntervalSec int `yaml:"sweep_interval_sec" json:"sweep_interval_sec"`
	// BatchSize 每轮扫描的最大订单数
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// LockTTLSec 分布式锁 TTL (秒)
	LockTTLSec int `yaml:"lock_ttl_sec" json:"lock_ttl_sec"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Load 加载配置：默认值 <- 配置文件 <- 环境变量
func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验关键配置
func (c *Config) Validate() error {
	if c.Chain.MarketAccount == "" {
		return fmt.Errorf("chain.market_account is required")
	}
	if c.Market.ServiceFeeRate.IsNegative() {
		return fmt.Errorf("market.service_fee_rate must not be negative")
	}
	if c.Market.MinSellTotalPrice.IsNegative() {
		return fmt.Errorf("market.min_sell_total_price must not be negative")
	}
	return nil
}

// defaultConfig 返回默认配置
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "dot20-market",
			HTTPPort: 8080,
			Env:      "dev",
		},
		Database: DatabaseConfig{
			Host:                   "localhost",
			Port:                   5432,
			User:                   "postgres",
			Password:               "postgres",
			Database:               "dot20_market",
			MaxIdleConns:           10,
			MaxOpenConns:           50,
			ConnMaxLifetimeMinutes: 30,
		},
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     6379,
			DB:       0,
			PoolSize: 50,
		},
		Kafka: KafkaConfig{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
		},
		Chain: ChainConfig{
			Endpoint:            "wss://rpc.polkadot.io",
			Decimals:            10,
			ProtocolID:          "dot-20",
			SubmitTimeoutSec:    120,
			RelayTransferPlanck: 10_000_000, // 0.001 DOT
		},
		Market: MarketConfig{
			MinSellTotalPrice: decimal.NewFromInt(1),
			ServiceFeeRate:    decimal.NewFromFloat(0.03),
			PriceAPIURL:       "https://api.coingecko.com/api/v3/simple/price?ids=polkadot&vs_currencies=usd",
			PriceCacheTTLSec:  3600,
		},
		Indexer: IndexerConfig{
			BaseURL:    "http://localhost:3030",
			TimeoutSec: 10,
		},
		Worker: WorkerConfig{
			Enabled:          true,
			SweepIntervalSec: 30,
			BatchSize:        100,
			LockTTLSec:       60,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadFromEnv 从环境变量覆盖配置
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Service.HTTPPort = port
		}
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Redis.Port = port
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("CHAIN_ENDPOINT"); v != "" {
		cfg.Chain.Endpoint = v
	}
	if v := os.Getenv("MARKET_ACCOUNT"); v != "" {
		cfg.Chain.MarketAccount = v
	}
	if v := os.Getenv("MARKET_ACCOUNT_SECRET"); v != "" {
		cfg.Chain.MarketAccountSecret = v
	}
	if v := os.Getenv("INDEXER_BASE_URL"); v != "" {
		cfg.Indexer.BaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
