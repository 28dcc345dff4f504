// Package app 负责应用装配与生命周期管理
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/liuxiaoxue22/market/internal/chain"
	"github.com/liuxiaoxue22/market/internal/chain/rpc"
	"github.com/liuxiaoxue22/market/internal/config"
	"github.com/liuxiaoxue22/market/internal/handler"
	"github.com/liuxiaoxue22/market/internal/indexer"
	"github.com/liuxiaoxue22/market/internal/kafka"
	"github.com/liuxiaoxue22/market/internal/model"
	"github.com/liuxiaoxue22/market/internal/parser"
	"github.com/liuxiaoxue22/market/internal/publisher"
	"github.com/liuxiaoxue22/market/internal/repository"
	"github.com/liuxiaoxue22/market/internal/scheduler"
	"github.com/liuxiaoxue22/market/internal/service"
	"github.com/liuxiaoxue22/market/internal/worker"
	"github.com/liuxiaoxue22/market/pkg/logger"
)

// App 应用程序
type App struct {
	cfg *config.Config

	// 基础设施
	db          *gorm.DB
	redisClient redis.UniversalClient
	producer    *kafka.Producer
	gateway     chain.Gateway

	// 仓储与服务
	orderRepo    repository.OrderRepository
	orderService service.OrderService
	tradeService service.TradeService
	priceService service.PriceService

	// HTTP 与调度
	httpServer    *http.Server
	healthHandler *handler.HealthHandler
	sched         *scheduler.Scheduler
}

// New 创建应用
func New(cfg *config.Config) *App {
	return &App{cfg: cfg}
}

// Run 运行应用，阻塞直到收到退出信号
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.initInfrastructure(ctx); err != nil {
		return fmt.Errorf("init infrastructure: %w", err)
	}
	a.initServices()

	if err := a.startHTTPServer(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	if a.cfg.Worker.Enabled {
		if err := a.startWorkers(); err != nil {
			return fmt.Errorf("start workers: %w", err)
		}
	}

	a.healthHandler.SetReady(true)
	logger.Info("application started",
		zap.String("service", a.cfg.Service.Name),
		zap.Int("http_port", a.cfg.Service.HTTPPort),
	)

	a.waitForSignal(cancel)
	return a.shutdown()
}

// initInfrastructure 初始化基础设施
func (a *App) initInfrastructure(ctx context.Context) error {
	db, err := gorm.Open(postgres.Open(a.cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(a.cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(a.cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(a.cfg.Database.ConnMaxLifetimeMinutes) * time.Minute)
	a.db = db
	logger.Info("postgres connected")

	if err := db.AutoMigrate(&model.Order{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	a.redisClient = redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr(),
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		PoolSize: a.cfg.Redis.PoolSize,
	})
	if err := a.redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("redis connected")

	if a.cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(kafka.DefaultProducerConfig(a.cfg.Kafka.Brokers))
		if err != nil {
			return fmt.Errorf("create kafka producer: %w", err)
		}
		a.producer = producer
	}

	gateway, err := rpc.NewClient(&a.cfg.Chain)
	if err != nil {
		return fmt.Errorf("connect to chain: %w", err)
	}
	a.gateway = gateway
	logger.Info("chain gateway connected", zap.String("endpoint", a.cfg.Chain.Endpoint))

	return nil
}

// initServices 初始化仓储与服务
func (a *App) initServices() {
	a.orderRepo = repository.NewOrderRepository(a.db)

	var pub service.OrderPublisher
	if a.producer != nil {
		pub = publisher.NewOrderPublisher(a.producer, a.cfg.Chain.Decimals)
	}

	p := parser.New(a.cfg.Chain.ProtocolID)
	idx := indexer.NewClient(&a.cfg.Indexer)

	a.orderService = service.NewOrderService(a.orderRepo, a.gateway, p, pub, &a.cfg.Chain, &a.cfg.Market)
	a.tradeService = service.NewTradeService(a.orderRepo, a.gateway, idx, pub, a.cfg.Worker.BatchSize)
	a.priceService = service.NewPriceService(a.redisClient, &a.cfg.Market)
}

// startHTTPServer 启动 HTTP 服务器
func (a *App) startHTTPServer() error {
	a.healthHandler = handler.NewHealthHandler(&handler.HealthDeps{
		DB:    dbPinger{a.db},
		Redis: redisPinger{a.redisClient},
	})

	engine := NewRouter(&RouterDeps{
		Order:  handler.NewOrderHandler(a.orderService),
		Market: handler.NewMarketHandler(a.priceService),
		Health: a.healthHandler,
		Env:    a.cfg.Service.Env,
	})

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Service.HTTPPort),
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 3 * time.Minute, // 买卖接口会等待链上最终化
	}

	go func() {
		logger.Info("http server started", zap.Int("port", a.cfg.Service.HTTPPort))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(err))
		}
	}()
	return nil
}

// startWorkers 启动对账调度
func (a *App) startWorkers() error {
	a.sched = scheduler.NewScheduler(a.redisClient)
	if err := worker.Register(a.sched, a.tradeService, &a.cfg.Worker, &a.cfg.Chain); err != nil {
		return err
	}
	a.sched.Start()
	return nil
}

// waitForSignal 等待系统信号
func (a *App) waitForSignal(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal", zap.String("signal", sig.String()))
	cancel()
}

// shutdown 优雅关闭
func (a *App) shutdown() error {
	logger.Info("shutting down...")
	if a.healthHandler != nil {
		a.healthHandler.SetReady(false)
	}

	if a.sched != nil {
		a.sched.Stop()
	}

	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown http server failed", zap.Error(err))
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			logger.Error("close kafka producer failed", zap.Error(err))
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			logger.Error("close redis failed", zap.Error(err))
		}
	}

	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				logger.Error("close database failed", zap.Error(err))
			}
		}
	}

	logger.Info("application stopped")
	return nil
}

// dbPinger 数据库健康检查适配
type dbPinger struct {
	db *gorm.DB
}

func (p dbPinger) Ping() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// redisPinger Redis 健康检查适配
type redisPinger struct {
	client redis.UniversalClient
}

func (p redisPinger) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return p.client.Ping(ctx).Err()
}
