package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/liuxiaoxue22/market/internal/app"
	"github.com/liuxiaoxue22/market/internal/config"
	"github.com/liuxiaoxue22/market/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: cfg.Service.Name,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := app.New(cfg).Run(); err != nil {
		logger.Fatal("application exited with error", zap.Error(err))
	}
}
