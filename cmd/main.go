package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"aws-sqs-csv-utility/configs"
	"aws-sqs-csv-utility/internal/app/cli"
	"aws-sqs-csv-utility/internal/pkg/logger"
	"aws-sqs-csv-utility/internal/pkg/observability/metrics"
)

func main() {
	_ = logger.Setup("info", "console")

	cfg, err := configs.Parse()
	if err != nil {
		logger.Fatal("Failed to parse config: %s", err.Error())
	}

	if err := logger.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		logger.Fatal("Failed to set up logger: %s", err.Error())
	}
	defer logger.Sync()

	metrics.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRoot(&cli.App{Config: cfg, NewClient: cli.NewClient})
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("%s", err.Error())
		stop()
		logger.Sync()
		os.Exit(1)
	}
}
