// Package main runs the trendsync service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"trendsync/internal/config"
	"trendsync/internal/server"
	"trendsync/internal/trends"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "", "Path to config file")
	once := flag.Bool("once", false, "Run one pipeline pass and exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := server.Build(ctx, &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build application failed: %v\n", err)
		return 1
	}

	if *once {
		outcome, err := app.RunOnce(ctx)
		if closeErr := app.Close(); closeErr != nil {
			zap.L().Warn("close failed", zap.Error(closeErr))
		}
		if err != nil {
			return 1
		}
		if outcome.Status == trends.RunStatusPartialFailure {
			return 2
		}
		return 0
	}

	if err := app.Run(ctx); err != nil {
		zap.L().Error("run failed", zap.Error(err))
		return 1
	}
	return 0
}
