package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/deusflow/roomwatch/internal/app"
	"github.com/deusflow/roomwatch/internal/config"
	"github.com/deusflow/roomwatch/internal/logger"
)

func main() {
	once := flag.Bool("once", false, "run one cycle per handler and exit")
	handlersPath := flag.String("config", "", "handlers file (overrides HANDLERS_CONFIG_PATH)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Init(cfg.Debug, cfg.LogFormat)

	if *handlersPath != "" {
		cfg.HandlersConfigPath = *handlersPath
	}
	defs, err := config.LoadHandlers(cfg.HandlersConfigPath, cfg.PollInterval)
	if err != nil {
		logger.Error("could not load handlers", "path", cfg.HandlersConfigPath, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, defs, nil, app.WithLogger(logger.Logger))
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if *once {
		if err := a.RunOnce(ctx); err != nil {
			logger.Error("run finished with errors", "error", err)
			a.Close()
			os.Exit(1)
		}
		return
	}

	logger.Info("roomwatch started", "handlers", len(defs), "target_region", cfg.TargetRegion)
	if err := a.Run(ctx); err != nil {
		logger.Error("roomwatch stopped with error", "error", err)
		a.Close()
		os.Exit(1)
	}
	logger.Info("roomwatch stopped")
}
