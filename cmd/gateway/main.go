package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/soilSpoon/llmux/internal/app"
	"github.com/soilSpoon/llmux/internal/domain/router"
	"github.com/soilSpoon/llmux/internal/infrastructure/config"
	"github.com/soilSpoon/llmux/internal/infrastructure/logger"
)

const (
	appName    = "llmux"
	appVersion = "0.1.0"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("%s v%s\n", appName, appVersion)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	log, err := logger.NewLogger(logger.Config{Level: "info", Format: "json", OutputPath: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting gateway", zap.String("name", appName), zap.String("version", appVersion))

	cfg, v, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw, err := app.NewFromConfig(cfg, func(rtr *router.Router) {
		config.WatchRouting(v, rtr, log)
	}, log)
	if err != nil {
		log.Fatal("failed to initialize gateway", zap.Error(err))
	}

	if err := gw.Start(ctx); err != nil {
		log.Fatal("failed to start server", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := gw.Stop(shutdownCtx); err != nil {
		log.Error("error during shutdown", zap.Error(err))
		os.Exit(1)
	}

	log.Info("gateway stopped successfully")
}

func printUsage() {
	fmt.Printf(`%s v%s

Usage:
  llmux           Start the gateway server
  llmux version   Show version
  llmux help      Show this help

Configuration:
  $HOME/.llmux/config.json
`, appName, appVersion)
}
