// Package app is the gateway's dependency-injection container: it wires
// every domain/infrastructure component into one running instance and
// exposes the Start/Stop lifecycle both cmd/gateway and cmd/llmuxctl's
// "serve" subcommand drive.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/soilSpoon/llmux/internal/dispatch"
	"github.com/soilSpoon/llmux/internal/domain/account"
	"github.com/soilSpoon/llmux/internal/domain/cooldown"
	"github.com/soilSpoon/llmux/internal/domain/router"
	"github.com/soilSpoon/llmux/internal/domain/signature"
	"github.com/soilSpoon/llmux/internal/domain/signature/sqlitestore"
	"github.com/soilSpoon/llmux/internal/domain/thinking"
	"github.com/soilSpoon/llmux/internal/infrastructure/config"
	"github.com/soilSpoon/llmux/internal/infrastructure/credentials"
	"github.com/soilSpoon/llmux/internal/infrastructure/metrics"
	"github.com/soilSpoon/llmux/internal/infrastructure/upstream"
	httpserver "github.com/soilSpoon/llmux/internal/interfaces/http"
	"github.com/soilSpoon/llmux/internal/retrydriver"
)

// App is the assembled gateway: every long-lived component plus the HTTP
// server that fronts them.
type App struct {
	Config     *config.Config
	Router     *router.Router
	Cooldown   *cooldown.Manager
	Accounts   *account.Manager
	Dispatcher *dispatch.Dispatcher

	server  *httpserver.Server
	logger  *zap.Logger
	backend *sqlitestore.Store
}

// NewFromConfig builds the App's dependency graph from an already-loaded
// Config. watchRouting is called with the Router once constructed; pass a
// closure that calls config.WatchRouting with the *viper.Viper instance
// config.Load returned, or nil to disable hot reload (e.g. for a one-shot
// CLI invocation).
func NewFromConfig(cfg *config.Config, watchRouting func(*router.Router), logger *zap.Logger) (*App, error) {
	sigStorePath := filepath.Join(config.DefaultConfigDir(), "signatures.db")
	if err := os.MkdirAll(filepath.Dir(sigStorePath), 0o755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	backend, err := sqlitestore.Open(sigStorePath)
	if err != nil {
		return nil, fmt.Errorf("open signature store: %w", err)
	}

	sigCache := signature.NewCache(signature.WithBackend(backend))
	sigStore := signature.NewStore(backend)
	globalSlot := signature.NewGlobalSlot()
	thinkingEngine := thinking.New(globalSlot, sigCache)

	cooldownMgr := cooldown.New()
	accountMgr := account.New()
	rtr := router.New(cooldownMgr, config.BuildRouterMappings(cfg))
	if watchRouting != nil {
		watchRouting(rtr)
	}

	creds := credentials.NewEnvProvider(map[string]string{
		"openai-web": cfg.AMP.UpstreamURL,
	})
	accountsPerProvider := creds.AccountCount

	registry := prometheus.NewRegistry()
	metricsCollector := metrics.New(logger, noop.NewMeterProvider(), registry)

	routerAdapter := retrydriver.RouterAdapter{Router: rtr}
	retryDriver := retrydriver.New(routerAdapter, accountMgr, accountsPerProvider, logger)
	retryDriver.Metrics = metricsCollector

	upstreamClient := upstream.New(upstream.Config{}, logger)

	serverSession := signature.NewServerSessionID()

	dispatcher := &dispatch.Dispatcher{
		Router:                rtr,
		RetryDriver:           retryDriver,
		Thinking:              thinkingEngine,
		SigCache:              sigCache,
		SigStore:              sigStore,
		ServerSession:         serverSession,
		Credentials:           creds,
		Upstream:              upstreamClient,
		Metrics:               metricsCollector,
		Logger:                logger,
		AccountsPerProvider:   accountsPerProvider,
		AntigravityFallbacks:  creds.AntigravityFallbackURLs(),
		AntigravityStreamPath: "/v1internal:streamGenerateContent",
	}

	srv := httpserver.NewServer(httpserver.Config{
		Host:            cfg.Server.Hostname,
		Port:            cfg.Server.Port,
		Mode:            "production",
		AdminJWTSecret:  os.Getenv("LLMUX_ADMIN_JWT_SECRET"),
		MetricsGatherer: registry,
		AMPUpstreamURL:  ampUpstream(cfg),
	}, dispatcher, rtr, cooldownMgr, logger)

	return &App{
		Config:     cfg,
		Router:     rtr,
		Cooldown:   cooldownMgr,
		Accounts:   accountMgr,
		Dispatcher: dispatcher,
		server:     srv,
		logger:     logger,
		backend:    backend,
	}, nil
}

// ampUpstream returns the management-passthrough target, empty unless the
// amp section is enabled with an upstream URL.
func ampUpstream(cfg *config.Config) string {
	if !cfg.AMP.Enabled {
		return ""
	}
	return cfg.AMP.UpstreamURL
}

// Start begins serving HTTP traffic. Non-blocking; the caller owns the
// shutdown signal wait loop.
func (a *App) Start(ctx context.Context) error {
	return a.server.Start(ctx)
}

// Stop gracefully shuts the HTTP server down and releases the signature
// store handle.
func (a *App) Stop(ctx context.Context) error {
	err := a.server.Stop(ctx)
	if closeErr := a.backend.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
