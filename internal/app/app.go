// Package app assembles the application from configuration: provider,
// storage, handlers, orchestrator, metrics endpoint and the scheduled
// retention cleanup.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/aatumaykin/feedpilot/internal/actions"
	"github.com/aatumaykin/feedpilot/internal/agent"
	"github.com/aatumaykin/feedpilot/internal/config"
	"github.com/aatumaykin/feedpilot/internal/fetch"
	"github.com/aatumaykin/feedpilot/internal/handlers"
	"github.com/aatumaykin/feedpilot/internal/llm"
	"github.com/aatumaykin/feedpilot/internal/logger"
	"github.com/aatumaykin/feedpilot/internal/memory"
	"github.com/aatumaykin/feedpilot/internal/metrics"
	"github.com/aatumaykin/feedpilot/internal/orchestrator"
	"github.com/aatumaykin/feedpilot/internal/retry"
)

const metricsNamespace = "feedpilot"

// App owns all long-lived components.
type App struct {
	cfg          *config.Config
	log          *logger.Logger
	provider     llm.Provider
	store        *memory.Manager
	orchestrator *orchestrator.Orchestrator
	metrics      *metrics.PrometheusMetrics
	cron         *cron.Cron
	metricsSrv   *http.Server
}

// New builds the application. Accounts are loaded, the provider selected by
// configuration and every component wired together.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	accounts, err := config.LoadAccounts(cfg.Accounts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	provider, err := buildProvider(cfg, log)
	if err != nil {
		return nil, err
	}

	store, err := memory.NewManager(cfg.Storage.Path, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var m *metrics.PrometheusMetrics
	if cfg.Metrics.Enabled {
		m = metrics.InitPrometheusMetrics(metricsNamespace, prometheus.DefaultRegisterer)
	}

	executor := actions.NewNoop(log)
	var fetcher *fetch.Fetcher
	if cfg.Fetch.Enabled {
		fetcher = fetch.New(cfg.Fetch, log)
	}

	registry := handlers.NewRegistry()
	registry.Register(handlers.NewContentCreator(provider, cfg.Agent.Model, executor, log))
	registry.Register(handlers.NewContentCurator(provider, cfg.Agent.Model, fetcher, log))
	registry.Register(handlers.NewEngagementManager(provider, cfg.Agent.Model, executor, log))
	registry.Register(handlers.NewPerformanceAnalyst(provider, cfg.Agent.Model, registry, log))

	core := agent.NewCore(provider, nil, log, agent.CoreConfig{
		Model:              cfg.Agent.Model,
		Temperature:        cfg.Agent.Temperature,
		MaxTokens:          cfg.Agent.MaxTokens,
		DecisionThreshold:  cfg.Agent.DecisionThreshold,
		MaxConcurrentTasks: cfg.Agent.MaxConcurrentTasks,
		CallTimeout:        time.Duration(cfg.Agent.TimeoutSeconds) * time.Second,
		Retry:              retry.DefaultConfig(),
	})

	orch := orchestrator.New(core, registry, store, provider, m, log, orchestrator.Config{
		CycleInterval:         time.Duration(cfg.Agent.CycleIntervalSeconds) * time.Second,
		MaxConcurrentAccounts: cfg.Agent.MaxConcurrentAccounts,
		Model:                 cfg.Agent.Model,
	})

	if err := orch.Initialize(accounts); err != nil {
		return nil, err
	}

	app := &App{
		cfg:          cfg,
		log:          log,
		provider:     provider,
		store:        store,
		orchestrator: orch,
		metrics:      m,
	}

	if cfg.Cleanup.Enabled {
		app.cron = cron.New()
		_, err := app.cron.AddFunc(cfg.Cleanup.Schedule, func() {
			removed, err := store.Cleanup(cfg.Cleanup.RetentionDays)
			if err != nil {
				log.Error("scheduled cleanup failed", err)
				return
			}
			log.Info("scheduled cleanup finished",
				logger.Field{Key: "removed_files", Value: removed},
			)
		})
		if err != nil {
			return nil, fmt.Errorf("invalid cleanup schedule %q: %w", cfg.Cleanup.Schedule, err)
		}
	}

	return app, nil
}

func buildProvider(cfg *config.Config, log *logger.Logger) (llm.Provider, error) {
	switch cfg.Agent.Provider {
	case "mock":
		return llm.NewEchoProvider(), nil
	case "zai":
		var limiter *llm.TokenBucketRateLimiter
		if rpm := cfg.LLM.RateLimit.RequestsPerMinute; rpm > 0 {
			limiter = llm.NewTokenBucketRateLimiter(rpm, time.Minute, rpm)
		}
		return llm.NewZAIProvider(llm.ZAIConfig{
			APIKey:         cfg.LLM.ZAI.APIKey,
			BaseURL:        cfg.LLM.ZAI.BaseURL,
			Model:          cfg.Agent.Model,
			TimeoutSeconds: cfg.LLM.ZAI.TimeoutSeconds,
		}, limiter, log), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Agent.Provider)
	}
}

// Orchestrator exposes the orchestrator for the CLI commands.
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orchestrator
}

// Store exposes the persistence layer for the CLI commands.
func (a *App) Store() *memory.Manager {
	return a.store
}

// Config exposes the loaded configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Run starts the metrics endpoint, the cleanup schedule and continuous mode.
// It blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Metrics.Enabled {
		a.startMetricsServer()
	}
	if a.cron != nil {
		a.cron.Start()
		a.log.Info("cleanup schedule started",
			logger.Field{Key: "schedule", Value: a.cfg.Cleanup.Schedule},
		)
	}

	err := a.orchestrator.RunContinuousMode(ctx)
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func (a *App) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.metricsSrv = &http.Server{
		Addr:    a.cfg.Metrics.ListenAddr,
		Handler: mux,
	}
	go func() {
		a.log.Info("metrics endpoint listening",
			logger.Field{Key: "addr", Value: a.cfg.Metrics.ListenAddr},
		)
		if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("metrics endpoint failed", err)
		}
	}()
}

// Shutdown stops all components gracefully.
func (a *App) Shutdown(ctx context.Context) {
	a.orchestrator.Stop()
	if a.cron != nil {
		cronCtx := a.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
		}
	}
	if a.metricsSrv != nil {
		if err := a.metricsSrv.Shutdown(ctx); err != nil {
			a.log.Warn("metrics endpoint shutdown failed",
				logger.Field{Key: "error", Value: err.Error()},
			)
		}
	}
	a.log.Info("application stopped")
}
