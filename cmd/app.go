package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/harhit22/new-auto-attendace/internal/config"
	"github.com/harhit22/new-auto-attendace/internal/enroll"
	"github.com/harhit22/new-auto-attendace/internal/inference"
	"github.com/harhit22/new-auto-attendace/internal/liveness"
	"github.com/harhit22/new-auto-attendace/internal/logging"
	"github.com/harhit22/new-auto-attendace/internal/matcher"
	"github.com/harhit22/new-auto-attendace/internal/metrics"
	"github.com/harhit22/new-auto-attendace/internal/pose"
	"github.com/harhit22/new-auto-attendace/internal/spoof"
	"github.com/harhit22/new-auto-attendace/internal/store"
	"github.com/harhit22/new-auto-attendace/internal/store/postgres"
	"github.com/harhit22/new-auto-attendace/internal/verify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds the wired services shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	models   *inference.Models
	pool     *postgres.Pool
	repo     *postgres.Repository
	gallery  *store.Gallery
	notifier *store.Notifier
	pipeline *verify.Pipeline
	enroller *enroll.Service
}

// newLogger builds the logger from config, letting the persistent flags win.
func newLogger(cmd *cobra.Command, cfg config.LogConfig) (*zap.Logger, error) {
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Format = v
	}
	return logging.New(cfg.Level, cfg.Format)
}

// newApp loads configuration, connects to PostgreSQL and Redis, loads the
// gallery and wires the pipeline. withRedis is false for one-shot commands.
func newApp(ctx context.Context, cmd *cobra.Command, withRedis bool) (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	logger, err := newLogger(cmd, cfg.Log)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	a := &app{cfg: cfg, logger: logger, registry: registry, metrics: m}

	logger.Info("connecting to PostgreSQL")
	a.pool, err = postgres.Open(ctx, &cfg.Database)
	if err != nil {
		a.close()
		return nil, err
	}
	a.repo = postgres.NewRepository(a.pool)

	a.gallery = store.NewGallery(
		store.WithIndexDir(cfg.Database.HNSWIndexDir),
		store.WithLogger(logger),
		store.WithMetrics(m),
	)
	if err := a.gallery.Reload(ctx, a.repo); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to load gallery: %w", err)
	}

	if withRedis {
		a.notifier, err = store.NewNotifier(ctx, cfg.Redis, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		if a.notifier == nil {
			logger.Info("REDIS_URL not set, gallery change notifications disabled")
		}
	}

	th := cfg.Thresholds
	a.models = inference.NewModels(cfg, m)
	a.pipeline = verify.New(verify.Components{
		Liveness:  liveness.New(a.models, th.Liveness, logger, m),
		Spoof:     spoof.New(a.models, th.Spoof, logger, m),
		Locator:   a.models,
		Pose:      pose.New(th.Pose),
		Describer: a.models,
		Matcher:   matcher.New(th.Match, logger, m),
		Gallery:   a.gallery,
	}, logger, m)
	a.enroller = enroll.New(a.models, a.repo, a.gallery, a.notifier, th.Enroll, logger)

	return a, nil
}

func (a *app) close() {
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			a.logger.Warn("failed to close database", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
