package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Spok95/activejob-metrics/internal/app"
	"github.com/Spok95/activejob-metrics/internal/config"
	"github.com/Spok95/activejob-metrics/internal/instrument"
	"github.com/Spok95/activejob-metrics/internal/jobmetrics"
	"github.com/Spok95/activejob-metrics/internal/logging"
	"github.com/Spok95/activejob-metrics/internal/metrics"
	"github.com/Spok95/activejob-metrics/internal/notify"
	"github.com/Spok95/activejob-metrics/internal/observability"
	"github.com/Spok95/activejob-metrics/internal/pgsource"
	"github.com/Spok95/activejob-metrics/internal/redissource"
	"github.com/Spok95/activejob-metrics/internal/runner"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve /metrics and ingest job events over HTTP, PostgreSQL and Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer lg.Closer()
	log := lg.Base

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, Version)
	if err != nil {
		log.Warn("sentry disabled", zap.Error(err))
	}
	defer flush()

	m, err := jobmetrics.NewMetrics(prometheus.DefaultRegisterer, jobmetrics.MetricsOpts{
		Namespace:   cfg.MetricsNamespace,
		DefaultTags: cfg.DefaultTags,
	})
	if err != nil {
		return err
	}

	hook := jobmetrics.Hook(jobmetrics.NopHook)
	if cfg.LogEvents {
		hook = jobmetrics.LogHook(lg.Component("events"))
	}
	h := jobmetrics.NewHandler(m, jobmetrics.WithHook(hook), jobmetrics.WithLogger(lg.Component("handler")))

	bus := notify.NewBus()
	defer instrument.Install(bus, h, lg.Component("instrument"))()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r := runner.New(ctx, lg.Component("runner"), cfg.SourceRestartDelay)

	var ping func(context.Context) error
	if cfg.DatabaseURL != "" {
		dsn := cfg.DatabaseURL
		r.Go("postgres", pgsource.New(dsn, bus, lg.Component("pgsource")).Run)
		ping = func(ctx context.Context) error { return pgsource.Ping(ctx, dsn) }
	}
	if cfg.RedisAddr != "" {
		rcfg := redissource.Config{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisChannelPrefix,
		}
		client, err := redissource.NewClient(rcfg)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		r.Go("redis", redissource.New(client, rcfg, bus, lg.Component("redissource")).Run)
	}

	app.StartHTTP(ctx, cfg.HTTPAddr, app.Deps{
		Bus:     bus,
		Metrics: metrics.Handler(),
		Ping:    ping,
		Log:     lg.Component("http"),
	})
	log.Info("jobmetrics started",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("namespace", cfg.MetricsNamespace),
		zap.Bool("postgres", cfg.DatabaseURL != ""),
		zap.Bool("redis", cfg.RedisAddr != ""),
		zap.String("version", Version))

	<-ctx.Done()
	r.Wait()
	log.Info("jobmetrics stopped")
	return nil
}
