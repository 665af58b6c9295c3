package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/schemaregistry"
	"github.com/devx-demo/orders-clients/pkg/config"
	"github.com/devx-demo/orders-clients/pkg/metrics"
	"github.com/devx-demo/orders-clients/pkg/serde"
	"github.com/devx-demo/orders-clients/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const metricsShutdownWindow = 5 * time.Second

// app is the state shared by the long-running commands.
type app struct {
	cfg      *Config
	log      *zap.SugaredLogger
	bundle   config.Bundle
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

// setup builds the logger, bundle and metrics of a command. The returned
// cleanup syncs the logger.
func setup(c *cli.Context, client string, needRegistry bool) (*app, func(), error) {
	cfg := buildConfig(c)

	log, err := utils.NewSugaredLogger(client, cfg.Verbose)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = log.Sync() //nolint:errcheck // best-effort flush; ignore sync errors
	}

	bundle, err := loadBundle(cfg.ConfigPath, needRegistry)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	log.Infow("config",
		"bundle", cfg.ConfigPath,
		"bootstrapServers", bundle.BootstrapServers,
		"securityProtocol", bundle.SecurityProtocol,
		"schemaRegistry", bundle.SchemaRegistryURL,
		"topic", cfg.Topic,
		"verbose", cfg.Verbose,
	)
	log.Debugw("connection bundle", "bundle", bundle.Redacted())

	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, cfg.MetricsLabels(client))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return &app{cfg: cfg, log: log, bundle: bundle, registry: registry, metrics: m}, cleanup, nil
}

func (a *app) schemaRegistry() (schemaregistry.Client, error) {
	return serde.NewClient(a.bundle.SchemaRegistryConfig())
}

// serveMetrics runs the metrics server inside g until gctx is done. A port of
// zero disables it.
func (a *app) serveMetrics(gctx context.Context, g *errgroup.Group, checks ...metrics.HealthCheck) {
	if a.cfg.MetricsPort == 0 {
		return
	}
	server := metrics.NewServer(a.cfg.MetricsAddr(), a.registry, checks...)
	errCh := server.Start()
	a.log.Infof("metrics server listening on http://%s/metrics", a.cfg.MetricsAddr())

	g.Go(func() error {
		select {
		case <-gctx.Done():
			ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownWindow)
			defer cancel()
			return server.Shutdown(ctx)
		case err := <-errCh:
			return err
		}
	})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// wait collapses the errgroup result: cancellation is a clean exit.
func wait(g *errgroup.Group, log *zap.SugaredLogger) error {
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		log.Infow("exiting due to context cancellation")
		return nil
	}
	if err != nil {
		log.Errorw("run failed", "error", err)
		return err
	}
	log.Info("shutting down")
	return nil
}
