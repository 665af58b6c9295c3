package main

import (
	"context"
	"fmt"
	"os"

	"github.com/devx-demo/orders-clients/internal/orders"
	"github.com/devx-demo/orders-clients/pkg/clickhouse"
	"github.com/devx-demo/orders-clients/pkg/kafka"
	"github.com/devx-demo/orders-clients/pkg/metrics"
	"github.com/devx-demo/orders-clients/pkg/serde"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	chorders "github.com/devx-demo/orders-clients/pkg/data/clickhouse/orders"
)

func listen(c *cli.Context) error {
	a, cleanup, err := setup(c, "listener", true)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signalContext()
	defer stop()

	srClient, err := a.schemaRegistry()
	if err != nil {
		return err
	}

	dec, err := serde.NewDeserializer(srClient)
	if err != nil {
		return err
	}
	defer dec.Close()

	var (
		sink   orders.Sink
		writer *chorders.BatchWriter
		checks []metrics.HealthCheck
	)
	if a.cfg.Store {
		chClient, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer chClient.Close()

		repo, err := chorders.NewRepository(ctx, chClient, a.cfg.StoreTable)
		if err != nil {
			return err
		}
		writer = chorders.NewBatchWriter(repo, a.log, a.metrics, a.cfg.StoreBatchSize, a.cfg.StoreFlushInterval)
		sink = orders.NewStore(writer)
		checks = append(checks, chClient.Ping)
	}

	proc := orders.NewOrderProcessor(dec, os.Stdout, sink, a.metrics)
	listener, err := kafka.NewListener(ctx, a.bundle.ConfigMap(), a.cfg.ConsumerConfig(), proc, a.log, a.metrics)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// The store outlives the listener so that its final flush sees every
	// processed record.
	storeCtx, stopStore := context.WithCancel(context.Background())
	defer stopStore()
	g.Go(func() error {
		defer stopStore()
		return listener.Start(gctx)
	})
	if writer != nil {
		g.Go(func() error {
			return writer.Run(storeCtx)
		})
	}
	a.serveMetrics(gctx, g, checks...)

	return wait(g, a.log)
}

func (a *app) openStore(ctx context.Context) (clickhouse.Client, error) {
	chCfg, err := clickhouse.LoadConfig()
	if err != nil {
		return nil, err
	}
	chClient, err := clickhouse.New(ctx, chCfg, a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to create ClickHouse client: %w", err)
	}
	return chClient, nil
}
