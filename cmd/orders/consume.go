package main

import (
	"os"

	"github.com/devx-demo/orders-clients/internal/orders"
	"github.com/devx-demo/orders-clients/pkg/kafka"
	"github.com/devx-demo/orders-clients/pkg/serde"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func consume(c *cli.Context) error {
	a, cleanup, err := setup(c, "consumer", true)
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

	renderer, err := serde.NewTextRenderer(srClient)
	if err != nil {
		return err
	}

	poller, err := kafka.NewPoller(a.bundle.ConfigMap(), a.cfg.ConsumerConfig(), a.log, a.metrics)
	if err != nil {
		return err
	}
	printer := orders.NewPrinter(renderer, os.Stdout, a.metrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.Run(gctx, printer.Handle)
	})
	a.serveMetrics(gctx, g)

	return wait(g, a.log)
}
