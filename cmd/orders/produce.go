package main

import (
	"os"

	"github.com/devx-demo/orders-clients/internal/orders"
	"github.com/devx-demo/orders-clients/pkg/kafka"
	"github.com/devx-demo/orders-clients/pkg/order"
	"github.com/devx-demo/orders-clients/pkg/serde"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func produce(c *cli.Context) error {
	a, cleanup, err := setup(c, "producer", true)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signalContext()
	defer stop()

	if a.cfg.CreateTopic {
		if err := a.ensureTopic(ctx); err != nil {
			return err
		}
	}

	srClient, err := a.schemaRegistry()
	if err != nil {
		return err
	}

	ser, err := serde.NewSerializer(srClient, a.cfg.Topic, order.Schema())
	if err != nil {
		return err
	}
	defer ser.Close()
	a.log.Infow("registered order schema", "subject", serde.Subject(a.cfg.Topic), "schemaId", ser.SchemaID())

	pc := a.cfg.ProducerConfig()
	producer, err := kafka.NewProducer(ctx, pc.ConfigMap(a.bundle.ConfigMap()), a.log)
	if err != nil {
		return err
	}
	defer producer.Close(*pc.FlushTimeout)

	p := orders.NewProducer(producer, ser, a.cfg.Topic, a.cfg.Interval, os.Stdout, a.log, a.metrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return gctx.Err()
		case err := <-producer.Errors():
			return err
		}
	})
	a.serveMetrics(gctx, g)

	return wait(g, a.log)
}
