package main

import (
	"context"
	"fmt"

	"github.com/devx-demo/orders-clients/pkg/kafka"
	"github.com/urfave/cli/v2"
)

func createTopic(c *cli.Context) error {
	a, cleanup, err := setup(c, "topic", false)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signalContext()
	defer stop()

	return a.ensureTopic(ctx)
}

// ensureTopic creates the configured topic unless it already exists.
func (a *app) ensureTopic(ctx context.Context) error {
	admin, err := kafka.NewAdminClient(a.bundle.ConfigMap())
	if err != nil {
		return err
	}
	defer admin.Close()

	outcome, err := kafka.EnsureTopic(ctx, admin, a.cfg.TopicConfig(), a.log)
	a.metrics.RecordTopicProvisioning(string(outcome), err)
	if err != nil {
		return fmt.Errorf("failed to ensure topic %s: %w", a.cfg.Topic, err)
	}
	a.log.Infow("topic ready", "topic", a.cfg.Topic, "outcome", outcome)
	return nil
}
