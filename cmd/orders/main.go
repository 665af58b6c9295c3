package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "orders",
		Usage: "Produce and consume Avro order events on Kafka",
		Commands: []*cli.Command{
			{
				Name:   "create-topic",
				Usage:  "Create the orders topic if it does not exist",
				Flags:  topicFlags(),
				Action: createTopic,
			},
			{
				Name:   "produce",
				Usage:  "Publish a random order on every interval",
				Flags:  produceFlags(),
				Action: produce,
			},
			{
				Name:   "consume",
				Usage:  "Poll the orders topic and print every record as Avro JSON",
				Flags:  consumeFlags(),
				Action: consume,
			},
			{
				Name:   "listen",
				Usage:  "Run the listener container and print decoded orders",
				Flags:  listenFlags(),
				Action: listen,
			},
		},
	}
}
