package orders

import (
	"context"
	"fmt"
	"io"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/devx-demo/orders-clients/pkg/metrics"
)

// Renderer turns a framed Avro value into its textual JSON form.
type Renderer interface {
	Render(topic string, payload []byte) ([]byte, error)
}

// Printer writes every polled record as one line of Avro JSON.
type Printer struct {
	r       Renderer
	out     io.Writer
	metrics *metrics.Metrics
}

func NewPrinter(r Renderer, out io.Writer, m *metrics.Metrics) *Printer {
	return &Printer{r: r, out: out, metrics: m}
}

// Handle matches kafka.RecordHandler.
func (p *Printer) Handle(_ context.Context, msg *cKafka.Message) error {
	text, err := p.r.Render(topicName(msg), msg.Value)
	if err != nil {
		p.metrics.IncSerdeError(metrics.OpRender)
		return fmt.Errorf("failed to render record at offset %v: %w", msg.TopicPartition.Offset, err)
	}
	_, err = fmt.Fprintln(p.out, string(text))
	return err
}

func topicName(msg *cKafka.Message) string {
	if msg.TopicPartition.Topic == nil {
		return ""
	}
	return *msg.TopicPartition.Topic
}
