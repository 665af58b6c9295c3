package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "orders"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"

	Producer       = "producer"
	Consumer       = "consumer"
	KafkaConsumer  = "kafka_consumer"
	KafkaAdmin     = "kafka_admin"
	SchemaRegistry = "schema_registry"
	Store          = "store"
)

// Labels holds constant labels applied to all metrics.
// These distinguish the producer, poll consumer and listener processes.
type Labels struct {
	Client        string // Client role (e.g., "producer", "consumer", "listener")
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-east-1", "eu-west-1")
	CloudProvider string // Cloud provider (e.g., "aws", "azure", "gcp")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.Client != "" {
		labels["client"] = l.Client
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

type Metrics struct {
	// Producer
	produced        *prometheus.CounterVec   // enqueue outcome by topic, status
	delivered       *prometheus.CounterVec   // delivery report outcome by topic, status
	deliveryLatency *prometheus.HistogramVec // by topic

	// Serialization
	serdeErrors *prometheus.CounterVec // by operation

	// Topic provisioning
	topicProvisioning *prometheus.CounterVec // by outcome

	// Kafka consumer rebalance metrics
	rebalanceEvents      *prometheus.CounterVec
	partitionAssignments *prometheus.CounterVec
	partitionRevocations *prometheus.CounterVec
	assignedPartitions   prometheus.Gauge

	// Consumer message processing metrics
	messagesReceived          *prometheus.CounterVec   // by partition
	messagesProcessed         *prometheus.CounterVec   // by partition, status
	messageProcessingDuration *prometheus.HistogramVec // by partition
	messagesInFlight          prometheus.Gauge
	offsetsStored             *prometheus.CounterVec // by status

	// DLQ production metrics
	dlqProduced           *prometheus.CounterVec // by status
	dlqProductionDuration prometheus.Histogram

	// Order sink
	ordersStored *prometheus.CounterVec // by status

	// Kafka error metrics
	kafkaErrors   *prometheus.CounterVec // by severity (fatal/non_fatal)
	unknownEvents prometheus.Counter
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
// For metrics with constant labels, use NewWithLabels instead.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		produced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Producer,
			Name:      "messages_produced_total",
			Help:      "Total number of messages handed to the producer by topic and enqueue status",
		}, []string{"topic", "status"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Producer,
			Name:      "messages_delivered_total",
			Help:      "Total number of delivery reports by topic and status",
		}, []string{"topic", "status"}),
		deliveryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Producer,
			Name:      "delivery_latency_seconds",
			Help:      "Time from enqueue to delivery report",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"topic"}),
		serdeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SchemaRegistry,
			Name:      "serde_errors_total",
			Help:      "Total number of serialization failures by operation",
		}, []string{"operation"}),
		topicProvisioning: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: KafkaAdmin,
			Name:      "topic_provisioning_total",
			Help:      "Total number of topic provisioning attempts by outcome",
		}, []string{"outcome"}),
		rebalanceEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: KafkaConsumer,
			Name:      "rebalance_events_total",
			Help:      "Total number of consumer group rebalance events by type",
		}, []string{"type"}),
		partitionAssignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: KafkaConsumer,
			Name:      "partition_assignments_total",
			Help:      "Total number of times a partition has been assigned to this consumer",
		}, []string{"partition"}),
		partitionRevocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: KafkaConsumer,
			Name:      "partition_revocations_total",
			Help:      "Total number of times a partition has been revoked from this consumer",
		}, []string{"partition"}),
		assignedPartitions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: KafkaConsumer,
			Name:      "assigned_partitions",
			Help:      "Current number of partitions assigned to this consumer",
		}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "messages_received_total",
			Help:      "Total number of messages polled from Kafka by partition",
		}, []string{"partition"}),
		messagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "messages_processed_total",
			Help:      "Total number of messages processed by partition and status",
		}, []string{"partition", "status"}),
		messageProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "message_processing_duration_seconds",
			Help:      "Message handling duration including DLQ publish by partition",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"partition"}),
		messagesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "messages_in_flight",
			Help:      "Number of messages currently being processed",
		}),
		offsetsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "offsets_stored_total",
			Help:      "Total number of offsets stored for auto-commit by status",
		}, []string{"status"}),
		dlqProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "dlq_produced_total",
			Help:      "Total number of messages published to the dead letter queue by status",
		}, []string{"status"}),
		dlqProductionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "dlq_production_duration_seconds",
			Help:      "Time taken to publish a message to the dead letter queue",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		ordersStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Store,
			Name:      "orders_stored_total",
			Help:      "Total number of orders written to the order store by status",
		}, []string{"status"}),
		kafkaErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "kafka_errors_total",
			Help:      "Total number of Kafka errors received by severity (fatal/non_fatal)",
		}, []string{"severity"}),
		unknownEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "unknown_events_total",
			Help:      "Total number of unknown events received from the Kafka client",
		}),
	}

	err := errors.Join(
		reg.Register(m.produced),
		reg.Register(m.delivered),
		reg.Register(m.deliveryLatency),
		reg.Register(m.serdeErrors),
		reg.Register(m.topicProvisioning),
		reg.Register(m.rebalanceEvents),
		reg.Register(m.partitionAssignments),
		reg.Register(m.partitionRevocations),
		reg.Register(m.assignedPartitions),
		reg.Register(m.messagesReceived),
		reg.Register(m.messagesProcessed),
		reg.Register(m.messageProcessingDuration),
		reg.Register(m.messagesInFlight),
		reg.Register(m.offsetsStored),
		reg.Register(m.dlqProduced),
		reg.Register(m.dlqProductionDuration),
		reg.Register(m.ordersStored),
		reg.Register(m.kafkaErrors),
		reg.Register(m.unknownEvents),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Serde operation label values.
const (
	OpSerialize   = "serialize"
	OpDeserialize = "deserialize"
	OpRender      = "render"
)

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// RecordProduce records the enqueue outcome of a message.
func (m *Metrics) RecordProduce(topic string, err error) {
	if m == nil {
		return
	}
	m.produced.WithLabelValues(topic, status(err)).Inc()
}

// RecordDelivery records a delivery report and its latency.
func (m *Metrics) RecordDelivery(topic string, err error, latencySeconds float64) {
	if m == nil {
		return
	}
	m.delivered.WithLabelValues(topic, status(err)).Inc()
	m.deliveryLatency.WithLabelValues(topic).Observe(latencySeconds)
}

// IncSerdeError increments the serialization failure counter for op.
func (m *Metrics) IncSerdeError(op string) {
	if m == nil {
		return
	}
	m.serdeErrors.WithLabelValues(op).Inc()
}

// RecordTopicProvisioning records the outcome of ensuring a topic exists.
// outcome is e.g. "created" or "exists"; a non-nil err overrides it.
func (m *Metrics) RecordTopicProvisioning(outcome string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		outcome = StatusError
	}
	m.topicProvisioning.WithLabelValues(outcome).Inc()
}

// RecordPartitionAssignment records when partitions are assigned during a consumer group rebalance.
func (m *Metrics) RecordPartitionAssignment(partitions []int32) {
	if m == nil {
		return
	}

	m.rebalanceEvents.WithLabelValues("assigned").Inc()

	for _, partition := range partitions {
		m.partitionAssignments.WithLabelValues(strconv.Itoa(int(partition))).Inc()
	}

	m.assignedPartitions.Set(float64(len(partitions)))
}

// RecordPartitionRevocation records when partitions are revoked during a consumer group rebalance.
func (m *Metrics) RecordPartitionRevocation(partitions []int32) {
	if m == nil {
		return
	}

	m.rebalanceEvents.WithLabelValues("revoked").Inc()

	for _, partition := range partitions {
		m.partitionRevocations.WithLabelValues(strconv.Itoa(int(partition))).Inc()
	}

	// Updated again on the next assignment.
	m.assignedPartitions.Set(0)
}

// RecordMessageReceived increments the received counter when a message is polled from Kafka.
func (m *Metrics) RecordMessageReceived(partition int32) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(strconv.Itoa(int(partition))).Inc()
}

// RecordMessageProcessed records a message processing outcome with duration.
func (m *Metrics) RecordMessageProcessed(partition int32, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	partitionLabel := strconv.Itoa(int(partition))
	m.messagesProcessed.WithLabelValues(partitionLabel, status(err)).Inc()
	m.messageProcessingDuration.WithLabelValues(partitionLabel).Observe(durationSeconds)
}

func (m *Metrics) IncMessagesInFlight() {
	if m == nil {
		return
	}
	m.messagesInFlight.Inc()
}

func (m *Metrics) DecMessagesInFlight() {
	if m == nil {
		return
	}
	m.messagesInFlight.Dec()
}

// RecordOffsetStored records an offset store attempt.
func (m *Metrics) RecordOffsetStored(err error) {
	if m == nil {
		return
	}
	m.offsetsStored.WithLabelValues(status(err)).Inc()
}

// RecordDLQProduction records a DLQ publish attempt with duration.
func (m *Metrics) RecordDLQProduction(err error, durationSeconds float64) {
	if m == nil {
		return
	}
	m.dlqProduced.WithLabelValues(status(err)).Inc()
	m.dlqProductionDuration.Observe(durationSeconds)
}

// AddOrdersStored records a write to the order store.
func (m *Metrics) AddOrdersStored(count int, err error) {
	if m == nil || count <= 0 {
		return
	}
	m.ordersStored.WithLabelValues(status(err)).Add(float64(count))
}

// RecordKafkaError records a Kafka error by severity.
func (m *Metrics) RecordKafkaError(fatal bool) {
	if m == nil {
		return
	}
	severity := "non_fatal"
	if fatal {
		severity = "fatal"
	}
	m.kafkaErrors.WithLabelValues(severity).Inc()
}

// IncreaseUnknownEventCount increases the unknown event counter.
func (m *Metrics) IncreaseUnknownEventCount() {
	if m == nil {
		return
	}
	m.unknownEvents.Inc()
}
