package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestLabels_toPrometheusLabels(t *testing.T) {
	tests := []struct {
		name     string
		labels   Labels
		expected prometheus.Labels
	}{
		{
			name:     "empty labels",
			labels:   Labels{},
			expected: prometheus.Labels{},
		},
		{
			name: "all labels set",
			labels: Labels{
				Client:        "producer",
				Environment:   "production",
				Region:        "us-west-2",
				CloudProvider: "aws",
			},
			expected: prometheus.Labels{
				"client":         "producer",
				"environment":    "production",
				"region":         "us-west-2",
				"cloud_provider": "aws",
			},
		},
		{
			name:     "partial labels",
			labels:   Labels{Client: "listener", Environment: "staging"},
			expected: prometheus.Labels{"client": "listener", "environment": "staging"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.labels.toPrometheusLabels())
		})
	}
}

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()

	m, err := New(reg)
	require.NoError(t, err)
	require.NotNil(t, m)

	m.RecordProduce("orders", nil)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, metricFamilies)
}

func TestNewWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()

	m, err := NewWithLabels(reg, Labels{Client: "producer", Environment: "test"})
	require.NoError(t, err)

	m.RecordProduce("orders", nil)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() != "orders_producer_messages_produced_total" {
			continue
		}
		found = true
		require.NotEmpty(t, mf.GetMetric())

		labelMap := make(map[string]string)
		for _, label := range mf.GetMetric()[0].GetLabel() {
			labelMap[label.GetName()] = label.GetValue()
		}
		require.Equal(t, "producer", labelMap["client"])
		require.Equal(t, "test", labelMap["environment"])
		require.Equal(t, "orders", labelMap["topic"])
	}
	require.True(t, found, "produced counter not gathered")
}

func TestNew_RegistrationError(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := New(reg)
	require.NoError(t, err)

	m, err := New(reg)
	require.Nil(t, m, "expected nil metrics on duplicate registration")

	var alreadyRegistered prometheus.AlreadyRegisteredError
	require.ErrorAs(t, err, &alreadyRegistered)
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	someErr := errors.New("boom")

	require.NotPanics(t, func() {
		m.RecordProduce("orders", nil)
		m.RecordDelivery("orders", someErr, 0.1)
		m.IncSerdeError(OpSerialize)
		m.RecordTopicProvisioning("created", nil)
		m.RecordPartitionAssignment([]int32{0, 1})
		m.RecordPartitionRevocation([]int32{0})
		m.RecordMessageReceived(0)
		m.RecordMessageProcessed(0, nil, 0.01)
		m.IncMessagesInFlight()
		m.DecMessagesInFlight()
		m.RecordOffsetStored(nil)
		m.RecordDLQProduction(someErr, 0.2)
		m.AddOrdersStored(3, nil)
		m.RecordKafkaError(true)
		m.IncreaseUnknownEventCount()
	})
}

// ==== Producer ====

func TestMetrics_RecordProduce(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordProduce("orders", nil)
	m.RecordProduce("orders", nil)
	m.RecordProduce("orders", errors.New("queue full"))

	require.Equal(t, float64(2), testutil.ToFloat64(m.produced.WithLabelValues("orders", StatusSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.produced.WithLabelValues("orders", StatusError)))
}

func TestMetrics_RecordDelivery(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordDelivery("orders", nil, 0.05)
	m.RecordDelivery("orders", errors.New("timed out"), 30)

	require.Equal(t, float64(1), testutil.ToFloat64(m.delivered.WithLabelValues("orders", StatusSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.delivered.WithLabelValues("orders", StatusError)))
	require.Equal(t, 1, testutil.CollectAndCount(m.deliveryLatency))
}

func TestMetrics_IncSerdeError(t *testing.T) {
	m := newTestMetrics(t)

	m.IncSerdeError(OpSerialize)
	m.IncSerdeError(OpRender)
	m.IncSerdeError(OpRender)

	require.Equal(t, float64(1), testutil.ToFloat64(m.serdeErrors.WithLabelValues(OpSerialize)))
	require.Equal(t, float64(2), testutil.ToFloat64(m.serdeErrors.WithLabelValues(OpRender)))
}

func TestMetrics_RecordTopicProvisioning(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordTopicProvisioning("created", nil)
	m.RecordTopicProvisioning("exists", nil)
	m.RecordTopicProvisioning("", errors.New("denied"))

	require.Equal(t, float64(1), testutil.ToFloat64(m.topicProvisioning.WithLabelValues("created")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.topicProvisioning.WithLabelValues("exists")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.topicProvisioning.WithLabelValues(StatusError)))
}

// ==== Consumer ====

func TestMetrics_Rebalance(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordPartitionAssignment([]int32{0, 1, 2, 3})
	require.Equal(t, float64(4), testutil.ToFloat64(m.assignedPartitions))
	require.Equal(t, float64(1), testutil.ToFloat64(m.rebalanceEvents.WithLabelValues("assigned")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.partitionAssignments.WithLabelValues("2")))

	m.RecordPartitionRevocation([]int32{0, 1, 2, 3})
	require.Equal(t, float64(0), testutil.ToFloat64(m.assignedPartitions))
	require.Equal(t, float64(1), testutil.ToFloat64(m.rebalanceEvents.WithLabelValues("revoked")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.partitionRevocations.WithLabelValues("3")))
}

func TestMetrics_MessageProcessing(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordMessageReceived(1)
	m.RecordMessageReceived(1)
	m.IncMessagesInFlight()
	m.IncMessagesInFlight()
	m.RecordMessageProcessed(1, nil, 0.01)
	m.RecordMessageProcessed(1, errors.New("bad payload"), 0.02)
	m.DecMessagesInFlight()

	require.Equal(t, float64(2), testutil.ToFloat64(m.messagesReceived.WithLabelValues("1")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.messagesProcessed.WithLabelValues("1", StatusSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.messagesProcessed.WithLabelValues("1", StatusError)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.messagesInFlight))
}

func TestMetrics_OffsetsAndDLQ(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordOffsetStored(nil)
	m.RecordOffsetStored(errors.New("partition revoked"))
	m.RecordDLQProduction(nil, 0.1)

	require.Equal(t, float64(1), testutil.ToFloat64(m.offsetsStored.WithLabelValues(StatusSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.offsetsStored.WithLabelValues(StatusError)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.dlqProduced.WithLabelValues(StatusSuccess)))
}

func TestMetrics_AddOrdersStored(t *testing.T) {
	m := newTestMetrics(t)

	m.AddOrdersStored(5, nil)
	m.AddOrdersStored(0, nil)
	m.AddOrdersStored(2, errors.New("insert failed"))

	require.Equal(t, float64(5), testutil.ToFloat64(m.ordersStored.WithLabelValues(StatusSuccess)))
	require.Equal(t, float64(2), testutil.ToFloat64(m.ordersStored.WithLabelValues(StatusError)))
}

func TestMetrics_KafkaErrors(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordKafkaError(false)
	m.RecordKafkaError(false)
	m.RecordKafkaError(true)
	m.IncreaseUnknownEventCount()

	require.Equal(t, float64(2), testutil.ToFloat64(m.kafkaErrors.WithLabelValues("non_fatal")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.kafkaErrors.WithLabelValues("fatal")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.unknownEvents))
}
