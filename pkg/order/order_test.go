package order

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hamba/avro/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_KeyIsID(t *testing.T) {
	keys := []string{"a", uuid.NewString(), "order-42"}
	for _, k := range keys {
		o, err := New(k, time.Now(), 10)
		require.NoError(t, err)
		assert.Equal(t, k, o.ID)
		assert.Equal(t, []byte(k), o.Key())
	}
}

func TestNew_EmptyID(t *testing.T) {
	_, err := New("", time.Now(), 1)
	require.ErrorIs(t, err, ErrEmptyID)
}

func TestNew_DateInMillis(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 123_000_000, time.UTC)
	o, err := New("id", now, 1)
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), o.Date)
	assert.True(t, now.Equal(o.Time()))
}

func TestNewRandom(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	now := time.Now()
	seen := make(map[string]struct{})

	for range 500 {
		o := NewRandom(now, rng)
		require.NoError(t, o.Validate())

		_, err := uuid.Parse(o.ID)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, o.Amount, 0.0)
		assert.Less(t, o.Amount, float64(MaxAmount))
		assert.Equal(t, o.Amount, float64(int(o.Amount)), "amount should be a whole number")
		assert.Equal(t, now.UnixMilli(), o.Date)

		_, dup := seen[o.ID]
		assert.False(t, dup, "duplicate key %s", o.ID)
		seen[o.ID] = struct{}{}
	}
}

func TestSchema_MatchesStruct(t *testing.T) {
	s, err := avro.Parse(Schema())
	require.NoError(t, err)

	rec, ok := s.(*avro.RecordSchema)
	require.True(t, ok)
	assert.Equal(t, "io.confluent.devx.demo.clients.model.Order", rec.FullName())

	in := Order{ID: "abc", Date: 1717243200000, Amount: 42}
	b, err := avro.Marshal(s, in)
	require.NoError(t, err)

	var out Order
	require.NoError(t, avro.Unmarshal(s, b, &out))
	assert.Equal(t, in, out)
}

func TestOrder_String(t *testing.T) {
	o := Order{ID: "abc", Date: 1, Amount: 42}
	assert.Equal(t, `{"id": "abc", "date": 1, "amount": 42.0}`, o.String())
}
