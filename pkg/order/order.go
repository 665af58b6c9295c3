package order

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// MaxAmount is the exclusive upper bound of generated order amounts.
const MaxAmount = 1000

//go:embed order.avsc
var schema string

// Schema returns the Avro schema of the Order record.
func Schema() string {
	return schema
}

var ErrEmptyID = errors.New("order id cannot be empty")

// Order is the value of every record on the orders topic. The id doubles as
// the record key.
type Order struct {
	ID     string  `avro:"id"     json:"id"`
	Date   int64   `avro:"date"   json:"date"`   // milliseconds since epoch
	Amount float64 `avro:"amount" json:"amount"`
}

// New constructs an Order keyed by id.
func New(id string, date time.Time, amount float64) (Order, error) {
	o := Order{
		ID:     id,
		Date:   date.UnixMilli(),
		Amount: amount,
	}
	if err := o.Validate(); err != nil {
		return Order{}, err
	}
	return o, nil
}

// NewRandom builds an Order with a fresh random UUID key and an integer amount
// in [0, MaxAmount).
func NewRandom(now time.Time, rng *rand.Rand) Order {
	return Order{
		ID:     uuid.NewString(),
		Date:   now.UnixMilli(),
		Amount: float64(rng.IntN(MaxAmount)),
	}
}

func (o Order) Validate() error {
	if o.ID == "" {
		return ErrEmptyID
	}
	return nil
}

// Key returns the record key for the order.
func (o Order) Key() []byte {
	return []byte(o.ID)
}

// Time returns the order date as a time.Time.
func (o Order) Time() time.Time {
	return time.UnixMilli(o.Date)
}

// String renders the order in the same shape as its Avro JSON encoding.
func (o Order) String() string {
	return fmt.Sprintf(`{"id": %q, "date": %d, "amount": %.1f}`, o.ID, o.Date, o.Amount)
}
