package kafka

import (
	"errors"
	"sync"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// errWindowClosed is returned for acknowledgements that arrive after their
// partition was revoked or the listener stopped.
var errWindowClosed = errors.New("partition no longer assigned")

// offsetWindow orders the completion of the records of one partition.
//
// Records are tracked in poll order. When a record completes, the offset of
// the last record of the completed prefix is stored, so a record that
// finishes early never moves the committed position past one that is still
// being processed or waiting to be persisted.
type offsetWindow struct {
	mu      sync.Mutex
	entries []*windowEntry
	closed  bool
}

type windowEntry struct {
	msg  *cKafka.Message
	done bool
}

func newOffsetWindow() *offsetWindow {
	return &offsetWindow{}
}

func (w *offsetWindow) track(msg *cKafka.Message) *windowEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := &windowEntry{msg: msg}
	if !w.closed {
		w.entries = append(w.entries, e)
	}
	return e
}

// complete marks e done. If that extends the completed prefix, the last
// record of the prefix is passed to store and returned.
func (w *offsetWindow) complete(e *windowEntry, store func(*cKafka.Message) error) (*cKafka.Message, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, errWindowClosed
	}
	if e.done {
		return nil, nil
	}
	e.done = true

	n := 0
	for n < len(w.entries) && w.entries[n].done {
		n++
	}
	if n == 0 {
		return nil, nil
	}
	last := w.entries[n-1].msg
	w.entries = w.entries[n:]
	return last, store(last)
}

// close drops every pending record. Their offsets are never stored, so they
// are redelivered to the next owner of the partition.
func (w *offsetWindow) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.entries = nil
}

func (w *offsetWindow) pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}
