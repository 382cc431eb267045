package events

import (
	"sync"

	"tipchain/core/types"
)

// Event wraps a typed payload emitted by a native module.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter receives events produced by state transitions.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorded is an event captured by the ring emitter together with its
// monotonically increasing sequence number.
type Recorded struct {
	Sequence uint64       `json:"sequence"`
	Type     string       `json:"type"`
	Event    *types.Event `json:"event"`
}

// RingEmitter retains the most recent events in a fixed-size buffer. It backs
// the node's queryable audit log.
type RingEmitter struct {
	mu   sync.RWMutex
	buf  []Recorded
	cap  int
	next uint64
}

// NewRingEmitter creates a ring emitter keeping at most capacity events. A
// non-positive capacity defaults to 256.
func NewRingEmitter(capacity int) *RingEmitter {
	if capacity <= 0 {
		capacity = 256
	}
	return &RingEmitter{cap: capacity}
}

// Emit records the event, evicting the oldest entry once at capacity.
func (r *RingEmitter) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	rec := Recorded{Sequence: r.next, Type: payload.Type, Event: payload}
	if len(r.buf) == r.cap {
		copy(r.buf, r.buf[1:])
		r.buf[len(r.buf)-1] = rec
		return
	}
	r.buf = append(r.buf, rec)
}

// List returns up to limit of the most recent events whose type matches the
// prefix, newest last. A non-positive limit returns everything retained.
func (r *RingEmitter) List(prefix string, limit int) []Recorded {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Recorded, 0, len(r.buf))
	for _, rec := range r.buf {
		if prefix != "" && !hasPrefix(rec.Type, prefix) {
			continue
		}
		out = append(out, rec)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
