package client

import (
	"time"

	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

// EventType selects which events a listener receives.
type EventType string

const (
	// EventQuery is emitted for every engine call: BEGIN, COMMIT, ROLLBACK
	// and each operation.
	EventQuery EventType = "query"
	EventInfo  EventType = "info"
	EventWarn  EventType = "warn"
	EventError EventType = "error"
)

// Event is passed to listeners registered with On.
type Event struct {
	Type      EventType
	Timestamp time.Time

	// Query is "BEGIN", "COMMIT", "ROLLBACK" or the operation name, such as
	// "User.create". Set for EventQuery.
	Query         string
	Args          types.Args
	Duration      time.Duration
	TransactionID string

	// Message is set for info, warn and error events.
	Message string
	Err     error
}

// Observer receives query and transaction outcomes. telemetry.Metrics
// implements it.
type Observer interface {
	QueryExecuted(op types.Operation, duration time.Duration, err error)
	TransactionFinished(mode Mode, status Status, duration time.Duration)
	TransactionStartFailed(mode Mode, err error)
}

type nopObserver struct{}

func (nopObserver) QueryExecuted(types.Operation, time.Duration, error) {}
func (nopObserver) TransactionFinished(Mode, Status, time.Duration) {}
func (nopObserver) TransactionStartFailed(Mode, error) {}

// On registers fn for events of type t. Listeners run synchronously in
// registration order and are shared with clients derived through Extends.
func (c *Client) On(t EventType, fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[t] = append(c.listeners[t], fn)
}

func (c *core) emit(e Event) {
	c.mu.RLock()
	listeners := c.listeners[e.Type]
	c.mu.RUnlock()
	if len(listeners) == 0 {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	for _, fn := range listeners {
		fn(e)
	}
}

func (c *core) emitQuery(query string, args types.Args, txID string, d time.Duration) {
	c.emit(Event{Type: EventQuery, Query: query, Args: args, TransactionID: txID, Duration: d})
}
