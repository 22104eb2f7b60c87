package client

import (
	"time"

	"go.uber.org/atomic"
)

// Status is the lifecycle state of a transaction.
//
//	Pending --(engine ack)--> Active --(body returns)--> Committed
//	                          Active --(body fails)----> RolledBack
//	                          Active --(watchdog)------> TimedOut
//
// Committed, RolledBack and TimedOut are terminal.
type Status int32

const (
	StatusPending Status = iota
	StatusActive
	StatusCommitted
	StatusRolledBack
	StatusTimedOut
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusCommitted:
		return "committed"
	case StatusRolledBack:
		return "rolled_back"
	case StatusTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further operation may run in this state.
func (s Status) IsTerminal() bool {
	return s == StatusCommitted || s == StatusRolledBack || s == StatusTimedOut
}

// Mode tells interactive transactions from batches.
type Mode string

const (
	ModeInteractive Mode = "interactive"
	ModeBatch       Mode = "batch"
)

// Transaction is one live transaction owned by the coordinator.
type Transaction struct {
	id        string
	mode      Mode
	opts      TxOptions
	createdAt time.Time
	status    atomic.Int32
}

func newTransaction(mode Mode, opts TxOptions) *Transaction {
	return &Transaction{
		mode:      mode,
		opts:      opts,
		createdAt: time.Now(),
	}
}

// ID returns the engine-issued id, empty while pending.
func (t *Transaction) ID() string { return t.id }

// Mode returns whether the transaction is interactive or a batch.
func (t *Transaction) Mode() Mode { return t.mode }

// Status returns the current status.
func (t *Transaction) Status() Status { return Status(t.status.Load()) }

// Timeout returns the body time limit.
func (t *Transaction) Timeout() time.Duration { return t.opts.Timeout }

// MaxWait returns the start time limit.
func (t *Transaction) MaxWait() time.Duration { return t.opts.MaxWait }

// CreatedAt returns when the transaction was requested.
func (t *Transaction) CreatedAt() time.Time { return t.createdAt }

// activate records the engine id and moves Pending to Active.
func (t *Transaction) activate(id string) bool {
	t.id = id
	return t.transition(StatusPending, StatusActive)
}

// transition moves the status from one state to another. Only one caller
// can win each transition.
func (t *Transaction) transition(from, to Status) bool {
	return t.status.CompareAndSwap(int32(from), int32(to))
}

// checkOpen fails when the transaction reached a terminal state.
func (t *Transaction) checkOpen(op string) error {
	if t.Status().IsTerminal() {
		return closedError(t.id, op, nil)
	}
	return nil
}
