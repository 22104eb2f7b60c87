// Package engine defines the contract between the client runtime and a
// query engine: starting, committing and rolling back transactions and
// executing operations, optionally scoped to a transaction id.
package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

// Engine is the engine session client. Implementations must accept
// interleaved requests from concurrent transactions, each tagged by its id.
type Engine interface {
	// StartTransaction opens a new engine-side transaction. Implementations
	// give up with a TransactionStartTimeout error once opts.MaxWait or the
	// context deadline passes.
	StartTransaction(ctx context.Context, opts TxOptions) (TxInfo, error)

	// Commit commits the transaction.
	Commit(ctx context.Context, id string) error

	// Rollback rolls back the transaction.
	Rollback(ctx context.Context, id string) error

	// Execute runs op, inside op.TxID() when it is set.
	Execute(ctx context.Context, op types.Operation) (interface{}, error)
}

// Lifecycle is implemented by engines that hold connections.
type Lifecycle interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Inspector is implemented by engines that can list their open transactions.
type Inspector interface {
	OpenTransactions() []TxInfo
}

// TxOptions configures an engine-side transaction.
type TxOptions struct {
	// MaxWait bounds how long StartTransaction waits for a transaction slot.
	MaxWait time.Duration `json:"max_wait"`

	// Timeout bounds how long the transaction may stay open. Engines expire
	// abandoned transactions after it.
	Timeout time.Duration `json:"timeout"`

	// IsolationLevel sets the transaction isolation level.
	IsolationLevel IsolationLevel `json:"isolation_level,omitempty"`
}

// TxInfo describes an open transaction.
type TxInfo struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Timeout   time.Duration `json:"timeout"`
}

// IsolationLevel represents transaction isolation levels
type IsolationLevel string

const (
	// IsolationDefault uses the database default isolation level.
	IsolationDefault IsolationLevel = ""
	// ReadUncommitted allows dirty reads
	ReadUncommitted IsolationLevel = "ReadUncommitted"
	// ReadCommitted prevents dirty reads
	ReadCommitted IsolationLevel = "ReadCommitted"
	// RepeatableRead prevents dirty reads and non-repeatable reads
	RepeatableRead IsolationLevel = "RepeatableRead"
	// Snapshot reads from a consistent snapshot
	Snapshot IsolationLevel = "Snapshot"
	// Serializable prevents dirty reads, non-repeatable reads, and phantom reads
	Serializable IsolationLevel = "Serializable"
)

// ToSQLIsolationLevel converts IsolationLevel to sql.IsolationLevel
func (level IsolationLevel) ToSQLIsolationLevel() sql.IsolationLevel {
	switch level {
	case ReadUncommitted:
		return sql.LevelReadUncommitted
	case ReadCommitted:
		return sql.LevelReadCommitted
	case RepeatableRead:
		return sql.LevelRepeatableRead
	case Snapshot:
		return sql.LevelSnapshot
	case Serializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// Valid reports whether level is a known isolation level.
func (level IsolationLevel) Valid() bool {
	switch level {
	case IsolationDefault, ReadUncommitted, ReadCommitted, RepeatableRead, Snapshot, Serializable:
		return true
	default:
		return false
	}
}
