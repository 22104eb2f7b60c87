package client

import (
	"time"

	"go.uber.org/zap"

	"github.com/satishbabariya/prisma-go-client/runtime/engine"
	"github.com/satishbabariya/prisma-go-client/runtime/schema"
)

const (
	// DefaultMaxWait is how long a transaction may wait to start.
	DefaultMaxWait = 2 * time.Second
	// DefaultTimeout is how long a transaction body may run.
	DefaultTimeout = 5 * time.Second
	// DefaultRollbackTimeout bounds the rollback issued after a timeout or a
	// cancellation.
	DefaultRollbackTimeout = 5 * time.Second
)

// TxOptions configures a transaction.
type TxOptions struct {
	// MaxWait bounds how long starting the transaction may take.
	MaxWait time.Duration `mapstructure:"max_wait" json:"max_wait"`
	// Timeout bounds how long the transaction body may run.
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
	// IsolationLevel is passed to the engine. Empty uses the database default.
	IsolationLevel engine.IsolationLevel `mapstructure:"isolation_level" json:"isolation_level,omitempty"`
	// MaxRetries re-runs an interactive transaction that failed with a
	// write conflict. Zero disables retries.
	MaxRetries int `mapstructure:"max_retries" json:"max_retries,omitempty"`
}

// DefaultTxOptions returns the default transaction options.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		MaxWait: DefaultMaxWait,
		Timeout: DefaultTimeout,
	}
}

// TxOption customizes a single transaction.
type TxOption func(*TxOptions)

// WithMaxWait sets the maximum time to wait for the transaction to start.
func WithMaxWait(d time.Duration) TxOption {
	return func(o *TxOptions) {
		o.MaxWait = d
	}
}

// WithTimeout sets the maximum time the transaction body may run.
func WithTimeout(d time.Duration) TxOption {
	return func(o *TxOptions) {
		o.Timeout = d
	}
}

// WithIsolationLevel sets the transaction isolation level.
func WithIsolationLevel(level engine.IsolationLevel) TxOption {
	return func(o *TxOptions) {
		o.IsolationLevel = level
	}
}

// WithMaxRetries sets how often a write conflict is retried.
func WithMaxRetries(n int) TxOption {
	return func(o *TxOptions) {
		o.MaxRetries = n
	}
}

type options struct {
	logger          *zap.Logger
	datamodel       *schema.Datamodel
	txDefaults      TxOptions
	rollbackTimeout time.Duration
	observer        Observer
}

// Option configures a Client.
type Option func(*options)

// WithLogger sets the logger for warnings and errors.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithDatamodel builds the model dispatch table from dm. Without a
// datamodel the client accepts any model name.
func WithDatamodel(dm *schema.Datamodel) Option {
	return func(o *options) {
		o.datamodel = dm
	}
}

// WithTransactionOptions replaces the default transaction options. Zero
// durations keep the defaults.
func WithTransactionOptions(tx TxOptions) Option {
	return func(o *options) {
		if tx.MaxWait > 0 {
			o.txDefaults.MaxWait = tx.MaxWait
		}
		if tx.Timeout > 0 {
			o.txDefaults.Timeout = tx.Timeout
		}
		o.txDefaults.IsolationLevel = tx.IsolationLevel
		o.txDefaults.MaxRetries = tx.MaxRetries
	}
}

// WithRollbackTimeout bounds the best-effort rollback issued after a
// timeout or a cancellation.
func WithRollbackTimeout(d time.Duration) Option {
	return func(o *options) {
		o.rollbackTimeout = d
	}
}

// WithObserver reports queries and transaction outcomes to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}
