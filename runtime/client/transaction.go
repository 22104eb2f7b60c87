// Package client provides transaction support.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satishbabariya/prisma-go-client/internal/debug"
	"github.com/satishbabariya/prisma-go-client/runtime/engine"
)

var itxLog = debug.New("prisma:client:itx")

// TxFunc is the body of an interactive transaction. Operations must be
// issued through tx; ctx is canceled once the transaction has ended.
type TxFunc func(ctx context.Context, tx *TxClient) (interface{}, error)

// Transaction runs body inside a new engine transaction.
//
// The transaction commits when body returns without error and rolls back
// when it returns an error, which is then returned unchanged. A panic in
// body rolls back and is re-raised in the caller's goroutine. If body runs
// longer than the timeout, the transaction is rolled back and Transaction
// returns ErrTransactionAlreadyClosed without waiting for body; whatever
// body returns later is discarded.
//
// Calling Transaction with a context handed to a transaction body fails
// with ErrNestedTransactionNotAllowed.
func (c *Client) Transaction(ctx context.Context, body TxFunc, opts ...TxOption) (interface{}, error) {
	if body == nil {
		return nil, &ValidationError{Message: "transaction body is required"}
	}
	return c.transaction(ctx, ModeInteractive, body, opts)
}

// TransactionBatch runs queries in order inside one transaction and returns
// their results in the same order. The first failing query rolls back the
// whole batch and its error is returned.
func (c *Client) TransactionBatch(ctx context.Context, queries []*Query, opts ...TxOption) ([]interface{}, error) {
	for i, q := range queries {
		if q == nil {
			return nil, &ValidationError{Message: fmt.Sprintf("batch query %d is nil", i)}
		}
		if q.err != nil {
			return nil, q.err
		}
	}
	result, err := c.transaction(ctx, ModeBatch, func(ctx context.Context, tx *TxClient) (interface{}, error) {
		results := make([]interface{}, len(queries))
		for i, q := range queries {
			r, err := q.bind(tx.tx).Exec(ctx)
			if err != nil {
				return nil, err
			}
			results[i] = r
		}
		return results, nil
	}, opts)
	if err != nil {
		return nil, err
	}
	return result.([]interface{}), nil
}

func (c *Client) transaction(ctx context.Context, mode Mode, body TxFunc, opts []TxOption) (interface{}, error) {
	if InTransaction(ctx) {
		return nil, &TransactionError{
			Kind:    ErrNestedTransactionNotAllowed,
			Message: "Transaction API error: Nested transactions are not supported. Use the transaction client passed to the transaction body.",
		}
	}
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	o := c.txDefaults
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxWait <= 0 {
		o.MaxWait = c.txDefaults.MaxWait
	}
	if o.Timeout <= 0 {
		o.Timeout = c.txDefaults.Timeout
	}
	if !o.IsolationLevel.Valid() {
		return nil, &ValidationError{Message: "unknown isolation level " + string(o.IsolationLevel)}
	}

	for attempt := 0; ; attempt++ {
		result, err := c.runTransaction(ctx, mode, body, o)
		if err == nil || attempt >= o.MaxRetries || !errors.Is(err, engine.ErrWriteConflict) || ctx.Err() != nil {
			return result, err
		}
		itxLog.Log("retrying after write conflict", zap.Int("attempt", attempt+1), zap.Error(err))
	}
}

type bodyOutcome struct {
	result     interface{}
	err        error
	returned   bool
	panicked   bool
	panicValue interface{}
}

func (c *Client) runTransaction(ctx context.Context, mode Mode, body TxFunc, o TxOptions) (interface{}, error) {
	tx := newTransaction(mode, o)
	if err := c.begin(ctx, tx); err != nil {
		c.observer.TransactionStartFailed(mode, err)
		return nil, err
	}

	bodyCtx, cancelBody := context.WithCancel(withTransaction(ctx, tx))
	defer cancelBody()

	done := make(chan bodyOutcome, 1)
	handle := &TxClient{client: c, tx: tx}
	go func() {
		var out bodyOutcome
		defer func() {
			if p := recover(); p != nil {
				out = bodyOutcome{panicked: true, panicValue: p}
			}
			done <- out
		}()
		out.result, out.err = body(bodyCtx, handle)
		out.returned = true
	}()

	watchdog := time.NewTimer(o.Timeout)
	defer watchdog.Stop()

	select {
	case out := <-done:
		if out.panicked {
			c.rollback(ctx, tx, StatusRolledBack)
			panic(out.panicValue)
		}
		// runtime.Goexit, as called by t.FailNow, ends the body without a return
		if !out.returned {
			c.rollback(ctx, tx, StatusRolledBack)
			return nil, ErrTransactionBodyExited
		}
		if out.err != nil {
			c.rollback(ctx, tx, StatusRolledBack)
			return nil, out.err
		}
		if err := c.commit(ctx, tx); err != nil {
			return nil, err
		}
		return out.result, nil

	case <-watchdog.C:
		if !tx.transition(StatusActive, StatusTimedOut) {
			return nil, closedError(tx.ID(), "commit", nil)
		}
		cancelBody()
		itxLog.Warn("transaction timed out", zap.String("tx", tx.ID()), zap.Duration("timeout", o.Timeout))
		c.rollbackAsync(ctx, tx, StatusTimedOut)
		return nil, closedError(tx.ID(), "commit", nil)

	case <-ctx.Done():
		if !tx.transition(StatusActive, StatusRolledBack) {
			return nil, closedError(tx.ID(), "commit", nil)
		}
		cancelBody()
		c.rollbackAsync(ctx, tx, StatusRolledBack)
		return nil, ctx.Err()
	}
}

// begin starts the engine transaction within maxWait.
func (c *Client) begin(ctx context.Context, tx *Transaction) error {
	startCtx := ctx
	if tx.MaxWait() > 0 {
		var cancel context.CancelFunc
		startCtx, cancel = context.WithTimeout(ctx, tx.MaxWait())
		defer cancel()
	}

	start := time.Now()
	info, err := c.engine.StartTransaction(startCtx, engine.TxOptions{
		MaxWait:        tx.opts.MaxWait,
		Timeout:        tx.opts.Timeout,
		IsolationLevel: tx.opts.IsolationLevel,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, engine.ErrTransactionStart) || errors.Is(err, context.DeadlineExceeded) {
			return &TransactionError{
				Kind:    ErrTransactionAcquisitionTimeout,
				Message: fmt.Sprintf("Transaction API error: Unable to start a transaction in the given time (maxWait %s).", tx.MaxWait()),
				Err:     err,
			}
		}
		return err
	}
	tx.activate(info.ID)
	c.emitQuery("BEGIN", nil, info.ID, time.Since(start))
	itxLog.Log("transaction started", zap.String("tx", info.ID), zap.String("mode", string(tx.Mode())))
	return nil
}

func (c *Client) commit(ctx context.Context, tx *Transaction) error {
	if !tx.transition(StatusActive, StatusCommitted) {
		return closedError(tx.ID(), "commit", nil)
	}
	start := time.Now()
	err := c.engine.Commit(ctx, tx.ID())
	c.emitQuery("COMMIT", nil, tx.ID(), time.Since(start))
	c.observer.TransactionFinished(tx.Mode(), StatusCommitted, time.Since(tx.CreatedAt()))
	if err != nil {
		c.emit(Event{Type: EventError, Message: "commit failed", TransactionID: tx.ID(), Err: err})
		if errors.Is(err, engine.ErrTransactionClosed) {
			return closedError(tx.ID(), "commit", err)
		}
		return err
	}
	itxLog.Log("transaction committed", zap.String("tx", tx.ID()))
	return nil
}

// rollback moves tx to the given terminal status and rolls back the engine
// transaction. Rollback errors are logged, never returned, so that the
// error that caused the rollback reaches the caller.
func (c *Client) rollback(ctx context.Context, tx *Transaction, to Status) {
	if !tx.transition(StatusActive, to) {
		return
	}
	c.rollbackEngine(ctx, tx, to)
}

// rollbackAsync rolls back a transaction already moved to a terminal
// status, without making the caller wait.
// Once Disconnect has begun, the rollback runs in the caller instead.
func (c *Client) rollbackAsync(ctx context.Context, tx *Transaction, status Status) {
	c.lifecycle.Lock()
	if c.closed.Load() {
		c.lifecycle.Unlock()
		c.rollbackEngine(ctx, tx, status)
		return
	}
	c.pending.Add(1)
	c.lifecycle.Unlock()
	go func() {
		defer c.pending.Done()
		c.rollbackEngine(ctx, tx, status)
	}()
}

func (c *Client) rollbackEngine(ctx context.Context, tx *Transaction, status Status) {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.rollbackTimeout)
	defer cancel()

	start := time.Now()
	err := c.engine.Rollback(rbCtx, tx.ID())
	c.emitQuery("ROLLBACK", nil, tx.ID(), time.Since(start))
	c.observer.TransactionFinished(tx.Mode(), status, time.Since(tx.CreatedAt()))
	if err != nil {
		c.logger.Warn("transaction rollback failed",
			zap.String("tx", tx.ID()),
			zap.Stringer("status", status),
			zap.Error(err))
		c.emit(Event{Type: EventWarn, Message: "rollback failed", TransactionID: tx.ID(), Err: err})
		return
	}
	itxLog.Log("transaction rolled back", zap.String("tx", tx.ID()), zap.Stringer("status", status))
}
