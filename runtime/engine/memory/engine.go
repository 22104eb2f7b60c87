// Package memory implements an in-process query engine. Data lives in
// ordered in-memory tables; interactive transactions run against
// copy-on-write snapshots whose writes are merged on commit. A commit fails
// with a write conflict when another commit changed one of the same rows
// after the transaction started.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/satishbabariya/prisma-go-client/internal/debug"
	"github.com/satishbabariya/prisma-go-client/runtime/engine"
	"github.com/satishbabariya/prisma-go-client/runtime/schema"
	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

const (
	// DefaultMaxTransactions is the number of interactive transactions that
	// may be open at once.
	DefaultMaxTransactions = 16

	// closedHistory bounds how many closed transaction ids are remembered
	// for error reporting.
	closedHistory = 1024
)

var log = debug.New("prisma:engine:memory")

// Option configures an Engine.
type Option func(*Engine)

// WithMaxTransactions sets how many interactive transactions may be open at
// once. Further StartTransaction calls wait up to their MaxWait.
func WithMaxTransactions(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTx = n
		}
	}
}

// WithClock replaces the clock used for now() defaults and @updatedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.exec.now = now
	}
}

// Engine is an in-memory engine.Engine.
type Engine struct {
	exec  *executor
	maxTx int64
	slots *semaphore.Weighted

	// mu guards committed, version, keyVersions, open and closed.
	mu          sync.Mutex
	committed   *state
	version     uint64
	keyVersions map[string]map[string]uint64
	open        map[string]*transaction
	closed      map[string]string
	closedIDs   []string

	started   atomic.Int64
	finished  atomic.Int64
	conflicts atomic.Int64
}

type transaction struct {
	mu      sync.Mutex
	info    engine.TxInfo
	state   *state
	base    uint64
	done    bool
	expires *time.Timer
}

// New creates an engine for the models of dm.
func New(dm *schema.Datamodel, opts ...Option) (*Engine, error) {
	if dm == nil {
		return nil, errors.New("memory engine: datamodel is required")
	}
	for _, m := range dm.Models {
		if len(m.UniqueCriteria()) == 0 {
			return nil, fmt.Errorf("memory engine: model %s has no @id or @unique field", m.Name)
		}
	}
	e := &Engine{
		exec: &executor{
			dm:       dm,
			now:      time.Now,
			counters: make(map[string]*atomic.Int64, len(dm.Models)),
		},
		maxTx:       DefaultMaxTransactions,
		committed:   newState(dm),
		keyVersions: make(map[string]map[string]uint64, len(dm.Models)),
		open:        make(map[string]*transaction),
		closed:      make(map[string]string),
	}
	for _, m := range dm.Models {
		e.exec.counters[m.Name] = atomic.NewInt64(0)
		e.keyVersions[m.Name] = make(map[string]uint64)
	}
	for _, opt := range opts {
		opt(e)
	}
	e.slots = semaphore.NewWeighted(e.maxTx)
	return e, nil
}

// Connect implements engine.Lifecycle.
func (e *Engine) Connect(ctx context.Context) error {
	return nil
}

// Disconnect rolls back every open transaction.
func (e *Engine) Disconnect(ctx context.Context) error {
	e.mu.Lock()
	ids := make([]string, 0, len(e.open))
	for id := range e.open {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	for _, id := range ids {
		if err := e.finish(id, false, "rollback"); err != nil && !errors.Is(err, engine.ErrTransactionClosed) {
			return err
		}
	}
	return nil
}

// StartTransaction opens a snapshot transaction, waiting up to opts.MaxWait
// for a free slot.
func (e *Engine) StartTransaction(ctx context.Context, opts engine.TxOptions) (engine.TxInfo, error) {
	if !opts.IsolationLevel.Valid() {
		return engine.TxInfo{}, engine.Validation("Invalid isolation level %q", opts.IsolationLevel)
	}
	acquireCtx := ctx
	if opts.MaxWait > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, opts.MaxWait)
		defer cancel()
	}
	if err := e.slots.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return engine.TxInfo{}, ctx.Err()
		}
		return engine.TxInfo{}, engine.TransactionStartTimeout(opts.MaxWait)
	}

	tx := &transaction{
		info: engine.TxInfo{
			ID:        uuid.NewString(),
			StartedAt: time.Now(),
			Timeout:   opts.Timeout,
		},
	}
	e.mu.Lock()
	tx.state = e.committed.clone()
	tx.base = e.version
	e.open[tx.info.ID] = tx
	e.mu.Unlock()

	if opts.Timeout > 0 {
		id := tx.info.ID
		tx.expires = time.AfterFunc(opts.Timeout, func() {
			if err := e.finish(id, false, "expired"); err == nil {
				log.Warn("transaction expired", zap.String("tx", id), zap.Duration("timeout", opts.Timeout))
			}
		})
	}
	e.started.Inc()
	log.Log("transaction started", zap.String("tx", tx.info.ID))
	return tx.info, nil
}

// Commit merges the rows written by the transaction into the committed
// state. It fails with a write conflict when one of those rows was changed
// by another commit since the transaction began, and with a unique
// constraint error when a concurrent commit took one of its unique values.
func (e *Engine) Commit(ctx context.Context, id string) error {
	return e.finish(id, true, "commit")
}

// Rollback discards the transaction snapshot.
func (e *Engine) Rollback(ctx context.Context, id string) error {
	return e.finish(id, false, "rollback")
}

func (e *Engine) finish(id string, commit bool, reason string) error {
	op := "rollback"
	if commit {
		op = "commit"
	}
	tx, err := e.lookup(id, op)
	if err != nil {
		return err
	}

	// wait for an in-flight query on this transaction
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return engine.TransactionClosed(op)
	}
	tx.done = true
	if tx.expires != nil {
		tx.expires.Stop()
	}

	e.mu.Lock()
	var mergeErr error
	if commit && tx.state.dirty() {
		mergeErr = e.merge(tx)
	}
	delete(e.open, id)
	e.remember(id, reason)
	e.mu.Unlock()

	e.slots.Release(1)
	e.finished.Inc()
	if mergeErr != nil {
		e.conflicts.Inc()
		log.Log("transaction commit rejected", zap.String("tx", id), zap.Error(mergeErr))
		return mergeErr
	}
	log.Log("transaction closed", zap.String("tx", id), zap.String("reason", reason))
	return nil
}

// merge applies the rows written by tx on top of the committed state.
// e.mu must be held.
func (e *Engine) merge(tx *transaction) error {
	for model, keys := range tx.state.touched {
		for key := range keys {
			if e.keyVersions[model][key] > tx.base {
				return engine.WriteConflict()
			}
		}
	}

	merged := e.committed.clone()
	for model, keys := range tx.state.touched {
		for key := range keys {
			if r, ok := tx.state.get(model, key); ok {
				merged.put(model, key, r)
			} else {
				merged.remove(model, key)
			}
		}
	}
	for model, keys := range merged.touched {
		m, _ := e.exec.dm.Model(model)
		for key := range keys {
			if r, ok := merged.get(model, key); ok {
				if err := checkUnique(merged, m, r, key); err != nil {
					return err
				}
			}
		}
	}
	e.publish(merged)
	return nil
}

// publish makes s the committed state. e.mu must be held.
func (e *Engine) publish(s *state) {
	e.version++
	for model, keys := range s.touched {
		for key := range keys {
			e.keyVersions[model][key] = e.version
		}
	}
	e.committed = s
}

// remember records a closed id. e.mu must be held.
func (e *Engine) remember(id, reason string) {
	e.closed[id] = reason
	e.closedIDs = append(e.closedIDs, id)
	if len(e.closedIDs) > closedHistory {
		delete(e.closed, e.closedIDs[0])
		e.closedIDs = e.closedIDs[1:]
	}
}

func (e *Engine) lookup(id, op string) (*transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if tx, ok := e.open[id]; ok {
		return tx, nil
	}
	if _, ok := e.closed[id]; ok {
		return nil, engine.TransactionClosed(op)
	}
	return nil, engine.TransactionNotFound(id)
}

// Execute runs op inside its transaction, or against a private snapshot
// that is published on success when op has no transaction id.
func (e *Engine) Execute(ctx context.Context, op types.Operation) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if op.InTransaction() {
		tx, err := e.lookup(op.TxID(), "query")
		if err != nil {
			return nil, err
		}
		tx.mu.Lock()
		defer tx.mu.Unlock()
		if tx.done {
			return nil, engine.TransactionClosed("query")
		}
		return e.exec.execute(tx.state, op)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	working := e.committed.clone()
	result, err := e.exec.execute(working, op)
	if err != nil {
		return nil, err
	}
	if working.dirty() {
		e.publish(working)
	}
	return result, nil
}

// OpenTransactions implements engine.Inspector.
func (e *Engine) OpenTransactions() []engine.TxInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]engine.TxInfo, 0, len(e.open))
	for _, tx := range e.open {
		out = append(out, tx.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Stats reports transaction counters.
type Stats struct {
	Started   int64 `json:"started"`
	Finished  int64 `json:"finished"`
	Conflicts int64 `json:"conflicts"`
	Open      int   `json:"open"`
}

// Stats returns the current counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	open := len(e.open)
	e.mu.Unlock()
	return Stats{
		Started:   e.started.Load(),
		Finished:  e.finished.Load(),
		Conflicts: e.conflicts.Load(),
		Open:      open,
	}
}

var (
	_ engine.Engine    = (*Engine)(nil)
	_ engine.Lifecycle = (*Engine)(nil)
	_ engine.Inspector = (*Engine)(nil)
)
