// Package sqlengine implements the query engine on database/sql for
// PostgreSQL, MySQL and SQLite.
//
// Each interactive transaction holds one pooled connection from
// StartTransaction until it is committed, rolled back or expires, so the
// pool size bounds how many transactions can be open at once. Tables and
// columns are named after models and fields.
package sqlengine

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/google/uuid"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/satishbabariya/prisma-go-client/internal/debug"
	"github.com/satishbabariya/prisma-go-client/runtime/engine"
	"github.com/satishbabariya/prisma-go-client/runtime/schema"
	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

const closedHistory = 1024

var log = debug.New("prisma:engine:sql")

// Option configures an Engine.
type Option func(*Engine)

// WithMaxOpenConns limits the connection pool, and so the number of
// interactive transactions open at once.
func WithMaxOpenConns(n int) Option {
	return func(e *Engine) {
		e.db.SetMaxOpenConns(n)
	}
}

// WithClock replaces the clock used for now() defaults and @updatedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.exec.now = now
	}
}

// Engine is a database/sql engine.Engine.
type Engine struct {
	db     *sql.DB
	ownsDB bool
	exec   *executor

	mu        sync.Mutex
	open      map[string]*transaction
	closed    map[string]struct{}
	closedIDs []string
}

type transaction struct {
	mu      sync.Mutex
	info    engine.TxInfo
	conn    *sql.Conn
	tx      *sql.Tx
	done    bool
	expires *time.Timer
}

// Open opens a database for the Prisma provider name ("postgresql",
// "mysql" or "sqlite").
func Open(provider, dsn string, dm *schema.Datamodel, opts ...Option) (*Engine, error) {
	d, err := dialectFor(provider)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database", d.provider)
	}
	e := newEngine(d, db, dm, opts)
	e.ownsDB = true
	return e, nil
}

// New creates an engine from a database connection. Disconnect leaves db
// open.
func New(provider string, db *sql.DB, dm *schema.Datamodel, opts ...Option) (*Engine, error) {
	d, err := dialectFor(provider)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, errors.New("sql engine: db is required")
	}
	return newEngine(d, db, dm, opts), nil
}

func newEngine(d dialect, db *sql.DB, dm *schema.Datamodel, opts []Option) *Engine {
	if dm == nil {
		dm = &schema.Datamodel{}
	}
	e := &Engine{
		db:     db,
		exec:   &executor{d: d, dm: dm, now: time.Now},
		open:   make(map[string]*transaction),
		closed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DB returns the underlying database connection
func (e *Engine) DB() *sql.DB {
	return e.db
}

// Provider returns the Prisma provider name.
func (e *Engine) Provider() string {
	return e.exec.d.provider
}

// Connect establishes the database connection
func (e *Engine) Connect(ctx context.Context) error {
	return errors.Wrap(e.db.PingContext(ctx), "connect")
}

// Disconnect rolls back open transactions and closes the database if the
// engine opened it.
func (e *Engine) Disconnect(ctx context.Context) error {
	e.mu.Lock()
	ids := make([]string, 0, len(e.open))
	for id := range e.open {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	for _, id := range ids {
		if err := e.finish(id, false, "disconnect"); err != nil && !errors.Is(err, engine.ErrTransactionClosed) {
			log.Warn("rollback on disconnect failed", zap.String("tx", id), zap.Error(err))
		}
	}
	if e.ownsDB {
		return e.db.Close()
	}
	return nil
}

// StartTransaction reserves a connection, waiting up to opts.MaxWait, and
// begins a transaction on it.
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
	conn, err := e.db.Conn(acquireCtx)
	if err != nil {
		if ctx.Err() != nil {
			return engine.TxInfo{}, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return engine.TxInfo{}, engine.TransactionStartTimeout(opts.MaxWait)
		}
		return engine.TxInfo{}, errors.Wrap(err, "acquire connection")
	}

	// the transaction outlives ctx; it ends on commit, rollback or expiry
	sqlTx, err := conn.BeginTx(context.Background(), &sql.TxOptions{Isolation: opts.IsolationLevel.ToSQLIsolationLevel()})
	if err != nil {
		conn.Close()
		return engine.TxInfo{}, errors.Wrap(err, "begin transaction")
	}

	tx := &transaction{
		info: engine.TxInfo{
			ID:        uuid.NewString(),
			StartedAt: time.Now(),
			Timeout:   opts.Timeout,
		},
		conn: conn,
		tx:   sqlTx,
	}
	e.mu.Lock()
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
	log.Log("transaction started", zap.String("tx", tx.info.ID), zap.String("isolation", string(opts.IsolationLevel)))
	return tx.info, nil
}

// Commit commits the transaction and releases its connection.
func (e *Engine) Commit(ctx context.Context, id string) error {
	return e.finish(id, true, "commit")
}

// Rollback rolls back the transaction and releases its connection.
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

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return engine.TransactionClosed(op)
	}
	tx.done = true
	if tx.expires != nil {
		tx.expires.Stop()
	}

	if commit {
		err = tx.tx.Commit()
	} else {
		err = tx.tx.Rollback()
	}
	if cerr := tx.conn.Close(); cerr != nil && err == nil && !errors.Is(cerr, sql.ErrConnDone) {
		log.Warn("release connection failed", zap.String("tx", id), zap.Error(cerr))
	}

	e.mu.Lock()
	delete(e.open, id)
	e.closed[id] = struct{}{}
	e.closedIDs = append(e.closedIDs, id)
	if len(e.closedIDs) > closedHistory {
		delete(e.closed, e.closedIDs[0])
		e.closedIDs = e.closedIDs[1:]
	}
	e.mu.Unlock()

	if err != nil {
		log.Log("transaction "+op+" failed", zap.String("tx", id), zap.Error(err))
		return translate(err, "", op)
	}
	log.Log("transaction closed", zap.String("tx", id), zap.String("reason", reason))
	return nil
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

// Execute runs op inside its transaction. Writes outside a transaction
// run in a transaction of their own, since one operation may issue
// several statements.
func (e *Engine) Execute(ctx context.Context, op types.Operation) (interface{}, error) {
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
		return e.exec.execute(ctx, tx.tx, op)
	}

	if !op.Action().IsWrite() || op.Action().IsRaw() {
		return e.exec.execute(ctx, e.db, op)
	}
	sqlTx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, translate(err, op.Model(), "begin")
	}
	result, err := e.exec.execute(ctx, sqlTx, op)
	if err != nil {
		_ = sqlTx.Rollback()
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, translate(err, op.Model(), "commit")
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

var (
	_ engine.Engine    = (*Engine)(nil)
	_ engine.Lifecycle = (*Engine)(nil)
	_ engine.Inspector = (*Engine)(nil)
)
