// Package client provides the runtime client for Prisma Go.
//
// A Client routes model operations through registered extensions and
// middleware to an engine. Transaction and TransactionBatch run operations
// atomically; the body of an interactive transaction receives a TxClient,
// which can issue operations but cannot manage the connection, register
// hooks or start another transaction.
package client

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/iancoleman/strcase"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/satishbabariya/prisma-go-client/internal/debug"
	"github.com/satishbabariya/prisma-go-client/runtime/engine"
	"github.com/satishbabariya/prisma-go-client/runtime/schema"
)

var log = debug.New("prisma:client")

// core is the state shared by a client and every client derived from it
// with Extends.
type core struct {
	engine          engine.Engine
	models          map[string]*schema.Model
	modelNames      []string
	logger          *zap.Logger
	txDefaults      TxOptions
	rollbackTimeout time.Duration
	observer        Observer

	// mu guards middleware and listeners.
	mu         sync.RWMutex
	middleware []Middleware
	listeners  map[EventType][]func(Event)

	// lifecycle orders closing against pending.Add.
	lifecycle sync.Mutex
	closed    atomic.Bool
	// pending tracks rollbacks still running after Transaction returned.
	pending sync.WaitGroup
}

// Client is the main database client
type Client struct {
	*core
	extensions []Extension
}

// New creates a client on top of e.
func New(e engine.Engine, opts ...Option) (*Client, error) {
	if e == nil {
		return nil, errors.New("client: engine is required")
	}
	o := options{
		logger:          zap.NewNop(),
		txDefaults:      DefaultTxOptions(),
		rollbackTimeout: DefaultRollbackTimeout,
		observer:        nopObserver{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	if !o.txDefaults.IsolationLevel.Valid() {
		return nil, &ValidationError{Message: "unknown isolation level " + string(o.txDefaults.IsolationLevel)}
	}

	c := &core{
		engine:          e,
		logger:          o.logger,
		txDefaults:      o.txDefaults,
		rollbackTimeout: o.rollbackTimeout,
		observer:        o.observer,
		listeners:       make(map[EventType][]func(Event)),
	}
	if o.datamodel != nil {
		c.models = make(map[string]*schema.Model, 2*len(o.datamodel.Models))
		for _, m := range o.datamodel.Models {
			c.models[m.Name] = m
			c.models[strcase.ToLowerCamel(m.Name)] = m
			c.modelNames = append(c.modelNames, m.Name)
		}
		sort.Strings(c.modelNames)
	}
	log.Log("client created", zap.Strings("models", c.modelNames))
	return &Client{core: c}, nil
}

// Connect connects the engine when it holds connections.
func (c *Client) Connect(ctx context.Context) error {
	if lc, ok := c.engine.(engine.Lifecycle); ok {
		if err := lc.Connect(ctx); err != nil {
			return err
		}
	}
	c.lifecycle.Lock()
	c.closed.Store(false)
	c.lifecycle.Unlock()
	c.emit(Event{Type: EventInfo, Message: "connected"})
	return nil
}

// Disconnect rejects further operations, waits for pending rollbacks and
// disconnects the engine.
func (c *Client) Disconnect(ctx context.Context) error {
	c.lifecycle.Lock()
	c.closed.Store(true)
	c.lifecycle.Unlock()
	c.pending.Wait()
	if lc, ok := c.engine.(engine.Lifecycle); ok {
		if err := lc.Disconnect(ctx); err != nil {
			return err
		}
	}
	c.emit(Event{Type: EventInfo, Message: "disconnected"})
	return nil
}

// Engine returns the underlying engine.
func (c *Client) Engine() engine.Engine {
	return c.engine
}

// Models returns the model names of the dispatch table, sorted.
func (c *Client) Models() []string {
	return append([]string(nil), c.modelNames...)
}

// Model returns the model client for name. Both "User" and "user" resolve
// to the User model. Operations on an unknown model fail with a
// *ValidationError when executed.
func (c *Client) Model(name string) *ModelClient {
	return c.model(nil, name)
}

// Use registers a legacy middleware. Middleware runs after extensions, in
// registration order, and applies to every client sharing this one's
// engine, including clients derived with Extends.
func (c *Client) Use(mw Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middleware = append(c.middleware, mw)
}

// Extends returns a new client whose operations also pass through ext.
// Extensions run in the order they were added; the receiver is unchanged.
func (c *Client) Extends(ext Extension) *Client {
	exts := make([]Extension, 0, len(c.extensions)+1)
	exts = append(exts, c.extensions...)
	exts = append(exts, ext.normalize())
	return &Client{core: c.core, extensions: exts}
}

// QueryRaw runs a raw query returning rows.
func (c *Client) QueryRaw(query string, params ...interface{}) *Query {
	return c.raw(nil, rawQueryOp(query, params))
}

// ExecuteRaw runs a raw statement returning the affected row count.
func (c *Client) ExecuteRaw(query string, params ...interface{}) *Query {
	return c.raw(nil, rawExecuteOp(query, params))
}

// RunCommandRaw runs a raw database command.
func (c *Client) RunCommandRaw(command map[string]interface{}) *Query {
	return c.raw(nil, rawCommandOp(command))
}

func (c *Client) model(tx *Transaction, name string) *ModelClient {
	mc := &ModelClient{client: c, tx: tx, name: name}
	if c.models == nil {
		mc.name = strcase.ToCamel(name)
		return mc
	}
	m, ok := c.models[name]
	if !ok {
		m, ok = c.models[strcase.ToCamel(name)]
	}
	if !ok {
		mc.err = &ValidationError{Model: name, Message: "unknown model " + name}
		return mc
	}
	mc.name = m.Name
	return mc
}
