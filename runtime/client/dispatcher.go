package client

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/satishbabariya/prisma-go-client/runtime/engine"
	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

// execute runs op through the extensions of c, then the shared middleware,
// then the engine. tx is nil outside a transaction.
func (c *Client) execute(ctx context.Context, tx *Transaction, op types.Operation) (interface{}, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if tx != nil {
		if err := tx.checkOpen("query"); err != nil {
			return nil, err
		}
	}

	var handlers []QueryHandler
	for _, ext := range c.extensions {
		handlers = append(handlers, ext.handlers(op)...)
	}
	c.mu.RLock()
	middleware := c.middleware
	c.mu.RUnlock()

	txID := ""
	if tx != nil {
		txID = tx.ID()
	}

	var call func(ctx context.Context, i int, args types.Args) (interface{}, error)
	call = func(ctx context.Context, i int, args types.Args) (interface{}, error) {
		if i == len(handlers) {
			return c.runMiddleware(ctx, tx, op.WithArgs(args), middleware)
		}
		return handlers[i](ctx, QueryParams{
			Model:         op.Model(),
			Operation:     op.Action(),
			Args:          args.Clone(),
			TransactionID: txID,
			Query: func(ctx context.Context, next types.Args) (interface{}, error) {
				return call(ctx, i+1, next)
			},
		})
	}
	return call(ctx, 0, op.Args())
}

func (c *Client) runMiddleware(ctx context.Context, tx *Transaction, op types.Operation, middleware []Middleware) (interface{}, error) {
	var next func(i int) Next
	next = func(i int) Next {
		return func(ctx context.Context, params *MiddlewareParams) (interface{}, error) {
			if i == len(middleware) {
				return c.send(ctx, tx, op.WithArgs(params.Args))
			}
			copied := *params
			copied.Args = params.Args.Clone()
			return middleware[i](ctx, &copied, next(i+1))
		}
	}

	params := &MiddlewareParams{
		Model:            op.Model(),
		Action:           op.Action(),
		Args:             op.Args(),
		RunInTransaction: tx != nil,
	}
	if tx != nil {
		params.TransactionID = tx.ID()
	}
	return next(0)(ctx, params)
}

// send hands op to the engine, inside tx when it is set.
func (c *Client) send(ctx context.Context, tx *Transaction, op types.Operation) (interface{}, error) {
	txID := ""
	if tx != nil {
		if err := tx.checkOpen("query"); err != nil {
			return nil, err
		}
		txID = tx.ID()
		op = op.WithTxID(txID)
	}

	start := time.Now()
	result, err := c.engine.Execute(ctx, op)
	duration := time.Since(start)
	c.observer.QueryExecuted(op, duration, err)
	c.emitQuery(op.Name(), op.Args(), txID, duration)
	log.Log("query", zap.String("operation", op.Name()), zap.String("tx", txID), zap.Duration("duration", duration), zap.Error(err))

	if tx != nil {
		// the transaction ended while the query was in flight
		if closed := tx.checkOpen("query"); closed != nil {
			return nil, closed
		}
		if err != nil && errors.Is(err, engine.ErrTransactionClosed) {
			return nil, closedError(txID, "query", err)
		}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &RequestError{Model: op.Model(), Action: op.Action(), Err: err}
	}
	return result, nil
}
