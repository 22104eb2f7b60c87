// Package client provides middleware support for query hooks.
package client

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

// MiddlewareParams describes the operation passing through a middleware.
type MiddlewareParams struct {
	// Model is empty for raw operations.
	Model            string
	Action           types.Action
	Args             types.Args
	RunInTransaction bool
	TransactionID    string
}

// Next continues the middleware chain.
type Next func(ctx context.Context, params *MiddlewareParams) (interface{}, error)

// Middleware is a function that intercepts operations. Not calling next
// short-circuits the chain and the engine.
type Middleware func(ctx context.Context, params *MiddlewareParams, next Next) (interface{}, error)

// LoggingMiddleware creates a middleware that logs operations
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(ctx context.Context, params *MiddlewareParams, next Next) (interface{}, error) {
		start := time.Now()
		result, err := next(ctx, params)
		fields := []zap.Field{
			zap.String("model", params.Model),
			zap.String("action", params.Action.String()),
			zap.Bool("in_transaction", params.RunInTransaction),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			logger.Warn("query failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("query completed", fields...)
		}
		return result, err
	}
}

// TimingMiddleware creates a middleware that measures operation time
func TimingMiddleware(onTiming func(params *MiddlewareParams, duration time.Duration)) Middleware {
	return func(ctx context.Context, params *MiddlewareParams, next Next) (interface{}, error) {
		start := time.Now()
		result, err := next(ctx, params)
		if onTiming != nil {
			onTiming(params, time.Since(start))
		}
		return result, err
	}
}

// ErrorMiddleware creates a middleware that handles errors
func ErrorMiddleware(onError func(params *MiddlewareParams, err error)) Middleware {
	return func(ctx context.Context, params *MiddlewareParams, next Next) (interface{}, error) {
		result, err := next(ctx, params)
		if err != nil && onError != nil {
			onError(params, err)
		}
		return result, err
	}
}
