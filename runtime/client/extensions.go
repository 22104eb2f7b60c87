// Package client provides extensions API for Prisma client.
package client

import (
	"context"
	"time"

	"github.com/iancoleman/strcase"
	"go.uber.org/zap"

	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

// Selector wildcards.
const (
	// AllModels selects every model.
	AllModels = "$allModels"
	// AllOperations selects every action of the selected models, or every
	// operation when used at the top level of a QueryExtension.
	AllOperations = "$allOperations"
)

// QueryParams is what a QueryHandler receives.
type QueryParams struct {
	// Model is empty for raw operations.
	Model     string
	Operation types.Action
	// Args is the handler's own copy; mutating it and passing it to Query
	// changes what runs downstream without touching the caller's arguments.
	Args          types.Args
	TransactionID string
	// Query continues the chain with args.
	Query func(ctx context.Context, args types.Args) (interface{}, error)
}

// QueryHandler intercepts an operation. It may call params.Query and alter
// the result, or return without calling it to short-circuit the chain.
type QueryHandler func(ctx context.Context, params QueryParams) (interface{}, error)

// ModelHandlers maps an action name, or AllOperations, to its handler.
type ModelHandlers map[string]QueryHandler

// QueryExtension selects handlers by model and operation.
type QueryExtension struct {
	// Models is keyed by model name or AllModels.
	Models map[string]ModelHandlers

	// Raw operation handlers.
	QueryRaw      QueryHandler
	ExecuteRaw    QueryHandler
	RunCommandRaw QueryHandler

	// AllOperations runs for every operation, model or raw.
	AllOperations QueryHandler
}

// Extension defines hooks for extending Prisma client behavior
type Extension struct {
	Name  string
	Query QueryExtension
}

// normalize resolves lowerCamel model keys such as "user" to "User".
func (e Extension) normalize() Extension {
	if len(e.Query.Models) == 0 {
		return e
	}
	models := make(map[string]ModelHandlers, len(e.Query.Models))
	for name, handlers := range e.Query.Models {
		if name != AllModels {
			name = strcase.ToCamel(name)
		}
		merged := models[name]
		if merged == nil {
			merged = ModelHandlers{}
			models[name] = merged
		}
		for op, h := range handlers {
			merged[op] = h
		}
	}
	e.Query.Models = models
	return e
}

// handlers returns the handlers of e matching op, most specific first.
func (e Extension) handlers(op types.Operation) []QueryHandler {
	var out []QueryHandler
	add := func(h QueryHandler) {
		if h != nil {
			out = append(out, h)
		}
	}

	if op.Action().IsRaw() {
		switch op.Action() {
		case types.QueryRaw:
			add(e.Query.QueryRaw)
		case types.ExecuteRaw:
			add(e.Query.ExecuteRaw)
		case types.RunCommandRaw:
			add(e.Query.RunCommandRaw)
		}
		add(e.Query.AllOperations)
		return out
	}

	action := op.Action().String()
	if model := e.Query.Models[op.Model()]; model != nil {
		add(model[action])
		add(model[AllOperations])
	}
	if all := e.Query.Models[AllModels]; all != nil {
		add(all[action])
		add(all[AllOperations])
	}
	add(e.Query.AllOperations)
	return out
}

// LoggingExtension creates an extension that logs operations
func LoggingExtension(logger *zap.Logger) Extension {
	return Extension{
		Name: "logging",
		Query: QueryExtension{
			AllOperations: func(ctx context.Context, p QueryParams) (interface{}, error) {
				start := time.Now()
				fields := []zap.Field{
					zap.String("model", p.Model),
					zap.String("operation", p.Operation.String()),
					zap.String("tx", p.TransactionID),
				}
				logger.Debug("operation started", append(fields, zap.Any("args", p.Args))...)
				result, err := p.Query(ctx, p.Args)
				fields = append(fields, zap.Duration("duration", time.Since(start)))
				if err != nil {
					logger.Warn("operation failed", append(fields, zap.Error(err))...)
				} else {
					logger.Debug("operation completed", fields...)
				}
				return result, err
			},
		},
	}
}

// TimingExtension creates an extension that measures operation timing
func TimingExtension(onTiming func(model string, operation types.Action, duration time.Duration)) Extension {
	return Extension{
		Name: "timing",
		Query: QueryExtension{
			AllOperations: func(ctx context.Context, p QueryParams) (interface{}, error) {
				start := time.Now()
				result, err := p.Query(ctx, p.Args)
				if onTiming != nil {
					onTiming(p.Model, p.Operation, time.Since(start))
				}
				return result, err
			},
		},
	}
}

// ErrorHandlingExtension creates an extension that handles errors
func ErrorHandlingExtension(onError func(model string, operation types.Action, err error)) Extension {
	return Extension{
		Name: "error-handling",
		Query: QueryExtension{
			AllOperations: func(ctx context.Context, p QueryParams) (interface{}, error) {
				result, err := p.Query(ctx, p.Args)
				if err != nil && onError != nil {
					onError(p.Model, p.Operation, err)
				}
				return result, err
			},
		},
	}
}

// ResultTransformationExtension creates an extension that transforms
// successful results of the selected model, or every model for AllModels.
func ResultTransformationExtension(model string, transform func(params QueryParams, result interface{}) interface{}) Extension {
	return Extension{
		Name: "result-transformation",
		Query: QueryExtension{
			Models: map[string]ModelHandlers{
				model: {
					AllOperations: func(ctx context.Context, p QueryParams) (interface{}, error) {
						result, err := p.Query(ctx, p.Args)
						if err != nil || result == nil || transform == nil {
							return result, err
						}
						return transform(p, result), nil
					},
				},
			},
		},
	}
}
