package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/satishbabariya/prisma-go-client/runtime/engine"
	"github.com/satishbabariya/prisma-go-client/runtime/schema"
	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

type trace struct {
	mu    sync.Mutex
	steps []string
}

func (tr *trace) add(step string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.steps = append(tr.steps, step)
}

func (tr *trace) all() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.steps...)
}

func (tr *trace) handler(name string) QueryHandler {
	return func(ctx context.Context, p QueryParams) (interface{}, error) {
		tr.add(name + ":before")
		result, err := p.Query(ctx, p.Args)
		tr.add(name + ":after")
		return result, err
	}
}

func (tr *trace) middleware(name string) Middleware {
	return func(ctx context.Context, params *MiddlewareParams, next Next) (interface{}, error) {
		tr.add(name + ":before")
		result, err := next(ctx, params)
		tr.add(name + ":after")
		return result, err
	}
}

func TestExtensionsRunInRegistrationOrder(t *testing.T) {
	f := &fakeEngine{}
	tr := &trace{}
	f.execFn = func(ctx context.Context, op types.Operation) (interface{}, error) {
		tr.add("engine")
		return nil, nil
	}
	base := newFakeClient(t, f)
	base.Use(tr.middleware("mw1"))
	base.Use(tr.middleware("mw2"))

	c := base.
		Extends(Extension{Name: "a", Query: QueryExtension{AllOperations: tr.handler("a")}}).
		Extends(Extension{Name: "b", Query: QueryExtension{AllOperations: tr.handler("b")}})

	_, err := c.Model("User").FindMany(nil).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"a:before", "b:before", "mw1:before", "mw2:before",
		"engine",
		"mw2:after", "mw1:after", "b:after", "a:after",
	}, tr.all())
}

func TestExtensionSelectorOrder(t *testing.T) {
	f := &fakeEngine{}
	tr := &trace{}
	c := newFakeClient(t, f).Extends(Extension{Query: QueryExtension{
		Models: map[string]ModelHandlers{
			"user": {
				"create":      tr.handler("user.create"),
				AllOperations: tr.handler("user.all"),
				"findMany":    tr.handler("user.findMany"),
			},
			AllModels: {
				"create":      tr.handler("models.create"),
				AllOperations: tr.handler("models.all"),
			},
		},
		AllOperations: tr.handler("top"),
	}})

	_, err := c.Model("User").Create(types.Args{"data": map[string]interface{}{}}).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"user.create:before", "user.all:before", "models.create:before", "models.all:before", "top:before",
		"top:after", "models.all:after", "models.create:after", "user.all:after", "user.create:after",
	}, tr.all())

	tr = &trace{}
	c = newFakeClient(t, f).Extends(Extension{Query: QueryExtension{
		Models:        map[string]ModelHandlers{AllModels: {AllOperations: tr.handler("models.all")}},
		QueryRaw:      tr.handler("queryRaw"),
		ExecuteRaw:    tr.handler("executeRaw"),
		AllOperations: tr.handler("top"),
	}})
	_, err = c.QueryRaw("SELECT 1").Exec(context.Background())
	require.NoError(t, err)
	_, err = c.ExecuteRaw("DELETE FROM t").Exec(context.Background())
	require.NoError(t, err)
	_, err = c.Model("Post").Count(nil).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"queryRaw:before", "top:before", "top:after", "queryRaw:after",
		"executeRaw:before", "top:before", "top:after", "executeRaw:after",
		"models.all:before", "top:before", "top:after", "models.all:after",
	}, tr.all())
}

func TestExtensionShortCircuit(t *testing.T) {
	f := &fakeEngine{}
	c := newFakeClient(t, f).Extends(Extension{Query: QueryExtension{
		Models: map[string]ModelHandlers{
			"User": {"findUnique": func(ctx context.Context, p QueryParams) (interface{}, error) {
				return map[string]interface{}{"id": "cached"}, nil
			}},
		},
	}})

	result, err := c.Model("User").FindUnique(types.Args{"where": map[string]interface{}{"id": "1"}}).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"id": "cached"}, result)
	assert.Equal(t, int64(0), f.executes.Load())
}

func TestInterceptorArgsAreIsolated(t *testing.T) {
	f := &fakeEngine{}
	var seenByMiddleware types.Args
	base := newFakeClient(t, f)
	base.Use(func(ctx context.Context, params *MiddlewareParams, next Next) (interface{}, error) {
		seenByMiddleware = params.Args.Clone()
		params.Args["take"] = 5
		return next(ctx, params)
	})

	var firstSaw types.Args
	c := base.
		Extends(Extension{Query: QueryExtension{AllOperations: func(ctx context.Context, p QueryParams) (interface{}, error) {
			next := p.Args.Clone()
			next["where"] = map[string]interface{}{"team": "core"}
			result, err := p.Query(ctx, next)
			firstSaw = p.Args
			return result, err
		}}}).
		Extends(Extension{Query: QueryExtension{AllOperations: func(ctx context.Context, p QueryParams) (interface{}, error) {
			p.Args["where"].(map[string]interface{})["team"] = "tampered"
			return p.Query(ctx, p.Args)
		}}})

	args := types.Args{"where": map[string]interface{}{"id": "1"}}
	_, err := c.Model("User").FindMany(args).Exec(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.Args{"where": map[string]interface{}{"id": "1"}}, args)
	assert.Equal(t, types.Args{"where": map[string]interface{}{"id": "1"}}, firstSaw)
	assert.Equal(t, types.Args{"where": map[string]interface{}{"team": "tampered"}}, seenByMiddleware)
	ops := f.operations()
	require.Len(t, ops, 1)
	assert.Equal(t, types.Args{"where": map[string]interface{}{"team": "tampered"}, "take": 5}, ops[0].Args())
}

func TestMiddlewareSeesTransaction(t *testing.T) {
	f := &fakeEngine{}
	c := newFakeClient(t, f)
	var seen []MiddlewareParams
	c.Use(func(ctx context.Context, params *MiddlewareParams, next Next) (interface{}, error) {
		seen = append(seen, *params)
		return next(ctx, params)
	})

	_, err := c.Model("User").Count(nil).Exec(context.Background())
	require.NoError(t, err)
	_, err = c.Transaction(context.Background(), func(ctx context.Context, tx *TxClient) (interface{}, error) {
		return tx.Model("User").Count(nil).Exec(ctx)
	})
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.False(t, seen[0].RunInTransaction)
	assert.Empty(t, seen[0].TransactionID)
	assert.True(t, seen[1].RunInTransaction)
	assert.Equal(t, "tx-1", seen[1].TransactionID)
	assert.Equal(t, types.Count, seen[1].Action)
}

func TestExtensionsApplyInsideTransactions(t *testing.T) {
	f := &fakeEngine{}
	var txIDs []string
	c := newFakeClient(t, f).Extends(Extension{Query: QueryExtension{
		AllOperations: func(ctx context.Context, p QueryParams) (interface{}, error) {
			txIDs = append(txIDs, p.TransactionID)
			return p.Query(ctx, p.Args)
		},
	}})

	_, err := c.TransactionBatch(context.Background(), []*Query{
		c.Model("User").Count(nil),
		c.QueryRaw("SELECT 1"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tx-1", "tx-1"}, txIDs)
}

func TestExtendsLeavesReceiverUnchanged(t *testing.T) {
	f := &fakeEngine{}
	calls := 0
	base := newFakeClient(t, f)
	extended := base.Extends(Extension{Query: QueryExtension{AllOperations: func(ctx context.Context, p QueryParams) (interface{}, error) {
		calls++
		return p.Query(ctx, p.Args)
	}}})

	_, err := base.Model("User").Count(nil).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
	_, err = extended.Model("User").Count(nil).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// middleware is shared by both
	mwCalls := 0
	extended.Use(func(ctx context.Context, params *MiddlewareParams, next Next) (interface{}, error) {
		mwCalls++
		return next(ctx, params)
	})
	_, err = base.Model("User").Count(nil).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, mwCalls)
}

func TestEngineErrorsAreWrapped(t *testing.T) {
	f := &fakeEngine{execFn: func(ctx context.Context, op types.Operation) (interface{}, error) {
		return nil, engine.UniqueConstraint(op.Model(), []string{"email"})
	}}
	c := newFakeClient(t, f)

	_, err := c.Model("User").Create(types.Args{"data": map[string]interface{}{"email": "a@x.io"}}).Exec(context.Background())
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "User", reqErr.Model)
	assert.Equal(t, types.Create, reqErr.Action)
	assert.ErrorIs(t, err, engine.ErrUniqueConstraint)

	var engErr *engine.Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, "P2002", engErr.Code)
}

func TestContextErrorsAreNotWrapped(t *testing.T) {
	f := &fakeEngine{}
	c := newFakeClient(t, f)
	f.execFn = func(ctx context.Context, op types.Operation) (interface{}, error) {
		return nil, context.DeadlineExceeded
	}
	_, err := c.Model("User").Count(nil).Exec(context.Background())
	assert.True(t, err == context.DeadlineExceeded)
}

func TestInterceptorErrorsAreNotWrapped(t *testing.T) {
	f := &fakeEngine{}
	errDenied := errors.New("denied")
	c := newFakeClient(t, f).Extends(Extension{Query: QueryExtension{AllOperations: func(ctx context.Context, p QueryParams) (interface{}, error) {
		return nil, errDenied
	}}})
	_, err := c.Model("User").Count(nil).Exec(context.Background())
	assert.True(t, err == errDenied)

	base := newFakeClient(t, f)
	base.Use(func(ctx context.Context, params *MiddlewareParams, next Next) (interface{}, error) {
		return nil, errDenied
	})
	_, err = base.Model("User").Count(nil).Exec(context.Background())
	assert.True(t, err == errDenied)
	assert.Equal(t, int64(0), f.executes.Load())
}

func TestModelResolution(t *testing.T) {
	dm := schema.MustParseString("test.prisma", `
model User {
  id    String @id
  email String @unique
}

model BlogPost {
  id Int @id
}
`)
	f := &fakeEngine{}
	c := newFakeClient(t, f, WithDatamodel(dm))

	assert.Equal(t, []string{"BlogPost", "User"}, c.Models())
	assert.Equal(t, "User", c.Model("user").Name())
	assert.Equal(t, "BlogPost", c.Model("blogPost").Name())
	assert.Equal(t, "BlogPost", c.Model("blog_post").Name())

	_, err := c.Model("Comment").FindMany(nil).Exec(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Comment", verr.Model)

	_, err = c.Model("User").Action("explode", nil).Exec(context.Background())
	require.ErrorAs(t, err, &verr)
	_, err = c.Model("User").Action(types.QueryRaw, nil).Exec(context.Background())
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, int64(0), f.executes.Load())
}

func TestHelperExtensionsAndMiddleware(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	f := &fakeEngine{}
	f.execFn = func(ctx context.Context, op types.Operation) (interface{}, error) {
		if op.Action() == types.Delete {
			return nil, engine.RecordNotFound(op.Model(), "No record was found for a delete.")
		}
		return map[string]interface{}{"name": "ada"}, nil
	}

	var timed []string
	var failed []string
	var mwTimed []types.Action
	var mwFailed []types.Action
	base := newFakeClient(t, f)
	base.Use(LoggingMiddleware(logger))
	base.Use(TimingMiddleware(func(params *MiddlewareParams, d time.Duration) {
		mwTimed = append(mwTimed, params.Action)
	}))
	base.Use(ErrorMiddleware(func(params *MiddlewareParams, err error) {
		mwFailed = append(mwFailed, params.Action)
	}))
	c := base.
		Extends(LoggingExtension(logger)).
		Extends(TimingExtension(func(model string, op types.Action, d time.Duration) {
			timed = append(timed, model+"."+op.String())
		})).
		Extends(ErrorHandlingExtension(func(model string, op types.Action, err error) {
			failed = append(failed, model+"."+op.String())
		})).
		Extends(ResultTransformationExtension("user", func(p QueryParams, result interface{}) interface{} {
			m := result.(map[string]interface{})
			m["name"] = "ADA"
			return m
		}))

	result, err := c.Model("User").FindFirst(nil).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"name": "ADA"}, result)

	_, err = c.Model("User").Delete(types.Args{"where": map[string]interface{}{"id": "x"}}).Exec(context.Background())
	assert.ErrorIs(t, err, engine.ErrRecordNotFound)

	assert.Equal(t, []string{"User.findFirst", "User.delete"}, timed)
	assert.Equal(t, []string{"User.delete"}, failed)
	assert.Equal(t, []types.Action{types.FindFirst, types.Delete}, mwTimed)
	assert.Equal(t, []types.Action{types.Delete}, mwFailed)
	assert.Equal(t, 2, logs.FilterMessage("operation started").Len())
	assert.Equal(t, 1, logs.FilterMessage("operation completed").Len())
	assert.Equal(t, 1, logs.FilterMessage("operation failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("query completed").Len())
	assert.Equal(t, 1, logs.FilterMessage("query failed").Len())
}

func TestDisconnectedClientRejectsOperations(t *testing.T) {
	f := &fakeEngine{}
	c := newFakeClient(t, f)
	var infos []string
	c.On(EventInfo, func(e Event) { infos = append(infos, e.Message) })

	require.NoError(t, c.Disconnect(context.Background()))
	_, err := c.Model("User").Count(nil).Exec(context.Background())
	assert.ErrorIs(t, err, ErrClientClosed)
	_, err = c.Transaction(context.Background(), func(ctx context.Context, tx *TxClient) (interface{}, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrClientClosed)

	require.NoError(t, c.Connect(context.Background()))
	_, err = c.Model("User").Count(nil).Exec(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []string{"disconnected", "connected"}, infos)
}
