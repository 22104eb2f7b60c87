package client

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/satishbabariya/prisma-go-client/runtime/engine"
	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

// fakeEngine is a scripted engine that records every call.
type fakeEngine struct {
	starts    atomic.Int64
	commits   atomic.Int64
	rollbacks atomic.Int64
	executes  atomic.Int64

	mu        sync.Mutex
	ops       []types.Operation
	startOpts []engine.TxOptions

	startFn    func(ctx context.Context, opts engine.TxOptions) (engine.TxInfo, error)
	execFn     func(ctx context.Context, op types.Operation) (interface{}, error)
	commitFn   func(ctx context.Context, id string) error
	rollbackFn func(ctx context.Context, id string) error
}

func (f *fakeEngine) StartTransaction(ctx context.Context, opts engine.TxOptions) (engine.TxInfo, error) {
	n := f.starts.Inc()
	f.mu.Lock()
	f.startOpts = append(f.startOpts, opts)
	f.mu.Unlock()
	if f.startFn != nil {
		return f.startFn(ctx, opts)
	}
	return engine.TxInfo{ID: fmt.Sprintf("tx-%d", n), Timeout: opts.Timeout}, nil
}

func (f *fakeEngine) Commit(ctx context.Context, id string) error {
	f.commits.Inc()
	if f.commitFn != nil {
		return f.commitFn(ctx, id)
	}
	return nil
}

func (f *fakeEngine) Rollback(ctx context.Context, id string) error {
	f.rollbacks.Inc()
	if f.rollbackFn != nil {
		return f.rollbackFn(ctx, id)
	}
	return nil
}

func (f *fakeEngine) Execute(ctx context.Context, op types.Operation) (interface{}, error) {
	f.executes.Inc()
	f.mu.Lock()
	f.ops = append(f.ops, op)
	f.mu.Unlock()
	if f.execFn != nil {
		return f.execFn(ctx, op)
	}
	return map[string]interface{}{"operation": op.Name(), "tx": op.TxID()}, nil
}

func (f *fakeEngine) operations() []types.Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Operation(nil), f.ops...)
}

func newFakeClient(t *testing.T, f *fakeEngine, opts ...Option) *Client {
	t.Helper()
	c, err := New(f, opts...)
	require.NoError(t, err)
	return c
}
