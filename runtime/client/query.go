package client

import (
	"context"

	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

// ModelClient builds operations for one model.
type ModelClient struct {
	client *Client
	tx     *Transaction
	name   string
	err    error
}

// Name returns the resolved model name.
func (m *ModelClient) Name() string { return m.name }

// Action builds an operation of any model action.
func (m *ModelClient) Action(action types.Action, args types.Args) *Query {
	q := &Query{client: m.client, tx: m.tx, op: types.NewOperation(m.name, action, args), err: m.err}
	if q.err == nil && (action.IsRaw() || !action.Valid()) {
		q.err = &ValidationError{Model: m.name, Action: action, Message: "unknown action " + action.String()}
	}
	return q
}

func (m *ModelClient) FindUnique(args types.Args) *Query {
	return m.Action(types.FindUnique, args)
}

func (m *ModelClient) FindUniqueOrThrow(args types.Args) *Query {
	return m.Action(types.FindUniqueOrThrow, args)
}

func (m *ModelClient) FindFirst(args types.Args) *Query {
	return m.Action(types.FindFirst, args)
}

func (m *ModelClient) FindFirstOrThrow(args types.Args) *Query {
	return m.Action(types.FindFirstOrThrow, args)
}

func (m *ModelClient) FindMany(args types.Args) *Query {
	return m.Action(types.FindMany, args)
}

func (m *ModelClient) Create(args types.Args) *Query {
	return m.Action(types.Create, args)
}

func (m *ModelClient) CreateMany(args types.Args) *Query {
	return m.Action(types.CreateMany, args)
}

func (m *ModelClient) Update(args types.Args) *Query {
	return m.Action(types.Update, args)
}

func (m *ModelClient) UpdateMany(args types.Args) *Query {
	return m.Action(types.UpdateMany, args)
}

func (m *ModelClient) Upsert(args types.Args) *Query {
	return m.Action(types.Upsert, args)
}

func (m *ModelClient) Delete(args types.Args) *Query {
	return m.Action(types.Delete, args)
}

func (m *ModelClient) DeleteMany(args types.Args) *Query {
	return m.Action(types.DeleteMany, args)
}

func (m *ModelClient) Aggregate(args types.Args) *Query {
	return m.Action(types.Aggregate, args)
}

func (m *ModelClient) GroupBy(args types.Args) *Query {
	return m.Action(types.GroupBy, args)
}

func (m *ModelClient) Count(args types.Args) *Query {
	return m.Action(types.Count, args)
}

// Query is a lazy operation. Nothing reaches the engine until Exec.
type Query struct {
	client *Client
	tx     *Transaction
	op     types.Operation
	err    error
}

// Operation returns the operation the query will run.
func (q *Query) Operation() types.Operation { return q.op }

// Exec runs the query through extensions and middleware, inside the
// transaction the query is bound to, if any.
func (q *Query) Exec(ctx context.Context) (interface{}, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.client.execute(ctx, q.tx, q.op)
}

// bind returns a copy of the query bound to tx.
func (q *Query) bind(tx *Transaction) *Query {
	bound := *q
	bound.tx = tx
	return &bound
}

func (c *Client) raw(tx *Transaction, op types.Operation) *Query {
	return &Query{client: c, tx: tx, op: op}
}

func rawQueryOp(query string, params []interface{}) types.Operation {
	return types.NewOperation("", types.QueryRaw, types.Args{"query": query, "parameters": params})
}

func rawExecuteOp(query string, params []interface{}) types.Operation {
	return types.NewOperation("", types.ExecuteRaw, types.Args{"query": query, "parameters": params})
}

func rawCommandOp(command map[string]interface{}) types.Operation {
	return types.NewOperation("", types.RunCommandRaw, types.Args{"command": command})
}
