package memory

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/prisma-go-client/runtime/engine"
	"github.com/satishbabariya/prisma-go-client/runtime/schema"
	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

const testSchema = `
model User {
  id        String   @id @default(uuid())
  email     String   @unique
  name      String?
  val       Int      @default(0)
  team      String   @default("core")
  updatedAt DateTime @updatedAt
}

model Post {
  id       Int    @id @default(autoincrement())
  title    String
  authorId String

  @@unique([authorId, title])
}
`

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(schema.MustParseString("test.prisma", testSchema), opts...)
	require.NoError(t, err)
	return e
}

func exec(t *testing.T, e *Engine, model string, action types.Action, args types.Args) interface{} {
	t.Helper()
	out, err := e.Execute(context.Background(), types.NewOperation(model, action, args))
	require.NoError(t, err)
	return out
}

func createUser(t *testing.T, e *Engine, email string, val int) map[string]interface{} {
	t.Helper()
	out := exec(t, e, "User", types.Create, types.Args{"data": map[string]interface{}{"email": email, "val": val}})
	return out.(map[string]interface{})
}

func TestCreateAppliesDefaults(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	e := newTestEngine(t, WithClock(func() time.Time { return fixed }))

	u := createUser(t, e, "a@x.io", 1)
	assert.NotEmpty(t, u["id"])
	assert.Equal(t, "core", u["team"])
	assert.Nil(t, u["name"])
	assert.Equal(t, fixed, u["updatedAt"])

	p1 := exec(t, e, "Post", types.Create, types.Args{"data": map[string]interface{}{"title": "one", "authorId": u["id"]}})
	p2 := exec(t, e, "Post", types.Create, types.Args{"data": map[string]interface{}{"title": "two", "authorId": u["id"]}})
	assert.Equal(t, int64(1), p1.(map[string]interface{})["id"])
	assert.Equal(t, int64(2), p2.(map[string]interface{})["id"])
}

func TestCreateValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Execute(ctx, types.NewOperation("User", types.Create, types.Args{"data": map[string]interface{}{"name": "x"}}))
	assert.ErrorIs(t, err, engine.ErrValidation)

	_, err = e.Execute(ctx, types.NewOperation("User", types.Create, types.Args{"data": map[string]interface{}{"email": "a", "bogus": 1}}))
	assert.ErrorIs(t, err, engine.ErrValidation)

	_, err = e.Execute(ctx, types.NewOperation("Nope", types.FindMany, nil))
	assert.ErrorIs(t, err, engine.ErrValidation)

	_, err = e.Execute(ctx, types.NewOperation("", types.QueryRaw, types.Args{"query": "SELECT 1"}))
	assert.ErrorIs(t, err, engine.ErrUnsupported)
}

func TestUniqueConstraint(t *testing.T) {
	e := newTestEngine(t)
	createUser(t, e, "a@x.io", 1)

	_, err := e.Execute(context.Background(), types.NewOperation("User", types.Create,
		types.Args{"data": map[string]interface{}{"email": "a@x.io"}}))
	require.ErrorIs(t, err, engine.ErrUniqueConstraint)
	var engErr *engine.Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, "P2002", engErr.Code)
	assert.Equal(t, []string{"email"}, engErr.Meta["target"])

	out := exec(t, e, "User", types.CreateMany, types.Args{
		"data": []interface{}{
			map[string]interface{}{"email": "a@x.io"},
			map[string]interface{}{"email": "b@x.io"},
		},
		"skipDuplicates": true,
	})
	assert.Equal(t, map[string]interface{}{"count": 1}, out)
}

func TestCompoundUnique(t *testing.T) {
	e := newTestEngine(t)
	exec(t, e, "Post", types.Create, types.Args{"data": map[string]interface{}{"title": "t", "authorId": "u1"}})
	exec(t, e, "Post", types.Create, types.Args{"data": map[string]interface{}{"title": "t", "authorId": "u2"}})

	_, err := e.Execute(context.Background(), types.NewOperation("Post", types.Create,
		types.Args{"data": map[string]interface{}{"title": "t", "authorId": "u1"}}))
	assert.ErrorIs(t, err, engine.ErrUniqueConstraint)

	found := exec(t, e, "Post", types.FindUnique, types.Args{
		"where": map[string]interface{}{"authorId_title": map[string]interface{}{"authorId": "u2", "title": "t"}},
	})
	require.NotNil(t, found)
	assert.Equal(t, "u2", found.(map[string]interface{})["authorId"])
}

func TestFindManyFilters(t *testing.T) {
	e := newTestEngine(t)
	createUser(t, e, "carol@x.io", 30)
	createUser(t, e, "alice@x.io", 10)
	createUser(t, e, "bob@y.io", 20)

	tests := []struct {
		name  string
		args  types.Args
		email []string
	}{
		{
			name:  "order by val",
			args:  types.Args{"orderBy": map[string]interface{}{"val": "asc"}},
			email: []string{"alice@x.io", "bob@y.io", "carol@x.io"},
		},
		{
			name:  "contains and desc",
			args:  types.Args{"where": map[string]interface{}{"email": map[string]interface{}{"endsWith": "@x.io"}}, "orderBy": map[string]interface{}{"val": "desc"}},
			email: []string{"carol@x.io", "alice@x.io"},
		},
		{
			name:  "range",
			args:  types.Args{"where": map[string]interface{}{"val": map[string]interface{}{"gt": 10, "lte": 30}}, "orderBy": map[string]interface{}{"val": "asc"}},
			email: []string{"bob@y.io", "carol@x.io"},
		},
		{
			name:  "in",
			args:  types.Args{"where": map[string]interface{}{"val": map[string]interface{}{"in": []interface{}{10, 30}}}, "orderBy": map[string]interface{}{"email": "asc"}},
			email: []string{"alice@x.io", "carol@x.io"},
		},
		{
			name:  "or",
			args:  types.Args{"where": map[string]interface{}{"OR": []interface{}{map[string]interface{}{"val": 10}, map[string]interface{}{"val": 20}}}, "orderBy": map[string]interface{}{"val": "asc"}},
			email: []string{"alice@x.io", "bob@y.io"},
		},
		{
			name:  "not",
			args:  types.Args{"where": map[string]interface{}{"val": map[string]interface{}{"not": 20}}, "orderBy": map[string]interface{}{"val": "asc"}},
			email: []string{"alice@x.io", "carol@x.io"},
		},
		{
			name:  "skip and take",
			args:  types.Args{"orderBy": map[string]interface{}{"val": "asc"}, "skip": 1, "take": 1},
			email: []string{"bob@y.io"},
		},
		{
			name:  "insensitive",
			args:  types.Args{"where": map[string]interface{}{"email": map[string]interface{}{"startsWith": "ALICE", "mode": "insensitive"}}},
			email: []string{"alice@x.io"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := exec(t, e, "User", types.FindMany, tt.args).([]interface{})
			var got []string
			for _, row := range out {
				got = append(got, row.(map[string]interface{})["email"].(string))
			}
			assert.Equal(t, tt.email, got)
		})
	}
}

func TestUpdateAndDelete(t *testing.T) {
	e := newTestEngine(t)
	createUser(t, e, "a@x.io", 1)
	createUser(t, e, "b@x.io", 2)
	ctx := context.Background()

	out := exec(t, e, "User", types.Update, types.Args{
		"where": map[string]interface{}{"email": "a@x.io"},
		"data":  map[string]interface{}{"val": map[string]interface{}{"increment": 5}, "name": "A"},
	})
	assert.Equal(t, 6, out.(map[string]interface{})["val"])
	assert.Equal(t, "A", out.(map[string]interface{})["name"])

	_, err := e.Execute(ctx, types.NewOperation("User", types.Update, types.Args{
		"where": map[string]interface{}{"email": "a@x.io"},
		"data":  map[string]interface{}{"email": "b@x.io"},
	}))
	assert.ErrorIs(t, err, engine.ErrUniqueConstraint)

	_, err = e.Execute(ctx, types.NewOperation("User", types.Update, types.Args{
		"where": map[string]interface{}{"email": "zzz"},
		"data":  map[string]interface{}{"val": 1},
	}))
	assert.ErrorIs(t, err, engine.ErrRecordNotFound)

	many := exec(t, e, "User", types.UpdateMany, types.Args{"data": map[string]interface{}{"team": "ops"}})
	assert.Equal(t, map[string]interface{}{"count": 2}, many)

	exec(t, e, "User", types.Delete, types.Args{"where": map[string]interface{}{"email": "b@x.io"}})
	_, err = e.Execute(ctx, types.NewOperation("User", types.Delete, types.Args{"where": map[string]interface{}{"email": "b@x.io"}}))
	assert.ErrorIs(t, err, engine.ErrRecordNotFound)

	assert.Equal(t, 1, exec(t, e, "User", types.Count, nil))
	_, err = e.Execute(ctx, types.NewOperation("User", types.FindUniqueOrThrow, types.Args{"where": map[string]interface{}{"email": "b@x.io"}}))
	assert.ErrorIs(t, err, engine.ErrRecordNotFound)
}

func TestUpsert(t *testing.T) {
	e := newTestEngine(t)
	args := types.Args{
		"where":  map[string]interface{}{"email": "a@x.io"},
		"create": map[string]interface{}{"email": "a@x.io", "val": 1},
		"update": map[string]interface{}{"val": map[string]interface{}{"increment": 1}},
	}
	assert.Equal(t, 1, exec(t, e, "User", types.Upsert, args).(map[string]interface{})["val"])
	assert.Equal(t, 2, exec(t, e, "User", types.Upsert, args).(map[string]interface{})["val"])
}

func TestAggregateAndGroupBy(t *testing.T) {
	e := newTestEngine(t)
	for i, team := range []string{"a", "b", "a"} {
		exec(t, e, "User", types.Create, types.Args{"data": map[string]interface{}{
			"email": team + string(rune('0'+i)), "val": (i + 1) * 10, "team": team,
		}})
	}

	agg := exec(t, e, "User", types.Aggregate, types.Args{
		"_count": true,
		"_sum":   map[string]interface{}{"val": true},
		"_avg":   map[string]interface{}{"val": true},
		"_max":   map[string]interface{}{"val": true},
	}).(map[string]interface{})
	assert.Equal(t, 3, agg["_count"])
	assert.Equal(t, int64(60), agg["_sum"].(map[string]interface{})["val"])
	assert.Equal(t, 20.0, agg["_avg"].(map[string]interface{})["val"])
	assert.Equal(t, 30, agg["_max"].(map[string]interface{})["val"])

	groups := exec(t, e, "User", types.GroupBy, types.Args{
		"by":     []interface{}{"team"},
		"_count": map[string]interface{}{"_all": true},
		"_sum":   map[string]interface{}{"val": true},
	}).([]interface{})
	require.Len(t, groups, 2)
	first := groups[0].(map[string]interface{})
	assert.Equal(t, "a", first["team"])
	assert.Equal(t, 2, first["_count"].(map[string]interface{})["_all"])
	assert.Equal(t, int64(40), first["_sum"].(map[string]interface{})["val"])
}

func TestResultsAreCopies(t *testing.T) {
	e := newTestEngine(t)
	u := createUser(t, e, "a@x.io", 1)
	u["email"] = "mutated"

	out := exec(t, e, "User", types.FindMany, nil).([]interface{})
	assert.Equal(t, "a@x.io", out[0].(map[string]interface{})["email"])
}

func TestIntegerKeysKeepNumericOrder(t *testing.T) {
	e := newTestEngine(t)
	for _, id := range []int{3, -5, 10, -10, 0} {
		exec(t, e, "Post", types.Create, types.Args{"data": map[string]interface{}{"id": id, "title": fmt.Sprint(id), "authorId": "a"}})
	}

	rows := exec(t, e, "Post", types.FindMany, nil).([]interface{})
	ids := make([]interface{}, len(rows))
	for i, r := range rows {
		ids[i] = r.(map[string]interface{})["id"]
	}
	assert.Equal(t, []interface{}{-10, -5, 0, 3, 10}, ids)

	assert.Less(t, sortableInt(math.MinInt64), sortableInt(-1))
	assert.Less(t, sortableInt(-1), sortableInt(0))
	assert.Less(t, sortableInt(0), sortableInt(math.MaxInt64))
}

func TestTransactionCommitAndRollback(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	opts := engine.TxOptions{MaxWait: time.Second, Timeout: 5 * time.Second}

	tx, err := e.StartTransaction(ctx, opts)
	require.NoError(t, err)
	_, err = e.Execute(ctx, types.NewOperation("User", types.Create, types.Args{"data": map[string]interface{}{"email": "a@x.io"}}).WithTxID(tx.ID))
	require.NoError(t, err)

	// not visible outside before commit
	assert.Equal(t, 0, exec(t, e, "User", types.Count, nil))
	inside, err := e.Execute(ctx, types.NewOperation("User", types.Count, nil).WithTxID(tx.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, inside)

	require.NoError(t, e.Commit(ctx, tx.ID))
	assert.Equal(t, 1, exec(t, e, "User", types.Count, nil))

	tx2, err := e.StartTransaction(ctx, opts)
	require.NoError(t, err)
	_, err = e.Execute(ctx, types.NewOperation("User", types.DeleteMany, nil).WithTxID(tx2.ID))
	require.NoError(t, err)
	require.NoError(t, e.Rollback(ctx, tx2.ID))
	assert.Equal(t, 1, exec(t, e, "User", types.Count, nil))

	assert.ErrorIs(t, e.Commit(ctx, tx2.ID), engine.ErrTransactionClosed)
	_, err = e.Execute(ctx, types.NewOperation("User", types.Count, nil).WithTxID(tx2.ID))
	assert.ErrorIs(t, err, engine.ErrTransactionClosed)
	assert.ErrorIs(t, e.Rollback(ctx, "missing"), engine.ErrTransactionNotFound)

	stats := e.Stats()
	assert.Equal(t, int64(2), stats.Started)
	assert.Equal(t, int64(2), stats.Finished)
	assert.Equal(t, 0, stats.Open)
}

func TestTransactionWriteConflict(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	createUser(t, e, "a@x.io", 1)
	where := map[string]interface{}{"email": "a@x.io"}

	tx, err := e.StartTransaction(ctx, engine.TxOptions{Timeout: time.Second})
	require.NoError(t, err)
	_, err = e.Execute(ctx, types.NewOperation("User", types.Update, types.Args{
		"where": where,
		"data":  map[string]interface{}{"val": 10},
	}).WithTxID(tx.ID))
	require.NoError(t, err)

	exec(t, e, "User", types.Update, types.Args{"where": where, "data": map[string]interface{}{"val": 20}})

	err = e.Commit(ctx, tx.ID)
	require.ErrorIs(t, err, engine.ErrWriteConflict)
	assert.Contains(t, err.Error(), "P2034")
	found := exec(t, e, "User", types.FindUnique, types.Args{"where": where}).(map[string]interface{})
	assert.Equal(t, 20, found["val"])
	assert.Equal(t, int64(1), e.Stats().Conflicts)
}

func TestConcurrentInsertsMerge(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	tx1, err := e.StartTransaction(ctx, engine.TxOptions{Timeout: time.Second})
	require.NoError(t, err)
	tx2, err := e.StartTransaction(ctx, engine.TxOptions{Timeout: time.Second})
	require.NoError(t, err)

	for i, id := range []string{tx1.ID, tx2.ID} {
		_, err := e.Execute(ctx, types.NewOperation("Post", types.Create, types.Args{
			"data": map[string]interface{}{"title": "t", "authorId": string(rune('a' + i))},
		}).WithTxID(id))
		require.NoError(t, err)
	}
	createUser(t, e, "outside@x.io", 1)

	require.NoError(t, e.Commit(ctx, tx1.ID))
	require.NoError(t, e.Commit(ctx, tx2.ID))
	assert.Equal(t, 2, exec(t, e, "Post", types.Count, nil))
	assert.Equal(t, 1, exec(t, e, "User", types.Count, nil))
}

func TestConcurrentUniqueValueRejectedOnCommit(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	tx, err := e.StartTransaction(ctx, engine.TxOptions{Timeout: time.Second})
	require.NoError(t, err)
	_, err = e.Execute(ctx, types.NewOperation("User", types.Create, types.Args{
		"data": map[string]interface{}{"email": "same@x.io"},
	}).WithTxID(tx.ID))
	require.NoError(t, err)

	createUser(t, e, "same@x.io", 1)

	assert.ErrorIs(t, e.Commit(ctx, tx.ID), engine.ErrUniqueConstraint)
	assert.Equal(t, 1, exec(t, e, "User", types.Count, nil))
}

func TestReadOnlyTransactionCommitsAfterConcurrentWrite(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	tx, err := e.StartTransaction(ctx, engine.TxOptions{Timeout: time.Second})
	require.NoError(t, err)
	_, err = e.Execute(ctx, types.NewOperation("User", types.FindMany, nil).WithTxID(tx.ID))
	require.NoError(t, err)
	createUser(t, e, "outside@x.io", 1)

	require.NoError(t, e.Commit(ctx, tx.ID))
	assert.Equal(t, 1, exec(t, e, "User", types.Count, nil))
}

func TestStartTransactionMaxWait(t *testing.T) {
	e := newTestEngine(t, WithMaxTransactions(1))
	ctx := context.Background()

	tx, err := e.StartTransaction(ctx, engine.TxOptions{Timeout: time.Second})
	require.NoError(t, err)

	start := time.Now()
	_, err = e.StartTransaction(ctx, engine.TxOptions{MaxWait: 50 * time.Millisecond})
	assert.ErrorIs(t, err, engine.ErrTransactionStart)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	require.NoError(t, e.Rollback(ctx, tx.ID))
	tx2, err := e.StartTransaction(ctx, engine.TxOptions{MaxWait: 50 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, e.Rollback(ctx, tx2.ID))
}

func TestTransactionExpires(t *testing.T) {
	e := newTestEngine(t, WithMaxTransactions(1))
	ctx := context.Background()

	tx, err := e.StartTransaction(ctx, engine.TxOptions{Timeout: 30 * time.Millisecond})
	require.NoError(t, err)
	_, err = e.Execute(ctx, types.NewOperation("User", types.Create, types.Args{"data": map[string]interface{}{"email": "a@x.io"}}).WithTxID(tx.ID))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(e.OpenTransactions()) == 0 }, time.Second, 5*time.Millisecond)

	_, err = e.Execute(ctx, types.NewOperation("User", types.Count, nil).WithTxID(tx.ID))
	assert.ErrorIs(t, err, engine.ErrTransactionClosed)
	assert.ErrorIs(t, e.Commit(ctx, tx.ID), engine.ErrTransactionClosed)
	assert.Equal(t, 0, exec(t, e, "User", types.Count, nil))

	// the slot was released
	tx2, err := e.StartTransaction(ctx, engine.TxOptions{MaxWait: 50 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, e.Rollback(ctx, tx2.ID))
}

func TestDisconnectRollsBackOpenTransactions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	tx, err := e.StartTransaction(ctx, engine.TxOptions{})
	require.NoError(t, err)
	assert.Len(t, e.OpenTransactions(), 1)

	require.NoError(t, e.Disconnect(ctx))
	assert.Empty(t, e.OpenTransactions())
	assert.ErrorIs(t, e.Commit(ctx, tx.ID), engine.ErrTransactionClosed)
}

func TestInvalidIsolationLevel(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.StartTransaction(context.Background(), engine.TxOptions{IsolationLevel: "Chaos"})
	assert.ErrorIs(t, err, engine.ErrValidation)
}
