package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"github.com/satishbabariya/prisma-go-client/runtime/engine"
	"github.com/satishbabariya/prisma-go-client/runtime/engine/memory"
	"github.com/satishbabariya/prisma-go-client/runtime/schema"
	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

const memorySchema = `
model User {
  id    String @id @default(uuid())
  email String @unique
  name  String?
  val   Int    @default(0)
}
`

// MemorySuite runs the coordinator against the in-memory engine.
type MemorySuite struct {
	suite.Suite
	engine *memory.Engine
	client *Client
	ctx    context.Context
}

func TestMemorySuite(t *testing.T) {
	suite.Run(t, new(MemorySuite))
}

func (s *MemorySuite) SetupTest() {
	dm := schema.MustParseString("schema.prisma", memorySchema)
	var err error
	s.engine, err = memory.New(dm, memory.WithMaxTransactions(4))
	s.Require().NoError(err)
	s.client, err = New(s.engine, WithDatamodel(dm))
	s.Require().NoError(err)
	s.ctx = context.Background()
	s.Require().NoError(s.client.Connect(s.ctx))
}

func (s *MemorySuite) TearDownTest() {
	s.Require().NoError(s.client.Disconnect(s.ctx))
}

func (s *MemorySuite) count() int {
	n, err := s.client.Model("user").Count(nil).Exec(s.ctx)
	if !s.NoError(err) {
		return -1
	}
	return n.(int)
}

func (s *MemorySuite) TestCommitIsVisible() {
	_, err := s.client.Transaction(s.ctx, func(ctx context.Context, tx *TxClient) (interface{}, error) {
		if _, err := createUser(ctx, tx, "a@x.io"); err != nil {
			return nil, err
		}
		// own writes are visible, others' are not yet
		n, err := tx.Model("user").Count(nil).Exec(ctx)
		s.NoError(err)
		s.Equal(1, n)
		s.Equal(0, s.count())
		return createUser(ctx, tx, "b@x.io")
	})
	s.Require().NoError(err)
	s.Equal(2, s.count())
	s.Empty(s.engine.OpenTransactions())
}

func (s *MemorySuite) TestRollbackDiscardsWrites() {
	_, err := s.client.Transaction(s.ctx, func(ctx context.Context, tx *TxClient) (interface{}, error) {
		if _, err := createUser(ctx, tx, "a@x.io"); err != nil {
			return nil, err
		}
		return createUser(ctx, tx, "a@x.io")
	})
	s.Require().ErrorIs(err, engine.ErrUniqueConstraint)
	s.Equal(0, s.count())
}

func (s *MemorySuite) TestTimedOutWritesAreDiscarded() {
	_, err := s.client.Transaction(s.ctx, func(ctx context.Context, tx *TxClient) (interface{}, error) {
		if _, err := createUser(ctx, tx, "a@x.io"); err != nil {
			return nil, err
		}
		<-ctx.Done()
		_, err := createUser(context.Background(), tx, "b@x.io")
		return nil, err
	}, WithTimeout(40*time.Millisecond))
	s.Require().ErrorIs(err, ErrTransactionAlreadyClosed)

	s.Eventually(func() bool { return len(s.engine.OpenTransactions()) == 0 }, time.Second, 5*time.Millisecond)
	s.Equal(0, s.count())
}

func (s *MemorySuite) TestConcurrentTransactions() {
	g, ctx := errgroup.WithContext(s.ctx)
	for _, email := range []string{"a@x.io", "b@x.io"} {
		email := email
		g.Go(func() error {
			_, err := s.client.Transaction(ctx, func(ctx context.Context, tx *TxClient) (interface{}, error) {
				return createUser(ctx, tx, email)
			})
			return err
		})
	}
	s.Require().NoError(g.Wait())
	s.Equal(2, s.count())
	s.Equal(int64(0), s.engine.Stats().Conflicts)
}

func (s *MemorySuite) TestBatchRollsBackOnFailure() {
	_, err := s.client.Model("User").Create(types.Args{"data": map[string]interface{}{"email": "taken@x.io"}}).Exec(s.ctx)
	s.Require().NoError(err)

	_, err = s.client.TransactionBatch(s.ctx, []*Query{
		s.client.Model("User").Create(types.Args{"data": map[string]interface{}{"email": "new@x.io"}}),
		s.client.Model("User").Create(types.Args{"data": map[string]interface{}{"email": "taken@x.io"}}),
	})
	var reqErr *RequestError
	s.Require().ErrorAs(err, &reqErr)
	s.Equal("User", reqErr.Model)
	s.Equal(types.Create, reqErr.Action)
	s.ErrorIs(err, engine.ErrUniqueConstraint)
	s.Equal(1, s.count())
}

func (s *MemorySuite) TestBatchResultsKeepOrder() {
	results, err := s.client.TransactionBatch(s.ctx, []*Query{
		s.client.Model("User").Create(types.Args{"data": map[string]interface{}{"email": "a@x.io", "val": 1}}),
		s.client.Model("User").Count(nil),
		s.client.Model("User").UpdateMany(types.Args{"data": map[string]interface{}{"val": map[string]interface{}{"increment": 2}}}),
		s.client.Model("User").FindUnique(types.Args{"where": map[string]interface{}{"email": "a@x.io"}, "select": map[string]interface{}{"val": true}}),
	})
	s.Require().NoError(err)
	s.Require().Len(results, 4)
	s.Equal("a@x.io", results[0].(map[string]interface{})["email"])
	s.Equal(1, results[1])
	s.Equal(map[string]interface{}{"count": 1}, results[2])
	s.Equal(map[string]interface{}{"val": 3}, results[3])
}

func (s *MemorySuite) TestWriteConflictIsRetried() {
	created, err := s.client.Model("User").Create(types.Args{"data": map[string]interface{}{"email": "a@x.io"}}).Exec(s.ctx)
	s.Require().NoError(err)
	id := created.(map[string]interface{})["id"]

	attempts := 0
	_, err = s.client.Transaction(s.ctx, func(ctx context.Context, tx *TxClient) (interface{}, error) {
		attempts++
		if attempts == 1 {
			// a concurrent autocommit write to the same row
			_, err := s.client.Model("User").Update(types.Args{
				"where": map[string]interface{}{"id": id},
				"data":  map[string]interface{}{"name": "outside"},
			}).Exec(context.Background())
			s.NoError(err)
		}
		return tx.Model("User").Update(types.Args{
			"where": map[string]interface{}{"id": id},
			"data":  map[string]interface{}{"name": "inside"},
		}).Exec(ctx)
	}, WithMaxRetries(1))
	s.Require().NoError(err)
	s.Equal(2, attempts)

	u, err := s.client.Model("User").FindUnique(types.Args{"where": map[string]interface{}{"id": id}}).Exec(s.ctx)
	s.Require().NoError(err)
	s.Equal("inside", u.(map[string]interface{})["name"])
}

func (s *MemorySuite) TestRawQueriesAreUnsupported() {
	_, err := s.client.QueryRaw("SELECT 1").Exec(s.ctx)
	s.ErrorIs(err, engine.ErrUnsupported)
}

func TestMemoryAcquisitionTimeout(t *testing.T) {
	dm := schema.MustParseString("schema.prisma", memorySchema)
	e, err := memory.New(dm, memory.WithMaxTransactions(1))
	require.NoError(t, err)
	c, err := New(e, WithDatamodel(dm))
	require.NoError(t, err)

	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := c.Transaction(context.Background(), func(ctx context.Context, tx *TxClient) (interface{}, error) {
			close(inside)
			<-release
			return nil, nil
		})
		done <- err
	}()
	<-inside

	_, err = c.Transaction(context.Background(), func(ctx context.Context, tx *TxClient) (interface{}, error) {
		return nil, nil
	}, WithMaxWait(30*time.Millisecond))
	assert.ErrorIs(t, err, ErrTransactionAcquisitionTimeout)

	close(release)
	require.NoError(t, <-done)
}
