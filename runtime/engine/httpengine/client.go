// Package httpengine connects the client runtime to a query engine running
// in another process, and serves any engine.Engine over HTTP.
//
// Operations are posted as {modelName, action, query} to the root path,
// with the interactive transaction id in the X-transaction-id header.
// Transactions are started, committed and rolled back under /transaction.
// Failures are returned as {"error": {kind, code, message, meta}} and
// decoded back into *engine.Error.
package httpengine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/satishbabariya/prisma-go-client/internal/version"
	"github.com/satishbabariya/prisma-go-client/runtime/engine"
	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

// Option configures an Engine.
type Option func(*Engine)

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		e.http = c
	}
}

// WithoutVersionCheck skips the version handshake on Connect.
func WithoutVersionCheck() Option {
	return func(e *Engine) {
		e.checkVersion = false
	}
}

// Engine is an engine.Engine backed by a remote engine server.
type Engine struct {
	base         string
	http         *http.Client
	checkVersion bool
}

// New creates a remote engine for the server at baseURL.
func New(baseURL string, opts ...Option) (*Engine, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid engine url %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("invalid engine url %q: scheme must be http or https", baseURL)
	}
	e := &Engine{
		base:         strings.TrimRight(u.String(), "/"),
		http:         &http.Client{Timeout: time.Minute},
		checkVersion: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Version returns the version reported by the server.
func (e *Engine) Version(ctx context.Context) (version.Info, error) {
	var info version.Info
	err := e.do(ctx, http.MethodGet, "/version", nil, nil, &info)
	return info, err
}

// Connect checks that the server speaks a compatible protocol version.
func (e *Engine) Connect(ctx context.Context) error {
	if !e.checkVersion {
		return nil
	}
	info, err := e.Version(ctx)
	if err != nil {
		return errors.Wrap(err, "engine handshake")
	}
	if err := version.Compatible(info.Version); err != nil {
		return err
	}
	log.Log("connected", zap.String("url", e.base), zap.String("version", info.Version))
	return nil
}

// Disconnect releases idle connections.
func (e *Engine) Disconnect(ctx context.Context) error {
	e.http.CloseIdleConnections()
	return nil
}

// StartTransaction implements engine.Engine.
func (e *Engine) StartTransaction(ctx context.Context, opts engine.TxOptions) (engine.TxInfo, error) {
	var out txInfo
	if err := e.do(ctx, http.MethodPost, "/transaction/start", nil, newStartRequest(opts), &out); err != nil {
		return engine.TxInfo{}, err
	}
	return out.info(), nil
}

// Commit implements engine.Engine.
func (e *Engine) Commit(ctx context.Context, id string) error {
	return e.do(ctx, http.MethodPost, "/transaction/"+url.PathEscape(id)+"/commit", nil, nil, nil)
}

// Rollback implements engine.Engine.
func (e *Engine) Rollback(ctx context.Context, id string) error {
	return e.do(ctx, http.MethodPost, "/transaction/"+url.PathEscape(id)+"/rollback", nil, nil, nil)
}

// Execute implements engine.Engine. Numbers in results decode as float64.
func (e *Engine) Execute(ctx context.Context, op types.Operation) (interface{}, error) {
	header := http.Header{}
	if op.InTransaction() {
		header.Set(TransactionHeader, op.TxID())
	}
	req := operationRequest{
		ModelName: op.Model(),
		Action:    string(op.Action()),
		Query:     op.Args(),
	}
	var out dataResponse
	if err := e.do(ctx, http.MethodPost, "/", header, req, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// OpenTransactions implements engine.Inspector. It returns nil when the
// server cannot be reached.
func (e *Engine) OpenTransactions() []engine.TxInfo {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out []txInfo
	if err := e.do(ctx, http.MethodGet, "/transactions", nil, nil, &out); err != nil {
		log.Warn("list transactions failed", zap.Error(err))
		return nil
	}
	infos := make([]engine.TxInfo, 0, len(out))
	for _, i := range out {
		infos = append(infos, i.info())
	}
	return infos
}

func (e *Engine) do(ctx context.Context, method, path string, header http.Header, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.WithStack(err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, e.base+path, body)
	if err != nil {
		return errors.WithStack(err)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.WithStack(err)
	}

	if resp.StatusCode != http.StatusOK {
		var res errorResponse
		if jsonErr := json.Unmarshal(b, &res); jsonErr == nil && res.Error != nil {
			return res.Error
		}
		return errors.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	return errors.WithStack(json.Unmarshal(b, out))
}

var (
	_ engine.Engine    = (*Engine)(nil)
	_ engine.Lifecycle = (*Engine)(nil)
	_ engine.Inspector = (*Engine)(nil)
)
