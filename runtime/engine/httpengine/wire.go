package httpengine

import (
	"net/http"
	"time"

	"github.com/satishbabariya/prisma-go-client/runtime/engine"
)

// TransactionHeader carries the interactive transaction id of an operation.
const TransactionHeader = "X-transaction-id"

// startRequest durations are in milliseconds.
type startRequest struct {
	MaxWait        int64  `json:"max_wait"`
	Timeout        int64  `json:"timeout"`
	IsolationLevel string `json:"isolation_level,omitempty"`
}

func (r startRequest) options() engine.TxOptions {
	return engine.TxOptions{
		MaxWait:        time.Duration(r.MaxWait) * time.Millisecond,
		Timeout:        time.Duration(r.Timeout) * time.Millisecond,
		IsolationLevel: engine.IsolationLevel(r.IsolationLevel),
	}
}

func newStartRequest(opts engine.TxOptions) startRequest {
	return startRequest{
		MaxWait:        millis(opts.MaxWait),
		Timeout:        millis(opts.Timeout),
		IsolationLevel: string(opts.IsolationLevel),
	}
}

// millis rounds d up to whole milliseconds, so a positive duration never
// arrives as zero, which means no limit.
func millis(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Millisecond - 1) / time.Millisecond)
}

type txInfo struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Timeout   int64     `json:"timeout"`
}

func newTxInfo(info engine.TxInfo) txInfo {
	return txInfo{ID: info.ID, StartedAt: info.StartedAt, Timeout: millis(info.Timeout)}
}

func (i txInfo) info() engine.TxInfo {
	return engine.TxInfo{ID: i.ID, StartedAt: i.StartedAt, Timeout: time.Duration(i.Timeout) * time.Millisecond}
}

type operationRequest struct {
	ModelName string                 `json:"modelName,omitempty"`
	Action    string                 `json:"action"`
	Query     map[string]interface{} `json:"query,omitempty"`
}

type dataResponse struct {
	Data interface{} `json:"data"`
}

type errorResponse struct {
	Error *engine.Error `json:"error"`
}

// statusFor maps an engine error kind to the response status.
func statusFor(kind engine.Kind) int {
	switch kind {
	case engine.KindValidation, engine.KindUnsupported, engine.KindRawQueryFailed:
		return http.StatusBadRequest
	case engine.KindRecordNotFound, engine.KindTransactionNotFound:
		return http.StatusNotFound
	case engine.KindUniqueConstraint, engine.KindWriteConflict, engine.KindTransactionClosed:
		return http.StatusConflict
	case engine.KindTransactionStart:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
