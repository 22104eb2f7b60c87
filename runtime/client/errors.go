package client

import (
	"errors"
	"fmt"

	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

// Error types for client operations.
var (
	// ErrTransactionAcquisitionTimeout is returned when the engine could not
	// start a transaction within maxWait.
	ErrTransactionAcquisitionTimeout = errors.New("transaction acquisition timeout")

	// ErrTransactionAlreadyClosed is returned when an operation, commit or
	// rollback targets a transaction that reached a terminal state.
	ErrTransactionAlreadyClosed = errors.New("transaction already closed")

	// ErrNestedTransactionNotAllowed is returned when a transaction is
	// started from inside an interactive transaction.
	ErrNestedTransactionNotAllowed = errors.New("nested transactions are not allowed")

	// ErrClientClosed is returned when the client was disconnected.
	ErrClientClosed = errors.New("client is disconnected")

	// ErrTransactionBodyExited is returned when the transaction body stopped
	// its goroutine without returning. The transaction is rolled back.
	ErrTransactionBodyExited = errors.New("transaction body exited without returning")
)

// TransactionError is a failure of the transaction protocol itself, as
// opposed to an error raised by an operation inside the transaction.
type TransactionError struct {
	// Kind is one of the Err* sentinels above.
	Kind error
	// ID is the transaction id, empty when no transaction was started.
	ID      string
	Message string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *TransactionError) Error() string {
	return e.Message
}

// Is matches the error's kind.
func (e *TransactionError) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying cause.
func (e *TransactionError) Unwrap() error {
	return e.Err
}

func closedError(id, op string, cause error) *TransactionError {
	return &TransactionError{
		Kind:    ErrTransactionAlreadyClosed,
		ID:      id,
		Message: fmt.Sprintf("Transaction API error: Transaction already closed: A %s cannot be executed on a closed transaction.", op),
		Err:     cause,
	}
}

// RequestError carries the model and action of a failed operation. It wraps
// the engine error unchanged, so errors.Is and errors.As see through it.
type RequestError struct {
	Model  string
	Action types.Action
	Err    error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s.%s: %v", e.Model, e.Action, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Action, e.Err)
}

// Unwrap returns the engine error.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// ValidationError is returned before contacting the engine when an
// operation cannot be built.
type ValidationError struct {
	Model   string
	Action  types.Action
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("invalid %s.%s invocation: %s", e.Model, e.Action, e.Message)
	}
	return fmt.Sprintf("invalid invocation: %s", e.Message)
}
