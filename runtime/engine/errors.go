package engine

import (
	"fmt"
	"strings"
	"time"
)

// Kind classifies engine errors.
type Kind string

// Error kinds reported by engines.
const (
	KindUniqueConstraint    Kind = "UniqueConstraintViolation"
	KindRecordNotFound      Kind = "RecordNotFound"
	KindTransactionClosed   Kind = "TransactionAlreadyClosed"
	KindTransactionStart    Kind = "TransactionStartTimeout"
	KindTransactionNotFound Kind = "TransactionNotFound"
	KindWriteConflict       Kind = "WriteConflict"
	KindValidation          Kind = "Validation"
	KindUnsupported         Kind = "Unsupported"
	KindRawQueryFailed      Kind = "RawQueryFailed"
	KindUnknown             Kind = "Unknown"
)

// Error is an engine-reported failure: a machine readable kind and code
// plus a human readable message.
type Error struct {
	Kind    Kind                   `json:"kind"`
	Code    string                 `json:"code,omitempty"`
	Message string                 `json:"message"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// Is matches any engine error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks. They match any *Error of the same kind.
var (
	ErrUniqueConstraint    = &Error{Kind: KindUniqueConstraint, Message: "unique constraint violation"}
	ErrRecordNotFound      = &Error{Kind: KindRecordNotFound, Message: "record not found"}
	ErrTransactionClosed   = &Error{Kind: KindTransactionClosed, Message: "transaction already closed"}
	ErrTransactionStart    = &Error{Kind: KindTransactionStart, Message: "unable to start a transaction in the given time"}
	ErrTransactionNotFound = &Error{Kind: KindTransactionNotFound, Message: "transaction not found"}
	ErrWriteConflict       = &Error{Kind: KindWriteConflict, Message: "write conflict"}
	ErrValidation          = &Error{Kind: KindValidation, Message: "validation error"}
	ErrUnsupported         = &Error{Kind: KindUnsupported, Message: "unsupported"}
	ErrRawQueryFailed      = &Error{Kind: KindRawQueryFailed, Message: "raw query failed"}
)

// UniqueConstraint reports a unique constraint violation on model fields.
func UniqueConstraint(model string, fields []string) *Error {
	return &Error{
		Kind:    KindUniqueConstraint,
		Code:    "P2002",
		Message: fmt.Sprintf("Unique constraint failed on the fields: (%s)", quoteFields(fields)),
		Meta:    map[string]interface{}{"modelName": model, "target": fields},
	}
}

// RecordNotFound reports that an operation required a record that does not exist.
func RecordNotFound(model, cause string) *Error {
	return &Error{
		Kind:    KindRecordNotFound,
		Code:    "P2025",
		Message: fmt.Sprintf("An operation failed because it depends on one or more records that were required but not found. %s", cause),
		Meta:    map[string]interface{}{"modelName": model, "cause": cause},
	}
}

// TransactionClosed reports an operation against a closed transaction. op is
// "query", "commit" or "rollback".
func TransactionClosed(op string) *Error {
	return &Error{
		Kind:    KindTransactionClosed,
		Code:    "P2028",
		Message: fmt.Sprintf("Transaction API error: Transaction already closed: A %s cannot be executed on a closed transaction.", op),
	}
}

// TransactionNotFound reports an unknown transaction id.
func TransactionNotFound(id string) *Error {
	return &Error{
		Kind:    KindTransactionNotFound,
		Code:    "P2028",
		Message: fmt.Sprintf("Transaction API error: Transaction not found. Transaction ID is invalid, refers to an old closed transaction Prisma doesn't have information about anymore, or was obtained before disconnecting: %s", id),
	}
}

// TransactionStartTimeout reports that no transaction slot became free
// within maxWait.
func TransactionStartTimeout(maxWait time.Duration) *Error {
	return &Error{
		Kind:    KindTransactionStart,
		Code:    "P2028",
		Message: fmt.Sprintf("Transaction API error: Unable to start a transaction in the given time (max wait %s).", maxWait),
	}
}

// WriteConflict reports a transaction that lost a race against a concurrent commit.
func WriteConflict() *Error {
	return &Error{
		Kind:    KindWriteConflict,
		Code:    "P2034",
		Message: "Transaction failed due to a write conflict or a deadlock. Please retry your transaction",
	}
}

// Validation reports invalid operation arguments.
func Validation(format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    "P2009",
		Message: fmt.Sprintf(format, args...),
	}
}

// Unsupported reports a feature the engine does not implement.
func Unsupported(format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindUnsupported,
		Code:    "P2026",
		Message: fmt.Sprintf(format, args...),
	}
}

// RawQueryFailed reports a raw statement rejected by the database.
func RawQueryFailed(cause error) *Error {
	return &Error{
		Kind:    KindRawQueryFailed,
		Code:    "P2010",
		Message: fmt.Sprintf("Raw query failed. %v", cause),
	}
}

func quoteFields(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = "`" + f + "`"
	}
	return strings.Join(quoted, ",")
}
