package client

import (
	"context"
)

// contextKey is a type for context keys.
type contextKey string

const (
	// txKey marks a context as running inside an interactive transaction.
	txKey contextKey = "prisma_itx"
)

// withTransaction marks ctx as running inside tx.
func withTransaction(ctx context.Context, tx *Transaction) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// TransactionFromContext returns the interactive transaction ctx runs in.
// Contexts handed to a transaction body carry it.
func TransactionFromContext(ctx context.Context) (*Transaction, bool) {
	tx, ok := ctx.Value(txKey).(*Transaction)
	return tx, ok
}

// InTransaction reports whether ctx runs inside an interactive transaction.
func InTransaction(ctx context.Context) bool {
	_, ok := TransactionFromContext(ctx)
	return ok
}
