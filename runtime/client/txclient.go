package client

// TxClient is the handle passed to an interactive transaction body. Every
// operation it builds runs inside the transaction. It has no methods to
// connect, disconnect, subscribe to events, register middleware or
// extensions, or start another transaction.
//
// A TxClient kept after its transaction ended rejects every operation with
// ErrTransactionAlreadyClosed without contacting the engine.
type TxClient struct {
	client *Client
	tx     *Transaction
}

// Model returns the model client for name, bound to the transaction.
func (t *TxClient) Model(name string) *ModelClient {
	return t.client.model(t.tx, name)
}

// QueryRaw runs a raw query inside the transaction.
func (t *TxClient) QueryRaw(query string, params ...interface{}) *Query {
	return t.client.raw(t.tx, rawQueryOp(query, params))
}

// ExecuteRaw runs a raw statement inside the transaction.
func (t *TxClient) ExecuteRaw(query string, params ...interface{}) *Query {
	return t.client.raw(t.tx, rawExecuteOp(query, params))
}

// RunCommandRaw runs a raw command inside the transaction.
func (t *TxClient) RunCommandRaw(command map[string]interface{}) *Query {
	return t.client.raw(t.tx, rawCommandOp(command))
}

// TransactionID returns the engine transaction id.
func (t *TxClient) TransactionID() string {
	return t.tx.ID()
}

// Status returns the transaction status.
func (t *TxClient) Status() Status {
	return t.tx.Status()
}
