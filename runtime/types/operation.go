package types

import "fmt"

// Action is the kind of a database operation.
type Action string

// Model actions.
const (
	FindUnique        Action = "findUnique"
	FindUniqueOrThrow Action = "findUniqueOrThrow"
	FindFirst         Action = "findFirst"
	FindFirstOrThrow  Action = "findFirstOrThrow"
	FindMany          Action = "findMany"
	Create            Action = "create"
	CreateMany        Action = "createMany"
	Update            Action = "update"
	UpdateMany        Action = "updateMany"
	Upsert            Action = "upsert"
	Delete            Action = "delete"
	DeleteMany        Action = "deleteMany"
	Aggregate         Action = "aggregate"
	GroupBy           Action = "groupBy"
	Count             Action = "count"
)

// Top-level raw actions.
const (
	QueryRaw      Action = "queryRaw"
	ExecuteRaw    Action = "executeRaw"
	RunCommandRaw Action = "runCommandRaw"
)

// ModelActions lists every action a model client exposes.
var ModelActions = []Action{
	FindUnique, FindUniqueOrThrow, FindFirst, FindFirstOrThrow, FindMany,
	Create, CreateMany, Update, UpdateMany, Upsert, Delete, DeleteMany,
	Aggregate, GroupBy, Count,
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	if a.IsRaw() {
		return true
	}
	for _, known := range ModelActions {
		if a == known {
			return true
		}
	}
	return false
}

// IsRaw reports whether a is a top-level raw action.
func (a Action) IsRaw() bool {
	switch a {
	case QueryRaw, ExecuteRaw, RunCommandRaw:
		return true
	default:
		return false
	}
}

// IsWrite reports whether a modifies data.
func (a Action) IsWrite() bool {
	switch a {
	case Create, CreateMany, Update, UpdateMany, Upsert, Delete, DeleteMany, ExecuteRaw, RunCommandRaw:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (a Action) String() string {
	return string(a)
}

// Operation describes one requested database action. It is immutable: the
// constructor and every accessor copy the arguments.
type Operation struct {
	model  string
	action Action
	args   Args
	txID   string
}

// NewOperation creates an operation for a model. model is empty for raw
// operations.
func NewOperation(model string, action Action, args Args) Operation {
	return Operation{
		model:  model,
		action: action,
		args:   args.Clone(),
	}
}

// Model returns the model name, or "" for raw operations.
func (o Operation) Model() string { return o.model }

// Action returns the operation kind.
func (o Operation) Action() Action { return o.action }

// Args returns a deep copy of the arguments.
func (o Operation) Args() Args { return o.args.Clone() }

// TxID returns the target transaction id, or "" outside a transaction.
func (o Operation) TxID() string { return o.txID }

// InTransaction reports whether the operation targets a transaction.
func (o Operation) InTransaction() bool { return o.txID != "" }

// WithTxID returns a copy of the operation bound to a transaction.
func (o Operation) WithTxID(id string) Operation {
	o.txID = id
	return o
}

// WithArgs returns a copy of the operation with replaced arguments.
func (o Operation) WithArgs(args Args) Operation {
	o.args = args.Clone()
	return o
}

// Name returns the qualified name used in logs and events, e.g. "User.create".
func (o Operation) Name() string {
	if o.model == "" {
		return o.action.String()
	}
	return fmt.Sprintf("%s.%s", o.model, o.action)
}
