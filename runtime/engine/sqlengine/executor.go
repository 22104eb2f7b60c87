package sqlengine

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/satishbabariya/prisma-go-client/runtime/engine"
	"github.com/satishbabariya/prisma-go-client/runtime/schema"
	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

// queryer is implemented by *sql.DB, *sql.Conn and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type executor struct {
	d   dialect
	dm  *schema.Datamodel
	now func() time.Time
}

func (x *executor) execute(ctx context.Context, q queryer, op types.Operation) (interface{}, error) {
	args := op.Args()
	switch op.Action() {
	case types.QueryRaw:
		return x.queryRaw(ctx, q, args)
	case types.ExecuteRaw:
		return x.executeRaw(ctx, q, args)
	case types.RunCommandRaw:
		return nil, engine.Unsupported("runCommandRaw is only available for MongoDB")
	}

	m, ok := x.dm.Model(op.Model())
	if !ok {
		return nil, engine.Validation("Unknown model %s", op.Model())
	}

	switch op.Action() {
	case types.FindUnique, types.FindUniqueOrThrow, types.FindFirst, types.FindFirstOrThrow:
		if op.Action() == types.FindUnique || op.Action() == types.FindUniqueOrThrow {
			if _, err := requireWhere(m, args); err != nil {
				return nil, err
			}
		}
		rows, err := x.find(ctx, q, m, args, 1)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			if op.Action() == types.FindUniqueOrThrow || op.Action() == types.FindFirstOrThrow {
				return nil, engine.RecordNotFound(m.Name, "Expected a record, found none.")
			}
			return nil, nil
		}
		return rows[0], nil

	case types.FindMany:
		return x.find(ctx, q, m, args, 0)

	case types.Count:
		where, err := x.where(m, args)
		if err != nil {
			return nil, err
		}
		st := x.d.countSQL(m.Name, where)
		var n int64
		if err := queryScalar(ctx, q, st, &n); err != nil {
			return nil, translate(err, m.Name, "count")
		}
		return int(n), nil

	case types.Create:
		data, _ := types.AsMap(args["data"])
		return x.create(ctx, q, m, data)

	case types.CreateMany:
		list, err := valueList(args["data"])
		if err != nil {
			return nil, err
		}
		skip, _ := args["skipDuplicates"].(bool)
		count := 0
		for _, item := range list {
			data, _ := types.AsMap(item)
			if !skip {
				if _, err := x.create(ctx, q, m, data); err != nil {
					return nil, err
				}
				count++
				continue
			}
			created, err := x.createOrSkip(ctx, q, m, data)
			if err != nil {
				return nil, err
			}
			if created {
				count++
			}
		}
		return map[string]interface{}{"count": count}, nil

	case types.Update:
		row, err := x.findExisting(ctx, q, m, args, "update")
		if err != nil {
			return nil, err
		}
		data, _ := types.AsMap(args["data"])
		return x.update(ctx, q, m, row, data, args["select"])

	case types.UpdateMany:
		where, err := x.where(m, args)
		if err != nil {
			return nil, err
		}
		data, _ := types.AsMap(args["data"])
		set, err := x.assignments(m, data)
		if err != nil {
			return nil, err
		}
		if len(set) == 0 {
			return map[string]interface{}{"count": 0}, nil
		}
		n, err := execCount(ctx, q, x.d.updateSQL(m.Name, set, where))
		if err != nil {
			return nil, translate(err, m.Name, "updateMany")
		}
		return map[string]interface{}{"count": n}, nil

	case types.Upsert:
		where, err := requireWhere(m, args)
		if err != nil {
			return nil, err
		}
		rows, err := x.find(ctx, q, m, types.Args{"where": where}, 1)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			data, _ := types.AsMap(args["create"])
			return x.create(ctx, q, m, data)
		}
		data, _ := types.AsMap(args["update"])
		return x.update(ctx, q, m, rows[0], data, args["select"])

	case types.Delete:
		row, err := x.findExisting(ctx, q, m, args, "delete")
		if err != nil {
			return nil, err
		}
		if _, err := execCount(ctx, q, x.d.deleteSQL(m.Name, pkWhere(m, row))); err != nil {
			return nil, translate(err, m.Name, "delete")
		}
		return selectFields(row, args["select"]), nil

	case types.DeleteMany:
		where, err := x.where(m, args)
		if err != nil {
			return nil, err
		}
		n, err := execCount(ctx, q, x.d.deleteSQL(m.Name, where))
		if err != nil {
			return nil, translate(err, m.Name, "deleteMany")
		}
		return map[string]interface{}{"count": n}, nil

	case types.Aggregate, types.GroupBy:
		return nil, engine.Unsupported("%s is not supported by the SQL engine", op.Action())
	}
	return nil, engine.Validation("Unknown action %s", op.Action())
}

func requireWhere(m *schema.Model, args types.Args) (map[string]interface{}, error) {
	where, ok := types.AsMap(args["where"])
	if !ok || len(where) == 0 {
		return nil, engine.Validation("Argument `where` is missing on %s", m.Name)
	}
	return where, nil
}

func (x *executor) where(m *schema.Model, args types.Args) (*WhereClause, error) {
	where, _ := types.AsMap(args["where"])
	return whereFromArgs(m, where)
}

func (x *executor) find(ctx context.Context, q queryer, m *schema.Model, args types.Args, limit int) ([]map[string]interface{}, error) {
	where, err := x.where(m, args)
	if err != nil {
		return nil, err
	}
	orderBy, err := parseOrderBy(m, args["orderBy"])
	if err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = toInt(args["take"])
	}
	columns, err := selectedColumns(m, args["select"])
	if err != nil {
		return nil, err
	}
	st := x.d.selectSQL(m.Name, columns, where, orderBy, limit, toInt(args["skip"]))
	rows, err := query(ctx, q, st)
	if err != nil {
		return nil, translate(err, m.Name, "find")
	}
	return rows, nil
}

// findExisting loads the row selected by a unique where, failing with
// RecordNotFound when there is none.
func (x *executor) findExisting(ctx context.Context, q queryer, m *schema.Model, args types.Args, action string) (map[string]interface{}, error) {
	where, err := requireWhere(m, args)
	if err != nil {
		return nil, err
	}
	rows, err := x.find(ctx, q, m, types.Args{"where": where}, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, engine.RecordNotFound(m.Name, "No record was found for an "+action+".")
	}
	return rows[0], nil
}

func (x *executor) create(ctx context.Context, q queryer, m *schema.Model, data map[string]interface{}) (interface{}, error) {
	values := make(map[string]interface{}, len(data))
	for name, v := range data {
		f := m.Field(name)
		if f == nil {
			return nil, engine.Validation("Unknown argument `%s` on %s", name, m.Name)
		}
		if f.Relation {
			return nil, engine.Unsupported("nested writes on %s.%s", m.Name, name)
		}
		values[name] = v
	}
	now := x.now()
	for _, f := range m.ScalarFields() {
		if _, ok := values[f.Name]; ok {
			continue
		}
		if f.UpdatedAt {
			values[f.Name] = now
			continue
		}
		if f.Default == nil {
			continue
		}
		switch f.Default.Function {
		case "uuid", "cuid", "nanoid":
			values[f.Name] = uuid.NewString()
		case "now":
			values[f.Name] = now
		case "":
			if n, ok := f.Default.Value.(float64); ok && (f.Type == "Int" || f.Type == "BigInt") {
				values[f.Name] = int64(n)
			} else {
				values[f.Name] = f.Default.Value
			}
		}
	}

	st := x.d.insertSQL(m.Name, values)
	if x.d.returning {
		rows, err := query(ctx, q, st)
		if err != nil {
			return nil, translate(err, m.Name, "create")
		}
		if len(rows) == 0 {
			return nil, errors.New("insert returned no row")
		}
		return rows[0], nil
	}

	res, err := q.ExecContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, translate(err, m.Name, "create")
	}
	key := make(map[string]interface{})
	for _, name := range primaryFields(m) {
		if v, ok := values[name]; ok {
			key[name] = v
			continue
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, errors.Wrap(err, "read inserted id")
		}
		key[name] = id
	}
	rows, err := query(ctx, q, x.d.selectSQL(m.Name, nil, pkWhere(m, key), nil, 1, 0))
	if err != nil {
		return nil, translate(err, m.Name, "create")
	}
	if len(rows) == 0 {
		return nil, errors.New("inserted row not found")
	}
	return rows[0], nil
}

// createOrSkip inserts data inside a savepoint, so that a duplicate does
// not abort the surrounding transaction on PostgreSQL.
func (x *executor) createOrSkip(ctx context.Context, q queryer, m *schema.Model, data map[string]interface{}) (bool, error) {
	if _, err := q.ExecContext(ctx, "SAVEPOINT prisma_create_many"); err != nil {
		return false, translate(err, m.Name, "createMany")
	}
	_, err := x.create(ctx, q, m, data)
	if err != nil && errors.Is(err, engine.ErrUniqueConstraint) {
		if _, rbErr := q.ExecContext(ctx, "ROLLBACK TO SAVEPOINT prisma_create_many"); rbErr != nil {
			return false, translate(rbErr, m.Name, "createMany")
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := q.ExecContext(ctx, "RELEASE SAVEPOINT prisma_create_many"); err != nil {
		return false, translate(err, m.Name, "createMany")
	}
	return true, nil
}

func (x *executor) update(ctx context.Context, q queryer, m *schema.Model, row, data map[string]interface{}, sel interface{}) (interface{}, error) {
	set, err := x.assignments(m, data)
	if err != nil {
		return nil, err
	}
	if len(set) > 0 {
		if _, err := execCount(ctx, q, x.d.updateSQL(m.Name, set, pkWhere(m, row))); err != nil {
			return nil, translate(err, m.Name, "update")
		}
	}
	// the key itself may have been updated
	key := make(map[string]interface{})
	for _, name := range primaryFields(m) {
		key[name] = row[name]
		for _, u := range set {
			if u.Column == name && u.Op == "set" {
				key[name] = u.Value
			}
		}
	}
	columns, err := selectedColumns(m, sel)
	if err != nil {
		return nil, err
	}
	rows, err := query(ctx, q, x.d.selectSQL(m.Name, columns, pkWhere(m, key), nil, 1, 0))
	if err != nil {
		return nil, translate(err, m.Name, "update")
	}
	if len(rows) == 0 {
		return nil, engine.RecordNotFound(m.Name, "Record to update not found.")
	}
	return rows[0], nil
}

// assignments converts update data into column assignments, adding
// @updatedAt fields.
func (x *executor) assignments(m *schema.Model, data map[string]interface{}) ([]fieldUpdate, error) {
	var set []fieldUpdate
	for _, name := range sortedKeys(data) {
		f := m.Field(name)
		if f == nil {
			return nil, engine.Validation("Unknown argument `%s` on %s", name, m.Name)
		}
		if f.Relation {
			return nil, engine.Unsupported("nested writes on %s.%s", m.Name, name)
		}
		ops, ok := types.AsMap(data[name])
		if !ok || f.Type == "Json" {
			set = append(set, fieldUpdate{Column: name, Op: "set", Value: data[name]})
			continue
		}
		for _, op := range sortedKeys(ops) {
			switch op {
			case "set", "increment", "decrement", "multiply", "divide":
				set = append(set, fieldUpdate{Column: name, Op: op, Value: ops[op]})
			default:
				return nil, engine.Validation("Unknown update operation `%s` on %s.%s", op, m.Name, name)
			}
		}
	}
	if len(set) == 0 {
		return nil, nil
	}
	for _, f := range m.ScalarFields() {
		if _, ok := data[f.Name]; f.UpdatedAt && !ok {
			set = append(set, fieldUpdate{Column: f.Name, Op: "set", Value: x.now()})
		}
	}
	return set, nil
}

func (x *executor) queryRaw(ctx context.Context, q queryer, args types.Args) (interface{}, error) {
	sqlText, params, err := rawArgs(args)
	if err != nil {
		return nil, err
	}
	rows, err := query(ctx, q, statement{SQL: x.d.rebind(sqlText), Args: params})
	if err != nil {
		return nil, rawError(err)
	}
	return rows, nil
}

func (x *executor) executeRaw(ctx context.Context, q queryer, args types.Args) (interface{}, error) {
	sqlText, params, err := rawArgs(args)
	if err != nil {
		return nil, err
	}
	n, err := execCount(ctx, q, statement{SQL: x.d.rebind(sqlText), Args: params})
	if err != nil {
		return nil, rawError(err)
	}
	return n, nil
}

func rawArgs(args types.Args) (string, []interface{}, error) {
	sqlText, ok := args["query"].(string)
	if !ok || sqlText == "" {
		return "", nil, engine.Validation("Raw query is missing")
	}
	var params []interface{}
	if p, ok := args["parameters"]; ok && p != nil {
		list, err := valueList(p)
		if err != nil {
			return "", nil, err
		}
		params = list
	}
	return sqlText, params, nil
}

// rawError keeps constraint and conflict errors and reports everything
// else as a failed raw query.
func rawError(err error) error {
	translated := translate(err, "", "raw query")
	var engErr *engine.Error
	if errors.As(translated, &engErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return translated
	}
	return engine.RawQueryFailed(err)
}

func query(ctx context.Context, q queryer, st statement) ([]map[string]interface{}, error) {
	log.Log(st.SQL)
	rows, err := q.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func queryScalar(ctx context.Context, q queryer, st statement, dest interface{}) error {
	log.Log(st.SQL)
	rows, err := q.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	return rows.Scan(dest)
}

func execCount(ctx context.Context, q queryer, st statement) (int64, error) {
	log.Log(st.SQL)
	res, err := q.ExecContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func primaryFields(m *schema.Model) []string {
	if len(m.ID) > 0 {
		return m.ID
	}
	return m.UniqueCriteria()[0]
}

// pkWhere selects the single row identified by the primary key values of row.
func pkWhere(m *schema.Model, row map[string]interface{}) *WhereClause {
	where := &WhereClause{Operator: "AND"}
	for _, name := range primaryFields(m) {
		where.Conditions = append(where.Conditions, Condition{Field: name, Operator: "=", Value: row[name]})
	}
	return where
}

func selectedColumns(m *schema.Model, sel interface{}) ([]string, error) {
	fields, ok := types.AsMap(sel)
	if !ok || len(fields) == 0 {
		return nil, nil
	}
	var columns []string
	for _, name := range sortedKeys(fields) {
		if keep, _ := fields[name].(bool); !keep {
			continue
		}
		if f := m.Field(name); f == nil || f.Relation {
			return nil, engine.Validation("Unknown field `%s` in select of %s", name, m.Name)
		}
		columns = append(columns, name)
	}
	return columns, nil
}

func selectFields(row map[string]interface{}, sel interface{}) map[string]interface{} {
	fields, ok := types.AsMap(sel)
	if !ok || len(fields) == 0 {
		return row
	}
	out := make(map[string]interface{}, len(fields))
	for name, keep := range fields {
		if k, _ := keep.(bool); k {
			out[name] = row[name]
		}
	}
	return out
}

func parseOrderBy(m *schema.Model, v interface{}) ([]OrderBy, error) {
	if v == nil {
		return nil, nil
	}
	var items []map[string]interface{}
	if single, ok := types.AsMap(v); ok {
		items = []map[string]interface{}{single}
	} else {
		list, err := filterList(v)
		if err != nil {
			return nil, err
		}
		items = list
	}
	var out []OrderBy
	for _, item := range items {
		keys := make([]string, 0, len(item))
		for k := range item {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, field := range keys {
			if m.Field(field) == nil {
				return nil, engine.Validation("Unknown field `%s` in orderBy of %s", field, m.Name)
			}
			dir, _ := item[field].(string)
			if dir != "asc" && dir != "desc" {
				return nil, engine.Validation("Invalid sort order %v on %s.%s", item[field], m.Name, field)
			}
			out = append(out, OrderBy{Field: field, Direction: dir})
		}
	}
	return out, nil
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
