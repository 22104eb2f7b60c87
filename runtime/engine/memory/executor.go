package memory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/satishbabariya/prisma-go-client/runtime/engine"
	"github.com/satishbabariya/prisma-go-client/runtime/schema"
	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

// executor evaluates model operations against a state.
type executor struct {
	dm  *schema.Datamodel
	now func() time.Time
	// counters hold autoincrement sequences. They live outside snapshots so
	// concurrent transactions never hand out the same id.
	counters map[string]*atomic.Int64
}

func (x *executor) execute(s *state, op types.Operation) (interface{}, error) {
	if op.Action().IsRaw() {
		return nil, engine.Unsupported("%s is not supported by the in-memory engine", op.Action())
	}
	m, ok := x.dm.Model(op.Model())
	if !ok {
		return nil, engine.Validation("Unknown model %q", op.Model())
	}
	args := op.Args()
	sel, _ := types.AsMap(args["select"])

	switch op.Action() {
	case types.FindUnique, types.FindUniqueOrThrow:
		where, err := requireWhere(m, args)
		if err != nil {
			return nil, err
		}
		rows, err := x.filter(s, m, where)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			if op.Action() == types.FindUniqueOrThrow {
				return nil, engine.RecordNotFound(m.Name, "No "+m.Name+" found")
			}
			return nil, nil
		}
		return output(rows[0], sel), nil

	case types.FindFirst, types.FindFirstOrThrow:
		args["take"] = 1
		rows, err := x.query(s, m, args)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			if op.Action() == types.FindFirstOrThrow {
				return nil, engine.RecordNotFound(m.Name, "No "+m.Name+" found")
			}
			return nil, nil
		}
		return output(rows[0], sel), nil

	case types.FindMany:
		rows, err := x.query(s, m, args)
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, len(rows))
		for i, r := range rows {
			out[i] = output(r, sel)
		}
		return out, nil

	case types.Create:
		data, ok := types.AsMap(args["data"])
		if !ok {
			return nil, engine.Validation("Argument `data` is missing in %s.create", m.Name)
		}
		r, err := x.create(s, m, data)
		if err != nil {
			return nil, err
		}
		return output(r, sel), nil

	case types.CreateMany:
		skip, _ := args["skipDuplicates"].(bool)
		count := 0
		for _, item := range listOf(args["data"]) {
			data, ok := types.AsMap(item)
			if !ok {
				return nil, engine.Validation("Argument `data` of %s.createMany must be a list of objects", m.Name)
			}
			if _, err := x.create(s, m, data); err != nil {
				if skip && errors.Is(err, engine.ErrUniqueConstraint) {
					continue
				}
				return nil, err
			}
			count++
		}
		return map[string]interface{}{"count": count}, nil

	case types.Update:
		where, err := requireWhere(m, args)
		if err != nil {
			return nil, err
		}
		data, _ := types.AsMap(args["data"])
		rows, err := x.filter(s, m, where)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, engine.RecordNotFound(m.Name, "Record to update not found.")
		}
		r, err := x.update(s, m, rows[0], data)
		if err != nil {
			return nil, err
		}
		return output(r, sel), nil

	case types.UpdateMany:
		where, _ := types.AsMap(args["where"])
		data, _ := types.AsMap(args["data"])
		rows, err := x.filter(s, m, where)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if _, err := x.update(s, m, r, data); err != nil {
				return nil, err
			}
		}
		return map[string]interface{}{"count": len(rows)}, nil

	case types.Upsert:
		where, err := requireWhere(m, args)
		if err != nil {
			return nil, err
		}
		rows, err := x.filter(s, m, where)
		if err != nil {
			return nil, err
		}
		var r record
		if len(rows) > 0 {
			data, _ := types.AsMap(args["update"])
			r, err = x.update(s, m, rows[0], data)
		} else {
			data, _ := types.AsMap(args["create"])
			r, err = x.create(s, m, data)
		}
		if err != nil {
			return nil, err
		}
		return output(r, sel), nil

	case types.Delete:
		where, err := requireWhere(m, args)
		if err != nil {
			return nil, err
		}
		rows, err := x.filter(s, m, where)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, engine.RecordNotFound(m.Name, "Record to delete does not exist.")
		}
		s.remove(m.Name, primaryKey(m, rows[0]))
		return output(rows[0], sel), nil

	case types.DeleteMany:
		where, _ := types.AsMap(args["where"])
		rows, err := x.filter(s, m, where)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			s.remove(m.Name, primaryKey(m, r))
		}
		return map[string]interface{}{"count": len(rows)}, nil

	case types.Count:
		rows, err := x.query(s, m, args)
		if err != nil {
			return nil, err
		}
		return len(rows), nil

	case types.Aggregate:
		rows, err := x.query(s, m, args)
		if err != nil {
			return nil, err
		}
		return aggregate(m, rows, args), nil

	case types.GroupBy:
		return x.groupBy(s, m, args)
	}
	return nil, engine.Unsupported("action %q is not supported by the in-memory engine", op.Action())
}

func requireWhere(m *schema.Model, args types.Args) (map[string]interface{}, error) {
	where, ok := types.AsMap(args["where"])
	if !ok || len(where) == 0 {
		return nil, engine.Validation("Argument `where` of type %sWhereUniqueInput is missing", m.Name)
	}
	return where, nil
}

func (x *executor) filter(s *state, m *schema.Model, where map[string]interface{}) ([]record, error) {
	var out []record
	for _, r := range s.rows(m.Name) {
		ok, err := matches(m, r, where)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// query applies where, orderBy, skip and take.
func (x *executor) query(s *state, m *schema.Model, args types.Args) ([]record, error) {
	where, _ := types.AsMap(args["where"])
	rows, err := x.filter(s, m, where)
	if err != nil {
		return nil, err
	}
	keys, err := parseOrderBy(m, args["orderBy"])
	if err != nil {
		return nil, err
	}
	sortRecords(rows, keys)
	if skip, ok := toFloat(args["skip"]); ok && skip > 0 {
		if int(skip) >= len(rows) {
			return nil, nil
		}
		rows = rows[int(skip):]
	}
	if take, ok := toFloat(args["take"]); ok && take >= 0 && int(take) < len(rows) {
		rows = rows[:int(take)]
	}
	return rows, nil
}

func (x *executor) create(s *state, m *schema.Model, data map[string]interface{}) (record, error) {
	r := record{}
	for key := range data {
		f := m.Field(key)
		if f == nil {
			return nil, engine.Validation("Unknown argument `%s` in %s.create", key, m.Name)
		}
		if f.Relation {
			return nil, engine.Unsupported("nested writes on %s.%s are not supported by the in-memory engine", m.Name, key)
		}
	}
	for _, f := range m.ScalarFields() {
		if v, ok := data[f.Name]; ok {
			r[f.Name] = types.CloneValue(v)
			continue
		}
		switch {
		case f.UpdatedAt:
			r[f.Name] = x.now()
		case f.Default != nil:
			r[f.Name] = x.defaultValue(m, f)
		case f.Optional || f.List:
			r[f.Name] = nil
		default:
			return nil, engine.Validation("Argument `%s` is missing in %s.create", f.Name, m.Name)
		}
	}
	if err := checkUnique(s, m, r, ""); err != nil {
		return nil, err
	}
	s.put(m.Name, primaryKey(m, r), r)
	return r, nil
}

func (x *executor) defaultValue(m *schema.Model, f *schema.Field) interface{} {
	switch f.Default.Function {
	case "":
		return f.Default.Value
	case "autoincrement":
		return x.counters[m.Name].Inc()
	case "uuid", "cuid", "nanoid":
		return uuid.NewString()
	case "now":
		return x.now()
	default:
		return nil
	}
}

func (x *executor) update(s *state, m *schema.Model, old record, data map[string]interface{}) (record, error) {
	r := make(record, len(old))
	for k, v := range old {
		r[k] = v
	}
	for key, v := range data {
		f := m.Field(key)
		if f == nil {
			return nil, engine.Validation("Unknown argument `%s` in %s.update", key, m.Name)
		}
		if f.Relation {
			return nil, engine.Unsupported("nested writes on %s.%s are not supported by the in-memory engine", m.Name, key)
		}
		next, err := applyFieldUpdate(m, f, r[key], v)
		if err != nil {
			return nil, err
		}
		r[key] = next
	}
	for _, f := range m.ScalarFields() {
		if _, set := data[f.Name]; f.UpdatedAt && !set {
			r[f.Name] = x.now()
		}
	}
	oldKey := primaryKey(m, old)
	if err := checkUnique(s, m, r, oldKey); err != nil {
		return nil, err
	}
	if newKey := primaryKey(m, r); newKey != oldKey {
		s.remove(m.Name, oldKey)
		s.put(m.Name, newKey, r)
	} else {
		s.put(m.Name, oldKey, r)
	}
	return r, nil
}

func applyFieldUpdate(m *schema.Model, f *schema.Field, current, v interface{}) (interface{}, error) {
	ops, ok := types.AsMap(v)
	if !ok || f.Type == "Json" {
		return types.CloneValue(v), nil
	}
	if set, ok := ops["set"]; ok {
		return types.CloneValue(set), nil
	}
	cur, curOK := toFloat(current)
	for op, operand := range ops {
		n, ok := toFloat(operand)
		if !ok || !curOK {
			return nil, engine.Validation("Invalid %s operation on %s.%s", op, m.Name, f.Name)
		}
		switch op {
		case "increment":
			cur += n
		case "decrement":
			cur -= n
		case "multiply":
			cur *= n
		case "divide":
			if n == 0 {
				return nil, engine.Validation("Division by zero on %s.%s", m.Name, f.Name)
			}
			cur /= n
		default:
			return nil, engine.Validation("Unknown update operation `%s` on %s.%s", op, m.Name, f.Name)
		}
	}
	return numberLike(current, cur), nil
}

// numberLike converts f back to the numeric type of like.
func numberLike(like interface{}, f float64) interface{} {
	switch like.(type) {
	case int:
		return int(f)
	case int32:
		return int32(f)
	case int64:
		return int64(f)
	}
	return f
}

// checkUnique rejects r when another row, other than the one stored at
// self, shares all values of any unique criteria.
func checkUnique(s *state, m *schema.Model, r record, self string) error {
	for _, fields := range m.UniqueCriteria() {
		complete := true
		for _, name := range fields {
			if r[name] == nil {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		var clash bool
		s.table(m.Name).Scan(func(key string, other record) bool {
			if key == self {
				return true
			}
			for _, name := range fields {
				if !equal(r[name], other[name]) {
					return true
				}
			}
			clash = true
			return false
		})
		if clash {
			return engine.UniqueConstraint(m.Name, fields)
		}
	}
	return nil
}

func aggregate(m *schema.Model, rows []record, args types.Args) map[string]interface{} {
	out := map[string]interface{}{}
	if c, ok := args["_count"]; ok {
		if fields, isMap := types.AsMap(c); isMap {
			counts := map[string]interface{}{}
			for name := range fields {
				if name == "_all" {
					counts[name] = len(rows)
					continue
				}
				n := 0
				for _, r := range rows {
					if r[name] != nil {
						n++
					}
				}
				counts[name] = n
			}
			out["_count"] = counts
		} else {
			out["_count"] = len(rows)
		}
	}
	for _, fn := range []string{"_sum", "_avg", "_min", "_max"} {
		fields, ok := types.AsMap(args[fn])
		if !ok {
			continue
		}
		res := map[string]interface{}{}
		for name := range fields {
			res[name] = aggregateField(m, fn, name, rows)
		}
		out[fn] = res
	}
	return out
}

func aggregateField(m *schema.Model, fn, name string, rows []record) interface{} {
	var (
		best  interface{}
		sum   float64
		count int
	)
	for _, r := range rows {
		v := r[name]
		if v == nil {
			continue
		}
		switch fn {
		case "_sum", "_avg":
			if n, ok := toFloat(v); ok {
				sum += n
				count++
			}
		case "_min":
			if c, ok := compare(v, best); best == nil || (ok && c < 0) {
				best = v
			}
		case "_max":
			if c, ok := compare(v, best); best == nil || (ok && c > 0) {
				best = v
			}
		}
	}
	switch fn {
	case "_sum":
		if count == 0 {
			return nil
		}
		if f := m.Field(name); f != nil && (f.Type == "Int" || f.Type == "BigInt") {
			return int64(sum)
		}
		return sum
	case "_avg":
		if count == 0 {
			return nil
		}
		return sum / float64(count)
	}
	return best
}

func (x *executor) groupBy(s *state, m *schema.Model, args types.Args) (interface{}, error) {
	var by []string
	for _, item := range listOf(args["by"]) {
		name, _ := item.(string)
		if m.Field(name) == nil {
			return nil, engine.Validation("Unknown field `%v` in groupBy of %s", item, m.Name)
		}
		by = append(by, name)
	}
	if len(by) == 0 {
		if name, ok := args["by"].(string); ok && m.Field(name) != nil {
			by = []string{name}
		} else {
			return nil, engine.Validation("Argument `by` of %s.groupBy is missing", m.Name)
		}
	}
	where, _ := types.AsMap(args["where"])
	rows, err := x.filter(s, m, where)
	if err != nil {
		return nil, err
	}
	keys := make([]orderKey, len(by))
	for i, name := range by {
		keys[i] = orderKey{field: name}
	}
	sortRecords(rows, keys)

	var (
		groups [][]record
		heads  []record
	)
	for _, r := range rows {
		n := len(heads)
		if n > 0 && sameGroup(heads[n-1], r, by) {
			groups[n-1] = append(groups[n-1], r)
			continue
		}
		heads = append(heads, r)
		groups = append(groups, []record{r})
	}

	results := make([]record, len(groups))
	for i, g := range groups {
		res := record(aggregate(m, g, args))
		for _, name := range by {
			res[name] = types.CloneValue(heads[i][name])
		}
		results[i] = res
	}
	order, err := parseOrderBy(m, args["orderBy"])
	if err != nil {
		return nil, err
	}
	sortRecords(results, order)

	out := make([]interface{}, len(results))
	for i, r := range results {
		out[i] = map[string]interface{}(r)
	}
	return out, nil
}

func sameGroup(a, b record, by []string) bool {
	for _, name := range by {
		if !equal(a[name], b[name]) {
			return false
		}
	}
	return true
}
