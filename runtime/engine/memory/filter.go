package memory

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/satishbabariya/prisma-go-client/runtime/engine"
	"github.com/satishbabariya/prisma-go-client/runtime/schema"
	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

var filterOperators = map[string]bool{
	"equals":     true,
	"not":        true,
	"in":         true,
	"notIn":      true,
	"lt":         true,
	"lte":        true,
	"gt":         true,
	"gte":        true,
	"contains":   true,
	"startsWith": true,
	"endsWith":   true,
	"mode":       true,
}

// matches evaluates a where filter against r.
func matches(m *schema.Model, r record, where map[string]interface{}) (bool, error) {
	for key, cond := range where {
		ok, err := matchKey(m, r, key, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchKey(m *schema.Model, r record, key string, cond interface{}) (bool, error) {
	switch key {
	case "AND":
		for _, sub := range filterList(cond) {
			ok, err := matches(m, r, sub)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case "OR":
		subs := filterList(cond)
		for _, sub := range subs {
			ok, err := matches(m, r, sub)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return len(subs) == 0, nil
	case "NOT":
		for _, sub := range filterList(cond) {
			ok, err := matches(m, r, sub)
			if err != nil {
				return false, err
			}
			if ok {
				return false, nil
			}
		}
		return true, nil
	}

	field := m.Field(key)
	if field == nil {
		// compound unique selector such as {"authorId_title": {...}}
		if nested, ok := types.AsMap(cond); ok {
			return matches(m, r, nested)
		}
		return false, engine.Validation("Unknown argument `%s` in where of %s", key, m.Name)
	}
	if field.Relation {
		return false, engine.Unsupported("relation filters on %s.%s are not supported by the in-memory engine", m.Name, key)
	}
	return matchValue(r[key], cond)
}

func matchValue(actual, cond interface{}) (bool, error) {
	ops, ok := types.AsMap(cond)
	if !ok || !isOperatorMap(ops) {
		return equal(actual, cond), nil
	}
	insensitive := ops["mode"] == "insensitive"
	for op, want := range ops {
		var ok bool
		switch op {
		case "mode":
			continue
		case "equals":
			ok = equalMode(actual, want, insensitive)
		case "not":
			if nested, isMap := types.AsMap(want); isMap && isOperatorMap(nested) {
				inner, err := matchValue(actual, nested)
				if err != nil {
					return false, err
				}
				ok = !inner
			} else {
				ok = !equalMode(actual, want, insensitive)
			}
		case "in", "notIn":
			found := false
			for _, item := range listOf(want) {
				if equalMode(actual, item, insensitive) {
					found = true
					break
				}
			}
			ok = found == (op == "in")
		case "lt", "lte", "gt", "gte":
			c, comparable := compare(actual, want)
			if !comparable {
				return false, nil
			}
			switch op {
			case "lt":
				ok = c < 0
			case "lte":
				ok = c <= 0
			case "gt":
				ok = c > 0
			case "gte":
				ok = c >= 0
			}
		case "contains", "startsWith", "endsWith":
			s, isStr := actual.(string)
			sub, subStr := want.(string)
			if !isStr || !subStr {
				return false, nil
			}
			if insensitive {
				s, sub = strings.ToLower(s), strings.ToLower(sub)
			}
			switch op {
			case "contains":
				ok = strings.Contains(s, sub)
			case "startsWith":
				ok = strings.HasPrefix(s, sub)
			case "endsWith":
				ok = strings.HasSuffix(s, sub)
			}
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func isOperatorMap(m map[string]interface{}) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !filterOperators[k] {
			return false
		}
	}
	return true
}

func filterList(v interface{}) []map[string]interface{} {
	if m, ok := types.AsMap(v); ok {
		return []map[string]interface{}{m}
	}
	var out []map[string]interface{}
	for _, item := range listOf(v) {
		if m, ok := types.AsMap(item); ok {
			out = append(out, m)
		}
	}
	return out
}

func listOf(v interface{}) []interface{} {
	switch val := v.(type) {
	case []interface{}:
		return val
	case []map[string]interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case []types.Args:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = map[string]interface{}(item)
		}
		return out
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func equalMode(a, b interface{}, insensitive bool) bool {
	if insensitive {
		as, aok := a.(string)
		bs, bok := b.(string)
		if aok && bok {
			return strings.EqualFold(as, bs)
		}
	}
	return equal(a, b)
}

func equal(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two scalar values of the same family.
func compare(a, b interface{}) (int, bool) {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case time.Time:
		bv, ok := toTime(b)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}

type orderKey struct {
	field string
	desc  bool
}

func parseOrderBy(m *schema.Model, v interface{}) ([]orderKey, error) {
	if v == nil {
		return nil, nil
	}
	var keys []orderKey
	for _, item := range filterList(v) {
		// sort map keys so a multi-key map orders deterministically
		names := make([]string, 0, len(item))
		for name := range item {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if m.Field(name) == nil {
				return nil, engine.Validation("Unknown field `%s` in orderBy of %s", name, m.Name)
			}
			dir := fmt.Sprint(item[name])
			if dir != "asc" && dir != "desc" {
				return nil, engine.Validation("Invalid sort order %q for %s.%s", dir, m.Name, name)
			}
			keys = append(keys, orderKey{field: name, desc: dir == "desc"})
		}
	}
	return keys, nil
}

// sortRecords orders rows in place. nil values sort first.
func sortRecords(rows []record, keys []orderKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			a, b := rows[i][k.field], rows[j][k.field]
			var c int
			switch {
			case a == nil && b == nil:
				c = 0
			case a == nil:
				c = -1
			case b == nil:
				c = 1
			default:
				c, _ = compare(a, b)
			}
			if c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
