// Package types provides runtime types for Prisma Go.
package types

import "time"

// DateTime represents a timestamp
type DateTime = time.Time

// Json represents a JSON value
type Json = interface{}

// Args holds the arguments of an operation, e.g. {"where": {...}, "data": {...}}.
type Args map[string]interface{}

// Clone returns a deep copy of the arguments. Nested maps and slices are
// copied so that mutating the clone never changes the receiver.
func (a Args) Clone() Args {
	if a == nil {
		return nil
	}
	return Args(cloneMap(a))
}

// CloneValue deep copies a value built from maps, slices and scalars.
func CloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case Args:
		return val.Clone()
	case map[string]interface{}:
		return cloneMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	case []map[string]interface{}:
		out := make([]map[string]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneMap(item)
		}
		return out
	case []Args:
		out := make([]Args, len(val))
		for i, item := range val {
			out[i] = item.Clone()
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case []int:
		return append([]int(nil), val...)
	case []int64:
		return append([]int64(nil), val...)
	case []float64:
		return append([]float64(nil), val...)
	case []byte:
		return append([]byte(nil), val...)
	default:
		// scalars, time.Time and other values copy by value
		return v
	}
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// AsMap returns v as a plain map when it is one of the map shapes used in
// arguments.
func AsMap(v interface{}) (map[string]interface{}, bool) {
	switch val := v.(type) {
	case Args:
		return map[string]interface{}(val), true
	case map[string]interface{}:
		return val, true
	default:
		return nil, false
	}
}
