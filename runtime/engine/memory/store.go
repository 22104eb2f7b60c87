package memory

import (
	"fmt"
	"strings"

	"github.com/tidwall/btree"

	"github.com/satishbabariya/prisma-go-client/runtime/schema"
	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

// record is one stored row. Records are never mutated after they are put in
// a table; updates store a fresh map so table copies can share them.
type record map[string]interface{}

// state is a copy of the database contents, one ordered table per model,
// plus the keys written since the copy was taken.
type state struct {
	tables  map[string]*btree.Map[string, record]
	touched map[string]map[string]struct{}
}

func newState(dm *schema.Datamodel) *state {
	s := &state{
		tables:  make(map[string]*btree.Map[string, record]),
		touched: make(map[string]map[string]struct{}),
	}
	for _, m := range dm.Models {
		s.tables[m.Name] = btree.NewMap[string, record](0)
	}
	return s
}

// clone returns a copy-on-write snapshot with an empty write set. Writes to
// the snapshot do not affect the receiver.
func (s *state) clone() *state {
	out := &state{
		tables:  make(map[string]*btree.Map[string, record], len(s.tables)),
		touched: make(map[string]map[string]struct{}),
	}
	for name, t := range s.tables {
		out.tables[name] = t.Copy()
	}
	return out
}

func (s *state) table(model string) *btree.Map[string, record] {
	return s.tables[model]
}

func (s *state) get(model, key string) (record, bool) {
	return s.tables[model].Get(key)
}

func (s *state) put(model, key string, r record) {
	s.tables[model].Set(key, r)
	s.touch(model, key)
}

func (s *state) remove(model, key string) {
	s.tables[model].Delete(key)
	s.touch(model, key)
}

func (s *state) touch(model, key string) {
	keys := s.touched[model]
	if keys == nil {
		keys = make(map[string]struct{})
		s.touched[model] = keys
	}
	keys[key] = struct{}{}
}

func (s *state) dirty() bool {
	return len(s.touched) > 0
}

// rows returns the records of a table in key order.
func (s *state) rows(model string) []record {
	var out []record
	s.table(model).Scan(func(_ string, r record) bool {
		out = append(out, r)
		return true
	})
	return out
}

// primaryKey encodes the id fields of r. Integers are encoded so that their
// keys sort numerically, negative values included.
func primaryKey(m *schema.Model, r record) string {
	fields := m.ID
	if len(fields) == 0 {
		fields = m.UniqueCriteria()[0]
	}
	parts := make([]string, len(fields))
	for i, name := range fields {
		switch v := r[name].(type) {
		case int:
			parts[i] = sortableInt(int64(v))
		case int64:
			parts[i] = sortableInt(v)
		case float64:
			if v == float64(int64(v)) {
				parts[i] = sortableInt(int64(v))
			} else {
				parts[i] = fmt.Sprint(v)
			}
		default:
			parts[i] = fmt.Sprint(v)
		}
	}
	return strings.Join(parts, "\x00")
}

// sortableInt flips the sign bit and zero pads, so math.MinInt64 encodes as
// all zeros and the lexical order matches the numeric one.
func sortableInt(v int64) string {
	return fmt.Sprintf("%020d", uint64(v)^(1<<63))
}

// output copies a record for the caller, keeping only selected fields.
func output(r record, sel map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(r))
	for k, v := range r {
		if len(sel) > 0 {
			if keep, _ := sel[k].(bool); !keep {
				continue
			}
		}
		out[k] = types.CloneValue(v)
	}
	return out
}
