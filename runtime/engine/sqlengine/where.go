package sqlengine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/satishbabariya/prisma-go-client/runtime/engine"
	"github.com/satishbabariya/prisma-go-client/runtime/schema"
	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

// WhereClause represents a WHERE condition (can be nested)
type WhereClause struct {
	Conditions []Condition
	Groups     []*WhereClause // Nested WHERE clauses for AND/OR/NOT
	Operator   string         // "AND" or "OR"
	IsNot      bool           // true for NOT conditions
}

// Condition represents a single filter condition
type Condition struct {
	Field    string
	Operator string // "=", "!=", ">", "<", ">=", "<=", "IN", "NOT IN", "LIKE", "IS NULL", "IS NOT NULL"
	Value    interface{}
}

// IsEmpty returns true if the WHERE clause is empty
func (w *WhereClause) IsEmpty() bool {
	return w == nil || (len(w.Conditions) == 0 && len(w.Groups) == 0)
}

// args accumulates bind arguments while a statement is built.
type args struct {
	d      dialect
	values []interface{}
}

func (a *args) add(v interface{}) string {
	a.values = append(a.values, v)
	return a.d.placeholder(len(a.values))
}

// buildWhere renders a WHERE clause with support for nested conditions.
func buildWhere(where *WhereClause, a *args) string {
	if where.IsEmpty() {
		return ""
	}

	var parts []string
	for _, cond := range where.Conditions {
		if sql := buildCondition(cond, a); sql != "" {
			parts = append(parts, sql)
		}
	}
	for _, group := range where.Groups {
		if sql := buildWhere(group, a); sql != "" {
			parts = append(parts, "("+sql+")")
		}
	}
	if len(parts) == 0 {
		return ""
	}

	op := "AND"
	if strings.EqualFold(where.Operator, "OR") {
		op = "OR"
	}
	result := strings.Join(parts, " "+op+" ")
	if where.IsNot {
		result = "NOT (" + result + ")"
	}
	return result
}

func buildCondition(cond Condition, a *args) string {
	field := a.d.quote(cond.Field)
	switch cond.Operator {
	case "=", "!=", ">", "<", ">=", "<=":
		return fmt.Sprintf("%s %s %s", field, cond.Operator, a.add(cond.Value))

	case "IN", "NOT IN":
		values, _ := cond.Value.([]interface{})
		if len(values) == 0 {
			// x IN () matches nothing, x NOT IN () matches everything
			if cond.Operator == "IN" {
				return "1=0"
			}
			return "1=1"
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = a.add(v)
		}
		return fmt.Sprintf("%s %s (%s)", field, cond.Operator, strings.Join(placeholders, ", "))

	case "LIKE":
		return fmt.Sprintf("%s LIKE %s%s", field, a.add(cond.Value), a.d.likeEscape)

	case "IS NULL", "IS NOT NULL":
		return field + " " + cond.Operator

	case "FALSE":
		return "1=0"
	}
	return ""
}

// whereFromArgs converts a Prisma where argument into a WhereClause.
func whereFromArgs(m *schema.Model, where map[string]interface{}) (*WhereClause, error) {
	clause := &WhereClause{Operator: "AND"}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := where[key]
		switch key {
		case "AND", "OR", "NOT":
			list, err := filterList(value)
			if err != nil {
				return nil, err
			}
			if key == "NOT" {
				// NOT matches rows matching none of the filters
				for _, sub := range list {
					c, err := whereFromArgs(m, sub)
					if err != nil {
						return nil, err
					}
					if !c.IsEmpty() {
						c.IsNot = true
						clause.Groups = append(clause.Groups, c)
					}
				}
				continue
			}
			group := &WhereClause{Operator: "AND"}
			if key == "OR" {
				group.Operator = "OR"
				if len(list) == 0 {
					// an empty OR matches nothing
					clause.Conditions = append(clause.Conditions, Condition{Operator: "FALSE"})
					continue
				}
			}
			for _, sub := range list {
				c, err := whereFromArgs(m, sub)
				if err != nil {
					return nil, err
				}
				if !c.IsEmpty() {
					group.Groups = append(group.Groups, c)
				}
			}
			if !group.IsEmpty() {
				clause.Groups = append(clause.Groups, group)
			}
			continue
		}

		f := m.Field(key)
		if f == nil {
			// compound unique selector such as authorId_title
			nested, ok := types.AsMap(value)
			if !ok {
				return nil, engine.Validation("Unknown argument `%s` in where of %s", key, m.Name)
			}
			c, err := whereFromArgs(m, nested)
			if err != nil {
				return nil, err
			}
			clause.Groups = append(clause.Groups, c)
			continue
		}
		if f.Relation {
			return nil, engine.Unsupported("relation filters on %s.%s", m.Name, key)
		}
		conds, err := fieldConditions(key, value)
		if err != nil {
			return nil, err
		}
		clause.Conditions = append(clause.Conditions, conds...)
	}
	return clause, nil
}

func fieldConditions(field string, value interface{}) ([]Condition, error) {
	ops, ok := types.AsMap(value)
	if !ok {
		if value == nil {
			return []Condition{{Field: field, Operator: "IS NULL"}}, nil
		}
		return []Condition{{Field: field, Operator: "=", Value: value}}, nil
	}

	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Condition
	for _, name := range names {
		v := ops[name]
		switch name {
		case "equals":
			if v == nil {
				out = append(out, Condition{Field: field, Operator: "IS NULL"})
			} else {
				out = append(out, Condition{Field: field, Operator: "=", Value: v})
			}
		case "not":
			if v == nil {
				out = append(out, Condition{Field: field, Operator: "IS NOT NULL"})
			} else if _, nested := types.AsMap(v); nested {
				return nil, engine.Unsupported("nested not filter on %s", field)
			} else {
				out = append(out, Condition{Field: field, Operator: "!=", Value: v})
			}
		case "in", "notIn":
			list, err := valueList(v)
			if err != nil {
				return nil, err
			}
			op := "IN"
			if name == "notIn" {
				op = "NOT IN"
			}
			out = append(out, Condition{Field: field, Operator: op, Value: list})
		case "lt":
			out = append(out, Condition{Field: field, Operator: "<", Value: v})
		case "lte":
			out = append(out, Condition{Field: field, Operator: "<=", Value: v})
		case "gt":
			out = append(out, Condition{Field: field, Operator: ">", Value: v})
		case "gte":
			out = append(out, Condition{Field: field, Operator: ">=", Value: v})
		case "contains", "startsWith", "endsWith":
			s, ok := v.(string)
			if !ok {
				return nil, engine.Validation("Argument `%s` of %s must be a string", name, field)
			}
			pattern := escapeLike(s)
			switch name {
			case "contains":
				pattern = "%" + pattern + "%"
			case "startsWith":
				pattern += "%"
			case "endsWith":
				pattern = "%" + pattern
			}
			out = append(out, Condition{Field: field, Operator: "LIKE", Value: pattern})
		case "mode":
			return nil, engine.Unsupported("mode filter on %s", field)
		default:
			return nil, engine.Validation("Unknown filter `%s` on %s", name, field)
		}
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func filterList(v interface{}) ([]map[string]interface{}, error) {
	if m, ok := types.AsMap(v); ok {
		return []map[string]interface{}{m}, nil
	}
	list, err := valueList(v)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		m, ok := types.AsMap(item)
		if !ok {
			return nil, engine.Validation("Logical filters take objects")
		}
		out = append(out, m)
	}
	return out, nil
}

func valueList(v interface{}) ([]interface{}, error) {
	switch list := v.(type) {
	case []interface{}:
		return list, nil
	case []map[string]interface{}:
		out := make([]interface{}, len(list))
		for i, m := range list {
			out[i] = m
		}
		return out, nil
	case []string:
		out := make([]interface{}, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, nil
	case []int:
		out := make([]interface{}, len(list))
		for i, n := range list {
			out[i] = n
		}
		return out, nil
	}
	return nil, engine.Validation("Expected a list, got %T", v)
}
