package sqlengine

import (
	"fmt"
	"sort"
	"strings"
)

// statement is a SQL statement with its arguments
type statement struct {
	SQL  string
	Args []interface{}
}

// OrderBy represents an ORDER BY clause
type OrderBy struct {
	Field     string
	Direction string // "ASC" or "DESC"
}

// fieldUpdate is one column assignment of an UPDATE. Op is "set" or an
// arithmetic operation applied to the current value.
type fieldUpdate struct {
	Column string
	Op     string
	Value  interface{}
}

func (d dialect) quoteAll(columns []string) string {
	if len(columns) == 0 {
		return "*"
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.quote(c)
	}
	return strings.Join(quoted, ", ")
}

func (d dialect) selectSQL(table string, columns []string, where *WhereClause, orderBy []OrderBy, limit, offset int) statement {
	a := &args{d: d}
	parts := []string{"SELECT " + d.quoteAll(columns), "FROM " + d.quote(table)}

	if sql := buildWhere(where, a); sql != "" {
		parts = append(parts, "WHERE "+sql)
	}

	if len(orderBy) > 0 {
		orderParts := make([]string, len(orderBy))
		for i, ob := range orderBy {
			direction := "ASC"
			if strings.EqualFold(ob.Direction, "DESC") {
				direction = "DESC"
			}
			orderParts[i] = fmt.Sprintf("%s %s", d.quote(ob.Field), direction)
		}
		parts = append(parts, "ORDER BY "+strings.Join(orderParts, ", "))
	}

	switch {
	case limit > 0:
		parts = append(parts, "LIMIT "+a.add(limit))
	case offset > 0 && d.provider == "mysql":
		parts = append(parts, "LIMIT 18446744073709551615")
	case offset > 0 && d.provider == "sqlite":
		parts = append(parts, "LIMIT -1")
	}
	if offset > 0 {
		parts = append(parts, "OFFSET "+a.add(offset))
	}

	return statement{SQL: strings.Join(parts, " "), Args: a.values}
}

func (d dialect) countSQL(table string, where *WhereClause) statement {
	a := &args{d: d}
	sql := "SELECT COUNT(*) FROM " + d.quote(table)
	if w := buildWhere(where, a); w != "" {
		sql += " WHERE " + w
	}
	return statement{SQL: sql, Args: a.values}
}

func (d dialect) insertSQL(table string, values map[string]interface{}) statement {
	a := &args{d: d}
	columns := sortedKeys(values)
	var sql string
	if len(columns) == 0 {
		if d.provider == "mysql" {
			sql = fmt.Sprintf("INSERT INTO %s () VALUES ()", d.quote(table))
		} else {
			sql = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", d.quote(table))
		}
	} else {
		placeholders := make([]string, len(columns))
		for i, c := range columns {
			placeholders[i] = a.add(values[c])
		}
		sql = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", d.quote(table), d.quoteAll(columns), strings.Join(placeholders, ", "))
	}
	if d.returning {
		sql += " RETURNING *"
	}
	return statement{SQL: sql, Args: a.values}
}

func (d dialect) updateSQL(table string, set []fieldUpdate, where *WhereClause) statement {
	a := &args{d: d}
	setParts := make([]string, len(set))
	for i, u := range set {
		col := d.quote(u.Column)
		switch u.Op {
		case "increment":
			setParts[i] = fmt.Sprintf("%s = %s + %s", col, col, a.add(u.Value))
		case "decrement":
			setParts[i] = fmt.Sprintf("%s = %s - %s", col, col, a.add(u.Value))
		case "multiply":
			setParts[i] = fmt.Sprintf("%s = %s * %s", col, col, a.add(u.Value))
		case "divide":
			setParts[i] = fmt.Sprintf("%s = %s / %s", col, col, a.add(u.Value))
		default:
			setParts[i] = fmt.Sprintf("%s = %s", col, a.add(u.Value))
		}
	}
	sql := fmt.Sprintf("UPDATE %s SET %s", d.quote(table), strings.Join(setParts, ", "))
	if w := buildWhere(where, a); w != "" {
		sql += " WHERE " + w
	}
	return statement{SQL: sql, Args: a.values}
}

func (d dialect) deleteSQL(table string, where *WhereClause) statement {
	a := &args{d: d}
	sql := "DELETE FROM " + d.quote(table)
	if w := buildWhere(where, a); w != "" {
		sql += " WHERE " + w
	}
	return statement{SQL: sql, Args: a.values}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
