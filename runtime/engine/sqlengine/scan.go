package sqlengine

import (
	"database/sql"
	"reflect"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// scanRows reads every row into a map keyed by column name. Text returned
// as []byte by the driver is converted to string, except for binary columns.
func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.Wrap(err, "read columns")
	}

	results := []map[string]interface{}{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, errors.Wrap(err, "scan row")
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col.Name()] = normalize(values[i], col.DatabaseTypeName())
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func normalize(v interface{}, dbType string) interface{} {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	switch strings.ToUpper(dbType) {
	case "BLOB", "BYTEA", "BINARY", "VARBINARY", "LONGBLOB", "MEDIUMBLOB", "TINYBLOB":
		return append([]byte(nil), b...)
	}
	return string(b)
}

// Decode converts the rows returned by a model or raw query into structs.
// Columns are matched against the db tag, the field name, then the field
// name ignoring case. Unmatched columns are skipped.
func Decode[T any](result interface{}) ([]T, error) {
	var rows []map[string]interface{}
	switch r := result.(type) {
	case []map[string]interface{}:
		rows = r
	case map[string]interface{}:
		rows = []map[string]interface{}{r}
	case nil:
		return nil, nil
	default:
		return nil, errors.Errorf("cannot decode %T", result)
	}

	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var item T
		val := reflect.ValueOf(&item).Elem()
		if val.Kind() != reflect.Struct {
			return nil, errors.Errorf("decode target %T is not a struct", item)
		}
		typ := val.Type()
		for col, v := range row {
			field := findFieldByName(typ, col)
			if field.Name == "" || v == nil {
				continue
			}
			if err := assign(val.FieldByIndex(field.Index), v); err != nil {
				return nil, errors.Wrapf(err, "column %s", col)
			}
		}
		out = append(out, item)
	}
	return out, nil
}

func assign(dst reflect.Value, v interface{}) error {
	src := reflect.ValueOf(v)
	if dst.Kind() == reflect.Ptr {
		ptr := reflect.New(dst.Type().Elem())
		if err := assign(ptr.Elem(), v); err != nil {
			return err
		}
		dst.Set(ptr)
		return nil
	}
	if s, ok := v.(string); ok && dst.Type() == reflect.TypeOf(time.Time{}) {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	}
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}
	numericToString := dst.Kind() == reflect.String && src.Kind() != reflect.String
	if src.Type().ConvertibleTo(dst.Type()) && !numericToString {
		dst.Set(src.Convert(dst.Type()))
		return nil
	}
	return errors.Errorf("cannot assign %T to %s", v, dst.Type())
}

// findFieldByName finds a struct field by database column name (db tag or field name)
func findFieldByName(typ reflect.Type, colName string) reflect.StructField {
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		if tag := field.Tag.Get("db"); tag != "" {
			if name := strings.Split(tag, ",")[0]; name == colName {
				return field
			}
			continue
		}
		if field.Name == colName || strings.EqualFold(field.Name, colName) {
			return field
		}
	}
	return reflect.StructField{}
}
