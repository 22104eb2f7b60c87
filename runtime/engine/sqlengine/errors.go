package sqlengine

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/satishbabariya/prisma-go-client/runtime/engine"
)

var (
	pqKeyDetail   = regexp.MustCompile(`Key \((.+?)\)=`)
	mysqlKeyName  = regexp.MustCompile(`for key '([^']+)'`)
	sqliteColumns = regexp.MustCompile(`constraint failed: (.+)$`)
)

// translate maps a driver error to an engine error. Errors that have no
// engine equivalent are wrapped with msg.
func translate(err error, model string, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			var fields []string
			if m := pqKeyDetail.FindStringSubmatch(pqErr.Detail); m != nil {
				fields = splitColumns(m[1])
			} else if pqErr.Constraint != "" {
				fields = []string{pqErr.Constraint}
			}
			return engine.UniqueConstraint(model, fields)
		case "40001", "40P01":
			return engine.WriteConflict()
		}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1062:
			var fields []string
			if m := mysqlKeyName.FindStringSubmatch(myErr.Message); m != nil {
				key := m[1]
				if i := strings.LastIndex(key, "."); i >= 0 {
					key = key[i+1:]
				}
				fields = []string{key}
			}
			return engine.UniqueConstraint(model, fields)
		case 1205, 1213:
			return engine.WriteConflict()
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch {
		case liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			var fields []string
			if m := sqliteColumns.FindStringSubmatch(liteErr.Error()); m != nil {
				for _, col := range splitColumns(m[1]) {
					if i := strings.LastIndex(col, "."); i >= 0 {
						col = col[i+1:]
					}
					fields = append(fields, col)
				}
			}
			return engine.UniqueConstraint(model, fields)
		case liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked:
			return engine.WriteConflict()
		}
	}

	if errors.Is(err, sql.ErrTxDone) {
		return engine.TransactionClosed("query")
	}
	return errors.Wrap(err, msg)
}

func splitColumns(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(strings.TrimSpace(p), "\"`"); p != "" {
			out = append(out, p)
		}
	}
	return out
}
