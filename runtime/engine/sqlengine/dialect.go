package sqlengine

import (
	"fmt"
	"strings"
)

// dialect holds what differs between the supported databases.
type dialect struct {
	provider string
	driver   string
	// returning is set when INSERT/UPDATE/DELETE support RETURNING *.
	returning bool
	// likeEscape is appended to LIKE conditions.
	likeEscape string
}

// dialectFor maps Prisma provider names to Go database driver names.
func dialectFor(provider string) (dialect, error) {
	switch provider {
	case "postgresql", "postgres":
		return dialect{provider: "postgresql", driver: "postgres", returning: true, likeEscape: ` ESCAPE '\'`}, nil
	case "mysql":
		return dialect{provider: "mysql", driver: "mysql"}, nil
	case "sqlite":
		return dialect{provider: "sqlite", driver: "sqlite3", returning: true, likeEscape: ` ESCAPE '\'`}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// placeholder returns the bind parameter for the n-th argument, from 1.
func (d dialect) placeholder(n int) string {
	if d.provider == "postgresql" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// quote quotes an identifier.
func (d dialect) quote(name string) string {
	if d.provider == "mysql" {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// rebind rewrites "?" placeholders of a raw query for the dialect.
// Question marks inside quoted strings are left alone.
func (d dialect) rebind(query string) string {
	if d.provider != "postgresql" || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	n := 0
	var quote rune
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '?':
			n++
			b.WriteString(d.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
