// Package sqlutil provides dialect-aware SQL utility functions for GoReconcile.
package sqlutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dialect identifies the SQL convention set of a backend.
// It is always supplied explicitly at call sites; the engine never
// infers a backend from runtime types or driver names.
type Dialect string

const (
	// DialectMySQL uses backtick identifier quoting and ? placeholders.
	DialectMySQL Dialect = "mysql"
	// DialectPostgres uses double-quote identifier quoting and $n placeholders.
	DialectPostgres Dialect = "postgres"
	// DialectSQLServer uses bracket identifier quoting and ? placeholders.
	DialectSQLServer Dialect = "sqlserver"
)

// ParseDialect converts a configuration string to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "postgres", "postgresql":
		return DialectPostgres, nil
	case "sqlserver", "mssql":
		return DialectSQLServer, nil
	default:
		return "", fmt.Errorf("unknown dialect %q (supported: mysql, postgres, sqlserver)", s)
	}
}

// DriverName returns the database/sql driver name registered for the
// dialect, or "" when no driver is linked in. SQL Server is only used
// to render repair scripts and DDL; it has no connection driver.
func (d Dialect) DriverName() string {
	switch d {
	case DialectMySQL:
		return "mysql"
	case DialectPostgres:
		return "postgres"
	default:
		return ""
	}
}

// QuoteIdentifier quotes a table or column name using the dialect's
// quoting convention, escaping embedded quote characters by doubling.
func (d Dialect) QuoteIdentifier(name string) string {
	switch d {
	case DialectPostgres:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	case DialectSQLServer:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	default:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
}

// Placeholder returns the parameter placeholder for the n-th argument
// of a statement (1-based).
func (d Dialect) Placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Placeholders returns count placeholders joined by ", ", numbered
// starting at offset+1 for positional dialects.
func (d Dialect) Placeholders(offset, count int) string {
	parts := make([]string, count)
	for i := 0; i < count; i++ {
		parts[i] = d.Placeholder(offset + i + 1)
	}
	return strings.Join(parts, ", ")
}

// QuoteString escapes a text value as a SQL string literal by doubling
// single quotes.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// BoolLiteral renders a boolean in the dialect's literal form.
func (d Dialect) BoolLiteral(b bool) string {
	if d == DialectPostgres {
		if b {
			return "TRUE"
		}
		return "FALSE"
	}
	if b {
		return "1"
	}
	return "0"
}

// TimeLiteral renders a timestamp in the dialect's literal form.
func (d Dialect) TimeLiteral(t time.Time) string {
	switch d {
	case DialectSQLServer:
		return "'" + t.UTC().Format("2006-01-02T15:04:05.9999999") + "'"
	default:
		return "'" + t.UTC().Format("2006-01-02 15:04:05.999999") + "'"
	}
}
