package differ

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/goreconcile/internal/sqlutil"
	"github.com/dbsmedya/goreconcile/internal/types"
)

// GenerateRepairScript renders SQL that, executed against the target,
// resolves the given discrepancies: INSERT for missing rows, DELETE for
// extra rows, UPDATE for modified rows. The whole script is wrapped in
// one transaction and is meant for hand review; the engine never
// executes it. A discrepancy lacking usable data yields an inline
// comment instead of invalid SQL.
func GenerateRepairScript(discrepancies []Discrepancy, table string, dialect sqlutil.Dialect) string {
	var b strings.Builder

	quotedTable := dialect.QuoteIdentifier(table)

	b.WriteString(fmt.Sprintf("-- Repair script for table %s\n", table))
	b.WriteString(fmt.Sprintf("-- Generated at %s\n", time.Now().UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("-- Discrepancies: %d\n", len(discrepancies)))
	b.WriteString("-- Review before executing. This script is never run automatically.\n\n")
	b.WriteString(beginLiteral(dialect) + "\n\n")

	// Group by kind, keeping the order kinds were first detected in.
	groups := orderedmap.NewOrderedMap[Kind, []Discrepancy]()
	for _, disc := range discrepancies {
		existing, _ := groups.Get(disc.Kind)
		groups.Set(disc.Kind, append(existing, disc))
	}

	for _, kind := range groups.Keys() {
		group, _ := groups.Get(kind)
		b.WriteString(fmt.Sprintf("-- %s rows (%d)\n", kind, len(group)))
		for _, disc := range group {
			switch kind {
			case KindMissing:
				b.WriteString(renderInsert(disc, quotedTable, dialect))
			case KindExtra:
				b.WriteString(renderDelete(disc, quotedTable, dialect))
			case KindModified:
				b.WriteString(renderUpdate(disc, quotedTable, dialect))
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("COMMIT;\n")
	return b.String()
}

func beginLiteral(dialect sqlutil.Dialect) string {
	switch dialect {
	case sqlutil.DialectPostgres:
		return "BEGIN;"
	case sqlutil.DialectSQLServer:
		return "BEGIN TRANSACTION;"
	default:
		return "START TRANSACTION;"
	}
}

func renderInsert(disc Discrepancy, quotedTable string, dialect sqlutil.Dialect) string {
	if len(disc.SourceRow) == 0 {
		return fmt.Sprintf("-- skipped INSERT for key (%s): no source row data available\n", keyDescription(disc))
	}

	columns := make([]string, 0, len(disc.SourceRow))
	for col := range disc.SourceRow {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	quotedCols := make([]string, len(columns))
	literals := make([]string, len(columns))
	for i, col := range columns {
		quotedCols[i] = dialect.QuoteIdentifier(col)
		literals[i] = renderLiteral(disc.SourceRow[col], dialect)
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);\n",
		quotedTable, strings.Join(quotedCols, ", "), strings.Join(literals, ", "))
}

func renderDelete(disc Discrepancy, quotedTable string, dialect sqlutil.Dialect) string {
	where, ok := keyPredicate(disc, dialect)
	if !ok {
		return fmt.Sprintf("-- skipped DELETE for key (%s): no usable primary key\n", keyDescription(disc))
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s;\n", quotedTable, where)
}

func renderUpdate(disc Discrepancy, quotedTable string, dialect sqlutil.Dialect) string {
	where, ok := keyPredicate(disc, dialect)
	if !ok {
		return fmt.Sprintf("-- skipped UPDATE for key (%s): no usable primary key\n", keyDescription(disc))
	}
	if len(disc.ModifiedColumns) == 0 || len(disc.SourceRow) == 0 {
		return fmt.Sprintf("-- skipped UPDATE for key (%s): no modified column data available\n", keyDescription(disc))
	}

	assignments := make([]string, 0, len(disc.ModifiedColumns))
	for _, col := range disc.ModifiedColumns {
		val, ok := disc.SourceRow[col]
		if !ok {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = %s",
			dialect.QuoteIdentifier(col), renderLiteral(val, dialect)))
	}
	if len(assignments) == 0 {
		return fmt.Sprintf("-- skipped UPDATE for key (%s): no modified column data available\n", keyDescription(disc))
	}

	return fmt.Sprintf("UPDATE %s SET %s WHERE %s;\n",
		quotedTable, strings.Join(assignments, ", "), where)
}

// keyPredicate builds the primary-key WHERE clause for a discrepancy.
func keyPredicate(disc Discrepancy, dialect sqlutil.Dialect) (string, bool) {
	if len(disc.Key) == 0 || len(disc.KeyColumns) != len(disc.Key) {
		return "", false
	}
	conditions := make([]string, len(disc.Key))
	for i, col := range disc.KeyColumns {
		conditions[i] = fmt.Sprintf("%s = %s",
			dialect.QuoteIdentifier(col), renderLiteral(disc.Key[i], dialect))
	}
	return strings.Join(conditions, " AND "), true
}

func keyDescription(disc Discrepancy) string {
	if len(disc.Key) == 0 {
		return "unknown"
	}
	parts := make([]string, len(disc.Key))
	for i, v := range disc.Key {
		parts[i] = types.Canonical(v)
	}
	return strings.Join(parts, ", ")
}

// renderLiteral formats one value as a dialect-correct SQL literal.
func renderLiteral(v interface{}, dialect sqlutil.Dialect) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		return dialect.BoolLiteral(val)
	case time.Time:
		return dialect.TimeLiteral(val)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return types.Canonical(val)
	default:
		return sqlutil.QuoteString(types.Canonical(val))
	}
}
