package advisor

import (
	"fmt"
	"strings"

	"github.com/dbsmedya/goreconcile/internal/sqlutil"
)

// RenderDDL renders one recommendation as dialect-specific CREATE INDEX
// DDL. Postgres builds concurrently and supports INCLUDE and partial
// predicates natively; SQL Server builds online with INCLUDE and a
// filtered WHERE; MySQL supports neither, so included columns are
// folded into the key list and a partial predicate degrades to a
// complete index with an explanatory comment.
func RenderDDL(rec Recommendation, dialect sqlutil.Dialect) string {
	name := indexName(rec)
	quotedName := dialect.QuoteIdentifier(name)
	quotedTable := dialect.QuoteIdentifier(rec.Table)

	var b strings.Builder

	switch dialect {
	case sqlutil.DialectPostgres:
		fmt.Fprintf(&b, "CREATE INDEX CONCURRENTLY IF NOT EXISTS %s ON %s (%s)",
			quotedName, quotedTable, quoteList(rec.Columns, dialect))
		if len(rec.Include) > 0 {
			fmt.Fprintf(&b, " INCLUDE (%s)", quoteList(rec.Include, dialect))
		}
		if rec.WhereColumn != "" {
			fmt.Fprintf(&b, " WHERE %s = %s",
				dialect.QuoteIdentifier(rec.WhereColumn), sqlutil.QuoteString(rec.WhereValue))
		}
		b.WriteString(";")

	case sqlutil.DialectSQLServer:
		fmt.Fprintf(&b, "CREATE INDEX %s ON %s (%s)",
			quotedName, quotedTable, quoteList(rec.Columns, dialect))
		if len(rec.Include) > 0 {
			fmt.Fprintf(&b, " INCLUDE (%s)", quoteList(rec.Include, dialect))
		}
		if rec.WhereColumn != "" {
			fmt.Fprintf(&b, " WHERE %s = %s",
				dialect.QuoteIdentifier(rec.WhereColumn), sqlutil.QuoteString(rec.WhereValue))
		}
		b.WriteString(" WITH (ONLINE = ON);")

	default:
		columns := rec.Columns
		if len(rec.Include) > 0 {
			columns = append(append([]string{}, columns...), rec.Include...)
		}
		if rec.WhereColumn != "" {
			fmt.Fprintf(&b, "-- MySQL has no partial indexes; index covers all rows, not only %s = %s\n",
				rec.WhereColumn, sqlutil.QuoteString(rec.WhereValue))
		}
		fmt.Fprintf(&b, "CREATE INDEX %s ON %s (%s) ALGORITHM=INPLACE LOCK=NONE;",
			quotedName, quotedTable, quoteList(columns, dialect))
	}

	return b.String()
}

// indexName derives a deterministic index name from the recommendation.
func indexName(rec Recommendation) string {
	parts := append([]string{"idx", rec.Table}, rec.Columns...)
	name := strings.Join(parts, "_")
	if rec.WhereColumn != "" {
		name += "_partial"
	}
	return name
}

func quoteList(columns []string, dialect sqlutil.Dialect) string {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = dialect.QuoteIdentifier(col)
	}
	return strings.Join(quoted, ", ")
}
