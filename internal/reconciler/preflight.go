package reconciler

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dbsmedya/goreconcile/internal/config"
	"github.com/dbsmedya/goreconcile/internal/database"
	"github.com/dbsmedya/goreconcile/internal/logger"
	"github.com/dbsmedya/goreconcile/internal/sqlutil"
)

// Issue is one preflight finding. Fatal issues make a run pointless
// (missing table or column); non-fatal issues are warnings the run can
// proceed past, such as an unindexed ordering column.
type Issue struct {
	Table   string
	Side    string
	Check   string
	Message string
	Fatal   bool
}

// HasFatal reports whether any issue in the list is fatal.
func HasFatal(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Fatal {
			return true
		}
	}
	return false
}

// Preflight validates configured tables against both live schemas before
// a reconciliation run starts, via information_schema.
type Preflight struct {
	manager *database.Manager
	logger  *logger.Logger
}

// NewPreflight creates a preflight checker over a connected manager.
func NewPreflight(mgr *database.Manager, log *logger.Logger) (*Preflight, error) {
	if mgr == nil || mgr.Source == nil || mgr.Target == nil {
		return nil, fmt.Errorf("database manager is not connected")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Preflight{manager: mgr, logger: log}, nil
}

// Run checks every configured table on both sides and returns all
// findings. A backend error aborts the whole preflight; findings are
// never partial.
func (p *Preflight) Run(ctx context.Context, tables []config.TableConfig) ([]Issue, error) {
	var issues []Issue

	sides := []struct {
		name    string
		db      *sql.DB
		dialect sqlutil.Dialect
	}{
		{"source", p.manager.Source, p.manager.SourceDialect},
		{"target", p.manager.Target, p.manager.TargetDialect},
	}

	for _, tbl := range tables {
		for _, side := range sides {
			found, err := p.checkTable(ctx, side.db, side.dialect, tbl)
			if err != nil {
				return nil, fmt.Errorf("preflight on %s for table %s: %w", side.name, tbl.Name, err)
			}
			for i := range found {
				found[i].Side = side.name
			}
			issues = append(issues, found...)
		}
	}

	for _, issue := range issues {
		l := p.logger.WithTable(issue.Table).WithSide(issue.Side)
		if issue.Fatal {
			l.Errorw("Preflight check failed", "check", issue.Check, "message", issue.Message)
		} else {
			l.Warnw("Preflight warning", "check", issue.Check, "message", issue.Message)
		}
	}

	return issues, nil
}

// checkTable runs all checks for one table on one side.
func (p *Preflight) checkTable(ctx context.Context, db *sql.DB, dialect sqlutil.Dialect, tbl config.TableConfig) ([]Issue, error) {
	exists, err := p.tableExists(ctx, db, dialect, tbl.Name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []Issue{{
			Table:   tbl.Name,
			Check:   "table_exists",
			Message: fmt.Sprintf("table %s does not exist", tbl.Name),
			Fatal:   true,
		}}, nil
	}

	columns, err := p.tableColumns(ctx, db, dialect, tbl.Name)
	if err != nil {
		return nil, err
	}

	var issues []Issue
	for _, col := range p.requiredColumns(tbl) {
		if !columns[strings.ToLower(col)] {
			issues = append(issues, Issue{
				Table:   tbl.Name,
				Check:   "column_exists",
				Message: fmt.Sprintf("column %s does not exist on table %s", col, tbl.Name),
				Fatal:   true,
			})
		}
	}

	// Checksum determinism depends on a consistent ordering-key sort.
	// Without an index leading on that column the scan is also a
	// filesort on every run. MySQL exposes index statistics in
	// information_schema; other backends skip this check.
	if dialect == sqlutil.DialectMySQL && columns[strings.ToLower(tbl.OrderingKey())] {
		indexed, err := p.mysqlLeadingIndex(ctx, db, tbl.Name, tbl.OrderingKey())
		if err != nil {
			return nil, err
		}
		if !indexed {
			issues = append(issues, Issue{
				Table:   tbl.Name,
				Check:   "ordering_index",
				Message: fmt.Sprintf("no index leads on ordering column %s; checksum scans will filesort", tbl.OrderingKey()),
				Fatal:   false,
			})
		}
	}

	return issues, nil
}

// requiredColumns lists every column the configuration references.
func (p *Preflight) requiredColumns(tbl config.TableConfig) []string {
	cols := append([]string{}, tbl.Keys()...)
	if tbl.TimestampColumn != "" {
		cols = append(cols, tbl.TimestampColumn)
	}
	cols = append(cols, tbl.CompareColumns...)
	return cols
}

// schemaFilter scopes information_schema lookups to the connection's
// own schema; a same-named table in another database must not satisfy
// a check or merge its columns in.
func schemaFilter(dialect sqlutil.Dialect) string {
	if dialect == sqlutil.DialectPostgres {
		return "table_schema = current_schema()"
	}
	return "table_schema = DATABASE()"
}

func (p *Preflight) tableExists(ctx context.Context, db *sql.DB, dialect sqlutil.Dialect, table string) (bool, error) {
	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_name = %s AND %s",
		dialect.Placeholder(1), schemaFilter(dialect))

	var count int
	if err := db.QueryRowContext(ctx, query, table).Scan(&count); err != nil {
		return false, fmt.Errorf("table existence query failed: %w", err)
	}
	return count > 0, nil
}

// tableColumns returns the table's column names lowercased, since
// information_schema casing differs between backends.
func (p *Preflight) tableColumns(ctx context.Context, db *sql.DB, dialect sqlutil.Dialect, table string) (map[string]bool, error) {
	query := fmt.Sprintf(
		"SELECT column_name FROM information_schema.columns WHERE table_name = %s AND %s",
		dialect.Placeholder(1), schemaFilter(dialect))

	rows, err := db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("column query failed: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		columns[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	return columns, nil
}

func (p *Preflight) mysqlLeadingIndex(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	query := "SELECT COUNT(*) FROM information_schema.statistics " +
		"WHERE table_name = ? AND column_name = ? AND seq_in_index = 1 " +
		"AND table_schema = DATABASE()"

	var count int
	if err := db.QueryRowContext(ctx, query, table, column).Scan(&count); err != nil {
		return false, fmt.Errorf("index statistics query failed: %w", err)
	}
	return count > 0, nil
}
