package differ

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dbsmedya/goreconcile/internal/logger"
	"github.com/dbsmedya/goreconcile/internal/sqlutil"
	"github.com/dbsmedya/goreconcile/internal/types"
)

// Differ compares one logical table across a source and a target store.
// Key reconciliation is set-based: unlike the checksum engine, row order
// is irrelevant here. Every backend error aborts the whole comparison;
// partial discrepancy lists are never returned.
type Differ struct {
	source        *sql.DB
	target        *sql.DB
	sourceDialect sqlutil.Dialect
	targetDialect sqlutil.Dialect
	tolerance     float64
	logger        *logger.Logger
}

// NewDiffer creates a differ over a source/target pair.
func NewDiffer(source, target *sql.DB, sourceDialect, targetDialect sqlutil.Dialect, log *logger.Logger) (*Differ, error) {
	if source == nil {
		return nil, fmt.Errorf("source database is nil")
	}
	if target == nil {
		return nil, fmt.Errorf("target database is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Differ{
		source:        source,
		target:        target,
		sourceDialect: sourceDialect,
		targetDialect: targetDialect,
		tolerance:     DefaultFloatTolerance,
		logger:        log,
	}, nil
}

// SetTolerance overrides the numeric comparison tolerance.
func (d *Differ) SetTolerance(tol float64) {
	if tol >= 0 {
		d.tolerance = tol
	}
}

// ReconcileTable computes the exact set of row-level differences for one
// table. compareCols limits value comparison to the named columns; when
// empty, every shared non-key column is compared.
func (d *Differ) ReconcileTable(ctx context.Context, table string, pkCols, compareCols []string) ([]Discrepancy, error) {
	if len(pkCols) == 0 {
		return nil, fmt.Errorf("at least one primary key column is required")
	}

	sourceKeys, err := d.fetchKeys(ctx, d.source, d.sourceDialect, table, pkCols)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source keys for %s: %w", table, err)
	}
	targetKeys, err := d.fetchKeys(ctx, d.target, d.targetDialect, table, pkCols)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch target keys for %s: %w", table, err)
	}

	d.logger.WithTable(table).Debugw("Fetched key sets",
		"source_keys", sourceKeys.Len(),
		"target_keys", targetKeys.Len(),
	)

	var discrepancies []Discrepancy
	now := time.Now().UTC()

	for _, key := range sourceKeys.Subtract(targetKeys) {
		row, err := d.fetchRow(ctx, d.source, d.sourceDialect, table, pkCols, key)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch source row for %s: %w", table, err)
		}
		if row == nil {
			// Row vanished between key fetch and row fetch.
			continue
		}
		discrepancies = append(discrepancies, Discrepancy{
			Table:      table,
			Key:        key,
			KeyColumns: pkCols,
			Kind:       KindMissing,
			SourceRow:  row,
			DetectedAt: now,
		})
	}

	for _, key := range targetKeys.Subtract(sourceKeys) {
		row, err := d.fetchRow(ctx, d.target, d.targetDialect, table, pkCols, key)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch target row for %s: %w", table, err)
		}
		if row == nil {
			continue
		}
		discrepancies = append(discrepancies, Discrepancy{
			Table:      table,
			Key:        key,
			KeyColumns: pkCols,
			Kind:       KindExtra,
			TargetRow:  row,
			DetectedAt: now,
		})
	}

	for _, key := range sourceKeys.Intersect(targetKeys) {
		sourceRow, err := d.fetchRow(ctx, d.source, d.sourceDialect, table, pkCols, key)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch source row for %s: %w", table, err)
		}
		targetRow, err := d.fetchRow(ctx, d.target, d.targetDialect, table, pkCols, key)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch target row for %s: %w", table, err)
		}
		if sourceRow == nil || targetRow == nil {
			continue
		}

		modified := d.compareRows(sourceRow, targetRow, pkCols, compareCols)
		if len(modified) > 0 {
			discrepancies = append(discrepancies, Discrepancy{
				Table:           table,
				Key:             key,
				KeyColumns:      pkCols,
				Kind:            KindModified,
				SourceRow:       sourceRow,
				TargetRow:       targetRow,
				ModifiedColumns: modified,
				DetectedAt:      now,
			})
		}
	}

	return discrepancies, nil
}

// fetchKeys reads every primary-key tuple of the table into a set.
func (d *Differ) fetchKeys(ctx context.Context, db *sql.DB, dialect sqlutil.Dialect, table string, pkCols []string) (*types.KeySet, error) {
	quotedTable, err := dialect.QuoteIdentifierSafe(table)
	if err != nil {
		return nil, err
	}
	quotedCols := make([]string, len(pkCols))
	for i, col := range pkCols {
		quotedCols[i], err = dialect.QuoteIdentifierSafe(col)
		if err != nil {
			return nil, err
		}
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quotedCols, ", "), quotedTable)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("key query failed: %w", err)
	}
	defer rows.Close()

	keys := types.NewKeySet()
	for rows.Next() {
		values := make([]interface{}, len(pkCols))
		valuePtrs := make([]interface{}, len(pkCols))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan key row: %w", err)
		}
		keys.Add(types.KeyTuple(values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating key rows: %w", err)
	}

	return keys, nil
}

// fetchRow reads one full row by primary key. Returns nil when the row
// no longer exists.
func (d *Differ) fetchRow(ctx context.Context, db *sql.DB, dialect sqlutil.Dialect, table string, pkCols []string, key types.KeyTuple) (map[string]interface{}, error) {
	quotedTable, err := dialect.QuoteIdentifierSafe(table)
	if err != nil {
		return nil, err
	}

	conditions := make([]string, len(pkCols))
	args := make([]interface{}, len(pkCols))
	for i, col := range pkCols {
		quotedCol, err := dialect.QuoteIdentifierSafe(col)
		if err != nil {
			return nil, err
		}
		conditions[i] = fmt.Sprintf("%s = %s", quotedCol, dialect.Placeholder(i+1))
		args[i] = key[i]
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s", quotedTable, strings.Join(conditions, " AND "))
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("row query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error reading row: %w", err)
		}
		return nil, nil
	}

	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	row := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		row[col] = values[i]
	}
	return row, nil
}

// compareRows returns the names of non-key columns whose values differ,
// in deterministic order.
func (d *Differ) compareRows(sourceRow, targetRow map[string]interface{}, pkCols, compareCols []string) []string {
	keySet := make(map[string]bool, len(pkCols))
	for _, col := range pkCols {
		keySet[strings.ToLower(col)] = true
	}

	columns := compareCols
	if len(columns) == 0 {
		// Compare every column present on both sides.
		for col := range sourceRow {
			if _, ok := targetRow[col]; ok {
				columns = append(columns, col)
			}
		}
		sort.Strings(columns)
	}

	var modified []string
	for _, col := range columns {
		if keySet[strings.ToLower(col)] {
			continue
		}
		sourceVal, inSource := sourceRow[col]
		targetVal, inTarget := targetRow[col]
		if !inSource || !inTarget {
			continue
		}
		if !d.valuesEqual(sourceVal, targetVal) {
			modified = append(modified, col)
		}
	}
	return modified
}

// valuesEqual applies the tolerant comparison policy, in order: both
// NULL, one NULL, numeric with tolerance, trimmed text, then canonical
// structural equality.
func (d *Differ) valuesEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	aNum, aOK := types.ToFloat64(a)
	bNum, bOK := types.ToFloat64(b)
	if aOK && bOK {
		return math.Abs(aNum-bNum) < d.tolerance
	}

	aText, aIsText := textValue(a)
	bText, bIsText := textValue(b)
	if aIsText && bIsText {
		return strings.TrimSpace(aText) == strings.TrimSpace(bText)
	}

	return types.Canonical(a) == types.Canonical(b)
}

func textValue(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}
