// Package checksum computes deterministic content fingerprints for tables
// and tracks incremental checksum state between runs.
package checksum

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
	"time"

	"github.com/dbsmedya/goreconcile/internal/logger"
	"github.com/dbsmedya/goreconcile/internal/sqlutil"
	"github.com/dbsmedya/goreconcile/internal/types"
)

// Mode describes how much of a table a checksum covers.
type Mode string

const (
	// ModeFull hashes every row of the table.
	ModeFull Mode = "full"
	// ModeIncremental hashes only rows changed since a watermark.
	ModeIncremental Mode = "incremental"
)

// columnSeparator joins column values within one serialized row. The unit
// separator cannot appear in canonical numeric or timestamp output.
const columnSeparator = "\x1f"

// ComputationError wraps a backend failure during checksum computation.
// Persisted state is never touched when one of these is returned.
type ComputationError struct {
	Table string
	Err   error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("checksum computation failed for table %s: %v", e.Table, e.Err)
}

func (e *ComputationError) Unwrap() error {
	return e.Err
}

// Engine computes SHA-256 content fingerprints over a single database.
// Rows are always read in primary-key ascending order; two engines over
// stores holding the same rows in the same key order produce the same
// digest. The dialect is explicit, never inferred from the connection.
type Engine struct {
	db      *sql.DB
	dialect sqlutil.Dialect
	logger  *logger.Logger
}

// NewEngine creates a checksum engine for one database side.
func NewEngine(db *sql.DB, dialect sqlutil.Dialect, log *logger.Logger) (*Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Engine{db: db, dialect: dialect, logger: log}, nil
}

// Compute returns the content checksum and row count for a table.
//
// With since == nil every row is hashed (full mode). With a watermark,
// only rows whose changeColumn is strictly greater are hashed
// (incremental mode); changeColumn must name the table's change-tracking
// column in that case. Rows are ordered by pkColumn ascending in both
// modes. An empty result set yields the SHA-256 of zero bytes.
func (e *Engine) Compute(ctx context.Context, table, pkColumn, changeColumn string, since *time.Time) (string, int64, error) {
	quotedTable, quotedPK, err := e.quotePair(table, pkColumn)
	if err != nil {
		return "", 0, &ComputationError{Table: table, Err: err}
	}

	var query string
	var args []interface{}
	if since == nil {
		query = fmt.Sprintf("SELECT * FROM %s ORDER BY %s ASC", quotedTable, quotedPK)
	} else {
		quotedChange, qErr := e.dialect.QuoteIdentifierSafe(changeColumn)
		if qErr != nil {
			return "", 0, &ComputationError{Table: table, Err: qErr}
		}
		query = fmt.Sprintf("SELECT * FROM %s WHERE %s > %s ORDER BY %s ASC",
			quotedTable, quotedChange, e.dialect.Placeholder(1), quotedPK)
		args = append(args, *since)
	}

	hasher := sha256.New()
	rowCount, _, err := e.hashQuery(ctx, hasher, query, args, "")
	if err != nil {
		return "", 0, &ComputationError{Table: table, Err: err}
	}

	return hex.EncodeToString(hasher.Sum(nil)), rowCount, nil
}

// ComputeChunked returns the full-mode checksum reading at most chunkSize
// rows per round trip. Pages advance past the last-seen primary key, so
// memory stays bounded regardless of table size. The digest is identical
// to Compute in full mode over the same data.
func (e *Engine) ComputeChunked(ctx context.Context, table, pkColumn string, chunkSize int) (string, int64, error) {
	if chunkSize < 1 {
		return "", 0, &ComputationError{Table: table, Err: fmt.Errorf("chunk size must be at least 1, got %d", chunkSize)}
	}
	quotedTable, quotedPK, err := e.quotePair(table, pkColumn)
	if err != nil {
		return "", 0, &ComputationError{Table: table, Err: err}
	}

	hasher := sha256.New()
	var totalRows int64
	var lastKey interface{}

	for {
		query, args := e.buildChunkQuery(quotedTable, quotedPK, lastKey, chunkSize)

		fetched, last, err := e.hashQuery(ctx, hasher, query, args, pkColumn)
		if err != nil {
			return "", 0, &ComputationError{Table: table, Err: err}
		}
		totalRows += fetched
		lastKey = last

		// A short page signals end of table.
		if fetched < int64(chunkSize) {
			break
		}
	}

	return hex.EncodeToString(hasher.Sum(nil)), totalRows, nil
}

// buildChunkQuery builds one keyset-paginated page query.
// The chunk size is interpolated directly: it comes from configuration,
// and SQL Server's TOP cannot take a placeholder in this position anyway.
func (e *Engine) buildChunkQuery(quotedTable, quotedPK string, lastKey interface{}, chunkSize int) (string, []interface{}) {
	var where string
	var args []interface{}
	if lastKey != nil {
		where = fmt.Sprintf(" WHERE %s > %s", quotedPK, e.dialect.Placeholder(1))
		args = append(args, lastKey)
	}

	if e.dialect == sqlutil.DialectSQLServer {
		return fmt.Sprintf("SELECT TOP %d * FROM %s%s ORDER BY %s ASC",
			chunkSize, quotedTable, where, quotedPK), args
	}
	return fmt.Sprintf("SELECT * FROM %s%s ORDER BY %s ASC LIMIT %d",
		quotedTable, where, quotedPK, chunkSize), args
}

// hashQuery runs one query and feeds every row into the hasher in read
// order. When trackColumn is non-empty the value of that column in the
// last row is returned for keyset pagination.
func (e *Engine) hashQuery(ctx context.Context, hasher hash.Hash, query string, args []interface{}, trackColumn string) (int64, interface{}, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get columns: %w", err)
	}

	trackIndex := -1
	if trackColumn != "" {
		for i, col := range columns {
			if strings.EqualFold(col, trackColumn) {
				trackIndex = i
				break
			}
		}
		if trackIndex < 0 {
			return 0, nil, fmt.Errorf("pagination column %q not in result set", trackColumn)
		}
	}

	var rowCount int64
	var lastTracked interface{}

	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return 0, nil, fmt.Errorf("hash computation interrupted: %w", err)
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return 0, nil, fmt.Errorf("failed to scan row: %w", err)
		}

		hasher.Write([]byte(serializeRow(values)))
		hasher.Write([]byte("\n"))
		rowCount++

		if trackIndex >= 0 {
			lastTracked = values[trackIndex]
		}
	}

	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return rowCount, lastTracked, nil
}

// serializeRow converts one row to its deterministic string form:
// canonical column values joined by the unit separator. An all-NULL row
// of N columns serializes to N NULL tokens and N-1 separators.
func serializeRow(values []interface{}) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = types.Canonical(v)
	}
	return strings.Join(parts, columnSeparator)
}

func (e *Engine) quotePair(table, pkColumn string) (string, string, error) {
	quotedTable, err := e.dialect.QuoteIdentifierSafe(table)
	if err != nil {
		return "", "", err
	}
	quotedPK, err := e.dialect.QuoteIdentifierSafe(pkColumn)
	if err != nil {
		return "", "", err
	}
	return quotedTable, quotedPK, nil
}
