// Package lock provides dialect-aware advisory locking so two
// GoReconcile instances never reconcile the same target concurrently.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/dbsmedya/goreconcile/internal/sqlutil"
)

// ErrLockTimeout is returned when lock acquisition times out because
// another instance is holding the lock.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Common timeout values for lock acquisition (in seconds).
const (
	// TimeoutImmediate returns immediately if the lock cannot be acquired.
	TimeoutImmediate = 0

	// TimeoutShort is suitable for fast-failing duplicate run detection.
	TimeoutShort = 1

	// TimeoutMedium provides a reasonable wait for transient conflicts.
	TimeoutMedium = 10
)

// AdvisoryLock is a named server-side lock held for the duration of a
// reconciliation run. MySQL backs it with GET_LOCK(); Postgres with
// pg_try_advisory_lock() over an FNV-64a hash of the name. Either way
// the server releases it automatically if the connection drops, so a
// crashed run never wedges the next one.
type AdvisoryLock struct {
	db       *sql.DB
	dialect  sqlutil.Dialect
	lockName string
	held     bool
}

// NewAdvisoryLock creates an advisory lock with the given name. The
// lock is not acquired until AcquireLock is called.
func NewAdvisoryLock(db *sql.DB, dialect sqlutil.Dialect, lockName string) *AdvisoryLock {
	return &AdvisoryLock{
		db:       db,
		dialect:  dialect,
		lockName: lockName,
	}
}

// AcquireLock attempts to acquire the lock, waiting up to
// timeoutSeconds. Returns true if acquired, false on timeout, and an
// error only for backend failures or an unsupported dialect.
func (a *AdvisoryLock) AcquireLock(ctx context.Context, timeoutSeconds int) (bool, error) {
	if a.held {
		return true, nil
	}

	switch a.dialect {
	case sqlutil.DialectMySQL:
		return a.acquireMySQL(ctx, timeoutSeconds)
	case sqlutil.DialectPostgres:
		return a.acquirePostgres(ctx, timeoutSeconds)
	default:
		return false, fmt.Errorf("advisory locks are not supported for dialect %s", a.dialect)
	}
}

// acquireMySQL uses GET_LOCK, which waits server-side.
//
// GET_LOCK() return values:
//   - 1: lock obtained
//   - 0: timeout reached without obtaining the lock
//   - NULL: server-side error (out of memory, thread killed)
func (a *AdvisoryLock) acquireMySQL(ctx context.Context, timeoutSeconds int) (bool, error) {
	var result sql.NullInt64
	err := a.db.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", a.lockName, timeoutSeconds).Scan(&result)
	if err != nil {
		return false, fmt.Errorf("failed to execute GET_LOCK: %w", err)
	}
	if !result.Valid {
		return false, fmt.Errorf("GET_LOCK returned NULL for lock %q (possible database error)", a.lockName)
	}

	switch result.Int64 {
	case 1:
		a.held = true
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected GET_LOCK return value: %d", result.Int64)
	}
}

// acquirePostgres polls pg_try_advisory_lock until the timeout elapses.
// Postgres advisory locks are keyed by bigint, so the name is hashed.
func (a *AdvisoryLock) acquirePostgres(ctx context.Context, timeoutSeconds int) (bool, error) {
	key := lockKey(a.lockName)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)

	for {
		var acquired bool
		err := a.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&acquired)
		if err != nil {
			return false, fmt.Errorf("failed to execute pg_try_advisory_lock: %w", err)
		}
		if acquired {
			a.held = true
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// ReleaseLock releases the lock. Returns true if released, false if it
// was not held by this instance.
func (a *AdvisoryLock) ReleaseLock(ctx context.Context) (bool, error) {
	if !a.held {
		return false, nil
	}

	switch a.dialect {
	case sqlutil.DialectMySQL:
		var result sql.NullInt64
		err := a.db.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", a.lockName).Scan(&result)
		if err != nil {
			return false, fmt.Errorf("failed to execute RELEASE_LOCK: %w", err)
		}
		a.held = false
		if !result.Valid {
			return false, fmt.Errorf("RELEASE_LOCK returned NULL for lock %q (lock did not exist)", a.lockName)
		}
		return result.Int64 == 1, nil

	case sqlutil.DialectPostgres:
		var released bool
		err := a.db.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", lockKey(a.lockName)).Scan(&released)
		if err != nil {
			return false, fmt.Errorf("failed to execute pg_advisory_unlock: %w", err)
		}
		a.held = false
		return released, nil

	default:
		return false, fmt.Errorf("advisory locks are not supported for dialect %s", a.dialect)
	}
}

// IsHeld returns true if this lock is currently held by this instance.
func (a *AdvisoryLock) IsHeld() bool {
	return a.held
}

// LockName returns the name of the advisory lock.
func (a *AdvisoryLock) LockName() string {
	return a.lockName
}

// TryAcquire attempts to acquire the lock immediately without waiting.
func (a *AdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	return a.AcquireLock(ctx, TimeoutImmediate)
}

// AcquireOrFail acquires the lock with a short timeout and returns
// ErrLockTimeout when another instance is holding it. This is the
// standard entry-point guard for a reconciliation run.
func (a *AdvisoryLock) AcquireOrFail(ctx context.Context) error {
	acquired, err := a.AcquireLock(ctx, TimeoutShort)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another instance", ErrLockTimeout, a.lockName)
	}
	return nil
}

// GenerateRunLockName creates a consistent lock name for a run against
// one target database. Names follow "goreconcile:run:{database}", so
// runs against distinct targets never contend.
func GenerateRunLockName(database string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, database)

	return fmt.Sprintf("goreconcile:run:%s", sanitized)
}

// NewRunLock creates the advisory lock guarding reconciliation runs
// against one target database. Each run takes this lock on the target
// before the orchestrator starts.
func NewRunLock(db *sql.DB, dialect sqlutil.Dialect, database string) *AdvisoryLock {
	return NewAdvisoryLock(db, dialect, GenerateRunLockName(database))
}

// lockKey hashes a lock name into the bigint keyspace Postgres
// advisory locks use.
func lockKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}
