// Package database provides connection management for the two sides of a
// reconciliation pair.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // Postgres driver

	"github.com/dbsmedya/goreconcile/internal/config"
	"github.com/dbsmedya/goreconcile/internal/sqlutil"
)

// Manager handles database connections for the source and target stores.
// Each side carries its own dialect tag; the engine never guesses a
// backend from the connection itself.
type Manager struct {
	Source        *sql.DB
	Target        *sql.DB
	SourceDialect sqlutil.Dialect
	TargetDialect sqlutil.Dialect
	config        *config.Config
}

// NewManager creates a new database manager from configuration.
func NewManager(cfg *config.Config) (*Manager, error) {
	srcDialect, err := sqlutil.ParseDialect(cfg.Source.Dialect)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	if err := connectableDialect(srcDialect); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	tgtDialect, err := sqlutil.ParseDialect(cfg.Target.Dialect)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	if err := connectableDialect(tgtDialect); err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}

	return &Manager{
		SourceDialect: srcDialect,
		TargetDialect: tgtDialect,
		config:        cfg,
	}, nil
}

// connectableDialect rejects dialects with no linked driver. SQL Server
// is a rendering dialect only: repair scripts and advisor DDL can
// target it, but live connections need mysql or postgres.
func connectableDialect(d sqlutil.Dialect) error {
	switch d {
	case sqlutil.DialectMySQL, sqlutil.DialectPostgres:
		return nil
	default:
		return fmt.Errorf("dialect %q is supported for repair-script and DDL rendering only, not as a connection dialect", d)
	}
}

// Connect establishes connections to both configured databases.
func (m *Manager) Connect(ctx context.Context) error {
	var err error

	m.Source, err = m.connectWithRetry(ctx, &m.config.Source, m.SourceDialect)
	if err != nil {
		return fmt.Errorf("failed to connect to source database: %w", err)
	}

	m.Target, err = m.connectWithRetry(ctx, &m.config.Target, m.TargetDialect)
	if err != nil {
		m.Source.Close()
		return fmt.Errorf("failed to connect to target database: %w", err)
	}

	return nil
}

// connectWithRetry attempts to connect with exponential backoff.
func (m *Manager) connectWithRetry(ctx context.Context, cfg *config.DatabaseConfig, dialect sqlutil.Dialect) (*sql.DB, error) {
	var db *sql.DB
	var err error

	maxRetries := 3
	backoff := time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = connect(cfg, dialect)
		if err == nil {
			// Verify connection
			if pingErr := db.PingContext(ctx); pingErr == nil {
				return db, nil
			} else {
				db.Close()
				err = pingErr
			}
		}

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}
	}

	return nil, fmt.Errorf("failed after %d retries: %w", maxRetries, err)
}

// connect creates a database connection.
func connect(cfg *config.DatabaseConfig, dialect sqlutil.Dialect) (*sql.DB, error) {
	db, err := sql.Open(dialect.DriverName(), BuildDSN(cfg, dialect))
	if err != nil {
		return nil, err
	}

	// Configure connection pool
	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConnections)
	}
	db.SetConnMaxLifetime(10 * time.Minute)

	return db, nil
}

// BuildDSN constructs a driver DSN from configuration for the dialect.
func BuildDSN(cfg *config.DatabaseConfig, dialect sqlutil.Dialect) string {
	if dialect == sqlutil.DialectPostgres {
		sslmode := "prefer"
		switch cfg.TLS {
		case "disable":
			sslmode = "disable"
		case "required":
			sslmode = "require"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslmode)
	}

	// MySQL format: user:password@tcp(host:port)/database?params
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
	)

	if cfg.Database != "" {
		dsn += cfg.Database
	}

	params := "?parseTime=true"
	switch cfg.TLS {
	case "disable":
		params += "&tls=false"
	case "required":
		params += "&tls=true"
	case "preferred", "":
		params += "&tls=preferred"
	}

	return dsn + params
}

// Close closes all database connections gracefully.
func (m *Manager) Close() error {
	var errs []error

	if m.Target != nil {
		if err := m.Target.Close(); err != nil {
			errs = append(errs, fmt.Errorf("target close: %w", err))
		}
	}

	if m.Source != nil {
		if err := m.Source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("source close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing connections: %v", errs)
	}
	return nil
}

// Ping verifies both connections are alive.
func (m *Manager) Ping(ctx context.Context) error {
	if m.Source != nil {
		if err := m.Source.PingContext(ctx); err != nil {
			return fmt.Errorf("source ping failed: %w", err)
		}
	}

	if m.Target != nil {
		if err := m.Target.PingContext(ctx); err != nil {
			return fmt.Errorf("target ping failed: %w", err)
		}
	}

	return nil
}
