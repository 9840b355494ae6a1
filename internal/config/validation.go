package config

import (
	"fmt"
	"strings"

	"github.com/dbsmedya/goreconcile/internal/sqlutil"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, validateDatabase("source", &c.Source)...)
	errors = append(errors, validateDatabase("target", &c.Target)...)

	if len(c.Tables) == 0 {
		errors = append(errors, ValidationError{
			Field:   "tables",
			Message: "at least one table must be defined",
		})
	}
	seen := make(map[string]bool)
	for i, table := range c.Tables {
		prefix := fmt.Sprintf("tables[%d]", i)
		errors = append(errors, validateTable(prefix, &table)...)
		if seen[table.Name] {
			errors = append(errors, ValidationError{
				Field:   prefix + ".name",
				Message: fmt.Sprintf("duplicate table %q", table.Name),
			})
		}
		seen[table.Name] = true
	}

	errors = append(errors, c.validateReconciliation()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func validateDatabase(prefix string, db *DatabaseConfig) ValidationErrors {
	var errors ValidationErrors

	if _, err := sqlutil.ParseDialect(db.Dialect); err != nil {
		errors = append(errors, ValidationError{
			Field:   prefix + ".dialect",
			Message: err.Error(),
		})
	}

	if db.Host == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".host",
			Message: "host is required",
		})
	}

	if db.Port <= 0 || db.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".port",
			Message: "port must be between 1 and 65535",
		})
	}

	if db.User == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".user",
			Message: "user is required",
		})
	}

	if db.Database == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".database",
			Message: "database name is required",
		})
	}

	switch db.TLS {
	case "", "disable", "preferred", "required":
	default:
		errors = append(errors, ValidationError{
			Field:   prefix + ".tls",
			Message: "tls must be one of: disable, preferred, required",
		})
	}

	return errors
}

func validateTable(prefix string, table *TableConfig) ValidationErrors {
	var errors ValidationErrors

	if table.Name == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".name",
			Message: "table name is required",
		})
	} else if !sqlutil.IsValidIdentifier(table.Name) {
		errors = append(errors, ValidationError{
			Field:   prefix + ".name",
			Message: fmt.Sprintf("invalid table name %q", table.Name),
		})
	}

	for _, col := range table.PrimaryKeys {
		if !sqlutil.IsValidIdentifier(col) {
			errors = append(errors, ValidationError{
				Field:   prefix + ".primary_keys",
				Message: fmt.Sprintf("invalid column name %q", col),
			})
		}
	}

	if table.TimestampColumn != "" && !sqlutil.IsValidIdentifier(table.TimestampColumn) {
		errors = append(errors, ValidationError{
			Field:   prefix + ".timestamp_column",
			Message: fmt.Sprintf("invalid column name %q", table.TimestampColumn),
		})
	}

	return errors
}

func (c *Config) validateReconciliation() ValidationErrors {
	var errors ValidationErrors

	if c.Reconciliation.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "reconciliation.workers",
			Message: "workers must be at least 1",
		})
	}

	if c.Reconciliation.UnitTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "reconciliation.unit_timeout_seconds",
			Message: "unit timeout must be positive",
		})
	}

	switch c.Reconciliation.Mode {
	case "full", "incremental":
	default:
		errors = append(errors, ValidationError{
			Field:   "reconciliation.mode",
			Message: "mode must be full or incremental",
		})
	}

	if c.Reconciliation.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "reconciliation.chunk_size",
			Message: "chunk size must be at least 1",
		})
	}

	if c.Reconciliation.FloatTolerance < 0 {
		errors = append(errors, ValidationError{
			Field:   "reconciliation.float_tolerance",
			Message: "float tolerance must not be negative",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be one of: debug, info, warn, error",
		})
	}

	switch c.Logging.Format {
	case "", "json", "text":
	default:
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be json or text",
		})
	}

	return errors
}
