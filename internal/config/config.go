// Package config provides configuration structures and loading for GoReconcile.
package config

// Config represents the complete application configuration.
type Config struct {
	Source         DatabaseConfig       `yaml:"source" mapstructure:"source"`
	Target         DatabaseConfig       `yaml:"target" mapstructure:"target"`
	Tables         []TableConfig        `yaml:"tables" mapstructure:"tables"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation" mapstructure:"reconciliation"`
	State          StateConfig          `yaml:"state" mapstructure:"state"`
	Logging        LoggingConfig        `yaml:"logging" mapstructure:"logging"`
}

// DatabaseConfig represents one side of the reconciliation pair.
type DatabaseConfig struct {
	Dialect            string `yaml:"dialect" mapstructure:"dialect"` // mysql, postgres, sqlserver
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	TLS                string `yaml:"tls" mapstructure:"tls"` // disable, preferred, required
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// TableConfig describes one table pair to reconcile.
type TableConfig struct {
	Name            string   `yaml:"name" mapstructure:"name"`
	PrimaryKeys     []string `yaml:"primary_keys" mapstructure:"primary_keys"`         // defaults to ["id"]
	TimestampColumn string   `yaml:"timestamp_column" mapstructure:"timestamp_column"` // change-tracking column for incremental mode
	CompareColumns  []string `yaml:"compare_columns" mapstructure:"compare_columns"`   // empty = all non-key columns
	StatusColumn    string   `yaml:"status_column" mapstructure:"status_column"`       // used by the index advisor
}

// OrderingKey returns the column used to order rows for checksumming.
// Composite-key tables order by the leading key column.
func (t *TableConfig) OrderingKey() string {
	if len(t.PrimaryKeys) == 0 {
		return "id"
	}
	return t.PrimaryKeys[0]
}

// Keys returns the primary key columns, defaulting to ["id"].
func (t *TableConfig) Keys() []string {
	if len(t.PrimaryKeys) == 0 {
		return []string{"id"}
	}
	return t.PrimaryKeys
}

// ReconciliationConfig represents engine tuning settings.
type ReconciliationConfig struct {
	Workers            int     `yaml:"workers" mapstructure:"workers"`
	UnitTimeoutSeconds float64 `yaml:"unit_timeout_seconds" mapstructure:"unit_timeout_seconds"`
	FailFast           bool    `yaml:"fail_fast" mapstructure:"fail_fast"`
	Mode               string  `yaml:"mode" mapstructure:"mode"` // full or incremental
	ChunkSize          int     `yaml:"chunk_size" mapstructure:"chunk_size"`
	FloatTolerance     float64 `yaml:"float_tolerance" mapstructure:"float_tolerance"`
}

// StateConfig represents persisted checksum state settings.
type StateConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Source: DatabaseConfig{
			Dialect:            "mysql",
			Port:               3306,
			TLS:                "preferred",
			MaxConnections:     10,
			MaxIdleConnections: 5,
		},
		Target: DatabaseConfig{
			Dialect:            "mysql",
			Port:               3306,
			TLS:                "preferred",
			MaxConnections:     10,
			MaxIdleConnections: 5,
		},
		Reconciliation: ReconciliationConfig{
			Workers:            4,
			UnitTimeoutSeconds: 300,
			FailFast:           false,
			Mode:               "incremental",
			ChunkSize:          1000,
			FloatTolerance:     1e-9,
		},
		State: StateConfig{
			Dir: ".goreconcile/state",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// GetTable retrieves a table configuration by name.
func (c *Config) GetTable(name string) (*TableConfig, bool) {
	for i := range c.Tables {
		if c.Tables[i].Name == name {
			return &c.Tables[i], true
		}
	}
	return nil, false
}

// TableNames returns the configured table names in declaration order.
func (c *Config) TableNames() []string {
	names := make([]string, 0, len(c.Tables))
	for _, t := range c.Tables {
		names = append(names, t.Name)
	}
	return names
}

// ApplyOverrides applies CLI flag overrides to the configuration.
// Only non-zero/non-empty values are applied.
func (c *Config) ApplyOverrides(logLevel, logFormat string, workers int, unitTimeoutSeconds float64, failFast bool) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}
	if workers > 0 {
		c.Reconciliation.Workers = workers
	}
	if unitTimeoutSeconds > 0 {
		c.Reconciliation.UnitTimeoutSeconds = unitTimeoutSeconds
	}
	if failFast {
		c.Reconciliation.FailFast = true
	}
}
