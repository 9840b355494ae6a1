package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile            string
	logLevel           string
	logFormat          string
	workers            int
	unitTimeoutSeconds float64
	failFast           bool
)

var rootCmd = &cobra.Command{
	Use:   "goreconcile",
	Short: "Cross-Database Reconciliation Engine",
	Long: `A production-grade CLI tool for verifying data consistency between a
source and a target database and generating repair scripts for drift.

Features:
  - Incremental SHA-256 table checksums with persisted watermarks
  - Row-level diffing with MISSING/EXTRA/MODIFIED classification
  - Repair script generation for MySQL, PostgreSQL and SQL Server targets
  - Bounded worker pool with per-table timeout and fail-fast
  - Index advisory from execution plans`,
	Version: Version,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "goreconcile.yaml",
		"Path to configuration file")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	// Engine overrides
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0,
		"Override worker pool size")
	rootCmd.PersistentFlags().Float64Var(&unitTimeoutSeconds, "unit-timeout", 0,
		"Override per-table timeout in seconds")
	rootCmd.PersistentFlags().BoolVar(&failFast, "fail-fast", false,
		"Abort remaining tables after the first failure or timeout")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel           string
	LogFormat          string
	Workers            int
	UnitTimeoutSeconds float64
	FailFast           bool
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:           logLevel,
		LogFormat:          logFormat,
		Workers:            workers,
		UnitTimeoutSeconds: unitTimeoutSeconds,
		FailFast:           failFast,
	}
}
