package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goreconcile/internal/checksum"
	"github.com/dbsmedya/goreconcile/internal/config"
	"github.com/dbsmedya/goreconcile/internal/database"
	"github.com/dbsmedya/goreconcile/internal/lock"
	"github.com/dbsmedya/goreconcile/internal/logger"
	"github.com/dbsmedya/goreconcile/internal/reconciler"
	"github.com/dbsmedya/goreconcile/internal/render"
)

var (
	checkTables        string
	checkForce         bool
	checkSkipPreflight bool
	checkRepairDir     string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Reconcile all configured tables between source and target",
	Long: `Check runs the full reconciliation pipeline over the configured tables:

  1. Preflight schema validation on both sides
  2. Checksum comparison (incremental where a watermark exists)
  3. Row-level diff for tables whose checksums diverge
  4. Repair script generation for every discrepant table

Example:
  goreconcile check --config goreconcile.yaml --workers 8 --fail-fast`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVarP(&checkTables, "tables", "t", "",
		"Comma-separated subset of configured tables to check")
	checkCmd.Flags().BoolVar(&checkForce, "force", false,
		"Run even if another instance holds the run lock (use with caution)")
	checkCmd.Flags().BoolVar(&checkSkipPreflight, "skip-preflight", false,
		"Skip schema preflight checks")
	checkCmd.Flags().StringVar(&checkRepairDir, "repair-dir", "",
		"Write generated repair scripts to this directory")

	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	tables, err := selectTables(cfg, checkTables)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		return fmt.Errorf("no tables configured")
	}

	log.Infow("Starting reconciliation",
		"tables", len(tables),
		"config", GetConfigFile(),
	)

	dbManager, err := database.NewManager(cfg)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}

	// Setup context with signal handling
	ctx := database.SetupSignalHandler()

	// Connect to databases
	if err := dbManager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to databases: %w", err)
	}
	defer dbManager.Close()

	if err := dbManager.Ping(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	// Acquire advisory lock to prevent concurrent runs against the target
	if !checkForce {
		runLock := lock.NewRunLock(dbManager.Target, dbManager.TargetDialect, cfg.Target.Database)
		if err := runLock.AcquireOrFail(ctx); err != nil {
			if errors.Is(err, lock.ErrLockTimeout) {
				return fmt.Errorf("another reconciliation is already running against %s (use --force to override)", cfg.Target.Database)
			}
			return fmt.Errorf("failed to acquire run lock: %w", err)
		}
		defer runLock.ReleaseLock(context.Background())
		log.Infow("Acquired advisory run lock", "database", cfg.Target.Database)
	} else {
		log.Warnw("Skipping advisory lock acquisition (--force flag used)")
	}

	if !checkSkipPreflight {
		preflight, err := reconciler.NewPreflight(dbManager, log)
		if err != nil {
			return fmt.Errorf("failed to create preflight checker: %w", err)
		}
		issues, err := preflight.Run(ctx, tables)
		if err != nil {
			return fmt.Errorf("preflight failed: %w", err)
		}
		fmt.Print(render.Issues(issues))
		if reconciler.HasFatal(issues) {
			return fmt.Errorf("preflight found fatal schema issues")
		}
	}

	tracker, err := checksum.NewTracker(cfg.State.Dir, log)
	if err != nil {
		return fmt.Errorf("failed to create state tracker: %w", err)
	}

	checker, err := reconciler.NewTableChecker(dbManager, cfg, tracker, log)
	if err != nil {
		return fmt.Errorf("failed to create table checker: %w", err)
	}

	orch := reconciler.NewOrchestrator(reconciler.NewMetrics(), log)
	report, err := orch.ReconcileAll(ctx, tableNames(tables), checker.Unit(cfg), reconciler.Options{
		WorkerLimit: cfg.Reconciliation.Workers,
		UnitTimeout: time.Duration(cfg.Reconciliation.UnitTimeoutSeconds * float64(time.Second)),
		FailFast:    cfg.Reconciliation.FailFast,
	})
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	fmt.Print(render.Report(report))

	if checkRepairDir != "" {
		if err := writeRepairScripts(report, checkRepairDir); err != nil {
			return err
		}
	}

	if report.Failed > 0 || report.TimedOut > 0 {
		return fmt.Errorf("%d of %d tables did not reconcile cleanly", report.Failed+report.TimedOut, report.Total)
	}
	return nil
}

// loadConfigAndLogger is the shared command preamble: load the config
// file, apply flag overrides, build the logger.
func loadConfigAndLogger() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat,
		overrides.Workers, overrides.UnitTimeoutSeconds, overrides.FailFast)

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

// selectTables resolves the --tables filter against the configuration.
// An empty filter selects every configured table.
func selectTables(cfg *config.Config, filter string) ([]config.TableConfig, error) {
	if strings.TrimSpace(filter) == "" {
		return cfg.Tables, nil
	}

	var selected []config.TableConfig
	for _, name := range strings.Split(filter, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		tbl, ok := cfg.GetTable(name)
		if !ok {
			return nil, fmt.Errorf("table '%s' not found in configuration", name)
		}
		selected = append(selected, *tbl)
	}
	return selected, nil
}

func tableNames(tables []config.TableConfig) []string {
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, t.Name)
	}
	return names
}

// writeRepairScripts saves each non-empty repair script as one .sql
// file per table.
func writeRepairScripts(report *reconciler.Report, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create repair directory: %w", err)
	}
	for _, r := range report.Results {
		if r.RepairScript == "" {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("repair_%s.sql", r.Table))
		if err := os.WriteFile(path, []byte(r.RepairScript), 0644); err != nil {
			return fmt.Errorf("failed to write repair script for %s: %w", r.Table, err)
		}
		fmt.Printf("Repair script written: %s\n", path)
	}
	return nil
}
