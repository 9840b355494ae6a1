package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/dbsmedya/goreconcile/internal/checksum"
	"github.com/dbsmedya/goreconcile/internal/config"
	"github.com/dbsmedya/goreconcile/internal/database"
	"github.com/dbsmedya/goreconcile/internal/differ"
	"github.com/dbsmedya/goreconcile/internal/logger"
)

// TableChecker is the standard reconciliation unit: checksum both sides,
// and on mismatch fall through to a row-level diff with a repair script.
// One checker serves all tables of a run; per-table state lives in the
// tracker, keyed by table name.
type TableChecker struct {
	sourceEngine  *checksum.Engine
	targetEngine  *checksum.Engine
	differ        *differ.Differ
	tracker       *checksum.Tracker
	mode          checksum.Mode
	chunkSize     int
	logger        *logger.Logger

	manager *database.Manager
}

// NewTableChecker builds a checker over a connected database manager.
func NewTableChecker(mgr *database.Manager, cfg *config.Config, tracker *checksum.Tracker, log *logger.Logger) (*TableChecker, error) {
	if mgr == nil || mgr.Source == nil || mgr.Target == nil {
		return nil, fmt.Errorf("database manager is not connected")
	}
	if tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}
	if log == nil {
		log = logger.NewDefault()
	}

	sourceEngine, err := checksum.NewEngine(mgr.Source, mgr.SourceDialect, log.WithSide("source"))
	if err != nil {
		return nil, err
	}
	targetEngine, err := checksum.NewEngine(mgr.Target, mgr.TargetDialect, log.WithSide("target"))
	if err != nil {
		return nil, err
	}

	d, err := differ.NewDiffer(mgr.Source, mgr.Target, mgr.SourceDialect, mgr.TargetDialect, log)
	if err != nil {
		return nil, err
	}
	if cfg.Reconciliation.FloatTolerance > 0 {
		d.SetTolerance(cfg.Reconciliation.FloatTolerance)
	}

	mode := checksum.ModeFull
	if cfg.Reconciliation.Mode == "incremental" {
		mode = checksum.ModeIncremental
	}

	return &TableChecker{
		sourceEngine: sourceEngine,
		targetEngine: targetEngine,
		differ:       d,
		tracker:      tracker,
		mode:         mode,
		chunkSize:    cfg.Reconciliation.ChunkSize,
		logger:       log,
		manager:      mgr,
	}, nil
}

// CheckTable reconciles one table pair end to end and is the UnitFunc
// body handed to the orchestrator.
//
// Incremental mode applies only when the table declares a change-tracking
// column and a watermark survives from a prior run; otherwise the check
// silently runs full. On a checksum match the new watermark is persisted.
// On a mismatch the row-level differ runs, a repair script targeting the
// target dialect is generated, and the table's state is cleared so the
// next run re-verifies from scratch.
func (c *TableChecker) CheckTable(ctx context.Context, tbl config.TableConfig) (*UnitResult, error) {
	log := c.logger.WithTable(tbl.Name)
	result := &UnitResult{Table: tbl.Name}

	mode, since := c.resolveMode(tbl)
	result.Mode = mode
	log.WithMode(string(mode)).Infow("Checking table")

	// The watermark for the next run is taken before reading any rows so
	// changes landing mid-computation are re-hashed next time rather
	// than missed.
	computedAt := time.Now().UTC()

	sourceSum, sourceRows, err := c.compute(ctx, c.sourceEngine, tbl, mode, since)
	if err != nil {
		return result, fmt.Errorf("source checksum: %w", err)
	}
	targetSum, targetRows, err := c.compute(ctx, c.targetEngine, tbl, mode, since)
	if err != nil {
		return result, fmt.Errorf("target checksum: %w", err)
	}

	result.SourceChecksum = sourceSum
	result.TargetChecksum = targetSum
	result.SourceRows = sourceRows
	result.TargetRows = targetRows

	if sourceSum == targetSum {
		result.Match = true
		log.Infow("Checksums match", "rows", sourceRows)

		if err := c.tracker.Save(checksum.State{
			Table:     tbl.Name,
			Checksum:  sourceSum,
			RowCount:  sourceRows,
			Watermark: computedAt,
			Mode:      mode,
		}); err != nil {
			return result, fmt.Errorf("saving checksum state: %w", err)
		}
		return result, nil
	}

	log.Warnw("Checksum mismatch, running row-level diff",
		"source_checksum", sourceSum,
		"target_checksum", targetSum,
		"source_rows", sourceRows,
		"target_rows", targetRows,
	)

	discrepancies, err := c.differ.ReconcileTable(ctx, tbl.Name, tbl.Keys(), tbl.CompareColumns)
	if err != nil {
		return result, fmt.Errorf("row-level diff: %w", err)
	}

	result.Match = false
	result.Discrepancies = len(discrepancies)
	result.RepairScript = differ.GenerateRepairScript(discrepancies, tbl.Name, c.manager.TargetDialect)

	// Stale watermarks after a mismatch would let the divergence hide
	// behind an incremental pass; drop the state so the next run is full.
	if err := c.tracker.Clear(tbl.Name); err != nil {
		return result, fmt.Errorf("clearing checksum state: %w", err)
	}

	log.Warnw("Row-level diff complete", "discrepancies", len(discrepancies))
	return result, nil
}

// resolveMode decides full vs incremental for one table. Incremental
// needs both a configured change-tracking column and a surviving
// watermark; a corrupt or absent record degrades to full.
func (c *TableChecker) resolveMode(tbl config.TableConfig) (checksum.Mode, *time.Time) {
	if c.mode != checksum.ModeIncremental || tbl.TimestampColumn == "" {
		return checksum.ModeFull, nil
	}
	watermark, ok, err := c.tracker.LoadWatermark(tbl.Name)
	if err != nil || !ok {
		return checksum.ModeFull, nil
	}
	return checksum.ModeIncremental, &watermark
}

// compute dispatches one side's checksum. Full mode pages with keyset
// pagination when a chunk size is configured; incremental result sets
// are already bounded by the watermark and read in one pass.
func (c *TableChecker) compute(ctx context.Context, engine *checksum.Engine, tbl config.TableConfig, mode checksum.Mode, since *time.Time) (string, int64, error) {
	if mode == checksum.ModeIncremental {
		return engine.Compute(ctx, tbl.Name, tbl.OrderingKey(), tbl.TimestampColumn, since)
	}
	if c.chunkSize > 0 {
		return engine.ComputeChunked(ctx, tbl.Name, tbl.OrderingKey(), c.chunkSize)
	}
	return engine.Compute(ctx, tbl.Name, tbl.OrderingKey(), "", nil)
}

// Unit adapts CheckTable to the orchestrator's UnitFunc signature,
// resolving each table name against the configuration.
func (c *TableChecker) Unit(cfg *config.Config) UnitFunc {
	return func(ctx context.Context, table string) (*UnitResult, error) {
		tbl, ok := cfg.GetTable(table)
		if !ok {
			return nil, fmt.Errorf("table %s is not configured", table)
		}
		return c.CheckTable(ctx, *tbl)
	}
}
