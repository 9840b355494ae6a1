package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goreconcile/internal/checksum"
)

var stateClearTable string

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show or clear persisted checksum state",
	Long: `State lists the persisted per-table checksum records (checksum, row
count, watermark, mode) that drive incremental runs.

Example:
  goreconcile state
  goreconcile state --clear orders`,
	RunE: runState,
}

func init() {
	stateCmd.Flags().StringVar(&stateClearTable, "clear", "",
		"Clear the persisted state for this table (next run is full)")

	rootCmd.AddCommand(stateCmd)
}

func runState(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	tracker, err := checksum.NewTracker(cfg.State.Dir, log)
	if err != nil {
		return fmt.Errorf("failed to create state tracker: %w", err)
	}

	if stateClearTable != "" {
		if err := tracker.Clear(stateClearTable); err != nil {
			return fmt.Errorf("failed to clear state: %w", err)
		}
		fmt.Printf("State cleared for table %s\n", stateClearTable)
		return nil
	}

	states, err := tracker.List()
	if err != nil {
		return fmt.Errorf("failed to list state: %w", err)
	}
	if len(states) == 0 {
		fmt.Println("No tracked tables")
		return nil
	}

	for _, s := range states {
		fmt.Printf("%s\n", s.Table)
		fmt.Printf("  Mode:      %s\n", s.Mode)
		fmt.Printf("  Rows:      %d\n", s.RowCount)
		fmt.Printf("  Checksum:  %s\n", s.Checksum)
		fmt.Printf("  Watermark: %s\n", s.Watermark.Format(time.RFC3339))
		fmt.Printf("  Updated:   %s\n", s.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}
