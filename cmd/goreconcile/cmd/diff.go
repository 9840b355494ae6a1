package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goreconcile/internal/database"
	"github.com/dbsmedya/goreconcile/internal/differ"
)

var (
	diffTable  string
	diffOutput string
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Run a row-level diff for one table and print the repair script",
	Long: `Diff skips the checksum stage and compares one table row by row,
classifying every difference as MISSING, EXTRA or MODIFIED, then prints
the repair script that would bring the target in line with the source.

The script is never executed; review it before applying.

Example:
  goreconcile diff --config goreconcile.yaml --table orders`,
	RunE: runDiff,
}

func init() {
	diffCmd.Flags().StringVarP(&diffTable, "table", "t", "",
		"Table name from configuration file (required)")
	diffCmd.MarkFlagRequired("table")

	diffCmd.Flags().StringVarP(&diffOutput, "output", "o", "",
		"Write the repair script to this file instead of stdout")

	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	tbl, ok := cfg.GetTable(diffTable)
	if !ok {
		return fmt.Errorf("table '%s' not found in configuration", diffTable)
	}

	dbManager, err := database.NewManager(cfg)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}

	ctx := database.SetupSignalHandler()

	if err := dbManager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to databases: %w", err)
	}
	defer dbManager.Close()

	d, err := differ.NewDiffer(dbManager.Source, dbManager.Target,
		dbManager.SourceDialect, dbManager.TargetDialect, log)
	if err != nil {
		return fmt.Errorf("failed to create differ: %w", err)
	}
	if cfg.Reconciliation.FloatTolerance > 0 {
		d.SetTolerance(cfg.Reconciliation.FloatTolerance)
	}

	log.WithTable(tbl.Name).Infow("Running row-level diff")

	discrepancies, err := d.ReconcileTable(ctx, tbl.Name, tbl.Keys(), tbl.CompareColumns)
	if err != nil {
		return fmt.Errorf("diff failed: %w", err)
	}

	if len(discrepancies) == 0 {
		fmt.Printf("Table %s is consistent: no discrepancies found\n", tbl.Name)
		return nil
	}

	counts := map[differ.Kind]int{}
	for _, disc := range discrepancies {
		counts[disc.Kind]++
	}
	fmt.Printf("Table %s: %d discrepancies (%d missing, %d extra, %d modified)\n",
		tbl.Name, len(discrepancies),
		counts[differ.KindMissing], counts[differ.KindExtra], counts[differ.KindModified])

	script := differ.GenerateRepairScript(discrepancies, tbl.Name, dbManager.TargetDialect)
	if diffOutput != "" {
		if err := os.WriteFile(diffOutput, []byte(script), 0644); err != nil {
			return fmt.Errorf("failed to write repair script: %w", err)
		}
		fmt.Printf("Repair script written: %s\n", diffOutput)
		return nil
	}

	fmt.Println()
	fmt.Print(script)
	return nil
}
