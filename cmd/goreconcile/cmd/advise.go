package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goreconcile/internal/advisor"
	"github.com/dbsmedya/goreconcile/internal/render"
	"github.com/dbsmedya/goreconcile/internal/sqlutil"
)

var (
	adviseTable   string
	advisePlan    string
	adviseDialect string
)

var adviseCmd = &cobra.Command{
	Use:   "advise",
	Short: "Propose indexes for reconciliation access patterns",
	Long: `Advise proposes indexes that speed up checksum scans, incremental
watermark filters and row-by-key lookups for one configured table, and
renders the CREATE INDEX DDL for the chosen dialect.

With --plan it additionally parses an execution plan (JSON tree or
text) and reports scans, joins, row estimates and warnings.

Example:
  goreconcile advise --table orders --dialect postgres
  goreconcile advise --table orders --plan explain.json`,
	RunE: runAdvise,
}

func init() {
	adviseCmd.Flags().StringVarP(&adviseTable, "table", "t", "",
		"Table name from configuration file (required)")
	adviseCmd.MarkFlagRequired("table")

	adviseCmd.Flags().StringVar(&advisePlan, "plan", "",
		"Path to an execution plan file to analyze")
	adviseCmd.Flags().StringVar(&adviseDialect, "dialect", "",
		"Dialect for DDL rendering (defaults to the target's dialect)")

	rootCmd.AddCommand(adviseCmd)
}

func runAdvise(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	tbl, ok := cfg.GetTable(adviseTable)
	if !ok {
		return fmt.Errorf("table '%s' not found in configuration", adviseTable)
	}

	dialectName := adviseDialect
	if dialectName == "" {
		dialectName = cfg.Target.Dialect
	}
	dialect, err := sqlutil.ParseDialect(dialectName)
	if err != nil {
		return err
	}

	if advisePlan != "" {
		raw, err := os.ReadFile(advisePlan)
		if err != nil {
			return fmt.Errorf("failed to read plan file: %w", err)
		}
		metrics, err := advisor.ParsePlan(string(raw))
		if err != nil {
			return fmt.Errorf("failed to parse plan: %w", err)
		}
		printPlanMetrics(metrics)
		fmt.Println()
	}

	recs := advisor.Recommend(advisor.TableProfile{
		Table:           tbl.Name,
		PrimaryKeys:     tbl.Keys(),
		TimestampColumn: tbl.TimestampColumn,
		StatusColumn:    tbl.StatusColumn,
	})
	fmt.Print(render.Recommendations(recs, dialect))
	return nil
}

func printPlanMetrics(metrics *advisor.PlanMetrics) {
	var ops []string
	if metrics.HasTableScan {
		ops = append(ops, "table scan")
	}
	if metrics.HasIndexScan {
		ops = append(ops, "index scan")
	}
	if metrics.HasHashJoin {
		ops = append(ops, "hash join")
	}
	if metrics.HasNestedLoop {
		ops = append(ops, "nested loop")
	}
	if len(ops) == 0 {
		ops = append(ops, "none recognized")
	}

	fmt.Printf("Plan operations: %s\n", strings.Join(ops, ", "))
	fmt.Printf("Estimated rows:  %d\n", metrics.EstimatedRows)
	fmt.Printf("Actual rows:     %d\n", metrics.ActualRows)
	if metrics.ExecutionTimeMS > 0 {
		fmt.Printf("Execution time:  %.3f ms\n", metrics.ExecutionTimeMS)
	}
	for _, w := range metrics.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
}
