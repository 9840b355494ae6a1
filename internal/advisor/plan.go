// Package advisor parses execution plans and proposes indexes for the
// access patterns the checksum engine and row-level differ generate.
// It is advisory and stateless; nothing here executes SQL.
package advisor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PlanMetrics summarizes one execution plan. Parsed fresh from each
// plan; never persisted.
type PlanMetrics struct {
	EstimatedRows   int64
	ActualRows      int64
	ExecutionTimeMS float64
	HasTableScan    bool
	HasIndexScan    bool
	HasHashJoin     bool
	HasNestedLoop   bool
	Warnings        []string
}

// jsonPlanNode mirrors the relevant subset of a JSON-tree plan node
// (EXPLAIN FORMAT=JSON output).
type jsonPlanNode struct {
	NodeType   string         `json:"Node Type"`
	PlanRows   int64          `json:"Plan Rows"`
	ActualRows int64          `json:"Actual Rows"`
	Plans      []jsonPlanNode `json:"Plans"`
}

type jsonPlanRoot struct {
	Plan          jsonPlanNode `json:"Plan"`
	ExecutionTime float64      `json:"Execution Time"`
}

// ParsePlan parses a structured (JSON-tree) or textual execution plan.
// JSON input is detected by shape; anything that fails to decode as a
// plan tree is scanned as plain text. Only empty input is an error.
func ParsePlan(plan string) (*PlanMetrics, error) {
	trimmed := strings.TrimSpace(plan)
	if trimmed == "" {
		return nil, fmt.Errorf("execution plan is empty")
	}

	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		if metrics, ok := parseJSONPlan(trimmed); ok {
			return metrics, nil
		}
	}
	return parseTextPlan(trimmed), nil
}

func parseJSONPlan(plan string) (*PlanMetrics, bool) {
	var roots []jsonPlanRoot
	if err := json.Unmarshal([]byte(plan), &roots); err != nil {
		var single jsonPlanRoot
		if err := json.Unmarshal([]byte(plan), &single); err != nil {
			return nil, false
		}
		roots = []jsonPlanRoot{single}
	}
	if len(roots) == 0 || roots[0].Plan.NodeType == "" {
		return nil, false
	}

	metrics := &PlanMetrics{ExecutionTimeMS: roots[0].ExecutionTime}
	walkNode(roots[0].Plan, metrics)
	addEstimateWarnings(metrics)
	return metrics, true
}

// walkNode classifies one node and recurses into its children. Row
// counts accumulate from the tree root only, since child counts are
// already reflected upstream.
func walkNode(node jsonPlanNode, metrics *PlanMetrics) {
	classifyNode(node.NodeType, metrics)
	if node.PlanRows > metrics.EstimatedRows {
		metrics.EstimatedRows = node.PlanRows
	}
	if node.ActualRows > metrics.ActualRows {
		metrics.ActualRows = node.ActualRows
	}
	for _, child := range node.Plans {
		walkNode(child, metrics)
	}
}

func classifyNode(nodeType string, metrics *PlanMetrics) {
	lower := strings.ToLower(nodeType)
	switch {
	case strings.Contains(lower, "seq scan"), strings.Contains(lower, "table scan"), strings.Contains(lower, "full scan"):
		metrics.HasTableScan = true
	case strings.Contains(lower, "index scan"), strings.Contains(lower, "index only scan"), strings.Contains(lower, "index seek"):
		metrics.HasIndexScan = true
	case strings.Contains(lower, "hash join"):
		metrics.HasHashJoin = true
	case strings.Contains(lower, "nested loop"):
		metrics.HasNestedLoop = true
	}
}

var (
	estimatedRowsPattern = regexp.MustCompile(`\brows=(\d+)`)
	actualRowsPattern    = regexp.MustCompile(`actual[^)]*\brows=(\d+)`)
	executionTimePattern = regexp.MustCompile(`Execution Time:\s*([\d.]+)\s*ms`)
)

// parseTextPlan scans a textual plan line by line. It recognizes both
// tree-form output and MySQL's tabular EXPLAIN rendering.
func parseTextPlan(plan string) *PlanMetrics {
	metrics := &PlanMetrics{}

	for _, line := range strings.Split(plan, "\n") {
		classifyNode(line, metrics)

		lower := strings.ToLower(line)
		// MySQL tabular EXPLAIN reports a full scan as access type ALL.
		if strings.Contains(lower, "type: all") {
			metrics.HasTableScan = true
		}
		if strings.Contains(lower, "using filesort") {
			metrics.Warnings = append(metrics.Warnings, "plan sorts without an index (filesort)")
		}
		if strings.Contains(lower, "using temporary") {
			metrics.Warnings = append(metrics.Warnings, "plan materializes a temporary table")
		}

		if m := actualRowsPattern.FindStringSubmatch(line); m != nil {
			if n, err := strconv.ParseInt(m[1], 10, 64); err == nil && n > metrics.ActualRows {
				metrics.ActualRows = n
			}
			// Strip the actual-rows clause so the estimate pattern only
			// sees the estimated count.
			line = actualRowsPattern.ReplaceAllString(line, "")
		}
		if m := estimatedRowsPattern.FindStringSubmatch(line); m != nil {
			if n, err := strconv.ParseInt(m[1], 10, 64); err == nil && n > metrics.EstimatedRows {
				metrics.EstimatedRows = n
			}
		}
		if m := executionTimePattern.FindStringSubmatch(line); m != nil {
			if t, err := strconv.ParseFloat(m[1], 64); err == nil {
				metrics.ExecutionTimeMS = t
			}
		}
	}

	addEstimateWarnings(metrics)
	return metrics
}

func addEstimateWarnings(metrics *PlanMetrics) {
	if metrics.HasTableScan {
		metrics.Warnings = append(metrics.Warnings, "plan contains a full table scan")
	}
	if metrics.EstimatedRows > 0 && metrics.ActualRows > metrics.EstimatedRows*10 {
		metrics.Warnings = append(metrics.Warnings,
			fmt.Sprintf("actual rows (%d) exceed estimate (%d) by more than 10x; statistics may be stale",
				metrics.ActualRows, metrics.EstimatedRows))
	}
}
