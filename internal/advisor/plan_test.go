package advisor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const postgresJSONPlan = `[
  {
    "Plan": {
      "Node Type": "Hash Join",
      "Plan Rows": 5000,
      "Actual Rows": 4800,
      "Plans": [
        {
          "Node Type": "Seq Scan",
          "Plan Rows": 100000,
          "Actual Rows": 99500,
          "Plans": []
        },
        {
          "Node Type": "Index Scan",
          "Plan Rows": 5000,
          "Actual Rows": 4800,
          "Plans": []
        }
      ]
    },
    "Execution Time": 123.45
  }
]`

func TestParsePlan_JSONTree(t *testing.T) {
	metrics, err := ParsePlan(postgresJSONPlan)
	require.NoError(t, err)

	assert.True(t, metrics.HasHashJoin)
	assert.True(t, metrics.HasTableScan)
	assert.True(t, metrics.HasIndexScan)
	assert.False(t, metrics.HasNestedLoop)
	assert.Equal(t, int64(100000), metrics.EstimatedRows)
	assert.Equal(t, int64(99500), metrics.ActualRows)
	assert.Equal(t, 123.45, metrics.ExecutionTimeMS)
	assert.Contains(t, metrics.Warnings, "plan contains a full table scan")
}

func TestParsePlan_TextTree(t *testing.T) {
	plan := `Nested Loop  (cost=0.42..845.12 rows=210 width=44) (actual time=0.055..3.421 rows=195 loops=1)
  ->  Seq Scan on orders  (cost=0.00..431.00 rows=21000 width=12) (actual time=0.012..2.110 rows=21000 loops=1)
  ->  Index Scan using orders_pkey on orders  (cost=0.42..0.46 rows=1 width=44)
Planning Time: 0.180 ms
Execution Time: 3.771 ms`

	metrics, err := ParsePlan(plan)
	require.NoError(t, err)

	assert.True(t, metrics.HasNestedLoop)
	assert.True(t, metrics.HasTableScan)
	assert.True(t, metrics.HasIndexScan)
	assert.False(t, metrics.HasHashJoin)
	assert.Equal(t, int64(21000), metrics.EstimatedRows)
	assert.Equal(t, int64(21000), metrics.ActualRows)
	assert.Equal(t, 3.771, metrics.ExecutionTimeMS)
}

func TestParsePlan_MySQLTabular(t *testing.T) {
	plan := `           id: 1
  select_type: SIMPLE
        table: orders
         type: ALL
possible_keys: NULL
          key: NULL
         rows: 98214
        Extra: Using where; Using filesort`

	metrics, err := ParsePlan(plan)
	require.NoError(t, err)

	assert.True(t, metrics.HasTableScan)
	assert.Contains(t, metrics.Warnings, "plan sorts without an index (filesort)")
}

func TestParsePlan_StaleStatisticsWarning(t *testing.T) {
	plan := `Seq Scan on orders  (cost=0.00..431.00 rows=100 width=12) (actual time=0.012..9.110 rows=50000 loops=1)`

	metrics, err := ParsePlan(plan)
	require.NoError(t, err)

	assert.Equal(t, int64(100), metrics.EstimatedRows)
	assert.Equal(t, int64(50000), metrics.ActualRows)

	found := false
	for _, w := range metrics.Warnings {
		if strings.Contains(w, "statistics may be stale") {
			found = true
		}
	}
	assert.True(t, found, "expected a stale-statistics warning")
}

func TestParsePlan_Empty(t *testing.T) {
	_, err := ParsePlan("   ")
	assert.Error(t, err)
}

func TestParsePlan_MalformedJSONFallsBackToText(t *testing.T) {
	metrics, err := ParsePlan(`{"unexpected": "shape with a Hash Join mention"}`)
	require.NoError(t, err)
	assert.True(t, metrics.HasHashJoin)
}
