package render

import (
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/assert"

	"github.com/dbsmedya/goreconcile/internal/advisor"
	"github.com/dbsmedya/goreconcile/internal/reconciler"
	"github.com/dbsmedya/goreconcile/internal/sqlutil"
)

func TestMain(m *testing.M) {
	// Assertions match on plain text; strip ANSI sequences globally.
	color.Disable()
	m.Run()
}

func sampleReport() *reconciler.Report {
	return &reconciler.Report{
		Total:      3,
		Successful: 2,
		Failed:     1,
		Results: []reconciler.UnitResult{
			{Table: "orders", Outcome: reconciler.OutcomeSuccess, Mode: "full", SourceRows: 100, TargetRows: 100, Match: true, Duration: 120 * time.Millisecond},
			{Table: "customers", Outcome: reconciler.OutcomeSuccess, Mode: "incremental", SourceRows: 40, TargetRows: 40, Match: true, Duration: 80 * time.Millisecond},
			{Table: "payments", Outcome: reconciler.OutcomeFailed, Mode: "full", Duration: 300 * time.Millisecond},
		},
		Errors: []reconciler.UnitError{
			{Table: "payments", Message: "source checksum: connection reset", Kind: reconciler.ErrorKindApplication},
		},
		Duration: 450 * time.Millisecond,
		Workers:  2,
	}
}

func TestReport_ContainsAllTables(t *testing.T) {
	out := Report(sampleReport())

	assert.Contains(t, out, "orders")
	assert.Contains(t, out, "customers")
	assert.Contains(t, out, "payments")
	assert.Contains(t, out, "3 checked")
	assert.Contains(t, out, "2 successful")
	assert.Contains(t, out, "1 failed")
	assert.Contains(t, out, "connection reset")
}

func TestReport_ColumnsAligned(t *testing.T) {
	out := Report(sampleReport())
	lines := strings.Split(out, "\n")

	header := lines[0]
	outcomeCol := strings.Index(header, "OUTCOME")
	assert.Greater(t, outcomeCol, 0)

	// Every data row's outcome cell starts at the header's column.
	for _, line := range lines[1:4] {
		cell := line[outcomeCol:]
		trimmed := strings.TrimLeft(cell, " ")
		assert.True(t,
			strings.HasPrefix(trimmed, "successful") || strings.HasPrefix(trimmed, "failed"),
			"misaligned row: %q", line)
	}
}

func TestReport_EmptyRun(t *testing.T) {
	out := Report(&reconciler.Report{})
	assert.Contains(t, out, "0 checked")
	assert.NotContains(t, out, "TABLE")
}

func TestIssues_Clean(t *testing.T) {
	out := Issues(nil)
	assert.Contains(t, out, "preflight passed")
}

func TestIssues_FatalFirst(t *testing.T) {
	issues := []reconciler.Issue{
		{Table: "orders", Side: "source", Check: "ordering_index", Message: "no index", Fatal: false},
		{Table: "payments", Side: "target", Check: "table_exists", Message: "missing", Fatal: true},
	}
	out := Issues(issues)

	fatalPos := strings.Index(out, "payments")
	warnPos := strings.Index(out, "orders")
	assert.Greater(t, warnPos, fatalPos, "fatal issues should render first")
	assert.Contains(t, out, "[table_exists]")
}

func TestRecommendations_IncludesDDL(t *testing.T) {
	recs := advisor.Recommend(advisor.TableProfile{
		Table:           "orders",
		PrimaryKeys:     []string{"id"},
		TimestampColumn: "updated_at",
	})
	out := Recommendations(recs, sqlutil.DialectPostgres)

	assert.Contains(t, out, "(high)")
	assert.Contains(t, out, "CREATE INDEX CONCURRENTLY")
	assert.Contains(t, out, `INCLUDE ("id")`)
}
