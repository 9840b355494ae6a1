// Package render formats reconciliation reports, preflight findings and
// index recommendations for terminal output.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"

	"github.com/dbsmedya/goreconcile/internal/advisor"
	"github.com/dbsmedya/goreconcile/internal/reconciler"
	"github.com/dbsmedya/goreconcile/internal/sqlutil"
)

// Report renders a full run report as an aligned table followed by a
// colored summary line.
func Report(report *reconciler.Report) string {
	var b strings.Builder

	if len(report.Results) > 0 {
		headers := []string{"TABLE", "OUTCOME", "MODE", "SOURCE ROWS", "TARGET ROWS", "DISCREPANCIES", "DURATION"}
		rows := make([][]string, 0, len(report.Results))
		for _, r := range report.Results {
			rows = append(rows, []string{
				r.Table,
				string(r.Outcome),
				string(r.Mode),
				fmt.Sprintf("%d", r.SourceRows),
				fmt.Sprintf("%d", r.TargetRows),
				fmt.Sprintf("%d", r.Discrepancies),
				formatDuration(r.Duration),
			})
		}
		writeTable(&b, headers, rows, func(row int, rendered string) string {
			return outcomeColor(report.Results[row].Outcome).Sprint(rendered)
		})
		b.WriteString("\n")
	}

	summary := fmt.Sprintf("%d checked: %s, %s, %s in %s",
		report.Total,
		color.Green.Sprintf("%d successful", report.Successful),
		color.Red.Sprintf("%d failed", report.Failed),
		color.Yellow.Sprintf("%d timed out", report.TimedOut),
		formatDuration(report.Duration),
	)
	b.WriteString(summary)
	b.WriteString("\n")

	for _, e := range report.Errors {
		fmt.Fprintf(&b, "  %s %s (%s): %s\n",
			color.Red.Sprint("✗"), e.Table, e.Kind, e.Message)
	}

	return b.String()
}

// Issues renders preflight findings, fatal ones first.
func Issues(issues []reconciler.Issue) string {
	if len(issues) == 0 {
		return color.Green.Sprint("✓ preflight passed") + "\n"
	}

	var b strings.Builder
	for _, pass := range []bool{true, false} {
		for _, issue := range issues {
			if issue.Fatal != pass {
				continue
			}
			marker := color.Yellow.Sprint("⚠")
			if issue.Fatal {
				marker = color.Red.Sprint("✗")
			}
			fmt.Fprintf(&b, "%s %s/%s [%s] %s\n", marker, issue.Table, issue.Side, issue.Check, issue.Message)
		}
	}
	return b.String()
}

// Recommendations renders index proposals with their DDL for one
// dialect, ordered as the advisor produced them (highest impact first).
func Recommendations(recs []advisor.Recommendation, dialect sqlutil.Dialect) string {
	var b strings.Builder
	for i, rec := range recs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s [%s] %s\n",
			impactColor(rec.Impact).Sprintf("(%s)", rec.Impact), rec.Table, rec.Reason)
		for _, line := range strings.Split(advisor.RenderDDL(rec, dialect), "\n") {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}
	return b.String()
}

// writeTable writes an aligned table. Column widths use display width,
// not byte length, so wide runes in table names keep columns straight.
// colorize receives the padded cell row fully rendered and may wrap it.
func writeTable(b *strings.Builder, headers []string, rows [][]string, colorize func(row int, rendered string) string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	writeRow := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = runewidth.FillRight(cell, widths[i])
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	b.WriteString(color.Bold.Sprint(writeRow(headers)))
	b.WriteString("\n")
	for i, row := range rows {
		rendered := writeRow(row)
		if colorize != nil {
			rendered = colorize(i, rendered)
		}
		b.WriteString(rendered)
		b.WriteString("\n")
	}
}

func outcomeColor(outcome reconciler.Outcome) color.Color {
	switch outcome {
	case reconciler.OutcomeSuccess:
		return color.Green
	case reconciler.OutcomeFailed:
		return color.Red
	case reconciler.OutcomeTimeout:
		return color.Yellow
	default:
		return color.Gray
	}
}

func impactColor(impact advisor.Impact) color.Color {
	switch impact {
	case advisor.ImpactHigh:
		return color.Red
	case advisor.ImpactMedium:
		return color.Yellow
	default:
		return color.Gray
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}
