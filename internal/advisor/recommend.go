package advisor

import (
	"fmt"
)

// Impact ranks how much a recommendation is expected to help the
// reconciliation workload.
type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

// TableProfile describes the columns a reconciled table exposes to the
// advisor. Only the primary keys are required.
type TableProfile struct {
	Table           string
	PrimaryKeys     []string
	TimestampColumn string
	ChecksumColumn  string
	StatusColumn    string
	ActiveValue     string // status value meaning "active"; defaults to "active"
}

// Recommendation is one proposed index. Pure advisory value object,
// stateless; RenderDDL turns it into dialect-specific SQL.
type Recommendation struct {
	Table   string
	Columns []string
	Kind    string // btree is the only kind proposed today
	Include []string
	// WhereColumn/WhereValue form the partial-index predicate
	// "column = 'value'"; both empty for a complete index.
	WhereColumn string
	WhereValue  string
	Reason      string
	Impact      Impact
}

// Recommend proposes the fixed index set for one table's reconciliation
// access patterns. Recommendations for columns the profile does not
// declare are omitted, so the result ranges from one entry (primary key
// only) to five.
func Recommend(profile TableProfile) []Recommendation {
	keys := profile.PrimaryKeys
	if len(keys) == 0 {
		keys = []string{"id"}
	}

	recs := []Recommendation{{
		Table:   profile.Table,
		Columns: keys,
		Kind:    "btree",
		Reason:  "checksum passes scan in primary-key order and the differ fetches rows by key; every pass pays for a missing key index",
		Impact:  ImpactHigh,
	}}

	if profile.TimestampColumn != "" {
		recs = append(recs, Recommendation{
			Table:   profile.Table,
			Columns: []string{profile.TimestampColumn},
			Kind:    "btree",
			Include: keys,
			Reason:  fmt.Sprintf("incremental mode filters on %s > watermark; covering the key columns avoids a second lookup per row", profile.TimestampColumn),
			Impact:  ImpactHigh,
		})
	}

	if profile.ChecksumColumn != "" {
		recs = append(recs, Recommendation{
			Table:   profile.Table,
			Columns: []string{profile.ChecksumColumn},
			Kind:    "btree",
			Include: keys,
			Reason:  fmt.Sprintf("row-hash comparisons probe %s directly; a covering index answers them without touching the heap", profile.ChecksumColumn),
			Impact:  ImpactMedium,
		})
	}

	if profile.StatusColumn != "" && profile.TimestampColumn != "" {
		recs = append(recs, Recommendation{
			Table:   profile.Table,
			Columns: []string{profile.StatusColumn, profile.TimestampColumn},
			Kind:    "btree",
			Reason:  fmt.Sprintf("status-scoped incremental scans filter on %s and range on %s; a composite index serves both predicates", profile.StatusColumn, profile.TimestampColumn),
			Impact:  ImpactMedium,
		})
	}

	if profile.StatusColumn != "" {
		active := profile.ActiveValue
		if active == "" {
			active = "active"
		}
		recs = append(recs, Recommendation{
			Table:       profile.Table,
			Columns:     keys,
			Kind:        "btree",
			WhereColumn: profile.StatusColumn,
			WhereValue:  active,
			Reason:      fmt.Sprintf("when reconciliation only cares about %s = '%s' rows, a partial index keeps the scanned set small", profile.StatusColumn, active),
			Impact:      ImpactLow,
		})
	}

	return recs
}
