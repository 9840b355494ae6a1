// Package differ performs exact row-level comparison between two stores
// and generates repair scripts for the differences it finds.
package differ

import (
	"time"

	"github.com/dbsmedya/goreconcile/internal/types"
)

// Kind classifies a single row-level difference.
type Kind string

const (
	// KindMissing marks a row present in the source but absent from the target.
	KindMissing Kind = "MISSING"
	// KindExtra marks a row present in the target but absent from the source.
	KindExtra Kind = "EXTRA"
	// KindModified marks a row present on both sides with differing column values.
	KindModified Kind = "MODIFIED"
)

// Discrepancy is one detected difference for one logical row. It is a
// transient diffing artifact: produced by ReconcileTable, consumed by
// repair generation, never persisted.
type Discrepancy struct {
	Table           string
	Key             types.KeyTuple
	KeyColumns      []string
	Kind            Kind
	SourceRow       map[string]interface{} // nil for EXTRA
	TargetRow       map[string]interface{} // nil for MISSING
	ModifiedColumns []string               // MODIFIED only
	DetectedAt      time.Time
}

// DefaultFloatTolerance is the numeric comparison tolerance used when
// none is configured.
const DefaultFloatTolerance = 1e-9
