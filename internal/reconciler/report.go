package reconciler

import (
	"time"

	"github.com/dbsmedya/goreconcile/internal/checksum"
)

// Outcome classifies how one reconciliation unit ended.
type Outcome string

const (
	// OutcomeSuccess means the unit function returned without error.
	OutcomeSuccess Outcome = "successful"
	// OutcomeFailed means the unit function returned an application error.
	OutcomeFailed Outcome = "failed"
	// OutcomeTimeout means the unit exceeded its per-unit budget.
	OutcomeTimeout Outcome = "timeout"
	// OutcomeCancelled means the unit was cancelled before or during work,
	// typically by fail-fast or an operator interrupt.
	OutcomeCancelled Outcome = "cancelled"
)

// ErrorKind classifies a unit error entry in the report.
type ErrorKind string

const (
	ErrorKindApplication ErrorKind = "application"
	ErrorKindTimeout     ErrorKind = "timeout"
	ErrorKindCancelled   ErrorKind = "cancelled"
)

// UnitResult is the structured outcome of one table's reconciliation.
// Table, Outcome and Duration are always attached by the orchestrator
// regardless of what the unit function returned; the remaining fields
// are whatever the unit function filled in.
type UnitResult struct {
	Table    string
	Outcome  Outcome
	Duration time.Duration

	Mode           checksum.Mode
	SourceChecksum string
	TargetChecksum string
	SourceRows     int64
	TargetRows     int64
	Match          bool
	Discrepancies  int
	RepairScript   string
}

// UnitError records one failed, timed-out or cancelled unit.
type UnitError struct {
	Table   string
	Message string
	Kind    ErrorKind
}

// Report aggregates a whole reconciliation run. It is built
// incrementally as units complete and immutable once returned.
//
// Total counts every unit whose outcome was recorded; with fail-fast it
// may be less than the number of requested tables because unsubmitted
// units are never counted. Successful+Failed+TimedOut is at most Total,
// strictly less when fail-fast cancelled units that had been submitted.
type Report struct {
	Total      int
	Successful int
	Failed     int
	TimedOut   int
	Results    []UnitResult // completion order, not submission order
	Errors     []UnitError
	Duration   time.Duration
	Workers    int
	Timestamp  time.Time
}
