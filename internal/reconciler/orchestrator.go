// Package reconciler coordinates concurrent per-table consistency checks
// with isolation, timeout and fail-fast guarantees.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dbsmedya/goreconcile/internal/logger"
)

// UnitFunc is the per-table reconciliation function supplied by the
// caller. The context it receives is the unit's cancellation token: it
// carries the per-unit deadline and is cancelled by fail-fast. A
// function that ignores the context cannot be interrupted mid-flight;
// it is still reported as timed out once its budget elapses, but its
// resources are only reclaimed when it eventually returns.
type UnitFunc func(ctx context.Context, table string) (*UnitResult, error)

// Options tunes one ReconcileAll run.
type Options struct {
	WorkerLimit int
	UnitTimeout time.Duration
	FailFast    bool
}

// Orchestrator fans reconciliation units out over a bounded worker pool
// and aggregates their outcomes into a Report.
type Orchestrator struct {
	metrics Sink
	logger  *logger.Logger
}

// NewOrchestrator creates an orchestrator. A nil sink discards metrics;
// a nil logger falls back to the default.
func NewOrchestrator(metrics Sink, log *logger.Logger) *Orchestrator {
	if metrics == nil {
		metrics = nopSink{}
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Orchestrator{metrics: metrics, logger: log}
}

// unitOutcome pairs one unit's result with its error classification.
type unitOutcome struct {
	result UnitResult
	err    error
	kind   ErrorKind
}

// ReconcileAll runs one reconciliation unit per table under bounded
// concurrency and returns the aggregated report.
//
// Units start in submission order but the report's result list is in
// completion order. Each unit gets a context derived from ctx with the
// per-unit timeout applied; a unit observing a cancelled context at
// entry fails immediately without doing work. With fail-fast, the first
// failed or timed-out unit cancels every other unit's context and stops
// submission, so the report may cover fewer units than tables.
// Cancelling ctx itself (e.g. an operator interrupt) has the same
// abandoning effect. Panics in the unit function are deliberately not
// recovered.
func (o *Orchestrator) ReconcileAll(ctx context.Context, tables []string, unitFn UnitFunc, opts Options) (*Report, error) {
	start := time.Now()

	if unitFn == nil {
		return nil, fmt.Errorf("unit function is nil")
	}
	if opts.WorkerLimit < 1 {
		return nil, fmt.Errorf("worker limit must be at least 1, got %d", opts.WorkerLimit)
	}
	if opts.UnitTimeout <= 0 {
		return nil, fmt.Errorf("unit timeout must be positive, got %v", opts.UnitTimeout)
	}

	workers := opts.WorkerLimit
	if len(tables) < workers {
		workers = len(tables)
	}

	report := &Report{Workers: workers}
	if len(tables) == 0 {
		report.Timestamp = time.Now()
		return report, nil
	}

	// Gauges are zeroed on every exit path, including early fail-fast.
	defer func() {
		o.metrics.SetActiveWorkers(0)
		o.metrics.SetQueueDepth(0)
	}()

	o.logger.Infow("Starting reconciliation run",
		"tables", len(tables),
		"workers", workers,
		"unit_timeout", opts.UnitTimeout,
		"fail_fast", opts.FailFast,
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var gaugeMu sync.Mutex
	active := 0
	queued := len(tables)
	o.metrics.SetQueueDepth(queued)

	jobs := make(chan string)
	outcomes := make(chan unitOutcome)

	// Submission stops as soon as the run context is cancelled; units
	// never handed to a worker are not counted in the report.
	go func() {
		defer close(jobs)
		for _, table := range tables {
			if runCtx.Err() != nil {
				return
			}
			select {
			case jobs <- table:
			case <-runCtx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for table := range jobs {
				gaugeMu.Lock()
				active++
				queued--
				o.metrics.SetActiveWorkers(active)
				o.metrics.SetQueueDepth(queued)
				gaugeMu.Unlock()

				outcome := o.runUnit(runCtx, table, unitFn, opts.UnitTimeout)

				gaugeMu.Lock()
				active--
				o.metrics.SetActiveWorkers(active)
				gaugeMu.Unlock()

				outcomes <- outcome
			}
		}()
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	failFastTripped := false
	for outcome := range outcomes {
		report.Total++
		report.Results = append(report.Results, outcome.result)
		o.metrics.IncProcessed(outcome.result.Outcome)

		switch outcome.result.Outcome {
		case OutcomeSuccess:
			report.Successful++
		case OutcomeFailed:
			report.Failed++
		case OutcomeTimeout:
			report.TimedOut++
		}

		if outcome.err != nil {
			report.Errors = append(report.Errors, UnitError{
				Table:   outcome.result.Table,
				Message: outcome.err.Error(),
				Kind:    outcome.kind,
			})
			o.logger.WithTable(outcome.result.Table).Warnw("Reconciliation unit did not succeed",
				"outcome", outcome.result.Outcome,
				"kind", outcome.kind,
				"error", outcome.err.Error(),
			)
		}

		tripped := outcome.result.Outcome == OutcomeFailed || outcome.result.Outcome == OutcomeTimeout
		if opts.FailFast && tripped && !failFastTripped {
			failFastTripped = true
			o.logger.Warnw("Fail-fast triggered, cancelling remaining units",
				"table", outcome.result.Table)
			cancel()
		}
	}

	report.Duration = time.Since(start)
	report.Timestamp = time.Now()

	o.logger.Infow("Reconciliation run complete",
		"total", report.Total,
		"successful", report.Successful,
		"failed", report.Failed,
		"timed_out", report.TimedOut,
		"duration", report.Duration,
	)

	return report, nil
}

// runUnit executes one unit under its own deadline. When the deadline
// fires the worker abandons the unit and moves on; the unit's goroutine
// keeps running until the function honors its context or finishes.
func (o *Orchestrator) runUnit(runCtx context.Context, table string, unitFn UnitFunc, timeout time.Duration) unitOutcome {
	start := time.Now()

	unitCtx, cancel := context.WithTimeout(runCtx, timeout)
	defer cancel()

	// A token already signalled before the unit starts is observed at
	// entry; no work happens.
	if err := unitCtx.Err(); err != nil {
		return o.classify(table, nil, fmt.Errorf("unit cancelled before start: %w", err), time.Since(start))
	}

	type unitReturn struct {
		result *UnitResult
		err    error
	}
	done := make(chan unitReturn, 1)

	go func() {
		result, err := unitFn(unitCtx, table)
		done <- unitReturn{result: result, err: err}
	}()

	select {
	case ret := <-done:
		return o.classify(table, ret.result, ret.err, time.Since(start))
	case <-unitCtx.Done():
		return o.classify(table, nil, unitCtx.Err(), time.Since(start))
	}
}

// classify normalizes a unit return into an outcome, attaching the
// table and duration to whatever result the unit produced.
func (o *Orchestrator) classify(table string, result *UnitResult, err error, duration time.Duration) unitOutcome {
	if result == nil {
		result = &UnitResult{}
	}
	result.Table = table
	result.Duration = duration

	if err == nil {
		result.Outcome = OutcomeSuccess
		return unitOutcome{result: *result}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result.Outcome = OutcomeTimeout
		return unitOutcome{result: *result, err: err, kind: ErrorKindTimeout}
	case errors.Is(err, context.Canceled):
		result.Outcome = OutcomeCancelled
		return unitOutcome{result: *result, err: err, kind: ErrorKindCancelled}
	default:
		result.Outcome = OutcomeFailed
		return unitOutcome{result: *result, err: err, kind: ErrorKindApplication}
	}
}
