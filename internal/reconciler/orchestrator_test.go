package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func testOptions() Options {
	return Options{
		WorkerLimit: 4,
		UnitTimeout: 5 * time.Second,
		FailFast:    false,
	}
}

func tableNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("table_%d", i)
	}
	return names
}

func TestReconcileAll_AllSuccessful(t *testing.T) {
	orch := NewOrchestrator(nil, nil)

	unitFn := func(ctx context.Context, table string) (*UnitResult, error) {
		return &UnitResult{Match: true}, nil
	}

	report, err := orch.ReconcileAll(context.Background(), tableNames(10), unitFn, testOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Total != 10 {
		t.Errorf("expected total 10, got %d", report.Total)
	}
	if report.Successful != 10 {
		t.Errorf("expected 10 successful, got %d", report.Successful)
	}
	if report.Failed != 0 || report.TimedOut != 0 {
		t.Errorf("expected no failures, got failed=%d timed_out=%d", report.Failed, report.TimedOut)
	}
	if len(report.Results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(report.Results))
	}
	if len(report.Errors) != 0 {
		t.Errorf("expected no error entries, got %d", len(report.Errors))
	}

	// Completion order is unspecified; every table must still appear
	// exactly once.
	seen := make(map[string]int)
	for _, r := range report.Results {
		seen[r.Table]++
		if r.Outcome != OutcomeSuccess {
			t.Errorf("table %s: expected outcome %s, got %s", r.Table, OutcomeSuccess, r.Outcome)
		}
	}
	for _, name := range tableNames(10) {
		if seen[name] != 1 {
			t.Errorf("table %s appeared %d times in results", name, seen[name])
		}
	}
}

func TestReconcileAll_EmptyTableList(t *testing.T) {
	orch := NewOrchestrator(nil, nil)

	unitFn := func(ctx context.Context, table string) (*UnitResult, error) {
		t.Error("unit function should not be called for an empty table list")
		return nil, nil
	}

	report, err := orch.ReconcileAll(context.Background(), nil, unitFn, testOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Total != 0 || len(report.Results) != 0 {
		t.Errorf("expected empty report, got total=%d results=%d", report.Total, len(report.Results))
	}
}

func TestReconcileAll_InvalidOptions(t *testing.T) {
	orch := NewOrchestrator(nil, nil)
	unitFn := func(ctx context.Context, table string) (*UnitResult, error) { return nil, nil }

	if _, err := orch.ReconcileAll(context.Background(), tableNames(1), unitFn, Options{WorkerLimit: 0, UnitTimeout: time.Second}); err == nil {
		t.Error("expected error for worker limit 0")
	}
	if _, err := orch.ReconcileAll(context.Background(), tableNames(1), unitFn, Options{WorkerLimit: 2, UnitTimeout: 0}); err == nil {
		t.Error("expected error for zero unit timeout")
	}
	if _, err := orch.ReconcileAll(context.Background(), tableNames(1), nil, testOptions()); err == nil {
		t.Error("expected error for nil unit function")
	}
}

func TestReconcileAll_OneFailureAmongMany(t *testing.T) {
	orch := NewOrchestrator(nil, nil)

	unitFn := func(ctx context.Context, table string) (*UnitResult, error) {
		if table == "table_3" {
			return nil, errors.New("checksum query failed")
		}
		return &UnitResult{Match: true}, nil
	}

	report, err := orch.ReconcileAll(context.Background(), tableNames(8), unitFn, testOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Successful != 7 {
		t.Errorf("expected 7 successful, got %d", report.Successful)
	}
	if report.Failed != 1 {
		t.Errorf("expected 1 failed, got %d", report.Failed)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("expected 1 error entry, got %d", len(report.Errors))
	}
	if report.Errors[0].Table != "table_3" {
		t.Errorf("expected error for table_3, got %s", report.Errors[0].Table)
	}
	if report.Errors[0].Kind != ErrorKindApplication {
		t.Errorf("expected kind %s, got %s", ErrorKindApplication, report.Errors[0].Kind)
	}
}

func TestReconcileAll_UnitTimeout(t *testing.T) {
	orch := NewOrchestrator(nil, nil)

	unitFn := func(ctx context.Context, table string) (*UnitResult, error) {
		if table == "slow" {
			select {
			case <-time.After(5 * time.Second):
				return &UnitResult{}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return &UnitResult{Match: true}, nil
	}

	opts := testOptions()
	opts.UnitTimeout = 50 * time.Millisecond

	report, err := orch.ReconcileAll(context.Background(), []string{"fast", "slow"}, unitFn, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.TimedOut != 1 {
		t.Errorf("expected 1 timed out, got %d", report.TimedOut)
	}
	if report.Successful != 1 {
		t.Errorf("expected 1 successful, got %d", report.Successful)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("expected 1 error entry, got %d", len(report.Errors))
	}
	if report.Errors[0].Kind != ErrorKindTimeout {
		t.Errorf("expected kind %s, got %s", ErrorKindTimeout, report.Errors[0].Kind)
	}

	var slow *UnitResult
	for i := range report.Results {
		if report.Results[i].Table == "slow" {
			slow = &report.Results[i]
		}
	}
	if slow == nil {
		t.Fatal("slow table missing from results")
	}
	if slow.Outcome != OutcomeTimeout {
		t.Errorf("expected outcome %s, got %s", OutcomeTimeout, slow.Outcome)
	}
}

func TestReconcileAll_TimeoutFreesWorkerSlot(t *testing.T) {
	orch := NewOrchestrator(nil, nil)

	// One worker, one unit that ignores its context entirely. The
	// worker must still move on to the second unit once the budget
	// elapses instead of blocking behind the abandoned goroutine.
	release := make(chan struct{})
	unitFn := func(ctx context.Context, table string) (*UnitResult, error) {
		if table == "stuck" {
			<-release
			return &UnitResult{}, nil
		}
		return &UnitResult{Match: true}, nil
	}

	opts := Options{WorkerLimit: 1, UnitTimeout: 50 * time.Millisecond}

	done := make(chan *Report, 1)
	go func() {
		report, err := orch.ReconcileAll(context.Background(), []string{"stuck", "after"}, unitFn, opts)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		done <- report
	}()

	var report *Report
	select {
	case report = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not complete; worker slot was not freed on timeout")
	}
	close(release)

	if report.TimedOut != 1 {
		t.Errorf("expected 1 timed out, got %d", report.TimedOut)
	}
	if report.Successful != 1 {
		t.Errorf("expected 1 successful, got %d", report.Successful)
	}
}

func TestReconcileAll_ConcurrencyBound(t *testing.T) {
	orch := NewOrchestrator(nil, nil)

	const limit = 3
	var current, peak int64

	unitFn := func(ctx context.Context, table string) (*UnitResult, error) {
		n := atomic.AddInt64(&current, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt64(&current, -1)
		return &UnitResult{}, nil
	}

	opts := testOptions()
	opts.WorkerLimit = limit

	report, err := orch.ReconcileAll(context.Background(), tableNames(20), unitFn, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Total != 20 {
		t.Errorf("expected 20 total, got %d", report.Total)
	}

	if p := atomic.LoadInt64(&peak); p > limit {
		t.Errorf("concurrency bound violated: peak %d > limit %d", p, limit)
	}
}

func TestReconcileAll_FailFastStopsSubmission(t *testing.T) {
	orch := NewOrchestrator(nil, nil)

	var started int64
	unitFn := func(ctx context.Context, table string) (*UnitResult, error) {
		atomic.AddInt64(&started, 1)
		if table == "table_0" {
			return nil, errors.New("boom")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
			return &UnitResult{Match: true}, nil
		}
	}

	opts := Options{WorkerLimit: 1, UnitTimeout: 5 * time.Second, FailFast: true}

	report, err := orch.ReconcileAll(context.Background(), tableNames(10), unitFn, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Failed != 1 {
		t.Errorf("expected 1 failed, got %d", report.Failed)
	}
	// With a single worker and the first unit failing, at most one more
	// unit can have been handed out before cancellation stops the feed.
	if s := atomic.LoadInt64(&started); s > 2 {
		t.Errorf("fail-fast did not stop submission: %d units started", s)
	}
	if report.Total >= 10 {
		t.Errorf("expected fewer than 10 units recorded under fail-fast, got %d", report.Total)
	}
}

func TestReconcileAll_CancelledUnitsClassified(t *testing.T) {
	orch := NewOrchestrator(nil, nil)

	// The failing unit waits for the held unit to start, so both are
	// guaranteed in-flight when fail-fast trips.
	heldStarted := make(chan struct{})

	unitFn := func(ctx context.Context, table string) (*UnitResult, error) {
		if table == "bad" {
			<-heldStarted
			return nil, errors.New("boom")
		}
		close(heldStarted)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
			return &UnitResult{Match: true}, nil
		}
	}

	opts := Options{WorkerLimit: 2, UnitTimeout: 10 * time.Second, FailFast: true}

	report, err := orch.ReconcileAll(context.Background(), []string{"bad", "held"}, unitFn, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var held *UnitResult
	for i := range report.Results {
		if report.Results[i].Table == "held" {
			held = &report.Results[i]
		}
	}
	if held == nil {
		t.Fatal("held table missing from results")
	}
	if held.Outcome != OutcomeCancelled {
		t.Errorf("expected outcome %s, got %s", OutcomeCancelled, held.Outcome)
	}
	// Cancelled units are recorded but not counted as failures.
	if report.Failed != 1 {
		t.Errorf("expected 1 failed, got %d", report.Failed)
	}
	if report.Successful+report.Failed+report.TimedOut > report.Total {
		t.Errorf("outcome counts exceed total: %d+%d+%d > %d",
			report.Successful, report.Failed, report.TimedOut, report.Total)
	}
}

func TestReconcileAll_ParentContextCancelled(t *testing.T) {
	orch := NewOrchestrator(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	unitFn := func(ctx context.Context, table string) (*UnitResult, error) {
		t.Error("unit should observe the cancelled token at entry, not run")
		return &UnitResult{}, nil
	}

	report, err := orch.ReconcileAll(ctx, tableNames(3), unitFn, testOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Successful != 0 {
		t.Errorf("expected no successes under a pre-cancelled context, got %d", report.Successful)
	}
	for _, r := range report.Results {
		if r.Outcome != OutcomeCancelled {
			t.Errorf("table %s: expected outcome %s, got %s", r.Table, OutcomeCancelled, r.Outcome)
		}
	}
}

func TestReconcileAll_MetricsSink(t *testing.T) {
	metrics := NewMetrics()
	orch := NewOrchestrator(metrics, nil)

	unitFn := func(ctx context.Context, table string) (*UnitResult, error) {
		if table == "table_2" {
			return nil, errors.New("boom")
		}
		return &UnitResult{Match: true}, nil
	}

	if _, err := orch.ReconcileAll(context.Background(), tableNames(5), unitFn, testOptions()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := metrics.Snapshot()
	if snap.ActiveWorkers != 0 {
		t.Errorf("expected active workers gauge reset to 0, got %d", snap.ActiveWorkers)
	}
	if snap.QueueDepth != 0 {
		t.Errorf("expected queue depth gauge reset to 0, got %d", snap.QueueDepth)
	}
	if snap.Processed[OutcomeSuccess] != 4 {
		t.Errorf("expected 4 successful processed, got %d", snap.Processed[OutcomeSuccess])
	}
	if snap.Processed[OutcomeFailed] != 1 {
		t.Errorf("expected 1 failed processed, got %d", snap.Processed[OutcomeFailed])
	}
}

func TestReconcileAll_WorkerCountCappedByTables(t *testing.T) {
	orch := NewOrchestrator(nil, nil)

	unitFn := func(ctx context.Context, table string) (*UnitResult, error) {
		return &UnitResult{}, nil
	}

	opts := testOptions()
	opts.WorkerLimit = 16

	report, err := orch.ReconcileAll(context.Background(), tableNames(2), unitFn, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Workers != 2 {
		t.Errorf("expected workers capped at 2, got %d", report.Workers)
	}
}
