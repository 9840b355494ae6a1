package reconciler

import "sync"

// Sink receives metric updates from the orchestrator. It is injected by
// the caller and owned for the caller's process lifetime; tests inject
// a local sink instead of sharing global state.
type Sink interface {
	SetActiveWorkers(n int)
	SetQueueDepth(n int)
	IncProcessed(outcome Outcome)
}

// Metrics is the default Sink. Every update runs under one mutex so
// concurrent workers never lose increments, and Snapshot returns a
// point-in-time copy safe to read while a run is in flight.
type Metrics struct {
	mu            sync.Mutex
	activeWorkers int
	queueDepth    int
	processed     map[Outcome]int64
}

// NewMetrics creates an empty metrics sink.
func NewMetrics() *Metrics {
	return &Metrics{processed: make(map[Outcome]int64)}
}

// SetActiveWorkers records the current in-flight worker gauge.
func (m *Metrics) SetActiveWorkers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeWorkers = n
}

// SetQueueDepth records the current unsubmitted-unit gauge.
func (m *Metrics) SetQueueDepth(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepth = n
}

// IncProcessed bumps the monotonic counter for one outcome.
func (m *Metrics) IncProcessed(outcome Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[outcome]++
}

// Snapshot is a read-only copy of the metrics at one instant.
type Snapshot struct {
	ActiveWorkers int
	QueueDepth    int
	Processed     map[Outcome]int64
}

// Snapshot returns the current gauge and counter values.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	processed := make(map[Outcome]int64, len(m.processed))
	for k, v := range m.processed {
		processed[k] = v
	}
	return Snapshot{
		ActiveWorkers: m.activeWorkers,
		QueueDepth:    m.queueDepth,
		Processed:     processed,
	}
}

// nopSink discards all updates. Used when the caller supplies no sink.
type nopSink struct{}

func (nopSink) SetActiveWorkers(int)  {}
func (nopSink) SetQueueDepth(int)     {}
func (nopSink) IncProcessed(Outcome)  {}
