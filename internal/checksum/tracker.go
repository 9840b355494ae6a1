package checksum

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dbsmedya/goreconcile/internal/logger"
)

// State is the persisted checksum record for one table. One record per
// table, last write wins. Within a run exactly one reconciliation unit
// owns a table's record, so no cross-table locking is needed.
type State struct {
	Table     string    `json:"table"`
	Checksum  string    `json:"checksum"`
	RowCount  int64     `json:"row_count"`
	Watermark time.Time `json:"watermark"`
	Mode      Mode      `json:"mode"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tracker stores incremental checksum state as one JSON file per table.
// An unreadable or corrupt record is treated as absent state, never an
// error: callers fall back to full-mode computation and the next save
// overwrites the bad record.
type Tracker struct {
	dir    string
	logger *logger.Logger
}

// NewTracker creates a tracker rooted at dir, creating it if needed.
func NewTracker(dir string, log *logger.Logger) (*Tracker, error) {
	if dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Tracker{dir: dir, logger: log}, nil
}

// Save persists a table's checksum state, replacing any prior record.
// The write goes through a temp file and rename so a crash never leaves
// a half-written record behind.
func (t *Tracker) Save(state State) error {
	if state.Table == "" {
		return fmt.Errorf("state table name is required")
	}
	state.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state for table %s: %w", state.Table, err)
	}

	path := t.statePath(state.Table)
	tmp, err := os.CreateTemp(t.dir, "state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state for table %s: %w", state.Table, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to persist state for table %s: %w", state.Table, err)
	}

	t.logger.WithTable(state.Table).Debugw("Saved checksum state",
		"mode", state.Mode,
		"row_count", state.RowCount,
		"watermark", state.Watermark,
	)
	return nil
}

// Load returns the persisted state for a table. The second return value
// is false when no usable state exists; corruption is logged and
// reported as absence.
func (t *Tracker) Load(table string) (*State, bool, error) {
	data, err := os.ReadFile(t.statePath(table))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read state for table %s: %w", table, err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		t.logger.WithTable(table).Warnw("Corrupt checksum state treated as absent", "error", err)
		return nil, false, nil
	}
	if state.Table == "" || state.Checksum == "" {
		t.logger.WithTable(table).Warn("Incomplete checksum state treated as absent")
		return nil, false, nil
	}

	return &state, true, nil
}

// LoadWatermark returns the stored watermark for a table, or false when
// no prior state exists.
func (t *Tracker) LoadWatermark(table string) (time.Time, bool, error) {
	state, ok, err := t.Load(table)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return state.Watermark, true, nil
}

// Clear removes a table's persisted state. Clearing absent state is not
// an error.
func (t *Tracker) Clear(table string) error {
	err := os.Remove(t.statePath(table))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear state for table %s: %w", table, err)
	}
	return nil
}

// List returns all readable persisted states, ordered by table name.
// Corrupt records are skipped.
func (t *Tracker) List() ([]State, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var states []State
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(t.dir, entry.Name()))
		if err != nil {
			continue
		}
		var state State
		if err := json.Unmarshal(data, &state); err != nil || state.Table == "" {
			continue
		}
		states = append(states, state)
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].Table < states[j].Table
	})
	return states, nil
}

// unsafeNameChars matches anything outside the filesystem-safe set.
var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// sanitizeName maps a table name onto a filesystem-safe file stem.
func sanitizeName(table string) string {
	name := unsafeNameChars.ReplaceAllString(table, "_")
	if len(name) > 200 {
		name = name[:200]
	}
	return name
}

func (t *Tracker) statePath(table string) string {
	return filepath.Join(t.dir, sanitizeName(table)+".json")
}
