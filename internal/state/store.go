// Package state persists which candidates were already handled and the
// cumulative run statistics between invocations.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// DefaultRetention bounds HandledIDs when the caller gives no cap.
const DefaultRetention = 500

// Stats holds cumulative counters across runs.
type Stats struct {
	Total   int `json:"total"`
	Skipped int `json:"skipped"`
}

// RunState is the record persisted across invocations. Field names match the
// state files written by earlier versions of the tool.
type RunState struct {
	HandledIDs []string   `json:"repliedTo"`
	LastRunAt  *time.Time `json:"lastRun"`
	Stats      Stats      `json:"stats"`

	index map[string]struct{}
}

// New returns an empty RunState.
func New() *RunState {
	return &RunState{HandledIDs: []string{}}
}

// Handled reports whether id was processed by a previous or the current run.
func (s *RunState) Handled(id string) bool {
	s.ensureIndex()
	_, ok := s.index[id]
	return ok
}

// MarkHandled records id once; repeated calls are no-ops.
func (s *RunState) MarkHandled(id string) {
	if id == "" {
		return
	}
	s.ensureIndex()
	if _, ok := s.index[id]; ok {
		return
	}
	s.index[id] = struct{}{}
	s.HandledIDs = append(s.HandledIDs, id)
}

// Forget removes id from the handled set. It reports whether id was present.
func (s *RunState) Forget(id string) bool {
	i := slices.Index(s.HandledIDs, id)
	if i < 0 {
		return false
	}
	s.HandledIDs = slices.Delete(s.HandledIDs, i, i+1)
	s.index = nil
	return true
}

// Trim keeps only the most recent n handled ids.
func (s *RunState) Trim(n int) {
	if n <= 0 || len(s.HandledIDs) <= n {
		return
	}
	s.HandledIDs = slices.Clone(s.HandledIDs[len(s.HandledIDs)-n:])
	s.index = nil
}

func (s *RunState) ensureIndex() {
	if s.index != nil {
		return
	}
	s.index = make(map[string]struct{}, len(s.HandledIDs))
	for _, id := range s.HandledIDs {
		s.index[id] = struct{}{}
	}
}

// Store reads and writes a RunState as JSON at a fixed path.
// There is no locking: callers must not run two stores on one path at once.
type Store struct {
	path      string
	retention int
	logger    *slog.Logger
}

// NewStore creates a Store for path. retention <= 0 uses DefaultRetention.
func NewStore(path string, retention int) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{path: path, retention: retention, logger: slog.Default()}
}

// Path returns the state file location.
func (s *Store) Path() string { return s.path }

// Load reads the state file. It never fails: a missing, unreadable or corrupt
// file yields a fresh state, and anything but a missing file is logged.
func (s *Store) Load() *RunState {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("state load failed, starting fresh", "path", s.path, "error", err)
		}
		return New()
	}

	var st RunState
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("state file is corrupt, starting fresh", "path", s.path, "error", err)
		return New()
	}
	if st.HandledIDs == nil {
		st.HandledIDs = []string{}
	}
	// Hand-edited files may carry duplicates; keep the first occurrence.
	deduped := make([]string, 0, len(st.HandledIDs))
	seen := make(map[string]struct{}, len(st.HandledIDs))
	for _, id := range st.HandledIDs {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		deduped = append(deduped, id)
	}
	st.HandledIDs = deduped
	st.index = seen
	return &st
}

// Save trims the handled set to the retention cap and writes the state
// atomically (temp file, fsync, rename).
func (s *Store) Save(st *RunState) error {
	st.Trim(s.retention)

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing state: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

// Reset deletes the state file. A missing file is not an error.
func (s *Store) Reset() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return nil
}
