// Package trace persists the phase progress of the active recognition so
// a restart can restore the pipeline view without touching the network.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Record is the flat on-disk shape of the pipeline progress. Stage fields
// hold the status strings of the phase machine ("idle", "pending", "done",
// "error").
type Record struct {
	SessionID string    `json:"session_id"`
	Latex     string    `json:"latex"`
	Analysis  string    `json:"analysis"`
	Verify    string    `json:"verify"`
	SavedAt   time.Time `json:"saved_at"`
}

// Store reads and writes the trace file.
type Store struct {
	path string
}

// NewStore returns a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultPath places the trace next to the app config.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(dir, "texlens", "trace.json"), nil
}

// Save writes the record, creating parent directories as needed. The
// write goes through a temp file so a crash cannot leave a torn record.
func (s *Store) Save(rec Record) error {
	rec.SavedAt = time.Now()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create trace directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write trace file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace trace file: %w", err)
	}
	return nil
}

// Load reads the persisted record. A missing file is not an error; it
// returns (nil, nil).
func (s *Store) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read trace file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse trace file: %w", err)
	}
	return &rec, nil
}

// Clear removes the trace file if present.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove trace file: %w", err)
	}
	return nil
}
