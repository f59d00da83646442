package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ashita-ai/akashi/internal/model"
)

// writeGuidance atomically replaces the guidance file at path: it writes
// to a temp file in the same directory, then renames over the target, so
// a concurrent reader never observes a partially written file.
func writeGuidance(path string, g model.Guidance) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".guidance-*.tmp")
	if err != nil {
		return fmt.Errorf("server: create guidance temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(g); err != nil {
		tmp.Close()
		return fmt.Errorf("server: encode guidance: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("server: close guidance temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("server: rename guidance file: %w", err)
	}
	return nil
}

// readGuidance loads the guidance file at path. ok is false if the file
// does not exist or is older than staleness (readers should treat absent
// or stale guidance as "no opinion" rather than acting on it).
func readGuidance(path string, staleness time.Duration, now time.Time) (g model.Guidance, ok bool, err error) {
	if path == "" {
		return model.Guidance{}, false, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return model.Guidance{}, false, nil
	}
	if err != nil {
		return model.Guidance{}, false, fmt.Errorf("server: read guidance file: %w", err)
	}
	if err := json.Unmarshal(data, &g); err != nil {
		return model.Guidance{}, false, fmt.Errorf("server: parse guidance file: %w", err)
	}
	if staleness <= 0 {
		staleness = model.GuidanceStaleness
	}
	if now.Sub(g.Timestamp) > staleness {
		return g, false, nil
	}
	return g, true, nil
}
