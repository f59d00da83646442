package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ashita-ai/akashi/internal/model"
)

// HandoffFileName is the file written under the kernel's state directory
// (~/.cynic by default) at the end of every session, read by the next
// awakening as a local fallback alongside the Store-backed
// SessionSnapshot.Handoff row.
const HandoffFileName = "last-session.json"

// HandoffPath joins a state directory with HandoffFileName.
func HandoffPath(stateDir string) string {
	return filepath.Join(stateDir, HandoffFileName)
}

// WriteHandoffFile atomically replaces the handoff file at path: written
// to a temp file in the same directory, then renamed over the target, so
// a concurrent reader never observes a partial write. Mirrors the
// server package's guidance.json write.
func WriteHandoffFile(path string, h model.Handoff) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("orchestrator: create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".last-session-*.tmp")
	if err != nil {
		return fmt.Errorf("orchestrator: create handoff temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(h); err != nil {
		tmp.Close()
		return fmt.Errorf("orchestrator: encode handoff: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("orchestrator: close handoff temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("orchestrator: rename handoff file: %w", err)
	}
	return nil
}

// ReadHandoffFile loads the handoff file at path. ok is false if the
// file does not exist, used as a SAFE-boot fallback when the Store's own
// SessionSnapshot.Handoff can't be consulted.
func ReadHandoffFile(path string) (h model.Handoff, ok bool, err error) {
	if path == "" {
		return model.Handoff{}, false, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return model.Handoff{}, false, nil
	}
	if err != nil {
		return model.Handoff{}, false, fmt.Errorf("orchestrator: read handoff file: %w", err)
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return model.Handoff{}, false, fmt.Errorf("orchestrator: parse handoff file: %w", err)
	}
	return h, true, nil
}
