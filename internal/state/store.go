// Package state persists the collection checkpoint between runs.
// The checkpoint only advances after a report has been delivered, which is
// what makes failed ticks safe to retry.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	scanerrors "github.com/unifiscan/unifi-scanner/internal/errors"
)

// FileName is the checkpoint file inside the state directory.
const FileName = ".last_run.json"

// SchemaVersion identifies the checkpoint format.
const SchemaVersion = "1.0"

// RunState is the persisted checkpoint.
type RunState struct {
	SchemaVersion     string    `json:"schema_version"`
	LastSuccessfulRun time.Time `json:"last_successful_run"`
	LastReportCount   int       `json:"last_report_count,omitempty"`
}

// Store reads and writes the checkpoint file.
type Store struct {
	path string
}

// NewStore creates a store rooted in the given directory.
func NewStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, FileName)}
}

// Path returns the checkpoint file location.
func (s *Store) Path() string {
	return s.path
}

// Read returns the last successful run instant, or nil when no usable
// checkpoint exists. Missing or corrupt state degrades to a first run with a
// warning; only permission problems propagate.
func (s *Store) Read() (*RunState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("path", s.path).Msg("No checkpoint file, treating as first run")
			return nil, nil
		}
		if errors.Is(err, os.ErrPermission) {
			return nil, scanerrors.New(scanerrors.ErrorTypeState, "read_state", "",
				fmt.Errorf("checkpoint file unreadable: %w", err))
		}
		log.Warn().Err(err).Str("path", s.path).Msg("Checkpoint unreadable, treating as first run")
		return nil, nil
	}

	var st RunState
	if err := json.Unmarshal(data, &st); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Checkpoint corrupt, treating as first run")
		return nil, nil
	}
	if st.LastSuccessfulRun.IsZero() {
		log.Warn().Str("path", s.path).Msg("Checkpoint missing last_successful_run, treating as first run")
		return nil, nil
	}

	st.LastSuccessfulRun = st.LastSuccessfulRun.UTC()
	return &st, nil
}

// Write atomically replaces the checkpoint: temp file in the same directory,
// fsync, rename. A partially written file is never observable.
func (s *Store) Write(lastRun time.Time, reportCount int) error {
	st := RunState{
		SchemaVersion:     SchemaVersion,
		LastSuccessfulRun: lastRun.UTC().Truncate(time.Microsecond),
		LastReportCount:   reportCount,
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return scanerrors.New(scanerrors.ErrorTypeState, "write_state", "", err)
	}

	if err := WriteFileAtomic(s.path, data, 0o644); err != nil {
		return scanerrors.New(scanerrors.ErrorTypeState, "write_state", "", err)
	}

	log.Debug().
		Time("lastRun", st.LastSuccessfulRun).
		Int("reportCount", reportCount).
		Msg("Checkpoint advanced")
	return nil
}

// WriteFileAtomic writes data to path via a sibling temp file, fsync, and
// rename. The temp file is removed on any failure path. Shared by the
// checkpoint store, the health file, and the report file channel.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return fmt.Errorf("set temp file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file over %s: %w", path, err)
	}
	return nil
}
