// Package health maintains the liveness file external monitors watch.
package health

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	scanerrors "github.com/unifiscan/unifi-scanner/internal/errors"
	"github.com/unifiscan/unifi-scanner/internal/state"
)

// Status is the daemon's externally visible condition.
type Status string

const (
	StatusStarting  Status = "STARTING"
	StatusHealthy   Status = "HEALTHY"
	StatusUnhealthy Status = "UNHEALTHY"
)

// DefaultPath is where the health file lives unless configured otherwise.
const DefaultPath = "/tmp/unifi-scanner-health"

// record is the persisted health document.
type record struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
}

// Writer maintains the health file.
type Writer struct {
	path string
}

// NewWriter creates a writer for the given path (DefaultPath when empty).
func NewWriter(path string) *Writer {
	if path == "" {
		path = DefaultPath
	}
	return &Writer{path: path}
}

// Path returns the health file location.
func (w *Writer) Path() string {
	return w.path
}

// Set atomically replaces the health file. Failures are logged but returned
// too; callers treat them as non-fatal.
func (w *Writer) Set(status Status, details string) error {
	doc := record{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Details:   details,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return scanerrors.New(scanerrors.ErrorTypeState, "write_health", "", err)
	}
	if err := state.WriteFileAtomic(w.path, data, 0o644); err != nil {
		log.Warn().Err(err).Str("path", w.path).Msg("Health file update failed")
		return scanerrors.New(scanerrors.ErrorTypeState, "write_health", "", err)
	}
	return nil
}
