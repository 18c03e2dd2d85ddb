package health

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterSetAndTransition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "health")
	w := NewWriter(path)

	require.NoError(t, w.Set(StatusStarting, ""))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
		Details   string    `json:"details"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "STARTING", doc.Status)
	assert.WithinDuration(t, time.Now(), doc.Timestamp, time.Minute)

	require.NoError(t, w.Set(StatusUnhealthy, "controller unreachable"))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "UNHEALTHY", doc.Status)
	assert.Equal(t, "controller unreachable", doc.Details)
}

func TestWriterDefaultPath(t *testing.T) {
	w := NewWriter("")
	assert.Equal(t, DefaultPath, w.Path())
}
