package delivery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiscan/unifi-scanner/internal/metrics"
	"github.com/unifiscan/unifi-scanner/internal/models"
)

type stubChannel struct {
	name  string
	err   error
	calls int
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Deliver(ctx context.Context, r Rendered) error {
	s.calls++
	return s.err
}

func testRendered() Rendered {
	return Rendered{
		Report: models.Report{
			ID:          "r1",
			GeneratedAt: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
			Site:        "Home Office",
		},
		HTML: "<html>report</html>",
		Text: "report",
	}
}

func TestManagerAllSucceed(t *testing.T) {
	a := &stubChannel{name: "a"}
	b := &stubChannel{name: "b"}
	m := NewManager(a, b)

	require.NoError(t, m.Deliver(context.Background(), testRendered()))
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestManagerPartialFailureStillSucceeds(t *testing.T) {
	a := &stubChannel{name: "a", err: errors.New("smtp down")}
	b := &stubChannel{name: "b"}
	m := NewManager(a, b)

	// One success is enough for the checkpoint to advance.
	require.NoError(t, m.Deliver(context.Background(), testRendered()))
}

func TestManagerAllFailReturnsLastError(t *testing.T) {
	first := errors.New("first failure")
	last := errors.New("last failure")
	m := NewManager(&stubChannel{name: "a", err: first}, &stubChannel{name: "b", err: last})

	err := m.Deliver(context.Background(), testRendered())
	require.Error(t, err)
	assert.ErrorIs(t, err, last)
}

func TestManagerFailureDoesNotSkipLaterChannels(t *testing.T) {
	a := &stubChannel{name: "a", err: errors.New("boom")}
	b := &stubChannel{name: "b"}
	m := NewManager(a, b)

	_ = m.Deliver(context.Background(), testRendered())
	assert.Equal(t, 1, b.calls, "later channels must still run")
}

func TestManagerCountsChannelFailures(t *testing.T) {
	flakyBefore := testutil.ToFloat64(metrics.DeliveryFailures.WithLabelValues("flaky"))
	steadyBefore := testutil.ToFloat64(metrics.DeliveryFailures.WithLabelValues("steady"))

	m := NewManager(
		&stubChannel{name: "flaky", err: errors.New("smtp down")},
		&stubChannel{name: "steady"},
	)
	require.NoError(t, m.Deliver(context.Background(), testRendered()))

	assert.Equal(t, flakyBefore+1, testutil.ToFloat64(metrics.DeliveryFailures.WithLabelValues("flaky")))
	assert.Equal(t, steadyBefore, testutil.ToFloat64(metrics.DeliveryFailures.WithLabelValues("steady")))
}

func TestManagerNoChannels(t *testing.T) {
	m := NewManager()
	assert.Error(t, m.Deliver(context.Background(), testRendered()))
}

func TestFileChannelWritesBothRenditions(t *testing.T) {
	dir := t.TempDir()
	ch := NewFileChannel(dir)

	require.NoError(t, ch.Deliver(context.Background(), testRendered()))

	htmlPath := filepath.Join(dir, "20260301-103000-home-office.html")
	textPath := filepath.Join(dir, "20260301-103000-home-office.txt")

	html, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Equal(t, "<html>report</html>", string(html))

	text, err := os.ReadFile(textPath)
	require.NoError(t, err)
	assert.Equal(t, "report", string(text))
}

func TestFileChannelCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "reports")
	ch := NewFileChannel(dir)

	require.NoError(t, ch.Deliver(context.Background(), testRendered()))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "default", slugify("default"))
	assert.Equal(t, "home-office", slugify("Home Office"))
	assert.Equal(t, "site-2", slugify("  Site #2! "))
	assert.Equal(t, "site", slugify(""))
	assert.Equal(t, "site", slugify("///"))
}
