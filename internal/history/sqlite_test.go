package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiscan/unifi-scanner/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleReport(at time.Time, findings ...models.Finding) models.Report {
	return models.Report{
		ID:          "report-1",
		GeneratedAt: at,
		PeriodStart: at.Add(-time.Hour),
		PeriodEnd:   at,
		Site:        "default",
		Findings:    findings,
	}
}

func sampleFinding(id string, lastSeen time.Time) models.Finding {
	return models.Finding{
		ID:              id,
		Severity:        models.SeveritySevere,
		Category:        models.CategoryConnectivity,
		Title:           "[Connectivity] Access Point Offline",
		Description:     "AP went dark. (EVT_AP_Lost_Contact)",
		Remediation:     "Check power.",
		SourceEventIDs:  []string{"e1", "e2"},
		OccurrenceCount: 2,
		FirstSeen:       lastSeen.Add(-10 * time.Minute),
		LastSeen:        lastSeen,
		EventType:       "EVT_AP_Lost_Contact",
		DeviceMAC:       "aa:bb:cc:dd:ee:ff",
	}
}

func TestRecordAndLoadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	f := sampleFinding("f1", now)
	require.NoError(t, store.RecordReport(ctx, sampleReport(now, f)))

	loaded, err := store.RecentFindings(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	got := loaded[0]
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, f.EventType, got.EventType)
	assert.Equal(t, f.DeviceMAC, got.DeviceMAC)
	assert.Equal(t, f.Severity, got.Severity)
	assert.Equal(t, f.Category, got.Category)
	assert.Equal(t, f.OccurrenceCount, got.OccurrenceCount)
	assert.Equal(t, f.SourceEventIDs, got.SourceEventIDs)
	assert.True(t, f.LastSeen.Equal(got.LastSeen))
}

func TestRecentFindingsNewestPerIdentity(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	older := sampleFinding("f-old", now.Add(-30*time.Minute))
	newer := sampleFinding("f-new", now)
	newer.OccurrenceCount = 5
	require.NoError(t, store.RecordReport(ctx, sampleReport(now, older, newer)))

	loaded, err := store.RecentFindings(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, loaded, 1, "one row per dedup identity")
	assert.Equal(t, "f-new", loaded[0].ID)
	assert.Equal(t, 5, loaded[0].OccurrenceCount)
}

func TestRecentFindingsCutoff(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	stale := sampleFinding("f-stale", now.Add(-2*time.Hour))
	require.NoError(t, store.RecordReport(ctx, sampleReport(now, stale)))

	loaded, err := store.RecentFindings(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestRecordReportUpsertsFinding(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	f := sampleFinding("f1", now.Add(-20*time.Minute))
	require.NoError(t, store.RecordReport(ctx, sampleReport(now.Add(-20*time.Minute), f)))

	f.OccurrenceCount = 7
	f.LastSeen = now
	require.NoError(t, store.RecordReport(ctx, sampleReport(now, f)))

	loaded, err := store.RecentFindings(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 7, loaded[0].OccurrenceCount)
}

func TestPruneRemovesOldRows(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	old := sampleFinding("f-old", now.Add(-40*24*time.Hour))
	fresh := sampleFinding("f-fresh", now)
	fresh.DeviceMAC = "11:22:33:44:55:66"
	require.NoError(t, store.RecordReport(ctx, sampleReport(now, old, fresh)))

	require.NoError(t, store.Prune(ctx, DefaultRetention))

	loaded, err := store.RecentFindings(ctx, now.Add(-60*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "f-fresh", loaded[0].ID)
}
