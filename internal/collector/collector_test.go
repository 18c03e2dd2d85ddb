package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiscan/unifi-scanner/internal/models"
)

type fakeAPI struct {
	events    []models.Event
	ipsEvents []models.IPSEvent
	devices   []models.DeviceStats

	eventsErr  error
	ipsErr     error
	devicesErr error

	parseFailures int
}

func (f *fakeAPI) GetEvents(ctx context.Context, site string) ([]models.Event, int, error) {
	return f.events, f.parseFailures, f.eventsErr
}

func (f *fakeAPI) GetIPSEvents(ctx context.Context, site string) ([]models.IPSEvent, int, error) {
	return f.ipsEvents, 0, f.ipsErr
}

func (f *fakeAPI) GetDevices(ctx context.Context, site string) ([]models.DeviceStats, error) {
	return f.devices, f.devicesErr
}

func TestWindowStartFirstRun(t *testing.T) {
	c := New(&fakeAPI{}, "default", 24*time.Hour, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	since := c.WindowStart(nil, now)
	// First run: no skew subtraction.
	assert.Equal(t, now.Add(-24*time.Hour), since)
}

func TestWindowStartSubsequentRunSubtractsSkew(t *testing.T) {
	c := New(&fakeAPI{}, "default", 24*time.Hour, nil)
	last := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	since := c.WindowStart(&last, last.Add(time.Hour))
	assert.Equal(t, last.Add(-5*time.Minute), since)
}

func TestCollectSkewBoundary(t *testing.T) {
	last := time.Now().UTC().Add(-time.Hour)
	api := &fakeAPI{
		events: []models.Event{
			{Type: "EVT_A", Time: last.Add(-4*time.Minute - 59*time.Second)}, // inside allowance
			{Type: "EVT_B", Time: last.Add(-5*time.Minute - time.Second)},    // outside
			{Type: "EVT_C", Time: last.Add(-5 * time.Minute)},                // exactly at cutoff: excluded
		},
	}
	c := New(api, "default", 24*time.Hour, nil)

	result, err := c.Collect(context.Background(), &last)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "EVT_A", result.Events[0].Type)
}

func TestCollectEventFetchFailureIsFatal(t *testing.T) {
	api := &fakeAPI{eventsErr: errors.New("boom")}
	c := New(api, "default", 24*time.Hour, nil)

	_, err := c.Collect(context.Background(), nil)
	assert.Error(t, err)
}

func TestCollectDeviceFailureIsIsolated(t *testing.T) {
	now := time.Now().UTC()
	api := &fakeAPI{
		events:     []models.Event{{Type: "EVT_A", Time: now}},
		devicesErr: errors.New("stat endpoint unavailable"),
	}
	c := New(api, "default", 24*time.Hour, nil)

	result, err := c.Collect(context.Background(), nil)
	require.NoError(t, err)
	assert.Error(t, result.DeviceFetchErr)
	assert.Empty(t, result.Devices)
	assert.Len(t, result.Events, 1)
}

func TestCollectParseFailuresSurface(t *testing.T) {
	api := &fakeAPI{parseFailures: 3}
	c := New(api, "default", 24*time.Hour, nil)

	result, err := c.Collect(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.ParseFailures)
}

func TestMergeIPSEventsDeduplicatesByID(t *testing.T) {
	a := []models.IPSEvent{{ID: "x"}, {ID: "y"}}
	b := []models.IPSEvent{{ID: "y"}, {ID: "z"}}

	merged := mergeIPSEvents(a, b)
	require.Len(t, merged, 3)
}

func TestParseEVE(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	data := []byte(`
{"timestamp":"2026-03-01T10:00:00.000000+0000","event_type":"alert","src_ip":"203.0.113.5","dest_ip":"192.168.1.10","proto":"TCP","alert":{"action":"blocked","signature_id":2850001,"signature":"ET MALWARE Beacon","category":"Malware","severity":1}}
{"timestamp":"2026-03-01T10:00:01.000000+0000","event_type":"flow","src_ip":"1.2.3.4","dest_ip":"5.6.7.8"}
{"timestamp":"2026-03-01T10:00:02.000000+0000","event_type":"alert","src_ip":"","dest_ip":"192.168.1.10","alert":{"signature":"ET SCAN Probe"}}
{"timestamp":"2025-12-01T10:00:00.000000+0000","event_type":"alert","src_ip":"203.0.113.5","dest_ip":"192.168.1.10","alert":{"signature":"ET SCAN Old"}}
not json at all
`)

	events, dropped := parseEVE(data, since)
	require.Len(t, events, 1)
	assert.Equal(t, "ET MALWARE Beacon", events[0].Signature)
	assert.Equal(t, "203.0.113.5", events[0].SrcIP)
	assert.True(t, events[0].Blocked())
	assert.True(t, events[0].Cybersecure())
	// one missing src_ip, one unparsable line; flow and stale records are
	// skipped silently
	assert.Equal(t, 2, dropped)
}

func TestParseEVETimeFormats(t *testing.T) {
	for _, s := range []string{
		"2026-03-01T10:00:00.123456+0000",
		"2026-03-01T10:00:00Z",
		"2026-03-01T10:00:00.5+01:00",
	} {
		_, err := parseEVETime(s)
		assert.NoError(t, err, s)
	}
	_, err := parseEVETime("yesterday")
	assert.Error(t, err)
}
