// Package collector gathers events, IPS events, and device stats from the
// controller for one tick, applying the collection window with clock-skew
// compensation.
package collector

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unifiscan/unifi-scanner/internal/models"
)

// SkewAllowance is subtracted from the checkpoint on non-first runs so events
// timestamped slightly in the past by a skewed controller clock are not lost.
// Duplicates this admits are absorbed by finding dedup downstream.
const SkewAllowance = 5 * time.Minute

// ControllerAPI is the slice of the controller client the collector needs.
type ControllerAPI interface {
	GetEvents(ctx context.Context, site string) ([]models.Event, int, error)
	GetIPSEvents(ctx context.Context, site string) ([]models.IPSEvent, int, error)
	GetDevices(ctx context.Context, site string) ([]models.DeviceStats, error)
}

// Result is everything one collection pass produced.
type Result struct {
	Events    []models.Event
	IPSEvents []models.IPSEvent
	Devices   []models.DeviceStats

	// Since is the effective window start the filters used.
	Since time.Time

	// ParseFailures counts records the client could not decode. Surfaced in
	// metrics; never fatal.
	ParseFailures int

	// DeviceFetchErr is non-nil when device stats could not be fetched.
	// Device failures are isolated: the tick proceeds without health
	// analysis.
	DeviceFetchErr error
}

// Collector fetches and window-filters controller data.
type Collector struct {
	api      ControllerAPI
	site     string
	lookback time.Duration
	fallback *SSHFallback // nil when not configured
}

// New creates a collector for one site. lookback bounds the first-run window.
func New(api ControllerAPI, site string, lookback time.Duration, fallback *SSHFallback) *Collector {
	if site == "" {
		site = "default"
	}
	return &Collector{api: api, site: site, lookback: lookback, fallback: fallback}
}

// WindowStart computes the effective collection cutoff. On a first run
// (lastRun nil) the window is now-lookback with no skew subtraction; on
// subsequent runs the checkpoint minus the skew allowance.
func (c *Collector) WindowStart(lastRun *time.Time, now time.Time) time.Time {
	if lastRun == nil {
		return now.Add(-c.lookback)
	}
	return lastRun.Add(-SkewAllowance)
}

// Collect performs one full collection pass. Event and IPS fetch failures are
// fatal for the tick; device stat failures are recorded and isolated.
func (c *Collector) Collect(ctx context.Context, lastRun *time.Time) (*Result, error) {
	now := time.Now().UTC()
	since := c.WindowStart(lastRun, now)

	result := &Result{Since: since}

	events, failures, err := c.api.GetEvents(ctx, c.site)
	if err != nil {
		return nil, err
	}
	result.ParseFailures += failures
	result.Events = filterEvents(events, since)

	ipsEvents, failures, err := c.api.GetIPSEvents(ctx, c.site)
	if err != nil {
		return nil, err
	}
	result.ParseFailures += failures
	result.IPSEvents = filterIPSEvents(ipsEvents, since)

	if c.fallback != nil && len(result.IPSEvents) == 0 {
		extra, dropped, err := c.fallback.FetchIPSEvents(ctx, since)
		if err != nil {
			log.Warn().Err(err).Msg("SSH IPS fallback failed, continuing with API data only")
		} else {
			result.IPSEvents = mergeIPSEvents(result.IPSEvents, extra)
			result.ParseFailures += dropped
		}
	}

	devices, err := c.api.GetDevices(ctx, c.site)
	if err != nil {
		log.Warn().Err(err).Str("site", c.site).Msg("Device stats unavailable, skipping health analysis this tick")
		result.DeviceFetchErr = err
	} else {
		result.Devices = devices
	}

	log.Info().
		Str("site", c.site).
		Time("since", since).
		Int("events", len(result.Events)).
		Int("ipsEvents", len(result.IPSEvents)).
		Int("devices", len(result.Devices)).
		Int("parseFailures", result.ParseFailures).
		Msg("Collection pass complete")
	return result, nil
}

// filterEvents keeps events strictly newer than the cutoff.
func filterEvents(events []models.Event, since time.Time) []models.Event {
	out := make([]models.Event, 0, len(events))
	for _, evt := range events {
		if evt.Time.After(since) {
			out = append(out, evt)
		}
	}
	return out
}

func filterIPSEvents(events []models.IPSEvent, since time.Time) []models.IPSEvent {
	out := make([]models.IPSEvent, 0, len(events))
	for _, evt := range events {
		if evt.Time.After(since) {
			out = append(out, evt)
		}
	}
	return out
}

// mergeIPSEvents unions the fallback records with API records by event id.
func mergeIPSEvents(primary, extra []models.IPSEvent) []models.IPSEvent {
	seen := make(map[string]bool, len(primary))
	for _, evt := range primary {
		if evt.ID != "" {
			seen[evt.ID] = true
		}
	}
	out := primary
	for _, evt := range extra {
		if evt.ID != "" && seen[evt.ID] {
			continue
		}
		out = append(out, evt)
	}
	return out
}
