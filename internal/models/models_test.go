package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityRankOrdering(t *testing.T) {
	assert.Greater(t, SeveritySevere.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Greater(t, SeverityLow.Rank(), Severity("bogus").Rank())
}

func TestIPSEventBlocked(t *testing.T) {
	cases := map[string]bool{
		"blocked":  true,
		"Blocked":  true,
		"BLOCKED":  true,
		"drop":     true,
		"DROP":     true,
		"reject":   true,
		"Reject":   true,
		"detected": false,
		"allow":    false,
		"":         false,
	}
	for action, want := range cases {
		assert.Equal(t, want, IPSEvent{Action: action}.Blocked(), "action=%q", action)
	}
}

func TestFindingRecurringThreshold(t *testing.T) {
	assert.False(t, Finding{OccurrenceCount: 4}.Recurring())
	assert.True(t, Finding{OccurrenceCount: 5}.Recurring())
	assert.True(t, Finding{OccurrenceCount: 50}.Recurring())
}

func TestDeviceStatsUptimeDays(t *testing.T) {
	assert.Zero(t, DeviceStats{}.UptimeDays())

	secs := int64(86400 * 3)
	assert.InDelta(t, 3.0, DeviceStats{UptimeSeconds: &secs}.UptimeDays(), 0.001)
}

func TestReportSeverityCounts(t *testing.T) {
	r := Report{Findings: []Finding{
		{Severity: SeveritySevere},
		{Severity: SeveritySevere},
		{Severity: SeverityMedium},
		{Severity: SeverityLow},
	}}
	assert.Equal(t, 2, r.SevereCount())
	assert.Equal(t, 1, r.MediumCount())
	assert.Equal(t, 1, r.LowCount())
}

func TestReportEmpty(t *testing.T) {
	assert.True(t, Report{}.Empty())
	assert.False(t, Report{Findings: []Finding{{}}}.Empty())
	assert.False(t, Report{IPSAnalysis: &ThreatAnalysisResult{
		BlockedThreats: []ThreatSummary{{}},
	}}.Empty())
	assert.False(t, Report{HealthAnalysis: &DeviceHealthResult{
		Summaries: []DeviceHealthSummary{{}},
	}}.Empty())

	// Analysis results with no content do not make a report non-empty.
	assert.True(t, Report{
		IPSAnalysis:    &ThreatAnalysisResult{TotalEvents: 0},
		HealthAnalysis: &DeviceHealthResult{},
	}.Empty())
}
