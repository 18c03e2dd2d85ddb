package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiscan/unifi-scanner/internal/models"
)

func TestEngineAnalyzeKnownEvent(t *testing.T) {
	engine := NewEngine(nil)
	event := models.Event{
		Type:      "EVT_AD_LoginFailed",
		Time:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		DeviceMAC: "",
		Raw: map[string]interface{}{
			"_id":    "abc123",
			"user":   "admin",
			"src_ip": "203.0.113.7",
		},
	}

	findings := engine.Analyze(event)
	require.Len(t, findings, 1)

	f := findings[0]
	assert.Equal(t, models.SeveritySevere, f.Severity)
	assert.Equal(t, models.CategorySecurity, f.Category)
	assert.Equal(t, "[Security] Failed Admin Login Attempt", f.Title)
	assert.Contains(t, f.Description, "admin")
	assert.Contains(t, f.Description, "203.0.113.7")
	assert.Contains(t, f.Description, "(EVT_AD_LoginFailed)")
	assert.NotEmpty(t, f.Remediation)
	assert.Equal(t, []string{"abc123"}, f.SourceEventIDs)
	assert.Equal(t, 1, f.OccurrenceCount)
	assert.NotEmpty(t, f.ID)
}

func TestEngineAnalyzeUnknownEventCountsWithoutFinding(t *testing.T) {
	engine := NewEngine(nil)

	findings := engine.Analyze(models.Event{Type: "EVT_XX_NeverSeen", Time: time.Now()})
	assert.Empty(t, findings)
	findings = engine.Analyze(models.Event{Type: "EVT_XX_NeverSeen", Time: time.Now()})
	assert.Empty(t, findings)

	assert.Equal(t, map[string]int{"EVT_XX_NeverSeen": 2}, engine.UnknownTypes())

	engine.ResetCounters()
	assert.Empty(t, engine.UnknownTypes())
}

func TestEngineMissingPlaceholdersRenderUnknown(t *testing.T) {
	engine := NewEngine(nil)
	findings := engine.Analyze(models.Event{
		Type: "EVT_AD_LoginFailed",
		Time: time.Now(),
	})
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Description, "Unknown")
}

func TestEngineDeviceNameFallsBackToMAC(t *testing.T) {
	engine := NewEngine(nil)
	findings := engine.Analyze(models.Event{
		Type:      "EVT_AP_Lost_Contact",
		Time:      time.Now(),
		DeviceMAC: "aa:bb:cc:dd:ee:ff",
	})
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Description, "aa:bb:cc:dd:ee:ff")
}

func TestDefaultRulesConventions(t *testing.T) {
	for _, rule := range DefaultRules() {
		assert.Regexp(t, `^\[[A-Za-z ]+\]`, rule.Title, "title must start with bracketed category: %s", rule.Title)
		assert.Regexp(t, `\(\{event_type\}\)$`, rule.Description, "description must end with event key: %s", rule.Title)

		switch rule.Severity {
		case models.SeveritySevere, models.SeverityMedium:
			assert.NotEmpty(t, rule.Remediation, "severe/medium rule needs remediation: %s", rule.Title)
		case models.SeverityLow:
			assert.Empty(t, rule.Remediation, "low rule must not carry remediation: %s", rule.Title)
		}
	}
}
