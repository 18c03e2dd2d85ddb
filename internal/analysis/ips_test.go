package analysis

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiscan/unifi-scanner/internal/models"
)

func ipsEvent(sig string, sid int64, action, src string, severity int) models.IPSEvent {
	return models.IPSEvent{
		ID:          "ips-" + src,
		Time:        time.Now().UTC(),
		SrcIP:       src,
		DstIP:       "192.168.1.10",
		Signature:   sig,
		SignatureID: sid,
		Severity:    severity,
		Action:      action,
	}
}

func TestParseSignature(t *testing.T) {
	p := parseSignature("ET SCAN Nmap Scripting Engine User-Agent Detected")
	assert.Equal(t, "SCAN", p.Category)
	assert.Equal(t, "Nmap Scripting Engine User-Agent Detected", p.Description)

	p = parseSignature("GPL ATTACK_RESPONSE id check returned root")
	assert.Equal(t, "UNKNOWN", p.Category)

	p = parseSignature("")
	assert.Equal(t, "UNKNOWN", p.Category)
}

func TestIPSBlockedActionVariants(t *testing.T) {
	for _, action := range []string{"blocked", "Blocked", "DROP", "reject"} {
		assert.True(t, ipsEvent("ET SCAN x", 1, action, "1.2.3.4", 2).Blocked(), action)
	}
	for _, action := range []string{"detected", "allow", ""} {
		assert.False(t, ipsEvent("ET SCAN x", 1, action, "1.2.3.4", 2).Blocked(), action)
	}
}

func TestCybersecureSIDBoundaries(t *testing.T) {
	cases := []struct {
		sid  int64
		want bool
	}{
		{2_799_999, false},
		{2_800_000, true},
		{2_899_999, true},
		{2_900_000, false},
	}
	for _, tc := range cases {
		evt := ipsEvent("ET MALWARE x", tc.sid, "blocked", "1.2.3.4", 1)
		assert.Equal(t, tc.want, evt.Cybersecure(), "sid %d", tc.sid)
	}
}

func TestAnalyzePartitionsBlockedAndDetected(t *testing.T) {
	a := NewIPSAnalyzer(0)
	events := []models.IPSEvent{
		ipsEvent("ET SCAN Nmap Probe", 2000001, "blocked", "203.0.113.5", 2),
		ipsEvent("ET SCAN Nmap Probe", 2000001, "blocked", "203.0.113.6", 2),
		ipsEvent("ET MALWARE Win32 Beacon", 2850000, "detected", "203.0.113.9", 1),
	}

	result := a.Analyze(events)
	require.Len(t, result.BlockedThreats, 1)
	require.Len(t, result.DetectedThreats, 1)
	assert.Equal(t, 2, result.BlockedCount)
	assert.Equal(t, 1, result.DetectedCount)
	assert.Equal(t, 3, result.TotalEvents)
	assert.Empty(t, result.DetectionModeNote)

	blocked := result.BlockedThreats[0]
	assert.Equal(t, "Reconnaissance", blocked.Category)
	assert.Equal(t, 2, blocked.Count)
	assert.ElementsMatch(t, []string{"203.0.113.5", "203.0.113.6"}, blocked.SourceIPs)

	detected := result.DetectedThreats[0]
	assert.Equal(t, "Malware Activity", detected.Category)
	assert.Equal(t, models.SeveritySevere, detected.Severity)
	assert.Equal(t, 1, detected.CybersecureCount)
	assert.True(t, detected.IsCybersecure())
}

func TestAnalyzeSeverityIsGroupMax(t *testing.T) {
	a := NewIPSAnalyzer(0)
	events := []models.IPSEvent{
		ipsEvent("ET TROJAN Callback", 2010000, "blocked", "203.0.113.1", 3),
		ipsEvent("ET TROJAN Callback", 2010000, "blocked", "203.0.113.2", 1),
	}
	result := a.Analyze(events)
	require.Len(t, result.BlockedThreats, 1)
	assert.Equal(t, models.SeveritySevere, result.BlockedThreats[0].Severity)
	assert.NotEmpty(t, result.BlockedThreats[0].Remediation)
}

func TestAnalyzeLowSeverityGetsNoRemediation(t *testing.T) {
	a := NewIPSAnalyzer(0)
	result := a.Analyze([]models.IPSEvent{
		ipsEvent("ET INFO Session Observed", 2020000, "blocked", "203.0.113.1", 3),
	})
	require.Len(t, result.BlockedThreats, 1)
	assert.Equal(t, models.SeverityLow, result.BlockedThreats[0].Severity)
	assert.Empty(t, result.BlockedThreats[0].Remediation)
}

func TestAnalyzeDetectionModeNote(t *testing.T) {
	a := NewIPSAnalyzer(0)

	result := a.Analyze([]models.IPSEvent{
		ipsEvent("ET SCAN Probe", 2000001, "detected", "203.0.113.5", 2),
		ipsEvent("ET DOS Flood", 2000002, "detected", "203.0.113.6", 2),
	})
	assert.Equal(t, DetectionModeNote, result.DetectionModeNote)

	// A single blocked event anywhere suppresses the note.
	result = a.Analyze([]models.IPSEvent{
		ipsEvent("ET SCAN Probe", 2000001, "detected", "203.0.113.5", 2),
		ipsEvent("ET DOS Flood", 2000002, "drop", "203.0.113.6", 2),
	})
	assert.Empty(t, result.DetectionModeNote)
}

func TestAnalyzeRemediationPlaceholders(t *testing.T) {
	a := NewIPSAnalyzer(0)
	result := a.Analyze([]models.IPSEvent{
		ipsEvent("ET MALWARE Win32 Beacon", 2850000, "blocked", "203.0.113.9", 1),
	})
	require.Len(t, result.BlockedThreats, 1)
	rem := result.BlockedThreats[0].Remediation
	assert.Contains(t, rem, "203.0.113.9")
	assert.Contains(t, rem, "192.168.1.10")
	assert.NotContains(t, rem, "{src_ip}")
	assert.NotContains(t, rem, "{signature}")
}

func TestSourceIPAggregation(t *testing.T) {
	a := NewIPSAnalyzer(10)

	var events []models.IPSEvent
	for i := 0; i < 12; i++ {
		sig := "ET SCAN Sweep"
		if i%3 == 0 {
			sig = fmt.Sprintf("ET DOS Flood %d", i)
		}
		events = append(events, ipsEvent(sig, 2000001, "blocked", "203.0.113.50", 2))
	}
	// below threshold
	for i := 0; i < 9; i++ {
		events = append(events, ipsEvent("ET SCAN Sweep", 2000001, "blocked", "198.51.100.1", 2))
	}
	// internal address above threshold
	for i := 0; i < 10; i++ {
		events = append(events, ipsEvent("ET P2P BitTorrent", 2000003, "detected", "10.0.0.5", 3))
	}

	result := a.Analyze(events)
	require.Len(t, result.TopSourceIPs, 2)

	top := result.TopSourceIPs[0]
	assert.Equal(t, "203.0.113.50", top.IP)
	assert.Equal(t, 12, top.Count)
	assert.False(t, top.Internal)
	assert.LessOrEqual(t, len(top.SampleSignatures), 3)
	assert.Equal(t, 8, top.Categories["Reconnaissance"])
	assert.Equal(t, 4, top.Categories["Denial of Service"])

	internal := result.TopSourceIPs[1]
	assert.Equal(t, "10.0.0.5", internal.IP)
	assert.True(t, internal.Internal)
}

func TestIsInternalIP(t *testing.T) {
	assert.True(t, isInternalIP("10.1.2.3"))
	assert.True(t, isInternalIP("172.16.0.1"))
	assert.True(t, isInternalIP("192.168.1.1"))
	assert.True(t, isInternalIP("fd00::1"))
	assert.False(t, isInternalIP("8.8.8.8"))
	assert.False(t, isInternalIP("2001:db8::1"))
	assert.False(t, isInternalIP("not-an-ip"))
}

func TestAnalyzeEmptyInput(t *testing.T) {
	result := NewIPSAnalyzer(0).Analyze(nil)
	assert.True(t, result.Empty())
	assert.Zero(t, result.TotalEvents)
	assert.Empty(t, result.DetectionModeNote)
}
