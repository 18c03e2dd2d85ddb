// Package models holds the value types flowing through the scanner pipeline.
// Derived properties (Blocked, Cybersecure, Recurring, UptimeDays) are
// accessor methods, never stored fields.
package models

import (
	"time"
)

// Severity levels for findings, ordered from least to most urgent.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeveritySevere Severity = "severe"
)

// severityRank is used for report ordering.
func (s Severity) Rank() int {
	switch s {
	case SeveritySevere:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Category classifies what a finding is about.
type Category string

const (
	CategorySecurity      Category = "security"
	CategoryConnectivity  Category = "connectivity"
	CategoryPerformance   Category = "performance"
	CategorySystem        Category = "system"
	CategoryDeviceHealth  Category = "device_health"
	CategoryUncategorized Category = "uncategorized"
)

// Event is a generic controller log record.
type Event struct {
	Type       string                 `json:"type"`
	Time       time.Time              `json:"time"`
	DeviceMAC  string                 `json:"device_mac,omitempty"`
	DeviceName string                 `json:"device_name,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Raw        map[string]interface{} `json:"raw,omitempty"`
}

// IPSEvent is an intrusion detection record.
type IPSEvent struct {
	ID          string    `json:"id"`
	Time        time.Time `json:"time"`
	SrcIP       string    `json:"src_ip"`
	SrcPort     int       `json:"src_port,omitempty"`
	DstIP       string    `json:"dest_ip"`
	DstPort     int       `json:"dest_port,omitempty"`
	Proto       string    `json:"proto,omitempty"`
	Signature   string    `json:"signature"`
	SignatureID int64     `json:"signature_id"`
	Category    string    `json:"category,omitempty"`
	Severity    int       `json:"severity"` // 1=high, 2=medium, 3=low
	Action      string    `json:"action"`
}

// ET Pro (CyberSecure) SID range.
const (
	cybersecureSIDMin = 2_800_000
	cybersecureSIDMax = 2_899_999
)

// Blocked reports whether the controller actually stopped the traffic.
func (e IPSEvent) Blocked() bool {
	switch normalizeAction(e.Action) {
	case "blocked", "drop", "reject":
		return true
	}
	return false
}

// Cybersecure reports whether the signature belongs to the ET Pro ruleset.
// Attribution is purely a function of signature id.
func (e IPSEvent) Cybersecure() bool {
	return e.SignatureID >= cybersecureSIDMin && e.SignatureID <= cybersecureSIDMax
}

func normalizeAction(action string) string {
	b := make([]byte, 0, len(action))
	for i := 0; i < len(action); i++ {
		c := action[i]
		if c >= 'A' && c <= 'Z' {
			c += 32
		}
		b = append(b, c)
	}
	return string(b)
}

// Finding is the scanner's output atom.
type Finding struct {
	ID              string    `json:"id"`
	Severity        Severity  `json:"severity"`
	Category        Category  `json:"category"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Remediation     string    `json:"remediation,omitempty"`
	SourceEventIDs  []string  `json:"source_event_ids,omitempty"`
	OccurrenceCount int       `json:"occurrence_count"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`

	// EventType and DeviceMAC form the dedup identity.
	EventType string `json:"event_type"`
	DeviceMAC string `json:"device_mac,omitempty"`
}

// recurringThreshold is the occurrence count at which a finding is tagged
// as recurring. A display tag only, never a severity escalation.
const recurringThreshold = 5

// Recurring reports whether the finding repeated enough to be tagged.
func (f Finding) Recurring() bool {
	return f.OccurrenceCount >= recurringThreshold
}

// DeviceType classifies a managed device.
type DeviceType string

const (
	DeviceTypeAP      DeviceType = "ap"
	DeviceTypeSwitch  DeviceType = "switch"
	DeviceTypeGateway DeviceType = "gateway"
	DeviceTypeUDM     DeviceType = "udm"
	DeviceTypeUnknown DeviceType = "unknown"
)

// DeviceStats is a point-in-time health sample for one device.
type DeviceStats struct {
	MAC           string     `json:"mac"`
	Name          string     `json:"name"`
	Model         string     `json:"model,omitempty"`
	Type          DeviceType `json:"type"`
	CPUPct        *float64   `json:"cpu_pct,omitempty"`
	MemPct        *float64   `json:"mem_pct,omitempty"`
	UptimeSeconds *int64     `json:"uptime_seconds,omitempty"`
	TemperatureC  *float64   `json:"temperature_c,omitempty"`
	PoEBudgetW    *float64   `json:"poe_budget_w,omitempty"`
	PoEUsedW      *float64   `json:"poe_used_w,omitempty"`
	State         string     `json:"state,omitempty"`
	LastSeen      time.Time  `json:"last_seen"`
}

// UptimeDays converts the raw uptime to days. Returns 0 when unknown.
func (d DeviceStats) UptimeDays() float64 {
	if d.UptimeSeconds == nil {
		return 0
	}
	return float64(*d.UptimeSeconds) / 86400
}

// ThreatSummary aggregates IPS events sharing one signature.
type ThreatSummary struct {
	Category         string   `json:"category"`
	Description      string   `json:"description"`
	Count            int      `json:"count"`
	Severity         Severity `json:"severity"`
	SampleSignature  string   `json:"sample_signature"`
	SourceIPs        []string `json:"source_ips"`
	Remediation      string   `json:"remediation,omitempty"`
	CybersecureCount int      `json:"cybersecure_count"`
}

// IsCybersecure reports whether any constituent event came from the ET Pro
// ruleset.
func (t ThreatSummary) IsCybersecure() bool {
	return t.CybersecureCount > 0
}

// SourceIPActivity describes one noisy source IP.
type SourceIPActivity struct {
	IP               string         `json:"ip"`
	Count            int            `json:"count"`
	Categories       map[string]int `json:"categories"`
	SampleSignatures []string       `json:"sample_signatures"`
	Internal         bool           `json:"internal"`
}

// ThreatAnalysisResult is the IPS analyzer's output.
type ThreatAnalysisResult struct {
	BlockedThreats    []ThreatSummary    `json:"blocked_threats"`
	DetectedThreats   []ThreatSummary    `json:"detected_threats"`
	TopSourceIPs      []SourceIPActivity `json:"top_source_ips,omitempty"`
	DetectionModeNote string             `json:"detection_mode_note,omitempty"`
	TotalEvents       int                `json:"total_events"`
	BlockedCount      int                `json:"blocked_count"`
	DetectedCount     int                `json:"detected_count"`
}

// Empty reports whether the analysis found nothing worth rendering.
func (t *ThreatAnalysisResult) Empty() bool {
	return t == nil || (len(t.BlockedThreats) == 0 && len(t.DetectedThreats) == 0)
}

// DeviceHealthStatus summarizes one device's overall condition.
type DeviceHealthStatus string

const (
	HealthStatusHealthy  DeviceHealthStatus = "healthy"
	HealthStatusWarning  DeviceHealthStatus = "warning"
	HealthStatusCritical DeviceHealthStatus = "critical"
)

// DeviceHealthSummary is the per-device rollup for the report.
type DeviceHealthSummary struct {
	MAC    string             `json:"mac"`
	Name   string             `json:"name"`
	Type   DeviceType         `json:"type"`
	Status DeviceHealthStatus `json:"status"`
}

// DeviceHealthResult is the health analyzer's output.
type DeviceHealthResult struct {
	Critical  []Finding             `json:"critical"`
	Warnings  []Finding             `json:"warnings"`
	Summaries []DeviceHealthSummary `json:"summaries"`
}

// Empty reports whether there is neither a finding nor a summary to render.
func (r *DeviceHealthResult) Empty() bool {
	return r == nil || (len(r.Critical) == 0 && len(r.Warnings) == 0 && len(r.Summaries) == 0)
}

// Report is the root output of one scanner tick.
type Report struct {
	ID             string                `json:"id"`
	GeneratedAt    time.Time             `json:"generated_at"`
	PeriodStart    time.Time             `json:"period_start"`
	PeriodEnd      time.Time             `json:"period_end"`
	Site           string                `json:"site"`
	ControllerType string                `json:"controller_type"`
	Findings       []Finding             `json:"findings"`
	IPSAnalysis    *ThreatAnalysisResult `json:"ips_analysis,omitempty"`
	HealthAnalysis *DeviceHealthResult   `json:"health_analysis,omitempty"`
	EventCount     int                   `json:"event_count"`
	IPSEventCount  int                   `json:"ips_event_count"`
}

// SevereCount returns the number of severe findings.
func (r Report) SevereCount() int { return r.countSeverity(SeveritySevere) }

// MediumCount returns the number of medium findings.
func (r Report) MediumCount() int { return r.countSeverity(SeverityMedium) }

// LowCount returns the number of low findings.
func (r Report) LowCount() int { return r.countSeverity(SeverityLow) }

func (r Report) countSeverity(s Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == s {
			n++
		}
	}
	return n
}

// Empty reports whether the report carries no findings and no analysis
// content. Empty reports are still delivered as the daemon's liveness
// confirmation.
func (r Report) Empty() bool {
	return len(r.Findings) == 0 && r.IPSAnalysis.Empty() && r.HealthAnalysis.Empty()
}
