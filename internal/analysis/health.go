package analysis

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unifiscan/unifi-scanner/internal/models"
)

// HealthThresholds carries the warning/critical trip points for each
// dimension. Comparisons are strictly greater-than: a reading exactly at a
// threshold does not trip it.
type HealthThresholds struct {
	TempWarningC  float64
	TempCriticalC float64

	CPUWarningPct  float64
	CPUCriticalPct float64

	MemWarningPct  float64
	MemCriticalPct float64

	UptimeWarningDays  float64
	UptimeCriticalDays float64
}

// DefaultHealthThresholds returns the stock trip points.
func DefaultHealthThresholds() HealthThresholds {
	return HealthThresholds{
		TempWarningC:       80,
		TempCriticalC:      90,
		CPUWarningPct:      80,
		CPUCriticalPct:     95,
		MemWarningPct:      85,
		MemCriticalPct:     95,
		UptimeWarningDays:  90,
		UptimeCriticalDays: 180,
	}
}

// HealthAnalyzer evaluates device stats against thresholds. Each device
// yields at most one finding per dimension; critical supersedes warning.
type HealthAnalyzer struct {
	thresholds HealthThresholds
}

// NewHealthAnalyzer creates an analyzer with the given thresholds.
func NewHealthAnalyzer(thresholds HealthThresholds) *HealthAnalyzer {
	return &HealthAnalyzer{thresholds: thresholds}
}

// dimension checks run in a fixed order so report output is deterministic.
type dimensionCheck struct {
	name     string
	value    func(models.DeviceStats) (float64, bool)
	warning  float64
	critical float64
	unit     string
	title    string
	describe func(name string, value float64) string
}

func (a *HealthAnalyzer) dimensions() []dimensionCheck {
	t := a.thresholds
	return []dimensionCheck{
		{
			name: "temperature",
			value: func(d models.DeviceStats) (float64, bool) {
				if d.TemperatureC == nil {
					return 0, false
				}
				return *d.TemperatureC, true
			},
			warning:  t.TempWarningC,
			critical: t.TempCriticalC,
			unit:     "°C",
			title:    "[Device Health] High Temperature",
			describe: func(name string, v float64) string {
				return fmt.Sprintf("Device %s is running at %.1f°C.", name, v)
			},
		},
		{
			name: "cpu",
			value: func(d models.DeviceStats) (float64, bool) {
				if d.CPUPct == nil {
					return 0, false
				}
				return *d.CPUPct, true
			},
			warning:  t.CPUWarningPct,
			critical: t.CPUCriticalPct,
			unit:     "%",
			title:    "[Device Health] High CPU Load",
			describe: func(name string, v float64) string {
				return fmt.Sprintf("Device %s CPU utilization is at %.1f%%.", name, v)
			},
		},
		{
			name: "memory",
			value: func(d models.DeviceStats) (float64, bool) {
				if d.MemPct == nil {
					return 0, false
				}
				return *d.MemPct, true
			},
			warning:  t.MemWarningPct,
			critical: t.MemCriticalPct,
			unit:     "%",
			title:    "[Device Health] High Memory Usage",
			describe: func(name string, v float64) string {
				return fmt.Sprintf("Device %s memory utilization is at %.1f%%.", name, v)
			},
		},
		{
			name: "uptime",
			value: func(d models.DeviceStats) (float64, bool) {
				if d.UptimeSeconds == nil {
					return 0, false
				}
				return d.UptimeDays(), true
			},
			warning:  t.UptimeWarningDays,
			critical: t.UptimeCriticalDays,
			unit:     " days",
			title:    "[Device Health] Extended Uptime",
			describe: func(name string, v float64) string {
				return fmt.Sprintf("Device %s has been up for %.0f days without a restart.", name, v)
			},
		},
	}
}

// Analyze evaluates every device and returns findings plus per-device
// summaries. Devices with no samples at all are summarized as healthy.
func (a *HealthAnalyzer) Analyze(devices []models.DeviceStats, at time.Time) *models.DeviceHealthResult {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	result := &models.DeviceHealthResult{}
	checks := a.dimensions()

	for _, dev := range devices {
		status := models.HealthStatusHealthy
		name := dev.Name
		if name == "" {
			name = dev.MAC
		}

		for _, check := range checks {
			value, ok := check.value(dev)
			if !ok {
				continue
			}
			switch {
			case value > check.critical:
				result.Critical = append(result.Critical, a.finding(dev, name, check, value, models.SeveritySevere, at))
				status = models.HealthStatusCritical
			case value > check.warning:
				result.Warnings = append(result.Warnings, a.finding(dev, name, check, value, models.SeverityMedium, at))
				if status != models.HealthStatusCritical {
					status = models.HealthStatusWarning
				}
			}
		}

		result.Summaries = append(result.Summaries, models.DeviceHealthSummary{
			MAC:    dev.MAC,
			Name:   name,
			Type:   dev.Type,
			Status: status,
		})
	}
	return result
}

func (a *HealthAnalyzer) finding(dev models.DeviceStats, name string, check dimensionCheck, value float64, severity models.Severity, at time.Time) models.Finding {
	threshold := check.warning
	if severity == models.SeveritySevere {
		threshold = check.critical
	}

	f := models.Finding{
		ID:              uuid.NewString(),
		Severity:        severity,
		Category:        models.CategoryDeviceHealth,
		Title:           check.title,
		Description:     check.describe(name, value) + fmt.Sprintf(" (HEALTH_%s)", eventKeySuffix(check.name)),
		OccurrenceCount: 1,
		FirstSeen:       at,
		LastSeen:        at,
		EventType:       "HEALTH_" + eventKeySuffix(check.name),
		DeviceMAC:       dev.MAC,
	}
	f.Remediation = healthRemediation(check.name, severity, map[string]string{
		"device_name": name,
		"current":     fmt.Sprintf("%.1f%s", value, check.unit),
		"threshold":   fmt.Sprintf("%.0f%s", threshold, check.unit),
	})
	return f
}

func eventKeySuffix(dimension string) string {
	switch dimension {
	case "temperature":
		return "Temperature"
	case "cpu":
		return "CpuLoad"
	case "memory":
		return "MemoryUsage"
	case "uptime":
		return "Uptime"
	}
	return "Unknown"
}

// healthRemediation returns remediation text: numbered steps for severe,
// a short paragraph for medium.
func healthRemediation(dimension string, severity models.Severity, vars map[string]string) string {
	var tmpl string
	switch dimension {
	case "temperature":
		if severity == models.SeveritySevere {
			tmpl = "1. Check airflow around {device_name} immediately; {current} exceeds the safe limit of {threshold}.\n" +
				"2. Clear dust from vents and confirm any fans are spinning.\n" +
				"3. If the reading does not drop, power the device down before it throttles or fails."
		} else {
			tmpl = "{device_name} is at {current}, above the {threshold} comfort threshold. Improve ventilation around the device and recheck after the next poll."
		}
	case "cpu":
		if severity == models.SeveritySevere {
			tmpl = "1. Identify what is loading {device_name}; {current} is above the {threshold} critical mark.\n" +
				"2. Disable heavy inspection features (DPI, IPS) temporarily if enabled on an undersized device.\n" +
				"3. If load does not subside, schedule a restart during a maintenance window."
		} else {
			tmpl = "{device_name} CPU is at {current}, above the {threshold} warning level. Review client load and enabled features before it becomes service-affecting."
		}
	case "memory":
		if severity == models.SeveritySevere {
			tmpl = "1. {device_name} memory is at {current}, past the {threshold} critical mark; the device may reboot on its own.\n" +
				"2. Schedule a controlled restart now rather than waiting for an uncontrolled one.\n" +
				"3. After restart, watch whether usage climbs back, which would suggest a firmware leak."
		} else {
			tmpl = "{device_name} memory is at {current}, above the {threshold} warning level. Plan a restart during the next maintenance window."
		}
	case "uptime":
		if severity == models.SeveritySevere {
			tmpl = "1. {device_name} has been up {current}, past the {threshold} mark, and is likely running old firmware.\n" +
				"2. Check for pending firmware updates.\n" +
				"3. Schedule a restart; very long uptimes correlate with memory fragmentation and missed security fixes."
		} else {
			tmpl = "{device_name} has been up {current}, beyond the {threshold} guideline. Schedule a restart and apply any pending firmware updates."
		}
	}
	return renderTemplate(tmpl, vars)
}
