// Package analysis turns raw controller events into categorized findings:
// rule dispatch, IPS signature classification, device health thresholds, and
// time-windowed deduplication.
package analysis

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/unifiscan/unifi-scanner/internal/models"
)

// Engine dispatches events to rules and renders findings.
type Engine struct {
	registry *Registry

	// unknownTypes counts events that matched no rule, per type, per run.
	unknownTypes map[string]int
}

// NewEngine creates an engine over the given registry (DefaultRules when nil).
func NewEngine(registry *Registry) *Engine {
	if registry == nil {
		registry = NewRegistry(DefaultRules())
	}
	return &Engine{
		registry:     registry,
		unknownTypes: make(map[string]int),
	}
}

// Analyze produces findings for one event. An event matching no rule is not
// an error; it increments the unknown-type counter and yields nothing.
func (e *Engine) Analyze(event models.Event) []models.Finding {
	rules := e.registry.Lookup(event.Type)
	if len(rules) == 0 {
		e.unknownTypes[event.Type]++
		return nil
	}

	vars := templateVars(event)
	findings := make([]models.Finding, 0, len(rules))
	for _, rule := range rules {
		finding := models.Finding{
			ID:              uuid.NewString(),
			Severity:        rule.Severity,
			Category:        rule.Category,
			Title:           renderTemplate(rule.Title, vars),
			Description:     renderTemplate(rule.Description, vars),
			OccurrenceCount: 1,
			FirstSeen:       event.Time,
			LastSeen:        event.Time,
			EventType:       event.Type,
			DeviceMAC:       event.DeviceMAC,
		}
		if rule.Remediation != "" {
			finding.Remediation = renderTemplate(rule.Remediation, vars)
		}
		if id := eventID(event); id != "" {
			finding.SourceEventIDs = []string{id}
		}
		findings = append(findings, finding)
	}
	return findings
}

// UnknownTypes returns the per-run counter of unmatched event types.
func (e *Engine) UnknownTypes() map[string]int {
	return e.unknownTypes
}

// ResetCounters clears per-run state between ticks.
func (e *Engine) ResetCounters() {
	if len(e.unknownTypes) > 0 {
		log.Debug().Interface("unknownTypes", e.unknownTypes).Msg("Clearing unknown event type counters")
	}
	e.unknownTypes = make(map[string]int)
}

// templateVars flattens the event into the placeholder namespace the rule
// templates draw from.
func templateVars(event models.Event) map[string]string {
	vars := map[string]string{
		"event_type":  event.Type,
		"device_name": event.DeviceName,
		"device_mac":  event.DeviceMAC,
		"message":     event.Message,
	}
	// Promote commonly templated raw attributes
	for _, key := range []string{"user", "src_ip", "hostname", "port", "ssid", "channel"} {
		if v, ok := event.Raw[key]; ok {
			vars[key] = rawString(v)
		}
	}
	if vars["device_name"] == "" {
		vars["device_name"] = event.DeviceMAC
	}
	return vars
}

func rawString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		return ""
	}
}

func eventID(event models.Event) string {
	if v, ok := event.Raw["_id"]; ok {
		return rawString(v)
	}
	return ""
}
