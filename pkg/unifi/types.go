package unifi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/unifiscan/unifi-scanner/internal/models"
)

// ControllerType identifies the controller flavour, which determines the
// endpoint layout.
type ControllerType string

const (
	// ControllerUDMLike covers UDM/UDM-Pro/UDR style gateways (port 443).
	ControllerUDMLike ControllerType = "udm_like"
	// ControllerSelfHosted covers the classic self-hosted controller (8443).
	ControllerSelfHosted ControllerType = "self_hosted"
	// ControllerOSServer covers UniFi OS Server installs (11443).
	ControllerOSServer ControllerType = "os_server"
	// ControllerUnknown means detection has not run yet.
	ControllerUnknown ControllerType = "unknown"
)

// apiEnvelope is the response wrapper every controller endpoint uses.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
	Meta struct {
		RC  string `json:"rc"`
		Msg string `json:"msg,omitempty"`
	} `json:"meta"`
}

// Site is one logical network partition on the controller.
type Site struct {
	Name        string `json:"name"` // internal name used in URLs, e.g. "default"
	Description string `json:"desc"` // friendly name shown in the UI
	Role        string `json:"role,omitempty"`
}

// rawEvent mirrors the controller's stat/event records.
type rawEvent struct {
	ID       string       `json:"_id"`
	Key      string       `json:"key"`
	Time     flexibleTime `json:"time"`
	Datetime string       `json:"datetime,omitempty"`
	Msg      string       `json:"msg,omitempty"`
	AP       string       `json:"ap,omitempty"`
	APName   string       `json:"ap_name,omitempty"`
	SW       string       `json:"sw,omitempty"`
	SWName   string       `json:"sw_name,omitempty"`
	GW       string       `json:"gw,omitempty"`
	GWName   string       `json:"gw_name,omitempty"`
	User     string       `json:"user,omitempty"`
	Hostname string       `json:"hostname,omitempty"`

	raw json.RawMessage // original record, carried into the model's attribute bag
}

// rawIPSEvent mirrors stat/ips/event records.
type rawIPSEvent struct {
	ID          string       `json:"_id"`
	Time        flexibleTime `json:"timestamp"`
	SrcIP       string       `json:"src_ip"`
	SrcPort     int          `json:"src_port,omitempty"`
	DstIP       string       `json:"dest_ip"`
	DstPort     int          `json:"dest_port,omitempty"`
	Proto       string       `json:"proto,omitempty"`
	Signature   string       `json:"inner_alert_signature"`
	SignatureID int64        `json:"inner_alert_signature_id"`
	Category    string       `json:"inner_alert_category,omitempty"`
	Severity    int          `json:"inner_alert_severity"`
	Action      string       `json:"inner_alert_action"`
}

// rawDevice mirrors stat/device records; only the fields the health analyzer
// consumes are decoded.
type rawDevice struct {
	MAC      string       `json:"mac"`
	Name     string       `json:"name,omitempty"`
	Model    string       `json:"model,omitempty"`
	Type     string       `json:"type,omitempty"` // uap, usw, ugw, udm
	State    int          `json:"state"`
	Uptime   *int64       `json:"uptime,omitempty"`
	LastSeen flexibleTime `json:"last_seen,omitempty"`

	SystemStats struct {
		CPU string `json:"cpu,omitempty"`
		Mem string `json:"mem,omitempty"`
	} `json:"system-stats,omitempty"`

	GeneralTemperature *float64 `json:"general_temperature,omitempty"`
	TotalMaxPower      *float64 `json:"total_max_power,omitempty"`

	PortTable []struct {
		PoePower string `json:"poe_power,omitempty"`
	} `json:"port_table,omitempty"`
}

// flexibleTime decodes the controller's epoch timestamps, which appear as
// milliseconds, seconds, or RFC3339 strings depending on firmware.
type flexibleTime struct {
	time.Time
}

func (t *flexibleTime) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339, str)
		if err != nil {
			return fmt.Errorf("unparsable timestamp %q", str)
		}
		t.Time = parsed.UTC()
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	// Heuristic: epoch seconds fit in 10 digits until 2286
	if n > 1e12 {
		t.Time = time.UnixMilli(int64(n)).UTC()
	} else {
		t.Time = time.Unix(int64(n), 0).UTC()
	}
	return nil
}

func (e rawEvent) toModel() models.Event {
	mac, name := e.deviceIdentity()
	evt := models.Event{
		Type:       e.Key,
		Time:       e.Time.Time,
		DeviceMAC:  mac,
		DeviceName: name,
		Message:    e.Msg,
	}
	if len(e.raw) > 0 {
		var bag map[string]interface{}
		if err := json.Unmarshal(e.raw, &bag); err == nil {
			bag["_id"] = e.ID
			evt.Raw = bag
		}
	}
	if evt.Raw == nil && e.ID != "" {
		evt.Raw = map[string]interface{}{"_id": e.ID}
	}
	return evt
}

// deviceIdentity picks the most specific device the event refers to.
func (e rawEvent) deviceIdentity() (mac, name string) {
	switch {
	case e.AP != "":
		return e.AP, e.APName
	case e.SW != "":
		return e.SW, e.SWName
	case e.GW != "":
		return e.GW, e.GWName
	}
	return "", e.Hostname
}

func (e rawIPSEvent) toModel() models.IPSEvent {
	return models.IPSEvent{
		ID:          e.ID,
		Time:        e.Time.Time,
		SrcIP:       e.SrcIP,
		SrcPort:     e.SrcPort,
		DstIP:       e.DstIP,
		DstPort:     e.DstPort,
		Proto:       e.Proto,
		Signature:   e.Signature,
		SignatureID: e.SignatureID,
		Category:    e.Category,
		Severity:    e.Severity,
		Action:      e.Action,
	}
}

func (d rawDevice) toModel() models.DeviceStats {
	stats := models.DeviceStats{
		MAC:      d.MAC,
		Name:     d.Name,
		Model:    d.Model,
		Type:     deviceTypeFromWire(d.Type),
		State:    deviceStateName(d.State),
		LastSeen: d.LastSeen.Time,
	}
	if d.Uptime != nil {
		stats.UptimeSeconds = d.Uptime
	}
	if v, ok := parsePercent(d.SystemStats.CPU); ok {
		stats.CPUPct = &v
	}
	if v, ok := parsePercent(d.SystemStats.Mem); ok {
		stats.MemPct = &v
	}
	if d.GeneralTemperature != nil {
		stats.TemperatureC = d.GeneralTemperature
	}
	if d.TotalMaxPower != nil {
		stats.PoEBudgetW = d.TotalMaxPower
		used := 0.0
		any := false
		for _, port := range d.PortTable {
			if v, ok := parsePercent(port.PoePower); ok {
				used += v
				any = true
			}
		}
		if any {
			stats.PoEUsedW = &used
		}
	}
	return stats
}

func parsePercent(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	var v float64
	if _, err := fmt.Sscanf(s, "%f", &v); err != nil {
		return 0, false
	}
	return v, true
}

func deviceTypeFromWire(t string) models.DeviceType {
	switch strings.ToLower(t) {
	case "uap":
		return models.DeviceTypeAP
	case "usw":
		return models.DeviceTypeSwitch
	case "ugw", "usg":
		return models.DeviceTypeGateway
	case "udm":
		return models.DeviceTypeUDM
	default:
		return models.DeviceTypeUnknown
	}
}

func deviceStateName(state int) string {
	switch state {
	case 0:
		return "offline"
	case 1:
		return "connected"
	case 2:
		return "pending_adoption"
	case 4:
		return "upgrading"
	case 5:
		return "provisioning"
	case 6:
		return "heartbeat_missed"
	default:
		return fmt.Sprintf("state_%d", state)
	}
}

// Alarm is a controller alarm record, exposed raw for report metadata.
type Alarm struct {
	ID       string       `json:"_id"`
	Time     flexibleTime `json:"time"`
	Key      string       `json:"key"`
	Msg      string       `json:"msg,omitempty"`
	Archived bool         `json:"archived,omitempty"`
}
