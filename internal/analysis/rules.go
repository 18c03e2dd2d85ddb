package analysis

import (
	"regexp"
	"strings"

	"github.com/unifiscan/unifi-scanner/internal/models"
)

// Rule maps a set of controller event types to a categorized, severity-rated
// finding template. Titles begin with the bracketed category; descriptions
// end with the raw event key in parentheses so operators can search upstream
// documentation for it.
type Rule struct {
	EventTypes  []string
	Category    models.Category
	Severity    models.Severity
	Title       string
	Description string
	Remediation string // required for severe/medium, forbidden for low
}

// Registry maps event-type keys to their applicable rules. Lookup is O(1).
type Registry struct {
	rules map[string][]*Rule
}

// NewRegistry builds a registry from the given rules.
func NewRegistry(rules []*Rule) *Registry {
	r := &Registry{rules: make(map[string][]*Rule)}
	for _, rule := range rules {
		for _, key := range rule.EventTypes {
			r.rules[key] = append(r.rules[key], rule)
		}
	}
	return r
}

// Lookup returns the rules for an event type, or nil when unknown.
func (r *Registry) Lookup(eventType string) []*Rule {
	return r.rules[eventType]
}

// Len returns the number of distinct event-type keys registered.
func (r *Registry) Len() int {
	return len(r.rules)
}

// All returns every registered rule exactly once.
func (r *Registry) All() []*Rule {
	seen := make(map[*Rule]bool)
	var out []*Rule
	for _, list := range r.rules {
		for _, rule := range list {
			if !seen[rule] {
				seen[rule] = true
				out = append(out, rule)
			}
		}
	}
	return out
}

var placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// renderTemplate substitutes {name} placeholders from vars. Missing
// placeholders render as the literal "Unknown" rather than failing.
func renderTemplate(tmpl string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := strings.Trim(match, "{}")
		if v, ok := vars[name]; ok && v != "" {
			return v
		}
		return "Unknown"
	})
}

// DefaultRules returns the built-in rule table.
func DefaultRules() []*Rule {
	return []*Rule{
		// security
		{
			EventTypes:  []string{"EVT_AD_LoginFailed"},
			Category:    models.CategorySecurity,
			Severity:    models.SeveritySevere,
			Title:       "[Security] Failed Admin Login Attempt",
			Description: "A controller admin login failed for user {user} from {src_ip}. Repeated failures may indicate a brute-force attempt. ({event_type})",
			Remediation: "Verify the login attempts are expected. If not, restrict controller access to trusted networks and rotate the admin password.",
		},
		{
			EventTypes:  []string{"EVT_AP_DetectRogueAP"},
			Category:    models.CategorySecurity,
			Severity:    models.SeveritySevere,
			Title:       "[Security] Rogue Access Point Detected",
			Description: "Access point {device_name} ({device_mac}) detected a rogue AP broadcasting nearby. ({event_type})",
			Remediation: "Locate the rogue device physically. If it is spoofing your SSID, treat it as hostile and investigate which clients associated with it.",
		},
		{
			EventTypes:  []string{"EVT_IPS_IpsAlert"},
			Category:    models.CategorySecurity,
			Severity:    models.SeveritySevere,
			Title:       "[Security] Intrusion Prevention Alert",
			Description: "The IPS engine raised an alert for traffic from {src_ip}. See the threat analysis section for signature details. ({event_type})",
			Remediation: "Review the matched signature and source address. Block the source at the gateway if the traffic is not expected.",
		},
		{
			EventTypes:  []string{"EVT_AD_Login"},
			Category:    models.CategorySecurity,
			Severity:    models.SeverityLow,
			Title:       "[Security] Admin Login",
			Description: "Controller admin {user} logged in from {src_ip}. ({event_type})",
		},

		// connectivity
		{
			EventTypes:  []string{"EVT_AP_Lost_Contact"},
			Category:    models.CategoryConnectivity,
			Severity:    models.SeveritySevere,
			Title:       "[Connectivity] Access Point Offline",
			Description: "Access point {device_name} ({device_mac}) stopped responding to the controller. ({event_type})",
			Remediation: "Check power and uplink cabling for the AP. If it is PoE powered, confirm the switch port is still delivering power.",
		},
		{
			EventTypes:  []string{"EVT_SW_Lost_Contact"},
			Category:    models.CategoryConnectivity,
			Severity:    models.SeveritySevere,
			Title:       "[Connectivity] Switch Offline",
			Description: "Switch {device_name} ({device_mac}) stopped responding to the controller. ({event_type})",
			Remediation: "Check the switch's power and uplink. A switch outage usually takes downstream devices with it, so prioritize this.",
		},
		{
			EventTypes:  []string{"EVT_GW_WANTransition"},
			Category:    models.CategoryConnectivity,
			Severity:    models.SeveritySevere,
			Title:       "[Connectivity] WAN Link Transition",
			Description: "Gateway {device_name} reported a WAN state change. ({event_type})",
			Remediation: "Confirm internet reachability. If the WAN dropped, check the modem/ONT and the ISP status page before power-cycling equipment.",
		},
		{
			EventTypes:  []string{"EVT_AP_Isolated"},
			Category:    models.CategoryConnectivity,
			Severity:    models.SeveritySevere,
			Title:       "[Connectivity] Access Point Isolated",
			Description: "Access point {device_name} ({device_mac}) is isolated: powered but unable to reach its gateway. ({event_type})",
			Remediation: "Check the wired uplink between this AP and the switch. Isolation usually means a VLAN or cabling problem, not an AP fault.",
		},
		{
			EventTypes:  []string{"EVT_WU_Connected", "EVT_LU_Connected"},
			Category:    models.CategoryConnectivity,
			Severity:    models.SeverityLow,
			Title:       "[Connectivity] Client Connected",
			Description: "Client {hostname} connected to the network. ({event_type})",
		},
		{
			EventTypes:  []string{"EVT_WU_Disconnected", "EVT_LU_Disconnected"},
			Category:    models.CategoryConnectivity,
			Severity:    models.SeverityLow,
			Title:       "[Connectivity] Client Disconnected",
			Description: "Client {hostname} disconnected from the network. ({event_type})",
		},

		// performance
		{
			EventTypes:  []string{"EVT_AP_CpuOverload", "EVT_SW_CpuOverload", "EVT_GW_CpuOverload"},
			Category:    models.CategoryPerformance,
			Severity:    models.SeverityMedium,
			Title:       "[Performance] High CPU Utilization",
			Description: "Device {device_name} ({device_mac}) reported sustained high CPU utilization. ({event_type})",
			Remediation: "Check for airtime saturation or heavy routing features (DPI, IPS) on an undersized device. Consider redistributing load.",
		},
		{
			EventTypes:  []string{"EVT_AP_MemoryOverload", "EVT_SW_MemoryOverload", "EVT_GW_MemoryOverload"},
			Category:    models.CategoryPerformance,
			Severity:    models.SeverityMedium,
			Title:       "[Performance] High Memory Utilization",
			Description: "Device {device_name} ({device_mac}) reported sustained high memory utilization. ({event_type})",
			Remediation: "A device this close to memory exhaustion may reboot on its own. Schedule a controlled restart and review enabled features.",
		},
		{
			EventTypes:  []string{"EVT_AP_RadarDetected"},
			Category:    models.CategoryPerformance,
			Severity:    models.SeverityMedium,
			Title:       "[Performance] Radar Interference (DFS)",
			Description: "Access point {device_name} detected radar on its DFS channel and must vacate it. ({event_type})",
			Remediation: "Repeated DFS hits degrade the 5 GHz experience. Move the AP to a non-DFS channel if radar events recur.",
		},
		{
			EventTypes:  []string{"EVT_AP_Interference"},
			Category:    models.CategoryPerformance,
			Severity:    models.SeverityMedium,
			Title:       "[Performance] RF Interference",
			Description: "Access point {device_name} reported significant RF interference on its channel. ({event_type})",
			Remediation: "Run an RF scan and move the AP to a cleaner channel. Check for non-WiFi interferers (cameras, microwaves) near the AP.",
		},
		{
			EventTypes:  []string{"EVT_GW_SpeedTestDegraded"},
			Category:    models.CategoryPerformance,
			Severity:    models.SeverityMedium,
			Title:       "[Performance] Speed Test Degradation",
			Description: "The gateway's periodic speed test measured throughput well below the provisioned rate. ({event_type})",
			Remediation: "Re-run the speed test off-peak. If degradation persists, check gateway CPU during the test and raise it with the ISP.",
		},

		// system
		{
			EventTypes:  []string{"EVT_AP_Upgraded", "EVT_SW_Upgraded", "EVT_GW_Upgraded"},
			Category:    models.CategorySystem,
			Severity:    models.SeverityLow,
			Title:       "[System] Firmware Updated",
			Description: "Device {device_name} ({device_mac}) completed a firmware update. ({event_type})",
		},
		{
			EventTypes:  []string{"EVT_AP_Restarted", "EVT_SW_Restarted", "EVT_GW_Restarted"},
			Category:    models.CategorySystem,
			Severity:    models.SeverityLow,
			Title:       "[System] Planned Restart",
			Description: "Device {device_name} ({device_mac}) was restarted by an administrator. ({event_type})",
		},
		{
			EventTypes:  []string{"EVT_AP_RestartedUnknown", "EVT_SW_RestartedUnknown", "EVT_GW_RestartedUnknown"},
			Category:    models.CategorySystem,
			Severity:    models.SeverityMedium,
			Title:       "[System] Unexpected Restart",
			Description: "Device {device_name} ({device_mac}) restarted without an administrative action. ({event_type})",
			Remediation: "Check the device's power source and temperature. Repeated unexplained restarts usually mean failing PoE, PSU, or overheating.",
		},
		{
			EventTypes:  []string{"EVT_AP_Adopted", "EVT_SW_Adopted", "EVT_GW_Adopted"},
			Category:    models.CategorySystem,
			Severity:    models.SeverityLow,
			Title:       "[System] Device Adopted",
			Description: "Device {device_name} ({device_mac}) was adopted by the controller. ({event_type})",
		},
		{
			EventTypes:  []string{"EVT_AD_ConfigurationChanged"},
			Category:    models.CategorySystem,
			Severity:    models.SeverityLow,
			Title:       "[System] Configuration Changed",
			Description: "Controller configuration was changed by {user}. ({event_type})",
		},
		{
			EventTypes:  []string{"EVT_AD_BackupCreated"},
			Category:    models.CategorySystem,
			Severity:    models.SeverityLow,
			Title:       "[System] Backup Created",
			Description: "A controller backup was created. ({event_type})",
		},

		// device_health (PoE arrives through the event path, not the
		// stats analyzer)
		{
			EventTypes:  []string{"EVT_SW_PoeDisconnect"},
			Category:    models.CategoryDeviceHealth,
			Severity:    models.SeverityMedium,
			Title:       "[Device Health] PoE Device Disconnected",
			Description: "Switch {device_name} ({device_mac}) lost a PoE-powered device on port {port}. ({event_type})",
			Remediation: "Check the powered device and its cable run. If the port cycled on its own, inspect the cable for damage.",
		},
		{
			EventTypes:  []string{"EVT_SW_PoeOverload"},
			Category:    models.CategoryDeviceHealth,
			Severity:    models.SeveritySevere,
			Title:       "[Device Health] PoE Budget Exceeded",
			Description: "Switch {device_name} ({device_mac}) exceeded its PoE power budget; ports may be shedding load. ({event_type})",
			Remediation: "Total PoE draw exceeds what this switch can deliver. Move high-draw devices to another switch or use external power supplies.",
		},
	}
}
