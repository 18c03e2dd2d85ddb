package analysis

import (
	"net/netip"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/unifiscan/unifi-scanner/internal/models"
)

// DetectionModeNote is attached when no event in the run was blocked.
const DetectionModeNote = "IPS is in detection mode; threats are logged but not blocked."

// DefaultSourceIPThreshold is the minimum event count before a source IP
// appears in the aggregation.
const DefaultSourceIPThreshold = 10

// signaturePattern matches Emerging Threats signature strings,
// e.g. "ET SCAN Nmap Scripting Engine User-Agent Detected".
var signaturePattern = regexp.MustCompile(`^ET\s+([A-Z0-9_-]+)\s+(.*)$`)

// friendlyCategories maps the ET category token to a reader-facing name.
var friendlyCategories = map[string]string{
	"SCAN":              "Reconnaissance",
	"MALWARE":           "Malware Activity",
	"TROJAN":            "Trojan Activity",
	"POLICY":            "Policy Violation",
	"DOS":               "Denial of Service",
	"PHISHING":          "Phishing Attempt",
	"EXPLOIT":           "Exploit Attempt",
	"EXPLOIT_KIT":       "Exploit Kit Activity",
	"TOR":               "TOR Network Traffic",
	"P2P":               "Peer-to-Peer Traffic",
	"CNC":               "Command and Control",
	"BOTCC":             "Botnet Activity",
	"COMPROMISED":       "Known Compromised Host",
	"DROP":              "Spamhaus Blocklist Hit",
	"DNS":               "Suspicious DNS Activity",
	"WEB_SERVER":        "Web Server Attack",
	"WEB_CLIENT":        "Web Client Attack",
	"WEB_SPECIFIC_APPS": "Web Application Attack",
	"USER_AGENTS":       "Suspicious User Agent",
	"HUNTING":           "Threat Hunting Match",
	"INFO":              "Informational Detection",
	"GAMES":             "Gaming Traffic",
	"CHAT":              "Chat Protocol Traffic",
	"ADWARE_PUP":        "Adware / Unwanted Program",
	"UNKNOWN":           "Security Event",
}

// remediationTemplates is keyed by ET category; only severe and medium
// summaries receive remediation.
var remediationTemplates = map[string]string{
	"SCAN":        "Host {src_ip} is probing your network. If external, confirm the gateway blocks unsolicited inbound traffic; if internal, investigate the device for compromise.",
	"MALWARE":     "Traffic matching malware signature {signature} was seen from {src_ip} toward {dest_ip}. Isolate the internal endpoint involved and run a malware scan.",
	"TROJAN":      "Trojan-pattern traffic from {src_ip} toward {dest_ip}. Treat the internal endpoint as compromised until scanned and cleared.",
	"DOS":         "Denial-of-service pattern from {src_ip}. Verify gateway CPU and connection counts, and consider rate-limiting or blocking the source.",
	"PHISHING":    "A client reached a suspected phishing destination ({dest_ip}). Identify the user involved and check whether credentials were submitted.",
	"EXPLOIT":     "Exploit attempt against {dest_ip} matching {signature}. Confirm the target service is patched; block {src_ip} if the traffic is unsolicited.",
	"CNC":         "Possible command-and-control traffic from {src_ip} to {dest_ip}. Isolate the internal host immediately and capture traffic for analysis.",
	"BOTCC":       "Traffic to a known botnet controller from {src_ip}. Isolate the internal host and investigate for persistence mechanisms.",
	"COMPROMISED": "Communication with a known-compromised host ({dest_ip}). Review what data the internal endpoint exchanged with it.",
	"TOR":         "TOR traffic involving {src_ip}. If TOR is not sanctioned on this network, locate the client and review acceptable-use policy.",
	"P2P":         "Peer-to-peer traffic involving {src_ip}. If unsanctioned, identify the client; P2P traffic is a common malware channel.",
	"POLICY":      "Policy-violating traffic from {src_ip} matching {signature}. Confirm whether this application is sanctioned for the user involved.",
	"DEFAULT":     "Review the signature match ({signature}) between {src_ip} and {dest_ip} and decide whether the source should be blocked at the gateway.",
}

// IPSAnalyzer classifies and aggregates intrusion events.
type IPSAnalyzer struct {
	sourceIPThreshold int
}

// NewIPSAnalyzer creates an analyzer. threshold <= 0 selects the default.
func NewIPSAnalyzer(sourceIPThreshold int) *IPSAnalyzer {
	if sourceIPThreshold <= 0 {
		sourceIPThreshold = DefaultSourceIPThreshold
	}
	return &IPSAnalyzer{sourceIPThreshold: sourceIPThreshold}
}

// parsedSignature is the ET token split of a signature string.
type parsedSignature struct {
	Category    string // uppercase ET token, "UNKNOWN" when unparseable
	Description string
}

func parseSignature(signature string) parsedSignature {
	m := signaturePattern.FindStringSubmatch(strings.TrimSpace(signature))
	if m == nil {
		return parsedSignature{Category: "UNKNOWN", Description: signature}
	}
	return parsedSignature{Category: m[1], Description: m[2]}
}

func friendlyCategory(token string) string {
	if name, ok := friendlyCategories[token]; ok {
		return name
	}
	return friendlyCategories["UNKNOWN"]
}

// severityFromNumeric maps the controller's 1/2/3 scale: 1 is the most
// urgent.
func severityFromNumeric(n int) models.Severity {
	switch {
	case n <= 1:
		return models.SeveritySevere
	case n == 2:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// Analyze groups events by signature, partitions blocked vs detected, and
// aggregates noisy source IPs.
func (a *IPSAnalyzer) Analyze(events []models.IPSEvent) *models.ThreatAnalysisResult {
	result := &models.ThreatAnalysisResult{TotalEvents: len(events)}
	if len(events) == 0 {
		return result
	}

	groups := make(map[string][]models.IPSEvent)
	groupOrder := make([]string, 0)
	anyBlockedAtAll := false
	for _, evt := range events {
		if _, ok := groups[evt.Signature]; !ok {
			groupOrder = append(groupOrder, evt.Signature)
		}
		groups[evt.Signature] = append(groups[evt.Signature], evt)
		if evt.Blocked() {
			anyBlockedAtAll = true
			result.BlockedCount++
		} else {
			result.DetectedCount++
		}
	}

	for _, signature := range groupOrder {
		group := groups[signature]
		summary := a.summarize(signature, group)
		if anyBlocked(group) {
			result.BlockedThreats = append(result.BlockedThreats, summary)
		} else {
			result.DetectedThreats = append(result.DetectedThreats, summary)
		}
	}

	sortSummaries(result.BlockedThreats)
	sortSummaries(result.DetectedThreats)

	if !anyBlockedAtAll {
		result.DetectionModeNote = DetectionModeNote
	}

	result.TopSourceIPs = a.aggregateSourceIPs(events)

	log.Debug().
		Int("events", len(events)).
		Int("blockedGroups", len(result.BlockedThreats)).
		Int("detectedGroups", len(result.DetectedThreats)).
		Msg("IPS analysis complete")
	return result
}

func (a *IPSAnalyzer) summarize(signature string, group []models.IPSEvent) models.ThreatSummary {
	parsed := parseSignature(signature)

	severity := models.SeverityLow
	cybersecureCount := 0
	ips := make([]string, 0, len(group))
	seenIPs := make(map[string]bool)
	for _, evt := range group {
		if s := severityFromNumeric(evt.Severity); s.Rank() > severity.Rank() {
			severity = s
		}
		if evt.Cybersecure() {
			cybersecureCount++
		}
		if evt.SrcIP != "" && !seenIPs[evt.SrcIP] {
			seenIPs[evt.SrcIP] = true
			ips = append(ips, evt.SrcIP)
		}
	}

	summary := models.ThreatSummary{
		Category:         friendlyCategory(parsed.Category),
		Description:      parsed.Description,
		Count:            len(group),
		Severity:         severity,
		SampleSignature:  signature,
		SourceIPs:        ips,
		CybersecureCount: cybersecureCount,
	}

	if severity != models.SeverityLow {
		summary.Remediation = renderRemediation(parsed.Category, group[0])
	}
	return summary
}

func renderRemediation(category string, sample models.IPSEvent) string {
	tmpl, ok := remediationTemplates[category]
	if !ok {
		tmpl = remediationTemplates["DEFAULT"]
	}
	return renderTemplate(tmpl, map[string]string{
		"src_ip":    sample.SrcIP,
		"dest_ip":   sample.DstIP,
		"signature": sample.Signature,
	})
}

func anyBlocked(group []models.IPSEvent) bool {
	for _, evt := range group {
		if evt.Blocked() {
			return true
		}
	}
	return false
}

func sortSummaries(summaries []models.ThreatSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].Severity.Rank() != summaries[j].Severity.Rank() {
			return summaries[i].Severity.Rank() > summaries[j].Severity.Rank()
		}
		return summaries[i].Count > summaries[j].Count
	})
}

// aggregateSourceIPs is an independent pass keeping only IPs with at least
// the configured number of events.
func (a *IPSAnalyzer) aggregateSourceIPs(events []models.IPSEvent) []models.SourceIPActivity {
	type bucket struct {
		count      int
		categories map[string]int
		signatures []string
		sigSeen    map[string]bool
	}

	buckets := make(map[string]*bucket)
	order := make([]string, 0)
	for _, evt := range events {
		if evt.SrcIP == "" {
			continue
		}
		b, ok := buckets[evt.SrcIP]
		if !ok {
			b = &bucket{categories: make(map[string]int), sigSeen: make(map[string]bool)}
			buckets[evt.SrcIP] = b
			order = append(order, evt.SrcIP)
		}
		b.count++
		b.categories[friendlyCategory(parseSignature(evt.Signature).Category)]++
		if len(b.signatures) < 3 && !b.sigSeen[evt.Signature] {
			b.sigSeen[evt.Signature] = true
			b.signatures = append(b.signatures, evt.Signature)
		}
	}

	var out []models.SourceIPActivity
	for _, ip := range order {
		b := buckets[ip]
		if b.count < a.sourceIPThreshold {
			continue
		}
		out = append(out, models.SourceIPActivity{
			IP:               ip,
			Count:            b.count,
			Categories:       b.categories,
			SampleSignatures: b.signatures,
			Internal:         isInternalIP(ip),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// isInternalIP reports RFC1918/RFC4193 (and loopback/link-local) membership.
func isInternalIP(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast()
}
