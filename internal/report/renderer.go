package report

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	texttemplate "text/template"
	"time"

	scanerrors "github.com/unifiscan/unifi-scanner/internal/errors"
	"github.com/unifiscan/unifi-scanner/internal/models"
)

// Renderer produces the HTML and plain-text renditions of a report.
// Timestamps are converted to the display timezone here and nowhere else.
type Renderer struct {
	loc  *time.Location
	html *template.Template
	text *texttemplate.Template
}

// NewRenderer creates a renderer for the given display timezone (UTC when
// nil).
func NewRenderer(loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.UTC
	}

	htmlTmpl, err := template.New("report").Funcs(template.FuncMap{
		"severeColor":  func() string { return colorSevere },
		"mediumColor":  func() string { return colorMedium },
		"lowColor":     func() string { return colorLow },
		"blockedColor": func() string { return colorBlocked },
		"cyberColor":   func() string { return colorCyber },
	}).Parse(htmlTemplate)
	if err != nil {
		return nil, scanerrors.New(scanerrors.ErrorTypeConfig, "parse_html_template", "", err)
	}
	textTmpl, err := texttemplate.New("report").Parse(textTemplate)
	if err != nil {
		return nil, scanerrors.New(scanerrors.ErrorTypeConfig, "parse_text_template", "", err)
	}

	return &Renderer{loc: loc, html: htmlTmpl, text: textTmpl}, nil
}

// severity badge colors, also reused for health status
const (
	colorSevere  = "#dc2626"
	colorMedium  = "#d97706"
	colorLow     = "#6b7280"
	colorBlocked = "#16a34a"
	colorCyber   = "#7c3aed"
)

// CybersecureTooltip explains the purple signature badge.
const CybersecureTooltip = "Detected by CyberSecure enhanced signatures"

type findingView struct {
	Title       string
	Description string
	Remediation string
	Severity    string
	BadgeColor  string
	Category    string
	Occurrence  string
	Recurring   bool
	FirstSeen   string
	LastSeen    string
}

type threatView struct {
	Category        string
	Description     string
	Count           int
	Severity        string
	BadgeColor      string
	SampleSignature string
	SourceIPs       string
	Remediation     string
	Cybersecure     bool
	Tooltip         string
}

type sourceIPView struct {
	IP         string
	Count      int
	Scope      string
	Categories string
	Signatures string
}

type healthFindingView struct {
	findingView
}

type deviceSummaryView struct {
	Name        string
	MAC         string
	Type        string
	Status      string
	StatusColor string
}

type reportView struct {
	Site           string
	ControllerType string
	GeneratedAt    string
	PeriodStart    string
	PeriodEnd      string
	Timezone       string

	SevereCount int
	MediumCount int
	LowCount    int
	EventCount  int

	Empty    bool
	Findings []findingView

	HasIPS            bool
	IPSTotal          int
	IPSBlocked        int
	IPSDetected       int
	DetectionModeNote string
	BlockedThreats    []threatView
	DetectedThreats   []threatView
	TopSourceIPs      []sourceIPView

	HasHealth       bool
	HealthFindings  []healthFindingView
	DeviceSummaries []deviceSummaryView
}

// RenderHTML produces the styled HTML report.
func (r *Renderer) RenderHTML(report models.Report) (string, error) {
	var buf bytes.Buffer
	if err := r.html.Execute(&buf, r.view(report)); err != nil {
		return "", scanerrors.New(scanerrors.ErrorTypeState, "render_html", "", err)
	}
	return buf.String(), nil
}

// RenderText produces the plain-text rendition for email fallback and the
// .txt report file.
func (r *Renderer) RenderText(report models.Report) (string, error) {
	var buf bytes.Buffer
	if err := r.text.Execute(&buf, r.view(report)); err != nil {
		return "", scanerrors.New(scanerrors.ErrorTypeState, "render_text", "", err)
	}
	return buf.String(), nil
}

func (r *Renderer) stamp(t time.Time) string {
	return t.In(r.loc).Format("Mon, 02 Jan 2006 15:04:05 MST")
}

func (r *Renderer) view(report models.Report) reportView {
	v := reportView{
		Site:           report.Site,
		ControllerType: report.ControllerType,
		GeneratedAt:    r.stamp(report.GeneratedAt),
		PeriodStart:    r.stamp(report.PeriodStart),
		PeriodEnd:      r.stamp(report.PeriodEnd),
		Timezone:       r.loc.String(),
		SevereCount:    report.SevereCount(),
		MediumCount:    report.MediumCount(),
		LowCount:       report.LowCount(),
		EventCount:     report.EventCount,
		Empty:          report.Empty(),
	}

	for _, f := range report.Findings {
		v.Findings = append(v.Findings, r.findingView(f))
	}

	if !report.IPSAnalysis.Empty() {
		ips := report.IPSAnalysis
		v.HasIPS = true
		v.IPSTotal = ips.TotalEvents
		v.IPSBlocked = ips.BlockedCount
		v.IPSDetected = ips.DetectedCount
		v.DetectionModeNote = ips.DetectionModeNote
		for _, t := range ips.BlockedThreats {
			v.BlockedThreats = append(v.BlockedThreats, threatViewFrom(t))
		}
		for _, t := range ips.DetectedThreats {
			v.DetectedThreats = append(v.DetectedThreats, threatViewFrom(t))
		}
		for _, ip := range ips.TopSourceIPs {
			v.TopSourceIPs = append(v.TopSourceIPs, sourceIPViewFrom(ip))
		}
	}

	if !report.HealthAnalysis.Empty() {
		health := report.HealthAnalysis
		v.HasHealth = true
		for _, f := range health.Critical {
			v.HealthFindings = append(v.HealthFindings, healthFindingView{r.findingView(f)})
		}
		for _, f := range health.Warnings {
			v.HealthFindings = append(v.HealthFindings, healthFindingView{r.findingView(f)})
		}
		for _, d := range health.Summaries {
			v.DeviceSummaries = append(v.DeviceSummaries, deviceSummaryView{
				Name:        d.Name,
				MAC:         d.MAC,
				Type:        string(d.Type),
				Status:      string(d.Status),
				StatusColor: healthColor(d.Status),
			})
		}
	}

	return v
}

func (r *Renderer) findingView(f models.Finding) findingView {
	occurrence := "seen once"
	if f.OccurrenceCount > 1 {
		occurrence = fmt.Sprintf("%d occurrences", f.OccurrenceCount)
	}
	return findingView{
		Title:       f.Title,
		Description: f.Description,
		Remediation: f.Remediation,
		Severity:    strings.ToUpper(string(f.Severity)),
		BadgeColor:  severityColor(f.Severity),
		Category:    string(f.Category),
		Occurrence:  occurrence,
		Recurring:   f.Recurring(),
		FirstSeen:   r.stamp(f.FirstSeen),
		LastSeen:    r.stamp(f.LastSeen),
	}
}

func threatViewFrom(t models.ThreatSummary) threatView {
	return threatView{
		Category:        t.Category,
		Description:     t.Description,
		Count:           t.Count,
		Severity:        strings.ToUpper(string(t.Severity)),
		BadgeColor:      severityColor(t.Severity),
		SampleSignature: t.SampleSignature,
		SourceIPs:       strings.Join(t.SourceIPs, ", "),
		Remediation:     t.Remediation,
		Cybersecure:     t.IsCybersecure(),
		Tooltip:         CybersecureTooltip,
	}
}

func sourceIPViewFrom(ip models.SourceIPActivity) sourceIPView {
	scope := "external"
	if ip.Internal {
		scope = "internal"
	}
	// Map iteration order varies between runs; equal inputs must render
	// identically.
	names := make([]string, 0, len(ip.Categories))
	for name := range ip.Categories {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if ip.Categories[names[i]] != ip.Categories[names[j]] {
			return ip.Categories[names[i]] > ip.Categories[names[j]]
		}
		return names[i] < names[j]
	})
	cats := make([]string, 0, len(names))
	for _, name := range names {
		cats = append(cats, fmt.Sprintf("%s (%d)", name, ip.Categories[name]))
	}
	return sourceIPView{
		IP:         ip.IP,
		Count:      ip.Count,
		Scope:      scope,
		Categories: strings.Join(cats, ", "),
		Signatures: strings.Join(ip.SampleSignatures, "; "),
	}
}

func severityColor(s models.Severity) string {
	switch s {
	case models.SeveritySevere:
		return colorSevere
	case models.SeverityMedium:
		return colorMedium
	default:
		return colorLow
	}
}

func healthColor(s models.DeviceHealthStatus) string {
	switch s {
	case models.HealthStatusCritical:
		return colorSevere
	case models.HealthStatusWarning:
		return colorMedium
	default:
		return colorBlocked
	}
}
