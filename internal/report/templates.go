package report

// htmlTemplate is the inline-styled HTML report. Inline styles keep it
// renderable inside email clients that strip <style> blocks.
const htmlTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Network Scan Report - {{.Site}}</title>
</head>
<body style="margin:0;padding:0;background-color:#f3f4f6;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Helvetica,Arial,sans-serif;">
<div style="max-width:720px;margin:0 auto;padding:24px;">

<div style="background-color:#1f2937;border-radius:8px 8px 0 0;padding:24px;">
<h1 style="margin:0;color:#ffffff;font-size:20px;">Network Scan Report</h1>
<p style="margin:8px 0 0;color:#9ca3af;font-size:13px;">
Site <strong style="color:#e5e7eb;">{{.Site}}</strong> ({{.ControllerType}})<br>
{{.PeriodStart}} &ndash; {{.PeriodEnd}}<br>
Generated {{.GeneratedAt}} ({{.Timezone}})
</p>
</div>

<div style="background-color:#ffffff;padding:24px;">

<table role="presentation" width="100%" cellpadding="0" cellspacing="0" style="margin-bottom:24px;">
<tr>
<td align="center" style="padding:12px;background-color:#fef2f2;border-radius:6px;">
<div style="font-size:22px;font-weight:bold;color:{{severeColor}};">{{.SevereCount}}</div>
<div style="font-size:12px;color:#6b7280;">Severe</div>
</td>
<td width="12"></td>
<td align="center" style="padding:12px;background-color:#fffbeb;border-radius:6px;">
<div style="font-size:22px;font-weight:bold;color:{{mediumColor}};">{{.MediumCount}}</div>
<div style="font-size:12px;color:#6b7280;">Medium</div>
</td>
<td width="12"></td>
<td align="center" style="padding:12px;background-color:#f9fafb;border-radius:6px;">
<div style="font-size:22px;font-weight:bold;color:{{lowColor}};">{{.LowCount}}</div>
<div style="font-size:12px;color:#6b7280;">Low</div>
</td>
</tr>
</table>

{{if .Empty}}
<div style="padding:20px;background-color:#f0fdf4;border-radius:6px;text-align:center;">
<p style="margin:0;color:#166534;font-size:14px;">No findings in this period. All monitored systems look normal.</p>
</div>
{{else}}

{{if .Findings}}
<h2 style="font-size:16px;color:#111827;border-bottom:1px solid #e5e7eb;padding-bottom:8px;">Findings</h2>
{{range .Findings}}
<div style="margin-bottom:16px;padding:16px;background-color:#f9fafb;border-radius:6px;border-left:4px solid {{.BadgeColor}};">
<div>
<span style="display:inline-block;padding:2px 8px;border-radius:4px;background-color:{{.BadgeColor}};color:#ffffff;font-size:11px;font-weight:bold;">{{.Severity}}</span>
{{if .Recurring}}<span style="display:inline-block;padding:2px 8px;border-radius:4px;background-color:#374151;color:#ffffff;font-size:11px;">Recurring Issue</span>{{end}}
<span style="font-size:12px;color:#6b7280;margin-left:4px;">{{.Category}}</span>
</div>
<h3 style="margin:8px 0 4px;font-size:14px;color:#111827;">{{.Title}}</h3>
<p style="margin:0 0 8px;font-size:13px;color:#374151;">{{.Description}}</p>
<p style="margin:0;font-size:12px;color:#6b7280;">{{.Occurrence}}; first seen {{.FirstSeen}}, last seen {{.LastSeen}}</p>
{{if .Remediation}}
<div style="margin-top:8px;padding:10px;background-color:#eff6ff;border-radius:4px;">
<div style="font-size:11px;font-weight:bold;color:#1d4ed8;margin-bottom:4px;">RECOMMENDED ACTION</div>
<div style="font-size:13px;color:#1e3a8a;white-space:pre-line;">{{.Remediation}}</div>
</div>
{{end}}
</div>
{{end}}
{{end}}

{{if .HasIPS}}
<h2 style="font-size:16px;color:#111827;border-bottom:1px solid #e5e7eb;padding-bottom:8px;">Threat Analysis</h2>
<p style="font-size:13px;color:#374151;">{{.IPSTotal}} intrusion events: <span style="color:{{blockedColor}};font-weight:bold;">{{.IPSBlocked}} blocked</span>, {{.IPSDetected}} detected.</p>
{{if .DetectionModeNote}}
<div style="padding:10px;background-color:#fffbeb;border-radius:4px;margin-bottom:12px;">
<p style="margin:0;font-size:13px;color:#92400e;">{{.DetectionModeNote}}</p>
</div>
{{end}}

{{if .BlockedThreats}}
<h3 style="font-size:14px;color:#111827;">Blocked</h3>
{{range .BlockedThreats}}
{{template "threat" .}}
{{end}}
{{end}}

{{if .DetectedThreats}}
<h3 style="font-size:14px;color:#111827;">Detected (not blocked)</h3>
{{range .DetectedThreats}}
{{template "threat" .}}
{{end}}
{{end}}

{{if .TopSourceIPs}}
<h3 style="font-size:14px;color:#111827;">Noisy Source Addresses</h3>
{{range .TopSourceIPs}}
<div style="margin-bottom:8px;padding:10px;background-color:#f9fafb;border-radius:4px;">
<span style="font-family:monospace;font-size:13px;color:#111827;">{{.IP}}</span>
<span style="font-size:12px;color:#6b7280;">({{.Scope}}, {{.Count}} events)</span>
<div style="font-size:12px;color:#374151;margin-top:4px;">{{.Categories}}</div>
<div style="font-size:11px;color:#6b7280;margin-top:2px;">{{.Signatures}}</div>
</div>
{{end}}
{{end}}
{{end}}

{{if .HasHealth}}
<h2 style="font-size:16px;color:#111827;border-bottom:1px solid #e5e7eb;padding-bottom:8px;">Device Health</h2>
{{range .HealthFindings}}
<div style="margin-bottom:16px;padding:16px;background-color:#f9fafb;border-radius:6px;border-left:4px solid {{.BadgeColor}};">
<span style="display:inline-block;padding:2px 8px;border-radius:4px;background-color:{{.BadgeColor}};color:#ffffff;font-size:11px;font-weight:bold;">{{.Severity}}</span>
<h3 style="margin:8px 0 4px;font-size:14px;color:#111827;">{{.Title}}</h3>
<p style="margin:0;font-size:13px;color:#374151;">{{.Description}}</p>
{{if .Remediation}}
<div style="margin-top:8px;padding:10px;background-color:#eff6ff;border-radius:4px;">
<div style="font-size:11px;font-weight:bold;color:#1d4ed8;margin-bottom:4px;">RECOMMENDED ACTION</div>
<div style="font-size:13px;color:#1e3a8a;white-space:pre-line;">{{.Remediation}}</div>
</div>
{{end}}
</div>
{{end}}
{{if .DeviceSummaries}}
<table role="presentation" width="100%" cellpadding="6" cellspacing="0" style="font-size:13px;color:#374151;">
<tr style="background-color:#f3f4f6;">
<th align="left" style="padding:6px;">Device</th>
<th align="left" style="padding:6px;">Type</th>
<th align="left" style="padding:6px;">Status</th>
</tr>
{{range .DeviceSummaries}}
<tr style="border-bottom:1px solid #e5e7eb;">
<td style="padding:6px;">{{.Name}} <span style="color:#9ca3af;font-size:11px;">{{.MAC}}</span></td>
<td style="padding:6px;">{{.Type}}</td>
<td style="padding:6px;"><span style="color:{{.StatusColor}};font-weight:bold;">{{.Status}}</span></td>
</tr>
{{end}}
</table>
{{end}}
{{end}}

{{end}}

</div>

<div style="background-color:#1f2937;border-radius:0 0 8px 8px;padding:16px;text-align:center;">
<p style="margin:0;color:#9ca3af;font-size:11px;">unifi-scanner &middot; {{.EventCount}} events processed</p>
</div>

</div>
</body>
</html>

{{define "threat"}}
<div style="margin-bottom:12px;padding:12px;background-color:#f9fafb;border-radius:4px;border-left:4px solid {{.BadgeColor}};">
<div>
<span style="display:inline-block;padding:2px 8px;border-radius:4px;background-color:{{.BadgeColor}};color:#ffffff;font-size:11px;font-weight:bold;">{{.Severity}}</span>
<span style="font-size:13px;font-weight:bold;color:#111827;margin-left:4px;">{{.Category}}</span>
{{if .Cybersecure}}<span title="{{.Tooltip}}" style="display:inline-block;padding:2px 8px;border-radius:4px;background-color:{{cyberColor}};color:#ffffff;font-size:11px;">CyberSecure</span>{{end}}
<span style="font-size:12px;color:#6b7280;">&times;{{.Count}}</span>
</div>
<p style="margin:6px 0 2px;font-size:13px;color:#374151;">{{.Description}}</p>
<p style="margin:0;font-size:11px;color:#6b7280;font-family:monospace;">{{.SampleSignature}}</p>
{{if .SourceIPs}}<p style="margin:4px 0 0;font-size:12px;color:#6b7280;">Sources: {{.SourceIPs}}</p>{{end}}
{{if .Remediation}}
<div style="margin-top:8px;padding:8px;background-color:#eff6ff;border-radius:4px;">
<div style="font-size:11px;font-weight:bold;color:#1d4ed8;margin-bottom:2px;">RECOMMENDED ACTION</div>
<div style="font-size:12px;color:#1e3a8a;">{{.Remediation}}</div>
</div>
{{end}}
</div>
{{end}}`

// textTemplate is the plain-text rendition, used for the email alternative
// part and the .txt report file.
const textTemplate = `NETWORK SCAN REPORT
Site: {{.Site}} ({{.ControllerType}})
Period: {{.PeriodStart}} - {{.PeriodEnd}}
Generated: {{.GeneratedAt}} ({{.Timezone}})

Summary: {{.SevereCount}} severe, {{.MediumCount}} medium, {{.LowCount}} low
{{if .Empty}}
No findings in this period. All monitored systems look normal.
{{else}}{{if .Findings}}
FINDINGS
========
{{range .Findings}}
[{{.Severity}}] {{.Title}}{{if .Recurring}} (Recurring Issue){{end}}
  {{.Description}}
  {{.Occurrence}}; first seen {{.FirstSeen}}, last seen {{.LastSeen}}
{{- if .Remediation}}
  Recommended action: {{.Remediation}}
{{- end}}
{{end}}{{end}}{{if .HasIPS}}
THREAT ANALYSIS
===============
{{.IPSTotal}} intrusion events: {{.IPSBlocked}} blocked, {{.IPSDetected}} detected.
{{- if .DetectionModeNote}}
NOTE: {{.DetectionModeNote}}
{{- end}}
{{if .BlockedThreats}}
Blocked:
{{- range .BlockedThreats}}
  [{{.Severity}}] {{.Category}} x{{.Count}}{{if .Cybersecure}} [CyberSecure]{{end}}
    {{.SampleSignature}}
{{- if .SourceIPs}}
    Sources: {{.SourceIPs}}
{{- end}}
{{- if .Remediation}}
    Recommended action: {{.Remediation}}
{{- end}}
{{- end}}
{{end}}{{if .DetectedThreats}}
Detected (not blocked):
{{- range .DetectedThreats}}
  [{{.Severity}}] {{.Category}} x{{.Count}}{{if .Cybersecure}} [CyberSecure]{{end}}
    {{.SampleSignature}}
{{- if .SourceIPs}}
    Sources: {{.SourceIPs}}
{{- end}}
{{- if .Remediation}}
    Recommended action: {{.Remediation}}
{{- end}}
{{- end}}
{{end}}{{if .TopSourceIPs}}
Noisy source addresses:
{{- range .TopSourceIPs}}
  {{.IP}} ({{.Scope}}, {{.Count}} events): {{.Categories}}
{{- end}}
{{end}}{{end}}{{if .HasHealth}}
DEVICE HEALTH
=============
{{- range .HealthFindings}}
[{{.Severity}}] {{.Title}}
  {{.Description}}
{{- if .Remediation}}
  Recommended action: {{.Remediation}}
{{- end}}
{{- end}}
{{range .DeviceSummaries}}  {{.Name}} ({{.Type}}): {{.Status}}
{{end}}{{end}}{{end}}
--
unifi-scanner; {{.EventCount}} events processed
`
