package delivery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unifiscan/unifi-scanner/internal/config"
	"github.com/unifiscan/unifi-scanner/internal/models"
	"github.com/unifiscan/unifi-scanner/internal/retry"
)

func testEmailChannel(to ...string) *EmailChannel {
	return NewEmailChannel(config.SMTPConfig{
		Host: "mail.example.com",
		Port: 587,
		From: "scanner@example.com",
		To:   to,
	}, retry.DefaultConfig())
}

func TestEmailSubjectLine(t *testing.T) {
	ch := testEmailChannel("ops@example.com")
	r := testRendered()

	assert.Equal(t, "Network Scan Report - Home Office - 2026-03-01", ch.subject(r))

	r.Report.Findings = []models.Finding{
		{Severity: models.SeveritySevere},
		{Severity: models.SeveritySevere},
		{Severity: models.SeverityLow},
	}
	assert.Equal(t, "[2 SEVERE] Network Scan Report - Home Office - 2026-03-01", ch.subject(r))
}

func TestEmailMessageStructure(t *testing.T) {
	ch := testEmailChannel("ops@example.com", "admin@example.com")
	msg := string(ch.buildMessage(testRendered()))

	assert.Contains(t, msg, "From: scanner@example.com\r\n")
	assert.Contains(t, msg, "To: ops@example.com, admin@example.com\r\n")
	assert.Contains(t, msg, "MIME-Version: 1.0\r\n")
	assert.Contains(t, msg, "multipart/alternative")
	assert.Contains(t, msg, "Content-Type: text/plain; charset=utf-8")
	assert.Contains(t, msg, "Content-Type: text/html; charset=utf-8")
	assert.Contains(t, msg, "<html>report</html>")

	// Plain part must come before the HTML part.
	plainIdx := indexOf(msg, "text/plain")
	htmlIdx := indexOf(msg, "text/html")
	assert.Less(t, plainIdx, htmlIdx)
}

func TestEmailNoRecipientsFailsFast(t *testing.T) {
	ch := testEmailChannel()
	err := ch.Deliver(context.Background(), testRendered())
	assert.Error(t, err)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
