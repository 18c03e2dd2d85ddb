package delivery

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unifiscan/unifi-scanner/internal/config"
	scanerrors "github.com/unifiscan/unifi-scanner/internal/errors"
	"github.com/unifiscan/unifi-scanner/internal/retry"
)

// EmailChannel delivers the report as a multipart/alternative message with
// text and HTML parts. Transport security is routed by port: 465 implicit
// TLS, otherwise STARTTLS when the server offers it (or is forced by config).
type EmailChannel struct {
	cfg      config.SMTPConfig
	retryCfg retry.Config
}

// NewEmailChannel creates the email channel.
func NewEmailChannel(cfg config.SMTPConfig, retryCfg retry.Config) *EmailChannel {
	if retryCfg.MaxAttempts <= 0 {
		retryCfg = retry.DefaultConfig()
	}
	return &EmailChannel{cfg: cfg, retryCfg: retryCfg}
}

// Name identifies the channel in logs.
func (c *EmailChannel) Name() string { return "email" }

// Deliver sends the report, retrying transient SMTP failures. Each attempt is
// one complete SMTP transaction.
func (c *EmailChannel) Deliver(ctx context.Context, r Rendered) error {
	if len(c.cfg.To) == 0 {
		return scanerrors.New(scanerrors.ErrorTypeDelivery, "smtp_send", c.cfg.Host,
			fmt.Errorf("no recipients configured"))
	}

	msg := c.buildMessage(r)

	err := retry.Do(ctx, c.retryCfg, scanerrors.IsRetryableError, func(ctx context.Context) error {
		if err := c.send(msg); err != nil {
			log.Warn().Err(err).Str("host", c.cfg.Host).Msg("SMTP send attempt failed")
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Debug().Strs("to", c.cfg.To).Msg("Report email sent")
	return nil
}

func (c *EmailChannel) subject(r Rendered) string {
	severe := r.Report.SevereCount()
	prefix := ""
	if severe > 0 {
		prefix = fmt.Sprintf("[%d SEVERE] ", severe)
	}
	return fmt.Sprintf("%sNetwork Scan Report - %s - %s",
		prefix, r.Report.Site, r.Report.GeneratedAt.UTC().Format("2006-01-02"))
}

const mimeBoundary = "unifi-scanner-alt-boundary"

func (c *EmailChannel) buildMessage(r Rendered) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", c.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(c.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", c.subject(r)))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", mimeBoundary)
	b.WriteString("\r\n")

	// Plain part first so simple clients pick it up; HTML last wins in
	// capable clients.
	fmt.Fprintf(&b, "--%s\r\n", mimeBoundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(r.Text)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", mimeBoundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(r.HTML)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", mimeBoundary)
	return []byte(b.String())
}

// send runs one SMTP transaction.
func (c *EmailChannel) send(msg []byte) error {
	port := c.cfg.Port
	if port <= 0 {
		port = 587
	}
	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", port))

	wrap := func(err error) error {
		return scanerrors.New(scanerrors.ErrorTypeDelivery, "smtp_send", c.cfg.Host, err)
	}

	var client *smtp.Client
	if port == 465 {
		// implicit TLS
		conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: c.cfg.Host})
		if err != nil {
			return wrap(err)
		}
		client, err = smtp.NewClient(conn, c.cfg.Host)
		if err != nil {
			_ = conn.Close()
			return wrap(err)
		}
	} else {
		var err error
		client, err = smtp.Dial(addr)
		if err != nil {
			return wrap(err)
		}
		useStartTLS := c.cfg.StartTLS == nil || *c.cfg.StartTLS
		if ok, _ := client.Extension("STARTTLS"); ok && useStartTLS {
			if err := client.StartTLS(&tls.Config{ServerName: c.cfg.Host}); err != nil {
				_ = client.Close()
				return wrap(err)
			}
		} else if c.cfg.StartTLS != nil && *c.cfg.StartTLS {
			_ = client.Close()
			return wrap(fmt.Errorf("server does not support STARTTLS"))
		}
	}
	defer client.Close()

	if c.cfg.Username != "" {
		auth := smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
		if err := client.Auth(auth); err != nil {
			// Auth rejection is not transient
			e := scanerrors.New(scanerrors.ErrorTypeDelivery, "smtp_auth", c.cfg.Host, err)
			e.Retryable = false
			return e
		}
	}

	if err := client.Mail(c.cfg.From); err != nil {
		return wrap(err)
	}
	for _, rcpt := range c.cfg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return wrap(err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return wrap(err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return wrap(err)
	}
	if err := w.Close(); err != nil {
		return wrap(err)
	}
	return client.Quit()
}
