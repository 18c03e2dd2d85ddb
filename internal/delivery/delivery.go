// Package delivery fans a rendered report out to the configured channels.
// Delivery succeeds when at least one channel succeeds; the checkpoint only
// advances on success.
package delivery

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	scanerrors "github.com/unifiscan/unifi-scanner/internal/errors"
	"github.com/unifiscan/unifi-scanner/internal/metrics"
	"github.com/unifiscan/unifi-scanner/internal/models"
)

// Rendered is a report plus its two renditions.
type Rendered struct {
	Report models.Report
	HTML   string
	Text   string
}

// Channel delivers one rendered report somewhere.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, r Rendered) error
}

// Manager runs the channels in registration order.
type Manager struct {
	channels []Channel
}

// NewManager creates a manager over the given channels.
func NewManager(channels ...Channel) *Manager {
	return &Manager{channels: channels}
}

// Deliver runs every channel. Returns nil when at least one succeeded, the
// last channel error when all failed.
func (m *Manager) Deliver(ctx context.Context, r Rendered) error {
	if len(m.channels) == 0 {
		return scanerrors.New(scanerrors.ErrorTypeDelivery, "deliver", "",
			fmt.Errorf("no delivery channels configured"))
	}

	succeeded := 0
	var lastErr error
	for _, ch := range m.channels {
		if err := ch.Deliver(ctx, r); err != nil {
			lastErr = err
			metrics.DeliveryFailures.WithLabelValues(ch.Name()).Inc()
			log.Error().Err(err).Str("channel", ch.Name()).Msg("Delivery channel failed")
			continue
		}
		succeeded++
		log.Info().Str("channel", ch.Name()).Str("report", r.Report.ID).Msg("Report delivered")
	}

	if succeeded == 0 {
		return lastErr
	}
	if lastErr != nil {
		log.Warn().
			Int("succeeded", succeeded).
			Int("failed", len(m.channels)-succeeded).
			Msg("Partial delivery; checkpoint will still advance")
	}
	return nil
}
