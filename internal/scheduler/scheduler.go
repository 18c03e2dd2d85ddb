// Package scheduler drives the daemon's poll loop: one tick collects,
// analyzes, reports, delivers, and only then advances the checkpoint.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unifiscan/unifi-scanner/internal/analysis"
	"github.com/unifiscan/unifi-scanner/internal/collector"
	"github.com/unifiscan/unifi-scanner/internal/delivery"
	"github.com/unifiscan/unifi-scanner/internal/health"
	"github.com/unifiscan/unifi-scanner/internal/history"
	"github.com/unifiscan/unifi-scanner/internal/integrations"
	"github.com/unifiscan/unifi-scanner/internal/metrics"
	"github.com/unifiscan/unifi-scanner/internal/models"
	"github.com/unifiscan/unifi-scanner/internal/report"
	"github.com/unifiscan/unifi-scanner/internal/state"
)

// Session is the authenticated-controller surface the scheduler drives.
// Every tick starts with a fresh login and ends with a logout.
type Session interface {
	Authenticate(ctx context.Context) error
	Logout(ctx context.Context)
}

// EventCollector is the collection surface of one tick.
type EventCollector interface {
	Collect(ctx context.Context, lastRun *time.Time) (*collector.Result, error)
}

// Deliverer fans the rendered report out.
type Deliverer interface {
	Deliver(ctx context.Context, r delivery.Rendered) error
}

// Deps wires the scheduler's collaborators. History and Integrations may be
// nil.
type Deps struct {
	Session        Session
	Collector      EventCollector
	Engine         *analysis.Engine
	IPSAnalyzer    *analysis.IPSAnalyzer
	HealthAnalyzer *analysis.HealthAnalyzer
	Renderer       *report.Renderer
	Deliverer      Deliverer
	State          *state.Store
	History        *history.Store
	Health         *health.Writer
	Integrations   *integrations.Runner

	Site           string
	ControllerType string
	DedupWindow    time.Duration
	PollInterval   time.Duration
}

// Scheduler runs ticks, keeping the dedup store across them.
type Scheduler struct {
	deps     Deps
	findings *analysis.FindingStore
	seeded   bool
}

// New creates a scheduler. The finding store is seeded from history on the
// first tick.
func New(deps Deps) *Scheduler {
	if deps.DedupWindow <= 0 {
		deps.DedupWindow = analysis.DefaultDedupWindow
	}
	return &Scheduler{
		deps:     deps,
		findings: analysis.NewFindingStore(deps.DedupWindow),
	}
}

// ShutdownGrace bounds how long an in-flight tick may keep running after
// shutdown is requested.
const ShutdownGrace = 30 * time.Second

// Run executes ticks until the context is cancelled. The first tick fires
// immediately. A tick that overruns the interval delays the next one; missed
// intervals coalesce into a single tick, never a burst.
//
// Cancelling ctx stops the loop between ticks: an in-flight tick runs to
// completion on a detached context and is aborted only after ShutdownGrace.
func (s *Scheduler) Run(ctx context.Context) error {
	tickCtx, cancelTicks := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelTicks()

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-stopped:
		case <-ctx.Done():
			grace := time.NewTimer(ShutdownGrace)
			defer grace.Stop()
			select {
			case <-stopped:
			case <-grace.C:
				log.Warn().Dur("grace", ShutdownGrace).Msg("Shutdown grace expired, aborting in-flight tick")
				cancelTicks()
			}
		}
	}()

	ticker := time.NewTicker(s.deps.PollInterval)
	defer ticker.Stop()

	if err := s.Tick(tickCtx); err != nil {
		log.Error().Err(err).Msg("Scan tick failed")
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(tickCtx); err != nil {
				log.Error().Err(err).Msg("Scan tick failed")
			}
		}
	}
}

// Tick runs one full scan cycle. Any error leaves the checkpoint untouched so
// the next tick re-covers the same window.
func (s *Scheduler) Tick(ctx context.Context) error {
	started := time.Now()
	err := s.tick(ctx)
	metrics.TickDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		metrics.TicksTotal.WithLabelValues("failure").Inc()
		if s.deps.Health != nil {
			_ = s.deps.Health.Set(health.StatusUnhealthy, err.Error())
		}
		return err
	}
	metrics.TicksTotal.WithLabelValues("success").Inc()
	if s.deps.Health != nil {
		_ = s.deps.Health.Set(health.StatusHealthy, "")
	}
	return nil
}

func (s *Scheduler) tick(ctx context.Context) error {
	// 1. checkpoint
	runState, err := s.deps.State.Read()
	if err != nil {
		return err
	}
	var lastRun *time.Time
	if runState != nil {
		lastRun = &runState.LastSuccessfulRun
	}

	s.seedFromHistory(ctx)

	// 2. fresh session
	if err := s.deps.Session.Authenticate(ctx); err != nil {
		return err
	}
	defer s.deps.Session.Logout(ctx)

	// 3. collect
	collected, err := s.deps.Collector.Collect(ctx, lastRun)
	if err != nil {
		return err
	}
	metrics.EventsCollected.Add(float64(len(collected.Events)))
	metrics.IPSEventsCollected.Add(float64(len(collected.IPSEvents)))
	metrics.ParseFailures.Add(float64(collected.ParseFailures))

	// 4. classify events through the dedup store. Only findings touched this
	// tick appear in the report; the store carries merge state across ticks.
	s.deps.Engine.ResetCounters()
	touched := make(map[*models.Finding]bool)
	var tickFindings []*models.Finding
	for _, evt := range collected.Events {
		for _, f := range s.deps.Engine.Analyze(evt) {
			stored := s.findings.Add(f, evt.Time)
			if !touched[stored] {
				touched[stored] = true
				tickFindings = append(tickFindings, stored)
			}
		}
	}
	for evtType, count := range s.deps.Engine.UnknownTypes() {
		metrics.UnknownEventTypes.Add(float64(count))
		log.Debug().Str("eventType", evtType).Int("count", count).Msg("Unclassified event type")
	}

	findings := analysis.SortFindings(tickFindings)
	for _, f := range findings {
		metrics.FindingsTotal.WithLabelValues(string(f.Severity)).Inc()
	}

	// 5. IPS and device health analysis
	ipsResult := s.deps.IPSAnalyzer.Analyze(collected.IPSEvents)

	var healthResult *models.DeviceHealthResult
	if collected.DeviceFetchErr == nil && s.deps.HealthAnalyzer != nil {
		healthResult = s.deps.HealthAnalyzer.Analyze(collected.Devices, time.Now().UTC())
	}

	// 6. build and render
	doc := report.Build(report.BuildInput{
		Site:           s.deps.Site,
		ControllerType: s.deps.ControllerType,
		PeriodStart:    collected.Since,
		Findings:       findings,
		IPSAnalysis:    ipsResult,
		HealthAnalysis: healthResult,
		EventCount:     len(collected.Events),
		IPSEventCount:  len(collected.IPSEvents),
	})

	if s.deps.Integrations != nil && s.deps.Integrations.Len() > 0 {
		for _, res := range s.deps.Integrations.Run(ctx, &doc) {
			if res.Reason != "" {
				log.Warn().Str("integration", res.Integration).Str("reason", res.Reason).Msg("Integration excluded from report")
			}
		}
	}

	html, err := s.deps.Renderer.RenderHTML(doc)
	if err != nil {
		return err
	}
	text, err := s.deps.Renderer.RenderText(doc)
	if err != nil {
		return err
	}

	// 7. deliver, then checkpoint
	if err := s.deps.Deliverer.Deliver(ctx, delivery.Rendered{Report: doc, HTML: html, Text: text}); err != nil {
		return err
	}

	// The report is out; a failed checkpoint write must not fail the tick.
	// The next run re-covers the window and dedup absorbs the repeats.
	if err := s.deps.State.Write(doc.GeneratedAt, len(doc.Findings)); err != nil {
		log.Error().Err(err).Msg("Checkpoint write failed, next run will re-cover this window")
	}
	metrics.LastSuccessfulRun.Set(float64(doc.GeneratedAt.Unix()))

	if s.deps.History != nil {
		if err := s.deps.History.RecordReport(ctx, doc); err != nil {
			log.Warn().Err(err).Msg("Finding history write failed")
		}
		if err := s.deps.History.Prune(ctx, history.DefaultRetention); err != nil {
			log.Warn().Err(err).Msg("Finding history prune failed")
		}
	}

	log.Info().
		Str("report", doc.ID).
		Int("findings", len(doc.Findings)).
		Int("severe", doc.SevereCount()).
		Msg("Scan tick complete")
	return nil
}

// seedFromHistory preloads the dedup store once per process.
func (s *Scheduler) seedFromHistory(ctx context.Context) {
	if s.seeded {
		return
	}
	s.seeded = true
	if s.deps.History == nil {
		return
	}
	cutoff := time.Now().UTC().Add(-s.deps.DedupWindow)
	seed, err := s.deps.History.RecentFindings(ctx, cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("Finding history unreadable, starting with empty dedup state")
		return
	}
	if len(seed) > 0 {
		s.findings.Seed(seed)
		log.Debug().Int("findings", len(seed)).Msg("Seeded dedup state from history")
	}
}
