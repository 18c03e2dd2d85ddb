package integrations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/unifiscan/unifi-scanner/internal/models"
)

// perIntegrationTimeout bounds one provider call inside a tick.
const perIntegrationTimeout = 30 * time.Second

// Integration enriches a report with external data.
type Integration interface {
	Name() string
	// Enrich may annotate the result in place. The report itself is
	// read-only to integrations.
	Enrich(ctx context.Context, report *models.Report) (*Enrichment, error)
}

// Enrichment is one integration's contribution to the report context.
type Enrichment struct {
	Integration string            `json:"integration"`
	Notes       map[string]string `json:"notes,omitempty"`
}

// Result records one integration's outcome for the tick, whether or not it
// produced data.
type Result struct {
	Integration string
	Enrichment  *Enrichment
	Reason      string // empty on success: "circuit_open", "timeout_<dur>", "error:<msg>"
}

// Runner fans integrations out concurrently, each behind its own breaker.
type Runner struct {
	integrations []Integration
	breakers     map[string]*Breaker
}

// NewRunner creates a runner. Integrations with partial configuration should
// be excluded by the caller before registration.
func NewRunner(integrations ...Integration) *Runner {
	breakers := make(map[string]*Breaker, len(integrations))
	for _, integ := range integrations {
		breakers[integ.Name()] = NewBreaker()
	}
	return &Runner{integrations: integrations, breakers: breakers}
}

// Len returns the number of registered integrations.
func (r *Runner) Len() int {
	return len(r.integrations)
}

// Run executes every integration concurrently and returns their results.
// Never returns an error: integration failures degrade to reasons.
func (r *Runner) Run(ctx context.Context, report *models.Report) []Result {
	if len(r.integrations) == 0 {
		return nil
	}

	results := make([]Result, len(r.integrations))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, integ := range r.integrations {
		i, integ := i, integ
		g.Go(func() error {
			res := r.runOne(gctx, integ, report)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Runner) runOne(ctx context.Context, integ Integration, report *models.Report) Result {
	name := integ.Name()
	result := Result{Integration: name}

	breaker := r.breakers[name]
	if !breaker.Allow() {
		result.Reason = "circuit_open"
		log.Warn().Str("integration", name).Msg("Integration skipped, circuit open")
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, perIntegrationTimeout)
	defer cancel()

	enrichment, err := integ.Enrich(callCtx, report)
	switch {
	case err == nil:
		breaker.RecordSuccess()
		result.Enrichment = enrichment
	case errors.Is(err, context.DeadlineExceeded):
		breaker.RecordFailure()
		result.Reason = fmt.Sprintf("timeout_%s", perIntegrationTimeout)
		log.Warn().Str("integration", name).Dur("timeout", perIntegrationTimeout).Msg("Integration timed out")
	default:
		breaker.RecordFailure()
		result.Reason = "error:" + err.Error()
		log.Warn().Str("integration", name).Err(err).Msg("Integration failed")
	}
	return result
}
