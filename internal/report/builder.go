// Package report assembles and renders the scanner's output document.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/unifiscan/unifi-scanner/internal/models"
)

// BuildInput carries everything a tick produced into the report.
type BuildInput struct {
	Site           string
	ControllerType string
	PeriodStart    time.Time
	Findings       []models.Finding
	IPSAnalysis    *models.ThreatAnalysisResult
	HealthAnalysis *models.DeviceHealthResult
	EventCount     int
	IPSEventCount  int
}

// Build assembles the report document. The period runs from the collection
// window start to generation time; all timestamps stay UTC until rendering.
func Build(in BuildInput) models.Report {
	now := time.Now().UTC()
	r := models.Report{
		ID:             uuid.NewString(),
		GeneratedAt:    now,
		PeriodStart:    in.PeriodStart.UTC(),
		PeriodEnd:      now,
		Site:           in.Site,
		ControllerType: in.ControllerType,
		Findings:       in.Findings,
		EventCount:     in.EventCount,
		IPSEventCount:  in.IPSEventCount,
	}
	if !in.IPSAnalysis.Empty() {
		r.IPSAnalysis = in.IPSAnalysis
	}
	if !in.HealthAnalysis.Empty() {
		r.HealthAnalysis = in.HealthAnalysis
	}
	return r
}
