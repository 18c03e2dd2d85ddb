package analysis

import (
	"sort"
	"time"

	"github.com/unifiscan/unifi-scanner/internal/models"
)

// DefaultDedupWindow is how long two findings with the same identity are
// considered the same incident.
const DefaultDedupWindow = time.Hour

// findingKey is the dedup identity. DeviceMAC is empty for system-scope
// events.
type findingKey struct {
	EventType string
	DeviceMAC string
}

// FindingStore merges findings keyed on (event_type, device_mac) inside a
// sliding time window. Not safe for concurrent use; the pipeline is
// sequential.
type FindingStore struct {
	window   time.Duration
	findings map[findingKey]*models.Finding
	order    []findingKey // insertion order, for stable output
}

// NewFindingStore creates a store with the given window (DefaultDedupWindow
// when zero).
func NewFindingStore(window time.Duration) *FindingStore {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &FindingStore{
		window:   window,
		findings: make(map[findingKey]*models.Finding),
	}
}

// Add merges the finding into the store. When an existing finding with the
// same identity was last seen within the window, the occurrence count grows
// and timestamps/source ids are merged; otherwise the finding is stored
// fresh. Returns the stored finding.
func (s *FindingStore) Add(f models.Finding, at time.Time) *models.Finding {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	key := findingKey{EventType: f.EventType, DeviceMAC: f.DeviceMAC}

	if existing, ok := s.findings[key]; ok && at.Sub(existing.LastSeen) <= s.window {
		existing.OccurrenceCount++
		if at.After(existing.LastSeen) {
			existing.LastSeen = at
		}
		if at.Before(existing.FirstSeen) {
			existing.FirstSeen = at
		}
		existing.SourceEventIDs = unionIDs(existing.SourceEventIDs, f.SourceEventIDs)
		return existing
	}

	stored := f
	stored.FirstSeen = at
	stored.LastSeen = at
	if stored.OccurrenceCount < 1 {
		stored.OccurrenceCount = 1
	}
	if _, tracked := s.findings[key]; !tracked {
		s.order = append(s.order, key)
	}
	s.findings[key] = &stored
	return &stored
}

// Seed preloads the store with findings from a previous run (the on-disk
// history) so a restart inside the dedup window keeps merging rather than
// double-reporting.
func (s *FindingStore) Seed(findings []models.Finding) {
	for i := range findings {
		f := findings[i]
		key := findingKey{EventType: f.EventType, DeviceMAC: f.DeviceMAC}
		if _, ok := s.findings[key]; ok {
			continue
		}
		copied := f
		s.findings[key] = &copied
		s.order = append(s.order, key)
	}
}

// Len returns the number of distinct findings held.
func (s *FindingStore) Len() int {
	return len(s.findings)
}

// Sorted returns the findings ordered for report output: severity descending,
// then last_seen descending.
func (s *FindingStore) Sorted() []models.Finding {
	ptrs := make([]*models.Finding, 0, len(s.findings))
	for _, key := range s.order {
		if f, ok := s.findings[key]; ok {
			ptrs = append(ptrs, f)
		}
	}
	return SortFindings(ptrs)
}

// SortFindings orders findings for report output: severity descending, then
// last_seen descending.
func SortFindings(findings []*models.Finding) []models.Finding {
	out := make([]models.Finding, 0, len(findings))
	for _, f := range findings {
		out = append(out, *f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity.Rank() != out[j].Severity.Rank() {
			return out[i].Severity.Rank() > out[j].Severity.Rank()
		}
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

func unionIDs(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a))
	for _, id := range a {
		seen[id] = true
	}
	for _, id := range b {
		if id != "" && !seen[id] {
			seen[id] = true
			a = append(a, id)
		}
	}
	return a
}
