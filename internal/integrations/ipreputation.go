package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unifiscan/unifi-scanner/internal/config"
	"github.com/unifiscan/unifi-scanner/internal/models"
)

// IPReputation looks up the report's noisy external source addresses against
// a reputation service and annotates the results.
type IPReputation struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewIPReputation creates the integration, or nil when configuration is
// incomplete. Partial configuration is a warning, never an error.
func NewIPReputation(cfg config.IPReputationConfig) *IPReputation {
	if cfg.URL == "" && cfg.APIKey == "" {
		return nil
	}
	if cfg.URL == "" || cfg.APIKey == "" {
		log.Warn().Msg("IP reputation integration partially configured, excluding it")
		return nil
	}
	return &IPReputation{
		baseURL:    cfg.URL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Name identifies the integration in results and logs.
func (r *IPReputation) Name() string { return "ip_reputation" }

type reputationResponse struct {
	Score      int    `json:"score"` // 0 clean, 100 worst
	Categories string `json:"categories"`
}

// Enrich looks up each external noisy source IP. Internal addresses are
// skipped; the registry has nothing useful to say about RFC1918 space.
func (r *IPReputation) Enrich(ctx context.Context, report *models.Report) (*Enrichment, error) {
	if report.IPSAnalysis == nil || len(report.IPSAnalysis.TopSourceIPs) == 0 {
		return &Enrichment{Integration: r.Name()}, nil
	}

	notes := make(map[string]string)
	for _, src := range report.IPSAnalysis.TopSourceIPs {
		if src.Internal {
			continue
		}
		score, categories, err := r.lookup(ctx, src.IP)
		if err != nil {
			return nil, err
		}
		note := fmt.Sprintf("reputation score %d", score)
		if categories != "" {
			note += " (" + categories + ")"
		}
		notes[src.IP] = note
	}
	return &Enrichment{Integration: r.Name(), Notes: notes}, nil
}

func (r *IPReputation) lookup(ctx context.Context, ip string) (int, string, error) {
	u := fmt.Sprintf("%s/check?ip=%s", r.baseURL, url.QueryEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Key", r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return 0, "", err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("reputation lookup for %s returned status %d", ip, resp.StatusCode)
	}

	var parsed reputationResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, "", fmt.Errorf("malformed reputation response: %w", err)
	}
	return parsed.Score, parsed.Categories, nil
}
