// Package risk implements the Risk Scorer (§4.E): a thin client over an
// external risk-report API, cached for five minutes per mint, mapping a
// 404-shaped "not indexed" response to errs.NotIndexed rather than a
// hard failure. Grounded on the teacher's internal/market HTTP+JSON
// fetch shape (cryptocompare.go, price.go) and its status-code-to-error
// translation style.
package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"splpulse/internal/cache"
	"splpulse/internal/errs"
	"splpulse/internal/models"
)

const cacheTTL = 5 * time.Minute

// Scorer queries the external risk API and normalises its response into
// a models.RiskReport.
type Scorer struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	store      cache.Store
}

// NewScorer constructs a Risk Scorer.
func NewScorer(baseURL, apiKey string, store cache.Store) *Scorer {
	return &Scorer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		store:      store,
	}
}

type riskFactorDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Score       int    `json:"score"`
	Level       string `json:"level"`
}

type riskReportDTO struct {
	Score  int             `json:"score"`
	Rugged bool            `json:"rugged"`
	Risks  []riskFactorDTO `json:"risks"`
}

func (s *Scorer) cacheKey(mint string) string { return "risk:" + mint }

// Report returns the cached or freshly fetched risk report for a mint.
// A not-found upstream response yields errs.NotIndexed, which callers
// should treat as "no report available" rather than a failure.
func (s *Scorer) Report(ctx context.Context, mint string) (*models.RiskReport, error) {
	if raw, ok := s.store.Get(s.cacheKey(mint)); ok {
		var r models.RiskReport
		if json.Unmarshal(raw, &r) == nil {
			return &r, nil
		}
	}

	url := fmt.Sprintf("%s/tokens/%s/report", s.baseURL, mint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "splpulse/1.0")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &errs.UpstreamUnavailable{Source: "risk", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errs.NotIndexed
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &errs.Throttled{Source: "risk", RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &errs.UpstreamUnavailable{Source: "risk", Err: fmt.Errorf("status %s", resp.Status)}
	}

	var dto riskReportDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return nil, &errs.UpstreamUnavailable{Source: "risk", Err: fmt.Errorf("decode: %w", err)}
	}

	risks := make([]models.RiskFactor, 0, len(dto.Risks))
	for _, f := range dto.Risks {
		risks = append(risks, models.RiskFactor{
			Name:        f.Name,
			Description: f.Description,
			Score:       f.Score,
			Level:       models.RiskLevel(f.Level),
		})
	}

	report := &models.RiskReport{
		Mint:            mint,
		ScoreNormalised: dto.Score,
		Rugged:          dto.Rugged,
		Risks:           risks,
		Summary:         models.SummarizeRisks(risks),
		Overall:         models.DeriveOverall(dto.Rugged, dto.Score),
	}

	if raw, err := json.Marshal(report); err == nil {
		s.store.SetWithTTL(s.cacheKey(mint), raw, cacheTTL)
	}
	return report, nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v + "s"); err == nil {
		return d
	}
	return 0
}
