package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"splpulse/internal/cache"
	"splpulse/internal/config"
	"splpulse/internal/errs"
	"splpulse/internal/models"
)

const aggregatorBatchSize = 30

// AggregatorSource is the primary QuoteSource (§4.D.1): a multi-pair
// market aggregator queried in batches of up to 30 mints, floored at one
// request per 200ms, with a short positive cache. Grounded on the
// teacher's internal/market.FetchFlowPrice for the one-shot HTTP+JSON
// fetch shape and internal/api/ratelimit.go for the token-bucket style.
type AggregatorSource struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	store      cache.Store
	cacheTTL   time.Duration

	nativeMint, stableMint string
}

// NewAggregatorSource constructs the aggregator provider.
func NewAggregatorSource(baseURL, apiKey string, store cache.Store, cacheTTL time.Duration) *AggregatorSource {
	return &AggregatorSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		store:      store,
		cacheTTL:   cacheTTL,
		nativeMint: config.NativeMint,
		stableMint: config.StableMint,
	}
}

func (a *AggregatorSource) Name() string { return "aggregator" }

// SingleQuote fetches one mint via BatchQuote; the aggregator API has no
// cheaper single-mint path.
func (a *AggregatorSource) SingleQuote(ctx context.Context, mint string) (*models.Quote, error) {
	quotes, err := a.BatchQuote(ctx, []string{mint})
	if err != nil {
		return nil, err
	}
	return quotes[mint], nil
}

// BatchQuote fetches quotes for up to aggregatorBatchSize mints per
// request, chunking larger requests, and caches each successful pair
// selection under "quote:aggregator:<mint>" for cacheTTL.
func (a *AggregatorSource) BatchQuote(ctx context.Context, mints []string) (map[string]*models.Quote, error) {
	out := make(map[string]*models.Quote, len(mints))
	remaining := make([]string, 0, len(mints))
	for _, m := range mints {
		if raw, ok := a.store.Get(a.cacheKey(m)); ok {
			var q models.Quote
			if json.Unmarshal(raw, &q) == nil {
				out[m] = &q
				continue
			}
		}
		remaining = append(remaining, m)
	}
	if len(remaining) == 0 {
		return out, nil
	}

	for start := 0; start < len(remaining); start += aggregatorBatchSize {
		end := start + aggregatorBatchSize
		if end > len(remaining) {
			end = len(remaining)
		}
		chunk := remaining[start:end]
		if err := a.limiter.Wait(ctx); err != nil {
			return out, err
		}
		byMint, err := a.fetchChunk(ctx, chunk)
		if err != nil {
			return out, err
		}
		for mint, pairs := range byMint {
			best, ok := SelectPair(mint, pairs, a.nativeMint, a.stableMint)
			if !ok {
				continue
			}
			q := &models.Quote{
				Mint:         mint,
				PriceUsd:     best.PriceUsd,
				PriceNative:  best.PriceNative,
				LiquidityUsd: best.LiquidityUsd,
				Volume24h:    best.Volume24h,
				VenueId:      best.VenueId,
				PairId:       best.PairId,
				AsOf:         time.Now(),
			}
			out[mint] = q
			if raw, err := json.Marshal(q); err == nil {
				a.store.SetWithTTL(a.cacheKey(mint), raw, a.cacheTTL)
			}
		}
	}
	return out, nil
}

func (a *AggregatorSource) cacheKey(mint string) string {
	return "quote:aggregator:" + mint
}

type aggregatorPairDTO struct {
	Mint         string  `json:"mint"`
	VenueId      string  `json:"venueId"`
	PairId       string  `json:"pairId"`
	QuoteMint    string  `json:"quoteMint"`
	PriceUsd     float64 `json:"priceUsd"`
	PriceNative  float64 `json:"priceNative"`
	LiquidityUsd float64 `json:"liquidityUsd"`
	Volume24h    float64 `json:"volume24h"`
	TxnCount24h  int     `json:"txnCount24h"`
	IsLaunch     bool    `json:"isLaunch"`
}

func (a *AggregatorSource) fetchChunk(ctx context.Context, mints []string) (map[string][]AggregatorPair, error) {
	url := fmt.Sprintf("%s/pairs?mints=%s", a.baseURL, strings.Join(mints, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "splpulse/1.0")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &errs.UpstreamUnavailable{Source: a.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &errs.Throttled{Source: a.Name(), RetryAfter: parseRetryAfterHeader(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &errs.UpstreamUnavailable{Source: a.Name(), Err: fmt.Errorf("status %s", resp.Status)}
	}

	var payload []aggregatorPairDTO
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &errs.UpstreamUnavailable{Source: a.Name(), Err: fmt.Errorf("decode: %w", err)}
	}

	byMint := make(map[string][]AggregatorPair)
	for _, dto := range payload {
		byMint[dto.Mint] = append(byMint[dto.Mint], AggregatorPair{
			VenueId:      dto.VenueId,
			PairId:       dto.PairId,
			QuoteMint:    dto.QuoteMint,
			PriceUsd:     dto.PriceUsd,
			PriceNative:  dto.PriceNative,
			LiquidityUsd: dto.LiquidityUsd,
			Volume24h:    dto.Volume24h,
			TxnCount24h:  dto.TxnCount24h,
			IsLaunch:     dto.IsLaunch,
		})
	}
	return byMint, nil
}

func parseRetryAfterHeader(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := time.ParseDuration(v + "s"); err == nil {
		return secs
	}
	return 0
}
