package quotes

import (
	"context"

	"splpulse/internal/models"
)

// FallbackSource chains quote providers in priority order, returning the
// first non-nil quote for each mint. It composes the capability
// interface instead of the original design's provider class hierarchy
// (§9 design notes), letting the Pricing Engine depend on a single
// QuoteSource regardless of how many concrete providers back it.
type FallbackSource struct {
	sources []QuoteSource
}

// NewFallbackSource builds a FallbackSource trying each source in order.
func NewFallbackSource(sources ...QuoteSource) *FallbackSource {
	return &FallbackSource{sources: sources}
}

func (f *FallbackSource) Name() string { return "fallback" }

func (f *FallbackSource) SingleQuote(ctx context.Context, mint string) (*models.Quote, error) {
	var lastErr error
	for _, src := range f.sources {
		q, err := src.SingleQuote(ctx, mint)
		if err != nil {
			lastErr = err
			continue
		}
		if q != nil {
			return q, nil
		}
	}
	return nil, lastErr
}

func (f *FallbackSource) BatchQuote(ctx context.Context, mints []string) (map[string]*models.Quote, error) {
	remaining := append([]string(nil), mints...)
	out := make(map[string]*models.Quote, len(mints))

	var lastErr error
	for _, src := range f.sources {
		if len(remaining) == 0 {
			break
		}
		quotes, err := src.BatchQuote(ctx, remaining)
		if err != nil {
			lastErr = err
			continue
		}
		var next []string
		for _, m := range remaining {
			if q := quotes[m]; q != nil {
				out[m] = q
			} else {
				next = append(next, m)
			}
		}
		remaining = next
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}
