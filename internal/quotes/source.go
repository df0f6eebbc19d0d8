// Package quotes implements the Quote Sources (§4.D): a capability
// interface (QuoteSource) with two independent providers — an
// aggregator and a lighter native-AMM fallback — and the pair-selection
// and scoring rules used to pick among multiple candidate pairs for a
// mint.
//
// Grounded on the teacher's internal/market package for the one-shot
// HTTP+JSON fetch shape (context-scoped request, explicit timeout,
// status check before decode) and internal/api/ratelimit.go for the
// token-bucket rate limiting style (golang.org/x/time/rate).
package quotes

import (
	"context"

	"splpulse/internal/models"
)

// QuoteSource is the capability every provider implements, replacing the
// class-hierarchy polymorphism the original design used for upstream
// market-data providers (§9 design notes).
type QuoteSource interface {
	// Name identifies the source for cache keys and logging.
	Name() string
	// SingleQuote returns the best candidate quote for one mint, or
	// (nil, nil) if the source has nothing usable.
	SingleQuote(ctx context.Context, mint string) (*models.Quote, error)
	// BatchQuote returns quotes for as many of the requested mints as
	// the source can serve in one round of calls.
	BatchQuote(ctx context.Context, mints []string) (map[string]*models.Quote, error)
}
