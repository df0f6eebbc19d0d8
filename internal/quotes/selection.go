package quotes

import (
	"math"

	"splpulse/internal/config"
)

// AggregatorPair is one candidate pair returned by the aggregator for a
// mint, before selection.
type AggregatorPair struct {
	VenueId      string
	PairId       string
	QuoteMint    string
	PriceUsd     float64
	PriceNative  float64
	LiquidityUsd float64
	Volume24h    float64
	TxnCount24h  int
	IsLaunch     bool
}

// isEligible applies §4.D.1 rules 1-3: drop launch venues without enough
// volume+liquidity; established venues need only liquidity; everything
// else needs both.
func isEligible(p AggregatorPair) bool {
	if p.IsLaunch {
		return p.Volume24h > 1000 && p.LiquidityUsd > 5000
	}
	if config.EstablishedVenues[p.VenueId] {
		return p.LiquidityUsd >= 500
	}
	return p.LiquidityUsd >= 500 && p.Volume24h >= 100
}

// score implements §4.D.1 rule 5, used to break ties among eligible pairs.
func score(p AggregatorPair) float64 {
	s := 0.3*p.LiquidityUsd + 0.4*p.Volume24h + 0.3*(200*float64(p.TxnCount24h))

	if config.EstablishedVenues[p.VenueId] {
		s += 50000
	}

	var penalty float64
	switch {
	case p.IsLaunch && p.Volume24h > 100000:
		penalty = -10000
	case p.IsLaunch:
		penalty = -100000
	}
	s -= penalty

	if p.LiquidityUsd > 0 && p.Volume24h/p.LiquidityUsd > 0.1 {
		s += 15000
	}
	if p.TxnCount24h > 50 {
		s += 5000
	}
	return s
}

// SelectPair implements the full §4.D.1 pair-selection pipeline: filter
// by eligibility, then prefer native-quoted, then stable-quoted, else the
// best score overall. Returns (nil, false) if nothing qualifies.
func SelectPair(mint string, candidates []AggregatorPair, nativeMint, stableMint string) (AggregatorPair, bool) {
	var eligible []AggregatorPair
	for _, p := range candidates {
		if isEligible(p) {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return AggregatorPair{}, false
	}

	if best, ok := bestByQuoteSide(eligible, nativeMint); ok {
		return best, true
	}
	if best, ok := bestByQuoteSide(eligible, stableMint); ok {
		return best, true
	}
	return bestByScore(eligible), true
}

func bestByQuoteSide(pairs []AggregatorPair, quoteMint string) (AggregatorPair, bool) {
	var matches []AggregatorPair
	for _, p := range pairs {
		if p.QuoteMint == quoteMint {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 {
		return AggregatorPair{}, false
	}
	return bestByScore(matches), true
}

func bestByScore(pairs []AggregatorPair) AggregatorPair {
	best := pairs[0]
	bestScore := score(best)
	for _, p := range pairs[1:] {
		if s := score(p); s > bestScore {
			best, bestScore = p, s
		}
	}
	return best
}

// ResolvePriceNative derives priceNative from priceUsd/nativeUsd when the
// pair itself carries no usable priceNative (§4.D.1 rule 6).
func ResolvePriceNative(priceNative, priceUsd, nativeUsd float64) float64 {
	if priceNative > 0 && !math.IsNaN(priceNative) {
		return priceNative
	}
	if nativeUsd > 0 {
		return priceUsd / nativeUsd
	}
	return 0
}
