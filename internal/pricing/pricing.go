// Package pricing implements the Pricing Engine (§4.G): the
// multi-source composition that turns a mint into a PriceSnapshot,
// persists it, and publishes it for the Broadcast Hub. Grounded on the
// teacher's internal/ingester/service.go update pipeline (validate →
// compute → persist → emit) and internal/market's provider-fallback
// style (price.go first, cryptocompare.go as history fallback).
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"splpulse/internal/cache"
	"splpulse/internal/chain"
	"splpulse/internal/config"
	"splpulse/internal/errs"
	"splpulse/internal/models"
	"splpulse/internal/quotes"
	"splpulse/internal/validator"
)

const (
	nativePriceCacheTTL = 5 * time.Second
	nativeUsdCacheTTL   = 30 * time.Second
	minPoolReserveUsd   = 1000

	// documentedNativeUsdFallback is the last-resort constant permitted
	// by §4.G when no aggregator or pool-derived native/USD price can be
	// found. It is intentionally conservative and logged whenever used.
	documentedNativeUsdFallback = 150.0
)

// chainReader is the subset of the Chain Adapter the engine needs,
// narrowed so it can be faked in tests without an RPC endpoint.
type chainReader interface {
	ReadSupply(ctx context.Context, mint string) (chain.SupplyInfo, error)
	FindPoolsForPair(ctx context.Context, mintA, mintB string) ([]models.PoolInfo, error)
	ReadPoolReserves(ctx context.Context, poolAddr, tokenMint string) (models.PoolReserves, error)
}

// priceStore is the subset of the Persistent Store the engine needs.
type priceStore interface {
	UpsertLatestAndAppendHistory(ctx context.Context, snap models.PriceSnapshot) error
	PurgeMint(ctx context.Context, mint string) error
	GetLatest(ctx context.Context, mint string) (*models.LatestState, error)
}

// mintValidator is the subset of the Token Validator the engine needs.
type mintValidator interface {
	Validate(ctx context.Context, mint string) (validator.Result, error)
	ValidateBatch(ctx context.Context, mints []string) map[string]validator.Result
}

// Engine is the Pricing Engine.
type Engine struct {
	repo       priceStore
	store      cache.Store
	chain      chainReader
	aggregator quotes.QuoteSource
	validator  mintValidator

	nativeMint, stableMint string
}

// New constructs a Pricing Engine.
func New(repo priceStore, store cache.Store, chainAdapter chainReader, aggregator quotes.QuoteSource, v mintValidator) *Engine {
	return &Engine{
		repo:       repo,
		store:      store,
		chain:      chainAdapter,
		aggregator: aggregator,
		validator:  v,
		nativeMint: config.NativeMint,
		stableMint: config.StableMint,
	}
}

// priceOf composes a full PriceSnapshot for mint (§4.G priceOf).
func (e *Engine) priceOf(ctx context.Context, mint string) (models.PriceSnapshot, error) {
	var supply chain.SupplyInfo
	var priceNative, nativeUsd float64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := e.chain.ReadSupply(gctx, mint)
		if err != nil {
			return err
		}
		supply = s
		return nil
	})
	g.Go(func() error {
		p, err := e.nativePriceForMint(gctx, mint)
		if err != nil {
			return err
		}
		priceNative = p
		return nil
	})
	g.Go(func() error {
		u, err := e.nativeUsdPrice(gctx)
		if err != nil {
			return err
		}
		nativeUsd = u
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.PriceSnapshot{}, err
	}

	supplyNormalised := supply.Raw / pow10(supply.Decimals)
	priceUsd := priceNative * nativeUsd

	return models.PriceSnapshot{
		Mint:        mint,
		PriceUsd:    priceUsd,
		PriceNative: priceNative,
		MarketCap:   priceUsd * supplyNormalised,
		TotalSupply: supplyNormalised,
		AsOf:        time.Now(),
	}, nil
}

// nativePriceForMint implements the §4.G dispatch: native short-circuit,
// then aggregator, then a chain-pool derivation, cached up to 5s.
func (e *Engine) nativePriceForMint(ctx context.Context, mint string) (float64, error) {
	if mint == e.nativeMint {
		return 1, nil
	}

	cacheKey := "token_price_native:" + mint
	if raw, ok := e.store.Get(cacheKey); ok {
		var v float64
		if json.Unmarshal(raw, &v) == nil {
			return v, nil
		}
	}

	if q, err := e.aggregator.SingleQuote(ctx, mint); err == nil && q != nil && q.PriceNative > 0 {
		e.cacheFloat(cacheKey, q.PriceNative, nativePriceCacheTTL)
		return q.PriceNative, nil
	}

	price, err := e.priceFromChainPool(ctx, mint, e.nativeMint)
	if err != nil {
		return 0, err
	}
	e.cacheFloat(cacheKey, price, nativePriceCacheTTL)
	return price, nil
}

// nativeUsdPrice derives the native mint's USD price against the stable
// mint, cached up to 30s, falling back to a documented constant.
func (e *Engine) nativeUsdPrice(ctx context.Context) (float64, error) {
	const cacheKey = "native_usd_price"
	if raw, ok := e.store.Get(cacheKey); ok {
		var v float64
		if json.Unmarshal(raw, &v) == nil {
			return v, nil
		}
	}

	if q, err := e.aggregator.SingleQuote(ctx, e.nativeMint); err == nil && q != nil && q.PriceUsd > 0 {
		e.cacheFloat(cacheKey, q.PriceUsd, nativeUsdCacheTTL)
		return q.PriceUsd, nil
	}

	price, err := e.priceFromChainPool(ctx, e.nativeMint, e.stableMint)
	if err != nil {
		log.Printf("[pricing] native/USD pool lookup failed, using documented fallback: %v", err)
		e.cacheFloat(cacheKey, documentedNativeUsdFallback, nativeUsdCacheTTL)
		return documentedNativeUsdFallback, nil
	}
	e.cacheFloat(cacheKey, price, nativeUsdCacheTTL)
	return price, nil
}

// priceFromChainPool finds pools for (base, quote), rejects any with a
// USD-equivalent reserve below minPoolReserveUsd, and prices from the
// pool with the largest qualifying reserve.
func (e *Engine) priceFromChainPool(ctx context.Context, base, quote string) (float64, error) {
	pools, err := e.chain.FindPoolsForPair(ctx, base, quote)
	if err != nil {
		return 0, &errs.ChainUnavailable{Err: err}
	}
	if len(pools) == 0 {
		return 0, &errs.ChainUnavailable{Err: fmt.Errorf("no pool found for %s/%s", base, quote)}
	}

	var bestPrice float64
	var bestReserve float64
	found := false
	for _, pool := range pools {
		reserves, err := e.chain.ReadPoolReserves(ctx, pool.PoolAddr, base)
		if err != nil {
			continue
		}
		baseAmount := reserves.TokenReserveRaw / pow10(reserves.TokenDecimals)
		quoteAmount := reserves.QuoteReserveRaw / pow10(reserves.QuoteDecimals)
		if baseAmount <= 0 || quoteAmount <= 0 || quoteAmount < minPoolReserveUsd {
			continue
		}
		if quoteAmount > bestReserve {
			bestReserve = quoteAmount
			bestPrice = quoteAmount / baseAmount
			found = true
		}
	}
	if !found {
		return 0, &errs.ChainUnavailable{Err: fmt.Errorf("no pool for %s/%s meets the minimum reserve", base, quote)}
	}
	return bestPrice, nil
}

func (e *Engine) cacheFloat(key string, v float64, ttl time.Duration) {
	if raw, err := json.Marshal(v); err == nil {
		e.store.SetWithTTL(key, raw, ttl)
	}
}

// UpdateMint implements §4.G updateMint: validate, compute, persist
// atomically, publish. Returns the committed snapshot.
func (e *Engine) UpdateMint(ctx context.Context, mint string) (models.PriceSnapshot, error) {
	result, err := e.validator.Validate(ctx, mint)
	if err != nil {
		return models.PriceSnapshot{}, err
	}
	if !result.Valid {
		_ = e.repo.PurgeMint(ctx, mint)
		return models.PriceSnapshot{}, &errs.InvalidMint{Mint: mint, Reason: result.Reason}
	}

	snapshot, err := e.priceOf(ctx, mint)
	if err != nil {
		return models.PriceSnapshot{}, err
	}

	if err := e.repo.UpsertLatestAndAppendHistory(ctx, snapshot); err != nil {
		return models.PriceSnapshot{}, &errs.PersistenceError{Err: err}
	}

	if raw, err := json.Marshal(snapshot); err == nil {
		e.store.Publish("price_update", raw)
	}
	return snapshot, nil
}

// BatchUpdate validates every mint, purging invalid ones, then updates
// the remaining mints concurrently, preserving the per-mint
// persist-then-publish invariant (§4.G batchUpdate).
func (e *Engine) BatchUpdate(ctx context.Context, mints []string) map[string]error {
	results := e.validator.ValidateBatch(ctx, mints)

	var valid []string
	out := make(map[string]error, len(mints))
	for _, m := range mints {
		r := results[m]
		if !r.Valid {
			_ = e.repo.PurgeMint(ctx, m)
			out[m] = &errs.InvalidMint{Mint: m, Reason: r.Reason}
			continue
		}
		valid = append(valid, m)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, m := range valid {
		wg.Add(1)
		go func(mint string) {
			defer wg.Done()
			_, err := e.UpdateMint(ctx, mint)
			mu.Lock()
			out[mint] = err
			mu.Unlock()
		}(m)
	}
	wg.Wait()
	return out
}

// CurrentOf reads the most recent persisted snapshot for mint, if any.
func (e *Engine) CurrentOf(ctx context.Context, mint string) (*models.PriceSnapshot, error) {
	latest, err := e.repo.GetLatest(ctx, mint)
	if err != nil {
		return nil, &errs.PersistenceError{Err: err}
	}
	if latest == nil {
		return nil, nil
	}
	return &models.PriceSnapshot{
		Mint:        latest.Mint,
		PriceUsd:    latest.PriceUsd,
		PriceNative: latest.PriceNative,
		MarketCap:   latest.MarketCap,
		TotalSupply: latest.TotalSupply,
		AsOf:        latest.LastUpdated,
	}, nil
}

func pow10(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}
