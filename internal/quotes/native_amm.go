package quotes

import (
	"context"
	"time"

	"splpulse/internal/config"
	"splpulse/internal/errs"
	"splpulse/internal/models"
)

// poolReader is the subset of the Chain Adapter this source needs,
// narrowed to keep the package testable without the RPC client.
type poolReader interface {
	FindPoolsForPair(ctx context.Context, mintA, mintB string) ([]models.PoolInfo, error)
	ReadPoolReserves(ctx context.Context, poolAddr, tokenMint string) (models.PoolReserves, error)
}

// NativeAMMSource is the lighter fallback QuoteSource (§4.D.2): it reads
// a single on-chain pool's reserves directly, used when the aggregator
// has nothing eligible for a mint. Grounded on the Chain Adapter's own
// pool-discovery and reserve-reading operations (§4.C); this source is a
// thin composition over those rather than a new upstream.
type NativeAMMSource struct {
	chain      poolReader
	nativeMint string
}

// NewNativeAMMSource constructs the fallback provider over a Chain Adapter.
func NewNativeAMMSource(chain poolReader) *NativeAMMSource {
	return &NativeAMMSource{chain: chain, nativeMint: config.NativeMint}
}

func (n *NativeAMMSource) Name() string { return "native-amm" }

// SingleQuote finds a pool pairing mint against the native mint and
// derives a price from raw reserves.
func (n *NativeAMMSource) SingleQuote(ctx context.Context, mint string) (*models.Quote, error) {
	pools, err := n.chain.FindPoolsForPair(ctx, mint, n.nativeMint)
	if err != nil {
		return nil, &errs.ChainUnavailable{Err: err}
	}
	if len(pools) == 0 {
		return nil, nil
	}

	pool := pools[0]
	reserves, err := n.chain.ReadPoolReserves(ctx, pool.PoolAddr, mint)
	if err != nil {
		return nil, &errs.ChainUnavailable{Err: err}
	}
	if reserves.TokenReserveRaw <= 0 || reserves.QuoteReserveRaw <= 0 {
		return nil, nil
	}

	tokenAmount := reserves.TokenReserveRaw / pow10(reserves.TokenDecimals)
	quoteAmount := reserves.QuoteReserveRaw / pow10(reserves.QuoteDecimals)
	priceNative := quoteAmount / tokenAmount

	return &models.Quote{
		Mint:        mint,
		PriceNative: priceNative,
		VenueId:     "on-chain",
		PairId:      pool.PoolAddr,
		AsOf:        time.Now(),
	}, nil
}

// BatchQuote has no cheaper batch path on-chain; it resolves each mint
// independently.
func (n *NativeAMMSource) BatchQuote(ctx context.Context, mints []string) (map[string]*models.Quote, error) {
	out := make(map[string]*models.Quote, len(mints))
	for _, m := range mints {
		q, err := n.SingleQuote(ctx, m)
		if err != nil {
			continue
		}
		if q != nil {
			out[m] = q
		}
	}
	return out, nil
}

func pow10(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}
