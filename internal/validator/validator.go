// Package validator implements the Token Validator (§4.F): a syntactic
// base58 check followed by a cache-through on-chain validation, so
// repeated subscriptions for the same mint do not re-hit the chain
// within the cache window. Grounded on the teacher's
// internal/api/response_cache.go cache-through shape.
package validator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mr-tron/base58"

	"splpulse/internal/cache"
	"splpulse/internal/chain"
)

const cacheTTL = time.Hour

// Validator wraps a Chain Adapter with a cache-through validation layer.
type Validator struct {
	chain *chain.Adapter
	store cache.Store
}

// New constructs a Token Validator.
func New(chainAdapter *chain.Adapter, store cache.Store) *Validator {
	return &Validator{chain: chainAdapter, store: store}
}

// Result is the outcome of Validate.
type Result struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

func cacheKey(mint string) string { return "validation:" + mint }

// Validate checks a mint's base58 syntax first (no chain round-trip for
// malformed input) and then performs a cache-through on-chain check.
func (v *Validator) Validate(ctx context.Context, mint string) (Result, error) {
	if !isWellFormed(mint) {
		return Result{Valid: false, Reason: "not a well-formed base58 address"}, nil
	}

	if raw, ok := v.store.Get(cacheKey(mint)); ok {
		var r Result
		if json.Unmarshal(raw, &r) == nil {
			return r, nil
		}
	}

	outcome, err := v.chain.ValidateMint(ctx, mint)
	if err != nil {
		return Result{}, err
	}
	result := Result{Valid: outcome.Valid, Reason: outcome.Reason}

	if raw, err := json.Marshal(result); err == nil {
		v.store.SetWithTTL(cacheKey(mint), raw, cacheTTL)
	}
	return result, nil
}

// ValidateBatch validates every mint independently, short-circuiting
// none of them on a single mint's error.
func (v *Validator) ValidateBatch(ctx context.Context, mints []string) map[string]Result {
	out := make(map[string]Result, len(mints))
	for _, m := range mints {
		r, err := v.Validate(ctx, m)
		if err != nil {
			out[m] = Result{Valid: false, Reason: err.Error()}
			continue
		}
		out[m] = r
	}
	return out
}

// PurgeInvalid removes a cached validation entry, forcing the next
// lookup to re-check the chain. Used by the scheduler when a previously
// valid mint later proves invalid.
func (v *Validator) PurgeInvalid(mint string) {
	v.store.Delete(cacheKey(mint))
}

// isWellFormed performs a syntactic base58 decode and length check; it
// does not confirm the address exists or is a mint.
func isWellFormed(mint string) bool {
	if len(mint) < 32 || len(mint) > 44 {
		return false
	}
	raw, err := base58.Decode(mint)
	if err != nil {
		return false
	}
	return len(raw) == 32
}
