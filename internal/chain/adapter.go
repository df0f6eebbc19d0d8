package chain

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"sync"

	"github.com/mr-tron/base58"

	"splpulse/internal/config"
	"splpulse/internal/errs"
	"splpulse/internal/models"
)

// Adapter is the Chain Adapter (§4.C).
type Adapter struct {
	client *Client
}

// NewAdapter wraps an RPC client as a Chain Adapter.
func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

// ValidationResult is the outcome of ValidateMint.
type ValidationResult struct {
	Valid  bool
	Reason string
}

// ValidateMint confirms the account exists, is owned by a recognised
// token program, and has a readable, in-range supply (§4.C). The native
// mint short-circuits without a round-trip.
func (a *Adapter) ValidateMint(ctx context.Context, mint string) (ValidationResult, error) {
	if mint == config.NativeMint {
		return ValidationResult{Valid: true}, nil
	}

	var accountInfo struct {
		Value *struct {
			Owner string `json:"owner"`
			Data  []interface{}
		} `json:"value"`
	}
	if err := a.client.call(ctx, "getAccountInfo", []interface{}{mint, map[string]string{"encoding": "base64"}}, &accountInfo); err != nil {
		if _, ok := errs.AsThrottled(err); ok {
			return ValidationResult{}, err
		}
		return ValidationResult{}, err
	}
	if accountInfo.Value == nil {
		return ValidationResult{Valid: false, Reason: "account does not exist"}, nil
	}
	if accountInfo.Value.Owner != config.TokenProgram && accountInfo.Value.Owner != config.TokenProgram2022 {
		return ValidationResult{Valid: false, Reason: "not owned by a recognised token program"}, nil
	}

	supply, err := a.ReadSupply(ctx, mint)
	if err != nil {
		return ValidationResult{}, err
	}
	if supply.Decimals < 0 || supply.Decimals > 18 {
		return ValidationResult{Valid: false, Reason: "decimals out of range"}, nil
	}
	if supply.Raw <= 0 {
		return ValidationResult{Valid: false, Reason: "zero or unreadable supply"}, nil
	}

	return ValidationResult{Valid: true}, nil
}

// SupplyInfo is the result of ReadSupply.
type SupplyInfo struct {
	Raw      float64
	Decimals int
}

// ReadSupply returns raw supply and decimals for a mint. The native mint
// is synthesised from documented constants (§3).
func (a *Adapter) ReadSupply(ctx context.Context, mint string) (SupplyInfo, error) {
	if mint == config.NativeMint {
		return SupplyInfo{Raw: config.NativeMintTotalSupply * pow10(config.NativeMintDecimals), Decimals: config.NativeMintDecimals}, nil
	}

	var supplyResp struct {
		Value struct {
			Amount   string `json:"amount"`
			Decimals int    `json:"decimals"`
		} `json:"value"`
	}
	if err := a.client.call(ctx, "getTokenSupply", []interface{}{mint}, &supplyResp); err != nil {
		return SupplyInfo{}, err
	}
	raw, err := strconv.ParseFloat(supplyResp.Value.Amount, 64)
	if err != nil {
		return SupplyInfo{}, &errs.InvalidMint{Mint: mint, Reason: "unreadable supply"}
	}
	return SupplyInfo{Raw: raw, Decimals: supplyResp.Value.Decimals}, nil
}

// FindPoolsForPair scans recognised AMM programs for pools whose
// (base, quote) mint set equals {a, b}. Per §4.C, iteration uses a
// byte-slice filter (dataSlice) so only the base/quote mint prefix of
// each candidate account is fetched, not the full pool body.
func (a *Adapter) FindPoolsForPair(ctx context.Context, mintA, mintB string) ([]models.PoolInfo, error) {
	type programAccount struct {
		Pubkey  string `json:"pubkey"`
		Account struct {
			Data []string `json:"data"`
		} `json:"account"`
	}

	var pools []models.PoolInfo
	for programID := range config.AMMProgramIDs {
		var accounts []programAccount
		params := []interface{}{
			programID,
			map[string]interface{}{
				"encoding":   "base64",
				"dataSlice":  map[string]int{"offset": 0, "length": 64},
				"filters": []interface{}{
					map[string]interface{}{
						"memcmp": map[string]interface{}{"offset": 0, "bytes": mintA},
					},
				},
			},
		}
		if err := a.client.call(ctx, "getProgramAccounts", params, &accounts); err != nil {
			// A single program being unreachable does not fail discovery
			// across the rest; transient upstream errors are logged by
			// the caller and skipped here.
			continue
		}
		for _, acc := range accounts {
			if len(acc.Account.Data) == 0 {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(acc.Account.Data[0])
			if err != nil || len(raw) < 64 {
				continue
			}
			base := base58.Encode(raw[0:32])
			quote := base58.Encode(raw[32:64])
			if (base == mintA && quote == mintB) || (base == mintB && quote == mintA) {
				pools = append(pools, models.PoolInfo{PoolAddr: acc.Pubkey, BaseMint: base, QuoteMint: quote})
			}
		}
	}
	return pools, nil
}

// ReadPoolReserves resolves which vault belongs to tokenMint and reads
// both vault balances in parallel (§4.C).
func (a *Adapter) ReadPoolReserves(ctx context.Context, poolAddr, tokenMint string) (models.PoolReserves, error) {
	pool, err := a.poolVaults(ctx, poolAddr)
	if err != nil {
		return models.PoolReserves{}, err
	}

	tokenVault, quoteVault := pool.baseVault, pool.quoteVault
	tokenIsBase := pool.baseMint == tokenMint
	if !tokenIsBase {
		tokenVault, quoteVault = pool.quoteVault, pool.baseVault
	}

	var (
		wg                         sync.WaitGroup
		tokenBal, quoteBal         tokenBalance
		tokenErr, quoteErr         error
	)
	wg.Add(2)
	go func() { defer wg.Done(); tokenBal, tokenErr = a.tokenAccountBalance(ctx, tokenVault) }()
	go func() { defer wg.Done(); quoteBal, quoteErr = a.tokenAccountBalance(ctx, quoteVault) }()
	wg.Wait()
	if tokenErr != nil {
		return models.PoolReserves{}, tokenErr
	}
	if quoteErr != nil {
		return models.PoolReserves{}, quoteErr
	}

	return models.PoolReserves{
		TokenReserveRaw: tokenBal.amount,
		QuoteReserveRaw: quoteBal.amount,
		TokenDecimals:   tokenBal.decimals,
		QuoteDecimals:   quoteBal.decimals,
	}, nil
}

type poolVaultInfo struct {
	baseMint, quoteMint   string
	baseVault, quoteVault string
}

// poolVaults is a placeholder layout reader: a real AMM program has a
// fixed account layout (base mint, quote mint, base vault, quote vault
// at known offsets). We reuse getAccountInfo + the same offset
// conventions as FindPoolsForPair's memcmp filters.
func (a *Adapter) poolVaults(ctx context.Context, poolAddr string) (poolVaultInfo, error) {
	var accountInfo struct {
		Value *struct {
			Data []string `json:"data"`
		} `json:"value"`
	}
	if err := a.client.call(ctx, "getAccountInfo", []interface{}{poolAddr, map[string]string{"encoding": "base64"}}, &accountInfo); err != nil {
		return poolVaultInfo{}, err
	}
	if accountInfo.Value == nil || len(accountInfo.Value.Data) == 0 {
		return poolVaultInfo{}, fmt.Errorf("pool account %s not found", poolAddr)
	}
	raw, err := base64.StdEncoding.DecodeString(accountInfo.Value.Data[0])
	if err != nil || len(raw) < 128 {
		return poolVaultInfo{}, fmt.Errorf("unexpected pool layout for %s", poolAddr)
	}
	return poolVaultInfo{
		baseMint:   base58.Encode(raw[0:32]),
		quoteMint:  base58.Encode(raw[32:64]),
		baseVault:  base58.Encode(raw[64:96]),
		quoteVault: base58.Encode(raw[96:128]),
	}, nil
}

type tokenBalance struct {
	amount   float64
	decimals int
}

func (a *Adapter) tokenAccountBalance(ctx context.Context, account string) (tokenBalance, error) {
	var resp struct {
		Value struct {
			Amount   string `json:"amount"`
			Decimals int    `json:"decimals"`
		} `json:"value"`
	}
	if err := a.client.call(ctx, "getTokenAccountBalance", []interface{}{account}, &resp); err != nil {
		return tokenBalance{}, err
	}
	amt, err := strconv.ParseFloat(resp.Value.Amount, 64)
	if err != nil {
		return tokenBalance{}, fmt.Errorf("unreadable token balance for %s", account)
	}
	return tokenBalance{amount: amt, decimals: resp.Value.Decimals}, nil
}

// ReadTopHolders queries the largest-accounts endpoint and joins against
// supply to compute share percentages (§4.C).
func (a *Adapter) ReadTopHolders(ctx context.Context, mint string, limit int) ([]models.HolderBalance, error) {
	var resp struct {
		Value []struct {
			Address string `json:"address"`
			Amount  string `json:"amount"`
		} `json:"value"`
	}
	if err := a.client.call(ctx, "getTokenLargestAccounts", []interface{}{mint}, &resp); err != nil {
		return nil, err
	}

	supply, err := a.ReadSupply(ctx, mint)
	if err != nil {
		return nil, err
	}

	n := len(resp.Value)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.HolderBalance, 0, n)
	for i := 0; i < n; i++ {
		entry := resp.Value[i]
		bal, err := strconv.ParseFloat(entry.Amount, 64)
		if err != nil {
			continue
		}
		share := 0.0
		if supply.Raw > 0 {
			share = bal / supply.Raw * 100
		}
		out = append(out, models.HolderBalance{Owner: entry.Address, Balance: bal, SharePct: share})
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
