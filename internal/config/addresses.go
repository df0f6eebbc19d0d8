package config

// Well-known on-chain identifiers, hard-coded the way the teacher's
// FlowAddresses/mainnetAddresses table hard-codes contract addresses per
// network. These never change at runtime, so they are constants rather
// than config fields.

const (
	// NativeMint is the distinguished wrapped-native-coin mint (§3),
	// accepted without a chain round-trip and assigned decimals=9.
	NativeMint = "So11111111111111111111111111111111111111112"
	// NativeMintDecimals is documented as fixed for the native mint.
	NativeMintDecimals = 9
	// NativeMintTotalSupply is the documented total supply used when the
	// native mint's TokenInfo is synthesised rather than read on-chain.
	NativeMintTotalSupply = 1_000_000_000

	// StableMint is the canonical USD-pegged stable mint preferred as a
	// fallback quote side in pair selection (§4.D.1 rule 4) and pool
	// discovery (§4.G step 3/nativeUsdPrice).
	StableMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

	// TokenProgram and TokenProgram2022 are the two SPL token program
	// owners a valid mint account may be owned by (§4.C.validateMint).
	TokenProgram     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	TokenProgram2022 = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
)

// EstablishedVenues is the set of recognised established venues used by
// the Aggregator pair-selection rules (§4.D.1 rule 2/5).
var EstablishedVenues = map[string]bool{
	"raydium": true,
	"orca":    true,
	"jupiter": true,
	"meteora": true,
}

// AMMProgramIDs lists recognised AMM program IDs the Chain Adapter scans
// when discovering pools on-chain (§4.C.findPoolsForPair). Each entry
// names the venue it belongs to so discovered pools can be tagged.
var AMMProgramIDs = map[string]string{
	"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8": "raydium",
	"9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP": "orca",
	"LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo":  "meteora",
}
