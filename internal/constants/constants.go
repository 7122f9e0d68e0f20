package constants

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Raydium programs
var (
	RaydiumAmmV4Program = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	RaydiumCpmmProgram  = solana.MustPublicKeyFromBase58("CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C")

	// PDA authorities that own pool vaults
	RaydiumAmmV4Authority = solana.MustPublicKeyFromBase58("5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1")
	RaydiumCpmmAuthority  = solana.MustPublicKeyFromBase58("GpMZbSM2GgvTKHJirzeGfMFoaZ8UR2X7F4v8vHTvxFbL")

	OpenBookProgram = solana.MustPublicKeyFromBase58("srmqPvymJeFKQ4zGQed1GFppgkRHL9kaELCbyksJtPX")
)

// Supporting programs
var (
	ComputeBudgetProgram    = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")
	AssociatedTokenProgram  = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	Token2022Program        = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	MetaplexMetadataProgram = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
)

// Quote mints
var (
	WSOLMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	USDCMint = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	USDTMint = solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB")
)

// QuoteDecimals maps known quote mints to their decimals.
var QuoteDecimals = map[solana.PublicKey]uint8{
	WSOLMint: 9,
	USDCMint: 6,
	USDTMint: 6,
}

// IsQuoteMint reports whether mint is one of the assets a buy is paid in.
func IsQuoteMint(mint solana.PublicKey) bool {
	_, ok := QuoteDecimals[mint]
	return ok
}

// IsStableMint reports whether mint is valued at one USD.
func IsStableMint(mint solana.PublicKey) bool {
	return mint.Equals(USDCMint) || mint.Equals(USDTMint)
}

// AMM v4 single-byte instruction tags
const (
	AmmV4InitializeTag   byte = 0
	AmmV4Initialize2Tag  byte = 1
	AmmV4SwapBaseInV2Tag byte = 16
)

var (
	// CPMM Anchor discriminators: sha256("global:<name>")[:8]
	CpmmInitializeDiscriminator    = [8]byte{175, 175, 109, 31, 13, 152, 155, 237}
	CpmmSwapBaseInputDiscriminator = [8]byte{143, 190, 90, 218, 196, 30, 51, 222}
)

// Raydium trade fee applied when quoting the expected output
const (
	AmmV4FeeBps    = 25
	CpmmFeeBps     = 25
	BpsDenominator = 10_000
)

const LamportsPerSOL = 1_000_000_000

// Jito block engine
const DefaultJitoBlockEngineURL = "https://mainnet.block-engine.jito.wtf/api/v1/bundles"

// JitoTipAccounts are the mainnet tip receivers; one is picked per bundle.
var JitoTipAccounts = []solana.PublicKey{
	solana.MustPublicKeyFromBase58("96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5"),
	solana.MustPublicKeyFromBase58("HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe"),
	solana.MustPublicKeyFromBase58("Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY"),
	solana.MustPublicKeyFromBase58("ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49"),
	solana.MustPublicKeyFromBase58("DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh"),
	solana.MustPublicKeyFromBase58("ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt"),
	solana.MustPublicKeyFromBase58("DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL"),
	solana.MustPublicKeyFromBase58("3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT"),
}

// Redis pub/sub channels and keys
const (
	PubSubChannelOutcomes = "sniper:outcomes"
	PubSubChannelPrefix   = "sniper:outcomes:"
	RecentOutcomesKey     = "sniper:recent_outcomes"
	RecentOutcomesLimit   = 200
	FlagPaused            = "sniper.paused"
)

// Polling
const (
	SignatureBatchSize     = 25
	DelayBetweenTxFetch    = 50 * time.Millisecond
	SeenSignatureCacheSize = 10_000
	DefaultPollInterval    = 2 * time.Second
	MaxFetchRetries        = 30
	MaxPendingSignatures   = 512
)

// LowBalanceWarningLamports triggers a startup warning.
const LowBalanceWarningLamports = 50_000_000
