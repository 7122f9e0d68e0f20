package models

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// PoolType is the Raydium pool layout a PoolEvent was decoded from.
type PoolType int

const (
	PoolTypeUnknown PoolType = iota
	PoolTypeAmmV4
	PoolTypeCpmm
)

func (t PoolType) String() string {
	switch t {
	case PoolTypeAmmV4:
		return "amm_v4"
	case PoolTypeCpmm:
		return "cpmm"
	default:
		return "unknown"
	}
}

// Source identifies which detection transport produced an event.
type Source int

const (
	SourceStreaming Source = iota + 1
	SourceFallback
)

func (s Source) String() string {
	switch s {
	case SourceStreaming:
		return "streaming"
	case SourceFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// RawTransaction is a transaction as delivered by a detection transport,
// before any decoding.
type RawTransaction struct {
	Signature  string
	Slot       uint64
	Data       []byte // wire-format transaction bytes
	Meta       *TransactionMeta
	Source     Source
	ObservedAt time.Time
}

// TransactionMeta carries the subset of transaction metadata the normalizer
// needs: loaded lookup-table addresses and post token balances.
type TransactionMeta struct {
	Failed            bool
	LoadedWritable    []string
	LoadedReadonly    []string
	PostTokenBalances []TokenBalance
}

// TokenBalance is a post-execution token balance for an account index.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Amount       uint64
	Decimals     uint8
}

// PoolAccounts holds the pool-side accounts a swap instruction needs.
// Fields that do not apply to a layout are left zero.
type PoolAccounts struct {
	Authority         solana.PublicKey
	AmmConfig         solana.PublicKey
	OpenOrders        solana.PublicKey
	TargetOrders      solana.PublicKey
	LpMint            solana.PublicKey
	BaseVault         solana.PublicKey
	QuoteVault        solana.PublicKey
	ObservationState  solana.PublicKey
	Market            solana.PublicKey
	MarketProgram     solana.PublicKey
	BaseTokenProgram  solana.PublicKey
	QuoteTokenProgram solana.PublicKey

	// BaseIsToken0 records the on-chain orientation: for AMM v4 token0 is the
	// coin mint, for CPMM it is token_0_mint.
	BaseIsToken0 bool
}

// PoolEvent is a newly created pool, decoded and oriented so that the base
// mint is the token being bought and the quote mint is what pays for it.
// It is passed by value and never mutated once produced.
type PoolEvent struct {
	Signature string
	Slot      uint64

	PoolAddress    solana.PublicKey // AMM v4 amm id or CPMM pool_state
	AmmAddress     solana.PublicKey // Raydium program owning the pool
	PoolType       PoolType
	CreatorAddress solana.PublicKey

	BaseMint  solana.PublicKey
	QuoteMint solana.PublicKey

	InitialBaseReserve  uint64
	InitialQuoteReserve uint64
	OpenTime            uint64

	MintAuthorityPresent   bool
	FreezeAuthorityPresent bool

	Accounts PoolAccounts

	ObservedAt time.Time
	Source     Source
}

// WithAuthorities returns a copy of the event with authority flags set.
func (e PoolEvent) WithAuthorities(mint, freeze bool) PoolEvent {
	e.MintAuthorityPresent = mint
	e.FreezeAuthorityPresent = freeze
	return e
}

// TokenMetadata is the Metaplex name and symbol of a mint.
type TokenMetadata struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	URI    string `json:"uri"`
}
