// Package enrich performs the I/O the filter engine needs: mint authority
// lookups, Metaplex metadata and USD liquidity valuation.
package enrich

import (
	"context"
	"errors"
	"fmt"

	"github.com/aman-zulfiqar/raydium-sniper/internal/errs"
	"github.com/aman-zulfiqar/raydium-sniper/internal/filter"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"
	"github.com/aman-zulfiqar/raydium-sniper/internal/rpc"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// mintBaseLen is the size of the SPL mint layout shared by Token and
// Token-2022. Token-2022 extensions follow it.
const mintBaseLen = 82

// AccountSource fetches raw account data.
type AccountSource interface {
	GetAccountInfo(ctx context.Context, pubkey string) (*rpc.AccountInfo, error)
}

// Valuer prices a raw amount of a quote mint in USD.
type Valuer interface {
	QuoteValueUSD(ctx context.Context, mint solana.PublicKey, amount uint64) (decimal.Decimal, error)
}

// Config holds configuration for the enricher
type Config struct {
	Accounts AccountSource
	Prices   Valuer

	// CheckAuthorities fetches the base mint. It is required when either
	// authority rejection is enabled.
	CheckAuthorities bool
	FetchMetadata    bool

	MetadataCacheSize int
	Logger            *logrus.Logger
}

// Enricher turns a decoded pool event into the filter's EnrichedState.
type Enricher struct {
	accounts         AccountSource
	prices           Valuer
	checkAuthorities bool
	fetchMetadata    bool
	metadata         *lru.Cache[solana.PublicKey, *models.TokenMetadata]
	logger           *logrus.Logger
}

func New(cfg Config) (*Enricher, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if (cfg.CheckAuthorities || cfg.FetchMetadata) && cfg.Accounts == nil {
		return nil, fmt.Errorf("account source is required for mint and metadata lookups")
	}
	if cfg.MetadataCacheSize <= 0 {
		cfg.MetadataCacheSize = 1024
	}
	cache, err := lru.New[solana.PublicKey, *models.TokenMetadata](cfg.MetadataCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}

	return &Enricher{
		accounts:         cfg.Accounts,
		prices:           cfg.Prices,
		checkAuthorities: cfg.CheckAuthorities,
		fetchMetadata:    cfg.FetchMetadata,
		metadata:         cache,
		logger:           cfg.Logger,
	}, nil
}

// Enrich returns a copy of ev with authority flags set, plus the state the
// filter evaluates. Valuation and metadata failures degrade to unknown; a
// failed mint lookup is returned because the rug checks cannot run without it.
func (e *Enricher) Enrich(ctx context.Context, ev models.PoolEvent) (models.PoolEvent, filter.EnrichedState, error) {
	var state filter.EnrichedState

	if e.checkAuthorities {
		mintAuth, freezeAuth, err := e.MintAuthorities(ctx, ev.BaseMint)
		if err != nil {
			return ev, state, fmt.Errorf("mint %s: %w", ev.BaseMint, err)
		}
		ev = ev.WithAuthorities(mintAuth, freezeAuth)
	}

	state.LiquidityUSD, state.LiquidityKnown = e.liquidity(ctx, ev)

	if e.fetchMetadata {
		md, err := e.Metadata(ctx, ev.BaseMint)
		if err != nil {
			e.logger.WithError(err).WithField("mint", ev.BaseMint.String()).Debug("metadata lookup failed")
		}
		state.Metadata = md
	}

	return ev, state, nil
}

// liquidity values both sides of the pool as twice the quote reserve, which
// holds for a freshly initialized constant-product pool.
func (e *Enricher) liquidity(ctx context.Context, ev models.PoolEvent) (decimal.Decimal, bool) {
	if e.prices == nil || ev.InitialQuoteReserve == 0 {
		return decimal.Zero, false
	}
	quoteUSD, err := e.prices.QuoteValueUSD(ctx, ev.QuoteMint, ev.InitialQuoteReserve)
	if err != nil {
		e.logger.WithError(err).WithField("pool", ev.PoolAddress.String()).Debug("liquidity valuation failed")
		return decimal.Zero, false
	}
	return quoteUSD.Mul(decimal.NewFromInt(2)), true
}

// MintAuthorities reports whether the mint still has a mint or freeze
// authority.
func (e *Enricher) MintAuthorities(ctx context.Context, mint solana.PublicKey) (bool, bool, error) {
	info, err := e.accounts.GetAccountInfo(ctx, mint.String())
	if err != nil {
		return false, false, err
	}
	m, err := DecodeMint(info.Data)
	if err != nil {
		return false, false, err
	}
	return m.MintAuthority != nil, m.FreezeAuthority != nil, nil
}

// DecodeMint parses the base SPL mint layout.
func DecodeMint(data []byte) (*token.Mint, error) {
	if len(data) < mintBaseLen {
		return nil, &errs.DecodeError{Reason: fmt.Sprintf("mint account is %d bytes, want at least %d", len(data), mintBaseLen)}
	}
	var m token.Mint
	if err := m.UnmarshalWithDecoder(bin.NewBinDecoder(data[:mintBaseLen])); err != nil {
		return nil, &errs.DecodeError{Reason: "mint account", Err: err}
	}
	if !m.IsInitialized {
		return nil, &errs.DecodeError{Reason: "mint is not initialized"}
	}
	return &m, nil
}

// Metadata returns the Metaplex name and symbol for mint, or nil when the
// mint has no metadata account. Found entries are cached.
func (e *Enricher) Metadata(ctx context.Context, mint solana.PublicKey) (*models.TokenMetadata, error) {
	if md, ok := e.metadata.Get(mint); ok {
		return md, nil
	}

	addr, err := MetadataAddress(mint)
	if err != nil {
		return nil, err
	}
	info, err := e.accounts.GetAccountInfo(ctx, addr.String())
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	md, err := DecodeMetadata(info.Data)
	if err != nil {
		return nil, err
	}
	e.metadata.Add(mint, md)
	return md, nil
}
