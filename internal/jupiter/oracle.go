package jupiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aman-zulfiqar/raydium-sniper/internal/constants"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Quoter is the quote capability the oracle depends on.
type Quoter interface {
	Quote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error)
}

// OracleConfig holds configuration for the SOL/USD oracle
type OracleConfig struct {
	Quoter Quoter
	TTL    time.Duration

	// FallbackPrice is used when no quote has ever succeeded. Zero disables it.
	FallbackPrice decimal.Decimal

	Logger *logrus.Logger
}

// Oracle prices SOL in USD from a 1 SOL -> USDC quote, cached for TTL.
type Oracle struct {
	quoter   Quoter
	ttl      time.Duration
	fallback decimal.Decimal
	logger   *logrus.Logger
	now      func() time.Time

	mu        sync.Mutex
	price     decimal.Decimal
	fetchedAt time.Time
}

func NewOracle(cfg OracleConfig) *Oracle {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return &Oracle{
		quoter:   cfg.Quoter,
		ttl:      cfg.TTL,
		fallback: cfg.FallbackPrice,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// SOLPriceUSD returns the cached price, refreshing it once the TTL passed.
// A failed refresh serves the last known price, then the fallback.
func (o *Oracle) SOLPriceUSD(ctx context.Context) (decimal.Decimal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.fetchedAt.IsZero() && o.now().Sub(o.fetchedAt) < o.ttl {
		return o.price, nil
	}

	price, err := o.fetch(ctx)
	if err == nil {
		o.price, o.fetchedAt = price, o.now()
		o.logger.WithField("sol_usd", price.StringFixed(4)).Debug("refreshed sol price")
		return price, nil
	}

	switch {
	case !o.fetchedAt.IsZero():
		o.logger.WithError(err).WithField("age", o.now().Sub(o.fetchedAt)).Warn("sol price refresh failed, serving stale price")
		return o.price, nil
	case o.fallback.IsPositive():
		o.logger.WithError(err).Warn("sol price unavailable, using fallback price")
		return o.fallback, nil
	default:
		return decimal.Zero, fmt.Errorf("sol price unavailable: %w", err)
	}
}

func (o *Oracle) fetch(ctx context.Context) (decimal.Decimal, error) {
	if o.quoter == nil {
		return decimal.Zero, fmt.Errorf("no quote source configured")
	}
	resp, err := o.quoter.Quote(ctx, QuoteRequest{
		InputMint:  constants.WSOLMint,
		OutputMint: constants.USDCMint,
		Amount:     constants.LamportsPerSOL,
		DirectOnly: true,
	})
	if err != nil {
		return decimal.Zero, err
	}

	out, err := resp.Out()
	if err != nil {
		return decimal.Zero, err
	}
	return out.Shift(-int32(constants.QuoteDecimals[constants.USDCMint])), nil
}

// QuoteValueUSD values a raw amount of a quote mint. Stablecoins count as one
// dollar; WSOL goes through the SOL price.
func (o *Oracle) QuoteValueUSD(ctx context.Context, mint solana.PublicKey, amount uint64) (decimal.Decimal, error) {
	decimals, ok := constants.QuoteDecimals[mint]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for mint %s", mint)
	}
	units := decimal.NewFromUint64(amount).Shift(-int32(decimals))

	if constants.IsStableMint(mint) {
		return units, nil
	}

	price, err := o.SOLPriceUSD(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return units.Mul(price), nil
}
