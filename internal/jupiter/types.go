package jupiter

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// QuoteRequest is an ExactIn quote for a raw amount of InputMint.
type QuoteRequest struct {
	InputMint  solana.PublicKey
	OutputMint solana.PublicKey
	Amount     uint64

	// DirectOnly skips multi-hop routes, which keeps the price close to the
	// deepest single pool.
	DirectOnly bool
}

// QuoteResponse keeps only the fields the oracle reads.
type QuoteResponse struct {
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
	ContextSlot    uint64 `json:"contextSlot,omitempty"`
}

// Out parses OutAmount as a positive raw amount.
func (r *QuoteResponse) Out() (decimal.Decimal, error) {
	out, err := decimal.NewFromString(r.OutAmount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid outAmount %q: %w", r.OutAmount, err)
	}
	if !out.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive outAmount %q", r.OutAmount)
	}
	return out, nil
}
