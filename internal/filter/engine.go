// Package filter decides whether a detected pool is worth buying.
package filter

import (
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"
	"github.com/shopspring/decimal"
)

// Rejection reasons
const (
	ReasonCreatorBlacklisted = "creator blacklisted"
	ReasonLiquidityUnknown   = "liquidity unknown"
	ReasonLiquidityBelowMin  = "liquidity below minimum"
	ReasonLiquidityAboveMax  = "liquidity above maximum"
	ReasonMintAuthority      = "mint authority present"
	ReasonFreezeAuthority    = "freeze authority present"
	ReasonMetadataMissing    = "metadata missing"
)

// Config is the immutable filter snapshot built once at startup.
type Config struct {
	MinLiquidityUSD decimal.Decimal
	// MaxLiquidityUSD is nil when no upper bound is configured.
	MaxLiquidityUSD *decimal.Decimal

	BlacklistedCreators map[string]struct{}

	RejectMintAuthority   bool
	RejectFreezeAuthority bool
	RequireMetadata       bool

	BuyAmountLamports uint64
	SlippageBps       uint16
}

// NewBlacklist builds the creator set from addresses.
func NewBlacklist(addresses []string) map[string]struct{} {
	out := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		if a != "" {
			out[a] = struct{}{}
		}
	}
	return out
}

// EnrichedState is everything the engine needs that required I/O to obtain.
type EnrichedState struct {
	LiquidityUSD   decimal.Decimal
	LiquidityKnown bool
	Metadata       *models.TokenMetadata
}

// Decision is Accept or Reject with a reason.
type Decision struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

func Accept() Decision { return Decision{Accepted: true} }

func Reject(reason string) Decision { return Decision{Reason: reason} }

type check func(ev models.PoolEvent, cfg *Config, state EnrichedState) (string, bool)

// Engine evaluates checks in a fixed order, cheapest first, stopping at the
// first rejection. It performs no I/O.
type Engine struct {
	checks []check
}

func NewEngine() *Engine {
	return &Engine{checks: []check{
		checkBlacklist,
		checkLiquidity,
		checkAuthorities,
		checkMetadata,
	}}
}

// Evaluate returns the decision for ev.
func (e *Engine) Evaluate(ev models.PoolEvent, cfg *Config, state EnrichedState) Decision {
	for _, c := range e.checks {
		if reason, ok := c(ev, cfg, state); !ok {
			return Reject(reason)
		}
	}
	return Accept()
}

func checkBlacklist(ev models.PoolEvent, cfg *Config, _ EnrichedState) (string, bool) {
	if _, banned := cfg.BlacklistedCreators[ev.CreatorAddress.String()]; banned {
		return ReasonCreatorBlacklisted, false
	}
	return "", true
}

func checkLiquidity(_ models.PoolEvent, cfg *Config, state EnrichedState) (string, bool) {
	if !state.LiquidityKnown {
		return ReasonLiquidityUnknown, false
	}
	if state.LiquidityUSD.LessThan(cfg.MinLiquidityUSD) {
		return ReasonLiquidityBelowMin, false
	}
	if cfg.MaxLiquidityUSD != nil && state.LiquidityUSD.GreaterThan(*cfg.MaxLiquidityUSD) {
		return ReasonLiquidityAboveMax, false
	}
	return "", true
}

func checkAuthorities(ev models.PoolEvent, cfg *Config, _ EnrichedState) (string, bool) {
	if cfg.RejectMintAuthority && ev.MintAuthorityPresent {
		return ReasonMintAuthority, false
	}
	if cfg.RejectFreezeAuthority && ev.FreezeAuthorityPresent {
		return ReasonFreezeAuthority, false
	}
	return "", true
}

func checkMetadata(_ models.PoolEvent, cfg *Config, state EnrichedState) (string, bool) {
	if !cfg.RequireMetadata {
		return "", true
	}
	if state.Metadata == nil || !printable(state.Metadata.Name) || !printable(state.Metadata.Symbol) {
		return ReasonMetadataMissing, false
	}
	return "", true
}

// printable reports whether s has at least one visible character and no
// control characters.
func printable(s string) bool {
	visible := false
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return false
		}
		if r != ' ' {
			visible = true
		}
	}
	return visible
}
