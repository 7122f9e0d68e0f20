// Package builder produces the buy instructions for a newly created Raydium
// pool.
package builder

import (
	"fmt"

	"github.com/aman-zulfiqar/raydium-sniper/internal/constants"
	"github.com/aman-zulfiqar/raydium-sniper/internal/errs"
	"github.com/aman-zulfiqar/raydium-sniper/internal/fees"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"
	"github.com/gagliardetto/solana-go"
)

// Plan is a fully quoted buy for one pool, ready to be assembled into a
// transaction.
type Plan struct {
	PoolAddress solana.PublicKey
	PoolType    models.PoolType
	BaseMint    solana.PublicKey
	Payer       solana.PublicKey

	AmountIn    uint64
	ExpectedOut uint64
	MinimumOut  uint64
	SlippageBps uint16
	PriceImpact float64

	// Instructions excludes compute budget and tip; see Assemble.
	Instructions []solana.Instruction
}

// Builder selects the pool layout by PoolType and encodes the swap.
type Builder struct {
	layouts map[models.PoolType]layout
}

func NewBuilder() *Builder {
	return &Builder{layouts: layouts}
}

// Build quotes the buy from the initial reserves and returns the instruction
// list: WSOL wrap, output ATA, swap, WSOL close.
func (b *Builder) Build(ev models.PoolEvent, owner solana.PublicKey, buyLamports uint64, slippageBps uint16) (*Plan, error) {
	pool := ev.PoolAddress.String()

	l, ok := b.layouts[ev.PoolType]
	if !ok {
		return nil, &errs.BuildError{Pool: pool, Err: fmt.Errorf("%w: %s", errs.ErrUnsupportedPoolLayout, ev.PoolType)}
	}
	if !ev.QuoteMint.Equals(constants.WSOLMint) {
		return nil, &errs.BuildError{Pool: pool, Err: fmt.Errorf("quote mint %s is not WSOL", ev.QuoteMint)}
	}
	if owner.IsZero() {
		return nil, &errs.BuildError{Pool: pool, Err: fmt.Errorf("owner is zero")}
	}

	expected, impact, err := ExpectedOut(buyLamports, ev.InitialQuoteReserve, ev.InitialBaseReserve, l.feeBps())
	if err != nil {
		return nil, &errs.BuildError{Pool: pool, Err: fmt.Errorf("quote: %w", err)}
	}
	minOut := MinimumOut(expected, slippageBps)

	wsolATA, _, err := FindAssociatedTokenAddress(owner, constants.WSOLMint, solana.TokenProgramID)
	if err != nil {
		return nil, &errs.BuildError{Pool: pool, Err: fmt.Errorf("derive wsol ata: %w", err)}
	}
	baseProgram := tokenProgramOr(ev.Accounts.BaseTokenProgram)
	baseATA, _, err := FindAssociatedTokenAddress(owner, ev.BaseMint, baseProgram)
	if err != nil {
		return nil, &errs.BuildError{Pool: pool, Err: fmt.Errorf("derive base ata: %w", err)}
	}

	swapIx, err := l.swapInstruction(ev, swapAccounts{
		owner:      owner,
		userSource: wsolATA,
		userDest:   baseATA,
		amountIn:   buyLamports,
		minimumOut: minOut,
	})
	if err != nil {
		return nil, &errs.BuildError{Pool: pool, Err: err}
	}

	ixs := []solana.Instruction{
		NewCreateIdempotentATAIx(owner, wsolATA, owner, constants.WSOLMint, solana.TokenProgramID),
		NewSystemTransferIx(owner, wsolATA, buyLamports),
		NewTokenSyncNativeIx(wsolATA),
		NewCreateIdempotentATAIx(owner, baseATA, owner, ev.BaseMint, baseProgram),
		swapIx,
		NewTokenCloseAccountIx(wsolATA, owner, owner),
	}

	return &Plan{
		PoolAddress:  ev.PoolAddress,
		PoolType:     ev.PoolType,
		BaseMint:     ev.BaseMint,
		Payer:        owner,
		AmountIn:     buyLamports,
		ExpectedOut:  expected,
		MinimumOut:   minOut,
		SlippageBps:  slippageBps,
		PriceImpact:  impact,
		Instructions: ixs,
	}, nil
}

// Assemble wraps the plan with compute budget instructions and, for bundle
// routing, a trailing tip transfer to tipAccount.
func Assemble(plan *Plan, feePlan fees.Plan, tipAccount solana.PublicKey) []solana.Instruction {
	ixs := make([]solana.Instruction, 0, len(plan.Instructions)+3)
	if feePlan.ComputeUnitLimit > 0 {
		ixs = append(ixs, NewSetComputeUnitLimitIx(feePlan.ComputeUnitLimit))
	}
	if feePlan.PriorityFeeMicroLamports > 0 {
		ixs = append(ixs, NewSetComputeUnitPriceIx(feePlan.PriorityFeeMicroLamports))
	}
	ixs = append(ixs, plan.Instructions...)

	if feePlan.Route == models.RouteBundle && feePlan.TipLamports > 0 && !tipAccount.IsZero() {
		ixs = append(ixs, NewSystemTransferIx(plan.Payer, tipAccount, feePlan.TipLamports))
	}
	return ixs
}
