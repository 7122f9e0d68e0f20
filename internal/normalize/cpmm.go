package normalize

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/aman-zulfiqar/raydium-sniper/internal/constants"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"
)

// CPMM initialize account positions.
const (
	cpmmCreator          = 0
	cpmmAmmConfig        = 1
	cpmmAuthority        = 2
	cpmmPoolState        = 3
	cpmmToken0Mint       = 4
	cpmmToken1Mint       = 5
	cpmmLpMint           = 6
	cpmmToken0Vault      = 10
	cpmmToken1Vault      = 11
	cpmmObservationState = 13
	cpmmToken0Program    = 15
	cpmmToken1Program    = 16
	cpmmMinAccounts      = 17

	// discriminator [8] | init_amount_0 u64 | init_amount_1 u64 | open_time u64
	cpmmInitializeDataLen = 8 + 8 + 8 + 8
)

func decodeCpmm(ix instruction) (*models.PoolEvent, error) {
	if len(ix.data) < 8 || !bytes.Equal(ix.data[:8], constants.CpmmInitializeDiscriminator[:]) {
		return nil, nil
	}
	if len(ix.data) < cpmmInitializeDataLen {
		return nil, fmt.Errorf("cpmm initialize data truncated: %d bytes", len(ix.data))
	}
	if len(ix.accounts) < cpmmMinAccounts {
		return nil, fmt.Errorf("cpmm initialize has %d accounts, need %d", len(ix.accounts), cpmmMinAccounts)
	}

	amount0 := binary.LittleEndian.Uint64(ix.data[8:16])
	amount1 := binary.LittleEndian.Uint64(ix.data[16:24])
	openTime := binary.LittleEndian.Uint64(ix.data[24:32])

	base, quote, baseIsToken0 := orient(ix.account(cpmmToken0Mint), ix.account(cpmmToken1Mint))

	ev := &models.PoolEvent{
		PoolAddress:    ix.account(cpmmPoolState),
		AmmAddress:     constants.RaydiumCpmmProgram,
		PoolType:       models.PoolTypeCpmm,
		CreatorAddress: ix.account(cpmmCreator),
		BaseMint:       base,
		QuoteMint:      quote,
		OpenTime:       openTime,
		Accounts: models.PoolAccounts{
			Authority:        ix.account(cpmmAuthority),
			AmmConfig:        ix.account(cpmmAmmConfig),
			LpMint:           ix.account(cpmmLpMint),
			ObservationState: ix.account(cpmmObservationState),
			BaseIsToken0:     baseIsToken0,
		},
	}

	if baseIsToken0 {
		ev.InitialBaseReserve, ev.InitialQuoteReserve = amount0, amount1
		ev.Accounts.BaseVault, ev.Accounts.QuoteVault = ix.account(cpmmToken0Vault), ix.account(cpmmToken1Vault)
		ev.Accounts.BaseTokenProgram, ev.Accounts.QuoteTokenProgram = ix.account(cpmmToken0Program), ix.account(cpmmToken1Program)
	} else {
		ev.InitialBaseReserve, ev.InitialQuoteReserve = amount1, amount0
		ev.Accounts.BaseVault, ev.Accounts.QuoteVault = ix.account(cpmmToken1Vault), ix.account(cpmmToken0Vault)
		ev.Accounts.BaseTokenProgram, ev.Accounts.QuoteTokenProgram = ix.account(cpmmToken1Program), ix.account(cpmmToken0Program)
	}

	return ev, nil
}
