package normalize

import (
	"encoding/binary"
	"fmt"

	"github.com/aman-zulfiqar/raydium-sniper/internal/constants"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"
	"github.com/gagliardetto/solana-go"
)

// AMM v4 account positions. Initialize2 carries the ATA program at index 1;
// the legacy Initialize layout does not, so every later index shifts by one.
type ammV4Indexes struct {
	tokenProgram, amm, authority, openOrders, lpMint   int
	coinMint, pcMint, coinVault, pcVault, targetOrders int
	serumProgram, serumMarket, creator                 int
	minAccounts                                        int
}

var (
	initialize2Indexes = ammV4Indexes{
		tokenProgram: 0, amm: 4, authority: 5, openOrders: 6, lpMint: 7,
		coinMint: 8, pcMint: 9, coinVault: 10, pcVault: 11, targetOrders: 12,
		serumProgram: 15, serumMarket: 16, creator: 17,
		minAccounts: 18,
	}
	initializeIndexes = ammV4Indexes{
		tokenProgram: 0, amm: 3, authority: 4, openOrders: 5, lpMint: 6,
		coinMint: 7, pcMint: 8, coinVault: 9, pcVault: 10, targetOrders: 11,
		serumProgram: 14, serumMarket: 15, creator: 16,
		minAccounts: 17,
	}
)

const (
	// tag u8 | nonce u8 | open_time u64 | init_pc_amount u64 | init_coin_amount u64
	initialize2DataLen = 1 + 1 + 8 + 8 + 8
	// tag u8 | nonce u8 | open_time u64
	initializeDataLen = 1 + 1 + 8
)

func decodeAmmV4(ix instruction, meta *models.TransactionMeta, keys []solana.PublicKey) (*models.PoolEvent, error) {
	if len(ix.data) == 0 {
		return nil, nil
	}

	var (
		idx                  ammV4Indexes
		openTime             uint64
		coinAmount, pcAmount uint64
	)

	switch ix.data[0] {
	case constants.AmmV4Initialize2Tag:
		if len(ix.data) < initialize2DataLen {
			return nil, fmt.Errorf("initialize2 data truncated: %d bytes", len(ix.data))
		}
		idx = initialize2Indexes
		openTime = binary.LittleEndian.Uint64(ix.data[2:10])
		pcAmount = binary.LittleEndian.Uint64(ix.data[10:18])
		coinAmount = binary.LittleEndian.Uint64(ix.data[18:26])
	case constants.AmmV4InitializeTag:
		if len(ix.data) < initializeDataLen {
			return nil, fmt.Errorf("initialize data truncated: %d bytes", len(ix.data))
		}
		idx = initializeIndexes
		openTime = binary.LittleEndian.Uint64(ix.data[2:10])
	default:
		return nil, nil
	}

	if len(ix.accounts) < idx.minAccounts {
		return nil, fmt.Errorf("amm v4 init has %d accounts, need %d", len(ix.accounts), idx.minAccounts)
	}

	if ix.data[0] == constants.AmmV4InitializeTag {
		var ok bool
		coinAmount, ok = postBalance(meta, keys, ix.account(idx.coinVault))
		if !ok {
			return nil, fmt.Errorf("coin vault balance missing from meta")
		}
		pcAmount, ok = postBalance(meta, keys, ix.account(idx.pcVault))
		if !ok {
			return nil, fmt.Errorf("pc vault balance missing from meta")
		}
	}

	coinMint := ix.account(idx.coinMint)
	pcMint := ix.account(idx.pcMint)
	base, quote, baseIsCoin := orient(coinMint, pcMint)

	ev := &models.PoolEvent{
		PoolAddress:    ix.account(idx.amm),
		AmmAddress:     constants.RaydiumAmmV4Program,
		PoolType:       models.PoolTypeAmmV4,
		CreatorAddress: ix.account(idx.creator),
		BaseMint:       base,
		QuoteMint:      quote,
		OpenTime:       openTime,
		Accounts: models.PoolAccounts{
			Authority:         ix.account(idx.authority),
			OpenOrders:        ix.account(idx.openOrders),
			TargetOrders:      ix.account(idx.targetOrders),
			LpMint:            ix.account(idx.lpMint),
			Market:            ix.account(idx.serumMarket),
			MarketProgram:     ix.account(idx.serumProgram),
			BaseTokenProgram:  ix.account(idx.tokenProgram),
			QuoteTokenProgram: ix.account(idx.tokenProgram),
			BaseIsToken0:      baseIsCoin,
		},
	}

	if baseIsCoin {
		ev.InitialBaseReserve, ev.InitialQuoteReserve = coinAmount, pcAmount
		ev.Accounts.BaseVault, ev.Accounts.QuoteVault = ix.account(idx.coinVault), ix.account(idx.pcVault)
	} else {
		ev.InitialBaseReserve, ev.InitialQuoteReserve = pcAmount, coinAmount
		ev.Accounts.BaseVault, ev.Accounts.QuoteVault = ix.account(idx.pcVault), ix.account(idx.coinVault)
	}

	return ev, nil
}

// postBalance looks up the post-execution token balance of account.
func postBalance(meta *models.TransactionMeta, keys []solana.PublicKey, account solana.PublicKey) (uint64, bool) {
	if meta == nil {
		return 0, false
	}
	for _, b := range meta.PostTokenBalances {
		if b.AccountIndex >= 0 && b.AccountIndex < len(keys) && keys[b.AccountIndex].Equals(account) {
			return b.Amount, true
		}
	}
	return 0, false
}
