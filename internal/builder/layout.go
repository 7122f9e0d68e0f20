package builder

import (
	"encoding/binary"
	"fmt"

	"github.com/aman-zulfiqar/raydium-sniper/internal/constants"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"
	"github.com/gagliardetto/solana-go"
)

// swapAccounts are the user-side accounts of a quote -> base swap.
type swapAccounts struct {
	owner      solana.PublicKey
	userSource solana.PublicKey // WSOL ATA
	userDest   solana.PublicKey // base mint ATA
	amountIn   uint64
	minimumOut uint64
}

// layout encodes the buy instruction for one Raydium pool layout.
type layout interface {
	feeBps() uint64
	swapInstruction(ev models.PoolEvent, sa swapAccounts) (solana.Instruction, error)
}

var layouts = map[models.PoolType]layout{
	models.PoolTypeAmmV4: ammV4Layout{},
	models.PoolTypeCpmm:  cpmmLayout{},
}

type ammV4Layout struct{}

func (ammV4Layout) feeBps() uint64 { return constants.AmmV4FeeBps }

// swapInstruction builds SwapBaseInV2.
// Account order:
// 0. token_program
// 1. amm (writable)
// 2. amm_authority
// 3. pool_coin_vault (writable)
// 4. pool_pc_vault (writable)
// 5. user_source (writable)
// 6. user_destination (writable)
// 7. user_owner (signer)
func (ammV4Layout) swapInstruction(ev models.PoolEvent, sa swapAccounts) (solana.Instruction, error) {
	authority := ev.Accounts.Authority
	if authority.IsZero() {
		authority = constants.RaydiumAmmV4Authority
	}
	if err := requirePubkey(ev.Accounts.BaseVault, "base vault"); err != nil {
		return nil, err
	}
	if err := requirePubkey(ev.Accounts.QuoteVault, "quote vault"); err != nil {
		return nil, err
	}

	coinVault, pcVault := ev.Accounts.BaseVault, ev.Accounts.QuoteVault
	if !ev.Accounts.BaseIsToken0 {
		coinVault, pcVault = pcVault, coinVault
	}

	accounts := []*solana.AccountMeta{
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: ev.PoolAddress, IsSigner: false, IsWritable: true},
		{PublicKey: authority, IsSigner: false, IsWritable: false},
		{PublicKey: coinVault, IsSigner: false, IsWritable: true},
		{PublicKey: pcVault, IsSigner: false, IsWritable: true},
		{PublicKey: sa.userSource, IsSigner: false, IsWritable: true},
		{PublicKey: sa.userDest, IsSigner: false, IsWritable: true},
		{PublicKey: sa.owner, IsSigner: true, IsWritable: false},
	}

	// [0] tag, [1:9] amount_in, [9:17] minimum_amount_out
	data := make([]byte, 17)
	data[0] = constants.AmmV4SwapBaseInV2Tag
	binary.LittleEndian.PutUint64(data[1:9], sa.amountIn)
	binary.LittleEndian.PutUint64(data[9:17], sa.minimumOut)

	return solana.NewInstruction(constants.RaydiumAmmV4Program, accounts, data), nil
}

type cpmmLayout struct{}

func (cpmmLayout) feeBps() uint64 { return constants.CpmmFeeBps }

// swapInstruction builds swap_base_input.
// Account order:
// 0. payer (signer)
// 1. authority
// 2. amm_config
// 3. pool_state (writable)
// 4. input_token_account (writable)
// 5. output_token_account (writable)
// 6. input_vault (writable)
// 7. output_vault (writable)
// 8. input_token_program
// 9. output_token_program
// 10. input_token_mint
// 11. output_token_mint
// 12. observation_state (writable)
func (cpmmLayout) swapInstruction(ev models.PoolEvent, sa swapAccounts) (solana.Instruction, error) {
	authority := ev.Accounts.Authority
	if authority.IsZero() {
		authority = constants.RaydiumCpmmAuthority
	}
	for name, pk := range map[string]solana.PublicKey{
		"amm config":        ev.Accounts.AmmConfig,
		"base vault":        ev.Accounts.BaseVault,
		"quote vault":       ev.Accounts.QuoteVault,
		"observation state": ev.Accounts.ObservationState,
	} {
		if err := requirePubkey(pk, name); err != nil {
			return nil, err
		}
	}

	accounts := []*solana.AccountMeta{
		{PublicKey: sa.owner, IsSigner: true, IsWritable: false},
		{PublicKey: authority, IsSigner: false, IsWritable: false},
		{PublicKey: ev.Accounts.AmmConfig, IsSigner: false, IsWritable: false},
		{PublicKey: ev.PoolAddress, IsSigner: false, IsWritable: true},
		{PublicKey: sa.userSource, IsSigner: false, IsWritable: true},
		{PublicKey: sa.userDest, IsSigner: false, IsWritable: true},
		{PublicKey: ev.Accounts.QuoteVault, IsSigner: false, IsWritable: true},
		{PublicKey: ev.Accounts.BaseVault, IsSigner: false, IsWritable: true},
		{PublicKey: tokenProgramOr(ev.Accounts.QuoteTokenProgram), IsSigner: false, IsWritable: false},
		{PublicKey: tokenProgramOr(ev.Accounts.BaseTokenProgram), IsSigner: false, IsWritable: false},
		{PublicKey: ev.QuoteMint, IsSigner: false, IsWritable: false},
		{PublicKey: ev.BaseMint, IsSigner: false, IsWritable: false},
		{PublicKey: ev.Accounts.ObservationState, IsSigner: false, IsWritable: true},
	}

	// [0:8] discriminator, [8:16] amount_in, [16:24] minimum_amount_out
	data := make([]byte, 24)
	copy(data[0:8], constants.CpmmSwapBaseInputDiscriminator[:])
	binary.LittleEndian.PutUint64(data[8:16], sa.amountIn)
	binary.LittleEndian.PutUint64(data[16:24], sa.minimumOut)

	return solana.NewInstruction(constants.RaydiumCpmmProgram, accounts, data), nil
}

func tokenProgramOr(pk solana.PublicKey) solana.PublicKey {
	if pk.IsZero() {
		return solana.TokenProgramID
	}
	return pk
}

func requirePubkey(pk solana.PublicKey, name string) error {
	if pk.IsZero() {
		return fmt.Errorf("%s is zero", name)
	}
	return nil
}
