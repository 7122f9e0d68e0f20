// Package normalize decodes raw transactions into PoolEvent records.
package normalize

import (
	"fmt"

	"github.com/aman-zulfiqar/raydium-sniper/internal/constants"
	"github.com/aman-zulfiqar/raydium-sniper/internal/errs"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Config selects which pool layouts are recognized.
type Config struct {
	MonitorAmmV4 bool
	MonitorCpmm  bool
}

// Normalizer is stateless and safe for concurrent use.
type Normalizer struct {
	cfg Config
}

func New(cfg Config) *Normalizer {
	return &Normalizer{cfg: cfg}
}

// Programs returns the program ids a detection transport should subscribe to.
func (n *Normalizer) Programs() []solana.PublicKey {
	var out []solana.PublicKey
	if n.cfg.MonitorAmmV4 {
		out = append(out, constants.RaydiumAmmV4Program)
	}
	if n.cfg.MonitorCpmm {
		out = append(out, constants.RaydiumCpmmProgram)
	}
	return out
}

// instruction is a compiled instruction with its accounts resolved to keys.
type instruction struct {
	program  solana.PublicKey
	accounts []solana.PublicKey
	data     []byte
}

func (ix instruction) account(i int) solana.PublicKey {
	return ix.accounts[i]
}

// Normalize returns the pool created by raw, nil when raw does not create a
// pool, or a *errs.DecodeError when the payload is malformed.
func (n *Normalizer) Normalize(raw models.RawTransaction) (*models.PoolEvent, error) {
	if len(raw.Data) == 0 {
		return nil, n.decodeErr(raw, "empty payload", nil)
	}
	if raw.Meta != nil && raw.Meta.Failed {
		return nil, nil
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw.Data))
	if err != nil {
		return nil, n.decodeErr(raw, "transaction", err)
	}

	keys, err := accountKeys(tx, raw.Meta)
	if err != nil {
		return nil, n.decodeErr(raw, "account keys", err)
	}

	for i, ci := range tx.Message.Instructions {
		ix, err := resolve(ci, keys)
		if err != nil {
			return nil, n.decodeErr(raw, fmt.Sprintf("instruction %d", i), err)
		}

		var ev *models.PoolEvent
		switch {
		case n.cfg.MonitorAmmV4 && ix.program.Equals(constants.RaydiumAmmV4Program):
			ev, err = decodeAmmV4(ix, raw.Meta, keys)
		case n.cfg.MonitorCpmm && ix.program.Equals(constants.RaydiumCpmmProgram):
			ev, err = decodeCpmm(ix)
		default:
			continue
		}
		if err != nil {
			return nil, n.decodeErr(raw, fmt.Sprintf("instruction %d", i), err)
		}
		if ev == nil {
			continue
		}

		ev.Signature = raw.Signature
		ev.Slot = raw.Slot
		ev.ObservedAt = raw.ObservedAt
		ev.Source = raw.Source
		return ev, nil
	}

	return nil, nil
}

func (n *Normalizer) decodeErr(raw models.RawTransaction, reason string, err error) error {
	return &errs.DecodeError{Signature: raw.Signature, Reason: reason, Err: err}
}

// accountKeys returns static keys followed by lookup-table writable then
// readonly keys, the order compiled instruction indexes refer to.
func accountKeys(tx *solana.Transaction, meta *models.TransactionMeta) ([]solana.PublicKey, error) {
	keys := make([]solana.PublicKey, 0, len(tx.Message.AccountKeys))
	keys = append(keys, tx.Message.AccountKeys...)
	if meta == nil {
		return keys, nil
	}
	for _, group := range [][]string{meta.LoadedWritable, meta.LoadedReadonly} {
		for _, s := range group {
			pk, err := solana.PublicKeyFromBase58(s)
			if err != nil {
				return nil, fmt.Errorf("loaded address %q: %w", s, err)
			}
			keys = append(keys, pk)
		}
	}
	return keys, nil
}

func resolve(ci solana.CompiledInstruction, keys []solana.PublicKey) (instruction, error) {
	if int(ci.ProgramIDIndex) >= len(keys) {
		return instruction{}, fmt.Errorf("program index %d out of range (%d keys)", ci.ProgramIDIndex, len(keys))
	}
	ix := instruction{
		program:  keys[ci.ProgramIDIndex],
		accounts: make([]solana.PublicKey, len(ci.Accounts)),
		data:     ci.Data,
	}
	for i, idx := range ci.Accounts {
		if int(idx) >= len(keys) {
			return instruction{}, fmt.Errorf("account index %d out of range (%d keys)", idx, len(keys))
		}
		ix.accounts[i] = keys[idx]
	}
	return ix, nil
}

// orient picks the side being bought. The quote is the known quote mint;
// when both or neither are known quotes, token1 is treated as quote.
func orient(mint0, mint1 solana.PublicKey) (base, quote solana.PublicKey, baseIsToken0 bool) {
	if constants.IsQuoteMint(mint0) && !constants.IsQuoteMint(mint1) {
		return mint1, mint0, false
	}
	return mint0, mint1, true
}
