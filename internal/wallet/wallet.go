// Package wallet loads the buyer keypair and turns instruction lists into
// signed, wire-encoded transactions.
package wallet

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aman-zulfiqar/raydium-sniper/internal/constants"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// BalanceSource is the RPC capability used by CheckBalance.
type BalanceSource interface {
	GetBalance(ctx context.Context, pubkey string) (uint64, error)
}

// BuildTransaction compiles instructions into a transaction paid by payer.
func BuildTransaction(instructions []solana.Instruction, blockhash solana.Hash, payer solana.PublicKey) (*solana.Transaction, error) {
	tx, err := solana.NewTransaction(
		instructions,
		blockhash,
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return tx, nil
}

// EncodeBase64 serializes tx for sendTransaction and dry-run records.
func EncodeBase64(tx *solana.Transaction) (string, error) {
	txBytes, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(txBytes), nil
}

// EncodeBase58 serializes tx for the bundle endpoint.
func EncodeBase58(tx *solana.Transaction) (string, error) {
	txBytes, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return base58.Encode(txBytes), nil
}

// LamportsToSOL formats lamports as a SOL decimal.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Shift(-9)
}

// SOLToLamports converts a SOL amount, truncating below one lamport.
func SOLToLamports(sol decimal.Decimal) (uint64, error) {
	if sol.IsNegative() {
		return 0, fmt.Errorf("negative amount %s", sol)
	}
	lamports := sol.Mul(decimal.NewFromInt(constants.LamportsPerSOL)).Truncate(0)
	if !lamports.BigInt().IsUint64() {
		return 0, fmt.Errorf("amount %s overflows lamports", sol)
	}
	return lamports.BigInt().Uint64(), nil
}

// CheckBalance fetches the signer balance and warns when it is below
// minLamports. A failed lookup is returned to the caller, which may treat it
// as non-fatal.
func CheckBalance(ctx context.Context, src BalanceSource, s *Signer, minLamports uint64, logger *logrus.Logger) (uint64, error) {
	if logger == nil {
		logger = logrus.New()
	}
	lamports, err := src.GetBalance(ctx, s.Address())
	if err != nil {
		return 0, fmt.Errorf("getBalance failed: %w", err)
	}

	fields := logrus.Fields{
		"wallet":  s.Address(),
		"balance": LamportsToSOL(lamports).String(),
	}
	if lamports < minLamports {
		fields["minimum"] = LamportsToSOL(minLamports).String()
		logger.WithFields(fields).Warn("wallet balance is low")
	} else {
		logger.WithFields(fields).Info("wallet balance")
	}
	return lamports, nil
}
