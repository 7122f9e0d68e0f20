package wallet

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/aman-zulfiqar/raydium-sniper/internal/errs"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestNewSigner_PrivateKeyFormats(t *testing.T) {
	w := solana.NewWallet()

	fromB58, err := NewSigner(SignerConfig{PrivateKey: w.PrivateKey.String()})
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey(), fromB58.PublicKey())

	ints := make([]int, len(w.PrivateKey))
	for i, b := range w.PrivateKey {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	require.NoError(t, err)

	fromJSON, err := NewSigner(SignerConfig{PrivateKey: string(raw)})
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey(), fromJSON.PublicKey())
}

func TestNewSigner_Mnemonic(t *testing.T) {
	s, err := NewSigner(SignerConfig{Mnemonic: testMnemonic})
	require.NoError(t, err)

	seed := []byte(s.priv)[:32]
	assert.Equal(t, "37df573b3ac4ad5b522e064e25b63ea16bcbe79d449e81a0268d1047948bb445", hex.EncodeToString(seed))

	again, err := NewSigner(SignerConfig{Mnemonic: "  " + testMnemonic + "\n"})
	require.NoError(t, err)
	assert.Equal(t, s.PublicKey(), again.PublicKey())

	other, err := NewSigner(SignerConfig{Mnemonic: testMnemonic, DerivationPath: []uint32{44, 501, 1, 0}})
	require.NoError(t, err)
	assert.NotEqual(t, s.PublicKey(), other.PublicKey())
}

func TestNewSigner_ConfigurationErrors(t *testing.T) {
	w := solana.NewWallet()
	tests := []struct {
		name string
		cfg  SignerConfig
	}{
		{"neither", SignerConfig{}},
		{"both", SignerConfig{PrivateKey: w.PrivateKey.String(), Mnemonic: testMnemonic}},
		{"bad base58", SignerConfig{PrivateKey: "0OIl"}},
		{"short key", SignerConfig{PrivateKey: "[1,2,3]"}},
		{"bad checksum", SignerConfig{Mnemonic: "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSigner(tt.cfg)
			var ce *errs.ConfigurationError
			assert.True(t, errors.As(err, &ce), "got %v", err)
		})
	}
}

func TestDeriveEd25519_Slip10Vector(t *testing.T) {
	seed, err := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)

	assert.Equal(t, "2b4be7f19ee27bbf30c667b642d5f4aa69fd169872f8fc3059c08ebae2eb19e7", hex.EncodeToString(deriveEd25519(seed, nil)))
	assert.Equal(t, "68e0fe46dfb67e368c75379acec591dad19df3cde26e63b93a8e704f1dade7a3", hex.EncodeToString(deriveEd25519(seed, []uint32{0})))
}

func TestSignAndEncode(t *testing.T) {
	w := solana.NewWallet()
	s, err := NewSigner(SignerConfig{PrivateKey: w.PrivateKey.String()})
	require.NoError(t, err)

	ix := solana.NewInstruction(solana.SystemProgramID, solana.AccountMetaSlice{
		{PublicKey: s.PublicKey(), IsSigner: true, IsWritable: true},
	}, []byte{0})
	tx, err := BuildTransaction([]solana.Instruction{ix}, solana.Hash{9}, s.PublicKey())
	require.NoError(t, err)
	require.NoError(t, s.SignTx(tx))

	require.Len(t, tx.Signatures, 1)
	assert.NotEqual(t, solana.Signature{}, tx.Signatures[0])

	b64, err := EncodeBase64(tx)
	require.NoError(t, err)
	assert.NotEmpty(t, b64)

	b58, err := EncodeBase58(tx)
	require.NoError(t, err)
	assert.NotEmpty(t, b58)
}

func TestSOLToLamports(t *testing.T) {
	got, err := SOLToLamports(decimal.RequireFromString("0.1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000), got)

	got, err = SOLToLamports(decimal.RequireFromString("1.0000000019"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_001), got)

	_, err = SOLToLamports(decimal.NewFromInt(-1))
	assert.Error(t, err)

	assert.Equal(t, "0.05", LamportsToSOL(50_000_000).String())
}

type stubBalance struct {
	lamports uint64
	err      error
}

func (s stubBalance) GetBalance(context.Context, string) (uint64, error) { return s.lamports, s.err }

func TestCheckBalance(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s, err := NewSigner(SignerConfig{Mnemonic: testMnemonic})
	require.NoError(t, err)

	got, err := CheckBalance(context.Background(), stubBalance{lamports: 10}, s, 50_000_000, logger)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got)

	_, err = CheckBalance(context.Background(), stubBalance{err: errors.New("down")}, s, 50_000_000, logger)
	assert.Error(t, err)
}
