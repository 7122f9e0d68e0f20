package enrich

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aman-zulfiqar/raydium-sniper/internal/constants"
	"github.com/aman-zulfiqar/raydium-sniper/internal/errs"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"
	"github.com/aman-zulfiqar/raydium-sniper/internal/rpc"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type stubAccounts struct {
	mu       sync.Mutex
	accounts map[string][]byte
	fetches  map[string]int
	err      error
}

func newStubAccounts() *stubAccounts {
	return &stubAccounts{accounts: map[string][]byte{}, fetches: map[string]int{}}
}

func (s *stubAccounts) GetAccountInfo(_ context.Context, pubkey string) (*rpc.AccountInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches[pubkey]++
	if s.err != nil {
		return nil, s.err
	}
	data, ok := s.accounts[pubkey]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &rpc.AccountInfo{Data: data}, nil
}

type fixedPrice struct{ solUSD decimal.Decimal }

func (f fixedPrice) QuoteValueUSD(_ context.Context, mint solana.PublicKey, amount uint64) (decimal.Decimal, error) {
	decimals, ok := constants.QuoteDecimals[mint]
	if !ok {
		return decimal.Zero, errors.New("unpriced mint")
	}
	units := decimal.NewFromUint64(amount).Shift(-int32(decimals))
	if constants.IsStableMint(mint) {
		return units, nil
	}
	return units.Mul(f.solUSD), nil
}

func encodeMint(t *testing.T, m token.Mint) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, m.MarshalWithEncoder(bin.NewBinEncoder(&buf)))
	return buf.Bytes()
}

func padded(s string, n int) []byte {
	out := make([]byte, 4+n)
	binary.LittleEndian.PutUint32(out, uint32(n))
	copy(out[4:], s)
	return out
}

func encodeMetadata(name, symbol, uri string) []byte {
	data := []byte{4}
	data = append(data, make([]byte, 64)...)
	data = append(data, padded(name, maxNameLen)...)
	data = append(data, padded(symbol, maxSymbolLen)...)
	data = append(data, padded(uri, maxURILen)...)
	// trailing fields the decoder ignores
	return append(data, 0x01, 0xf4, 0x01)
}

func testEvent(base solana.PublicKey) models.PoolEvent {
	return models.PoolEvent{
		PoolAddress:         solana.NewWallet().PublicKey(),
		BaseMint:            base,
		QuoteMint:           constants.WSOLMint,
		InitialBaseReserve:  1_000_000,
		InitialQuoteReserve: 5 * constants.LamportsPerSOL,
	}
}

func TestEnrich(t *testing.T) {
	base := solana.NewWallet().PublicKey()
	authority := solana.NewWallet().PublicKey()

	accounts := newStubAccounts()
	accounts.accounts[base.String()] = encodeMint(t, token.Mint{
		MintAuthority: &authority,
		Supply:        1_000_000_000,
		Decimals:      6,
		IsInitialized: true,
	})
	mdAddr, err := MetadataAddress(base)
	require.NoError(t, err)
	accounts.accounts[mdAddr.String()] = encodeMetadata("Pepe", "PEPE", "https://example.com/pepe.json")

	e, err := New(Config{
		Accounts:         accounts,
		Prices:           fixedPrice{solUSD: decimal.NewFromInt(100)},
		CheckAuthorities: true,
		FetchMetadata:    true,
		Logger:           quietLogger(),
	})
	require.NoError(t, err)

	in := testEvent(base)
	out, state, err := e.Enrich(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, out.MintAuthorityPresent)
	assert.False(t, out.FreezeAuthorityPresent)
	assert.False(t, in.MintAuthorityPresent, "input event must not be mutated")

	assert.True(t, state.LiquidityKnown)
	assert.Equal(t, "1000", state.LiquidityUSD.String())

	require.NotNil(t, state.Metadata)
	assert.Equal(t, "Pepe", state.Metadata.Name)
	assert.Equal(t, "PEPE", state.Metadata.Symbol)
	assert.Equal(t, "https://example.com/pepe.json", state.Metadata.URI)

	_, _, err = e.Enrich(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, accounts.fetches[mdAddr.String()], "metadata is cached")
	assert.Equal(t, 2, accounts.fetches[base.String()], "mint is refetched")
}

func TestEnrich_Degrades(t *testing.T) {
	base := solana.NewWallet().PublicKey()
	accounts := newStubAccounts()

	e, err := New(Config{Accounts: accounts, FetchMetadata: true, Logger: quietLogger()})
	require.NoError(t, err)

	ev := testEvent(base)
	_, state, err := e.Enrich(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, state.LiquidityKnown, "no price source")
	assert.Nil(t, state.Metadata, "no metadata account")

	ev.QuoteMint = solana.NewWallet().PublicKey()
	e.prices = fixedPrice{}
	_, state, err = e.Enrich(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, state.LiquidityKnown, "unpriced quote mint")
}

func TestEnrich_MintLookupFailure(t *testing.T) {
	accounts := newStubAccounts()
	accounts.err = errors.New("rpc down")

	e, err := New(Config{Accounts: accounts, CheckAuthorities: true, Logger: quietLogger()})
	require.NoError(t, err)

	_, _, err = e.Enrich(context.Background(), testEvent(solana.NewWallet().PublicKey()))
	assert.Error(t, err)
}

func TestNew_RequiresAccounts(t *testing.T) {
	_, err := New(Config{CheckAuthorities: true})
	assert.Error(t, err)

	_, err = New(Config{})
	assert.NoError(t, err)
}

func TestDecodeMint(t *testing.T) {
	freeze := solana.NewWallet().PublicKey()
	data := encodeMint(t, token.Mint{Decimals: 9, IsInitialized: true, FreezeAuthority: &freeze})
	require.Len(t, data, mintBaseLen)

	// Token-2022 mints carry extensions after the base layout.
	m, err := DecodeMint(append(data, make([]byte, 83)...))
	require.NoError(t, err)
	assert.Nil(t, m.MintAuthority)
	require.NotNil(t, m.FreezeAuthority)
	assert.Equal(t, freeze, *m.FreezeAuthority)

	_, err = DecodeMint(data[:40])
	var de *errs.DecodeError
	assert.True(t, errors.As(err, &de))

	_, err = DecodeMint(encodeMint(t, token.Mint{}))
	assert.True(t, errors.As(err, &de))
}

func TestDecodeMetadata_Corrupt(t *testing.T) {
	data := []byte{4}
	data = append(data, make([]byte, 64)...)
	data = append(data, 0xff, 0xff, 0xff, 0x00)

	_, err := DecodeMetadata(data)
	var de *errs.DecodeError
	assert.True(t, errors.As(err, &de))

	_, err = DecodeMetadata([]byte{4, 1, 2})
	assert.True(t, errors.As(err, &de))
}
