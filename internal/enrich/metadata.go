package enrich

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/aman-zulfiqar/raydium-sniper/internal/constants"
	"github.com/aman-zulfiqar/raydium-sniper/internal/errs"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Metaplex caps for the padded string fields.
const (
	maxNameLen   = 32
	maxSymbolLen = 10
	maxURILen    = 200
)

// MetadataAddress derives the Metaplex metadata PDA of mint.
func MetadataAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{
		[]byte("metadata"),
		constants.MetaplexMetadataProgram.Bytes(),
		mint.Bytes(),
	}, constants.MetaplexMetadataProgram)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive metadata address: %w", err)
	}
	return addr, nil
}

// DecodeMetadata reads key, update authority, mint, then the borsh name,
// symbol and uri. Null padding is trimmed.
func DecodeMetadata(data []byte) (*models.TokenMetadata, error) {
	dec := bin.NewBorshDecoder(data)

	if _, err := dec.ReadUint8(); err != nil {
		return nil, &errs.DecodeError{Reason: "metadata key", Err: err}
	}
	if _, err := dec.ReadNBytes(64); err != nil {
		return nil, &errs.DecodeError{Reason: "metadata authorities", Err: err}
	}

	name, err := readPaddedString(dec, maxNameLen)
	if err != nil {
		return nil, &errs.DecodeError{Reason: "metadata name", Err: err}
	}
	symbol, err := readPaddedString(dec, maxSymbolLen)
	if err != nil {
		return nil, &errs.DecodeError{Reason: "metadata symbol", Err: err}
	}
	uri, err := readPaddedString(dec, maxURILen)
	if err != nil {
		return nil, &errs.DecodeError{Reason: "metadata uri", Err: err}
	}

	return &models.TokenMetadata{Name: name, Symbol: symbol, URI: uri}, nil
}

func readPaddedString(dec *bin.Decoder, max int) (string, error) {
	n, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return "", err
	}
	// Fields are stored padded to their cap; anything longer is corrupt.
	if int(n) > max*4 {
		return "", fmt.Errorf("string length %d exceeds %d", n, max*4)
	}
	raw, err := dec.ReadNBytes(int(n))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.TrimRight(string(raw), "\x00")), nil
}
