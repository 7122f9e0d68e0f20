package wallet

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aman-zulfiqar/raydium-sniper/internal/errs"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip39"
)

// DefaultDerivationPath is the Solana wallet path used by Phantom and
// solana-keygen with --derivation-path.
var DefaultDerivationPath = []uint32{44, 501, 0, 0}

const hardenedOffset = 0x80000000

// SignerConfig selects exactly one source of key material.
type SignerConfig struct {
	PrivateKey string // base58-encoded 64-byte key OR solana-keygen JSON array
	Mnemonic   string
	Passphrase string

	// DerivationPath is hardened at every level; nil means DefaultDerivationPath.
	DerivationPath []uint32
}

// Signer holds the keypair that pays for and signs buys.
type Signer struct {
	priv solana.PrivateKey
	pub  solana.PublicKey
}

func NewSigner(cfg SignerConfig) (*Signer, error) {
	hasKey := strings.TrimSpace(cfg.PrivateKey) != ""
	hasMnemonic := strings.TrimSpace(cfg.Mnemonic) != ""

	switch {
	case hasKey && hasMnemonic:
		return nil, &errs.ConfigurationError{Field: "PRIVATE_KEY_BASE58", Reason: "private key and mnemonic are mutually exclusive"}
	case hasKey:
		priv, err := parsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, &errs.ConfigurationError{Field: "PRIVATE_KEY_BASE58", Reason: err.Error()}
		}
		return fromPrivateKey(priv), nil
	case hasMnemonic:
		priv, err := privateKeyFromMnemonic(cfg.Mnemonic, cfg.Passphrase, cfg.DerivationPath)
		if err != nil {
			return nil, &errs.ConfigurationError{Field: "MNEMONIC", Reason: err.Error()}
		}
		return fromPrivateKey(priv), nil
	default:
		return nil, &errs.ConfigurationError{Field: "PRIVATE_KEY_BASE58", Reason: "private key or mnemonic is required"}
	}
}

func fromPrivateKey(priv solana.PrivateKey) *Signer {
	return &Signer{priv: priv, pub: priv.PublicKey()}
}

func (s *Signer) Address() string             { return s.pub.String() }
func (s *Signer) PublicKey() solana.PublicKey { return s.pub }

// SignTx signs every signature slot that belongs to this key.
func (s *Signer) SignTx(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.pub) {
			return &s.priv
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	return nil
}

func parsePrivateKey(s string) (solana.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, fmt.Errorf("invalid JSON private key: %w", err)
		}
		b := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("invalid byte at %d: %d", i, v)
			}
			b[i] = byte(v)
		}
		if len(b) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("expected %d bytes, got %d", ed25519.PrivateKeySize, len(b))
		}
		return solana.PrivateKey(ed25519.PrivateKey(b)), nil
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("expected %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return solana.PrivateKey(ed25519.PrivateKey(raw)), nil
}

func privateKeyFromMnemonic(mnemonic, passphrase string, path []uint32) (solana.PrivateKey, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}
	if path == nil {
		path = DefaultDerivationPath
	}
	key := deriveEd25519(seed, path)
	return solana.PrivateKey(ed25519.NewKeyFromSeed(key)), nil
}

// deriveEd25519 walks a SLIP-10 ed25519 path; every index is hardened.
func deriveEd25519(seed []byte, path []uint32) []byte {
	mac := hmac.New(sha512.New, []byte("ed25519 seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)
	key, chain := sum[:32], sum[32:]

	for _, index := range path {
		data := make([]byte, 1+32+4)
		copy(data[1:33], key)
		binary.BigEndian.PutUint32(data[33:], index|hardenedOffset)

		mac = hmac.New(sha512.New, chain)
		mac.Write(data)
		sum = mac.Sum(nil)
		key, chain = sum[:32], sum[32:]
	}
	return key
}
