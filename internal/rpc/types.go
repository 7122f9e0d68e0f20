package rpc

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aman-zulfiqar/raydium-sniper/internal/models"
)

// RPCError represents a JSON-RPC error response
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// HTTPStatusError is a non-200 HTTP response from the RPC endpoint.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status code: %d: %s", e.StatusCode, e.Body)
}

// SignatureInfo represents a transaction signature from getSignaturesForAddress
type SignatureInfo struct {
	Signature string      `json:"signature"`
	Slot      uint64      `json:"slot"`
	Err       interface{} `json:"err"`
	BlockTime int64       `json:"blockTime"`
}

// SignaturesOptions narrows getSignaturesForAddress.
type SignaturesOptions struct {
	Limit      int    `json:"limit,omitempty"`
	Until      string `json:"until,omitempty"`
	Before     string `json:"before,omitempty"`
	Commitment string `json:"commitment,omitempty"`
}

// UITokenAmount represents token balance information
type UITokenAmount struct {
	Amount   string `json:"amount"`
	Decimals uint8  `json:"decimals"`
}

// TokenBalance represents a token balance entry
type TokenBalance struct {
	AccountIndex  int           `json:"accountIndex"`
	Mint          string        `json:"mint"`
	Owner         string        `json:"owner,omitempty"`
	UITokenAmount UITokenAmount `json:"uiTokenAmount"`
}

// LoadedAddresses are the accounts resolved from address lookup tables.
type LoadedAddresses struct {
	Writable []string `json:"writable"`
	Readonly []string `json:"readonly"`
}

// TransactionMeta contains metadata about a transaction
type TransactionMeta struct {
	Err               interface{}      `json:"err"`
	Fee               uint64           `json:"fee"`
	PostTokenBalances []TokenBalance   `json:"postTokenBalances"`
	LoadedAddresses   *LoadedAddresses `json:"loadedAddresses,omitempty"`
	LogMessages       []string         `json:"logMessages,omitempty"`
}

// TransactionResult is getTransaction's result in base64 encoding. Transaction
// is the pair [data, "base64"].
type TransactionResult struct {
	Slot        uint64           `json:"slot"`
	BlockTime   *int64           `json:"blockTime"`
	Meta        *TransactionMeta `json:"meta"`
	Transaction []string         `json:"transaction"`
}

// SignatureStatus is one entry of getSignatureStatuses.
type SignatureStatus struct {
	Slot               uint64      `json:"slot"`
	Confirmations      *uint64     `json:"confirmations"`
	Err                interface{} `json:"err"`
	ConfirmationStatus string      `json:"confirmationStatus"`
}

// PrioritizationFee is one slot sample from getRecentPrioritizationFees.
type PrioritizationFee struct {
	Slot              uint64 `json:"slot"`
	PrioritizationFee uint64 `json:"prioritizationFee"`
}

// AccountInfo is a decoded getAccountInfo value.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Executable bool
	Data       []byte
}

// SimulationResult contains simulation output
type SimulationResult struct {
	Err           interface{} `json:"err"`
	Logs          []string    `json:"logs"`
	UnitsConsumed uint64      `json:"unitsConsumed"`
}

// SendOptions configures sendTransaction.
type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment string
	MaxRetries          *uint
}

// ToModel converts RPC metadata into the normalizer's representation.
// Unparseable token amounts are skipped.
func (m *TransactionMeta) ToModel() *models.TransactionMeta {
	if m == nil {
		return nil
	}
	out := &models.TransactionMeta{Failed: m.Err != nil}
	if m.LoadedAddresses != nil {
		out.LoadedWritable = m.LoadedAddresses.Writable
		out.LoadedReadonly = m.LoadedAddresses.Readonly
	}
	for _, b := range m.PostTokenBalances {
		amount, err := strconv.ParseUint(b.UITokenAmount.Amount, 10, 64)
		if err != nil {
			continue
		}
		out.PostTokenBalances = append(out.PostTokenBalances, models.TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint,
			Amount:       amount,
			Decimals:     b.UITokenAmount.Decimals,
		})
	}
	return out
}
