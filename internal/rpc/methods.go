package rpc

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aman-zulfiqar/raydium-sniper/internal/errs"
	"github.com/gagliardetto/solana-go"
)

// GetSignaturesForAddress fetches transaction signatures for a program address, newest first
func (c *Client) GetSignaturesForAddress(ctx context.Context, address string, opts SignaturesOptions) ([]SignatureInfo, error) {
	var result []SignatureInfo
	if err := c.CallResult(ctx, "getSignaturesForAddress", []interface{}{address, opts}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetTransaction fetches a transaction in base64 wire encoding. A nil result
// means the node does not have it yet.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*TransactionResult, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "base64",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		},
	}

	var result *TransactionResult
	if err := c.CallResult(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// DecodeTransactionData returns the wire bytes of a base64 getTransaction result.
func (r *TransactionResult) DecodeTransactionData() ([]byte, error) {
	if r == nil || len(r.Transaction) == 0 {
		return nil, fmt.Errorf("empty transaction")
	}
	if len(r.Transaction) > 1 && r.Transaction[1] != "base64" {
		return nil, fmt.Errorf("unexpected transaction encoding %q", r.Transaction[1])
	}
	return base64.StdEncoding.DecodeString(r.Transaction[0])
}

// GetLatestBlockhash fetches the most recent blockhash and its last valid block height
func (c *Client) GetLatestBlockhash(ctx context.Context, commitment string) (solana.Hash, uint64, error) {
	if commitment == "" {
		commitment = "processed"
	}
	var result struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	if err := c.CallResult(ctx, "getLatestBlockhash", []interface{}{map[string]interface{}{"commitment": commitment}}, &result); err != nil {
		return solana.Hash{}, 0, err
	}

	hash, err := solana.HashFromBase58(result.Value.Blockhash)
	if err != nil {
		return solana.Hash{}, 0, fmt.Errorf("invalid blockhash format: %w", err)
	}
	return hash, result.Value.LastValidBlockHeight, nil
}

// SendTransaction submits a base64-encoded signed transaction and returns its signature
func (c *Client) SendTransaction(ctx context.Context, encodedTx string, opts SendOptions) (string, error) {
	cfg := map[string]interface{}{
		"encoding":      "base64",
		"skipPreflight": opts.SkipPreflight,
	}
	if opts.PreflightCommitment != "" {
		cfg["preflightCommitment"] = opts.PreflightCommitment
	}
	if opts.MaxRetries != nil {
		cfg["maxRetries"] = *opts.MaxRetries
	}

	var sig string
	if err := c.CallResult(ctx, "sendTransaction", []interface{}{encodedTx, cfg}, &sig); err != nil {
		return "", err
	}
	return sig, nil
}

// SimulateTransaction simulates a base64-encoded transaction. A failed
// simulation is returned as an error alongside the result.
func (c *Client) SimulateTransaction(ctx context.Context, encodedTx string) (*SimulationResult, error) {
	params := []interface{}{
		encodedTx,
		map[string]interface{}{
			"encoding":               "base64",
			"commitment":             "processed",
			"replaceRecentBlockhash": false,
			"sigVerify":              false,
		},
	}

	var result struct {
		Value SimulationResult `json:"value"`
	}
	if err := c.CallResult(ctx, "simulateTransaction", params, &result); err != nil {
		return nil, err
	}
	if result.Value.Err != nil {
		return &result.Value, fmt.Errorf("simulation failed: %v", result.Value.Err)
	}
	return &result.Value, nil
}

// GetSignatureStatuses returns one entry per signature; nil entries are unknown to the node.
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*SignatureStatus, error) {
	var result struct {
		Value []*SignatureStatus `json:"value"`
	}
	params := []interface{}{signatures, map[string]interface{}{"searchTransactionHistory": false}}
	if err := c.CallResult(ctx, "getSignatureStatuses", params, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

// GetRecentPrioritizationFees returns per-slot fee samples (micro-lamports per
// compute unit) for transactions that locked the given accounts.
func (c *Client) GetRecentPrioritizationFees(ctx context.Context, accounts []string) ([]PrioritizationFee, error) {
	params := []interface{}{}
	if len(accounts) > 0 {
		params = append(params, accounts)
	}
	var result []PrioritizationFee
	if err := c.CallResult(ctx, "getRecentPrioritizationFees", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetBalance returns the lamport balance of an account
func (c *Client) GetBalance(ctx context.Context, pubkey string) (uint64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	params := []interface{}{pubkey, map[string]interface{}{"commitment": "confirmed"}}
	if err := c.CallResult(ctx, "getBalance", params, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

// GetAccountInfo fetches raw account data. Missing accounts return errs.ErrNotFound.
func (c *Client) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	var result struct {
		Value *struct {
			Lamports   uint64   `json:"lamports"`
			Owner      string   `json:"owner"`
			Executable bool     `json:"executable"`
			Data       []string `json:"data"`
		} `json:"value"`
	}
	params := []interface{}{
		pubkey,
		map[string]interface{}{"encoding": "base64", "commitment": "confirmed"},
	}
	if err := c.CallResult(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, fmt.Errorf("account %s: %w", pubkey, errs.ErrNotFound)
	}

	info := &AccountInfo{
		Lamports:   result.Value.Lamports,
		Owner:      result.Value.Owner,
		Executable: result.Value.Executable,
	}
	if len(result.Value.Data) > 0 {
		data, err := base64.StdEncoding.DecodeString(result.Value.Data[0])
		if err != nil {
			return nil, fmt.Errorf("account %s: decode data: %w", pubkey, err)
		}
		info.Data = data
	}
	return info, nil
}
