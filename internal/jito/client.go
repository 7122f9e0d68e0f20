// Package jito submits transaction bundles to a Jito block engine.
package jito

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/aman-zulfiqar/raydium-sniper/internal/constants"
	"github.com/aman-zulfiqar/raydium-sniper/internal/rpc"
	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

// Config holds configuration for the bundle client
type Config struct {
	// BlockEngineURL is the bundles endpoint, e.g. .../api/v1/bundles.
	BlockEngineURL string
	TipAccounts    []solana.PublicKey
	Logger         *logrus.Logger
}

// Client sends bundles over the block engine JSON-RPC API.
type Client struct {
	rpc         *rpc.Client
	tipAccounts []solana.PublicKey
	logger      *logrus.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.BlockEngineURL == "" {
		cfg.BlockEngineURL = constants.DefaultJitoBlockEngineURL
	}
	if len(cfg.TipAccounts) == 0 {
		cfg.TipAccounts = constants.JitoTipAccounts
	}
	return &Client{
		// Retries belong to the executor, which classifies each failure.
		rpc: rpc.NewClient(rpc.ClientConfig{
			BaseURL:    cfg.BlockEngineURL,
			MaxRetries: 0,
			Logger:     cfg.Logger,
		}),
		tipAccounts: cfg.TipAccounts,
		logger:      cfg.Logger,
	}
}

// TipAccount picks one tip receiver at random to spread write locks.
func (c *Client) TipAccount() solana.PublicKey {
	return c.tipAccounts[rand.IntN(len(c.tipAccounts))]
}

// SendBundle submits base58-encoded signed transactions and returns the
// bundle id.
func (c *Client) SendBundle(ctx context.Context, encodedTxs []string) (string, error) {
	if len(encodedTxs) == 0 {
		return "", fmt.Errorf("bundle is empty")
	}
	if len(encodedTxs) > 5 {
		return "", fmt.Errorf("bundle has %d transactions, max 5", len(encodedTxs))
	}

	var bundleID string
	if err := c.rpc.CallResult(ctx, "sendBundle", []interface{}{encodedTxs}, &bundleID); err != nil {
		return "", err
	}

	c.logger.WithFields(logrus.Fields{
		"bundle_id": bundleID,
		"txs":       len(encodedTxs),
	}).Debug("bundle submitted")
	return bundleID, nil
}
