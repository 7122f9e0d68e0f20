package server

import (
	"github.com/aman-zulfiqar/raydium-sniper/internal/fees"
	"github.com/aman-zulfiqar/raydium-sniper/internal/flags"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"
)

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable error message
	Code    int    `json:"code"`              // HTTP status code
	Details any    `json:"details,omitempty"` // Additional error details (dev mode only)
}

// HealthResponse reports liveness plus the detection state
type HealthResponse struct {
	OK       bool   `json:"ok"`
	State    string `json:"state,omitempty"`
	DryRun   bool   `json:"dry_run"`
	Attempts int    `json:"attempts"`
	Paused   bool   `json:"paused"`
}

// AttemptsResponse lists ledger entries, oldest first
type AttemptsResponse struct {
	Items []models.ExecutionAttempt `json:"items"`
	Total int                       `json:"total"`
}

// SOLPriceResponse is the oracle's current SOL/USD price
type SOLPriceResponse struct {
	Symbol string `json:"symbol"`
	USD    string `json:"usd"`
}

// FeesResponse shows the plan an accepted pool would get right now
type FeesResponse struct {
	Plan        fees.Plan `json:"plan"`
	SampleSlots int       `json:"sample_slots"`
}

// FlagSetRequest is the body of PUT /v1/flags/:key
type FlagSetRequest struct {
	Value *bool `json:"value"`
}

// FlagsResponse lists stored flags next to the ones the sniper reads
type FlagsResponse struct {
	Items []*flags.Flag     `json:"items"`
	Known map[string]string `json:"known"`
}
