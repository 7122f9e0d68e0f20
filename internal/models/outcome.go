package models

import "time"

// Outcome is the terminal result of handling one pool, published to
// subscribers and logged.
type Outcome struct {
	PoolAddress string        `json:"pool_address"`
	PoolType    string        `json:"pool_type"`
	BaseMint    string        `json:"base_mint"`
	Creator     string        `json:"creator"`
	Source      string        `json:"source"`
	Status      string        `json:"status"` // rejected, confirmed, failed, dry_run
	Reason      string        `json:"reason,omitempty"`
	Signature   string        `json:"signature,omitempty"`
	Attempts    int           `json:"attempts,omitempty"`
	Latency     time.Duration `json:"latency_ns"`
	Timestamp   time.Time     `json:"timestamp"`
}

const OutcomeRejected = "rejected"
