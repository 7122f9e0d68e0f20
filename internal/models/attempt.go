package models

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an ExecutionAttempt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusDryRun    Status = "dry_run"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusSubmitted, StatusDryRun, StatusFailed},
	StatusSubmitted: {StatusConfirmed, StatusFailed},
}

// CanTransition reports whether moving from s to next is allowed.
// Staying in the same non-terminal status is allowed so retries can update
// bookkeeping without changing state.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return !s.Terminal()
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusFailed, StatusDryRun:
		return true
	}
	return false
}

// Route is how a transaction reaches the leader.
type Route string

const (
	RouteDirect Route = "direct"
	RouteBundle Route = "bundle"
)

// ExecutionAttempt is the record of one buy for one pool.
type ExecutionAttempt struct {
	ID             string    `json:"id"`
	PoolAddress    string    `json:"pool_address"`
	BaseMint       string    `json:"base_mint,omitempty"`
	AttemptCount   int       `json:"attempt_count"`
	Status         Status    `json:"status"`
	Route          Route     `json:"route,omitempty"`
	Signature      string    `json:"signature,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	RawTransaction string    `json:"raw_transaction,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Advance moves the attempt to next, returning an error for illegal moves.
func (a *ExecutionAttempt) Advance(next Status, at time.Time) error {
	if !a.Status.CanTransition(next) {
		return fmt.Errorf("illegal status transition %s -> %s", a.Status, next)
	}
	a.Status = next
	a.UpdatedAt = at
	return nil
}
