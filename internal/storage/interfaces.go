package storage

import (
	"context"

	"github.com/aman-zulfiqar/raydium-sniper/internal/flags"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"
)

// OutcomeSink receives every terminal pipeline outcome
type OutcomeSink interface {
	// Publish fans the outcome out to subscribers and the recent list
	Publish(ctx context.Context, outcome *models.Outcome) error
}

// OutcomeReader serves the recent outcome list
type OutcomeReader interface {
	// Recent returns up to limit outcomes, newest first
	Recent(ctx context.Context, limit int64) ([]*models.Outcome, error)
}

// OutcomeStore is implemented by the Redis outcome publisher
type OutcomeStore interface {
	OutcomeSink
	OutcomeReader
}

// FlagStore defines the operator flag CRUD surface
type FlagStore interface {
	Upsert(ctx context.Context, key string, value bool, updatedBy string) (*flags.Flag, error)
	Get(ctx context.Context, key string) (*flags.Flag, error)
	List(ctx context.Context) ([]*flags.Flag, error)
	Delete(ctx context.Context, key string) error
}

// AttemptLister exposes the dedup ledger to the ops API
type AttemptLister interface {
	Snapshot() []models.ExecutionAttempt
	Get(poolAddress string) (models.ExecutionAttempt, bool)
	Len() int
}
