package stream

import (
	"context"

	"github.com/aman-zulfiqar/raydium-sniper/internal/models"
)

// Transport delivers raw transactions that touch any of the given programs.
// The channel returned by Subscribe is closed when the subscription ends,
// either because ctx was cancelled or because the connection failed.
type Transport interface {
	Name() string
	Subscribe(ctx context.Context, programs []string) (<-chan models.RawTransaction, error)
	Close() error
}
