// Package flags stores operator switches in Redis and exposes them to the
// pipeline through a cached gate.
package flags

import (
	"fmt"
	"time"

	"github.com/aman-zulfiqar/raydium-sniper/internal/constants"
	"github.com/aman-zulfiqar/raydium-sniper/internal/errs"
)

var ErrNotFound = fmt.Errorf("flag %w", errs.ErrNotFound)

// Flag is a named boolean switch.
type Flag struct {
	Key       string    `json:"key"`
	Value     bool      `json:"value"`
	UpdatedBy string    `json:"updated_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Known lists the flags the sniper reads, with what setting them does.
var Known = map[string]string{
	constants.FlagPaused: "stop admitting newly detected pools; in-flight buys finish",
}
