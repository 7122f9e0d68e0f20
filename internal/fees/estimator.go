// Package fees turns recent priority-fee samples into a submission plan.
package fees

import (
	"sort"
	"time"

	"github.com/aman-zulfiqar/raydium-sniper/internal/models"
	"github.com/shopspring/decimal"
)

// Config controls the estimator. It is built once and never mutated.
type Config struct {
	// FloorMicroLamports is the minimum compute-unit price regardless of the sample.
	FloorMicroLamports uint64

	// MaxMicroLamports caps the compute-unit price; zero means uncapped.
	MaxMicroLamports uint64

	Multiplier decimal.Decimal

	// Percentile of the per-slot sample used as the base fee, 1..100.
	Percentile       int
	ComputeUnitLimit uint32

	UseBundle   bool
	TipLamports uint64
}

// Sample is a set of recent per-slot prioritization fees.
type Sample struct {
	Fees    []uint64
	TakenAt time.Time
}

// Plan is the fee and routing decision for one submission.
type Plan struct {
	PriorityFeeMicroLamports uint64       `json:"priority_fee_micro_lamports"`
	ComputeUnitLimit         uint32       `json:"compute_unit_limit"`
	Route                    models.Route `json:"route"`
	TipLamports              uint64       `json:"tip_lamports,omitempty"`
}

// Estimator is a pure function of its config and the sample it is given.
type Estimator struct {
	cfg Config
}

func NewEstimator(cfg Config) *Estimator {
	if cfg.Percentile <= 0 || cfg.Percentile > 100 {
		cfg.Percentile = 75
	}
	if cfg.Multiplier.IsZero() || cfg.Multiplier.IsNegative() {
		cfg.Multiplier = decimal.NewFromInt(1)
	}
	return &Estimator{cfg: cfg}
}

// Estimate computes max(floor, percentile(sample) * multiplier), capped, and
// picks the route.
func (e *Estimator) Estimate(s Sample) Plan {
	fee := e.cfg.FloorMicroLamports
	if len(s.Fees) > 0 {
		base := decimal.NewFromUint64(Percentile(s.Fees, e.cfg.Percentile))
		scaled := base.Mul(e.cfg.Multiplier).Floor()
		if scaled.GreaterThan(decimal.NewFromUint64(fee)) {
			fee = scaled.BigInt().Uint64()
		}
	}
	if e.cfg.MaxMicroLamports > 0 && fee > e.cfg.MaxMicroLamports {
		fee = e.cfg.MaxMicroLamports
	}

	plan := Plan{
		PriorityFeeMicroLamports: fee,
		ComputeUnitLimit:         e.cfg.ComputeUnitLimit,
		Route:                    models.RouteDirect,
	}
	if e.cfg.UseBundle {
		plan.Route = models.RouteBundle
		plan.TipLamports = e.cfg.TipLamports
	}
	return plan
}

// Percentile returns the nearest-rank p-th percentile of values without
// modifying them. Empty input yields zero.
func Percentile(values []uint64, p int) uint64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]uint64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
