package fees

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/aman-zulfiqar/raydium-sniper/internal/rpc"
	"github.com/sirupsen/logrus"
)

// FeeSource is the RPC capability the sampler needs.
type FeeSource interface {
	GetRecentPrioritizationFees(ctx context.Context, accounts []string) ([]rpc.PrioritizationFee, error)
}

// SamplerConfig holds configuration for the background fee sampler
type SamplerConfig struct {
	Source   FeeSource
	Accounts []string
	Interval time.Duration
	// MaxAge after which a sample is ignored and the floor applies.
	MaxAge time.Duration
	Logger *logrus.Logger
}

// Sampler keeps the most recent fee sample so estimation never waits on I/O.
type Sampler struct {
	source   FeeSource
	accounts []string
	interval time.Duration
	maxAge   time.Duration
	logger   *logrus.Logger

	latest atomic.Pointer[Sample]
}

func NewSampler(cfg SamplerConfig) *Sampler {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 30 * time.Second
	}
	return &Sampler{
		source:   cfg.Source,
		accounts: cfg.Accounts,
		interval: cfg.Interval,
		maxAge:   cfg.MaxAge,
		logger:   cfg.Logger,
	}
}

// Refresh fetches a new sample. Slots with zero fee are kept; they are part
// of the distribution.
func (s *Sampler) Refresh(ctx context.Context) error {
	samples, err := s.source.GetRecentPrioritizationFees(ctx, s.accounts)
	if err != nil {
		return err
	}
	fees := make([]uint64, 0, len(samples))
	for _, f := range samples {
		fees = append(fees, f.PrioritizationFee)
	}
	s.latest.Store(&Sample{Fees: fees, TakenAt: time.Now()})

	s.logger.WithFields(logrus.Fields{
		"slots": len(fees),
		"p75":   Percentile(fees, 75),
	}).Debug("priority fee sample refreshed")
	return nil
}

// Latest returns the current sample, or an empty one if it is missing or stale.
func (s *Sampler) Latest() Sample {
	cur := s.latest.Load()
	if cur == nil || time.Since(cur.TakenAt) > s.maxAge {
		return Sample{}
	}
	return *cur
}

// Run refreshes on a ticker until ctx is done.
func (s *Sampler) Run(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		s.logger.WithError(err).Warn("initial priority fee sample failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.WithError(err).Debug("priority fee sample failed")
			}
		}
	}
}
