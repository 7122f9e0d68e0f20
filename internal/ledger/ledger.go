// Package ledger records one ExecutionAttempt per pool and guarantees a pool
// is claimed at most once.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aman-zulfiqar/raydium-sniper/internal/errs"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Config holds configuration for the ledger
type Config struct {
	Shards int

	// Horizon after which terminal records may be evicted.
	Horizon time.Duration

	// MaxEntries bounds memory; only terminal records are ever dropped to meet it.
	MaxEntries      int
	JanitorInterval time.Duration
	Logger          *logrus.Logger
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*models.ExecutionAttempt
}

// Ledger is a sharded map from pool address to attempt.
type Ledger struct {
	shards     []*shard
	horizon    time.Duration
	maxEntries int
	interval   time.Duration
	logger     *logrus.Logger
	now        func() time.Time
}

func New(cfg Config) *Ledger {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Shards <= 0 {
		cfg.Shards = 32
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = time.Hour
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 50_000
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = time.Minute
	}

	shards := make([]*shard, cfg.Shards)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]*models.ExecutionAttempt)}
	}
	return &Ledger{
		shards:     shards,
		horizon:    cfg.Horizon,
		maxEntries: cfg.MaxEntries,
		interval:   cfg.JanitorInterval,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

func (l *Ledger) shardFor(addr string) *shard {
	return l.shards[xxhash.Sum64String(addr)%uint64(len(l.shards))]
}

// TryClaim inserts a Pending attempt for addr. It returns the record and true
// when the caller won, or the existing record and false otherwise.
func (l *Ledger) TryClaim(addr string) (models.ExecutionAttempt, bool) {
	s := l.shardFor(addr)
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[addr]; ok {
		return *existing, false
	}

	now := l.now()
	a := &models.ExecutionAttempt{
		ID:          uuid.NewString(),
		PoolAddress: addr,
		Status:      models.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.entries[addr] = a
	return *a, true
}

// Transition applies mutate and moves the attempt to next. Illegal moves
// leave the record untouched.
func (l *Ledger) Transition(addr string, next models.Status, mutate func(*models.ExecutionAttempt)) (models.ExecutionAttempt, error) {
	s := l.shardFor(addr)
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[addr]
	if !ok {
		return models.ExecutionAttempt{}, fmt.Errorf("attempt for %s: %w", addr, errs.ErrNotFound)
	}
	if !cur.Status.CanTransition(next) {
		return *cur, fmt.Errorf("attempt for %s: illegal status transition %s -> %s", addr, cur.Status, next)
	}

	updated := *cur
	if mutate != nil {
		mutate(&updated)
	}
	updated.Status = cur.Status
	if err := updated.Advance(next, l.now()); err != nil {
		return *cur, err
	}
	*cur = updated
	return updated, nil
}

// Get returns a copy of the attempt for addr.
func (l *Ledger) Get(addr string) (models.ExecutionAttempt, bool) {
	s := l.shardFor(addr)
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.entries[addr]
	if !ok {
		return models.ExecutionAttempt{}, false
	}
	return *a, true
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Snapshot returns copies of all records ordered by creation time.
func (l *Ledger) Snapshot() []models.ExecutionAttempt {
	out := make([]models.ExecutionAttempt, 0)
	for _, s := range l.shards {
		s.mu.Lock()
		for _, a := range s.entries {
			out = append(out, *a)
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type candidate struct {
	addr      string
	updatedAt time.Time
	shard     *shard
}

// Evict removes terminal records older than the horizon, then the oldest
// terminal records while over MaxEntries. Pending and Submitted records are
// never removed. It returns the number of records dropped.
func (l *Ledger) Evict(now time.Time) int {
	cutoff := now.Add(-l.horizon)
	removed := 0
	total := 0
	var terminal []candidate

	for _, s := range l.shards {
		s.mu.Lock()
		for addr, a := range s.entries {
			if !a.Status.Terminal() {
				continue
			}
			if a.UpdatedAt.Before(cutoff) {
				delete(s.entries, addr)
				removed++
				continue
			}
			terminal = append(terminal, candidate{addr: addr, updatedAt: a.UpdatedAt, shard: s})
		}
		total += len(s.entries)
		s.mu.Unlock()
	}

	excess := total - l.maxEntries
	if excess <= 0 {
		return removed
	}

	sort.Slice(terminal, func(i, j int) bool { return terminal[i].updatedAt.Before(terminal[j].updatedAt) })
	for _, c := range terminal {
		if excess <= 0 {
			break
		}
		c.shard.mu.Lock()
		if a, ok := c.shard.entries[c.addr]; ok && a.Status.Terminal() {
			delete(c.shard.entries, c.addr)
			removed++
			excess--
		}
		c.shard.mu.Unlock()
	}
	return removed
}

// Run evicts on a ticker until ctx is done.
func (l *Ledger) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Evict(l.now()); n > 0 {
				l.logger.WithFields(logrus.Fields{
					"evicted":   n,
					"remaining": l.Len(),
				}).Debug("ledger eviction")
			}
		}
	}
}
