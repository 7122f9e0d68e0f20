// Package pipeline drives detected transactions through normalization,
// enrichment, filtering and execution with a bounded number of buys in
// flight.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aman-zulfiqar/raydium-sniper/internal/builder"
	"github.com/aman-zulfiqar/raydium-sniper/internal/executor"
	"github.com/aman-zulfiqar/raydium-sniper/internal/fees"
	"github.com/aman-zulfiqar/raydium-sniper/internal/filter"
	"github.com/aman-zulfiqar/raydium-sniper/internal/metrics"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"
	"github.com/aman-zulfiqar/raydium-sniper/internal/storage"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

// Rejection reasons produced before the filter engine runs.
const (
	ReasonPaused           = "operator paused"
	ReasonEnrichmentFailed = "enrichment failed"
)

// EventSource yields raw transactions until it is closed.
type EventSource interface {
	Events() <-chan models.RawTransaction
}

type Normalizer interface {
	Normalize(raw models.RawTransaction) (*models.PoolEvent, error)
}

type Enricher interface {
	Enrich(ctx context.Context, ev models.PoolEvent) (models.PoolEvent, filter.EnrichedState, error)
}

type Builder interface {
	Build(ev models.PoolEvent, owner solana.PublicKey, buyLamports uint64, slippageBps uint16) (*builder.Plan, error)
}

// Claimer is the dedup ledger's test-and-set.
type Claimer interface {
	TryClaim(addr string) (models.ExecutionAttempt, bool)
}

type Executor interface {
	Submit(ctx context.Context, plan *builder.Plan, signer executor.Signer, feePlan fees.Plan) models.ExecutionAttempt
}

type FeeSampler interface {
	Latest() fees.Sample
}

// PauseGate reports whether the operator has paused admission.
type PauseGate interface {
	Enabled(ctx context.Context) bool
}

// Config holds configuration for the pipeline
type Config struct {
	Source     EventSource
	Normalizer Normalizer
	Enricher   Enricher
	Filter     *filter.Engine
	Rules      *filter.Config
	Estimator  *fees.Estimator
	FeeSample  FeeSampler
	Builder    Builder
	Ledger     Claimer
	Executor   Executor
	Signer     executor.Signer

	// Optional.
	Pause    PauseGate
	Outcomes storage.OutcomeSink
	Metrics  *metrics.Metrics

	// MaxConcurrent bounds buys in flight.
	MaxConcurrent int
	// MaxEvaluating bounds pools being enriched and filtered at once.
	MaxEvaluating int
	ShutdownGrace time.Duration

	Logger *logrus.Logger
}

// Stats are cumulative counters, mainly for tests and the shutdown summary.
type Stats struct {
	Detected     int64
	DecodeErrors int64
	Pools        int64
	Rejected     int64
	Duplicates   int64
	Executed     int64
	Failed       int64
	Dropped      int64
}

type counters struct {
	detected, decodeErrors, pools, rejected atomic.Int64
	duplicates, executed, failed, dropped   atomic.Int64
}

// Pipeline is single use: Run may be called once.
type Pipeline struct {
	source     EventSource
	normalizer Normalizer
	enricher   Enricher
	engine     *filter.Engine
	rules      *filter.Config
	estimator  *fees.Estimator
	sampler    FeeSampler
	builder    Builder
	ledger     Claimer
	executor   Executor
	signer     executor.Signer
	pause      PauseGate
	outcomes   storage.OutcomeSink
	metrics    *metrics.Metrics
	grace      time.Duration
	logger     *logrus.Logger

	permits  chan struct{}
	evalSlot chan struct{}
	stats    counters
	running  atomic.Bool
}

// New validates cfg and builds a pipeline.
func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Source == nil:
		return nil, errors.New("event source is required")
	case cfg.Normalizer == nil:
		return nil, errors.New("normalizer is required")
	case cfg.Rules == nil:
		return nil, errors.New("filter rules are required")
	case cfg.Builder == nil:
		return nil, errors.New("builder is required")
	case cfg.Ledger == nil:
		return nil, errors.New("ledger is required")
	case cfg.Executor == nil:
		return nil, errors.New("executor is required")
	case cfg.Signer == nil:
		return nil, errors.New("signer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Filter == nil {
		cfg.Filter = filter.NewEngine()
	}
	if cfg.Estimator == nil {
		cfg.Estimator = fees.NewEstimator(fees.Config{})
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxEvaluating <= 0 {
		cfg.MaxEvaluating = 4 * cfg.MaxConcurrent
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}

	return &Pipeline{
		source:     cfg.Source,
		normalizer: cfg.Normalizer,
		enricher:   cfg.Enricher,
		engine:     cfg.Filter,
		rules:      cfg.Rules,
		estimator:  cfg.Estimator,
		sampler:    cfg.FeeSample,
		builder:    cfg.Builder,
		ledger:     cfg.Ledger,
		executor:   cfg.Executor,
		signer:     cfg.Signer,
		pause:      cfg.Pause,
		outcomes:   cfg.Outcomes,
		metrics:    cfg.Metrics,
		grace:      cfg.ShutdownGrace,
		logger:     cfg.Logger,
		permits:    make(chan struct{}, cfg.MaxConcurrent),
		evalSlot:   make(chan struct{}, cfg.MaxEvaluating),
	}, nil
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Detected:     p.stats.detected.Load(),
		DecodeErrors: p.stats.decodeErrors.Load(),
		Pools:        p.stats.pools.Load(),
		Rejected:     p.stats.rejected.Load(),
		Duplicates:   p.stats.duplicates.Load(),
		Executed:     p.stats.executed.Load(),
		Failed:       p.stats.failed.Load(),
		Dropped:      p.stats.dropped.Load(),
	}
}

// Run consumes the source until it closes. Once ctx is done no new pool is
// admitted, but the source is still drained so its producer can finish.
// In-flight buys get ShutdownGrace before their context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline already running")
	}

	// Buys outlive ctx by up to the grace period.
	execCtx, cancelExec := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelExec()

	p.logger.WithFields(logrus.Fields{
		"max_concurrent": cap(p.permits),
		"max_evaluating": cap(p.evalSlot),
	}).Info("pipeline started")

	var wg sync.WaitGroup
	for raw := range p.source.Events() {
		p.stats.detected.Add(1)
		p.metrics.Detected(raw.Source.String())

		if ctx.Err() != nil {
			p.stats.dropped.Add(1)
			continue
		}

		ev, ok := p.normalize(raw)
		if !ok {
			continue
		}

		select {
		case p.evalSlot <- struct{}{}:
		case <-ctx.Done():
			p.stats.dropped.Add(1)
			continue
		}

		wg.Add(1)
		go func(ev models.PoolEvent) {
			defer wg.Done()
			p.process(ctx, execCtx, ev)
		}(*ev)
	}

	p.awaitInFlight(&wg, cancelExec)

	s := p.Stats()
	p.logger.WithFields(logrus.Fields{
		"detected":   s.Detected,
		"pools":      s.Pools,
		"rejected":   s.Rejected,
		"duplicates": s.Duplicates,
		"executed":   s.Executed,
		"failed":     s.Failed,
		"dropped":    s.Dropped,
	}).Info("pipeline stopped")
	return nil
}

func (p *Pipeline) awaitInFlight(wg *sync.WaitGroup, cancelExec context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(p.grace)
	defer timer.Stop()

	select {
	case <-done:
		return
	case <-timer.C:
	}

	p.logger.WithField("grace", p.grace).Warn("shutdown grace elapsed, cancelling in-flight executions")
	cancelExec()
	<-done
}

func (p *Pipeline) normalize(raw models.RawTransaction) (*models.PoolEvent, bool) {
	ev, err := p.normalizer.Normalize(raw)
	if err != nil {
		p.stats.decodeErrors.Add(1)
		p.metrics.DecodeError()
		p.logger.WithError(err).WithField("signature", raw.Signature).Debug("dropping undecodable transaction")
		return nil, false
	}
	if ev == nil {
		return nil, false
	}

	p.stats.pools.Add(1)
	p.metrics.Decoded(ev.PoolType.String())
	p.logger.WithFields(logrus.Fields{
		"pool":      ev.PoolAddress.String(),
		"type":      ev.PoolType.String(),
		"base_mint": ev.BaseMint.String(),
		"source":    ev.Source.String(),
		"slot":      ev.Slot,
	}).Info("new pool detected")
	return ev, true
}

// process evaluates one pool and, when accepted, buys it. The eval slot is
// released before waiting on a buy permit.
func (p *Pipeline) process(ctx, execCtx context.Context, ev models.PoolEvent) {
	evalHeld := true
	release := func() {
		if evalHeld {
			<-p.evalSlot
			evalHeld = false
		}
	}
	defer release()

	if p.pause != nil && p.pause.Enabled(ctx) {
		p.reject(ev, ReasonPaused)
		return
	}

	ev, decision, ok := p.evaluate(ctx, ev)
	if !ok {
		return
	}
	if !decision.Accepted {
		p.reject(ev, decision.Reason)
		return
	}

	feePlan := p.estimator.Estimate(p.sample())
	p.metrics.PriorityFee(feePlan.PriorityFeeMicroLamports)

	plan, err := p.builder.Build(ev, p.signer.PublicKey(), p.rules.BuyAmountLamports, p.rules.SlippageBps)
	if err != nil {
		p.stats.failed.Add(1)
		p.report(ev, models.Outcome{Status: string(models.StatusFailed), Reason: err.Error()})
		return
	}
	release()

	select {
	case p.permits <- struct{}{}:
	case <-ctx.Done():
		p.stats.dropped.Add(1)
		p.logger.WithField("pool", ev.PoolAddress.String()).Info("shutdown before dispatch")
		return
	}
	defer func() { <-p.permits }()

	if existing, won := p.ledger.TryClaim(ev.PoolAddress.String()); !won {
		p.stats.duplicates.Add(1)
		p.metrics.ClaimLost()
		p.logger.WithFields(logrus.Fields{
			"pool":   ev.PoolAddress.String(),
			"source": ev.Source.String(),
			"status": existing.Status,
		}).Debug("pool already claimed")
		return
	}

	p.metrics.InFlight(1)
	p.logger.WithFields(logrus.Fields{
		"pool":         ev.PoolAddress.String(),
		"amount_in":    plan.AmountIn,
		"expected_out": plan.ExpectedOut,
		"minimum_out":  plan.MinimumOut,
		"priority_fee": feePlan.PriorityFeeMicroLamports,
		"route":        feePlan.Route,
	}).Info("submitting buy")

	attempt := p.executor.Submit(execCtx, plan, p.signer, feePlan)
	p.metrics.InFlight(-1)

	p.stats.executed.Add(1)
	if attempt.Status == models.StatusFailed {
		p.stats.failed.Add(1)
	}
	p.metrics.Outcome(string(attempt.Status), string(feePlan.Route), time.Since(ev.ObservedAt))
	p.report(ev, models.Outcome{
		Status:    string(attempt.Status),
		Reason:    attempt.LastError,
		Signature: attempt.Signature,
		Attempts:  attempt.AttemptCount,
	})
}

// evaluate enriches and filters ev. ok is false when the event was already
// reported.
func (p *Pipeline) evaluate(ctx context.Context, ev models.PoolEvent) (models.PoolEvent, filter.Decision, bool) {
	var state filter.EnrichedState
	if p.enricher != nil {
		enriched, s, err := p.enricher.Enrich(ctx, ev)
		if err != nil {
			p.logger.WithError(err).WithField("pool", ev.PoolAddress.String()).Warn("enrichment failed")
			p.reject(ev, ReasonEnrichmentFailed)
			return ev, filter.Decision{}, false
		}
		ev, state = enriched, s
	}

	decision := p.engine.Evaluate(ev, p.rules, state)
	p.metrics.Decision(decision.Accepted, decision.Reason)

	fields := logrus.Fields{
		"pool":      ev.PoolAddress.String(),
		"accepted":  decision.Accepted,
		"liquidity": state.LiquidityUSD.StringFixed(2),
	}
	if !state.LiquidityKnown {
		fields["liquidity"] = "unknown"
	}
	if state.Metadata != nil {
		fields["symbol"] = state.Metadata.Symbol
	}
	p.logger.WithFields(fields).Debug("filter decision")
	return ev, decision, true
}

func (p *Pipeline) sample() fees.Sample {
	if p.sampler == nil {
		return fees.Sample{}
	}
	return p.sampler.Latest()
}

func (p *Pipeline) reject(ev models.PoolEvent, reason string) {
	p.stats.rejected.Add(1)
	p.report(ev, models.Outcome{Status: models.OutcomeRejected, Reason: reason})
}

// report fills in the pool fields, logs the outcome and publishes it. Publish
// failures are logged only.
func (p *Pipeline) report(ev models.PoolEvent, o models.Outcome) {
	o.PoolAddress = ev.PoolAddress.String()
	o.PoolType = ev.PoolType.String()
	o.BaseMint = ev.BaseMint.String()
	o.Creator = ev.CreatorAddress.String()
	o.Source = ev.Source.String()
	o.Timestamp = time.Now().UTC()
	if !ev.ObservedAt.IsZero() {
		o.Latency = time.Since(ev.ObservedAt)
	}

	entry := p.logger.WithFields(logrus.Fields{
		"pool":    o.PoolAddress,
		"status":  o.Status,
		"latency": o.Latency,
	})
	if o.Reason != "" {
		entry = entry.WithField("reason", o.Reason)
	}
	if o.Signature != "" {
		entry = entry.WithField("signature", o.Signature)
	}
	if o.Status == string(models.StatusFailed) {
		entry.Warn("pool outcome")
	} else {
		entry.Info("pool outcome")
	}

	if p.outcomes == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.outcomes.Publish(ctx, &o); err != nil {
		p.logger.WithError(err).WithField("pool", o.PoolAddress).Warn("failed to publish outcome")
	}
}
