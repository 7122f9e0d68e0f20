// Package stream detects candidate transactions through a streaming
// transport with an optional polling fallback.
package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aman-zulfiqar/raydium-sniper/internal/backoff"
	"github.com/aman-zulfiqar/raydium-sniper/internal/errs"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"

	"github.com/sirupsen/logrus"
)

// ManagerConfig holds configuration for the detection manager
type ManagerConfig struct {
	// Streaming may be nil when no streaming endpoint is configured.
	Streaming Transport

	// Fallback may be nil when polling is disabled.
	Fallback Transport

	Programs []string
	Retry    backoff.Policy

	// MaxStreamRetries bounds consecutive streaming failures once no
	// fallback is left. Zero retries forever.
	MaxStreamRetries int

	// PromoteInterval is how often the fallback state retries streaming.
	PromoteInterval time.Duration

	BufferSize int

	// OnStateChange, when set, observes every transition.
	OnStateChange func(from, to State)

	Logger *logrus.Logger
}

// Manager owns the detection transports and exposes one event sequence.
type Manager struct {
	streaming  Transport
	fallback   Transport
	programs   []string
	retry      backoff.Policy
	maxRetries int
	promote    time.Duration
	onChange   func(from, to State)
	logger     *logrus.Logger

	out     chan models.RawTransaction
	state   atomic.Int32
	started atomic.Bool

	errMu sync.Mutex
	err   error
}

// session is the transport state owned by the run loop.
type session struct {
	streamCh <-chan models.RawTransaction
	fbCh     <-chan models.RawTransaction
	fbCancel context.CancelFunc
	drainCh  <-chan models.RawTransaction
	retries  int
}

// NewManager validates cfg and builds a manager in its initial state.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Streaming == nil && cfg.Fallback == nil {
		return nil, &errs.ConfigurationError{Field: "STREAM_WS_URL", Reason: "no streaming endpoint and fallback polling disabled"}
	}
	if len(cfg.Programs) == 0 {
		return nil, &errs.ConfigurationError{Field: "MONITOR_AMM_V4", Reason: "no programs to monitor"}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Retry.Base <= 0 {
		cfg.Retry = backoff.Policy{Base: time.Second, Cap: 30 * time.Second, Factor: 2}
	}
	if cfg.PromoteInterval <= 0 {
		cfg.PromoteInterval = 30 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}

	m := &Manager{
		streaming:  cfg.Streaming,
		fallback:   cfg.Fallback,
		programs:   cfg.Programs,
		retry:      cfg.Retry,
		maxRetries: cfg.MaxStreamRetries,
		promote:    cfg.PromoteInterval,
		onChange:   cfg.OnStateChange,
		logger:     cfg.Logger,
		out:        make(chan models.RawTransaction, cfg.BufferSize),
	}
	m.state.Store(int32(m.initialState()))
	return m, nil
}

func (m *Manager) initialState() State {
	if m.streaming == nil {
		return StateFallbackActive
	}
	return StateConnectingStreaming
}

// Events returns the detected transactions. The channel is closed once,
// after shutdown has forwarded everything the transports already emitted.
// Consumers must keep reading until it closes.
func (m *Manager) Events() <-chan models.RawTransaction { return m.out }

// State reports the current transport state.
func (m *Manager) State() State { return State(m.state.Load()) }

// Err is non-nil when the sequence ended for a reason other than ctx
// cancellation. Valid after Events is closed.
func (m *Manager) Err() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.err
}

// Start launches the run loop. A manager runs at most once.
func (m *Manager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return fmt.Errorf("detection manager already started")
	}
	go m.run(ctx)
	return nil
}

func (m *Manager) hasFallback() bool { return m.fallback != nil }

func (m *Manager) run(ctx context.Context) {
	defer close(m.out)

	s := &session{fbCancel: func() {}}
	state := m.State()

	m.logger.WithFields(logrus.Fields{
		"state":    state,
		"programs": m.programs,
		"fallback": m.hasFallback(),
	}).Info("starting detection")

	for state != StateShutdown {
		var sig Signal
		switch state {
		case StateConnectingStreaming:
			sig = m.connect(ctx, s)
		case StateStreamingActive:
			sig = m.stream(ctx, s)
		case StateStreamingDegraded:
			sig = SignalFailover
		case StateFallbackActive:
			sig = m.fallbackLoop(ctx, s)
		case StateRetryingStreaming:
			sig = m.wait(ctx, s)
		}

		next := Next(state, sig, m.hasFallback())
		if next != state {
			m.transition(state, next)
		}
		state = next
	}

	m.shutdown(s)
}

func (m *Manager) transition(from, to State) {
	m.state.Store(int32(to))
	m.logger.WithFields(logrus.Fields{
		"from": from,
		"to":   to,
	}).Info("detection state changed")
	if m.onChange != nil {
		m.onChange(from, to)
	}
}

func (m *Manager) connect(ctx context.Context, s *session) Signal {
	if ctx.Err() != nil {
		return SignalCancel
	}
	if m.streaming == nil {
		s.retries++
		return SignalConnectFailed
	}

	ch, err := m.streaming.Subscribe(ctx, m.programs)
	if err != nil {
		if ctx.Err() != nil {
			return SignalCancel
		}
		s.retries++
		m.logger.WithError(err).WithFields(logrus.Fields{
			"transport": m.streaming.Name(),
			"attempt":   s.retries,
		}).Warn("streaming subscribe failed")
		return SignalConnectFailed
	}

	s.retries = 0
	s.streamCh = ch
	return SignalSubscribed
}

func (m *Manager) stream(ctx context.Context, s *session) Signal {
	for {
		select {
		case <-ctx.Done():
			return SignalCancel
		case ev, ok := <-s.streamCh:
			if !ok {
				s.streamCh = nil
				if ctx.Err() != nil {
					return SignalCancel
				}
				m.logger.WithField("transport", m.streaming.Name()).Warn("streaming subscription ended")
				return SignalStreamEnded
			}
			m.out <- ev
		case ev, ok := <-s.drainCh:
			if !ok {
				s.drainCh = nil
				continue
			}
			m.out <- ev
		}
	}
}

func (m *Manager) fallbackLoop(ctx context.Context, s *session) Signal {
	if !m.hasFallback() {
		return SignalFallbackFailed
	}
	if s.fbCh == nil {
		subCtx, cancel := context.WithCancel(ctx)
		ch, err := m.fallback.Subscribe(subCtx, m.programs)
		if err != nil {
			cancel()
			if ctx.Err() != nil {
				return SignalCancel
			}
			m.logger.WithError(err).WithField("transport", m.fallback.Name()).Warn("fallback subscribe failed")
			return SignalFallbackFailed
		}
		s.fbCh, s.fbCancel = ch, cancel
		m.logger.WithField("transport", m.fallback.Name()).Info("fallback transport active")
	}

	var promote <-chan time.Time
	if m.streaming != nil {
		ticker := time.NewTicker(m.promote)
		defer ticker.Stop()
		promote = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return SignalCancel
		case ev, ok := <-s.fbCh:
			if !ok {
				s.fbCh = nil
				s.fbCancel()
				if ctx.Err() != nil {
					return SignalCancel
				}
				m.logger.WithField("transport", m.fallback.Name()).Warn("fallback subscription ended")
				return SignalFallbackFailed
			}
			m.out <- ev
		case ev, ok := <-s.drainCh:
			if !ok {
				s.drainCh = nil
				continue
			}
			m.out <- ev
		case <-promote:
			ch, err := m.streaming.Subscribe(ctx, m.programs)
			if err != nil {
				m.logger.WithError(err).Debug("streaming still unavailable")
				continue
			}
			s.streamCh = ch
			s.retries = 0

			// Cancelling stops new fallback events; those already
			// emitted are still forwarded from drainCh.
			s.fbCancel()
			s.drainCh = merge(s.drainCh, s.fbCh)
			s.fbCh = nil
			return SignalPromoted
		}
	}
}

func (m *Manager) wait(ctx context.Context, s *session) Signal {
	if m.maxRetries > 0 && s.retries >= m.maxRetries {
		m.errMu.Lock()
		m.err = fmt.Errorf("%w after %d attempts", errs.ErrTransportsExhausted, s.retries)
		m.errMu.Unlock()
		m.logger.WithField("attempts", s.retries).Error("detection transports exhausted")
		return SignalExhausted
	}

	attempt := s.retries - 1
	if attempt < 0 {
		attempt = 0
	}
	delay := backoff.FullJitter(m.retry.Delay(attempt))
	m.logger.WithFields(logrus.Fields{
		"attempt": s.retries,
		"backoff": delay,
	}).Debug("retrying streaming")

	if err := backoff.Sleep(ctx, delay); err != nil {
		return SignalCancel
	}
	return SignalBackoffElapsed
}

// shutdown closes both transports and forwards whatever they had already
// emitted.
func (m *Manager) shutdown(s *session) {
	s.fbCancel()
	if m.streaming != nil {
		if err := m.streaming.Close(); err != nil {
			m.logger.WithError(err).Debug("closing streaming transport")
		}
	}
	if m.fallback != nil {
		if err := m.fallback.Close(); err != nil {
			m.logger.WithError(err).Debug("closing fallback transport")
		}
	}

	forwarded := 0
	for _, ch := range []<-chan models.RawTransaction{s.streamCh, s.fbCh, s.drainCh} {
		if ch == nil {
			continue
		}
		for ev := range ch {
			m.out <- ev
			forwarded++
		}
	}

	m.logger.WithField("forwarded", forwarded).Info("detection stopped")
}

// merge joins two event channels; nil inputs are skipped.
func merge(a, b <-chan models.RawTransaction) <-chan models.RawTransaction {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	out := make(chan models.RawTransaction)
	var wg sync.WaitGroup
	for _, ch := range []<-chan models.RawTransaction{a, b} {
		wg.Add(1)
		go func(ch <-chan models.RawTransaction) {
			defer wg.Done()
			for ev := range ch {
				out <- ev
			}
		}(ch)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
