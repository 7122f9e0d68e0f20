package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aman-zulfiqar/raydium-sniper/internal/backoff"
	"github.com/aman-zulfiqar/raydium-sniper/internal/errs"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeed struct {
	ch     chan models.RawTransaction
	closed bool
}

// fakeTransport hands out buffered channels that close when the
// subscription context ends. Subscribe fails until available is set.
type fakeTransport struct {
	name      string
	available atomic.Bool

	mu         sync.Mutex
	subscribes int
	feeds      []*fakeFeed
	closes     int
}

func newFakeTransport(name string, available bool) *fakeTransport {
	f := &fakeTransport{name: name}
	f.available.Store(available)
	return f
}

func (f *fakeTransport) Name() string { return f.name }

func (f *fakeTransport) Subscribe(ctx context.Context, _ []string) (<-chan models.RawTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	if !f.available.Load() {
		return nil, errors.New("unavailable")
	}

	feed := &fakeFeed{ch: make(chan models.RawTransaction, 16)}
	f.feeds = append(f.feeds, feed)
	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		if !feed.closed {
			feed.closed = true
			close(feed.ch)
		}
	}()
	return feed.ch, nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

// emit pushes ev into subscription i; it reports false once that
// subscription has ended.
func (f *fakeTransport) emit(i int, ev models.RawTransaction) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.feeds) || f.feeds[i].closed {
		return false
	}
	f.feeds[i].ch <- ev
	return true
}

func (f *fakeTransport) counts() (subscribes, feeds, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes, len(f.feeds), f.closes
}

func (f *fakeTransport) feedClosed(i int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return i < len(f.feeds) && f.feeds[i].closed
}

func fastRetry() backoff.Policy {
	return backoff.Policy{Base: time.Millisecond, Cap: 2 * time.Millisecond, Factor: 2}
}

func receive(t *testing.T, ch <-chan models.RawTransaction) models.RawTransaction {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "events closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
	}
	return models.RawTransaction{}
}

func drain(t *testing.T, ch <-chan models.RawTransaction) []models.RawTransaction {
	t.Helper()
	var out []models.RawTransaction
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("events not closed")
		}
	}
}

func TestManager_FallsBackWhenStreamingUnavailable(t *testing.T) {
	streaming := newFakeTransport("ws", false)
	fallback := newFakeTransport("poller", true)

	m, err := NewManager(ManagerConfig{
		Streaming:       streaming,
		Fallback:        fallback,
		Programs:        []string{"prog"},
		Retry:           fastRetry(),
		PromoteInterval: 10 * time.Millisecond,
		Logger:          quietLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, StateConnectingStreaming, m.State())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))

	require.Eventually(t, func() bool {
		_, feeds, _ := fallback.counts()
		return feeds == 1
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateFallbackActive, m.State())

	require.True(t, fallback.emit(0, models.RawTransaction{Signature: "pool-init", Source: models.SourceFallback}))
	ev := receive(t, m.Events())
	assert.Equal(t, "pool-init", ev.Signature)
	assert.Equal(t, models.SourceFallback, ev.Source)

	cancel()
	drain(t, m.Events())
	assert.NoError(t, m.Err())
	assert.Equal(t, StateShutdown, m.State())

	_, _, closes := fallback.counts()
	assert.Equal(t, 1, closes)
}

func TestManager_PromotesBackToStreaming(t *testing.T) {
	streaming := newFakeTransport("ws", false)
	fallback := newFakeTransport("poller", true)

	var transitions []State
	var tmu sync.Mutex
	m, err := NewManager(ManagerConfig{
		Streaming:       streaming,
		Fallback:        fallback,
		Programs:        []string{"prog"},
		Retry:           fastRetry(),
		PromoteInterval: 10 * time.Millisecond,
		OnStateChange: func(_, to State) {
			tmu.Lock()
			transitions = append(transitions, to)
			tmu.Unlock()
		},
		Logger: quietLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))

	require.Eventually(t, func() bool {
		_, feeds, _ := fallback.counts()
		return feeds == 1
	}, 5*time.Second, 5*time.Millisecond)
	require.True(t, fallback.emit(0, models.RawTransaction{Signature: "from-fallback"}))
	assert.Equal(t, "from-fallback", receive(t, m.Events()).Signature)

	streaming.available.Store(true)
	require.Eventually(t, func() bool {
		return m.State() == StateStreamingActive
	}, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return fallback.feedClosed(0)
	}, 5*time.Second, 5*time.Millisecond)

	require.True(t, streaming.emit(0, models.RawTransaction{Signature: "from-stream"}))
	assert.Equal(t, "from-stream", receive(t, m.Events()).Signature)

	tmu.Lock()
	defer tmu.Unlock()
	assert.Equal(t, []State{StateStreamingDegraded, StateFallbackActive, StateStreamingActive}, transitions)
}

func TestManager_RetriesExhausted(t *testing.T) {
	streaming := newFakeTransport("ws", false)

	m, err := NewManager(ManagerConfig{
		Streaming:        streaming,
		Programs:         []string{"prog"},
		Retry:            fastRetry(),
		MaxStreamRetries: 3,
		Logger:           quietLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))

	assert.Empty(t, drain(t, m.Events()))
	assert.ErrorIs(t, m.Err(), errs.ErrTransportsExhausted)

	subscribes, _, closes := streaming.counts()
	assert.Equal(t, 3, subscribes)
	assert.Equal(t, 1, closes)
}

func TestManager_StreamEndRetries(t *testing.T) {
	streaming := newFakeTransport("ws", true)

	m, err := NewManager(ManagerConfig{
		Streaming: streaming,
		Programs:  []string{"prog"},
		Retry:     fastRetry(),
		Logger:    quietLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))

	require.Eventually(t, func() bool {
		_, feeds, _ := streaming.counts()
		return feeds == 1
	}, 5*time.Second, 5*time.Millisecond)

	// End the first subscription from the server side.
	streaming.mu.Lock()
	streaming.feeds[0].closed = true
	close(streaming.feeds[0].ch)
	streaming.mu.Unlock()

	require.Eventually(t, func() bool {
		_, feeds, _ := streaming.counts()
		return feeds == 2
	}, 5*time.Second, 5*time.Millisecond)

	require.True(t, streaming.emit(1, models.RawTransaction{Signature: "after-reconnect"}))
	assert.Equal(t, "after-reconnect", receive(t, m.Events()).Signature)
}

func TestManager_ShutdownForwardsBufferedEvents(t *testing.T) {
	streaming := newFakeTransport("ws", true)

	m, err := NewManager(ManagerConfig{
		Streaming: streaming,
		Programs:  []string{"prog"},
		Logger:    quietLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	require.Eventually(t, func() bool {
		_, feeds, _ := streaming.counts()
		return feeds == 1
	}, 5*time.Second, 5*time.Millisecond)

	for _, sig := range []string{"a", "b", "c"} {
		require.True(t, streaming.emit(0, models.RawTransaction{Signature: sig}))
	}
	cancel()

	got := drain(t, m.Events())
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Signature)
	assert.Equal(t, "c", got[2].Signature)
	assert.NoError(t, m.Err())
}

func TestManager_FallbackOnly(t *testing.T) {
	fallback := newFakeTransport("poller", true)
	m, err := NewManager(ManagerConfig{
		Fallback: fallback,
		Programs: []string{"prog"},
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, StateFallbackActive, m.State())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	assert.Error(t, m.Start(ctx))

	require.Eventually(t, func() bool {
		_, feeds, _ := fallback.counts()
		return feeds == 1
	}, 5*time.Second, 5*time.Millisecond)
	require.True(t, fallback.emit(0, models.RawTransaction{Signature: "x"}))
	assert.Equal(t, "x", receive(t, m.Events()).Signature)

	cancel()
	drain(t, m.Events())
}

func TestNewManager_Validation(t *testing.T) {
	var ce *errs.ConfigurationError

	_, err := NewManager(ManagerConfig{Programs: []string{"prog"}})
	assert.True(t, errors.As(err, &ce))

	_, err = NewManager(ManagerConfig{Streaming: newFakeTransport("ws", true)})
	assert.True(t, errors.As(err, &ce))
}

func TestMerge(t *testing.T) {
	a := make(chan models.RawTransaction, 2)
	b := make(chan models.RawTransaction, 2)
	a <- models.RawTransaction{Signature: "a1"}
	b <- models.RawTransaction{Signature: "b1"}
	b <- models.RawTransaction{Signature: "b2"}
	close(a)
	close(b)

	got := map[string]bool{}
	for ev := range merge(a, b) {
		got[ev.Signature] = true
	}
	assert.Equal(t, map[string]bool{"a1": true, "b1": true, "b2": true}, got)

	assert.Nil(t, merge(nil, nil))
}
