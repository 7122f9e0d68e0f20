package stream

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/aman-zulfiqar/raydium-sniper/internal/models"
	"github.com/aman-zulfiqar/raydium-sniper/internal/rpc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSignatureSource struct {
	mu      sync.Mutex
	batches [][]rpc.SignatureInfo
	calls   []rpc.SignaturesOptions
	txs     map[string]*rpc.TransactionResult
	fetches int
}

func (f *fakeSignatureSource) GetSignaturesForAddress(_ context.Context, _ string, opts rpc.SignaturesOptions) ([]rpc.SignatureInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeSignatureSource) GetTransaction(_ context.Context, signature string) (*rpc.TransactionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.txs[signature], nil
}

func (f *fakeSignatureSource) publish(signature string, tx *rpc.TransactionResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[signature] = tx
}

func (f *fakeSignatureSource) options() []rpc.SignaturesOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rpc.SignaturesOptions(nil), f.calls...)
}

func txResult(slot uint64, payload []byte) *rpc.TransactionResult {
	return &rpc.TransactionResult{
		Slot:        slot,
		Meta:        &rpc.TransactionMeta{},
		Transaction: []string{base64.StdEncoding.EncodeToString(payload), "base64"},
	}
}

func TestRPCPoller_EmitsOldestFirstAndSkipsSeen(t *testing.T) {
	src := &fakeSignatureSource{
		batches: [][]rpc.SignatureInfo{
			{{Signature: "sig3"}, {Signature: "sig2", Err: map[string]interface{}{"InstructionError": nil}}, {Signature: "sig1"}},
			{{Signature: "sig5"}, {Signature: "sig4"}, {Signature: "sig1"}},
		},
		txs: map[string]*rpc.TransactionResult{
			"sig1": txResult(10, []byte{1}),
			"sig2": txResult(11, []byte{2}),
			"sig3": txResult(12, []byte{3}),
			"sig4": txResult(13, []byte{4}),
			// sig5 is not yet available on the node
		},
	}

	p, err := NewRPCPoller(RPCPollerConfig{
		RPCClient:    src,
		PollInterval: 10 * time.Millisecond,
		FetchDelay:   -1,
		FetchRetries: 1000,
		Logger:       quietLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := p.Subscribe(ctx, []string{"prog"})
	require.NoError(t, err)

	var got []models.RawTransaction
	receive := func(n int) {
		for len(got) < n {
			select {
			case ev := <-ch:
				got = append(got, ev)
			case <-time.After(5 * time.Second):
				t.Fatalf("received %d events", len(got))
			}
		}
	}
	receive(3)

	// The cursor has moved past sig5; it still arrives once the node serves it.
	src.publish("sig5", txResult(14, []byte{5}))
	receive(4)
	cancel()
	for range ch {
	}

	assert.Equal(t, "sig1", got[0].Signature)
	assert.Equal(t, "sig3", got[1].Signature)
	assert.Equal(t, "sig4", got[2].Signature)
	assert.Equal(t, "sig5", got[3].Signature)
	assert.Equal(t, []byte{5}, got[3].Data)
	assert.Equal(t, []byte{3}, got[1].Data)
	assert.Equal(t, uint64(12), got[1].Slot)
	assert.Equal(t, models.SourceFallback, got[0].Source)

	calls := src.options()
	require.GreaterOrEqual(t, len(calls), 2)
	assert.Empty(t, calls[0].Until)
	assert.Equal(t, "sig3", calls[1].Until)
}

func pendingCount(p *RPCPoller, program string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending[program])
}

func TestRPCPoller_LateTransactionDelivered(t *testing.T) {
	src := &fakeSignatureSource{
		batches: [][]rpc.SignatureInfo{{{Signature: "poolinit"}}},
		txs:     map[string]*rpc.TransactionResult{},
	}

	p, err := NewRPCPoller(RPCPollerConfig{
		RPCClient:    src,
		PollInterval: 5 * time.Millisecond,
		FetchDelay:   -1,
		FetchRetries: 1000,
		Logger:       quietLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := p.Subscribe(ctx, []string{"prog"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(src.options()) >= 2 }, 5*time.Second, time.Millisecond)
	src.publish("poolinit", txResult(20, []byte{9}))

	select {
	case ev := <-ch:
		assert.Equal(t, "poolinit", ev.Signature)
		assert.Equal(t, uint64(20), ev.Slot)
	case <-time.After(5 * time.Second):
		t.Fatal("late transaction never delivered")
	}

	calls := src.options()
	assert.Equal(t, "poolinit", calls[len(calls)-1].Until)
	assert.Eventually(t, func() bool { return pendingCount(p, "prog") == 0 }, 5*time.Second, time.Millisecond)
}

func TestRPCPoller_GivesUpAfterRetries(t *testing.T) {
	src := &fakeSignatureSource{
		batches: [][]rpc.SignatureInfo{{{Signature: "dropped"}}},
		txs:     map[string]*rpc.TransactionResult{},
	}

	p, err := NewRPCPoller(RPCPollerConfig{
		RPCClient:    src,
		PollInterval: 5 * time.Millisecond,
		FetchDelay:   -1,
		FetchRetries: 3,
		Logger:       quietLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err = p.Subscribe(ctx, []string{"prog"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(src.options()) >= 6 }, 5*time.Second, time.Millisecond)
	assert.Zero(t, pendingCount(p, "prog"))

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, 3, src.fetches)
}

func TestRPCPoller_CloseStopsSubscription(t *testing.T) {
	p, err := NewRPCPoller(RPCPollerConfig{
		RPCClient:    &fakeSignatureSource{},
		PollInterval: 10 * time.Millisecond,
		Logger:       quietLogger(),
	})
	require.NoError(t, err)

	ch, err := p.Subscribe(context.Background(), []string{"prog"})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestNewRPCPoller_RequiresClient(t *testing.T) {
	_, err := NewRPCPoller(RPCPollerConfig{})
	assert.Error(t, err)
}
