package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNext(t *testing.T) {
	tests := []struct {
		name        string
		from        State
		sig         Signal
		hasFallback bool
		want        State
	}{
		{"subscribed", StateConnectingStreaming, SignalSubscribed, false, StateStreamingActive},
		{"connect failed", StateConnectingStreaming, SignalConnectFailed, true, StateStreamingDegraded},
		{"stream ended", StateStreamingActive, SignalStreamEnded, true, StateStreamingDegraded},
		{"failover with fallback", StateStreamingDegraded, SignalFailover, true, StateFallbackActive},
		{"failover without fallback", StateStreamingDegraded, SignalFailover, false, StateRetryingStreaming},
		{"promoted", StateFallbackActive, SignalPromoted, true, StateStreamingActive},
		{"fallback failed", StateFallbackActive, SignalFallbackFailed, true, StateRetryingStreaming},
		{"backoff elapsed", StateRetryingStreaming, SignalBackoffElapsed, false, StateConnectingStreaming},
		{"exhausted", StateRetryingStreaming, SignalExhausted, false, StateShutdown},
		{"cancel while streaming", StateStreamingActive, SignalCancel, false, StateShutdown},
		{"cancel while retrying", StateRetryingStreaming, SignalCancel, true, StateShutdown},
		{"shutdown absorbs", StateShutdown, SignalSubscribed, true, StateShutdown},
		{"unexpected signal ignored", StateStreamingActive, SignalBackoffElapsed, true, StateStreamingActive},
		{"promote ignored outside fallback", StateConnectingStreaming, SignalPromoted, true, StateConnectingStreaming},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Next(tt.from, tt.sig, tt.hasFallback))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "fallback_active", StateFallbackActive.String())
	assert.Equal(t, "unknown", State(42).String())
}
