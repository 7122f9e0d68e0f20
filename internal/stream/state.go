package stream

// State is the detection manager's transport state.
type State int

const (
	StateConnectingStreaming State = iota
	StateStreamingActive
	StateStreamingDegraded
	StateFallbackActive
	StateRetryingStreaming
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateConnectingStreaming:
		return "connecting_streaming"
	case StateStreamingActive:
		return "streaming_active"
	case StateStreamingDegraded:
		return "streaming_degraded"
	case StateFallbackActive:
		return "fallback_active"
	case StateRetryingStreaming:
		return "retrying_streaming"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Signal is an input to the state machine.
type Signal int

const (
	// SignalSubscribed means the streaming transport acknowledged its subscription.
	SignalSubscribed Signal = iota

	// SignalConnectFailed means dialing or subscribing the streaming transport failed.
	SignalConnectFailed

	// SignalStreamEnded means an active streaming subscription closed.
	SignalStreamEnded

	// SignalFailover means the degraded state picks its next transport.
	SignalFailover

	// SignalFallbackFailed means the fallback transport could not subscribe or stopped.
	SignalFallbackFailed

	// SignalPromoted means streaming re-subscribed while the fallback was active.
	SignalPromoted

	// SignalBackoffElapsed means the retry delay has passed.
	SignalBackoffElapsed

	// SignalExhausted means retries ran out with no transport left.
	SignalExhausted

	// SignalCancel means the owning context was cancelled.
	SignalCancel
)

// Next returns the state that follows s on sig. Unexpected signals leave the
// state unchanged. Shutdown is absorbing.
func Next(s State, sig Signal, hasFallback bool) State {
	if s == StateShutdown || sig == SignalCancel || sig == SignalExhausted {
		return StateShutdown
	}

	switch s {
	case StateConnectingStreaming:
		switch sig {
		case SignalSubscribed:
			return StateStreamingActive
		case SignalConnectFailed:
			return StateStreamingDegraded
		}
	case StateStreamingActive:
		if sig == SignalStreamEnded {
			return StateStreamingDegraded
		}
	case StateStreamingDegraded:
		if sig == SignalFailover {
			if hasFallback {
				return StateFallbackActive
			}
			return StateRetryingStreaming
		}
	case StateFallbackActive:
		switch sig {
		case SignalPromoted:
			return StateStreamingActive
		case SignalFallbackFailed:
			return StateRetryingStreaming
		}
	case StateRetryingStreaming:
		if sig == SignalBackoffElapsed {
			return StateConnectingStreaming
		}
	}
	return s
}
