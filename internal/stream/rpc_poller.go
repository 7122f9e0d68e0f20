package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aman-zulfiqar/raydium-sniper/internal/constants"
	"github.com/aman-zulfiqar/raydium-sniper/internal/errs"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"
	"github.com/aman-zulfiqar/raydium-sniper/internal/rpc"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// SignatureSource is the RPC surface the poller needs.
type SignatureSource interface {
	GetSignaturesForAddress(ctx context.Context, address string, opts rpc.SignaturesOptions) ([]rpc.SignatureInfo, error)
	GetTransaction(ctx context.Context, signature string) (*rpc.TransactionResult, error)
}

// RPCPoller is the fallback transport: it polls signatures per program and
// fetches each new transaction.
type RPCPoller struct {
	client       SignatureSource
	pollInterval time.Duration
	fetchDelay   time.Duration
	fetchRetries int
	batchSize    int
	bufferSize   int
	logger       *logrus.Logger

	seen *lru.Cache[string, struct{}]

	mu            sync.Mutex
	lastSignature map[string]string
	pending       map[string][]pendingSignature
	cancels       []context.CancelFunc
}

// pendingSignature is a signature already behind the cursor whose
// transaction the node did not serve yet.
type pendingSignature struct {
	info  rpc.SignatureInfo
	tries int
}

// RPCPollerConfig holds configuration for the RPC poller
type RPCPollerConfig struct {
	RPCClient    SignatureSource
	PollInterval time.Duration

	// FetchDelay spaces getTransaction calls within one poll.
	FetchDelay time.Duration

	// FetchRetries bounds how many polls retry a transaction the node did
	// not serve yet.
	FetchRetries int

	BatchSize     int
	SeenCacheSize int
	BufferSize    int
	Logger        *logrus.Logger
}

// NewRPCPoller creates a new RPC poller
func NewRPCPoller(cfg RPCPollerConfig) (*RPCPoller, error) {
	if cfg.RPCClient == nil {
		return nil, fmt.Errorf("rpc client is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = constants.DefaultPollInterval
	}
	if cfg.FetchDelay < 0 {
		cfg.FetchDelay = 0
	} else if cfg.FetchDelay == 0 {
		cfg.FetchDelay = constants.DelayBetweenTxFetch
	}
	if cfg.FetchRetries <= 0 {
		cfg.FetchRetries = constants.MaxFetchRetries
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = constants.SignatureBatchSize
	}
	if cfg.SeenCacheSize <= 0 {
		cfg.SeenCacheSize = constants.SeenSignatureCacheSize
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}

	seen, err := lru.New[string, struct{}](cfg.SeenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create seen cache: %w", err)
	}

	return &RPCPoller{
		client:        cfg.RPCClient,
		pollInterval:  cfg.PollInterval,
		fetchDelay:    cfg.FetchDelay,
		fetchRetries:  cfg.FetchRetries,
		batchSize:     cfg.BatchSize,
		bufferSize:    cfg.BufferSize,
		logger:        cfg.Logger,
		seen:          seen,
		lastSignature: make(map[string]string),
		pending:       make(map[string][]pendingSignature),
	}, nil
}

func (r *RPCPoller) Name() string { return "rpc_poller" }

// Subscribe starts polling. The cursor per program, the seen set and the
// retry set survive across subscriptions, so a resumed poller neither
// replays old signatures nor forgets unfetched ones.
func (r *RPCPoller) Subscribe(ctx context.Context, programs []string) (<-chan models.RawTransaction, error) {
	if len(programs) == 0 {
		return nil, &errs.TransportError{Transport: r.Name(), Err: fmt.Errorf("no programs to monitor")}
	}

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancels = append(r.cancels, cancel)
	r.mu.Unlock()

	out := make(chan models.RawTransaction, r.bufferSize)
	go r.run(ctx, programs, out)

	r.logger.WithFields(logrus.Fields{
		"interval": r.pollInterval,
		"programs": programs,
	}).Info("starting RPC polling")

	return out, nil
}

// Close stops every running subscription.
func (r *RPCPoller) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cancel := range r.cancels {
		cancel()
	}
	r.cancels = nil
	return nil
}

func (r *RPCPoller) run(ctx context.Context, programs []string, out chan<- models.RawTransaction) {
	defer close(out)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		for _, program := range programs {
			if err := r.poll(ctx, program, out); err != nil {
				if ctx.Err() != nil {
					return
				}
				r.logger.WithError(err).WithField("program", program).Warn("poll error")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll retries signatures the node could not serve earlier, then fetches
// signatures newer than the cursor, and emits their transactions oldest first.
// The cursor moves past a signature before its transaction is fetched; a
// failed fetch parks the signature in the retry set.
func (r *RPCPoller) poll(ctx context.Context, program string, out chan<- models.RawTransaction) error {
	fetched := 0
	if err := r.retryPending(ctx, program, &fetched, out); err != nil {
		return err
	}

	opts := rpc.SignaturesOptions{Limit: r.batchSize, Commitment: "confirmed"}

	r.mu.Lock()
	lastSig := r.lastSignature[program]
	r.mu.Unlock()
	if lastSig != "" {
		opts.Until = lastSig
	}

	sigs, err := r.client.GetSignaturesForAddress(ctx, program, opts)
	if err != nil {
		return fmt.Errorf("failed to get signatures: %w", err)
	}
	if len(sigs) == 0 {
		r.logger.WithField("program", program).Debug("no new transactions")
		return nil
	}

	r.mu.Lock()
	r.lastSignature[program] = sigs[0].Signature
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"program": program,
		"count":   len(sigs),
	}).Debug("found new signatures")

	for i := len(sigs) - 1; i >= 0; i-- {
		sig := sigs[i]
		if sig.Err != nil || r.seen.Contains(sig.Signature) {
			continue
		}
		if err := r.deliver(ctx, program, pendingSignature{info: sig}, &fetched, out); err != nil {
			return err
		}
	}
	return nil
}

func (r *RPCPoller) retryPending(ctx context.Context, program string, fetched *int, out chan<- models.RawTransaction) error {
	r.mu.Lock()
	retry := r.pending[program]
	delete(r.pending, program)
	r.mu.Unlock()

	for i, p := range retry {
		if r.seen.Contains(p.info.Signature) {
			continue
		}
		if err := r.deliver(ctx, program, p, fetched, out); err != nil {
			r.park(program, retry[i+1:]...)
			return err
		}
	}
	return nil
}

// deliver fetches and emits one transaction, parking it for the next poll
// when the node cannot serve it.
func (r *RPCPoller) deliver(ctx context.Context, program string, p pendingSignature, fetched *int, out chan<- models.RawTransaction) error {
	if *fetched > 0 && r.fetchDelay > 0 {
		select {
		case <-ctx.Done():
			r.park(program, p)
			return ctx.Err()
		case <-time.After(r.fetchDelay):
		}
	}
	*fetched++

	raw, ok, err := r.fetch(ctx, p.info)
	if err != nil || !ok {
		if err != nil {
			r.logger.WithError(err).WithField("signature", p.info.Signature).Debug("failed to fetch transaction")
		}
		p.tries++
		if p.tries >= r.fetchRetries {
			r.logger.WithFields(logrus.Fields{
				"program":   program,
				"signature": p.info.Signature,
				"tries":     p.tries,
			}).Warn("giving up on transaction")
			return nil
		}
		r.park(program, p)
		return nil
	}
	r.seen.Add(p.info.Signature, struct{}{})

	select {
	case out <- raw:
		return nil
	case <-ctx.Done():
		r.seen.Remove(p.info.Signature)
		r.park(program, p)
		return ctx.Err()
	}
}

// park appends to the retry set, dropping the oldest entries past its cap.
func (r *RPCPoller) park(program string, ps ...pendingSignature) {
	if len(ps) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	q := append(r.pending[program], ps...)
	if over := len(q) - constants.MaxPendingSignatures; over > 0 {
		r.logger.WithFields(logrus.Fields{
			"program": program,
			"dropped": over,
		}).Warn("retry set full")
		q = q[over:]
	}
	r.pending[program] = q
}

func (r *RPCPoller) fetch(ctx context.Context, sig rpc.SignatureInfo) (models.RawTransaction, bool, error) {
	result, err := r.client.GetTransaction(ctx, sig.Signature)
	if err != nil {
		return models.RawTransaction{}, false, err
	}
	if result == nil {
		r.logger.WithField("signature", sig.Signature).Debug("transaction not yet available")
		return models.RawTransaction{}, false, nil
	}

	payload, err := result.DecodeTransactionData()
	if err != nil {
		return models.RawTransaction{}, false, err
	}

	return models.RawTransaction{
		Signature:  sig.Signature,
		Slot:       result.Slot,
		Data:       payload,
		Meta:       result.Meta.ToModel(),
		Source:     models.SourceFallback,
		ObservedAt: time.Now(),
	}, true, nil
}
