package executor

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aman-zulfiqar/raydium-sniper/internal/backoff"
	"github.com/aman-zulfiqar/raydium-sniper/internal/builder"
	"github.com/aman-zulfiqar/raydium-sniper/internal/constants"
	"github.com/aman-zulfiqar/raydium-sniper/internal/fees"
	"github.com/aman-zulfiqar/raydium-sniper/internal/ledger"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"
	"github.com/aman-zulfiqar/raydium-sniper/internal/rpc"
	"github.com/aman-zulfiqar/raydium-sniper/internal/wallet"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRPC struct {
	mu          sync.Mutex
	sendErrs    []error // consumed per send; nil entry means success
	sendCalls   int
	hashCalls   int
	sent        []string
	accepted    map[string]bool
	status      *rpc.SignatureStatus
	statusErr   error
	statusCall  int
	statusDelay int // status polls answered with no entry first
}

// acceptedErr is a send the node took before its response was lost.
type acceptedErr struct{ error }

func (e acceptedErr) Unwrap() error { return e.error }

// GetLatestBlockhash rotates the hash per call so a re-signed transaction
// gets a new signature.
func (f *fakeRPC) GetLatestBlockhash(context.Context, string) (solana.Hash, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashCalls++
	return solana.Hash{7, byte(f.hashCalls)}, 100, nil
}

func (f *fakeRPC) SendTransaction(_ context.Context, encoded string, _ rpc.SendOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", err
	}
	sig := tx.Signatures[0].String()
	f.sent = append(f.sent, sig)

	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			var acc acceptedErr
			if errors.As(err, &acc) {
				f.accept(sig)
			}
			return "", err
		}
	}
	f.accept(sig)
	return sig, nil
}

func (f *fakeRPC) accept(sig string) {
	if f.accepted == nil {
		f.accepted = map[string]bool{}
	}
	f.accepted[sig] = true
}

func (f *fakeRPC) GetSignatureStatuses(_ context.Context, sigs ...string) ([]*rpc.SignatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCall++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if f.statusDelay > 0 {
		f.statusDelay--
		return []*rpc.SignatureStatus{nil}, nil
	}
	if len(sigs) == 0 || !f.accepted[sigs[0]] {
		return []*rpc.SignatureStatus{nil}, nil
	}
	return []*rpc.SignatureStatus{f.status}, nil
}

func (f *fakeRPC) distinctSent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	seen := map[string]bool{}
	for _, sig := range f.sent {
		if !seen[sig] {
			seen[sig] = true
			out = append(out, sig)
		}
	}
	return out
}

type fakeBundles struct {
	mu      sync.Mutex
	bundles [][]string
	err     error
	rpc     *fakeRPC // marks bundled signatures as landed
}

func (f *fakeBundles) SendBundle(_ context.Context, txs []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.bundles = append(f.bundles, txs)
	if f.rpc != nil {
		for _, encoded := range txs {
			raw, err := base58.Decode(encoded)
			if err != nil {
				return "", err
			}
			tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
			if err != nil {
				return "", err
			}
			f.rpc.mu.Lock()
			f.rpc.accept(tx.Signatures[0].String())
			f.rpc.mu.Unlock()
		}
	}
	return "bundle-1", nil
}

func (f *fakeBundles) TipAccount() solana.PublicKey { return constants.JitoTipAccounts[0] }

func confirmed() *rpc.SignatureStatus {
	return &rpc.SignatureStatus{Slot: 10, ConfirmationStatus: "confirmed"}
}

type harness struct {
	exec   *Executor
	rpc    *fakeRPC
	ledger *ledger.Ledger
	plan   *builder.Plan
	signer *wallet.Signer
}

func newHarness(t *testing.T, f *fakeRPC, mutate func(*Config)) *harness {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	signer, err := wallet.NewSigner(wallet.SignerConfig{PrivateKey: solana.NewWallet().PrivateKey.String()})
	require.NoError(t, err)

	ev := models.PoolEvent{
		PoolAddress:         solana.NewWallet().PublicKey(),
		PoolType:            models.PoolTypeAmmV4,
		BaseMint:            solana.NewWallet().PublicKey(),
		QuoteMint:           constants.WSOLMint,
		InitialBaseReserve:  1_000_000_000,
		InitialQuoteReserve: 50_000_000_000,
		Accounts: models.PoolAccounts{
			BaseVault:    solana.NewWallet().PublicKey(),
			QuoteVault:   solana.NewWallet().PublicKey(),
			BaseIsToken0: true,
		},
	}
	plan, err := builder.NewBuilder().Build(ev, signer.PublicKey(), 100_000_000, 50)
	require.NoError(t, err)

	l := ledger.New(ledger.Config{Logger: logger})
	_, won := l.TryClaim(plan.PoolAddress.String())
	require.True(t, won)

	cfg := Config{
		RPC:            f,
		Ledger:         l,
		MaxAttempts:    3,
		Retry:          backoff.Policy{Base: time.Millisecond, Cap: 2 * time.Millisecond, Factor: 2},
		ConfirmTimeout: time.Second,
		PollInterval:   time.Millisecond,
		Logger:         logger,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return &harness{exec: New(cfg), rpc: f, ledger: l, plan: plan, signer: signer}
}

func directPlan() fees.Plan {
	return fees.Plan{PriorityFeeMicroLamports: 100_000, ComputeUnitLimit: 200_000, Route: models.RouteDirect}
}

func TestSubmit_DirectConfirmed(t *testing.T) {
	h := newHarness(t, &fakeRPC{status: confirmed()}, nil)

	a := h.exec.Submit(context.Background(), h.plan, h.signer, directPlan())

	assert.Equal(t, models.StatusConfirmed, a.Status)
	assert.Equal(t, 1, a.AttemptCount)
	assert.NotEmpty(t, a.Signature)
	assert.Equal(t, models.RouteDirect, a.Route)
	assert.Equal(t, 1, h.rpc.sendCalls)

	stored, ok := h.ledger.Get(h.plan.PoolAddress.String())
	require.True(t, ok)
	assert.Equal(t, a, stored)
}

func TestSubmit_TransientRetried(t *testing.T) {
	f := &fakeRPC{
		sendErrs: []error{
			&rpc.HTTPStatusError{StatusCode: 503},
			&rpc.RPCError{Code: -32005, Message: "Node is behind by 42 slots"},
		},
		status: confirmed(),
	}
	h := newHarness(t, f, nil)

	a := h.exec.Submit(context.Background(), h.plan, h.signer, directPlan())

	assert.Equal(t, models.StatusConfirmed, a.Status)
	assert.Equal(t, 3, a.AttemptCount)
	assert.Equal(t, 3, f.sendCalls)
	assert.Equal(t, 1, f.hashCalls, "signed once")
	assert.Len(t, f.distinctSent(), 1, "every retry resends the same transaction")
	assert.Equal(t, f.sent[0], a.Signature)
}

func TestSubmit_AcceptedSendTimeoutNotResigned(t *testing.T) {
	f := &fakeRPC{
		sendErrs: []error{acceptedErr{errors.New("read tcp 10.0.0.1:443: i/o timeout")}},
		status:   confirmed(),
	}
	h := newHarness(t, f, nil)

	a := h.exec.Submit(context.Background(), h.plan, h.signer, directPlan())

	assert.Equal(t, models.StatusConfirmed, a.Status)
	assert.Equal(t, 2, a.AttemptCount)
	assert.Equal(t, 1, f.sendCalls, "landed transaction is not sent again")
	assert.Equal(t, 1, f.hashCalls)
	require.Len(t, f.distinctSent(), 1)
	assert.Equal(t, f.sent[0], a.Signature)
}

func TestSubmit_ResendAlreadyProcessed(t *testing.T) {
	f := &fakeRPC{
		sendErrs: []error{
			acceptedErr{errors.New("read tcp 10.0.0.1:443: i/o timeout")},
			&rpc.RPCError{Code: -32002, Message: "Transaction simulation failed: This transaction has already been processed"},
		},
		status:      confirmed(),
		statusDelay: 1,
	}
	h := newHarness(t, f, nil)

	a := h.exec.Submit(context.Background(), h.plan, h.signer, directPlan())

	assert.Equal(t, models.StatusConfirmed, a.Status)
	assert.Equal(t, 2, f.sendCalls)
	require.Len(t, f.distinctSent(), 1, "only one buy signature reaches the node")
	assert.Equal(t, f.sent[0], a.Signature)
}

func TestSubmit_ExpiredBlockhashResigned(t *testing.T) {
	f := &fakeRPC{
		sendErrs: []error{
			&rpc.RPCError{Code: -32002, Message: "Transaction simulation failed: Blockhash not found"},
		},
		status: confirmed(),
	}
	h := newHarness(t, f, nil)

	a := h.exec.Submit(context.Background(), h.plan, h.signer, directPlan())

	assert.Equal(t, models.StatusConfirmed, a.Status)
	assert.Equal(t, 2, f.hashCalls)
	sent := f.distinctSent()
	require.Len(t, sent, 2)
	assert.Equal(t, sent[1], a.Signature)
}

func TestSubmit_AttemptCap(t *testing.T) {
	transient := &rpc.HTTPStatusError{StatusCode: 429}
	f := &fakeRPC{sendErrs: []error{transient, transient, transient, transient, transient}}
	h := newHarness(t, f, nil)

	a := h.exec.Submit(context.Background(), h.plan, h.signer, directPlan())

	assert.Equal(t, models.StatusFailed, a.Status)
	assert.Equal(t, 3, a.AttemptCount)
	assert.Equal(t, 3, f.sendCalls)
	assert.Contains(t, a.LastError, "429")
}

func TestSubmit_PermanentNotRetried(t *testing.T) {
	f := &fakeRPC{sendErrs: []error{
		&rpc.RPCError{Code: -32002, Message: "Transaction simulation failed: insufficient funds for rent"},
	}}
	h := newHarness(t, f, nil)

	a := h.exec.Submit(context.Background(), h.plan, h.signer, directPlan())

	assert.Equal(t, models.StatusFailed, a.Status)
	assert.Equal(t, 1, a.AttemptCount)
	assert.Equal(t, 1, f.sendCalls)
	assert.Zero(t, f.statusCall)
}

func TestSubmit_DryRunNeverSends(t *testing.T) {
	f := &fakeRPC{}
	bundles := &fakeBundles{}
	h := newHarness(t, f, func(c *Config) {
		c.DryRun = true
		c.Bundles = bundles
	})

	for _, route := range []models.Route{models.RouteDirect, models.RouteBundle} {
		if route == models.RouteBundle {
			h.plan.PoolAddress = solana.NewWallet().PublicKey()
			h.ledger.TryClaim(h.plan.PoolAddress.String())
		}

		plan := directPlan()
		plan.Route = route
		plan.TipLamports = 10_000
		a := h.exec.Submit(context.Background(), h.plan, h.signer, plan)

		assert.Equal(t, models.StatusDryRun, a.Status, route)
		require.NotEmpty(t, a.RawTransaction)

		raw, err := base64.StdEncoding.DecodeString(a.RawTransaction)
		require.NoError(t, err)
		tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
		require.NoError(t, err)
		assert.Equal(t, h.signer.PublicKey(), tx.Message.AccountKeys[0])
		assert.Equal(t, tx.Signatures[0].String(), a.Signature)
	}

	assert.Zero(t, f.sendCalls)
	assert.Empty(t, bundles.bundles)
	assert.Zero(t, f.statusCall)
}

func TestSubmit_BundleRoute(t *testing.T) {
	f := &fakeRPC{status: confirmed()}
	bundles := &fakeBundles{rpc: f}
	h := newHarness(t, f, func(c *Config) { c.Bundles = bundles })

	plan := directPlan()
	plan.Route = models.RouteBundle
	plan.TipLamports = 10_000
	a := h.exec.Submit(context.Background(), h.plan, h.signer, plan)

	assert.Equal(t, models.StatusConfirmed, a.Status)
	assert.Equal(t, models.RouteBundle, a.Route)
	assert.Zero(t, f.sendCalls)
	require.Len(t, bundles.bundles, 1)
	require.Len(t, bundles.bundles[0], 1)

	raw, err := base58.Decode(bundles.bundles[0][0])
	require.NoError(t, err)
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures[0].String(), a.Signature)
	assert.Contains(t, tx.Message.AccountKeys, constants.JitoTipAccounts[0])
}

func TestSubmit_BundleWithoutEndpointFails(t *testing.T) {
	f := &fakeRPC{}
	h := newHarness(t, f, nil)

	plan := directPlan()
	plan.Route = models.RouteBundle
	a := h.exec.Submit(context.Background(), h.plan, h.signer, plan)

	assert.Equal(t, models.StatusFailed, a.Status)
	assert.Equal(t, 1, a.AttemptCount)
}

func TestSubmit_OnChainFailure(t *testing.T) {
	f := &fakeRPC{status: &rpc.SignatureStatus{
		Slot:               10,
		Err:                map[string]interface{}{"InstructionError": []interface{}{4, map[string]interface{}{"Custom": 30}}},
		ConfirmationStatus: "confirmed",
	}}
	h := newHarness(t, f, nil)

	a := h.exec.Submit(context.Background(), h.plan, h.signer, directPlan())

	assert.Equal(t, models.StatusFailed, a.Status)
	assert.Contains(t, a.LastError, "transaction failed")
	assert.NotEmpty(t, a.Signature)
	assert.Equal(t, 1, f.sendCalls, "submitted transactions are never resent")
}

func TestSubmit_ConfirmationTimeout(t *testing.T) {
	f := &fakeRPC{}
	h := newHarness(t, f, func(c *Config) { c.ConfirmTimeout = 20 * time.Millisecond })

	a := h.exec.Submit(context.Background(), h.plan, h.signer, directPlan())

	assert.Equal(t, models.StatusFailed, a.Status)
	assert.Contains(t, a.LastError, "confirmation timeout")
	assert.Equal(t, 1, f.sendCalls)
	assert.Positive(t, f.statusCall)
}

func TestSubmit_ProcessedNotEnough(t *testing.T) {
	f := &fakeRPC{status: &rpc.SignatureStatus{Slot: 10, ConfirmationStatus: "processed"}}
	h := newHarness(t, f, func(c *Config) { c.ConfirmTimeout = 20 * time.Millisecond })

	a := h.exec.Submit(context.Background(), h.plan, h.signer, directPlan())
	assert.Equal(t, models.StatusFailed, a.Status)
}

func TestSubmit_CanceledContext(t *testing.T) {
	f := &fakeRPC{sendErrs: []error{&rpc.HTTPStatusError{StatusCode: 503}}}
	h := newHarness(t, f, func(c *Config) {
		c.Retry = backoff.Policy{Base: time.Hour, Cap: time.Hour, Factor: 2}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	a := h.exec.Submit(ctx, h.plan, h.signer, directPlan())
	assert.Equal(t, models.StatusFailed, a.Status)
	assert.Equal(t, 1, f.sendCalls)
}
