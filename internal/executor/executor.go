// Package executor signs, submits and confirms buy transactions.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/raydium-sniper/internal/backoff"
	"github.com/aman-zulfiqar/raydium-sniper/internal/builder"
	"github.com/aman-zulfiqar/raydium-sniper/internal/errs"
	"github.com/aman-zulfiqar/raydium-sniper/internal/fees"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"
	"github.com/aman-zulfiqar/raydium-sniper/internal/ratelimit"
	"github.com/aman-zulfiqar/raydium-sniper/internal/rpc"
	"github.com/aman-zulfiqar/raydium-sniper/internal/wallet"
	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

// RPC is the subset of the Solana RPC used for submission.
type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment string) (solana.Hash, uint64, error)
	SendTransaction(ctx context.Context, encodedTx string, opts rpc.SendOptions) (string, error)
	GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*rpc.SignatureStatus, error)
}

// BundleSender submits bundles and supplies the tip receiver.
type BundleSender interface {
	SendBundle(ctx context.Context, encodedTxs []string) (string, error)
	TipAccount() solana.PublicKey
}

// Signer signs transactions for the fee payer.
type Signer interface {
	PublicKey() solana.PublicKey
	SignTx(tx *solana.Transaction) error
}

// Ledger records attempt state transitions.
type Ledger interface {
	Transition(addr string, next models.Status, mutate func(*models.ExecutionAttempt)) (models.ExecutionAttempt, error)
}

// Config holds configuration for the executor
type Config struct {
	RPC     RPC
	Bundles BundleSender
	Ledger  Ledger
	Limiter *ratelimit.Limiter

	MaxAttempts    int
	Retry          backoff.Policy
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	Commitment     string
	SkipPreflight  bool
	DryRun         bool

	Logger *logrus.Logger
}

// Executor drives one buy from signed transaction to terminal status.
type Executor struct {
	rpc     RPC
	bundles BundleSender
	ledger  Ledger
	limiter *ratelimit.Limiter

	maxAttempts    int
	retry          backoff.Policy
	confirmTimeout time.Duration
	pollInterval   time.Duration
	commitment     string
	skipPreflight  bool
	dryRun         bool

	logger *logrus.Logger
}

func New(cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Retry.Base <= 0 {
		cfg.Retry = backoff.Default()
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}
	return &Executor{
		rpc:            cfg.RPC,
		bundles:        cfg.Bundles,
		ledger:         cfg.Ledger,
		limiter:        cfg.Limiter,
		maxAttempts:    cfg.MaxAttempts,
		retry:          cfg.Retry,
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   cfg.PollInterval,
		commitment:     cfg.Commitment,
		skipPreflight:  cfg.SkipPreflight,
		dryRun:         cfg.DryRun,
		logger:         cfg.Logger,
	}
}

// DryRun reports whether submissions are suppressed.
func (e *Executor) DryRun() bool { return e.dryRun }

// submitted is the result of a successful send.
type submitted struct {
	signature string
	bundleID  string
}

// Submit runs the bounded attempt loop for plan. The pool must already be
// claimed in the ledger. The returned attempt is always terminal.
//
// Once a send has been tried, retries resend the same signed transaction so
// the node can only ever see one buy signature. A new blockhash is signed
// only after the node reports the old one as unknown.
func (e *Executor) Submit(ctx context.Context, plan *builder.Plan, signer Signer, feePlan fees.Plan) models.ExecutionAttempt {
	addr := plan.PoolAddress.String()
	log := e.logger.WithFields(logrus.Fields{
		"pool":  addr,
		"route": feePlan.Route,
	})

	var (
		tx      *solana.Transaction
		lastErr error
	)
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoff.EqualJitter(e.retry.Delay(attempt - 2))
			log.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": delay,
				"error":   lastErr,
			}).Debug("retrying submission")

			if err := backoff.Sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		if _, err := e.ledger.Transition(addr, models.StatusPending, func(a *models.ExecutionAttempt) {
			a.AttemptCount = attempt
			a.Route = feePlan.Route
			a.BaseMint = plan.BaseMint.String()
		}); err != nil {
			lastErr = errs.Permanent(err)
			break
		}

		if tx != nil && e.landed(ctx, tx) {
			log.WithField("attempt", attempt).Info("earlier send landed")
			return e.confirm(ctx, addr, &submitted{signature: signatureOf(tx)}, log)
		}

		if tx == nil {
			signed, err := e.sign(ctx, plan, signer, feePlan)
			if err != nil {
				lastErr = rpc.Classify(err)
				if errs.IsPermanent(lastErr) {
					break
				}
				continue
			}
			if e.dryRun {
				return e.recordDryRun(addr, signed, log)
			}
			tx = signed
		}

		sub, err := e.send(ctx, tx, feePlan)
		if err != nil {
			if rpc.IsAlreadyProcessed(err) {
				return e.confirm(ctx, addr, &submitted{signature: signatureOf(tx)}, log)
			}
			if rpc.IsBlockhashNotFound(err) {
				tx = nil
			}
			lastErr = rpc.Classify(err)
			if errs.IsPermanent(lastErr) {
				break
			}
			continue
		}
		return e.confirm(ctx, addr, sub, log)
	}

	return e.fail(addr, lastErr, log)
}

func signatureOf(tx *solana.Transaction) string { return tx.Signatures[0].String() }

// landed reports whether tx is already known to the cluster. Poll errors
// count as not landed; resending the same signature is harmless.
func (e *Executor) landed(ctx context.Context, tx *solana.Transaction) bool {
	if err := e.limiter.Wait(ctx); err != nil {
		return false
	}
	statuses, err := e.rpc.GetSignatureStatuses(ctx, signatureOf(tx))
	if err != nil {
		e.logger.WithError(err).Debug("signature status check failed")
		return false
	}
	return len(statuses) > 0 && statuses[0] != nil
}

// sign acquires a permit, fetches a blockhash, assembles and signs.
func (e *Executor) sign(ctx context.Context, plan *builder.Plan, signer Signer, feePlan fees.Plan) (*solana.Transaction, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	blockhash, _, err := e.rpc.GetLatestBlockhash(ctx, e.commitment)
	if err != nil {
		return nil, fmt.Errorf("get blockhash: %w", err)
	}

	var tip solana.PublicKey
	if feePlan.Route == models.RouteBundle {
		if e.bundles == nil {
			return nil, errs.Permanent(fmt.Errorf("bundle route selected without a bundle endpoint"))
		}
		tip = e.bundles.TipAccount()
	}

	tx, err := wallet.BuildTransaction(builder.Assemble(plan, feePlan, tip), blockhash, signer.PublicKey())
	if err != nil {
		return nil, errs.Permanent(err)
	}
	// Signing is local and is never interrupted by ctx.
	if err := signer.SignTx(tx); err != nil {
		return nil, errs.Permanent(err)
	}
	return tx, nil
}

// send submits a signed transaction directly or as a single-tx bundle.
func (e *Executor) send(ctx context.Context, tx *solana.Transaction, feePlan fees.Plan) (*submitted, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if feePlan.Route == models.RouteBundle {
		encoded, err := wallet.EncodeBase58(tx)
		if err != nil {
			return nil, errs.Permanent(err)
		}
		bundleID, err := e.bundles.SendBundle(ctx, []string{encoded})
		if err != nil {
			return nil, fmt.Errorf("send bundle: %w", err)
		}
		return &submitted{signature: signatureOf(tx), bundleID: bundleID}, nil
	}

	encoded, err := wallet.EncodeBase64(tx)
	if err != nil {
		return nil, errs.Permanent(err)
	}
	zero := uint(0)
	sig, err := e.rpc.SendTransaction(ctx, encoded, rpc.SendOptions{
		SkipPreflight:       e.skipPreflight,
		PreflightCommitment: "processed",
		MaxRetries:          &zero,
	})
	if err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	return &submitted{signature: sig}, nil
}

func (e *Executor) recordDryRun(addr string, tx *solana.Transaction, log *logrus.Entry) models.ExecutionAttempt {
	raw, err := wallet.EncodeBase64(tx)
	if err != nil {
		return e.fail(addr, err, log)
	}
	a, err := e.ledger.Transition(addr, models.StatusDryRun, func(a *models.ExecutionAttempt) {
		a.RawTransaction = raw
		a.Signature = tx.Signatures[0].String()
	})
	if err != nil {
		log.WithError(err).Error("failed to record dry run")
	}
	return a
}

// confirm polls signature status until a terminal answer or the timeout.
func (e *Executor) confirm(ctx context.Context, addr string, sub *submitted, log *logrus.Entry) models.ExecutionAttempt {
	if _, err := e.ledger.Transition(addr, models.StatusSubmitted, func(a *models.ExecutionAttempt) {
		a.Signature = sub.signature
	}); err != nil {
		log.WithError(err).Error("failed to record submission")
	}
	log.WithFields(logrus.Fields{
		"signature": sub.signature,
		"bundle_id": sub.bundleID,
	}).Debug("transaction submitted")

	confirmCtx, cancel := context.WithTimeout(ctx, e.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		done, err := e.pollStatus(confirmCtx, sub.signature)
		if done {
			if err != nil {
				return e.fail(addr, errs.Permanent(err), log)
			}
			a, terr := e.ledger.Transition(addr, models.StatusConfirmed, nil)
			if terr != nil {
				log.WithError(terr).Error("failed to record confirmation")
			}
			return a
		}
		if err != nil {
			log.WithError(err).Debug("signature status poll failed")
		}

		select {
		case <-confirmCtx.Done():
			if errors.Is(confirmCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return e.fail(addr, fmt.Errorf("%w after %s", errs.ErrConfirmationTimeout, e.confirmTimeout), log)
			}
			return e.fail(addr, fmt.Errorf("confirmation aborted: %w", ctx.Err()), log)
		case <-ticker.C:
		}
	}
}

// pollStatus reports done=true once the signature reached the commitment or
// failed on chain; err is set for on-chain failures and for poll errors.
func (e *Executor) pollStatus(ctx context.Context, signature string) (bool, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return false, err
	}
	statuses, err := e.rpc.GetSignatureStatuses(ctx, signature)
	if err != nil {
		return false, err
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return false, nil
	}

	st := statuses[0]
	if st.Err != nil {
		return true, fmt.Errorf("transaction failed: %v", st.Err)
	}
	switch e.commitment {
	case "finalized":
		return st.ConfirmationStatus == "finalized", nil
	case "processed":
		return st.ConfirmationStatus != "", nil
	default:
		return st.ConfirmationStatus == "confirmed" || st.ConfirmationStatus == "finalized", nil
	}
}

func (e *Executor) fail(addr string, cause error, log *logrus.Entry) models.ExecutionAttempt {
	if cause == nil {
		cause = fmt.Errorf("submission failed")
	}
	a, err := e.ledger.Transition(addr, models.StatusFailed, func(a *models.ExecutionAttempt) {
		a.LastError = cause.Error()
	})
	if err != nil {
		log.WithError(err).Error("failed to record failure")
	}
	return a
}
