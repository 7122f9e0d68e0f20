package rpc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/aman-zulfiqar/raydium-sniper/internal/errs"
)

// JSON-RPC error codes returned by Solana validators.
const (
	codeBlockCleanedUp           = -32001
	codeSendTransactionPreflight = -32002
	codeBlockNotAvailable        = -32004
	codeNodeUnhealthy            = -32005
	codeTransactionPrecompile    = -32006
	codeSlotSkipped              = -32007
	codeMinContextSlotNotReached = -32016
	codeServerErrorUpperBound    = -32000
	codeServerErrorLowerBound    = -32099
)

var transientMessages = []string{
	"blockhash not found",
	"node is behind",
	"too many requests",
	"rate limit",
	"timed out",
	"timeout",
	"connection reset",
	"connection refused",
	"service unavailable",
}

var permanentMessages = []string{
	"insufficient funds",
	"insufficient lamports",
	"invalid account",
	"accountnotfound",
	"account not found",
	"invalid signature",
	"custom program error",
	"instruction error",
	"already processed",
}

// IsRetryable reports whether a transport-level failure is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *HTTPStatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}

// IsBlockhashNotFound reports whether the node rejected a transaction for an
// unknown or expired blockhash. Such a transaction can never land.
func IsBlockhashNotFound(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "blockhash not found")
}

// IsAlreadyProcessed reports whether the node has already seen the
// transaction's signature.
func IsAlreadyProcessed(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already been processed") || strings.Contains(msg, "already processed")
}

// Classify wraps err as a transient or permanent submission error.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errs.IsPermanent(err) || errs.IsTransient(err) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return errs.Permanent(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Transient(err)
	}

	var se *HTTPStatusError
	if errors.As(err, &se) {
		if se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500 {
			return errs.Transient(err)
		}
		return errs.Permanent(err)
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return errs.Transient(err)
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return errs.Transient(err)
		}
	}
	for _, m := range permanentMessages {
		if strings.Contains(msg, m) {
			return errs.Permanent(err)
		}
	}

	var re *RPCError
	if errors.As(err, &re) {
		switch re.Code {
		case codeNodeUnhealthy, codeBlockNotAvailable, codeSlotSkipped,
			codeMinContextSlotNotReached, codeBlockCleanedUp:
			return errs.Transient(err)
		case codeSendTransactionPreflight, codeTransactionPrecompile:
			return errs.Permanent(err)
		}
		if re.Code <= codeServerErrorUpperBound && re.Code >= codeServerErrorLowerBound {
			return errs.Transient(err)
		}
		return errs.Permanent(err)
	}

	// Unknown transport failures (EOF, dial errors wrapped as strings) retry.
	return errs.Transient(err)
}
