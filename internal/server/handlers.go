package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aman-zulfiqar/raydium-sniper/internal/fees"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"
	"github.com/aman-zulfiqar/raydium-sniper/internal/storage"
	"github.com/aman-zulfiqar/raydium-sniper/internal/stream"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// StateReporter reports the detection transport state.
type StateReporter interface {
	State() stream.State
}

// PriceSource is the SOL/USD oracle.
type PriceSource interface {
	SOLPriceUSD(ctx context.Context) (decimal.Decimal, error)
}

// FeeSampler returns the latest priority fee sample.
type FeeSampler interface {
	Latest() fees.Sample
}

// Pauser reports whether the operator pause flag is set.
type Pauser interface {
	Enabled(ctx context.Context) bool
}

// Handlers contains all dependencies for API endpoint handlers. Everything
// except Logger is optional; endpoints backed by a missing dependency
// answer 503.
type Handlers struct {
	Detection StateReporter
	Ledger    storage.AttemptLister
	Outcomes  storage.OutcomeReader
	Flags     storage.FlagStore
	Prices    PriceSource
	FeeSample FeeSampler
	Estimator *fees.Estimator
	Pause     Pauser
	Metrics   http.Handler
	DryRun    bool
	DevMode   bool
	Logger    *logrus.Logger
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

func (h *Handlers) unavailable(c echo.Context, what string) error {
	return h.err(c, http.StatusServiceUnavailable, what+" is not configured", nil)
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

func (h *Handlers) log() *logrus.Logger {
	if h.Logger == nil {
		h.Logger = logrus.New()
	}
	return h.Logger
}

// Health reports liveness. ok is false once detection has shut down.
func (h *Handlers) Health(c echo.Context) error {
	resp := HealthResponse{OK: true, DryRun: h.DryRun}
	if h.Detection != nil {
		state := h.Detection.State()
		resp.State = state.String()
		resp.OK = state != stream.StateShutdown
	}
	if h.Ledger != nil {
		resp.Attempts = h.Ledger.Len()
	}
	if h.Pause != nil {
		ctx, cancel := h.withTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		resp.Paused = h.Pause.Enabled(ctx)
	}

	code := http.StatusOK
	if !resp.OK {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

// Attempts lists ledger entries, optionally filtered by ?status=.
func (h *Handlers) Attempts(c echo.Context) error {
	if h.Ledger == nil {
		return h.unavailable(c, "ledger")
	}

	status := models.Status(strings.TrimSpace(c.QueryParam("status")))
	switch status {
	case "", models.StatusPending, models.StatusSubmitted, models.StatusConfirmed, models.StatusFailed, models.StatusDryRun:
	default:
		return h.err(c, http.StatusBadRequest, "invalid status", map[string]any{"status": string(status)})
	}

	all := h.Ledger.Snapshot()
	items := make([]models.ExecutionAttempt, 0, len(all))
	for _, a := range all {
		if status == "" || a.Status == status {
			items = append(items, a)
		}
	}
	return c.JSON(http.StatusOK, AttemptsResponse{Items: items, Total: len(all)})
}

// Attempt returns the ledger entry for one pool.
func (h *Handlers) Attempt(c echo.Context) error {
	if h.Ledger == nil {
		return h.unavailable(c, "ledger")
	}
	pool := strings.TrimSpace(c.Param("pool"))
	a, ok := h.Ledger.Get(pool)
	if !ok {
		return h.err(c, http.StatusNotFound, "attempt not found", nil)
	}
	return c.JSON(http.StatusOK, a)
}

// RecentOutcomes returns the newest terminal outcomes
// Accepts limit query parameter (default: 50, range: 1-200)
func (h *Handlers) RecentOutcomes(c echo.Context) error {
	if h.Outcomes == nil {
		return h.unavailable(c, "outcome store")
	}

	limit := 50
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be an integer"})
		}
		limit = n
	}
	if limit < 1 || limit > 200 {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max 200"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Outcomes.Recent(ctx, int64(limit))
	if err != nil {
		h.log().WithError(err).Warn("failed to read recent outcomes")
		return h.err(c, http.StatusInternalServerError, "failed to get outcomes", map[string]any{"err": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// SOLPrice returns the oracle's SOL/USD price used for liquidity valuation.
func (h *Handlers) SOLPrice(c echo.Context) error {
	if h.Prices == nil {
		return h.unavailable(c, "price oracle")
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	price, err := h.Prices.SOLPriceUSD(ctx)
	if err != nil {
		return h.err(c, http.StatusBadGateway, "price lookup failed", map[string]any{"err": err.Error()})
	}
	return c.JSON(http.StatusOK, SOLPriceResponse{Symbol: "SOL", USD: price.String()})
}

// Fees returns the fee plan an accepted pool would be given right now.
func (h *Handlers) Fees(c echo.Context) error {
	if h.Estimator == nil {
		return h.unavailable(c, "fee estimator")
	}
	var sample fees.Sample
	if h.FeeSample != nil {
		sample = h.FeeSample.Latest()
	}
	return c.JSON(http.StatusOK, FeesResponse{Plan: h.Estimator.Estimate(sample), SampleSlots: len(sample.Fees)})
}

