package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aman-zulfiqar/raydium-sniper/internal/constants"
	"github.com/aman-zulfiqar/raydium-sniper/internal/flags"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const defaultOperator = "api"

// operator names who made a change, from the X-Operator header.
func operator(c echo.Context) string {
	if op := strings.TrimSpace(c.Request().Header.Get("X-Operator")); op != "" {
		return op
	}
	return defaultOperator
}

// flagKey validates the :key param. An empty key means the error response
// was already written. Writes are limited to the flags the
// sniper reads, so a typo cannot silently do nothing.
func (h *Handlers) flagKey(c echo.Context, write bool) (string, error) {
	key := c.Param("key")
	if err := flags.ValidateKey(key); err != nil {
		return "", h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": key})
	}
	if _, known := flags.Known[key]; write && !known {
		return "", h.err(c, http.StatusNotFound, "unknown flag", map[string]any{"known": flags.Known})
	}
	return key, nil
}

// FlagsList returns stored flags and the flags the sniper understands.
func (h *Handlers) FlagsList(c echo.Context) error {
	if h.Flags == nil {
		return h.unavailable(c, "flag store")
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Flags.List(ctx)
	if err != nil {
		h.log().WithError(err).Warn("list flags failed")
		return h.err(c, http.StatusBadGateway, "flag store unavailable", nil)
	}
	return c.JSON(http.StatusOK, FlagsResponse{Items: items, Known: flags.Known})
}

// FlagsGet returns one flag; 404 when it was never set.
func (h *Handlers) FlagsGet(c echo.Context) error {
	if h.Flags == nil {
		return h.unavailable(c, "flag store")
	}
	key, respErr := h.flagKey(c, false)
	if key == "" {
		return respErr
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	f, err := h.Flags.Get(ctx, key)
	switch {
	case errors.Is(err, flags.ErrNotFound):
		return h.err(c, http.StatusNotFound, "flag not set", nil)
	case err != nil:
		h.log().WithError(err).WithField("key", key).Warn("get flag failed")
		return h.err(c, http.StatusBadGateway, "flag store unavailable", nil)
	}
	return c.JSON(http.StatusOK, f)
}

// FlagsSet sets a known flag from {"value": bool}.
func (h *Handlers) FlagsSet(c echo.Context) error {
	if h.Flags == nil {
		return h.unavailable(c, "flag store")
	}
	key, respErr := h.flagKey(c, true)
	if key == "" {
		return respErr
	}
	var req FlagSetRequest
	if err := c.Bind(&req); err != nil || req.Value == nil {
		return h.err(c, http.StatusBadRequest, "body must be {\"value\": true|false}", nil)
	}
	return h.setFlag(c, key, *req.Value)
}

// FlagsDelete clears a flag back to its default of false.
func (h *Handlers) FlagsDelete(c echo.Context) error {
	if h.Flags == nil {
		return h.unavailable(c, "flag store")
	}
	key, respErr := h.flagKey(c, true)
	if key == "" {
		return respErr
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Flags.Delete(ctx, key); err != nil {
		h.log().WithError(err).WithField("key", key).Warn("delete flag failed")
		return h.err(c, http.StatusBadGateway, "flag store unavailable", nil)
	}
	h.log().WithFields(logrus.Fields{"key": key, "by": operator(c)}).Info("flag cleared")
	return c.NoContent(http.StatusNoContent)
}

// PauseTrading stops the pipeline admitting new pools. In-flight buys finish.
func (h *Handlers) PauseTrading(c echo.Context) error {
	if h.Flags == nil {
		return h.unavailable(c, "flag store")
	}
	return h.setFlag(c, constants.FlagPaused, true)
}

// ResumeTrading undoes PauseTrading.
func (h *Handlers) ResumeTrading(c echo.Context) error {
	if h.Flags == nil {
		return h.unavailable(c, "flag store")
	}
	return h.setFlag(c, constants.FlagPaused, false)
}

func (h *Handlers) setFlag(c echo.Context, key string, value bool) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	by := operator(c)
	f, err := h.Flags.Upsert(ctx, key, value, by)
	if err != nil {
		h.log().WithError(err).WithField("key", key).Warn("set flag failed")
		return h.err(c, http.StatusBadGateway, "flag store unavailable", nil)
	}
	h.log().WithFields(logrus.Fields{
		"key":   key,
		"value": value,
		"by":    by,
	}).Info("flag set")
	return c.JSON(http.StatusOK, f)
}
