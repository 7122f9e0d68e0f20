package flags

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Reader is the store capability a Gate needs.
type Reader interface {
	IsSet(ctx context.Context, key string) (bool, error)
}

// Gate caches one flag so hot paths do not hit Redis per event. When a
// refresh fails the last known value is kept.
type Gate struct {
	reader Reader
	key    string
	ttl    time.Duration
	logger *logrus.Logger
	now    func() time.Time

	mu      sync.Mutex
	value   bool
	checked time.Time
}

func NewGate(reader Reader, key string, ttl time.Duration, logger *logrus.Logger) *Gate {
	if logger == nil {
		logger = logrus.New()
	}
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &Gate{reader: reader, key: key, ttl: ttl, logger: logger, now: time.Now}
}

// Enabled reports the flag value. A nil gate is never enabled.
func (g *Gate) Enabled(ctx context.Context) bool {
	if g == nil || g.reader == nil {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.checked.IsZero() && g.now().Sub(g.checked) < g.ttl {
		return g.value
	}

	v, err := g.reader.IsSet(ctx, g.key)
	g.checked = g.now()
	if err != nil {
		g.logger.WithError(err).WithField("flag", g.key).Warn("flag refresh failed, keeping last value")
		return g.value
	}
	if v != g.value {
		g.logger.WithFields(logrus.Fields{
			"flag":  g.key,
			"value": v,
		}).Info("flag changed")
	}
	g.value = v
	return v
}
