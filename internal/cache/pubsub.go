package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aman-zulfiqar/raydium-sniper/internal/constants"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// OutcomePublisher fans outcomes out over pub/sub and keeps a capped list of
// the most recent ones.
type OutcomePublisher struct {
	client      redis.Cmdable
	recentLimit int64
}

func NewOutcomePublisher(client redis.Cmdable) (*OutcomePublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &OutcomePublisher{client: client, recentLimit: constants.RecentOutcomesLimit}, nil
}

// Publish sends o to the all-outcomes channel and its status channel.
func (p *OutcomePublisher) Publish(ctx context.Context, o *models.Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	channels := []string{
		constants.PubSubChannelOutcomes,
		constants.PubSubChannelPrefix + o.Status,
	}

	pipe := p.client.Pipeline()
	for _, channel := range channels {
		pipe.Publish(ctx, channel, data)
	}
	pipe.LPush(ctx, constants.RecentOutcomesKey, data)
	pipe.LTrim(ctx, constants.RecentOutcomesKey, 0, p.recentLimit-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish outcome: %w", err)
	}
	return nil
}

// Recent returns up to limit outcomes, newest first.
func (p *OutcomePublisher) Recent(ctx context.Context, limit int64) ([]*models.Outcome, error) {
	if limit <= 0 || limit > p.recentLimit {
		limit = p.recentLimit
	}
	vals, err := p.client.LRange(ctx, constants.RecentOutcomesKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list recent outcomes: %w", err)
	}

	out := make([]*models.Outcome, 0, len(vals))
	for _, v := range vals {
		var o models.Outcome
		if err := json.Unmarshal([]byte(v), &o); err != nil {
			continue
		}
		out = append(out, &o)
	}
	return out, nil
}

// Subscriber tails outcome channels.
type Subscriber struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewSubscriber(client *redis.Client, logger *logrus.Logger) *Subscriber {
	if logger == nil {
		logger = logrus.New()
	}
	return &Subscriber{client: client, logger: logger}
}

// Subscribe delivers outcomes from the given channels until ctx is done.
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*models.Outcome), channels ...string) error {
	pubsub := s.client.Subscribe(ctx, channels...)
	defer pubsub.Close()

	s.logger.WithField("channels", channels).Info("subscribed to outcome channels")
	return s.consume(ctx, pubsub, handler)
}

// PSubscribe is Subscribe for a channel pattern such as "sniper:outcomes:*".
func (s *Subscriber) PSubscribe(ctx context.Context, pattern string, handler func(*models.Outcome)) error {
	pubsub := s.client.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	s.logger.WithField("pattern", pattern).Info("subscribed to outcome pattern")
	return s.consume(ctx, pubsub, handler)
}

func (s *Subscriber) consume(ctx context.Context, pubsub *redis.PubSub, handler func(*models.Outcome)) error {
	// Receive blocks until the subscription is confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var o models.Outcome
			if err := json.Unmarshal([]byte(msg.Payload), &o); err != nil {
				s.logger.WithError(err).WithField("channel", msg.Channel).Warn("error unmarshaling outcome")
				continue
			}
			handler(&o)
		}
	}
}
