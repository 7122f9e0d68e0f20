// Command outcomes tails the sniper's published outcomes or prints the most
// recent ones.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aman-zulfiqar/raydium-sniper/internal/cache"
	"github.com/aman-zulfiqar/raydium-sniper/internal/constants"
	"github.com/aman-zulfiqar/raydium-sniper/internal/models"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	redisURL := flag.String("redis-url", os.Getenv("REDIS_URL"), "redis URL")
	redisAddr := flag.String("redis-addr", envOr("REDIS_ADDR", "localhost:6379"), "redis address, used when -redis-url is empty")
	status := flag.String("status", "", "only show outcomes with this status (rejected, confirmed, failed, dry_run)")
	recent := flag.Int64("recent", 0, "print the N most recent outcomes and exit")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	client, err := cache.NewRedisClient(ctx, cache.RedisConfig{URL: *redisURL, Addr: *redisAddr})
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}
	defer client.Close()

	if *recent > 0 {
		publisher, err := cache.NewOutcomePublisher(client)
		if err != nil {
			logger.WithError(err).Fatal("failed to create outcome reader")
		}
		outcomes, err := publisher.Recent(ctx, *recent)
		if err != nil {
			logger.WithError(err).Fatal("failed to read recent outcomes")
		}
		printTable(os.Stdout, filterStatus(outcomes, *status))
		return
	}

	sub := cache.NewSubscriber(client, logger)
	handler := func(o *models.Outcome) {
		fmt.Fprintln(os.Stdout, formatLine(o))
	}

	if *status != "" {
		err = sub.Subscribe(ctx, handler, constants.PubSubChannelPrefix+*status)
	} else {
		err = sub.Subscribe(ctx, handler, constants.PubSubChannelOutcomes)
	}
	if err != nil {
		logger.WithError(err).Fatal("subscription failed")
	}
	logger.Info("subscriber stopped")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
