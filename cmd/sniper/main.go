package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/aman-zulfiqar/raydium-sniper/internal/builder"
	"github.com/aman-zulfiqar/raydium-sniper/internal/cache"
	"github.com/aman-zulfiqar/raydium-sniper/internal/config"
	"github.com/aman-zulfiqar/raydium-sniper/internal/constants"
	"github.com/aman-zulfiqar/raydium-sniper/internal/enrich"
	"github.com/aman-zulfiqar/raydium-sniper/internal/errs"
	"github.com/aman-zulfiqar/raydium-sniper/internal/executor"
	"github.com/aman-zulfiqar/raydium-sniper/internal/fees"
	"github.com/aman-zulfiqar/raydium-sniper/internal/filter"
	"github.com/aman-zulfiqar/raydium-sniper/internal/flags"
	"github.com/aman-zulfiqar/raydium-sniper/internal/jito"
	"github.com/aman-zulfiqar/raydium-sniper/internal/jupiter"
	"github.com/aman-zulfiqar/raydium-sniper/internal/ledger"
	"github.com/aman-zulfiqar/raydium-sniper/internal/metrics"
	"github.com/aman-zulfiqar/raydium-sniper/internal/normalize"
	"github.com/aman-zulfiqar/raydium-sniper/internal/pipeline"
	"github.com/aman-zulfiqar/raydium-sniper/internal/ratelimit"
	"github.com/aman-zulfiqar/raydium-sniper/internal/rpc"
	"github.com/aman-zulfiqar/raydium-sniper/internal/server"
	"github.com/aman-zulfiqar/raydium-sniper/internal/stream"
	"github.com/aman-zulfiqar/raydium-sniper/internal/wallet"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// lowBalanceLamports triggers a startup warning, not a refusal to start.
const lowBalanceLamports = 50_000_000

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	// Get the project root directory (where go.mod is)
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		// fall back to the working directory
		if err := godotenv.Load(); err != nil {
			logger.Debugf("no .env file found at %s, using system environment variables", envPath)
			return
		}
		logger.Info("loaded .env from working directory")
		return
	}
	logger.Infof("loaded .env from %s", envPath)
}

func configureLogger(logger *logrus.Logger, cfg *config.Config) {
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)

	// load .env BEFORE anything reads os.Getenv
	loadEnv(logger)

	cfg := config.Load()
	if err := cfg.ApplyFlags(os.Args[1:]); err != nil {
		logger.WithError(err).Error("invalid flags")
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Error("invalid configuration")
		os.Exit(1)
	}
	configureLogger(logger, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if err := run(ctx, cancel, sigCh, cfg, logger); err != nil {
		var ce *errs.ConfigurationError
		if errors.As(err, &ce) {
			logger.WithError(err).Error("invalid configuration")
		} else {
			logger.WithError(err).Error("sniper stopped with error")
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, sigCh <-chan os.Signal, cfg *config.Config, logger *logrus.Logger) error {
	signer, err := wallet.NewSigner(cfg.SignerConfig())
	if err != nil {
		return err
	}

	logger.WithFields(cfg.Summary()).WithField("wallet", signer.Address()).Info("starting sniper")

	// One bucket shared by reads and sends so the provider quota holds overall.
	limiter := ratelimit.New(cfg.RateLimit, 1)

	readRPC := rpc.NewClient(rpc.ClientConfig{
		BaseURL: cfg.RPCURL,
		Timeout: cfg.RPCTimeout,
		Limiter: limiter,
		Logger:  logger,
	})
	sendRPC := readRPC
	if cfg.SendURL() != cfg.RPCURL {
		sendRPC = rpc.NewClient(rpc.ClientConfig{
			BaseURL: cfg.SendURL(),
			Timeout: cfg.RPCTimeout,
			// sends are resubmitted by the executor
			MaxRetries: 1,
			Limiter:    limiter,
			Logger:     logger,
		})
	}

	if _, err := wallet.CheckBalance(ctx, readRPC, signer, lowBalanceLamports, logger); err != nil {
		logger.WithError(err).Warn("could not read wallet balance")
	}

	m := metrics.New()

	oracle := jupiter.NewOracle(jupiter.OracleConfig{
		Quoter:        jupiter.NewClient(cfg.JupiterBaseURL, cfg.JupiterAPIKey),
		TTL:           cfg.SOLPriceTTL,
		FallbackPrice: cfg.FallbackSOLPrice,
		Logger:        logger,
	})

	rules := cfg.FilterConfig()
	enricher, err := enrich.New(enrich.Config{
		Accounts:         readRPC,
		Prices:           oracle,
		CheckAuthorities: rules.RejectMintAuthority || rules.RejectFreezeAuthority,
		FetchMetadata:    rules.RequireMetadata,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	norm := normalize.New(normalize.Config{
		MonitorAmmV4: cfg.MonitorAmmV4,
		MonitorCpmm:  cfg.MonitorCpmm,
	})
	var programs []string
	for _, p := range norm.Programs() {
		programs = append(programs, p.String())
	}

	// A nil *T in an interface field would not read as absent.
	var streaming, fallback stream.Transport
	if cfg.StreamWSURL != "" {
		streaming = stream.NewWebsocketTransport(stream.WebsocketConfig{
			URL:        cfg.StreamWSURL,
			Commitment: cfg.Commitment,
			Logger:     logger,
		})
	}
	if cfg.UseFallback {
		poller, err := stream.NewRPCPoller(stream.RPCPollerConfig{
			RPCClient:    readRPC,
			PollInterval: cfg.PollInterval,
			Logger:       logger,
		})
		if err != nil {
			return err
		}
		fallback = poller
	}

	manager, err := stream.NewManager(stream.ManagerConfig{
		Streaming:        streaming,
		Fallback:         fallback,
		Programs:         programs,
		Retry:            cfg.StreamRetry(),
		MaxStreamRetries: cfg.MaxStreamRetries,
		PromoteInterval:  cfg.PromoteInterval,
		OnStateChange: func(from, to stream.State) {
			m.StateChanged(from.String(), to.String(), int(to))
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	sampler := fees.NewSampler(fees.SamplerConfig{
		Source:   readRPC,
		Accounts: programs,
		Interval: cfg.FeeSampleInterval,
		Logger:   logger,
	})
	estimator := fees.NewEstimator(cfg.FeeConfig())

	attempts := ledger.New(ledger.Config{
		Horizon: cfg.LedgerHorizon,
		Logger:  logger,
	})

	execCfg := executor.Config{
		RPC:            sendRPC,
		Ledger:         attempts,
		Limiter:        limiter,
		MaxAttempts:    cfg.MaxAttempts,
		Retry:          cfg.SendRetry(),
		ConfirmTimeout: cfg.ConfirmTimeout,
		Commitment:     cfg.Commitment,
		SkipPreflight:  cfg.SkipPreflight,
		DryRun:         cfg.DryRun,
		Logger:         logger,
	}
	if cfg.UseJito {
		execCfg.Bundles = jito.NewClient(jito.Config{
			BlockEngineURL: cfg.JitoBlockEngineURL,
			Logger:         logger,
		})
	}
	exec := executor.New(execCfg)

	handlers := &server.Handlers{
		Detection: manager,
		Ledger:    attempts,
		Prices:    oracle,
		FeeSample: sampler,
		Estimator: estimator,
		Metrics:   m.Handler(),
		DryRun:    cfg.DryRun,
		DevMode:   cfg.DevMode,
		Logger:    logger,
	}

	pipeCfg := pipeline.Config{
		Source:        manager,
		Normalizer:    norm,
		Enricher:      enricher,
		Filter:        filter.NewEngine(),
		Rules:         rules,
		Estimator:     estimator,
		FeeSample:     sampler,
		Builder:       builder.NewBuilder(),
		Ledger:        attempts,
		Executor:      exec,
		Signer:        signer,
		Metrics:       m,
		MaxConcurrent: cfg.MaxConcurrent,
		ShutdownGrace: cfg.ShutdownGrace,
		Logger:        logger,
	}

	if cfg.RedisEnabled() {
		rclient, err := cache.NewRedisClient(ctx, cache.RedisConfig{
			URL:  cfg.RedisURL,
			Addr: cfg.RedisAddr,
		})
		if err != nil {
			return err
		}
		defer rclient.Close()

		publisher, err := cache.NewOutcomePublisher(rclient)
		if err != nil {
			return err
		}
		flagStore, err := flags.NewStore(rclient)
		if err != nil {
			return err
		}
		gate := flags.NewGate(flagStore, constants.FlagPaused, 2*time.Second, logger)

		pipeCfg.Outcomes = publisher
		pipeCfg.Pause = gate
		handlers.Outcomes = publisher
		handlers.Flags = flagStore
		handlers.Pause = gate
		logger.Info("redis outcome publishing and flags enabled")
	}

	pipe, err := pipeline.New(pipeCfg)
	if err != nil {
		return err
	}

	var srv *server.Server
	if cfg.APIAddr != "" {
		srv, err = server.NewServer(server.ServerDeps{
			Handlers: handlers,
			Config: server.ServerConfig{
				Addr:    cfg.APIAddr,
				DevMode: cfg.DevMode,
				APIKey:  cfg.APIKey,
			},
		})
		if err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	background := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}
	background(sampler.Run)
	background(attempts.Run)

	if srv != nil {
		go func() {
			logger.WithField("addr", cfg.APIAddr).Info("api server starting")
			if err := srv.Start(); err != nil {
				logger.WithError(err).Error("api server failed")
			}
		}()
	}

	go func() {
		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Info("shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := manager.Start(ctx); err != nil {
		return err
	}

	// Run returns once detection has closed its event sequence and every
	// admitted pool reached a terminal outcome or the grace period ran out.
	runErr := pipe.Run(ctx)

	// Detection can end by itself when transports are exhausted.
	cancel()
	wg.Wait()

	if srv != nil {
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Warn("api server shutdown")
		}
	}

	stats := pipe.Stats()
	logger.WithFields(logrus.Fields{
		"detected":   stats.Detected,
		"pools":      stats.Pools,
		"rejected":   stats.Rejected,
		"duplicates": stats.Duplicates,
		"executed":   stats.Executed,
		"failed":     stats.Failed,
		"dropped":    stats.Dropped,
		"dry_run":    exec.DryRun(),
	}).Info("sniper stopped")

	if runErr != nil {
		return runErr
	}
	if err := manager.Err(); err != nil && errors.Is(err, errs.ErrTransportsExhausted) {
		return err
	}
	return nil
}
