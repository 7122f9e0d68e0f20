// Package config loads the sniper's settings from the environment, lets CLI
// flags override them and derives the immutable per-component configs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aman-zulfiqar/raydium-sniper/internal/backoff"
	"github.com/aman-zulfiqar/raydium-sniper/internal/errs"
	"github.com/aman-zulfiqar/raydium-sniper/internal/fees"
	"github.com/aman-zulfiqar/raydium-sniper/internal/filter"
	"github.com/aman-zulfiqar/raydium-sniper/internal/wallet"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// RPC settings
	RPCURL     string
	SendRPCURL string // defaults to RPCURL
	RPCTimeout time.Duration
	Commitment string

	// Detection
	StreamWSURL      string
	UseFallback      bool
	PollInterval     time.Duration
	MaxStreamRetries int
	PromoteInterval  time.Duration
	MonitorAmmV4     bool
	MonitorCpmm      bool

	// Signer
	PrivateKey         string
	Mnemonic           string
	MnemonicPassphrase string

	// Filter
	BuyAmountSOL          decimal.Decimal
	SlippageBps           uint16
	MinLiquidityUSD       decimal.Decimal
	MaxLiquidityUSD       *decimal.Decimal
	BlacklistCreators     []string
	BlacklistFile         string
	RejectMintAuthority   bool
	RejectFreezeAuthority bool
	RequireMetadata       bool

	// Fees
	PriorityFeeMicroLamports    uint64
	PriorityFeeMultiplier       decimal.Decimal
	PriorityFeePercentile       int
	MaxPriorityFeeMicroLamports uint64
	MaxComputeUnits             uint32
	FeeSampleInterval           time.Duration

	// Execution
	DryRun             bool
	UseJito            bool
	JitoTipLamports    uint64
	JitoBlockEngineURL string
	RateLimit          time.Duration
	MaxAttempts        int
	ConfirmTimeout     time.Duration
	SkipPreflight      bool
	MaxConcurrent      int
	ShutdownGrace      time.Duration
	LedgerHorizon      time.Duration

	// Price oracle
	JupiterBaseURL   string
	JupiterAPIKey    string
	SOLPriceTTL      time.Duration
	FallbackSOLPrice decimal.Decimal

	// Redis settings; empty disables outcome publishing and flags
	RedisURL  string
	RedisAddr string

	// Ops API; empty APIAddr disables it
	APIAddr string
	APIKey  string
	DevMode bool

	LogLevel  string
	LogFormat string

	// parse errors collected by Load and ApplyFlags, reported by Validate
	invalid []error

	// resolved by Validate
	buyLamports uint64
	blacklist   []string
}

func Load() *Config {
	c := &Config{}

	// RPC
	c.RPCURL = getEnv("RPC_URL", "https://api.mainnet-beta.solana.com")
	c.SendRPCURL = getEnv("SEND_RPC_URL", "")
	c.RPCTimeout = c.getDurationEnv("RPC_TIMEOUT", 10*time.Second)
	c.Commitment = getEnv("COMMITMENT", "confirmed")

	// Detection
	c.StreamWSURL = getEnv("STREAM_WS_URL", "")
	if getEnv("YELLOWSTONE_GRPC_URL", "") != "" {
		c.fail("YELLOWSTONE_GRPC_URL", "geyser gRPC is not supported; set STREAM_WS_URL to a websocket endpoint with transactionSubscribe")
	}
	c.UseFallback = c.getBoolEnv("USE_WEBSOCKET_FALLBACK", true)
	c.PollInterval = c.getDurationEnv("POLL_INTERVAL", 2*time.Second)
	c.MaxStreamRetries = c.getIntEnv("MAX_STREAM_RETRIES", 10)
	c.PromoteInterval = c.getDurationEnv("PROMOTE_INTERVAL", 30*time.Second)
	c.MonitorAmmV4 = c.getBoolEnv("MONITOR_AMM_V4", true)
	c.MonitorCpmm = c.getBoolEnv("MONITOR_CPMM", true)

	// Signer
	c.PrivateKey = getEnv("PRIVATE_KEY_BASE58", "")
	c.Mnemonic = getEnv("MNEMONIC", "")
	c.MnemonicPassphrase = getEnv("MNEMONIC_PASSPHRASE", "")

	// Filter
	c.BuyAmountSOL = c.getDecimalEnv("BUY_AMOUNT_SOL", decimal.RequireFromString("0.1"))
	c.SlippageBps = uint16(c.getUintEnv("SLIPPAGE_BPS", 50, 16))
	c.MinLiquidityUSD = c.getDecimalEnv("MIN_LIQUIDITY_USD", decimal.NewFromInt(1000))
	if v := getEnv("MAX_LIQUIDITY_USD", ""); v != "" {
		c.setMaxLiquidity("MAX_LIQUIDITY_USD", v)
	}
	c.BlacklistCreators = splitList(getEnv("BLACKLIST_CREATORS", ""))
	c.BlacklistFile = getEnv("BLACKLIST_FILE", "")
	c.RejectMintAuthority = c.getBoolEnv("REJECT_MINT_AUTHORITY", true)
	c.RejectFreezeAuthority = c.getBoolEnv("REJECT_FREEZE_AUTHORITY", true)
	c.RequireMetadata = c.getBoolEnv("REQUIRE_METADATA", false)

	// Fees
	c.PriorityFeeMicroLamports = c.getUintEnv("PRIORITY_FEE_MICRO_LAMPORTS", 100_000, 64)
	c.PriorityFeeMultiplier = c.getDecimalEnv("PRIORITY_FEE_MULTIPLIER", decimal.NewFromInt(1))
	c.PriorityFeePercentile = c.getIntEnv("PRIORITY_FEE_PERCENTILE", 75)
	c.MaxPriorityFeeMicroLamports = c.getUintEnv("MAX_PRIORITY_FEE_MICRO_LAMPORTS", 5_000_000, 64)
	c.MaxComputeUnits = uint32(c.getUintEnv("MAX_COMPUTE_UNITS", 1_400_000, 32))
	c.FeeSampleInterval = c.getDurationEnv("FEE_SAMPLE_INTERVAL", 2*time.Second)

	// Execution
	c.DryRun = c.getBoolEnv("DRY_RUN", true)
	c.UseJito = c.getBoolEnv("USE_JITO", false)
	c.JitoTipLamports = c.getUintEnv("JITO_TIP_LAMPORTS", 10_000, 64)
	c.JitoBlockEngineURL = getEnv("JITO_BLOCK_ENGINE_URL", "")
	c.RateLimit = time.Duration(c.getUintEnv("RATE_LIMIT_MS", 100, 32)) * time.Millisecond
	c.MaxAttempts = c.getIntEnv("MAX_ATTEMPTS", 3)
	c.ConfirmTimeout = c.getDurationEnv("CONFIRM_TIMEOUT", 30*time.Second)
	c.SkipPreflight = c.getBoolEnv("SKIP_PREFLIGHT", false)
	c.MaxConcurrent = c.getIntEnv("MAX_CONCURRENT", 4)
	c.ShutdownGrace = c.getDurationEnv("SHUTDOWN_GRACE", 15*time.Second)
	c.LedgerHorizon = c.getDurationEnv("LEDGER_HORIZON", time.Hour)

	// Price oracle
	c.JupiterBaseURL = getEnv("JUPITER_BASE_URL", "")
	c.JupiterAPIKey = getEnv("JUPITER_API_KEY", "")
	c.SOLPriceTTL = c.getDurationEnv("SOL_PRICE_TTL", 30*time.Second)
	c.FallbackSOLPrice = c.getDecimalEnv("FALLBACK_SOL_PRICE_USD", decimal.Zero)

	// Redis
	c.RedisURL = getEnv("REDIS_URL", "")
	c.RedisAddr = getEnv("REDIS_ADDR", "")

	// API
	c.APIAddr = getEnv("API_ADDR", ":8090")
	c.APIKey = getEnv("API_KEY", "")
	c.DevMode = c.getBoolEnv("DEV_MODE", false)

	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "text")

	return c
}

// Validate checks the loaded values and resolves the buy amount and the
// creator blacklist. It must succeed before the derived configs are used.
func (c *Config) Validate() error {
	if len(c.invalid) > 0 {
		return c.invalid[0]
	}

	if !strings.HasPrefix(c.RPCURL, "http://") && !strings.HasPrefix(c.RPCURL, "https://") {
		return &errs.ConfigurationError{Field: "RPC_URL", Reason: "must be an http(s) URL"}
	}
	if c.StreamWSURL != "" && !strings.HasPrefix(c.StreamWSURL, "ws://") && !strings.HasPrefix(c.StreamWSURL, "wss://") {
		return &errs.ConfigurationError{Field: "STREAM_WS_URL", Reason: "must be a ws(s) URL"}
	}
	if c.StreamWSURL == "" && !c.UseFallback {
		return &errs.ConfigurationError{Field: "STREAM_WS_URL", Reason: "no streaming endpoint and fallback polling disabled"}
	}
	if !c.MonitorAmmV4 && !c.MonitorCpmm {
		return &errs.ConfigurationError{Field: "MONITOR_AMM_V4", Reason: "at least one pool type must be monitored"}
	}

	hasKey := strings.TrimSpace(c.PrivateKey) != ""
	hasMnemonic := strings.TrimSpace(c.Mnemonic) != ""
	switch {
	case hasKey && hasMnemonic:
		return &errs.ConfigurationError{Field: "PRIVATE_KEY_BASE58", Reason: "private key and mnemonic are mutually exclusive"}
	case !hasKey && !hasMnemonic:
		return &errs.ConfigurationError{Field: "PRIVATE_KEY_BASE58", Reason: "a private key or mnemonic is required"}
	}

	if !c.BuyAmountSOL.IsPositive() {
		return &errs.ConfigurationError{Field: "BUY_AMOUNT_SOL", Reason: "must be positive"}
	}
	lamports, err := wallet.SOLToLamports(c.BuyAmountSOL)
	if err != nil || lamports == 0 {
		return &errs.ConfigurationError{Field: "BUY_AMOUNT_SOL", Reason: "must be at least one lamport"}
	}
	if c.SlippageBps > 10_000 {
		return &errs.ConfigurationError{Field: "SLIPPAGE_BPS", Reason: "must be at most 10000"}
	}
	if c.MinLiquidityUSD.IsNegative() {
		return &errs.ConfigurationError{Field: "MIN_LIQUIDITY_USD", Reason: "must not be negative"}
	}
	if c.MaxLiquidityUSD != nil && c.MaxLiquidityUSD.LessThan(c.MinLiquidityUSD) {
		return &errs.ConfigurationError{Field: "MAX_LIQUIDITY_USD", Reason: "must not be below MIN_LIQUIDITY_USD"}
	}

	if c.PriorityFeePercentile < 1 || c.PriorityFeePercentile > 100 {
		return &errs.ConfigurationError{Field: "PRIORITY_FEE_PERCENTILE", Reason: "must be between 1 and 100"}
	}
	if !c.PriorityFeeMultiplier.IsPositive() {
		return &errs.ConfigurationError{Field: "PRIORITY_FEE_MULTIPLIER", Reason: "must be positive"}
	}
	if c.MaxPriorityFeeMicroLamports > 0 && c.MaxPriorityFeeMicroLamports < c.PriorityFeeMicroLamports {
		return &errs.ConfigurationError{Field: "MAX_PRIORITY_FEE_MICRO_LAMPORTS", Reason: "must not be below PRIORITY_FEE_MICRO_LAMPORTS"}
	}
	if c.MaxComputeUnits == 0 {
		return &errs.ConfigurationError{Field: "MAX_COMPUTE_UNITS", Reason: "must be positive"}
	}

	if c.UseJito {
		if c.JitoBlockEngineURL == "" {
			return &errs.ConfigurationError{Field: "JITO_BLOCK_ENGINE_URL", Reason: "required when USE_JITO is set"}
		}
		if c.JitoTipLamports == 0 {
			return &errs.ConfigurationError{Field: "JITO_TIP_LAMPORTS", Reason: "must be positive when USE_JITO is set"}
		}
	}
	if c.MaxAttempts < 1 {
		return &errs.ConfigurationError{Field: "MAX_ATTEMPTS", Reason: "must be at least 1"}
	}
	if c.MaxConcurrent < 1 {
		return &errs.ConfigurationError{Field: "MAX_CONCURRENT", Reason: "must be at least 1"}
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return &errs.ConfigurationError{Field: "LOG_LEVEL", Reason: err.Error()}
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return &errs.ConfigurationError{Field: "LOG_FORMAT", Reason: "must be text or json"}
	}

	blacklist, err := c.resolveBlacklist()
	if err != nil {
		return err
	}

	c.buyLamports = lamports
	c.blacklist = blacklist
	return nil
}

func (c *Config) resolveBlacklist() ([]string, error) {
	all := append([]string(nil), c.BlacklistCreators...)
	if c.BlacklistFile != "" {
		fromFile, err := LoadBlacklistFile(c.BlacklistFile)
		if err != nil {
			return nil, &errs.ConfigurationError{Field: "BLACKLIST_FILE", Reason: err.Error()}
		}
		all = append(all, fromFile...)
	}

	seen := make(map[string]struct{}, len(all))
	out := make([]string, 0, len(all))
	for _, addr := range all {
		if _, err := solana.PublicKeyFromBase58(addr); err != nil {
			return nil, &errs.ConfigurationError{Field: "BLACKLIST_CREATORS", Reason: fmt.Sprintf("invalid address %q", addr)}
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out, nil
}

// BuyLamports is the resolved buy amount. Valid after Validate.
func (c *Config) BuyLamports() uint64 { return c.buyLamports }

// Blacklist is the merged creator blacklist. Valid after Validate.
func (c *Config) Blacklist() []string { return c.blacklist }

// FilterConfig returns the immutable filter snapshot.
func (c *Config) FilterConfig() *filter.Config {
	cfg := &filter.Config{
		MinLiquidityUSD:       c.MinLiquidityUSD,
		BlacklistedCreators:   filter.NewBlacklist(c.blacklist),
		RejectMintAuthority:   c.RejectMintAuthority,
		RejectFreezeAuthority: c.RejectFreezeAuthority,
		RequireMetadata:       c.RequireMetadata,
		BuyAmountLamports:     c.buyLamports,
		SlippageBps:           c.SlippageBps,
	}
	if c.MaxLiquidityUSD != nil {
		upper := *c.MaxLiquidityUSD
		cfg.MaxLiquidityUSD = &upper
	}
	return cfg
}

func (c *Config) FeeConfig() fees.Config {
	return fees.Config{
		FloorMicroLamports: c.PriorityFeeMicroLamports,
		MaxMicroLamports:   c.MaxPriorityFeeMicroLamports,
		Multiplier:         c.PriorityFeeMultiplier,
		Percentile:         c.PriorityFeePercentile,
		ComputeUnitLimit:   c.MaxComputeUnits,
		UseBundle:          c.UseJito,
		TipLamports:        c.JitoTipLamports,
	}
}

func (c *Config) SignerConfig() wallet.SignerConfig {
	return wallet.SignerConfig{
		PrivateKey: c.PrivateKey,
		Mnemonic:   c.Mnemonic,
		Passphrase: c.MnemonicPassphrase,
	}
}

// StreamRetry is the reconnect schedule for the streaming transport.
func (c *Config) StreamRetry() backoff.Policy {
	return backoff.Policy{Base: time.Second, Cap: 30 * time.Second, Factor: 2}
}

// SendRetry is the resubmission schedule for transient send failures.
func (c *Config) SendRetry() backoff.Policy {
	return backoff.Default()
}

func (c *Config) SendURL() string {
	if c.SendRPCURL != "" {
		return c.SendRPCURL
	}
	return c.RPCURL
}

func (c *Config) RedisEnabled() bool {
	return c.RedisURL != "" || c.RedisAddr != ""
}

// Summary is the startup log view of the configuration. Secrets are never
// included.
func (c *Config) Summary() logrus.Fields {
	f := logrus.Fields{
		"rpc":              redactURL(c.RPCURL),
		"streaming":        c.StreamWSURL != "",
		"fallback":         c.UseFallback,
		"amm_v4":           c.MonitorAmmV4,
		"cpmm":             c.MonitorCpmm,
		"buy_sol":          c.BuyAmountSOL.String(),
		"slippage_bps":     c.SlippageBps,
		"min_liquidity":    c.MinLiquidityUSD.String(),
		"blacklisted":      len(c.blacklist),
		"priority_fee":     c.PriorityFeeMicroLamports,
		"fee_multiplier":   c.PriorityFeeMultiplier.String(),
		"compute_units":    c.MaxComputeUnits,
		"dry_run":          c.DryRun,
		"jito":             c.UseJito,
		"rate_limit":       c.RateLimit,
		"max_concurrent":   c.MaxConcurrent,
		"redis":            c.RedisEnabled(),
		"api":              c.APIAddr,
		"reject_mint_auth": c.RejectMintAuthority,
	}
	if c.StreamWSURL != "" {
		// transactionSubscribe is a provider extension; stock validators reject it.
		f["stream_method"] = "transactionSubscribe"
	}
	if c.MaxLiquidityUSD != nil {
		f["max_liquidity"] = c.MaxLiquidityUSD.String()
	}
	return f
}

// redactURL drops the query string, where providers put API keys.
func redactURL(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}

func (c *Config) fail(field, reason string) {
	c.invalid = append(c.invalid, &errs.ConfigurationError{Field: field, Reason: reason})
}

func (c *Config) setMaxLiquidity(field, v string) {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		c.fail(field, "must be a number")
		return
	}
	c.MaxLiquidityUSD = &d
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func (c *Config) getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		i, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			c.fail(key, "must be an integer")
			return defaultVal
		}
		return i
	}
	return defaultVal
}

func (c *Config) getUintEnv(key string, defaultVal uint64, bits int) uint64 {
	if val := os.Getenv(key); val != "" {
		u, err := strconv.ParseUint(strings.TrimSpace(val), 10, bits)
		if err != nil {
			c.fail(key, fmt.Sprintf("must be an unsigned %d-bit integer", bits))
			return defaultVal
		}
		return u
	}
	return defaultVal
}

func (c *Config) getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			c.fail(key, "must be true or false")
			return defaultVal
		}
		return b
	}
	return defaultVal
}

func (c *Config) getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(strings.TrimSpace(val))
		if err != nil {
			c.fail(key, "must be a duration such as 500ms or 2s")
			return defaultVal
		}
		return d
	}
	return defaultVal
}

func (c *Config) getDecimalEnv(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			c.fail(key, "must be a number")
			return defaultVal
		}
		return d
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
