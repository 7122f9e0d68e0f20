package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aman-zulfiqar/raydium-sniper/internal/errs"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	t.Setenv("PRIVATE_KEY_BASE58", solana.NewWallet().PrivateKey.String())
	return Load()
}

func requireConfigError(t *testing.T, err error, field string) {
	t.Helper()
	var ce *errs.ConfigurationError
	require.True(t, errors.As(err, &ce), "want ConfigurationError, got %v", err)
	assert.Equal(t, field, ce.Field)
}

func TestLoad_Defaults(t *testing.T) {
	cfg := validConfig(t)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://api.mainnet-beta.solana.com", cfg.RPCURL)
	assert.Equal(t, cfg.RPCURL, cfg.SendURL())
	assert.True(t, cfg.UseFallback)
	assert.True(t, cfg.MonitorAmmV4)
	assert.True(t, cfg.MonitorCpmm)
	assert.Equal(t, "0.1", cfg.BuyAmountSOL.String())
	assert.Equal(t, uint64(100_000_000), cfg.BuyLamports())
	assert.Equal(t, uint16(50), cfg.SlippageBps)
	assert.Equal(t, "1000", cfg.MinLiquidityUSD.String())
	assert.Nil(t, cfg.MaxLiquidityUSD)
	assert.Equal(t, uint64(100_000), cfg.PriorityFeeMicroLamports)
	assert.Equal(t, uint32(1_400_000), cfg.MaxComputeUnits)
	assert.True(t, cfg.DryRun)
	assert.False(t, cfg.UseJito)
	assert.Equal(t, uint64(10_000), cfg.JitoTipLamports)
	assert.Equal(t, 100*time.Millisecond, cfg.RateLimit)
	assert.False(t, cfg.RedisEnabled())
}

func TestLoad_Env(t *testing.T) {
	creator := solana.NewWallet().PublicKey().String()
	t.Setenv("SEND_RPC_URL", "https://send.example.com")
	t.Setenv("STREAM_WS_URL", "wss://stream.example.com")
	t.Setenv("BUY_AMOUNT_SOL", "0.25")
	t.Setenv("MAX_LIQUIDITY_USD", "50000")
	t.Setenv("BLACKLIST_CREATORS", " "+creator+" ,,"+creator)
	t.Setenv("DRY_RUN", "0")
	t.Setenv("USE_JITO", "1")
	t.Setenv("JITO_BLOCK_ENGINE_URL", "https://jito.example.com")
	t.Setenv("RATE_LIMIT_MS", "250")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg := validConfig(t)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://send.example.com", cfg.SendURL())
	assert.Equal(t, uint64(250_000_000), cfg.BuyLamports())
	require.NotNil(t, cfg.MaxLiquidityUSD)
	assert.Equal(t, "50000", cfg.MaxLiquidityUSD.String())
	assert.Equal(t, []string{creator}, cfg.Blacklist(), "deduplicated")
	assert.False(t, cfg.DryRun)
	assert.True(t, cfg.UseJito)
	assert.Equal(t, 250*time.Millisecond, cfg.RateLimit)
	assert.True(t, cfg.RedisEnabled())

	fc := cfg.FeeConfig()
	assert.True(t, fc.UseBundle)
	assert.Equal(t, uint64(10_000), fc.TipLamports)
	assert.Equal(t, 75, fc.Percentile)

	rules := cfg.FilterConfig()
	assert.Contains(t, rules.BlacklistedCreators, creator)
	assert.Equal(t, uint64(250_000_000), rules.BuyAmountLamports)
	require.NotNil(t, rules.MaxLiquidityUSD)
	assert.NotSame(t, cfg.MaxLiquidityUSD, rules.MaxLiquidityUSD)
}

func TestLoad_GeyserURLRejected(t *testing.T) {
	t.Setenv("YELLOWSTONE_GRPC_URL", "https://geyser.example.com:10000")
	cfg := validConfig(t)
	assert.Empty(t, cfg.StreamWSURL, "gRPC endpoint is never dialed as a websocket")
	requireConfigError(t, cfg.Validate(), "YELLOWSTONE_GRPC_URL")
}

func TestValidate_StreamURLScheme(t *testing.T) {
	t.Setenv("STREAM_WS_URL", "https://geyser.example.com:10000")
	cfg := validConfig(t)
	requireConfigError(t, cfg.Validate(), "STREAM_WS_URL")
}

func TestLoad_ParseErrorsSurfaceInValidate(t *testing.T) {
	t.Setenv("SLIPPAGE_BPS", "lots")
	cfg := validConfig(t)
	assert.Equal(t, uint16(50), cfg.SlippageBps, "default kept")
	requireConfigError(t, cfg.Validate(), "SLIPPAGE_BPS")
}

func TestApplyFlags(t *testing.T) {
	t.Setenv("BUY_AMOUNT_SOL", "0.5")
	cfg := validConfig(t)

	creator := solana.NewWallet().PublicKey().String()
	err := cfg.applyFlags([]string{
		"-buy-amount", "0.05",
		"-min-liquidity", "2500",
		"-max-liquidity", "10000",
		"-dry-run=false",
		"-blacklist", creator,
		"-log-level", "debug",
	}, io.Discard)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, uint64(50_000_000), cfg.BuyLamports(), "flag overrides env")
	assert.Equal(t, "2500", cfg.MinLiquidityUSD.String())
	assert.Equal(t, "10000", cfg.MaxLiquidityUSD.String())
	assert.False(t, cfg.DryRun)
	assert.Equal(t, []string{creator}, cfg.Blacklist())
	assert.Equal(t, "debug", cfg.LogLevel)

	assert.Error(t, validConfig(t).applyFlags([]string{"-buy-amount", "abc"}, io.Discard))
	assert.Error(t, validConfig(t).applyFlags([]string{"stray"}, io.Discard))
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"rpc scheme", func(c *Config) { c.RPCURL = "ftp://node" }, "RPC_URL"},
		{"stream scheme", func(c *Config) { c.StreamWSURL = "https://node" }, "STREAM_WS_URL"},
		{"no transport", func(c *Config) { c.StreamWSURL = ""; c.UseFallback = false }, "STREAM_WS_URL"},
		{"no pool types", func(c *Config) { c.MonitorAmmV4 = false; c.MonitorCpmm = false }, "MONITOR_AMM_V4"},
		{"no signer", func(c *Config) { c.PrivateKey = "" }, "PRIVATE_KEY_BASE58"},
		{"both signers", func(c *Config) { c.Mnemonic = "abandon" }, "PRIVATE_KEY_BASE58"},
		{"zero buy", func(c *Config) { c.BuyAmountSOL = c.BuyAmountSOL.Sub(c.BuyAmountSOL) }, "BUY_AMOUNT_SOL"},
		{"slippage", func(c *Config) { c.SlippageBps = 10_001 }, "SLIPPAGE_BPS"},
		{"max below min", func(c *Config) {
			m := c.MinLiquidityUSD.Sub(c.MinLiquidityUSD)
			c.MaxLiquidityUSD = &m
		}, "MAX_LIQUIDITY_USD"},
		{"percentile", func(c *Config) { c.PriorityFeePercentile = 0 }, "PRIORITY_FEE_PERCENTILE"},
		{"fee cap", func(c *Config) { c.MaxPriorityFeeMicroLamports = 1 }, "MAX_PRIORITY_FEE_MICRO_LAMPORTS"},
		{"jito url", func(c *Config) { c.UseJito = true }, "JITO_BLOCK_ENGINE_URL"},
		{"concurrency", func(c *Config) { c.MaxConcurrent = 0 }, "MAX_CONCURRENT"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "LOG_LEVEL"},
		{"bad creator", func(c *Config) { c.BlacklistCreators = []string{"not-a-key"} }, "BLACKLIST_CREATORS"},
		{"missing file", func(c *Config) { c.BlacklistFile = filepath.Join(t.TempDir(), "none.yaml") }, "BLACKLIST_FILE"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutate(cfg)
			requireConfigError(t, cfg.Validate(), tc.field)
		})
	}
}

func TestLoadBlacklistFile(t *testing.T) {
	fromEnv := solana.NewWallet().PublicKey().String()
	fromFile := solana.NewWallet().PublicKey().String()

	path := filepath.Join(t.TempDir(), "blacklist.yaml")
	doc := "creators:\n  - " + fromFile + "\n  - \"\"\n  - " + fromEnv + "\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	got, err := LoadBlacklistFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{fromFile, fromEnv}, got)

	t.Setenv("BLACKLIST_CREATORS", fromEnv)
	t.Setenv("BLACKLIST_FILE", path)
	cfg := validConfig(t)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{fromEnv, fromFile}, cfg.Blacklist())

	require.NoError(t, os.WriteFile(path, []byte("creators: [unterminated"), 0o600))
	_, err = LoadBlacklistFile(path)
	assert.Error(t, err)
}

func TestSummary_OmitsSecrets(t *testing.T) {
	t.Setenv("RPC_URL", "https://rpc.example.com/?api-key=secret")
	t.Setenv("API_KEY", "hunter2")
	cfg := validConfig(t)
	require.NoError(t, cfg.Validate())

	fields := cfg.Summary()
	assert.Equal(t, "https://rpc.example.com/", fields["rpc"])
	for _, v := range fields {
		assert.NotEqual(t, "hunter2", v)
		assert.NotEqual(t, cfg.PrivateKey, v)
	}
}
