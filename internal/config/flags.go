package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ApplyFlags overrides the environment values with command-line flags.
// Unset flags keep the value Load produced.
func (c *Config) ApplyFlags(args []string) error {
	return c.applyFlags(args, os.Stderr)
}

func (c *Config) applyFlags(args []string, output io.Writer) error {
	fs := flag.NewFlagSet("sniper", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&c.RPCURL, "rpc-url", c.RPCURL, "Solana JSON-RPC endpoint")
	fs.StringVar(&c.SendRPCURL, "send-rpc-url", c.SendRPCURL, "endpoint used for sendTransaction (defaults to -rpc-url)")
	fs.StringVar(&c.StreamWSURL, "stream-url", c.StreamWSURL, "streaming websocket endpoint")
	fs.BoolVar(&c.UseFallback, "fallback", c.UseFallback, "poll RPC when streaming is unavailable")
	fs.Uint64Var(&c.PriorityFeeMicroLamports, "priority-fee", c.PriorityFeeMicroLamports, "priority fee floor in micro-lamports per compute unit")
	fs.BoolVar(&c.DryRun, "dry-run", c.DryRun, "build and log transactions without sending")
	fs.BoolVar(&c.UseJito, "use-jito", c.UseJito, "submit through the Jito block engine")
	fs.IntVar(&c.MaxConcurrent, "max-concurrent", c.MaxConcurrent, "maximum in-flight executions")
	fs.StringVar(&c.BlacklistFile, "blacklist-file", c.BlacklistFile, "YAML file with blacklisted creators")
	fs.StringVar(&c.APIAddr, "api-addr", c.APIAddr, "ops API listen address (empty disables)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level")

	fs.Func("buy-amount", "SOL spent per snipe (default "+c.BuyAmountSOL.String()+")", decimalFlag(&c.BuyAmountSOL))
	fs.Func("min-liquidity", "minimum pool liquidity in USD (default "+c.MinLiquidityUSD.String()+")", decimalFlag(&c.MinLiquidityUSD))
	fs.Func("max-liquidity", "maximum pool liquidity in USD", func(s string) error {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return err
		}
		c.MaxLiquidityUSD = &d
		return nil
	})
	fs.Func("blacklist", "comma-separated creator addresses, added to BLACKLIST_CREATORS", func(s string) error {
		c.BlacklistCreators = append(c.BlacklistCreators, splitList(s)...)
		return nil
	})

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return nil
}

func decimalFlag(dst *decimal.Decimal) func(string) error {
	return func(s string) error {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

type blacklistFile struct {
	Creators []string `yaml:"creators"`
}

// LoadBlacklistFile reads a YAML document of the form
//
//	creators:
//	  - <address>
func LoadBlacklistFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blacklist file: %w", err)
	}
	var f blacklistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse blacklist file: %w", err)
	}
	out := make([]string, 0, len(f.Creators))
	for _, c := range f.Creators {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out, nil
}
