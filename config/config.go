// Package config loads client settings from a YAML file and the environment.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/vadiminshakov/mrgnlend/internal/domain"
)

const (
	LedgerMarginfi = "marginfi"
	LedgerSimulate = "simulate"

	DefaultFileName    = "mrgnlend.yaml"
	DefaultRPCURL      = "https://api.mainnet-beta.solana.com"
	DefaultExplorerURL = "https://solscan.io/tx/"
	DefaultCoinGecko   = "https://api.coingecko.com/api/v3"

	defaultProgramID   = "MFv2hWf31Z9kbCa1snEPYctwafyhdvnV7FZnsebVacA"
	defaultGroup       = "4qp6Fx6tnZkY5Wropq9wUYgtFxXKwE6viZxFHg3rdAG8"
	defaultSOLBank     = "CCKtUs6Cgwo4aaQUmBPmyoApH2gUDErxNZCAntD6LYGh"
	defaultSOLPoolName = "mrgnlend SOL Pool"
	defaultSOLAPY      = "2.5"
	simulatedOwner     = "simulated-wallet"
)

var knownPriceSources = map[string]bool{
	"coingecko":   true,
	"binance":     true,
	"bybit":       true,
	"hyperliquid": true,
}

// ConfigurationError reports a missing or malformed setting. It is fatal at startup.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ConfigurationError{Field: field, Err: err}
}

// Config is the parsed client configuration.
type Config struct {
	Ledger    string
	RPCURL    string
	WalletKey string
	// Owner is the wallet address used by the simulated ledger.
	Owner string

	ProgramID                string
	Group                    string
	Account                  string
	ComputeUnitLimit         uint32
	PriorityFeeMicroLamports uint64
	Commitment               string
	SkipPreflight            bool

	LendPool domain.PoolID
	Pools    []domain.PoolInfo

	PriceSources   []string
	CoinGeckoURL   string
	HyperliquidURL string
	ExplorerURL    string

	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64

	LogLevel   string
	LogOutputs []string

	MetricsAddr     string
	SimulateBalance decimal.Decimal
}

// ExplorerLink returns the block explorer URL of a transaction.
func (c Config) ExplorerLink(txID string) string {
	return c.ExplorerURL + txID
}

// PoolTmp is the raw form of one pool declaration.
type PoolTmp struct {
	ID          string `yaml:"id" mapstructure:"id"`
	Symbol      string `yaml:"symbol" mapstructure:"symbol"`
	Name        string `yaml:"name,omitempty" mapstructure:"name"`
	DecimalsStr string `yaml:"decimals,omitempty" mapstructure:"decimals"`
	Oracle      string `yaml:"oracle,omitempty" mapstructure:"oracle"`
	APYStr      string `yaml:"apy,omitempty" mapstructure:"apy"`
}

// RetryTmp is the raw retry policy.
type RetryTmp struct {
	MaxAttemptsStr  string `yaml:"max_attempts,omitempty" mapstructure:"max_attempts"`
	InitialInterval string `yaml:"initial_interval,omitempty" mapstructure:"initial_interval"`
	MultiplierStr   string `yaml:"multiplier,omitempty" mapstructure:"multiplier"`
}

// ConfigTmp holds settings as read from YAML and env before validation.
type ConfigTmp struct {
	Ledger    string `yaml:"ledger" mapstructure:"ledger"`
	RPCURL    string `yaml:"rpc_url,omitempty" mapstructure:"rpc_url"`
	WalletKey string `yaml:"wallet_key,omitempty" mapstructure:"wallet_key"`

	ProgramID           string `yaml:"program_id,omitempty" mapstructure:"program_id"`
	Group               string `yaml:"group,omitempty" mapstructure:"group"`
	Account             string `yaml:"account,omitempty" mapstructure:"account"`
	ComputeUnitLimitStr string `yaml:"compute_unit_limit,omitempty" mapstructure:"compute_unit_limit"`
	PriorityFeeStr      string `yaml:"priority_fee_micro_lamports,omitempty" mapstructure:"priority_fee_micro_lamports"`
	Commitment          string `yaml:"commitment,omitempty" mapstructure:"commitment"`
	SkipPreflight       bool   `yaml:"skip_preflight,omitempty" mapstructure:"skip_preflight"`

	LendPool string    `yaml:"lend_pool,omitempty" mapstructure:"lend_pool"`
	Pools    []PoolTmp `yaml:"pools,omitempty" mapstructure:"pools"`

	PriceSources   []string `yaml:"price_sources,omitempty" mapstructure:"price_sources"`
	CoinGeckoURL   string   `yaml:"coingecko_url,omitempty" mapstructure:"coingecko_url"`
	HyperliquidURL string   `yaml:"hyperliquid_url,omitempty" mapstructure:"hyperliquid_url"`
	ExplorerURL    string   `yaml:"explorer_url,omitempty" mapstructure:"explorer_url"`

	Retry RetryTmp `yaml:"retry,omitempty" mapstructure:"retry"`

	LogLevel   string   `yaml:"log_level,omitempty" mapstructure:"log_level"`
	LogOutputs []string `yaml:"log_outputs,omitempty" mapstructure:"log_outputs"`

	MetricsAddr        string `yaml:"metrics_addr,omitempty" mapstructure:"metrics_addr"`
	SimulateBalanceStr string `yaml:"simulate_balance,omitempty" mapstructure:"simulate_balance"`
}

// Load reads path (or mrgnlend.yaml from the working dir or $HOME/.mrgnlend when empty),
// applies MRGNLEND_* env overrides plus WALLET_KEY and RPC_URL, and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MRGNLEND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("wallet_key", "MRGNLEND_WALLET_KEY", "WALLET_KEY")
	_ = v.BindEnv("rpc_url", "MRGNLEND_RPC_URL", "RPC_URL")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFileName, ".yaml"))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.mrgnlend")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, invalid("config file", err)
		}
	}

	var tmp ConfigTmp
	if err := v.Unmarshal(&tmp); err != nil {
		return Config{}, invalid("", errors.Wrap(err, "decode settings"))
	}

	return tmp.Parse()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ledger", LedgerMarginfi)
	v.SetDefault("rpc_url", DefaultRPCURL)
	v.SetDefault("wallet_key", "")
	v.SetDefault("program_id", defaultProgramID)
	v.SetDefault("group", defaultGroup)
	v.SetDefault("account", "")
	v.SetDefault("compute_unit_limit", "400000")
	v.SetDefault("priority_fee_micro_lamports", "10000")
	v.SetDefault("commitment", "confirmed")
	v.SetDefault("skip_preflight", false)
	v.SetDefault("lend_pool", defaultSOLBank)
	v.SetDefault("price_sources", []string{"coingecko", "binance", "bybit"})
	v.SetDefault("coingecko_url", DefaultCoinGecko)
	v.SetDefault("hyperliquid_url", "")
	v.SetDefault("explorer_url", DefaultExplorerURL)
	v.SetDefault("retry.max_attempts", "5")
	v.SetDefault("retry.initial_interval", "1s")
	v.SetDefault("retry.multiplier", "2")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_outputs", []string{"stderr"})
	v.SetDefault("metrics_addr", "")
	v.SetDefault("simulate_balance", "10")
}

// DefaultTmp returns the raw settings a fresh config file starts from.
func DefaultTmp() ConfigTmp {
	return ConfigTmp{
		Ledger:       LedgerMarginfi,
		RPCURL:       DefaultRPCURL,
		LendPool:     defaultSOLBank,
		Pools:        []PoolTmp{defaultSOLPool()},
		PriceSources: []string{"coingecko", "binance", "bybit"},
	}
}

func defaultSOLPool() PoolTmp {
	return PoolTmp{
		ID:          defaultSOLBank,
		Symbol:      "SOL",
		Name:        defaultSOLPoolName,
		DecimalsStr: "9",
		APYStr:      defaultSOLAPY,
	}
}

// Parse validates raw settings and fills defaults for anything left empty.
func (c ConfigTmp) Parse() (Config, error) {
	cfg := Config{
		Ledger:         strings.ToLower(strings.TrimSpace(c.Ledger)),
		RPCURL:         orDefault(c.RPCURL, DefaultRPCURL),
		WalletKey:      strings.TrimSpace(c.WalletKey),
		ProgramID:      orDefault(c.ProgramID, defaultProgramID),
		Group:          orDefault(c.Group, defaultGroup),
		Account:        c.Account,
		Commitment:     orDefault(c.Commitment, "confirmed"),
		SkipPreflight:  c.SkipPreflight,
		LendPool:       domain.PoolID(orDefault(c.LendPool, defaultSOLBank)),
		CoinGeckoURL:   orDefault(c.CoinGeckoURL, DefaultCoinGecko),
		HyperliquidURL: c.HyperliquidURL,
		ExplorerURL:    orDefault(c.ExplorerURL, DefaultExplorerURL),
		LogLevel:       orDefault(c.LogLevel, "info"),
		LogOutputs:     c.LogOutputs,
		MetricsAddr:    c.MetricsAddr,
	}
	if cfg.Ledger == "" {
		cfg.Ledger = LedgerMarginfi
	}
	if len(cfg.LogOutputs) == 0 {
		cfg.LogOutputs = []string{"stderr"}
	}

	switch cfg.Ledger {
	case LedgerMarginfi:
		if cfg.WalletKey == "" {
			return Config{}, invalid("wallet_key", errors.New("WALLET_KEY is required for the marginfi ledger"))
		}
	case LedgerSimulate:
		cfg.Owner = simulatedOwner
	default:
		return Config{}, invalid("ledger", errors.Errorf("unsupported ledger %q (want %s or %s)", c.Ledger, LedgerMarginfi, LedgerSimulate))
	}

	limit, err := parseUint(c.ComputeUnitLimitStr, 400_000, 32)
	if err != nil {
		return Config{}, invalid("compute_unit_limit", err)
	}
	cfg.ComputeUnitLimit = uint32(limit)

	if cfg.PriorityFeeMicroLamports, err = parseUint(c.PriorityFeeStr, 10_000, 64); err != nil {
		return Config{}, invalid("priority_fee_micro_lamports", err)
	}

	if cfg.Pools, err = parsePools(c.Pools); err != nil {
		return Config{}, err
	}
	found := false
	for _, p := range cfg.Pools {
		if p.ID == cfg.LendPool {
			found = true
		}
	}
	if !found {
		return Config{}, invalid("lend_pool", errors.Errorf("pool %s is not declared in pools", cfg.LendPool))
	}

	if cfg.PriceSources, err = parsePriceSources(c.PriceSources); err != nil {
		return Config{}, err
	}

	if err := parseRetry(c.Retry, &cfg); err != nil {
		return Config{}, err
	}

	balance := orDefault(c.SimulateBalanceStr, "10")
	if cfg.SimulateBalance, err = decimal.NewFromString(balance); err != nil || cfg.SimulateBalance.IsNegative() {
		return Config{}, invalid("simulate_balance", errors.Errorf("must be a non-negative decimal, got %q", balance))
	}

	return cfg, nil
}

func parsePools(raw []PoolTmp) ([]domain.PoolInfo, error) {
	if len(raw) == 0 {
		raw = []PoolTmp{defaultSOLPool()}
	}

	pools := make([]domain.PoolInfo, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, p := range raw {
		field := fmt.Sprintf("pools[%d]", i)
		if p.ID == "" {
			return nil, invalid(field+".id", errors.New("pool id is required"))
		}
		if seen[p.ID] {
			return nil, invalid(field+".id", errors.Errorf("duplicate pool %s", p.ID))
		}
		seen[p.ID] = true
		if p.Symbol == "" {
			return nil, invalid(field+".symbol", errors.New("symbol is required"))
		}

		info := domain.PoolInfo{
			ID:     domain.PoolID(p.ID),
			Symbol: strings.ToUpper(p.Symbol),
			Name:   p.Name,
			Oracle: p.Oracle,
			APY:    decimal.Zero,
		}
		if info.Name == "" {
			info.Name = info.Symbol + " pool"
		}
		if p.DecimalsStr != "" {
			d, err := strconv.ParseUint(p.DecimalsStr, 10, 8)
			if err != nil {
				return nil, invalid(field+".decimals", errors.Errorf("must be an integer between 0 and 255, got %q", p.DecimalsStr))
			}
			decimals := uint8(d)
			info.Decimals = &decimals
		}
		if p.APYStr != "" {
			apy, err := decimal.NewFromString(p.APYStr)
			if err != nil {
				return nil, invalid(field+".apy", errors.Errorf("must be a decimal percentage, got %q", p.APYStr))
			}
			info.APY = apy
		}

		pools = append(pools, info)
	}
	return pools, nil
}

func parsePriceSources(raw []string) ([]string, error) {
	if len(raw) == 0 {
		raw = []string{"coingecko", "binance", "bybit"}
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.ToLower(strings.TrimSpace(s))
		if !knownPriceSources[s] {
			return nil, invalid("price_sources", errors.Errorf("unknown price source %q", s))
		}
		out = append(out, s)
	}
	return out, nil
}

func parseRetry(r RetryTmp, cfg *Config) error {
	attempts, err := parseUint(r.MaxAttemptsStr, 5, 16)
	if err != nil || attempts == 0 {
		return invalid("retry.max_attempts", errors.Errorf("must be a positive integer, got %q", r.MaxAttemptsStr))
	}
	cfg.MaxAttempts = int(attempts)

	interval := orDefault(r.InitialInterval, "1s")
	if cfg.InitialInterval, err = time.ParseDuration(interval); err != nil || cfg.InitialInterval <= 0 {
		return invalid("retry.initial_interval", errors.Errorf("must be a positive duration, got %q", interval))
	}

	multiplier := orDefault(r.MultiplierStr, "2")
	if cfg.Multiplier, err = strconv.ParseFloat(multiplier, 64); err != nil || cfg.Multiplier < 1 {
		return invalid("retry.multiplier", errors.Errorf("must be a number >= 1, got %q", multiplier))
	}
	return nil
}

func parseUint(s string, def uint64, bits int) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return strconv.ParseUint(s, 10, bits)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}
