// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"github.com/spectra/engine/internal/store"
)

// Config holds all configuration values for the Spectra dashboard.
type Config struct {
	// Market data
	GammaURL        string
	CLOBURL         string
	DataAPIURL      string
	PageSize        int
	PriceRefresh    time.Duration
	TradePollPeriod time.Duration
	TokensURL       string
	TokenPollPeriod time.Duration

	// Live trade stream
	TradesWSURL   string
	WSPing        time.Duration
	WSReconnect   time.Duration
	MaxLiveTrades int

	// Chain
	RPCURL            string
	ChainID           int64
	NativeToken       string
	GasReserveWei     *big.Int
	BalanceRefresh    time.Duration
	RouterAddress     string
	AggregatorAddress string
	FeeRecipient      string
	FeeBps            int

	// Wallets
	ActiveWalletKey     string
	ActiveWalletAddress string
	SubWalletKeys       []string

	// Dispatch
	DispatchConcurrency int

	// PresetTipsGwei are the priority fees of the quick-buy presets, in order
	PresetTipsGwei []string

	// Database
	DBPath string

	// UI
	EnableTUI     bool
	UIRefreshRate time.Duration

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables with fallback to .env file.
// Priority order: command line flags > environment variables > .env file > hardcoded defaults
func Load(args []string) (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		// Market data
		GammaURL:        getEnv("GAMMA_URL", "https://gamma-api.polymarket.com"),
		CLOBURL:         getEnv("CLOB_URL", "https://clob.polymarket.com"),
		DataAPIURL:      getEnv("DATA_API_URL", "https://data-api.polymarket.com"),
		PageSize:        getEnvInt("PAGE_SIZE", 20),
		PriceRefresh:    getEnvDuration("PRICE_REFRESH_MS", 1000, time.Millisecond),
		TradePollPeriod: getEnvDuration("TRADE_POLL_SECONDS", 30, time.Second),
		TokensURL:       getEnv("TOKENS_URL", ""),
		TokenPollPeriod: getEnvDuration("TOKEN_POLL_SECONDS", 5, time.Second),

		// Stream
		TradesWSURL:   getEnv("TRADES_WS_URL", "wss://ws-live-data.polymarket.com"),
		WSPing:        getEnvDuration("WS_PING_SECONDS", 20, time.Second),
		WSReconnect:   getEnvDuration("WS_RECONNECT_SECONDS", 3, time.Second),
		MaxLiveTrades: getEnvInt("MAX_LIVE_TRADES", 200),

		// Chain
		RPCURL:            getEnv("RPC_URL", ""),
		ChainID:           int64(getEnvInt("CHAIN_ID", 10143)),
		NativeToken:       getEnv("NATIVE_TOKEN", "0x0000000000000000000000000000000000000000"),
		GasReserveWei:     getEnvBig("GAS_RESERVE_WEI", big.NewInt(50_000_000_000_000_000)),
		BalanceRefresh:    getEnvDuration("BALANCE_REFRESH_SECONDS", 10, time.Second),
		RouterAddress:     getEnv("ROUTER_ADDRESS", ""),
		AggregatorAddress: getEnv("AGGREGATOR_ADDRESS", ""),
		FeeRecipient:      getEnv("FEE_RECIPIENT", ""),
		FeeBps:            getEnvInt("FEE_BPS", 0),

		// Wallets
		ActiveWalletKey:     getEnv("ACTIVE_WALLET_KEY", ""),
		ActiveWalletAddress: getEnv("ACTIVE_WALLET_ADDRESS", ""),
		SubWalletKeys:       getEnvList("SUB_WALLET_KEYS"),

		// Dispatch
		DispatchConcurrency: getEnvInt("DISPATCH_CONCURRENCY", 8),
		PresetTipsGwei:      getEnvList("PRESET_TIPS_GWEI"),

		// Database
		DBPath: getEnv("DB_PATH", "./data/spectra.db"),

		// UI
		EnableTUI:     getEnvBool("ENABLE_TUI", true),
		UIRefreshRate: getEnvDuration("UI_REFRESH_MS", 500, time.Millisecond),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
		LogFile:  getEnv("LOG_FILE", "spectra.log"),
	}

	if len(cfg.PresetTipsGwei) == 0 {
		cfg.PresetTipsGwei = []string{"1", "2", "5"}
	}

	if err := cfg.applyFlags(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// applyFlags overrides env values with command line flags.
func (c *Config) applyFlags(args []string) error {
	fs := pflag.NewFlagSet("spectra", pflag.ContinueOnError)
	headless := fs.Bool("headless", !c.EnableTUI, "run without the terminal dashboard")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (DEBUG, INFO, WARN, ERROR)")
	fs.StringVar(&c.DBPath, "db", c.DBPath, "path to the settings database")
	fs.StringVar(&c.RPCURL, "rpc", c.RPCURL, "chain RPC endpoint")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	c.EnableTUI = !*headless
	return nil
}

// Validate checks that required configuration values are set and valid.
func (c *Config) Validate() error {
	if c.GammaURL == "" {
		return fmt.Errorf("GAMMA_URL is required")
	}

	if c.TradesWSURL == "" {
		return fmt.Errorf("TRADES_WS_URL is required")
	}

	if c.PageSize < 1 {
		return fmt.Errorf("PAGE_SIZE must be at least 1")
	}

	if c.PriceRefresh <= 0 {
		return fmt.Errorf("PRICE_REFRESH_MS must be positive")
	}

	if c.MaxLiveTrades < 1 {
		return fmt.Errorf("MAX_LIVE_TRADES must be at least 1")
	}

	if c.DispatchConcurrency < 1 {
		return fmt.Errorf("DISPATCH_CONCURRENCY must be at least 1")
	}

	for i, tip := range c.PresetTipsGwei {
		d, err := decimal.NewFromString(tip)
		if err != nil || d.Sign() < 0 {
			return fmt.Errorf("PRESET_TIPS_GWEI entry %d is not a non-negative number: %q", i+1, tip)
		}
	}

	if c.GasReserveWei.Sign() < 0 {
		return fmt.Errorf("GAS_RESERVE_WEI must not be negative")
	}

	if c.FeeBps < 0 || c.FeeBps > 10000 {
		return fmt.Errorf("FEE_BPS must be between 0 and 10000")
	}

	for name, addr := range map[string]string{
		"ROUTER_ADDRESS":        c.RouterAddress,
		"AGGREGATOR_ADDRESS":    c.AggregatorAddress,
		"FEE_RECIPIENT":         c.FeeRecipient,
		"ACTIVE_WALLET_ADDRESS": c.ActiveWalletAddress,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("%s is not a valid address", name)
		}
	}

	if _, _, err := c.Wallets(); err != nil {
		return err
	}

	return nil
}

// Wallets parses the configured signing keys. active is nil when no active
// account is configured; an ACTIVE_WALLET_ADDRESS without a key yields an
// externally managed account.
func (c *Config) Wallets() (subs []store.Wallet, active *store.Wallet, err error) {
	for i, key := range c.SubWalletKeys {
		w, err := walletFromKey(key)
		if err != nil {
			return nil, nil, fmt.Errorf("SUB_WALLET_KEYS[%d]: %w", i, err)
		}
		subs = append(subs, w)
	}

	switch {
	case c.ActiveWalletKey != "":
		w, err := walletFromKey(c.ActiveWalletKey)
		if err != nil {
			return nil, nil, fmt.Errorf("ACTIVE_WALLET_KEY: %w", err)
		}
		active = &w
	case c.ActiveWalletAddress != "":
		active = &store.Wallet{Address: common.HexToAddress(c.ActiveWalletAddress)}
	}

	return subs, active, nil
}

func walletFromKey(hexKey string) (store.Wallet, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return store.Wallet{}, fmt.Errorf("invalid private key: %w", err)
	}
	return store.Wallet{
		Address:    crypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: hexKey,
	}, nil
}

// PresetTip returns the priority fee in wei of a 1-based preset, or nil
// when the preset is not configured.
func (c *Config) PresetTip(preset int) *big.Int {
	if preset < 1 || preset > len(c.PresetTipsGwei) {
		return nil
	}
	d, err := decimal.NewFromString(c.PresetTipsGwei[preset-1])
	if err != nil {
		return nil
	}
	return d.Shift(9).BigInt()
}

// MaskedRPCURL returns the RPC endpoint with most characters hidden for logging.
func (c *Config) MaskedRPCURL() string {
	return maskSecret(c.RPCURL)
}

// MaskedActiveKey returns the active wallet key with most characters hidden for logging.
func (c *Config) MaskedActiveKey() string {
	return maskSecret(c.ActiveWalletKey)
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration reads an integer count of unit.
func getEnvDuration(key string, defaultValue int, unit time.Duration) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * unit
}

// getEnvBool retrieves an environment variable as a boolean or returns a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvBig retrieves an environment variable as a base-10 integer.
func getEnvBig(key string, defaultValue *big.Int) *big.Int {
	if value := os.Getenv(key); value != "" {
		if n, ok := new(big.Int).SetString(value, 10); ok {
			return n
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
