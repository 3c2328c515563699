package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the agent.
type Config struct {
	// Mode
	Debug bool

	// Wallet
	PrivateKey string

	// Chain
	RPCURL string

	// Market contracts
	BetContract   string
	MarketMaker   string
	QuoteToken    string
	QuoteDecimals int

	// Rate feed
	RateSymbol   string
	FallbackRate decimal.Decimal

	// Activity feed
	ActivityAPIURL string

	// Monitor
	PollInterval time.Duration
	CopyDelay    time.Duration

	// Admin API
	ListenAddr string

	// Database
	DatabasePath string

	// Telegram (optional, notifier disabled when empty)
	TelegramToken string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Debug: getEnvBool("DEBUG", false),

		PrivateKey: os.Getenv("PRIVATE_KEY"),
		RPCURL:     getEnv("RPC_URL", "https://polygon-rpc.com"),

		BetContract:   getEnv("BET_CONTRACT", "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"),
		MarketMaker:   os.Getenv("MARKET_MAKER_CONTRACT"),
		QuoteToken:    getEnv("QUOTE_TOKEN", "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"),
		QuoteDecimals: getEnvInt("QUOTE_DECIMALS", 6),

		RateSymbol:   getEnv("RATE_SYMBOL", "ethusdt"),
		FallbackRate: getEnvDecimal("FALLBACK_RATE", "2000"),

		ActivityAPIURL: getEnv("ACTIVITY_API_URL", "https://data-api.polymarket.com"),

		PollInterval: getEnvDuration("POLL_INTERVAL", 30*time.Second),
		CopyDelay:    getEnvDuration("COPY_DELAY", 5*time.Second),

		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		DatabasePath: getEnvAllowEmpty("DATABASE_PATH", "./data/tradeguard.db"),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("PRIVATE_KEY is required")
	}
	if cfg.MarketMaker == "" {
		return nil, fmt.Errorf("MARKET_MAKER_CONTRACT is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvAllowEmpty distinguishes an unset variable from one set to the
// empty string, so DATABASE_PATH="" switches persistence off.
func getEnvAllowEmpty(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDecimal(key, fallback string) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		v = fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		d, _ = decimal.NewFromString(fallback)
	}
	return d
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
