// Package config loads process configuration from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"solana-whale-tracker/internal/solana"
)

// Config holds every tunable of the tracker.
type Config struct {
	TelegramToken string `env:"TELEGRAM_TOKEN,required"`

	SolanaRPCURL string  `env:"SOLANA_RPC_URL" envDefault:"https://api.mainnet-beta.solana.com"`
	SolanaWSURL  string  `env:"SOLANA_WS_URL"`                 // empty disables websocket wake-ups
	RPCRateLimit float64 `env:"RPC_RATE_LIMIT" envDefault:"0"` // requests per second, 0 is unlimited

	TrackedMint   string `env:"TRACKED_MINT" envDefault:"3ag1Mj9AKz9FAkCQ6gAEhpLSX8B2pUbPdkb9iBsDLZNB"`
	TokenSymbol   string `env:"TOKEN_SYMBOL" envDefault:"HONK"`
	ExplorerTxURL string `env:"EXPLORER_TX_URL" envDefault:"https://solscan.io/tx/%s"`

	PostgresDSN   string `env:"POSTGRES_DSN"`
	UseMemory     bool   `env:"USE_MEMORY" envDefault:"false"`
	ClickHouseDSN string `env:"CLICKHOUSE_DSN"` // empty disables the transfer archive

	CheckInterval   time.Duration   `env:"CHECK_INTERVAL" envDefault:"300s"`
	InitialDelay    time.Duration   `env:"INITIAL_DELAY" envDefault:"30s"`
	WalletPacing    time.Duration   `env:"WALLET_PACING" envDefault:"500ms"`
	SignatureLimit  int             `env:"SIGNATURE_LIMIT" envDefault:"10"`
	DustThreshold   decimal.Decimal `env:"DUST_THRESHOLD" envDefault:"0.01"`
	CallTimeout     time.Duration   `env:"CALL_TIMEOUT" envDefault:"20s"`
	WSTriggerMinGap time.Duration   `env:"WS_TRIGGER_MIN_GAP" envDefault:"10s"`

	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads envFile (".env" when empty) into the process environment and parses Config.
// A missing default .env is not an error; a missing explicit file is.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.TelegramToken) == "" {
		errs = append(errs, errors.New("TELEGRAM_TOKEN is required"))
	}
	if c.SolanaRPCURL == "" {
		errs = append(errs, errors.New("SOLANA_RPC_URL is required"))
	}
	if err := solana.ValidateAddress(c.TrackedMint); err != nil {
		errs = append(errs, fmt.Errorf("TRACKED_MINT: %w", err))
	}
	if !c.UseMemory && c.PostgresDSN == "" {
		errs = append(errs, errors.New("POSTGRES_DSN is required unless USE_MEMORY=true"))
	}
	if !strings.Contains(c.ExplorerTxURL, "%s") {
		errs = append(errs, errors.New("EXPLORER_TX_URL must contain %s"))
	}
	if c.CheckInterval < time.Second {
		errs = append(errs, errors.New("CHECK_INTERVAL must be at least 1s"))
	}
	if c.InitialDelay < 0 {
		errs = append(errs, errors.New("INITIAL_DELAY must not be negative"))
	}
	if c.WalletPacing < 0 {
		errs = append(errs, errors.New("WALLET_PACING must not be negative"))
	}
	if c.SignatureLimit < 1 || c.SignatureLimit > 1000 {
		errs = append(errs, errors.New("SIGNATURE_LIMIT must be between 1 and 1000"))
	}
	if !c.DustThreshold.IsPositive() {
		errs = append(errs, errors.New("DUST_THRESHOLD must be positive"))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, errors.New("CALL_TIMEOUT must be positive"))
	}
	if c.RPCRateLimit < 0 {
		errs = append(errs, errors.New("RPC_RATE_LIMIT must not be negative"))
	}
	if c.WSTriggerMinGap < 0 {
		errs = append(errs, errors.New("WS_TRIGGER_MIN_GAP must not be negative"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be json or console", c.LogFormat))
	}

	return errors.Join(errs...)
}
