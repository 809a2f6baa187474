// Package config provides configuration management for the budget bot.
// It loads configuration from environment variables, .env files and an
// optional YAML file.
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
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverJSON     = "json"
	DriverBolt     = "bolt"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres" // lib/pq
	DriverPgx      = "pgx"      // jackc/pgx stdlib
)

// Config represents the application configuration.
type Config struct {
	Signal  SignalConfig
	Ledger  LedgerConfig
	Store   StoreConfig
	Kafka   KafkaConfig
	Metrics MetricsConfig

	ConfigFile    string `env:"BUDGETBOT_CONFIG"`
	StartupNotice bool   `env:"STARTUP_NOTICE" envDefault:"true"`
	Debug         bool   `env:"DEBUG"`
}

// SignalConfig configures the transport and who may talk to the bot.
type SignalConfig struct {
	APIURL       string        `env:"SIGNAL_API_URL" envDefault:"http://localhost:8080" yaml:"api_url"`
	Number       string        `env:"SIGNAL_NUMBER" yaml:"number"`
	Primary      string        `env:"SIGNAL_PRIMARY" yaml:"primary"`
	GroupID      string        `env:"SIGNAL_GROUP_ID" yaml:"group_id"`
	GroupMembers []string      `env:"SIGNAL_GROUP_MEMBERS" envSeparator:"," yaml:"group_members"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"2s" yaml:"poll_interval"`
}

// LedgerConfig configures the pot.
type LedgerConfig struct {
	DefaultAllowance     string        `env:"DEFAULT_ALLOWANCE" envDefault:"1.00" yaml:"default_allowance"`
	CurrencySymbol       string        `env:"CURRENCY_SYMBOL" envDefault:"£" yaml:"currency_symbol"`
	HistoryLimit         int           `env:"HISTORY_LIMIT" envDefault:"100" yaml:"history_limit"`
	AccrualCheckInterval time.Duration `env:"ACCRUAL_CHECK_INTERVAL" envDefault:"1h" yaml:"accrual_check_interval"`
	Timezone             string        `env:"TIMEZONE" envDefault:"Local" yaml:"timezone"`
}

// StoreConfig selects the durable storage.
type StoreConfig struct {
	Driver      string `env:"STORE_DRIVER" envDefault:"json"`
	Path        string `env:"STORE_PATH" envDefault:"budget_state.json"`
	DatabaseURL string `env:"DATABASE_URL"`
}

// KafkaConfig enables transaction events when Brokers is set.
type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"KAFKA_TOPIC" envDefault:"budget.transactions"`
}

// MetricsConfig enables pushing metrics when PushURL is set.
type MetricsConfig struct {
	PushURL      string        `env:"METRICS_PUSH_URL"`
	Job          string        `env:"METRICS_JOB" envDefault:"budgetbot"`
	PushInterval time.Duration `env:"METRICS_PUSH_INTERVAL" envDefault:"1m"`
}

// fileConfig is the YAML layout. Fields present in the file override the
// environment.
type fileConfig struct {
	Signal *SignalConfig `yaml:"signal"`
	Ledger *LedgerConfig `yaml:"ledger"`
}

// Load loads configuration from environment variables.
// It automatically loads .env file from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Try to load .env from current directory (ignore error if not found)
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}
	if cfg.Signal.Primary == "" {
		cfg.Signal.Primary = cfg.Signal.Number
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	return &cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if fc.Signal != nil {
		mergeSignal(&c.Signal, *fc.Signal)
	}
	if fc.Ledger != nil {
		mergeLedger(&c.Ledger, *fc.Ledger)
	}
	return nil
}

func mergeSignal(base *SignalConfig, override SignalConfig) {
	if override.APIURL != "" {
		base.APIURL = override.APIURL
	}
	if override.Number != "" {
		base.Number = override.Number
	}
	if override.Primary != "" {
		base.Primary = override.Primary
	}
	if override.GroupID != "" {
		base.GroupID = override.GroupID
	}
	if len(override.GroupMembers) > 0 {
		base.GroupMembers = override.GroupMembers
	}
	if override.PollInterval > 0 {
		base.PollInterval = override.PollInterval
	}
}

func mergeLedger(base *LedgerConfig, override LedgerConfig) {
	if override.DefaultAllowance != "" {
		base.DefaultAllowance = override.DefaultAllowance
	}
	if override.CurrencySymbol != "" {
		base.CurrencySymbol = override.CurrencySymbol
	}
	if override.HistoryLimit > 0 {
		base.HistoryLimit = override.HistoryLimit
	}
	if override.AccrualCheckInterval > 0 {
		base.AccrualCheckInterval = override.AccrualCheckInterval
	}
	if override.Timezone != "" {
		base.Timezone = override.Timezone
	}
}

// Allowance returns the parsed default allowance.
func (c *Config) Allowance() (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(c.Ledger.DefaultAllowance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid DEFAULT_ALLOWANCE %q: %w", c.Ledger.DefaultAllowance, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid DEFAULT_ALLOWANCE %q: must not be negative", c.Ledger.DefaultAllowance)
	}
	return amount, nil
}

// Location returns the timezone used for history timestamps.
func (c *Config) Location() (*time.Location, error) {
	if c.Ledger.Timezone == "" || c.Ledger.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Ledger.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	return loc, nil
}

// ValidateStore checks only what is needed to open the store.
func (c *Config) ValidateStore() error {
	switch c.Store.Driver {
	case DriverJSON, DriverBolt, DriverSQLite:
		if c.Store.Path == "" {
			return errors.New("missing required configuration: STORE_PATH")
		}
	case DriverPostgres, DriverPgx:
		if c.Store.DatabaseURL == "" {
			return errors.New("missing required configuration: DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	return nil
}

// Validate validates the configuration needed to run the bot and reports
// every problem at once.
func (c *Config) Validate() error {
	var problems []string
	if c.Signal.Number == "" {
		problems = append(problems, "SIGNAL_NUMBER is required")
	}
	if c.Signal.APIURL == "" {
		problems = append(problems, "SIGNAL_API_URL is required")
	}
	if err := c.ValidateStore(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := c.Allowance(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := c.Location(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Ledger.HistoryLimit < 10 {
		problems = append(problems, "HISTORY_LIMIT must be at least 10")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s\nPlease check your .env file or environment variables", strings.Join(problems, "; "))
	}
	return nil
}
