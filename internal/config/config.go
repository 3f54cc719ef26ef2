package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"CollectiveLedger/internal/domain"
	"CollectiveLedger/internal/retry"
)

const (
	defaultTimezone      = "UTC"
	configPathEnv        = "COLLECTIVE_LEDGER_CONFIG"
	databaseDSNEnv       = "DATABASE_DSN"
	logLevelEnv          = "LOG_LEVEL"
	relayerAPIKeyEnv     = "PAYMENT_RELAYER_API_KEY"
	attestationAPIKeyEnv = "ATTESTATION_API_KEY"
	telegramTokenEnv     = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv    = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Server        ServerConfig       `yaml:"server"`
	Storage       StorageConfig      `yaml:"storage"`
	Attestation   AttestationConfig  `yaml:"attestation"`
	Payments      PaymentsConfig     `yaml:"payments"`
	Payout        PayoutConfig       `yaml:"payout"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Notifications NotificationConfig `yaml:"notifications"`
	Roster        []domain.Identity  `yaml:"roster"`
}

// LoggingConfig selects verbosity and output encoding.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// StorageConfig picks the repository backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Path   string `yaml:"path"`
}

// AttestationConfig wires the attestation gateway and its worker pool.
type AttestationConfig struct {
	Mode       string       `yaml:"mode"`
	RelayerURL string       `yaml:"relayerUrl"`
	GraphQLURL string       `yaml:"graphqlUrl"`
	APIKey     string       `yaml:"apiKey"`
	SchemaUID  string       `yaml:"schemaUid"`
	Chain      string       `yaml:"chain"`
	Attester   string       `yaml:"attester"`
	Workers    int          `yaml:"workers"`
	QueueSize  int          `yaml:"queueSize"`
	Retry      retry.Config `yaml:"retry"`
}

// PaymentsConfig wires the chain payment service.
type PaymentsConfig struct {
	Mode       string        `yaml:"mode"`
	RelayerURL string        `yaml:"relayerUrl"`
	APIKey     string        `yaml:"apiKey"`
	Timeout    time.Duration `yaml:"timeout"`
	Chains     []string      `yaml:"chains"`
}

// PayoutConfig holds the reward policy.
type PayoutConfig struct {
	WeeklyAmount string `yaml:"weeklyAmount"`
	DefaultChain string `yaml:"defaultChain"`
}

// MetricsConfig holds value-flow constants and projection caching.
type MetricsConfig struct {
	USDRate         string        `yaml:"usdRate"`
	WeeklyTargetUSD string        `yaml:"weeklyTargetUsd"`
	ProfileTTL      time.Duration `yaml:"profileTtl"`
}

// SchedulerConfig defines when the weekly report should run.
type SchedulerConfig struct {
	Enabled        bool           `yaml:"enabled"`
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

// Validate rejects settings the application cannot start with.
func (c Config) Validate() error {
	var errs []error
	if err := positiveDecimal(c.Payout.WeeklyAmount); err != nil {
		errs = append(errs, fmt.Errorf("payout.weeklyAmount: %w", err))
	}
	if _, err := domain.ParseChain(c.Payout.DefaultChain); err != nil {
		errs = append(errs, fmt.Errorf("payout.defaultChain: %w", err))
	}
	for _, chain := range c.Payments.Chains {
		if _, err := domain.ParseChain(chain); err != nil {
			errs = append(errs, fmt.Errorf("payments.chains: %w", err))
		}
	}
	if err := positiveDecimal(c.Metrics.USDRate); err != nil {
		errs = append(errs, fmt.Errorf("metrics.usdRate: %w", err))
	}
	if err := positiveDecimal(c.Metrics.WeeklyTargetUSD); err != nil {
		errs = append(errs, fmt.Errorf("metrics.weeklyTargetUsd: %w", err))
	}
	switch c.Attestation.Mode {
	case "local", "eas":
	default:
		errs = append(errs, fmt.Errorf("attestation.mode: unknown %q", c.Attestation.Mode))
	}
	switch c.Payments.Mode {
	case "simulated", "relayer":
	default:
		errs = append(errs, fmt.Errorf("payments.mode: unknown %q", c.Payments.Mode))
	}
	for _, identity := range c.Roster {
		if err := identity.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("roster[%d]: %w", identity.ID, err))
		}
	}
	return errors.Join(errs...)
}

func positiveDecimal(raw string) error {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return err
	}
	if !value.IsPositive() {
		return fmt.Errorf("must be positive, got %s", raw)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Storage.DSN = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(relayerAPIKeyEnv); v != "" {
		c.Payments.APIKey = v
	}

	if v := os.Getenv(attestationAPIKeyEnv); v != "" {
		c.Attestation.APIKey = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}
	if override.Server.ReadTimeout > 0 {
		base.Server.ReadTimeout = override.Server.ReadTimeout
	}
	if override.Server.WriteTimeout > 0 {
		base.Server.WriteTimeout = override.Server.WriteTimeout
	}
	if override.Server.ShutdownTimeout > 0 {
		base.Server.ShutdownTimeout = override.Server.ShutdownTimeout
	}

	if override.Storage.Driver != "" {
		base.Storage = override.Storage
		if base.Storage.Path == "" {
			base.Storage.Path = defaultConfig().Storage.Path
		}
	}

	if override.Attestation.Mode != "" {
		base.Attestation.Mode = override.Attestation.Mode
	}
	if override.Attestation.RelayerURL != "" {
		base.Attestation.RelayerURL = override.Attestation.RelayerURL
	}
	if override.Attestation.GraphQLURL != "" {
		base.Attestation.GraphQLURL = override.Attestation.GraphQLURL
	}
	if override.Attestation.APIKey != "" {
		base.Attestation.APIKey = override.Attestation.APIKey
	}
	if override.Attestation.SchemaUID != "" {
		base.Attestation.SchemaUID = override.Attestation.SchemaUID
	}
	if override.Attestation.Chain != "" {
		base.Attestation.Chain = override.Attestation.Chain
	}
	if override.Attestation.Attester != "" {
		base.Attestation.Attester = override.Attestation.Attester
	}
	if override.Attestation.Workers > 0 {
		base.Attestation.Workers = override.Attestation.Workers
	}
	if override.Attestation.QueueSize > 0 {
		base.Attestation.QueueSize = override.Attestation.QueueSize
	}
	if override.Attestation.Retry.MaxRetries > 0 {
		base.Attestation.Retry = override.Attestation.Retry
	}

	if override.Payments.Mode != "" {
		base.Payments.Mode = override.Payments.Mode
	}
	if override.Payments.RelayerURL != "" {
		base.Payments.RelayerURL = override.Payments.RelayerURL
	}
	if override.Payments.APIKey != "" {
		base.Payments.APIKey = override.Payments.APIKey
	}
	if override.Payments.Timeout > 0 {
		base.Payments.Timeout = override.Payments.Timeout
	}
	if len(override.Payments.Chains) > 0 {
		base.Payments.Chains = override.Payments.Chains
	}

	if override.Payout.WeeklyAmount != "" {
		base.Payout.WeeklyAmount = override.Payout.WeeklyAmount
	}
	if override.Payout.DefaultChain != "" {
		base.Payout.DefaultChain = override.Payout.DefaultChain
	}

	if override.Metrics.USDRate != "" {
		base.Metrics.USDRate = override.Metrics.USDRate
	}
	if override.Metrics.WeeklyTargetUSD != "" {
		base.Metrics.WeeklyTargetUSD = override.Metrics.WeeklyTargetUSD
	}
	if override.Metrics.ProfileTTL > 0 {
		base.Metrics.ProfileTTL = override.Metrics.ProfileTTL
	}

	if override.Scheduler.Enabled {
		base.Scheduler.Enabled = true
	}
	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if len(override.Roster) > 0 {
		base.Roster = override.Roster
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{Driver: "bolt", Path: "collective-ledger.db"},
		Attestation: AttestationConfig{
			Mode:      "local",
			SchemaUID: "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef",
			Chain:     string(domain.ChainBase),
			Workers:   4,
			QueueSize: 256,
			Retry:     retry.Single(),
		},
		Payments: PaymentsConfig{
			Mode:    "simulated",
			Timeout: 30 * time.Second,
			Chains:  []string{string(domain.ChainBase), string(domain.ChainCelo), string(domain.ChainArbitrum)},
		},
		Payout: PayoutConfig{WeeklyAmount: "0.08", DefaultChain: string(domain.ChainBase)},
		Metrics: MetricsConfig{
			USDRate:         "2500",
			WeeklyTargetUSD: "150",
			ProfileTTL:      time.Minute,
		},
		Scheduler: SchedulerConfig{Enabled: true, CronExpression: "0 9 * * 1", Timezone: defaultTimezone, location: tz},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{BotToken: "", ChatID: ""},
		},
	}
}
