package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName         = "OctraWallet"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultRPCEndpoint     = "https://octra.network"
	defaultExplorerBaseURL = "https://octrascan.io/tx/"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultBalanceCacheTTL = 5 * time.Minute
	defaultSubmitInterval  = 300 * time.Millisecond
	defaultCohortCap       = 50
	defaultMaxActive       = 100
	defaultSettleDelay     = time.Minute
	defaultReturnSpacing   = 2 * time.Second
	defaultCycleCooldown   = 5 * time.Minute
	defaultRetryCooldown   = 10 * time.Minute
	defaultAutoDuration    = time.Hour
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	AppEnv   string
	Port     string
	LogLevel string

	DatabaseURL string
	RedisURL    string

	RPCEndpoint     string
	ExplorerBaseURL string

	// MasterKey seals private keys and mnemonics at rest.
	MasterKey string
	// ServiceToken guards the HTTP surface; empty disables auth (development only).
	ServiceToken string
	// TelegramBotToken enables Telegram notifications when set.
	TelegramBotToken string

	ShutdownPeriod  time.Duration
	IdempotencyTTL  time.Duration
	BalanceCacheTTL time.Duration
	SubmitInterval  time.Duration

	AutoCohortCap     int
	AutoMaxActive     int
	AutoSettleDelay   time.Duration
	AutoReturnSpacing time.Duration
	AutoCycleCooldown time.Duration
	AutoRetryCooldown time.Duration
	AutoDuration      time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           getEnv("APP_ENV", defaultAppEnv),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		RPCEndpoint:      getEnv("OCTRA_RPC_URL", defaultRPCEndpoint),
		ExplorerBaseURL:  getEnv("EXPLORER_BASE_URL", defaultExplorerBaseURL),
		MasterKey:        os.Getenv("MASTER_KEY"),
		ServiceToken:     os.Getenv("SERVICE_TOKEN"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		ShutdownPeriod:   defaultShutdownDelay,
		IdempotencyTTL:   defaultIdempotencyTTL,
		BalanceCacheTTL:  defaultBalanceCacheTTL,
		SubmitInterval:   defaultSubmitInterval,

		AutoCohortCap:     defaultCohortCap,
		AutoMaxActive:     defaultMaxActive,
		AutoSettleDelay:   defaultSettleDelay,
		AutoReturnSpacing: defaultReturnSpacing,
		AutoCycleCooldown: defaultCycleCooldown,
		AutoRetryCooldown: defaultRetryCooldown,
		AutoDuration:      defaultAutoDuration,
	}

	durations := []struct {
		envVar string
		dst    *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownPeriod},
		{"IDEMPOTENCY_TTL", &cfg.IdempotencyTTL},
		{"BALANCE_CACHE_TTL", &cfg.BalanceCacheTTL},
		{"SUBMIT_INTERVAL", &cfg.SubmitInterval},
		{"AUTO_SETTLE_DELAY", &cfg.AutoSettleDelay},
		{"AUTO_RETURN_SPACING", &cfg.AutoReturnSpacing},
		{"AUTO_CYCLE_COOLDOWN", &cfg.AutoCycleCooldown},
		{"AUTO_RETRY_COOLDOWN", &cfg.AutoRetryCooldown},
		{"AUTO_DURATION", &cfg.AutoDuration},
	}
	for _, d := range durations {
		if v := os.Getenv(d.envVar); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", d.envVar, err)
			}
			*d.dst = parsed
		}
	}

	counts := []struct {
		envVar string
		dst    *int
	}{
		{"AUTO_COHORT_CAP", &cfg.AutoCohortCap},
		{"AUTO_MAX_ACTIVE", &cfg.AutoMaxActive},
	}
	for _, cv := range counts {
		if v := os.Getenv(cv.envVar); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return Config{}, fmt.Errorf("invalid %s: %q", cv.envVar, v)
			}
			*cv.dst = n
		}
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	if cfg.MasterKey == "" {
		return Config{}, fmt.Errorf("MASTER_KEY must be set")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
