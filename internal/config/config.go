package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

type Config struct {
	// Core
	BotToken    string `env:"BOT_TOKEN,required"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"5"`

	// Admin
	AdminIDs []int64 `env:"ADMIN_IDS" envSeparator:","`

	// Ops HTTP server
	Port      int    `env:"PORT" envDefault:"3000"`
	OpsAPIKey string `env:"OPS_API_KEY"`

	// Saga and escrow
	RemoteCallTimeout  time.Duration `env:"REMOTE_CALL_TIMEOUT" envDefault:"5s"`
	SagaReplayInterval time.Duration `env:"SAGA_REPLAY_INTERVAL" envDefault:"1m"`
	SagaMaxAttempts    int           `env:"SAGA_MAX_ATTEMPTS" envDefault:"10"`
	SagaStaleAfter     time.Duration `env:"SAGA_STALE_AFTER" envDefault:"2m"`
	OrphanHoldAge      time.Duration `env:"ORPHAN_HOLD_AGE" envDefault:"10m"`
	InitialBalance     string        `env:"INITIAL_BALANCE" envDefault:"0"`

	// Event dates are read in this zone
	Timezone string `env:"TIMEZONE" envDefault:"Africa/Cairo"`
	location *time.Location

	// Bot behavior
	DropPendingUpdates bool `env:"BOT_DROP_PENDING_UPDATES" envDefault:"false"`

	// Telegram logging
	LogTelegramChatID int64 `env:"LOG_TELEGRAM_CHAT_ID"`
	LogTopicError     int   `env:"LOG_TOPIC_ERROR"`
	LogTopicEscrow    int   `env:"LOG_TOPIC_ESCROW"`
	LogTopicSaga      int   `env:"LOG_TOPIC_SAGA"`
	LogTopicTasks     int   `env:"LOG_TOPIC_TASKS"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RemoteCallTimeout <= 0 {
		return fmt.Errorf("REMOTE_CALL_TIMEOUT must be positive")
	}
	if c.OrphanHoldAge <= HoldAdoptWindow {
		return fmt.Errorf("ORPHAN_HOLD_AGE must be longer than %s", HoldAdoptWindow)
	}
	if c.SagaMaxAttempts < 1 {
		return fmt.Errorf("SAGA_MAX_ATTEMPTS must be at least 1")
	}
	bal, err := decimal.NewFromString(c.InitialBalance)
	if err != nil {
		return fmt.Errorf("parse INITIAL_BALANCE: %w", err)
	}
	if bal.IsNegative() {
		return fmt.Errorf("INITIAL_BALANCE must not be negative")
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("load TIMEZONE: %w", err)
	}
	c.location = loc
	return nil
}

// StartingBalance is the balance credited to newly registered users.
func (c *Config) StartingBalance() decimal.Decimal {
	bal, err := decimal.NewFromString(c.InitialBalance)
	if err != nil {
		return decimal.Zero
	}
	return bal
}

// Location is the parsed TIMEZONE, UTC when unset.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c *Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

func (c *Config) AdminIDsString() string {
	parts := make([]string, len(c.AdminIDs))
	for i, id := range c.AdminIDs {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}
