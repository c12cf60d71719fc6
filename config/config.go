// config/config.go
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is everything the economy service reads from the environment.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Port     string `env:"PORT" envDefault:"5200"`

	// Token the gateway presents on every request.
	GatewayToken   string   `env:"GAME_SERVICE_TOKEN,required,notEmpty"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL    string `env:"DATABASE_URL,required,notEmpty"`

	StoreTimeout  time.Duration `env:"STORE_TIMEOUT" envDefault:"3s"`
	RetryAttempts uint          `env:"RETRY_ATTEMPTS" envDefault:"3"`
	LockWait      time.Duration `env:"LOCK_WAIT" envDefault:"5s"`

	// Points needed per token earned on a rewarded quiz attempt.
	QuizTokenDivisor int64 `env:"QUIZ_TOKEN_DIVISOR" envDefault:"5"`
	MaxRawScore      int64 `env:"MAX_RAW_SCORE" envDefault:"1000"`

	SyncServiceURL   string        `env:"SYNC_SERVICE_URL"`
	SyncInterval     time.Duration `env:"SYNC_INTERVAL" envDefault:"1m"`
	AuthServiceURL   string        `env:"AUTH_SERVICE_URL"`
	AuthServiceToken string        `env:"AUTH_SERVICE_TOKEN"`

	R2 R2Config `envPrefix:"R2_"`

	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"10m"`
	ArchiveInterval   time.Duration `env:"ARCHIVE_INTERVAL" envDefault:"24h"`
}

type R2Config struct {
	AccountID       string `env:"ACCOUNT_ID"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	AccessKeySecret string `env:"ACCESS_KEY_SECRET"`
	Bucket          string `env:"BUCKET_NAME"`
}

// Enabled reports whether ledger archival has somewhere to write.
func (c R2Config) Enabled() bool {
	return c.Bucket != "" && c.AccountID != ""
}

// Load reads .env (if present) and parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return Parse()
}

// Parse reads the process environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	for i, origin := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.QuizTokenDivisor <= 0 {
		return fmt.Errorf("QUIZ_TOKEN_DIVISOR must be positive, got %d", c.QuizTokenDivisor)
	}
	if c.MaxRawScore <= 0 {
		return fmt.Errorf("MAX_RAW_SCORE must be positive, got %d", c.MaxRawScore)
	}
	if c.LockWait <= 0 {
		return fmt.Errorf("LOCK_WAIT must be positive")
	}
	if c.RetryAttempts == 0 {
		return fmt.Errorf("RETRY_ATTEMPTS must be at least 1")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
