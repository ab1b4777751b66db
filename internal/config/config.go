package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
	StoreDriverRedis    = "redis"
)

type Config struct {
	CollectorURL      string        `env:"COLLECTOR_URL,required=true"`
	CollectorTimeout  time.Duration `env:"COLLECTOR_TIMEOUT,default=15s"`
	StoreDriver       string        `env:"STORE_DRIVER,default=sqlite"`
	SQLitePath        string        `env:"SQLITE_PATH,default=outbox.db"`
	DatabaseDSN       string        `env:"DATABASE_DSN"`
	RedisURL          string        `env:"REDIS_URL"`
	FormTypes         string        `env:"FORM_TYPES,default=DADOS ACIDENTE;RECIBO BATIDA"`
	ResyncGracePeriod time.Duration `env:"RESYNC_GRACE_PERIOD,default=5s"`
	ProbeURL          string        `env:"PROBE_URL"`
	ProbeInterval     time.Duration `env:"PROBE_INTERVAL,default=10s"`
	RateLimitPerSec   int           `env:"RATE_LIMIT_PER_SEC,default=5"`
	APIPort           int           `env:"API_PORT,default=8080"`
	LogLevel          string        `env:"LOG_LEVEL,default=info"`
	LogFile           string        `env:"LOG_FILE"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if strings.TrimSpace(cfg.ProbeURL) == "" {
		cfg.ProbeURL = cfg.CollectorURL
	}
	return &cfg, nil
}

// FormTypeList splits FORM_TYPES on ';'. Form names may contain spaces and
// commas, so neither is usable as a separator.
func (c *Config) FormTypeList() []string {
	parts := strings.Split(c.FormTypes, ";")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.CollectorURL) == "" {
		return fmt.Errorf("COLLECTOR_URL is required")
	}

	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))

	switch c.StoreDriver {
	case StoreDriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case StoreDriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("DATABASE_DSN is required for the postgres store")
		}
	case StoreDriverRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("REDIS_URL is required for the redis store")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	if len(c.FormTypeList()) == 0 {
		return fmt.Errorf("FORM_TYPES must list at least one form type")
	}
	return nil
}
