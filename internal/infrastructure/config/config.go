package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config is the full process configuration, read from the environment.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DB_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"pulsechat.db"`
	RedisURL    string `env:"REDIS_URL"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	TypingQuietInterval time.Duration `env:"TYPING_QUIET_INTERVAL" envDefault:"3s"`
	MirrorKeyTTL        time.Duration `env:"MIRROR_PRESENCE_TTL" envDefault:"10m"`

	Postgres  PostgresConfig
	Retention RetentionConfig
	Queue     QueueConfig
}

// PostgresConfig sizes the pgx pool used when STORE_DRIVER=postgres.
type PostgresConfig struct {
	MaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns        int32         `env:"DB_MIN_CONNS" envDefault:"0"`
	ConnectTimeout  time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"5s"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
}

// RetentionConfig controls the eviction scheduler.
type RetentionConfig struct {
	Enabled          bool          `env:"RETENTION_ENABLED" envDefault:"true"`
	MessageTTL       time.Duration `env:"RETENTION_MESSAGE_TTL" envDefault:"168h"`
	InactivityTTL    time.Duration `env:"RETENTION_INACTIVITY_TTL" envDefault:"48h"`
	MessageCron      string        `env:"RETENTION_MESSAGE_CRON" envDefault:"0 * * * *"`
	ConversationCron string        `env:"RETENTION_CONVERSATION_CRON" envDefault:"0 */6 * * *"`
	BatchSize        int           `env:"RETENTION_BATCH_SIZE" envDefault:"500"`
}

// QueueConfig configures the asynq worker that runs when REDIS_URL is set.
type QueueConfig struct {
	Concurrency int    `env:"ASYNQ_CONCURRENCY" envDefault:"10"`
	Queues      string `env:"ASYNQ_QUEUES" envDefault:"default=1,chat=1"`
}

// Load reads an optional .env file and parses the environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load env file: %w", err)
	}
	return Parse()
}

// Parse reads the configuration from the current environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DB_URL is required when STORE_DRIVER=postgres"))
		}
		if c.Postgres.MaxConns <= 0 {
			errs = append(errs, errors.New("DB_MAX_CONNS must be positive"))
		}
		if c.Postgres.MinConns < 0 || c.Postgres.MinConns > c.Postgres.MaxConns {
			errs = append(errs, errors.New("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS"))
		}
		if c.Postgres.ConnectTimeout <= 0 {
			errs = append(errs, errors.New("DB_CONNECT_TIMEOUT must be positive"))
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required when STORE_DRIVER=sqlite"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	if c.TypingQuietInterval <= 0 {
		errs = append(errs, errors.New("TYPING_QUIET_INTERVAL must be positive"))
	}
	if c.Retention.MessageTTL <= 0 {
		errs = append(errs, errors.New("RETENTION_MESSAGE_TTL must be positive"))
	}
	if c.Retention.InactivityTTL <= 0 {
		errs = append(errs, errors.New("RETENTION_INACTIVITY_TTL must be positive"))
	}
	if c.Retention.BatchSize <= 0 {
		errs = append(errs, errors.New("RETENTION_BATCH_SIZE must be positive"))
	}
	g := gronx.New()
	if !g.IsValid(c.Retention.MessageCron) {
		errs = append(errs, fmt.Errorf("invalid RETENTION_MESSAGE_CRON %q", c.Retention.MessageCron))
	}
	if !g.IsValid(c.Retention.ConversationCron) {
		errs = append(errs, fmt.Errorf("invalid RETENTION_CONVERSATION_CRON %q", c.Retention.ConversationCron))
	}
	if c.Queue.Concurrency <= 0 {
		errs = append(errs, errors.New("ASYNQ_CONCURRENCY must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// QueueWeights parses ASYNQ_QUEUES, e.g. "critical=6,default=3,low=1".
// Malformed weights fall back to 1; an empty result falls back to default=1,chat=1.
func (q QueueConfig) QueueWeights() map[string]int {
	res := make(map[string]int)
	for _, part := range strings.Split(q.Queues, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		name := strings.TrimSpace(kv[0])
		if name == "" {
			continue
		}
		w := 1
		if len(kv) == 2 {
			if i, err := strconv.Atoi(strings.TrimSpace(kv[1])); err == nil && i > 0 {
				w = i
			}
		}
		res[name] = w
	}
	if len(res) == 0 {
		return map[string]int{"default": 1, "chat": 1}
	}
	return res
}
