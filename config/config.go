package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	ServerReadTimeout     = 15 * time.Second
	ServerShutdownTimeout = 5 * time.Second
	ClickHouseDialTimeout = 5 * time.Second
	ClickHousePingTimeout = 10 * time.Second
	DBPingTimeout         = 5 * time.Second
	TrackInsertTimeout    = 15 * time.Second
	QueryTimeout          = 10 * time.Second
	ProcessUserTimeout    = 30 * time.Second
	JWTTTL                = time.Hour
)

type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	GinMode  string `env:"GIN_MODE" envDefault:"debug"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	FEOrigin string `env:"FE_ORIGIN" envDefault:"http://localhost:3000"`

	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	RedisURL    string `env:"REDIS_URL,required,notEmpty"`

	ClickHouseHost       string `env:"CLICKHOUSE_HOST" envDefault:"localhost"`
	ClickHouseNativePort int    `env:"CLICKHOUSE_NATIVE_PORT" envDefault:"9000"`
	ClickHouseDBName     string `env:"CLICKHOUSE_DB_NAME" envDefault:"tracketl"`
	ClickHouseUsername   string `env:"CLICKHOUSE_USERNAME" envDefault:"default"`
	ClickHousePassword   string `env:"CLICKHOUSE_PASSWORD"`

	JWTSecretKey string `env:"JWT_SECRET_KEY,required,notEmpty"`
	AuthDefault  string `env:"AUTH_DEFAULT"`

	SessionPeriod            time.Duration `env:"SESSION_PERIOD" envDefault:"30m"`
	SessionSplitOnDateChange bool          `env:"SESSION_SPLIT_ON_DATE_CHANGE" envDefault:"false"`
	SessionCacheTTL          time.Duration `env:"SESSION_CACHE_TTL" envDefault:"1h"`

	ProcessWorkers          int           `env:"PROCESS_WORKERS" envDefault:"8"`
	ProcessQueueDepth       int           `env:"PROCESS_QUEUE_DEPTH" envDefault:"1024"`
	ProcessScheduleInterval time.Duration `env:"PROCESS_SCHEDULE_INTERVAL" envDefault:"0s"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) ClickHouseAddr() string {
	return fmt.Sprintf("%s:%d", c.ClickHouseHost, c.ClickHouseNativePort)
}

func (c *Config) Validate() error {
	if c.SessionPeriod <= 0 {
		return fmt.Errorf("SESSION_PERIOD must be positive, got %s", c.SessionPeriod)
	}
	if c.ProcessWorkers <= 0 {
		return fmt.Errorf("PROCESS_WORKERS must be positive, got %d", c.ProcessWorkers)
	}
	if c.ProcessQueueDepth <= 0 {
		return fmt.Errorf("PROCESS_QUEUE_DEPTH must be positive, got %d", c.ProcessQueueDepth)
	}
	if c.ProcessScheduleInterval < 0 {
		return fmt.Errorf("PROCESS_SCHEDULE_INTERVAL must not be negative, got %s", c.ProcessScheduleInterval)
	}
	if len(c.JWTSecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 characters (generate with: openssl rand -base64 32)")
	}
	if c.AuthDefault == "" {
		log.Warn().Msg("AUTH_DEFAULT is empty: static API key access disabled")
	}
	return nil
}

// Load reads an optional .env file and then parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
