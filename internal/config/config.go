// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. COPYBOT_SERVER_ADDR.
const EnvPrefix = "COPYBOT"

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Helius     HeliusConfig     `mapstructure:"helius"`
	Watcher    WatcherConfig    `mapstructure:"watcher"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Executor   ExecutorConfig   `mapstructure:"executor"`
	RPC        RPCConfig        `mapstructure:"rpc"`
	Bots       BotsConfig       `mapstructure:"bots"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds the HTTP listeners.
type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	// Production enables the durable transaction cache and log.
	Production bool `mapstructure:"production"`
	// APIKey guards the admin routes. Empty leaves them open.
	APIKey string `mapstructure:"api_key"`
}

// HeliusConfig holds the upstream transaction stream endpoints.
type HeliusConfig struct {
	PrimaryURL       string        `mapstructure:"primary_url"`
	BackupURL        string        `mapstructure:"backup_url"`
	BackupGrace      time.Duration `mapstructure:"backup_grace"`
	WatchedAddresses []string      `mapstructure:"watched_addresses"`
}

// WatcherConfig tunes the stream watcher.
type WatcherConfig struct {
	CacheSize        int           `mapstructure:"cache_size"`
	DedupTTL         time.Duration `mapstructure:"dedup_ttl"`
	HealthInterval   time.Duration `mapstructure:"health_interval"`
	SilenceThreshold time.Duration `mapstructure:"silence_threshold"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	BaseBackoff      time.Duration `mapstructure:"base_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
	MaxReconnects    int           `mapstructure:"max_reconnects"`
	RestoreLimit     int           `mapstructure:"restore_limit"`
}

// RedisConfig holds the durable cache connection.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TxTTL    time.Duration `mapstructure:"tx_ttl"`
}

// PostgresConfig holds the bot configuration store. Empty DSN selects the
// in-memory store.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ClickHouseConfig holds the trade analytics sink. Empty DSN disables it.
type ClickHouseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// KafkaConfig holds the export topics. No brokers disables export.
type KafkaConfig struct {
	Brokers    []string `mapstructure:"brokers"`
	TxTopic    string   `mapstructure:"tx_topic"`
	TradeTopic string   `mapstructure:"trade_topic"`
}

// ExecutorConfig holds the trade execution service client settings.
type ExecutorConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	RateLimit  float64       `mapstructure:"rate_limit"`
	Burst      int           `mapstructure:"burst"`
}

// RPCConfig holds the Solana JSON-RPC endpoint used by bot balance checks.
type RPCConfig struct {
	URL string `mapstructure:"url"`
}

// BotsConfig holds bot worker settings.
type BotsConfig struct {
	WorkerPath      string        `mapstructure:"worker_path"`
	StatusInterval  time.Duration `mapstructure:"status_interval"`
	StopTimeout     time.Duration `mapstructure:"stop_timeout"`
	ReserveLamports uint64        `mapstructure:"reserve_lamports"`
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// Load loads configuration from an optional file, .env and environment
// variables, in increasing order of precedence.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// bindEnvVars maps the conventional variable names used by deployments onto
// config keys, next to their COPYBOT_ forms.
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("helius.primary_url", "COPYBOT_HELIUS_PRIMARY_URL", "HELIUS_WS_URL")
	v.BindEnv("helius.backup_url", "COPYBOT_HELIUS_BACKUP_URL", "HELIUS_BACKUP_WS_URL")
	v.BindEnv("executor.base_url", "COPYBOT_EXECUTOR_BASE_URL", "EXECUTOR_URL")
	v.BindEnv("executor.api_key", "COPYBOT_EXECUTOR_API_KEY", "EXECUTOR_API_KEY")
	v.BindEnv("postgres.dsn", "COPYBOT_POSTGRES_DSN", "DATABASE_URL")
	v.BindEnv("clickhouse.dsn", "COPYBOT_CLICKHOUSE_DSN", "CLICKHOUSE_DSN")
	v.BindEnv("redis.addr", "COPYBOT_REDIS_ADDR", "REDIS_ADDR")
	v.BindEnv("redis.password", "COPYBOT_REDIS_PASSWORD", "REDIS_PASSWORD")
	v.BindEnv("rpc.url", "COPYBOT_RPC_URL", "SOLANA_RPC_URL")
	v.BindEnv("kafka.brokers", "COPYBOT_KAFKA_BROKERS", "KAFKA_BROKERS")
	v.BindEnv("log.level", "COPYBOT_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv("server.api_key", "COPYBOT_SERVER_API_KEY", "ADMIN_API_KEY")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.production", false)
	v.SetDefault("server.api_key", "")

	v.SetDefault("helius.primary_url", "")
	v.SetDefault("helius.backup_url", "")
	v.SetDefault("helius.backup_grace", "5s")
	v.SetDefault("helius.watched_addresses", []string{})

	v.SetDefault("watcher.cache_size", 1000)
	v.SetDefault("watcher.dedup_ttl", "60s")
	v.SetDefault("watcher.health_interval", "5s")
	v.SetDefault("watcher.silence_threshold", "10s")
	v.SetDefault("watcher.ping_interval", "30s")
	v.SetDefault("watcher.base_backoff", "5s")
	v.SetDefault("watcher.max_backoff", "60s")
	v.SetDefault("watcher.max_reconnects", 10)
	v.SetDefault("watcher.restore_limit", 300)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.tx_ttl", "24h")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("clickhouse.dsn", "")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.tx_topic", "copybot.tx-events")
	v.SetDefault("kafka.trade_topic", "copybot.trades")

	v.SetDefault("executor.base_url", "")
	v.SetDefault("executor.api_key", "")
	v.SetDefault("executor.timeout", "60s")
	v.SetDefault("executor.retries", 2)
	v.SetDefault("executor.retry_delay", "1s")
	v.SetDefault("executor.rate_limit", 5)
	v.SetDefault("executor.burst", 5)

	v.SetDefault("rpc.url", "")

	v.SetDefault("bots.worker_path", "./botworker")
	v.SetDefault("bots.status_interval", "1s")
	v.SetDefault("bots.stop_timeout", "15s")
	v.SetDefault("bots.reserve_lamports", 10_000_000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate checks settings shared by every process.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %s", c.Log.Level)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	if c.Executor.Retries < 0 {
		return fmt.Errorf("executor.retries cannot be negative")
	}
	if c.Executor.RateLimit <= 0 || c.Executor.Burst <= 0 {
		return fmt.Errorf("executor.rate_limit and executor.burst must be positive")
	}
	if c.Watcher.MaxBackoff < c.Watcher.BaseBackoff {
		return fmt.Errorf("watcher.max_backoff must not be below watcher.base_backoff")
	}
	return nil
}

// ValidateServer checks settings the server process cannot run without.
func (c *Config) ValidateServer() error {
	if c.Helius.PrimaryURL == "" {
		return fmt.Errorf("helius.primary_url is required")
	}
	if c.Bots.WorkerPath == "" {
		return fmt.Errorf("bots.worker_path is required")
	}
	if len(c.Kafka.Brokers) > 0 && (c.Kafka.TxTopic == "" || c.Kafka.TradeTopic == "") {
		return fmt.Errorf("kafka topics are required when brokers are set")
	}
	return nil
}

// ValidateWorker checks settings a bot worker cannot run without.
func (c *Config) ValidateWorker() error {
	if c.Executor.BaseURL == "" {
		return fmt.Errorf("executor.base_url is required")
	}
	return nil
}
