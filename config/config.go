package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// HTTP surface
	App AppConfig `mapstructure:"app"`

	// Identifier and cache-aside behaviour
	Shortener ShortenerConfig `mapstructure:"shortener"`

	// Which persistent store backs the records
	Store StoreConfig `mapstructure:"store"`

	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// MongoDB
	Mongo MongoConfig `mapstructure:"mongo"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	Port     int    `mapstructure:"port"`
	BaseURL  string `mapstructure:"base_url"`
	LogLevel string `mapstructure:"log_level"`

	// CORSOrigin is sent as Access-Control-Allow-Origin; empty allows any.
	CORSOrigin string `mapstructure:"cors_origin"`
}

// ShortenerConfig tunes the service layer.
type ShortenerConfig struct {
	IDLength          int           `mapstructure:"id_length"`
	MaxCreateAttempts int           `mapstructure:"max_create_attempts"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	CachePrefix       string        `mapstructure:"cache_prefix"`
	OperationTimeout  time.Duration `mapstructure:"operation_timeout"`
	HitTimeout        time.Duration `mapstructure:"hit_timeout"`
	// HitMode selects how store increments are dispatched: "direct" or "nats".
	HitMode string `mapstructure:"hit_mode"`
}

type StoreConfig struct {
	// Backend is "postgres" or "mongo".
	Backend string `mapstructure:"backend"`
}

type PostgresConfig struct {
	Host              string `mapstructure:"host"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	Database          string `mapstructure:"database"`
	Port              int    `mapstructure:"port"`
	SSLMode           string `mapstructure:"sslmode"`
	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type PrometheusConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	setDefaults(v)

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.App.BaseURL == "" {
		return fmt.Errorf("config: app.base_url is required")
	}
	if c.Shortener.IDLength < 8 || c.Shortener.IDLength > 10 {
		return fmt.Errorf("config: shortener.id_length must be between 8 and 10, got %d", c.Shortener.IDLength)
	}
	if c.Shortener.MaxCreateAttempts < 1 {
		return fmt.Errorf("config: shortener.max_create_attempts must be positive")
	}
	if c.Shortener.CacheTTL <= 0 {
		return fmt.Errorf("config: shortener.cache_ttl must be positive")
	}
	switch c.Store.Backend {
	case "postgres":
	case "mongo":
		if c.Mongo.URI == "" {
			return fmt.Errorf("config: mongo.uri is required for the mongo store backend")
		}
	default:
		return fmt.Errorf("config: unknown store.backend %q", c.Store.Backend)
	}
	switch c.Shortener.HitMode {
	case "direct", "nats":
	default:
		return fmt.Errorf("config: unknown shortener.hit_mode %q", c.Shortener.HitMode)
	}
	return nil
}

// secondsToDurationHook accepts bare integers as seconds (CACHE_TTL=3600)
// alongside regular duration strings.
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	return func(_ reflect.Type, t reflect.Type, data any) (any, error) {
		if t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch raw := data.(type) {
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
				return time.Duration(n) * time.Second, nil
			}
			return time.ParseDuration(raw)
		case int:
			return time.Duration(raw) * time.Second, nil
		case int64:
			return time.Duration(raw) * time.Second, nil
		case float64:
			return time.Duration(raw * float64(time.Second)), nil
		}
		return data, nil
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 3000)
	v.SetDefault("app.base_url", "http://localhost:3000/api")

	v.SetDefault("shortener.id_length", 8)
	v.SetDefault("shortener.max_create_attempts", 5)
	v.SetDefault("shortener.cache_ttl", time.Hour)
	v.SetDefault("shortener.cache_prefix", "shortlink:url:")
	v.SetDefault("shortener.operation_timeout", 3*time.Second)
	v.SetDefault("shortener.hit_timeout", 5*time.Second)
	v.SetDefault("shortener.hit_mode", "direct")

	v.SetDefault("store.backend", "postgres")

	v.SetDefault("mongo.database", "shortlink")
	v.SetDefault("mongo.collection", "url_records")

	v.SetDefault("prometheus.port", 9090)
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.env", "APP_ENV")
	v.BindEnv("app.port", "PORT")
	v.BindEnv("app.base_url", "BASE_URL")
	v.BindEnv("app.log_level", "LOG_LEVEL")
	v.BindEnv("app.cors_origin", "CORS_ORIGIN")

	// Shortener
	v.BindEnv("shortener.cache_ttl", "CACHE_TTL")
	v.BindEnv("shortener.id_length", "ID_LENGTH")
	v.BindEnv("shortener.hit_mode", "HIT_MODE")

	// Store
	v.BindEnv("store.backend", "STORE_BACKEND")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// MongoDB
	v.BindEnv("mongo.uri", "MONGODB_URI")
	v.BindEnv("mongo.database", "MONGODB_DB")

	// Redis
	v.BindEnv("redis.url", "REDIS_URL")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")

	// Prometheus
	v.BindEnv("prometheus.enabled", "PROM_ENABLED")
	v.BindEnv("prometheus.port", "PROM_PORT")
}
