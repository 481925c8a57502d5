package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BASE_URL", "")
	t.Setenv("APP_BASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000/api", cfg.App.BaseURL)
	assert.Equal(t, 3000, cfg.App.Port)
	assert.Equal(t, 8, cfg.Shortener.IDLength)
	assert.Equal(t, 5, cfg.Shortener.MaxCreateAttempts)
	assert.Equal(t, time.Hour, cfg.Shortener.CacheTTL)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "direct", cfg.Shortener.HitMode)
	assert.Equal(t, "url_records", cfg.Mongo.Collection)
}

func TestLoad_LegacyEnvOverrides(t *testing.T) {
	t.Setenv("BASE_URL", "https://sho.rt")
	t.Setenv("PORT", "8081")
	t.Setenv("CACHE_TTL", "120")
	t.Setenv("PG_HOST", "db.internal")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://sho.rt", cfg.App.BaseURL)
	assert.Equal(t, 8081, cfg.App.Port)
	assert.Equal(t, 2*time.Minute, cfg.Shortener.CacheTTL)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
}

func TestLoad_DurationStrings(t *testing.T) {
	t.Setenv("CACHE_TTL", "90m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, cfg.Shortener.CacheTTL)
}

func TestLoad_MongoBackendRequiresURI(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("MONGODB_URI", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo.uri")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			App:   AppConfig{BaseURL: "http://localhost/api"},
			Store: StoreConfig{Backend: "postgres"},
			Shortener: ShortenerConfig{
				IDLength:          8,
				MaxCreateAttempts: 3,
				CacheTTL:          time.Minute,
				HitMode:           "direct",
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing base url", mutate: func(c *Config) { c.App.BaseURL = "" }, wantErr: "base_url"},
		{name: "id too short", mutate: func(c *Config) { c.Shortener.IDLength = 6 }, wantErr: "id_length"},
		{name: "id too long", mutate: func(c *Config) { c.Shortener.IDLength = 11 }, wantErr: "id_length"},
		{name: "no attempts", mutate: func(c *Config) { c.Shortener.MaxCreateAttempts = 0 }, wantErr: "max_create_attempts"},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "cassandra" }, wantErr: "store.backend"},
		{name: "unknown hit mode", mutate: func(c *Config) { c.Shortener.HitMode = "kafka" }, wantErr: "hit_mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
