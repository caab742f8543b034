package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, 30, cfg.Chat.TitleCap)
	assert.Equal(t, 10*time.Second, cfg.Completion.Timeout.Duration)
	assert.Equal(t, 30*time.Minute, cfg.Auth.SessionLifetime.Duration)
	assert.Equal(t, "http://127.0.0.1:5000/api", cfg.Completion.BaseURL)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[store]
backend = "redis"

[store.redis]
addr = "redis:6380"
db = 2

[completion]
base_url = "http://chat.local/api"
timeout = "3s"

[chat]
title_cap = 50

[auth]
session_lifetime = "5m"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "redis:6380", cfg.Store.Redis.Addr)
	assert.Equal(t, 2, cfg.Store.Redis.DB)
	assert.Equal(t, "http://chat.local/api", cfg.Completion.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Completion.Timeout.Duration)
	assert.Equal(t, 50, cfg.Chat.TitleCap)
	assert.Equal(t, 5*time.Minute, cfg.Auth.SessionLifetime.Duration)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[chat]
title_cap = 50
`)
	t.Setenv("THREADCHAT_TITLE_CAP", "12")
	t.Setenv("THREADCHAT_COMPLETION_TIMEOUT", "250ms")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TEMPERATURE", "0.2")
	t.Setenv("THREADCHAT_ALLOWED_ORIGINS", "http://a, http://b ,")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Chat.TitleCap)
	assert.Equal(t, 250*time.Millisecond, cfg.Completion.Timeout.Duration)
	assert.Equal(t, "sk-test", cfg.Server.OpenAIKey)
	assert.InDelta(t, 0.2, cfg.Server.Temperature, 1e-6)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Server.AllowedOrigins)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("THREADCHAT_TITLE_CAP", "many")
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "THREADCHAT_TITLE_CAP")
}

func TestLoad_BadFile(t *testing.T) {
	path := writeConfig(t, `[completion]
timeout = "soon"`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "firebase" }, wantErr: "store.backend"},
		{name: "zero title cap", mutate: func(c *Config) { c.Chat.TitleCap = 0 }, wantErr: "title_cap"},
		{name: "zero timeout", mutate: func(c *Config) { c.Completion.Timeout.Duration = 0 }, wantErr: "completion.timeout"},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "log.format"},
		{name: "redis without addr", mutate: func(c *Config) {
			c.Store.Backend = BackendRedis
			c.Store.Redis.Addr = ""
		}, wantErr: "store.redis.addr"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateServer(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.ValidateServer())

	cfg.Server.OpenAIKey = "sk-test"
	require.NoError(t, cfg.ValidateServer())
}
