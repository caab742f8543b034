// Package config loads threadchat configuration.
//
// Values come from, in increasing precedence: built-in defaults,
// ~/.threadchat/config.toml (or the path given), a .env file in the working
// directory and THREADCHAT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config is the complete configuration for both binaries.
type Config struct {
	Store      StoreConfig      `toml:"store"`
	Completion CompletionConfig `toml:"completion"`
	Chat       ChatConfig       `toml:"chat"`
	Auth       AuthConfig       `toml:"auth"`
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
}

// StoreConfig selects and configures the thread store.
type StoreConfig struct {
	Backend    string      `toml:"backend"`
	SQLitePath string      `toml:"sqlite_path"`
	Redis      RedisConfig `toml:"redis"`
}

// RedisConfig holds the redis connection settings.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// CompletionConfig points the client at the chat completion endpoint.
type CompletionConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout Duration `toml:"timeout"`
}

// ChatConfig tunes the message dispatcher.
type ChatConfig struct {
	TitleCap int `toml:"title_cap"`
}

// AuthConfig configures the identity provider.
type AuthConfig struct {
	DatabasePath    string   `toml:"database_path"`
	Secret          string   `toml:"secret"`
	SessionLifetime Duration `toml:"session_lifetime"`
}

// LogConfig configures zerolog output.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "console" or "json"
	File   string `toml:"file"`
}

// ServerConfig configures the completion endpoint server.
type ServerConfig struct {
	Addr           string   `toml:"addr"`
	OpenAIKey      string   `toml:"openai_api_key"`
	OpenAIBaseURL  string   `toml:"openai_base_url"`
	Model          string   `toml:"model"`
	MaxTokens      int      `toml:"max_tokens"`
	Temperature    float32  `toml:"temperature"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Duration is a time.Duration written as "10s" or "30m" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Dir returns the per-user configuration directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".threadchat"
	}
	return filepath.Join(home, ".threadchat")
}

// DefaultPath is the config file read when no path is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.toml")
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := Dir()
	return &Config{
		Store: StoreConfig{
			Backend:    BackendSQLite,
			SQLitePath: filepath.Join(dir, "threads.db"),
			Redis:      RedisConfig{Addr: "127.0.0.1:6379"},
		},
		Completion: CompletionConfig{
			BaseURL: "http://127.0.0.1:5000/api",
			Timeout: Duration{10 * time.Second},
		},
		Chat: ChatConfig{TitleCap: 30},
		Auth: AuthConfig{
			DatabasePath:    filepath.Join(dir, "users.db"),
			SessionLifetime: Duration{30 * time.Minute},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			File:   filepath.Join(dir, "threadchat.log"),
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:5000",
			Model:          "gpt-3.5-turbo",
			MaxTokens:      150,
			Temperature:    0.7,
			AllowedOrigins: []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		},
	}
}

// Load reads the config file at path (DefaultPath when empty), applies the
// environment and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Store.Backend, "THREADCHAT_STORE_BACKEND")
	setString(&c.Store.SQLitePath, "THREADCHAT_SQLITE_PATH")
	setString(&c.Store.Redis.Addr, "THREADCHAT_REDIS_ADDR")
	setString(&c.Store.Redis.Username, "THREADCHAT_REDIS_USERNAME")
	setString(&c.Store.Redis.Password, "THREADCHAT_REDIS_PASSWORD")
	setString(&c.Completion.BaseURL, "THREADCHAT_COMPLETION_URL")
	setString(&c.Auth.DatabasePath, "THREADCHAT_AUTH_DB")
	setString(&c.Auth.Secret, "THREADCHAT_AUTH_SECRET")
	setString(&c.Log.Level, "THREADCHAT_LOG_LEVEL")
	setString(&c.Log.Format, "THREADCHAT_LOG_FORMAT")
	setString(&c.Log.File, "THREADCHAT_LOG_FILE")
	setString(&c.Server.Addr, "THREADCHAT_SERVER_ADDR")
	setString(&c.Server.OpenAIKey, "OPENAI_API_KEY")
	setString(&c.Server.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&c.Server.Model, "OPENAI_MODEL")

	if v, ok := os.LookupEnv("THREADCHAT_ALLOWED_ORIGINS"); ok {
		c.Server.AllowedOrigins = splitList(v)
	}

	var err error
	if c.Store.Redis.DB, err = envInt("THREADCHAT_REDIS_DB", c.Store.Redis.DB); err != nil {
		return err
	}
	if c.Chat.TitleCap, err = envInt("THREADCHAT_TITLE_CAP", c.Chat.TitleCap); err != nil {
		return err
	}
	if c.Server.MaxTokens, err = envInt("MAX_TOKENS", c.Server.MaxTokens); err != nil {
		return err
	}
	if c.Completion.Timeout.Duration, err = envDuration("THREADCHAT_COMPLETION_TIMEOUT", c.Completion.Timeout.Duration); err != nil {
		return err
	}
	if c.Auth.SessionLifetime.Duration, err = envDuration("THREADCHAT_SESSION_LIFETIME", c.Auth.SessionLifetime.Duration); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("TEMPERATURE"); ok {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("TEMPERATURE: %w", err)
		}
		c.Server.Temperature = float32(f)
	}
	return nil
}

// Validate checks the settings shared by both binaries.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			problems = append(problems, "store.sqlite_path must be set for the sqlite backend")
		}
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			problems = append(problems, "store.redis.addr must be set for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.backend %q is not one of sqlite, redis", c.Store.Backend))
	}
	if c.Completion.BaseURL == "" {
		problems = append(problems, "completion.base_url must be set")
	}
	if c.Completion.Timeout.Duration <= 0 {
		problems = append(problems, "completion.timeout must be positive")
	}
	if c.Chat.TitleCap <= 0 {
		problems = append(problems, "chat.title_cap must be positive")
	}
	if c.Auth.SessionLifetime.Duration <= 0 {
		problems = append(problems, "auth.session_lifetime must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is not one of console, json", c.Log.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ValidateServer checks the settings only the completion server needs.
func (c *Config) ValidateServer() error {
	if c.Server.OpenAIKey == "" {
		return errors.New("OPENAI_API_KEY environment variable is required")
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr must be set")
	}
	if c.Server.MaxTokens <= 0 {
		return errors.New("server.max_tokens must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
