package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Gateway  GatewayConfig
	Autosave AutosaveConfig
	Sync     SyncConfig
	Storage  StorageConfig
	Stats    StatsConfig
	Log      LogConfig
}

type GatewayConfig struct {
	BaseURL   string
	Timeout   time.Duration
	Token     string
	RateLimit float64
	Burst     int
}

type AutosaveConfig struct {
	Delay time.Duration
}

type SyncConfig struct {
	Schedule   string
	Force      bool
	PruneAfter time.Duration
}

type StorageConfig struct {
	DataDir   string
	Snapshots bool
}

type StatsConfig struct {
	CacheTTL time.Duration
}

type LogConfig struct {
	Level string
}

// Load reads configuration from, in increasing precedence: built-in
// defaults, the JSON file at $XDG_CONFIG_HOME/racenotes/config.json, a .env
// file in the working directory, and RACENOTES_* environment variables.
//
// The gateway token falls back to the platform secret store (macOS
// Keychain, or a secrets.json file elsewhere) when no other source sets it.
func Load() (Config, error) {
	return loadWith(Path(), ".env", keychainReader{})
}

// LoadFrom is Load with an explicit config file and no .env file.
func LoadFrom(path string) (Config, error) {
	return loadWith(path, "", keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(path, envFile string, kc keychain) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("reading %s: %w", envFile, err)
		}
	}

	v, err := newViper(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	for _, s := range specs {
		if err := s.load(v, &cfg); err != nil {
			return Config{}, err
		}
	}

	if cfg.Gateway.Token == "" {
		if tok, err := kc.Get("racenotes", "gateway_token"); err == nil && tok != "" {
			cfg.Gateway.Token = tok
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// newViper returns a viper instance with defaults, env bindings and, when
// path exists, the file at path.
func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("json")
	for _, s := range specs {
		v.SetDefault(s.key, s.def)
		if err := v.BindEnv(s.key, s.env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", s.env, err)
		}
	}
	if path == "" {
		return v, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return v, nil
}

// Validate checks values that would otherwise fail at first use.
func (c Config) Validate() error {
	u, err := url.Parse(c.Gateway.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid gateway.base_url %q: must be an absolute http(s) URL", c.Gateway.BaseURL)
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("invalid gateway.timeout %s: must be positive", c.Gateway.Timeout)
	}
	if c.Gateway.RateLimit < 0 || c.Gateway.Burst < 0 {
		return fmt.Errorf("invalid gateway rate limit: rate and burst must not be negative")
	}
	if c.Autosave.Delay <= 0 {
		return fmt.Errorf("invalid autosave.delay %s: must be positive", c.Autosave.Delay)
	}
	if c.Stats.CacheTTL <= 0 {
		return fmt.Errorf("invalid stats.cache_ttl %s: must be positive", c.Stats.CacheTTL)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q: want debug, info, warn or error", c.Log.Level)
	}
	return nil
}

// Path returns the location of the JSON config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "racenotes", "config.json")
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "racenotes-data"
		}
	}
	return filepath.Join(dir, "racenotes")
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
