package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	def     any
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "gateway.base_url", typ: kString, env: "RACENOTES_GATEWAY_BASE_URL", def: "http://localhost:8000",
		apply:   func(cfg *Config, v any) { cfg.Gateway.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Gateway.BaseURL },
	},
	{
		key: "gateway.timeout", typ: kDuration, env: "RACENOTES_GATEWAY_TIMEOUT", def: "10s",
		apply:   func(cfg *Config, v any) { cfg.Gateway.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Gateway.Timeout },
	},
	{
		key: "gateway.token", typ: kString, env: "RACENOTES_GATEWAY_TOKEN", def: "",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gateway.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Gateway.Token },
	},
	{
		key: "gateway.rate_limit", typ: kFloat, env: "RACENOTES_GATEWAY_RATE_LIMIT", def: 10.0,
		apply:   func(cfg *Config, v any) { cfg.Gateway.RateLimit = v.(float64) },
		extract: func(cfg Config) any { return cfg.Gateway.RateLimit },
	},
	{
		key: "gateway.burst", typ: kInt, env: "RACENOTES_GATEWAY_BURST", def: 5,
		apply:   func(cfg *Config, v any) { cfg.Gateway.Burst = v.(int) },
		extract: func(cfg Config) any { return cfg.Gateway.Burst },
	},
	{
		key: "autosave.delay", typ: kDuration, env: "RACENOTES_AUTOSAVE_DELAY", def: "2s",
		apply:   func(cfg *Config, v any) { cfg.Autosave.Delay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Autosave.Delay },
	},
	{
		key: "sync.schedule", typ: kString, env: "RACENOTES_SYNC_SCHEDULE", def: "0 0 * * * *",
		apply:   func(cfg *Config, v any) { cfg.Sync.Schedule = v.(string) },
		extract: func(cfg Config) any { return cfg.Sync.Schedule },
	},
	{
		key: "sync.force", typ: kBool, env: "RACENOTES_SYNC_FORCE", def: false,
		apply:   func(cfg *Config, v any) { cfg.Sync.Force = v.(bool) },
		extract: func(cfg Config) any { return cfg.Sync.Force },
	},
	{
		key: "sync.prune_after", typ: kDuration, env: "RACENOTES_SYNC_PRUNE_AFTER", def: "720h",
		apply:   func(cfg *Config, v any) { cfg.Sync.PruneAfter = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Sync.PruneAfter },
	},
	{
		key: "storage.data_dir", typ: kString, env: "RACENOTES_STORAGE_DATA_DIR", def: defaultDataDir(),
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.snapshots", typ: kBool, env: "RACENOTES_STORAGE_SNAPSHOTS", def: true,
		apply:   func(cfg *Config, v any) { cfg.Storage.Snapshots = v.(bool) },
		extract: func(cfg Config) any { return cfg.Storage.Snapshots },
	},
	{
		key: "stats.cache_ttl", typ: kDuration, env: "RACENOTES_STATS_CACHE_TTL", def: "5m",
		apply:   func(cfg *Config, v any) { cfg.Stats.CacheTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Stats.CacheTTL },
	},
	{
		key: "log.level", typ: kString, env: "RACENOTES_LOG_LEVEL", def: "info",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

// load reads s from v into cfg. viper's Get* helpers return zero values on
// bad input, so the raw value is parsed here to surface a clear error.
func (s keySpec) load(v *viper.Viper, cfg *Config) error {
	parsed, err := s.parse(fmt.Sprint(v.Get(s.key)))
	if err != nil {
		return fmt.Errorf("config %s: %w", s.key, err)
	}
	s.apply(cfg, parsed)
	return nil
}

func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		i, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", raw)
		}
		return i, nil
	case kBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid bool %q", raw)
		}
		return b, nil
	case kFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", raw)
		}
		return f, nil
	case kDuration:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q", raw)
		}
		return d, nil
	}
	return raw, nil
}
