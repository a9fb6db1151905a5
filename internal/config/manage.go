package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns every config key with its current value. Secret values
// are masked.
func ShowAll(cfg Config) []KeyInfo {
	result := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		value := fmt.Sprintf("%v", s.extract(cfg))
		if s.secret {
			value = mask(value)
		}
		result = append(result, KeyInfo{Key: s.key, EnvVar: s.env, Value: value})
	}
	return result
}

func mask(v string) string {
	if v == "" {
		return "(unset)"
	}
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}

// SetKey validates value and writes key to the config file.
func SetKey(key, value string) error {
	return setKeyAt(Path(), key, value)
}

func setKeyAt(path, key, value string) error {
	var spec *keySpec
	for i := range specs {
		if specs[i].key == key {
			spec = &specs[i]
			break
		}
	}
	if spec == nil {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if spec.secret {
		return fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, spec.env)
	}
	parsed, err := spec.parse(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	v, err := newViper(path)
	if err != nil {
		return err
	}
	cfg := Config{}
	for _, s := range specs {
		if err := s.load(v, &cfg); err != nil {
			return err
		}
	}
	spec.apply(&cfg, parsed)
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Write through a viper that holds only the file's own keys so defaults
	// and environment values are not persisted.
	w := viper.New()
	w.SetConfigType("json")
	if _, err := os.Stat(path); err == nil {
		w.SetConfigFile(path)
		if err := w.ReadInConfig(); err != nil {
			return fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if d, ok := parsed.(time.Duration); ok {
		w.Set(key, d.String())
	} else {
		w.Set(key, parsed)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := w.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// ValidKeys returns the list of settable config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
