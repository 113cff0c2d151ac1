package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "VARPAGER_"

// envSetter applies the value of one environment variable.
type envSetter func(cfg *Config, value string) error

// envMapping maps environment variables to the settings they override.
var envMapping = map[string]envSetter{
	EnvPrefix + "LOG_LEVEL": func(cfg *Config, v string) error {
		cfg.Log.Level = v
		return nil
	},
	EnvPrefix + "PAGE_SIZE": func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		cfg.Inspect.SetPageSize(n)
		return nil
	},
	EnvPrefix + "MAX_DEPTH": func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		cfg.Inspect.MaxDepth = n
		return nil
	},
	EnvPrefix + "ADAPTER": func(cfg *Config, v string) error {
		cfg.Debug.Adapter = v
		return nil
	},
	EnvPrefix + "ADAPTER_PATH": func(cfg *Config, v string) error {
		cfg.Debug.AdapterPath = v
		return nil
	},
	EnvPrefix + "ADDRESS": func(cfg *Config, v string) error {
		cfg.Debug.Address = v
		return nil
	},
	EnvPrefix + "PROGRAM": func(cfg *Config, v string) error {
		cfg.Debug.Program = v
		return nil
	},
}

// EnvVars returns the environment variables ApplyEnv reads, sorted.
func EnvVars() []string {
	names := make([]string, 0, len(envMapping))
	for name := range envMapping {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyEnv overrides settings from the environment. Empty values are
// treated as set.
func (c *Config) ApplyEnv() error {
	for _, name := range EnvVars() {
		value, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		if err := envMapping[name](c, value); err != nil {
			return fmt.Errorf("environment %s=%q: %w", name, value, err)
		}
	}
	return nil
}
