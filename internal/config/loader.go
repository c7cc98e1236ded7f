package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix for client knobs, e.g.
// LANGSMITH_TRACING_ENABLED, LANGSMITH_ENDPOINT (spec.md §4.10).
const envPrefix = "LANGSMITH"

// defaultFileName is the optional on-disk config file, checked in the
// current directory when configPath is empty.
const defaultFileName = "langsmith.toml"

// Load builds a Config from, in increasing precedence: built-in defaults,
// an optional TOML file, then environment variables. configPath is read
// directly if non-empty; otherwise defaultFileName is tried in the
// current directory and silently skipped if absent, mirroring the
// teacher's "missing config file is not an error" local-config behavior.
func Load(configPath string) (*Config, error) {
	cfg := defaultConfig()

	path := configPath
	if path == "" {
		if _, err := os.Stat(defaultFileName); err == nil {
			path = defaultFileName
		}
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	applyEnvOverrides(v, &cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides reads each recognized key's environment variable
// through v and, if set, overrides the corresponding field. Unlike a
// blanket v.Unmarshal, this keeps the TOML-file layer's values intact for
// keys with no environment override — viper's AutomaticEnv has no way to
// tell "unset" from "empty string" once merged into one map.
func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if s, ok := lookupEnv(v, "tracing_enabled"); ok {
		cfg.TracingEnabled = s == "1" || s == "true"
	}
	if s, ok := lookupEnv(v, "endpoint"); ok {
		cfg.Endpoint = s
	}
	if s, ok := lookupEnv(v, "api_key"); ok {
		cfg.APIKey = s
	}
	if s, ok := lookupEnv(v, "service_key"); ok {
		cfg.ServiceKey = s
	}
	if s, ok := lookupEnv(v, "project"); ok {
		cfg.Project = s
	}
	if n, ok := lookupInt(v, "batch_size_limit"); ok {
		cfg.BatchSizeLimit = n
	}
	if n, ok := lookupUint(v, "batch_byte_limit"); ok {
		cfg.BatchByteLimit = n
	}
	if n, ok := lookupUint(v, "queue_byte_cap"); ok {
		cfg.QueueByteCap = n
	}
	if n, ok := lookupInt(v, "compression_level"); ok {
		cfg.CompressionLevel = n
	}
	if n, ok := lookupInt(v, "scale_up_qsize_trigger"); ok {
		cfg.ScaleUpQSizeTrigger = n
	}
	if n, ok := lookupInt(v, "scale_up_nthreads_limit"); ok {
		cfg.ScaleUpNThreadsLimit = n
	}
	if n, ok := lookupInt(v, "scale_down_nempty_trigger"); ok {
		cfg.ScaleDownNEmptyTrigger = n
	}
	if n, ok := lookupInt(v, "retry_max_attempts"); ok {
		cfg.RetryMaxAttempts = n
	}
	if d, ok := lookupDuration(v, "retry_max_backoff"); ok {
		cfg.RetryMaxBackoff = d
	}
	if s, ok := lookupEnv(v, "hide_inputs"); ok {
		cfg.HideInputs = s == "1" || s == "true"
	}
	if s, ok := lookupEnv(v, "hide_outputs"); ok {
		cfg.HideOutputs = s == "1" || s == "true"
	}
}

func lookupEnv(v *viper.Viper, key string) (string, bool) {
	if !v.IsSet(key) {
		return "", false
	}
	return v.GetString(key), true
}

func lookupInt(v *viper.Viper, key string) (int, bool) {
	if !v.IsSet(key) {
		return 0, false
	}
	return v.GetInt(key), true
}

func lookupUint(v *viper.Viper, key string) (uint64, bool) {
	if !v.IsSet(key) {
		return 0, false
	}
	return uint64(v.GetInt64(key)), true
}

func lookupDuration(v *viper.Viper, key string) (time.Duration, bool) {
	if !v.IsSet(key) {
		return 0, false
	}
	return v.GetDuration(key), true
}

// Validate checks the invariants New's callers rely on (spec.md §7: a
// configuration failure raises synchronously).
func (c Config) Validate() error {
	if !c.TracingEnabled {
		return nil
	}
	if c.Endpoint == "" {
		return errors.New("endpoint is required when tracing_enabled is true")
	}
	return nil
}
