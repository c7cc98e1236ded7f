// Package config loads the client's tunables from defaults, optional TOML
// file, and environment variables, then exposes a second-stage merge for
// server-advertised overrides (spec.md §4.10, §9's "server-advertised
// config merging" open question). Grounded on the teacher's
// internal/config/local_config.go (file + env override layering) and
// Sumatoshi-tech-codefang's internal/config/loader.go (viper-based
// defaults/env/file layering, the shape this package generalizes).
package config

import "time"

// Config is the full set of knobs spec.md §4.10 names. RetryMaxBackoff is
// expressed in the TOML file as an integer number of nanoseconds (BurntSushi
// decodes straight into time.Duration's int64 underlying type); env
// overrides accept a duration string ("10s") instead.
type Config struct {
	TracingEnabled bool   `toml:"tracing_enabled" mapstructure:"tracing_enabled"`
	Endpoint       string `toml:"endpoint" mapstructure:"endpoint"`
	APIKey         string `toml:"api_key" mapstructure:"api_key"`
	ServiceKey     string `toml:"service_key" mapstructure:"service_key"`
	Project        string `toml:"project" mapstructure:"project"`

	BatchSizeLimit         int           `toml:"batch_size_limit" mapstructure:"batch_size_limit"`
	BatchByteLimit         uint64        `toml:"batch_byte_limit" mapstructure:"batch_byte_limit"`
	QueueByteCap           uint64        `toml:"queue_byte_cap" mapstructure:"queue_byte_cap"`
	CompressionLevel       int           `toml:"compression_level" mapstructure:"compression_level"`
	ScaleUpQSizeTrigger    int           `toml:"scale_up_qsize_trigger" mapstructure:"scale_up_qsize_trigger"`
	ScaleUpNThreadsLimit   int           `toml:"scale_up_nthreads_limit" mapstructure:"scale_up_nthreads_limit"`
	ScaleDownNEmptyTrigger int           `toml:"scale_down_nempty_trigger" mapstructure:"scale_down_nempty_trigger"`
	RetryMaxAttempts       int           `toml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	RetryMaxBackoff        time.Duration `toml:"retry_max_backoff" mapstructure:"retry_max_backoff"`

	HideInputs  bool `toml:"hide_inputs" mapstructure:"hide_inputs"`
	HideOutputs bool `toml:"hide_outputs" mapstructure:"hide_outputs"`
}

// Defaults mirror spec.md §4.10's stated defaults.
const (
	DefaultBatchSizeLimit         = 100
	DefaultBatchByteLimit         = 20 * 1024 * 1024
	DefaultQueueByteCap           = 1 << 30 // 1 GiB
	DefaultCompressionLevel       = 1
	DefaultScaleUpQSizeTrigger    = 1000
	DefaultScaleUpNThreadsLimit   = 16
	DefaultScaleDownNEmptyTrigger = 4
	DefaultRetryMaxAttempts       = 3
	DefaultRetryMaxBackoff        = 10 * time.Second
)

func defaultConfig() Config {
	return Config{
		TracingEnabled:         false,
		BatchSizeLimit:         DefaultBatchSizeLimit,
		BatchByteLimit:         DefaultBatchByteLimit,
		QueueByteCap:           DefaultQueueByteCap,
		CompressionLevel:       DefaultCompressionLevel,
		ScaleUpQSizeTrigger:    DefaultScaleUpQSizeTrigger,
		ScaleUpNThreadsLimit:   DefaultScaleUpNThreadsLimit,
		ScaleDownNEmptyTrigger: DefaultScaleDownNEmptyTrigger,
		RetryMaxAttempts:       DefaultRetryMaxAttempts,
		RetryMaxBackoff:        DefaultRetryMaxBackoff,
	}
}
