package ioworker

import (
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// Config carries the recognized options of spec.md §6. Zero-value Config is
// not ready to use; call DefaultConfig or LoadConfig.
type Config struct {
	NumWorkers         int
	SelectTimeout      time.Duration
	IdleCheckFrequency time.Duration
	MaxIdleTime        time.Duration // <= 0 means infinite
	ReadBufferSize     int
	OutputBufferSize   int
}

// DefaultConfig returns the reference defaults from spec.md §6.
func DefaultConfig() Config {
	return Config{
		NumWorkers:         runtime.NumCPU(),
		SelectTimeout:      time.Millisecond,
		IdleCheckFrequency: 30 * time.Second,
		MaxIdleTime:        0,
		ReadBufferSize:     128 * 1024,
		OutputBufferSize:   4 * 1024 * 1024,
	}
}

// BindDefaults registers spec.md §6's keys and defaults on v, so callers can
// layer env vars, flags, or config files over them with viper's normal
// precedence rules.
func BindDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("num-workers", d.NumWorkers)
	v.SetDefault("select-timeout", d.SelectTimeout)
	v.SetDefault("idle-check-frequency", d.IdleCheckFrequency)
	v.SetDefault("max-idle-time", d.MaxIdleTime)
	v.SetDefault("read-buffer-size", d.ReadBufferSize)
	v.SetDefault("output-buffer-size", d.OutputBufferSize)
}

// LoadConfig reads spec.md §6's keys from v (which the caller has already
// pointed at env/flags/files as needed), falling back to DefaultConfig for
// anything unset.
func LoadConfig(v *viper.Viper) Config {
	BindDefaults(v)
	cfg := Config{
		NumWorkers:         v.GetInt("num-workers"),
		SelectTimeout:      v.GetDuration("select-timeout"),
		IdleCheckFrequency: v.GetDuration("idle-check-frequency"),
		MaxIdleTime:        v.GetDuration("max-idle-time"),
		ReadBufferSize:     v.GetInt("read-buffer-size"),
		OutputBufferSize:   v.GetInt("output-buffer-size"),
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = runtime.NumCPU()
	}
	if cfg.SelectTimeout <= 0 {
		cfg.SelectTimeout = time.Millisecond
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 128 * 1024
	}
	if cfg.OutputBufferSize <= 0 {
		cfg.OutputBufferSize = 4 * 1024 * 1024
	}
	// MaxIdleTime <= 0 is left as-is: it means "infinite", per spec.md §8.
	return cfg
}
