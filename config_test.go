package ioworker

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.SelectTimeout != time.Millisecond {
		t.Errorf("SelectTimeout = %v, want 1ms", cfg.SelectTimeout)
	}
	if cfg.ReadBufferSize != 128*1024 {
		t.Errorf("ReadBufferSize = %d, want 128KiB", cfg.ReadBufferSize)
	}
	if cfg.OutputBufferSize != 4*1024*1024 {
		t.Errorf("OutputBufferSize = %d, want 4MiB", cfg.OutputBufferSize)
	}
	if cfg.MaxIdleTime != 0 {
		t.Errorf("MaxIdleTime = %v, want 0 (infinite)", cfg.MaxIdleTime)
	}
}

func TestLoadConfig_UsesDefaultsWhenUnset(t *testing.T) {
	v := viper.New()
	cfg := LoadConfig(v)
	want := DefaultConfig()
	if cfg.ReadBufferSize != want.ReadBufferSize || cfg.OutputBufferSize != want.OutputBufferSize {
		t.Fatalf("LoadConfig with no overrides = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadConfig_HonorsOverrides(t *testing.T) {
	v := viper.New()
	v.Set("num-workers", 8)
	v.Set("max-idle-time", "5s")
	v.Set("output-buffer-size", 2048)

	cfg := LoadConfig(v)
	if cfg.NumWorkers != 8 {
		t.Errorf("NumWorkers = %d, want 8", cfg.NumWorkers)
	}
	if cfg.MaxIdleTime != 5*time.Second {
		t.Errorf("MaxIdleTime = %v, want 5s", cfg.MaxIdleTime)
	}
	if cfg.OutputBufferSize != 2048 {
		t.Errorf("OutputBufferSize = %d, want 2048", cfg.OutputBufferSize)
	}
}

func TestLoadConfig_NormalizesInvalidValues(t *testing.T) {
	v := viper.New()
	v.Set("select-timeout", "0s")
	v.Set("read-buffer-size", -1)
	v.Set("output-buffer-size", 0)

	cfg := LoadConfig(v)
	if cfg.SelectTimeout != time.Millisecond {
		t.Errorf("SelectTimeout = %v, want fallback of 1ms", cfg.SelectTimeout)
	}
	if cfg.ReadBufferSize != 128*1024 {
		t.Errorf("ReadBufferSize = %d, want fallback of 128KiB", cfg.ReadBufferSize)
	}
	if cfg.OutputBufferSize != 4*1024*1024 {
		t.Errorf("OutputBufferSize = %d, want fallback of 4MiB", cfg.OutputBufferSize)
	}
}
