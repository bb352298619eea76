package config

import (
	"os"
	"testing"

	"github.com/cesargomez89/freezetag/internal/constants"
)

func TestLoad(t *testing.T) {
	cfg := Load()

	if cfg.LogLevel != constants.DefaultLogLevel {
		t.Errorf("Expected LogLevel to be %s, got %s", constants.DefaultLogLevel, cfg.LogLevel)
	}

	if cfg.FreezetagCacheLimit != constants.FreezetagCacheLimit {
		t.Errorf("Expected FreezetagCacheLimit to be %d, got %d", constants.FreezetagCacheLimit, cfg.FreezetagCacheLimit)
	}

	if cfg.CacheDir == "" {
		t.Error("Expected CacheDir to not be empty")
	}
}

func TestLoadWithEnvVars(t *testing.T) {
	os.Setenv("FREEZETAG_CACHE_DIR", "/tmp/freezetag-test")
	os.Setenv("FREEZETAG_LOG_LEVEL", "debug")
	defer os.Unsetenv("FREEZETAG_CACHE_DIR")
	defer os.Unsetenv("FREEZETAG_LOG_LEVEL")

	cfg := Load()

	if cfg.CacheDir != "/tmp/freezetag-test" {
		t.Errorf("Expected CacheDir to be /tmp/freezetag-test, got %s", cfg.CacheDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected LogLevel to be debug, got %s", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected default config to validate, got error: %v", err)
	}

	cfg.LogLevel = "not-a-level"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected invalid LogLevel to fail validation")
	}
}

func TestValidateEmptyCacheDir(t *testing.T) {
	cfg := Load()
	cfg.CacheDir = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Expected empty CacheDir to fail validation")
	}
}
