// Package config loads freezetag's runtime configuration from the
// environment, following the same load-then-validate shape used
// throughout this codebase.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cesargomez89/freezetag/internal/constants"
)

// Config holds settings shared by the freeze/thaw/shave engine and the
// FreezeFS mount.
type Config struct {
	CacheDir            string
	LogLevel            string
	LogFormat           string
	MaxFreezetagVersion uint8
	FreezetagCacheLimit int
	KeepAliveTimeout    time.Duration
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = "."
	}
	defaultCacheDir := filepath.Join(cacheDir, constants.DefaultCacheDirName)

	return &Config{
		CacheDir:            getEnv("FREEZETAG_CACHE_DIR", defaultCacheDir),
		LogLevel:            getEnv("FREEZETAG_LOG_LEVEL", constants.DefaultLogLevel),
		LogFormat:           getEnv("FREEZETAG_LOG_FORMAT", constants.DefaultLogFormat),
		MaxFreezetagVersion: uint8(getEnvInt("FREEZETAG_MAX_VERSION", int(constants.DefaultMaxFtagVersion))),
		FreezetagCacheLimit: getEnvInt("FREEZETAG_CACHE_LIMIT", constants.FreezetagCacheLimit),
		KeepAliveTimeout:    getEnvDuration("FREEZETAG_KEEPALIVE", constants.FreezetagKeepAliveTime),
	}
}

// Validate validates the configuration and returns detailed errors.
func (c *Config) Validate() error {
	var errs []string

	if c.CacheDir == "" {
		errs = append(errs, "FREEZETAG_CACHE_DIR cannot be empty")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		errs = append(errs, fmt.Sprintf("FREEZETAG_LOG_LEVEL must be one of: debug, info, warn, error, got: %s", c.LogLevel))
	}

	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[c.LogFormat] {
		errs = append(errs, fmt.Sprintf("FREEZETAG_LOG_FORMAT must be one of: text, json, got: %s", c.LogFormat))
	}

	if c.MaxFreezetagVersion == 0 {
		errs = append(errs, "FREEZETAG_MAX_VERSION must be greater than 0")
	}

	if c.FreezetagCacheLimit <= 0 {
		errs = append(errs, "FREEZETAG_CACHE_LIMIT must be greater than 0")
	}

	if c.KeepAliveTimeout <= 0 {
		errs = append(errs, "FREEZETAG_KEEPALIVE must be greater than 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
