// Package config reads mimisweep settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/willibrandon/mimisweep/pkg/layout"
	"github.com/willibrandon/mimisweep/pkg/recorder"
	"github.com/willibrandon/mimisweep/pkg/render"
	"github.com/willibrandon/mimisweep/pkg/sigscan"
)

// Config holds the settings shared by all commands
type Config struct {
	// Variants to try, in order. Auto means layout.AllVariants.
	Variants      []layout.Variant
	LogLevel      slog.Level
	CacheSize     int
	PollInterval  time.Duration
	MaxRegionSize uint64
	Color         render.ColorMode
	Compression   recorder.CompressionType
}

// Default returns the default configuration
func Default() Config {
	return Config{
		Variants:      layout.AllVariants,
		LogLevel:      slog.LevelInfo,
		CacheSize:     16,
		PollInterval:  500 * time.Millisecond,
		MaxRegionSize: sigscan.DefaultMaxRegionSize,
		Color:         render.ColorAuto,
		Compression:   recorder.DefaultCompression,
	}
}

// LoadFromEnvironment reads the configuration from the process environment
func LoadFromEnvironment() (Config, error) {
	return Load(os.Getenv)
}

// Load reads the configuration through getenv. Unset variables keep their
// defaults; malformed ones are errors.
func Load(getenv func(string) string) (Config, error) {
	cfg := Default()

	// MIMISWEEP_VARIANT selects the layout: auto, legacy or modern
	if v := getenv("MIMISWEEP_VARIANT"); v != "" {
		variants, err := ParseVariants(v)
		if err != nil {
			return cfg, fmt.Errorf("MIMISWEEP_VARIANT: %w", err)
		}
		cfg.Variants = variants
	}

	// MIMISWEEP_LOG_LEVEL is one of debug, info, warn, error
	if v := getenv("MIMISWEEP_LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return cfg, fmt.Errorf("MIMISWEEP_LOG_LEVEL: %w", err)
		}
	}

	// MIMISWEEP_CACHE_SIZE bounds the number of cached layouts
	if v := getenv("MIMISWEEP_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("MIMISWEEP_CACHE_SIZE: invalid value %q", v)
		}
		cfg.CacheSize = n
	}

	// MIMISWEEP_POLL_INTERVAL is a Go duration such as 250ms
	if v := getenv("MIMISWEEP_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("MIMISWEEP_POLL_INTERVAL: invalid value %q", v)
		}
		cfg.PollInterval = d
	}

	// MIMISWEEP_MAX_REGION_SIZE is in bytes; larger regions are not scanned
	if v := getenv("MIMISWEEP_MAX_REGION_SIZE"); v != "" {
		n, err := strconv.ParseUint(v, 0, 64)
		if err != nil || n == 0 {
			return cfg, fmt.Errorf("MIMISWEEP_MAX_REGION_SIZE: invalid value %q", v)
		}
		cfg.MaxRegionSize = n
	}

	// MIMISWEEP_COLOR is auto, always or never
	if v := getenv("MIMISWEEP_COLOR"); v != "" {
		m, err := render.ParseColorMode(v)
		if err != nil {
			return cfg, fmt.Errorf("MIMISWEEP_COLOR: %w", err)
		}
		cfg.Color = m
	}

	// MIMISWEEP_RECORD_COMPRESSION is zstd or none
	if v := getenv("MIMISWEEP_RECORD_COMPRESSION"); v != "" {
		switch strings.ToLower(v) {
		case "zstd":
			cfg.Compression = recorder.ZstdCompression
		case "none":
			cfg.Compression = recorder.NoCompression
		default:
			return cfg, fmt.Errorf("MIMISWEEP_RECORD_COMPRESSION: invalid value %q", v)
		}
	}

	return cfg, nil
}

// AutoVariant reports whether more than one layout will be tried.
func (c Config) AutoVariant() bool {
	return len(c.Variants) != 1
}

// ParseVariants parses "auto" or a single variant name.
func ParseVariants(s string) ([]layout.Variant, error) {
	if strings.EqualFold(strings.TrimSpace(s), "auto") {
		return layout.AllVariants, nil
	}
	v, err := layout.ParseVariant(s)
	if err != nil {
		return nil, err
	}
	return []layout.Variant{v}, nil
}
