// Package config provides configuration management for the metadata engine
// using Viper for flexible loading from YAML files, environment variables,
// and command-line flags.
//
// Configuration sources, highest priority first:
//  1. Command-line flags (--config, etc.)
//  2. METAFORGE_CONFIG_FILE environment variable
//  3. Individual METAFORGE_<SECTION>_<OPTION> environment variables
//  4. .metaforge.yml in the current directory
package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// defaultWorkerCount mirrors the parallel loader's own sizing formula so a
// config produced without an explicit override matches what the loader
// would pick on its own.
func defaultWorkerCount() int {
	n := 2 * runtime.NumCPU()
	if n > 16 {
		return 16
	}
	if n < 1 {
		return 1
	}
	return n
}

// Config aggregates the tuning knobs for every core component.
type Config struct {
	Cache     CacheConfig     `yaml:"cache"`
	Loader    LoaderConfig    `yaml:"loader"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Companion CompanionConfig `yaml:"companion"`
	Keys      KeysConfig      `yaml:"keys"`
	Store     StoreConfig     `yaml:"store"`
}

// CacheConfig tunes the two-tier artifact cache (C2).
type CacheConfig struct {
	MaxEntries         int    `yaml:"max_entries"`
	MaxMemoryBytes     int64  `yaml:"max_memory_bytes"`
	DiskThresholdBytes int64  `yaml:"disk_threshold_bytes"`
	CacheDir           string `yaml:"cache_dir"`
}

// LoaderConfig tunes the parallel loader (C5).
type LoaderConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

// ExtractorConfig configures the extractor subprocess (C1).
type ExtractorConfig struct {
	BinaryPath   string `yaml:"binary_path"`
	ExtendedFlag string `yaml:"extended_flag"`
}

// CompanionConfig configures sidecar discovery (C4).
type CompanionConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Extensions []string `yaml:"extensions"`
}

// KeysConfig configures the key simplifier (C7).
type KeysConfig struct {
	MaxSegments     int    `yaml:"max_segments"`
	MinKeyLength    int    `yaml:"min_key_length_to_simplify"`
	PreserveNumbers bool   `yaml:"preserve_numbers"`
	PreserveDomain  bool   `yaml:"preserve_domain"`
	RemoveStopWords bool   `yaml:"remove_stop_words"`
	MaxHistory      int    `yaml:"max_history"`
	AliasesFile     string `yaml:"aliases_file"`
}

// StoreConfig configures the structured store (C9).
type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite3" or "mysql"
	DSN    string `yaml:"dsn"`
}

// Load reads configuration from viper (already bound to flags/env/file by
// the CLI composition root) and applies defaults and validation.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 1000
	}
	if cfg.Cache.MaxMemoryBytes == 0 {
		cfg.Cache.MaxMemoryBytes = 64 * 1024 * 1024
	}
	if cfg.Cache.DiskThresholdBytes == 0 {
		cfg.Cache.DiskThresholdBytes = 1024 * 1024
	}
	if cfg.Cache.CacheDir == "" {
		cfg.Cache.CacheDir = ".metaforge/cache"
	}
	if cfg.Loader.MaxWorkers == 0 {
		cfg.Loader.MaxWorkers = defaultWorkerCount()
	}
	if cfg.Extractor.BinaryPath == "" {
		cfg.Extractor.BinaryPath = "exiftool"
	}
	if cfg.Extractor.ExtendedFlag == "" {
		cfg.Extractor.ExtendedFlag = "-ee"
	}
	if !viper.IsSet("companion.enabled") {
		cfg.Companion.Enabled = true
	}
	if len(cfg.Companion.Extensions) == 0 {
		cfg.Companion.Extensions = []string{".xmp", ".xml", ".srt", ".thm"}
	}
	if cfg.Keys.MaxSegments == 0 {
		cfg.Keys.MaxSegments = 3
	}
	if cfg.Keys.MinKeyLength == 0 {
		cfg.Keys.MinKeyLength = 20
	}
	if !viper.IsSet("keys.preserve_numbers") {
		cfg.Keys.PreserveNumbers = true
	}
	if !viper.IsSet("keys.preserve_domain") {
		cfg.Keys.PreserveDomain = true
	}
	if cfg.Keys.MaxHistory == 0 {
		cfg.Keys.MaxHistory = 50
	}
	if cfg.Keys.AliasesFile == "" {
		cfg.Keys.AliasesFile = ".metaforge/semantic_metadata_aliases.json"
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite3"
	}
	if cfg.Store.DSN == "" {
		cfg.Store.DSN = ".metaforge/store.db"
	}
}

func validateConfig(cfg *Config) error {
	if err := validateRelativePath("cache.cache_dir", cfg.Cache.CacheDir); err != nil {
		return err
	}
	if cfg.Loader.MaxWorkers < 1 || cfg.Loader.MaxWorkers > 256 {
		return fmt.Errorf("loader.max_workers %d is not in valid range 1-256", cfg.Loader.MaxWorkers)
	}
	if cfg.Extractor.BinaryPath == "" {
		return fmt.Errorf("extractor.binary_path must not be empty")
	}
	if cfg.Keys.MaxSegments < 2 {
		return fmt.Errorf("keys.max_segments must be >= 2")
	}
	if err := validateRelativePath("keys.aliases_file", cfg.Keys.AliasesFile); err != nil {
		return err
	}
	return nil
}

// validateRelativePath rejects paths containing ".." after cleaning.
// Absolute paths are accepted.
func validateRelativePath(field, path string) error {
	if path == "" {
		return nil
	}
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("%s contains path traversal: %s", field, path)
	}
	return nil
}
