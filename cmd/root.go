// Package cmd provides the command-line interface for the metadata engine,
// with configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI supports flexible configuration through multiple sources with clear precedence:
//	1. Command-line flags (--config, etc.) - highest priority
//	2. METAFORGE_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (METAFORGE_CACHE_MAX_ENTRIES, etc.)
//	4. Configuration files (.metaforge.yml) - lowest priority
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "metaforge",
	Short: "A batch media-metadata extraction, caching and tagging engine",
	Long: `metaforge extracts, caches, simplifies and stores metadata for large
collections of media files.

Key Features:
  • Parallel metadata extraction with a bounded worker pool
  • In-process caching with companion/sidecar file enrichment
  • Key name simplification and a renamable key registry
  • Structured storage of classified fields for search and editing

Quick Start:
  metaforge scan <dir>             Discover media files under a directory
  metaforge load <files...>        Load and cache metadata for files
  metaforge cache inspect          Inspect the metadata cache
  metaforge keys simplify          Simplify extractor key names
  metaforge store get <path>       Query structured metadata for a path

Command Aliases (for faster typing):
  scan (s), load (l), watch (w)`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .metaforge.yml, can also use METAFORGE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig initializes the configuration system with support for multiple config sources.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. METAFORGE_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .metaforge.yml in current directory
//
// The function also enables automatic environment variable binding for all
// configuration values with the METAFORGE_ prefix (e.g., METAFORGE_LOADER_MAX_WORKERS).
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("METAFORGE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".metaforge")
	}

	viper.SetEnvPrefix("METAFORGE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
