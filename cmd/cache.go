package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/metaforge/internal/config"
	"github.com/conneroisu/metaforge/internal/di"
	"github.com/conneroisu/metaforge/internal/types"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the metadata cache",
}

var cacheInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List every path currently in the metadata cache",
	RunE:  runCacheInspect,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the in-process metadata cache",
	RunE:  runCacheClear,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show artifact cache hit/miss statistics",
	RunE:  runCacheStats,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInspectCmd, cacheClearCmd, cacheStatsCmd)
}

func withContainer(fn func(*di.ServiceContainer) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	container := di.NewServiceContainer(cfg)
	if err := container.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if shutdownErr := container.Shutdown(context.Background()); shutdownErr != nil {
			fmt.Fprintf(os.Stderr, "warning: error during shutdown: %v\n", shutdownErr)
		}
	}()
	return fn(container)
}

func runCacheInspect(cmd *cobra.Command, args []string) error {
	return withContainer(func(container *di.ServiceContainer) error {
		cache, err := container.GetMetadataCache()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PATH\tFIELDS\tEXTENDED")
		count := 0
		cache.Iterate(func(path types.Path, entry *types.MetadataEntry) {
			fmt.Fprintf(w, "%s\t%d\t%t\n", path, len(entry.Values), entry.IsExtended)
			count++
		})
		w.Flush()
		fmt.Printf("\n%d entr(ies) in cache\n", count)
		return nil
	})
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	return withContainer(func(container *di.ServiceContainer) error {
		cache, err := container.GetMetadataCache()
		if err != nil {
			return err
		}
		before := cache.Count()
		cache.Clear()
		fmt.Printf("cleared %d cached entries\n", before)
		return nil
	})
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	return withContainer(func(container *di.ServiceContainer) error {
		artifactCache, err := container.GetArtifactCache()
		if err != nil {
			return err
		}
		stats := artifactCache.GetStats()
		fmt.Printf("size: %d/%d\nhits: %d\nmisses: %d\nhit rate: %.2f%%\ntotal requests: %d\nevictions: %d\n",
			stats.Size, stats.MaxSize, stats.Hits, stats.Misses, stats.HitRate*100, stats.TotalRequests, stats.Evictions)
		return nil
	})
}
