package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/conneroisu/metaforge/internal/config"
	"github.com/conneroisu/metaforge/internal/di"
)

var watchCmd = &cobra.Command{
	Use:     "watch [paths...]",
	Aliases: []string{"w"},
	Short:   "Watch directories and invalidate cached metadata on change",
	Long: `Watch recursively monitors the given directories (or the current
directory if none are given) and invalidates cached metadata and cached
artifacts whenever a watched file is created, written, or removed. It does
not reload metadata itself; rerun 'metaforge load' to repopulate the cache.

Examples:
  metaforge watch ./photos
  metaforge watch --debounce 500ms ./photos ./videos`,
	RunE: runWatch,
}

var watchDebounce time.Duration

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 300*time.Millisecond, "how long to coalesce rapid changes before invalidating")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	container := di.NewServiceContainer(cfg)
	if err := container.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	metadataCache, err := container.GetMetadataCache()
	if err != nil {
		return err
	}
	artifactCache, err := container.GetArtifactCache()
	if err != nil {
		return err
	}

	paths := args
	if len(paths) == 0 {
		paths = []string{"."}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	for _, p := range paths {
		if err := addRecursive(fsw, p); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to watch %s: %v\n", p, err)
			continue
		}
		fmt.Printf("watching: %s\n", p)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pending := make(map[string]struct{})
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	flush := func() {
		if len(pending) == 0 {
			return
		}
		changed := make([]string, 0, len(pending))
		for p := range pending {
			changed = append(changed, p)
		}
		pending = make(map[string]struct{})

		removedCache := metadataCache.InvalidateByPaths(changed)
		removedArtifacts := artifactCache.InvalidateByPattern(changed)
		fmt.Printf("invalidated %d cached metadata entries, %d cached artifacts for %d changed path(s)\n",
			removedCache, removedArtifacts, len(changed))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("watching for changes (press Ctrl+C to stop)...")
	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			pending[event.Name] = struct{}{}
			timer.Reset(watchDebounce)
			if event.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					_ = addRecursive(fsw, event.Name)
				}
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		case <-timer.C:
			flush()
		case <-sigChan:
			fmt.Println("\nstopping watcher...")
			cancel()
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}
