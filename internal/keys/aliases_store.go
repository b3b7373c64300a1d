package keys

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/conneroisu/metaforge/internal/errors"
	"github.com/conneroisu/metaforge/internal/logging"
)

// AliasesStore persists the semantic alias table to a JSON file on disk so
// an operator can hand-edit it between runs, auto-creating it with the
// built-in defaults on first use and recovering from a corrupted file
// instead of failing startup.
type AliasesStore struct {
	path   string
	logger logging.Logger
}

// NewAliasesStore creates a store rooted at path. path may be empty, in
// which case Load always returns the built-in defaults without touching
// disk.
func NewAliasesStore(path string, logger logging.Logger) *AliasesStore {
	return &AliasesStore{path: path, logger: logger}
}

// Path returns the configured aliases file path.
func (s *AliasesStore) Path() string {
	return s.path
}

// Load reads the aliases file, creating it with the built-in defaults when
// it doesn't exist and autoCreate is true. A corrupted file is backed up
// alongside itself and the built-in defaults are returned rather than
// failing the caller.
func (s *AliasesStore) Load(ctx context.Context, autoCreate bool) (map[string][]string, error) {
	if s.path == "" {
		return DefaultSemanticAliases(), nil
	}

	if _, err := os.Stat(s.path); err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.WrapRegistry(err, errors.ErrCodeRegistryMalformed, "stat semantic aliases file")
		}
		if !autoCreate {
			s.logger.Warn(ctx, err, "semantic aliases file not found, using built-in defaults", "path", s.path)
			return DefaultSemanticAliases(), nil
		}
		defaults := DefaultSemanticAliases()
		s.logger.Info(ctx, "semantic aliases file not found, creating with defaults", "path", s.path)
		if err := s.Save(defaults); err != nil {
			return nil, err
		}
		return defaults, nil
	}

	return s.loadFromFile(ctx)
}

// Reload re-reads the aliases file without auto-creating it, for picking up
// manual edits made while the process is running.
func (s *AliasesStore) Reload(ctx context.Context) (map[string][]string, error) {
	return s.Load(ctx, false)
}

func (s *AliasesStore) loadFromFile(ctx context.Context) (map[string][]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.WrapRegistry(err, errors.ErrCodeRegistryMalformed, "read semantic aliases file")
	}

	var aliases map[string][]string
	if err := json.Unmarshal(data, &aliases); err != nil {
		s.logger.Warn(ctx, err, "semantic aliases file is corrupted, backing up and falling back to defaults", "path", s.path)
		s.backupCorrupted(ctx)
		return DefaultSemanticAliases(), nil
	}

	s.logger.Debug(ctx, "loaded semantic aliases", "path", s.path, "count", len(aliases))
	return aliases, nil
}

// Save writes aliases to the store's path via write-temp-then-rename, the
// same idiom the artifact cache uses for its disk tier.
func (s *AliasesStore) Save(aliases map[string][]string) error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.WrapRegistry(err, errors.ErrCodeRegistryMalformed, "create semantic aliases directory")
	}

	sorted := make([]string, 0, len(aliases))
	for name := range aliases {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)
	ordered := make(map[string][]string, len(aliases))
	for _, name := range sorted {
		ordered[name] = aliases[name]
	}

	data, err := json.MarshalIndent(ordered, "", "  ")
	if err != nil {
		return errors.WrapRegistry(err, errors.ErrCodeRegistryMalformed, "marshal semantic aliases")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.WrapRegistry(err, errors.ErrCodeRegistryMalformed, "write semantic aliases temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return errors.WrapRegistry(err, errors.ErrCodeRegistryMalformed, "rename semantic aliases file")
	}
	return nil
}

// ResetToDefaults overwrites the aliases file with the built-in defaults.
func (s *AliasesStore) ResetToDefaults() error {
	return s.Save(DefaultSemanticAliases())
}

func (s *AliasesStore) backupCorrupted(ctx context.Context) {
	backupPath := fmt.Sprintf("%s.corrupted_%s", s.path, time.Now().UTC().Format("20060102_150405"))
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		s.logger.Warn(ctx, err, "failed to back up corrupted semantic aliases file", "path", s.path)
		return
	}
	s.logger.Warn(ctx, nil, "backed up corrupted semantic aliases file", "path", s.path, "backup", backupPath)
}
