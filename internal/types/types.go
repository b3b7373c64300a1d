// Package types provides the shared domain types used throughout the
// metadata engine, kept free of other internal packages to avoid import
// cycles between the cache, loader and store layers.
package types

import (
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Path is a normalized filesystem path used as the identity key for the
// metadata cache, the loader and the structured store. Cleaning and
// separator normalization happen once at the boundary so every downstream
// map lookup can compare Paths directly; case rules are applied only by Equal.
type Path string

// NewPath cleans p and converts the OS path separator to forward slashes,
// giving the normalized form every component should use as a map key.
func NewPath(p string) Path {
	cleaned := filepath.ToSlash(filepath.Clean(p))
	return Path(cleaned)
}

// Equal implements paths_equal: case-insensitive on platforms with a
// case-insensitive filesystem (Windows, macOS default), exact elsewhere.
func (p Path) Equal(other Path) bool {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return strings.EqualFold(string(p), string(other))
	}
	return p == other
}

// Dir returns the normalized parent directory of p.
func (p Path) Dir() Path {
	return NewPath(filepath.Dir(string(p)))
}

// Base returns the final path element of p.
func (p Path) Base() string {
	return filepath.Base(string(p))
}

// MetadataStatus tracks a FileHandle's lifecycle with respect to the cache.
type MetadataStatus string

const (
	StatusClean    MetadataStatus = "clean"
	StatusModified MetadataStatus = "modified"
	StatusLoading  MetadataStatus = "loading"
)

// FileHandle identifies a single file to be processed by the loader and
// extractor, plus the directory listing needed by the companion handler to
// find sidecars without a second filesystem walk.
type FileHandle struct {
	Path           Path
	Size           int64
	ModTime        time.Time
	DirListing     []string
	Metadata       MetadataValues
	MetadataStatus MetadataStatus
}

// MetadataValue is a single extracted metadata field. Value is kept as a
// string (the extractor's wire format); Raw preserves whatever interface{}
// the extractor returned before string coercion, for fields that need
// numeric or structured access (e.g. GPS coordinates).
type MetadataValue struct {
	Key   string
	Value string
	Raw   interface{}
}

// MetadataValues is a flat tag-name to value map, the unit of exchange
// between the extractor client, companion handler and metadata cache.
type MetadataValues map[string]MetadataValue

// MetadataEntry is what the metadata cache stores per path: the extracted
// values, whether they came from an extended (embedded-data) extraction,
// and when they were produced.
type MetadataEntry struct {
	Path       Path
	Values     MetadataValues
	IsExtended bool
	LoadedAt   time.Time
	SourceTag  string
}

// CacheArtifact is an opaque, serializable value tagged with a logical
// namespace Kind (file, metadata, hash, dir). The LRU/disk cache (C2) stores
// raw bytes under string keys; its InvalidateByPattern matches key
// substrings, not Kind.
type CacheArtifact struct {
	Key       string
	Kind      string
	Data      []byte
	StoredAt  time.Time
}

// KeyMapping records one simplification produced by the key simplifier and
// held by the key registry, with enough context to explain or undo it.
type KeyMapping struct {
	OriginalKey   string
	SimplifiedKey string
	SemanticTags  []string
	SemanticName  string
	Priority      int
	Source        string
	CreatedAt     time.Time
}

// RegistrySnapshot is a point-in-time copy of the key registry's mapping
// table, pushed onto the undo stack before every mutating operation.
type RegistrySnapshot struct {
	Mappings map[string]KeyMapping
	TakenAt  time.Time
}

// StructuredField describes one column of the structured store's schema:
// a metadata key classified into a display category with a data type and
// edit/search capability flags.
type StructuredField struct {
	Key           string
	Name          string
	Category      string
	DataType      string // "text", "number", "size", "datetime", "duration", "coordinate"
	IsEditable    bool
	IsSearchable  bool
	DisplayFormat string
}

// FieldValue pairs a StructuredField with the formatted value stored for a
// specific path, as returned by the structured store's read path.
type FieldValue struct {
	Field StructuredField
	Value string
}

// CompanionSet is the result of the companion handler's sidecar discovery:
// the main file's own values plus values merged in from each sidecar,
// namespaced by sidecar basename.
type CompanionSet struct {
	Main           Path
	CompanionFiles []string
	Merged         MetadataValues
}
