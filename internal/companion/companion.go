// Package companion implements sidecar discovery and metadata merging (C4):
// given a main media file, it finds files sharing its stem in a known
// sidecar extension set and folds their metadata into the main mapping
// under a namespaced key so it can never collide with a native tag.
package companion

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/metaforge/internal/logging"
	"github.com/conneroisu/metaforge/internal/types"
)

const companionFilesKey = "__companion_files__"

// Extractor is the subset of the extractor client the companion handler
// needs to pull metadata out of a sidecar file.
type Extractor interface {
	GetMetadata(ctx context.Context, path string, extended bool) types.MetadataValues
}

// Handler discovers and merges companion files.
type Handler struct {
	enabled    bool
	extensions map[string]struct{}
	extractor  Extractor
	logger     logging.Logger
}

// Config configures a Handler.
type Config struct {
	Enabled    bool
	Extensions []string
}

// New creates a Handler. When cfg.Enabled is false, Enhance is a pass-through.
func New(cfg Config, extractor Extractor, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewTestLogger()
	}
	ext := make(map[string]struct{}, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		ext[strings.ToLower(e)] = struct{}{}
	}
	return &Handler{enabled: cfg.Enabled, extensions: ext, extractor: extractor, logger: logger}
}

// FindCompanions returns sidecar paths from dirListing whose stem matches
// main's stem and whose extension is in the configured sidecar set.
func (h *Handler) FindCompanions(main types.Path, dirListing []string) []string {
	if !h.enabled {
		return nil
	}
	stem := stemOf(string(main))
	dir := filepath.Dir(string(main))
	var companions []string
	for _, candidate := range dirListing {
		if filepath.Base(candidate) == candidate {
			candidate = filepath.Join(dir, candidate)
		}
		if candidate == string(main) {
			continue
		}
		if stemOf(candidate) != stem {
			continue
		}
		ext := strings.ToLower(filepath.Ext(candidate))
		if _, ok := h.extensions[ext]; ok {
			companions = append(companions, candidate)
		}
	}
	return companions
}

// Enhance builds the companion-merged CompanionSet for main given its
// directory listing and already-extracted base metadata. A companion that
// fails to parse is logged and skipped; the rest still contribute.
func (h *Handler) Enhance(ctx context.Context, main types.Path, dirListing []string, base types.MetadataValues) types.CompanionSet {
	result := types.CompanionSet{Main: main, Merged: make(types.MetadataValues, len(base))}
	for k, v := range base {
		result.Merged[k] = v
	}

	if !h.enabled {
		return result
	}

	companions := h.FindCompanions(main, dirListing)
	var used []string
	for _, companionPath := range companions {
		data, err := h.extract(ctx, companionPath)
		if err != nil {
			h.logger.Warn(ctx, err, "skipping unparseable companion file", "path", companionPath)
			continue
		}
		base := filepath.Base(companionPath)
		for key, value := range data {
			if key == "source" {
				continue
			}
			nsKey := fmt.Sprintf("Companion:%s:%s", base, key)
			result.Merged[nsKey] = types.MetadataValue{Key: nsKey, Value: value.Value, Raw: value.Raw}
		}
		used = append(used, companionPath)
	}

	if len(used) > 0 {
		result.CompanionFiles = used
		raw := make([]interface{}, len(used))
		for i, p := range used {
			raw[i] = p
		}
		result.Merged[companionFilesKey] = types.MetadataValue{Key: companionFilesKey, Value: strings.Join(used, ","), Raw: raw}
	}
	return result
}

// extract delegates to the shared extractor client for formats it
// understands, with a plain XML fallback for .xml companions so the handler
// also functions without a full extractor (e.g. unit tests, degraded mode).
func (h *Handler) extract(ctx context.Context, path string) (types.MetadataValues, error) {
	if strings.ToLower(filepath.Ext(path)) == ".xml" {
		if values, err := parseXML(path); err == nil {
			return values, nil
		}
	}
	if h.extractor == nil {
		return nil, fmt.Errorf("no extractor configured for companion %s", path)
	}
	values := h.extractor.GetMetadata(ctx, path, false)
	if len(values) == 0 {
		return nil, fmt.Errorf("companion %s produced no metadata", path)
	}
	return values, nil
}

func stemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// xmlNode is a generic recursive XML element used to flatten sidecar XML
// (e.g. clip metadata) into a flat tag map without a fixed schema.
type xmlNode struct {
	XMLName  xml.Name
	Content  string    `xml:",chardata"`
	Children []xmlNode `xml:",any"`
}

func parseXML(path string) (types.MetadataValues, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var root xmlNode
	if err := xml.NewDecoder(file).Decode(&root); err != nil {
		return nil, err
	}

	values := make(types.MetadataValues)
	flattenXML(root, values)
	return values, nil
}

func flattenXML(node xmlNode, out types.MetadataValues) {
	if len(node.Children) == 0 {
		text := strings.TrimSpace(node.Content)
		if text != "" && node.XMLName.Local != "" {
			out[node.XMLName.Local] = types.MetadataValue{Key: node.XMLName.Local, Value: text, Raw: text}
		}
		return
	}
	for _, child := range node.Children {
		flattenXML(child, out)
	}
}
