package keys

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/metaforge/internal/errors"
	"github.com/conneroisu/metaforge/internal/types"
)

// RegistryConfig configures undo/redo depth.
type RegistryConfig struct {
	MaxHistory int
}

// Registry holds the simplifier's learned mappings plus semantic aliases,
// with bounded undo/redo over every mutating operation (C8).
type Registry struct {
	mu            sync.RWMutex
	mappings      map[string]types.KeyMapping
	semanticIndex map[string][]string // semantic name -> originals, descending priority
	history       []types.RegistrySnapshot
	future        []types.RegistrySnapshot
	maxHistory    int
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = 50
	}
	return &Registry{
		mappings:      make(map[string]types.KeyMapping),
		semanticIndex: make(map[string][]string),
		maxHistory:    maxHistory,
	}
}

// AddMapping records or overwrites the mapping for an original key.
func (r *Registry) AddMapping(mapping types.KeyMapping) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot()

	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = time.Now()
	}
	r.mappings[mapping.OriginalKey] = mapping
	if mapping.SemanticName != "" {
		r.insertSemantic(mapping.SemanticName, mapping.OriginalKey, mapping.Priority)
	}
}

// RemoveMapping deletes the mapping for original, if present.
func (r *Registry) RemoveMapping(original string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	mapping, ok := r.mappings[original]
	if !ok {
		return
	}
	r.snapshot()
	delete(r.mappings, original)
	if mapping.SemanticName != "" {
		r.removeSemantic(mapping.SemanticName, original)
	}
}

// GetMapping returns the mapping for original, if present.
func (r *Registry) GetMapping(original string) (types.KeyMapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mappings[original]
	return m, ok
}

// Mappings returns every mapping currently held, sorted by original key.
func (r *Registry) Mappings() []types.KeyMapping {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.KeyMapping, 0, len(r.mappings))
	for _, m := range r.mappings {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OriginalKey < out[j].OriginalKey })
	return out
}

// ResolveKeyWithFallback returns key itself if it's already among
// availableOriginals; otherwise, if key names a semantic alias, the
// highest-priority original in that alias's list which is present in
// availableOriginals; otherwise the empty string and false.
func (r *Registry) ResolveKeyWithFallback(key string, availableOriginals []string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	available := make(map[string]struct{}, len(availableOriginals))
	for _, o := range availableOriginals {
		available[o] = struct{}{}
	}
	if _, ok := available[key]; ok {
		return key, true
	}

	for _, candidate := range r.semanticIndex[key] {
		if _, ok := available[candidate]; ok {
			return candidate, true
		}
	}
	return "", false
}

// LoadSemanticAliases replaces the semantic index with aliases. When
// custom is nil, the built-in default aliases are used.
func (r *Registry) LoadSemanticAliases(custom map[string][]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	aliases := custom
	if aliases == nil {
		aliases = DefaultSemanticAliases()
	}
	r.semanticIndex = make(map[string][]string)
	for name, originals := range aliases {
		for priority, original := range originals {
			// Earlier entries have higher priority: insertSemantic appends in
			// list order and its stable sort only moves originals that have a
			// registry mapping with a higher Priority.
			r.insertSemantic(name, original, len(originals)-priority)
		}
	}
}

// DefaultSemanticAliases returns the engine's built-in, Lightroom-style
// unified field names, mapping each semantic name to the original keys
// that can satisfy it across formats. Earlier entries in each list have
// higher priority.
func DefaultSemanticAliases() map[string][]string {
	return map[string][]string{
		"Creation Date": {
			"EXIF:DateTimeOriginal", "XMP:CreateDate", "IPTC:DateCreated", "QuickTime:CreateDate",
		},
		"Modification Date": {
			"EXIF:ModifyDate", "XMP:ModifyDate", "File:FileModifyDate",
		},
		"Camera Model": {
			"EXIF:Model", "XMP:Model", "MakerNotes:CameraModelName",
		},
		"Camera Make": {"EXIF:Make", "XMP:Make"},
		"Image Width": {
			"EXIF:ImageWidth", "File:ImageWidth", "PNG:ImageWidth",
		},
		"Image Height": {
			"EXIF:ImageHeight", "File:ImageHeight", "PNG:ImageHeight",
		},
		"Duration": {
			"QuickTime:Duration", "Video:Duration", "Audio:Duration",
		},
		"Frame Rate": {
			"QuickTime:VideoFrameRate", "Video:FrameRate", "H264:FrameRate",
		},
		"Audio Codec": {
			"Audio Format Audio Rec Port Audio Codec", "QuickTime:AudioFormat", "Audio:Codec",
		},
		"Video Codec": {
			"QuickTime:VideoCodec", "Video:Codec", "H264:CodecID",
		},
		"GPS Latitude": {
			"EXIF:GPSLatitude", "XMP:GPSLatitude", "Composite:GPSLatitude",
		},
		"GPS Longitude": {
			"EXIF:GPSLongitude", "XMP:GPSLongitude", "Composite:GPSLongitude",
		},
		"Copyright": {
			"EXIF:Copyright", "XMP:Rights", "IPTC:CopyrightNotice",
		},
		"Artist": {
			"EXIF:Artist", "XMP:Creator", "IPTC:By-line", "ID3:Artist",
		},
		"Title": {
			"XMP:Title", "IPTC:ObjectName", "QuickTime:DisplayName", "ID3:Title",
		},
		"ISO": {"EXIF:ISO", "XMP:ISO", "MakerNotes:ISO"},
		"Shutter Speed": {
			"EXIF:ShutterSpeed", "XMP:ShutterSpeed", "Composite:ShutterSpeed",
		},
		"Aperture": {
			"EXIF:Aperture", "XMP:Aperture", "Composite:Aperture",
		},
		"Focal Length": {"EXIF:FocalLength", "XMP:FocalLength"},
		"Sample Rate": {
			"Audio:SampleRate", "QuickTime:AudioSampleRate", "RIFF:SampleRate",
		},
		"Bit Rate": {
			"Audio:BitRate", "Video:BitRate", "File:AvgBitrate",
		},
		"Channels": {
			"Audio:Channels", "Audio Format Num Of Channel", "QuickTime:AudioChannels",
		},
		"Color Space": {
			"EXIF:ColorSpace", "ICC_Profile:ColorSpaceData",
		},
		"Orientation": {"EXIF:Orientation", "XMP:Orientation"},
	}
}

func (r *Registry) insertSemantic(name, original string, priority int) {
	list := r.semanticIndex[name]
	for _, existing := range list {
		if existing == original {
			return
		}
	}
	list = append(list, original)
	sort.SliceStable(list, func(i, j int) bool {
		return r.mappingPriority(list[i]) > r.mappingPriority(list[j])
	})
	r.semanticIndex[name] = list
}

func (r *Registry) mappingPriority(original string) int {
	if m, ok := r.mappings[original]; ok {
		return m.Priority
	}
	return 0
}

func (r *Registry) removeSemantic(name, original string) {
	list := r.semanticIndex[name]
	for i, existing := range list {
		if existing == original {
			r.semanticIndex[name] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// snapshot pushes the current mapping table onto history and clears future.
// Caller must hold the write lock.
func (r *Registry) snapshot() {
	copied := make(map[string]types.KeyMapping, len(r.mappings))
	for k, v := range r.mappings {
		copied[k] = v
	}
	r.history = append(r.history, types.RegistrySnapshot{Mappings: copied, TakenAt: time.Now()})
	if len(r.history) > r.maxHistory {
		r.history = r.history[len(r.history)-r.maxHistory:]
	}
	r.future = nil
}

// CanUndo reports whether Undo would have any effect.
func (r *Registry) CanUndo() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.history) > 0
}

// CanRedo reports whether Redo would have any effect.
func (r *Registry) CanRedo() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.future) > 0
}

// Undo restores the most recent snapshot, moving the current state to future.
func (r *Registry) Undo() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) == 0 {
		return false
	}

	current := types.RegistrySnapshot{Mappings: r.mappings, TakenAt: time.Now()}
	r.future = append(r.future, current)

	last := r.history[len(r.history)-1]
	r.history = r.history[:len(r.history)-1]
	r.mappings = last.Mappings
	r.rebuildSemanticIndex()
	return true
}

// Redo reverses the most recent Undo.
func (r *Registry) Redo() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.future) == 0 {
		return false
	}

	current := types.RegistrySnapshot{Mappings: r.mappings, TakenAt: time.Now()}
	r.history = append(r.history, current)

	next := r.future[len(r.future)-1]
	r.future = r.future[:len(r.future)-1]
	r.mappings = next.Mappings
	r.rebuildSemanticIndex()
	return true
}

func (r *Registry) rebuildSemanticIndex() {
	r.semanticIndex = make(map[string][]string)
	for original, mapping := range r.mappings {
		if mapping.SemanticName != "" {
			r.semanticIndex[mapping.SemanticName] = append(r.semanticIndex[mapping.SemanticName], original)
		}
	}
	for name := range r.semanticIndex {
		list := r.semanticIndex[name]
		sort.SliceStable(list, func(i, j int) bool {
			return r.mappingPriority(list[i]) > r.mappingPriority(list[j])
		})
	}
}

// persistedMapping is the wire shape (JSON or YAML) for one registry entry.
type persistedMapping struct {
	Original   string `json:"original" yaml:"original"`
	Simplified string `json:"simplified" yaml:"simplified"`
	Semantic   string `json:"semantic,omitempty" yaml:"semantic,omitempty"`
	Priority   int    `json:"priority" yaml:"priority"`
	Source     string `json:"source,omitempty" yaml:"source,omitempty"`
}

type persistedRegistry struct {
	Version  int                `json:"version" yaml:"version"`
	Mappings []persistedMapping `json:"mappings" yaml:"mappings"`
}

const registryFormatVersion = 1

// ExportToDict returns the registry's mappings in the persistence shape.
func (r *Registry) ExportToDict() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]persistedMapping, 0, len(r.mappings))
	for _, m := range r.mappings {
		entries = append(entries, persistedMapping{
			Original: m.OriginalKey, Simplified: m.SimplifiedKey,
			Semantic: m.SemanticName, Priority: m.Priority, Source: m.Source,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Original < entries[j].Original })

	return map[string]interface{}{"version": registryFormatVersion, "mappings": entries}
}

// isYAMLPath reports whether path names a YAML file by extension.
func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// ExportToFile writes the registry to path, hand-editing-friendly YAML if
// path ends in .yaml/.yml and JSON otherwise.
func (r *Registry) ExportToFile(path string) error {
	if isYAMLPath(path) {
		return r.exportAs(path, yaml.Marshal)
	}
	return r.exportAs(path, func(v interface{}) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	})
}

func (r *Registry) exportAs(path string, marshal func(interface{}) ([]byte, error)) error {
	doc := r.ExportToDict()
	data, err := marshal(doc)
	if err != nil {
		return errors.WrapInternal(err, errors.ErrCodeInternalError, "marshal key registry export")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.WrapInternal(err, errors.ErrCodeInternalError, "write key registry export")
	}
	return nil
}

// ImportFromDict loads entries from a previously exported document. When
// merge is false, the existing mapping table is replaced; when true, entries
// are added on top of what's already present.
func (r *Registry) ImportFromDict(doc map[string]interface{}, merge bool) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return errors.WrapRegistry(err, errors.ErrCodeRegistryMalformed, "re-marshal import document")
	}
	var parsed persistedRegistry
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return errors.WrapRegistry(err, errors.ErrCodeRegistryMalformed, "parse key registry import")
	}
	return r.importParsed(parsed, merge)
}

// importParsed applies a decoded document to the registry. When merge is
// false, the existing mapping table is replaced first.
func (r *Registry) importParsed(parsed persistedRegistry, merge bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot()

	if !merge {
		r.mappings = make(map[string]types.KeyMapping)
	}
	for _, entry := range parsed.Mappings {
		r.mappings[entry.Original] = types.KeyMapping{
			OriginalKey: entry.Original, SimplifiedKey: entry.Simplified,
			SemanticName: entry.Semantic, Priority: entry.Priority, Source: entry.Source,
			CreatedAt: time.Now(),
		}
	}
	r.rebuildSemanticIndex()
	return nil
}

// ImportFromFile loads and imports a registry export from path, reading it
// as YAML if path ends in .yaml/.yml and JSON otherwise.
func (r *Registry) ImportFromFile(path string, merge bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapRegistry(err, errors.ErrCodeRegistryMalformed, "read key registry import file")
	}

	var parsed persistedRegistry
	if isYAMLPath(path) {
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return errors.WrapRegistry(err, errors.ErrCodeRegistryMalformed, "parse key registry import file")
		}
	} else {
		if err := json.Unmarshal(data, &parsed); err != nil {
			return errors.WrapRegistry(err, errors.ErrCodeRegistryMalformed, "parse key registry import file")
		}
	}
	return r.importParsed(parsed, merge)
}
