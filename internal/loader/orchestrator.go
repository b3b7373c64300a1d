package loader

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/conneroisu/metaforge/internal/companion"
	"github.com/conneroisu/metaforge/internal/logging"
	"github.com/conneroisu/metaforge/internal/metadatacache"
	"github.com/conneroisu/metaforge/internal/types"
)

// UICollaborator receives progressive notifications from the orchestrator.
// A nil UICollaborator is a no-op.
type UICollaborator interface {
	ShowWait(total int)
	ShowProgress(completed, total int, handle types.FileHandle)
	NotifyChanged(path types.Path)
	HideIndicators()
}

// Orchestrator is the top-level loading entry point (C6): cache pre-check,
// mode selection between single-file and pooled paths, and companion
// enhancement, fronting C1 through C5.
type Orchestrator struct {
	cache     *metadatacache.Cache
	companion *companion.Handler
	extractor Extractor
	pool      *Pool
	logger    logging.Logger

	cancelled  int32
	mu         sync.Mutex
	runCancels []context.CancelFunc
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cache *metadatacache.Cache, companionHandler *companion.Handler, extractor Extractor, pool *Pool, logger logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewTestLogger()
	}
	return &Orchestrator{cache: cache, companion: companionHandler, extractor: extractor, pool: pool, logger: logger}
}

// Cancel sets the cancellation flag polled by IsCancelled and aborts every
// in-flight pooled load started by LoadMetadataForItems or
// LoadMetadataStreaming.
func (o *Orchestrator) Cancel() {
	atomic.StoreInt32(&o.cancelled, 1)
	o.mu.Lock()
	cancels := o.runCancels
	o.runCancels = nil
	o.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (o *Orchestrator) registerCancel(cancel context.CancelFunc) (unregister func()) {
	o.mu.Lock()
	o.runCancels = append(o.runCancels, cancel)
	idx := len(o.runCancels) - 1
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		if idx < len(o.runCancels) {
			o.runCancels[idx] = nil
		}
		o.mu.Unlock()
	}
}

// IsCancelled reports whether Cancel has been called.
func (o *Orchestrator) IsCancelled() bool {
	return atomic.LoadInt32(&o.cancelled) == 1
}

// LoadMetadataForItems is the public contract: batch cache pre-check,
// mode selection (single-file vs pooled), companion enhancement and
// cache storage for every item that needs loading.
func (o *Orchestrator) LoadMetadataForItems(ctx context.Context, items []types.FileHandle, extended bool, sourceTag string, ui UICollaborator, onFinished func()) {
	toLoad := o.classify(items, extended)

	if len(toLoad) == 0 {
		if ui != nil {
			ui.HideIndicators()
		}
		if onFinished != nil {
			onFinished()
		}
		return
	}

	if len(toLoad) == 1 {
		o.loadSingle(ctx, toLoad[0], extended, sourceTag, ui)
	} else {
		o.loadMany(ctx, toLoad, extended, sourceTag, ui)
	}

	if ui != nil {
		ui.HideIndicators()
	}
	if onFinished != nil {
		onFinished()
	}
}

// classify batch-looks-up every item against the metadata cache and returns
// the subset that actually needs loading under the spec's skip/load rule.
func (o *Orchestrator) classify(items []types.FileHandle, extended bool) []types.FileHandle {
	paths := make([]types.Path, len(items))
	for i, it := range items {
		paths[i] = it.Path
	}
	cached := o.cache.GetEntriesBatch(paths)

	var toLoad []types.FileHandle
	for _, it := range items {
		entry, ok := cached[it.Path]
		if ok && (entry.IsExtended == extended || (entry.IsExtended && !extended)) {
			continue
		}
		toLoad = append(toLoad, it)
	}
	return toLoad
}

func (o *Orchestrator) loadSingle(ctx context.Context, handle types.FileHandle, extended bool, sourceTag string, ui UICollaborator) {
	if ui != nil {
		ui.ShowWait(1)
	}

	mapping := o.extractor.GetMetadata(ctx, string(handle.Path), extended)
	mapping = applyExtendedSentinel(mapping, extended)
	o.storeAndNotify(ctx, handle, mapping, extended, sourceTag, ui)
}

func (o *Orchestrator) loadMany(ctx context.Context, handles []types.FileHandle, extended bool, sourceTag string, ui UICollaborator) {
	if ui != nil {
		ui.ShowWait(len(handles))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	unregister := o.registerCancel(cancel)
	defer unregister()

	onProgress := func(completed, total int, handle types.FileHandle, mapping types.MetadataValues) {
		o.storeAndNotify(runCtx, handle, mapping, extended, sourceTag, ui)
		if ui != nil {
			ui.ShowProgress(completed, total, handle)
		}
	}
	o.pool.Run(runCtx, handles, extended, onProgress, nil)
}

func (o *Orchestrator) storeAndNotify(ctx context.Context, handle types.FileHandle, mapping types.MetadataValues, extended bool, sourceTag string, ui UICollaborator) {
	enhanced := mapping
	if o.companion != nil {
		set := o.companion.Enhance(ctx, handle.Path, handle.DirListing, mapping)
		enhanced = set.Merged
	}

	if err := o.cache.Set(handle.Path, enhanced, extended); err != nil {
		o.logger.Warn(ctx, err, "metadata cache rejected load result", "path", string(handle.Path))
	}
	if ui != nil {
		ui.NotifyChanged(handle.Path)
	}
}

// StreamItem is one element of the streaming variant's lazy sequence.
type StreamItem struct {
	Handle  types.FileHandle
	Mapping types.MetadataValues
}

// LoadMetadataStreaming yields cached entries immediately, in input order,
// followed by freshly loaded entries in completion order. Not restartable:
// the returned channel is closed once every item has been delivered.
func (o *Orchestrator) LoadMetadataStreaming(ctx context.Context, items []types.FileHandle, extended bool) <-chan StreamItem {
	out := make(chan StreamItem, len(items))

	var cachedHandles, loadHandles []types.FileHandle
	paths := make([]types.Path, len(items))
	for i, it := range items {
		paths[i] = it.Path
	}
	cached := o.cache.GetEntriesBatch(paths)

	for _, it := range items {
		if entry, ok := cached[it.Path]; ok && (entry.IsExtended == extended || (entry.IsExtended && !extended)) {
			cachedHandles = append(cachedHandles, it)
		} else {
			loadHandles = append(loadHandles, it)
		}
	}

	go func() {
		defer close(out)
		for _, h := range cachedHandles {
			entry, _ := o.cache.GetEntry(h.Path)
			if entry != nil {
				out <- StreamItem{Handle: h, Mapping: entry.Values}
			}
		}
		if len(loadHandles) == 0 {
			return
		}

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		unregister := o.registerCancel(cancel)
		defer unregister()

		onProgress := func(completed, total int, handle types.FileHandle, mapping types.MetadataValues) {
			o.storeAndNotify(runCtx, handle, mapping, extended, "", nil)
			out <- StreamItem{Handle: handle, Mapping: mapping}
		}
		o.pool.Run(runCtx, loadHandles, extended, onProgress, nil)
	}()

	return out
}
