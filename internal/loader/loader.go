// Package loader implements the parallel extraction pool (C5) and the
// top-level loading orchestrator (C6) that sits above it, the cache, and
// the companion handler.
package loader

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/conneroisu/metaforge/internal/logging"
	"github.com/conneroisu/metaforge/internal/types"
)

const extendedSentinel = "__extended__"

// Extractor is the subset of the extractor client the pool needs.
type Extractor interface {
	GetMetadata(ctx context.Context, path string, extended bool) types.MetadataValues
}

// WorkerCount returns the pool's fixed worker count for logicalCores, the
// spec's min(2*cores, 16) rule.
func WorkerCount(logicalCores int) int {
	n := 2 * logicalCores
	if n > 16 {
		n = 16
	}
	if n < 1 {
		n = 1
	}
	return n
}

// item is one (handle, extended) work unit.
type item struct {
	index    int
	handle   types.FileHandle
	extended bool
}

// Result pairs an input index with its extraction outcome.
type Result struct {
	Index    int
	Handle   types.FileHandle
	Mapping  types.MetadataValues
	Finished bool // false for slots left empty by cancellation
}

// ProgressFunc is invoked once per completed item, in completion order, from
// a single goroutine (the pool's own consumer loop).
type ProgressFunc func(completionIndex, total int, handle types.FileHandle, mapping types.MetadataValues)

// Pool is the bounded-parallelism extraction pool (C5).
type Pool struct {
	extractor Extractor
	workers   int
	logger    logging.Logger
}

// New creates a Pool sized to workers (use WorkerCount for the spec default).
func New(extractor Extractor, workers int, logger logging.Logger) *Pool {
	if workers < 1 {
		workers = WorkerCount(runtime.NumCPU())
	}
	if logger == nil {
		logger = logging.NewTestLogger()
	}
	return &Pool{extractor: extractor, workers: workers, logger: logger}
}

// Run submits every (handle, extended) pair at once and delivers results to
// onProgress in completion order. The returned slice preserves input order,
// filling any item left unfinished by cancellation with an empty mapping.
// onComplete is called exactly once with whether every item finished.
func (p *Pool) Run(ctx context.Context, handles []types.FileHandle, extended bool, onProgress ProgressFunc, onComplete func(success bool)) []types.MetadataValues {
	total := len(handles)
	out := make([]types.MetadataValues, total)
	for i := range out {
		out[i] = types.MetadataValues{}
	}
	if total == 0 {
		if onComplete != nil {
			onComplete(true)
		}
		return out
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	work := make(chan item, total)
	for i, h := range handles {
		work <- item{index: i, handle: h, extended: extended}
	}
	close(work)

	results := make(chan struct {
		item
		mapping types.MetadataValues
	}, total)

	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range work {
				select {
				case <-runCtx.Done():
					return
				default:
				}
				mapping := p.extractor.GetMetadata(runCtx, string(it.handle.Path), it.extended)
				mapping = applyExtendedSentinel(mapping, it.extended)
				select {
				case results <- struct {
					item
					mapping types.MetadataValues
				}{it, mapping}:
				case <-runCtx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	var cancelled int32
	go func() {
		<-ctx.Done()
		atomic.StoreInt32(&cancelled, 1)
	}()

	for r := range results {
		out[r.index] = r.mapping
		completed++
		if onProgress != nil {
			onProgress(completed, total, r.item.handle, r.mapping)
		}
	}

	success := completed == total && atomic.LoadInt32(&cancelled) == 0
	if onComplete != nil {
		onComplete(success)
	}
	return out
}

func applyExtendedSentinel(mapping types.MetadataValues, extended bool) types.MetadataValues {
	if mapping == nil {
		mapping = types.MetadataValues{}
	}
	if extended {
		mapping[extendedSentinel] = types.MetadataValue{Key: extendedSentinel, Value: "true", Raw: true}
	} else {
		delete(mapping, extendedSentinel)
	}
	return mapping
}
