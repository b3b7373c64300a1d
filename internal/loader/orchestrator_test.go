package loader

import (
	"context"
	"testing"

	"github.com/conneroisu/metaforge/internal/companion"
	"github.com/conneroisu/metaforge/internal/logging"
	"github.com/conneroisu/metaforge/internal/metadatacache"
	"github.com/conneroisu/metaforge/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUI struct {
	waited    bool
	notified  []types.Path
	hidden    bool
	finished  bool
	progCalls int
}

func (f *fakeUI) ShowWait(total int)                                            { f.waited = true }
func (f *fakeUI) ShowProgress(completed, total int, handle types.FileHandle)    { f.progCalls++ }
func (f *fakeUI) NotifyChanged(path types.Path)                                 { f.notified = append(f.notified, path) }
func (f *fakeUI) HideIndicators()                                               { f.hidden = true }

func newTestOrchestrator(fx *fakeExtractor) (*Orchestrator, *metadatacache.Cache) {
	cache := metadatacache.New()
	comp := companion.New(companion.Config{Enabled: false}, nil, logging.NewTestLogger())
	pool := New(fx, 2, logging.NewTestLogger())
	return NewOrchestrator(cache, comp, fx, pool, logging.NewTestLogger()), cache
}

func TestOrchestrator_EmptyCase_CallsOnFinished(t *testing.T) {
	fx := &fakeExtractor{}
	o, _ := newTestOrchestrator(fx)
	ui := &fakeUI{}

	var finished bool
	o.LoadMetadataForItems(context.Background(), nil, false, "", ui, func() { finished = true })
	assert.True(t, finished)
	assert.True(t, ui.hidden)
}

func TestOrchestrator_SkipsAlreadyCachedNonDowngrade(t *testing.T) {
	fx := &fakeExtractor{}
	o, cache := newTestOrchestrator(fx)
	path := types.NewPath("/a.jpg")
	require.NoError(t, cache.Set(path, types.MetadataValues{"Model": {Value: "cached"}}, true))

	ui := &fakeUI{}
	items := []types.FileHandle{{Path: path}}
	o.LoadMetadataForItems(context.Background(), items, false, "", ui, nil)

	assert.Empty(t, fx.calls, "extended cache entry satisfies a non-extended request")
}

func TestOrchestrator_SingleFilePath_StoresResult(t *testing.T) {
	fx := &fakeExtractor{}
	o, cache := newTestOrchestrator(fx)
	path := types.NewPath("/a.jpg")

	ui := &fakeUI{}
	o.LoadMetadataForItems(context.Background(), []types.FileHandle{{Path: path}}, false, "tag", ui, nil)

	entry, ok := cache.GetEntry(path)
	require.True(t, ok)
	assert.Equal(t, "X100", entry.Values["Model"].Value)
	assert.True(t, ui.waited)
	assert.Contains(t, ui.notified, path)
}

func TestOrchestrator_MultiFilePath_StoresAll(t *testing.T) {
	fx := &fakeExtractor{}
	o, cache := newTestOrchestrator(fx)

	items := []types.FileHandle{{Path: types.NewPath("/a.jpg")}, {Path: types.NewPath("/b.jpg")}}
	ui := &fakeUI{}
	o.LoadMetadataForItems(context.Background(), items, false, "", ui, nil)

	for _, it := range items {
		_, ok := cache.GetEntry(it.Path)
		assert.True(t, ok)
	}
	assert.Equal(t, 2, ui.progCalls)
}

func TestOrchestrator_Streaming_YieldsCachedThenFresh(t *testing.T) {
	fx := &fakeExtractor{}
	o, cache := newTestOrchestrator(fx)

	cachedPath := types.NewPath("/cached.jpg")
	require.NoError(t, cache.Set(cachedPath, types.MetadataValues{"Model": {Value: "old"}}, false))
	freshPath := types.NewPath("/fresh.jpg")

	items := []types.FileHandle{{Path: cachedPath}, {Path: freshPath}}
	ch := o.LoadMetadataStreaming(context.Background(), items, false)

	var received []types.Path
	for si := range ch {
		received = append(received, si.Handle.Path)
	}
	require.Len(t, received, 2)
	assert.Equal(t, cachedPath, received[0], "cached entries are yielded first, in input order")
}
