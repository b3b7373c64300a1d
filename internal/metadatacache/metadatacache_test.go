package metadatacache

import (
	"testing"

	"github.com/conneroisu/metaforge/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetGetEntry(t *testing.T) {
	c := New()
	path := types.NewPath("/a.jpg")
	require.NoError(t, c.Set(path, types.MetadataValues{"Model": {Key: "Model", Value: "X100"}}, false))

	entry, ok := c.GetEntry(path)
	require.True(t, ok)
	assert.Equal(t, "X100", entry.Values["Model"].Value)
	assert.False(t, entry.IsExtended)
}

func TestCache_Set_RefusesDowngrade(t *testing.T) {
	c := New()
	path := types.NewPath("/a.jpg")
	require.NoError(t, c.Set(path, types.MetadataValues{}, true))

	err := c.Set(path, types.MetadataValues{}, false)
	require.Error(t, err)

	entry, _ := c.GetEntry(path)
	assert.True(t, entry.IsExtended, "existing extended entry must survive a rejected downgrade")
}

func TestCache_SetAllowDowngrade_Succeeds(t *testing.T) {
	c := New()
	path := types.NewPath("/a.jpg")
	require.NoError(t, c.Set(path, types.MetadataValues{}, true))
	require.NoError(t, c.SetAllowDowngrade(path, types.MetadataValues{}, false))

	entry, _ := c.GetEntry(path)
	assert.False(t, entry.IsExtended)
}

func TestCache_GetEntriesBatch(t *testing.T) {
	c := New()
	a, b := types.NewPath("/a.jpg"), types.NewPath("/b.jpg")
	require.NoError(t, c.Set(a, types.MetadataValues{}, false))
	require.NoError(t, c.Set(b, types.MetadataValues{}, false))

	batch := c.GetEntriesBatch([]types.Path{a, b, types.NewPath("/missing.jpg")})
	assert.Len(t, batch, 2)
}

func TestCache_Iterate(t *testing.T) {
	c := New()
	require.NoError(t, c.Set(types.NewPath("/a.jpg"), types.MetadataValues{}, false))
	require.NoError(t, c.Set(types.NewPath("/b.jpg"), types.MetadataValues{}, false))

	seen := 0
	c.Iterate(func(path types.Path, entry *types.MetadataEntry) { seen++ })
	assert.Equal(t, 2, seen)
}

func TestCache_Clear(t *testing.T) {
	c := New()
	require.NoError(t, c.Set(types.NewPath("/a.jpg"), types.MetadataValues{}, false))
	c.Clear()
	assert.Equal(t, 0, c.Count())
}

func TestCache_InvalidateByPaths(t *testing.T) {
	c := New()
	a, b := types.NewPath("/a.jpg"), types.NewPath("/b.jpg")
	require.NoError(t, c.Set(a, types.MetadataValues{}, false))
	require.NoError(t, c.Set(b, types.MetadataValues{}, false))

	removed := c.InvalidateByPaths([]string{"/a.jpg", "/missing.jpg"})
	assert.Equal(t, 1, removed)
	_, ok := c.GetEntry(a)
	assert.False(t, ok)
	_, ok = c.GetEntry(b)
	assert.True(t, ok)
}

func TestCache_WatchReceivesChangeEvent(t *testing.T) {
	c := New()
	ch := c.Watch()
	defer c.Unwatch(ch)

	path := types.NewPath("/a.jpg")
	require.NoError(t, c.Set(path, types.MetadataValues{}, false))

	event := <-ch
	assert.Equal(t, path, event.Path)
}

func TestCache_Unwatch_ClosesChannel(t *testing.T) {
	c := New()
	ch := c.Watch()
	c.Unwatch(ch)

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after Unwatch")
}
