package extractor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/conneroisu/metaforge/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExtractorScript writes a tiny shell script that mimics exiftool's
// "-j" JSON-array output shape, avoiding a real exiftool dependency in CI.
func fakeExtractorScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fakeextract.sh")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestClient_GetMetadataBatch_MissingBinary(t *testing.T) {
	c := New(Config{BinaryPath: "/no/such/binary", ExtendedFlag: "-ee"}, logging.NewTestLogger())
	results, err := c.GetMetadataBatch(context.Background(), []string{"/a.jpg"}, false)
	require.Error(t, err)
	assert.Empty(t, results["/a.jpg"])
}

func TestClient_GetMetadataBatch_ParsesJSON(t *testing.T) {
	script := fakeExtractorScript(t, `echo '[{"SourceFile":"/a.jpg","EXIF:Model":"X100"}]'`)
	c := New(Config{BinaryPath: script}, logging.NewTestLogger())

	results, err := c.GetMetadataBatch(context.Background(), []string{"/a.jpg"}, false)
	require.NoError(t, err)
	require.Contains(t, results, "/a.jpg")
	assert.Equal(t, "X100", results["/a.jpg"]["EXIF:Model"].Value)
}

func TestClient_GetMetadataBatch_EmptyPaths(t *testing.T) {
	c := New(Config{BinaryPath: "irrelevant"}, logging.NewTestLogger())
	results, err := c.GetMetadataBatch(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClient_Close_RejectsFurtherCalls(t *testing.T) {
	c := New(Config{BinaryPath: "irrelevant"}, logging.NewTestLogger())
	require.NoError(t, c.Close())
	_, err := c.GetMetadataBatch(context.Background(), []string{"/a.jpg"}, false)
	assert.Error(t, err)
}
