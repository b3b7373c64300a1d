package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineError_Error(t *testing.T) {
	err := NewCacheError(ErrCodeCacheIO, "disk write failed", errors.New("no space left"))
	assert.Contains(t, err.Error(), "ERR_CACHE_IO")
	assert.Contains(t, err.Error(), "no space left")
}

func TestEngineError_IsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(NewExtractionError("X", "msg", nil)))
	assert.False(t, IsRecoverable(NewRegistryError("X", "msg")))
}

func TestWrap_PreservesExistingEngineError(t *testing.T) {
	inner := NewCompanionError(ErrCodeCompanionParse, "bad xmp", nil).WithFilePath("/a.xmp")
	outer := Wrap(inner, ErrorTypeInternal, "X", "enhance failed")
	require.NotNil(t, outer)
	assert.Equal(t, "/a.xmp", outer.FilePath)
	assert.ErrorIs(t, outer, inner)
}

func TestIsInvariantViolation(t *testing.T) {
	assert.True(t, IsInvariantViolation(ErrInvariantViolation))
	wrapped := WrapInternal(ErrInvariantViolation, "X", "downgrade rejected")
	assert.True(t, IsInvariantViolation(wrapped))
}

func TestCombineErrors(t *testing.T) {
	assert.Nil(t, CombineErrors(nil, nil))
	single := errors.New("one")
	assert.Equal(t, single, CombineErrors(single))
	combined := CombineErrors(errors.New("a"), errors.New("b"))
	require.Error(t, combined)
	assert.Contains(t, combined.Error(), "2 errors")
}
