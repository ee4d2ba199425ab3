package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalVideoIDIsStableAndLength32(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lecture.mp4")
	require.NoError(t, os.WriteFile(path, []byte("some media bytes"), 0o644))

	id1, err := LocalVideoID(path)
	require.NoError(t, err)
	id2, err := LocalVideoID(path)
	require.NoError(t, err)

	assert.Len(t, id1, 32)
	assert.Equal(t, id1, id2)
}

func TestLocalVideoIDDiffersByContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.mp4")
	b := filepath.Join(dir, "b.mp4")
	require.NoError(t, os.WriteFile(a, []byte("aaaa"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("bbbbbbbb"), 0o644))

	idA, err := LocalVideoID(a)
	require.NoError(t, err)
	idB, err := LocalVideoID(b)
	require.NoError(t, err)
	assert.NotEqual(t, idA, idB)
}

func TestLocalVideoIDErrorsOnMissingFile(t *testing.T) {
	_, err := LocalVideoID("/no/such/file.mp4")
	assert.Error(t, err)
}
