package api

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRangeBoundaryBehaviors(t *testing.T) {
	const size = int64(1000)

	t.Run("single byte", func(t *testing.T) {
		start, end, err := parseRange("bytes=0-0", size)
		require.NoError(t, err)
		assert.Equal(t, int64(0), start)
		assert.Equal(t, int64(0), end)
	})

	t.Run("suffix range", func(t *testing.T) {
		start, end, err := parseRange("bytes=-100", size)
		require.NoError(t, err)
		assert.Equal(t, int64(900), start)
		assert.Equal(t, int64(999), end)
	})

	t.Run("suffix longer than size clamps to whole file", func(t *testing.T) {
		start, end, err := parseRange("bytes=-5000", size)
		require.NoError(t, err)
		assert.Equal(t, int64(0), start)
		assert.Equal(t, int64(999), end)
	})

	t.Run("open-ended range", func(t *testing.T) {
		start, end, err := parseRange("bytes=500-", size)
		require.NoError(t, err)
		assert.Equal(t, int64(500), start)
		assert.Equal(t, int64(999), end)
	})

	t.Run("end beyond size clamps", func(t *testing.T) {
		start, end, err := parseRange("bytes=990-5000", size)
		require.NoError(t, err)
		assert.Equal(t, int64(990), start)
		assert.Equal(t, int64(999), end)
	})

	t.Run("malformed unit", func(t *testing.T) {
		_, _, err := parseRange("items=0-1", size)
		require.Error(t, err)
	})

	t.Run("malformed start beyond size", func(t *testing.T) {
		_, _, err := parseRange("bytes=1000-1001", size)
		require.Error(t, err)
	})

	t.Run("end before start", func(t *testing.T) {
		_, _, err := parseRange("bytes=100-50", size)
		require.Error(t, err)
	})

	t.Run("multi-range unsupported", func(t *testing.T) {
		_, _, err := parseRange("bytes=0-1,2-3", size)
		require.Error(t, err)
	})
}

func TestAudioResolveCacheHitAvoidsRecompute(t *testing.T) {
	ResetAudioResolveCache()
	t.Cleanup(ResetAudioResolveCache)

	audioCachePut("vid-1", "/data/audio/vid-1.wav")

	path, ok := audioCacheGet("vid-1")
	require.True(t, ok)
	assert.Equal(t, "/data/audio/vid-1.wav", path)
}

func TestAudioResolveCacheEvictsOldestWhenFull(t *testing.T) {
	ResetAudioResolveCache()
	t.Cleanup(ResetAudioResolveCache)

	audioResolveCache.mu.Lock()
	audioResolveCache.entries = make(map[string]audioCacheEntry, audioCacheCap)
	audioResolveCache.mu.Unlock()

	for i := 0; i < audioCacheCap; i++ {
		audioCachePut(idFor(i), "/p")
		// Force a strictly increasing resolved timestamp so eviction order
		// is deterministic without depending on clock resolution.
		audioResolveCache.mu.Lock()
		e := audioResolveCache.entries[idFor(i)]
		e.resolved = e.resolved.Add(-time.Duration(audioCacheCap-i) * time.Second)
		audioResolveCache.entries[idFor(i)] = e
		audioResolveCache.mu.Unlock()
	}
	// The very first inserted entry is now the oldest and should be
	// evicted once the cache is already full and one more is added.
	audioCachePut("overflow", "/p")

	audioResolveCache.mu.Lock()
	defer audioResolveCache.mu.Unlock()
	assert.LessOrEqual(t, len(audioResolveCache.entries), audioCacheCap)
	_, stillThere := audioResolveCache.entries[idFor(0)]
	assert.False(t, stillThere, "oldest entry should have been evicted")
}

func idFor(i int) string {
	return "id-" + strconv.Itoa(i)
}
