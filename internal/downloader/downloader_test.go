package downloader

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLastNonEmptyLinePicksTrailingLine(t *testing.T) {
	assert.Equal(t, "dQw4w9WgXcQ", lastNonEmptyLine("dQw4w9WgXcQ\n\n"))
	assert.Equal(t, "b", lastNonEmptyLine("a\nb\n\n  \n"))
	assert.Equal(t, "", lastNonEmptyLine("\n\n   \n"))
}

func TestIsInterruptedDetectsKnownMarkers(t *testing.T) {
	assert.True(t, isInterrupted("ERROR: Interrupted by user"))
	assert.True(t, isInterrupted("KeyboardInterrupt\n"))
	assert.False(t, isInterrupted("ERROR: network unreachable"))
}

func TestAria2cAvailableMemoizesResult(t *testing.T) {
	defer ResetAria2cProbe()

	ResetAria2cProbe()
	assert.True(t, aria2cAvailable(context.Background(), "true"))

	// Without resetting, a binary that would fail still reports the
	// memoized true result.
	assert.True(t, aria2cAvailable(context.Background(), "false"))

	ResetAria2cProbe()
	assert.False(t, aria2cAvailable(context.Background(), "false"))
}

func TestLadderAppendsAria2cRungWhenAvailable(t *testing.T) {
	defer ResetAria2cProbe()
	ResetAria2cProbe()

	a := New("yt-dlp", "ffprobe")
	opts := DownloadOptions{URL: "https://example.com/watch", ID: "abc123", OutputDir: t.TempDir()}

	withAria2c := a.ladder(context.Background(), opts, "true")

	ResetAria2cProbe()
	withoutAria2c := a.ladder(context.Background(), opts, "false")

	assert.Len(t, withAria2c, len(withoutAria2c)+1)
}

func TestFirstPositivePicksFirstUsableValue(t *testing.T) {
	// exercised indirectly by ValidateOutput elsewhere; this guards the
	// tie-break order directly.
	zero := json.Number("0")
	empty := json.Number("")
	five := json.Number("5")
	assert.Equal(t, 5.0, firstPositive(zero, empty, five))
}
