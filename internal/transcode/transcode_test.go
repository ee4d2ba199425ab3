package transcode

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
)

func TestTailReturnsInputUnchangedWhenShort(t *testing.T) {
	assert.Equal(t, "short error", tail("short error"))
}

func TestTailTruncatesToLastBytes(t *testing.T) {
	long := strings.Repeat("x", 3000) + "END"
	got := tail(long)
	assert.Len(t, got, 2000)
	assert.True(t, strings.HasSuffix(got, "END"))
}

func TestToWAVWrapsNonZeroExit(t *testing.T) {
	err := ToWAV(context.Background(), "false", "in.mp4", "out.wav")
	assert.Error(t, err)
	assert.Equal(t, apperr.TranscodeFailed, apperr.KindOf(err))
}

func TestToWAVWrapsMissingBinary(t *testing.T) {
	err := ToWAV(context.Background(), "/no/such/ffmpeg-binary", "in.mp4", "out.wav")
	assert.Error(t, err)
	assert.Equal(t, apperr.TranscodeFailed, apperr.KindOf(err))
}
