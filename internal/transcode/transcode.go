// Package transcode normalizes arbitrary media to 16 kHz mono PCM WAV
// via ffmpeg.
package transcode

import (
	"context"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
	"github.com/ragaeeb/beltane-pipeline/internal/executil"
)

// ToWAV runs ffmpeg on inputPath, writing a 16 kHz mono 16-bit PCM WAV
// to outputPath. Fails with TranscodeFailed on non-zero exit, carrying
// the ffmpeg stderr tail.
func ToWAV(ctx context.Context, ffmpegBin, inputPath, outputPath string) error {
	res, err := executil.Run(ctx, executil.Spec{
		Name: ffmpegBin,
		Args: []string{
			"-y", "-hide_banner", "-loglevel", "error",
			"-i", inputPath,
			"-vn", "-ar", "16000", "-ac", "1", "-c:a", "pcm_s16le",
			outputPath,
		},
	})
	if err != nil {
		return apperr.Wrap(apperr.TranscodeFailed, "run ffmpeg", err)
	}
	if res.ExitCode != 0 {
		return apperr.New(apperr.TranscodeFailed, "ffmpeg exited non-zero: "+tail(res.Stderr))
	}
	return nil
}

func tail(s string) string {
	const max = 2000
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
