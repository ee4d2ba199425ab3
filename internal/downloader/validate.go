package downloader

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
	"github.com/ragaeeb/beltane-pipeline/internal/executil"
)

// infoJSON is the subset of yt-dlp's <id>.info.json this adapter reads.
type infoJSON struct {
	ID             string      `json:"id"`
	Ext            string      `json:"ext"`
	Filesize       json.Number `json:"filesize"`
	FilesizeApprox json.Number `json:"filesize_approx"`
	Duration       json.Number `json:"duration"`
}

// ValidatedOutput describes the media file a ladder attempt produced.
type ValidatedOutput struct {
	MediaPath string
	InfoPath  string
	Ext       string
}

// ValidateOutput reads <outputDir>/<id>.info.json and stats the media
// file it names, failing with IncompleteDownload if the file is
// missing, undersized, or (per ffprobe) underlong relative to the
// declared metadata.
func (a *Adapter) ValidateOutput(ctx context.Context, outputDir, id string) (ValidatedOutput, error) {
	infoPath := filepath.Join(outputDir, id+".info.json")
	raw, err := os.ReadFile(infoPath)
	if err != nil {
		return ValidatedOutput{}, apperr.Wrap(apperr.IncompleteDownload, "read info.json", err)
	}

	var info infoJSON
	if err := json.Unmarshal(raw, &info); err != nil {
		return ValidatedOutput{}, apperr.Wrap(apperr.IncompleteDownload, "parse info.json", err)
	}
	if info.ID == "" {
		return ValidatedOutput{}, apperr.New(apperr.IncompleteDownload, "info.json missing id")
	}

	ext := info.Ext
	if ext == "" {
		ext = "webm"
	}

	mediaPath := filepath.Join(outputDir, id+"."+ext)
	stat, err := os.Stat(mediaPath)
	if err != nil {
		return ValidatedOutput{}, apperr.Wrap(apperr.IncompleteDownload, "stat media file", err)
	}

	declaredSize := firstPositive(info.Filesize, info.FilesizeApprox)
	if declaredSize > 0 && float64(stat.Size()) < 0.95*declaredSize {
		return ValidatedOutput{}, apperr.New(apperr.IncompleteDownload, "media file smaller than declared size")
	}

	declaredDuration, _ := info.Duration.Float64()
	if declaredDuration > 0 {
		actual, ok := a.probeDuration(ctx, mediaPath)
		if ok && actual < 0.95*declaredDuration {
			return ValidatedOutput{}, apperr.New(apperr.IncompleteDownload, "media duration shorter than declared")
		}
	}

	return ValidatedOutput{MediaPath: mediaPath, InfoPath: infoPath, Ext: ext}, nil
}

func firstPositive(nums ...json.Number) float64 {
	for _, n := range nums {
		if f, err := n.Float64(); err == nil && f > 0 {
			return f
		}
	}
	return 0
}

// probeDuration asks ffprobe for the media duration in seconds. An
// ffprobe failure is treated as "unknown duration", not fatal.
func (a *Adapter) probeDuration(ctx context.Context, mediaPath string) (float64, bool) {
	res, err := executil.Run(ctx, executil.Spec{
		Name: a.FFprobeBin,
		Args: []string{"-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", mediaPath},
	})
	if err != nil || res.ExitCode != 0 {
		return 0, false
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(res.Stdout), 64)
	if err != nil {
		return 0, false
	}
	return d, true
}
