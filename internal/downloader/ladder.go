package downloader

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
	"github.com/ragaeeb/beltane-pipeline/internal/executil"
	"github.com/ragaeeb/beltane-pipeline/internal/log"
)

// DownloadOptions parameterizes one fallback-ladder download attempt.
type DownloadOptions struct {
	URL             string
	ID              string
	OutputDir       string
	AudioFormat     string // requested audio format, e.g. "m4a"
	ForceOverwrites bool
}

var commonArgs = []string{
	"--retries", "5",
	"--fragment-retries", "5",
	"--file-access-retries", "10",
	"--retry-sleep", "3",
	"--socket-timeout", "30",
	"--concurrent-fragments", "1",
	"--force-ipv4",
	"--write-info-json",
	"--continue",
	"--part",
}

var aria2cProbe struct {
	mu      sync.Mutex
	checked bool
	ok      bool
}

// ResetAria2cProbe clears the memoized aria2c availability check. Tests
// call this to exercise both branches without process restarts.
func ResetAria2cProbe() {
	aria2cProbe.mu.Lock()
	defer aria2cProbe.mu.Unlock()
	aria2cProbe.checked = false
	aria2cProbe.ok = false
}

func aria2cAvailable(ctx context.Context, bin string) bool {
	aria2cProbe.mu.Lock()
	defer aria2cProbe.mu.Unlock()
	if aria2cProbe.checked {
		return aria2cProbe.ok
	}
	res, err := executil.Run(ctx, executil.Spec{Name: bin, Args: []string{"--version"}})
	aria2cProbe.ok = err == nil && res.ExitCode == 0
	aria2cProbe.checked = true
	return aria2cProbe.ok
}

func (a *Adapter) ladder(ctx context.Context, opts DownloadOptions, aria2cBin string) [][]string {
	outputTemplate := filepath.Join(opts.OutputDir, "%(id)s.%(ext)s")

	base := func(extra ...string) []string {
		args := []string{opts.URL, "-o", outputTemplate}
		args = append(args, commonArgs...)
		if opts.ForceOverwrites {
			args = append(args, "--force-overwrites")
		}
		args = append(args, extra...)
		return args
	}

	format := opts.AudioFormat
	if format == "" {
		format = "m4a"
	}

	rungs := [][]string{
		base("-f", "bestaudio[ext="+format+"]/bestaudio/best"),
		base("-f", "bestaudio[acodec=opus][abr<=128]/bestaudio[acodec=opus]/bestaudio"),
		base("-f", "bestaudio[acodec=opus][abr<=64]/bestaudio"),
	}

	if aria2cAvailable(ctx, aria2cBin) {
		rungs = append(rungs, base(
			"-f", "bestaudio/best",
			"--downloader", "aria2c",
			"--downloader-args", "aria2c:-x16 -s16 -k1M",
		))
	}

	rungs = append(rungs,
		base("-f", "bestaudio/best",
			"--downloader", "ffmpeg",
			"--downloader-args", "ffmpeg:-reconnect 1 -reconnect_streamed 1 -reconnect_delay_max 5"),
		base("-f", "best"),
	)

	return rungs
}

// Download attempts each rung of the fallback ladder in order, stopping
// at the first exit-0 attempt. It aborts immediately with Interrupted
// if any attempt's output indicates a user-initiated interrupt.
func (a *Adapter) Download(ctx context.Context, opts DownloadOptions, aria2cBin string) error {
	logger := log.WithComponent("downloader")

	if a.pace != nil {
		if err := a.pace.Wait(ctx); err != nil {
			return apperr.Wrap(apperr.Interrupted, "download pacing wait", err)
		}
	}

	rungs := a.ladder(ctx, opts, aria2cBin)

	var lastErr error
	for i, args := range rungs {
		res, err := executil.Stream(ctx, executil.Spec{Name: a.YtDlpBin, Args: args})
		combined := res.StdoutTail + "\n" + res.StderrTail
		if isInterrupted(combined) {
			return apperr.New(apperr.Interrupted, "download interrupted by user")
		}
		if err == nil && res.ExitCode == 0 {
			logger.Info().Int("rung", i).Str("id", opts.ID).Msg("download succeeded")
			return nil
		}
		lastErr = apperr.Wrap(apperr.DownloadFailed, "yt-dlp attempt failed", err)
		logger.Warn().Int("rung", i).Int("exit_code", res.ExitCode).Msg("download attempt failed, trying next rung")
	}

	if lastErr == nil {
		lastErr = apperr.New(apperr.DownloadFailed, "all download attempts exhausted")
	}
	return lastErr
}

func isInterrupted(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "interrupted by user") || strings.Contains(lower, "keyboardinterrupt")
}
