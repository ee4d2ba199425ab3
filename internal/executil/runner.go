// Package executil spawns external CLIs with an explicit argv vector
// (never through a shell), in either captured or streamed mode. It is
// the single subprocess boundary used by the downloader, transcoder,
// enhancement orchestrator, and transcription adapters.
package executil

import (
	"context"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/ragaeeb/beltane-pipeline/internal/log"
	"github.com/ragaeeb/beltane-pipeline/internal/procgroup"
)

// maxTailBytes bounds the rolling tail kept per stream in streamed mode.
const maxTailBytes = 64 * 1024

// Spec describes one subprocess invocation.
type Spec struct {
	Name string   // binary name or path
	Args []string
	Dir  string   // optional working directory
	Env  []string // optional overlay, merged over os.Environ()
}

// CapturedResult holds the full stdout/stderr of a captured run.
type CapturedResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// StreamedResult holds the bounded stderr/stdout tail of a streamed run.
type StreamedResult struct {
	StdoutTail string
	StderrTail string
	ExitCode   int
}

func buildCmd(ctx context.Context, spec Spec) *exec.Cmd {
	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...) // #nosec G204 -- argv is caller-constructed, never shell-interpreted
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	procgroup.Set(cmd)
	// On context cancellation, reap the whole child tree, not just the
	// direct child: yt-dlp and the helper scripts spawn their own
	// subprocesses.
	cmd.Cancel = func() error {
		return procgroup.KillGroup(cmd.Process.Pid, 2*time.Second, 10*time.Second)
	}
	return cmd
}

// Run executes spec to completion, capturing stdout/stderr in full.
// Suitable for short-lived CLIs (yt-dlp resolve-id, ffprobe, helper
// scripts) whose output is bounded by design.
func Run(ctx context.Context, spec Spec) (CapturedResult, error) {
	cmd := buildCmd(ctx, spec)

	var stdout, stderr dynamicBuffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := log.WithComponent("executil")
	logger.Debug().Str(log.FieldEvent, "exec.start").Str("bin", spec.Name).Msg("running command")

	err := cmd.Run()
	code := exitCode(cmd, err)

	return CapturedResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: code}, runErr(err)
}

// Stream executes spec, forwarding each output chunk to the host's
// standard streams as it arrives, while keeping a bounded rolling tail
// per stream so failures can be diagnosed without unbounded memory use.
func Stream(ctx context.Context, spec Spec) (StreamedResult, error) {
	cmd := buildCmd(ctx, spec)

	outTail := newTailBuffer(maxTailBytes)
	errTail := newTailBuffer(maxTailBytes)

	cmd.Stdout = io.MultiWriter(os.Stdout, outTail)
	cmd.Stderr = io.MultiWriter(os.Stderr, errTail)

	logger := log.WithComponent("executil")
	logger.Debug().Str(log.FieldEvent, "exec.start").Str("bin", spec.Name).Msg("streaming command")

	err := cmd.Run()
	code := exitCode(cmd, err)

	return StreamedResult{StdoutTail: outTail.String(), StderrTail: errTail.String(), ExitCode: code}, runErr(err)
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return 1
	}
	return 0
}

// runErr returns nil for a normal non-zero exit (callers inspect
// ExitCode themselves) but surfaces start failures (binary not found,
// context cancellation before start) as real errors.
func runErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*exec.ExitError); ok {
		return nil
	}
	return err
}

// dynamicBuffer is an unbounded io.Writer used only for captured mode,
// where output is expected to be small (CLI text output, JSON files on
// disk, not megabytes of ffmpeg progress).
type dynamicBuffer struct {
	b []byte
}

func (d *dynamicBuffer) Write(p []byte) (int, error) {
	d.b = append(d.b, p...)
	return len(p), nil
}

func (d *dynamicBuffer) String() string { return string(d.b) }
