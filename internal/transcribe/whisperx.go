package transcribe

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
	"github.com/ragaeeb/beltane-pipeline/internal/executil"
)

// knownVenvPaths are in-tree virtual-environment locations checked
// after PATH, in order, when no explicit binary is configured.
var knownVenvPaths = []string{
	".venv/bin/whisperx",
	"venv/bin/whisperx",
}

var whisperxBinCache struct {
	mu   sync.Mutex
	path string
	ok   bool
}

// ResetWhisperXBinCache clears the memoized binary resolution.
func ResetWhisperXBinCache() {
	whisperxBinCache.mu.Lock()
	defer whisperxBinCache.mu.Unlock()
	whisperxBinCache.ok = false
	whisperxBinCache.path = ""
}

// ResolveWhisperXBin resolves the whisperx binary from, in order: the
// explicit configured path, WHISPERX_BIN, PATH lookup of "whisperx",
// and known in-tree virtualenv locations. The result is cached for
// process lifetime.
func ResolveWhisperXBin(configured string) (string, error) {
	whisperxBinCache.mu.Lock()
	defer whisperxBinCache.mu.Unlock()
	if whisperxBinCache.ok {
		return whisperxBinCache.path, nil
	}

	candidates := []string{configured, os.Getenv("WHISPERX_BIN")}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, err := os.Stat(c); err == nil {
			whisperxBinCache.path, whisperxBinCache.ok = c, true
			return c, nil
		}
	}

	if p, err := exec.LookPath("whisperx"); err == nil {
		whisperxBinCache.path, whisperxBinCache.ok = p, true
		return p, nil
	}

	for _, p := range knownVenvPaths {
		if _, err := os.Stat(p); err == nil {
			whisperxBinCache.path, whisperxBinCache.ok = p, true
			return p, nil
		}
	}

	return "", apperr.New(apperr.TranscriptionFailed, "whisperx binary not found")
}

// WhisperXOptions configures one local whisperx invocation.
type WhisperXOptions struct {
	Bin           string
	WavPath       string
	Model         string
	Language      string // "" or "auto" omits --language
	OutputDir     string
	ComputeType   string // int8 | float16 | float32
	BatchSize     int
	OutputFormats []string // requested formats to keep, e.g. ["json","txt"]
}

// RunWhisperX invokes whisperx, renames requested-format outputs to
// <outputBase>.<ext>, and deletes non-requested formats. JSON is
// always kept.
func RunWhisperX(ctx context.Context, opts WhisperXOptions, outputBase string) (Output, error) {
	args := []string{
		opts.WavPath,
		"--model", opts.Model,
		"--output_dir", opts.OutputDir,
		"--output_format", "all",
		"--compute_type", opts.ComputeType,
		"--batch_size", strconv.Itoa(opts.BatchSize),
		"--vad_method", "silero",
		"--print_progress", "True",
	}
	if opts.Language != "" && opts.Language != "auto" {
		args = append(args, "--language", opts.Language)
	}

	res, err := executil.Run(ctx, executil.Spec{
		Name: opts.Bin,
		Args: args,
		Env:  []string{"PYTHONWARNINGS=ignore::UserWarning:pyannote.audio.core.io"},
	})
	if err != nil {
		return Output{}, apperr.Wrap(apperr.TranscriptionFailed, "run whisperx", err)
	}
	if res.ExitCode != 0 {
		return Output{}, apperr.New(apperr.TranscriptionFailed, "whisperx exited non-zero: "+res.Stderr)
	}

	stem := stemOf(opts.WavPath)
	kept := keepSet(opts.OutputFormats)

	entries, err := os.ReadDir(opts.OutputDir)
	if err != nil {
		return Output{}, apperr.Wrap(apperr.TranscriptionFailed, "read whisperx output dir", err)
	}

	var jsonPath string
	for _, entry := range entries {
		name := entry.Name()
		if filepath.Ext(name) == "" || stemOf(name) != stem {
			continue
		}
		ext := filepath.Ext(name)[1:]
		src := filepath.Join(opts.OutputDir, name)

		if ext == "json" {
			jsonPath = filepath.Join(opts.OutputDir, outputBase+".json")
			if src != jsonPath {
				_ = os.Rename(src, jsonPath)
			}
			continue
		}
		if kept[ext] {
			dst := filepath.Join(opts.OutputDir, outputBase+"."+ext)
			_ = os.Rename(src, dst)
		} else {
			_ = os.Remove(src)
		}
	}

	if jsonPath == "" {
		return Output{}, apperr.New(apperr.TranscriptionFailed, "whisperx produced no json output")
	}
	return parseWhisperXJSON(jsonPath)
}

func keepSet(formats []string) map[string]bool {
	m := make(map[string]bool, len(formats))
	for _, f := range formats {
		m[f] = true
	}
	return m
}

func stemOf(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// Engine JSON output varies between versions: the segment list may be
// named "segments" or (legacy) "transcription", and per-segment bounds
// are either numeric start/end in seconds or an offsets.{from,to}
// object in milliseconds. A segment with no usable bounds is dropped
// rather than failing the whole transcript.
type engineWord struct {
	Word  string   `json:"word"`
	Text  string   `json:"text"`
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
}

type engineOffsets struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type engineSegment struct {
	Start   *float64       `json:"start"`
	End     *float64       `json:"end"`
	Offsets *engineOffsets `json:"offsets"`
	Text    string         `json:"text"`
	Words   []engineWord   `json:"words"`
}

type engineJSON struct {
	Language      string          `json:"language"`
	Segments      []engineSegment `json:"segments"`
	Transcription []engineSegment `json:"transcription"`
}

func (s engineSegment) bounds() (startMS, endMS int64, ok bool) {
	if s.Offsets != nil {
		return s.Offsets.From, s.Offsets.To, true
	}
	if s.Start != nil && s.End != nil {
		return msOf(*s.Start), msOf(*s.End), true
	}
	return 0, 0, false
}

func (w engineWord) text() string {
	if w.Word != "" {
		return w.Word
	}
	return w.Text
}

func parseWhisperXJSON(path string) (Output, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Output{}, apperr.Wrap(apperr.TranscriptionFailed, "read whisperx json", err)
	}
	var doc engineJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Output{}, apperr.Wrap(apperr.TranscriptionFailed, "parse whisperx json", err)
	}

	docSegments := doc.Segments
	if len(docSegments) == 0 {
		docSegments = doc.Transcription
	}

	var segs []Segment
	var words []Word
	for _, s := range docSegments {
		startMS, endMS, ok := s.bounds()
		if !ok {
			continue
		}
		segs = append(segs, Segment{StartMS: startMS, EndMS: endMS, Text: s.Text})
		for _, w := range s.Words {
			if w.Start == nil || w.End == nil {
				continue
			}
			words = append(words, Word{StartMS: msOf(*w.Start), EndMS: msOf(*w.End), Text: w.text()})
		}
	}

	return Output{
		Language: doc.Language,
		Segments: normalizeSegments(segs),
		Words:    normalizeWords(words),
	}, nil
}

func msOf(seconds float64) int64 {
	return int64(seconds * 1000)
}
