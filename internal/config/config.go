// Package config loads and validates the typed RunConfig used by the
// CLI, the job manager, and the HTTP API. Configuration is a JSON file
// whose relative filesystem paths are resolved against the config
// file's own directory; environment variables override the
// host/port/concurrency fields.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
	"github.com/ragaeeb/beltane-pipeline/internal/model"
)

// EnhancementConfig mirrors the enhancement orchestrator's tunables.
type EnhancementConfig struct {
	Mode               model.EnhancementMode `json:"mode"`
	SourceClass        model.SourceClass     `json:"sourceClass"`
	DereverbMode       model.DereverbMode    `json:"dereverbMode"`
	FailPolicy         model.FailPolicy      `json:"failPolicy"`
	AttenLimDb         float64               `json:"attenLimDb"`
	SNRSkipThresholdDb float64               `json:"snrSkipThresholdDb"`
	VADThreshold       float64               `json:"vadThreshold"`
	MinSilenceMs       int                   `json:"minSilenceMs"`
	MaxRegimes         int                   `json:"maxRegimes"`
	OverlapMs          int                   `json:"overlapMs"`
	PythonBin          string                `json:"pythonBin"`
	DeepFilterBin      string                `json:"deepFilterBin"`
	AnalyzeScript      string                `json:"analyzeScript"`
	ProcessScript      string                `json:"processScript"`

	// PlanInDir, when set, is checked for a precomputed
	// <video_id>.json analysis before invoking the analyzer;
	// PlanOutDir, when set, receives a copy of every analysis.
	PlanInDir  string `json:"planInDir"`
	PlanOutDir string `json:"planOutDir"`
}

// RunConfig is the complete typed configuration for a pipeline run or
// daemon process. It is passed by value down the call stack; no
// component mutates it in place.
type RunConfig struct {
	DataDir  string `json:"dataDir"`
	DBPath   string `json:"dbPath"`
	LogLevel string `json:"logLevel"`

	Jobs                int          `json:"jobs"`
	Engine              model.Engine `json:"engine"`
	WitAiAPIKeys        []string     `json:"witAiApiKeys"`
	Language            string       `json:"language"`
	ModelPath           string       `json:"modelPath"`
	AutoDownloadModel   bool         `json:"autoDownloadModel"`
	ModelDownloadURL    string       `json:"modelDownloadUrl"`
	OutputFormats       []string     `json:"outputFormats"`
	WhisperXBin         string       `json:"whisperxBin"`
	WhisperXComputeType string       `json:"whisperxComputeType"`
	WhisperXBatchSize   int          `json:"whisperxBatchSize"`

	KeepWav          bool `json:"keepWav"`
	KeepIntermediate bool `json:"keepIntermediate"`
	KeepSourceAudio  bool `json:"keepSourceAudio"`

	FFmpegBin  string `json:"ffmpegBin"`
	FFprobeBin string `json:"ffprobeBin"`
	YtDlpBin   string `json:"ytDlpBin"`
	Aria2cBin  string `json:"aria2cBin"`

	Enhancement EnhancementConfig `json:"enhancement"`

	API APIConfig `json:"api"`

	JobConcurrency int `json:"jobConcurrency"`
}

// APIConfig holds the HTTP server's bind settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

var validOutputFormats = map[string]bool{"json": true, "txt": true, "srt": true, "vtt": true, "tsv": true}

// Default returns a RunConfig populated with documented defaults.
func Default() RunConfig {
	return RunConfig{
		DataDir:             "./data",
		DBPath:              "./data/beltane.db",
		LogLevel:            "info",
		Jobs:                1,
		Engine:              model.EngineWhisperX,
		Language:            "auto",
		OutputFormats:       []string{"json"},
		WhisperXComputeType: "int8",
		WhisperXBatchSize:   8,
		FFmpegBin:           "ffmpeg",
		FFprobeBin:          "ffprobe",
		YtDlpBin:            "yt-dlp",
		Aria2cBin:           "aria2c",
		Enhancement: EnhancementConfig{
			Mode:               model.EnhanceAuto,
			SourceClass:        model.SourceClassAuto,
			DereverbMode:       model.DereverbAuto,
			FailPolicy:         model.FailPolicyFallbackRaw,
			AttenLimDb:         12,
			SNRSkipThresholdDb: 15,
			VADThreshold:       0.5,
			MinSilenceMs:       300,
			MaxRegimes:         8,
			OverlapMs:          200,
			PythonBin:          "python3",
			DeepFilterBin:      "deep-filter",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
		JobConcurrency: 1,
	}
}

// Load reads a JSON config file at path, resolves its relative paths
// against the file's directory, applies environment overrides, and
// validates the result.
func Load(path string) (RunConfig, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, apperr.Wrap(apperr.ConfigError, "read config file", err)
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return cfg, apperr.Wrap(apperr.ConfigError, "parse config file", err)
		}
		dir := filepath.Dir(path)
		for _, p := range []*string{&cfg.DataDir, &cfg.DBPath} {
			if *p != "" && !filepath.IsAbs(*p) {
				*p = filepath.Join(dir, *p)
			}
		}
		resolveRelative(&cfg.Enhancement.PythonBin, dir)
		resolveRelative(&cfg.Enhancement.DeepFilterBin, dir)
	}

	applyEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// resolveRelative rewrites *p to be relative to dir unless it is
// already absolute, empty, or a bare executable name (no path
// separator) — bare names are left for PATH lookup.
func resolveRelative(p *string, dir string) {
	if *p == "" || filepath.IsAbs(*p) {
		return
	}
	if !strings.ContainsAny(*p, "/\\") {
		return
	}
	*p = filepath.Join(dir, *p)
}

func applyEnv(cfg *RunConfig) {
	if v := os.Getenv("BPB_WEB_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("BPB_WEB_API_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = n
		}
	}
	if v := os.Getenv("BPB_WEB_JOB_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.JobConcurrency = n
		}
	}
	if v := os.Getenv("WHISPERX_BIN"); v != "" {
		cfg.WhisperXBin = v
	}
	if v := os.Getenv("WIT_AI_API_KEYS"); v != "" && len(cfg.WitAiAPIKeys) == 0 {
		// Split on any run of whitespace, not a literal "\s+".
		cfg.WitAiAPIKeys = strings.Fields(v)
	}
}

// Validate checks the closed-set and range constraints on cfg.
func Validate(cfg RunConfig) error {
	if cfg.DataDir == "" {
		return apperr.New(apperr.ConfigError, "dataDir must not be empty")
	}
	if cfg.DBPath == "" {
		return apperr.New(apperr.ConfigError, "dbPath must not be empty")
	}
	if cfg.Jobs < 1 {
		return apperr.New(apperr.ConfigError, "jobs must be >= 1")
	}
	if cfg.WhisperXBatchSize < 1 {
		return apperr.New(apperr.ConfigError, "whisperxBatchSize must be >= 1")
	}
	if len(cfg.OutputFormats) == 0 {
		return apperr.New(apperr.ConfigError, "outputFormats must not be empty")
	}
	for _, f := range cfg.OutputFormats {
		if !validOutputFormats[strings.ToLower(f)] {
			return apperr.New(apperr.ConfigError, fmt.Sprintf("invalid outputFormat %q", f))
		}
	}
	switch cfg.Engine {
	case model.EngineWhisperX, model.EngineTafrigh:
	default:
		return apperr.New(apperr.ConfigError, fmt.Sprintf("invalid engine %q", cfg.Engine))
	}
	switch cfg.Enhancement.Mode {
	case model.EnhanceOff, model.EnhanceAuto, model.EnhanceOn, model.EnhanceAnalyzeOnly:
	default:
		return apperr.New(apperr.ConfigError, fmt.Sprintf("invalid enhancement mode %q", cfg.Enhancement.Mode))
	}
	switch cfg.Enhancement.SourceClass {
	case model.SourceClassAuto, model.SourceClassStudio, model.SourceClassPodium, model.SourceClassFarField, model.SourceClassCassette:
	default:
		return apperr.New(apperr.ConfigError, fmt.Sprintf("invalid sourceClass %q", cfg.Enhancement.SourceClass))
	}
	switch cfg.Enhancement.DereverbMode {
	case model.DereverbOff, model.DereverbAuto, model.DereverbOn:
	default:
		return apperr.New(apperr.ConfigError, fmt.Sprintf("invalid dereverbMode %q", cfg.Enhancement.DereverbMode))
	}
	switch cfg.Enhancement.FailPolicy {
	case model.FailPolicyFallbackRaw, model.FailPolicyFail:
	default:
		return apperr.New(apperr.ConfigError, fmt.Sprintf("invalid failPolicy %q", cfg.Enhancement.FailPolicy))
	}
	if cfg.Enhancement.VADThreshold < 0 || cfg.Enhancement.VADThreshold > 1 {
		return apperr.New(apperr.ConfigError, "vadThreshold must be in [0,1]")
	}
	if cfg.Enhancement.MinSilenceMs < 0 {
		return apperr.New(apperr.ConfigError, "minSilenceMs must be >= 0")
	}
	if cfg.Enhancement.MaxRegimes < 1 {
		return apperr.New(apperr.ConfigError, "maxRegimes must be >= 1")
	}
	if !isFinite(cfg.Enhancement.AttenLimDb) || !isFinite(cfg.Enhancement.SNRSkipThresholdDb) {
		return apperr.New(apperr.ConfigError, "attenLimDb and snrSkipThresholdDb must be finite")
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
