package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ragaeeb/beltane-pipeline/internal/config"
	"github.com/ragaeeb/beltane-pipeline/internal/downloader"
	"github.com/ragaeeb/beltane-pipeline/internal/log"
	"github.com/ragaeeb/beltane-pipeline/internal/model"
	"github.com/ragaeeb/beltane-pipeline/internal/pipeline"
	"github.com/ragaeeb/beltane-pipeline/internal/store"
	"github.com/ragaeeb/beltane-pipeline/internal/transcribe"
)

// errInterrupted signals that a run was aborted by SIGINT/SIGTERM,
// mapped to process exit code 130.
var errInterrupted = errors.New("interrupted")

type runFlags struct {
	paths               []string
	urlsFile            string
	urls                []string
	engine              string
	language            string
	model               string
	whisperxComputeType string
	whisperxBatchSize   int
	autoDownloadModel   bool
	modelDownloadURL    string
	outputFormats       string
	jobs                int
	keepWav             bool
	keepSourceAudio     bool
	downloadVideo       bool
	force               bool
	dryRun              bool
	witAiAPIKeys        string

	enhanceMode               string
	enhanceSourceClass        string
	enhanceDereverbMode       string
	enhanceFailPolicy         string
	enhanceAttenLimDb         float64
	enhanceSNRSkipThresholdDb float64
	enhancePlanInDir          string
	enhancePlanOutDir         string
}

func newRunCmd(configPath *string) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process local paths and/or URLs into searchable transcripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), *configPath, f)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVar(&f.paths, "paths", nil, "local file or directory path (repeatable)")
	flags.StringVar(&f.urlsFile, "urls", "", "file of newline-separated URLs")
	flags.StringArrayVar(&f.urls, "url", nil, "a single URL (repeatable)")
	flags.StringVar(&f.engine, "engine", "", "transcription engine: whisperx|tafrigh")
	flags.StringVar(&f.language, "language", "", "transcription language, or auto")
	flags.StringVar(&f.model, "model", "", "model path or name")
	flags.StringVar(&f.whisperxComputeType, "whisperx-compute-type", "", "int8|float16|float32")
	flags.IntVar(&f.whisperxBatchSize, "whisperx-batch-size", 0, "WhisperX batch size")
	flags.BoolVar(&f.autoDownloadModel, "auto-download-model", false, "allow automatic model download")
	flags.StringVar(&f.modelDownloadURL, "model-download-url", "", "override model download URL")
	flags.StringVar(&f.outputFormats, "output-formats", "", "comma-separated: json,txt,srt,vtt,tsv")
	flags.IntVar(&f.jobs, "jobs", 0, "concurrent worker count")
	flags.BoolVar(&f.keepWav, "keep-wav", false, "keep the intermediate 16kHz WAV")
	flags.BoolVar(&f.keepSourceAudio, "keep-source-audio", false, "keep the original downloaded media")
	flags.BoolVar(&f.downloadVideo, "download-video", false, "keep source-audio downloads as the video container")
	flags.BoolVar(&f.force, "force", false, "reprocess even if a transcript already exists")
	flags.BoolVar(&f.dryRun, "dry-run", false, "expand inputs and print what would run, without processing")
	flags.StringVar(&f.witAiAPIKeys, "wit-ai-api-keys", "", "comma-separated tafrigh API keys")

	flags.StringVar(&f.enhanceMode, "enhance-mode", "", "off|auto|on|analyze-only")
	flags.StringVar(&f.enhanceSourceClass, "enhance-source-class", "", "auto|studio|podium|far-field|cassette")
	flags.StringVar(&f.enhanceDereverbMode, "enhance-dereverb-mode", "", "off|auto|on")
	flags.StringVar(&f.enhanceFailPolicy, "enhance-fail-policy", "", "fallback_raw|fail")
	flags.Float64Var(&f.enhanceAttenLimDb, "enhance-atten-lim-db", 0, "attenuation limit override, dB")
	flags.Float64Var(&f.enhanceSNRSkipThresholdDb, "enhance-snr-skip-threshold-db", 0, "SNR skip threshold override, dB")
	flags.StringVar(&f.enhancePlanInDir, "enhance-plan-in-dir", "", "directory of precomputed analysis plans")
	flags.StringVar(&f.enhancePlanOutDir, "enhance-plan-out-dir", "", "directory to copy analysis plans into")

	return cmd
}

func runRun(ctx context.Context, configPath string, f runFlags) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	applyRunFlags(&cfg, f)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	items := pipeline.ExpandPaths(f.paths)
	dl := downloader.New(cfg.YtDlpBin, cfg.FFprobeBin)
	urlItems, err := pipeline.ExpandURLs(ctx, dl, f.urlsFile, f.urls)
	if err != nil {
		return err
	}
	items = append(items, urlItems...)

	if f.dryRun {
		for _, item := range items {
			fmt.Println(item.Value)
		}
		return nil
	}

	if err := transcribe.EnsureModel(ctx, cfg.ModelPath, cfg.ModelDownloadURL, cfg.AutoDownloadModel); err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath, store.DefaultConfig())
	if err != nil {
		return err
	}
	defer st.Close()

	engine := pipeline.NewEngine(st, dl)

	runCtx, abort := withInterruptAbort(ctx)
	result, err := engine.RunBatch(runCtx, items, cfg, f.force, abort)
	if err != nil {
		return err
	}

	failed := 0
	cliLogger := log.WithComponent("cli")
	for _, r := range result.Results {
		if r.Err != nil {
			failed++
			cliLogger.Error().Str(log.FieldInput, r.Item.Value).Err(r.Err).Msg("item failed")
		}
	}
	if result.Aborted {
		return errInterrupted
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d items failed", failed, len(result.Results))
	}
	return nil
}

// withInterruptAbort returns a context cancelled by SIGINT/SIGTERM and
// an abort channel closed on the same signal, for callers that poll
// rather than select on ctx.Done().
func withInterruptAbort(parent context.Context) (context.Context, <-chan struct{}) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	abort := make(chan struct{})
	go func() {
		<-ctx.Done()
		stop()
		close(abort)
	}()
	return ctx, abort
}

func applyRunFlags(cfg *config.RunConfig, f runFlags) {
	if f.engine != "" {
		cfg.Engine = model.Engine(f.engine)
	}
	if f.language != "" {
		cfg.Language = f.language
	}
	if f.model != "" {
		cfg.ModelPath = f.model
	}
	if f.whisperxComputeType != "" {
		cfg.WhisperXComputeType = f.whisperxComputeType
	}
	if f.whisperxBatchSize > 0 {
		cfg.WhisperXBatchSize = f.whisperxBatchSize
	}
	cfg.AutoDownloadModel = cfg.AutoDownloadModel || f.autoDownloadModel
	if f.modelDownloadURL != "" {
		cfg.ModelDownloadURL = f.modelDownloadURL
	}
	if f.outputFormats != "" {
		cfg.OutputFormats = splitCSV(f.outputFormats)
	}
	if f.jobs > 0 {
		cfg.Jobs = f.jobs
	}
	cfg.KeepWav = cfg.KeepWav || f.keepWav
	// --download-video keeps the original container alongside the WAV,
	// same retention path as --keep-source-audio.
	cfg.KeepSourceAudio = cfg.KeepSourceAudio || f.keepSourceAudio || f.downloadVideo
	if f.witAiAPIKeys != "" {
		cfg.WitAiAPIKeys = splitCSV(f.witAiAPIKeys)
	}

	if f.enhanceMode != "" {
		cfg.Enhancement.Mode = model.EnhancementMode(f.enhanceMode)
	}
	if f.enhanceSourceClass != "" {
		cfg.Enhancement.SourceClass = model.SourceClass(f.enhanceSourceClass)
	}
	if f.enhanceDereverbMode != "" {
		cfg.Enhancement.DereverbMode = model.DereverbMode(f.enhanceDereverbMode)
	}
	if f.enhanceFailPolicy != "" {
		cfg.Enhancement.FailPolicy = model.FailPolicy(f.enhanceFailPolicy)
	}
	if f.enhanceAttenLimDb != 0 {
		cfg.Enhancement.AttenLimDb = f.enhanceAttenLimDb
	}
	if f.enhanceSNRSkipThresholdDb != 0 {
		cfg.Enhancement.SNRSkipThresholdDb = f.enhanceSNRSkipThresholdDb
	}
	if f.enhancePlanInDir != "" {
		cfg.Enhancement.PlanInDir = f.enhancePlanInDir
	}
	if f.enhancePlanOutDir != "" {
		cfg.Enhancement.PlanOutDir = f.enhancePlanOutDir
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
