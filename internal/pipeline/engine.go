// Package pipeline implements the per-video state machine that
// drives download, transcode, enhancement, and transcription into a
// single persisted Transcript.
package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
	"github.com/ragaeeb/beltane-pipeline/internal/config"
	"github.com/ragaeeb/beltane-pipeline/internal/downloader"
	"github.com/ragaeeb/beltane-pipeline/internal/enhance"
	"github.com/ragaeeb/beltane-pipeline/internal/log"
	"github.com/ragaeeb/beltane-pipeline/internal/metrics"
	"github.com/ragaeeb/beltane-pipeline/internal/model"
	"github.com/ragaeeb/beltane-pipeline/internal/store"
	"github.com/ragaeeb/beltane-pipeline/internal/transcode"
	"github.com/ragaeeb/beltane-pipeline/internal/transcribe"
)

// Engine owns one Store and drives individual videos through the
// pipeline's state machine.
type Engine struct {
	Store      *store.Store
	Downloader *downloader.Adapter
}

func NewEngine(st *store.Store, dl *downloader.Adapter) *Engine {
	return &Engine{Store: st, Downloader: dl}
}

type infoMetadata struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	UploaderID  string  `json:"uploader_id"`
	ChannelID   string  `json:"channel_id"`
	Duration    float64 `json:"duration"`
	UploadDate  string  `json:"upload_date"`
	Chapters    []struct {
		StartTime float64 `json:"start_time"`
		EndTime   float64 `json:"end_time"`
		Title     string  `json:"title"`
	} `json:"chapters"`
}

// ProcessItem runs the full per-item algorithm for one input. When a
// pipeline stage fails after the video row has been written, the row is
// set to status=error before the error is returned; errors from
// identification, the transcript lookup, the force delete, or the
// initial upsert are returned without recording any status. Callers
// continue processing remaining items.
func (e *Engine) ProcessItem(ctx context.Context, item Item, cfg config.RunConfig, force bool) (videoID string, err error) {
	logger := log.WithComponent("pipeline")

	videoID, sourceKind, err := e.identify(ctx, item)
	if err != nil {
		return "", err
	}
	logger = logger.With().Str(log.FieldVideoID, videoID).Logger()

	if !force {
		has, err := e.Store.HasTranscript(ctx, videoID)
		if err != nil {
			return videoID, err
		}
		if has {
			logger.Info().Str(log.FieldEvent, "pipeline.skipping").Msg("transcript already exists, skipping")
			return videoID, nil
		}
	} else {
		if err := e.Store.DeleteVideoData(ctx, videoID); err != nil {
			return videoID, err
		}
	}

	video := model.Video{
		ID:             videoID,
		SourceKind:     sourceKind,
		SourceURI:      item.Value,
		Language:       cfg.Language,
		Engine:         cfg.Engine,
		ModelPath:      cfg.ModelPath,
		OutputFormats:  cfg.OutputFormats,
		EnhancementCfg: marshalQuiet(cfg.Enhancement),
		Status:         model.StatusProcessing,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := e.Store.UpsertVideo(ctx, video); err != nil {
		return videoID, err
	}

	if err := e.runPipeline(ctx, &video, cfg); err != nil {
		_ = e.Store.UpdateVideoStatus(ctx, videoID, model.StatusError, err.Error())
		logger.Error().Str(log.FieldEvent, "pipeline.failed").Err(err).Msg("processing failed")
		return videoID, err
	}

	logger.Info().Str(log.FieldEvent, "pipeline.done").Msg("processing complete")
	return videoID, nil
}

func (e *Engine) identify(ctx context.Context, item Item) (string, model.SourceKind, error) {
	if item.IsURL {
		id, err := e.Downloader.ResolveID(ctx, item.Value)
		if err != nil {
			return "", "", err
		}
		return id, model.SourceURL, nil
	}
	id, err := LocalVideoID(item.Value)
	if err != nil {
		return "", "", apperr.Wrap(apperr.BadInput, "derive local video id", err)
	}
	return id, model.SourceFile, nil
}

func (e *Engine) runPipeline(ctx context.Context, video *model.Video, cfg config.RunConfig) error {
	var sourceAudioPath string
	var chapters []model.Chapter

	var sourceArtifacts []model.Artifact

	if video.SourceKind == model.SourceURL {
		sourceDir := filepath.Join(cfg.DataDir, "source_audio")
		if err := os.MkdirAll(sourceDir, 0o755); err != nil {
			return apperr.Wrap(apperr.DownloadFailed, "create source audio dir", err)
		}

		downloadStart := time.Now()
		opts := downloader.DownloadOptions{URL: video.SourceURI, ID: video.ID, OutputDir: sourceDir}
		if err := e.Downloader.Download(ctx, opts, cfg.Aria2cBin); err != nil {
			metrics.ObserveStage("download", "error", downloadStart)
			return err
		}
		validated, err := e.Downloader.ValidateOutput(ctx, sourceDir, video.ID)
		if err != nil {
			metrics.ObserveStage("download", "error", downloadStart)
			return err
		}
		metrics.ObserveStage("download", "ok", downloadStart)
		sourceAudioPath = validated.MediaPath

		sourceArtifacts = append(sourceArtifacts,
			artifactFor(video.ID, model.ArtifactSourceInfoJSON, validated.InfoPath))
		if cfg.KeepSourceAudio {
			sourceArtifacts = append(sourceArtifacts,
				artifactFor(video.ID, model.ArtifactSourceAudio, validated.MediaPath))
		}

		meta, rawMeta := loadInfoMetadata(validated.InfoPath)
		if meta != nil {
			video.Title = meta.Title
			video.Description = meta.Description
			video.UploaderID = meta.UploaderID
			video.ChannelID = meta.ChannelID
			video.DurationMS = int64(meta.Duration * 1000)
			if t, ok := parseUploadDate(meta.UploadDate); ok {
				video.UploadedAt = &t
			}
			video.RawMetadata = rawMeta
			for _, c := range meta.Chapters {
				end := int64(c.EndTime * 1000)
				chapters = append(chapters, model.Chapter{
					VideoID: video.ID,
					StartMS: int64(c.StartTime * 1000),
					EndMS:   &end,
					Title:   c.Title,
				})
			}
		}
		video.LocalPath = sourceAudioPath
		if err := e.Store.UpsertVideo(ctx, *video); err != nil {
			return err
		}
	} else {
		sourceAudioPath = video.SourceURI
		video.LocalPath = sourceAudioPath
	}

	audioDir := filepath.Join(cfg.DataDir, "audio")
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return apperr.Wrap(apperr.TranscodeFailed, "create audio dir", err)
	}
	rawWavPath := filepath.Join(audioDir, video.ID+".wav")
	transcodeStart := time.Now()
	if err := transcode.ToWAV(ctx, cfg.FFmpegBin, sourceAudioPath, rawWavPath); err != nil {
		metrics.ObserveStage("transcode", "error", transcodeStart)
		return err
	}
	metrics.ObserveStage("transcode", "ok", transcodeStart)

	wavForTranscription := rawWavPath
	var enhanceResult enhance.Result
	var enhanceRan bool
	var failedEnhancementRun *model.EnhancementRun

	if cfg.Enhancement.Mode != model.EnhanceOff {
		workDir := filepath.Join(cfg.DataDir, "enhance", video.ID)
		started := time.Now().UTC()
		res, err := e.runEnhancement(ctx, video.ID, rawWavPath, workDir, cfg.Enhancement)
		if err != nil {
			metrics.ObserveStage("enhance", "error", started)
			if cfg.Enhancement.FailPolicy == model.FailPolicyFallbackRaw {
				fallbackLogger := log.WithComponent("pipeline")
				fallbackLogger.Warn().Str(log.FieldVideoID, video.ID).Err(err).
					Msg("enhancement failed, falling back to raw audio")
				failedEnhancementRun = &model.EnhancementRun{
					VideoID:     video.ID,
					Status:      model.EnhancementError,
					Applied:     false,
					Mode:        cfg.Enhancement.Mode,
					SourceClass: cfg.Enhancement.SourceClass,
					Error:       err.Error(),
					StartedAt:   started,
					FinishedAt:  time.Now().UTC(),
				}
			} else {
				return err
			}
		} else {
			metrics.ObserveStage("enhance", "ok", started)
			metrics.RecordEnhancementOutcome(res.Applied, res.SkipReason)
			enhanceResult = res
			enhanceRan = true
			wavForTranscription = res.WavPath
		}
	}

	transcribeStart := time.Now()
	output, err := e.transcribe(ctx, cfg, wavForTranscription, video.ID)
	if err != nil {
		metrics.ObserveStage("transcribe", "error", transcribeStart)
		return err
	}
	metrics.ObserveStage("transcribe", "ok", transcribeStart)
	if output.Language != "" {
		video.Language = output.Language
	}

	transcriptDir := filepath.Join(cfg.DataDir, "transcripts", video.ID)
	if err := os.MkdirAll(transcriptDir, 0o755); err != nil {
		return apperr.Wrap(apperr.StoreError, "create transcript dir", err)
	}
	compactPath := filepath.Join(transcriptDir, video.ID+".compact.json")
	compact := toCompactTranscript(output)
	if err := writeJSONFile(compactPath, compact); err != nil {
		return apperr.Wrap(apperr.StoreError, "write compact transcript", err)
	}

	// The engine may have written a plain-text rendition alongside the
	// JSON; prefer it, reconstructing from the word timeline otherwise.
	text := ""
	txtPath := filepath.Join(transcriptDir, video.ID+".txt")
	if raw, err := os.ReadFile(txtPath); err == nil {
		text = strings.TrimSpace(string(raw))
	}
	if text == "" {
		text = transcribe.TightenText(output.Words)
	}

	segments := toModelSegments(video.ID, output.Segments)

	artifacts := []model.Artifact{artifactFor(video.ID, model.ArtifactTranscriptJSON, compactPath)}
	if _, err := os.Stat(txtPath); err == nil {
		artifacts = append(artifacts, artifactFor(video.ID, model.ArtifactTranscriptTxt, txtPath))
	}
	if cfg.KeepWav {
		artifacts = append(artifacts, artifactFor(video.ID, model.ArtifactAudioWav, rawWavPath))
	}
	artifacts = append(artifacts, sourceArtifacts...)
	artifacts = append(artifacts, enhanceArtifacts(enhanceRan, enhanceResult)...)

	var enhancementRun *model.EnhancementRun
	var enhancementSegments []model.EnhancementSegment
	switch {
	case enhanceRan:
		run := toEnhancementRun(video.ID, enhanceResult, cfg.Enhancement)
		enhancementRun = &run
		enhancementSegments = toEnhancementSegments(enhanceResult)
	case failedEnhancementRun != nil:
		enhancementRun = failedEnhancementRun
	}

	if err := e.persist(ctx, video, text, compactPath, segments, chapters, artifacts, enhancementRun, enhancementSegments); err != nil {
		return err
	}

	e.cleanup(cfg, video, rawWavPath, enhanceRan, enhanceResult, sourceAudioPath)
	return nil
}

// runEnhancement verifies the enhancement tooling is actually usable
// before handing the WAV to the orchestrator. The preflight result is
// memoized per path tuple, so repeated items in a batch pay for it
// once.
func (e *Engine) runEnhancement(ctx context.Context, videoID, rawWavPath, workDir string, cfg config.EnhancementConfig) (enhance.Result, error) {
	paths := enhance.Paths{
		PythonBin:     cfg.PythonBin,
		DeepFilterBin: cfg.DeepFilterBin,
		AnalyzeScript: cfg.AnalyzeScript,
		ProcessScript: cfg.ProcessScript,
		AnalyzeOnly:   cfg.Mode == model.EnhanceAnalyzeOnly,
	}
	if !enhance.CheckEnhancementAvailable(ctx, paths) {
		return enhance.Result{}, apperr.New(apperr.EnhancementFailed, "enhancement tooling unavailable")
	}
	return enhance.Run(ctx, videoID, rawWavPath, workDir, cfg, cfg.PlanInDir, cfg.PlanOutDir)
}

func (e *Engine) transcribe(ctx context.Context, cfg config.RunConfig, wavPath, videoID string) (transcribe.Output, error) {
	switch cfg.Engine {
	case model.EngineTafrigh:
		return transcribe.RunTafrigh(ctx, transcribe.TafrighOptions{
			APIKeys:  cfg.WitAiAPIKeys,
			WavPath:  wavPath,
			Language: cfg.Language,
		})
	default:
		bin, err := transcribe.ResolveWhisperXBin(cfg.WhisperXBin)
		if err != nil {
			return transcribe.Output{}, err
		}
		outDir := filepath.Join(cfg.DataDir, "transcripts", videoID)
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return transcribe.Output{}, apperr.Wrap(apperr.TranscriptionFailed, "create transcript output dir", err)
		}
		return transcribe.RunWhisperX(ctx, transcribe.WhisperXOptions{
			Bin:           bin,
			WavPath:       wavPath,
			Model:         cfg.ModelPath,
			Language:      cfg.Language,
			OutputDir:     outDir,
			ComputeType:   cfg.WhisperXComputeType,
			BatchSize:     cfg.WhisperXBatchSize,
			OutputFormats: cfg.OutputFormats,
		}, videoID)
	}
}

// persist writes the transcript, its segments/chapters/artifacts, an
// optional enhancement run, and the video's terminal status in one
// transaction, so a crash
// between any of these writes never leaves the video stuck at
// status="processing" beside a partially written transcript.
func (e *Engine) persist(ctx context.Context, video *model.Video, text, compactPath string,
	segments []model.Segment, chapters []model.Chapter, artifacts []model.Artifact,
	run *model.EnhancementRun, runSegments []model.EnhancementSegment) error {

	compactJSON, _ := os.ReadFile(compactPath)

	return e.Store.PersistPipelineResult(ctx, store.PipelineResult{
		Transcript: model.Transcript{
			VideoID:     video.ID,
			Model:       video.ModelPath,
			Language:    video.Language,
			Text:        text,
			CompactJSON: string(compactJSON),
			CreatedAt:   time.Now().UTC(),
		},
		Segments:            segments,
		Chapters:            chapters,
		Artifacts:           artifacts,
		EnhancementRun:      run,
		EnhancementSegments: runSegments,
		VideoID:             video.ID,
		FinalStatus:         model.StatusDone,
	})
}

func (e *Engine) cleanup(cfg config.RunConfig, video *model.Video, rawWavPath string, enhanceRan bool, res enhance.Result, sourceAudioPath string) {
	logger := log.WithComponent("pipeline")
	if !cfg.KeepWav {
		if err := os.Remove(rawWavPath); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Msg("failed to remove intermediate wav")
		}
	}
	if enhanceRan && res.Applied && !cfg.KeepIntermediate {
		if err := os.Remove(res.WavPath); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Msg("failed to remove enhanced wav")
		}
	}
	if video.SourceKind == model.SourceURL && !cfg.KeepSourceAudio {
		if err := os.Remove(sourceAudioPath); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Msg("failed to remove source audio")
		}
	}
}

func marshalQuiet(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// loadInfoMetadata parses the fields the pipeline consumes and also
// returns the provider's raw JSON for verbatim storage.
func loadInfoMetadata(path string) (*infoMetadata, string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ""
	}
	var m infoMetadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, ""
	}
	return &m, string(raw)
}

func parseUploadDate(s string) (time.Time, bool) {
	if len(s) != 8 {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func writeJSONFile(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func toCompactTranscript(output transcribe.Output) model.CompactTranscript {
	words := make([]model.CompactWord, 0, len(output.Words))
	for _, w := range output.Words {
		words = append(words, model.CompactWord{B: w.StartMS, E: w.EndMS, W: w.Text})
	}
	return model.CompactTranscript{Language: output.Language, Words: words}
}

// artifactFor builds an Artifact record for path, filling size_bytes
// from a stat when the file exists.
func artifactFor(videoID string, kind model.ArtifactKind, path string) model.Artifact {
	a := model.Artifact{VideoID: videoID, Kind: kind, URI: path}
	if info, err := os.Stat(path); err == nil {
		a.SizeBytes = info.Size()
	}
	return a
}

func toModelSegments(videoID string, segs []transcribe.Segment) []model.Segment {
	out := make([]model.Segment, 0, len(segs))
	for _, s := range segs {
		out = append(out, model.Segment{VideoID: videoID, StartMS: s.StartMS, EndMS: s.EndMS, Text: s.Text})
	}
	return out
}

func enhanceArtifacts(ran bool, res enhance.Result) []model.Artifact {
	if !ran {
		return nil
	}
	return res.Artifacts
}

func toEnhancementRun(videoID string, res enhance.Result, cfg config.EnhancementConfig) model.EnhancementRun {
	status := model.EnhancementCompleted
	if !res.Applied {
		status = model.EnhancementSkipped
	}
	run := model.EnhancementRun{
		VideoID:     videoID,
		Status:      status,
		Applied:     res.Applied,
		Mode:        res.Mode,
		SourceClass: cfg.SourceClass,
		ConfigJSON:  marshalQuiet(cfg),
		SkipReason:  res.SkipReason,
		StartedAt:   res.StartedAt,
		FinishedAt:  res.FinishedAt,
	}

	versions := map[string]string{}
	if res.Analysis != nil {
		run.SNRDb = res.Analysis.SNRDb
		run.RegimeCount = res.Analysis.RegimeCount
		run.AnalysisMS = res.Analysis.AnalysisDurationMS
		run.MetricsJSON = marshalQuiet(map[string]any{
			"speech_ratio": res.Analysis.SpeechRatio,
			"snr_db":       res.Analysis.SNRDb,
			"duration_ms":  res.Analysis.DurationMS,
			"sample_rate":  res.Analysis.SampleRate,
		})
		for k, v := range res.Analysis.Versions {
			versions[k] = v
		}
	}
	if res.Processing != nil {
		run.ProcessMS = res.Processing.ProcessingMS
		for k, v := range res.Processing.Versions {
			versions[k] = v
		}
	}
	if len(versions) > 0 {
		run.VersionsJSON = marshalQuiet(versions)
	}
	return run
}

// toEnhancementSegments joins each processed segment with the analysis
// regime of the same index, carrying the regime's measured noise floor
// and spectral centroid into the persisted telemetry. A processed
// segment with no matching regime stores both as null.
func toEnhancementSegments(res enhance.Result) []model.EnhancementSegment {
	if res.Processing == nil {
		return nil
	}
	regimes := make(map[int]enhance.Regime)
	if res.Analysis != nil {
		for _, r := range res.Analysis.Regimes {
			regimes[r.Index] = r
		}
	}

	out := make([]model.EnhancementSegment, 0, len(res.Processing.Segments))
	for _, s := range res.Processing.Segments {
		seg := model.EnhancementSegment{
			Index:           s.SegmentIndex,
			StartMS:         s.StartMS,
			EndMS:           s.EndMS,
			DereverbApplied: s.DereverbApplied,
			DenoiseApplied:  s.DenoiseApplied,
			AttenLimDb:      s.AttenLimDb,
			ProcessingMS:    s.ProcessingMS,
		}
		if r, ok := regimes[s.SegmentIndex]; ok {
			seg.NoiseRMSDb = r.NoiseRMSDb
			seg.SpectralCentroidHz = r.SpectralCentroidHz
		}
		out = append(out, seg)
	}
	return out
}
