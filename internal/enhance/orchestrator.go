package enhance

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
	"github.com/ragaeeb/beltane-pipeline/internal/config"
	"github.com/ragaeeb/beltane-pipeline/internal/executil"
	"github.com/ragaeeb/beltane-pipeline/internal/model"
)

// Run executes the enhancement pass against one video's raw WAV, returning the WAV to feed the
// transcription adapter plus everything recorded for persistence.
func Run(ctx context.Context, videoID, rawWavPath, workDir string, cfg config.EnhancementConfig, planInDir, planOutDir string) (Result, error) {
	started := time.Now().UTC()

	if cfg.Mode == model.EnhanceOff {
		return Result{
			WavPath:    rawWavPath,
			Applied:    false,
			Mode:       cfg.Mode,
			SkipReason: "enhancement_disabled",
			StartedAt:  started,
			FinishedAt: started,
		}, nil
	}

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{}, apperr.Wrap(apperr.EnhancementFailed, "create work directory", err)
	}

	analysis, analysisPath, artifacts, err := resolveAnalysis(ctx, videoID, rawWavPath, workDir, cfg, planInDir)
	if err != nil {
		return Result{}, err
	}

	if planOutDir != "" {
		if err := os.MkdirAll(planOutDir, 0o755); err != nil {
			return Result{}, apperr.Wrap(apperr.EnhancementFailed, "create plan output directory", err)
		}
		planPath := filepath.Join(planOutDir, videoID+".json")
		if err := writeJSON(planPath, analysis); err != nil {
			return Result{}, apperr.Wrap(apperr.EnhancementFailed, "write enhancement plan", err)
		}
		artifacts = append(artifacts, model.Artifact{VideoID: videoID, Kind: model.ArtifactEnhancementPlan, URI: planPath})
	}

	if cfg.Mode == model.EnhanceAnalyzeOnly {
		return Result{
			WavPath:    rawWavPath,
			Applied:    false,
			Mode:       cfg.Mode,
			SkipReason: "analyze_only_mode",
			Analysis:   analysis,
			Artifacts:  artifacts,
			StartedAt:  started,
			FinishedAt: time.Now().UTC(),
		}, nil
	}

	if cfg.Mode == model.EnhanceAuto && analysis.SNRDb != nil && *analysis.SNRDb >= cfg.SNRSkipThresholdDb {
		return Result{
			WavPath: rawWavPath,
			Applied: false,
			Mode:    cfg.Mode,
			SkipReason: fmt.Sprintf("snr_above_threshold (%.1f >= %g)", *analysis.SNRDb, cfg.SNRSkipThresholdDb),
			Analysis:   analysis,
			Artifacts:  artifacts,
			StartedAt:  started,
			FinishedAt: time.Now().UTC(),
		}, nil
	}

	applySourceClassOverride(analysis, cfg)
	if err := writeJSON(analysisPath, analysis); err != nil {
		return Result{}, apperr.Wrap(apperr.EnhancementFailed, "rewrite analysis with overrides", err)
	}

	enhancedWavPath := filepath.Join(workDir, videoID+".enhanced.wav")
	resultPath := filepath.Join(workDir, videoID+".result.json")

	dereverbFlag := string(cfg.DereverbMode)
	res, err := executil.Run(ctx, executil.Spec{
		Name: cfg.PythonBin,
		Args: []string{
			cfg.ProcessScript,
			"--input", rawWavPath,
			"--analysis", analysisPath,
			"--output", enhancedWavPath,
			"--result", resultPath,
			"--atten-lim-db", fmt.Sprintf("%g", cfg.AttenLimDb),
			"--dereverb", dereverbFlag,
			"--overlap-ms", fmt.Sprintf("%d", cfg.OverlapMs),
			"--deep-filter-bin", cfg.DeepFilterBin,
		},
	})
	if err != nil || res.ExitCode != 0 {
		return Result{}, apperr.New(apperr.EnhancementFailed, "process_audio failed: "+tail(res.Stderr, res.Stdout))
	}

	processing, err := loadProcessingResult(resultPath)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.EnhancementFailed, "parse processing result", err)
	}

	artifacts = append(artifacts,
		model.Artifact{VideoID: videoID, Kind: model.ArtifactAudioWavEnhanced, URI: enhancedWavPath},
		model.Artifact{VideoID: videoID, Kind: model.ArtifactEnhancementResult, URI: resultPath},
	)

	return Result{
		WavPath:    enhancedWavPath,
		Applied:    true,
		Mode:       cfg.Mode,
		Analysis:   analysis,
		Processing: processing,
		Artifacts:  artifacts,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}, nil
}

func resolveAnalysis(ctx context.Context, videoID, rawWavPath, workDir string, cfg config.EnhancementConfig, planInDir string) (*Analysis, string, []model.Artifact, error) {
	analysisPath := filepath.Join(workDir, videoID+".analysis.json")

	if planInDir != "" {
		candidate := filepath.Join(planInDir, videoID+".json")
		if _, err := os.Stat(candidate); err == nil {
			analysis, err := loadAnalysis(candidate)
			if err != nil {
				return nil, "", nil, apperr.Wrap(apperr.EnhancementFailed, "load plan_in analysis", err)
			}
			return analysis, candidate, []model.Artifact{
				{VideoID: videoID, Kind: model.ArtifactEnhancementAnalysis, URI: candidate},
			}, nil
		}
	}

	res, err := executil.Run(ctx, executil.Spec{
		Name: cfg.PythonBin,
		Args: []string{
			cfg.AnalyzeScript,
			"--input", rawWavPath,
			"--output", analysisPath,
			"--vad-threshold", fmt.Sprintf("%g", cfg.VADThreshold),
			"--min-silence-ms", fmt.Sprintf("%d", cfg.MinSilenceMs),
			"--max-regimes", fmt.Sprintf("%d", cfg.MaxRegimes),
		},
	})
	if err != nil || res.ExitCode != 0 {
		return nil, "", nil, apperr.New(apperr.EnhancementFailed, "analyze_audio failed: "+tail(res.Stderr, res.Stdout))
	}

	analysis, err := loadAnalysis(analysisPath)
	if err != nil {
		return nil, "", nil, apperr.Wrap(apperr.EnhancementFailed, "parse analysis output", err)
	}
	return analysis, analysisPath, []model.Artifact{
		{VideoID: videoID, Kind: model.ArtifactEnhancementAnalysis, URI: analysisPath},
	}, nil
}

func applySourceClassOverride(analysis *Analysis, cfg config.EnhancementConfig) {
	forceDereverb := cfg.SourceClass == model.SourceClassFarField || cfg.SourceClass == model.SourceClassPodium
	for i := range analysis.Regimes {
		analysis.Regimes[i].Recommended.AttenLimDb = cfg.AttenLimDb
		if forceDereverb {
			analysis.Regimes[i].Recommended.Dereverb = true
		}
	}
}

func loadAnalysis(path string) (*Analysis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a Analysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func loadProcessingResult(path string) (*ProcessingResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r ProcessingResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func tail(stderr, stdout string) string {
	s := stderr
	if s == "" {
		s = stdout
	}
	const max = 2000
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
