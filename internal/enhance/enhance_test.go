package enhance

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragaeeb/beltane-pipeline/internal/config"
	"github.com/ragaeeb/beltane-pipeline/internal/model"
)

func TestRunOffModeSkipsImmediately(t *testing.T) {
	cfg := config.EnhancementConfig{Mode: model.EnhanceOff}
	res, err := Run(context.Background(), "vid1", "/tmp/raw.wav", t.TempDir(), cfg, "", "")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "enhancement_disabled", res.SkipReason)
	assert.Equal(t, "/tmp/raw.wav", res.WavPath)
}

func TestRunAnalyzeOnlyUsesPrecomputedPlan(t *testing.T) {
	planIn := t.TempDir()
	snr := 12.5
	analysis := Analysis{Version: "1", InputPath: "raw.wav", SNRDb: &snr}
	raw, err := json.MarshalIndent(analysis, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(planIn, "vid1.json"), raw, 0o644))

	cfg := config.EnhancementConfig{Mode: model.EnhanceAnalyzeOnly}
	res, err := Run(context.Background(), "vid1", "/tmp/raw.wav", t.TempDir(), cfg, planIn, "")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "analyze_only_mode", res.SkipReason)
	require.NotNil(t, res.Analysis)
	assert.Equal(t, 12.5, *res.Analysis.SNRDb)
}

func TestRunAutoModeSkipsWhenSNRAboveThreshold(t *testing.T) {
	planIn := t.TempDir()
	snr := 30.0
	analysis := Analysis{Version: "1", InputPath: "raw.wav", SNRDb: &snr}
	raw, err := json.MarshalIndent(analysis, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(planIn, "vid1.json"), raw, 0o644))

	cfg := config.EnhancementConfig{Mode: model.EnhanceAuto, SNRSkipThresholdDb: 20}
	res, err := Run(context.Background(), "vid1", "/tmp/raw.wav", t.TempDir(), cfg, planIn, "")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Contains(t, res.SkipReason, "snr_above_threshold")
}

func TestRunCopiesPlanToPlanOutDir(t *testing.T) {
	planIn := t.TempDir()
	snr := 11.0
	analysis := Analysis{Version: "1", InputPath: "raw.wav", SNRDb: &snr}
	raw, err := json.MarshalIndent(analysis, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(planIn, "vid1.json"), raw, 0o644))

	planOut := filepath.Join(t.TempDir(), "plans", "nested")
	cfg := config.EnhancementConfig{Mode: model.EnhanceAnalyzeOnly}
	res, err := Run(context.Background(), "vid1", "/tmp/raw.wav", t.TempDir(), cfg, planIn, planOut)
	require.NoError(t, err)

	copied, err := loadAnalysis(filepath.Join(planOut, "vid1.json"))
	require.NoError(t, err)
	assert.Equal(t, 11.0, *copied.SNRDb)

	var kinds []model.ArtifactKind
	for _, a := range res.Artifacts {
		kinds = append(kinds, a.Kind)
	}
	assert.Contains(t, kinds, model.ArtifactEnhancementPlan)
}

func TestApplySourceClassOverrideForcesDereverbForFarField(t *testing.T) {
	analysis := &Analysis{Regimes: []Regime{{Recommended: Recommended{Dereverb: false}}}}
	cfg := config.EnhancementConfig{SourceClass: model.SourceClassFarField, AttenLimDb: 18}
	applySourceClassOverride(analysis, cfg)
	assert.True(t, analysis.Regimes[0].Recommended.Dereverb)
	assert.Equal(t, 18.0, analysis.Regimes[0].Recommended.AttenLimDb)
}

func TestApplySourceClassOverrideLeavesStudioAlone(t *testing.T) {
	analysis := &Analysis{Regimes: []Regime{{Recommended: Recommended{Dereverb: false}}}}
	cfg := config.EnhancementConfig{SourceClass: model.SourceClassStudio, AttenLimDb: 12}
	applySourceClassOverride(analysis, cfg)
	assert.False(t, analysis.Regimes[0].Recommended.Dereverb)
}

func TestWriteAndLoadAnalysisRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.json")
	snr := 8.0
	original := &Analysis{Version: "2", InputPath: "x.wav", SNRDb: &snr, RegimeCount: 1}
	require.NoError(t, writeJSON(path, original))

	loaded, err := loadAnalysis(path)
	require.NoError(t, err)
	assert.Equal(t, original.Version, loaded.Version)
	assert.Equal(t, *original.SNRDb, *loaded.SNRDb)
}

func TestCheckEnhancementAvailableFailsOnMissingPython(t *testing.T) {
	ResetPreflightCache()
	defer ResetPreflightCache()

	ok := CheckEnhancementAvailable(context.Background(), Paths{PythonBin: "/no/such/python", AnalyzeScript: "a.py", ProcessScript: "p.py"})
	assert.False(t, ok)
}

func TestCheckEnhancementAvailableMemoizesByPathTuple(t *testing.T) {
	ResetPreflightCache()
	defer ResetPreflightCache()

	p := Paths{PythonBin: "/no/such/python", AnalyzeScript: "a.py", ProcessScript: "p.py"}
	first := CheckEnhancementAvailable(context.Background(), p)
	second := CheckEnhancementAvailable(context.Background(), p)
	assert.Equal(t, first, second)
}

func TestCheckEnhancementAvailableFailsWithEmptyScripts(t *testing.T) {
	ResetPreflightCache()
	defer ResetPreflightCache()

	ok := CheckEnhancementAvailable(context.Background(), Paths{PythonBin: "python3", AnalyzeScript: "", ProcessScript: ""})
	assert.False(t, ok)
}
