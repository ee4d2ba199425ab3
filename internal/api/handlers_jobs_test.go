package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragaeeb/beltane-pipeline/internal/jobqueue"
	"github.com/ragaeeb/beltane-pipeline/internal/model"
)

func TestApplyOverridesLayersEveryField(t *testing.T) {
	s, _ := newTestServer(t, nil)
	base := s.Config

	atten := 30.0
	snr := 10.0
	o := jobqueue.Overrides{
		Engine:             string(model.EngineTafrigh),
		WitAiAPIKeys:       []string{"key-a", "key-b"},
		Language:           "en",
		ModelPath:          "large-v3",
		OutputFormats:      []string{"srt", "vtt"},
		EnhancementMode:    string(model.EnhanceOn),
		SourceClass:        string(model.SourceClassFarField),
		DereverbMode:       string(model.DereverbOn),
		AttenLimDb:         &atten,
		SNRSkipThresholdDb: &snr,
	}

	cfg := applyOverrides(base, o)
	assert.Equal(t, model.EngineTafrigh, cfg.Engine)
	assert.Equal(t, []string{"key-a", "key-b"}, cfg.WitAiAPIKeys)
	assert.Equal(t, "en", cfg.Language)
	assert.Equal(t, "large-v3", cfg.ModelPath)
	assert.Equal(t, []string{"srt", "vtt"}, cfg.OutputFormats)
	assert.Equal(t, model.EnhanceOn, cfg.Enhancement.Mode)
	assert.Equal(t, model.SourceClassFarField, cfg.Enhancement.SourceClass)
	assert.Equal(t, model.DereverbOn, cfg.Enhancement.DereverbMode)
	assert.Equal(t, 30.0, cfg.Enhancement.AttenLimDb)
	assert.Equal(t, 10.0, cfg.Enhancement.SNRSkipThresholdDb)

	// base must be unchanged (config is passed by value, never mutated).
	assert.NotEqual(t, base.Engine, cfg.Engine)
	assert.Equal(t, model.EngineWhisperX, base.Engine)
}

func TestApplyOverridesZeroValueKeepsBase(t *testing.T) {
	s, _ := newTestServer(t, nil)
	cfg := applyOverrides(s.Config, jobqueue.Overrides{})
	assert.Equal(t, s.Config, cfg)
}

func TestHandleCreateJobRejectsOversizedBody(t *testing.T) {
	s, _ := newTestServer(t, nil)

	huge := strings.Repeat("a", maxJobBodyBytes+1)
	body, err := json.Marshal(map[string]string{"input": "x", "padding": huge})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleCreateJob(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCreateJobRejectsEmptyInput(t *testing.T) {
	s, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{"input":"  "}`))
	w := httptest.NewRecorder()

	s.handleCreateJob(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCreateJobAppliesOutputFormatOverrides(t *testing.T) {
	seen := make(chan jobqueue.Job, 1)
	s, _ := newTestServer(t, func(ctx context.Context, job jobqueue.Job) (string, error) {
		seen <- job
		return "vid", nil
	})

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(
		`{"input":"https://example.com/x","overrides":{"outputFormats":["SRT","srt","vtt"]}}`))
	w := httptest.NewRecorder()

	s.handleCreateJob(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	job := <-seen
	assert.Equal(t, []string{"srt", "vtt"}, job.Overrides.OutputFormats)
}
