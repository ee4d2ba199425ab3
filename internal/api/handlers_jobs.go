package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
	"github.com/ragaeeb/beltane-pipeline/internal/config"
	"github.com/ragaeeb/beltane-pipeline/internal/jobqueue"
	"github.com/ragaeeb/beltane-pipeline/internal/model"
	"github.com/ragaeeb/beltane-pipeline/internal/pipeline"
	"github.com/ragaeeb/beltane-pipeline/internal/transcribe"
)

var validOutputFormatSet = map[string]bool{"json": true, "txt": true, "srt": true, "vtt": true, "tsv": true}

// jobOverridesPayload is the wire shape of CreateJobRequest.overrides.
type jobOverridesPayload struct {
	Engine             string   `json:"engine"`
	WitAiAPIKeys       []string `json:"witAiApiKeys"`
	Language           string   `json:"language"`
	ModelPath          string   `json:"modelPath"`
	OutputFormats      []string `json:"outputFormats"`
	EnhancementMode    string   `json:"enhancementMode"`
	SourceClass        string   `json:"sourceClass"`
	DereverbMode       string   `json:"dereverbMode"`
	AttenLimDb         *float64 `json:"attenLimDb"`
	SNRSkipThresholdDb *float64 `json:"snrSkipThresholdDb"`
}

type createJobRequest struct {
	Input     string              `json:"input"`
	Force     bool                `json:"force"`
	Overrides jobOverridesPayload `json:"overrides"`
}

// maxJobBodyBytes bounds POST /api/jobs request bodies.
const maxJobBodyBytes = 1_048_576

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJobBodyBytes)

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.BadInput, "invalid JSON body"))
		return
	}

	req.Input = strings.TrimSpace(req.Input)
	if req.Input == "" {
		writeError(w, apperr.New(apperr.BadInput, "input must not be empty"))
		return
	}
	if err := validateOverrides(req.Overrides); err != nil {
		writeError(w, err)
		return
	}

	kind := "file"
	if looksLikeURL(req.Input) {
		kind = "url"
	}

	job, err := s.Jobs.CreateJob(kind, req.Input, req.Force, toOverrides(req.Overrides))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"job": job})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.Jobs.GetJob(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50)
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.Jobs.ListJobs(limit)})
}

func validateOverrides(o jobOverridesPayload) error {
	if o.Engine != "" && o.Engine != string(model.EngineWhisperX) && o.Engine != string(model.EngineTafrigh) {
		return apperr.New(apperr.BadInput, "invalid engine override")
	}
	for _, f := range o.OutputFormats {
		if !validOutputFormatSet[strings.ToLower(f)] {
			return apperr.New(apperr.BadInput, "invalid outputFormat override: "+f)
		}
	}
	if o.EnhancementMode != "" {
		switch model.EnhancementMode(o.EnhancementMode) {
		case model.EnhanceOff, model.EnhanceAuto, model.EnhanceOn, model.EnhanceAnalyzeOnly:
		default:
			return apperr.New(apperr.BadInput, "invalid enhancementMode override")
		}
	}
	if o.SourceClass != "" {
		switch model.SourceClass(o.SourceClass) {
		case model.SourceClassAuto, model.SourceClassStudio, model.SourceClassPodium, model.SourceClassFarField, model.SourceClassCassette:
		default:
			return apperr.New(apperr.BadInput, "invalid sourceClass override")
		}
	}
	if o.DereverbMode != "" {
		switch model.DereverbMode(o.DereverbMode) {
		case model.DereverbOff, model.DereverbAuto, model.DereverbOn:
		default:
			return apperr.New(apperr.BadInput, "invalid dereverbMode override")
		}
	}
	if o.AttenLimDb != nil && (*o.AttenLimDb < 0 || *o.AttenLimDb > 60) {
		return apperr.New(apperr.BadInput, "attenLimDb must be in [0,60]")
	}
	if o.SNRSkipThresholdDb != nil && (*o.SNRSkipThresholdDb < -20 || *o.SNRSkipThresholdDb > 60) {
		return apperr.New(apperr.BadInput, "snrSkipThresholdDb must be in [-20,60]")
	}
	return nil
}

func toOverrides(o jobOverridesPayload) jobqueue.Overrides {
	formats := make([]string, 0, len(o.OutputFormats))
	seen := make(map[string]bool)
	for _, f := range o.OutputFormats {
		norm := strings.ToLower(f)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		formats = append(formats, norm)
	}

	return jobqueue.Overrides{
		Engine:             o.Engine,
		WitAiAPIKeys:       o.WitAiAPIKeys,
		Language:           o.Language,
		ModelPath:          o.ModelPath,
		OutputFormats:      formats,
		EnhancementMode:    o.EnhancementMode,
		SourceClass:        o.SourceClass,
		DereverbMode:       o.DereverbMode,
		AttenLimDb:         o.AttenLimDb,
		SNRSkipThresholdDb: o.SNRSkipThresholdDb,
	}
}

func looksLikeURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// runJob applies a job's overrides atop the server's base config,
// makes sure the model is ready, and drives one item through the
// pipeline engine.
func (s *Server) runJob(ctx context.Context, job jobqueue.Job) (string, error) {
	cfg := applyOverrides(s.Config, job.Overrides)

	if err := transcribe.EnsureModel(ctx, cfg.ModelPath, cfg.ModelDownloadURL, cfg.AutoDownloadModel); err != nil {
		return "", err
	}

	item := pipeline.Item{Value: job.Input, IsURL: looksLikeURL(job.Input)}
	return s.Engine.ProcessItem(ctx, item, cfg, job.Force)
}

// applyOverrides builds a new RunConfig from base with o layered atop
// it; base is never mutated.
func applyOverrides(base config.RunConfig, o jobqueue.Overrides) config.RunConfig {
	cfg := base
	if o.Engine != "" {
		cfg.Engine = model.Engine(o.Engine)
	}
	if len(o.WitAiAPIKeys) > 0 {
		cfg.WitAiAPIKeys = o.WitAiAPIKeys
	}
	if o.Language != "" {
		cfg.Language = o.Language
	}
	if o.ModelPath != "" {
		cfg.ModelPath = o.ModelPath
	}
	if len(o.OutputFormats) > 0 {
		cfg.OutputFormats = o.OutputFormats
	}
	if o.EnhancementMode != "" {
		cfg.Enhancement.Mode = model.EnhancementMode(o.EnhancementMode)
	}
	if o.SourceClass != "" {
		cfg.Enhancement.SourceClass = model.SourceClass(o.SourceClass)
	}
	if o.DereverbMode != "" {
		cfg.Enhancement.DereverbMode = model.DereverbMode(o.DereverbMode)
	}
	if o.AttenLimDb != nil {
		cfg.Enhancement.AttenLimDb = *o.AttenLimDb
	}
	if o.SNRSkipThresholdDb != nil {
		cfg.Enhancement.SNRSkipThresholdDb = *o.SNRSkipThresholdDb
	}
	return cfg
}

func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
