package api

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
	"github.com/ragaeeb/beltane-pipeline/internal/config"
	"github.com/ragaeeb/beltane-pipeline/internal/jobqueue"
	"github.com/ragaeeb/beltane-pipeline/internal/log"
	"github.com/ragaeeb/beltane-pipeline/internal/model"
)

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50)
	videos, err := s.Store.ListVideos(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"videos": videos})
}

// handleRetryVideo re-enters a video into the processing pipeline. The
// video must exist, be in a retryable status, and carry a usable
// source reference; otherwise 404/409/422 as appropriate.
func (s *Server) handleRetryVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := validateVideoID(id); err != nil {
		writeError(w, err)
		return
	}

	video, err := s.Store.GetVideo(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !video.Status.Retryable() {
		writeError(w, apperr.New(apperr.Conflict, "video is not in a retryable state"))
		return
	}
	if video.SourceURI == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "video has no source to retry"})
		return
	}
	if active, found := s.Jobs.FindActiveJobByInput(video.SourceURI); found {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "active job already exists", "job": active})
		return
	}

	job, err := s.Jobs.CreateJob(string(video.SourceKind), video.SourceURI, true, overridesFromLastRun(video))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"job": job})
}

// overridesFromLastRun reconstructs job overrides from the fields the
// Video row recorded on its last processing run, so a retry re-runs
// with the same language/model/output formats/enhancement settings.
func overridesFromLastRun(video model.Video) jobqueue.Overrides {
	o := jobqueue.Overrides{
		Engine:        string(video.Engine),
		Language:      video.Language,
		ModelPath:     video.ModelPath,
		OutputFormats: video.OutputFormats,
	}
	if video.EnhancementCfg == "" {
		return o
	}
	var ec config.EnhancementConfig
	if err := json.Unmarshal([]byte(video.EnhancementCfg), &ec); err != nil {
		return o
	}
	o.EnhancementMode = string(ec.Mode)
	o.SourceClass = string(ec.SourceClass)
	o.DereverbMode = string(ec.DereverbMode)
	atten := ec.AttenLimDb
	o.AttenLimDb = &atten
	snr := ec.SNRSkipThresholdDb
	o.SNRSkipThresholdDb = &snr
	return o
}

func (s *Server) handleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := validateVideoID(id); err != nil {
		writeError(w, err)
		return
	}

	video, err := s.Store.GetVideo(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if video.Status == model.StatusProcessing {
		writeError(w, apperr.New(apperr.Conflict, "video is currently processing"))
		return
	}
	if _, found := s.Jobs.FindActiveJobByInput(video.SourceURI); found {
		writeError(w, apperr.New(apperr.Conflict, "active job targets this video's input"))
		return
	}

	artifacts, err := s.Store.ListArtifacts(r.Context(), id, "")
	if err != nil {
		writeError(w, err)
		return
	}
	s.cleanupVideoFiles(video, artifacts)

	if err := s.Store.DeleteVideoFully(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "videoId": id})
}

// cleanupVideoFiles removes every filesystem path owned by video,
// restricted to paths within the configured data directory. A
// Video.LocalPath that lives outside dataDir is never touched.
func (s *Server) cleanupVideoFiles(video model.Video, artifacts []model.Artifact) {
	logger := log.WithComponent("api")
	dataRoot, err := filepath.Abs(s.Config.DataDir)
	if err != nil {
		logger.Error().Err(err).Msg("resolve data root for cleanup")
		return
	}

	var candidates []string
	for _, a := range artifacts {
		candidates = append(candidates, a.URI)
	}
	if video.SourceKind == model.SourceURL && video.LocalPath != "" {
		candidates = append(candidates, video.LocalPath)
	}
	candidates = append(candidates,
		filepath.Join(dataRoot, "transcripts", video.ID),
		filepath.Join(dataRoot, "enhance", video.ID),
	)
	candidates = append(candidates, prefixedEntries(filepath.Join(dataRoot, "source_audio"), video.ID)...)
	candidates = append(candidates, prefixedEntries(filepath.Join(dataRoot, "audio"), video.ID)...)

	for _, c := range candidates {
		if !withinRoot(dataRoot, c) {
			continue
		}
		if err := os.RemoveAll(c); err != nil && !os.IsNotExist(err) {
			logger.Warn().Str(log.FieldVideoID, video.ID).Str("path", c).Err(err).Msg("cleanup failed")
		}
	}
}

// prefixedEntries lists dir entries whose name starts with id+"." and
// returns their absolute paths; it never errors on a missing dir.
func prefixedEntries(dir, id string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), id+".") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out
}

// withinRoot reports whether the absolute, cleaned form of path lies
// inside root.
func withinRoot(root, path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
