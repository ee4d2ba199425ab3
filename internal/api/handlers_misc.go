package api

import (
	"net/http"
	"time"

	"github.com/ragaeeb/beltane-pipeline/internal/model"
	"github.com/ragaeeb/beltane-pipeline/internal/transcribe"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "time": time.Now().UTC()})
}

// handleOptions exposes the enum/default catalog the UI uses to build
// its job submission form.
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"defaults": map[string]any{
			"engine":             s.Config.Engine,
			"language":           s.Config.Language,
			"jobs":               s.Config.Jobs,
			"outputFormats":      s.Config.OutputFormats,
			"enhancementMode":    s.Config.Enhancement.Mode,
			"sourceClass":        s.Config.Enhancement.SourceClass,
			"dereverbMode":       s.Config.Enhancement.DereverbMode,
			"attenLimDb":         s.Config.Enhancement.AttenLimDb,
			"snrSkipThresholdDb": s.Config.Enhancement.SNRSkipThresholdDb,
		},
		"enhancementModes": []model.EnhancementMode{model.EnhanceOff, model.EnhanceAuto, model.EnhanceOn, model.EnhanceAnalyzeOnly},
		"dereverbModes":    []model.DereverbMode{model.DereverbOff, model.DereverbAuto, model.DereverbOn},
		"sourceClasses":    []model.SourceClass{model.SourceClassAuto, model.SourceClassStudio, model.SourceClassPodium, model.SourceClassFarField, model.SourceClassCassette},
		"engines":          []model.Engine{model.EngineWhisperX, model.EngineTafrigh},
		"outputFormats":    []string{"json", "txt", "srt", "vtt", "tsv"},
		"models":           transcribe.KnownModels(),
		"languages":        transcribe.KnownLanguages(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	videos, err := s.Store.ListVideos(r.Context(), 100000)
	if err != nil {
		writeError(w, err)
		return
	}

	var transcriptsTotal, audioBacked int
	for _, v := range videos {
		if v.Status != model.StatusDone {
			continue
		}
		transcriptsTotal++
		if _, hasAudio := s.findAudioArtifact(r, v.ID); hasAudio {
			audioBacked++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"stats": map[string]any{
		"transcriptsTotal":       transcriptsTotal,
		"videosTotal":            len(videos),
		"audioBackedTranscripts": audioBacked,
		"activeJobs":             s.Jobs.CountActiveJobs(),
	}})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := s.Store.GetAnalytics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analytics": analytics})
}
