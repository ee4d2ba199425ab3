package api

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ragaeeb/beltane-pipeline/internal/model"
)

type transcriptView struct {
	model.Transcript
	AudioURL  string `json:"audioUrl"`
	AudioKind string `json:"audioKind"`
	HasAudio  bool   `json:"hasAudio"`
}

// handleListTranscripts supports limit/offset paging plus an optional
// full-text query (q) and a channel_id filter applied client-side over
// the listed videos' channel ids.
func (s *Server) handleListTranscripts(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50)
	offset := parseOffset(r)
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	channelID := r.URL.Query().Get("channel_id")

	if query != "" {
		hits, err := s.Store.SearchSegments(r.Context(), query, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transcripts": hits})
		return
	}

	videos, err := s.Store.ListVideos(r.Context(), limit+offset)
	if err != nil {
		writeError(w, err)
		return
	}
	if offset < len(videos) {
		videos = videos[offset:]
	} else {
		videos = nil
	}

	var out []model.Video
	for _, v := range videos {
		if channelID != "" && v.ChannelID != channelID {
			continue
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"transcripts": out})
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := validateVideoID(id); err != nil {
		writeError(w, err)
		return
	}

	transcript, err := s.Store.GetTranscript(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	kind, hasAudio := s.findAudioArtifact(r, id)
	view := transcriptView{
		Transcript: transcript,
		AudioKind:  kind,
		HasAudio:   hasAudio,
	}
	if hasAudio {
		view.AudioURL = "/api/media/audio/" + id
	}
	writeJSON(w, http.StatusOK, map[string]any{"transcript": view})
}

// findAudioArtifact reports the kind of audio that would actually be
// streamed for videoID, using the same priority order as the media
// endpoint.
func (s *Server) findAudioArtifact(r *http.Request, videoID string) (kind string, ok bool) {
	for _, k := range audioKindPriority {
		artifacts, err := s.Store.ListArtifacts(r.Context(), videoID, k)
		if err != nil || len(artifacts) == 0 {
			continue
		}
		if _, statErr := os.Stat(artifacts[0].URI); statErr == nil {
			return string(k), true
		}
	}
	video, err := s.Store.GetVideo(r.Context(), videoID)
	if err == nil && video.LocalPath != "" {
		if _, statErr := os.Stat(video.LocalPath); statErr == nil {
			return "local_path", true
		}
	}
	return "", false
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	videos, err := s.Store.ListVideos(r.Context(), 10000)
	if err != nil {
		writeError(w, err)
		return
	}
	seen := make(map[string]bool)
	var channels []map[string]string
	for _, v := range videos {
		if v.ChannelID == "" || seen[v.ChannelID] {
			continue
		}
		seen[v.ChannelID] = true
		channels = append(channels, map[string]string{"channelId": v.ChannelID, "uploaderId": v.UploaderID})
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
}

func parseOffset(r *http.Request) int {
	raw := r.URL.Query().Get("offset")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
