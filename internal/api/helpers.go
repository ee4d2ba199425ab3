package api

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
	"github.com/ragaeeb/beltane-pipeline/internal/log"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		apiLogger := log.WithComponent("api")
		apiLogger.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps err to its HTTP status via its apperr.Kind. Internal
// errors log the real cause but never leak it to the client.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if kind == apperr.Internal {
		apiLogger := log.WithComponent("api")
		apiLogger.Error().Err(err).Msg("internal server error")
		writeJSON(w, status, map[string]any{"error": "Internal server error"})
		return
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func validateVideoID(id string) error {
	if !videoIDPattern.MatchString(id) {
		return apperr.New(apperr.BadInput, "invalid video id")
	}
	return nil
}
