package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
	"github.com/ragaeeb/beltane-pipeline/internal/model"
)

// audioKindPriority orders candidate audio sources; the resolved kind
// is the highest-priority one whose file currently exists on disk.
var audioKindPriority = []model.ArtifactKind{model.ArtifactSourceAudio, model.ArtifactAudioWavEnhanced, model.ArtifactAudioWav}

const (
	audioCacheTTL = 30 * time.Second
	audioCacheCap = 5000
)

type audioCacheEntry struct {
	path     string
	resolved time.Time
}

// audioResolveCache memoizes resolveAudioPath per video id for
// audioCacheTTL, bounded to audioCacheCap entries (oldest evicted).
var audioResolveCache struct {
	mu      sync.Mutex
	entries map[string]audioCacheEntry
}

// ResetAudioResolveCache clears the memoized audio resolution cache.
// Tests call this to exercise cache-miss and cache-hit paths.
func ResetAudioResolveCache() {
	audioResolveCache.mu.Lock()
	defer audioResolveCache.mu.Unlock()
	audioResolveCache.entries = nil
}

func audioCacheGet(videoID string) (string, bool) {
	audioResolveCache.mu.Lock()
	defer audioResolveCache.mu.Unlock()
	e, ok := audioResolveCache.entries[videoID]
	if !ok || time.Since(e.resolved) > audioCacheTTL {
		return "", false
	}
	return e.path, true
}

func audioCachePut(videoID, path string) {
	audioResolveCache.mu.Lock()
	defer audioResolveCache.mu.Unlock()
	if audioResolveCache.entries == nil {
		audioResolveCache.entries = make(map[string]audioCacheEntry)
	}
	if len(audioResolveCache.entries) >= audioCacheCap {
		evictOldestLocked()
	}
	audioResolveCache.entries[videoID] = audioCacheEntry{path: path, resolved: time.Now()}
}

// evictOldestLocked drops the single oldest entry. Callers must hold
// audioResolveCache.mu.
func evictOldestLocked() {
	var oldestID string
	var oldestAt time.Time
	first := true
	for id, e := range audioResolveCache.entries {
		if first || e.resolved.Before(oldestAt) {
			oldestID, oldestAt, first = id, e.resolved, false
		}
	}
	if !first {
		delete(audioResolveCache.entries, oldestID)
	}
}

func (s *Server) resolveAudioPath(r *http.Request, videoID string) (string, error) {
	if path, ok := audioCacheGet(videoID); ok {
		return path, nil
	}

	path, err := s.resolveAudioPathUncached(r, videoID)
	if err != nil {
		return "", err
	}
	audioCachePut(videoID, path)
	return path, nil
}

func (s *Server) resolveAudioPathUncached(r *http.Request, videoID string) (string, error) {
	for _, kind := range audioKindPriority {
		artifacts, err := s.Store.ListArtifacts(r.Context(), videoID, kind)
		if err != nil {
			return "", err
		}
		if len(artifacts) == 0 {
			continue
		}
		if _, statErr := os.Stat(artifacts[0].URI); statErr == nil {
			return artifacts[0].URI, nil
		}
	}

	video, err := s.Store.GetVideo(r.Context(), videoID)
	if err != nil {
		return "", err
	}
	if video.LocalPath != "" {
		if _, statErr := os.Stat(video.LocalPath); statErr == nil {
			return video.LocalPath, nil
		}
	}
	return "", apperr.New(apperr.NotFound, "no audio available for this video")
}

// handleMediaAudio serves a single video's resolved audio file with
// single-range byte-range support.
func (s *Server) handleMediaAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := validateVideoID(id); err != nil {
		writeError(w, err)
		return
	}

	path, err := s.resolveAudioPath(r, id)
	if err != nil {
		writeError(w, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.NotFound, "open audio file", err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, apperr.Wrap(apperr.Internal, "stat audio file", err))
		return
	}
	size := info.Size()

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Accept-Ranges", "bytes")

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = io.Copy(w, f)
		}
		return
	}

	start, end, err := parseRange(rangeHeader, size)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		writeError(w, err)
		return
	}

	length := end - start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := f.Seek(start, 0); err != nil {
		return
	}
	_, _ = io.CopyN(w, f, length)
}

// parseRange implements a single-range subset of RFC 7233: bytes=a-b,
// bytes=-N (last N bytes), and bytes=a- (a to end).
func parseRange(header string, size int64) (start, end int64, err error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, apperr.New(apperr.InvalidRange, "unsupported range unit")
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return 0, 0, apperr.New(apperr.InvalidRange, "multi-range requests are not supported")
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, apperr.New(apperr.InvalidRange, "malformed range header")
	}

	if parts[0] == "" {
		n, convErr := strconv.ParseInt(parts[1], 10, 64)
		if convErr != nil || n <= 0 {
			return 0, 0, apperr.New(apperr.InvalidRange, "malformed suffix range")
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, nil
	}

	start, convErr := strconv.ParseInt(parts[0], 10, 64)
	if convErr != nil || start < 0 || start >= size {
		return 0, 0, apperr.New(apperr.InvalidRange, "malformed range start")
	}

	if parts[1] == "" {
		return start, size - 1, nil
	}

	end, convErr = strconv.ParseInt(parts[1], 10, 64)
	if convErr != nil || end < start {
		return 0, 0, apperr.New(apperr.InvalidRange, "malformed range end")
	}
	if end >= size {
		end = size - 1
	}
	return start, end, nil
}
