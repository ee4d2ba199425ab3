package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragaeeb/beltane-pipeline/internal/config"
	"github.com/ragaeeb/beltane-pipeline/internal/jobqueue"
	"github.com/ragaeeb/beltane-pipeline/internal/model"
	"github.com/ragaeeb/beltane-pipeline/internal/store"
)

func newTestServer(t *testing.T, run jobqueue.Runner) (*Server, *store.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "beltane.db")
	st, err := store.Open(dbPath, store.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	if run == nil {
		run = func(ctx context.Context, job jobqueue.Job) (string, error) { return "", nil }
	}

	s := &Server{Store: st, Config: cfg}
	s.Jobs = jobqueue.New(context.Background(), 1, run)
	return s, st
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestOverridesFromLastRunCopiesLanguageModelFormatsAndEnhancement(t *testing.T) {
	ec := config.EnhancementConfig{
		Mode:               model.EnhanceOn,
		SourceClass:        model.SourceClassPodium,
		DereverbMode:       model.DereverbOn,
		AttenLimDb:         18,
		SNRSkipThresholdDb: 22,
	}
	raw, err := json.Marshal(ec)
	require.NoError(t, err)

	video := model.Video{
		Language:       "ar",
		Engine:         model.EngineWhisperX,
		ModelPath:      "turbo",
		OutputFormats:  []string{"json", "srt"},
		EnhancementCfg: string(raw),
	}

	o := overridesFromLastRun(video)
	assert.Equal(t, "ar", o.Language)
	assert.Equal(t, "turbo", o.ModelPath)
	assert.Equal(t, []string{"json", "srt"}, o.OutputFormats)
	assert.Equal(t, string(model.EnhanceOn), o.EnhancementMode)
	assert.Equal(t, string(model.SourceClassPodium), o.SourceClass)
	assert.Equal(t, string(model.DereverbOn), o.DereverbMode)
	require.NotNil(t, o.AttenLimDb)
	assert.Equal(t, 18.0, *o.AttenLimDb)
	require.NotNil(t, o.SNRSkipThresholdDb)
	assert.Equal(t, 22.0, *o.SNRSkipThresholdDb)
}

func TestHandleRetryVideoNotFound(t *testing.T) {
	s, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/videos/missing/retry", nil)
	req = withChiParam(req, "id", "missing")
	w := httptest.NewRecorder()

	s.handleRetryVideo(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleRetryVideoRejectsNonRetryableStatus(t *testing.T) {
	s, st := newTestServer(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, st.UpsertVideo(ctx, model.Video{
		ID: "vid1", SourceKind: model.SourceFile, SourceURI: "/a.mp4",
		Status: model.StatusDone, CreatedAt: now, UpdatedAt: now,
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/videos/vid1/retry", nil)
	req = withChiParam(req, "id", "vid1")
	w := httptest.NewRecorder()

	s.handleRetryVideo(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleRetryVideoConflictsWithActiveJob(t *testing.T) {
	ctx := context.Background()

	// Block the manager's single worker slot with a job that never
	// finishes, so a subsequently queued retry job stays "queued" (active).
	release := make(chan struct{})
	s, st := newTestServer(t, func(ctx context.Context, job jobqueue.Job) (string, error) {
		<-release
		return "", nil
	})
	t.Cleanup(func() { close(release) })

	now := time.Now().UTC()
	require.NoError(t, st.UpsertVideo(ctx, model.Video{
		ID: "vid1", SourceKind: model.SourceFile, SourceURI: "/a.mp4",
		Status: model.StatusError, CreatedAt: now, UpdatedAt: now,
	}))
	_, err := s.Jobs.CreateJob("file", "/a.mp4", true, jobqueue.Overrides{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/videos/vid1/retry", nil)
	req = withChiParam(req, "id", "vid1")
	w := httptest.NewRecorder()

	s.handleRetryVideo(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleDeleteVideoCleansUpWithinDataRootOnly(t *testing.T) {
	s, st := newTestServer(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	outsideDir := t.TempDir()
	outsideFile := filepath.Join(outsideDir, "original.mp4")
	require.NoError(t, os.WriteFile(outsideFile, []byte("x"), 0o644))

	audioDir := filepath.Join(s.Config.DataDir, "audio")
	require.NoError(t, os.MkdirAll(audioDir, 0o755))
	insideWav := filepath.Join(audioDir, "vid1.wav")
	require.NoError(t, os.WriteFile(insideWav, []byte("x"), 0o644))

	require.NoError(t, st.UpsertVideo(ctx, model.Video{
		ID: "vid1", SourceKind: model.SourceURL, SourceURI: "https://example.com/v",
		LocalPath: outsideFile, Status: model.StatusDone, CreatedAt: now, UpdatedAt: now,
	}))

	req := httptest.NewRequest(http.MethodDelete, "/api/videos/vid1", nil)
	req = withChiParam(req, "id", "vid1")
	w := httptest.NewRecorder()

	s.handleDeleteVideo(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// The video's local_path lives outside dataDir and must not be
	// touched.
	_, statErr := os.Stat(outsideFile)
	assert.NoError(t, statErr, "file outside dataDir must survive delete")

	// vid1.wav is inside dataDir/audio and prefixed "vid1." so it is a
	// legitimate cleanup target.
	_, statErr = os.Stat(insideWav)
	assert.True(t, os.IsNotExist(statErr), "file inside dataDir must be removed")

	_, err := st.GetVideo(ctx, "vid1")
	require.Error(t, err)
}

func TestWithinRootRejectsEscapingPaths(t *testing.T) {
	root := "/data"
	assert.True(t, withinRoot(root, "/data/audio/x.wav"))
	assert.False(t, withinRoot(root, "/etc/passwd"))
	assert.False(t, withinRoot(root, "/data/../etc/passwd"))
}
