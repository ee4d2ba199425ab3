package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
	"github.com/ragaeeb/beltane-pipeline/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "beltane.db")
	st, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func sampleVideo(id string) model.Video {
	now := time.Now().UTC()
	return model.Video{
		ID:            id,
		SourceKind:    model.SourceFile,
		SourceURI:     "/media/" + id + ".mp4",
		Title:         "Friday khutbah",
		ChannelID:     "chan-1",
		UploaderID:    "uploader-1",
		Language:      "ar",
		Engine:        model.EngineWhisperX,
		OutputFormats: []string{"json", "txt"},
		Status:        model.StatusProcessing,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestOpenRunsMigrationsIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beltane.db")
	st1, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, st1.Close())

	st2, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	defer st2.Close()

	_, err = st2.GetVideo(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestUpsertAndGetVideoRoundTrips(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	v := sampleVideo("vid-1")
	require.NoError(t, st.UpsertVideo(ctx, v))

	got, err := st.GetVideo(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, v.Title, got.Title)
	assert.Equal(t, v.ChannelID, got.ChannelID)
	assert.Equal(t, []string{"json", "txt"}, got.OutputFormats)
	assert.Equal(t, model.StatusProcessing, got.Status)
}

func TestUpsertVideoOverwritesOnConflict(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	v := sampleVideo("vid-1")
	require.NoError(t, st.UpsertVideo(ctx, v))

	v.Title = "Updated title"
	v.Status = model.StatusDone
	require.NoError(t, st.UpsertVideo(ctx, v))

	got, err := st.GetVideo(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, "Updated title", got.Title)
	assert.Equal(t, model.StatusDone, got.Status)
}

func TestUpdateVideoStatusSetsErrorAndStatus(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertVideo(ctx, sampleVideo("vid-1")))
	require.NoError(t, st.UpdateVideoStatus(ctx, "vid-1", model.StatusError, "boom"))

	got, err := st.GetVideo(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, got.Status)
	assert.Equal(t, "boom", got.Error)
}

func TestListVideosOrdersNewestFirstAndRespectsLimit(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"vid-a", "vid-b", "vid-c"} {
		v := sampleVideo(id)
		v.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		v.UpdatedAt = v.CreatedAt
		require.NoError(t, st.UpsertVideo(ctx, v))
	}

	out, err := st.ListVideos(ctx, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "vid-c", out[0].ID)
	assert.Equal(t, "vid-b", out[1].ID)
}

func TestHasTranscriptReflectsInsertedTranscript(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertVideo(ctx, sampleVideo("vid-1")))

	has, err := st.HasTranscript(ctx, "vid-1")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, st.InsertTranscript(ctx, model.Transcript{VideoID: "vid-1", Text: "bismillah"}))

	has, err = st.HasTranscript(ctx, "vid-1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestGetTranscriptNotFound(t *testing.T) {
	st := openTestStore(t)
	_, err := st.GetTranscript(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestInsertSegmentsAndListSegmentsOrdersByStart(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertVideo(ctx, sampleVideo("vid-1")))

	segs := []model.Segment{
		{VideoID: "vid-1", StartMS: 2000, EndMS: 3000, Text: "second"},
		{VideoID: "vid-1", StartMS: 0, EndMS: 1000, Text: "first"},
	}
	require.NoError(t, st.InsertSegments(ctx, segs))

	out, err := st.ListSegments(ctx, "vid-1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].Text)
	assert.Equal(t, "second", out[1].Text)
}

func TestSearchSegmentsFindsMatchByBM25(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertVideo(ctx, sampleVideo("vid-1")))
	require.NoError(t, st.InsertSegments(ctx, []model.Segment{
		{VideoID: "vid-1", StartMS: 0, EndMS: 1000, Text: "the congregation gathered for prayer"},
		{VideoID: "vid-1", StartMS: 1000, EndMS: 2000, Text: "unrelated weather discussion"},
	}))

	hits, err := st.SearchSegments(ctx, "prayer", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Text, "prayer")
}

func TestSearchSegmentsRejectsEmptyQuery(t *testing.T) {
	st := openTestStore(t)
	_, err := st.SearchSegments(context.Background(), "   ", 10)
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidQuery, apperr.KindOf(err))
}

func TestSearchSegmentsReportsMalformedMatchAsInvalidQuery(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertVideo(ctx, sampleVideo("vid-1")))
	require.NoError(t, st.InsertSegments(ctx, []model.Segment{{VideoID: "vid-1", StartMS: 0, EndMS: 1000, Text: "hello"}}))

	_, err := st.SearchSegments(ctx, `"unterminated`, 10)
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidQuery, apperr.KindOf(err))
}

func TestDeleteVideoDataKeepsVideoRow(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertVideo(ctx, sampleVideo("vid-1")))
	require.NoError(t, st.InsertTranscript(ctx, model.Transcript{VideoID: "vid-1", Text: "x"}))
	require.NoError(t, st.InsertSegments(ctx, []model.Segment{{VideoID: "vid-1", StartMS: 0, EndMS: 1000, Text: "x"}}))

	require.NoError(t, st.DeleteVideoData(ctx, "vid-1"))

	_, err := st.GetVideo(ctx, "vid-1")
	require.NoError(t, err)

	has, err := st.HasTranscript(ctx, "vid-1")
	require.NoError(t, err)
	assert.False(t, has)

	segs, err := st.ListSegments(ctx, "vid-1")
	require.NoError(t, err)
	assert.Empty(t, segs)
}

func TestDeleteVideoFullyRemovesVideoRow(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertVideo(ctx, sampleVideo("vid-1")))

	require.NoError(t, st.DeleteVideoFully(ctx, "vid-1"))

	_, err := st.GetVideo(ctx, "vid-1")
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestEnhancementRunAndSegmentsRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertVideo(ctx, sampleVideo("vid-1")))

	snr := 14.2
	run := model.EnhancementRun{
		VideoID:     "vid-1",
		Status:      model.EnhancementCompleted,
		Applied:     true,
		Mode:        model.EnhanceAuto,
		SourceClass: model.SourceClassFarField,
		SNRDb:       &snr,
		RegimeCount: 2,
		StartedAt:   time.Now().UTC(),
		FinishedAt:  time.Now().UTC(),
	}
	runID, err := st.InsertEnhancementRun(ctx, run)
	require.NoError(t, err)
	assert.Greater(t, runID, int64(0))

	require.NoError(t, st.InsertEnhancementSegments(ctx, []model.EnhancementSegment{
		{RunID: runID, Index: 0, StartMS: 0, EndMS: 500, DereverbApplied: true},
		{RunID: runID, Index: 1, StartMS: 500, EndMS: 1000},
	}))

	latest, err := st.LatestEnhancementRun(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, model.EnhancementCompleted, latest.Status)
	assert.True(t, latest.Applied)
	assert.Equal(t, 14.2, *latest.SNRDb)

	segs, err := st.ListEnhancementSegments(ctx, runID)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.True(t, segs[0].DereverbApplied)
}

func TestLatestEnhancementRunNotFound(t *testing.T) {
	st := openTestStore(t)
	_, err := st.LatestEnhancementRun(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestPersistPipelineResultWritesEverythingAndMarksDone(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertVideo(ctx, sampleVideo("vid-1")))

	snr := 9.0
	err := st.PersistPipelineResult(ctx, PipelineResult{
		Transcript: model.Transcript{VideoID: "vid-1", Text: "bismillah"},
		Segments:   []model.Segment{{VideoID: "vid-1", StartMS: 0, EndMS: 1000, Text: "bismillah"}},
		Artifacts:  []model.Artifact{{VideoID: "vid-1", Kind: model.ArtifactTranscriptJSON, URI: "/t.json"}},
		EnhancementRun: &model.EnhancementRun{
			VideoID:     "vid-1",
			Status:      model.EnhancementCompleted,
			Applied:     true,
			Mode:        model.EnhanceAuto,
			SourceClass: model.SourceClassStudio,
			SNRDb:       &snr,
			StartedAt:   time.Now().UTC(),
			FinishedAt:  time.Now().UTC(),
		},
		EnhancementSegments: []model.EnhancementSegment{{Index: 0, StartMS: 0, EndMS: 1000}},
		VideoID:             "vid-1",
		FinalStatus:         model.StatusDone,
	})
	require.NoError(t, err)

	has, err := st.HasTranscript(ctx, "vid-1")
	require.NoError(t, err)
	assert.True(t, has)

	v, err := st.GetVideo(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, v.Status)

	latest, err := st.LatestEnhancementRun(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, model.EnhancementCompleted, latest.Status)

	segs, err := st.ListEnhancementSegments(ctx, latest.ID)
	require.NoError(t, err)
	require.Len(t, segs, 1)
}

func TestPersistPipelineResultRollsBackOnFailure(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertVideo(ctx, sampleVideo("vid-1")))

	// A bogus enhancement run referencing a video that doesn't exist trips
	// the enhancement_runs foreign key, so nothing committed should survive
	// the failed transaction.
	err := st.PersistPipelineResult(ctx, PipelineResult{
		Transcript: model.Transcript{VideoID: "vid-1", Text: "bismillah"},
		Segments:   []model.Segment{{VideoID: "vid-1", StartMS: 0, EndMS: 1000, Text: "bismillah"}},
		EnhancementRun: &model.EnhancementRun{
			VideoID: "missing-video",
			Status:  model.EnhancementError,
		},
		VideoID:     "vid-1",
		FinalStatus: model.StatusDone,
	})
	require.Error(t, err)

	has, herr := st.HasTranscript(ctx, "vid-1")
	require.NoError(t, herr)
	assert.False(t, has, "transcript insert must roll back alongside the failed enhancement run insert")

	v, gerr := st.GetVideo(ctx, "vid-1")
	require.NoError(t, gerr)
	assert.Equal(t, model.StatusProcessing, v.Status, "status update must roll back too")
}
