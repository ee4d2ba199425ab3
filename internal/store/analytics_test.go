package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragaeeb/beltane-pipeline/internal/model"
)

func TestGetAnalyticsSummaryCountsDoneVideos(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	done := sampleVideo("vid-done")
	done.Status = model.StatusDone
	done.DurationMS = 3_600_000 // 1 hour
	require.NoError(t, st.UpsertVideo(ctx, done))
	require.NoError(t, st.InsertTranscript(ctx, model.Transcript{VideoID: "vid-done", Text: "x"}))

	errored := sampleVideo("vid-error")
	errored.Status = model.StatusError
	require.NoError(t, st.UpsertVideo(ctx, errored))

	analytics, err := st.GetAnalytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, analytics.Summary.TranscriptsTotal)
	assert.Equal(t, 2, analytics.Summary.VideosTotal)
	assert.InDelta(t, 1.0, analytics.Summary.TranscribedHours, 0.001)
}

func TestGetAnalyticsDailyCoversThirtyDaysIncludingZeroes(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertVideo(ctx, sampleVideo("vid-1")))

	analytics, err := st.GetAnalytics(ctx)
	require.NoError(t, err)
	assert.Len(t, analytics.Daily, 30)

	today := time.Now().UTC().Format("2006-01-02")
	found := false
	for _, d := range analytics.Daily {
		if d.Date == today {
			found = true
			assert.Equal(t, 1, d.Count)
		}
	}
	assert.True(t, found)
}

func TestGetAnalyticsLanguageDistributionFallsBackToUnknown(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	withLang := sampleVideo("vid-ar")
	withLang.Language = "ar"
	require.NoError(t, st.UpsertVideo(ctx, withLang))

	noLang := sampleVideo("vid-none")
	noLang.Language = ""
	require.NoError(t, st.UpsertVideo(ctx, noLang))

	analytics, err := st.GetAnalytics(ctx)
	require.NoError(t, err)

	labels := make(map[string]int)
	for _, l := range analytics.LanguageDistribution {
		labels[l.Label] = l.Count
	}
	assert.Equal(t, 1, labels["ar"])
	assert.Equal(t, 1, labels["unknown"])
}

func TestGetAnalyticsSignalNoisePieDegradesWhenSpeechRatioUnset(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertVideo(ctx, sampleVideo("vid-1")))

	run := model.EnhancementRun{VideoID: "vid-1", Status: model.EnhancementCompleted, Applied: true, StartedAt: time.Now().UTC(), FinishedAt: time.Now().UTC()}
	runID, err := st.InsertEnhancementRun(ctx, run)
	require.NoError(t, err)
	require.NoError(t, st.InsertEnhancementSegments(ctx, []model.EnhancementSegment{{RunID: runID, Index: 0, StartMS: 0, EndMS: 1000}}))

	analytics, err := st.GetAnalytics(ctx)
	require.NoError(t, err)

	labels := make(map[string]int)
	for _, l := range analytics.SignalNoisePie {
		labels[l.Label] = l.Count
	}
	assert.Equal(t, 0, labels["signal"])
	assert.Equal(t, 100, labels["noise"])
}
