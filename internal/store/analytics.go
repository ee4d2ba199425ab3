package store

import (
	"context"
	"time"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
)

// Analytics is the dashboard's read-only aggregate payload.
type Analytics struct {
	Summary              AnalyticsSummary `json:"summary"`
	Daily                []DailyCount     `json:"daily"`
	LanguageDistribution []LabeledCount   `json:"languageDistribution"`
	SourceDistribution   []LabeledCount   `json:"sourceDistribution"`
	StatusDistribution   []LabeledCount   `json:"statusDistribution"`
	EnhancementOutcomes  []LabeledCount   `json:"enhancementOutcomes"`
	DurationBuckets      []LabeledCount   `json:"durationBuckets"`
	JobWallClockMS       []VideoTiming    `json:"jobWallClockMs"`
	EnhancementTimingMS  []RunTiming      `json:"enhancementTimingMs"`
	SignalNoisePie       []LabeledCount   `json:"signalNoisePie"`
}

type AnalyticsSummary struct {
	TranscriptsTotal   int     `json:"transcriptsTotal"`
	VideosTotal        int     `json:"videosTotal"`
	TranscribedHours   float64 `json:"transcribedHours"`
	AveragePerDayLast7 float64 `json:"averagePerDayLast7"`
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type LabeledCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type VideoTiming struct {
	VideoID string `json:"videoId"`
	Ms      int64  `json:"ms"`
}

type RunTiming struct {
	VideoID    string   `json:"videoId"`
	AnalysisMS int64    `json:"analysisMs"`
	ProcessMS  int64    `json:"processMs"`
	SNRDb      *float64 `json:"snrDb"`
}

// GetAnalytics computes the dashboard's aggregate view directly over
// videos and enhancement_runs; nothing here is persisted.
func (s *Store) GetAnalytics(ctx context.Context) (Analytics, error) {
	var a Analytics

	if err := s.fillSummary(ctx, &a); err != nil {
		return a, err
	}
	if err := s.fillDaily(ctx, &a); err != nil {
		return a, err
	}
	if err := s.fillDistributions(ctx, &a); err != nil {
		return a, err
	}
	if err := s.fillDurationBuckets(ctx, &a); err != nil {
		return a, err
	}
	if err := s.fillEnhancementAggregates(ctx, &a); err != nil {
		return a, err
	}
	return a, nil
}

func (s *Store) fillSummary(ctx context.Context, a *Analytics) error {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM transcripts),
			(SELECT COUNT(*) FROM videos),
			(SELECT COALESCE(SUM(duration_ms),0) FROM videos WHERE status='done'),
			(SELECT COUNT(*) FROM videos WHERE created_at >= ?)
	`, time.Now().AddDate(0, 0, -7).UTC().Format(time.RFC3339))

	var durationMS int64
	var last7 int
	if err := row.Scan(&a.Summary.TranscriptsTotal, &a.Summary.VideosTotal, &durationMS, &last7); err != nil {
		return apperr.Wrap(apperr.StoreError, "analytics summary", err)
	}
	a.Summary.TranscribedHours = float64(durationMS) / 3600000
	a.Summary.AveragePerDayLast7 = float64(last7) / 7
	return nil
}

func (s *Store) fillDaily(ctx context.Context, a *Analytics) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(created_at,1,10) AS day, COUNT(*)
		FROM videos
		WHERE created_at >= ?
		GROUP BY day
	`, time.Now().AddDate(0, 0, -30).UTC().Format(time.RFC3339))
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "analytics daily", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var day string
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return apperr.Wrap(apperr.StoreError, "scan analytics daily", err)
		}
		counts[day] = n
	}
	if err := rows.Err(); err != nil {
		return apperr.Wrap(apperr.StoreError, "analytics daily rows", err)
	}

	a.Daily = make([]DailyCount, 0, 30)
	for i := 29; i >= 0; i-- {
		day := time.Now().AddDate(0, 0, -i).UTC().Format("2006-01-02")
		a.Daily = append(a.Daily, DailyCount{Date: day, Count: counts[day]})
	}
	return nil
}

func (s *Store) fillDistributions(ctx context.Context, a *Analytics) error {
	var err error
	if a.LanguageDistribution, err = s.labeledCounts(ctx, `SELECT CASE WHEN language='' THEN 'unknown' ELSE language END, COUNT(*) FROM videos GROUP BY 1`); err != nil {
		return err
	}
	if a.SourceDistribution, err = s.labeledCounts(ctx, `SELECT source_kind, COUNT(*) FROM videos GROUP BY 1`); err != nil {
		return err
	}
	if a.StatusDistribution, err = s.labeledCounts(ctx, `SELECT status, COUNT(*) FROM videos GROUP BY 1`); err != nil {
		return err
	}
	if a.EnhancementOutcomes, err = s.labeledCounts(ctx, `
		SELECT CASE WHEN applied=1 THEN 'applied' ELSE COALESCE(NULLIF(skip_reason,''),'skipped') END, COUNT(*)
		FROM enhancement_runs GROUP BY 1`); err != nil {
		return err
	}
	return nil
}

func (s *Store) labeledCounts(ctx context.Context, query string, args ...any) ([]LabeledCount, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "analytics distribution", err)
	}
	defer rows.Close()

	var out []LabeledCount
	for rows.Next() {
		var c LabeledCount
		if err := rows.Scan(&c.Label, &c.Count); err != nil {
			return nil, apperr.Wrap(apperr.StoreError, "scan analytics distribution", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "analytics distribution rows", err)
	}
	return out, nil
}

var durationBucketBounds = []struct {
	label string
	maxMS int64 // exclusive upper bound; 0 means unbounded
}{
	{"<5m", 5 * 60 * 1000},
	{"5-15m", 15 * 60 * 1000},
	{"15-30m", 30 * 60 * 1000},
	{"30-60m", 60 * 60 * 1000},
	{"60m+", 0},
}

func (s *Store) fillDurationBuckets(ctx context.Context, a *Analytics) error {
	rows, err := s.db.QueryContext(ctx, `SELECT duration_ms FROM videos`)
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "analytics durations", err)
	}
	defer rows.Close()

	counts := make([]int, len(durationBucketBounds))
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return apperr.Wrap(apperr.StoreError, "scan analytics durations", err)
		}
		counts[bucketIndex(ms)]++
	}
	if err := rows.Err(); err != nil {
		return apperr.Wrap(apperr.StoreError, "analytics durations rows", err)
	}

	a.DurationBuckets = make([]LabeledCount, len(durationBucketBounds))
	for i, b := range durationBucketBounds {
		a.DurationBuckets[i] = LabeledCount{Label: b.label, Count: counts[i]}
	}
	return nil
}

func bucketIndex(ms int64) int {
	for i, b := range durationBucketBounds {
		if b.maxMS == 0 || ms < b.maxMS {
			return i
		}
	}
	return len(durationBucketBounds) - 1
}

func (s *Store) fillEnhancementAggregates(ctx context.Context, a *Analytics) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id,
			(strftime('%s', updated_at) - strftime('%s', created_at)) * 1000
		FROM videos
		WHERE status IN ('done','error','failed')
	`)
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "analytics job timing", err)
	}
	for rows.Next() {
		var t VideoTiming
		if err := rows.Scan(&t.VideoID, &t.Ms); err != nil {
			rows.Close()
			return apperr.Wrap(apperr.StoreError, "scan analytics job timing", err)
		}
		a.JobWallClockMS = append(a.JobWallClockMS, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return apperr.Wrap(apperr.StoreError, "analytics job timing rows", err)
	}
	rows.Close()

	runRows, err := s.db.QueryContext(ctx, `SELECT video_id, analysis_ms, process_ms, snr_db FROM enhancement_runs ORDER BY id`)
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "analytics run timing", err)
	}
	defer runRows.Close()

	var totalSpeechRatio float64
	var speechCount int
	for runRows.Next() {
		var t RunTiming
		if err := runRows.Scan(&t.VideoID, &t.AnalysisMS, &t.ProcessMS, &t.SNRDb); err != nil {
			return apperr.Wrap(apperr.StoreError, "scan analytics run timing", err)
		}
		a.EnhancementTimingMS = append(a.EnhancementTimingMS, t)
	}
	if err := runRows.Err(); err != nil {
		return apperr.Wrap(apperr.StoreError, "analytics run timing rows", err)
	}

	segRows, err := s.db.QueryContext(ctx, `SELECT speech_ratio FROM enhancement_segments WHERE speech_ratio IS NOT NULL`)
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "analytics speech ratio", err)
	}
	defer segRows.Close()
	for segRows.Next() {
		var ratio float64
		if err := segRows.Scan(&ratio); err != nil {
			return apperr.Wrap(apperr.StoreError, "scan analytics speech ratio", err)
		}
		totalSpeechRatio += ratio
		speechCount++
	}

	avgSpeech := 0.0
	if speechCount > 0 {
		avgSpeech = totalSpeechRatio / float64(speechCount)
	}
	a.SignalNoisePie = []LabeledCount{
		{Label: "signal", Count: int(avgSpeech * 100)},
		{Label: "noise", Count: int((1 - avgSpeech) * 100)},
	}
	return nil
}
