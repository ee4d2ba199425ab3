package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
	"github.com/ragaeeb/beltane-pipeline/internal/model"
)

// GetTranscript returns the single Transcript row for a video.
func (s *Store) GetTranscript(ctx context.Context, videoID string) (model.Transcript, error) {
	var t model.Transcript
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT video_id, model, language, text, compact_json, created_at
		FROM transcripts WHERE video_id = ?`, videoID,
	).Scan(&t.VideoID, &t.Model, &t.Language, &t.Text, &t.CompactJSON, &createdAt)
	if err == sql.ErrNoRows {
		return model.Transcript{}, apperr.New(apperr.NotFound, "transcript not found")
	}
	if err != nil {
		return model.Transcript{}, apperr.Wrap(apperr.StoreError, "get transcript", err)
	}
	if parsed, err := time.Parse(time.RFC3339, createdAt); err == nil {
		t.CreatedAt = parsed
	}
	return t, nil
}

// ListSegments returns every Segment for a video, ordered by start_ms.
func (s *Store) ListSegments(ctx context.Context, videoID string) ([]model.Segment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT video_id, start_ms, end_ms, text, avg_logprob, no_speech_prob
		FROM segments WHERE video_id = ? ORDER BY start_ms ASC`, videoID)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "list segments", err)
	}
	defer rows.Close()

	var out []model.Segment
	for rows.Next() {
		var seg model.Segment
		if err := rows.Scan(&seg.VideoID, &seg.StartMS, &seg.EndMS, &seg.Text, &seg.AvgLogProb, &seg.NoSpeechProb); err != nil {
			return nil, apperr.Wrap(apperr.StoreError, "scan segment row", err)
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

// ListChapters returns every Chapter for a video, ordered by start_ms.
func (s *Store) ListChapters(ctx context.Context, videoID string) ([]model.Chapter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT video_id, start_ms, end_ms, title
		FROM chapters WHERE video_id = ? ORDER BY start_ms ASC`, videoID)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "list chapters", err)
	}
	defer rows.Close()

	var out []model.Chapter
	for rows.Next() {
		var c model.Chapter
		if err := rows.Scan(&c.VideoID, &c.StartMS, &c.EndMS, &c.Title); err != nil {
			return nil, apperr.Wrap(apperr.StoreError, "scan chapter row", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListArtifacts returns every Artifact recorded for a video, newest
// first; kind narrows the results when non-empty.
func (s *Store) ListArtifacts(ctx context.Context, videoID string, kind model.ArtifactKind) ([]model.Artifact, error) {
	query := `SELECT video_id, kind, uri, size_bytes, created_at FROM artifacts WHERE video_id = ?`
	args := []any{videoID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "list artifacts", err)
	}
	defer rows.Close()

	var out []model.Artifact
	for rows.Next() {
		var a model.Artifact
		var kindStr, createdAt string
		if err := rows.Scan(&a.VideoID, &kindStr, &a.URI, &a.SizeBytes, &createdAt); err != nil {
			return nil, apperr.Wrap(apperr.StoreError, "scan artifact row", err)
		}
		a.Kind = model.ArtifactKind(kindStr)
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			a.CreatedAt = t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LatestEnhancementRun returns the most recent EnhancementRun for a
// video, or a NotFound error if none exists.
func (s *Store) LatestEnhancementRun(ctx context.Context, videoID string) (model.EnhancementRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, video_id, status, applied, mode, source_class, snr_db, regime_count,
			analysis_ms, process_ms, metrics_json, versions_json, config_json,
			started_at, finished_at, skip_reason, error
		FROM enhancement_runs WHERE video_id = ? ORDER BY id DESC LIMIT 1`, videoID)

	var r model.EnhancementRun
	var status, mode, sourceClass, startedAt, finishedAt string
	var applied int
	err := row.Scan(&r.ID, &r.VideoID, &status, &applied, &mode, &sourceClass, &r.SNRDb, &r.RegimeCount,
		&r.AnalysisMS, &r.ProcessMS, &r.MetricsJSON, &r.VersionsJSON, &r.ConfigJSON,
		&startedAt, &finishedAt, &r.SkipReason, &r.Error)
	if err == sql.ErrNoRows {
		return model.EnhancementRun{}, apperr.New(apperr.NotFound, "enhancement run not found")
	}
	if err != nil {
		return model.EnhancementRun{}, apperr.Wrap(apperr.StoreError, "get enhancement run", err)
	}

	r.Status = model.EnhancementRunStatus(status)
	r.Mode = model.EnhancementMode(mode)
	r.SourceClass = model.SourceClass(sourceClass)
	r.Applied = applied != 0
	if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
		r.StartedAt = t
	}
	if t, err := time.Parse(time.RFC3339, finishedAt); err == nil {
		r.FinishedAt = t
	}
	return r, nil
}

// ListEnhancementSegments returns every per-regime telemetry row for a
// run, ordered by idx.
func (s *Store) ListEnhancementSegments(ctx context.Context, runID int64) ([]model.EnhancementSegment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, idx, start_ms, end_ms, noise_rms_db, spectral_centroid_hz,
			speech_ratio, dereverb_applied, denoise_applied, atten_lim_db, processing_ms
		FROM enhancement_segments WHERE run_id = ? ORDER BY idx ASC`, runID)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "list enhancement segments", err)
	}
	defer rows.Close()

	var out []model.EnhancementSegment
	for rows.Next() {
		var seg model.EnhancementSegment
		var dereverb, denoise int
		if err := rows.Scan(&seg.RunID, &seg.Index, &seg.StartMS, &seg.EndMS, &seg.NoiseRMSDb,
			&seg.SpectralCentroidHz, &seg.SpeechRatio, &dereverb, &denoise, &seg.AttenLimDb, &seg.ProcessingMS); err != nil {
			return nil, apperr.Wrap(apperr.StoreError, "scan enhancement segment row", err)
		}
		seg.DereverbApplied = dereverb != 0
		seg.DenoiseApplied = denoise != 0
		out = append(out, seg)
	}
	return out, rows.Err()
}
