package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
	"github.com/ragaeeb/beltane-pipeline/internal/model"
)

// PipelineResult bundles everything one completed (or enhancement-errored)
// pipeline run writes for a single video.
type PipelineResult struct {
	Transcript          model.Transcript
	Segments            []model.Segment
	Chapters            []model.Chapter
	Artifacts           []model.Artifact
	EnhancementRun      *model.EnhancementRun
	EnhancementSegments []model.EnhancementSegment
	VideoID             string
	FinalStatus         model.VideoStatus
}

// PersistPipelineResult writes a transcript, its segments/chapters/artifacts,
// an optional enhancement run (+ its per-regime segments), and the video's
// terminal status in a single transaction: the status update commits
// together with every row insert it depends on, so a crash mid-write
// never leaves status="processing" beside a partially written
// transcript.
func (s *Store) PersistPipelineResult(ctx context.Context, r PipelineResult) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertTranscriptTx(ctx, tx, r.Transcript); err != nil {
			return err
		}
		if err := insertSegmentsTx(ctx, tx, r.Segments); err != nil {
			return err
		}
		if err := insertChaptersTx(ctx, tx, r.Chapters); err != nil {
			return err
		}
		if err := insertArtifactsTx(ctx, tx, r.Artifacts); err != nil {
			return err
		}
		if r.EnhancementRun != nil {
			runID, err := insertEnhancementRunTx(ctx, tx, *r.EnhancementRun)
			if err != nil {
				return err
			}
			for i := range r.EnhancementSegments {
				r.EnhancementSegments[i].RunID = runID
			}
			if err := insertEnhancementSegmentsTx(ctx, tx, r.EnhancementSegments); err != nil {
				return err
			}
		}
		return updateVideoStatusTx(ctx, tx, r.VideoID, r.FinalStatus, "")
	})
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "persist pipeline result", err)
	}
	return nil
}

// InsertTranscript upserts the single Transcript row for a video.
func (s *Store) InsertTranscript(ctx context.Context, t model.Transcript) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return insertTranscriptTx(ctx, tx, t)
	})
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "insert transcript", err)
	}
	return nil
}

func insertTranscriptTx(ctx context.Context, tx *sql.Tx, t model.Transcript) error {
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transcripts (video_id, model, language, text, compact_json, created_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(video_id) DO UPDATE SET
			model=excluded.model, language=excluded.language, text=excluded.text,
			compact_json=excluded.compact_json, created_at=excluded.created_at
	`, t.VideoID, t.Model, t.Language, t.Text, t.CompactJSON, createdAt.UTC().Format(time.RFC3339))
	return err
}

// InsertSegments bulk-inserts segments for one video in a single
// transaction.
func (s *Store) InsertSegments(ctx context.Context, segs []model.Segment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertSegmentsTx(ctx, tx, segs)
	})
}

func insertSegmentsTx(ctx context.Context, tx *sql.Tx, segs []model.Segment) error {
	if len(segs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segments (video_id, start_ms, end_ms, text, avg_logprob, no_speech_prob)
		VALUES (?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, seg := range segs {
		if _, err := stmt.ExecContext(ctx, seg.VideoID, seg.StartMS, seg.EndMS, seg.Text, seg.AvgLogProb, seg.NoSpeechProb); err != nil {
			return err
		}
	}
	return nil
}

// InsertChapters bulk-inserts chapters for one video.
func (s *Store) InsertChapters(ctx context.Context, chapters []model.Chapter) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertChaptersTx(ctx, tx, chapters)
	})
}

func insertChaptersTx(ctx context.Context, tx *sql.Tx, chapters []model.Chapter) error {
	if len(chapters) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chapters (video_id, start_ms, end_ms, title) VALUES (?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range chapters {
		title := c.Title
		if title == "" {
			title = "Chapter"
		}
		if _, err := stmt.ExecContext(ctx, c.VideoID, c.StartMS, c.EndMS, title); err != nil {
			return err
		}
	}
	return nil
}

// InsertArtifacts bulk-inserts artifact records for one video.
func (s *Store) InsertArtifacts(ctx context.Context, artifacts []model.Artifact) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertArtifactsTx(ctx, tx, artifacts)
	})
}

func insertArtifactsTx(ctx context.Context, tx *sql.Tx, artifacts []model.Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO artifacts (video_id, kind, uri, size_bytes, created_at) VALUES (?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, a := range artifacts {
		createdAt := a.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, a.VideoID, string(a.Kind), a.URI, a.SizeBytes, createdAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return nil
}

// InsertEnhancementRun inserts one EnhancementRun and returns its new id.
func (s *Store) InsertEnhancementRun(ctx context.Context, r model.EnhancementRun) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = insertEnhancementRunTx(ctx, tx, r)
		return err
	})
	if err != nil {
		return 0, apperr.Wrap(apperr.StoreError, "insert enhancement run", err)
	}
	return id, nil
}

func insertEnhancementRunTx(ctx context.Context, tx *sql.Tx, r model.EnhancementRun) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO enhancement_runs (
			video_id, status, applied, mode, source_class, snr_db, regime_count,
			analysis_ms, process_ms, metrics_json, versions_json, config_json,
			started_at, finished_at, skip_reason, error
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.VideoID, string(r.Status), boolToInt(r.Applied), string(r.Mode), string(r.SourceClass), r.SNRDb, r.RegimeCount,
		r.AnalysisMS, r.ProcessMS, r.MetricsJSON, r.VersionsJSON, r.ConfigJSON,
		r.StartedAt.UTC().Format(time.RFC3339), r.FinishedAt.UTC().Format(time.RFC3339), r.SkipReason, r.Error,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertEnhancementSegments bulk-inserts per-regime telemetry for a run.
func (s *Store) InsertEnhancementSegments(ctx context.Context, segs []model.EnhancementSegment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertEnhancementSegmentsTx(ctx, tx, segs)
	})
}

func insertEnhancementSegmentsTx(ctx context.Context, tx *sql.Tx, segs []model.EnhancementSegment) error {
	if len(segs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO enhancement_segments (
			run_id, idx, start_ms, end_ms, noise_rms_db, spectral_centroid_hz,
			speech_ratio, dereverb_applied, denoise_applied, atten_lim_db, processing_ms
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, seg := range segs {
		if _, err := stmt.ExecContext(ctx, seg.RunID, seg.Index, seg.StartMS, seg.EndMS,
			seg.NoiseRMSDb, seg.SpectralCentroidHz, seg.SpeechRatio,
			boolToInt(seg.DereverbApplied), boolToInt(seg.DenoiseApplied), seg.AttenLimDb, seg.ProcessingMS); err != nil {
			return err
		}
	}
	return nil
}

// updateVideoStatusTx updates status, error, and updated_at within an
// existing transaction.
func updateVideoStatusTx(ctx context.Context, tx *sql.Tx, videoID string, status model.VideoStatus, errMsg string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE videos SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC().Format(time.RFC3339), videoID,
	)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
