package store

import (
	"context"
	"database/sql"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
)

// DeleteVideoData removes all rows in Transcript, Segment, Chapter,
// Artifact, EnhancementRun (and cascaded EnhancementSegment) for
// video_id, leaving the Video row itself.
func (s *Store) DeleteVideoData(ctx context.Context, videoID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return deleteVideoDataTx(ctx, tx, videoID)
	})
}

func deleteVideoDataTx(ctx context.Context, tx *sql.Tx, videoID string) error {
	stmts := []string{
		`DELETE FROM enhancement_segments WHERE run_id IN (SELECT id FROM enhancement_runs WHERE video_id = ?)`,
		`DELETE FROM enhancement_runs WHERE video_id = ?`,
		`DELETE FROM artifacts WHERE video_id = ?`,
		`DELETE FROM chapters WHERE video_id = ?`,
		`DELETE FROM segments WHERE video_id = ?`,
		`DELETE FROM transcripts WHERE video_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, videoID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteVideoFully removes every row for video_id, including the
// Video row.
func (s *Store) DeleteVideoFully(ctx context.Context, videoID string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteVideoDataTx(ctx, tx, videoID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, videoID)
		return err
	})
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "delete video fully", err)
	}
	return nil
}
