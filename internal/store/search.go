package store

import (
	"context"
	"strings"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
)

// SegmentHit is one full-text match against segments_fts, joined back
// to its source segment via the shared rowid.
type SegmentHit struct {
	VideoID string
	StartMS int64
	EndMS   int64
	Text    string
	Score   float64
}

// SearchSegments runs an FTS5 MATCH query over transcript segments,
// ordered by bm25 score ascending (lower is a better match). A
// malformed MATCH expression is reported as InvalidQuery.
func (s *Store) SearchSegments(ctx context.Context, query string, limit int) ([]SegmentHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.New(apperr.InvalidQuery, "search query must not be empty")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT segments.video_id, segments.start_ms, segments.end_ms, segments.text,
			bm25(segments_fts) AS score
		FROM segments_fts
		JOIN segments ON segments.rowid = segments_fts.rowid
		WHERE segments_fts MATCH ?
		ORDER BY score ASC
		LIMIT ?
	`, query, limit)
	if err != nil {
		if isFTSSyntaxError(err) {
			return nil, apperr.Wrap(apperr.InvalidQuery, "malformed search query", err)
		}
		return nil, apperr.Wrap(apperr.StoreError, "search segments", err)
	}
	defer rows.Close()

	var hits []SegmentHit
	for rows.Next() {
		var h SegmentHit
		if err := rows.Scan(&h.VideoID, &h.StartMS, &h.EndMS, &h.Text, &h.Score); err != nil {
			return nil, apperr.Wrap(apperr.StoreError, "scan search hit", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		if isFTSSyntaxError(err) {
			return nil, apperr.Wrap(apperr.InvalidQuery, "malformed search query", err)
		}
		return nil, apperr.Wrap(apperr.StoreError, "search segments", err)
	}
	return hits, nil
}

// isFTSSyntaxError detects the driver error text SQLite's FTS5 module
// emits for an unparseable MATCH expression.
func isFTSSyntaxError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "fts5: syntax error") || strings.Contains(msg, "malformed match") ||
		strings.Contains(msg, "unterminated string")
}
