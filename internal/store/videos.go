package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
	"github.com/ragaeeb/beltane-pipeline/internal/model"
)

// HasTranscript reports whether a Transcript row exists for video_id.
func (s *Store) HasTranscript(ctx context.Context, videoID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM transcripts WHERE video_id = ?`, videoID).Scan(&n)
	if err != nil {
		return false, apperr.Wrap(apperr.StoreError, "check transcript existence", err)
	}
	return n > 0, nil
}

// UpsertVideo inserts or updates a Video row by primary key.
// created_at is taken from v.CreatedAt as supplied by the caller;
// updates never rewrite it.
func (s *Store) UpsertVideo(ctx context.Context, v model.Video) error {
	formats, err := json.Marshal(v.OutputFormats)
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "marshal output formats", err)
	}

	createdAt := v.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := v.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	var uploadedAt any
	if v.UploadedAt != nil {
		uploadedAt = v.UploadedAt.UTC().Format(time.RFC3339)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO videos (
			id, source_kind, source_uri, title, description, uploader_id, channel_id,
			duration_ms, uploaded_at, raw_metadata, local_path, language, engine,
			engine_version, model_path, output_formats, enhancement_cfg, status, error,
			created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			source_kind=excluded.source_kind,
			source_uri=excluded.source_uri,
			title=excluded.title,
			description=excluded.description,
			uploader_id=excluded.uploader_id,
			channel_id=excluded.channel_id,
			duration_ms=excluded.duration_ms,
			uploaded_at=excluded.uploaded_at,
			raw_metadata=excluded.raw_metadata,
			local_path=excluded.local_path,
			language=excluded.language,
			engine=excluded.engine,
			engine_version=excluded.engine_version,
			model_path=excluded.model_path,
			output_formats=excluded.output_formats,
			enhancement_cfg=excluded.enhancement_cfg,
			status=excluded.status,
			error=excluded.error,
			updated_at=excluded.updated_at
	`,
		v.ID, string(v.SourceKind), v.SourceURI, v.Title, v.Description, v.UploaderID, v.ChannelID,
		v.DurationMS, uploadedAt, v.RawMetadata, v.LocalPath, v.Language, string(v.Engine),
		v.EngineVersion, v.ModelPath, string(formats), v.EnhancementCfg, string(v.Status), v.Error,
		createdAt.UTC().Format(time.RFC3339), updatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "upsert video", err)
	}
	return nil
}

// UpdateVideoStatus updates only status, error, and updated_at.
func (s *Store) UpdateVideoStatus(ctx context.Context, videoID string, status model.VideoStatus, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE videos SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC().Format(time.RFC3339), videoID,
	)
	if err != nil {
		return apperr.Wrap(apperr.StoreError, "update video status", err)
	}
	return nil
}

// GetVideo returns the Video row for id, or a NotFound error.
func (s *Store) GetVideo(ctx context.Context, id string) (model.Video, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_kind, source_uri, title, description, uploader_id, channel_id,
			duration_ms, uploaded_at, raw_metadata, local_path, language, engine,
			engine_version, model_path, output_formats, enhancement_cfg, status, error,
			created_at, updated_at
		FROM videos WHERE id = ?`, id)
	v, err := scanVideo(row)
	if err == sql.ErrNoRows {
		return model.Video{}, apperr.New(apperr.NotFound, "video not found")
	}
	if err != nil {
		return model.Video{}, apperr.Wrap(apperr.StoreError, "get video", err)
	}
	return v, nil
}

// ListVideos returns up to limit videos, newest first.
func (s *Store) ListVideos(ctx context.Context, limit int) ([]model.Video, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_kind, source_uri, title, description, uploader_id, channel_id,
			duration_ms, uploaded_at, raw_metadata, local_path, language, engine,
			engine_version, model_path, output_formats, enhancement_cfg, status, error,
			created_at, updated_at
		FROM videos ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "list videos", err)
	}
	defer rows.Close()

	var out []model.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.StoreError, "scan video row", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (model.Video, error) {
	var v model.Video
	var sourceKind, engine, status, formats string
	var uploadedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&v.ID, &sourceKind, &v.SourceURI, &v.Title, &v.Description, &v.UploaderID, &v.ChannelID,
		&v.DurationMS, &uploadedAt, &v.RawMetadata, &v.LocalPath, &v.Language, &engine,
		&v.EngineVersion, &v.ModelPath, &formats, &v.EnhancementCfg, &status, &v.Error,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return v, err
	}

	v.SourceKind = model.SourceKind(sourceKind)
	v.Engine = model.Engine(engine)
	v.Status = model.VideoStatus(status)
	_ = json.Unmarshal([]byte(formats), &v.OutputFormats)

	if uploadedAt.Valid && uploadedAt.String != "" {
		if t, err := time.Parse(time.RFC3339, uploadedAt.String); err == nil {
			v.UploadedAt = &t
		}
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		v.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		v.UpdatedAt = t
	}
	return v, nil
}
