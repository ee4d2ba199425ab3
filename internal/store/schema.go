package store

// currentSchemaVersion is the schema version this binary expects.
// Migrations below bring any existing database forward to it.
const currentSchemaVersion = 3

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS videos (
	id              TEXT PRIMARY KEY,
	source_kind     TEXT NOT NULL,
	source_uri      TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	uploader_id     TEXT NOT NULL DEFAULT '',
	channel_id      TEXT NOT NULL DEFAULT '',
	duration_ms     INTEGER NOT NULL DEFAULT 0,
	uploaded_at     TEXT,
	raw_metadata    TEXT NOT NULL DEFAULT '',
	local_path      TEXT NOT NULL DEFAULT '',
	language        TEXT NOT NULL DEFAULT '',
	engine          TEXT NOT NULL DEFAULT '',
	engine_version  TEXT NOT NULL DEFAULT '',
	model_path      TEXT NOT NULL DEFAULT '',
	output_formats  TEXT NOT NULL DEFAULT '[]',
	enhancement_cfg TEXT NOT NULL DEFAULT '{}',
	status          TEXT NOT NULL DEFAULT 'new',
	error           TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transcripts (
	video_id     TEXT PRIMARY KEY REFERENCES videos(id),
	model        TEXT NOT NULL DEFAULT '',
	language     TEXT NOT NULL DEFAULT '',
	text         TEXT NOT NULL DEFAULT '',
	compact_json TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS segments (
	rowid          INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id       TEXT NOT NULL REFERENCES videos(id),
	start_ms       INTEGER NOT NULL,
	end_ms         INTEGER NOT NULL,
	text           TEXT NOT NULL,
	avg_logprob    REAL,
	no_speech_prob REAL
);
CREATE INDEX IF NOT EXISTS idx_segments_video ON segments(video_id, start_ms);

CREATE TABLE IF NOT EXISTS chapters (
	video_id TEXT NOT NULL REFERENCES videos(id),
	start_ms INTEGER NOT NULL,
	end_ms   INTEGER,
	title    TEXT NOT NULL DEFAULT 'Chapter'
);
CREATE INDEX IF NOT EXISTS idx_chapters_video ON chapters(video_id);

CREATE TABLE IF NOT EXISTS artifacts (
	video_id   TEXT NOT NULL REFERENCES videos(id),
	kind       TEXT NOT NULL,
	uri        TEXT NOT NULL,
	size_bytes INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_video ON artifacts(video_id, kind, created_at);

CREATE TABLE IF NOT EXISTS enhancement_runs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id      TEXT NOT NULL REFERENCES videos(id),
	status        TEXT NOT NULL,
	applied       INTEGER NOT NULL DEFAULT 0,
	mode          TEXT NOT NULL DEFAULT '',
	source_class  TEXT NOT NULL DEFAULT '',
	snr_db        REAL,
	regime_count  INTEGER NOT NULL DEFAULT 0,
	analysis_ms   INTEGER NOT NULL DEFAULT 0,
	process_ms    INTEGER NOT NULL DEFAULT 0,
	metrics_json  TEXT NOT NULL DEFAULT '',
	versions_json TEXT NOT NULL DEFAULT '',
	config_json   TEXT NOT NULL DEFAULT '',
	started_at    TEXT NOT NULL,
	finished_at   TEXT NOT NULL,
	skip_reason   TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_enhancement_runs_video ON enhancement_runs(video_id);

CREATE TABLE IF NOT EXISTS enhancement_segments (
	run_id               INTEGER NOT NULL REFERENCES enhancement_runs(id),
	idx                  INTEGER NOT NULL,
	start_ms             INTEGER NOT NULL,
	end_ms               INTEGER NOT NULL,
	noise_rms_db         REAL,
	spectral_centroid_hz REAL,
	speech_ratio         REAL,
	dereverb_applied     INTEGER NOT NULL DEFAULT 0,
	denoise_applied      INTEGER NOT NULL DEFAULT 0,
	atten_lim_db         REAL NOT NULL DEFAULT 0,
	processing_ms        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_enhancement_segments_run ON enhancement_segments(run_id);
`

// ftsSQL creates the FTS5 shadow table over segment text, its
// diacritic-stripping Unicode tokenizer, and the triggers that keep
// the shadow in sync with the segments table.
const ftsSQL = `
CREATE VIRTUAL TABLE IF NOT EXISTS segments_fts USING fts5(
	text,
	content='segments',
	content_rowid='rowid',
	tokenize='unicode61 remove_diacritics 2'
);

CREATE TRIGGER IF NOT EXISTS segments_ai AFTER INSERT ON segments BEGIN
	INSERT INTO segments_fts(rowid, text) VALUES (new.rowid, new.text);
END;

CREATE TRIGGER IF NOT EXISTS segments_ad AFTER DELETE ON segments BEGIN
	INSERT INTO segments_fts(segments_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
END;

CREATE TRIGGER IF NOT EXISTS segments_au AFTER UPDATE ON segments BEGIN
	INSERT INTO segments_fts(segments_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
	INSERT INTO segments_fts(rowid, text) VALUES (new.rowid, new.text);
END;
`
