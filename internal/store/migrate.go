package store

import (
	"database/sql"
	"fmt"

	"github.com/ragaeeb/beltane-pipeline/internal/log"
)

// requiredVideoColumns lists every column ensureVideoColumns must add if
// missing, keyed by SQL column definition. This covers the v0→v1 and
// v2→v3 migration steps, which are identical in effect and idempotent.
var requiredVideoColumns = []struct {
	name string
	ddl  string
}{
	{"source_kind", "TEXT NOT NULL DEFAULT ''"},
	{"source_uri", "TEXT NOT NULL DEFAULT ''"},
	{"title", "TEXT NOT NULL DEFAULT ''"},
	{"description", "TEXT NOT NULL DEFAULT ''"},
	{"uploader_id", "TEXT NOT NULL DEFAULT ''"},
	{"channel_id", "TEXT NOT NULL DEFAULT ''"},
	{"duration_ms", "INTEGER NOT NULL DEFAULT 0"},
	{"uploaded_at", "TEXT"},
	{"raw_metadata", "TEXT NOT NULL DEFAULT ''"},
	{"local_path", "TEXT NOT NULL DEFAULT ''"},
	{"language", "TEXT NOT NULL DEFAULT ''"},
	{"engine", "TEXT NOT NULL DEFAULT ''"},
	{"engine_version", "TEXT NOT NULL DEFAULT ''"},
	{"model_path", "TEXT NOT NULL DEFAULT ''"},
	{"output_formats", "TEXT NOT NULL DEFAULT '[]'"},
	{"enhancement_cfg", "TEXT NOT NULL DEFAULT '{}'"},
	{"status", "TEXT NOT NULL DEFAULT 'new'"},
	{"error", "TEXT NOT NULL DEFAULT ''"},
}

// migrate runs forward migrations gated by PRAGMA user_version. Every
// step is idempotent; after running, user_version is set to
// currentSchemaVersion regardless of its prior value.
func migrate(db *sql.DB) error {
	logger := log.WithComponent("store")

	if _, err := db.Exec(createTablesSQL); err != nil {
		return fmt.Errorf("create base tables: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	logger.Info().Int("from_version", version).Msg("running migrations")

	// v0 -> v1: ensure all required videos columns exist.
	if err := ensureVideoColumns(db); err != nil {
		return fmt.Errorf("migrate v0->v1: %w", err)
	}

	// v1 -> v2: rebuild the FTS shadow index.
	if err := rebuildFTS(db); err != nil {
		return fmt.Errorf("migrate v1->v2: %w", err)
	}

	// v2 -> v3: re-ensure videos columns (covers databases that gained
	// new columns after the v1 rollout).
	if err := ensureVideoColumns(db); err != nil {
		return fmt.Errorf("migrate v2->v3: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}

	logger.Info().Int("to_version", currentSchemaVersion).Msg("migrations complete")
	return nil
}

func ensureVideoColumns(db *sql.DB) error {
	existing, err := tableColumns(db, "videos")
	if err != nil {
		return err
	}
	for _, col := range requiredVideoColumns {
		if existing[col.name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE videos ADD COLUMN %s %s", col.name, col.ddl)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
		existing[col.name] = true
	}
	return nil
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func rebuildFTS(db *sql.DB) error {
	if _, err := db.Exec("DROP TRIGGER IF EXISTS segments_ai"); err != nil {
		return err
	}
	if _, err := db.Exec("DROP TRIGGER IF EXISTS segments_ad"); err != nil {
		return err
	}
	if _, err := db.Exec("DROP TRIGGER IF EXISTS segments_au"); err != nil {
		return err
	}
	if _, err := db.Exec("DROP TABLE IF EXISTS segments_fts"); err != nil {
		return err
	}
	if _, err := db.Exec(ftsSQL); err != nil {
		return err
	}
	_, err := db.Exec("INSERT INTO segments_fts(rowid, text) SELECT rowid, text FROM segments")
	return err
}
