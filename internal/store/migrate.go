package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/xezpeleta/eitbren-mugak/internal/platform"
)

// migrate brings any database up to the current schema. Two legacy layouts
// exist in the wild: a content table with a scalar platform column, and an
// older one with no platform column at all (everything was primeran.eus
// back then). Both are rewritten into the join-table layout in a single
// transaction so a crash cannot leave a half-migrated file.
func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("store: user_version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin migrate: %w", err)
	}
	defer tx.Rollback()

	legacy, err := hasTable(tx, "content")
	if err != nil {
		return err
	}
	if legacy {
		if err := backfill(tx); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(schema); err != nil {
		return fmt.Errorf("store: schema: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("store: set user_version: %w", err)
	}
	return tx.Commit()
}

func hasTable(tx execer, name string) (bool, error) {
	var n int
	err := tx.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: sqlite_master: %w", err)
	}
	return n > 0, nil
}

// backfill rewrites a legacy content table into the current layout. All rows
// are preserved; the platform column (when present) becomes join-table rows,
// its absence maps every row to primeran.eus.
func backfill(tx *sql.Tx) error {
	cols, err := tableColumns(tx, "content")
	if err != nil {
		return err
	}
	joined, err := hasTable(tx, "content_platforms")
	if err != nil {
		return err
	}
	if joined && !cols["platform"] {
		// Already the current shape; only the user_version pragma is missing.
		return nil
	}

	if _, err := tx.Exec(`ALTER TABLE content RENAME TO content_legacy`); err != nil {
		return fmt.Errorf("store: rename legacy: %w", err)
	}
	if _, err := tx.Exec(schema); err != nil {
		return fmt.Errorf("store: schema during backfill: %w", err)
	}

	rows, err := tx.Query(`SELECT * FROM content_legacy`)
	if err != nil {
		return fmt.Errorf("store: read legacy: %w", err)
	}
	defer rows.Close()
	names, err := rows.Columns()
	if err != nil {
		return err
	}

	for rows.Next() {
		vals := make([]any, len(names))
		for i := range vals {
			vals[i] = new(sql.NullString)
		}
		if err := rows.Scan(vals...); err != nil {
			return fmt.Errorf("store: scan legacy: %w", err)
		}
		row := make(map[string]string, len(names))
		for i, name := range names {
			if ns := vals[i].(*sql.NullString); ns.Valid {
				row[name] = ns.String
			}
		}
		if err := insertLegacyRow(tx, row); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: read legacy: %w", err)
	}

	if _, err := tx.Exec(`DROP TABLE content_legacy`); err != nil {
		return fmt.Errorf("store: drop legacy: %w", err)
	}
	return migrateLegacyHistory(tx)
}

func insertLegacyRow(tx *sql.Tx, row map[string]string) error {
	slug := row["slug"]
	if slug == "" {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	created := firstNonEmpty(row["created_at"], row["first_seen"], now)
	updated := firstNonEmpty(row["updated_at"], created)

	var geo any
	switch row["geo_restricted"] {
	case "1", "true":
		geo = true
	case "0", "false":
		geo = false
	}

	genres := row["genres"]
	if genres == "" {
		genres = "[]"
	}
	metadata := row["metadata"]
	if metadata == "" {
		metadata = "{}"
	}
	_, err := tx.Exec(`INSERT INTO content
		(slug, title, type, media_type, duration, year, genres,
		 series_slug, series_title, season_number, metadata,
		 geo_restricted, restriction_type, last_checked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		slug,
		row["title"],
		firstNonEmpty(row["type"], "unknown"),
		row["media_type"],
		intOrZero(row["duration"]),
		intOrZero(row["year"]),
		genres,
		row["series_slug"],
		row["series_title"],
		intOrZero(row["season_number"]),
		metadata,
		geo,
		row["restriction_type"],
		row["last_checked"],
		created,
		updated,
	)
	if err != nil {
		return fmt.Errorf("store: backfill %s: %w", slug, err)
	}
	_, err = tx.Exec(`INSERT OR IGNORE INTO content_platforms (slug, platform) VALUES (?, ?)`,
		slug, platform.Normalize(row["platform"]))
	if err != nil {
		return fmt.Errorf("store: backfill platform %s: %w", slug, err)
	}
	return nil
}

// migrateLegacyHistory adds the platform column old check_history tables
// lack. The rows themselves carry over untouched.
func migrateLegacyHistory(tx *sql.Tx) error {
	ok, err := hasTable(tx, "check_history")
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	cols, err := tableColumns(tx, "check_history")
	if err != nil {
		return err
	}
	if !cols["platform"] {
		if _, err := tx.Exec(`ALTER TABLE check_history ADD COLUMN platform TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("store: add history platform: %w", err)
		}
	}
	return nil
}

func tableColumns(tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.Query(fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return nil, fmt.Errorf("store: table_info %s: %w", table, err)
	}
	defer rows.Close()
	cols := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("store: table_info %s: %w", table, err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func intOrZero(s string) int {
	var n int
	fmt.Sscanf(s, "%d", &n)
	return n
}
