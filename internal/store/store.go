// Package store persists the content catalog and check history in SQLite.
// One database file per platform crawl by convention, but nothing in the
// schema assumes it: content rows carry their platform memberships in a join
// table, so a merged database works the same way.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/xezpeleta/eitbren-mugak/internal/platform"
)

// ErrNotFound is returned when a slug has no content row.
var ErrNotFound = errors.New("store: not found")

const schemaVersion = 2

const schema = `
CREATE TABLE IF NOT EXISTS content (
	slug             TEXT PRIMARY KEY,
	title            TEXT NOT NULL DEFAULT '',
	type             TEXT NOT NULL DEFAULT 'unknown',
	media_type       TEXT NOT NULL DEFAULT '',
	duration         INTEGER NOT NULL DEFAULT 0,
	year             INTEGER NOT NULL DEFAULT 0,
	genres           TEXT NOT NULL DEFAULT '[]',
	series_slug      TEXT NOT NULL DEFAULT '',
	series_title     TEXT NOT NULL DEFAULT '',
	season_number    INTEGER NOT NULL DEFAULT 0,
	metadata         TEXT NOT NULL DEFAULT '{}',
	geo_restricted   INTEGER,
	restriction_type TEXT NOT NULL DEFAULT '',
	last_checked     TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS content_platforms (
	slug     TEXT NOT NULL,
	platform TEXT NOT NULL,
	PRIMARY KEY (slug, platform)
);
CREATE INDEX IF NOT EXISTS idx_content_platforms_platform ON content_platforms(platform);
CREATE TABLE IF NOT EXISTS check_history (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	slug             TEXT NOT NULL,
	platform         TEXT NOT NULL DEFAULT '',
	checked_at       TEXT NOT NULL,
	geo_restricted   INTEGER,
	restriction_type TEXT NOT NULL DEFAULT '',
	status_code      INTEGER NOT NULL DEFAULT 0,
	method_used      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_check_history_slug ON check_history(slug);
`

// Record is one catalog entry. GeoRestricted is a tri-state: nil means the
// content was never successfully checked. A non-zero LastChecked marks the
// record as carrying fresh check results; Upsert only overwrites the stored
// verdict for such records.
type Record struct {
	Slug            string
	Title           string
	Type            string
	MediaType       string
	Duration        int
	Year            int
	Genres          []string
	SeriesSlug      string
	SeriesTitle     string
	SeasonNumber    int
	Platforms       []string
	Metadata        map[string]any
	GeoRestricted   *bool
	RestrictionType string
	LastChecked     time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Check is one append-only check_history row.
type Check struct {
	Slug            string
	Platform        string
	CheckedAt       time.Time
	GeoRestricted   *bool
	RestrictionType string
	StatusCode      int
	Method          string
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Type              string
	Platform          string
	GeoRestrictedOnly bool
	MissingMetadata   bool
	Limit             int
}

// Stats is the aggregate view used by the statistics export and the stats
// subcommand.
type Stats struct {
	Total                int
	ByType               map[string]int
	ByPlatform           map[string]int
	Restricted           int
	Accessible           int
	Unknown              int
	RestrictedPercentage float64
	LastCheck            time.Time
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path, applies the
// schema, and migrates legacy layouts in place.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// modernc's driver is not safe for concurrent writers on one connection
	// pool against the same file without WAL.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts or merges a record. Merge rules for existing rows:
// scalar fields update only when the incoming value is non-zero, the
// platform set grows by union, metadata keys overwrite except platform_urls
// which merges per platform, and the stored verdict changes only when the
// incoming record carries one (LastChecked set).
func (s *Store) Upsert(rec Record) error {
	if rec.Slug == "" {
		return errors.New("store: upsert with empty slug")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	existing, err := getRecord(tx, rec.Slug)
	switch {
	case errors.Is(err, ErrNotFound):
		merged := rec
		if merged.Type == "" {
			merged.Type = "unknown"
		}
		merged.CreatedAt, merged.UpdatedAt = now, now
		if err := insertRecord(tx, merged); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		merged := merge(*existing, rec)
		merged.UpdatedAt = now
		if err := updateRecord(tx, merged); err != nil {
			return err
		}
	}
	for _, p := range rec.Platforms {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO content_platforms (slug, platform) VALUES (?, ?)`,
			rec.Slug, platform.Normalize(p)); err != nil {
			return fmt.Errorf("store: platform link %s: %w", rec.Slug, err)
		}
	}
	return tx.Commit()
}

// merge applies the incoming record on top of the stored one.
func merge(old, in Record) Record {
	out := old
	if in.Title != "" {
		out.Title = in.Title
	}
	if in.Type != "" && in.Type != "unknown" {
		out.Type = in.Type
	}
	if in.MediaType != "" {
		out.MediaType = in.MediaType
	}
	if in.Duration != 0 {
		out.Duration = in.Duration
	}
	if in.Year != 0 {
		out.Year = in.Year
	}
	if len(in.Genres) > 0 {
		out.Genres = in.Genres
	}
	if in.SeriesSlug != "" {
		out.SeriesSlug = in.SeriesSlug
	}
	if in.SeriesTitle != "" {
		out.SeriesTitle = in.SeriesTitle
	}
	if in.SeasonNumber != 0 {
		out.SeasonNumber = in.SeasonNumber
	}
	out.Metadata = mergeMetadata(old.Metadata, in.Metadata)
	if !in.LastChecked.IsZero() {
		out.GeoRestricted = in.GeoRestricted
		out.RestrictionType = in.RestrictionType
		out.LastChecked = in.LastChecked
	}
	return out
}

// mergeMetadata overlays in on old. platform_urls is special-cased so each
// platform's public URL survives crawls of the other platforms.
func mergeMetadata(old, in map[string]any) map[string]any {
	if len(in) == 0 {
		return old
	}
	out := make(map[string]any, len(old)+len(in))
	for k, v := range old {
		out[k] = v
	}
	for k, v := range in {
		if k != "platform_urls" {
			out[k] = v
			continue
		}
		urls, _ := out["platform_urls"].(map[string]any)
		if urls == nil {
			urls = make(map[string]any)
		}
		if inURLs, ok := v.(map[string]any); ok {
			for name, u := range inURLs {
				urls[name] = u
			}
		}
		out["platform_urls"] = urls
	}
	return out
}

// Status returns the stored verdict for a slug without loading the whole
// record. found is false when the slug is unknown.
func (s *Store) Status(slug string) (geoRestricted *bool, restrictionType string, found bool, err error) {
	var geo sql.NullBool
	err = s.db.QueryRow(
		`SELECT geo_restricted, restriction_type FROM content WHERE slug = ?`, slug,
	).Scan(&geo, &restrictionType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, fmt.Errorf("store: status %s: %w", slug, err)
	}
	if geo.Valid {
		geoRestricted = &geo.Bool
	}
	return geoRestricted, restrictionType, true, nil
}

// BySlug loads one record, ErrNotFound when absent.
func (s *Store) BySlug(slug string) (*Record, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()
	return getRecord(tx, slug)
}

// List returns records matching the filter, ordered by title.
func (s *Store) List(f Filter) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM content c`
	var conds []string
	var args []any
	if f.Platform != "" {
		query += ` JOIN content_platforms cp ON cp.slug = c.slug`
		conds = append(conds, `cp.platform = ?`)
		args = append(args, platform.Normalize(f.Platform))
	}
	if f.Type != "" {
		conds = append(conds, `c.type = ?`)
		args = append(args, f.Type)
	}
	if f.GeoRestrictedOnly {
		conds = append(conds, `c.geo_restricted = 1`)
	}
	if f.MissingMetadata {
		conds = append(conds, `(c.title = '' OR c.metadata = '{}')`)
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY c.title, c.slug`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	for i := range out {
		if err := s.loadPlatforms(&out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RecordCheck appends one check_history row.
func (s *Store) RecordCheck(c Check) error {
	var geo any
	if c.GeoRestricted != nil {
		geo = *c.GeoRestricted
	}
	if c.CheckedAt.IsZero() {
		c.CheckedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO check_history (slug, platform, checked_at, geo_restricted, restriction_type, status_code, method_used)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Slug, platform.Normalize(c.Platform), c.CheckedAt.UTC().Format(time.RFC3339),
		geo, c.RestrictionType, c.StatusCode, c.Method)
	if err != nil {
		return fmt.Errorf("store: record check %s: %w", c.Slug, err)
	}
	return nil
}

// Statistics computes the aggregate counters over the whole catalog.
func (s *Store) Statistics() (Stats, error) {
	st := Stats{ByType: map[string]int{}, ByPlatform: map[string]int{}}

	var restricted, accessible, unknown sql.NullInt64
	var lastCheck sql.NullString
	err := s.db.QueryRow(`SELECT
		COUNT(*),
		SUM(CASE WHEN geo_restricted = 1 THEN 1 ELSE 0 END),
		SUM(CASE WHEN geo_restricted = 0 THEN 1 ELSE 0 END),
		SUM(CASE WHEN geo_restricted IS NULL THEN 1 ELSE 0 END),
		MAX(last_checked)
		FROM content`).Scan(&st.Total, &restricted, &accessible, &unknown, &lastCheck)
	if err != nil {
		return st, fmt.Errorf("store: statistics: %w", err)
	}
	st.Restricted = int(restricted.Int64)
	st.Accessible = int(accessible.Int64)
	st.Unknown = int(unknown.Int64)
	if st.Total > 0 {
		st.RestrictedPercentage = float64(st.Restricted) / float64(st.Total) * 100
	}
	if lastCheck.Valid && lastCheck.String != "" {
		if ts, err := time.Parse(time.RFC3339, lastCheck.String); err == nil {
			st.LastCheck = ts
		}
	}

	if err := countInto(s.db, `SELECT type, COUNT(*) FROM content GROUP BY type`, st.ByType); err != nil {
		return st, err
	}
	if err := countInto(s.db, `SELECT platform, COUNT(*) FROM content_platforms GROUP BY platform`, st.ByPlatform); err != nil {
		return st, err
	}
	return st, nil
}

func countInto(db *sql.DB, query string, dst map[string]int) error {
	rows, err := db.Query(query)
	if err != nil {
		return fmt.Errorf("store: statistics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("store: statistics: %w", err)
		}
		dst[key] = n
	}
	return rows.Err()
}

const recordColumns = `c.slug, c.title, c.type, c.media_type, c.duration, c.year, c.genres,
	c.series_slug, c.series_title, c.season_number, c.metadata,
	c.geo_restricted, c.restriction_type, c.last_checked, c.created_at, c.updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var genres, metadata string
	var geo sql.NullBool
	var lastChecked, createdAt, updatedAt string
	err := row.Scan(&rec.Slug, &rec.Title, &rec.Type, &rec.MediaType, &rec.Duration, &rec.Year,
		&genres, &rec.SeriesSlug, &rec.SeriesTitle, &rec.SeasonNumber, &metadata,
		&geo, &rec.RestrictionType, &lastChecked, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan: %w", err)
	}
	if geo.Valid {
		rec.GeoRestricted = &geo.Bool
	}
	if genres != "" && genres != "[]" {
		if err := json.Unmarshal([]byte(genres), &rec.Genres); err != nil {
			return nil, fmt.Errorf("store: genres for %s: %w", rec.Slug, err)
		}
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("store: metadata for %s: %w", rec.Slug, err)
		}
	}
	rec.LastChecked = parseTime(lastChecked)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
}

func getRecord(tx execer, slug string) (*Record, error) {
	rec, err := scanRecord(tx.QueryRow(
		`SELECT `+recordColumns+` FROM content c WHERE c.slug = ?`, slug))
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(`SELECT platform FROM content_platforms WHERE slug = ? ORDER BY platform`, slug)
	if err != nil {
		return nil, fmt.Errorf("store: platforms for %s: %w", slug, err)
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		rec.Platforms = append(rec.Platforms, p)
	}
	return rec, rows.Err()
}

func (s *Store) loadPlatforms(rec *Record) error {
	rows, err := s.db.Query(`SELECT platform FROM content_platforms WHERE slug = ? ORDER BY platform`, rec.Slug)
	if err != nil {
		return fmt.Errorf("store: platforms for %s: %w", rec.Slug, err)
	}
	defer rows.Close()
	rec.Platforms = rec.Platforms[:0]
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return err
		}
		rec.Platforms = append(rec.Platforms, p)
	}
	return rows.Err()
}

func recordArgs(rec Record) ([]any, error) {
	genres, err := json.Marshal(rec.Genres)
	if err != nil {
		return nil, fmt.Errorf("store: marshal genres: %w", err)
	}
	if rec.Genres == nil {
		genres = []byte("[]")
	}
	metadata := []byte("{}")
	if len(rec.Metadata) > 0 {
		metadata, err = json.Marshal(rec.Metadata)
		if err != nil {
			return nil, fmt.Errorf("store: marshal metadata: %w", err)
		}
	}
	var geo any
	if rec.GeoRestricted != nil {
		geo = *rec.GeoRestricted
	}
	return []any{
		rec.Title, rec.Type, rec.MediaType, rec.Duration, rec.Year, string(genres),
		rec.SeriesSlug, rec.SeriesTitle, rec.SeasonNumber, string(metadata),
		geo, rec.RestrictionType, formatTime(rec.LastChecked),
	}, nil
}

func insertRecord(tx execer, rec Record) error {
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	args = append([]any{rec.Slug}, args...)
	args = append(args, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	_, err = tx.Exec(`INSERT INTO content
		(slug, title, type, media_type, duration, year, genres,
		 series_slug, series_title, season_number, metadata,
		 geo_restricted, restriction_type, last_checked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("store: insert %s: %w", rec.Slug, err)
	}
	return nil
}

func updateRecord(tx execer, rec Record) error {
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	args = append(args, formatTime(rec.UpdatedAt), rec.Slug)
	_, err = tx.Exec(`UPDATE content SET
		title = ?, type = ?, media_type = ?, duration = ?, year = ?, genres = ?,
		series_slug = ?, series_title = ?, season_number = ?, metadata = ?,
		geo_restricted = ?, restriction_type = ?, last_checked = ?, updated_at = ?
		WHERE slug = ?`, args...)
	if err != nil {
		return fmt.Errorf("store: update %s: %w", rec.Slug, err)
	}
	return nil
}
