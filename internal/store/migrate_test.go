package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestMigrate_scalarPlatformColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec(`
		CREATE TABLE content (
			slug TEXT PRIMARY KEY,
			title TEXT,
			type TEXT,
			platform TEXT,
			genres TEXT,
			metadata TEXT,
			geo_restricted INTEGER,
			restriction_type TEXT,
			last_checked TEXT,
			first_seen TEXT,
			updated_at TEXT
		);
		CREATE TABLE check_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			slug TEXT,
			checked_at TEXT,
			geo_restricted INTEGER,
			restriction_type TEXT,
			status_code INTEGER,
			method_used TEXT
		);
		INSERT INTO content VALUES
			('zaharra', 'Zaharra', 'movie', 'makusi', '["Drama"]', '{"description":"d"}', 1, 'manifest_403', '2024-05-01T10:00:00Z', '2024-01-01T00:00:00Z', '2024-05-01T10:00:00Z'),
			('berria', 'Berria', 'series', 'primeran.eus', NULL, NULL, NULL, NULL, NULL, '2024-02-01T00:00:00Z', NULL);
		INSERT INTO check_history (slug, checked_at, geo_restricted, status_code, method_used)
			VALUES ('zaharra', '2024-05-01T10:00:00Z', 1, 403, 'manifest_check');
	`)
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got, err := s.BySlug("zaharra")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Zaharra" || got.RestrictionType != "manifest_403" {
		t.Errorf("record = %+v", got)
	}
	if got.GeoRestricted == nil || !*got.GeoRestricted {
		t.Error("verdict lost in migration")
	}
	if len(got.Platforms) != 1 || got.Platforms[0] != "makusi.eus" {
		t.Errorf("platforms = %v (scalar column should normalize into join table)", got.Platforms)
	}
	if len(got.Genres) != 1 || got.Genres[0] != "Drama" {
		t.Errorf("genres = %v", got.Genres)
	}
	if got.CreatedAt.IsZero() {
		t.Error("first_seen should map to created_at")
	}

	all, err := s.List(Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("row count changed: %d", len(all))
	}

	// History rows carry over and the table gains the platform column.
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM check_history`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("history rows = %d", n)
	}
	if err := s.RecordCheck(Check{Slug: "zaharra", Platform: "makusi.eus"}); err != nil {
		t.Errorf("insert into migrated history: %v", err)
	}
}

func TestMigrate_noPlatformColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oldest.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec(`
		CREATE TABLE content (slug TEXT PRIMARY KEY, title TEXT, type TEXT);
		INSERT INTO content VALUES ('aitzindaria', 'Aitzindaria', 'movie');
	`)
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got, err := s.BySlug("aitzindaria")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Platforms) != 1 || got.Platforms[0] != "primeran.eus" {
		t.Errorf("platforms = %v (pre-platform rows default to primeran.eus)", got.Platforms)
	}
}

func TestMigrate_reopenIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(Record{Slug: "x", Title: "X", Platforms: []string{"primeran.eus"}}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	got, err := s2.BySlug("x")
	if err != nil || got.Title != "X" {
		t.Fatalf("got %+v, err %v", got, err)
	}
}
