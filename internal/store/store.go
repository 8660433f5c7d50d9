// Package store persists cleaned subtitle text in SQLite. Records are
// unique by video URL and by (series, playlist index); an upsert on
// either key replaces the prior row.
package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Record is one stored subtitle document.
type Record struct {
	SeriesTitle   string
	PlaylistIndex int
	VideoTitle    string
	VideoURL      string
	SubtitlesText string
	DownloadedAt  time.Time
}

// Store manages subtitle persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a subtitle store using the given database path.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// NewStoreWithDB creates a subtitle store using an existing database
// connection.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS subtitles (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			series_title   TEXT NOT NULL,
			playlist_idx   INTEGER NOT NULL,
			video_title    TEXT,
			video_url      TEXT UNIQUE NOT NULL,
			subtitles_text TEXT,
			downloaded_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(series_title, playlist_idx)
		)
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Exists reports whether a record for videoURL is stored.
func (s *Store) Exists(videoURL string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM subtitles WHERE video_url = ?`, videoURL).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check subtitle exists: %w", err)
	}
	return true, nil
}

// Text returns the stored subtitle text for videoURL. The second
// return value is false when no record exists.
func (s *Store) Text(videoURL string) (string, bool, error) {
	var text sql.NullString
	err := s.db.QueryRow(`SELECT subtitles_text FROM subtitles WHERE video_url = ?`, videoURL).Scan(&text)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get subtitle text: %w", err)
	}
	return text.String, true, nil
}

// Get returns the full record for videoURL. The second return value is
// false when no record exists.
func (s *Store) Get(videoURL string) (*Record, bool, error) {
	var rec Record
	var title, text sql.NullString
	var downloadedAt string

	err := s.db.QueryRow(`
		SELECT series_title, playlist_idx, video_title, video_url, subtitles_text, downloaded_at
		FROM subtitles WHERE video_url = ?
	`, videoURL).Scan(&rec.SeriesTitle, &rec.PlaylistIndex, &title, &rec.VideoURL, &text, &downloadedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get subtitle record: %w", err)
	}

	rec.VideoTitle = title.String
	rec.SubtitlesText = text.String
	rec.DownloadedAt = parseTimestamp(downloadedAt)

	return &rec, true, nil
}

// Upsert inserts rec, replacing any existing row that shares its video
// URL or its (series, index) pair. Text must already be normalized;
// the store writes what it is given.
func (s *Store) Upsert(rec *Record) error {
	if rec.DownloadedAt.IsZero() {
		rec.DownloadedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO subtitles (series_title, playlist_idx, video_title, video_url, subtitles_text, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.SeriesTitle, rec.PlaylistIndex, rec.VideoTitle, rec.VideoURL,
		rec.SubtitlesText, rec.DownloadedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert subtitle for %s: %w", rec.VideoURL, err)
	}
	return nil
}

// Count returns the number of stored subtitle records.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM subtitles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count subtitles: %w", err)
	}
	return n, nil
}

// parseTimestamp accepts both RFC3339 (our writes) and the SQLite
// CURRENT_TIMESTAMP format (rows created by the default clause).
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
