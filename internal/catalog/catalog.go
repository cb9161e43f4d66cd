// Package catalog keeps a small sqlite index of capture sessions so past
// runs can be listed and their artifacts located without scanning directories.
package catalog

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // CGO-free SQLite
	"tracecap/pkg/models"
)

type Catalog struct {
	db *sql.DB
}

// Open opens (creating if needed) the catalog database.
func Open(path string) (*Catalog, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Catalog{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS sessions(
	  stem        TEXT PRIMARY KEY,
	  basename    TEXT    NOT NULL,
	  created_at  INTEGER NOT NULL,
	  video_path  TEXT    NOT NULL,
	  log_path    TEXT    NOT NULL,
	  events_path TEXT    NOT NULL,
	  status      TEXT    NOT NULL CHECK (status IN ('recording','complete','incomplete')),
	  video_bytes INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
	`)
	if err != nil {
		return fmt.Errorf("create catalog tables: %w", err)
	}
	return nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Register records a session at capture start, status "recording".
func (c *Catalog) Register(s models.SessionInfo) error {
	_, err := c.db.Exec(`INSERT INTO sessions(stem, basename, created_at, video_path, log_path, events_path, status, video_bytes)
		VALUES(?,?,?,?,?,?,?,?)`,
		s.Stem, s.Basename, s.CreatedAt, s.VideoPath, s.LogPath, s.EventsPath, models.SessionRecording, 0)
	if err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	return nil
}

// Finish updates a session's terminal status and artifact size at shutdown.
func (c *Catalog) Finish(stem, status string, videoBytes int64) error {
	res, err := c.db.Exec(`UPDATE sessions SET status = ?, video_bytes = ? WHERE stem = ?`,
		status, videoBytes, stem)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish session: unknown stem %s", stem)
	}
	return nil
}

// List returns all sessions, newest first.
func (c *Catalog) List() ([]models.SessionInfo, error) {
	rows, err := c.db.Query(`SELECT stem, basename, created_at, video_path, log_path, events_path, status, video_bytes
		FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.SessionInfo
	for rows.Next() {
		var s models.SessionInfo
		if err := rows.Scan(&s.Stem, &s.Basename, &s.CreatedAt, &s.VideoPath,
			&s.LogPath, &s.EventsPath, &s.Status, &s.VideoBytes); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Get looks up one session by stem.
func (c *Catalog) Get(stem string) (models.SessionInfo, error) {
	var s models.SessionInfo
	err := c.db.QueryRow(`SELECT stem, basename, created_at, video_path, log_path, events_path, status, video_bytes
		FROM sessions WHERE stem = ?`, stem).
		Scan(&s.Stem, &s.Basename, &s.CreatedAt, &s.VideoPath,
			&s.LogPath, &s.EventsPath, &s.Status, &s.VideoBytes)
	if err != nil {
		return models.SessionInfo{}, fmt.Errorf("get session %s: %w", stem, err)
	}
	return s, nil
}
