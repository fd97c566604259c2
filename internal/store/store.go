package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"spriteloop-go/internal/types"
)

// Store keeps a history of received assets and completed exports backed by
// SQLite, so the status endpoint and the share flow can list past work.
type Store struct {
	db   *sql.DB
	path string
}

// AssetRecord is one row of asset history; image bytes are not retained.
type AssetRecord struct {
	ID              string
	MimeType        string
	FrameCount      int
	FrameDurationMs int
	ByteSize        int
	Prompt          string
	ReceivedAt      time.Time
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		mime_type TEXT NOT NULL,
		frame_count INTEGER NOT NULL,
		frame_duration_ms INTEGER NOT NULL,
		byte_size INTEGER NOT NULL,
		prompt TEXT NOT NULL DEFAULT '',
		received_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS exports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		asset_id TEXT NOT NULL,
		format TEXT NOT NULL,
		path TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_received_at ON assets(received_at)`,
}

// Open initializes or connects to the history database and applies
// migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply migration %d: %w", i, err)
		}
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordAsset inserts one received asset into the history.
func (s *Store) RecordAsset(asset types.Asset) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO assets
		 (id, mime_type, frame_count, frame_duration_ms, byte_size, prompt, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		asset.ID,
		asset.MimeType,
		asset.FrameCount,
		asset.FrameDurationMs,
		len(asset.ImageBytes),
		asset.Prompt,
		asset.ReceivedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record asset %s: %w", asset.ID, err)
	}
	return nil
}

// RecordExport logs one completed export.
func (s *Store) RecordExport(assetID, format, path string) error {
	_, err := s.db.Exec(
		`INSERT INTO exports (asset_id, format, path, created_at) VALUES (?, ?, ?, ?)`,
		assetID, format, path, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record export for %s: %w", assetID, err)
	}
	return nil
}

// RecentAssets returns up to limit assets, newest first.
func (s *Store) RecentAssets(limit int) ([]AssetRecord, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := s.db.Query(
		`SELECT id, mime_type, frame_count, frame_duration_ms, byte_size, prompt, received_at
		 FROM assets ORDER BY received_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var records []AssetRecord
	for rows.Next() {
		var rec AssetRecord
		var receivedAt string
		if err := rows.Scan(&rec.ID, &rec.MimeType, &rec.FrameCount,
			&rec.FrameDurationMs, &rec.ByteSize, &rec.Prompt, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan asset row: %w", err)
		}
		rec.ReceivedAt, _ = time.Parse(time.RFC3339Nano, receivedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Counts reports total assets and exports recorded.
func (s *Store) Counts() (assets int, exports int, err error) {
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM assets`).Scan(&assets); err != nil {
		return 0, 0, fmt.Errorf("count assets: %w", err)
	}
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM exports`).Scan(&exports); err != nil {
		return 0, 0, fmt.Errorf("count exports: %w", err)
	}
	return assets, exports, nil
}
