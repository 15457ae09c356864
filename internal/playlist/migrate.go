package playlist

import (
	"context"
	"fmt"
)

// AutoMigrate creates the catalog and playlist tables if they are missing.
func AutoMigrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS pgcrypto`); err != nil {
		return fmt.Errorf("migrate pgcrypto: %w", err)
	}

	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS tracks (
          id               TEXT PRIMARY KEY,
          title            TEXT NOT NULL,
          artist           TEXT NOT NULL,
          album            TEXT NOT NULL DEFAULT '',
          duration_seconds INT  NOT NULL DEFAULT 0 CHECK (duration_seconds >= 0),
          genre            TEXT,
          cover_url        TEXT
      )
    `); err != nil {
		return fmt.Errorf("migrate tracks: %w", err)
	}

	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS playlist_items (
          id         uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          track_id   TEXT NOT NULL UNIQUE REFERENCES tracks(id) ON DELETE CASCADE,
          position   DOUBLE PRECISION NOT NULL,
          votes      INT NOT NULL DEFAULT 0,
          added_by   TEXT NOT NULL DEFAULT 'Anonymous',
          is_playing BOOLEAN NOT NULL DEFAULT FALSE,
          added_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
          played_at  TIMESTAMPTZ
      )
    `); err != nil {
		return fmt.Errorf("migrate playlist_items: %w", err)
	}

	if _, err := db.Exec(ctx, `
      CREATE INDEX IF NOT EXISTS idx_playlist_items_position
      ON playlist_items(position)
    `); err != nil {
		return fmt.Errorf("migrate position index: %w", err)
	}

	// At most one row may be playing.
	if _, err := db.Exec(ctx, `
      CREATE UNIQUE INDEX IF NOT EXISTS idx_playlist_items_single_playing
      ON playlist_items(is_playing) WHERE is_playing
    `); err != nil {
		return fmt.Errorf("migrate playing index: %w", err)
	}

	return nil
}
