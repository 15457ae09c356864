package playlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is satisfied by *pgxpool.Pool and by pgxmock pools in tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Every mutating transaction takes this advisory lock first, so mutations
// from all connections and all processes sharing the database serialize.
const advisoryLockKey int64 = 0x636f6c6c6162

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidText         = "22P02"
)

const selectItems = `
	SELECT i.id, i.track_id, i.position, i.votes, i.added_by, i.is_playing,
	       i.added_at, i.played_at, t.title, t.artist, t.duration_seconds
	FROM playlist_items i
	JOIN tracks t ON t.id = i.track_id`

const selectTracks = `
	SELECT id, title, artist, album, duration_seconds, genre, cover_url
	FROM tracks`

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ListTracks(ctx context.Context) ([]Track, error) {
	rows, err := s.db.Query(ctx, selectTracks+` ORDER BY title ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()

	tracks := make([]Track, 0)
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	return tracks, nil
}

func (s *PostgresStore) GetTrack(ctx context.Context, id string) (Track, error) {
	return getTrack(ctx, s.db, id)
}

func (s *PostgresStore) ListItems(ctx context.Context) ([]Item, error) {
	return listItems(ctx, s.db)
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) Seed(ctx context.Context, tracks []Track, items []Item) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM playlist_items`); err != nil {
		return fmt.Errorf("seed clear playlist: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM tracks`); err != nil {
		return fmt.Errorf("seed clear tracks: %w", err)
	}
	for _, t := range tracks {
		if _, err := tx.Exec(ctx, `
			INSERT INTO tracks (id, title, artist, album, duration_seconds, genre, cover_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, t.ID, t.Title, t.Artist, t.Album, t.DurationSeconds, t.Genre, t.CoverURL); err != nil {
			return fmt.Errorf("seed track %s: %w", t.ID, err)
		}
	}
	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO playlist_items (track_id, position, votes, added_by, is_playing, added_at, played_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, it.TrackID, it.Position, it.Votes, it.AddedBy, it.IsPlaying, it.AddedAt, it.PlayedAt); err != nil {
			return fmt.Errorf("seed item %s: %w", it.TrackID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("seed commit: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetTrack(ctx context.Context, id string) (Track, error) {
	return getTrack(ctx, t.tx, id)
}

func (t *pgTx) Items(ctx context.Context) ([]Item, error) {
	return listItems(ctx, t.tx)
}

func (t *pgTx) Item(ctx context.Context, id string) (Item, error) {
	row := t.tx.QueryRow(ctx, selectItems+` WHERE i.id = $1 FOR UPDATE OF i`, id)
	it, err := scanItem(row)
	if err != nil {
		return Item{}, notFound(err)
	}
	return it, nil
}

func (t *pgTx) HasTrack(ctx context.Context, trackID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM playlist_items WHERE track_id = $1)
	`, trackID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check track: %w", err)
	}
	return exists, nil
}

func (t *pgTx) LastPosition(ctx context.Context) (*float64, error) {
	var last sql.NullFloat64
	if err := t.tx.QueryRow(ctx, `SELECT MAX(position) FROM playlist_items`).Scan(&last); err != nil {
		return nil, fmt.Errorf("last position: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Float64, nil
}

func (t *pgTx) Insert(ctx context.Context, it Item) (Item, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO playlist_items (track_id, position, votes, added_by, is_playing, added_at)
		VALUES ($1, $2, $3, $4, false, $5)
		RETURNING id
	`, it.TrackID, it.Position, it.Votes, it.AddedBy, it.AddedAt).Scan(&it.ID)
	if err != nil {
		switch pgCode(err) {
		case pgUniqueViolation:
			return Item{}, ErrDuplicateTrack
		case pgForeignKeyViolation:
			return Item{}, ErrUnknownTrack
		}
		return Item{}, fmt.Errorf("insert item: %w", err)
	}
	return it, nil
}

func (t *pgTx) Delete(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM playlist_items WHERE id = $1`, id)
	if err != nil {
		return notFound(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) SetPosition(ctx context.Context, id string, pos float64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE playlist_items SET position = $2 WHERE id = $1`, id, pos)
	if err != nil {
		return notFound(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) AddVotes(ctx context.Context, id string, delta int) (int, error) {
	var votes int
	err := t.tx.QueryRow(ctx, `
		UPDATE playlist_items SET votes = votes + $2 WHERE id = $1 RETURNING votes
	`, id, delta).Scan(&votes)
	if err != nil {
		return 0, notFound(err)
	}
	return votes, nil
}

func (t *pgTx) SetPlaying(ctx context.Context, id string, at time.Time) error {
	// Clear first: the single-playing partial unique index is checked per row.
	if _, err := t.tx.Exec(ctx, `
		UPDATE playlist_items SET is_playing = false WHERE is_playing AND id <> $1
	`, id); err != nil {
		return notFound(err)
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE playlist_items SET is_playing = true, played_at = $2 WHERE id = $1
	`, id, at)
	if err != nil {
		return notFound(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func getTrack(ctx context.Context, q querier, id string) (Track, error) {
	t, err := scanTrack(q.QueryRow(ctx, selectTracks+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Track{}, ErrUnknownTrack
	}
	if err != nil {
		return Track{}, fmt.Errorf("get track: %w", err)
	}
	return t, nil
}

func listItems(ctx context.Context, q querier) ([]Item, error) {
	rows, err := q.Query(ctx, selectItems+` ORDER BY i.position ASC, i.added_at ASC, i.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func scanTrack(row pgx.Row) (Track, error) {
	var t Track
	var genre, cover sql.NullString
	if err := row.Scan(&t.ID, &t.Title, &t.Artist, &t.Album, &t.DurationSeconds, &genre, &cover); err != nil {
		return Track{}, err
	}
	if genre.Valid {
		t.Genre = &genre.String
	}
	if cover.Valid {
		t.CoverURL = &cover.String
	}
	return t, nil
}

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	var playedAt sql.NullTime
	err := row.Scan(
		&it.ID, &it.TrackID, &it.Position, &it.Votes, &it.AddedBy, &it.IsPlaying,
		&it.AddedAt, &playedAt, &it.Track.Title, &it.Track.Artist, &it.Track.DurationSeconds,
	)
	if err != nil {
		return Item{}, err
	}
	if playedAt.Valid {
		it.PlayedAt = &playedAt.Time
	}
	return it, nil
}

// notFound maps missing rows and malformed ids to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) || pgCode(err) == pgInvalidText {
		return ErrNotFound
	}
	return fmt.Errorf("playlist item: %w", err)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
