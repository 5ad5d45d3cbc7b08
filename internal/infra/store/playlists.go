package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
	"github.com/edumarques81/stellar-mediacore/internal/errors"
)

// Scheme is the URI scheme of stored playlists.
const Scheme = "stored"

// Backend implements the playlists capability over a DB. Playlist URIs are
// "stored:<uuid>".
type Backend struct {
	db *DB
}

// NewBackend returns a backend over an opened db.
func NewBackend(db *DB) *Backend {
	return &Backend{db: db}
}

func (b *Backend) Name() string      { return "stored" }
func (b *Backend) Schemes() []string { return []string{Scheme} }

// Close closes the database.
func (b *Backend) Close() error { return b.db.Close() }

func playlistID(uri string) (string, error) {
	id, ok := strings.CutPrefix(uri, Scheme+":")
	if !ok {
		return "", errors.Lookup("stored", "%q is not a stored playlist", uri)
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", errors.Lookup("stored", "invalid playlist id %q", id)
	}
	return id, nil
}

// Playlists returns every playlist without tracks, ordered by name.
func (b *Backend) Playlists(ctx context.Context) ([]media.Playlist, error) {
	b.db.mu.RLock()
	defer b.db.mu.RUnlock()

	db, err := b.db.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, name, last_modified FROM playlists ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}
	defer rows.Close()

	var playlists []media.Playlist
	for rows.Next() {
		var id, name, modified string
		if err := rows.Scan(&id, &name, &modified); err != nil {
			return nil, err
		}
		playlists = append(playlists, media.Playlist{
			URI:          Scheme + ":" + id,
			Name:         name,
			LastModified: parseTime(modified),
		})
	}
	return playlists, rows.Err()
}

// LookupPlaylist returns a playlist with its tracks in order.
func (b *Backend) LookupPlaylist(ctx context.Context, uri string) (media.Playlist, error) {
	id, err := playlistID(uri)
	if err != nil {
		return media.Playlist{}, err
	}

	b.db.mu.RLock()
	defer b.db.mu.RUnlock()

	db, err := b.db.conn()
	if err != nil {
		return media.Playlist{}, err
	}

	pl := media.Playlist{URI: uri}
	var modified string
	err = db.QueryRowContext(ctx, `SELECT name, last_modified FROM playlists WHERE id = ?`, id).Scan(&pl.Name, &modified)
	if err == sql.ErrNoRows {
		return media.Playlist{}, errors.Lookup("stored", "playlist %s not found", uri)
	}
	if err != nil {
		return media.Playlist{}, fmt.Errorf("failed to load playlist: %w", err)
	}
	pl.LastModified = parseTime(modified)

	rows, err := db.QueryContext(ctx, `
		SELECT uri, name, album, artists, duration_ms, track_no
		FROM playlist_tracks WHERE playlist_id = ? ORDER BY position
	`, id)
	if err != nil {
		return media.Playlist{}, fmt.Errorf("failed to load playlist tracks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			t          media.Track
			artists    string
			durationMS int64
		)
		if err := rows.Scan(&t.URI, &t.Name, &t.Album, &artists, &durationMS, &t.TrackNo); err != nil {
			return media.Playlist{}, err
		}
		if err := json.Unmarshal([]byte(artists), &t.Artists); err != nil {
			log.Debug().Err(err).Str("uri", t.URI).Msg("Ignoring malformed artists column")
		}
		t.Duration = time.Duration(durationMS) * time.Millisecond
		pl.Tracks = append(pl.Tracks, t)
	}
	return pl, rows.Err()
}

// CreatePlaylist creates an empty playlist under a fresh URI.
func (b *Backend) CreatePlaylist(ctx context.Context, name string) (media.Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return media.Playlist{}, errors.Invalid("stored", "playlist name is empty")
	}

	b.db.mu.Lock()
	defer b.db.mu.Unlock()

	db, err := b.db.conn()
	if err != nil {
		return media.Playlist{}, err
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	if _, err := db.ExecContext(ctx, `INSERT INTO playlists (id, name, last_modified) VALUES (?, ?, ?)`,
		id, name, now.Format(time.RFC3339Nano)); err != nil {
		return media.Playlist{}, fmt.Errorf("failed to create playlist: %w", err)
	}

	log.Info().Str("name", name).Str("id", id).Msg("Stored playlist created")
	return media.Playlist{URI: Scheme + ":" + id, Name: name, LastModified: now}, nil
}

// SavePlaylist replaces the name and tracks of an existing playlist.
func (b *Backend) SavePlaylist(ctx context.Context, pl media.Playlist) (media.Playlist, error) {
	id, err := playlistID(pl.URI)
	if err != nil {
		return media.Playlist{}, err
	}

	b.db.mu.Lock()
	defer b.db.mu.Unlock()

	db, err := b.db.conn()
	if err != nil {
		return media.Playlist{}, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return media.Playlist{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `UPDATE playlists SET name = ?, last_modified = ? WHERE id = ?`,
		pl.Name, now.Format(time.RFC3339Nano), id)
	if err != nil {
		return media.Playlist{}, fmt.Errorf("failed to update playlist: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return media.Playlist{}, errors.Lookup("stored", "playlist %s not found", pl.URI)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM playlist_tracks WHERE playlist_id = ?`, id); err != nil {
		return media.Playlist{}, fmt.Errorf("failed to clear playlist tracks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO playlist_tracks (playlist_id, position, uri, name, album, artists, duration_ms, track_no)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return media.Playlist{}, err
	}
	defer stmt.Close()

	for i, t := range pl.Tracks {
		artists, _ := json.Marshal(t.Artists)
		if t.Artists == nil {
			artists = []byte("[]")
		}
		if _, err := stmt.ExecContext(ctx, id, i, t.URI, t.Name, t.Album, string(artists), t.Duration.Milliseconds(), t.TrackNo); err != nil {
			return media.Playlist{}, fmt.Errorf("failed to insert playlist track: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return media.Playlist{}, fmt.Errorf("failed to commit playlist: %w", err)
	}

	log.Info().Str("uri", pl.URI).Int("tracks", len(pl.Tracks)).Msg("Stored playlist saved")
	pl.LastModified = now
	return pl, nil
}

// DeletePlaylist removes a playlist and its tracks. Deleting a missing
// playlist is not an error.
func (b *Backend) DeletePlaylist(ctx context.Context, uri string) error {
	id, err := playlistID(uri)
	if err != nil {
		return err
	}

	b.db.mu.Lock()
	defer b.db.mu.Unlock()

	db, err := b.db.conn()
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM playlist_tracks WHERE playlist_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete playlist tracks: %w", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM playlists WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}

	log.Info().Str("uri", uri).Msg("Stored playlist deleted")
	return nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
