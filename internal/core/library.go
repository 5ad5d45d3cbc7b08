package core

import (
	"context"

	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
	"github.com/edumarques81/stellar-mediacore/internal/events"
)

// Lookup resolves uri into tracks.
func (c *Core) Lookup(ctx context.Context, uri string) ([]media.Track, error) {
	return c.router.Lookup(ctx, uri)
}

// Search queries the library backends, restricted to uris when given.
func (c *Core) Search(ctx context.Context, query media.Query, uris []string) ([]media.Track, error) {
	return c.router.Search(ctx, query, uris)
}

// Playlists lists the stored playlists of every backend.
func (c *Core) Playlists(ctx context.Context) ([]media.Playlist, error) {
	return c.router.Playlists(ctx)
}

// LookupPlaylist returns the playlist at uri.
func (c *Core) LookupPlaylist(ctx context.Context, uri string) (media.Playlist, error) {
	return c.router.LookupPlaylist(ctx, uri)
}

// CreatePlaylist creates an empty playlist on the backend for scheme, or on
// the first playlists backend when scheme is empty.
func (c *Core) CreatePlaylist(ctx context.Context, name, scheme string) (media.Playlist, error) {
	pl, err := c.router.CreatePlaylist(ctx, name, scheme)
	if err != nil {
		return media.Playlist{}, err
	}
	c.dispatcher.Publish(events.NewPlaylistChanged(pl))
	return pl, nil
}

// SavePlaylist persists pl.
func (c *Core) SavePlaylist(ctx context.Context, pl media.Playlist) (media.Playlist, error) {
	saved, err := c.router.SavePlaylist(ctx, pl)
	if err != nil {
		return media.Playlist{}, err
	}
	c.dispatcher.Publish(events.NewPlaylistChanged(saved))
	return saved, nil
}

// DeletePlaylist deletes the playlist at uri.
func (c *Core) DeletePlaylist(ctx context.Context, uri string) error {
	if err := c.router.DeletePlaylist(ctx, uri); err != nil {
		return err
	}
	c.dispatcher.Publish(events.NewPlaylistDeleted(uri))
	return nil
}
