package core

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-mediacore/internal/domain/history"
	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
	"github.com/edumarques81/stellar-mediacore/internal/domain/tracklist"
	"github.com/edumarques81/stellar-mediacore/internal/errors"
)

// Add inserts tracks at position, or appends them when position is -1.
func (c *Core) Add(ctx context.Context, tracks []media.Track, position int) ([]media.TlTrack, error) {
	return do(ctx, c, "add", func(ctx context.Context, h *handler) ([]media.TlTrack, error) {
		added, err := h.tracklist.Add(tracks, position)
		if err != nil {
			return nil, err
		}
		if len(added) > 0 {
			h.tracklistChanged()
		}
		return added, nil
	})
}

// AddURIs looks uris up through the backends and adds the resulting tracks
// in the order given. URIs that resolve to nothing are skipped; the call
// fails only when none resolved.
func (c *Core) AddURIs(ctx context.Context, uris []string, position int) ([]media.TlTrack, error) {
	if len(uris) == 0 {
		return nil, nil
	}
	found, err := c.router.LookupMany(ctx, uris)
	if err != nil {
		return nil, err
	}

	var tracks []media.Track
	for _, uri := range uris {
		resolved, ok := found[uri]
		if !ok || len(resolved) == 0 {
			log.Warn().Str("uri", uri).Msg("URI resolved to no tracks, skipping")
			continue
		}
		tracks = append(tracks, resolved...)
	}
	if len(tracks) == 0 {
		return nil, errors.Lookup("add", "no tracks found for %d uris", len(uris))
	}
	return c.Add(ctx, tracks, position)
}

// AddPlaylist appends the tracks of the stored playlist at uri.
func (c *Core) AddPlaylist(ctx context.Context, uri string, position int) ([]media.TlTrack, error) {
	pl, err := c.router.LookupPlaylist(ctx, uri)
	if err != nil {
		return nil, err
	}
	if len(pl.Tracks) == 0 {
		return nil, nil
	}
	return c.Add(ctx, pl.Tracks, position)
}

// Remove removes the tracks matching criteria. Removing the current track
// stops playback.
func (c *Core) Remove(ctx context.Context, criteria tracklist.Criteria) ([]media.TlTrack, error) {
	return c.remove(ctx, -1, criteria)
}

// RemoveAtVersion is Remove for a client holding tracklist version. It
// fails with ErrStaleVersion, changing nothing, when the tracklist has
// moved on since.
func (c *Core) RemoveAtVersion(ctx context.Context, version int, criteria tracklist.Criteria) ([]media.TlTrack, error) {
	return c.remove(ctx, version, criteria)
}

func (c *Core) remove(ctx context.Context, expected int, criteria tracklist.Criteria) ([]media.TlTrack, error) {
	return do(ctx, c, "remove", func(ctx context.Context, h *handler) ([]media.TlTrack, error) {
		if expected >= 0 {
			if err := h.tracklist.CheckVersion(expected); err != nil {
				return nil, err
			}
		}
		matched := h.tracklist.Filter(criteria)
		if len(matched) == 0 {
			return nil, nil
		}
		h.machine.BeforeRemove(ctx, matched)
		removed := h.tracklist.Remove(criteria)
		h.tracklistChanged()
		return removed, nil
	})
}

// Clear empties the tracklist and stops playback.
func (c *Core) Clear(ctx context.Context) error {
	return exec(ctx, c, "clear", func(ctx context.Context, h *handler) error {
		if h.tracklist.Len() == 0 {
			return nil
		}
		h.machine.BeforeRemove(ctx, h.tracklist.Tracks())
		h.tracklist.Clear()
		h.tracklistChanged()
		return nil
	})
}

// Move moves the tracks in [start, end) so the first lands at to.
func (c *Core) Move(ctx context.Context, start, end, to int) error {
	return c.move(ctx, -1, start, end, to)
}

// MoveAtVersion is Move for a client holding tracklist version.
func (c *Core) MoveAtVersion(ctx context.Context, version, start, end, to int) error {
	return c.move(ctx, version, start, end, to)
}

func (c *Core) move(ctx context.Context, expected, start, end, to int) error {
	return exec(ctx, c, "move", func(ctx context.Context, h *handler) error {
		if expected >= 0 {
			if err := h.tracklist.CheckVersion(expected); err != nil {
				return err
			}
		}
		version := h.tracklist.Version()
		if err := h.tracklist.Move(start, end, to); err != nil {
			return err
		}
		if h.tracklist.Version() != version {
			h.tracklistChanged()
		}
		return nil
	})
}

// Shuffle shuffles the tracks in [start, end); end -1 means the end of the
// tracklist.
func (c *Core) Shuffle(ctx context.Context, start, end int) error {
	return exec(ctx, c, "shuffle", func(ctx context.Context, h *handler) error {
		version := h.tracklist.Version()
		if err := h.tracklist.Shuffle(start, end); err != nil {
			return err
		}
		if h.tracklist.Version() != version {
			h.tracklistChanged()
		}
		return nil
	})
}

// Tracklist returns a consistent snapshot of the tracklist.
func (c *Core) Tracklist(ctx context.Context) (tracklist.Snapshot, error) {
	return do(ctx, c, "tracklist", func(ctx context.Context, h *handler) (tracklist.Snapshot, error) {
		return h.tracklist.Snapshot(), nil
	})
}

// Version returns the tracklist version.
func (c *Core) Version(ctx context.Context) (int, error) {
	return do(ctx, c, "version", func(ctx context.Context, h *handler) (int, error) {
		return h.tracklist.Version(), nil
	})
}

// SetRepeat sets repeat mode.
func (c *Core) SetRepeat(ctx context.Context, on bool) error {
	return c.setMode(ctx, "set_repeat", func(tl *tracklist.Tracklist) bool { return tl.SetRepeat(on) })
}

// SetRandom sets random mode.
func (c *Core) SetRandom(ctx context.Context, on bool) error {
	return c.setMode(ctx, "set_random", func(tl *tracklist.Tracklist) bool { return tl.SetRandom(on) })
}

// SetConsume sets consume mode.
func (c *Core) SetConsume(ctx context.Context, on bool) error {
	return c.setMode(ctx, "set_consume", func(tl *tracklist.Tracklist) bool { return tl.SetConsume(on) })
}

// SetSingle sets single mode.
func (c *Core) SetSingle(ctx context.Context, on bool) error {
	return c.setMode(ctx, "set_single", func(tl *tracklist.Tracklist) bool { return tl.SetSingle(on) })
}

func (c *Core) setMode(ctx context.Context, op string, set func(*tracklist.Tracklist) bool) error {
	return exec(ctx, c, op, func(ctx context.Context, h *handler) error {
		if set(h.tracklist) {
			h.optionsChanged()
		}
		return nil
	})
}

// History returns up to limit entries, newest first. limit <= 0 returns all.
func (c *Core) History(ctx context.Context, limit int) ([]history.Entry, error) {
	return do(ctx, c, "history", func(ctx context.Context, h *handler) ([]history.Entry, error) {
		return h.history.Recent(limit), nil
	})
}
