package mpd

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
	"github.com/edumarques81/stellar-mediacore/internal/errors"
)

// Scheme is the URI scheme served by the MPD backend.
const Scheme = "mpd"

const playlistPrefix = Scheme + ":playlist:"

// Database is the part of the MPD client the backend queries.
type Database interface {
	ListAllInfo(uri string) ([]mpd.Attrs, error)
	Search(tag, value string) ([]mpd.Attrs, error)
	ListPlaylists() ([]mpd.Attrs, error)
	PlaylistContents(name string) ([]mpd.Attrs, error)
	PlaylistAdd(name, uri string) error
	PlaylistClear(name string) error
	PlaylistRemove(name string) error
}

// Backend exposes the MPD database and stored playlists under mpd: URIs.
type Backend struct {
	db Database
}

// NewBackend creates the mpd: backend.
func NewBackend(db Database) *Backend {
	return &Backend{db: db}
}

func (b *Backend) Name() string      { return "mpd" }
func (b *Backend) Schemes() []string { return []string{Scheme} }

// Lookup returns the song at uri, or every song below it for a directory.
func (b *Backend) Lookup(ctx context.Context, uri string) ([]media.Track, error) {
	path := strings.TrimPrefix(uri, Scheme+":")
	attrs, err := b.db.ListAllInfo(path)
	if err != nil {
		return nil, err
	}
	return tracksFromAttrs(attrs), nil
}

// queryTags maps query fields to MPD search tags.
var queryTags = map[string]string{
	"any":         "any",
	"artist":      "artist",
	"albumartist": "albumartist",
	"album":       "album",
	"track_name":  "title",
	"title":       "title",
	"genre":       "genre",
	"uri":         "file",
}

// Search runs one MPD search per query value and returns their union, in
// the order MPD reported them. With uris set, only songs below those URIs
// are kept.
func (b *Backend) Search(ctx context.Context, query media.Query, uris []string) ([]media.Track, error) {
	seen := make(map[string]bool)
	var out []media.Track

	for field, values := range query {
		tag, ok := queryTags[field]
		if !ok {
			log.Debug().Str("field", field).Msg("Unsupported MPD search field")
			continue
		}
		for _, v := range values {
			attrs, err := b.db.Search(tag, v)
			if err != nil {
				return nil, err
			}
			for _, tr := range tracksFromAttrs(attrs) {
				if seen[tr.URI] || !underAny(tr.URI, uris) {
					continue
				}
				seen[tr.URI] = true
				out = append(out, tr)
			}
		}
	}
	return out, nil
}

func underAny(uri string, roots []string) bool {
	if len(roots) == 0 {
		return true
	}
	for _, root := range roots {
		if strings.HasPrefix(uri, root) {
			return true
		}
	}
	return false
}

// TranslateURI maps mpd:path to the path MPD plays.
func (b *Backend) TranslateURI(ctx context.Context, uri string) (string, error) {
	path := strings.TrimPrefix(uri, Scheme+":")
	if path == "" || strings.HasPrefix(uri, playlistPrefix) {
		return "", errors.Lookup("translate_uri", "%q is not a playable mpd uri", uri)
	}
	return path, nil
}

// Playlists lists MPD's stored playlists without their tracks.
func (b *Backend) Playlists(ctx context.Context) ([]media.Playlist, error) {
	attrs, err := b.db.ListPlaylists()
	if err != nil {
		return nil, err
	}
	out := make([]media.Playlist, 0, len(attrs))
	for _, a := range attrs {
		pl := media.Playlist{URI: playlistPrefix + a["playlist"], Name: a["playlist"]}
		if t, err := time.Parse(time.RFC3339, a["Last-Modified"]); err == nil {
			pl.LastModified = t
		}
		out = append(out, pl)
	}
	return out, nil
}

// LookupPlaylist returns a stored playlist with its tracks.
func (b *Backend) LookupPlaylist(ctx context.Context, uri string) (media.Playlist, error) {
	name, err := playlistName(uri)
	if err != nil {
		return media.Playlist{}, err
	}
	attrs, err := b.db.PlaylistContents(name)
	if err != nil {
		return media.Playlist{}, errors.Wrap(errors.ErrLookup, "lookup_playlist", err)
	}
	return media.Playlist{URI: uri, Name: name, Tracks: tracksFromAttrs(attrs)}, nil
}

// CreatePlaylist returns a new empty playlist. MPD creates it on first save.
func (b *Backend) CreatePlaylist(ctx context.Context, name string) (media.Playlist, error) {
	if strings.TrimSpace(name) == "" {
		return media.Playlist{}, errors.Invalid("create_playlist", "playlist name is empty")
	}
	return media.Playlist{URI: playlistPrefix + name, Name: name, LastModified: time.Now()}, nil
}

// SavePlaylist replaces the stored playlist's songs with pl's mpd: tracks.
// Tracks of other schemes cannot be stored by MPD and are skipped.
func (b *Backend) SavePlaylist(ctx context.Context, pl media.Playlist) (media.Playlist, error) {
	name, err := playlistName(pl.URI)
	if err != nil {
		return media.Playlist{}, err
	}
	if err := b.db.PlaylistClear(name); err != nil {
		log.Debug().Err(err).Str("playlist", name).Msg("Clearing new MPD playlist")
	}

	saved := media.Playlist{URI: pl.URI, Name: name, LastModified: time.Now()}
	for _, tr := range pl.Tracks {
		if media.Scheme(tr.URI) != Scheme {
			log.Debug().Str("uri", tr.URI).Msg("Skipping non-mpd track in MPD playlist")
			continue
		}
		if err := b.db.PlaylistAdd(name, strings.TrimPrefix(tr.URI, Scheme+":")); err != nil {
			return media.Playlist{}, err
		}
		saved.Tracks = append(saved.Tracks, tr)
	}
	return saved, nil
}

// DeletePlaylist removes a stored playlist.
func (b *Backend) DeletePlaylist(ctx context.Context, uri string) error {
	name, err := playlistName(uri)
	if err != nil {
		return err
	}
	return b.db.PlaylistRemove(name)
}

func playlistName(uri string) (string, error) {
	name := strings.TrimPrefix(uri, playlistPrefix)
	if name == uri || name == "" {
		return "", errors.Lookup("playlist", "%q is not an mpd playlist uri", uri)
	}
	return name, nil
}

// tracksFromAttrs converts MPD song attributes, skipping directories and
// playlists.
func tracksFromAttrs(attrs []mpd.Attrs) []media.Track {
	tracks := make([]media.Track, 0, len(attrs))
	for _, a := range attrs {
		file := a["file"]
		if file == "" {
			continue
		}
		tr := media.Track{
			URI:   Scheme + ":" + file,
			Name:  a["Title"],
			Album: a["Album"],
		}
		if artist := a["Artist"]; artist != "" {
			tr.Artists = []string{artist}
		} else if artist := a["AlbumArtist"]; artist != "" {
			tr.Artists = []string{artist}
		}

		// Prefer precise duration, fall back to integer Time
		if d := seconds(a["duration"]); d > 0 {
			tr.Duration = d
		} else if secs, err := strconv.Atoi(a["Time"]); err == nil {
			tr.Duration = time.Duration(secs) * time.Second
		}

		if n, _, _ := strings.Cut(a["Track"], "/"); n != "" {
			if no, err := strconv.Atoi(n); err == nil {
				tr.TrackNo = no
			}
		}
		tracks = append(tracks, tr)
	}
	return tracks
}
