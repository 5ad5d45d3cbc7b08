// Package media defines the values exchanged between backends, the core and
// frontends.
package media

import (
	"path"
	"strings"
	"time"
)

// Track is an immutable description of a playable item. Backends produce
// tracks; the core never mutates them.
type Track struct {
	URI      string            `json:"uri"`
	Name     string            `json:"name"`
	Album    string            `json:"album,omitempty"`
	Artists  []string          `json:"artists,omitempty"`
	Duration time.Duration     `json:"duration"`
	TrackNo  int               `json:"trackNo,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// Artist returns the artists joined for display.
func (t Track) Artist() string {
	return strings.Join(t.Artists, ", ")
}

// Title returns the track name, falling back to the last URI segment.
func (t Track) Title() string {
	if t.Name != "" {
		return t.Name
	}
	if _, rest, ok := strings.Cut(t.URI, ":"); ok {
		return path.Base(rest)
	}
	return path.Base(t.URI)
}

// TrackType returns the lower-cased file extension of the URI (flac, dsf...).
func (t Track) TrackType() string {
	if idx := strings.LastIndex(t.URI, "."); idx != -1 && !strings.Contains(t.URI[idx:], "/") {
		return strings.ToLower(t.URI[idx+1:])
	}
	return ""
}

// TlTrack binds a Track to its tracklist id. TLIDs are never reused within a
// tracklist instance.
type TlTrack struct {
	TLID  int   `json:"tlid"`
	Track Track `json:"track"`
}

// Playlist is a named, ordered list of tracks owned by a backend.
type Playlist struct {
	URI          string    `json:"uri"`
	Name         string    `json:"name"`
	Tracks       []Track   `json:"tracks,omitempty"`
	LastModified time.Time `json:"lastModified,omitempty"`
}

// URIs returns the track URIs in playlist order.
func (p Playlist) URIs() []string {
	uris := make([]string, len(p.Tracks))
	for i, t := range p.Tracks {
		uris[i] = t.URI
	}
	return uris
}

// Query is a search query: field name ("any", "artist", "album", "title",
// "uri") to accepted values.
type Query map[string][]string

// Scheme returns the URI scheme ("file" for "file:/music/a.flac"), or "" if
// uri has none.
func Scheme(uri string) string {
	scheme, _, ok := strings.Cut(uri, ":")
	if !ok || scheme == "" || strings.ContainsAny(scheme, "/ ") {
		return ""
	}
	return strings.ToLower(scheme)
}

// PlaybackState is the playback state reported by the core.
type PlaybackState string

// Playback states. Stopped is the initial state.
const (
	Stopped PlaybackState = "stopped"
	Playing PlaybackState = "playing"
	Paused  PlaybackState = "paused"
)

// Volumio returns the short status string used by Volumio clients and the
// MPD protocol ("play", "pause", "stop").
func (s PlaybackState) Volumio() string {
	switch s {
	case Playing:
		return "play"
	case Paused:
		return "pause"
	default:
		return "stop"
	}
}
