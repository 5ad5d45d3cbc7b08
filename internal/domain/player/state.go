package player

import (
	"strings"

	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
	"github.com/edumarques81/stellar-mediacore/internal/domain/tracklist"
)

// Status constants for the frontend state.
const (
	StatusPlay  = "play"
	StatusPause = "pause"
	StatusStop  = "stop"
)

// State is a point-in-time snapshot of the player, shaped for frontends.
type State struct {
	// Playback state
	Status   string
	Position int // Index of the current track in the tracklist, -1 if none
	TLID     int
	Seek     int // Current seek position in milliseconds

	// Track info
	Title      string
	Artist     string
	Album      string
	AlbumArt   string
	URI        string
	Duration   int // Duration in seconds
	TrackType  string
	SampleRate string
	BitDepth   string
	Service    string

	// Playback options
	Random       bool
	Repeat       bool
	RepeatSingle bool
	Consume      bool

	// Volume
	Volume int
	Mute   bool

	// Tracklist version
	Version int

	BitPerfect bool
}

// Snapshot gathers everything State needs; the core fills it inside its own
// turn so the fields are consistent with each other.
type Snapshot struct {
	State      media.PlaybackState
	Current    *media.TlTrack
	Index      int
	Seek       int
	Modes      tracklist.Modes
	Version    int
	Volume     int
	Mute       bool
	SampleRate string
	BitDepth   string
	BitPerfect bool
}

// NewState builds the frontend state from s.
func NewState(s Snapshot) *State {
	st := &State{
		Status:     s.State.Volumio(),
		Position:   s.Index,
		Random:     s.Modes.Random,
		Repeat:     s.Modes.Repeat,
		Consume:    s.Modes.Consume,
		Volume:     s.Volume,
		Mute:       s.Mute,
		Version:    s.Version,
		SampleRate: s.SampleRate,
		BitDepth:   s.BitDepth,
		BitPerfect: s.BitPerfect,
	}
	// Volumio has no separate single mode; repeat+single maps to
	// repeatSingle.
	st.RepeatSingle = s.Modes.Repeat && s.Modes.Single

	if s.State != media.Stopped {
		st.Seek = s.Seek
	}

	if cur := s.Current; cur != nil {
		tr := cur.Track
		st.TLID = cur.TLID
		st.Title = tr.Title()
		st.Artist = tr.Artist()
		st.Album = tr.Album
		st.URI = tr.URI
		st.Duration = int(tr.Duration.Seconds())
		st.TrackType = tr.TrackType()
		st.Service = serviceOf(tr.URI)
		st.AlbumArt = albumArtURL(tr.URI)
	}
	return st
}

// serviceOf names the backend family of uri as Volumio clients expect it.
func serviceOf(uri string) string {
	switch scheme := media.Scheme(uri); scheme {
	case "", "file", "mpd":
		return "mpd"
	default:
		return scheme
	}
}

func albumArtURL(uri string) string {
	if uri == "" {
		return ""
	}
	path := uri
	if scheme := media.Scheme(uri); scheme != "" {
		path = strings.TrimPrefix(uri[len(scheme)+1:], "//")
	}
	return "/albumart?path=" + path
}

// ToJSON returns the state as a map suitable for JSON serialization.
// This matches the Volumio pushState format.
func (s *State) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"status":       s.Status,
		"position":     s.Position,
		"tlid":         s.TLID,
		"seek":         s.Seek,
		"title":        s.Title,
		"artist":       s.Artist,
		"album":        s.Album,
		"albumart":     s.AlbumArt,
		"uri":          s.URI,
		"duration":     s.Duration,
		"trackType":    s.TrackType,
		"samplerate":   s.SampleRate,
		"bitdepth":     s.BitDepth,
		"service":      s.Service,
		"random":       s.Random,
		"repeat":       s.Repeat,
		"repeatSingle": s.RepeatSingle,
		"consume":      s.Consume,
		"volume":       s.Volume,
		"mute":         s.Mute,
		"version":      s.Version,
		"bitperfect":   s.BitPerfect,
	}
}

// QueueItem converts a tracklist entry into the Volumio queue item format.
func QueueItem(tl media.TlTrack) map[string]interface{} {
	tr := tl.Track
	return map[string]interface{}{
		"tlid":      tl.TLID,
		"uri":       tr.URI,
		"title":     tr.Title(),
		"name":      tr.Title(),
		"artist":    tr.Artist(),
		"album":     tr.Album,
		"service":   serviceOf(tr.URI),
		"duration":  int(tr.Duration.Seconds()),
		"trackType": tr.TrackType(),
		"albumart":  albumArtURL(tr.URI),
	}
}
