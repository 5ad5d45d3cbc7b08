// Package backend defines the contract implemented by content backends and
// runs each backend inside its own actor.
package backend

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-mediacore/internal/actor"
	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
	"github.com/edumarques81/stellar-mediacore/internal/errors"
)

// DefaultTimeout bounds each call into a backend.
const DefaultTimeout = 10 * time.Second

// Capability is a feature set a backend may provide.
type Capability string

// Capabilities.
const (
	CapLibrary   Capability = "library"
	CapPlayback  Capability = "playback"
	CapPlaylists Capability = "playlists"
)

// Backend is implemented by every backend. A backend serves only URIs whose
// scheme it lists.
type Backend interface {
	Name() string
	Schemes() []string
}

// Library resolves and searches tracks.
type Library interface {
	Lookup(ctx context.Context, uri string) ([]media.Track, error)
	// Search restricts results to the given URI roots when uris is not empty.
	Search(ctx context.Context, query media.Query, uris []string) ([]media.Track, error)
}

// Playback translates a track URI into one the audio engine can render.
type Playback interface {
	TranslateURI(ctx context.Context, uri string) (string, error)
}

// Playlists persists named playlists.
type Playlists interface {
	Playlists(ctx context.Context) ([]media.Playlist, error)
	LookupPlaylist(ctx context.Context, uri string) (media.Playlist, error)
	CreatePlaylist(ctx context.Context, name string) (media.Playlist, error)
	SavePlaylist(ctx context.Context, pl media.Playlist) (media.Playlist, error)
	DeletePlaylist(ctx context.Context, uri string) error
}

// CapabilitiesOf returns the capabilities b implements, in a fixed order.
func CapabilitiesOf(b Backend) []Capability {
	var caps []Capability
	if _, ok := b.(Library); ok {
		caps = append(caps, CapLibrary)
	}
	if _, ok := b.(Playback); ok {
		caps = append(caps, CapPlayback)
	}
	if _, ok := b.(Playlists); ok {
		caps = append(caps, CapPlaylists)
	}
	return caps
}

type (
	lookupMsg         struct{ uri string }
	searchMsg         struct {
		query media.Query
		uris  []string
	}
	translateMsg      struct{ uri string }
	playlistsMsg      struct{}
	lookupPlaylistMsg struct{ uri string }
	createPlaylistMsg struct{ name string }
	savePlaylistMsg   struct{ pl media.Playlist }
	deletePlaylistMsg struct{ uri string }
)

// handler invokes backend methods inside the actor turn.
type handler struct {
	b Backend
}

func (h *handler) Receive(ctx context.Context, msg any) (any, error) {
	name := h.b.Name()
	switch m := msg.(type) {
	case lookupMsg:
		lib, ok := h.b.(Library)
		if !ok {
			return nil, unsupported(name, CapLibrary)
		}
		return lib.Lookup(ctx, m.uri)
	case searchMsg:
		lib, ok := h.b.(Library)
		if !ok {
			return nil, unsupported(name, CapLibrary)
		}
		return lib.Search(ctx, m.query, m.uris)
	case translateMsg:
		pb, ok := h.b.(Playback)
		if !ok {
			return nil, unsupported(name, CapPlayback)
		}
		return pb.TranslateURI(ctx, m.uri)
	case playlistsMsg:
		pl, ok := h.b.(Playlists)
		if !ok {
			return nil, unsupported(name, CapPlaylists)
		}
		return pl.Playlists(ctx)
	case lookupPlaylistMsg:
		pl, ok := h.b.(Playlists)
		if !ok {
			return nil, unsupported(name, CapPlaylists)
		}
		return pl.LookupPlaylist(ctx, m.uri)
	case createPlaylistMsg:
		pl, ok := h.b.(Playlists)
		if !ok {
			return nil, unsupported(name, CapPlaylists)
		}
		return pl.CreatePlaylist(ctx, m.name)
	case savePlaylistMsg:
		pl, ok := h.b.(Playlists)
		if !ok {
			return nil, unsupported(name, CapPlaylists)
		}
		return pl.SavePlaylist(ctx, m.pl)
	case deletePlaylistMsg:
		pl, ok := h.b.(Playlists)
		if !ok {
			return nil, unsupported(name, CapPlaylists)
		}
		return nil, pl.DeletePlaylist(ctx, m.uri)
	default:
		return nil, errors.Invalid("backend "+name, "unknown message %T", msg)
	}
}

func unsupported(name string, c Capability) error {
	return errors.Lookup("backend "+name, "capability %s not supported", c)
}

// Option configures Spawn.
type Option func(*Descriptor)

// WithTimeout sets the per-call timeout for this backend.
func WithTimeout(d time.Duration) Option {
	return func(desc *Descriptor) {
		if d > 0 {
			desc.timeout = d
		}
	}
}

// Descriptor is the immutable registration record of a running backend.
type Descriptor struct {
	name    string
	schemes []string
	caps    []Capability
	ref     *actor.Ref
	timeout time.Duration
	closer  io.Closer
}

// Spawn starts b in its own actor.
func Spawn(b Backend, opts ...Option) *Descriptor {
	schemes := make([]string, 0, len(b.Schemes()))
	for _, s := range b.Schemes() {
		schemes = append(schemes, strings.ToLower(s))
	}

	d := &Descriptor{
		name:    b.Name(),
		schemes: schemes,
		caps:    CapabilitiesOf(b),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if c, ok := b.(io.Closer); ok {
		d.closer = c
	}

	d.ref = actor.Spawn("backend:"+d.name, &handler{b: b})

	log.Info().
		Str("backend", d.name).
		Strs("schemes", schemes).
		Interface("capabilities", d.caps).
		Msg("Backend started")
	return d
}

// Name returns the backend name.
func (d *Descriptor) Name() string { return d.name }

// Schemes returns the claimed URI schemes.
func (d *Descriptor) Schemes() []string { return append([]string(nil), d.schemes...) }

// Capabilities returns the implemented capabilities.
func (d *Descriptor) Capabilities() []Capability { return append([]Capability(nil), d.caps...) }

// Ref returns the backend actor.
func (d *Descriptor) Ref() *actor.Ref { return d.ref }

// Timeout returns the per-call timeout.
func (d *Descriptor) Timeout() time.Duration { return d.timeout }

// Has reports whether the backend implements c.
func (d *Descriptor) Has(c Capability) bool {
	for _, have := range d.caps {
		if have == c {
			return true
		}
	}
	return false
}

// Claims reports whether the backend registered scheme.
func (d *Descriptor) Claims(scheme string) bool {
	scheme = strings.ToLower(scheme)
	for _, s := range d.schemes {
		if s == scheme {
			return true
		}
	}
	return false
}

// Alive reports whether the backend actor is running.
func (d *Descriptor) Alive() bool { return d.ref.Alive() }

// Stop terminates the backend actor and closes the backend if it holds
// resources.
func (d *Descriptor) Stop() {
	d.ref.Stop()
	<-d.ref.Done()
	if d.closer != nil {
		if err := d.closer.Close(); err != nil {
			log.Warn().Err(err).Str("backend", d.name).Msg("Failed to close backend")
		}
	}
}

// Lookup asks the backend to resolve uri.
func (d *Descriptor) Lookup(ctx context.Context, uri string) ([]media.Track, error) {
	return actor.Call[[]media.Track](ctx, d.ref, lookupMsg{uri: uri}, d.timeout)
}

// Search asks the backend to search its library.
func (d *Descriptor) Search(ctx context.Context, query media.Query, uris []string) ([]media.Track, error) {
	return actor.Call[[]media.Track](ctx, d.ref, searchMsg{query: query, uris: uris}, d.timeout)
}

// TranslateURI asks the backend for an engine-playable URI.
func (d *Descriptor) TranslateURI(ctx context.Context, uri string) (string, error) {
	return actor.Call[string](ctx, d.ref, translateMsg{uri: uri}, d.timeout)
}

// Playlists lists the backend's playlists.
func (d *Descriptor) Playlists(ctx context.Context) ([]media.Playlist, error) {
	return actor.Call[[]media.Playlist](ctx, d.ref, playlistsMsg{}, d.timeout)
}

// LookupPlaylist returns one playlist with its tracks.
func (d *Descriptor) LookupPlaylist(ctx context.Context, uri string) (media.Playlist, error) {
	return actor.Call[media.Playlist](ctx, d.ref, lookupPlaylistMsg{uri: uri}, d.timeout)
}

// CreatePlaylist creates an empty playlist.
func (d *Descriptor) CreatePlaylist(ctx context.Context, name string) (media.Playlist, error) {
	return actor.Call[media.Playlist](ctx, d.ref, createPlaylistMsg{name: name}, d.timeout)
}

// SavePlaylist persists pl.
func (d *Descriptor) SavePlaylist(ctx context.Context, pl media.Playlist) (media.Playlist, error) {
	return actor.Call[media.Playlist](ctx, d.ref, savePlaylistMsg{pl: pl}, d.timeout)
}

// DeletePlaylist removes the playlist at uri.
func (d *Descriptor) DeletePlaylist(ctx context.Context, uri string) error {
	_, err := d.ref.Ask(ctx, deletePlaylistMsg{uri: uri}, d.timeout)
	return err
}
