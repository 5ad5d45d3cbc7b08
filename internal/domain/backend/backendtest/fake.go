// Package backendtest provides in-memory backends for tests.
package backendtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
)

// Fake is a backend implementing every capability from in-memory data.
type Fake struct {
	name    string
	schemes []string

	mu        sync.Mutex
	tracks    []media.Track
	playlists map[string]media.Playlist
	nextID    int

	// Err, when set, is returned by every call.
	Err error
	// Delay is applied to every call.
	Delay time.Duration
	// PanicOn names a method ("Lookup", "Search", ...) that panics.
	PanicOn string
	// Prefix is prepended by TranslateURI.
	Prefix string

	calls  atomic.Int32
	closed atomic.Bool
}

// NewFake returns a fake backend serving tracks under schemes.
func NewFake(name string, schemes []string, tracks ...media.Track) *Fake {
	return &Fake{
		name:      name,
		schemes:   schemes,
		tracks:    tracks,
		playlists: make(map[string]media.Playlist),
	}
}

// Track builds a track with a name derived from uri.
func Track(uri string) media.Track {
	name := uri
	if _, rest, ok := strings.Cut(uri, ":"); ok {
		name = rest
	}
	return media.Track{URI: uri, Name: name, Duration: 3 * time.Minute}
}

// Calls returns how many backend methods ran.
func (f *Fake) Calls() int { return int(f.calls.Load()) }

// Closed reports whether Close was called.
func (f *Fake) Closed() bool { return f.closed.Load() }

func (f *Fake) Name() string      { return f.name }
func (f *Fake) Schemes() []string { return f.schemes }

func (f *Fake) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *Fake) enter(ctx context.Context, method string) error {
	f.calls.Add(1)
	if f.PanicOn == method {
		panic(fmt.Sprintf("%s: %s exploded", f.name, method))
	}
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.Err
}

func (f *Fake) Lookup(ctx context.Context, uri string) ([]media.Track, error) {
	if err := f.enter(ctx, "Lookup"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []media.Track
	for _, t := range f.tracks {
		if t.URI == uri || strings.HasPrefix(t.URI, strings.TrimSuffix(uri, "/")+"/") {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *Fake) Search(ctx context.Context, query media.Query, uris []string) ([]media.Track, error) {
	if err := f.enter(ctx, "Search"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []media.Track
	for _, t := range f.tracks {
		if matches(t, query) {
			out = append(out, t)
		}
	}
	return out, nil
}

func matches(t media.Track, query media.Query) bool {
	for _, values := range query {
		for _, v := range values {
			if strings.Contains(strings.ToLower(t.Name), strings.ToLower(v)) {
				return true
			}
		}
	}
	return false
}

func (f *Fake) TranslateURI(ctx context.Context, uri string) (string, error) {
	if err := f.enter(ctx, "TranslateURI"); err != nil {
		return "", err
	}
	return f.Prefix + uri, nil
}

func (f *Fake) Playlists(ctx context.Context) ([]media.Playlist, error) {
	if err := f.enter(ctx, "Playlists"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]media.Playlist, 0, len(f.playlists))
	for _, pl := range f.playlists {
		out = append(out, media.Playlist{URI: pl.URI, Name: pl.Name, LastModified: pl.LastModified})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *Fake) LookupPlaylist(ctx context.Context, uri string) (media.Playlist, error) {
	if err := f.enter(ctx, "LookupPlaylist"); err != nil {
		return media.Playlist{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	pl, ok := f.playlists[uri]
	if !ok {
		return media.Playlist{}, fmt.Errorf("playlist %q not found", uri)
	}
	return pl, nil
}

func (f *Fake) CreatePlaylist(ctx context.Context, name string) (media.Playlist, error) {
	if err := f.enter(ctx, "CreatePlaylist"); err != nil {
		return media.Playlist{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	pl := media.Playlist{URI: fmt.Sprintf("%s:playlist/%d", f.schemes[0], f.nextID), Name: name, LastModified: time.Now()}
	f.playlists[pl.URI] = pl
	return pl, nil
}

func (f *Fake) SavePlaylist(ctx context.Context, pl media.Playlist) (media.Playlist, error) {
	if err := f.enter(ctx, "SavePlaylist"); err != nil {
		return media.Playlist{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.playlists[pl.URI]; !ok {
		return media.Playlist{}, fmt.Errorf("playlist %q not found", pl.URI)
	}
	pl.LastModified = time.Now()
	f.playlists[pl.URI] = pl
	return pl, nil
}

func (f *Fake) DeletePlaylist(ctx context.Context, uri string) error {
	if err := f.enter(ctx, "DeletePlaylist"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.playlists, uri)
	return nil
}

// LibraryOnly exposes only the Library capability of a Fake.
type LibraryOnly struct {
	f *Fake
}

// NewLibraryOnly wraps f.
func NewLibraryOnly(f *Fake) *LibraryOnly { return &LibraryOnly{f: f} }

func (l *LibraryOnly) Name() string      { return l.f.Name() }
func (l *LibraryOnly) Schemes() []string { return l.f.Schemes() }

func (l *LibraryOnly) Lookup(ctx context.Context, uri string) ([]media.Track, error) {
	return l.f.Lookup(ctx, uri)
}

func (l *LibraryOnly) Search(ctx context.Context, query media.Query, uris []string) ([]media.Track, error) {
	return l.f.Search(ctx, query, uris)
}
