package router

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-mediacore/internal/actor"
	"github.com/edumarques81/stellar-mediacore/internal/domain/backend"
	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
	"github.com/edumarques81/stellar-mediacore/internal/errors"
)

// BackendStatus describes one registered backend.
type BackendStatus struct {
	Name         string               `json:"name"`
	Schemes      []string             `json:"schemes"`
	Capabilities []backend.Capability `json:"capabilities"`
	Available    bool                 `json:"available"`
	Error        string               `json:"error,omitempty"`
}

// Router dispatches capability queries to backends. Queries fan out
// concurrently; a failing or slow backend is excluded from the merge
// without affecting the others.
type Router struct {
	reg *Registry

	mu     sync.RWMutex
	causes map[string]error
}

// New creates a router over reg and starts watching every backend actor.
func New(reg *Registry) *Router {
	r := &Router{
		reg:    reg,
		causes: make(map[string]error),
	}
	for _, d := range reg.Backends() {
		actor.Watch(d.Ref(), func(cause error) {
			r.mu.Lock()
			r.causes[d.Name()] = cause
			r.mu.Unlock()
			if cause != nil {
				log.Error().Err(cause).Str("backend", d.Name()).Msg("Backend terminated, marking unavailable")
			} else {
				log.Info().Str("backend", d.Name()).Msg("Backend stopped")
			}
		})
	}
	return r
}

// Registry returns the backing registry.
func (r *Router) Registry() *Registry { return r.reg }

// Backends reports the status of every backend in registration order.
func (r *Router) Backends() []BackendStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]BackendStatus, 0, len(r.reg.backends))
	for _, d := range r.reg.backends {
		st := BackendStatus{
			Name:         d.Name(),
			Schemes:      d.Schemes(),
			Capabilities: d.Capabilities(),
			Available:    d.Alive(),
		}
		if cause := r.causes[d.Name()]; cause != nil {
			st.Error = cause.Error()
		}
		out = append(out, st)
	}
	return out
}

// live filters out terminated backends and those lacking c.
func live(descs []*backend.Descriptor, c backend.Capability) []*backend.Descriptor {
	out := make([]*backend.Descriptor, 0, len(descs))
	for _, d := range descs {
		if d.Has(c) && d.Alive() {
			out = append(out, d)
		}
	}
	return out
}

// claimants returns the live backends serving uri's scheme with capability c.
func (r *Router) claimants(op, uri string, c backend.Capability) ([]*backend.Descriptor, error) {
	scheme := media.Scheme(uri)
	if scheme == "" {
		return nil, errors.Lookup(op, "uri %q has no scheme", uri)
	}
	claimed := r.reg.ForScheme(scheme)
	if len(claimed) == 0 {
		return nil, errors.Lookup(op, "no backend claims scheme %q", scheme)
	}
	descs := live(claimed, c)
	if len(descs) == 0 {
		return nil, errors.Lookup(op, "no available %s backend for scheme %q", c, scheme)
	}
	return descs, nil
}

// fanOut runs call against every backend concurrently and concatenates the
// successful results in registration order. It fails only when every backend
// failed.
func fanOut[T any](ctx context.Context, op string, descs []*backend.Descriptor, call func(context.Context, *backend.Descriptor) ([]T, error)) ([]T, error) {
	results := make([][]T, len(descs))
	errs := make([]error, len(descs))

	var wg sync.WaitGroup
	for i, d := range descs {
		wg.Add(1)
		go func(i int, d *backend.Descriptor) {
			defer wg.Done()
			results[i], errs[i] = call(ctx, d)
		}(i, d)
	}
	wg.Wait()

	var merged []T
	var failures []error
	ok := 0
	for i, d := range descs {
		if errs[i] != nil {
			log.Warn().Err(errs[i]).Str("backend", d.Name()).Str("op", op).Msg("Backend excluded from result")
			failures = append(failures, errs[i])
			continue
		}
		ok++
		merged = append(merged, results[i]...)
	}

	if ok == 0 && len(descs) > 0 {
		return nil, errors.Wrap(errors.ErrLookup, op, errors.Join(failures...))
	}
	return merged, nil
}

// Lookup resolves uri with every library backend claiming its scheme.
func (r *Router) Lookup(ctx context.Context, uri string) ([]media.Track, error) {
	descs, err := r.claimants("lookup", uri, backend.CapLibrary)
	if err != nil {
		return nil, err
	}
	return fanOut(ctx, "lookup", descs, func(ctx context.Context, d *backend.Descriptor) ([]media.Track, error) {
		return d.Lookup(ctx, uri)
	})
}

// LookupMany resolves several URIs concurrently. URIs that fail are omitted
// from the result; the call fails only when none resolved.
func (r *Router) LookupMany(ctx context.Context, uris []string) (map[string][]media.Track, error) {
	out := make(map[string][]media.Track, len(uris))
	if len(uris) == 0 {
		return out, nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	var lastErr error
	for _, uri := range uris {
		wg.Add(1)
		go func(uri string) {
			defer wg.Done()
			tracks, err := r.Lookup(ctx, uri)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				return
			}
			out[uri] = tracks
		}(uri)
	}
	wg.Wait()

	if len(out) == 0 {
		return nil, lastErr
	}
	return out, nil
}

// Search queries library backends. With uris set, each backend only sees
// the URIs of its own schemes and backends without any are skipped.
func (r *Router) Search(ctx context.Context, query media.Query, uris []string) ([]media.Track, error) {
	descs := live(r.reg.backends, backend.CapLibrary)
	perBackend := make(map[string][]string)

	if len(uris) > 0 {
		var targeted []*backend.Descriptor
		for _, d := range descs {
			for _, u := range uris {
				if d.Claims(media.Scheme(u)) {
					perBackend[d.Name()] = append(perBackend[d.Name()], u)
				}
			}
			if len(perBackend[d.Name()]) > 0 {
				targeted = append(targeted, d)
			}
		}
		descs = targeted
	}

	if len(descs) == 0 {
		return nil, errors.Lookup("search", "no available library backend")
	}
	return fanOut(ctx, "search", descs, func(ctx context.Context, d *backend.Descriptor) ([]media.Track, error) {
		return d.Search(ctx, query, perBackend[d.Name()])
	})
}

// Playlists lists the playlists of every playlists backend.
func (r *Router) Playlists(ctx context.Context) ([]media.Playlist, error) {
	descs := live(r.reg.backends, backend.CapPlaylists)
	if len(descs) == 0 {
		return nil, errors.Lookup("playlists", "no available playlists backend")
	}
	return fanOut(ctx, "playlists", descs, func(ctx context.Context, d *backend.Descriptor) ([]media.Playlist, error) {
		return d.Playlists(ctx)
	})
}

// LookupPlaylist returns the playlist at uri from the first claimant, in
// registration order, that has it.
func (r *Router) LookupPlaylist(ctx context.Context, uri string) (media.Playlist, error) {
	descs, err := r.claimants("lookup_playlist", uri, backend.CapPlaylists)
	if err != nil {
		return media.Playlist{}, err
	}
	found, err := fanOut(ctx, "lookup_playlist", descs, func(ctx context.Context, d *backend.Descriptor) ([]media.Playlist, error) {
		pl, err := d.LookupPlaylist(ctx, uri)
		if err != nil {
			return nil, err
		}
		return []media.Playlist{pl}, nil
	})
	if err != nil {
		return media.Playlist{}, err
	}
	if len(found) == 0 {
		return media.Playlist{}, errors.Lookup("lookup_playlist", "playlist %q not found", uri)
	}
	return found[0], nil
}

// CreatePlaylist creates a playlist on the first playlists backend claiming
// scheme, or on the first playlists backend when scheme is empty.
func (r *Router) CreatePlaylist(ctx context.Context, name, scheme string) (media.Playlist, error) {
	var descs []*backend.Descriptor
	if scheme == "" {
		descs = live(r.reg.backends, backend.CapPlaylists)
	} else {
		descs = live(r.reg.ForScheme(scheme), backend.CapPlaylists)
	}
	if len(descs) == 0 {
		return media.Playlist{}, errors.Lookup("create_playlist", "no available playlists backend for scheme %q", scheme)
	}
	pl, err := descs[0].CreatePlaylist(ctx, name)
	if err != nil {
		return media.Playlist{}, errors.Wrap(errors.ErrLookup, "create_playlist", err)
	}
	return pl, nil
}

// SavePlaylist persists pl with the first backend claiming its URI scheme.
func (r *Router) SavePlaylist(ctx context.Context, pl media.Playlist) (media.Playlist, error) {
	descs, err := r.claimants("save_playlist", pl.URI, backend.CapPlaylists)
	if err != nil {
		return media.Playlist{}, err
	}
	saved, err := descs[0].SavePlaylist(ctx, pl)
	if err != nil {
		return media.Playlist{}, errors.Wrap(errors.ErrLookup, "save_playlist", err)
	}
	return saved, nil
}

// DeletePlaylist deletes the playlist at uri from the first claimant.
func (r *Router) DeletePlaylist(ctx context.Context, uri string) error {
	descs, err := r.claimants("delete_playlist", uri, backend.CapPlaylists)
	if err != nil {
		return err
	}
	if err := descs[0].DeletePlaylist(ctx, uri); err != nil {
		return errors.Wrap(errors.ErrLookup, "delete_playlist", err)
	}
	return nil
}

// TranslateURI returns the engine URI for uri from the first playback
// backend, in registration order, that translates it.
func (r *Router) TranslateURI(ctx context.Context, uri string) (string, error) {
	descs, err := r.claimants("translate_uri", uri, backend.CapPlayback)
	if err != nil {
		return "", err
	}

	var failures []error
	for _, d := range descs {
		out, err := d.TranslateURI(ctx, uri)
		if err == nil && out != "" {
			return out, nil
		}
		if err != nil {
			log.Warn().Err(err).Str("backend", d.Name()).Str("uri", uri).Msg("URI translation failed")
			failures = append(failures, err)
		}
	}
	return "", errors.Wrap(errors.ErrLookup, "translate_uri", errors.Join(failures...))
}
