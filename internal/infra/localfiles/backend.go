// Package localfiles serves audio files from local media directories under
// file: URIs.
package localfiles

import (
	"context"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
	"github.com/edumarques81/stellar-mediacore/internal/errors"
)

// Scheme is the URI scheme served by the backend.
const Scheme = "file"

// Backend reads track metadata from files below the configured media
// directories. Its methods run inside the backend actor, one at a time.
type Backend struct {
	dirs     []string
	musicDir string
	cache    map[string]cached
}

type cached struct {
	modTime time.Time
	track   media.Track
}

// NewBackend creates a backend over dirs.
func NewBackend(dirs ...string) *Backend {
	clean := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if abs, err := filepath.Abs(d); err == nil {
			clean = append(clean, abs)
		}
	}
	return &Backend{dirs: clean, cache: make(map[string]cached)}
}

// SetMusicDir makes TranslateURI hand out paths relative to dir, the
// daemon's music directory, instead of file: URIs. Used when the engine
// cannot open local files directly.
func (b *Backend) SetMusicDir(dir string) {
	if abs, err := filepath.Abs(dir); err == nil {
		b.musicDir = abs
	}
}

func (b *Backend) Name() string      { return "local" }
func (b *Backend) Schemes() []string { return []string{Scheme} }

// PathToURI returns the file: URI of an absolute path.
func PathToURI(p string) string {
	return (&url.URL{Scheme: Scheme, Path: filepath.ToSlash(p)}).String()
}

// URIToPath returns the local path of a file: URI.
func URIToPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", errors.Lookup("uri", "invalid uri %q: %v", uri, err)
	}
	if u.Scheme != Scheme || u.Path == "" {
		return "", errors.Lookup("uri", "%q is not a file uri", uri)
	}
	return filepath.FromSlash(u.Path), nil
}

// allowed reports whether p lies within a media directory.
func (b *Backend) allowed(p string) bool {
	for _, dir := range b.dirs {
		if p == dir || strings.HasPrefix(p, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (b *Backend) resolve(uri string) (string, error) {
	p, err := URIToPath(uri)
	if err != nil {
		return "", err
	}
	p = filepath.Clean(p)
	if !b.allowed(p) {
		return "", errors.Lookup("lookup", "%s is outside the media directories", p)
	}
	return p, nil
}

// Lookup returns the track for a file URI, or every audio file below a
// directory URI in path order.
func (b *Backend) Lookup(ctx context.Context, uri string) ([]media.Track, error) {
	p, err := b.resolve(uri)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, errors.Wrap(errors.ErrLookup, "lookup", err)
	}

	if !info.IsDir() {
		if !isAudioFile(p) {
			return nil, errors.Lookup("lookup", "%s is not an audio file", p)
		}
		return []media.Track{b.track(p, info)}, nil
	}
	return b.scan(ctx, p)
}

// Search matches query against the tags of every audio file below the
// media directories, or below uris when given.
func (b *Backend) Search(ctx context.Context, query media.Query, uris []string) ([]media.Track, error) {
	roots := b.dirs
	if len(uris) > 0 {
		roots = nil
		for _, uri := range uris {
			if p, err := b.resolve(uri); err == nil {
				roots = append(roots, p)
			}
		}
	}

	var out []media.Track
	for _, root := range roots {
		tracks, err := b.scan(ctx, root)
		if err != nil {
			log.Warn().Err(err).Str("dir", root).Msg("Failed to scan media directory")
			continue
		}
		for _, tr := range tracks {
			if matches(tr, query) {
				out = append(out, tr)
			}
		}
	}
	return out, nil
}

// TranslateURI returns the file URI itself, or the path relative to the
// music directory when one is set.
func (b *Backend) TranslateURI(ctx context.Context, uri string) (string, error) {
	p, err := b.resolve(uri)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		return "", errors.Wrap(errors.ErrLookup, "translate_uri", err)
	}
	if b.musicDir == "" {
		return uri, nil
	}

	rel, err := filepath.Rel(b.musicDir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Lookup("translate_uri", "%s is outside the music directory %s", p, b.musicDir)
	}
	return filepath.ToSlash(rel), nil
}

func (b *Backend) scan(ctx context.Context, root string) ([]media.Track, error) {
	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Debug().Err(err).Str("path", p).Msg("Skipping unreadable path")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() && strings.HasPrefix(d.Name(), ".") && p != root {
			return filepath.SkipDir
		}
		if !d.IsDir() && isAudioFile(p) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	tracks := make([]media.Track, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		tracks = append(tracks, b.track(p, info))
	}
	return tracks, nil
}

// track reads the tags of p, reusing the cached result while the file is
// unchanged.
func (b *Backend) track(p string, info fs.FileInfo) media.Track {
	if c, ok := b.cache[p]; ok && c.modTime.Equal(info.ModTime()) {
		return c.track
	}
	tr := readTrack(p)
	b.cache[p] = cached{modTime: info.ModTime(), track: tr}
	return tr
}

// readTrack builds a track from the file's tags. Files without readable
// tags get their file name as title.
func readTrack(p string) media.Track {
	tr := media.Track{URI: PathToURI(p)}

	f, err := os.Open(p)
	if err != nil {
		log.Debug().Err(err).Str("path", p).Msg("Failed to open audio file")
		return tr
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		name := filepath.Base(p)
		tr.Name = strings.TrimSuffix(name, filepath.Ext(name))
		return tr
	}

	tr.Name = m.Title()
	if tr.Name == "" {
		name := filepath.Base(p)
		tr.Name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	tr.Album = m.Album()
	if artist := m.Artist(); artist != "" {
		tr.Artists = []string{artist}
	} else if artist := m.AlbumArtist(); artist != "" {
		tr.Artists = []string{artist}
	}
	tr.TrackNo, _ = m.Track()

	meta := map[string]string{}
	if g := m.Genre(); g != "" {
		meta["genre"] = g
	}
	if aa := m.AlbumArtist(); aa != "" {
		meta["albumartist"] = aa
	}
	if len(meta) > 0 {
		tr.Meta = meta
	}
	return tr
}

// matches reports whether tr satisfies every field of query; within a
// field any value may match.
func matches(tr media.Track, query media.Query) bool {
	if len(query) == 0 {
		return false
	}
	for field, values := range query {
		var candidates []string
		switch field {
		case "any":
			candidates = append([]string{tr.Name, tr.Album, tr.URI}, tr.Artists...)
		case "artist", "albumartist":
			candidates = tr.Artists
		case "album":
			candidates = []string{tr.Album}
		case "track_name", "title":
			candidates = []string{tr.Name}
		case "uri":
			candidates = []string{tr.URI}
		case "genre":
			candidates = []string{tr.Meta["genre"]}
		default:
			return false
		}
		if !containsAny(candidates, values) {
			return false
		}
	}
	return true
}

func containsAny(candidates, values []string) bool {
	for _, v := range values {
		v = strings.ToLower(v)
		for _, c := range candidates {
			if c != "" && strings.Contains(strings.ToLower(c), v) {
				return true
			}
		}
	}
	return false
}

func isAudioFile(filePath string) bool {
	ext := strings.ToLower(path.Ext(filePath))
	audioExtensions := map[string]bool{
		".flac": true, ".mp3": true, ".wav": true, ".aiff": true,
		".aif": true, ".ogg": true, ".m4a": true, ".aac": true,
		".wma": true, ".dsf": true, ".dff": true, ".dsd": true,
		".ape": true, ".wv": true, ".mpc": true, ".opus": true,
		".alac": true,
	}
	return audioExtensions[ext]
}
