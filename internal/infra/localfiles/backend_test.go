package localfiles

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
	"github.com/edumarques81/stellar-mediacore/internal/errors"
)

func TestIsAudioFile(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		expected bool
	}{
		// Common audio formats
		{"FLAC file", "Music/Album/01-Track.flac", true},
		{"MP3 file", "Music/Album/track.mp3", true},
		{"WAV file", "path/to/file.wav", true},
		{"AIFF file", "file.aiff", true},
		{"OGG file", "music.ogg", true},
		{"M4A file", "song.m4a", true},

		// High-res formats
		{"DSF file", "NAS/MusicLibrary/Album/01-Track.dsf", true},
		{"DFF file", "music/track.dff", true},

		// Case insensitivity
		{"Uppercase FLAC", "track.FLAC", true},
		{"Mixed case DSF", "track.DsF", true},

		// Non-audio files
		{"Text file", "readme.txt", false},
		{"Image file", "cover.jpg", false},
		{"Playlist file", "playlist.m3u", false},
		{"Directory", "Music/Album", false},
		{"No extension", "filename", false},
		{"Hidden file", ".hidden", false},

		// Edge cases
		{"Empty string", "", false},
		{"Path with dots", "artist.name/album.title/track.flac", true},
		{"Space in name", "01 - Black Coffee .dsf", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isAudioFile(tt.uri)
			if result != tt.expected {
				t.Errorf("isAudioFile(%q) = %v, want %v", tt.uri, result, tt.expected)
			}
		})
	}
}

// id3File builds a minimal ID3v2.3 tagged file.
func id3File(title, artist, album string) []byte {
	frame := func(id, value string) []byte {
		data := append([]byte{0x00}, value...)
		size := len(data)
		out := []byte(id)
		out = append(out, byte(size>>24), byte(size>>16), byte(size>>8), byte(size))
		out = append(out, 0x00, 0x00)
		return append(out, data...)
	}

	var frames []byte
	frames = append(frames, frame("TIT2", title)...)
	frames = append(frames, frame("TPE1", artist)...)
	frames = append(frames, frame("TALB", album)...)

	n := len(frames)
	header := []byte{'I', 'D', '3', 0x03, 0x00, 0x00,
		byte(n>>21) & 0x7f, byte(n>>14) & 0x7f, byte(n>>7) & 0x7f, byte(n) & 0x7f}
	out := append(header, frames...)
	return append(out, make([]byte, 128)...)
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func newLibrary(t *testing.T) (string, *Backend) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Artist", "Album", "01 Intro.mp3"), id3File("Intro", "The Band", "First Album"))
	writeFile(t, filepath.Join(root, "Artist", "Album", "02 Closer.mp3"), id3File("Closer", "The Band", "First Album"))
	writeFile(t, filepath.Join(root, "Artist", "Album", "cover.jpg"), []byte("not audio"))
	writeFile(t, filepath.Join(root, "Loose", "untagged track.flac"), []byte("garbage"))
	writeFile(t, filepath.Join(root, ".hidden", "secret.mp3"), id3File("Secret", "Nobody", "None"))
	return root, NewBackend(root)
}

func TestURIRoundTrip(t *testing.T) {
	uri := PathToURI("/music/My Album/01 #1.flac")
	assert.Equal(t, Scheme, media.Scheme(uri))

	p, err := URIToPath(uri)
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/music/My Album/01 #1.flac"), p)

	_, err = URIToPath("mpd:foo")
	assert.True(t, errors.Is(err, errors.ErrLookup))
}

func TestLookupFileReadsTags(t *testing.T) {
	root, b := newLibrary(t)

	tracks, err := b.Lookup(context.Background(), PathToURI(filepath.Join(root, "Artist", "Album", "01 Intro.mp3")))
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "Intro", tracks[0].Name)
	assert.Equal(t, "The Band", tracks[0].Artist())
	assert.Equal(t, "First Album", tracks[0].Album)
}

func TestLookupDirectory(t *testing.T) {
	root, b := newLibrary(t)

	tracks, err := b.Lookup(context.Background(), PathToURI(root))
	require.NoError(t, err)

	var names []string
	for _, tr := range tracks {
		names = append(names, tr.Name)
	}
	assert.Equal(t, []string{"Intro", "Closer", "untagged track"}, names, "path order, hidden dirs and non-audio skipped")
}

func TestLookupOutsideMediaDirs(t *testing.T) {
	_, b := newLibrary(t)
	outside := filepath.Join(t.TempDir(), "x.mp3")
	writeFile(t, outside, id3File("X", "Y", "Z"))

	_, err := b.Lookup(context.Background(), PathToURI(outside))
	assert.True(t, errors.Is(err, errors.ErrLookup))

	_, err = b.TranslateURI(context.Background(), PathToURI(outside))
	assert.True(t, errors.Is(err, errors.ErrLookup))
}

func TestSearch(t *testing.T) {
	root, b := newLibrary(t)
	ctx := context.Background()

	tracks, err := b.Search(ctx, media.Query{"artist": {"band"}, "track_name": {"clo"}}, nil)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "Closer", tracks[0].Name)

	tracks, err = b.Search(ctx, media.Query{"any": {"untagged"}}, []string{PathToURI(filepath.Join(root, "Artist"))})
	require.NoError(t, err)
	assert.Empty(t, tracks)

	tracks, err = b.Search(ctx, media.Query{"unknown_field": {"x"}}, nil)
	require.NoError(t, err)
	assert.Empty(t, tracks)
}

func TestTranslateURIPassesThrough(t *testing.T) {
	root, b := newLibrary(t)
	uri := PathToURI(filepath.Join(root, "Loose", "untagged track.flac"))

	got, err := b.TranslateURI(context.Background(), uri)
	require.NoError(t, err)
	assert.Equal(t, uri, got)
}

func TestTranslateURIRelativeToMusicDir(t *testing.T) {
	root, b := newLibrary(t)
	ctx := context.Background()
	b.SetMusicDir(filepath.Dir(root))

	got, err := b.TranslateURI(ctx, PathToURI(filepath.Join(root, "Loose", "untagged track.flac")))
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(root)+"/Loose/untagged track.flac", got)

	b.SetMusicDir(filepath.Join(root, "Artist"))
	_, err = b.TranslateURI(ctx, PathToURI(filepath.Join(root, "Loose", "untagged track.flac")))
	assert.True(t, errors.Is(err, errors.ErrLookup), "file outside the music directory")
}

func TestTagCacheRefreshesOnChange(t *testing.T) {
	root, b := newLibrary(t)
	p := filepath.Join(root, "Artist", "Album", "01 Intro.mp3")
	ctx := context.Background()

	_, err := b.Lookup(ctx, PathToURI(p))
	require.NoError(t, err)

	writeFile(t, p, id3File("Renamed", "The Band", "First Album"))
	later := mustStat(t, p).ModTime().Add(2e9)
	require.NoError(t, os.Chtimes(p, later, later))

	tracks, err := b.Lookup(ctx, PathToURI(p))
	require.NoError(t, err)
	assert.Equal(t, "Renamed", tracks[0].Name)
}

func mustStat(t *testing.T, p string) os.FileInfo {
	t.Helper()
	info, err := os.Stat(p)
	require.NoError(t, err)
	return info
}
