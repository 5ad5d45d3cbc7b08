// Package artwork finds cover images for local tracks: embedded pictures
// first, then image files in the track's folder or its parents.
package artwork

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-mediacore/internal/errors"
)

// ErrNoArtwork is returned when no artwork is found.
var ErrNoArtwork = errors.New("no artwork found")

// Image is a resolved cover image.
type Image struct {
	Data     []byte
	MimeType string
	Source   string // "embedded" or "folder"
	Path     string // image file, empty for embedded pictures
}

// Resolver resolves artwork for tracks under a set of media directories.
type Resolver struct {
	dirs   []string
	finder *FilesystemFinder
}

// NewResolver creates a resolver restricted to dirs.
func NewResolver(dirs ...string) *Resolver {
	abs := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if a, err := filepath.Abs(d); err == nil {
			abs = append(abs, filepath.Clean(a))
		}
	}
	return &Resolver{dirs: abs, finder: NewFilesystemFinder(3)}
}

// root returns the media directory containing path.
func (r *Resolver) root(path string) (string, bool) {
	for _, d := range r.dirs {
		if path == d || strings.HasPrefix(path, d+string(filepath.Separator)) {
			return d, true
		}
	}
	return "", false
}

// Resolve returns the artwork for the track at path, an absolute file
// path inside one of the media directories.
func (r *Resolver) Resolve(path string) (*Image, error) {
	if path == "" || !filepath.IsAbs(path) {
		return nil, errors.Lookup("artwork", "path %q is not absolute", path)
	}
	path = filepath.Clean(path)
	root, ok := r.root(path)
	if !ok {
		return nil, errors.Lookup("artwork", "path %q is outside the media directories", path)
	}

	if img := embedded(path); img != nil {
		return img, nil
	}

	start := path
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		start = filepath.Dir(path)
	}
	if artPath := r.finder.FindArtwork(start, root); artPath != "" {
		data, err := os.ReadFile(artPath)
		if err != nil {
			return nil, errors.Wrap(errors.ErrLookup, "artwork", err)
		}
		return &Image{Data: data, MimeType: DetectMimeType(data), Source: "folder", Path: artPath}, nil
	}

	return nil, errors.Wrap(errors.ErrLookup, "artwork", ErrNoArtwork)
}

// embedded reads a picture from the file's tags.
func embedded(path string) *Image {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil
	}
	pic := m.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return nil
	}

	mime := pic.MIMEType
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = DetectMimeType(pic.Data)
	}
	log.Debug().Str("path", path).Str("mime", mime).Msg("Using embedded artwork")
	return &Image{Data: pic.Data, MimeType: mime, Source: "embedded"}
}

// DetectMimeType detects the image MIME type from magic bytes.
func DetectMimeType(data []byte) string {
	if len(data) < 4 {
		return "application/octet-stream"
	}

	// JPEG: starts with FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}

	// PNG: starts with 89 50 4E 47 0D 0A 1A 0A
	if len(data) >= 8 &&
		data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G' &&
		data[4] == 0x0D && data[5] == 0x0A && data[6] == 0x1A && data[7] == 0x0A {
		return "image/png"
	}

	// GIF: starts with GIF87a or GIF89a
	if data[0] == 'G' && data[1] == 'I' && data[2] == 'F' && data[3] == '8' {
		return "image/gif"
	}

	// WebP: starts with RIFF....WEBP
	if len(data) >= 12 &&
		data[0] == 'R' && data[1] == 'I' && data[2] == 'F' && data[3] == 'F' &&
		data[8] == 'W' && data[9] == 'E' && data[10] == 'B' && data[11] == 'P' {
		return "image/webp"
	}

	return "application/octet-stream"
}
