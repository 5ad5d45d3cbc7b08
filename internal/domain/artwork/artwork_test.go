package artwork

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/edumarques81/stellar-mediacore/internal/errors"
)

var pngData = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 1, 2, 3, 4}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

// id3WithPicture builds an ID3v2.3 tag holding a TIT2 frame and an APIC
// frame with pic, followed by padding standing in for audio.
func id3WithPicture(pic []byte) []byte {
	frame := func(id string, body []byte) []byte {
		n := len(body)
		h := []byte(id)
		h = append(h, byte(n>>24), byte(n>>16), byte(n>>8), byte(n), 0, 0)
		return append(h, body...)
	}

	var frames []byte
	frames = append(frames, frame("TIT2", append([]byte{0}, "Cover Song"...))...)
	apic := []byte{0}
	apic = append(apic, "image/png"...)
	apic = append(apic, 0, 3, 0)
	apic = append(apic, pic...)
	frames = append(frames, frame("APIC", apic)...)

	n := len(frames)
	header := []byte{'I', 'D', '3', 3, 0, 0,
		byte(n >> 21 & 0x7f), byte(n >> 14 & 0x7f), byte(n >> 7 & 0x7f), byte(n & 0x7f)}
	out := append(header, frames...)
	return append(out, make([]byte, 128)...)
}

func TestFilesystemFinder_CoverInTrackDir(t *testing.T) {
	musicDir := filepath.Join(t.TempDir(), "music")
	albumDir := filepath.Join(musicDir, "Artist", "Album")
	coverPath := filepath.Join(albumDir, "cover.jpg")
	writeFile(t, coverPath, []byte("fake image data"))
	writeFile(t, filepath.Join(albumDir, "01-track.flac"), []byte("fake audio data"))

	result := NewFilesystemFinder(3).FindArtwork(albumDir, musicDir)
	if result != coverPath {
		t.Errorf("Expected %s, got %s", coverPath, result)
	}
}

func TestFilesystemFinder_CoverInParentDir(t *testing.T) {
	// Album/cover.jpg
	// Album/CD1/track.flac
	musicDir := filepath.Join(t.TempDir(), "music")
	albumDir := filepath.Join(musicDir, "Artist", "Album")
	coverPath := filepath.Join(albumDir, "cover.jpg")
	writeFile(t, coverPath, []byte("fake image data"))
	writeFile(t, filepath.Join(albumDir, "CD1", "01-track.flac"), []byte("fake audio data"))

	result := NewFilesystemFinder(3).FindArtwork(filepath.Join(albumDir, "CD1"), musicDir)
	if result != coverPath {
		t.Errorf("Expected %s, got %s", coverPath, result)
	}
}

func TestFilesystemFinder_AlternateFilenames(t *testing.T) {
	for _, filename := range []string{"folder.jpg", "front.png", "album.webp", "artwork.jpeg"} {
		t.Run(filename, func(t *testing.T) {
			musicDir := filepath.Join(t.TempDir(), "music")
			albumDir := filepath.Join(musicDir, "Album")
			coverPath := filepath.Join(albumDir, filename)
			writeFile(t, coverPath, []byte("fake image data"))

			if result := NewFilesystemFinder(3).FindArtwork(albumDir, musicDir); result != coverPath {
				t.Errorf("Expected %s, got %s", coverPath, result)
			}
		})
	}
}

func TestFilesystemFinder_PriorityOrder(t *testing.T) {
	musicDir := filepath.Join(t.TempDir(), "music")
	albumDir := filepath.Join(musicDir, "Album")
	writeFile(t, filepath.Join(albumDir, "front.jpg"), []byte("front"))
	writeFile(t, filepath.Join(albumDir, "folder.jpg"), []byte("folder"))
	coverPath := filepath.Join(albumDir, "cover.png")
	writeFile(t, coverPath, []byte("cover"))

	if result := NewFilesystemFinder(3).FindArtwork(albumDir, musicDir); result != coverPath {
		t.Errorf("Expected cover to win, got %s", result)
	}
}

func TestFilesystemFinder_AnyImageFallback(t *testing.T) {
	musicDir := filepath.Join(t.TempDir(), "music")
	albumDir := filepath.Join(musicDir, "Album")
	writeFile(t, filepath.Join(albumDir, "._scan.jpg"), []byte("resource fork"))
	scanPath := filepath.Join(albumDir, "scan.jpg")
	writeFile(t, scanPath, []byte("scan"))

	if result := NewFilesystemFinder(3).FindArtwork(albumDir, musicDir); result != scanPath {
		t.Errorf("Expected %s, got %s", scanPath, result)
	}
}

func TestFilesystemFinder_DoesNotSearchOutsideRoot(t *testing.T) {
	tmpDir := t.TempDir()
	musicDir := filepath.Join(tmpDir, "music")
	albumDir := filepath.Join(musicDir, "Album")
	writeFile(t, filepath.Join(tmpDir, "cover.jpg"), []byte("outside"))
	writeFile(t, filepath.Join(albumDir, "01.flac"), []byte("audio"))

	if result := NewFilesystemFinder(5).FindArtwork(albumDir, musicDir); result != "" {
		t.Errorf("Expected no artwork, got %s", result)
	}
}

func TestFilesystemFinder_MaxLevels(t *testing.T) {
	musicDir := filepath.Join(t.TempDir(), "music")
	deep := filepath.Join(musicDir, "a", "b", "c")
	writeFile(t, filepath.Join(musicDir, "cover.jpg"), []byte("root cover"))
	writeFile(t, filepath.Join(deep, "01.flac"), []byte("audio"))

	if result := NewFilesystemFinder(1).FindArtwork(deep, musicDir); result != "" {
		t.Errorf("Expected no artwork within 1 level, got %s", result)
	}
	if result := NewFilesystemFinder(3).FindArtwork(deep, musicDir); result == "" {
		t.Error("Expected root cover within 3 levels")
	}
}

func TestResolver_PrefersEmbeddedPicture(t *testing.T) {
	musicDir := t.TempDir()
	track := filepath.Join(musicDir, "Album", "01.mp3")
	writeFile(t, track, id3WithPicture(pngData))
	writeFile(t, filepath.Join(musicDir, "Album", "cover.jpg"), []byte{0xFF, 0xD8, 0xFF, 0xE0})

	img, err := NewResolver(musicDir).Resolve(track)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if img.Source != "embedded" {
		t.Errorf("Source = %q, want embedded", img.Source)
	}
	if img.MimeType != "image/png" {
		t.Errorf("MimeType = %q, want image/png", img.MimeType)
	}
	if !bytes.Equal(img.Data, pngData) {
		t.Errorf("Data = %v, want %v", img.Data, pngData)
	}
}

func TestResolver_FallsBackToFolder(t *testing.T) {
	musicDir := t.TempDir()
	track := filepath.Join(musicDir, "Album", "01.flac")
	writeFile(t, track, []byte("not really audio"))
	coverPath := filepath.Join(musicDir, "Album", "cover.jpg")
	writeFile(t, coverPath, []byte{0xFF, 0xD8, 0xFF, 0xE0, 1})

	img, err := NewResolver(musicDir).Resolve(track)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if img.Source != "folder" || img.Path != coverPath {
		t.Errorf("got source %q path %q", img.Source, img.Path)
	}
	if img.MimeType != "image/jpeg" {
		t.Errorf("MimeType = %q, want image/jpeg", img.MimeType)
	}
}

func TestResolver_Rejections(t *testing.T) {
	musicDir := t.TempDir()
	outside := filepath.Join(t.TempDir(), "x.flac")
	writeFile(t, outside, []byte("audio"))
	bare := filepath.Join(musicDir, "Bare", "01.flac")
	writeFile(t, bare, []byte("audio"))

	r := NewResolver(musicDir)
	for _, path := range []string{"", "relative/01.flac", outside, filepath.Join(musicDir, "..", "escape.flac"), bare} {
		_, err := r.Resolve(path)
		if !errors.Is(err, errors.ErrLookup) {
			t.Errorf("Resolve(%q) error = %v, want lookup error", path, err)
		}
	}
	if _, err := r.Resolve(bare); !errors.Is(err, ErrNoArtwork) {
		t.Errorf("expected ErrNoArtwork, got %v", err)
	}
}

func TestDetectMimeType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"JPEG", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg"},
		{"PNG", pngData, "image/png"},
		{"GIF", []byte{'G', 'I', 'F', '8', '9', 'a'}, "image/gif"},
		{"WebP", []byte{'R', 'I', 'F', 'F', 0, 0, 0, 0, 'W', 'E', 'B', 'P'}, "image/webp"},
		{"Unknown", []byte{0x00, 0x01, 0x02, 0x03}, "application/octet-stream"},
		{"Short", []byte{0xFF}, "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := DetectMimeType(tt.data); result != tt.expected {
				t.Errorf("Expected mime type '%s', got '%s'", tt.expected, result)
			}
		})
	}
}
