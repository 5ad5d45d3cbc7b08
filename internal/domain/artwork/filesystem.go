package artwork

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// ArtworkFilenames defines common artwork filenames in priority order.
var ArtworkFilenames = []string{
	"cover",
	"folder",
	"front",
	"album",
	"artwork",
}

// ArtworkExtensions defines supported image extensions.
var ArtworkExtensions = []string{
	".jpg",
	".jpeg",
	".png",
	".webp",
}

// FilesystemFinder searches for artwork files on the filesystem.
type FilesystemFinder struct {
	maxLevels int // Maximum parent directories to search
}

// NewFilesystemFinder creates a finder that climbs at most maxLevels
// parent directories.
func NewFilesystemFinder(maxLevels int) *FilesystemFinder {
	if maxLevels < 0 {
		maxLevels = 0
	}
	return &FilesystemFinder{maxLevels: maxLevels}
}

// FindArtwork searches dir and then its parents, never leaving root.
// Returns the full path to the artwork file if found, empty string otherwise.
func (f *FilesystemFinder) FindArtwork(dir, root string) string {
	root = filepath.Clean(root)
	current := filepath.Clean(dir)

	for level := 0; level <= f.maxLevels; level++ {
		if current != root && !strings.HasPrefix(current, root+string(filepath.Separator)) {
			break // Don't search outside the media directory
		}

		if artPath := f.searchDirectory(current); artPath != "" {
			log.Debug().Str("artPath", artPath).Int("level", level).Msg("Found artwork file")
			return artPath
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return ""
}

// searchDirectory searches a single directory for artwork files.
func (f *FilesystemFinder) searchDirectory(dir string) string {
	// First, try known artwork filenames with priority order
	for _, name := range ArtworkFilenames {
		for _, ext := range ArtworkExtensions {
			candidates := []string{
				name + ext,
				strings.ToUpper(name[:1]) + name[1:] + ext, // Cover.jpg
				strings.ToUpper(name) + strings.ToUpper(ext),
			}
			for _, c := range candidates {
				if path := filepath.Join(dir, c); fileExists(path) {
					return path
				}
			}
		}
	}

	// If no standard names found, look for any image file
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		// Skip macOS AppleDouble resource fork files (._filename)
		if strings.HasPrefix(entry.Name(), "._") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, validExt := range ArtworkExtensions {
			if ext == validExt {
				return filepath.Join(dir, entry.Name())
			}
		}
	}

	return ""
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
