package media

import (
	"testing"
)

func TestScheme(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"file:/music/a.flac", "file"},
		{"MPD:Albums/x.flac", "mpd"},
		{"stored:1234", "stored"},
		{"no-scheme", ""},
		{":empty", ""},
		{"/abs/path:with-colon", ""},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			if got := Scheme(tt.uri); got != tt.want {
				t.Errorf("Scheme(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}

func TestTrackTitleFallsBackToFilename(t *testing.T) {
	tr := Track{URI: "file:/music/Artist/01 - Song.flac"}
	if got := tr.Title(); got != "01 - Song.flac" {
		t.Errorf("Title() = %q", got)
	}

	tr.Name = "Song"
	if got := tr.Title(); got != "Song" {
		t.Errorf("Title() = %q", got)
	}
}

func TestTrackType(t *testing.T) {
	if got := (Track{URI: "mpd:Music/a.DSF"}).TrackType(); got != "dsf" {
		t.Errorf("TrackType() = %q, want dsf", got)
	}
	if got := (Track{URI: "http://radio.example/stream"}).TrackType(); got != "" {
		t.Errorf("TrackType() = %q, want empty", got)
	}
}

func TestTrackArtist(t *testing.T) {
	tr := Track{Artists: []string{"A", "B"}}
	if got := tr.Artist(); got != "A, B" {
		t.Errorf("Artist() = %q", got)
	}
}
