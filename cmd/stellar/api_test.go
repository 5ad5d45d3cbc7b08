package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/edumarques81/stellar-mediacore/internal/domain/artwork"
	"github.com/edumarques81/stellar-mediacore/internal/domain/player"
	"github.com/edumarques81/stellar-mediacore/internal/domain/router"
	"github.com/edumarques81/stellar-mediacore/internal/events"
)

type stubCore struct {
	state    *player.State
	err      error
	backends []router.BackendStatus
}

func (s *stubCore) Status(ctx context.Context) (*player.State, error) { return s.state, s.err }
func (s *stubCore) Backends() []router.BackendStatus                   { return s.backends }
func (s *stubCore) Subscribers() []events.SubscriberInfo {
	return []events.SubscriberInfo{{ID: "1", Name: "socketio"}}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	core := &stubCore{
		state:    &player.State{Status: player.StatusStop},
		backends: []router.BackendStatus{{Name: "local", Available: true}, {Name: "mpd"}},
	}

	rec := get(t, newMux(core, nil), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["backends"] != float64(1) {
		t.Errorf("backends = %v, want 1", body["backends"])
	}

	core.backends[0].Available = false
	if rec := get(t, newMux(core, nil), "/health"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no backends: status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	core.err = errors.New("core down")
	if rec := get(t, newMux(core, nil), "/health"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("core error: status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestGetState(t *testing.T) {
	core := &stubCore{state: &player.State{Status: player.StatusPlay, Title: "Closer", Volume: 40}}

	rec := get(t, newMux(core, nil), "/api/v1/getState")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "play" || body["title"] != "Closer" || body["volume"] != float64(40) {
		t.Errorf("unexpected state %v", body)
	}

	core.err = errors.New("timeout")
	if rec := get(t, newMux(core, nil), "/api/v1/getState"); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestVersionAndIntrospection(t *testing.T) {
	core := &stubCore{backends: []router.BackendStatus{{Name: "stored", Schemes: []string{"stored"}, Available: true}}}
	mux := newMux(core, nil)

	var info map[string]any
	if err := json.Unmarshal(get(t, mux, "/api/v1/version").Body.Bytes(), &info); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if info["name"] != "Stellar" {
		t.Errorf("name = %v", info["name"])
	}

	var backends []router.BackendStatus
	if err := json.Unmarshal(get(t, mux, "/api/v1/backends").Body.Bytes(), &backends); err != nil {
		t.Fatalf("decode backends: %v", err)
	}
	if len(backends) != 1 || backends[0].Name != "stored" {
		t.Errorf("backends = %+v", backends)
	}

	var listeners []events.SubscriberInfo
	if err := json.Unmarshal(get(t, mux, "/api/v1/listeners").Body.Bytes(), &listeners); err != nil {
		t.Fatalf("decode listeners: %v", err)
	}
	if len(listeners) != 1 || listeners[0].Name != "socketio" {
		t.Errorf("listeners = %+v", listeners)
	}
}

func TestAlbumArt(t *testing.T) {
	musicDir := t.TempDir()
	albumDir := filepath.Join(musicDir, "Album")
	if err := os.MkdirAll(albumDir, 0755); err != nil {
		t.Fatal(err)
	}
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2}
	if err := os.WriteFile(filepath.Join(albumDir, "cover.jpg"), jpeg, 0644); err != nil {
		t.Fatal(err)
	}
	track := filepath.Join(albumDir, "01.flac")
	if err := os.WriteFile(track, []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}

	mux := newMux(&stubCore{}, artwork.NewResolver(musicDir))

	rec := get(t, mux, "/albumart?path="+track)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", ct)
	}

	if rec := get(t, mux, "/albumart"); rec.Code != http.StatusBadRequest {
		t.Errorf("missing path: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if rec := get(t, mux, "/albumart?path=/etc/passwd"); rec.Code != http.StatusNotFound {
		t.Errorf("outside path: status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if rec := get(t, newMux(&stubCore{}, nil), "/albumart?path="+track); rec.Code != http.StatusNotFound {
		t.Errorf("disabled: status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
