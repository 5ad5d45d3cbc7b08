package socketio

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edumarques81/stellar-mediacore/internal/domain/history"
	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
	"github.com/edumarques81/stellar-mediacore/internal/domain/player"
	"github.com/edumarques81/stellar-mediacore/internal/domain/tracklist"
	"github.com/edumarques81/stellar-mediacore/internal/errors"
	"github.com/edumarques81/stellar-mediacore/internal/events"
)

// mockCore records every call made by the server.
type mockCore struct {
	mu        sync.Mutex
	calls     []string
	state     player.State
	snapshot  tracklist.Snapshot
	playlists []media.Playlist
	found     []media.Track
	history   []history.Entry
	removed   []media.TlTrack
	fail      map[string]error
	listener  events.Listener
}

func newMockCore() *mockCore {
	return &mockCore{
		state: player.State{Status: player.StatusStop, Volume: 50},
		fail:  make(map[string]error),
	}
}

func (m *mockCore) record(format string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := fmt.Sprintf(format, args...)
	m.calls = append(m.calls, call)
	name, _, _ := strings.Cut(call, " ")
	return m.fail[name]
}

func (m *mockCore) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockCore) Status(ctx context.Context) (*player.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state
	return &st, nil
}

func (m *mockCore) Tracklist(ctx context.Context) (tracklist.Snapshot, error) {
	return m.snapshot, nil
}

func (m *mockCore) History(ctx context.Context, limit int) ([]history.Entry, error) {
	return m.history, m.record("history %d", limit)
}

func (m *mockCore) Play(ctx context.Context) error               { return m.record("play") }
func (m *mockCore) PlayTLID(ctx context.Context, tlid int) error { return m.record("playtlid %d", tlid) }
func (m *mockCore) Pause(ctx context.Context) error              { return m.record("pause") }
func (m *mockCore) Resume(ctx context.Context) error             { return m.record("resume") }
func (m *mockCore) Stop(ctx context.Context) error               { return m.record("stop") }
func (m *mockCore) Next(ctx context.Context) error               { return m.record("next") }
func (m *mockCore) Previous(ctx context.Context) error           { return m.record("previous") }

func (m *mockCore) Seek(ctx context.Context, position time.Duration) error {
	return m.record("seek %s", position)
}

func (m *mockCore) SetVolume(ctx context.Context, volume int) (int, error) {
	return volume, m.record("volume %d", volume)
}

func (m *mockCore) SetMute(ctx context.Context, mute bool) error { return m.record("mute %t", mute) }
func (m *mockCore) SetRandom(ctx context.Context, on bool) error { return m.record("random %t", on) }
func (m *mockCore) SetRepeat(ctx context.Context, on bool) error { return m.record("repeat %t", on) }
func (m *mockCore) SetSingle(ctx context.Context, on bool) error { return m.record("single %t", on) }
func (m *mockCore) SetConsume(ctx context.Context, on bool) error {
	return m.record("consume %t", on)
}

func (m *mockCore) AddURIs(ctx context.Context, uris []string, position int) ([]media.TlTrack, error) {
	return nil, m.record("add %s %d", strings.Join(uris, ","), position)
}

func (m *mockCore) AddPlaylist(ctx context.Context, uri string, position int) ([]media.TlTrack, error) {
	return nil, m.record("addplaylist %s", uri)
}

func (m *mockCore) Remove(ctx context.Context, criteria tracklist.Criteria) ([]media.TlTrack, error) {
	return m.removed, m.record("remove %v", criteria.TLID)
}

func (m *mockCore) RemoveAtVersion(ctx context.Context, version int, criteria tracklist.Criteria) ([]media.TlTrack, error) {
	return m.removed, m.record("removeat %d %v", version, criteria.TLID)
}

func (m *mockCore) Clear(ctx context.Context) error { return m.record("clear") }

func (m *mockCore) Move(ctx context.Context, start, end, to int) error {
	return m.record("move %d %d %d", start, end, to)
}

func (m *mockCore) MoveAtVersion(ctx context.Context, version, start, end, to int) error {
	return m.record("moveat %d %d %d %d", version, start, end, to)
}

func (m *mockCore) Search(ctx context.Context, query media.Query, uris []string) ([]media.Track, error) {
	return m.found, m.record("search %s", strings.Join(query["any"], ","))
}

func (m *mockCore) Playlists(ctx context.Context) ([]media.Playlist, error) {
	return m.playlists, m.record("playlists")
}

func (m *mockCore) Subscribe(name string, l events.Listener) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = l
	m.calls = append(m.calls, "subscribe "+name)
	return "sub-1"
}

func (m *mockCore) Unsubscribe(id string) bool {
	m.record("unsubscribe %s", id)
	return true
}

// recorder captures emitted events.
type recorder struct {
	mu     sync.Mutex
	events []string
	data   []any
}

func (r *recorder) emit(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.data = append(r.data, payload)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) last() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.data) == 0 {
		return nil
	}
	return r.data[len(r.data)-1]
}

func newTestServer(t *testing.T) (*Server, *mockCore, *recorder, *recorder) {
	t.Helper()
	core := newMockCore()
	s, err := NewServer(core, Options{Debounce: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	broadcasts := &recorder{}
	s.broadcast = broadcasts.emit
	t.Cleanup(func() { s.Close() })
	return s, core, &recorder{}, broadcasts
}

func (s *Server) call(t *testing.T, event string, client *recorder, args ...any) {
	t.Helper()
	h, ok := s.handlers[event]
	if !ok {
		t.Fatalf("no handler for %q", event)
	}
	s.handle(event, h, client.emit, args)
}

func assertCalls(t *testing.T, core *mockCore, want ...string) {
	t.Helper()
	got := core.Calls()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("calls = %q, want %q", got, want)
	}
}

func TestNewServerRequiresCore(t *testing.T) {
	if _, err := NewServer(nil, Options{}); err == nil {
		t.Error("NewServer(nil) should fail")
	}
}

// TestGetIntFromMap tests the helper function
func TestGetIntFromMap(t *testing.T) {
	tests := []struct {
		name       string
		m          map[string]interface{}
		key        string
		defaultVal int
		expected   int
	}{
		{"nil map", nil, "test", -1, -1},
		{"missing key", map[string]interface{}{"other": 5}, "test", -1, -1},
		{"int value", map[string]interface{}{"test": 42}, "test", -1, 42},
		{"float64 value", map[string]interface{}{"test": float64(42)}, "test", -1, 42},
		{"int64 value", map[string]interface{}{"test": int64(42)}, "test", -1, 42},
		{"string value returns default", map[string]interface{}{"test": "42"}, "test", -1, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := getIntFromMap(tt.m, tt.key, tt.defaultVal)
			if result != tt.expected {
				t.Errorf("getIntFromMap() = %d, want %d", result, tt.expected)
			}
		})
	}
}

func TestHandlerTableCoversClientEvents(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	for _, event := range []string{
		"getState", "play", "pause", "resume", "stop", "next", "prev", "seek",
		"volume", "mute", "setRandom", "setRepeat", "setConsume", "getQueue",
		"clearQueue", "addToQueue", "removeFromQueue", "moveQueue", "search",
		"listPlaylist", "playPlaylist", "getHistory",
	} {
		if _, ok := s.handlers[event]; !ok {
			t.Errorf("missing handler for %q", event)
		}
	}
}

func TestPlaybackCommands(t *testing.T) {
	s, core, client, _ := newTestServer(t)

	s.call(t, "play", client)
	s.call(t, "play", client, map[string]interface{}{"value": float64(3)})
	s.call(t, "pause", client)
	s.call(t, "resume", client)
	s.call(t, "next", client)
	s.call(t, "prev", client)
	s.call(t, "seek", client, float64(42))
	s.call(t, "stop", client)

	assertCalls(t, core, "play", "playtlid 3", "pause", "resume", "next", "previous", "seek 42s", "stop")
	if len(client.Events()) != 0 {
		t.Errorf("successful commands should not reply, got %v", client.Events())
	}
}

func TestToggle(t *testing.T) {
	s, core, client, _ := newTestServer(t)

	s.call(t, "toggle", client)
	core.mu.Lock()
	core.state.Status = player.StatusPlay
	core.mu.Unlock()
	s.call(t, "toggle", client)

	assertCalls(t, core, "play", "pause")
}

func TestVolumeAndMute(t *testing.T) {
	s, core, client, _ := newTestServer(t)

	s.call(t, "volume", client, float64(80))
	s.call(t, "volume", client, "+")
	s.call(t, "volume", client, "-")
	s.call(t, "mute", client)
	s.call(t, "mute", client, false)
	s.call(t, "unmute", client)

	assertCalls(t, core, "volume 80", "volume 55", "volume 45", "mute true", "mute false", "mute false")
}

func TestSetRepeatSingle(t *testing.T) {
	s, core, client, _ := newTestServer(t)

	s.call(t, "setRepeat", client, map[string]interface{}{"value": true, "repeatSingle": true})
	s.call(t, "setRepeat", client, map[string]interface{}{"value": false, "repeatSingle": true})
	s.call(t, "setRandom", client, map[string]interface{}{"value": true})
	s.call(t, "setConsume", client, map[string]interface{}{"value": false})

	assertCalls(t, core, "repeat true", "single true", "repeat false", "single false", "random true", "consume false")
}

func TestQueueCommands(t *testing.T) {
	s, core, client, _ := newTestServer(t)
	core.removed = []media.TlTrack{{TLID: 7}}

	s.call(t, "addToQueue", client, map[string]interface{}{"uri": "file:///a.flac"})
	s.call(t, "removeFromQueue", client, map[string]interface{}{"value": float64(7)})
	s.call(t, "moveQueue", client, map[string]interface{}{"from": float64(2), "to": float64(0)})
	s.call(t, "clearQueue", client)

	assertCalls(t, core, "add file:///a.flac -1", "remove [7]", "move 2 3 0", "clear")
}

func TestQueueCommandsAtVersion(t *testing.T) {
	s, core, client, _ := newTestServer(t)
	core.removed = []media.TlTrack{{TLID: 7}}

	s.call(t, "removeFromQueue", client, map[string]interface{}{"value": float64(7), "version": float64(3)})
	s.call(t, "moveQueue", client, map[string]interface{}{"from": float64(2), "to": float64(0), "version": float64(4)})

	assertCalls(t, core, "removeat 3 [7]", "moveat 4 2 3 0")
	if events := client.Events(); len(events) != 0 {
		t.Errorf("expected no replies, got %v", events)
	}
}

func TestStaleQueueEditResyncsClient(t *testing.T) {
	s, core, client, _ := newTestServer(t)
	core.fail["moveat"] = errors.Wrap(errors.ErrStaleVersion, "tracklist", fmt.Errorf("expected version 2, at 5"))

	s.call(t, "moveQueue", client, map[string]interface{}{"from": float64(0), "to": float64(1), "version": float64(2)})

	events := client.Events()
	want := []string{"pushQueue", "pushState", "pushToastMessage"}
	if len(events) != len(want) {
		t.Fatalf("expected %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], events[i])
		}
	}
}

func TestFailuresReplyWithToast(t *testing.T) {
	s, core, client, _ := newTestServer(t)
	core.fail["pause"] = fmt.Errorf("engine gone")

	s.call(t, "pause", client)
	s.call(t, "removeFromQueue", client, map[string]interface{}{"value": float64(99)})
	s.call(t, "addToQueue", client, map[string]interface{}{})

	events := client.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 toasts, got %v", events)
	}
	for _, ev := range events {
		if ev != "pushToastMessage" {
			t.Errorf("expected pushToastMessage, got %s", ev)
		}
	}
	toastMsg := client.data[0].(map[string]interface{})
	if toastMsg["type"] != "error" || !strings.Contains(toastMsg["message"].(string), "engine gone") {
		t.Errorf("unexpected toast %v", toastMsg)
	}
}

func TestSearchPushesResult(t *testing.T) {
	s, core, client, _ := newTestServer(t)
	core.found = []media.Track{{URI: "file:///music/a.flac", Name: "A", Artists: []string{"X"}}}

	s.call(t, "search", client, map[string]interface{}{"value": " blue "})

	assertCalls(t, core, "search blue")
	if events := client.Events(); len(events) != 1 || events[0] != "pushSearch" {
		t.Fatalf("events = %v, want pushSearch", events)
	}
	nav := client.last().(map[string]interface{})["navigation"].(map[string]interface{})
	list := nav["lists"].([]interface{})[0].(map[string]interface{})
	items := list["items"].([]map[string]interface{})
	if len(items) != 1 || items[0]["title"] != "A" || items[0]["type"] != "song" {
		t.Errorf("unexpected items %v", items)
	}
}

func TestPlayPlaylistByName(t *testing.T) {
	s, core, client, _ := newTestServer(t)
	core.playlists = []media.Playlist{{URI: "stored:1", Name: "Morning"}}

	s.call(t, "playPlaylist", client, map[string]interface{}{"name": "Morning"})
	assertCalls(t, core, "playlists", "clear", "addplaylist stored:1", "play")

	s.call(t, "playPlaylist", client, map[string]interface{}{"name": "Evening"})
	if events := client.Events(); len(events) != 1 || events[0] != "pushToastMessage" {
		t.Errorf("unknown playlist should toast, got %v", events)
	}
}

func TestListPlaylistAndHistory(t *testing.T) {
	s, core, client, _ := newTestServer(t)
	core.playlists = []media.Playlist{{Name: "b"}, {Name: "a"}}
	played := time.Unix(1700000000, 0)
	core.history = []history.Entry{{ID: "1", PlayedAt: played, Track: media.Track{URI: "mpd:x.flac", Name: "X"}}}

	s.call(t, "listPlaylist", client)
	names := client.last().([]string)
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("names = %v", names)
	}

	s.call(t, "getHistory", client)
	items := client.last().([]map[string]interface{})
	if len(items) != 1 || items[0]["title"] != "X" || items[0]["playedAt"] != played.Unix() {
		t.Errorf("history = %v", items)
	}
}

func TestGetQueueAndState(t *testing.T) {
	s, core, client, _ := newTestServer(t)
	core.snapshot = tracklist.Snapshot{Tracks: []media.TlTrack{{TLID: 1, Track: media.Track{URI: "mpd:a.flac"}}}}

	s.call(t, "getQueue", client)
	s.call(t, "getState", client)

	events := client.Events()
	if len(events) != 2 || events[0] != "pushQueue" || events[1] != "pushState" {
		t.Fatalf("events = %v", events)
	}
	if q := client.data[0].([]map[string]interface{}); len(q) != 1 || q[0]["tlid"] != 1 {
		t.Errorf("queue = %v", q)
	}
}

func TestBroadcastStateSkipsUnchanged(t *testing.T) {
	s, core, _, broadcasts := newTestServer(t)

	s.BroadcastState(false)
	s.BroadcastState(false)
	if n := len(broadcasts.Events()); n != 1 {
		t.Fatalf("expected 1 broadcast for unchanged state, got %d", n)
	}

	s.BroadcastState(true)
	if n := len(broadcasts.Events()); n != 2 {
		t.Fatalf("forced broadcast should always send, got %d", n)
	}

	core.mu.Lock()
	core.state.Volume = 90
	core.mu.Unlock()
	s.BroadcastState(false)
	if n := len(broadcasts.Events()); n != 3 {
		t.Fatalf("changed state should broadcast, got %d", n)
	}
}

func TestCoreEventsAreBroadcast(t *testing.T) {
	s, core, _, broadcasts := newTestServer(t)
	core.playlists = []media.Playlist{{Name: "new"}}

	s.Start()
	s.Start()
	if n := strings.Count(strings.Join(core.Calls(), "|"), "subscribe"); n != 1 {
		t.Fatalf("Start should subscribe once, got %d", n)
	}

	ctx := context.Background()
	core.listener.OnEvent(ctx, events.NewTracklistChanged(2))
	core.listener.OnEvent(ctx, events.NewPlaylistDeleted("stored:1"))

	deadline := time.Now().Add(time.Second)
	for len(broadcasts.Events()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got := strings.Join(broadcasts.Events(), ",")
	for _, want := range []string{"pushListPlaylist", "pushState", "pushQueue"} {
		if !strings.Contains(got, want) {
			t.Errorf("broadcasts %q missing %s", got, want)
		}
	}

	s.Close()
	if !strings.Contains(strings.Join(core.Calls(), "|"), "unsubscribe sub-1") {
		t.Error("Close should unsubscribe from the core")
	}
}
