package mpdproto

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
	"github.com/edumarques81/stellar-mediacore/internal/domain/player"
	"github.com/edumarques81/stellar-mediacore/internal/domain/router"
	"github.com/edumarques81/stellar-mediacore/internal/domain/tracklist"
	"github.com/edumarques81/stellar-mediacore/internal/errors"
	"github.com/edumarques81/stellar-mediacore/internal/events"
)

// fakeCore is a minimal in-memory core that records commands.
type fakeCore struct {
	mu        sync.Mutex
	calls     []string
	tracks    []media.TlTrack
	current   *media.TlTrack
	modes     tracklist.Modes
	version   int
	nextID    int
	state     media.PlaybackState
	volume    int
	position  time.Duration
	library   []media.Track
	playlists []media.Playlist
	fail      map[string]error
	listeners map[string]events.Listener
}

func newFakeCore(uris ...string) *fakeCore {
	c := &fakeCore{
		state:     media.Stopped,
		volume:    70,
		fail:      make(map[string]error),
		listeners: make(map[string]events.Listener),
	}
	for _, uri := range uris {
		c.append(media.Track{URI: uri, Name: strings.TrimPrefix(uri, "file:///"), Duration: 200 * time.Second})
	}
	return c
}

func (c *fakeCore) append(t media.Track) media.TlTrack {
	c.nextID++
	tl := media.TlTrack{TLID: c.nextID, Track: t}
	c.tracks = append(c.tracks, tl)
	c.version++
	return tl
}

func (c *fakeCore) record(format string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	call := fmt.Sprintf(format, args...)
	c.calls = append(c.calls, call)
	name, _, _ := strings.Cut(call, " ")
	return c.fail[name]
}

func (c *fakeCore) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// publish delivers ev to every subscribed session.
func (c *fakeCore) publish(ev events.Event) {
	c.mu.Lock()
	ls := make([]events.Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.mu.Unlock()
	for _, l := range ls {
		l.OnEvent(context.Background(), ev)
	}
}

func (c *fakeCore) subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

func (c *fakeCore) Status(ctx context.Context) (*player.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := -1
	for i, tl := range c.tracks {
		if c.current != nil && tl.TLID == c.current.TLID {
			idx = i
		}
	}
	return player.NewState(player.Snapshot{
		State:   c.state,
		Current: c.current,
		Index:   idx,
		Seek:    int(c.position.Milliseconds()),
		Modes:   c.modes,
		Version: c.version,
		Volume:  c.volume,
	}), nil
}

func (c *fakeCore) Tracklist(ctx context.Context) (tracklist.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return tracklist.Snapshot{
		Version: c.version,
		Tracks:  append([]media.TlTrack(nil), c.tracks...),
		Current: c.current,
		Modes:   c.modes,
	}, nil
}

func (c *fakeCore) State(ctx context.Context) (media.PlaybackState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, nil
}

func (c *fakeCore) TimePosition(ctx context.Context) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position, nil
}

func (c *fakeCore) Backends() []router.BackendStatus {
	return []router.BackendStatus{
		{Name: "local", Schemes: []string{"file"}, Available: true},
		{Name: "stored", Schemes: []string{"stored"}, Available: true},
	}
}

func (c *fakeCore) Play(ctx context.Context) error {
	if err := c.record("play"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil && len(c.tracks) > 0 {
		c.current = &c.tracks[0]
	}
	c.state = media.Playing
	return nil
}

func (c *fakeCore) PlayTLID(ctx context.Context, tlid int) error {
	if err := c.record("playtlid %d", tlid); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.tracks {
		if c.tracks[i].TLID == tlid {
			tl := c.tracks[i]
			c.current = &tl
			c.state = media.Playing
			return nil
		}
	}
	return errors.Invalid("play", "unknown tlid %d", tlid)
}

func (c *fakeCore) Pause(ctx context.Context) error {
	c.mu.Lock()
	c.state = media.Paused
	c.mu.Unlock()
	return c.record("pause")
}

func (c *fakeCore) Resume(ctx context.Context) error {
	c.mu.Lock()
	c.state = media.Playing
	c.mu.Unlock()
	return c.record("resume")
}

func (c *fakeCore) Stop(ctx context.Context) error     { return c.record("stop") }
func (c *fakeCore) Next(ctx context.Context) error     { return c.record("next") }
func (c *fakeCore) Previous(ctx context.Context) error { return c.record("previous") }

func (c *fakeCore) Seek(ctx context.Context, position time.Duration) error {
	return c.record("seek %s", position)
}

func (c *fakeCore) SetVolume(ctx context.Context, volume int) (int, error) {
	if err := c.record("volume %d", volume); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = volume
	return volume, nil
}

func (c *fakeCore) setMode(name string, on bool, set func(m *tracklist.Modes)) error {
	c.mu.Lock()
	set(&c.modes)
	c.mu.Unlock()
	return c.record("%s %t", name, on)
}

func (c *fakeCore) SetRandom(ctx context.Context, on bool) error {
	return c.setMode("random", on, func(m *tracklist.Modes) { m.Random = on })
}

func (c *fakeCore) SetRepeat(ctx context.Context, on bool) error {
	return c.setMode("repeat", on, func(m *tracklist.Modes) { m.Repeat = on })
}

func (c *fakeCore) SetSingle(ctx context.Context, on bool) error {
	return c.setMode("single", on, func(m *tracklist.Modes) { m.Single = on })
}

func (c *fakeCore) SetConsume(ctx context.Context, on bool) error {
	return c.setMode("consume", on, func(m *tracklist.Modes) { m.Consume = on })
}

func (c *fakeCore) AddURIs(ctx context.Context, uris []string, position int) ([]media.TlTrack, error) {
	if err := c.record("add %s %d", strings.Join(uris, ","), position); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var added []media.TlTrack
	for _, uri := range uris {
		if strings.HasPrefix(uri, "missing:") {
			continue
		}
		added = append(added, c.append(media.Track{URI: uri}))
	}
	return added, nil
}

func (c *fakeCore) AddPlaylist(ctx context.Context, uri string, position int) ([]media.TlTrack, error) {
	return nil, c.record("addplaylist %s %d", uri, position)
}

func (c *fakeCore) Remove(ctx context.Context, criteria tracklist.Criteria) ([]media.TlTrack, error) {
	if err := c.record("remove %v", criteria.TLID); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var kept, removed []media.TlTrack
	for _, tl := range c.tracks {
		if criteria.Match(tl) {
			removed = append(removed, tl)
		} else {
			kept = append(kept, tl)
		}
	}
	if len(removed) > 0 {
		c.tracks = kept
		c.version++
	}
	return removed, nil
}

func (c *fakeCore) Clear(ctx context.Context) error { return c.record("clear") }

func (c *fakeCore) Move(ctx context.Context, start, end, to int) error {
	return c.record("move %d %d %d", start, end, to)
}

func (c *fakeCore) Shuffle(ctx context.Context, start, end int) error {
	return c.record("shuffle %d %d", start, end)
}

func (c *fakeCore) Search(ctx context.Context, query media.Query, uris []string) ([]media.Track, error) {
	if err := c.record("search %v", query); err != nil {
		return nil, err
	}
	return c.library, nil
}

func (c *fakeCore) Playlists(ctx context.Context) ([]media.Playlist, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]media.Playlist, 0, len(c.playlists))
	for _, pl := range c.playlists {
		out = append(out, media.Playlist{URI: pl.URI, Name: pl.Name, LastModified: pl.LastModified})
	}
	return out, nil
}

func (c *fakeCore) LookupPlaylist(ctx context.Context, uri string) (media.Playlist, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pl := range c.playlists {
		if pl.URI == uri {
			return pl, nil
		}
	}
	return media.Playlist{}, errors.Lookup("playlist", "no playlist %q", uri)
}

func (c *fakeCore) CreatePlaylist(ctx context.Context, name, scheme string) (media.Playlist, error) {
	if err := c.record("create %s %s", name, scheme); err != nil {
		return media.Playlist{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	pl := media.Playlist{URI: "stored:" + name, Name: name}
	c.playlists = append(c.playlists, pl)
	return pl, nil
}

func (c *fakeCore) SavePlaylist(ctx context.Context, pl media.Playlist) (media.Playlist, error) {
	if err := c.record("save %s %d", pl.URI, len(pl.Tracks)); err != nil {
		return media.Playlist{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.playlists {
		if c.playlists[i].URI == pl.URI {
			c.playlists[i] = pl
		}
	}
	return pl, nil
}

func (c *fakeCore) DeletePlaylist(ctx context.Context, uri string) error {
	return c.record("delete %s", uri)
}

func (c *fakeCore) Subscribe(name string, l events.Listener) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := fmt.Sprintf("sub-%d", len(c.listeners)+1)
	for c.listeners[id] != nil {
		id += "+"
	}
	c.listeners[id] = l
	return id
}

func (c *fakeCore) Unsubscribe(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.listeners[id]
	delete(c.listeners, id)
	return ok
}
