package core_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumarques81/stellar-mediacore/internal/audio/audiotest"
	"github.com/edumarques81/stellar-mediacore/internal/core"
	"github.com/edumarques81/stellar-mediacore/internal/domain/backend"
	"github.com/edumarques81/stellar-mediacore/internal/domain/backend/backendtest"
	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
	"github.com/edumarques81/stellar-mediacore/internal/domain/router"
	"github.com/edumarques81/stellar-mediacore/internal/domain/tracklist"
	"github.com/edumarques81/stellar-mediacore/internal/errors"
	"github.com/edumarques81/stellar-mediacore/internal/events"
)

type collector struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *collector) OnEvent(_ context.Context, ev events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collector) count(t events.Type) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Type() == t {
			n++
		}
	}
	return n
}

type harness struct {
	core   *core.Core
	engine *audiotest.Engine
	events *collector
}

func newHarness(t *testing.T, fakes ...*backendtest.Fake) *harness {
	t.Helper()
	if len(fakes) == 0 {
		fakes = []*backendtest.Fake{backendtest.NewFake("dummy", []string{"dummy"},
			backendtest.Track("dummy:a"), backendtest.Track("dummy:b"), backendtest.Track("dummy:c"))}
	}
	descs := make([]*backend.Descriptor, len(fakes))
	for i, f := range fakes {
		descs[i] = backend.Spawn(f, backend.WithTimeout(2*time.Second))
	}
	reg, err := router.NewRegistry(descs...)
	require.NoError(t, err)

	engine := audiotest.NewEngine()
	c := core.New(engine, router.New(reg), core.WithRand(rand.New(rand.NewSource(1))))
	h := &harness{core: c, engine: engine, events: &collector{}}
	c.Subscribe("test", h.events)

	t.Cleanup(func() {
		_ = c.Close()
		reg.Stop()
	})
	return h
}

func (h *harness) currentURI(t *testing.T) string {
	t.Helper()
	cur, err := h.core.CurrentTrack(context.Background())
	require.NoError(t, err)
	if cur == nil {
		return ""
	}
	return cur.Track.URI
}

func (h *harness) state(t *testing.T) media.PlaybackState {
	t.Helper()
	st, err := h.core.State(context.Background())
	require.NoError(t, err)
	return st
}

func TestPlaysTracklistToTheEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	added, err := h.core.AddURIs(ctx, []string{"dummy:a", "dummy:b", "dummy:c"}, -1)
	require.NoError(t, err)
	require.Len(t, added, 3)

	require.NoError(t, h.core.Play(ctx))
	assert.Equal(t, media.Playing, h.state(t))
	assert.Equal(t, "dummy:a", h.engine.URI())

	for _, next := range []string{"dummy:b", "dummy:c"} {
		h.engine.Finish()
		require.Eventually(t, func() bool { return h.currentURI(t) == next }, time.Second, 5*time.Millisecond)
	}

	h.engine.Finish()
	require.Eventually(t, func() bool { return h.state(t) == media.Stopped }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "", h.currentURI(t))

	hist, err := h.core.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, "dummy:c", hist[0].Track.URI, "history is newest first")

	assert.Equal(t, 3, h.engine.CountCalls("set_uri"))
	require.Eventually(t, func() bool {
		return h.events.count(events.TypeTrackPlaybackStarted) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestStreamErrorSkipsToNextTrack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.core.AddURIs(ctx, []string{"dummy:a", "dummy:b"}, -1)
	require.NoError(t, err)
	require.NoError(t, h.core.Play(ctx))

	h.engine.Break("decoder failed")
	require.Eventually(t, func() bool { return h.currentURI(t) == "dummy:b" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, media.Playing, h.state(t))
}

func TestSlowListenerDoesNotDelayPlayback(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	block := make(chan struct{})
	defer close(block)
	h.core.Subscribe("stuck", events.ListenerFunc(func(ctx context.Context, ev events.Event) error {
		<-block
		return nil
	}))

	_, err := h.core.AddURIs(ctx, []string{"dummy:a"}, -1)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, h.core.Play(ctx))
	require.NoError(t, h.core.Pause(ctx))
	require.NoError(t, h.core.Play(ctx))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	require.Eventually(t, func() bool {
		return h.events.count(events.TypeTrackPlaybackResumed) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSlowBackendQueryDoesNotBlockPlayback(t *testing.T) {
	ctx := context.Background()
	slow := backendtest.NewFake("slow", []string{"slow"}, backendtest.Track("slow:x"))
	slow.Delay = 500 * time.Millisecond
	fast := backendtest.NewFake("dummy", []string{"dummy"}, backendtest.Track("dummy:a"))
	h := newHarness(t, slow, fast)

	_, err := h.core.AddURIs(ctx, []string{"dummy:a"}, -1)
	require.NoError(t, err)

	searching := make(chan struct{})
	go func() {
		defer close(searching)
		_, _ = h.core.Search(ctx, media.Query{"any": {"x"}}, []string{"slow:"})
	}()
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	require.NoError(t, h.core.Play(ctx))
	assert.Less(t, time.Since(start), 200*time.Millisecond)
	<-searching
}

func TestAudioOutputLossStopsPlayback(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.core.AddURIs(ctx, []string{"dummy:a"}, -1)
	require.NoError(t, err)
	require.NoError(t, h.core.Play(ctx))

	h.engine.PanicOn("pause")
	err = h.core.Pause(ctx)
	assert.True(t, errors.Is(err, errors.ErrActorUnavailable))
	assert.Equal(t, media.Stopped, h.state(t))

	err = h.core.Play(ctx)
	assert.True(t, errors.Is(err, errors.ErrActorUnavailable))
}

func TestRemovingCurrentTrackStopsPlayback(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	added, err := h.core.AddURIs(ctx, []string{"dummy:a", "dummy:b"}, -1)
	require.NoError(t, err)
	require.NoError(t, h.core.PlayTLID(ctx, added[1].TLID))

	removed, err := h.core.Remove(ctx, tracklist.Criteria{TLID: []int{added[1].TLID}})
	require.NoError(t, err)
	assert.Len(t, removed, 1)
	assert.Equal(t, media.Stopped, h.state(t))
	assert.Equal(t, "", h.currentURI(t))

	snap, err := h.core.Tracklist(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Tracks, 1)
}

func TestVersionCheckedMutations(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	added, err := h.core.AddURIs(ctx, []string{"dummy:a", "dummy:b", "dummy:c"}, -1)
	require.NoError(t, err)
	seen, err := h.core.Version(ctx)
	require.NoError(t, err)

	require.NoError(t, h.core.MoveAtVersion(ctx, seen, 2, 3, 0))
	snap, err := h.core.Tracklist(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Tracks, 3)
	assert.Equal(t, "dummy:c", snap.Tracks[0].Track.URI)

	// seen is now one mutation behind.
	err = h.core.MoveAtVersion(ctx, seen, 0, 1, 2)
	assert.True(t, errors.Is(err, errors.ErrStaleVersion))
	_, err = h.core.RemoveAtVersion(ctx, seen, tracklist.Criteria{TLID: []int{added[0].TLID}})
	assert.True(t, errors.Is(err, errors.ErrStaleVersion))

	after, err := h.core.Tracklist(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Version, after.Version, "stale requests change nothing")
	assert.Equal(t, snap.Tracks, after.Tracks)

	removed, err := h.core.RemoveAtVersion(ctx, after.Version, tracklist.Criteria{TLID: []int{added[0].TLID}})
	require.NoError(t, err)
	assert.Len(t, removed, 1)
}

func TestModesDoNotBumpVersion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.core.AddURIs(ctx, []string{"dummy:a"}, -1)
	require.NoError(t, err)
	before, err := h.core.Version(ctx)
	require.NoError(t, err)

	require.NoError(t, h.core.SetRepeat(ctx, true))
	require.NoError(t, h.core.SetRepeat(ctx, true))
	require.NoError(t, h.core.SetConsume(ctx, true))

	after, err := h.core.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	require.Eventually(t, func() bool {
		return h.events.count(events.TypeOptionsChanged) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestAddURIsUnknownScheme(t *testing.T) {
	h := newHarness(t)

	_, err := h.core.AddURIs(context.Background(), []string{"nope:a"}, -1)
	assert.True(t, errors.Is(err, errors.ErrLookup))
}

func TestPlaylistEvents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	pl, err := h.core.CreatePlaylist(ctx, "Morning", "")
	require.NoError(t, err)

	pl.Tracks = []media.Track{backendtest.Track("dummy:a")}
	_, err = h.core.SavePlaylist(ctx, pl)
	require.NoError(t, err)

	added, err := h.core.AddPlaylist(ctx, pl.URI, -1)
	require.NoError(t, err)
	assert.Len(t, added, 1)

	require.NoError(t, h.core.DeletePlaylist(ctx, pl.URI))
	require.Eventually(t, func() bool {
		return h.events.count(events.TypePlaylistChanged) == 2 &&
			h.events.count(events.TypePlaylistDeleted) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.core.AddURIs(ctx, []string{"dummy:a", "dummy:b"}, -1)
	require.NoError(t, err)
	require.NoError(t, h.core.Next(ctx))

	st, err := h.core.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "play", st.Status)
	assert.Equal(t, 0, st.Position)
	assert.Equal(t, "dummy:a", st.URI)
	assert.Equal(t, 100, st.Volume)
}
