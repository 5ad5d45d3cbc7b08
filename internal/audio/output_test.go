package audio_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumarques81/stellar-mediacore/internal/audio"
	"github.com/edumarques81/stellar-mediacore/internal/audio/audiotest"
	"github.com/edumarques81/stellar-mediacore/internal/errors"
)

func newOutput(t *testing.T) (*audio.Output, *audiotest.Engine, chan audio.Event) {
	t.Helper()
	engine := audiotest.NewEngine()
	events := make(chan audio.Event, 8)
	out := audio.NewOutput(engine, func(ev audio.Event) { events <- ev }, audio.WithBitPerfect(true))
	t.Cleanup(func() { _ = out.Close() })
	return out, engine, events
}

func expectEvent(t *testing.T, events chan audio.Event) audio.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no output event")
		return audio.Event{}
	}
}

func expectNoEvent(t *testing.T, events chan audio.Event) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPlayRequiresURI(t *testing.T) {
	out, _, _ := newOutput(t)
	err := out.Play(context.Background())
	assert.True(t, errors.Is(err, errors.ErrPlayback))
}

func TestPlayPauseResume(t *testing.T) {
	ctx := context.Background()
	out, engine, _ := newOutput(t)

	require.NoError(t, out.SetURI(ctx, "file:/a.flac"))
	require.NoError(t, out.Play(ctx))
	require.NoError(t, out.Pause(ctx))
	require.NoError(t, out.Play(ctx))

	assert.Equal(t, []string{"set_uri file:/a.flac", "play", "pause", "resume"}, engine.Calls())

	st, err := out.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Locked)
	assert.Equal(t, "file:/a.flac", st.URI)
}

func TestEngineFailureIsPlaybackError(t *testing.T) {
	ctx := context.Background()
	out, engine, _ := newOutput(t)

	engine.RejectURI("file:/broken.flac", fmt.Errorf("no decoder"))
	err := out.SetURI(ctx, "file:/broken.flac")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPlayback))

	// The rejected stream is not active.
	err = out.Play(ctx)
	assert.True(t, errors.Is(err, errors.ErrPlayback))
}

func TestEndOfStreamReportedOnce(t *testing.T) {
	ctx := context.Background()
	out, engine, events := newOutput(t)

	require.NoError(t, out.SetURI(ctx, "file:/a.flac"))
	require.NoError(t, out.Play(ctx))

	engine.Finish()
	engine.Finish()

	ev := expectEvent(t, events)
	assert.Equal(t, audio.EndOfStream, ev.Kind)
	assert.Equal(t, "file:/a.flac", ev.URI)
	expectNoEvent(t, events)
}

func TestStreamErrorReportedOnce(t *testing.T) {
	ctx := context.Background()
	out, engine, events := newOutput(t)

	require.NoError(t, out.SetURI(ctx, "http://radio/stream"))
	require.NoError(t, out.Play(ctx))

	engine.Break("connection reset")
	engine.Break("connection reset")
	engine.Finish()

	ev := expectEvent(t, events)
	assert.Equal(t, audio.StreamError, ev.Kind)
	assert.Equal(t, "connection reset", ev.Message)
	expectNoEvent(t, events)
}

func TestLateEventAfterTakeoverIsDropped(t *testing.T) {
	ctx := context.Background()
	out, engine, events := newOutput(t)

	require.NoError(t, out.SetURI(ctx, "file:/a.flac"))
	require.NoError(t, out.Play(ctx))
	require.NoError(t, out.SetURI(ctx, "file:/b.flac"))

	engine.Emit(audio.EngineEvent{Kind: audio.EngineEndOfStream, URI: "file:/a.flac"})
	expectNoEvent(t, events)

	engine.Finish()
	ev := expectEvent(t, events)
	assert.Equal(t, "file:/b.flac", ev.URI)
}

func TestEventAfterStopIsDropped(t *testing.T) {
	ctx := context.Background()
	out, engine, events := newOutput(t)

	require.NoError(t, out.SetURI(ctx, "file:/a.flac"))
	require.NoError(t, out.Play(ctx))
	require.NoError(t, out.Stop(ctx))

	engine.Emit(audio.EngineEvent{Kind: audio.EngineEndOfStream, URI: "file:/a.flac"})
	expectNoEvent(t, events)
}

func TestMuteRestoresVolume(t *testing.T) {
	ctx := context.Background()
	out, engine, _ := newOutput(t)

	v, err := out.SetVolume(ctx, 140)
	require.NoError(t, err)
	assert.Equal(t, 100, v)

	_, err = out.SetVolume(ctx, 40)
	require.NoError(t, err)

	require.NoError(t, out.SetMute(ctx, true))
	muted, err := out.Mute(ctx)
	require.NoError(t, err)
	assert.True(t, muted)

	// Volume changes while muted only affect the restore level.
	_, err = out.SetVolume(ctx, 55)
	require.NoError(t, err)
	engineVol, _ := engine.Volume(ctx)
	assert.Equal(t, 0, engineVol)

	require.NoError(t, out.SetMute(ctx, false))
	engineVol, _ = engine.Volume(ctx)
	assert.Equal(t, 55, engineVol)

	vol, err := out.Volume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 55, vol)
}

func TestFormatEventUpdatesStatus(t *testing.T) {
	ctx := context.Background()
	out, engine, _ := newOutput(t)

	require.NoError(t, out.SetURI(ctx, "file:/a.dsf"))
	require.NoError(t, out.Play(ctx))
	engine.Emit(audio.EngineEvent{Kind: audio.EngineFormat, URI: "file:/a.dsf", Format: "2822400:1:2"})

	require.Eventually(t, func() bool {
		st, err := out.Status(ctx)
		return err == nil && st.Format != nil
	}, time.Second, 5*time.Millisecond)

	st, _ := out.Status(ctx)
	assert.Equal(t, "DSD64", st.Format.Format)
	assert.True(t, st.Format.IsBitPerfect)
}

func TestSeekWithoutStream(t *testing.T) {
	out, _, _ := newOutput(t)
	err := out.Seek(context.Background(), time.Second)
	assert.True(t, errors.Is(err, errors.ErrInvalidOperation))
}

func TestClosedOutputIsUnavailable(t *testing.T) {
	engine := audiotest.NewEngine()
	out := audio.NewOutput(engine, nil)
	require.NoError(t, out.Close())

	err := out.Play(context.Background())
	assert.True(t, errors.Is(err, errors.ErrActorUnavailable))
}
