package core

import (
	"context"
	"time"

	"github.com/edumarques81/stellar-mediacore/internal/audio"
	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
	"github.com/edumarques81/stellar-mediacore/internal/domain/player"
)

// Play starts or resumes playback of the current track, or of the first
// track when there is none.
func (c *Core) Play(ctx context.Context) error {
	return c.playback(ctx, "play", func(ctx context.Context, m *player.Machine) error {
		return m.Play(ctx, nil)
	})
}

// PlayTLID plays the tracklist entry tlid from the beginning.
func (c *Core) PlayTLID(ctx context.Context, tlid int) error {
	return c.playback(ctx, "play", func(ctx context.Context, m *player.Machine) error {
		return m.Play(ctx, &media.TlTrack{TLID: tlid})
	})
}

// Pause pauses playback.
func (c *Core) Pause(ctx context.Context) error {
	return c.playback(ctx, "pause", func(ctx context.Context, m *player.Machine) error {
		return m.Pause(ctx)
	})
}

// Resume resumes paused playback.
func (c *Core) Resume(ctx context.Context) error {
	return c.playback(ctx, "resume", func(ctx context.Context, m *player.Machine) error {
		return m.Resume(ctx)
	})
}

// Stop stops playback.
func (c *Core) Stop(ctx context.Context) error {
	return c.playback(ctx, "stop", func(ctx context.Context, m *player.Machine) error {
		return m.Stop(ctx)
	})
}

// Next skips to the next track.
func (c *Core) Next(ctx context.Context) error {
	return c.playback(ctx, "next", func(ctx context.Context, m *player.Machine) error {
		return m.Next(ctx)
	})
}

// Previous goes back to the previous track.
func (c *Core) Previous(ctx context.Context) error {
	return c.playback(ctx, "previous", func(ctx context.Context, m *player.Machine) error {
		return m.Previous(ctx)
	})
}

// Seek moves the playhead of the current track.
func (c *Core) Seek(ctx context.Context, position time.Duration) error {
	return c.playback(ctx, "seek", func(ctx context.Context, m *player.Machine) error {
		return m.Seek(ctx, position)
	})
}

// SetVolume sets the output volume and returns the applied level.
func (c *Core) SetVolume(ctx context.Context, volume int) (int, error) {
	var applied int
	err := c.playback(ctx, "set_volume", func(ctx context.Context, m *player.Machine) error {
		v, err := m.SetVolume(ctx, volume)
		applied = v
		return err
	})
	return applied, err
}

// SetMute mutes or unmutes the output.
func (c *Core) SetMute(ctx context.Context, mute bool) error {
	return c.playback(ctx, "set_mute", func(ctx context.Context, m *player.Machine) error {
		return m.SetMute(ctx, mute)
	})
}

// Volume returns the output volume.
func (c *Core) Volume(ctx context.Context) (int, error) {
	return do(ctx, c, "volume", func(ctx context.Context, h *handler) (int, error) {
		return h.machine.Volume(ctx)
	})
}

// Mute reports whether the output is muted.
func (c *Core) Mute(ctx context.Context) (bool, error) {
	return do(ctx, c, "mute", func(ctx context.Context, h *handler) (bool, error) {
		return h.machine.Mute(ctx)
	})
}

// State returns the playback state.
func (c *Core) State(ctx context.Context) (media.PlaybackState, error) {
	return do(ctx, c, "state", func(ctx context.Context, h *handler) (media.PlaybackState, error) {
		return h.machine.State(), nil
	})
}

// CurrentTrack returns the current tracklist entry, or nil.
func (c *Core) CurrentTrack(ctx context.Context) (*media.TlTrack, error) {
	return do(ctx, c, "current_track", func(ctx context.Context, h *handler) (*media.TlTrack, error) {
		return h.machine.Current(), nil
	})
}

// TimePosition returns the playhead of the current track.
func (c *Core) TimePosition(ctx context.Context) (time.Duration, error) {
	return do(ctx, c, "time_position", func(ctx context.Context, h *handler) (time.Duration, error) {
		return h.machine.TimePosition(ctx)
	})
}

// Status returns the player state shaped for frontends. Output failures
// leave the audio fields at their zero values.
func (c *Core) Status(ctx context.Context) (*player.State, error) {
	return do(ctx, c, "status", func(ctx context.Context, h *handler) (*player.State, error) {
		snap := player.Snapshot{
			State:   h.machine.State(),
			Current: h.machine.Current(),
			Index:   -1,
			Modes:   h.tracklist.Modes(),
			Version: h.tracklist.Version(),
		}
		if snap.Current != nil {
			snap.Index = h.tracklist.Index(snap.Current.TLID)
		}
		if pos, err := h.machine.TimePosition(ctx); err == nil {
			snap.Seek = int(pos.Milliseconds())
		}
		if st, err := h.output.Status(ctx); err == nil {
			snap.Volume = st.Volume
			snap.Mute = st.Mute
			if st.Format != nil {
				snap.SampleRate = audio.FormatSampleRate(st.Format.SampleRate)
				snap.BitDepth = audio.FormatBitDepth(st.Format.BitDepth)
				snap.BitPerfect = st.Format.IsBitPerfect
			}
		}
		return player.NewState(snap), nil
	})
}

// AudioStatus returns the audio output's lock state and format.
func (c *Core) AudioStatus(ctx context.Context) (audio.Status, error) {
	return c.output.Status(ctx)
}
