// Package player implements the playback state machine. It turns user
// intents and audio output events into tracklist advancement and audio
// commands.
package player

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-mediacore/internal/domain/history"
	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
	"github.com/edumarques81/stellar-mediacore/internal/domain/tracklist"
	"github.com/edumarques81/stellar-mediacore/internal/errors"
	"github.com/edumarques81/stellar-mediacore/internal/events"
)

// Output is the audio output driven by the machine.
type Output interface {
	SetURI(ctx context.Context, uri string) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
	Position(ctx context.Context) (time.Duration, error)
	SetVolume(ctx context.Context, volume int) (int, error)
	Volume(ctx context.Context) (int, error)
	SetMute(ctx context.Context, mute bool) error
	Mute(ctx context.Context) (bool, error)
}

// Resolver translates track URIs into engine URIs.
type Resolver interface {
	TranslateURI(ctx context.Context, uri string) (string, error)
}

// Publisher receives the machine's events. Publish must not block.
type Publisher interface {
	Publish(ev events.Event)
}

// Machine is the playback state machine. Like the tracklist it mutates, it
// is owned by the core actor and not safe for concurrent use.
type Machine struct {
	tracklist *tracklist.Tracklist
	history   *history.History
	output    Output
	resolver  Resolver
	publisher Publisher

	state     media.PlaybackState
	activeURI string

	// errorStreak counts stream errors since the last track that played to
	// its end or the last user command.
	errorStreak int
}

// NewMachine creates a stopped machine.
func NewMachine(tl *tracklist.Tracklist, hist *history.History, out Output, res Resolver, pub Publisher) *Machine {
	return &Machine{
		tracklist: tl,
		history:   hist,
		output:    out,
		resolver:  res,
		publisher: pub,
		state:     media.Stopped,
	}
}

// State returns the playback state.
func (m *Machine) State() media.PlaybackState { return m.state }

// Current returns the track under the tracklist cursor, or nil.
func (m *Machine) Current() *media.TlTrack {
	if cur, ok := m.tracklist.Current(); ok {
		return &cur
	}
	return nil
}

// TimePosition returns the playhead, zero when stopped.
func (m *Machine) TimePosition(ctx context.Context) (time.Duration, error) {
	if m.state == media.Stopped {
		return 0, nil
	}
	return m.output.Position(ctx)
}

// Play starts playback. With tl set, tl becomes current and starts from the
// beginning. Without it, paused playback resumes, ongoing playback is left
// alone, and a stopped machine plays the current track or the first one.
func (m *Machine) Play(ctx context.Context, tl *media.TlTrack) error {
	m.errorStreak = 0

	if tl == nil {
		switch m.state {
		case media.Paused:
			return m.Resume(ctx)
		case media.Playing:
			return nil
		}
		target := m.Current()
		if target == nil {
			target = m.tracklist.NextTrack(nil)
		}
		if target == nil {
			log.Debug().Msg("Play with empty tracklist")
			return nil
		}
		return m.change(ctx, *target, true)
	}

	target, ok := m.tracklist.Get(tl.TLID)
	if !ok {
		return errors.Invalid("play", "tlid %d not in tracklist", tl.TLID)
	}
	return m.change(ctx, target, true)
}

// Pause pauses playback. It is a no-op unless playing.
func (m *Machine) Pause(ctx context.Context) error {
	if m.state != media.Playing {
		return nil
	}
	if err := m.output.Pause(ctx); err != nil {
		return m.commandError("pause", err)
	}

	pos, _ := m.output.Position(ctx)
	m.setState(media.Paused)
	if cur := m.Current(); cur != nil {
		m.publish(events.NewTrackPlaybackPaused(*cur, pos))
	}
	return nil
}

// Resume continues paused playback. It is a no-op unless paused.
func (m *Machine) Resume(ctx context.Context) error {
	if m.state != media.Paused {
		return nil
	}
	if err := m.output.Play(ctx); err != nil {
		return m.commandError("resume", err)
	}

	pos, _ := m.output.Position(ctx)
	m.setState(media.Playing)
	if cur := m.Current(); cur != nil {
		m.publish(events.NewTrackPlaybackResumed(*cur, pos))
	}
	return nil
}

// Stop stops playback and keeps the cursor. The state becomes stopped even
// when the output fails to stop; that failure is still returned.
func (m *Machine) Stop(ctx context.Context) error {
	m.errorStreak = 0
	m.endCurrent(ctx)

	err := m.output.Stop(ctx)
	m.activeURI = ""
	m.setState(media.Stopped)

	if err != nil {
		log.Warn().Err(err).Msg("Audio output failed to stop")
		return m.commandError("stop", err)
	}
	return nil
}

// Next plays the track after the current one. Single mode does not apply
// to an explicit next.
func (m *Machine) Next(ctx context.Context) error {
	m.errorStreak = 0
	return m.advance(ctx, m.tracklist.NextTrack(m.Current()))
}

// Previous plays the track before the current one.
func (m *Machine) Previous(ctx context.Context) error {
	m.errorStreak = 0
	return m.advance(ctx, m.tracklist.PreviousTrack(m.Current()))
}

// Seek moves the playhead, clamped to the track duration when known.
func (m *Machine) Seek(ctx context.Context, position time.Duration) error {
	cur := m.Current()
	if cur == nil {
		return errors.Invalid("seek", "no current track")
	}
	if m.state == media.Stopped {
		return errors.Invalid("seek", "playback is stopped")
	}

	if position < 0 {
		position = 0
	}
	if d := cur.Track.Duration; d > 0 && position > d {
		position = d
	}

	if err := m.output.Seek(ctx, position); err != nil {
		return m.commandError("seek", err)
	}
	m.publish(events.NewSeeked(position))
	return nil
}

// SetVolume sets the output volume and returns the applied level.
func (m *Machine) SetVolume(ctx context.Context, volume int) (int, error) {
	before, _ := m.output.Volume(ctx)
	applied, err := m.output.SetVolume(ctx, volume)
	if err != nil {
		return 0, m.commandError("set_volume", err)
	}
	if applied != before {
		m.publish(events.NewVolumeChanged(applied))
	}
	return applied, nil
}

// Volume returns the output volume.
func (m *Machine) Volume(ctx context.Context) (int, error) {
	return m.output.Volume(ctx)
}

// SetMute mutes or unmutes the output.
func (m *Machine) SetMute(ctx context.Context, mute bool) error {
	before, _ := m.output.Mute(ctx)
	if err := m.output.SetMute(ctx, mute); err != nil {
		return m.commandError("set_mute", err)
	}
	if before != mute {
		m.publish(events.NewMuteChanged(mute))
	}
	return nil
}

// Mute reports whether the output is muted.
func (m *Machine) Mute(ctx context.Context) (bool, error) {
	return m.output.Mute(ctx)
}

// BeforeRemove must be called before tracks are removed from the tracklist.
// Removing the current track stops playback and clears the cursor.
func (m *Machine) BeforeRemove(ctx context.Context, removed []media.TlTrack) {
	cur := m.Current()
	if cur == nil {
		return
	}
	for _, tl := range removed {
		if tl.TLID != cur.TLID {
			continue
		}
		log.Info().Int("tlid", cur.TLID).Msg("Current track removed, stopping")
		if m.state != media.Stopped {
			_ = m.Stop(ctx)
		}
		_ = m.tracklist.SetCurrent(0)
		return
	}
}

// OnEndOfStream handles the end of the active stream: the next track for
// the current modes starts, and in consume mode the finished track is
// removed once its successor has started.
func (m *Machine) OnEndOfStream(ctx context.Context, uri string) {
	if m.state != media.Playing || uri != m.activeURI {
		log.Debug().Str("uri", uri).Str("state", string(m.state)).Msg("Ignoring end of stream")
		return
	}
	m.errorStreak = 0

	finished := m.Current()
	if finished == nil {
		m.stopAndClear(ctx)
		return
	}
	m.publish(events.NewTrackPlaybackEnded(*finished, finished.Track.Duration))

	next := m.tracklist.EOTTrack(finished)
	if next == nil {
		m.stopAndClear(ctx)
	} else if err := m.change(ctx, *next, false); err != nil {
		log.Warn().Err(err).Int("tlid", next.TLID).Msg("Failed to start next track")
	}

	if m.tracklist.Modes().Consume {
		m.consume(*finished)
	}
}

// OnStreamError skips the unplayable current track once. After errors on
// as many consecutive tracks as the tracklist holds, playback stops.
func (m *Machine) OnStreamError(ctx context.Context, uri, message string) {
	if m.state == media.Stopped || uri != m.activeURI {
		log.Debug().Str("uri", uri).Msg("Ignoring stream error")
		return
	}

	failed := m.Current()
	log.Warn().Str("uri", uri).Str("error", message).Msg("Track unplayable, skipping")
	if failed == nil {
		m.stopAndClear(ctx)
		return
	}
	m.publish(events.NewTrackPlaybackEnded(*failed, 0))

	m.errorStreak++
	if m.errorStreak >= m.tracklist.Len() {
		log.Warn().Int("errors", m.errorStreak).Msg("Every track failed, stopping")
		m.errorStreak = 0
		m.stopAndClear(ctx)
		return
	}

	next := m.tracklist.EOTTrack(failed)
	if next == nil || next.TLID == failed.TLID {
		m.stopAndClear(ctx)
		return
	}
	if err := m.change(ctx, *next, false); err != nil {
		log.Warn().Err(err).Int("tlid", next.TLID).Msg("Failed to start next track")
	}
}

// AudioLost forces the stopped state after the audio output terminated.
func (m *Machine) AudioLost() {
	m.activeURI = ""
	m.setState(media.Stopped)
}

func (m *Machine) advance(ctx context.Context, target *media.TlTrack) error {
	if target == nil {
		m.stopAndClear(ctx)
		return nil
	}
	return m.change(ctx, *target, true)
}

// change makes target current and starts it. On failure the machine is
// stopped with target still current, and nothing else is tried.
func (m *Machine) change(ctx context.Context, target media.TlTrack, endPrevious bool) error {
	if endPrevious {
		m.endCurrent(ctx)
	}
	if err := m.tracklist.SetCurrent(target.TLID); err != nil {
		return err
	}

	uri, err := m.resolver.TranslateURI(ctx, target.Track.URI)
	if err != nil {
		return m.failStart(ctx, target, err)
	}
	if err := m.output.SetURI(ctx, uri); err != nil {
		return m.failStart(ctx, target, err)
	}
	if err := m.output.Play(ctx); err != nil {
		return m.failStart(ctx, target, err)
	}

	m.activeURI = uri
	m.tracklist.MarkPlaying(target)
	m.history.Add(target.Track)
	m.setState(media.Playing)

	log.Info().Int("tlid", target.TLID).Str("uri", target.Track.URI).Msg("Playing")
	m.publish(events.NewTrackPlaybackStarted(target))
	return nil
}

func (m *Machine) failStart(ctx context.Context, target media.TlTrack, cause error) error {
	log.Warn().Err(cause).Int("tlid", target.TLID).Str("uri", target.Track.URI).Msg("Playback failed to start")

	if m.state != media.Stopped {
		if err := m.output.Stop(ctx); err != nil {
			log.Debug().Err(err).Msg("Stop after failed start")
		}
	}
	m.activeURI = ""
	m.setState(media.Stopped)

	if errors.Is(cause, errors.ErrActorUnavailable) {
		return cause
	}
	return errors.Playback("play", cause)
}

// endCurrent reports the end of the current track when it is playing or
// paused.
func (m *Machine) endCurrent(ctx context.Context) {
	if m.state == media.Stopped {
		return
	}
	cur := m.Current()
	if cur == nil {
		return
	}
	pos, _ := m.output.Position(ctx)
	m.publish(events.NewTrackPlaybackEnded(*cur, pos))
}

func (m *Machine) stopAndClear(ctx context.Context) {
	if err := m.output.Stop(ctx); err != nil {
		log.Debug().Err(err).Msg("Stop at end of tracklist")
	}
	m.activeURI = ""
	_ = m.tracklist.SetCurrent(0)
	m.setState(media.Stopped)
}

func (m *Machine) consume(finished media.TlTrack) {
	removed := m.tracklist.Remove(tracklist.Criteria{TLID: []int{finished.TLID}})
	if len(removed) > 0 {
		log.Debug().Int("tlid", finished.TLID).Msg("Consumed track")
		m.publish(events.NewTracklistChanged(m.tracklist.Version()))
	}
}

func (m *Machine) commandError(op string, err error) error {
	if errors.Is(err, errors.ErrActorUnavailable) {
		m.AudioLost()
		return err
	}
	return errors.Playback(op, err)
}

func (m *Machine) setState(next media.PlaybackState) {
	if m.state == next {
		return
	}
	prev := m.state
	m.state = next
	log.Info().Str("from", string(prev)).Str("to", string(next)).Msg("Playback state changed")
	m.publish(events.NewPlaybackStateChanged(prev, next))
}

func (m *Machine) publish(ev events.Event) {
	if m.publisher != nil {
		m.publisher.Publish(ev)
	}
}
