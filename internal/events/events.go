// Package events defines the core state-change notifications and the
// dispatcher that fans them out to frontends.
package events

import (
	"time"

	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
)

// Event is implemented by every notification published by the core.
type Event interface {
	// Type returns the event type identifier
	Type() Type

	// Timestamp returns when the event occurred
	Timestamp() time.Time
}

// Type identifies an event kind. The values are part of the frontend
// contract.
type Type string

// Event types.
const (
	// Playback
	TypePlaybackStateChanged Type = "playback_state_changed"
	TypeTrackPlaybackStarted Type = "track_playback_started"
	TypeTrackPlaybackEnded   Type = "track_playback_ended"
	TypeTrackPlaybackPaused  Type = "track_playback_paused"
	TypeTrackPlaybackResumed Type = "track_playback_resumed"
	TypeSeeked               Type = "seeked"

	// Mixer
	TypeVolumeChanged Type = "volume_changed"
	TypeMuteChanged   Type = "mute_changed"

	// Tracklist
	TypeTracklistChanged Type = "tracklist_changed"
	TypeOptionsChanged   Type = "options_changed"

	// Stored playlists
	TypePlaylistChanged Type = "playlist_changed"
	TypePlaylistDeleted Type = "playlist_deleted"
)

type baseEvent struct {
	timestamp time.Time
}

// Timestamp returns when the event occurred.
func (e baseEvent) Timestamp() time.Time {
	return e.timestamp
}

func newBaseEvent() baseEvent {
	return baseEvent{timestamp: time.Now()}
}

// PlaybackStateChanged is published on every state transition.
type PlaybackStateChanged struct {
	baseEvent
	OldState media.PlaybackState
	NewState media.PlaybackState
}

// Type returns the event type.
func (e PlaybackStateChanged) Type() Type { return TypePlaybackStateChanged }

// NewPlaybackStateChanged creates a PlaybackStateChanged event.
func NewPlaybackStateChanged(oldState, newState media.PlaybackState) PlaybackStateChanged {
	return PlaybackStateChanged{baseEvent: newBaseEvent(), OldState: oldState, NewState: newState}
}

// TrackPlaybackStarted is published when a new track starts playing.
type TrackPlaybackStarted struct {
	baseEvent
	TlTrack media.TlTrack
}

// Type returns the event type.
func (e TrackPlaybackStarted) Type() Type { return TypeTrackPlaybackStarted }

// NewTrackPlaybackStarted creates a TrackPlaybackStarted event.
func NewTrackPlaybackStarted(tl media.TlTrack) TrackPlaybackStarted {
	return TrackPlaybackStarted{baseEvent: newBaseEvent(), TlTrack: tl}
}

// TrackPlaybackEnded is published when a track stops being the playing
// track, whether it finished or was interrupted.
type TrackPlaybackEnded struct {
	baseEvent
	TlTrack  media.TlTrack
	Position time.Duration
}

// Type returns the event type.
func (e TrackPlaybackEnded) Type() Type { return TypeTrackPlaybackEnded }

// NewTrackPlaybackEnded creates a TrackPlaybackEnded event.
func NewTrackPlaybackEnded(tl media.TlTrack, position time.Duration) TrackPlaybackEnded {
	return TrackPlaybackEnded{baseEvent: newBaseEvent(), TlTrack: tl, Position: position}
}

// TrackPlaybackPaused is published when playback is paused.
type TrackPlaybackPaused struct {
	baseEvent
	TlTrack  media.TlTrack
	Position time.Duration
}

// Type returns the event type.
func (e TrackPlaybackPaused) Type() Type { return TypeTrackPlaybackPaused }

// NewTrackPlaybackPaused creates a TrackPlaybackPaused event.
func NewTrackPlaybackPaused(tl media.TlTrack, position time.Duration) TrackPlaybackPaused {
	return TrackPlaybackPaused{baseEvent: newBaseEvent(), TlTrack: tl, Position: position}
}

// TrackPlaybackResumed is published when paused playback resumes.
type TrackPlaybackResumed struct {
	baseEvent
	TlTrack  media.TlTrack
	Position time.Duration
}

// Type returns the event type.
func (e TrackPlaybackResumed) Type() Type { return TypeTrackPlaybackResumed }

// NewTrackPlaybackResumed creates a TrackPlaybackResumed event.
func NewTrackPlaybackResumed(tl media.TlTrack, position time.Duration) TrackPlaybackResumed {
	return TrackPlaybackResumed{baseEvent: newBaseEvent(), TlTrack: tl, Position: position}
}

// Seeked is published after a successful seek.
type Seeked struct {
	baseEvent
	Position time.Duration
}

// Type returns the event type.
func (e Seeked) Type() Type { return TypeSeeked }

// NewSeeked creates a Seeked event.
func NewSeeked(position time.Duration) Seeked {
	return Seeked{baseEvent: newBaseEvent(), Position: position}
}

// VolumeChanged is published when the output volume changes.
type VolumeChanged struct {
	baseEvent
	Volume int
}

// Type returns the event type.
func (e VolumeChanged) Type() Type { return TypeVolumeChanged }

// NewVolumeChanged creates a VolumeChanged event.
func NewVolumeChanged(volume int) VolumeChanged {
	return VolumeChanged{baseEvent: newBaseEvent(), Volume: volume}
}

// MuteChanged is published when the output is muted or unmuted.
type MuteChanged struct {
	baseEvent
	Mute bool
}

// Type returns the event type.
func (e MuteChanged) Type() Type { return TypeMuteChanged }

// NewMuteChanged creates a MuteChanged event.
func NewMuteChanged(mute bool) MuteChanged {
	return MuteChanged{baseEvent: newBaseEvent(), Mute: mute}
}

// TracklistChanged is published after every content mutation of the
// tracklist, carrying the new version.
type TracklistChanged struct {
	baseEvent
	Version int
}

// Type returns the event type.
func (e TracklistChanged) Type() Type { return TypeTracklistChanged }

// NewTracklistChanged creates a TracklistChanged event.
func NewTracklistChanged(version int) TracklistChanged {
	return TracklistChanged{baseEvent: newBaseEvent(), Version: version}
}

// Options holds the tracklist mode flags.
type Options struct {
	Repeat  bool `json:"repeat"`
	Random  bool `json:"random"`
	Consume bool `json:"consume"`
	Single  bool `json:"single"`
}

// OptionsChanged is published when a tracklist mode flag changes.
type OptionsChanged struct {
	baseEvent
	Options Options
}

// Type returns the event type.
func (e OptionsChanged) Type() Type { return TypeOptionsChanged }

// NewOptionsChanged creates an OptionsChanged event.
func NewOptionsChanged(opts Options) OptionsChanged {
	return OptionsChanged{baseEvent: newBaseEvent(), Options: opts}
}

// PlaylistChanged is published when a stored playlist is created or saved.
type PlaylistChanged struct {
	baseEvent
	Playlist media.Playlist
}

// Type returns the event type.
func (e PlaylistChanged) Type() Type { return TypePlaylistChanged }

// NewPlaylistChanged creates a PlaylistChanged event.
func NewPlaylistChanged(pl media.Playlist) PlaylistChanged {
	return PlaylistChanged{baseEvent: newBaseEvent(), Playlist: pl}
}

// PlaylistDeleted is published when a stored playlist is deleted.
type PlaylistDeleted struct {
	baseEvent
	URI string
}

// Type returns the event type.
func (e PlaylistDeleted) Type() Type { return TypePlaylistDeleted }

// NewPlaylistDeleted creates a PlaylistDeleted event.
func NewPlaylistDeleted(uri string) PlaylistDeleted {
	return PlaylistDeleted{baseEvent: newBaseEvent(), URI: uri}
}
