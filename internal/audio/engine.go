// Package audio owns the single audio-rendering pipeline: an Output actor
// wrapping an external Engine, plus audio format detection for status
// reporting.
package audio

import (
	"context"
	"time"
)

// Engine is the external rendering engine driven by Output. Command methods
// return once the engine has acknowledged the transition or failed.
type Engine interface {
	SetURI(ctx context.Context, uri string) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
	Position(ctx context.Context) (time.Duration, error)
	Duration(ctx context.Context) (time.Duration, error)
	SetVolume(ctx context.Context, volume int) error
	Volume(ctx context.Context) (int, error)

	// Events delivers asynchronous engine notifications. The channel is
	// closed by Close.
	Events() <-chan EngineEvent
	Close() error
}

// EngineEventKind classifies an EngineEvent.
type EngineEventKind int

// Engine event kinds.
const (
	// EngineEndOfStream: the stream for URI finished naturally.
	EngineEndOfStream EngineEventKind = iota
	// EngineStreamError: unrecoverable decode or transport failure for URI.
	EngineStreamError
	// EngineFormat: the output format for URI changed; Format holds
	// "samplerate:bits:channels".
	EngineFormat
)

func (k EngineEventKind) String() string {
	switch k {
	case EngineEndOfStream:
		return "end_of_stream"
	case EngineStreamError:
		return "stream_error"
	case EngineFormat:
		return "format"
	default:
		return "unknown"
	}
}

// EngineEvent is a notification from the engine about the stream URI.
type EngineEvent struct {
	Kind    EngineEventKind
	URI     string
	Message string
	Format  string
}

// EventKind classifies the events Output reports upward.
type EventKind int

// Output event kinds.
const (
	EndOfStream EventKind = iota
	StreamError
)

func (k EventKind) String() string {
	if k == EndOfStream {
		return "reached_end_of_stream"
	}
	return "stream_error"
}

// Event is reported by Output to its owner. EndOfStream is reported exactly
// once per stream; StreamError at most once per stream.
type Event struct {
	Kind    EventKind
	URI     string
	Message string
}

// Sink receives Output events. It is called from the Output actor and must
// not block on that actor.
type Sink func(Event)
