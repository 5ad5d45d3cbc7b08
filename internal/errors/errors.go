// Package errors defines the error kinds shared by the media core.
//
// Every failure surfaced by the core wraps exactly one of the sentinel kinds
// below, so callers can branch with Is regardless of how deep the cause sits.
package errors

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	// ErrActorUnavailable is returned when the target actor has terminated
	// or never existed.
	ErrActorUnavailable = errors.New("actor unavailable")
	// ErrTimeout is returned when no reply arrived within the deadline.
	ErrTimeout = errors.New("timeout")
	// ErrLookup is returned when no backend could resolve a URI or capability.
	ErrLookup = errors.New("lookup failed")
	// ErrPlayback is returned when the audio engine rejected a command or
	// reported a stream error.
	ErrPlayback = errors.New("playback failed")
	// ErrInvalidOperation is returned for transitions that are illegal in the
	// current state, e.g. seeking with no current track.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrStaleVersion is returned when a caller's tracklist version is behind.
	ErrStaleVersion = errors.New("stale tracklist version")
	// ErrInvalidConfig is returned when configuration fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Error wraps a cause with its kind and the operation that failed.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Op != "":
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return e.Kind.Error()
	}
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap returns err tagged with kind for op. A nil err yields a bare kind error.
func Wrap(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Lookup builds an ErrLookup error with a formatted cause.
func Lookup(op, format string, args ...any) error {
	return &Error{Kind: ErrLookup, Op: op, Err: fmt.Errorf(format, args...)}
}

// Playback tags err as a playback failure.
func Playback(op string, err error) error {
	if err != nil && errors.Is(err, ErrPlayback) {
		return err
	}
	return &Error{Kind: ErrPlayback, Op: op, Err: err}
}

// Invalid builds an ErrInvalidOperation error with a formatted cause.
func Invalid(op, format string, args ...any) error {
	return &Error{Kind: ErrInvalidOperation, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the sentinel kind carried by err, or nil if it has none.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrActorUnavailable, ErrTimeout, ErrLookup, ErrPlayback,
		ErrInvalidOperation, ErrStaleVersion, ErrInvalidConfig,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// New, Is, As and Join mirror the standard library so callers only import
// this package.
func New(text string) error { return errors.New(text) }

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func Join(errs ...error) error { return errors.Join(errs...) }
