package errors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edumarques81/stellar-mediacore/internal/errors"
)

func TestWrapKeepsKindAndCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := errors.Wrap(errors.ErrPlayback, "play", cause)

	assert.True(t, errors.Is(err, errors.ErrPlayback))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "play: playback failed: connection refused", err.Error())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"lookup", errors.Lookup("lookup", "no backend for %q", "spotify"), errors.ErrLookup},
		{"invalid", errors.Invalid("seek", "no current track"), errors.ErrInvalidOperation},
		{"wrapped timeout", fmt.Errorf("ask: %w", errors.ErrTimeout), errors.ErrTimeout},
		{"plain", fmt.Errorf("boom"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.KindOf(tt.err))
		})
	}
}

func TestPlaybackDoesNotDoubleWrap(t *testing.T) {
	inner := errors.Playback("set_uri", fmt.Errorf("decoder missing"))
	outer := errors.Playback("play", inner)

	assert.Same(t, inner, outer)
}

func TestErrorStringWithoutCause(t *testing.T) {
	err := errors.Wrap(errors.ErrActorUnavailable, "ask audio", nil)
	assert.Equal(t, "ask audio: actor unavailable", err.Error())
}
