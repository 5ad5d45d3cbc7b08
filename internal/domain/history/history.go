// Package history keeps the bounded log of recently played tracks.
package history

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
)

// DefaultMaxLength is the number of entries kept when no limit is given.
const DefaultMaxLength = 1000

// Entry is one play of a track.
type Entry struct {
	ID       string      `json:"id"`
	PlayedAt time.Time   `json:"playedAt"`
	Track    media.Track `json:"track"`
}

// History is an append-only log truncated oldest-first. It is owned by the
// core actor and not safe for concurrent use.
type History struct {
	entries   []Entry
	maxLength int
	now       func() time.Time
}

// New creates a history holding at most maxLength entries. maxLength <= 0
// selects DefaultMaxLength.
func New(maxLength int) *History {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &History{
		maxLength: maxLength,
		now:       time.Now,
	}
}

// Add records that track started playing.
func (h *History) Add(track media.Track) Entry {
	entry := Entry{
		ID:       uuid.New().String(),
		PlayedAt: h.now(),
		Track:    track,
	}
	h.entries = append(h.entries, entry)

	// Trim to max entries
	if len(h.entries) > h.maxLength {
		h.entries = append([]Entry(nil), h.entries[len(h.entries)-h.maxLength:]...)
	}

	log.Debug().
		Str("uri", track.URI).
		Str("title", track.Title()).
		Int("size", len(h.entries)).
		Msg("Recorded play history")
	return entry
}

// Entries returns every entry, oldest first.
func (h *History) Entries() []Entry {
	return append([]Entry(nil), h.entries...)
}

// Recent returns up to limit entries, most recent first. limit <= 0 returns
// all of them.
func (h *History) Recent(limit int) []Entry {
	n := len(h.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, h.entries[i])
	}
	return out
}

// PlayCount returns how many times uri appears in the log.
func (h *History) PlayCount(uri string) int {
	count := 0
	for _, e := range h.entries {
		if e.Track.URI == uri {
			count++
		}
	}
	return count
}

// Len returns the number of entries.
func (h *History) Len() int { return len(h.entries) }

// MaxLength returns the configured cap.
func (h *History) MaxLength() int { return h.maxLength }

// Clear removes every entry.
func (h *History) Clear() {
	h.entries = nil
	log.Info().Msg("Playback history cleared")
}
