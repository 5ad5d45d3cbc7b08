// Package tracklist implements the play queue: stable tracklist ids, a
// version counter for optimistic concurrency and the repeat, random,
// consume and single modes.
//
// A Tracklist is not safe for concurrent use. The core actor owns it and
// every mutation happens within one message turn.
package tracklist

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/edumarques81/stellar-mediacore/internal/domain/media"
	"github.com/edumarques81/stellar-mediacore/internal/errors"
)

// Modes holds the playback mode flags.
type Modes struct {
	Repeat  bool
	Random  bool
	Consume bool
	Single  bool
}

// Criteria selects tracks. Each non-empty field matches if any of its values
// matches; all non-empty fields must match.
type Criteria struct {
	TLID   []int
	URI    []string
	Name   []string
	Album  []string
	Artist []string
}

// Empty reports whether no field is set.
func (c Criteria) Empty() bool {
	return len(c.TLID) == 0 && len(c.URI) == 0 && len(c.Name) == 0 &&
		len(c.Album) == 0 && len(c.Artist) == 0
}

// Match reports whether tl satisfies c. Empty criteria match nothing.
func (c Criteria) Match(tl media.TlTrack) bool {
	if c.Empty() {
		return false
	}
	if len(c.TLID) > 0 && !containsInt(c.TLID, tl.TLID) {
		return false
	}
	if len(c.URI) > 0 && !containsString(c.URI, tl.Track.URI) {
		return false
	}
	if len(c.Name) > 0 && !containsString(c.Name, tl.Track.Name) {
		return false
	}
	if len(c.Album) > 0 && !containsString(c.Album, tl.Track.Album) {
		return false
	}
	if len(c.Artist) > 0 {
		found := false
		for _, a := range tl.Track.Artists {
			if containsString(c.Artist, a) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, x := range values {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}

// Snapshot is an immutable copy of the tracklist state.
type Snapshot struct {
	Version int
	Tracks  []media.TlTrack
	Current *media.TlTrack
	Modes   Modes
}

// Option configures New.
type Option func(*Tracklist)

// WithRand sets the random source used by random mode and Shuffle.
func WithRand(r *rand.Rand) Option {
	return func(t *Tracklist) {
		if r != nil {
			t.rng = r
		}
	}
}

// Tracklist is the ordered play queue.
type Tracklist struct {
	tracks   []media.TlTrack
	nextTLID int
	version  int
	current  int // tlid, 0 when none
	modes    Modes

	// pool holds the tlids not yet played in random mode, in draw order.
	pool []int
	rng  *rand.Rand
}

// New returns an empty tracklist at version 0.
func New(opts ...Option) *Tracklist {
	t := &Tracklist{
		nextTLID: 1,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Version returns the mutation counter.
func (t *Tracklist) Version() int { return t.version }

// CheckVersion fails with ErrStaleVersion when expected is not the current
// version.
func (t *Tracklist) CheckVersion(expected int) error {
	if expected != t.version {
		return errors.Wrap(errors.ErrStaleVersion, "tracklist", fmt.Errorf("expected version %d, at %d", expected, t.version))
	}
	return nil
}

// Len returns the number of tracks.
func (t *Tracklist) Len() int { return len(t.tracks) }

// Tracks returns a copy of the tracks in order.
func (t *Tracklist) Tracks() []media.TlTrack {
	return append([]media.TlTrack(nil), t.tracks...)
}

// Slice returns a copy of tracks [start, end), clamped to the list bounds.
func (t *Tracklist) Slice(start, end int) []media.TlTrack {
	if start < 0 {
		start = 0
	}
	if end > len(t.tracks) || end < 0 {
		end = len(t.tracks)
	}
	if start >= end {
		return nil
	}
	return append([]media.TlTrack(nil), t.tracks[start:end]...)
}

// Index returns the position of tlid, or -1.
func (t *Tracklist) Index(tlid int) int {
	for i, tl := range t.tracks {
		if tl.TLID == tlid {
			return i
		}
	}
	return -1
}

// Get returns the track with tlid.
func (t *Tracklist) Get(tlid int) (media.TlTrack, bool) {
	if i := t.Index(tlid); i >= 0 {
		return t.tracks[i], true
	}
	return media.TlTrack{}, false
}

// At returns the track at position i.
func (t *Tracklist) At(i int) (media.TlTrack, bool) {
	if i < 0 || i >= len(t.tracks) {
		return media.TlTrack{}, false
	}
	return t.tracks[i], true
}

// Filter returns the tracks matching c, in order.
func (t *Tracklist) Filter(c Criteria) []media.TlTrack {
	var out []media.TlTrack
	for _, tl := range t.tracks {
		if c.Match(tl) {
			out = append(out, tl)
		}
	}
	return out
}

// Current returns the track under the cursor.
func (t *Tracklist) Current() (media.TlTrack, bool) {
	if t.current == 0 {
		return media.TlTrack{}, false
	}
	return t.Get(t.current)
}

// SetCurrent moves the cursor; tlid 0 clears it.
func (t *Tracklist) SetCurrent(tlid int) error {
	if tlid == 0 {
		t.current = 0
		return nil
	}
	if t.Index(tlid) < 0 {
		return errors.Invalid("set_current", "tlid %d not in tracklist", tlid)
	}
	t.current = tlid
	return nil
}

// Snapshot returns a copy of the whole state.
func (t *Tracklist) Snapshot() Snapshot {
	s := Snapshot{Version: t.version, Tracks: t.Tracks(), Modes: t.modes}
	if cur, ok := t.Current(); ok {
		s.Current = &cur
	}
	return s
}

// Add inserts tracks at position (append when position < 0) and returns the
// new entries. TLIDs ascend in call order regardless of position. The
// version is bumped once per non-empty call.
func (t *Tracklist) Add(tracks []media.Track, position int) ([]media.TlTrack, error) {
	if position > len(t.tracks) {
		return nil, errors.Invalid("add", "position %d out of range (len %d)", position, len(t.tracks))
	}
	if len(tracks) == 0 {
		return nil, nil
	}
	if position < 0 {
		position = len(t.tracks)
	}

	added := make([]media.TlTrack, len(tracks))
	for i, tr := range tracks {
		added[i] = media.TlTrack{TLID: t.nextTLID, Track: tr}
		t.nextTLID++
	}

	next := make([]media.TlTrack, 0, len(t.tracks)+len(added))
	next = append(next, t.tracks[:position]...)
	next = append(next, added...)
	next = append(next, t.tracks[position:]...)
	t.tracks = next

	if t.modes.Random {
		for _, tl := range added {
			t.insertIntoPool(tl.TLID)
		}
	}

	t.version++
	return added, nil
}

// Remove deletes the tracks matching c and returns them. Removing the
// current track clears the cursor.
func (t *Tracklist) Remove(c Criteria) []media.TlTrack {
	var removed []media.TlTrack
	kept := t.tracks[:0:0]
	for _, tl := range t.tracks {
		if c.Match(tl) {
			removed = append(removed, tl)
			continue
		}
		kept = append(kept, tl)
	}
	if len(removed) == 0 {
		return nil
	}

	t.tracks = kept
	for _, tl := range removed {
		t.removeFromPool(tl.TLID)
		if tl.TLID == t.current {
			t.current = 0
		}
	}
	t.version++
	return removed
}

// Clear removes every track.
func (t *Tracklist) Clear() []media.TlTrack {
	if len(t.tracks) == 0 {
		return nil
	}
	removed := t.tracks
	t.tracks = nil
	t.current = 0
	t.pool = nil
	t.version++
	return removed
}

// Move moves tracks [start, end) so that the first of them lands at to.
func (t *Tracklist) Move(start, end, to int) error {
	n := len(t.tracks)
	if start < 0 || end > n || start >= end {
		return errors.Invalid("move", "range [%d:%d] out of bounds (len %d)", start, end, n)
	}
	if to < 0 || to > n-(end-start) {
		return errors.Invalid("move", "target %d out of bounds", to)
	}
	if start == to {
		return nil
	}

	moving := append([]media.TlTrack(nil), t.tracks[start:end]...)
	rest := make([]media.TlTrack, 0, n-len(moving))
	rest = append(rest, t.tracks[:start]...)
	rest = append(rest, t.tracks[end:]...)

	next := make([]media.TlTrack, 0, n)
	next = append(next, rest[:to]...)
	next = append(next, moving...)
	next = append(next, rest[to:]...)
	t.tracks = next

	t.version++
	return nil
}

// Shuffle randomizes the order of tracks [start, end). end < 0 means the end
// of the list.
func (t *Tracklist) Shuffle(start, end int) error {
	n := len(t.tracks)
	if end < 0 {
		end = n
	}
	if start < 0 || end > n || start > end {
		return errors.Invalid("shuffle", "range [%d:%d] out of bounds (len %d)", start, end, n)
	}
	if end-start < 2 {
		return nil
	}

	sub := t.tracks[start:end]
	t.rng.Shuffle(len(sub), func(i, j int) { sub[i], sub[j] = sub[j], sub[i] })
	t.version++
	return nil
}

// Modes returns the mode flags.
func (t *Tracklist) Modes() Modes { return t.modes }

// SetRepeat sets repeat mode and reports whether it changed.
func (t *Tracklist) SetRepeat(on bool) bool {
	changed := t.modes.Repeat != on
	t.modes.Repeat = on
	return changed
}

// SetConsume sets consume mode and reports whether it changed.
func (t *Tracklist) SetConsume(on bool) bool {
	changed := t.modes.Consume != on
	t.modes.Consume = on
	return changed
}

// SetSingle sets single mode and reports whether it changed.
func (t *Tracklist) SetSingle(on bool) bool {
	changed := t.modes.Single != on
	t.modes.Single = on
	return changed
}

// SetRandom sets random mode and reports whether it changed. Enabling it
// starts a fresh draw over every track except the current one.
func (t *Tracklist) SetRandom(on bool) bool {
	if t.modes.Random == on {
		return false
	}
	t.modes.Random = on
	if on {
		t.refillPool(true)
	} else {
		t.pool = nil
	}
	return true
}

// MarkPlaying records that tl started playing, committing it as drawn in
// random mode.
func (t *Tracklist) MarkPlaying(tl media.TlTrack) {
	t.removeFromPool(tl.TLID)
}

// NextTrack returns the track that follows current for an explicit next, or
// nil when there is none.
func (t *Tracklist) NextTrack(current *media.TlTrack) *media.TlTrack {
	if len(t.tracks) == 0 {
		return nil
	}

	if t.modes.Random {
		return t.drawRandom(current)
	}

	if current == nil {
		return t.ptr(0)
	}

	idx := t.Index(current.TLID)
	if idx < 0 {
		return t.ptr(0)
	}

	if t.modes.Repeat {
		if t.modes.Consume && len(t.tracks) == 1 {
			return nil
		}
		return t.ptr((idx + 1) % len(t.tracks))
	}
	if idx+1 >= len(t.tracks) {
		return nil
	}
	return t.ptr(idx + 1)
}

// EOTTrack returns the track to play when current reaches its end. Single
// mode stops after one track regardless of repeat.
func (t *Tracklist) EOTTrack(current *media.TlTrack) *media.TlTrack {
	if t.modes.Single {
		return nil
	}
	return t.NextTrack(current)
}

// PreviousTrack returns the track before current, or nil. In repeat, consume
// and random modes previous restarts the current track.
func (t *Tracklist) PreviousTrack(current *media.TlTrack) *media.TlTrack {
	if current == nil {
		return nil
	}
	idx := t.Index(current.TLID)
	if idx < 0 {
		return nil
	}
	if t.modes.Repeat || t.modes.Consume || t.modes.Random {
		return t.ptr(idx)
	}
	if idx == 0 {
		return nil
	}
	return t.ptr(idx - 1)
}

func (t *Tracklist) ptr(i int) *media.TlTrack {
	tl := t.tracks[i]
	return &tl
}

// drawRandom returns the next unplayed track. Once every track has been
// drawn a new round starts when repeat is on, or when nothing is current,
// which is a fresh play after the previous round ran out.
func (t *Tracklist) drawRandom(current *media.TlTrack) *media.TlTrack {
	if current == nil {
		if tl := t.firstInPool(0); tl != nil {
			return tl
		}
		t.refillPool(false)
		return t.firstInPool(0)
	}

	if tl := t.firstInPool(current.TLID); tl != nil {
		return tl
	}

	// Every track has been played.
	if len(t.tracks) == 1 {
		if t.modes.Repeat {
			return t.ptr(0)
		}
		return nil
	}
	if !t.modes.Repeat {
		return nil
	}
	t.refillPool(false)
	return t.firstInPool(current.TLID)
}

func (t *Tracklist) firstInPool(skip int) *media.TlTrack {
	for _, tlid := range t.pool {
		if tlid == skip {
			continue
		}
		if i := t.Index(tlid); i >= 0 {
			return t.ptr(i)
		}
	}
	return nil
}

// refillPool starts a new draw round. The current track is left out when
// it already counts as played in this round.
func (t *Tracklist) refillPool(skipCurrent bool) {
	t.pool = t.pool[:0]
	for _, tl := range t.tracks {
		if !skipCurrent || tl.TLID != t.current {
			t.pool = append(t.pool, tl.TLID)
		}
	}
	t.rng.Shuffle(len(t.pool), func(i, j int) { t.pool[i], t.pool[j] = t.pool[j], t.pool[i] })
}

func (t *Tracklist) insertIntoPool(tlid int) {
	i := t.rng.Intn(len(t.pool) + 1)
	t.pool = append(t.pool, 0)
	copy(t.pool[i+1:], t.pool[i:])
	t.pool[i] = tlid
}

func (t *Tracklist) removeFromPool(tlid int) {
	for i, id := range t.pool {
		if id == tlid {
			t.pool = append(t.pool[:i], t.pool[i+1:]...)
			return
		}
	}
}
