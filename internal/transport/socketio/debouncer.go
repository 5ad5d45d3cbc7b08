package socketio

import (
	"sync"
	"time"

	"github.com/edumarques81/stellar-mediacore/internal/events"
)

// DefaultDebounceWindow is the quiet period before a broadcast fires.
const DefaultDebounceWindow = 50 * time.Millisecond

// BroadcastDebouncer collapses rapid core events into batched broadcasts.
// Multiple events within the debounce window result in a single broadcast
// for each affected type (state and/or queue).
type BroadcastDebouncer struct {
	window        time.Duration
	stateCallback func(force bool)
	queueCallback func()

	mu           sync.Mutex
	pendingState bool
	pendingQueue bool
	forceState   bool
	timer        *time.Timer
	stopped      bool
}

// NewBroadcastDebouncer creates a debouncer with the given window duration.
// stateCallback is called when playback, mixer or option events need
// broadcasting; force is set when a seek happened in the window, since the
// state diff ignores the playhead. queueCallback is called when the
// tracklist changed.
func NewBroadcastDebouncer(window time.Duration, stateCallback func(force bool), queueCallback func()) *BroadcastDebouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &BroadcastDebouncer{
		window:        window,
		stateCallback: stateCallback,
		queueCallback: queueCallback,
	}
}

// Trigger records an event of type t. The broadcast callbacks are deferred
// until the debounce window elapses without further triggers.
func (d *BroadcastDebouncer) Trigger(t events.Type) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	switch t {
	case events.TypeTracklistChanged:
		d.pendingState = true
		d.pendingQueue = true
	case events.TypeSeeked:
		d.pendingState = true
		d.forceState = true
	case events.TypePlaylistChanged, events.TypePlaylistDeleted:
		return
	default:
		d.pendingState = true
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush fires callbacks for any pending flags and resets them.
func (d *BroadcastDebouncer) flush() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	doState := d.pendingState
	doQueue := d.pendingQueue
	force := d.forceState
	d.pendingState = false
	d.pendingQueue = false
	d.forceState = false
	d.mu.Unlock()

	if doState && d.stateCallback != nil {
		d.stateCallback(force)
	}
	if doQueue && d.queueCallback != nil {
		d.queueCallback()
	}
}

// Stop prevents any further callbacks from firing.
func (d *BroadcastDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pendingState = false
	d.pendingQueue = false
	d.forceState = false
}
