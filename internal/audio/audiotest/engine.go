// Package audiotest provides a scriptable in-memory audio.Engine.
package audiotest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/edumarques81/stellar-mediacore/internal/audio"
)

// Engine is a fake audio.Engine. It records every command and lets tests
// inject failures and emit engine events.
type Engine struct {
	mu       sync.Mutex
	calls    []string
	uri      string
	playing  bool
	position time.Duration
	duration time.Duration
	volume   int

	// Failures keyed by command name ("set_uri", "play", "stop", ...).
	failures map[string]error
	// Per-URI SetURI failures.
	badURIs map[string]error
	delay   time.Duration
	// Command that panics, to simulate an engine crashing the output actor.
	panicOn string

	events chan audio.EngineEvent
	closed bool
}

// NewEngine returns an idle fake engine at volume 100.
func NewEngine() *Engine {
	return &Engine{
		volume:   100,
		duration: 3 * time.Minute,
		failures: make(map[string]error),
		badURIs:  make(map[string]error),
		events:   make(chan audio.EngineEvent, 16),
	}
}

// FailOn makes every later call of cmd fail with err; nil clears it.
func (e *Engine) FailOn(cmd string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.failures, cmd)
		return
	}
	e.failures[cmd] = err
}

// RejectURI makes SetURI(uri) fail.
func (e *Engine) RejectURI(uri string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.badURIs[uri] = err
}

// PanicOn makes the next call of cmd panic.
func (e *Engine) PanicOn(cmd string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.panicOn = cmd
}

// SetDelay makes every command take d.
func (e *Engine) SetDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = d
}

// SetPosition sets the reported playhead.
func (e *Engine) SetPosition(p time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.position = p
}

// SetDuration sets the reported stream length.
func (e *Engine) SetDuration(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.duration = d
}

// Calls returns the recorded commands, e.g. "set_uri file:a", "play".
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// CountCalls returns how many recorded commands start with prefix.
func (e *Engine) CountCalls(prefix string) int {
	n := 0
	for _, c := range e.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (e *Engine) ResetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

// URI returns the stream last accepted by SetURI.
func (e *Engine) URI() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.uri
}

// Playing reports whether the engine is rendering.
func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// Finish emits end-of-stream for the current stream.
func (e *Engine) Finish() {
	e.mu.Lock()
	uri := e.uri
	e.playing = false
	e.mu.Unlock()
	e.Emit(audio.EngineEvent{Kind: audio.EngineEndOfStream, URI: uri})
}

// Break emits a stream error for the current stream.
func (e *Engine) Break(msg string) {
	e.mu.Lock()
	uri := e.uri
	e.playing = false
	e.mu.Unlock()
	e.Emit(audio.EngineEvent{Kind: audio.EngineStreamError, URI: uri, Message: msg})
}

// Emit delivers an arbitrary engine event.
func (e *Engine) Emit(ev audio.EngineEvent) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if !closed {
		e.events <- ev
	}
}

func (e *Engine) do(cmd string) error {
	e.mu.Lock()
	delay := e.delay
	e.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, cmd)
	name, _, _ := strings.Cut(cmd, " ")
	if name == e.panicOn {
		e.panicOn = ""
		panic("audiotest: " + name + " crashed")
	}
	if err, ok := e.failures[name]; ok {
		return err
	}
	return nil
}

func (e *Engine) SetURI(ctx context.Context, uri string) error {
	if err := e.do("set_uri " + uri); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err, ok := e.badURIs[uri]; ok {
		return err
	}
	e.uri = uri
	e.playing = false
	e.position = 0
	return nil
}

func (e *Engine) Play(ctx context.Context) error {
	if err := e.do("play"); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.uri == "" {
		return fmt.Errorf("no uri")
	}
	e.playing = true
	return nil
}

func (e *Engine) Pause(ctx context.Context) error {
	if err := e.do("pause"); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
	return nil
}

func (e *Engine) Resume(ctx context.Context) error {
	if err := e.do("resume"); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = true
	return nil
}

func (e *Engine) Stop(ctx context.Context) error {
	err := e.do("stop")
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
	e.position = 0
	return err
}

func (e *Engine) Seek(ctx context.Context, position time.Duration) error {
	if err := e.do(fmt.Sprintf("seek %s", position)); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.position = position
	return nil
}

func (e *Engine) Position(ctx context.Context) (time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position, nil
}

func (e *Engine) Duration(ctx context.Context) (time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration, nil
}

func (e *Engine) SetVolume(ctx context.Context, volume int) error {
	if err := e.do(fmt.Sprintf("set_volume %d", volume)); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = volume
	return nil
}

func (e *Engine) Volume(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume, nil
}

func (e *Engine) Events() <-chan audio.EngineEvent {
	return e.events
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
	return nil
}
