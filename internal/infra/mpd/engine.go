package mpd

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-mediacore/internal/audio"
)

// Player is the part of the MPD client the engine drives.
type Player interface {
	Status() (mpd.Attrs, error)
	Pause(pause bool) error
	Stop() error
	SeekCur(pos time.Duration) error
	SetVolume(vol int) error
	PlayID(id int) error
	Clear() error
	ClearError() error
	AddID(uri string, pos int) (int, error)
	Watch(subsystems ...string) (<-chan string, error)
}

// Engine plays one URI at a time through MPD's queue. End of stream and
// stream errors are derived from "player" idle events.
//
// Idle events are asynchronous: a notification raised by the previous
// stream (the clear in SetURI, for one) can be read after the next stream
// was started. End of stream is therefore reported only once MPD has been
// seen playing the song id added for the active stream.
type Engine struct {
	conn   Player
	events chan audio.EngineEvent
	quit   chan struct{}
	once   sync.Once

	mu      sync.Mutex
	uri     string
	songID  string
	active  bool // a stream was started and has not ended
	started bool // MPD reported the active song as playing
	format  string
}

// NewEngine starts watching MPD and returns the engine.
func NewEngine(conn Player) (*Engine, error) {
	changes, err := conn.Watch("player")
	if err != nil {
		return nil, err
	}

	e := &Engine{
		conn:   conn,
		events: make(chan audio.EngineEvent, 16),
		quit:   make(chan struct{}),
	}
	go e.watch(changes)
	return e, nil
}

func (e *Engine) watch(changes <-chan string) {
	for {
		select {
		case <-e.quit:
			return
		case subsystem, ok := <-changes:
			if !ok {
				return
			}
			if subsystem == "player" {
				e.onPlayerChange()
			}
		}
	}
}

func (e *Engine) onPlayerChange() {
	status, err := e.conn.Status()
	if err != nil {
		log.Warn().Err(err).Msg("MPD status after player change failed")
		return
	}

	e.mu.Lock()
	uri := e.uri
	var out []audio.EngineEvent

	state := status["state"]
	ours := status["songid"] == e.songID

	switch {
	case !e.active:
	case status["error"] != "":
		e.active = false
		out = append(out, audio.EngineEvent{Kind: audio.EngineStreamError, URI: uri, Message: status["error"]})
	case state == "stop":
		if !e.started {
			log.Debug().Str("uri", uri).Msg("Ignoring stop before the stream started")
			break
		}
		e.active = false
		out = append(out, audio.EngineEvent{Kind: audio.EngineEndOfStream, URI: uri})
	case ours && (state == "play" || state == "pause"):
		e.started = true
		if status["audio"] != "" && status["audio"] != e.format {
			e.format = status["audio"]
			out = append(out, audio.EngineEvent{Kind: audio.EngineFormat, URI: uri, Format: e.format})
		}
	}
	e.mu.Unlock()

	for _, ev := range out {
		select {
		case e.events <- ev:
		case <-e.quit:
			return
		}
	}
}

// SetURI replaces the MPD queue with uri.
func (e *Engine) SetURI(ctx context.Context, uri string) error {
	e.mu.Lock()
	e.active = false
	e.started = false
	e.songID = ""
	e.format = ""
	e.mu.Unlock()

	if err := e.conn.Clear(); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	if err := e.conn.ClearError(); err != nil {
		log.Debug().Err(err).Msg("MPD clearerror failed")
	}
	id, err := e.conn.AddID(uri, -1)
	if err != nil {
		return fmt.Errorf("add %s: %w", uri, err)
	}

	e.mu.Lock()
	e.uri = uri
	e.songID = strconv.Itoa(id)
	e.mu.Unlock()
	return nil
}

// Play starts the loaded URI from the beginning.
func (e *Engine) Play(ctx context.Context) error {
	e.mu.Lock()
	songID, err := strconv.Atoi(e.songID)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("play: no song loaded")
	}
	e.active = true
	e.started = false
	e.mu.Unlock()

	if err := e.conn.PlayID(songID); err != nil {
		e.mu.Lock()
		e.active = false
		e.mu.Unlock()
		return err
	}
	return nil
}

func (e *Engine) Pause(ctx context.Context) error  { return e.conn.Pause(true) }
func (e *Engine) Resume(ctx context.Context) error { return e.conn.Pause(false) }

// Stop stops playback. No end of stream is reported for a stopped stream.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	e.active = false
	e.mu.Unlock()
	return e.conn.Stop()
}

func (e *Engine) Seek(ctx context.Context, position time.Duration) error {
	return e.conn.SeekCur(position)
}

// Position returns MPD's elapsed time.
func (e *Engine) Position(ctx context.Context) (time.Duration, error) {
	status, err := e.conn.Status()
	if err != nil {
		return 0, err
	}
	return seconds(status["elapsed"]), nil
}

// Duration returns the length of the current song.
func (e *Engine) Duration(ctx context.Context) (time.Duration, error) {
	status, err := e.conn.Status()
	if err != nil {
		return 0, err
	}
	return seconds(status["duration"]), nil
}

func (e *Engine) SetVolume(ctx context.Context, volume int) error {
	return e.conn.SetVolume(volume)
}

// Volume returns MPD's volume, or 100 when MPD has no mixer (-1).
func (e *Engine) Volume(ctx context.Context) (int, error) {
	status, err := e.conn.Status()
	if err != nil {
		return 0, err
	}
	vol, err := strconv.Atoi(status["volume"])
	if err != nil || vol < 0 {
		return 100, nil
	}
	return vol, nil
}

func (e *Engine) Events() <-chan audio.EngineEvent { return e.events }

// Close stops the watcher. The connection is owned by the caller.
func (e *Engine) Close() error {
	e.once.Do(func() { close(e.quit) })
	return nil
}

func seconds(s string) time.Duration {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}
