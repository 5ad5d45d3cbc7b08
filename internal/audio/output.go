package audio

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-mediacore/internal/actor"
	"github.com/edumarques81/stellar-mediacore/internal/errors"
)

// DefaultTimeout bounds each ask to the Output actor.
const DefaultTimeout = 5 * time.Second

type (
	setURIMsg    struct{ uri string }
	playMsg      struct{}
	pauseMsg     struct{}
	stopMsg      struct{}
	seekMsg      struct{ position time.Duration }
	positionMsg  struct{}
	durationMsg  struct{}
	setVolumeMsg struct{ volume int }
	volumeMsg    struct{}
	setMuteMsg   struct{ mute bool }
	muteMsg      struct{}
	statusMsg    struct{}
	engineMsg    struct{ ev EngineEvent }
)

type streamState int

const (
	streamIdle streamState = iota
	streamPlaying
	streamPaused
)

// OutputOption configures NewOutput.
type OutputOption func(*Output)

// WithTimeout sets the per-call ask timeout.
func WithTimeout(d time.Duration) OutputOption {
	return func(o *Output) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithBitPerfect marks reported formats as bit-perfect.
func WithBitPerfect(on bool) OutputOption {
	return func(o *Output) {
		o.handler.bitPerfect = on
	}
}

// Output is the audio output actor. Every playback command is serialized
// through its mailbox, so exactly one URI is active at a time.
type Output struct {
	ref     *actor.Ref
	engine  Engine
	handler *outputHandler
	timeout time.Duration
	quit    chan struct{}
}

// NewOutput spawns the Output actor over engine. Engine events are
// attributed to the active stream and reported to sink.
func NewOutput(engine Engine, sink Sink, opts ...OutputOption) *Output {
	o := &Output{
		engine:  engine,
		handler: &outputHandler{engine: engine, sink: sink, volume: -1},
		timeout: DefaultTimeout,
		quit:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.ref = actor.Spawn("audio", o.handler)
	go o.pump()

	log.Info().Bool("bitPerfect", o.handler.bitPerfect).Msg("Audio output started")
	return o
}

// Ref returns the actor handle, for supervision.
func (o *Output) Ref() *actor.Ref { return o.ref }

// Close stops the actor and closes the engine.
func (o *Output) Close() error {
	select {
	case <-o.quit:
		return nil
	default:
		close(o.quit)
	}
	o.ref.Stop()
	<-o.ref.Done()
	return o.engine.Close()
}

// pump forwards engine events into the actor mailbox.
func (o *Output) pump() {
	events := o.engine.Events()
	for {
		select {
		case <-o.quit:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := o.ref.Send(engineMsg{ev: ev}); err != nil {
				return
			}
		}
	}
}

// SetURI makes uri the active stream, replacing any current one.
func (o *Output) SetURI(ctx context.Context, uri string) error {
	_, err := o.ref.Ask(ctx, setURIMsg{uri: uri}, o.timeout)
	return err
}

// Play starts the active stream, or resumes it when paused.
func (o *Output) Play(ctx context.Context) error {
	_, err := o.ref.Ask(ctx, playMsg{}, o.timeout)
	return err
}

// Pause pauses the active stream.
func (o *Output) Pause(ctx context.Context) error {
	_, err := o.ref.Ask(ctx, pauseMsg{}, o.timeout)
	return err
}

// Stop stops playback and releases the active stream.
func (o *Output) Stop(ctx context.Context) error {
	_, err := o.ref.Ask(ctx, stopMsg{}, o.timeout)
	return err
}

// Seek moves the playhead of the active stream.
func (o *Output) Seek(ctx context.Context, position time.Duration) error {
	_, err := o.ref.Ask(ctx, seekMsg{position: position}, o.timeout)
	return err
}

// Position returns the playhead of the active stream.
func (o *Output) Position(ctx context.Context) (time.Duration, error) {
	return actor.Call[time.Duration](ctx, o.ref, positionMsg{}, o.timeout)
}

// Duration returns the engine-reported length of the active stream.
func (o *Output) Duration(ctx context.Context) (time.Duration, error) {
	return actor.Call[time.Duration](ctx, o.ref, durationMsg{}, o.timeout)
}

// SetVolume sets the output level, clamped to 0..100.
func (o *Output) SetVolume(ctx context.Context, volume int) (int, error) {
	return actor.Call[int](ctx, o.ref, setVolumeMsg{volume: volume}, o.timeout)
}

// Volume returns the output level. While muted this is the level that will
// be restored on unmute.
func (o *Output) Volume(ctx context.Context) (int, error) {
	return actor.Call[int](ctx, o.ref, volumeMsg{}, o.timeout)
}

// SetMute mutes or unmutes the output.
func (o *Output) SetMute(ctx context.Context, mute bool) error {
	_, err := o.ref.Ask(ctx, setMuteMsg{mute: mute}, o.timeout)
	return err
}

// Mute reports whether the output is muted.
func (o *Output) Mute(ctx context.Context) (bool, error) {
	return actor.Call[bool](ctx, o.ref, muteMsg{}, o.timeout)
}

// Status returns the lock state and current audio format.
func (o *Output) Status(ctx context.Context) (Status, error) {
	return actor.Call[Status](ctx, o.ref, statusMsg{}, o.timeout)
}

// outputHandler holds the actor state. It is only touched from the actor
// goroutine.
type outputHandler struct {
	engine     Engine
	sink       Sink
	bitPerfect bool

	uri     string
	state   streamState
	ended   bool
	errored bool
	format  *AudioFormat

	volume int // -1 until first read from the engine
	muted  bool
}

func (h *outputHandler) Receive(ctx context.Context, msg any) (any, error) {
	switch m := msg.(type) {
	case setURIMsg:
		return nil, h.setURI(ctx, m.uri)
	case playMsg:
		return nil, h.play(ctx)
	case pauseMsg:
		return nil, h.pause(ctx)
	case stopMsg:
		return nil, h.stop(ctx)
	case seekMsg:
		return nil, h.seek(ctx, m.position)
	case positionMsg:
		if h.uri == "" {
			return time.Duration(0), nil
		}
		pos, err := h.engine.Position(ctx)
		if err != nil {
			return time.Duration(0), errors.Playback("position", err)
		}
		return pos, nil
	case durationMsg:
		if h.uri == "" {
			return time.Duration(0), nil
		}
		d, err := h.engine.Duration(ctx)
		if err != nil {
			return time.Duration(0), errors.Playback("duration", err)
		}
		return d, nil
	case setVolumeMsg:
		return h.setVolume(ctx, m.volume)
	case volumeMsg:
		return h.currentVolume(ctx)
	case setMuteMsg:
		return nil, h.setMute(ctx, m.mute)
	case muteMsg:
		return h.muted, nil
	case statusMsg:
		vol, _ := h.currentVolume(ctx)
		return Status{
			URI:    h.uri,
			Locked: h.state == streamPlaying,
			Format: h.format,
			Volume: vol,
			Mute:   h.muted,
		}, nil
	case engineMsg:
		h.onEngineEvent(m.ev)
		return nil, nil
	default:
		return nil, errors.Invalid("audio", "unknown message %T", msg)
	}
}

func (h *outputHandler) setURI(ctx context.Context, uri string) error {
	if h.uri != "" {
		log.Debug().Str("old", h.uri).Str("new", uri).Msg("Audio stream takeover")
	}

	// Until the engine accepts the new stream no events are attributed.
	h.uri = ""
	h.state = streamIdle
	h.format = nil

	if err := h.engine.SetURI(ctx, uri); err != nil {
		return errors.Playback("set_uri", err)
	}

	h.uri = uri
	h.ended = false
	h.errored = false
	log.Debug().Str("uri", uri).Msg("Audio URI set")
	return nil
}

func (h *outputHandler) play(ctx context.Context) error {
	if h.uri == "" {
		return errors.Playback("play", errors.New("no stream set"))
	}

	var err error
	if h.state == streamPaused {
		err = h.engine.Resume(ctx)
	} else {
		err = h.engine.Play(ctx)
	}
	if err != nil {
		return errors.Playback("play", err)
	}

	h.state = streamPlaying
	return nil
}

func (h *outputHandler) pause(ctx context.Context) error {
	if h.state != streamPlaying {
		return errors.Invalid("pause", "output is not playing")
	}
	if err := h.engine.Pause(ctx); err != nil {
		return errors.Playback("pause", err)
	}
	h.state = streamPaused
	return nil
}

func (h *outputHandler) stop(ctx context.Context) error {
	err := h.engine.Stop(ctx)

	// Late events for the stopped stream are no longer attributed.
	h.uri = ""
	h.state = streamIdle
	h.format = nil

	if err != nil {
		return errors.Playback("stop", err)
	}
	return nil
}

func (h *outputHandler) seek(ctx context.Context, position time.Duration) error {
	if h.uri == "" {
		return errors.Invalid("seek", "no active stream")
	}
	if position < 0 {
		position = 0
	}
	if err := h.engine.Seek(ctx, position); err != nil {
		return errors.Playback("seek", err)
	}
	return nil
}

func (h *outputHandler) currentVolume(ctx context.Context) (int, error) {
	if h.volume >= 0 {
		return h.volume, nil
	}
	vol, err := h.engine.Volume(ctx)
	if err != nil {
		return 0, errors.Playback("volume", err)
	}
	h.volume = vol
	return vol, nil
}

func (h *outputHandler) setVolume(ctx context.Context, volume int) (int, error) {
	if volume < 0 {
		volume = 0
	} else if volume > 100 {
		volume = 100
	}

	// While muted only the level to restore changes.
	if !h.muted {
		if err := h.engine.SetVolume(ctx, volume); err != nil {
			return 0, errors.Playback("set_volume", err)
		}
	}
	h.volume = volume
	return volume, nil
}

// setMute emulates mute with volume 0: the engine has no native mute.
func (h *outputHandler) setMute(ctx context.Context, mute bool) error {
	if mute == h.muted {
		return nil
	}

	level, err := h.currentVolume(ctx)
	if err != nil {
		return err
	}

	target := level
	if mute {
		target = 0
	}
	if err := h.engine.SetVolume(ctx, target); err != nil {
		return errors.Playback("set_mute", err)
	}
	h.muted = mute
	return nil
}

func (h *outputHandler) onEngineEvent(ev EngineEvent) {
	if ev.URI != h.uri || h.uri == "" {
		log.Debug().Str("kind", ev.Kind.String()).Str("uri", ev.URI).Str("active", h.uri).Msg("Dropped stale engine event")
		return
	}

	switch ev.Kind {
	case EngineFormat:
		f := ParseFormat(ev.Format, h.bitPerfect)
		if !audioFormatEqual(h.format, f) {
			h.format = f
			log.Debug().Interface("format", f).Msg("Audio format changed")
		}

	case EngineEndOfStream:
		if h.ended || h.errored {
			return
		}
		h.ended = true
		h.state = streamIdle
		log.Debug().Str("uri", h.uri).Msg("Reached end of stream")
		h.emit(Event{Kind: EndOfStream, URI: h.uri})

	case EngineStreamError:
		if h.errored || h.ended {
			return
		}
		h.errored = true
		h.state = streamIdle
		log.Warn().Str("uri", h.uri).Str("error", ev.Message).Msg("Stream error")
		h.emit(Event{Kind: StreamError, URI: h.uri, Message: ev.Message})
	}
}

func (h *outputHandler) emit(ev Event) {
	if h.sink != nil {
		h.sink(ev)
	}
}
