// Package core is the media core façade. A single core actor owns the
// tracklist, the history and the playback state machine, so every command
// that touches them is serialized. Library and playlist queries go straight
// to the backend router from the caller's goroutine.
package core

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-mediacore/internal/actor"
	"github.com/edumarques81/stellar-mediacore/internal/audio"
	"github.com/edumarques81/stellar-mediacore/internal/domain/history"
	"github.com/edumarques81/stellar-mediacore/internal/domain/player"
	"github.com/edumarques81/stellar-mediacore/internal/domain/router"
	"github.com/edumarques81/stellar-mediacore/internal/domain/tracklist"
	"github.com/edumarques81/stellar-mediacore/internal/errors"
	"github.com/edumarques81/stellar-mediacore/internal/events"
)

const (
	// DefaultMailboxSize is the core actor's mailbox capacity.
	DefaultMailboxSize = 256
	// DefaultTimeout bounds each command to the core actor. Starting a track
	// may involve a backend translation and several output calls.
	DefaultTimeout = 30 * time.Second
)

// Option configures New.
type Option func(*Core)

// WithHistoryLength sets the history bound.
func WithHistoryLength(n int) Option {
	return func(c *Core) { c.historyLength = n }
}

// WithTimeout sets the per-command timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Core) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMailboxSize sets the core actor's mailbox capacity.
func WithMailboxSize(n int) Option {
	return func(c *Core) {
		if n > 0 {
			c.mailboxSize = n
		}
	}
}

// WithRand sets the random source used for random mode and shuffles.
func WithRand(r *rand.Rand) Option {
	return func(c *Core) { c.rng = r }
}

// WithOutputOptions passes options to the audio output.
func WithOutputOptions(opts ...audio.OutputOption) Option {
	return func(c *Core) { c.outputOpts = append(c.outputOpts, opts...) }
}

// WithDispatcherOptions passes options to the event dispatcher.
func WithDispatcherOptions(opts ...events.Option) Option {
	return func(c *Core) { c.dispatcherOpts = append(c.dispatcherOpts, opts...) }
}

// Core is the running media core.
type Core struct {
	ref        *actor.Ref
	router     *router.Router
	output     *audio.Output
	dispatcher *events.Dispatcher
	relay      *relay

	timeout        time.Duration
	mailboxSize    int
	historyLength  int
	rng            *rand.Rand
	outputOpts     []audio.OutputOption
	dispatcherOpts []events.Option

	closeOnce sync.Once
}

// New starts the core over engine and the backends behind rt.
func New(engine audio.Engine, rt *router.Router, opts ...Option) *Core {
	c := &Core{
		router:      rt,
		timeout:     DefaultTimeout,
		mailboxSize: DefaultMailboxSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.dispatcher = events.NewDispatcher(c.dispatcherOpts...)

	var tlOpts []tracklist.Option
	if c.rng != nil {
		tlOpts = append(tlOpts, tracklist.WithRand(c.rng))
	}
	h := &handler{
		tracklist: tracklist.New(tlOpts...),
		history:   history.New(c.historyLength),
		publisher: c.dispatcher,
	}

	c.ref = actor.Spawn("core", h, actor.WithMailboxSize(c.mailboxSize))
	c.relay = newRelay(c.ref)
	c.output = audio.NewOutput(engine, c.relay.push, c.outputOpts...)
	h.output = c.output
	h.machine = player.NewMachine(h.tracklist, h.history, c.output, rt, c.dispatcher)

	actor.Watch(c.output.Ref(), func(cause error) {
		if cause != nil {
			log.Error().Err(cause).Msg("Audio output terminated")
		}
		_ = c.ref.Send(audioLostMsg{})
	})

	log.Info().Int("backends", len(rt.Backends())).Msg("Media core started")
	return c
}

// Close stops the core, the audio output and the dispatcher. Backends are
// owned by the registry and left running.
func (c *Core) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.relay.close()
		c.ref.Stop()
		<-c.ref.Done()
		err = c.output.Close()
		c.dispatcher.Close()
		log.Info().Msg("Media core stopped")
	})
	return err
}

// Router returns the backend router.
func (c *Core) Router() *router.Router { return c.router }

// Backends reports the status of every backend.
func (c *Core) Backends() []router.BackendStatus { return c.router.Backends() }

// Subscribe registers a listener for core events.
func (c *Core) Subscribe(name string, l events.Listener) string {
	return c.dispatcher.Subscribe(name, l)
}

// Unsubscribe removes a listener.
func (c *Core) Unsubscribe(id string) bool { return c.dispatcher.Unsubscribe(id) }

// Subscribers reports the current listeners.
func (c *Core) Subscribers() []events.SubscriberInfo { return c.dispatcher.Subscribers() }

// do runs fn inside the core actor's turn.
func do[T any](ctx context.Context, c *Core, op string, fn func(ctx context.Context, h *handler) (T, error)) (T, error) {
	msg := opMsg{op: op, fn: func(ctx context.Context, h *handler) (any, error) {
		return fn(ctx, h)
	}}
	return actor.Call[T](ctx, c.ref, msg, c.timeout)
}

func exec(ctx context.Context, c *Core, op string, fn func(ctx context.Context, h *handler) error) error {
	_, err := do(ctx, c, op, func(ctx context.Context, h *handler) (struct{}, error) {
		return struct{}{}, fn(ctx, h)
	})
	return err
}

// playback runs a command that needs the audio output.
func (c *Core) playback(ctx context.Context, op string, fn func(ctx context.Context, m *player.Machine) error) error {
	return exec(ctx, c, op, func(ctx context.Context, h *handler) error {
		if !c.output.Ref().Alive() {
			h.machine.AudioLost()
			return errors.Wrap(errors.ErrActorUnavailable, op, c.output.Ref().Cause())
		}
		return fn(ctx, h.machine)
	})
}

type (
	opMsg struct {
		op string
		fn func(ctx context.Context, h *handler) (any, error)
	}
	endOfStreamMsg struct{ uri string }
	streamErrorMsg struct{ uri, message string }
	audioLostMsg   struct{}
)

// handler is the core actor state. It is only touched from the actor
// goroutine.
type handler struct {
	tracklist *tracklist.Tracklist
	history   *history.History
	machine   *player.Machine
	output    *audio.Output
	publisher player.Publisher
}

func (h *handler) Receive(ctx context.Context, msg any) (any, error) {
	switch m := msg.(type) {
	case opMsg:
		log.Debug().Str("op", m.op).Msg("Core command")
		return m.fn(ctx, h)
	case endOfStreamMsg:
		h.machine.OnEndOfStream(ctx, m.uri)
		return nil, nil
	case streamErrorMsg:
		h.machine.OnStreamError(ctx, m.uri, m.message)
		return nil, nil
	case audioLostMsg:
		h.machine.AudioLost()
		return nil, nil
	default:
		return nil, errors.Invalid("core", "unknown message %T", msg)
	}
}

func (h *handler) tracklistChanged() {
	h.publisher.Publish(events.NewTracklistChanged(h.tracklist.Version()))
}

func (h *handler) optionsChanged() {
	modes := h.tracklist.Modes()
	h.publisher.Publish(events.NewOptionsChanged(events.Options{
		Repeat:  modes.Repeat,
		Random:  modes.Random,
		Consume: modes.Consume,
		Single:  modes.Single,
	}))
}

// relay forwards audio events to the core actor in order without ever
// blocking the audio output's turn.
type relay struct {
	ref *actor.Ref

	mu     sync.Mutex
	queue  []any
	signal chan struct{}
	quit   chan struct{}
	once   sync.Once
}

func newRelay(ref *actor.Ref) *relay {
	r := &relay{
		ref:    ref,
		signal: make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *relay) push(ev audio.Event) {
	var msg any
	switch ev.Kind {
	case audio.EndOfStream:
		msg = endOfStreamMsg{uri: ev.URI}
	case audio.StreamError:
		msg = streamErrorMsg{uri: ev.URI, message: ev.Message}
	default:
		return
	}

	r.mu.Lock()
	r.queue = append(r.queue, msg)
	r.mu.Unlock()

	select {
	case r.signal <- struct{}{}:
	default:
	}
}

func (r *relay) run() {
	for {
		select {
		case <-r.quit:
			return
		case <-r.signal:
		}

		r.mu.Lock()
		pending := r.queue
		r.queue = nil
		r.mu.Unlock()

		for _, msg := range pending {
			if err := r.ref.Send(msg); err != nil {
				return
			}
		}
	}
}

func (r *relay) close() {
	r.once.Do(func() { close(r.quit) })
}
