// Package actor provides the message-passing substrate used by every core
// component.
//
// An actor owns private state and processes its mailbox one message at a
// time, so handlers never need locks for that state. Other goroutines talk to
// it only through Send (fire-and-forget) or Ask (request/reply with a
// deadline).
//
// Asking an actor that is itself waiting on the caller will stall until the
// ask times out. Avoiding such cycles is the caller's responsibility.
package actor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-mediacore/internal/errors"
)

// DefaultMailboxSize is the mailbox capacity used when no option is given.
const DefaultMailboxSize = 64

// Handler processes one message per call. A returned value or error is
// delivered to the asker; for Send the result is discarded.
type Handler interface {
	Receive(ctx context.Context, msg any) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg any) (any, error)

// Receive calls f.
func (f HandlerFunc) Receive(ctx context.Context, msg any) (any, error) {
	return f(ctx, msg)
}

// FaultError is the termination cause of an actor whose handler panicked.
type FaultError struct {
	Actor string
	Value any
	Stack []byte
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("actor %s faulted: %v", e.Actor, e.Value)
}

type envelope struct {
	ctx   context.Context
	msg   any
	reply chan result
}

type result struct {
	value any
	err   error
}

type options struct {
	mailboxSize int
	onStop      func(cause error)
}

// Option configures Spawn.
type Option func(*options)

// WithMailboxSize sets the mailbox capacity.
func WithMailboxSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.mailboxSize = n
		}
	}
}

// WithOnStop registers a callback run once, on the actor goroutine, after the
// actor terminates. cause is nil for a regular Stop.
func WithOnStop(fn func(cause error)) Option {
	return func(o *options) {
		o.onStop = fn
	}
}

// Ref is the only handle other components hold on an actor.
type Ref struct {
	id      string
	name    string
	handler Handler
	inbox   chan envelope
	stopCh  chan struct{}
	done    chan struct{}
	onStop  func(cause error)

	stopOnce sync.Once
	mu       sync.RWMutex
	cause    error
}

// Spawn starts an actor running h and returns its handle.
func Spawn(name string, h Handler, opts ...Option) *Ref {
	o := options{mailboxSize: DefaultMailboxSize}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Ref{
		id:      uuid.New().String(),
		name:    name,
		handler: h,
		inbox:   make(chan envelope, o.mailboxSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		onStop:  o.onStop,
	}

	go r.loop()

	log.Debug().Str("actor", name).Str("id", r.id).Msg("Actor started")
	return r
}

// ID returns the unique actor id.
func (r *Ref) ID() string { return r.id }

// Name returns the actor name given to Spawn.
func (r *Ref) Name() string { return r.name }

// Done is closed once the actor has terminated.
func (r *Ref) Done() <-chan struct{} { return r.done }

// Alive reports whether the actor is still processing messages.
func (r *Ref) Alive() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Cause returns why the actor terminated: nil while alive or after a regular
// Stop, a *FaultError after a handler panic.
func (r *Ref) Cause() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cause
}

// Stop asks the actor to terminate after its current message. Messages still
// in the mailbox are dropped and their askers receive ErrActorUnavailable.
func (r *Ref) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Send enqueues msg without waiting for it to be processed. Messages from a
// single goroutine are processed in the order they were sent. Sending to a
// terminated actor drops the message and returns ErrActorUnavailable.
func (r *Ref) Send(msg any) error {
	if !r.Alive() {
		log.Debug().Str("actor", r.name).Type("msg", msg).Msg("Dropped message to terminated actor")
		return errors.Wrap(errors.ErrActorUnavailable, "send to "+r.name, nil)
	}

	select {
	case r.inbox <- envelope{ctx: context.Background(), msg: msg}:
		return nil
	case <-r.done:
		log.Debug().Str("actor", r.name).Type("msg", msg).Msg("Dropped message to terminated actor")
		return errors.Wrap(errors.ErrActorUnavailable, "send to "+r.name, nil)
	}
}

// Ask sends msg and waits for the handler's reply. It fails with ErrTimeout
// when neither timeout nor ctx's deadline leaves room for a reply, and with
// ErrActorUnavailable when the actor is or becomes terminated. A timed-out
// message is still processed later; its result is discarded.
func (r *Ref) Ask(ctx context.Context, msg any, timeout time.Duration) (any, error) {
	op := "ask " + r.name
	if !r.Alive() {
		return nil, errors.Wrap(errors.ErrActorUnavailable, op, r.Cause())
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	env := envelope{
		ctx:   context.WithoutCancel(ctx),
		msg:   msg,
		reply: make(chan result, 1),
	}

	select {
	case r.inbox <- env:
	case <-r.done:
		return nil, errors.Wrap(errors.ErrActorUnavailable, op, r.Cause())
	case <-ctx.Done():
		return nil, ctxErr(op, ctx)
	}

	select {
	case res := <-env.reply:
		return res.value, res.err
	case <-r.done:
		// The reply may have raced with termination.
		select {
		case res := <-env.reply:
			return res.value, res.err
		default:
		}
		return nil, errors.Wrap(errors.ErrActorUnavailable, op, r.Cause())
	case <-ctx.Done():
		return nil, ctxErr(op, ctx)
	}
}

func ctxErr(op string, ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Wrap(errors.ErrTimeout, op, nil)
	}
	return fmt.Errorf("%s: %w", op, ctx.Err())
}

// Call is a typed Ask. A reply of the wrong type is reported as an error.
func Call[T any](ctx context.Context, r *Ref, msg any, timeout time.Duration) (T, error) {
	var zero T
	v, err := r.Ask(ctx, msg, timeout)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("ask %s: unexpected reply type %T", r.name, v)
	}
	return out, nil
}

// Watch runs fn with the termination cause once r has terminated.
func Watch(r *Ref, fn func(cause error)) {
	go func() {
		<-r.done
		fn(r.Cause())
	}()
}

func (r *Ref) loop() {
	var cause error
	defer func() {
		r.mu.Lock()
		r.cause = cause
		r.mu.Unlock()
		close(r.done)

		if cause != nil {
			log.Error().Err(cause).Str("actor", r.name).Msg("Actor terminated")
		} else {
			log.Debug().Str("actor", r.name).Msg("Actor stopped")
		}
		if r.onStop != nil {
			r.onStop(cause)
		}
	}()

	for {
		// Stop takes priority over pending mail.
		select {
		case <-r.stopCh:
			return
		default:
		}

		select {
		case <-r.stopCh:
			return
		case env := <-r.inbox:
			if fault := r.process(env); fault != nil {
				cause = fault
				return
			}
		}
	}
}

// process runs the handler for one envelope and converts a panic into a
// fault. The asker of the faulting message sees ErrActorUnavailable.
func (r *Ref) process(env envelope) (fault error) {
	defer func() {
		if v := recover(); v != nil {
			fault = &FaultError{Actor: r.name, Value: v, Stack: debug.Stack()}
		}
	}()

	value, err := r.handler.Receive(env.ctx, env.msg)
	if env.reply != nil {
		env.reply <- result{value: value, err: err}
	}
	return nil
}
