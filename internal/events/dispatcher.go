package events

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-mediacore/internal/actor"
	"github.com/edumarques81/stellar-mediacore/internal/errors"
)

// Dispatcher defaults.
const (
	DefaultQueueSize       = 64
	DefaultMaxFailures     = 5
	DefaultDeliveryTimeout = 5 * time.Second
)

// Listener receives events. Deliveries to one listener are sequential and in
// publish order.
type Listener interface {
	OnEvent(ctx context.Context, ev Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, ev Event) error

// OnEvent calls f.
func (f ListenerFunc) OnEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// ActorListener delivers events to an actor-based frontend with Send. Once
// the actor has terminated, delivery fails with ErrActorUnavailable and the
// dispatcher drops the subscription.
func ActorListener(ref *actor.Ref) Listener {
	return ListenerFunc(func(ctx context.Context, ev Event) error {
		return ref.Send(ev)
	})
}

// SubscriberInfo is a point-in-time view of one subscription.
type SubscriberInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Pending   int    `json:"pending"`
	Delivered int64  `json:"delivered"`
	Dropped   int64  `json:"dropped"`
	Failures  int    `json:"failures"`
}

type subscription struct {
	id       string
	name     string
	listener Listener
	queue    chan Event
	quit     chan struct{}
	once     sync.Once

	delivered atomic.Int64
	dropped   atomic.Int64
	failures  atomic.Int32
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.quit) })
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithQueueSize sets the per-listener queue capacity.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithMaxFailures sets how many consecutive delivery errors evict a listener.
func WithMaxFailures(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxFailures = n
		}
	}
}

// WithDeliveryTimeout bounds a single OnEvent call's context.
func WithDeliveryTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// Dispatcher fans events out to subscribed listeners. Each listener has its
// own goroutine and bounded queue; Publish never waits for a listener.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   map[string]*subscription
	closed bool
	wg     sync.WaitGroup

	queueSize   int
	maxFailures int
	timeout     time.Duration
}

// NewDispatcher creates a dispatcher with no subscribers.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		subs:        make(map[string]*subscription),
		queueSize:   DefaultQueueSize,
		maxFailures: DefaultMaxFailures,
		timeout:     DefaultDeliveryTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Subscribe registers l and returns its subscription id. It returns "" once
// the dispatcher is closed.
func (d *Dispatcher) Subscribe(name string, l Listener) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ""
	}

	s := &subscription{
		id:       uuid.New().String(),
		name:     name,
		listener: l,
		queue:    make(chan Event, d.queueSize),
		quit:     make(chan struct{}),
	}
	d.subs[s.id] = s

	d.wg.Add(1)
	go d.run(s)

	log.Info().Str("listener", name).Str("id", s.id).Msg("Listener subscribed")
	return s.id
}

// Unsubscribe removes a subscription. Events still queued for it are
// discarded. It reports whether id was subscribed.
func (d *Dispatcher) Unsubscribe(id string) bool {
	d.mu.Lock()
	s, ok := d.subs[id]
	delete(d.subs, id)
	d.mu.Unlock()

	if !ok {
		return false
	}
	s.close()
	log.Info().Str("listener", s.name).Str("id", id).Msg("Listener unsubscribed")
	return true
}

// Publish enqueues ev for every listener and returns immediately. A listener
// whose queue is full loses ev; other listeners are unaffected.
func (d *Dispatcher) Publish(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return
	}

	for _, s := range d.subs {
		select {
		case s.queue <- ev:
		default:
			n := s.dropped.Add(1)
			log.Warn().
				Str("listener", s.name).
				Str("event", string(ev.Type())).
				Int64("dropped", n).
				Msg("Listener queue full, dropping event")
		}
	}
}

// Subscribers returns the current subscriptions ordered by name.
func (d *Dispatcher) Subscribers() []SubscriberInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	infos := make([]SubscriberInfo, 0, len(d.subs))
	for _, s := range d.subs {
		infos = append(infos, SubscriberInfo{
			ID:        s.id,
			Name:      s.name,
			Pending:   len(s.queue),
			Delivered: s.delivered.Load(),
			Dropped:   s.dropped.Load(),
			Failures:  int(s.failures.Load()),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Name == infos[j].Name {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Close removes every subscription and waits for in-flight deliveries to
// return. Publish after Close is a no-op.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for id, s := range d.subs {
		s.close()
		delete(d.subs, id)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) run(s *subscription) {
	defer d.wg.Done()

	for {
		select {
		case <-s.quit:
			return
		case ev := <-s.queue:
			// Unsubscribe wins over queued events.
			select {
			case <-s.quit:
				return
			default:
			}
			if !d.deliver(s, ev) {
				return
			}
		}
	}
}

// deliver calls the listener once and reports whether the subscription
// should stay alive.
func (d *Dispatcher) deliver(s *subscription, ev Event) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := s.listener.OnEvent(ctx, ev)
	if err == nil {
		s.delivered.Add(1)
		s.failures.Store(0)
		return true
	}

	if errors.Is(err, errors.ErrActorUnavailable) {
		d.evict(s, "listener terminated")
		return false
	}

	n := s.failures.Add(1)
	log.Warn().Err(err).Str("listener", s.name).Str("event", string(ev.Type())).Int32("failures", n).Msg("Event delivery failed")
	if int(n) >= d.maxFailures {
		d.evict(s, "too many delivery failures")
		return false
	}
	return true
}

func (d *Dispatcher) evict(s *subscription, reason string) {
	d.mu.Lock()
	if cur, ok := d.subs[s.id]; ok && cur == s {
		delete(d.subs, s.id)
	}
	d.mu.Unlock()

	s.close()
	log.Info().Str("listener", s.name).Str("id", s.id).Str("reason", reason).Msg("Listener evicted")
}
