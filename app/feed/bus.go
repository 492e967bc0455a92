package feed

import (
	"errors"
	"log/slog"
	"sync"
)

// DefaultBufferSize is the per-subscriber buffer used when none is given.
const DefaultBufferSize = 64

var ErrBusClosed = errors.New("feed bus closed")

// Predicate decides whether a subscriber sees an item.
type Predicate[T any] func(T) bool

// All matches every item.
func All[T any](T) bool { return true }

// Bus fans updates out to predicate-filtered subscribers.
//
// Publish never blocks on a subscriber: each subscription owns a bounded
// buffer and an update that does not fit is dropped for that subscriber
// only. All subscribers observe updates in the order they were published.
type Bus[T any] struct {
	name       string
	bufferSize int

	pubMu  sync.Mutex
	mu     sync.RWMutex
	subs   map[uint64]*Subscription[T]
	next   uint64
	closed bool

	mirror func(Update[T])
}

// Option configures a Bus.
type Option func(*options)

type options struct {
	bufferSize int
}

// WithBufferSize sets the per-subscriber buffer size.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// NewBus creates a bus. The name labels its metrics and relay channel.
func NewBus[T any](name string, opts ...Option) *Bus[T] {
	o := options{bufferSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(&o)
	}
	return &Bus[T]{
		name:       name,
		bufferSize: o.bufferSize,
		subs:       make(map[uint64]*Subscription[T]),
	}
}

func (b *Bus[T]) Name() string { return b.name }

// Publish delivers the update to every matching subscriber and to the
// relay, if one is attached. The relay is fed under the publish lock so
// remote instances receive updates in local publish order.
func (b *Bus[T]) Publish(u Update[T]) error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	if err := b.deliverLocked(u); err != nil {
		return err
	}
	b.mu.RLock()
	mirror := b.mirror
	b.mu.RUnlock()
	if mirror != nil {
		mirror(u)
	}
	return nil
}

// deliver hands the update to local subscribers only.
func (b *Bus[T]) deliver(u Update[T]) error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	return b.deliverLocked(u)
}

func (b *Bus[T]) deliverLocked(u Update[T]) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	publishedTotal.WithLabelValues(b.name).Inc()
	for _, s := range b.subs {
		if !s.matches(u.Item) {
			continue
		}
		select {
		case s.ch <- u:
			deliveredTotal.WithLabelValues(b.name).Inc()
		default:
			droppedTotal.WithLabelValues(b.name).Inc()
			slog.Warn("feed subscriber buffer full, dropping update",
				"bus", b.name, "subscription", s.id, "action", u.Action.String())
		}
	}
	return nil
}

// Subscribe registers a subscriber that sees only items matching pred. A nil
// predicate matches everything. The subscription stays live until Close.
func (b *Bus[T]) Subscribe(pred Predicate[T]) (*Subscription[T], error) {
	if pred == nil {
		pred = All[T]
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	b.next++
	s := &Subscription[T]{
		id:   b.next,
		bus:  b,
		pred: pred,
		ch:   make(chan Update[T], b.bufferSize),
	}
	b.subs[s.id] = s
	subscribersGauge.WithLabelValues(b.name).Inc()
	return s, nil
}

// Subscribers returns the number of live subscriptions.
func (b *Bus[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription. Later publishes and subscribes fail with
// ErrBusClosed.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.ch)
		subscribersGauge.WithLabelValues(b.name).Dec()
	}
}

func (b *Bus[T]) remove(s *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s.id]; !ok {
		return
	}
	delete(b.subs, s.id)
	close(s.ch)
	subscribersGauge.WithLabelValues(b.name).Dec()
}

func (b *Bus[T]) setMirror(fn func(Update[T])) {
	b.mu.Lock()
	b.mirror = fn
	b.mu.Unlock()
}

// Subscription is a live, filtered view of a bus.
type Subscription[T any] struct {
	id   uint64
	bus  *Bus[T]
	pred Predicate[T]
	ch   chan Update[T]
	once sync.Once
}

// C returns the update stream. It is closed when the subscription or the
// bus is closed.
func (s *Subscription[T]) C() <-chan Update[T] { return s.ch }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription[T]) Close() {
	s.once.Do(func() { s.bus.remove(s) })
}

func (s *Subscription[T]) matches(item T) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("feed predicate panicked", "bus", s.bus.name, "subscription", s.id, "panic", r)
			ok = false
		}
	}()
	return s.pred(item)
}
