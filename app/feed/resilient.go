package feed

import (
	"context"
	"errors"
	"log/slog"
	"stravachallenge/app/apperr"
	"sync/atomic"
	"time"
)

// DefaultRetryDelay is how long a resilient subscription waits before
// re-subscribing after a delivery error.
const DefaultRetryDelay = time.Second

// Resolver builds the predicate for a new subscription. It runs on every
// (re)subscribe, so predicates backed by mutable state such as the follow
// graph are refreshed each time.
type Resolver[T any] func(ctx context.Context) (Predicate[T], error)

// Handler consumes one update. A returned error tears the subscription down
// and triggers a delayed re-subscribe.
type Handler[T any] func(ctx context.Context, u Update[T]) error

// Resilient keeps a subscription alive across delivery errors. Cancelling
// the context passed to Run is terminal and never retried. Updates
// published while no subscription is open are not replayed.
type Resilient[T any] struct {
	bus     *Bus[T]
	resolve Resolver[T]
	delay   time.Duration

	subscriptions atomic.Int64
}

func NewResilient[T any](bus *Bus[T], resolve Resolver[T]) *Resilient[T] {
	if resolve == nil {
		resolve = func(context.Context) (Predicate[T], error) { return All[T], nil }
	}
	return &Resilient[T]{bus: bus, resolve: resolve, delay: DefaultRetryDelay}
}

// WithRetryDelay overrides the delay between a failure and the next
// subscribe attempt.
func (r *Resilient[T]) WithRetryDelay(d time.Duration) *Resilient[T] {
	r.delay = d
	return r
}

// Subscriptions is the number of subscriptions opened so far.
func (r *Resilient[T]) Subscriptions() int64 {
	return r.subscriptions.Load()
}

// Run feeds updates to handle until ctx is done or the bus closes. It
// returns nil on cancellation and ErrBusClosed when the bus shuts down.
func (r *Resilient[T]) Run(ctx context.Context, handle Handler[T]) error {
	for {
		err := r.runOnce(ctx, handle)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrBusClosed) {
			return err
		}

		var transient *apperr.TransientDeliveryError
		if !errors.As(err, &transient) {
			err = &apperr.TransientDeliveryError{Err: err}
		}
		resubscribesTotal.WithLabelValues(r.bus.name).Inc()
		slog.Warn("feed subscription failed, re-subscribing",
			"bus", r.bus.name, "delay", r.delay, "err", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.delay):
		}
	}
}

func (r *Resilient[T]) runOnce(ctx context.Context, handle Handler[T]) error {
	pred, err := r.resolve(ctx)
	if err != nil {
		return err
	}
	sub, err := r.bus.Subscribe(pred)
	if err != nil {
		return err
	}
	defer sub.Close()
	r.subscriptions.Add(1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-sub.C():
			if !ok {
				return ErrBusClosed
			}
			if err := handle(ctx, u); err != nil {
				return err
			}
		}
	}
}
