package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	ids []int
}

func (r *recorder) add(id int) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
}

func (r *recorder) seen() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ids...)
}

func runResilient(t *testing.T, r *Resilient[item], handle Handler[item]) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, handle) }()
	return cancel, done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("resilient subscription did not stop")
	}
	return nil
}

func TestNewResilient_DefaultDelay(t *testing.T) {
	r := NewResilient[item](NewBus[item]("default-delay-test"), nil)
	assert.Equal(t, time.Second, r.delay)
}

func TestResilient_ResubscribesAfterDeliveryError(t *testing.T) {
	bus := NewBus[item]("resubscribe-test")
	r := NewResilient[item](bus, nil).WithRetryDelay(10 * time.Millisecond)
	got := &recorder{}

	cancel, done := runResilient(t, r, func(_ context.Context, u Update[item]) error {
		if u.Item.ID == 1 {
			return errors.New("socket write failed")
		}
		got.add(u.Item.ID)
		return nil
	})
	defer cancel()

	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, bus.Publish(Created(item{ID: 1})))

	require.Eventually(t, func() bool {
		return r.Subscriptions() == 2 && bus.Subscribers() == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, bus.Publish(Created(item{ID: 2})))

	require.Eventually(t, func() bool { return len(got.seen()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{2}, got.seen())
	assert.Equal(t, float64(1), testutil.ToFloat64(resubscribesTotal.WithLabelValues("resubscribe-test")))

	cancel()
	assert.NoError(t, waitDone(t, done))
	assert.Equal(t, 0, bus.Subscribers())
}

func TestResilient_CancellationIsTerminal(t *testing.T) {
	bus := NewBus[item]("cancel-test")
	r := NewResilient[item](bus, nil).WithRetryDelay(10 * time.Millisecond)

	cancel, done := runResilient(t, r, func(context.Context, Update[item]) error { return nil })
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, waitDone(t, done))
	assert.Equal(t, int64(1), r.Subscriptions())
	assert.Equal(t, 0, bus.Subscribers())
	assert.Equal(t, float64(0), testutil.ToFloat64(resubscribesTotal.WithLabelValues("cancel-test")))
}

func TestResilient_ReResolvesPredicateOnResubscribe(t *testing.T) {
	bus := NewBus[item]("resolve-test")
	var allowed atomic.Int64
	allowed.Store(1)
	var resolves atomic.Int64
	resolve := func(context.Context) (Predicate[item], error) {
		resolves.Add(1)
		want := int(allowed.Load())
		return func(i item) bool { return i.ID == want }, nil
	}
	r := NewResilient[item](bus, resolve).WithRetryDelay(10 * time.Millisecond)
	got := &recorder{}

	cancel, done := runResilient(t, r, func(_ context.Context, u Update[item]) error {
		got.add(u.Item.ID)
		if u.Item.ID == 1 {
			allowed.Store(2)
			return errors.New("refresh")
		}
		return nil
	})
	defer cancel()

	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, bus.Publish(Created(item{ID: 1})))
	require.Eventually(t, func() bool { return r.Subscriptions() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(Created(item{ID: 1})))
	require.NoError(t, bus.Publish(Created(item{ID: 2})))
	require.Eventually(t, func() bool { return len(got.seen()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{1, 2}, got.seen())
	assert.Equal(t, int64(2), resolves.Load())

	cancel()
	assert.NoError(t, waitDone(t, done))
}

func TestResilient_RetriesFailedResolve(t *testing.T) {
	bus := NewBus[item]("resolve-retry-test")
	var calls atomic.Int64
	resolve := func(context.Context) (Predicate[item], error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("follow graph unavailable")
		}
		return All[item], nil
	}
	r := NewResilient[item](bus, resolve).WithRetryDelay(10 * time.Millisecond)

	cancel, done := runResilient(t, r, func(context.Context, Update[item]) error { return nil })
	require.Eventually(t, func() bool { return r.Subscriptions() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), calls.Load())

	cancel()
	assert.NoError(t, waitDone(t, done))
}

func TestResilient_StopsWhenBusCloses(t *testing.T) {
	bus := NewBus[item]("resilient-close-test")
	r := NewResilient[item](bus, nil).WithRetryDelay(10 * time.Millisecond)

	cancel, done := runResilient(t, r, func(context.Context, Update[item]) error { return nil })
	defer cancel()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	bus.Close()
	assert.ErrorIs(t, waitDone(t, done), ErrBusClosed)
}
