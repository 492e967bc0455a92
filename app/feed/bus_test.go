package feed

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID int `json:"id"`
}

func receive[T any](t *testing.T, sub *Subscription[T]) Update[T] {
	t.Helper()
	select {
	case u, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return u
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}
	return Update[T]{}
}

func assertEmpty[T any](t *testing.T, sub *Subscription[T]) {
	t.Helper()
	select {
	case u := <-sub.C():
		t.Fatalf("unexpected update %+v", u)
	default:
	}
}

func TestBus_DeliversInPublishOrder(t *testing.T) {
	bus := NewBus[item]("order-test")
	a, err := bus.Subscribe(nil)
	require.NoError(t, err)
	b, err := bus.Subscribe(nil)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		require.NoError(t, bus.Publish(Created(item{ID: i})))
	}

	for i := 1; i <= 5; i++ {
		assert.Equal(t, i, receive(t, a).Item.ID)
		assert.Equal(t, i, receive(t, b).Item.ID)
	}
}

func TestBus_PredicateFiltersItems(t *testing.T) {
	bus := NewBus[item]("predicate-test")
	even, err := bus.Subscribe(func(i item) bool { return i.ID%2 == 0 })
	require.NoError(t, err)

	for i := 1; i <= 4; i++ {
		require.NoError(t, bus.Publish(Updated(item{ID: i})))
	}

	assert.Equal(t, 2, receive(t, even).Item.ID)
	assert.Equal(t, 4, receive(t, even).Item.ID)
	assertEmpty(t, even)
}

func TestBus_LateSubscriberMissesEarlierUpdates(t *testing.T) {
	bus := NewBus[item]("late-test")
	require.NoError(t, bus.Publish(Created(item{ID: 1})))

	sub, err := bus.Subscribe(nil)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(Created(item{ID: 2})))

	assert.Equal(t, 2, receive(t, sub).Item.ID)
	assertEmpty(t, sub)
}

func TestBus_SlowSubscriberDropsWithoutBlocking(t *testing.T) {
	bus := NewBus[item]("slow-test", WithBufferSize(2))
	slow, err := bus.Subscribe(nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 5; i++ {
			_ = bus.Publish(Created(item{ID: i}))
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	assert.Equal(t, 1, receive(t, slow).Item.ID)
	assert.Equal(t, 2, receive(t, slow).Item.ID)
	assertEmpty(t, slow)
	assert.Equal(t, float64(3), testutil.ToFloat64(droppedTotal.WithLabelValues("slow-test")))
	assert.Equal(t, float64(2), testutil.ToFloat64(deliveredTotal.WithLabelValues("slow-test")))
}

func TestBus_SubscriptionClose(t *testing.T) {
	bus := NewBus[item]("close-sub-test")
	sub, err := bus.Subscribe(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Subscribers())
	assert.Equal(t, float64(1), testutil.ToFloat64(subscribersGauge.WithLabelValues("close-sub-test")))

	sub.Close()
	sub.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.Equal(t, 0, bus.Subscribers())
	assert.Equal(t, float64(0), testutil.ToFloat64(subscribersGauge.WithLabelValues("close-sub-test")))
	require.NoError(t, bus.Publish(Created(item{ID: 1})))
}

func TestBus_Close(t *testing.T) {
	bus := NewBus[item]("close-bus-test")
	sub, err := bus.Subscribe(nil)
	require.NoError(t, err)

	bus.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.ErrorIs(t, bus.Publish(Created(item{ID: 1})), ErrBusClosed)
	_, err = bus.Subscribe(nil)
	assert.ErrorIs(t, err, ErrBusClosed)
	sub.Close()
}

func TestBus_PanickingPredicateOnlySkipsThatSubscriber(t *testing.T) {
	bus := NewBus[item]("panic-test")
	bad, err := bus.Subscribe(func(item) bool { panic("boom") })
	require.NoError(t, err)
	good, err := bus.Subscribe(nil)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(Deleted(item{ID: 7})))

	assert.Equal(t, 7, receive(t, good).Item.ID)
	assertEmpty(t, bad)
}

func TestUpdate_JSON(t *testing.T) {
	data, err := json.Marshal(Deleted(item{ID: 3}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"delete","item":{"id":3}}`, string(data))

	var u Update[item]
	require.NoError(t, json.Unmarshal([]byte(`{"action":"create","item":{"id":9}}`), &u))
	assert.Equal(t, Created(item{ID: 9}), u)

	_, err = json.Marshal(Update[item]{Action: Action(42)})
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"action":"upsert"}`), &u), ErrUnknownAction)
}

func TestUpdate_Match(t *testing.T) {
	var seen []string
	on := func(name string) func(item) error {
		return func(item) error {
			seen = append(seen, name)
			return nil
		}
	}

	for _, u := range []Update[item]{Created(item{}), Updated(item{}), Deleted(item{})} {
		require.NoError(t, u.Match(on("create"), on("update"), on("delete")))
	}
	assert.Equal(t, []string{"create", "update", "delete"}, seen)

	err := Update[item]{Action: Action(0)}.Match(on("create"), on("update"), on("delete"))
	assert.True(t, errors.Is(err, ErrUnknownAction))
	assert.Equal(t, "action(0)", Action(0).String())
}
