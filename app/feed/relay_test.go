package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis fans every published payload out to all subscribers of a channel.
type fakeRedis struct {
	mu   sync.Mutex
	subs map[string][]chan RedisMessage
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{subs: make(map[string][]chan RedisMessage)}
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs[channel] {
		ch <- RedisMessage{Channel: channel, Payload: message.(string)}
	}
	return nil
}

func (f *fakeRedis) Subscribe(_ context.Context, channels ...string) (<-chan RedisMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan RedisMessage, 16)
	for _, c := range channels {
		f.subs[c] = append(f.subs[c], ch)
	}
	return ch, nil
}

func (f *fakeRedis) Close() error { return nil }

func TestRelay_MirrorsUpdatesBetweenInstances(t *testing.T) {
	redis := newFakeRedis()
	local := NewBus[item]("relay-test")
	remote := NewBus[item]("relay-test")

	r1, err := NewRelay(context.Background(), local, redis, "instance-1")
	require.NoError(t, err)
	defer r1.Close()
	r2, err := NewRelay(context.Background(), remote, redis, "instance-2")
	require.NoError(t, err)
	defer r2.Close()

	localSub, err := local.Subscribe(nil)
	require.NoError(t, err)
	remoteSub, err := remote.Subscribe(nil)
	require.NoError(t, err)

	require.NoError(t, local.Publish(Updated(item{ID: 5})))

	assert.Equal(t, Updated(item{ID: 5}), receive(t, remoteSub))
	assert.Equal(t, Updated(item{ID: 5}), receive(t, localSub))

	time.Sleep(20 * time.Millisecond)
	assertEmpty(t, localSub)
	assertEmpty(t, remoteSub)
}

func TestRelay_IgnoresGarbage(t *testing.T) {
	redis := newFakeRedis()
	bus := NewBus[item]("relay-garbage-test")
	r, err := NewRelay(context.Background(), bus, redis, "")
	require.NoError(t, err)
	defer r.Close()
	assert.NotEmpty(t, r.instanceID)

	sub, err := bus.Subscribe(nil)
	require.NoError(t, err)

	require.NoError(t, redis.Publish(context.Background(), ChannelPrefix+"relay-garbage-test", "not json"))
	require.NoError(t, redis.Publish(context.Background(), ChannelPrefix+"relay-garbage-test",
		`{"instance_id":"other","action":"create","item":{"id":8}}`))

	assert.Equal(t, Created(item{ID: 8}), receive(t, sub))
}

func TestRelay_CloseDetachesMirror(t *testing.T) {
	redis := newFakeRedis()
	bus := NewBus[item]("relay-detach-test")
	r, err := NewRelay(context.Background(), bus, redis, "a")
	require.NoError(t, err)
	r.Close()

	peer, err := redis.Subscribe(context.Background(), ChannelPrefix+"relay-detach-test")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(Created(item{ID: 1})))

	select {
	case msg := <-peer:
		t.Fatalf("unexpected relayed message %q", msg.Payload)
	default:
	}
}

func TestBus_MirrorSeesLocalPublishOrder(t *testing.T) {
	bus := NewBus[item]("mirror-order-test", WithBufferSize(256))
	sub, err := bus.Subscribe(nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var mirrored []int
	bus.setMirror(func(u Update[item]) {
		mu.Lock()
		defer mu.Unlock()
		mirrored = append(mirrored, u.Item.ID)
	})

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				assert.NoError(t, bus.Publish(Created(item{ID: p*100 + i})))
			}
		}(p)
	}
	wg.Wait()

	var local []int
	for i := 0; i < 200; i++ {
		local = append(local, receive(t, sub).Item.ID)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, local, mirrored)
}
