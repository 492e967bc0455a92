package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of Redis pub/sub the relay needs.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error)
	Close() error
}

// RedisMessage is one pub/sub payload or a subscription error.
type RedisMessage struct {
	Channel string
	Payload string
	Err     error
}

type envelope struct {
	InstanceID string          `json:"instance_id"`
	Action     Action          `json:"action"`
	Item       json.RawMessage `json:"item"`
}

// Relay mirrors a bus over Redis so every instance sees every update.
// Updates published locally are sent to the channel; updates received from
// other instances are delivered to local subscribers only.
type Relay[T any] struct {
	bus        *Bus[T]
	client     RedisClient
	channel    string
	instanceID string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ChannelPrefix namespaces relay channels.
const ChannelPrefix = "stravachallenge:feed:"

// NewRelay attaches a relay to bus and starts listening. Close it to detach.
func NewRelay[T any](ctx context.Context, bus *Bus[T], client RedisClient, instanceID string) (*Relay[T], error) {
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(ctx)
	r := &Relay[T]{
		bus:        bus,
		client:     client,
		channel:    ChannelPrefix + bus.name,
		instanceID: instanceID,
		cancel:     cancel,
	}

	messages, err := client.Subscribe(ctx, r.channel)
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "subscribe to %s", r.channel)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(ctx, messages)
	}()

	bus.setMirror(func(u Update[T]) { r.send(ctx, u) })
	return r, nil
}

func (r *Relay[T]) send(ctx context.Context, u Update[T]) {
	item, err := json.Marshal(u.Item)
	if err != nil {
		relayErrorsTotal.WithLabelValues(r.bus.name).Inc()
		slog.Error("failed to encode feed update", "bus", r.bus.name, "err", err)
		return
	}
	payload, err := json.Marshal(envelope{InstanceID: r.instanceID, Action: u.Action, Item: item})
	if err != nil {
		relayErrorsTotal.WithLabelValues(r.bus.name).Inc()
		slog.Error("failed to encode feed envelope", "bus", r.bus.name, "err", err)
		return
	}
	if err := r.client.Publish(ctx, r.channel, string(payload)); err != nil {
		relayErrorsTotal.WithLabelValues(r.bus.name).Inc()
		slog.Error("failed to relay feed update", "bus", r.bus.name, "err", err)
	}
}

func (r *Relay[T]) loop(ctx context.Context, messages <-chan RedisMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if msg.Err != nil {
				relayErrorsTotal.WithLabelValues(r.bus.name).Inc()
				slog.Error("redis subscription error", "bus", r.bus.name, "err", msg.Err)
				continue
			}
			r.handle(msg)
		}
	}
}

func (r *Relay[T]) handle(msg RedisMessage) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		relayErrorsTotal.WithLabelValues(r.bus.name).Inc()
		slog.Error("failed to decode relayed update", "bus", r.bus.name, "err", err)
		return
	}
	if env.InstanceID == r.instanceID {
		return
	}
	var item T
	if err := json.Unmarshal(env.Item, &item); err != nil {
		relayErrorsTotal.WithLabelValues(r.bus.name).Inc()
		slog.Error("failed to decode relayed item", "bus", r.bus.name, "err", err)
		return
	}
	if err := r.bus.deliver(Update[T]{Action: env.Action, Item: item}); err != nil {
		slog.Warn("dropping relayed update", "bus", r.bus.name, "err", err)
	}
}

// Close detaches the relay from the bus and stops listening.
func (r *Relay[T]) Close() {
	r.bus.setMirror(nil)
	r.cancel()
	r.wg.Wait()
}

// goRedisClient adapts a go-redis client to RedisClient.
type goRedisClient struct {
	client *redis.Client
}

// NewGoRedisClient dials Redis at url (redis://host:port/db).
func NewGoRedisClient(url string) (RedisClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	return &goRedisClient{client: redis.NewClient(opts)}, nil
}

func (c *goRedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	return c.client.Publish(ctx, channel, message).Err()
}

func (c *goRedisClient) Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error) {
	pubsub := c.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan RedisMessage)
	go func() {
		defer close(out)
		defer pubsub.Close()
		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (c *goRedisClient) Close() error {
	return c.client.Close()
}
