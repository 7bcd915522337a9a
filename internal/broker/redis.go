package broker

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBroker implements Broker on top of Redis pub/sub. A single PubSub
// receiver feeds Messages, so per-channel ordering is Redis's publish order.
type RedisBroker struct {
	client *redis.Client
	pubsub *redis.PubSub
	out    chan Message

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRedisBroker opens the subscriber connection and starts the receive loop.
func NewRedisBroker(client *redis.Client) *RedisBroker {
	ctx, cancel := context.WithCancel(context.Background())

	b := &RedisBroker{
		client: client,
		pubsub: client.Subscribe(ctx),
		out:    make(chan Message, 64),
		ctx:    ctx,
		cancel: cancel,
	}
	go b.receive()
	return b
}

func (b *RedisBroker) Subscribe(ctx context.Context, channels ...string) error {
	if len(channels) == 0 {
		return nil
	}
	slog.Debug("Broker subscribe", "channels", channels)
	return b.pubsub.Subscribe(ctx, channels...)
}

func (b *RedisBroker) Unsubscribe(ctx context.Context, channels ...string) error {
	if len(channels) == 0 {
		return nil
	}
	slog.Debug("Broker unsubscribe", "channels", channels)
	return b.pubsub.Unsubscribe(ctx, channels...)
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

func (b *RedisBroker) Messages() <-chan Message {
	return b.out
}

func (b *RedisBroker) Close() error {
	b.cancel()
	return b.pubsub.Close()
}

// receive forwards pub/sub messages until the PubSub connection is closed.
// Closing out signals the consumer that the bus is gone.
func (b *RedisBroker) receive() {
	defer close(b.out)

	ch := b.pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				slog.Error("Redis pub/sub stream closed")
				return
			}
			// The consumer may already be gone at shutdown; never block
			// past cancellation on a full out channel.
			select {
			case b.out <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
			case <-b.ctx.Done():
				return
			}
		case <-b.ctx.Done():
			return
		}
	}
}
