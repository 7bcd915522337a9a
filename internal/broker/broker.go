// Package broker bridges the gateway to the shared cross-process pub/sub bus.
// Every event takes the bus path, including events published by this process,
// so delivery order per channel is the bus's order and additional gateway
// instances can be added without code changes.
package broker

import "context"

// Message is one inbound bus message.
type Message struct {
	Channel string
	Payload []byte
}

// Broker is the subscribe/unsubscribe/publish surface the gateway consumes.
// Subscribe and Unsubscribe are driven exclusively by the connection
// registry's membership transitions.
type Broker interface {
	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error
	Publish(ctx context.Context, channel string, payload []byte) error

	// Messages yields inbound messages for all currently subscribed
	// channels, in per-channel publish order. The channel is closed when
	// the bus connection is lost, which the gateway treats as fatal.
	Messages() <-chan Message

	Close() error
}
