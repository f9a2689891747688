package notify

import "context"

// Publisher is the transport half of the notification bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}
