package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Messenger is the messaging collaborator the out-of-band dispatcher
// forwards SMS payloads to. Delivery is best-effort; the returned id is
// the collaborator's message id.
type Messenger interface {
	SendSMS(ctx context.Context, phone, text string) (string, error)
}

// Channel the committed notification events are published on.
const NotificationsChannel = "notifications"
