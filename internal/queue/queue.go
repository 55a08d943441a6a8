package queue

import "context"

// Publisher delivers messages to a subject. The storage layer publishes
// part lifecycle events through it after each commit.
type Publisher interface {
	// Publish sends one message to subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishBatch sends many messages and reports how many the backend
	// accepted. Backends are free to pipeline; delivery order across
	// subjects is not guaranteed.
	PublishBatch(ctx context.Context, messages []BatchMessage) (int, error)

	// Close releases the connection.
	Close() error
}

// BatchMessage is one entry of a PublishBatch call.
type BatchMessage struct {
	Subject string
	Data    []byte
}

// Subscriber consumes messages from a subject. The ingest daemon reads
// insert streams through it, one subscription per table.
type Subscriber interface {
	// Subscribe registers handler for subject. A subject carries at most
	// one active subscription per client.
	Subscribe(subject string, handler MessageHandler) error

	// Unsubscribe stops delivery for subject.
	Unsubscribe(subject string) error

	// Close releases the connection and stops all subscriptions.
	Close() error
}

// MessageHandler processes one delivered message. A non-nil error leaves
// the message unacknowledged on backends that redeliver.
type MessageHandler func(data []byte) error

// Queue is a Publisher and Subscriber over one connection.
type Queue interface {
	Publisher
	Subscriber
}
