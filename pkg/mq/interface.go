package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ClientInterface defines the interface for message queue operations.
// This interface enables easier testing through mocking and dependency injection.
type ClientInterface interface {
	// Publish sends msg to the queue and waits for the broker confirmation,
	// retrying with backoff while the client reconnects.
	Publish(ctx context.Context, msg Message) error

	// PublishUnconfirmed sends msg without waiting for a confirmation.
	// It returns an error if the client is not connected.
	PublishUnconfirmed(ctx context.Context, msg Message) error

	// Consume starts delivering queue items on the returned channel. The
	// channel closes when ctx is done or the underlying AMQP channel is lost;
	// callers re-subscribe after Ready reports true again.
	// Every delivery must be Acked or Nacked.
	Consume(ctx context.Context) (<-chan amqp.Delivery, error)

	// Ready reports whether a connection and channel are established.
	Ready() bool

	// Close will cleanly shut down the channel and connection.
	Close() error
}

// Ensure Client implements ClientInterface.
var _ ClientInterface = (*Client)(nil)
