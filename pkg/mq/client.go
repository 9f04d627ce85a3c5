// Package mq provides a RabbitMQ client with automatic reconnection and error handling.
package mq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/tempmon/pkg/metrics"
)

const (
	// When reconnecting to the server after connection failure.
	reconnectDelay = 5 * time.Second

	// When setting up the channel after a channel exception.
	reInitDelay = 2 * time.Second

	initialBackoff    = 100 * time.Millisecond
	maxBackoff        = 10 * time.Second
	backoffMultiplier = 2
	maxRetryAttempts  = 5
)

var (
	errNotConnected       = errors.New("not connected to a server")
	errAlreadyClosed      = errors.New("already closed: not connected to the server")
	errShutdown           = errors.New("client is shutting down")
	errMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
	errNotAcknowledged    = errors.New("publish not acknowledged by broker")
)

// Config holds the MQ client configuration.
type Config struct {
	Logger  *slog.Logger
	Metrics *metrics.MQMetrics // Optional metrics
	URL     string
	Queue   string
	// Durable declares the queue durable and publishes persistent messages.
	Durable bool
	// Prefetch bounds unacknowledged deliveries per consumer. Zero means 1.
	Prefetch int
}

// Client is a RabbitMQ client that handles connection management,
// automatic reconnection, and provides methods for publishing and consuming messages.
type Client struct {
	mu              sync.Mutex
	logger          *slog.Logger
	metrics         *metrics.MQMetrics
	queue           string
	durable         bool
	prefetch        int
	connection      *amqp.Connection
	channel         *amqp.Channel
	notifyConnClose chan *amqp.Error
	notifyChanClose chan *amqp.Error
	notifyConfirm   chan amqp.Confirmation
	isReady         bool
	done            chan struct{}
	closeOnce       sync.Once
	// publishMu serializes confirmed publishes so each confirmation is
	// matched to its own publish.
	publishMu sync.Mutex
}

// New validates cfg, creates a client and starts connecting in the background.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("mq config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.URL == "" {
		return nil, errors.New("amqp url cannot be empty")
	}
	if cfg.Queue == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	client := &Client{
		logger:   cfg.Logger.With("queue", cfg.Queue),
		metrics:  cfg.Metrics,
		queue:    cfg.Queue,
		durable:  cfg.Durable,
		prefetch: prefetch,
		done:     make(chan struct{}),
	}
	go client.handleReconnect(cfg.URL)
	return client, nil
}

// Ready reports whether the client currently holds an open channel.
func (client *Client) Ready() bool {
	client.mu.Lock()
	defer client.mu.Unlock()
	return client.isReady
}

func (client *Client) setReady(ready bool) {
	client.mu.Lock()
	client.isReady = ready
	client.mu.Unlock()

	if client.metrics != nil {
		if ready {
			client.metrics.ConnectionStatus.Set(1)
		} else {
			client.metrics.ConnectionStatus.Set(0)
		}
	}
}

// handleReconnect waits for a connection error and then keeps dialing
// until the client is closed.
func (client *Client) handleReconnect(addr string) {
	for {
		client.setReady(false)
		client.logger.Info("attempting to connect")

		if client.metrics != nil {
			client.metrics.ReconnectAttempts.Inc()
		}

		conn, err := client.connect(addr)
		if err != nil {
			client.logger.Error("failed to connect, retrying", "error", err, "delay", reconnectDelay)

			select {
			case <-client.done:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		if done := client.handleReInit(conn); done {
			return
		}
	}
}

func (client *Client) connect(addr string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(addr)
	if err != nil {
		return nil, err
	}

	client.mu.Lock()
	client.connection = conn
	client.notifyConnClose = make(chan *amqp.Error, 1)
	conn.NotifyClose(client.notifyConnClose)
	client.mu.Unlock()

	client.logger.Info("connected")
	return conn, nil
}

// handleReInit re-opens the channel after channel errors. It returns true
// when the client was closed and false when the connection was lost.
func (client *Client) handleReInit(conn *amqp.Connection) bool {
	for {
		client.setReady(false)

		if err := client.init(conn); err != nil {
			client.logger.Error("failed to initialize channel, retrying", "error", err)

			select {
			case <-client.done:
				return true
			case <-client.notifyConnClose:
				client.logger.Info("connection closed, reconnecting")
				return false
			case <-time.After(reInitDelay):
			}
			continue
		}

		select {
		case <-client.done:
			return true
		case <-client.notifyConnClose:
			client.logger.Info("connection closed, reconnecting")
			return false
		case <-client.notifyChanClose:
			client.logger.Info("channel closed, re-running init")
		}
	}
}

// init opens a confirming channel and declares the queue.
func (client *Client) init(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return err
	}

	_, err = ch.QueueDeclare(
		client.queue,
		client.durable, // Durable
		false,          // Delete when unused
		false,          // Exclusive
		false,          // No-wait
		nil,            // Arguments
	)
	if err != nil {
		_ = ch.Close()
		return err
	}

	client.mu.Lock()
	client.channel = ch
	client.notifyChanClose = make(chan *amqp.Error, 1)
	client.notifyConfirm = make(chan amqp.Confirmation, 1)
	ch.NotifyClose(client.notifyChanClose)
	ch.NotifyPublish(client.notifyConfirm)
	client.mu.Unlock()

	client.setReady(true)
	client.logger.Info("client init done")
	return nil
}

// Publish sends msg and waits for the broker confirmation. While the client
// is disconnected it retries with exponential backoff and gives up after
// maxRetryAttempts.
func (client *Client) Publish(ctx context.Context, msg Message) error {
	if client.metrics != nil {
		timer := prometheus.NewTimer(client.metrics.PublishDuration.WithLabelValues(client.queue))
		defer timer.ObserveDuration()
	}

	backoff := initialBackoff
	for attempt := 0; ; attempt++ {
		if attempt >= maxRetryAttempts {
			client.logger.Error("maximum retry attempts exceeded", "max_attempts", maxRetryAttempts)
			client.publishFailed("max_retries_exceeded")
			return errMaxRetriesExceeded
		}

		err := client.publishConfirmed(ctx, msg)
		if err == nil {
			if client.metrics != nil {
				client.metrics.MessagesPublished.WithLabelValues(client.queue).Inc()
			}
			return nil
		}
		if ctx.Err() != nil {
			client.publishFailed("context_canceled")
			return ctx.Err()
		}

		client.logger.Warn("publish failed, retrying with backoff",
			"error", err,
			"backoff", backoff,
			"retry_count", attempt)

		select {
		case <-ctx.Done():
			client.publishFailed("context_canceled")
			return ctx.Err()
		case <-client.done:
			return errShutdown
		case <-time.After(backoff):
		}

		backoff *= backoffMultiplier
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (client *Client) publishConfirmed(ctx context.Context, msg Message) error {
	client.publishMu.Lock()
	defer client.publishMu.Unlock()

	client.mu.Lock()
	confirms := client.notifyConfirm
	client.mu.Unlock()

	if err := client.PublishUnconfirmed(ctx, msg); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-client.done:
		return errShutdown
	case confirm, ok := <-confirms:
		if !ok || !confirm.Ack {
			return errNotAcknowledged
		}
		client.logger.Debug("publish confirmed", "delivery_tag", confirm.DeliveryTag)
		return nil
	}
}

func (client *Client) publishFailed(reason string) {
	if client.metrics != nil {
		client.metrics.PublishFailures.WithLabelValues(client.queue, reason).Inc()
	}
}

// PublishUnconfirmed sends msg without waiting for a confirmation. No
// guarantees are provided for whether the server will receive the message.
func (client *Client) PublishUnconfirmed(ctx context.Context, msg Message) error {
	client.mu.Lock()
	if !client.isReady {
		client.mu.Unlock()
		return errNotConnected
	}
	ch := client.channel
	client.mu.Unlock()

	return ch.PublishWithContext(
		ctx,
		"",           // Exchange
		client.queue, // Routing key
		false,        // Mandatory
		false,        // Immediate
		msg.publishing(client.durable),
	)
}

// Consume subscribes to the queue with manual acknowledgment. The consumer
// is cancelled when ctx is done, which closes the returned channel.
func (client *Client) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	client.mu.Lock()
	if !client.isReady {
		client.mu.Unlock()
		return nil, errNotConnected
	}
	ch := client.channel
	client.mu.Unlock()

	if err := ch.Qos(
		client.prefetch, // prefetchCount
		0,               // prefetchSize
		false,           // global
	); err != nil {
		return nil, err
	}

	deliveries, err := ch.ConsumeWithContext(
		ctx,
		client.queue,
		"",    // Consumer
		false, // Auto-Ack
		false, // Exclusive
		false, // No-local
		false, // No-Wait
		nil,   // Args
	)
	if err != nil {
		return nil, err
	}

	return deliveries, nil
}

// Close stops reconnecting and closes the channel and connection. It
// returns errAlreadyClosed when there was no open connection.
func (client *Client) Close() error {
	client.closeOnce.Do(func() { close(client.done) })

	client.mu.Lock()
	defer client.mu.Unlock()

	if !client.isReady {
		return errAlreadyClosed
	}
	client.isReady = false
	if client.metrics != nil {
		client.metrics.ConnectionStatus.Set(0)
	}

	if err := client.channel.Close(); err != nil {
		return err
	}
	return client.connection.Close()
}
