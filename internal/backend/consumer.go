package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/tempmon/internal/ingest"
	"procodus.dev/tempmon/internal/submission"
	"procodus.dev/tempmon/pkg/metrics"
	"procodus.dev/tempmon/pkg/mq"
)

// Delivery headers carrying what an HTTP request carries in its side
// channel and peer address.
const (
	HeaderMACAddress = "X-MAC-Address"
	HeaderDeviceName = "X-Device-Name"
	HeaderSourceIP   = "X-Source-IP"
)

const defaultRetryDelay = time.Second

// Ingester accepts decoded submissions.
type Ingester interface {
	Submit(ctx context.Context, sub submission.Submission, origin ingest.Origin) (ingest.Receipt, error)
}

// Consumer feeds queued submissions into the ingestion service.
type Consumer struct {
	logger     *slog.Logger
	client     mq.ClientInterface
	ingester   Ingester
	metrics    *metrics.MQMetrics
	queue      string
	retryDelay time.Duration
	cancel     context.CancelFunc
	done       chan struct{}
}

// ConsumerConfig holds the configuration for the Consumer.
type ConsumerConfig struct {
	Logger    *slog.Logger
	Client    mq.ClientInterface
	Ingester  Ingester
	Metrics   *metrics.MQMetrics // Optional metrics
	QueueName string
	// RetryDelay is the wait between subscription attempts while the
	// broker is unavailable. Defaults to one second.
	RetryDelay time.Duration
}

// NewConsumer creates a new Consumer instance.
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg == nil {
		return nil, errors.New("consumer config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Client == nil {
		return nil, errors.New("mq client cannot be nil")
	}

	if cfg.Ingester == nil {
		return nil, errors.New("ingester cannot be nil")
	}

	if cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	return &Consumer{
		logger:     cfg.Logger,
		client:     cfg.Client,
		ingester:   cfg.Ingester,
		metrics:    cfg.Metrics,
		queue:      cfg.QueueName,
		retryDelay: retryDelay,
		done:       make(chan struct{}),
	}, nil
}

// Start consumes in the background until ctx is done or Stop is called.
// Subscriptions lost to reconnects are re-established.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("starting consumer")
	go c.run(ctx)
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)

	for {
		if ctx.Err() != nil {
			return
		}

		if !c.client.Ready() {
			if !c.sleep(ctx) {
				return
			}
			continue
		}

		deliveries, err := c.client.Consume(ctx)
		if err != nil {
			c.logger.Warn("failed to subscribe, retrying", "error", err, "delay", c.retryDelay)
			if !c.sleep(ctx) {
				return
			}
			continue
		}

		c.logger.Info("consumer subscribed, waiting for messages")
		c.processMessages(ctx, deliveries)
		if !c.sleep(ctx) {
			return
		}
	}
}

func (c *Consumer) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.retryDelay):
		return true
	}
}

// processMessages handles deliveries until the channel closes or ctx is done.
func (c *Consumer) processMessages(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context canceled, stopping message processing")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("deliveries channel closed")
				return
			}

			c.handleDelivery(ctx, delivery)
		}
	}
}

// handleDelivery acknowledges accepted and undecodable messages and rejects
// messages the store could not persist, without requeueing them.
func (c *Consumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	if c.metrics != nil {
		timer := prometheus.NewTimer(c.metrics.ProcessingDuration.WithLabelValues(c.queue))
		defer timer.ObserveDuration()
	}

	sub, err := submission.Decode(delivery.Body)
	if err != nil {
		c.logger.Warn("dropping undecodable message",
			"message_id", delivery.MessageId,
			"error", err,
		)
		c.ack(delivery, metrics.OutcomeDropped)
		return
	}

	origin := ingest.Origin{
		Transport:  ingest.TransportAMQP,
		RemoteIP:   mq.Header(delivery, HeaderSourceIP),
		MACAddress: mq.Header(delivery, HeaderMACAddress),
		DeviceName: mq.Header(delivery, HeaderDeviceName),
	}

	receipt, err := c.ingester.Submit(ctx, sub, origin)
	if err != nil {
		var validationErr *ingest.ValidationError
		if errors.As(err, &validationErr) {
			c.logger.Warn("dropping invalid message",
				"message_id", delivery.MessageId,
				"error", err,
			)
			c.ack(delivery, metrics.OutcomeDropped)
			return
		}

		c.logger.Error("failed to store message",
			"message_id", delivery.MessageId,
			"error", err,
		)
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			c.logger.Error("failed to nack message", "error", nackErr)
		}
		c.count(metrics.OutcomeRejected)
		return
	}

	c.logger.Debug("message stored", "message_id", delivery.MessageId, "id", receipt.ID)
	c.ack(delivery, metrics.OutcomeAcked)
}

func (c *Consumer) ack(delivery amqp.Delivery, outcome string) {
	if err := delivery.Ack(false); err != nil {
		c.logger.Error("failed to ack message", "error", err)
	}
	c.count(outcome)
}

func (c *Consumer) count(outcome string) {
	if c.metrics != nil {
		c.metrics.DeliveriesTotal.WithLabelValues(c.queue, outcome).Inc()
	}
}

// Stop cancels consumption, waits for the in-flight delivery and closes
// the MQ client.
func (c *Consumer) Stop() error {
	c.logger.Info("stopping consumer")

	if c.cancel != nil {
		c.cancel()
		<-c.done
	}

	connected := c.client.Ready()
	if err := c.client.Close(); err != nil && connected {
		return fmt.Errorf("failed to close mq client: %w", err)
	}

	c.logger.Info("consumer stopped")
	return nil
}
