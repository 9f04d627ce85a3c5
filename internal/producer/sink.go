package producer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"procodus.dev/tempmon/internal/submission"
	"procodus.dev/tempmon/pkg/generator"
	"procodus.dev/tempmon/pkg/mq"
)

// Side channel headers understood by the ingestion endpoint and consumer.
const (
	HeaderMACAddress = "X-MAC-Address"
	HeaderDeviceName = "X-Device-Name"
	HeaderSourceIP   = "X-Source-IP"
	headerRequestID  = "X-Request-Id"
)

// Sink delivers one submission on behalf of a sensor.
type Sink interface {
	Name() string
	Send(ctx context.Context, sensor *generator.Sensor, sub submission.Submission) error
	Close() error
}

// HTTPSink posts submissions to the ingestion endpoint.
type HTTPSink struct {
	client *http.Client
	target string
}

// NewHTTPSink creates a sink posting to target, for example
// http://localhost:9247/request. A nil client means http.DefaultClient.
func NewHTTPSink(target string, client *http.Client) (*HTTPSink, error) {
	if target == "" {
		return nil, errors.New("target cannot be empty")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSink{client: client, target: target}, nil
}

// Name implements Sink.
func (s *HTTPSink) Name() string { return "http" }

// Send implements Sink. Any status other than 200 is an error carrying the
// response body.
func (s *HTTPSink) Send(ctx context.Context, sensor *generator.Sensor, sub submission.Submission) error {
	body, err := submission.Encode(sub)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderMACAddress, sensor.MACAddress)
	req.Header.Set(HeaderDeviceName, sensor.Room)
	req.Header.Set(headerRequestID, uuid.NewString())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post submission: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("submission rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// Close implements Sink.
func (s *HTTPSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// AMQPSink publishes submissions to the ingestion queue.
type AMQPSink struct {
	client mq.ClientInterface
}

// NewAMQPSink creates a sink publishing through client.
func NewAMQPSink(client mq.ClientInterface) (*AMQPSink, error) {
	if client == nil {
		return nil, errors.New("mq client cannot be nil")
	}
	return &AMQPSink{client: client}, nil
}

// Name implements Sink.
func (s *AMQPSink) Name() string { return "amqp" }

// Send implements Sink and waits for the broker confirmation.
func (s *AMQPSink) Send(ctx context.Context, sensor *generator.Sensor, sub submission.Submission) error {
	body, err := submission.Encode(sub)
	if err != nil {
		return err
	}

	return s.client.Publish(ctx, mq.Message{
		Body:        body,
		ContentType: "application/json",
		Headers: map[string]string{
			HeaderMACAddress: sensor.MACAddress,
			HeaderDeviceName: sensor.Room,
			HeaderSourceIP:   sensor.IPAddress,
		},
	})
}

// Close implements Sink.
func (s *AMQPSink) Close() error {
	return s.client.Close()
}
