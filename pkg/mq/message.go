package mq

import (
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Message is one payload published to the queue.
type Message struct {
	Body        []byte
	ContentType string
	Headers     map[string]string
}

// publishing converts m into an AMQP publishing with a fresh message id.
func (m Message) publishing(persistent bool) amqp.Publishing {
	contentType := m.ContentType
	if contentType == "" {
		contentType = "application/json"
	}

	var headers amqp.Table
	if len(m.Headers) > 0 {
		headers = make(amqp.Table, len(m.Headers))
		for k, v := range m.Headers {
			headers[k] = v
		}
	}

	p := amqp.Publishing{
		ContentType: contentType,
		MessageId:   uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		Headers:     headers,
		Body:        m.Body,
	}
	if persistent {
		p.DeliveryMode = amqp.Persistent
	}
	return p
}

// Header returns the string value of header key on d, or "" when it is
// absent or not a string.
func Header(d amqp.Delivery, key string) string {
	if d.Headers == nil {
		return ""
	}
	switch v := d.Headers[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}
