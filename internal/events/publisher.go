// Package events publishes chat domain events to a topic exchange for downstream consumers
// (notifications, analytics). Publishing is best-effort and never fails a chat operation.
package events

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/travelmate/chat/internal/logger"
	"github.com/travelmate/chat/internal/metrics"
)

// Routing keys.
const (
	MessageCreated      = "chat.message.created"
	MessageDeleted      = "chat.message.deleted"
	ConversationCreated = "chat.conversation.created"
)

// Envelope is the body of every published event.
type Envelope struct {
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	Close() error
}

// NewPublisher connects to RabbitMQ or returns a noop publisher when AMQP is disabled or unreachable.
func NewPublisher(amqpURL, exchange string) Publisher {
	if amqpURL == "" {
		logger.Infof("events: amqp disabled, using noop: empty amqp url")
		return Noop{}
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		logger.Warnf("events: amqp disabled, using noop: %v", err)
		return Noop{}
	}
	ch, err := conn.Channel()
	if err != nil {
		logger.Warnf("events: amqp disabled, using noop: %v", err)
		_ = conn.Close()
		return Noop{}
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		logger.Warnf("events: amqp disabled, using noop: %v", err)
		_ = ch.Close()
		_ = conn.Close()
		return Noop{}
	}
	logger.Infof("events: amqp connected exchange=%s", exchange)
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(Envelope{EventType: routingKey, OccurredAt: time.Now().UTC(), Payload: payload})
	if err != nil {
		return err
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		metrics.IncAMQPPublishError()
		logger.Errorf("events: publish %s: %v", routingKey, err)
	}
	return err
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Noop drops events.
type Noop struct{}

func (Noop) Publish(ctx context.Context, routingKey string, payload any) error {
	logger.Debugf("events: noop publish routing_key=%s", routingKey)
	return nil
}

func (Noop) Close() error { return nil }

// Mode reports the publisher mode for logging.
func Mode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case Noop, *Noop:
		return "noop"
	default:
		return "unknown"
	}
}
