package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	BookingCancelled   = "booking.cancelled"
	BookingTransferred = "booking.transferred"
	RefundFailed       = "refund.failed"
	BalanceRequested   = "balance.requested"
	PaymentConfirmed   = "payment.confirmed"
)

type Envelope struct {
	ID         string      `json:"id"`
	Event      string      `json:"event"`
	Version    int         `json:"version"`
	OccurredAt string      `json:"occurredAt"`
	Data       interface{} `json:"data"`
}

func NewEnvelope(event string, data interface{}, at time.Time) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Event:      event,
		Version:    1,
		OccurredAt: at.UTC().Format(time.RFC3339),
		Data:       data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event string, data interface{}) error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, interface{}) error { return nil }

type RabbitPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	now      func() time.Time
}

func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &RabbitPublisher{conn: conn, ch: ch, exchange: exchange, now: time.Now}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, event string, data interface{}) error {
	env := NewEnvelope(event, data, p.now())
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, event, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.ID,
		Body:         b,
	})
}

func (p *RabbitPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
