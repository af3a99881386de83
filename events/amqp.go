package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher fans events out to a broker exchange. Publish failures are
// dropped: events are observability, never control flow.
type AMQPPublisher struct {
	channel  *amqp.Channel
	exchange string
}

// NewAMQPPublisher declares a topic exchange on the connection and returns a
// publisher bound to it.
func NewAMQPPublisher(conn *amqp.Connection, exchange string) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{channel: ch, exchange: exchange}, nil
}

// Notify publishes the event as JSON with the event type as routing key.
func (p *AMQPPublisher) Notify(ctx context.Context, event Event) {
	body, err := json.Marshal(struct {
		Type      string `json:"type"`
		GrantType string `json:"grant_type,omitempty"`
		ClientID  string `json:"client_id,omitempty"`
		UserID    string `json:"user_id,omitempty"`
		At        int64  `json:"at"`
	}{
		Type:      string(event.Type),
		GrantType: event.GrantType,
		ClientID:  event.ClientID,
		UserID:    event.UserID,
		At:        time.Now().Unix(),
	})
	if err != nil {
		return
	}
	_ = p.channel.PublishWithContext(ctx, p.exchange, string(event.Type), false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Close releases the channel.
func (p *AMQPPublisher) Close() error {
	return p.channel.Close()
}
