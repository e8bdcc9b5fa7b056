// Package events publishes patient change events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/ehr/patients/internal/domain/patient"
)

// Message is the JSON body of every published event.
type Message struct {
	patient.ChangeEvent
	OccurredAt time.Time `json:"occurred_at"`
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher sends each ChangeEvent as a persistent JSON message to a
// durable queue on the default exchange. A failed publish drops the channel
// and the next call dials again.
type AMQPPublisher struct {
	url    string
	queue  string
	logger zerolog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   channel
	now  func() time.Time
	dial func() (channel, error)
}

// NewAMQPPublisher connects to url and declares queue.
func NewAMQPPublisher(url, queue string, logger zerolog.Logger) (*AMQPPublisher, error) {
	p := &AMQPPublisher{url: url, queue: queue, logger: logger, now: time.Now}
	p.dial = p.dialAMQP
	if _, err := p.channel(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) dialAMQP() (channel, error) {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare %s: %w", p.queue, err)
	}
	p.conn = conn
	return ch, nil
}

// channel returns the open channel, dialing if needed. Callers hold p.mu or
// are the constructor.
func (p *AMQPPublisher) channel() (channel, error) {
	if p.ch != nil {
		return p.ch, nil
	}
	ch, err := p.dial()
	if err != nil {
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, evt patient.ChangeEvent) error {
	body, err := json.Marshal(Message{ChangeEvent: evt, OccurredAt: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Type:         "patient." + string(evt.Action),
		MessageId:    evt.ID + ":" + string(evt.Action) + ":" + fmt.Sprint(p.now().UnixNano()),
		Body:         body,
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("queue", p.queue).Msg("rabbitmq publish failed; reconnecting on next event")
		p.reset()
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
