package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultQueue = "fission.events"

// envelope is the JSON body published for every event.
type envelope struct {
	Event     Event     `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"payload,omitempty"`
}

func encodeEnvelope(event Event, data Payload, now time.Time) ([]byte, error) {
	body, err := json.Marshal(envelope{Event: event, Timestamp: now.UTC(), Payload: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", event, err)
	}
	return body, nil
}

// amqpService publishes persistent JSON messages to a durable queue. The
// connection is dialed on first use and re-dialed after it drops.
type amqpService struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
	dial func(string) (*amqp.Connection, error)
}

func newAMQPService(url, queue string) *amqpService {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		queue = defaultQueue
	}
	return &amqpService{url: url, queue: queue, dial: amqp.Dial}
}

func (a *amqpService) Publish(ctx context.Context, event Event, data Payload) error {
	body, err := encodeEnvelope(event, data, time.Now())
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ch, err := a.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx,
		"",
		a.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Type:         string(event),
			Body:         body,
		})
	if err != nil {
		a.reset()
		return fmt.Errorf("publish %s event: %w", event, err)
	}
	return nil
}

// channel returns an open channel with the queue declared. Callers hold a.mu.
func (a *amqpService) channel() (*amqp.Channel, error) {
	if a.ch != nil && !a.ch.IsClosed() && a.conn != nil && !a.conn.IsClosed() {
		return a.ch, nil
	}
	a.reset()

	conn, err := a.dial(a.url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		a.queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare amqp queue %s: %w", a.queue, err)
	}
	a.conn = conn
	a.ch = ch
	return ch, nil
}

func (a *amqpService) reset() {
	if a.ch != nil {
		_ = a.ch.Close()
		a.ch = nil
	}
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
}

func (a *amqpService) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()
	return nil
}
