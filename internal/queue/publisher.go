package queue

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const auditQueueName = "booking.audit"

// publishBuffer is how many events may queue up in memory before new
// ones are dropped.
const publishBuffer = 64

// Publisher publishes audit events to RabbitMQ over a shared
// connection that is redialed on failure, mirroring the consumer's
// reconnect behavior.  Publishing is fire-and-forget: Record hands
// the event to a single worker goroutine and a broker failure is
// logged and dropped, so the booking flow never blocks on the broker.
type Publisher struct {
	url    string
	events chan AuditEvent
	done   chan struct{}

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher returns a Publisher for the given AMQP URL and starts
// its worker.  The connection is established lazily on the first
// event.
func NewPublisher(url string) *Publisher {
	p := &Publisher{
		url:    url,
		events: make(chan AuditEvent, publishBuffer),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Record satisfies the audit recorder used by the services.  It fills
// in the event ID and timestamp when missing and enqueues the event
// without blocking; with the buffer full the event is dropped.
func (p *Publisher) Record(_ context.Context, event AuditEvent) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	select {
	case p.events <- event:
	default:
		log.Printf("audit-publisher: buffer full, dropping %s", event.Kind)
	}
}

// Close drains the queued events and tears down the connection.  No
// Record calls may follow.
func (p *Publisher) Close() {
	close(p.events)
	<-p.done
	p.reset()
}

// run is the worker loop.  Events arrive detached from their request
// context: the request may finish before the broker round trip does.
func (p *Publisher) run() {
	defer close(p.done)
	for event := range p.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.publish(ctx, event); err != nil {
			log.Printf("audit-publisher: publish %s failed: %v", event.Kind, err)
		}
		cancel()
	}
}

// publish sends one persistent message, redialing once when the
// shared channel turns out to be stale.
func (p *Publisher) publish(ctx context.Context, event AuditEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID,
		Timestamp:    event.OccurredAt,
		Body:         body,
	}

	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", auditQueueName, false, false, msg)
	if err == nil {
		return nil
	}
	p.reset()
	ch, rerr := p.channel()
	if rerr != nil {
		return rerr
	}
	return ch.PublishWithContext(ctx, "", auditQueueName, false, false, msg)
}

// channel returns the shared channel, dialing the broker and
// declaring the durable queue when none is open yet.
func (p *Publisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn, p.ch = nil, nil
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(auditQueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// reset drops the shared connection so the next publish redials.
func (p *Publisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}
