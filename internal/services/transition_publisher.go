package services

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/ZerkerEOD/hashfleet/internal/models"
	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// TransitionPublisher pushes transition events onto an AMQP queue for
// external consumers (alerting, analytics). Publishing is best effort; a
// broker outage never blocks or fails the transition that produced the
// event.
type TransitionPublisher struct {
	url   string
	queue string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewTransitionPublisher creates a publisher for the given broker URL and
// queue name. The connection is established lazily on first publish.
func NewTransitionPublisher(url, queue string) *TransitionPublisher {
	return &TransitionPublisher{
		url:   url,
		queue: queue,
	}
}

// Publish sends one event to the queue. Returns an error only for callers
// that want to log it; the publisher already handles reconnection.
func (p *TransitionPublisher) Publish(event *models.TransitionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal transition event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureChannel(); err != nil {
		return err
	}

	err = p.publishLocked(body)
	if err != nil {
		// Channel may have died since the last publish. Reconnect once.
		p.teardownLocked()
		if err := p.ensureChannel(); err != nil {
			return err
		}
		err = p.publishLocked(body)
	}
	if err != nil {
		return fmt.Errorf("failed to publish transition event: %w", err)
	}

	return nil
}

func (p *TransitionPublisher) publishLocked(body []byte) error {
	return p.channel.Publish(
		"",      // default exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// ensureChannel dials the broker and declares the queue if needed
func (p *TransitionPublisher) ensureChannel() error {
	if p.channel != nil {
		return nil
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		p.queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare queue %s: %w", p.queue, err)
	}

	p.conn = conn
	p.channel = channel
	debug.Info("Connected to AMQP broker, queue %s declared", p.queue)
	return nil
}

func (p *TransitionPublisher) teardownLocked() {
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

// Ping verifies the broker connection, dialing if needed
func (p *TransitionPublisher) Ping() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ensureChannel()
}

// Close shuts down the broker connection
func (p *TransitionPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.teardownLocked()
}
