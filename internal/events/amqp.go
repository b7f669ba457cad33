package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	Exchange       = "cloudhire.events"
	RoutingKey     = "submission.submitted"
	ReportsQueue   = "cloudhire.reports"
	publishTimeout = 5 * time.Second
)

// AMQPBus publishes and consumes submission events on a RabbitMQ topic
// exchange.
type AMQPBus struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex // amqp channels are not safe for concurrent publishing
}

// DialAMQP connects and declares the exchange.
func DialAMQP(url string) (*AMQPBus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		Exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPBus{conn: conn, channel: ch}, nil
}

// PublishSubmitted sends a persistent JSON message.
func (b *AMQPBus) PublishSubmitted(ctx context.Context, ev SubmissionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	b.mu.Lock()
	defer b.mu.Unlock()
	err = b.channel.PublishWithContext(ctx, Exchange, RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		MessageId:    ev.PublicID,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	slog.Debug("published event", "routing_key", RoutingKey, "submission_id", ev.SubmissionID)
	return nil
}

// Consume declares and binds the reports queue and runs workers consumers
// until ctx is cancelled or the delivery channel closes.
func (b *AMQPBus) Consume(ctx context.Context, workers int, h Handler) error {
	if workers < 1 {
		workers = 1
	}
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(workers, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	if _, err := ch.QueueDeclare(ReportsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(ReportsQueue, RoutingKey, Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, ReportsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	slog.Info("consuming submission events", "queue", ReportsQueue, "workers", workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for d := range msgs {
				handleDelivery(ctx, id, d, h)
			}
		}(i + 1)
	}
	wg.Wait()
	return ctx.Err()
}

// handleDelivery acks processed messages. A malformed message is dropped; a
// failed one is requeued once and dropped on redelivery.
func handleDelivery(ctx context.Context, worker int, d amqp.Delivery, h Handler) {
	var ev SubmissionEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil || ev.SubmissionID == 0 {
		slog.Error("dropping malformed event", "worker", worker, "error", err)
		_ = d.Nack(false, false)
		return
	}
	slog.Info("processing submission", "worker", worker, "submission_id", ev.SubmissionID)
	if err := h(ctx, ev); err != nil {
		slog.Error("processing submission failed", "worker", worker, "submission_id", ev.SubmissionID,
			"redelivered", d.Redelivered, "error", err)
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	_ = d.Ack(false)
}

// Close closes the channel and connection.
func (b *AMQPBus) Close() error {
	if err := b.channel.Close(); err != nil {
		slog.Warn("error closing RabbitMQ channel", "error", err)
	}
	if err := b.conn.Close(); err != nil {
		return fmt.Errorf("close RabbitMQ connection: %w", err)
	}
	return nil
}
