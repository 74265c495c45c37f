package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	q "github.com/iliyamo/movie-ticket-booking/internal/queue"
)

// EventPublisher delivers booking events.  Callers treat failures as
// non-fatal: the booking has already been committed.
type EventPublisher interface {
	PublishBookingConfirmed(ctx context.Context, event q.BookingEvent) error
	PublishBookingCancelled(ctx context.Context, event q.BookingEvent) error
}

// RabbitPublisher publishes events to RabbitMQ.  It dials per publish,
// which keeps it stateless at the cost of a connection per event.
type RabbitPublisher struct {
	url string
	log logrus.FieldLogger
}

// NewRabbitPublisher returns a publisher for the broker at url.
func NewRabbitPublisher(url string, log logrus.FieldLogger) *RabbitPublisher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RabbitPublisher{url: url, log: log.WithField("component", "rabbitmq")}
}

// PublishBookingConfirmed publishes to the "booking.confirmed" queue.
func (p *RabbitPublisher) PublishBookingConfirmed(ctx context.Context, event q.BookingEvent) error {
	event.Type = q.BookingConfirmedQueue
	return p.publish(ctx, q.BookingConfirmedQueue, event)
}

// PublishBookingCancelled publishes to the "booking.cancelled" queue.
func (p *RabbitPublisher) PublishBookingCancelled(ctx context.Context, event q.BookingEvent) error {
	event.Type = q.BookingCancelledQueue
	return p.publish(ctx, q.BookingCancelledQueue, event)
}

func (p *RabbitPublisher) publish(ctx context.Context, queue string, event q.BookingEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.WithError(err).Warn("dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.WithError(err).Warn("channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		p.log.WithError(err).Warn("queue declare failed")
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		MessageId:    event.BookingID + ":" + event.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key = queue name
		false, // mandatory
		false, // immediate
		pub,
	); err != nil {
		p.log.WithError(err).Warn("publish failed")
		return err
	}
	return nil
}

// NopPublisher drops every event.  Used when EVENTS_ENABLED is false.
type NopPublisher struct{}

func (NopPublisher) PublishBookingConfirmed(context.Context, q.BookingEvent) error { return nil }
func (NopPublisher) PublishBookingCancelled(context.Context, q.BookingEvent) error { return nil }
