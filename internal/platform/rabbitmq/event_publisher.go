package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"scholarbridge/internal/apperr"
	"scholarbridge/internal/model"
)

const defaultConfirmTimeout = 5 * time.Second

type queueDeclarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
}

// publishChannel is the part of *amqp.Channel the publisher needs.
type publishChannel interface {
	queueDeclarer
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type EventPublisher struct {
	open           func() (publishChannel, error)
	queueName      string
	confirmTimeout time.Duration
}

func NewEventPublisher(conn *amqp.Connection, queueName string) *EventPublisher {
	return &EventPublisher{
		open: func() (publishChannel, error) {
			ch, err := conn.Channel()
			if err != nil {
				return nil, err
			}
			return ch, nil
		},
		queueName:      queueName,
		confirmTimeout: defaultConfirmTimeout,
	}
}

// Publish enqueues one validated webhook event as a persistent message and
// waits for the broker to confirm it. The record id doubles as the message
// id so duplicates are easy to spot.
func (p *EventPublisher) Publish(ctx context.Context, event model.WebhookEvent) error {
	ch, err := p.open()
	if err != nil {
		return fmt.Errorf("%w: open rabbitmq channel failed: %w", apperr.ErrTransient, err)
	}
	defer ch.Close()

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("%w: enable publisher confirms failed: %w", apperr.ErrTransient, err)
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	if err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event payload failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    event.RecordID,
			Type:         event.EventType,
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("%w: publish event failed: %w", apperr.ErrTransient, err)
	}

	timer := time.NewTimer(p.confirmTimeout)
	defer timer.Stop()

	select {
	case c, ok := <-confirms:
		if !ok {
			return fmt.Errorf("%w: channel closed before publish confirm", apperr.ErrTransient)
		}
		if !c.Ack {
			return fmt.Errorf("%w: broker nacked event for record %s", apperr.ErrTransient, event.RecordID)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: publish confirm timed out after %s", apperr.ErrTransient, p.confirmTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for publish confirm: %w", apperr.ErrTransient, ctx.Err())
	}
}

func DeclareQueue(ch queueDeclarer, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s failed: %w", name, err)
	}
	return nil
}
