package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"scholarbridge/internal/apperr"
	"scholarbridge/internal/model"
)

type fakeChannel struct {
	confirmed bool
	declared  []string
	published []amqp.Publishing
	closed    bool

	// reply is sent on the confirm channel after a publish; nil sends nothing.
	reply       *amqp.Confirmation
	closeNotify bool
	publishErr  error
	confirms    chan amqp.Confirmation
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.declared = append(f.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) Confirm(bool) error {
	f.confirmed = true
	return nil
}

func (f *fakeChannel) NotifyPublish(c chan amqp.Confirmation) chan amqp.Confirmation {
	f.confirms = c
	return c
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	switch {
	case f.reply != nil:
		f.confirms <- *f.reply
	case f.closeNotify:
		close(f.confirms)
	}
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newTestPublisher(ch *fakeChannel) *EventPublisher {
	return &EventPublisher{
		open:           func() (publishChannel, error) { return ch, nil },
		queueName:      "scholarbridge.intake",
		confirmTimeout: 50 * time.Millisecond,
	}
}

var testEvent = model.WebhookEvent{EventType: model.EventRowsCreated, RecordID: "S-100", DisplayName: "Amina B."}

func TestPublishWaitsForAck(t *testing.T) {
	ch := &fakeChannel{reply: &amqp.Confirmation{DeliveryTag: 1, Ack: true}}
	if err := newTestPublisher(ch).Publish(context.Background(), testEvent); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !ch.confirmed || !ch.closed {
		t.Errorf("expected confirm mode and closed channel, got confirmed=%v closed=%v", ch.confirmed, ch.closed)
	}
	if len(ch.declared) != 1 || ch.declared[0] != "scholarbridge.intake" {
		t.Errorf("unexpected declared queues %v", ch.declared)
	}
	if len(ch.published) != 1 {
		t.Fatalf("expected one message, got %d", len(ch.published))
	}
	msg := ch.published[0]
	if msg.MessageId != "S-100" || msg.DeliveryMode != amqp.Persistent {
		t.Errorf("unexpected message %+v", msg)
	}
	var got model.WebhookEvent
	if err := json.Unmarshal(msg.Body, &got); err != nil || got.RecordID != "S-100" {
		t.Errorf("unexpected body %s (%v)", msg.Body, err)
	}
}

func TestPublishUnconfirmedIsTransient(t *testing.T) {
	tests := []struct {
		name string
		ch   *fakeChannel
	}{
		{"broker nack", &fakeChannel{reply: &amqp.Confirmation{DeliveryTag: 1, Ack: false}}},
		{"no confirm before timeout", &fakeChannel{}},
		{"channel closed", &fakeChannel{closeNotify: true}},
		{"publish error", &fakeChannel{publishErr: amqp.ErrClosed}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newTestPublisher(tt.ch).Publish(context.Background(), testEvent)
			if !errors.Is(err, apperr.ErrTransient) {
				t.Fatalf("expected transient error, got %v", err)
			}
			if apperr.HTTPStatus(err) != 503 {
				t.Errorf("expected 503, got %d", apperr.HTTPStatus(err))
			}
		})
	}
}

func TestPublishOpenFailureIsTransient(t *testing.T) {
	p := &EventPublisher{
		open:           func() (publishChannel, error) { return nil, amqp.ErrClosed },
		queueName:      "q",
		confirmTimeout: time.Second,
	}
	if err := p.Publish(context.Background(), testEvent); !errors.Is(err, apperr.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
