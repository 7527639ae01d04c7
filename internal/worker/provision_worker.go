package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"scholarbridge/internal/app"
	"scholarbridge/internal/apperr"
	"scholarbridge/internal/model"
	"scholarbridge/internal/pkg/logger"
	"scholarbridge/internal/platform/rabbitmq"
)

type EventProcessor interface {
	Process(ctx context.Context, ev model.WebhookEvent) (*app.IntakeOutcome, error)
	DeadLetter(ctx context.Context, ev model.WebhookEvent, cause error)
}

// ProvisionWorker consumes queued webhook events and runs them through the
// intake state machine. A transient failure is requeued once; a second
// transient failure is dead-lettered into the reconciliation ledger.
type ProvisionWorker struct {
	conn        *amqp.Connection
	processor   EventProcessor
	queueName   string
	concurrency int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewProvisionWorker(conn *amqp.Connection, processor EventProcessor, queueName string, concurrency int) *ProvisionWorker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &ProvisionWorker{
		conn:        conn,
		processor:   processor,
		queueName:   queueName,
		concurrency: concurrency,
	}
}

func (w *ProvisionWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(w.concurrency, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	var consumers sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					w.handle(workerCtx, d)
				}
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		consumers.Wait()
		_ = ch.Close()
	}()

	slog.Info("provision worker started", "queue", w.queueName, "concurrency", w.concurrency)
	return nil
}

func (w *ProvisionWorker) handle(ctx context.Context, d amqp.Delivery) {
	var ev model.WebhookEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil || ev.RecordID == "" {
		slog.ErrorContext(ctx, "worker dropped undecodable event", "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, false)
		return
	}
	ctx = logger.WithRecordID(ctx, ev.RecordID)
	log := logger.FromContext(ctx)

	outcome, err := w.processor.Process(ctx, ev)
	switch {
	case err == nil:
		log.InfoContext(ctx, "queued event processed", "state", outcome.State, "skipped", outcome.Skipped)
		_ = d.Ack(false)
	case ctx.Err() != nil:
		// shutting down: requeue even a redelivered event
		log.WarnContext(ctx, "worker stopping, requeueing event", logger.Err(err))
		_ = d.Nack(false, true)
	case errors.Is(err, apperr.ErrTransient) && !d.Redelivered:
		log.WarnContext(ctx, "queued event failed, requeueing", logger.Err(err))
		_ = d.Nack(false, true)
	case errors.Is(err, apperr.ErrTransient):
		w.processor.DeadLetter(ctx, ev, err)
		_ = d.Ack(false)
	default:
		// Validation, not-found and conflict will not improve on redelivery.
		// Conflicts are already in the ledger.
		log.ErrorContext(ctx, "queued event rejected", logger.Err(err))
		_ = d.Ack(false)
	}
}

func (w *ProvisionWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
