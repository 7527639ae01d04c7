package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"scholarbridge/internal/apperr"
	"scholarbridge/internal/metrics"
	"scholarbridge/internal/model"
	"scholarbridge/internal/pkg/logger"
	"scholarbridge/internal/storage"
)

const (
	IntakeModeInline = "inline"
	IntakeModeQueue  = "queue"

	ReasonPatchFailed = "patch_failed"
	ReasonConflict    = "conflict"
	ReasonDeadLetter  = "dead_letter"
)

var ErrProvisioningInProgress = fmt.Errorf("%w: provisioning already in progress", apperr.ErrTransient)

type IntakeState string

const (
	StateReceived       IntakeState = "RECEIVED"
	StateValidated      IntakeState = "VALIDATED"
	StateFolderResolved IntakeState = "FOLDER_RESOLVED"
	StateRecordPatched  IntakeState = "RECORD_PATCHED"
	StateAcked          IntakeState = "ACKED"
	StateRejected       IntakeState = "REJECTED"
)

// IntakeOutcome describes how far one event got. Folder is set from
// FOLDER_RESOLVED onwards.
type IntakeOutcome struct {
	RecordID    string                 `json:"record_id"`
	State       IntakeState            `json:"state"`
	Skipped     bool                   `json:"skipped,omitempty"`
	Folder      *model.FolderReference `json:"folder,omitempty"`
	ProfileLink string                 `json:"profile_link,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// IntakeResult is the response to one webhook delivery.
type IntakeResult struct {
	Status   string           `json:"status"` // processed, accepted, ignored
	Reason   string           `json:"reason,omitempty"`
	Outcomes []*IntakeOutcome `json:"outcomes,omitempty"`
}

type IntakeOptions struct {
	TableID    string
	NameColumn string
	Mode       string
}

type IntakeService struct {
	store       RecordStore
	provisioner FolderProvisioner
	ledger      ReconciliationLedger
	locker      RecordLocker
	publisher   EventPublisher
	links       *ProfileLinks
	metrics     *metrics.Metrics
	parser      WebhookParser
	mode        string
}

func NewIntakeService(
	store RecordStore,
	provisioner FolderProvisioner,
	ledger ReconciliationLedger,
	locker RecordLocker,
	publisher EventPublisher,
	links *ProfileLinks,
	m *metrics.Metrics,
	opts IntakeOptions,
) *IntakeService {
	mode := opts.Mode
	if mode == "" {
		mode = IntakeModeInline
	}
	return &IntakeService{
		store:       store,
		provisioner: provisioner,
		ledger:      ledger,
		locker:      locker,
		publisher:   publisher,
		links:       links,
		metrics:     m,
		parser:      WebhookParser{TableID: opts.TableID, NameColumn: opts.NameColumn},
		mode:        mode,
	}
}

func (s *IntakeService) ParseWebhook(body []byte) (*ParsedWebhook, error) {
	return s.parser.Parse(body)
}

// Handle validates a raw delivery and either provisions inline or hands the
// events to the queue. The returned error carries the taxonomy used for the
// HTTP status.
func (s *IntakeService) Handle(ctx context.Context, body []byte) (*IntakeResult, error) {
	parsed, err := s.ParseWebhook(body)
	if err != nil {
		s.metrics.IntakeOutcome(string(StateRejected))
		logger.FromContext(ctx).WarnContext(ctx, "webhook rejected", logger.Err(err))
		return nil, err
	}
	if parsed.Ignored != "" {
		s.metrics.IntakeOutcome("IGNORED")
		logger.FromContext(ctx).InfoContext(ctx, "webhook ignored",
			"reason", parsed.Ignored,
			"event_type", parsed.EventType,
			"table_id", parsed.TableID,
		)
		return &IntakeResult{Status: "ignored", Reason: parsed.Ignored}, nil
	}

	if s.mode == IntakeModeQueue {
		return s.enqueue(ctx, parsed.Events)
	}

	result := &IntakeResult{Status: "processed"}
	var firstErr, transientErr error
	for _, ev := range parsed.Events {
		outcome, err := s.Process(ctx, ev)
		if err != nil {
			outcome.Error = err.Error()
			if firstErr == nil {
				firstErr = err
			}
			if transientErr == nil && errors.Is(err, apperr.ErrTransient) {
				transientErr = err
			}
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	// A transient failure wins so that the sender redelivers; the events that
	// already succeeded are skipped on redelivery.
	if transientErr != nil {
		return result, transientErr
	}
	return result, firstErr
}

func (s *IntakeService) enqueue(ctx context.Context, events []model.WebhookEvent) (*IntakeResult, error) {
	if s.publisher == nil {
		return nil, fmt.Errorf("%w: intake queue is not configured", apperr.ErrTransient)
	}
	result := &IntakeResult{Status: "accepted"}
	for _, ev := range events {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			return result, fmt.Errorf("%w: enqueue record %s: %w", apperr.ErrTransient, ev.RecordID, err)
		}
		result.Outcomes = append(result.Outcomes, &IntakeOutcome{RecordID: ev.RecordID, State: StateValidated})
	}
	return result, nil
}

// Process runs one event through the provisioning state machine. It is safe
// to call any number of times for the same record: a record that already
// carries a folder reference is acknowledged without side effects.
func (s *IntakeService) Process(ctx context.Context, ev model.WebhookEvent) (*IntakeOutcome, error) {
	ctx = logger.WithRecordID(ctx, ev.RecordID)
	log := logger.FromContext(ctx)
	outcome := &IntakeOutcome{RecordID: ev.RecordID, State: StateReceived}

	if ev.RecordID == "" {
		return s.reject(outcome, apperr.Validation("record id is empty"))
	}

	unlock, err := s.lock(ctx, ev.RecordID)
	if err != nil {
		return s.reject(outcome, err)
	}
	defer unlock()

	rec, err := s.store.Get(ctx, ev.RecordID)
	if err != nil {
		return s.reject(outcome, fmt.Errorf("fetch record %s: %w", ev.RecordID, err))
	}
	outcome.State = StateValidated

	if rec.Folder.Exists() {
		log.InfoContext(ctx, "record already has a folder, skipping", "folder_link", rec.Folder.ShareableLink)
		s.resolveLedger(ctx, ev.RecordID)
		outcome.State = StateAcked
		outcome.Skipped = true
		outcome.Folder = rec.Folder
		s.metrics.IntakeOutcome("SKIPPED")
		return outcome, nil
	}

	name := rec.DisplayName
	if name == "" {
		name = ev.DisplayName
	}
	if name == "" {
		return s.reject(outcome, fmt.Errorf("%w: record %s has no display name", apperr.ErrIncompleteData, ev.RecordID))
	}

	folder, err := s.provisioner.EnsureFolder(ctx, storage.FolderName(ev.RecordID, name))
	if err != nil {
		s.metrics.FolderResolved("error")
		return s.reject(outcome, err)
	}
	s.metrics.FolderResolved("ok")
	outcome.State = StateFolderResolved
	outcome.Folder = &folder
	log.InfoContext(ctx, "folder resolved", "folder_id", folder.ProviderFolderID, "folder_link", folder.ShareableLink)

	patch := model.RecordPatch{FolderLink: folder.ShareableLink, FolderID: folder.ProviderFolderID}
	if link, err := s.links.For(ev.RecordID); err != nil {
		log.WarnContext(ctx, "build profile link failed", logger.Err(err))
	} else {
		patch.ProfileLink = link
		outcome.ProfileLink = link
	}

	if err := s.store.Patch(ctx, ev.RecordID, patch); err != nil {
		s.recordUnlinked(ctx, ev.RecordID, folder, err)
		s.metrics.IntakeOutcome(string(StateFolderResolved))
		return outcome, fmt.Errorf("patch record %s: %w", ev.RecordID, err)
	}
	outcome.State = StateRecordPatched

	s.resolveLedger(ctx, ev.RecordID)
	outcome.State = StateAcked
	s.metrics.IntakeOutcome(string(StateAcked))
	log.InfoContext(ctx, "record provisioned")
	return outcome, nil
}

// DeadLetter logs an event the queue worker gave up on so that an operator
// can retry it.
func (s *IntakeService) DeadLetter(ctx context.Context, ev model.WebhookEvent, cause error) {
	logger.FromContext(logger.WithRecordID(ctx, ev.RecordID)).ErrorContext(ctx, "intake event dead-lettered", logger.Err(cause))
	s.writeLedger(ctx, &model.Reconciliation{
		RecordID:  ev.RecordID,
		Reason:    ReasonDeadLetter,
		LastError: cause.Error(),
	})
}

func (s *IntakeService) reject(outcome *IntakeOutcome, err error) (*IntakeOutcome, error) {
	outcome.State = StateRejected
	s.metrics.IntakeOutcome(string(StateRejected))
	return outcome, err
}

func (s *IntakeService) lock(ctx context.Context, recordID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	token, ok, err := s.locker.TryLock(ctx, recordID)
	if err != nil {
		// Without the lock the re-read and find-by-name still hold; the
		// reconciliation ledger covers what is left.
		logger.FromContext(ctx).WarnContext(ctx, "record lock unavailable, continuing without it", logger.Err(err))
		return func() {}, nil
	}
	if !ok {
		return nil, ErrProvisioningInProgress
	}
	return func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), recordID, token); err != nil {
			logger.FromContext(ctx).WarnContext(ctx, "release record lock failed", logger.Err(err))
		}
	}, nil
}

func (s *IntakeService) recordUnlinked(ctx context.Context, recordID string, folder model.FolderReference, cause error) {
	reason := ReasonPatchFailed
	if errors.Is(cause, apperr.ErrConflict) {
		reason = ReasonConflict
	}
	logger.FromContext(ctx).ErrorContext(ctx, "folder provisioned but record patch failed",
		slog.String("provider_folder_id", folder.ProviderFolderID),
		slog.String("folder_link", folder.ShareableLink),
		slog.String("reason", reason),
		logger.Err(cause),
	)
	s.writeLedger(ctx, &model.Reconciliation{
		RecordID:   recordID,
		FolderID:   folder.ProviderFolderID,
		FolderLink: folder.ShareableLink,
		Reason:     reason,
		LastError:  cause.Error(),
	})
}

func (s *IntakeService) writeLedger(ctx context.Context, rec *model.Reconciliation) {
	s.metrics.Reconciliation(rec.Reason)
	if s.ledger == nil {
		return
	}
	if err := s.ledger.UpsertPending(context.WithoutCancel(ctx), rec); err != nil {
		logger.FromContext(ctx).ErrorContext(ctx, "write reconciliation entry failed",
			"reason", rec.Reason,
			"folder_link", rec.FolderLink,
			logger.Err(err),
		)
	}
}

func (s *IntakeService) resolveLedger(ctx context.Context, recordID string) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.MarkResolved(ctx, recordID); err != nil {
		logger.FromContext(ctx).WarnContext(ctx, "resolve reconciliation entry failed", logger.Err(err))
	}
}
