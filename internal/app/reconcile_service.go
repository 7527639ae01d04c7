package app

import (
	"context"
	"fmt"

	"scholarbridge/internal/apperr"
	"scholarbridge/internal/model"
	"scholarbridge/internal/pkg/logger"
)

// ReconcileService lets operators inspect and retry records whose folder
// could not be linked back.
type ReconcileService struct {
	ledger ReconciliationLedger
	store  RecordStore
	intake *IntakeService
}

func NewReconcileService(ledger ReconciliationLedger, store RecordStore, intake *IntakeService) *ReconcileService {
	return &ReconcileService{ledger: ledger, store: store, intake: intake}
}

func (s *ReconcileService) List(ctx context.Context, status string, limit int) ([]model.Reconciliation, error) {
	return s.ledger.ListByStatus(ctx, status, limit)
}

// Retry re-runs provisioning for one ledger entry. When the entry already
// knows its folder, only the patch is repeated.
func (s *ReconcileService) Retry(ctx context.Context, recordID string) (*IntakeOutcome, error) {
	entry, err := s.ledger.GetByRecordID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: no reconciliation entry for record %s", apperr.ErrNotFound, recordID)
	}
	if entry.Status == model.ReconciliationResolved {
		return &IntakeOutcome{RecordID: recordID, State: StateAcked, Skipped: true}, nil
	}

	if entry.FolderLink == "" {
		return s.intake.Process(ctx, model.WebhookEvent{EventType: model.EventRowsCreated, RecordID: recordID})
	}
	return s.relink(ctx, entry)
}

func (s *ReconcileService) relink(ctx context.Context, entry *model.Reconciliation) (*IntakeOutcome, error) {
	ctx = logger.WithRecordID(ctx, entry.RecordID)
	outcome := &IntakeOutcome{RecordID: entry.RecordID, State: StateReceived}

	unlock, err := s.intake.lock(ctx, entry.RecordID)
	if err != nil {
		return s.intake.reject(outcome, err)
	}
	defer unlock()

	rec, err := s.store.Get(ctx, entry.RecordID)
	if err != nil {
		return s.intake.reject(outcome, fmt.Errorf("fetch record %s: %w", entry.RecordID, err))
	}
	outcome.State = StateValidated
	if rec.Folder.Exists() {
		s.intake.resolveLedger(ctx, entry.RecordID)
		outcome.State = StateAcked
		outcome.Skipped = true
		outcome.Folder = rec.Folder
		return outcome, nil
	}

	folder := model.FolderReference{ProviderFolderID: entry.FolderID, ShareableLink: entry.FolderLink}
	outcome.State = StateFolderResolved
	outcome.Folder = &folder

	patch := model.RecordPatch{FolderLink: folder.ShareableLink, FolderID: folder.ProviderFolderID}
	if link, err := s.intake.links.For(entry.RecordID); err == nil {
		patch.ProfileLink = link
		outcome.ProfileLink = link
	}
	if err := s.store.Patch(ctx, entry.RecordID, patch); err != nil {
		s.intake.recordUnlinked(ctx, entry.RecordID, folder, err)
		return outcome, fmt.Errorf("patch record %s: %w", entry.RecordID, err)
	}

	s.intake.resolveLedger(ctx, entry.RecordID)
	outcome.State = StateAcked
	logger.FromContext(ctx).InfoContext(ctx, "reconciliation resolved", "folder_link", folder.ShareableLink)
	return outcome, nil
}

type RetrySummary struct {
	Attempted int      `json:"attempted"`
	Resolved  int      `json:"resolved"`
	Failed    []string `json:"failed,omitempty"`
}

// RetryPending retries up to limit pending entries, one at a time.
func (s *ReconcileService) RetryPending(ctx context.Context, limit int) (*RetrySummary, error) {
	pending, err := s.ledger.ListByStatus(ctx, model.ReconciliationPending, limit)
	if err != nil {
		return nil, err
	}
	summary := &RetrySummary{}
	for _, entry := range pending {
		if ctx.Err() != nil {
			break
		}
		summary.Attempted++
		if _, err := s.Retry(ctx, entry.RecordID); err != nil {
			logger.FromContext(ctx).WarnContext(ctx, "reconciliation retry failed", "record_id", entry.RecordID, logger.Err(err))
			summary.Failed = append(summary.Failed, entry.RecordID)
			continue
		}
		summary.Resolved++
	}
	return summary, nil
}
