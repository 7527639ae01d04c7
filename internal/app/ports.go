package app

import (
	"context"

	"scholarbridge/internal/model"
)

type RecordStore interface {
	Get(ctx context.Context, recordID string) (*model.StudentRecord, error)
	Patch(ctx context.Context, recordID string, patch model.RecordPatch) error
}

type FolderProvisioner interface {
	EnsureFolder(ctx context.Context, name string) (model.FolderReference, error)
}

type RecordLocker interface {
	TryLock(ctx context.Context, recordID string) (token string, ok bool, err error)
	Unlock(ctx context.Context, recordID, token string) error
}

type ReconciliationLedger interface {
	UpsertPending(ctx context.Context, rec *model.Reconciliation) error
	MarkResolved(ctx context.Context, recordID string) error
	ListByStatus(ctx context.Context, status string, limit int) ([]model.Reconciliation, error)
	GetByRecordID(ctx context.Context, recordID string) (*model.Reconciliation, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event model.WebhookEvent) error
}

type PhotoFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type PhotoCache interface {
	Get(ctx context.Context, url string) ([]byte, bool, error)
	Set(ctx context.Context, url string, data []byte) error
}

type Renderer interface {
	Render(vm *model.ProfileViewModel, templateID string) ([]byte, error)
}
