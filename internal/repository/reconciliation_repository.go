package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"scholarbridge/internal/model"
)

type ReconciliationRepository struct {
	db *gorm.DB
}

func NewReconciliationRepository(db *gorm.DB) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

func (r *ReconciliationRepository) AutoMigrate() error {
	if err := r.db.AutoMigrate(&model.Reconciliation{}); err != nil {
		return fmt.Errorf("migrate reconciliations failed: %w", err)
	}
	return nil
}

// UpsertPending records (or refreshes) an unlinked folder for rec.RecordID
// and bumps its attempt counter.
func (r *ReconciliationRepository) UpsertPending(ctx context.Context, rec *model.Reconciliation) error {
	rec.Status = model.ReconciliationPending
	if rec.Attempts == 0 {
		rec.Attempts = 1
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "record_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"folder_id":   rec.FolderID,
			"folder_link": rec.FolderLink,
			"reason":      rec.Reason,
			"status":      model.ReconciliationPending,
			"last_error":  rec.LastError,
			"attempts":    gorm.Expr("attempts + 1"),
			"updated_at":  time.Now(),
		}),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("upsert reconciliation failed: %w", err)
	}
	return nil
}

// MarkResolved closes the pending entry for recordID, if any.
func (r *ReconciliationRepository) MarkResolved(ctx context.Context, recordID string) error {
	err := r.db.WithContext(ctx).
		Model(&model.Reconciliation{}).
		Where("record_id = ? AND status = ?", recordID, model.ReconciliationPending).
		Updates(map[string]interface{}{
			"status":     model.ReconciliationResolved,
			"last_error": "",
		}).Error
	if err != nil {
		return fmt.Errorf("resolve reconciliation failed: %w", err)
	}
	return nil
}

func (r *ReconciliationRepository) ListByStatus(ctx context.Context, status string, limit int) ([]model.Reconciliation, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var items []model.Reconciliation
	q := r.db.WithContext(ctx)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("updated_at DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list reconciliations failed: %w", err)
	}
	return items, nil
}

func (r *ReconciliationRepository) GetByRecordID(ctx context.Context, recordID string) (*model.Reconciliation, error) {
	var item model.Reconciliation
	if err := r.db.WithContext(ctx).Where("record_id = ?", recordID).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get reconciliation failed: %w", err)
	}
	return &item, nil
}
