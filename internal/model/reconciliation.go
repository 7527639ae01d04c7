package model

import "time"

const (
	ReconciliationPending  = "pending"
	ReconciliationResolved = "resolved"
)

// Reconciliation records a folder that exists in storage but could not be
// linked back onto its record.
type Reconciliation struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RecordID   string    `gorm:"size:64;not null;uniqueIndex" json:"record_id"`
	FolderID   string    `gorm:"size:256" json:"folder_id"`
	FolderLink string    `gorm:"size:1024" json:"folder_link"`
	Reason     string    `gorm:"size:32;not null" json:"reason"`
	Status     string    `gorm:"size:16;not null;index" json:"status"`
	Attempts   int       `gorm:"not null;default:0" json:"attempts"`
	LastError  string    `gorm:"type:text" json:"last_error"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
