package model

const EventRowsCreated = "rows.created"

// WebhookEvent is one created row extracted from a webhook delivery.
type WebhookEvent struct {
	EventID     string         `json:"event_id,omitempty"`
	EventType   string         `json:"event_type"`
	TableID     string         `json:"table_id,omitempty"`
	RecordID    string         `json:"record_id"`
	DisplayName string         `json:"display_name"`
	Snapshot    map[string]any `json:"snapshot,omitempty"`
}
