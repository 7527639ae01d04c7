package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"scholarbridge/internal/apperr"
	"scholarbridge/internal/model"
	"scholarbridge/internal/recordstore"
)

// ParsedWebhook is a validated delivery. Ignored is non-empty when the
// delivery is well formed but carries nothing to provision.
type ParsedWebhook struct {
	EventID   string
	EventType string
	TableID   string
	Events    []model.WebhookEvent
	Ignored   string
}

// WebhookParser validates raw deliveries. It accepts the Baserow envelope
//
//	{"event_id": "...", "event_type": "rows.created", "table_id": 42, "items": [{"id": 7, "Full Name": "..."}]}
//
// and the flat form {"recordId": "7", "name": "...", "eventType": "rows.created"}.
type WebhookParser struct {
	TableID    string
	NameColumn string
}

func (p WebhookParser) Parse(body []byte) (*ParsedWebhook, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, apperr.Validation("empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, apperr.Validation("payload is not a json object")
	}

	if _, ok := raw["items"]; ok {
		return p.parseEnvelope(raw)
	}
	if _, ok := raw["event_type"]; ok {
		return p.parseEnvelope(raw)
	}
	return p.parseFlat(raw)
}

func (p WebhookParser) parseEnvelope(raw map[string]any) (*ParsedWebhook, error) {
	out := &ParsedWebhook{
		EventID:   recordstore.Stringify(raw["event_id"]),
		EventType: recordstore.Stringify(raw["event_type"]),
		TableID:   recordstore.Stringify(raw["table_id"]),
	}
	if out.EventType == "" {
		return nil, apperr.Validation("event_type is missing")
	}
	if out.EventType != model.EventRowsCreated {
		out.Ignored = fmt.Sprintf("event type %q is not handled", out.EventType)
		return out, nil
	}
	if p.TableID != "" && out.TableID != "" && out.TableID != p.TableID {
		out.Ignored = fmt.Sprintf("table %s is not the configured table", out.TableID)
		return out, nil
	}

	items, ok := raw["items"].([]any)
	if !ok || len(items) == 0 {
		return nil, apperr.Validation("items must be a non-empty array")
	}

	nameColumn := p.NameColumn
	if nameColumn == "" {
		nameColumn = "name"
	}
	for i, item := range items {
		row, ok := item.(map[string]any)
		if !ok {
			return nil, apperr.Validation(fmt.Sprintf("items[%d] is not an object", i))
		}
		id := recordstore.Stringify(row["id"])
		if id == "" {
			return nil, apperr.Validation(fmt.Sprintf("items[%d] has no id", i))
		}
		// Baserow sends row id 0 when the webhook is tested from its UI.
		if id == "0" {
			continue
		}
		name := recordstore.CollapseSpaces(recordstore.Stringify(row[nameColumn]))
		if name == "" {
			return nil, apperr.Validation(fmt.Sprintf("items[%d] has no %q", i, nameColumn))
		}
		out.Events = append(out.Events, model.WebhookEvent{
			EventID:     out.EventID,
			EventType:   out.EventType,
			TableID:     out.TableID,
			RecordID:    id,
			DisplayName: name,
			Snapshot:    row,
		})
	}
	if len(out.Events) == 0 {
		out.Ignored = "test delivery"
	}
	return out, nil
}

func (p WebhookParser) parseFlat(raw map[string]any) (*ParsedWebhook, error) {
	eventType := recordstore.Stringify(raw["eventType"])
	if eventType == "" {
		eventType = model.EventRowsCreated
	}
	out := &ParsedWebhook{EventType: eventType, TableID: p.TableID}
	if eventType != model.EventRowsCreated {
		out.Ignored = fmt.Sprintf("event type %q is not handled", eventType)
		return out, nil
	}

	id := strings.TrimSpace(recordstore.Stringify(raw["recordId"]))
	if id == "" {
		return nil, apperr.Validation("recordId is missing")
	}
	name := recordstore.CollapseSpaces(recordstore.Stringify(raw["name"]))
	if name == "" {
		return nil, apperr.Validation("name is missing")
	}
	snapshot, _ := raw["record"].(map[string]any)
	out.Events = []model.WebhookEvent{{
		EventType:   eventType,
		TableID:     p.TableID,
		RecordID:    id,
		DisplayName: name,
		Snapshot:    snapshot,
	}}
	return out, nil
}
