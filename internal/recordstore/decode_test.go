package recordstore

import (
	"encoding/json"
	"testing"
)

func TestStringify(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "  hello ", "hello"},
		{"number", json.Number("3.75"), "3.75"},
		{"float", 12.0, "12"},
		{"bool true", true, "Yes"},
		{"bool false", false, "No"},
		{"single select", map[string]any{"id": 1, "value": "Good standing"}, "Good standing"},
		{"link row", []any{map[string]any{"id": 2, "value": "Grade 5"}}, "Grade 5"},
		{"empty list", []any{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Stringify(tt.in); got != tt.want {
				t.Errorf("Stringify(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeRecordFolderReference(t *testing.T) {
	cols := testColumns()
	cols.FolderID = "Drive Folder ID"
	row := map[string]any{
		"id":                json.Number("12"),
		"Full Name":         "Amina B.",
		"Google Drive Link": "https://drive.example.org/f/abc",
		"Drive Folder ID":   "abc",
	}

	rec := DecodeRecord(row, cols)
	if !rec.Folder.Exists() {
		t.Fatal("expected folder reference")
	}
	if rec.Folder.ProviderFolderID != "abc" {
		t.Errorf("unexpected folder id %q", rec.Folder.ProviderFolderID)
	}
}

func TestDecodeRecordSkipsNonImageFiles(t *testing.T) {
	row := map[string]any{
		"id":        json.Number("1"),
		"Full Name": "A",
		"Photo": []any{
			map[string]any{"url": "https://f/report.pdf", "is_image": false},
			map[string]any{"url": "https://f/face.png", "name": "face.png", "is_image": true},
		},
	}
	rec := DecodeRecord(row, testColumns())
	if len(rec.Photos) != 1 {
		t.Fatalf("expected one photo, got %+v", rec.Photos)
	}
	if rec.Photos[0].Name != "face.png" {
		t.Errorf("expected name fallback, got %q", rec.Photos[0].Name)
	}
}
