package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"scholarbridge/internal/apperr"
	"scholarbridge/internal/model"
)

func fixedNow() time.Time {
	return time.Date(2025, 3, 14, 9, 30, 15, 0, time.UTC)
}

func newTestProfiles(store RecordStore, photos PhotoFetcher) *ProfileService {
	s := NewProfileService(store, photos)
	s.now = fixedNow
	return s
}

func pngPhoto(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 600, 800))
	for x := 0; x < 600; x += 3 {
		for y := 0; y < 800; y += 3 {
			img.Set(x, y, color.RGBA{R: 10, G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestAssembleFillsPlaceholders(t *testing.T) {
	store := newFakeStore(student("S-100", "Amina B."))
	vm, err := newTestProfiles(store, &fakePhotos{}).Assemble(context.Background(), "S-100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vm.RecordID != "S-100" || vm.DisplayName != "Amina B." {
		t.Errorf("unexpected identity %q %q", vm.RecordID, vm.DisplayName)
	}
	if !vm.Photo.Placeholder {
		t.Error("expected placeholder photo")
	}
	for key, v := range vm.Fields {
		if v != model.PlaceholderValue {
			t.Errorf("field %s: expected placeholder, got %q", key, v)
		}
	}
	if !vm.GeneratedAt.Equal(fixedNow()) {
		t.Errorf("unexpected generated time %v", vm.GeneratedAt)
	}
}

func TestAssembleNormalizesFields(t *testing.T) {
	rec := student("S-100", "Amina B.")
	rec.Demographics.DateOfBirth = "2010-04-02"
	rec.Demographics.Gender = "Female"
	rec.Academic.GPA = " 3.7 "
	rec.Medical.Notes = "seen 12/2024"
	rec.Folder = &model.FolderReference{ShareableLink: "https://drive.example.org/f/1"}

	vm, err := newTestProfiles(newFakeStore(rec), nil).Assemble(context.Background(), "S-100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{
		model.FieldDateOfBirth:  "02 Apr 2010",
		model.FieldGender:       "Female",
		model.FieldGPA:          "3.7",
		model.FieldMedicalNotes: "seen 12/2024",
		model.FieldNationality:  model.PlaceholderValue,
	}
	for k, v := range want {
		if vm.Fields[k] != v {
			t.Errorf("field %s = %q, want %q", k, vm.Fields[k], v)
		}
	}
	if vm.FolderLink != "https://drive.example.org/f/1" {
		t.Errorf("unexpected folder link %q", vm.FolderLink)
	}
}

func TestFormatDateKeepsUnparsableInput(t *testing.T) {
	tests := map[string]string{
		"2010-04-02":           "02 Apr 2010",
		"2010-04-02T00:00:00Z": "02 Apr 2010",
		"2010/04/02":           "02 Apr 2010",
		"April 2010":           "April 2010",
		"":                     "",
	}
	for in, want := range tests {
		if got := formatDate(in); got != want {
			t.Errorf("formatDate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAssembleScalesPhoto(t *testing.T) {
	rec := student("S-100", "Amina B.")
	rec.Photos = []model.PhotoRef{{URL: "https://files.example.org/a.png", Name: "a.png"}}
	photos := &fakePhotos{data: map[string][]byte{"https://files.example.org/a.png": pngPhoto(t)}}

	vm, err := newTestProfiles(newFakeStore(rec), photos).Assemble(context.Background(), "S-100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vm.Photo.Placeholder || len(vm.Photo.Data) == 0 {
		t.Fatal("expected a real photo")
	}
	if vm.Photo.ImageType != "jpeg" {
		t.Errorf("expected jpeg, got %s", vm.Photo.ImageType)
	}
	if vm.Photo.Width > photoMaxWidthPx || vm.Photo.Height > photoMaxHeightPx {
		t.Errorf("photo not scaled: %dx%d", vm.Photo.Width, vm.Photo.Height)
	}
}

func TestAssemblePhotoFailuresDegrade(t *testing.T) {
	tests := []struct {
		name   string
		photos *fakePhotos
	}{
		{"fetch error", &fakePhotos{err: &apperr.UpstreamError{Op: "fetch photo", Status: 503}}},
		{"missing file", &fakePhotos{data: map[string][]byte{}}},
		{"not an image", &fakePhotos{data: map[string][]byte{"https://files.example.org/a.png": []byte("<html>")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := student("S-100", "Amina B.")
			rec.Photos = []model.PhotoRef{{URL: "https://files.example.org/a.png"}}
			vm, err := newTestProfiles(newFakeStore(rec), tt.photos).Assemble(context.Background(), "S-100")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !vm.Photo.Placeholder {
				t.Error("expected placeholder photo")
			}
		})
	}
}

func TestAssembleErrors(t *testing.T) {
	store := newFakeStore(student("S-1", ""))

	_, err := newTestProfiles(store, nil).Assemble(context.Background(), "nope")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	_, err = newTestProfiles(store, nil).Assemble(context.Background(), "S-1")
	if !errors.Is(err, apperr.ErrIncompleteData) {
		t.Errorf("expected incomplete data, got %v", err)
	}
	_, err = newTestProfiles(store, nil).Assemble(context.Background(), " ")
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
