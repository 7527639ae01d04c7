package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"scholarbridge/internal/apperr"
	"scholarbridge/internal/model"
	"scholarbridge/internal/pkg/imageutil"
	"scholarbridge/internal/pkg/logger"
)

// Photo box in pixels; about 42x52mm at 150 dpi.
const (
	photoMaxWidthPx  = 250
	photoMaxHeightPx = 310
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006/01/02",
	"2006-01-02 15:04:05",
}

type ProfileService struct {
	store  RecordStore
	photos PhotoFetcher
	now    func() time.Time
}

func NewProfileService(store RecordStore, photos PhotoFetcher) *ProfileService {
	return &ProfileService{store: store, photos: photos, now: time.Now}
}

// Assemble fetches the record and projects it into a render-ready view model.
// Optional fields degrade to placeholders; only a missing id or name is an
// error.
func (s *ProfileService) Assemble(ctx context.Context, recordID string) (*model.ProfileViewModel, error) {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return nil, apperr.Validation("record id is empty")
	}
	rec, err := s.store.Get(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("fetch record %s: %w", recordID, err)
	}
	if rec.ID == "" || strings.TrimSpace(rec.DisplayName) == "" {
		return nil, fmt.Errorf("%w: record %s has no id or display name", apperr.ErrIncompleteData, recordID)
	}

	vm := &model.ProfileViewModel{
		RecordID:    rec.ID,
		DisplayName: rec.DisplayName,
		Fields:      profileFields(rec),
		Photo:       s.resolvePhoto(ctx, rec),
		GeneratedAt: s.now().UTC().Truncate(time.Second),
	}
	if rec.Folder.Exists() {
		vm.FolderLink = rec.Folder.ShareableLink
	}
	return vm, nil
}

func profileFields(rec *model.StudentRecord) map[string]string {
	fields := map[string]string{
		model.FieldDateOfBirth:       formatDate(rec.Demographics.DateOfBirth),
		model.FieldGender:            rec.Demographics.Gender,
		model.FieldNationality:       rec.Demographics.Nationality,
		model.FieldAddress:           rec.Demographics.Address,
		model.FieldGuardianName:      rec.Demographics.GuardianName,
		model.FieldGuardianPhone:     rec.Demographics.GuardianPhone,
		model.FieldMedicalConditions: rec.Medical.Conditions,
		model.FieldAllergies:         rec.Medical.Allergies,
		model.FieldMedications:       rec.Medical.Medications,
		model.FieldMedicalNotes:      rec.Medical.Notes,
		model.FieldSchool:            rec.Academic.School,
		model.FieldGradeLevel:        rec.Academic.GradeLevel,
		model.FieldGPA:               rec.Academic.GPA,
		model.FieldAcademicStanding:  rec.Academic.Standing,
		model.FieldAcademicNotes:     rec.Academic.Notes,
	}
	for k, v := range fields {
		if v = strings.TrimSpace(v); v == "" {
			v = model.PlaceholderValue
		}
		fields[k] = v
	}
	return fields
}

// formatDate rewrites ISO dates as "02 Jan 2006" and keeps anything else
// verbatim.
func formatDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("02 Jan 2006")
		}
	}
	return raw
}

func (s *ProfileService) resolvePhoto(ctx context.Context, rec *model.StudentRecord) model.PhotoAsset {
	placeholder := model.PhotoAsset{Placeholder: true}
	if len(rec.Photos) == 0 || s.photos == nil {
		return placeholder
	}
	log := logger.FromContext(ctx)

	ref := rec.Photos[0]
	data, err := s.photos.Fetch(ctx, ref.URL)
	if err != nil {
		log.WarnContext(ctx, "photo unavailable, using placeholder", "photo", ref.Name, logger.Err(err))
		return placeholder
	}
	scaled, w, h, err := imageutil.FitJPEG(data, photoMaxWidthPx, photoMaxHeightPx)
	if err != nil {
		if !errors.Is(err, imageutil.ErrUnsupported) {
			log.ErrorContext(ctx, "photo processing failed", "photo", ref.Name, logger.Err(err))
		} else {
			log.WarnContext(ctx, "photo is not a supported image, using placeholder", "photo", ref.Name)
		}
		return placeholder
	}
	return model.PhotoAsset{Data: scaled, ImageType: "jpeg", Width: w, Height: h}
}
