package model

import "time"

// ProfileViewModel is the rendering-ready projection of a StudentRecord.
type ProfileViewModel struct {
	RecordID    string
	DisplayName string
	// Fields holds normalized values keyed by canonical field key
	// (see the Field* constants); missing values carry the placeholder.
	Fields      map[string]string
	Photo       PhotoAsset
	FolderLink  string
	GeneratedAt time.Time
}

// PhotoAsset is an image ready to embed. Placeholder is set when the record
// has no usable photo.
type PhotoAsset struct {
	Data        []byte
	ImageType   string // jpeg, png, gif
	Width       int
	Height      int
	Placeholder bool
}

// RenderedDocument is produced per request and never stored.
type RenderedDocument struct {
	// Filename is ASCII only. UnicodeFilename keeps the student's name as
	// written and may be empty.
	Filename        string
	UnicodeFilename string
	ContentType     string
	Body            []byte
}

const PlaceholderValue = "Not provided"

const (
	FieldDateOfBirth       = "date_of_birth"
	FieldGender            = "gender"
	FieldNationality       = "nationality"
	FieldAddress           = "address"
	FieldGuardianName      = "guardian_name"
	FieldGuardianPhone     = "guardian_phone"
	FieldMedicalConditions = "medical_conditions"
	FieldAllergies         = "allergies"
	FieldMedications       = "medications"
	FieldMedicalNotes      = "medical_notes"
	FieldSchool            = "school"
	FieldGradeLevel        = "grade_level"
	FieldGPA               = "gpa"
	FieldAcademicStanding  = "academic_standing"
	FieldAcademicNotes     = "academic_notes"
)
