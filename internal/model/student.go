package model

// StudentRecord is the typed projection of a Baserow row. The store owns it;
// this service reads it and patches only the fields in RecordPatch.
type StudentRecord struct {
	ID           string
	DisplayName  string
	Demographics Demographics
	Medical      MedicalHistory
	Academic     AcademicStanding
	Photos       []PhotoRef
	Folder       *FolderReference
	ProfileLink  string
}

type Demographics struct {
	DateOfBirth   string
	Gender        string
	Nationality   string
	Address       string
	GuardianName  string
	GuardianPhone string
}

type MedicalHistory struct {
	Conditions  string
	Allergies   string
	Medications string
	Notes       string
}

type AcademicStanding struct {
	School     string
	GradeLevel string
	GPA        string
	Standing   string
	Notes      string
}

type PhotoRef struct {
	URL      string
	Name     string
	MimeType string
}

// FolderReference points at the storage container provisioned for a record.
type FolderReference struct {
	ProviderFolderID string `json:"provider_folder_id"`
	ShareableLink    string `json:"shareable_link"`
}

func (f *FolderReference) Exists() bool {
	return f != nil && f.ShareableLink != ""
}

// RecordPatch lists the only fields this service ever writes. Empty values
// are left out of the request body.
type RecordPatch struct {
	FolderLink  string
	FolderID    string
	ProfileLink string
}
