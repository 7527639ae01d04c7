package recordstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"scholarbridge/internal/config"
	"scholarbridge/internal/model"
)

// DecodeRecord maps a Baserow row (user field names) onto a StudentRecord.
func DecodeRecord(row map[string]any, cols config.RecordColumns) *model.StudentRecord {
	get := func(column string) string {
		if column == "" {
			return ""
		}
		return Stringify(row[column])
	}

	rec := &model.StudentRecord{
		ID:          Stringify(row["id"]),
		DisplayName: CollapseSpaces(get(cols.Name)),
		Demographics: model.Demographics{
			DateOfBirth:   get(cols.DateOfBirth),
			Gender:        get(cols.Gender),
			Nationality:   get(cols.Nationality),
			Address:       get(cols.Address),
			GuardianName:  get(cols.GuardianName),
			GuardianPhone: get(cols.GuardianPhone),
		},
		Medical: model.MedicalHistory{
			Conditions:  get(cols.MedicalConditions),
			Allergies:   get(cols.Allergies),
			Medications: get(cols.Medications),
			Notes:       get(cols.MedicalNotes),
		},
		Academic: model.AcademicStanding{
			School:     get(cols.School),
			GradeLevel: get(cols.GradeLevel),
			GPA:        get(cols.GPA),
			Standing:   get(cols.AcademicStanding),
			Notes:      get(cols.AcademicNotes),
		},
		ProfileLink: get(cols.ProfileLink),
	}
	if cols.Photos != "" {
		rec.Photos = decodePhotos(row[cols.Photos])
	}
	if link := get(cols.FolderLink); link != "" {
		rec.Folder = &model.FolderReference{
			ProviderFolderID: get(cols.FolderID),
			ShareableLink:    link,
		}
	}
	return rec
}

// decodePhotos reads a Baserow file field. A plain URL string is accepted too.
func decodePhotos(v any) []model.PhotoRef {
	var photos []model.PhotoRef
	switch val := v.(type) {
	case string:
		if s := strings.TrimSpace(val); s != "" {
			photos = append(photos, model.PhotoRef{URL: s})
		}
	case []any:
		for _, item := range val {
			file, ok := item.(map[string]any)
			if !ok {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					photos = append(photos, model.PhotoRef{URL: strings.TrimSpace(s)})
				}
				continue
			}
			ref := model.PhotoRef{
				URL:      Stringify(file["url"]),
				Name:     Stringify(file["visible_name"]),
				MimeType: Stringify(file["mime_type"]),
			}
			if ref.Name == "" {
				ref.Name = Stringify(file["name"])
			}
			if ref.URL == "" {
				continue
			}
			if isImage, ok := file["is_image"].(bool); ok && !isImage {
				continue
			}
			photos = append(photos, ref)
		}
	}
	return photos
}

// Stringify flattens the value shapes Baserow returns for a cell.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case map[string]any:
		for _, key := range []string{"value", "name", "url"} {
			if inner, ok := val[key]; ok {
				return Stringify(inner)
			}
		}
		return ""
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := Stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
