// Package storage provisions one folder per student record in a file-storage
// provider. Provisioners are find-or-create: asking twice for the same name
// yields the same folder.
package storage

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"scholarbridge/internal/apperr"
	"scholarbridge/internal/model"
)

type Provisioner interface {
	EnsureFolder(ctx context.Context, name string) (model.FolderReference, error)
}

// FolderName derives the deterministic folder name for a record, e.g.
// "S-100 - Amina B.".
func FolderName(recordID, displayName string) string {
	return sanitize(recordID) + " - " + sanitize(displayName)
}

func sanitize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r == '/', r == '\\':
			return '-'
		case unicode.IsControl(r):
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperr.Validation("folder name is empty")
	}
	return nil
}

// upstream wraps err into an UpstreamError unless it already carries a
// classification.
func upstream(op string, status int, body string, err error) error {
	var ue *apperr.UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &apperr.UpstreamError{Op: op, Err: err}
	}
	return &apperr.UpstreamError{Op: op, Status: status, Body: body, Err: err}
}
