package app

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"scholarbridge/internal/apperr"
	"scholarbridge/internal/metrics"
	"scholarbridge/internal/model"
	"scholarbridge/internal/pkg/logger"
)

const pdfContentType = "application/pdf"

var ErrRenderBusy = fmt.Errorf("%w: no render slot available", apperr.ErrTransient)

type DocumentService struct {
	profiles *ProfileService
	renderer Renderer
	slots    *semaphore.Weighted
	timeout  time.Duration
	metrics  *metrics.Metrics
}

func NewDocumentService(profiles *ProfileService, renderer Renderer, maxConcurrent int, timeout time.Duration, m *metrics.Metrics) *DocumentService {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DocumentService{
		profiles: profiles,
		renderer: renderer,
		slots:    semaphore.NewWeighted(int64(maxConcurrent)),
		timeout:  timeout,
		metrics:  m,
	}
}

// Generate assembles and renders the profile document for recordID entirely
// in memory. Nothing is returned unless rendering succeeded.
func (s *DocumentService) Generate(ctx context.Context, recordID, templateID string) (*model.RenderedDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = logger.WithRecordID(ctx, recordID)

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, ErrRenderBusy
	}
	defer s.slots.Release(1)

	started := time.Now()
	s.metrics.RenderStarted()
	doc, err := s.generate(ctx, recordID, templateID)
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.RenderFinished(result, time.Since(started))
	return doc, err
}

func (s *DocumentService) generate(ctx context.Context, recordID, templateID string) (*model.RenderedDocument, error) {
	vm, err := s.profiles.Assemble(ctx, recordID)
	if err != nil {
		return nil, err
	}
	body, err := s.renderer.Render(vm, templateID)
	if err != nil {
		return nil, fmt.Errorf("render record %s: %w", recordID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: render record %s: %w", apperr.ErrTransient, recordID, err)
	}
	logger.FromContext(ctx).InfoContext(ctx, "profile document rendered", "bytes", len(body), "template", templateID)
	return &model.RenderedDocument{
		Filename:        DocumentFilename(vm.DisplayName, vm.RecordID),
		UnicodeFilename: UnicodeDocumentFilename(vm.DisplayName, vm.RecordID),
		ContentType:     pdfContentType,
		Body:            body,
	}, nil
}

// DocumentFilename returns "<name>_<id>.pdf" with characters that are unsafe
// in a Content-Disposition header replaced by underscores.
func DocumentFilename(displayName, recordID string) string {
	return documentFilename(displayName, recordID, false)
}

// UnicodeDocumentFilename is DocumentFilename with non-ASCII letters kept,
// for the filename* parameter.
func UnicodeDocumentFilename(displayName, recordID string) string {
	return documentFilename(displayName, recordID, true)
}

func documentFilename(displayName, recordID string, keepUnicode bool) string {
	clean := func(s string) string {
		s = strings.Map(func(r rune) rune {
			switch {
			case r == '"', r == '\\', r == '/', r == ';', r == ':':
				return '_'
			case unicode.IsControl(r), r == utf8.RuneError:
				return '_'
			case r > unicode.MaxASCII && (!keepUnicode || !unicode.IsPrint(r)):
				return '_'
			}
			return r
		}, strings.TrimSpace(s))
		return strings.Join(strings.Fields(s), "_")
	}
	name := clean(displayName)
	if name == "" {
		name = "student"
	}
	return name + "_" + clean(recordID) + ".pdf"
}
