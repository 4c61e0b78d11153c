package export

import (
	"context"
	"fmt"
	"log/slog"
)

// Service renders snapshots in the requested format.
type Service struct {
	logger *slog.Logger
	pdf    func(ctx context.Context, html, title string) (*Result, error)
	docx   func(ctx context.Context, html, title string) (*Result, error)
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a new export service
func NewService(opts ...Option) *Service {
	s := &Service{
		logger: slog.Default(),
		pdf:    exportPDF,
		docx:   exportDOCX,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, snap Snapshot, format Format) (*Result, error) {
	if len(snap.Paragraphs) == 0 {
		return nil, ErrEmptySnapshot
	}
	title := displayTitle(snap)

	var (
		result *Result
		err    error
	)
	switch format {
	case FormatMarkdown:
		result = &Result{
			Data:     []byte(RenderMarkdown(snap)),
			Filename: sanitizeFilename(title) + ".md",
			MimeType: "text/markdown; charset=utf-8",
		}
	case FormatHTML, FormatPDF, FormatDOCX:
		result, err = s.exportHTML(ctx, snap, format, title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("script exported",
		"task_id", snap.TaskID,
		"version", snap.Version,
		"format", string(format),
		"bytes", len(result.Data),
		"edited", snap.EditedCount(),
	)
	return result, nil
}

func (s *Service) exportHTML(ctx context.Context, snap Snapshot, format Format, title string) (*Result, error) {
	html, err := RenderDocumentHTML(templateData(snap))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	switch format {
	case FormatPDF:
		return s.pdf(ctx, html, title)
	case FormatDOCX:
		return s.docx(ctx, html, title)
	}
	return &Result{
		Data:     []byte(html),
		Filename: sanitizeFilename(title) + ".html",
		MimeType: "text/html; charset=utf-8",
	}, nil
}
