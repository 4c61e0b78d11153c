// Package export renders the merged view of a script, original text plus
// local edits, to Markdown, HTML, PDF or DOCX.
package export

import (
	"errors"
	"strings"
	"time"

	"github.com/zzdxppq/shop-video-scout/internal/script"
)

// Format represents the export output format
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
)

// ParseFormat accepts a format name or a common alias.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "md", "markdown", "":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	case "pdf":
		return FormatPDF, nil
	case "docx", "word":
		return FormatDOCX, nil
	}
	return "", ErrUnsupportedFormat
}

// Paragraph is one script segment as it currently reads.
type Paragraph struct {
	ID                string
	Section           string
	ShotID            int
	Text              string
	EstimatedDuration int
	Edited            bool
}

// Snapshot is the merged view handed to the renderers.
type Snapshot struct {
	TaskID     int64
	Title      string
	Version    int
	Paragraphs []Paragraph
	ExportedAt time.Time
}

// TextSource yields the text the user currently sees for a paragraph.
type TextSource interface {
	CurrentText(paragraphID string) string
}

// NewSnapshot merges doc with the texts from src. A nil src exports the
// server document as is.
func NewSnapshot(doc *script.Document, src TextSource, title string, now time.Time) Snapshot {
	snap := Snapshot{Title: title, ExportedAt: now}
	if doc == nil {
		return snap
	}
	snap.TaskID = doc.TaskID
	snap.Version = doc.Version
	for _, p := range doc.Paragraphs {
		text := p.Text
		if src != nil {
			text = src.CurrentText(p.ID)
		}
		snap.Paragraphs = append(snap.Paragraphs, Paragraph{
			ID:                p.ID,
			Section:           p.Section,
			ShotID:            p.ShotID,
			Text:              text,
			EstimatedDuration: p.EstimatedDuration,
			Edited:            text != p.Text,
		})
	}
	return snap
}

// EditedCount returns the number of paragraphs that differ from the server.
func (s Snapshot) EditedCount() int {
	n := 0
	for _, p := range s.Paragraphs {
		if p.Edited {
			n++
		}
	}
	return n
}

// TotalDuration sums the paragraph durations in seconds.
func (s Snapshot) TotalDuration() int {
	total := 0
	for _, p := range s.Paragraphs {
		total += p.EstimatedDuration
	}
	return total
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrUnsupportedFormat indicates an unknown output format.
	ErrUnsupportedFormat = errors.New("export format unsupported")
	// ErrEmptySnapshot indicates there is nothing to export.
	ErrEmptySnapshot = errors.New("export snapshot has no paragraphs")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
