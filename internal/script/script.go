// Package script holds the server's last-known script document and the
// paragraph validation rules shared by the editor and the save path.
package script

import "time"

const (
	MaxParagraphLength = 500
	CharsPerSecond     = 4
	MaxUndoEntries     = 20
	DraftExpiry        = 24 * time.Hour

	// defaultEstimatedDuration is used for the length hint when a paragraph
	// carries no duration.
	defaultEstimatedDuration = 10
)

// Paragraph is one script segment tied to a video shot.
type Paragraph struct {
	ID                string `json:"id"`
	Section           string `json:"section"`
	ShotID            int    `json:"shotId"`
	Text              string `json:"text"`
	EstimatedDuration int    `json:"estimatedDuration"`
}

// ParagraphText is the {id, text} pair used by drafts and save requests.
type ParagraphText struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Document is a snapshot of the server's script. It is replaced wholesale
// on fetch, save and regenerate and never mutated in place.
type Document struct {
	ID                  int64       `json:"id"`
	TaskID              int64       `json:"taskId"`
	Paragraphs          []Paragraph `json:"paragraphs"`
	Version             int         `json:"version"`
	RegenerateRemaining int         `json:"regenerateRemaining"`
	CreatedAt           time.Time   `json:"createdAt"`
	UpdatedAt           time.Time   `json:"updatedAt"`
}

// Paragraph returns the paragraph with the given id.
func (d *Document) Paragraph(id string) (Paragraph, bool) {
	if d == nil {
		return Paragraph{}, false
	}
	for _, p := range d.Paragraphs {
		if p.ID == id {
			return p, true
		}
	}
	return Paragraph{}, false
}

// Texts returns the document's own {id, text} pairs in paragraph order.
func (d *Document) Texts() []ParagraphText {
	if d == nil {
		return nil
	}
	out := make([]ParagraphText, 0, len(d.Paragraphs))
	for _, p := range d.Paragraphs {
		out = append(out, ParagraphText{ID: p.ID, Text: p.Text})
	}
	return out
}

// WithRegenerateRemaining returns a copy of d with the quota replaced.
func (d *Document) WithRegenerateRemaining(remaining int) *Document {
	if d == nil {
		return nil
	}
	if remaining < 0 {
		remaining = 0
	}
	clone := *d
	clone.Paragraphs = append([]Paragraph(nil), d.Paragraphs...)
	clone.RegenerateRemaining = remaining
	return &clone
}

// TotalDuration sums the estimated durations of all paragraphs, in seconds.
func (d *Document) TotalDuration() int {
	if d == nil {
		return 0
	}
	total := 0
	for _, p := range d.Paragraphs {
		total += p.EstimatedDuration
	}
	return total
}
