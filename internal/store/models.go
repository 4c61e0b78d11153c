package store

import (
	"errors"
	"time"

	"github.com/zzdxppq/shop-video-scout/internal/script"
)

var (
	ErrNotFound        = errors.New("store: script not found")
	ErrVersionConflict = errors.New("store: version conflict")
	ErrExists          = errors.New("store: script already exists")
)

// Revision reasons.
const (
	ReasonCreate     = "create"
	ReasonSave       = "save"
	ReasonRegenerate = "regenerate"
)

// Script is the persisted row behind one task's script.
type Script struct {
	ID              int64
	TaskID          int64
	Paragraphs      []script.Paragraph
	Version         int
	RegenerateCount int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Document renders the row in wire form with the remaining regenerate
// quota computed against limit.
func (s Script) Document(limit int) *script.Document {
	remaining := limit - s.RegenerateCount
	if remaining < 0 {
		remaining = 0
	}
	return &script.Document{
		ID:                  s.ID,
		TaskID:              s.TaskID,
		Paragraphs:          append([]script.Paragraph(nil), s.Paragraphs...),
		Version:             s.Version,
		RegenerateRemaining: remaining,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
}

// Revision is one stored version of a script.
type Revision struct {
	Version    int
	Reason     string
	Paragraphs []script.Paragraph
	CreatedAt  time.Time
}

// Update describes a version-checked replacement of the paragraph set.
type Update struct {
	TaskID          int64
	ExpectedVersion int
	Paragraphs      []script.Paragraph
	Reason          string
}
