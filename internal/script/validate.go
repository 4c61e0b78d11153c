package script

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// CharCountInfo describes a paragraph's length against its limits.
type CharCountInfo struct {
	Current     int
	Suggested   int
	IsOverLimit bool
}

// Length counts characters the way the editor displays them.
func Length(text string) int {
	return utf8.RuneCountInString(text)
}

// Validate reports whether text is acceptable as paragraph content. The
// returned error is a *Error of KindValidation.
func Validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return NewValidationError("paragraph text must not be empty")
	}
	if Length(text) > MaxParagraphLength {
		return NewValidationError(fmt.Sprintf("paragraph text must not exceed %d characters", MaxParagraphLength))
	}
	return nil
}

// SuggestedLength is the informational length hint for a paragraph.
func SuggestedLength(p Paragraph) int {
	duration := p.EstimatedDuration
	if duration <= 0 {
		duration = defaultEstimatedDuration
	}
	return duration * CharsPerSecond
}

// CharCount reports the length of text measured against paragraph p.
func CharCount(p Paragraph, text string) CharCountInfo {
	n := Length(text)
	return CharCountInfo{
		Current:     n,
		Suggested:   SuggestedLength(p),
		IsOverLimit: n > MaxParagraphLength,
	}
}

// TextSource resolves the text currently shown for a paragraph.
type TextSource interface {
	CurrentText(paragraphID string) string
}

// ValidateAll validates every paragraph of doc using the text from src.
// Messages are prefixed with the paragraph's section label.
func ValidateAll(doc *Document, src TextSource) (bool, []string) {
	if doc == nil {
		return true, nil
	}
	var problems []string
	for _, p := range doc.Paragraphs {
		if err := Validate(src.CurrentText(p.ID)); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %s", p.Section, MessageOf(err)))
		}
	}
	return len(problems) == 0, problems
}
