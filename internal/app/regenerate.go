package app

import (
	"context"
	"fmt"
	"regexp"

	"github.com/zzdxppq/shop-video-scout/internal/script"
	"github.com/zzdxppq/shop-video-scout/internal/store"
	"github.com/zzdxppq/shop-video-scout/internal/util"
)

var takePrefix = regexp.MustCompile(`^\[take \d+\] `)

// TakeRegenerator is the built-in Regenerator used when no model backend
// is wired. It keeps sections, shots and durations, labels each text with
// the take number, and assigns new paragraph ids.
type TakeRegenerator struct{}

func (TakeRegenerator) Regenerate(_ context.Context, current store.Script) ([]script.Paragraph, error) {
	take := current.RegenerateCount + 2
	out := make([]script.Paragraph, 0, len(current.Paragraphs))
	for _, p := range current.Paragraphs {
		text := fmt.Sprintf("[take %d] %s", take, takePrefix.ReplaceAllString(p.Text, ""))
		out = append(out, script.Paragraph{
			ID:                util.NewID("para"),
			Section:           p.Section,
			ShotID:            p.ShotID,
			Text:              truncateRunes(text, script.MaxParagraphLength),
			EstimatedDuration: p.EstimatedDuration,
		})
	}
	return out, nil
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
