package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zzdxppq/shop-video-scout/internal/script"
)

func seedParagraphs() []script.Paragraph {
	return []script.Paragraph{
		{ID: "p1", Section: "开场", Text: "原始文案", EstimatedDuration: 3},
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	fixed := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	if _, err := s.GetScript(ctx, 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	created, err := s.CreateScript(ctx, 7, seedParagraphs())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Version != 1 || created.ID == 0 || !created.CreatedAt.Equal(fixed) {
		t.Fatalf("unexpected created row %+v", created)
	}
	if _, err := s.CreateScript(ctx, 7, seedParagraphs()); !errors.Is(err, ErrExists) {
		t.Fatalf("expected exists, got %v", err)
	}

	edited := seedParagraphs()
	edited[0].Text = "新内容"
	saved, err := s.UpdateScript(ctx, Update{TaskID: 7, ExpectedVersion: 1, Paragraphs: edited, Reason: ReasonSave})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if saved.Version != 2 || saved.RegenerateCount != 0 || saved.Paragraphs[0].Text != "新内容" {
		t.Fatalf("unexpected saved row %+v", saved)
	}

	if _, err := s.UpdateScript(ctx, Update{TaskID: 7, ExpectedVersion: 1, Paragraphs: edited, Reason: ReasonSave}); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := s.UpdateScript(ctx, Update{TaskID: 8, ExpectedVersion: 1, Reason: ReasonSave}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	regenerated, err := s.UpdateScript(ctx, Update{TaskID: 7, ExpectedVersion: 2, Paragraphs: seedParagraphs(), Reason: ReasonRegenerate})
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if regenerated.Version != 3 || regenerated.RegenerateCount != 1 {
		t.Fatalf("unexpected regenerated row %+v", regenerated)
	}

	revisions, err := s.ListRevisions(ctx, 7)
	if err != nil {
		t.Fatalf("revisions: %v", err)
	}
	if len(revisions) != 3 || revisions[0].Version != 3 || revisions[0].Reason != ReasonRegenerate || revisions[2].Reason != ReasonCreate {
		t.Fatalf("unexpected revisions %+v", revisions)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	created, _ := s.CreateScript(ctx, 1, seedParagraphs())
	created.Paragraphs[0].Text = "mutated"

	stored, err := s.GetScript(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Paragraphs[0].Text != "原始文案" {
		t.Fatalf("store must not share paragraph slices")
	}
}

func TestScriptDocumentQuota(t *testing.T) {
	row := Script{ID: 1, TaskID: 2, Version: 4, RegenerateCount: 3, Paragraphs: seedParagraphs()}
	if got := row.Document(5).RegenerateRemaining; got != 2 {
		t.Fatalf("expected 2 remaining, got %d", got)
	}
	row.RegenerateCount = 9
	if got := row.Document(5).RegenerateRemaining; got != 0 {
		t.Fatalf("remaining must not go negative, got %d", got)
	}
}
