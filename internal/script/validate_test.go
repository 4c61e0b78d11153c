package script

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{name: "plain text", text: "店铺开场介绍", wantErr: false},
		{name: "exactly at limit", text: strings.Repeat("a", MaxParagraphLength), wantErr: false},
		{name: "cjk at limit", text: strings.Repeat("文", MaxParagraphLength), wantErr: false},
		{name: "one over limit", text: strings.Repeat("a", MaxParagraphLength+1), wantErr: true},
		{name: "empty", text: "", wantErr: true},
		{name: "whitespace only", text: " \t\n ", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.text)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestValidateOverLimitNamesLimit(t *testing.T) {
	err := Validate(strings.Repeat("x", 501))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(MessageOf(err), "500") {
		t.Fatalf("message %q does not name the limit", MessageOf(err))
	}
}

func TestCharCount(t *testing.T) {
	p := Paragraph{ID: "para_1", EstimatedDuration: 8}
	info := CharCount(p, "你好世界")
	if info.Current != 4 {
		t.Fatalf("Current = %d, want 4", info.Current)
	}
	if info.Suggested != 32 {
		t.Fatalf("Suggested = %d, want 32", info.Suggested)
	}
	if info.IsOverLimit {
		t.Fatal("did not expect over limit")
	}

	if got := SuggestedLength(Paragraph{}); got != 40 {
		t.Fatalf("SuggestedLength() without duration = %d, want 40", got)
	}
}

type mapSource map[string]string

func (m mapSource) CurrentText(id string) string { return m[id] }

func TestValidateAllPrefixesSection(t *testing.T) {
	doc := &Document{Paragraphs: []Paragraph{
		{ID: "p1", Section: "开场", Text: "a"},
		{ID: "p2", Section: "环境展示", Text: "b"},
	}}
	ok, problems := ValidateAll(doc, mapSource{"p1": "fine", "p2": "  "})
	if ok {
		t.Fatal("expected ValidateAll to fail")
	}
	if len(problems) != 1 || !strings.HasPrefix(problems[0], "环境展示: ") {
		t.Fatalf("unexpected problems: %v", problems)
	}
}

func TestErrorHelpers(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(KindVersionConflict, "script changed", cause)
	if !IsConflict(err) {
		t.Fatal("expected conflict")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected Unwrap to expose cause")
	}
	if MessageOf(err) != "script changed" {
		t.Fatalf("MessageOf() = %q", MessageOf(err))
	}
	if KindOf(cause) != "" {
		t.Fatal("plain errors have no kind")
	}
}

func TestWithRegenerateRemainingCopies(t *testing.T) {
	doc := &Document{Version: 3, RegenerateRemaining: 2, Paragraphs: []Paragraph{{ID: "p1", Text: "a"}}}
	clamped := doc.WithRegenerateRemaining(0)
	if clamped == doc {
		t.Fatal("expected a new document")
	}
	if doc.RegenerateRemaining != 2 || clamped.RegenerateRemaining != 0 {
		t.Fatalf("unexpected quotas: original %d clamped %d", doc.RegenerateRemaining, clamped.RegenerateRemaining)
	}
	if clamped.Version != 3 {
		t.Fatalf("Version = %d, want 3", clamped.Version)
	}
}
