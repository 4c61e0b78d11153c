// Package editsession tracks what the user currently sees for a script:
// the paragraphs that differ from the server document and a bounded undo
// log of text changes.
package editsession

import (
	"sync"
	"time"

	"github.com/zzdxppq/shop-video-scout/internal/script"
)

// UndoEntry records the text a paragraph had before a change.
type UndoEntry struct {
	ParagraphID  string
	PreviousText string
	Timestamp    time.Time
}

// Session is safe for concurrent use. The change hook runs after the
// session lock is released.
type Session struct {
	mu       sync.Mutex
	doc      *script.Document
	edits    map[string]string
	undo     []UndoEntry
	undoCap  int
	now      func() time.Time
	onChange func()
}

type Option func(*Session)

// WithClock overrides the clock used to timestamp undo entries.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithChangeHook registers fn to run after every user-visible mutation.
func WithChangeHook(fn func()) Option {
	return func(s *Session) {
		s.onChange = fn
	}
}

// WithUndoLimit overrides the undo log capacity.
func WithUndoLimit(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.undoCap = n
		}
	}
}

// New creates a session diffing against doc, which may be nil until the
// first fetch completes.
func New(doc *script.Document, opts ...Option) *Session {
	s := &Session{
		doc:     doc,
		edits:   make(map[string]string),
		undoCap: script.MaxUndoEntries,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetChangeHook replaces the change hook.
func (s *Session) SetChangeHook(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Baseline returns the document the session diffs against.
func (s *Session) Baseline() *script.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// CurrentText returns the edited text if present, else the original text,
// else "" for unknown ids.
func (s *Session) CurrentText(paragraphID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTextLocked(paragraphID)
}

func (s *Session) currentTextLocked(paragraphID string) string {
	if text, ok := s.edits[paragraphID]; ok {
		return text
	}
	if p, ok := s.doc.Paragraph(paragraphID); ok {
		return p.Text
	}
	return ""
}

func (s *Session) IsEdited(paragraphID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.edits[paragraphID]
	return ok
}

func (s *Session) HasChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.edits) > 0
}

// Edits returns a copy of the edit set.
func (s *Session) Edits() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.edits))
	for id, text := range s.edits {
		out[id] = text
	}
	return out
}

// UndoEntries returns a copy of the undo log, oldest first.
func (s *Session) UndoEntries() []UndoEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UndoEntry(nil), s.undo...)
}

func (s *Session) UndoDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undo)
}

// Update sets the text of a paragraph. An undo entry is pushed only when
// the effective text changes. Unknown ids are ignored.
func (s *Session) Update(paragraphID, text string) {
	s.mu.Lock()
	original, ok := s.doc.Paragraph(paragraphID)
	if !ok {
		s.mu.Unlock()
		return
	}
	previous := s.currentTextLocked(paragraphID)
	if previous != text {
		s.pushUndoLocked(paragraphID, previous)
	}
	s.applyLocked(original, text)
	hook := s.onChange
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// Cancel restores the original text of a paragraph. Cancel is a discrete
// user action, so it always records an undo entry.
func (s *Session) Cancel(paragraphID string) {
	s.mu.Lock()
	original, ok := s.doc.Paragraph(paragraphID)
	if !ok {
		s.mu.Unlock()
		return
	}
	s.pushUndoLocked(paragraphID, s.currentTextLocked(paragraphID))
	s.applyLocked(original, original.Text)
	hook := s.onChange
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// Undo pops the most recent entry and restores its text. Undo is not
// itself undoable. It reports false when the log is empty.
func (s *Session) Undo() (UndoEntry, bool) {
	s.mu.Lock()
	if len(s.undo) == 0 {
		s.mu.Unlock()
		return UndoEntry{}, false
	}
	entry := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	if original, ok := s.doc.Paragraph(entry.ParagraphID); ok {
		s.applyLocked(original, entry.PreviousText)
	}
	hook := s.onChange
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return entry, true
}

// Merged returns every paragraph paired with its current text, in
// document order.
func (s *Session) Merged() []script.ParagraphText {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil
	}
	out := make([]script.ParagraphText, 0, len(s.doc.Paragraphs))
	for _, p := range s.doc.Paragraphs {
		out = append(out, script.ParagraphText{ID: p.ID, Text: s.currentTextLocked(p.ID)})
	}
	return out
}

// Restore replays texts recovered from a draft into the edit set without
// touching the undo log or firing the change hook. It returns the number
// of paragraphs that differ from the baseline.
func (s *Session) Restore(texts []script.ParagraphText) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	restored := 0
	for _, item := range texts {
		original, ok := s.doc.Paragraph(item.ID)
		if !ok || original.Text == item.Text {
			continue
		}
		s.edits[item.ID] = item.Text
		restored++
	}
	return restored
}

// Rebase installs a new baseline document and drops all edits and undo
// history.
func (s *Session) Rebase(doc *script.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	s.edits = make(map[string]string)
	s.undo = nil
}

// applyLocked keeps the invariant that an id is in the edit set iff its
// text differs from the baseline.
func (s *Session) applyLocked(original script.Paragraph, text string) {
	if text == original.Text {
		delete(s.edits, original.ID)
		return
	}
	s.edits[original.ID] = text
}

func (s *Session) pushUndoLocked(paragraphID, previous string) {
	s.undo = append(s.undo, UndoEntry{
		ParagraphID:  paragraphID,
		PreviousText: previous,
		Timestamp:    s.now(),
	})
	if overflow := len(s.undo) - s.undoCap; overflow > 0 {
		s.undo = append([]UndoEntry(nil), s.undo[overflow:]...)
	}
}
