package store

import (
	"context"
	"sync"
	"time"

	"github.com/zzdxppq/shop-video-scout/internal/script"
)

// MemoryStore keeps scripts in process. It backs the reference server when
// no database is configured, and the handler tests.
type MemoryStore struct {
	mu        sync.Mutex
	nextID    int64
	scripts   map[int64]Script
	revisions map[int64][]Revision
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scripts:   make(map[int64]Script),
		revisions: make(map[int64][]Revision),
		now:       time.Now,
	}
}

// SetClock replaces the time source used for timestamps.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) GetScript(_ context.Context, taskID int64) (Script, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.scripts[taskID]
	if !ok {
		return Script{}, ErrNotFound
	}
	return cloneScript(row), nil
}

func (m *MemoryStore) CreateScript(_ context.Context, taskID int64, paragraphs []script.Paragraph) (Script, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scripts[taskID]; ok {
		return Script{}, ErrExists
	}
	m.nextID++
	now := m.now().UTC()
	row := Script{
		ID:         m.nextID,
		TaskID:     taskID,
		Paragraphs: cloneParagraphs(paragraphs),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.scripts[taskID] = row
	m.appendRevisionLocked(row, ReasonCreate)
	return cloneScript(row), nil
}

func (m *MemoryStore) UpdateScript(_ context.Context, update Update) (Script, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.scripts[update.TaskID]
	if !ok {
		return Script{}, ErrNotFound
	}
	if row.Version != update.ExpectedVersion {
		return Script{}, ErrVersionConflict
	}
	row.Paragraphs = cloneParagraphs(update.Paragraphs)
	row.Version++
	if update.Reason == ReasonRegenerate {
		row.RegenerateCount++
	}
	row.UpdatedAt = m.now().UTC()
	m.scripts[update.TaskID] = row
	m.appendRevisionLocked(row, update.Reason)
	return cloneScript(row), nil
}

func (m *MemoryStore) ListRevisions(_ context.Context, taskID int64) ([]Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scripts[taskID]; !ok {
		return nil, ErrNotFound
	}
	revisions := m.revisions[taskID]
	out := make([]Revision, 0, len(revisions))
	for i := len(revisions) - 1; i >= 0; i-- {
		out = append(out, revisions[i])
	}
	return out, nil
}

func (m *MemoryStore) appendRevisionLocked(row Script, reason string) {
	m.revisions[row.TaskID] = append(m.revisions[row.TaskID], Revision{
		Version:    row.Version,
		Reason:     reason,
		Paragraphs: cloneParagraphs(row.Paragraphs),
		CreatedAt:  row.UpdatedAt,
	})
}

func cloneScript(row Script) Script {
	row.Paragraphs = cloneParagraphs(row.Paragraphs)
	return row
}

func cloneParagraphs(paragraphs []script.Paragraph) []script.Paragraph {
	return append([]script.Paragraph(nil), paragraphs...)
}
