// Package draft persists the in-progress edit state of a script so it
// survives reloads. Persistence is best effort: write and delete failures
// are logged and swallowed.
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zzdxppq/shop-video-scout/internal/script"
)

// KeyPrefix namespaces draft slots in the backing key-value store.
const KeyPrefix = "script_draft_"

// ErrNotFound is returned by KV implementations for absent keys.
var ErrNotFound = errors.New("draft: key not found")

// KV is the storage port a Store writes through.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Draft is the full merged view of a script at a given server version.
type Draft struct {
	TaskID     int64                  `json:"taskId"`
	Paragraphs []script.ParagraphText `json:"paragraphs"`
	SavedAt    int64                  `json:"savedAt"`
	Version    int                    `json:"version"`
}

// SavedTime converts SavedAt (epoch milliseconds) to a time.Time.
func (d Draft) SavedTime() time.Time {
	return time.UnixMilli(d.SavedAt)
}

type Store struct {
	kv     KV
	expiry time.Duration
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithExpiry(expiry time.Duration) Option {
	return func(s *Store) {
		if expiry > 0 {
			s.expiry = expiry
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewStore(kv KV, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		expiry: script.DraftExpiry,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the slot key for a task.
func Key(taskID int64) string {
	return fmt.Sprintf("%s%d", KeyPrefix, taskID)
}

// Save overwrites the task's draft slot.
func (s *Store) Save(ctx context.Context, taskID int64, paragraphs []script.ParagraphText, version int) {
	record := Draft{
		TaskID:     taskID,
		Paragraphs: paragraphs,
		SavedAt:    s.now().UnixMilli(),
		Version:    version,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		s.logger.Debug("draft encode failed", "task_id", taskID, "error", err)
		return
	}
	if err := s.kv.Set(ctx, Key(taskID), payload); err != nil {
		s.logger.Debug("draft write failed", "task_id", taskID, "error", err)
	}
}

// Load returns the task's draft, or nil when it is absent, unreadable or
// older than the expiry window. Expired drafts are deleted.
func (s *Store) Load(ctx context.Context, taskID int64) *Draft {
	payload, err := s.kv.Get(ctx, Key(taskID))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Debug("draft read failed", "task_id", taskID, "error", err)
		}
		return nil
	}
	if len(payload) == 0 {
		return nil
	}

	var record Draft
	if err := json.Unmarshal(payload, &record); err != nil {
		s.logger.Debug("draft decode failed", "task_id", taskID, "error", err)
		return nil
	}
	if s.now().Sub(record.SavedTime()) > s.expiry {
		s.Clear(ctx, taskID)
		return nil
	}
	return &record
}

// Clear deletes the task's draft slot.
func (s *Store) Clear(ctx context.Context, taskID int64) {
	if err := s.kv.Remove(ctx, Key(taskID)); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Debug("draft delete failed", "task_id", taskID, "error", err)
	}
}

// Restorer receives paragraph texts recovered from a draft.
type Restorer interface {
	Restore(texts []script.ParagraphText) int
}

// Restore replays a valid draft for doc into target. A draft written
// against another version is stale and is deleted; the fresh document
// wins. It returns the number of restored paragraphs.
func (s *Store) Restore(ctx context.Context, doc *script.Document, target Restorer) int {
	if doc == nil {
		return 0
	}
	record := s.Load(ctx, doc.TaskID)
	if record == nil {
		return 0
	}
	if record.Version != doc.Version {
		s.logger.Info("discarding stale draft",
			"task_id", doc.TaskID,
			"draft_version", record.Version,
			"document_version", doc.Version,
		)
		s.Clear(ctx, doc.TaskID)
		return 0
	}
	restored := target.Restore(record.Paragraphs)
	if restored > 0 {
		s.logger.Info("restored draft", "task_id", doc.TaskID, "paragraphs", restored)
	}
	return restored
}
