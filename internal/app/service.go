package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zzdxppq/shop-video-scout/internal/auth"
	"github.com/zzdxppq/shop-video-scout/internal/config"
	"github.com/zzdxppq/shop-video-scout/internal/gitrepo"
	"github.com/zzdxppq/shop-video-scout/internal/rbac"
	"github.com/zzdxppq/shop-video-scout/internal/script"
	"github.com/zzdxppq/shop-video-scout/internal/store"
	"github.com/zzdxppq/shop-video-scout/internal/util"
)

const (
	MsgNotFound         = "script not found"
	MsgVersionConflict  = "script version has changed"
	MsgQuotaExceeded    = "regenerate limit reached"
	MsgAlreadyExists    = "script already exists"
	MsgIncompleteSet    = "paragraphs must list every paragraph exactly once"
	MsgEmptySeed        = "at least one paragraph is required"
	defaultHistoryLimit = 50
)

// Session is the caller identity resolved from a bearer token.
type Session struct {
	Subject string
	Role    string
}

// HistoryEntry is one stored version of a script.
type HistoryEntry struct {
	Version   int       `json:"version"`
	Reason    string    `json:"reason"`
	Hash      string    `json:"hash,omitempty"`
	Author    string    `json:"author,omitempty"`
	Changed   []string  `json:"changed"`
	CreatedAt time.Time `json:"createdAt"`
}

type dataStore interface {
	GetScript(context.Context, int64) (store.Script, error)
	CreateScript(context.Context, int64, []script.Paragraph) (store.Script, error)
	UpdateScript(context.Context, store.Update) (store.Script, error)
	ListRevisions(context.Context, int64) ([]store.Revision, error)
	Ping(context.Context) error
}

type gitService interface {
	Record(gitrepo.Content, string) (gitrepo.CommitInfo, error)
	History(int64, int) ([]gitrepo.CommitInfo, error)
}

// Regenerator writes a fresh paragraph set for a script.
type Regenerator interface {
	Regenerate(ctx context.Context, current store.Script) ([]script.Paragraph, error)
}

type Service struct {
	cfg         config.Config
	store       dataStore
	git         gitService
	regenerator Regenerator
	logger      *slog.Logger
	now         func() time.Time
}

type Option func(*Service)

// WithGit records every stored version in git history.
func WithGit(git *gitrepo.Service) Option {
	return func(s *Service) {
		if git != nil {
			s.git = git
		}
	}
}

func WithRegenerator(regenerator Regenerator) Option {
	return func(s *Service) {
		if regenerator != nil {
			s.regenerator = regenerator
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(cfg config.Config, dataStore dataStore, opts ...Option) *Service {
	s := &Service{
		cfg:         cfg,
		store:       dataStore,
		regenerator: TakeRegenerator{},
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// AuthEnabled reports whether requests must carry a bearer token.
func (s *Service) AuthEnabled() bool {
	return s.cfg.JWTSecret != ""
}

func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token, s.now())
	if err != nil {
		return Session{}, err
	}
	return Session{Subject: claims.Sub, Role: string(rbac.Normalize(claims.Role))}, nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) GetScript(ctx context.Context, taskID int64) (*script.Document, error) {
	row, err := s.store.GetScript(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return row.Document(s.cfg.RegenerateLimit), nil
}

// SeedScript creates version 1. Paragraphs without ids get fresh ones and
// a missing duration is estimated from the text length.
func (s *Service) SeedScript(ctx context.Context, session Session, taskID int64, paragraphs []script.Paragraph) (*script.Document, error) {
	if len(paragraphs) == 0 {
		return nil, domainError(http.StatusUnprocessableEntity, http.StatusUnprocessableEntity, MsgEmptySeed, nil)
	}
	seeded := make([]script.Paragraph, len(paragraphs))
	var problems []string
	for i, p := range paragraphs {
		if strings.TrimSpace(p.ID) == "" {
			p.ID = util.NewID("para")
		}
		if p.EstimatedDuration <= 0 {
			p.EstimatedDuration = estimateDuration(p.Text)
		}
		if err := script.Validate(p.Text); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %s", p.Section, script.MessageOf(err)))
		}
		seeded[i] = p
	}
	if len(problems) > 0 {
		return nil, domainError(http.StatusUnprocessableEntity, http.StatusUnprocessableEntity, problems[0], problems)
	}

	row, err := s.store.CreateScript(ctx, taskID, seeded)
	if err != nil {
		return nil, err
	}
	s.record(row, store.ReasonCreate, session)
	s.logger.Info("script seeded", "task_id", taskID, "paragraphs", len(seeded))
	return row.Document(s.cfg.RegenerateLimit), nil
}

// SaveScript replaces every paragraph text. ifMatch, when present, is the
// version the client edited against.
func (s *Service) SaveScript(ctx context.Context, session Session, taskID int64, ifMatch *int, items []script.ParagraphText) (*script.Document, error) {
	current, err := s.store.GetScript(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if ifMatch != nil && *ifMatch != current.Version {
		return nil, domainError(http.StatusConflict, http.StatusConflict, MsgVersionConflict, map[string]int{"version": current.Version})
	}

	updated, err := mergeTexts(current.Paragraphs, items)
	if err != nil {
		return nil, err
	}

	row, err := s.store.UpdateScript(ctx, store.Update{
		TaskID:          taskID,
		ExpectedVersion: current.Version,
		Paragraphs:      updated,
		Reason:          store.ReasonSave,
	})
	if err != nil {
		return nil, err
	}
	s.record(row, store.ReasonSave, session)
	s.logger.Info("script saved", "task_id", taskID, "version", row.Version, "subject", session.Subject)
	return row.Document(s.cfg.RegenerateLimit), nil
}

// RegenerateScript replaces the paragraph set with a new one, within the
// per-script quota.
func (s *Service) RegenerateScript(ctx context.Context, session Session, taskID int64) (*script.Document, error) {
	current, err := s.store.GetScript(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if current.RegenerateCount >= s.cfg.RegenerateLimit {
		return nil, domainError(http.StatusTooManyRequests, http.StatusTooManyRequests, MsgQuotaExceeded, map[string]int{"regenerateRemaining": 0})
	}

	paragraphs, err := s.regenerator.Regenerate(ctx, current)
	if err != nil {
		return nil, fmt.Errorf("regenerate script: %w", err)
	}

	row, err := s.store.UpdateScript(ctx, store.Update{
		TaskID:          taskID,
		ExpectedVersion: current.Version,
		Paragraphs:      paragraphs,
		Reason:          store.ReasonRegenerate,
	})
	if err != nil {
		return nil, err
	}
	s.record(row, store.ReasonRegenerate, session)
	s.logger.Info("script regenerated", "task_id", taskID, "version", row.Version, "regenerate_count", row.RegenerateCount)
	return row.Document(s.cfg.RegenerateLimit), nil
}

// History lists stored versions newest first, from git when configured
// and from the revision table otherwise.
func (s *Service) History(ctx context.Context, taskID int64) ([]HistoryEntry, error) {
	if _, err := s.store.GetScript(ctx, taskID); err != nil {
		return nil, err
	}
	if s.git != nil {
		commits, err := s.git.History(taskID, defaultHistoryLimit)
		if err == nil {
			entries := make([]HistoryEntry, 0, len(commits))
			for _, commit := range commits {
				entries = append(entries, HistoryEntry{
					Version:   commit.Version,
					Reason:    commit.Reason,
					Hash:      commit.Hash,
					Author:    commit.Author,
					Changed:   nonNil(commit.Changed),
					CreatedAt: commit.CreatedAt,
				})
			}
			return entries, nil
		}
		if !errors.Is(err, gitrepo.ErrNoHistory) {
			s.logger.Warn("git history unavailable", "task_id", taskID, "error", err)
		}
	}

	revisions, err := s.store.ListRevisions(ctx, taskID)
	if err != nil {
		return nil, err
	}
	entries := make([]HistoryEntry, 0, len(revisions))
	for i, revision := range revisions {
		var previous []script.Paragraph
		if i+1 < len(revisions) {
			previous = revisions[i+1].Paragraphs
		}
		entries = append(entries, HistoryEntry{
			Version: revision.Version,
			Reason:  revision.Reason,
			Changed: nonNil(gitrepo.ChangedParagraphs(
				gitrepo.Content{Paragraphs: previous},
				gitrepo.Content{Paragraphs: revision.Paragraphs},
			)),
			CreatedAt: revision.CreatedAt,
		})
	}
	return entries, nil
}

// record commits the stored version to git. History is best effort: a
// failed commit never fails the request.
func (s *Service) record(row store.Script, reason string, session Session) {
	if s.git == nil {
		return
	}
	author := session.Subject
	if author == "" {
		author = "anonymous"
	}
	_, err := s.git.Record(gitrepo.Content{
		TaskID:     row.TaskID,
		Version:    row.Version,
		Reason:     reason,
		Paragraphs: row.Paragraphs,
	}, author)
	if err != nil {
		s.logger.Warn("record script history failed", "task_id", row.TaskID, "version", row.Version, "error", err)
	}
}

// mergeTexts applies items onto current. items must name every paragraph
// exactly once and every text must pass validation.
func mergeTexts(current []script.Paragraph, items []script.ParagraphText) ([]script.Paragraph, error) {
	if len(items) != len(current) {
		return nil, domainError(http.StatusUnprocessableEntity, http.StatusUnprocessableEntity, MsgIncompleteSet, nil)
	}
	texts := make(map[string]string, len(items))
	for _, item := range items {
		if _, dup := texts[item.ID]; dup {
			return nil, domainError(http.StatusUnprocessableEntity, http.StatusUnprocessableEntity, MsgIncompleteSet, map[string]string{"duplicate": item.ID})
		}
		texts[item.ID] = item.Text
	}

	updated := make([]script.Paragraph, len(current))
	var problems []string
	for i, p := range current {
		text, ok := texts[p.ID]
		if !ok {
			return nil, domainError(http.StatusUnprocessableEntity, http.StatusUnprocessableEntity, MsgIncompleteSet, map[string]string{"missing": p.ID})
		}
		if err := script.Validate(text); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %s", p.Section, script.MessageOf(err)))
		}
		p.Text = text
		updated[i] = p
	}
	if len(problems) > 0 {
		return nil, domainError(http.StatusUnprocessableEntity, http.StatusUnprocessableEntity, problems[0], problems)
	}
	return updated, nil
}

// estimateDuration is the inverse of the suggested-length rule, rounded up.
func estimateDuration(text string) int {
	n := script.Length(text)
	seconds := (n + script.CharsPerSecond - 1) / script.CharsPerSecond
	if seconds < 1 {
		return 1
	}
	return seconds
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
