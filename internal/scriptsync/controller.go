// Package scriptsync reconciles a local edit session with the versioned
// script on the server: fetch with draft restore, full save, and AI
// regenerate, including conflict and quota handling.
package scriptsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/zzdxppq/shop-video-scout/internal/draft"
	"github.com/zzdxppq/shop-video-scout/internal/editsession"
	"github.com/zzdxppq/shop-video-scout/internal/script"
	"github.com/zzdxppq/shop-video-scout/internal/scriptapi"
)

const (
	MsgLoadFailed       = "failed to load script"
	MsgConflict         = "the script was changed elsewhere, refresh and try again"
	MsgSaveFailed       = "save failed, please retry"
	MsgQuotaExceeded    = "regenerate limit reached, please edit the script manually"
	MsgRegenerateFailed = "regenerate failed, please retry"
	MsgBusy             = "another save or regenerate is still in progress"
)

// API is the server boundary the controller talks to.
type API interface {
	GetScript(ctx context.Context, taskID int64) (*script.Document, error)
	SaveScript(ctx context.Context, taskID int64, baseVersion int, paragraphs []script.ParagraphText) (*script.Document, error)
	RegenerateScript(ctx context.Context, taskID int64) (*script.Document, error)
}

// Controller owns the authoritative document for one task. Save and
// Regenerate share one in-flight flag so they never interleave.
type Controller struct {
	taskID  int64
	api     API
	drafts  *draft.Store
	session *editsession.Session
	logger  *slog.Logger

	inflight atomic.Bool

	mu           sync.Mutex
	doc          *script.Document
	err          error
	loading      bool
	saving       bool
	regenerating bool
}

type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(taskID int64, api API, drafts *draft.Store, session *editsession.Session, opts ...Option) *Controller {
	c := &Controller{
		taskID:  taskID,
		api:     api,
		drafts:  drafts,
		session: session,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("task_id", taskID)
	return c
}

func (c *Controller) TaskID() int64 { return c.taskID }

// Document returns the current server document, or nil before Load.
func (c *Controller) Document() *script.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc
}

func (c *Controller) Version() int {
	if doc := c.Document(); doc != nil {
		return doc.Version
	}
	return 0
}

func (c *Controller) Paragraphs() []script.Paragraph {
	if doc := c.Document(); doc != nil {
		return doc.Paragraphs
	}
	return nil
}

func (c *Controller) RegenerateRemaining() int {
	if doc := c.Document(); doc != nil {
		return doc.RegenerateRemaining
	}
	return 0
}

func (c *Controller) CanRegenerate() bool {
	return c.RegenerateRemaining() > 0
}

// Err returns the current error, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) ClearError() {
	c.setError(nil)
}

// Reject records a locally detected failure, such as a validation error
// that blocked a save, as the current error.
func (c *Controller) Reject(err error) {
	c.setError(err)
}

func (c *Controller) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

func (c *Controller) IsSaving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saving
}

func (c *Controller) IsRegenerating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regenerating
}

// Load fetches the document, installs it as the session baseline and
// replays a matching draft. The returned error is a *script.Error of
// KindFetch carrying the server's message verbatim when one was sent.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	c.loading = true
	c.err = nil
	c.mu.Unlock()
	defer c.setFlag(&c.loading, false)

	doc, err := c.api.GetScript(ctx, c.taskID)
	if err != nil {
		fetchErr := script.NewError(script.KindFetch, serverMessage(err, MsgLoadFailed), err)
		c.setError(fetchErr)
		c.logger.Error("script fetch failed", "error", err)
		return fetchErr
	}

	if doc.TaskID == 0 {
		doc.TaskID = c.taskID
	}
	c.replace(doc)
	c.session.Rebase(doc)
	restored := c.drafts.Restore(ctx, doc, c.session)
	c.logger.Info("script loaded", "version", doc.Version, "paragraphs", len(doc.Paragraphs), "restored", restored)
	return nil
}

// Save submits the full merged paragraph set. With no local changes it
// succeeds without a network call. On conflict the edit set, undo log and
// draft are left untouched.
func (c *Controller) Save(ctx context.Context) bool {
	doc := c.Document()
	if doc == nil || !c.session.HasChanges() {
		return true
	}
	if !c.inflight.CompareAndSwap(false, true) {
		c.setError(script.NewError(script.KindBusy, MsgBusy, nil))
		return false
	}
	defer c.inflight.Store(false)

	c.mu.Lock()
	c.saving = true
	c.err = nil
	c.mu.Unlock()
	defer c.setFlag(&c.saving, false)

	saved, err := c.api.SaveScript(ctx, c.taskID, doc.Version, c.session.Merged())
	if err != nil {
		var statusErr *scriptapi.StatusError
		if errors.As(err, &statusErr) && statusErr.Conflict() {
			c.setError(script.NewError(script.KindVersionConflict, MsgConflict, err))
			c.logger.Warn("script save conflict", "base_version", doc.Version)
			return false
		}
		c.setError(script.NewError(script.KindTransient, serverMessage(err, MsgSaveFailed), err))
		c.logger.Error("script save failed", "error", err)
		return false
	}

	c.install(ctx, saved)
	c.logger.Info("script saved", "version", saved.Version)
	return true
}

// Regenerate asks the server for a brand-new paragraph set. It refuses
// without a network call when the quota is exhausted. Success discards
// all pending local edits.
func (c *Controller) Regenerate(ctx context.Context) bool {
	doc := c.Document()
	if doc == nil || doc.RegenerateRemaining <= 0 {
		return false
	}
	if !c.inflight.CompareAndSwap(false, true) {
		c.setError(script.NewError(script.KindBusy, MsgBusy, nil))
		return false
	}
	defer c.inflight.Store(false)

	c.mu.Lock()
	c.regenerating = true
	c.err = nil
	c.mu.Unlock()
	defer c.setFlag(&c.regenerating, false)

	regenerated, err := c.api.RegenerateScript(ctx, c.taskID)
	if err != nil {
		var statusErr *scriptapi.StatusError
		if errors.As(err, &statusErr) && statusErr.QuotaExceeded() {
			c.setError(script.NewError(script.KindQuotaExceeded, MsgQuotaExceeded, err))
			c.clampQuota()
			c.logger.Warn("script regenerate quota exhausted")
			return false
		}
		c.setError(script.NewError(script.KindTransient, serverMessage(err, MsgRegenerateFailed), err))
		c.logger.Error("script regenerate failed", "error", err)
		return false
	}

	c.install(ctx, regenerated)
	c.logger.Info("script regenerated", "version", regenerated.Version, "remaining", regenerated.RegenerateRemaining)
	return true
}

// Reset forgets the document, the edits and the current error. The draft
// is left in place.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.doc = nil
	c.err = nil
	c.loading = false
	c.saving = false
	c.regenerating = false
	c.mu.Unlock()
	c.session.Rebase(nil)
}

// install swaps in a document returned by a successful mutation and drops
// everything that was pending against the old one.
func (c *Controller) install(ctx context.Context, doc *script.Document) {
	c.replace(doc)
	c.session.Rebase(doc)
	c.drafts.Clear(ctx, c.taskID)
}

func (c *Controller) replace(doc *script.Document) {
	c.mu.Lock()
	c.doc = doc
	c.mu.Unlock()
}

// clampQuota forces the local quota to zero after the server refused a
// regenerate, even if the refusal raced a stale local count.
func (c *Controller) clampQuota() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc != nil && c.doc.RegenerateRemaining != 0 {
		c.doc = c.doc.WithRegenerateRemaining(0)
	}
}

func (c *Controller) setError(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *Controller) setFlag(flag *bool, value bool) {
	c.mu.Lock()
	*flag = value
	c.mu.Unlock()
}

func serverMessage(err error, fallback string) string {
	var statusErr *scriptapi.StatusError
	if errors.As(err, &statusErr) && statusErr.Message != "" {
		return statusErr.Message
	}
	return fallback
}
