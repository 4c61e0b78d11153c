// Package editor drives one open script: single-slot paragraph focus,
// debounced draft persistence, the keyboard contract, and the
// unsaved-changes guard. It is the only layer a host UI talks to.
package editor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/zzdxppq/shop-video-scout/internal/draft"
	"github.com/zzdxppq/shop-video-scout/internal/editsession"
	"github.com/zzdxppq/shop-video-scout/internal/script"
	"github.com/zzdxppq/shop-video-scout/internal/scriptsync"
)

const (
	DefaultDraftDelay  = 300 * time.Millisecond
	DefaultBufferDelay = 300 * time.Millisecond

	UnsavedChangesMessage = "You have unsaved changes. Leave anyway?"
)

var (
	ErrUnknownParagraph = errors.New("editor: unknown paragraph")
	ErrClosed           = errors.New("editor: coordinator closed")
)

type State int

const (
	Idle State = iota
	Editing
)

func (s State) String() string {
	if s == Editing {
		return "editing"
	}
	return "idle"
}

// Key is a keyboard event as reported by the host.
type Key struct {
	Name  string
	Shift bool
	Ctrl  bool
	Meta  bool
}

const (
	KeyEnter  = "Enter"
	KeyEscape = "Escape"
	KeyZ      = "z"
)

// Options wires a coordinator to its environment. API and KV are required.
type Options struct {
	API         scriptsync.API
	KV          draft.KV
	Schedule    ScheduleFunc
	DraftDelay  time.Duration
	BufferDelay time.Duration
	Clock       func() time.Time
	Logger      *slog.Logger
}

// Coordinator is the per-document edit session handed to the host. Each
// open task gets its own coordinator; nothing is shared between them.
type Coordinator struct {
	taskID  int64
	session *editsession.Session
	drafts  *draft.Store
	ctrl    *scriptsync.Controller
	logger  *slog.Logger

	live       *Debouncer
	draftWrite *Debouncer

	mu      sync.Mutex
	focused string
	buffer  string
	closed  bool
}

// Open builds the session, draft slot and sync controller for taskID and
// loads the document. A load failure is returned as a fetch error and no
// coordinator is produced.
func Open(ctx context.Context, taskID int64, opts Options) (*Coordinator, error) {
	c, err := newCoordinator(taskID, opts)
	if err != nil {
		return nil, err
	}
	if err := c.ctrl.Load(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func newCoordinator(taskID int64, opts Options) (*Coordinator, error) {
	if opts.API == nil || opts.KV == nil {
		return nil, errors.New("editor: API and KV are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DraftDelay <= 0 {
		opts.DraftDelay = DefaultDraftDelay
	}
	if opts.BufferDelay <= 0 {
		opts.BufferDelay = DefaultBufferDelay
	}

	var sessionOpts []editsession.Option
	draftOpts := []draft.Option{draft.WithLogger(logger)}
	if opts.Clock != nil {
		sessionOpts = append(sessionOpts, editsession.WithClock(opts.Clock))
		draftOpts = append(draftOpts, draft.WithClock(opts.Clock))
	}

	c := &Coordinator{
		taskID:  taskID,
		session: editsession.New(nil, sessionOpts...),
		drafts:  draft.NewStore(opts.KV, draftOpts...),
		logger:  logger.With("task_id", taskID),
	}
	c.ctrl = scriptsync.New(taskID, opts.API, c.drafts, c.session, scriptsync.WithLogger(logger))
	c.live = NewDebouncer(opts.Schedule, opts.BufferDelay, c.pushBuffer)
	c.draftWrite = NewDebouncer(opts.Schedule, opts.DraftDelay, c.writeDraft)
	c.session.SetChangeHook(c.draftWrite.Trigger)
	return c, nil
}

func (c *Coordinator) TaskID() int64 { return c.taskID }

func (c *Coordinator) Session() *editsession.Session { return c.session }

func (c *Coordinator) Controller() *scriptsync.Controller { return c.ctrl }

func (c *Coordinator) Document() *script.Document { return c.ctrl.Document() }

// State reports the focus state and the focused paragraph id.
func (c *Coordinator) State() (State, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.focused == "" {
		return Idle, ""
	}
	return Editing, c.focused
}

// Buffer returns the live input text of the focused paragraph.
func (c *Coordinator) Buffer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer
}

// CurrentText is the text a reader sees for id right now: the live buffer
// when id is focused, the session text otherwise.
func (c *Coordinator) CurrentText(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != "" && id == c.focused {
		return c.buffer
	}
	return c.session.CurrentText(id)
}

// StartEdit focuses id. A different paragraph already in focus is
// committed silently first, without validation.
func (c *Coordinator) StartEdit(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if _, ok := c.ctrl.Document().Paragraph(id); !ok {
		return ErrUnknownParagraph
	}
	if c.focused == id {
		return nil
	}
	if c.focused != "" {
		c.live.Cancel()
		c.session.Update(c.focused, c.buffer)
	}
	c.focused = id
	c.buffer = c.session.CurrentText(id)
	return nil
}

// UpdateBuffer replaces the live text of the focused paragraph. The
// session sees it after the buffer debounce or on commit.
func (c *Coordinator) UpdateBuffer(text string) bool {
	c.mu.Lock()
	if c.focused == "" || c.closed {
		c.mu.Unlock()
		return false
	}
	c.buffer = text
	c.mu.Unlock()
	c.live.Trigger()
	return true
}

// InsertNewline appends a literal newline to the live buffer.
func (c *Coordinator) InsertNewline() bool {
	c.mu.Lock()
	if c.focused == "" || c.closed {
		c.mu.Unlock()
		return false
	}
	c.buffer += "\n"
	c.mu.Unlock()
	c.live.Trigger()
	return true
}

// CommitEdit validates the live buffer and, if valid, writes it to the
// session and returns to Idle. An invalid buffer keeps focus and text.
func (c *Coordinator) CommitEdit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.focused == "" {
		return nil
	}
	if err := script.Validate(c.buffer); err != nil {
		return err
	}
	c.live.Cancel()
	c.session.Update(c.focused, c.buffer)
	c.focused = ""
	c.buffer = ""
	return nil
}

// CancelEdit restores the focused paragraph to its server text and
// returns to Idle.
func (c *Coordinator) CancelEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.focused == "" {
		return
	}
	c.live.Cancel()
	c.session.Cancel(c.focused)
	c.focused = ""
	c.buffer = ""
}

// Undo reverts the latest session mutation regardless of focus. Pending
// live text is pushed first so it can be undone as well. When the undone
// paragraph is focused the buffer shows the restored value.
func (c *Coordinator) Undo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if c.focused != "" && c.live.Cancel() {
		c.session.Update(c.focused, c.buffer)
	}
	entry, ok := c.session.Undo()
	if !ok {
		return false
	}
	if entry.ParagraphID == c.focused {
		c.buffer = c.session.CurrentText(c.focused)
	}
	return true
}

// HandleKey applies the keyboard contract. Enter commits, Shift+Enter
// inserts a newline, Escape cancels, Ctrl/Cmd+Z undoes. It returns the
// validation error of a refused commit.
func (c *Coordinator) HandleKey(key Key) (bool, error) {
	switch {
	case key.Name == KeyEnter && key.Shift:
		return c.InsertNewline(), nil
	case key.Name == KeyEnter:
		state, _ := c.State()
		if state == Idle {
			return false, nil
		}
		err := c.CommitEdit()
		return err == nil, err
	case key.Name == KeyEscape:
		state, _ := c.State()
		if state == Idle {
			return false, nil
		}
		c.CancelEdit()
		return true, nil
	case (key.Ctrl || key.Meta) && !key.Shift && key.Name == KeyZ:
		return c.Undo(), nil
	}
	return false, nil
}

// Save pushes any live text, validates every paragraph and submits the
// merged view. Validation failures are reported through the controller's
// current error without a network call.
func (c *Coordinator) Save(ctx context.Context) bool {
	c.mu.Lock()
	if c.focused != "" && c.live.Cancel() {
		c.session.Update(c.focused, c.buffer)
	}
	c.mu.Unlock()

	if !c.session.HasChanges() {
		return true
	}
	if ok, messages := script.ValidateAll(c.ctrl.Document(), c.session); !ok {
		c.ctrl.Reject(script.NewValidationError(strings.Join(messages, "; ")))
		return false
	}
	c.draftWrite.Flush()

	if !c.ctrl.Save(ctx) {
		return false
	}
	c.draftWrite.Cancel()

	c.mu.Lock()
	if c.focused != "" {
		c.buffer = c.session.CurrentText(c.focused)
	}
	c.mu.Unlock()
	return true
}

// Regenerate asks for a new script. On success focus is dropped since the
// paragraph ids are gone.
func (c *Coordinator) Regenerate(ctx context.Context) bool {
	if !c.ctrl.Regenerate(ctx) {
		return false
	}
	c.draftWrite.Cancel()

	c.mu.Lock()
	c.live.Cancel()
	c.focused = ""
	c.buffer = ""
	c.mu.Unlock()
	return true
}

// Reload fetches the document again, replaying a matching draft.
func (c *Coordinator) Reload(ctx context.Context) error {
	c.mu.Lock()
	c.live.Cancel()
	c.focused = ""
	c.buffer = ""
	c.mu.Unlock()
	c.draftWrite.Flush()
	return c.ctrl.Load(ctx)
}

// BeforeUnload reports whether leaving should be confirmed first, and the
// message to show.
func (c *Coordinator) BeforeUnload() (bool, string) {
	if c.HasChanges() {
		return true, UnsavedChangesMessage
	}
	return false, ""
}

// HasChanges includes live text not yet pushed to the session.
func (c *Coordinator) HasChanges() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.HasChanges() {
		return true
	}
	return c.focused != "" && c.buffer != c.session.CurrentText(c.focused)
}

// Discard throws away the document, every local edit and the draft.
func (c *Coordinator) Discard(ctx context.Context) {
	c.mu.Lock()
	c.live.Cancel()
	c.focused = ""
	c.buffer = ""
	c.mu.Unlock()
	c.draftWrite.Cancel()
	c.drafts.Clear(ctx, c.taskID)
	c.ctrl.Reset()
}

// Close pushes pending live text, flushes the pending draft write and
// stops both debouncers.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.focused != "" && c.live.Cancel() {
		c.session.Update(c.focused, c.buffer)
	}
	c.mu.Unlock()
	c.draftWrite.Flush()
}

// CharCount reports the counter for id against its live text.
func (c *Coordinator) CharCount(id string) (script.CharCountInfo, bool) {
	p, ok := c.ctrl.Document().Paragraph(id)
	if !ok {
		return script.CharCountInfo{}, false
	}
	return script.CharCount(p, c.CurrentText(id)), true
}

// ValidateAll checks every paragraph, including the live buffer.
func (c *Coordinator) ValidateAll() (bool, []string) {
	return script.ValidateAll(c.ctrl.Document(), c)
}

func (c *Coordinator) pushBuffer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.focused == "" {
		return
	}
	c.session.Update(c.focused, c.buffer)
}

func (c *Coordinator) writeDraft() {
	ctx := context.Background()
	doc := c.ctrl.Document()
	if doc == nil {
		return
	}
	if !c.session.HasChanges() {
		c.drafts.Clear(ctx, c.taskID)
		return
	}
	c.drafts.Save(ctx, c.taskID, c.session.Merged(), doc.Version)
}
