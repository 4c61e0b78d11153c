// Package gitrepo keeps a git history of every stored script version, one
// repository per task.
package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/zzdxppq/shop-video-scout/internal/script"
)

const (
	contentFile = "script.json"
	mainBranch  = "main"
)

var ErrNoHistory = errors.New("gitrepo: no history for task")

// Content is the snapshot committed for one script version.
type Content struct {
	TaskID     int64              `json:"taskId"`
	Version    int                `json:"version"`
	Reason     string             `json:"reason"`
	Paragraphs []script.Paragraph `json:"paragraphs"`
}

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	Version   int       `json:"version"`
	Reason    string    `json:"reason"`
	Changed   []string  `json:"changed"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[int64]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[int64]*sync.Mutex),
	}
}

// Record commits content on the task's main branch, creating the
// repository on first use, and tags the commit "v<version>".
func (s *Service) Record(content Content, author string) (CommitInfo, error) {
	lock := s.taskLock(content.TaskID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(content.TaskID)
	if err != nil {
		return CommitInfo{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return CommitInfo{}, fmt.Errorf("marshal content: %w", err)
	}
	root := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(root, contentFile), append(payload, '\n'), 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write %s: %w", contentFile, err)
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return CommitInfo{}, fmt.Errorf("git add content: %w", err)
	}

	message := fmt.Sprintf("%s: version %d", content.Reason, content.Version)
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@scripts.local", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit content: %w", err)
	}

	tag := "v" + strconv.Itoa(content.Version)
	if _, err := repo.CreateTag(tag, hash, &git.CreateTagOptions{
		Tagger:  &object.Signature{Name: author, Email: "scripts@localhost", When: time.Now()},
		Message: message,
	}); err != nil && !errors.Is(err, git.ErrTagExists) {
		return CommitInfo{}, fmt.Errorf("create tag %s: %w", tag, err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return s.describe(commitObj)
}

// History lists commits newest first. limit <= 0 means all.
func (s *Service) History(taskID int64, limit int) ([]CommitInfo, error) {
	lock := s.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(taskID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNoHistory
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	var items []CommitInfo
	err = iter.ForEach(func(commitObj *object.Commit) error {
		info, err := s.describe(commitObj)
		if err != nil {
			return err
		}
		items = append(items, info)
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// ContentAt returns the snapshot stored under a commit hash or tag such
// as "v3".
func (s *Service) ContentAt(taskID int64, revision string) (Content, error) {
	lock := s.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(taskID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return Content{}, ErrNoHistory
	}
	if err != nil {
		return Content{}, fmt.Errorf("open repo: %w", err)
	}
	commitObj, err := resolveCommit(repo, revision)
	if err != nil {
		return Content{}, err
	}
	return readContent(commitObj)
}

// resolveCommit accepts a version tag, a full or short hash, or any other
// revision go-git understands.
func resolveCommit(repo *git.Repository, revision string) (*object.Commit, error) {
	if ref, err := repo.Tag(revision); err == nil {
		if tagObj, err := repo.TagObject(ref.Hash()); err == nil {
			return tagObj.Commit()
		}
		return repo.CommitObject(ref.Hash())
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return nil, fmt.Errorf("resolve revision %s: %w", revision, err)
	}
	commitObj, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", revision, err)
	}
	return commitObj, nil
}

// ChangedParagraphs lists ids whose text differs between two snapshots,
// plus ids present in only one of them, in the order of to then from.
func ChangedParagraphs(from, to Content) []string {
	before := make(map[string]string, len(from.Paragraphs))
	for _, p := range from.Paragraphs {
		before[p.ID] = p.Text
	}
	seen := make(map[string]bool, len(to.Paragraphs))
	var changed []string
	for _, p := range to.Paragraphs {
		seen[p.ID] = true
		if text, ok := before[p.ID]; !ok || text != p.Text {
			changed = append(changed, p.ID)
		}
	}
	for _, p := range from.Paragraphs {
		if !seen[p.ID] {
			changed = append(changed, p.ID)
		}
	}
	return changed
}

func (s *Service) describe(commitObj *object.Commit) (CommitInfo, error) {
	content, err := readContent(commitObj)
	if err != nil {
		return CommitInfo{}, err
	}
	var previous Content
	if commitObj.NumParents() > 0 {
		parent, err := commitObj.Parent(0)
		if err != nil {
			return CommitInfo{}, fmt.Errorf("read parent commit: %w", err)
		}
		if previous, err = readContent(parent); err != nil {
			return CommitInfo{}, err
		}
	}
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		Version:   content.Version,
		Reason:    content.Reason,
		Changed:   ChangedParagraphs(previous, content),
		CreatedAt: commitObj.Author.When,
	}, nil
}

func (s *Service) openOrInit(taskID int64) (*git.Repository, error) {
	path := s.repoPath(taskID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInitWithOptions(path, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(mainBranch)},
	})
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(taskID int64) string {
	return filepath.Join(s.baseDir, "task-"+strconv.FormatInt(taskID, 10))
}

func (s *Service) taskLock(taskID int64) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[taskID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[taskID] = lock
	return lock
}

func readContent(commitObj *object.Commit) (Content, error) {
	file, err := commitObj.File(contentFile)
	if err != nil {
		return Content{}, fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Content{}, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Content{}, fmt.Errorf("read content bytes: %w", err)
	}
	var content Content
	if err := json.Unmarshal(raw, &content); err != nil {
		return Content{}, fmt.Errorf("decode commit content: %w", err)
	}
	return content, nil
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
