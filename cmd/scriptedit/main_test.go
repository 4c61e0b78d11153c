package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zzdxppq/shop-video-scout/internal/app"
	"github.com/zzdxppq/shop-video-scout/internal/auth"
	"github.com/zzdxppq/shop-video-scout/internal/config"
	"github.com/zzdxppq/shop-video-scout/internal/draft"
	"github.com/zzdxppq/shop-video-scout/internal/logging"
	"github.com/zzdxppq/shop-video-scout/internal/script"
	"github.com/zzdxppq/shop-video-scout/internal/store"
)

type cliTestEnv struct {
	store    *store.MemoryStore
	apiURL   string
	draftDir string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	mem := store.NewMemoryStore()
	service := app.New(config.Config{RegenerateLimit: 5}, mem, app.WithLogger(logging.NewNop()))
	server := httptest.NewServer(app.NewHTTPServer(service, "*", logging.NewNop()).Handler())
	t.Cleanup(server.Close)

	_, err := mem.CreateScript(context.Background(), 7, []script.Paragraph{
		{ID: "p1", Section: "开场", ShotID: 1, Text: "原始文案", EstimatedDuration: 3},
		{ID: "p2", Section: "产品", ShotID: 2, Text: "第二段", EstimatedDuration: 5},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return &cliTestEnv{
		store:    mem,
		apiURL:   server.URL + "/api/v1",
		draftDir: filepath.Join(t.TempDir(), "drafts"),
	}
}

func (env *cliTestEnv) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	flags := []string{"--api", env.apiURL, "--drafts", "file", "--draft-dir", env.draftDir, "--log-level", "error"}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (env *cliTestEnv) serverText(t *testing.T, id string) (string, int) {
	t.Helper()
	row, err := env.store.GetScript(context.Background(), 7)
	if err != nil {
		t.Fatalf("get script: %v", err)
	}
	for _, p := range row.Paragraphs {
		if p.ID == id {
			return p.Text, row.Version
		}
	}
	t.Fatalf("paragraph %s not found", id)
	return "", 0
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, output)
	}
}

func TestEditThenSave(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "", "edit", "7", "p1", "新内容")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	requireContains(t, out, "updated p1")
	if text, version := env.serverText(t, "p1"); text != "原始文案" || version != 1 {
		t.Fatalf("edit must not reach the server, got %q v%d", text, version)
	}

	out, _, err = env.run(t, "", "status", "7")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Unsaved paragraphs")
	requireContains(t, out, "* p1 (开场): 新内容")
	requireContains(t, out, "You have unsaved changes")

	out, _, err = env.run(t, "", "show", "7", "--json")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, `"text": "新内容"`)

	out, _, err = env.run(t, "", "save", "7")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	requireContains(t, out, "saved version 2")
	if text, version := env.serverText(t, "p1"); text != "新内容" || version != 2 {
		t.Fatalf("unexpected server state %q v%d", text, version)
	}

	out, _, err = env.run(t, "", "save", "7")
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	requireContains(t, out, "nothing to save")
}

func TestEditRejectsInvalidText(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := env.run(t, "   \n", "edit", "7", "p1", "-"); err == nil || !strings.Contains(err.Error(), "must not be empty") {
		t.Fatalf("expected empty text to be rejected, got %v", err)
	}
	if _, _, err := env.run(t, "", "edit", "7", "p1", strings.Repeat("字", 501)); err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected long text to be rejected, got %v", err)
	}
	if _, _, err := env.run(t, "", "edit", "7", "zz", "x"); err == nil {
		t.Fatal("expected unknown paragraph to be rejected")
	}

	out, _, err := env.run(t, "", "save", "7")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	requireContains(t, out, "nothing to save")
}

func TestCancelAndDiscard(t *testing.T) {
	env := setupCLITestEnv(t)

	for _, args := range [][]string{{"edit", "7", "p1", "一"}, {"edit", "7", "p2", "二"}} {
		if _, _, err := env.run(t, "", args...); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}
	if _, _, err := env.run(t, "", "cancel", "7", "p1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	out, _, err := env.run(t, "", "show", "7", "--json")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, `"text": "原始文案"`)
	requireContains(t, out, `"text": "二"`)

	out, _, err = env.run(t, "", "discard", "7")
	if err != nil {
		t.Fatalf("discard: %v", err)
	}
	requireContains(t, out, "discarded 1 unsaved paragraphs")

	out, _, err = env.run(t, "", "show", "7", "--json")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, `"text": "第二段"`)
}

func TestStaleDraftIsDropped(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := env.run(t, "", "edit", "7", "p2", "我的修改"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	_, err := env.store.UpdateScript(context.Background(), store.Update{
		TaskID:          7,
		ExpectedVersion: 1,
		Reason:          store.ReasonSave,
		Paragraphs: []script.Paragraph{
			{ID: "p1", Section: "开场", ShotID: 1, Text: "别人的修改", EstimatedDuration: 3},
			{ID: "p2", Section: "产品", ShotID: 2, Text: "第二段", EstimatedDuration: 5},
		},
	})
	if err != nil {
		t.Fatalf("concurrent update: %v", err)
	}

	out, _, err := env.run(t, "", "show", "7", "--json")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, `"text": "别人的修改"`)
	requireContains(t, out, `"text": "第二段"`)

	out, _, err = env.run(t, "", "save", "7")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	requireContains(t, out, "nothing to save")
}

func TestSessionConflictWritesRescueFile(t *testing.T) {
	env := setupCLITestEnv(t)
	reader, writer := io.Pipe()

	go func() {
		// The first write only completes once the session has opened
		// version 1 and started reading.
		_, _ = io.WriteString(writer, ":edit p2\n我的修改\n:enter\n")
		_, _ = env.store.UpdateScript(context.Background(), store.Update{
			TaskID:          7,
			ExpectedVersion: 1,
			Reason:          store.ReasonSave,
			Paragraphs: []script.Paragraph{
				{ID: "p1", Section: "开场", Text: "别人的修改"},
				{ID: "p2", Section: "产品", Text: "第二段"},
			},
		})
		_, _ = io.WriteString(writer, ":save\n:quit!\n")
		_ = writer.Close()
	}()

	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(reader)
	cmd.SetArgs([]string{"--api", env.apiURL, "--drafts", "file", "--draft-dir", env.draftDir, "--log-level", "error", "session", "7"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("session: %v", err)
	}
	requireContains(t, stdout.String(), "version conflict")

	matches, err := filepath.Glob(filepath.Join(env.draftDir, "conflict-task-7-v1-*.md"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one rescue file, got %v (%v)", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read rescue file: %v", err)
	}
	requireContains(t, string(data), "我的修改")

	if text, version := env.serverText(t, "p1"); text != "别人的修改" || version != 2 {
		t.Fatalf("the other save must win, got %q v%d", text, version)
	}
}

func TestSessionEditAndSave(t *testing.T) {
	env := setupCLITestEnv(t)

	input := strings.Join([]string{
		":edit p1",
		"第一行",
		"第二行",
		":enter",
		":edit p2",
		"临时",
		":esc",
		":status",
		":quit",
		":save",
		":quit",
	}, "\n") + "\n"
	out, _, err := env.run(t, input, "session", "7")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	requireContains(t, out, "version 1, 1 unsaved")
	requireContains(t, out, "You have unsaved changes")
	requireContains(t, out, "saved version 2")

	if text, version := env.serverText(t, "p1"); text != "第一行\n第二行" || version != 2 {
		t.Fatalf("unexpected server state %q v%d", text, version)
	}
	if text, _ := env.serverText(t, "p2"); text != "第二段" {
		t.Fatalf("escaped paragraph must keep its text, got %q", text)
	}
}

func TestRegenerateNeedsForceWithEdits(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := env.run(t, "", "edit", "7", "p1", "改"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if _, _, err := env.run(t, "", "regenerate", "7"); err == nil || !strings.Contains(err.Error(), "--force") {
		t.Fatalf("expected a refusal, got %v", err)
	}
	out, _, err := env.run(t, "", "regenerate", "7", "--force")
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	requireContains(t, out, "4 regenerations left")

	row, err := env.store.GetScript(context.Background(), 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.Version != 2 || row.RegenerateCount != 1 {
		t.Fatalf("unexpected row %+v", row)
	}
}

func TestExportIncludesUnsavedEdits(t *testing.T) {
	env := setupCLITestEnv(t)
	outDir := t.TempDir()

	if _, _, err := env.run(t, "", "edit", "7", "p1", "导出的修改"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	out, _, err := env.run(t, "", "export", "7", "--format", "md", "--out", outDir, "--title", "探店")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	requireContains(t, out, "(1 unsaved)")

	data, err := os.ReadFile(filepath.Join(outDir, "探店.md"))
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	requireContains(t, string(data), "导出的修改")
	requireContains(t, string(data), "第二段")

	if _, _, err := env.run(t, "", "export", "7", "--format", "odt"); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestHistoryAndSeed(t *testing.T) {
	env := setupCLITestEnv(t)

	seedFile := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(seedFile, []byte(`[{"section":"开场","text":"你好"},{"section":"结尾","text":"再见"}]`), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	out, _, err := env.run(t, "", "seed", "9", seedFile)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	requireContains(t, out, "created script for task 9 with 2 paragraphs")

	if _, _, err := env.run(t, "", "edit", "7", "p1", "改"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if _, _, err := env.run(t, "", "save", "7"); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, _, err = env.run(t, "", "history", "7")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "save")
	requireContains(t, out, "create")
}

func TestTokenCommand(t *testing.T) {
	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"token", "--secret", "s3cret", "--subject", "alice", "--role", "admin", "--ttl", "1h"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("token: %v", err)
	}
	claims, err := auth.ParseToken([]byte("s3cret"), strings.TrimSpace(stdout.String()), time.Now())
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Sub != "alice" || claims.Role != "admin" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	cmd = newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"token", "--secret", "s3cret", "--role", "owner"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected unknown role error")
	}
}

func TestConcurrentProcessIsRefused(t *testing.T) {
	env := setupCLITestEnv(t)
	kv, err := draft.NewFileKV(env.draftDir)
	if err != nil {
		t.Fatalf("open drafts: %v", err)
	}
	release, err := kv.Lock(context.Background(), draft.Key(7))
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	_, _, err = env.run(t, "", "edit", "7", "p1", "被拒绝")
	if err == nil || !strings.Contains(err.Error(), "in use by another scriptedit process") {
		t.Fatalf("expected lock error, got %v", err)
	}

	release()
	out, _, err := env.run(t, "", "edit", "7", "p1", "轮到我了")
	if err != nil {
		t.Fatalf("edit after release: %v", err)
	}
	requireContains(t, out, "updated p1")
}
