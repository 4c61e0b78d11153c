package draft

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileKVLifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "drafts")
	kv, err := NewFileKV(dir)
	if err != nil {
		t.Fatalf("NewFileKV() error = %v", err)
	}
	ctx := context.Background()

	if _, err := kv.Get(ctx, Key(1)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() on empty dir error = %v, want ErrNotFound", err)
	}

	if err := kv.Set(ctx, Key(1), []byte(`{"taskId":1}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	data, err := kv.Get(ctx, Key(1))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(data) != `{"taskId":1}` {
		t.Fatalf("Get() = %s", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "script_draft_1.json.tmp")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("temporary file should not survive a successful write")
	}

	if err := kv.Remove(ctx, Key(1)); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := kv.Remove(ctx, Key(1)); err != nil {
		t.Fatalf("Remove() of missing key error = %v", err)
	}
	if _, err := kv.Get(ctx, Key(1)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after Remove error = %v", err)
	}
}

func TestFileKVSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	first, err := NewFileKV(dir)
	if err != nil {
		t.Fatalf("NewFileKV() error = %v", err)
	}
	NewStore(first).Save(ctx, 9, nil, 4)

	second, err := NewFileKV(dir)
	if err != nil {
		t.Fatalf("NewFileKV() error = %v", err)
	}
	got := NewStore(second).Load(ctx, 9)
	if got == nil || got.Version != 4 {
		t.Fatalf("draft not recovered after reopen: %+v", got)
	}
}

func TestFileKVLockExcludesOtherHolders(t *testing.T) {
	dir := t.TempDir()
	first, err := NewFileKV(dir)
	if err != nil {
		t.Fatalf("NewFileKV() error = %v", err)
	}
	second, err := NewFileKV(dir)
	if err != nil {
		t.Fatalf("NewFileKV() error = %v", err)
	}

	release, err := first.Lock(context.Background(), Key(3))
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if _, err := second.Lock(ctx, Key(3)); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Lock() error = %v, want ErrLocked", err)
	}
	other, err := second.Lock(context.Background(), Key(4))
	if err != nil {
		t.Fatalf("Lock() on another slot error = %v", err)
	}
	other()

	release()
	again, err := second.Lock(context.Background(), Key(3))
	if err != nil {
		t.Fatalf("Lock() after release error = %v", err)
	}
	again()
}
