package draft

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/zzdxppq/shop-video-scout/internal/script"
)

func setupTestRedis(t *testing.T) (*RedisKV, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	kv, err := NewRedisKV("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis kv: %v", err)
	}
	return kv, s
}

func TestNewRedisKV(t *testing.T) {
	kv, s := setupTestRedis(t)
	defer s.Close()
	defer kv.Close()

	if err := kv.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisKVBadURL(t *testing.T) {
	if _, err := NewRedisKV("not-a-url://"); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestRedisKVSetGetRemove(t *testing.T) {
	kv, s := setupTestRedis(t)
	defer kv.Close()
	defer s.Close()
	ctx := context.Background()

	if err := kv.Set(ctx, Key(3), []byte("payload")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !s.Exists("scriptedit:script_draft_3") {
		t.Fatal("expected namespaced key in redis")
	}
	got, err := kv.Get(ctx, Key(3))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("Get = %q, want payload", got)
	}

	if err := kv.Remove(ctx, Key(3)); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := kv.Get(ctx, Key(3)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after remove, got %v", err)
	}
}

func TestRedisKVRemoveMissingKey(t *testing.T) {
	kv, s := setupTestRedis(t)
	defer kv.Close()
	defer s.Close()

	if err := kv.Remove(context.Background(), "missing"); err != nil {
		t.Errorf("Remove of missing key failed: %v", err)
	}
}

func TestRedisKVExpiresWithDraftWindow(t *testing.T) {
	kv, s := setupTestRedis(t)
	defer kv.Close()
	defer s.Close()
	ctx := context.Background()

	store := NewStore(kv)
	store.Save(ctx, 5, []script.ParagraphText{{ID: "p1", Text: "x"}}, 1)
	if store.Load(ctx, 5) == nil {
		t.Fatal("expected draft before expiry")
	}

	s.FastForward(script.DraftExpiry + time.Second)

	if store.Load(ctx, 5) != nil {
		t.Fatal("expected redis to evict the draft after the expiry window")
	}
}
