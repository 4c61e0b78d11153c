package store

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func openTestDB(t *testing.T) (*sql.DB, context.Context) {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("SCRIPT_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("SCRIPT_TEST_DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	db, err := Open(ctx, dsn, PoolConfig{MaxOpenConns: 2})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return db, ctx
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db, ctx := openTestDB(t)
	migrations := Migrations("")

	applied, err := ApplyMigrations(ctx, db, migrations)
	if err != nil {
		t.Fatalf("apply up migrations: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("expected both migrations applied, got %v", applied)
	}
	if err := VerifySchema(ctx, db); err != nil {
		t.Fatalf("verify schema: %v", err)
	}
	if applied, err := ApplyMigrations(ctx, db, migrations); err != nil || len(applied) != 0 {
		t.Fatalf("re-applying must be a no-op, got %v %v", applied, err)
	}

	downs, err := fs.Glob(migrations, "*.down.sql")
	if err != nil {
		t.Fatalf("glob down migrations: %v", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(downs)))
	for _, name := range downs {
		contents, err := fs.ReadFile(migrations, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if _, err := db.ExecContext(ctx, string(contents)); err != nil {
			t.Fatalf("apply %s: %v", name, err)
		}
	}
	if err := VerifySchema(ctx, db); !errors.Is(err, ErrSchemaIncomplete) {
		t.Fatalf("expected incomplete schema after down, got %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		t.Fatalf("clear schema_migrations: %v", err)
	}
	if _, err := ApplyMigrations(ctx, db, migrations); err != nil {
		t.Fatalf("apply up migrations after down: %v", err)
	}
}

func TestPostgresStoreVersionCheck(t *testing.T) {
	db, ctx := openTestDB(t)
	if _, err := ApplyMigrations(ctx, db, Migrations("")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	s := NewPostgresStore(db)

	created, err := s.CreateScript(ctx, 11, seedParagraphs())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("expected version 1, got %d", created.Version)
	}
	if _, err := s.CreateScript(ctx, 11, seedParagraphs()); !errors.Is(err, ErrExists) {
		t.Fatalf("expected exists, got %v", err)
	}

	saved, err := s.UpdateScript(ctx, Update{TaskID: 11, ExpectedVersion: 1, Paragraphs: seedParagraphs(), Reason: ReasonSave})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if saved.Version != 2 {
		t.Fatalf("expected version 2, got %d", saved.Version)
	}
	if _, err := s.UpdateScript(ctx, Update{TaskID: 11, ExpectedVersion: 1, Paragraphs: seedParagraphs(), Reason: ReasonSave}); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := s.UpdateScript(ctx, Update{TaskID: 99, ExpectedVersion: 1, Reason: ReasonSave}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	revisions, err := s.ListRevisions(ctx, 11)
	if err != nil {
		t.Fatalf("revisions: %v", err)
	}
	if len(revisions) != 2 || revisions[0].Reason != ReasonSave {
		t.Fatalf("unexpected revisions %+v", revisions)
	}
}
