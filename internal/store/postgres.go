package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zzdxppq/shop-video-scout/internal/script"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const selectScript = `
	SELECT id, task_id, paragraphs, version, regenerate_count, created_at, updated_at
	FROM scripts
`

func (s *PostgresStore) GetScript(ctx context.Context, taskID int64) (Script, error) {
	row := s.db.QueryRowContext(ctx, selectScript+` WHERE task_id = $1`, taskID)
	item, err := scanScript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Script{}, ErrNotFound
	}
	if err != nil {
		return Script{}, fmt.Errorf("get script: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) CreateScript(ctx context.Context, taskID int64, paragraphs []script.Paragraph) (Script, error) {
	payload, err := encodeParagraphs(paragraphs)
	if err != nil {
		return Script{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Script{}, fmt.Errorf("begin create script: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO scripts (task_id, paragraphs)
		VALUES ($1, $2)
		ON CONFLICT (task_id) DO NOTHING
		RETURNING id, task_id, paragraphs, version, regenerate_count, created_at, updated_at
	`, taskID, string(payload))
	item, err := scanScript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Script{}, ErrExists
	}
	if err != nil {
		return Script{}, fmt.Errorf("insert script: %w", err)
	}
	if err := insertRevision(ctx, tx, item, ReasonCreate, payload); err != nil {
		return Script{}, err
	}
	if err := tx.Commit(); err != nil {
		return Script{}, fmt.Errorf("commit create script: %w", err)
	}
	return item, nil
}

// UpdateScript replaces the paragraph set only if the stored version still
// equals update.ExpectedVersion.
func (s *PostgresStore) UpdateScript(ctx context.Context, update Update) (Script, error) {
	payload, err := encodeParagraphs(update.Paragraphs)
	if err != nil {
		return Script{}, err
	}
	increment := 0
	if update.Reason == ReasonRegenerate {
		increment = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Script{}, fmt.Errorf("begin update script: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		UPDATE scripts
		SET paragraphs = $3,
			version = version + 1,
			regenerate_count = regenerate_count + $4,
			updated_at = NOW()
		WHERE task_id = $1 AND version = $2
		RETURNING id, task_id, paragraphs, version, regenerate_count, created_at, updated_at
	`, update.TaskID, update.ExpectedVersion, string(payload), increment)
	item, err := scanScript(row)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM scripts WHERE task_id = $1)`, update.TaskID).Scan(&exists); err != nil {
			return Script{}, fmt.Errorf("check script: %w", err)
		}
		if !exists {
			return Script{}, ErrNotFound
		}
		return Script{}, ErrVersionConflict
	}
	if err != nil {
		return Script{}, fmt.Errorf("update script: %w", err)
	}
	if err := insertRevision(ctx, tx, item, update.Reason, payload); err != nil {
		return Script{}, err
	}
	if err := tx.Commit(); err != nil {
		return Script{}, fmt.Errorf("commit update script: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListRevisions(ctx context.Context, taskID int64) ([]Revision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.version, r.reason, r.paragraphs, r.created_at
		FROM script_revisions r
		JOIN scripts s ON s.id = r.script_id
		WHERE s.task_id = $1
		ORDER BY r.version DESC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	var revisions []Revision
	for rows.Next() {
		var (
			item Revision
			raw  []byte
		)
		if err := rows.Scan(&item.Version, &item.Reason, &raw, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		if err := json.Unmarshal(raw, &item.Paragraphs); err != nil {
			return nil, fmt.Errorf("decode revision paragraphs: %w", err)
		}
		revisions = append(revisions, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	if len(revisions) == 0 {
		if _, err := s.GetScript(ctx, taskID); err != nil {
			return nil, err
		}
	}
	return revisions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScript(row rowScanner) (Script, error) {
	var (
		item Script
		raw  []byte
	)
	if err := row.Scan(&item.ID, &item.TaskID, &raw, &item.Version, &item.RegenerateCount, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return Script{}, err
	}
	if err := json.Unmarshal(raw, &item.Paragraphs); err != nil {
		return Script{}, fmt.Errorf("decode paragraphs: %w", err)
	}
	return item, nil
}

func encodeParagraphs(paragraphs []script.Paragraph) ([]byte, error) {
	if paragraphs == nil {
		paragraphs = []script.Paragraph{}
	}
	payload, err := json.Marshal(paragraphs)
	if err != nil {
		return nil, fmt.Errorf("encode paragraphs: %w", err)
	}
	return payload, nil
}

func insertRevision(ctx context.Context, tx *sql.Tx, item Script, reason string, payload []byte) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO script_revisions (script_id, version, reason, paragraphs)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.Version, reason, string(payload)); err != nil {
		return fmt.Errorf("record revision: %w", err)
	}
	return nil
}
