package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prompt-request/go-services/internal/document"
)

// DB is the subset of pgxpool.Pool used by PostgresStore.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore keeps document metadata in the requests and
// request_revisions tables.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

func (s *PostgresStore) OwnedBy(ctx context.Context, id uuid.UUID, accountID int64) (bool, error) {
	var one int
	err := s.db.QueryRow(ctx, `SELECT 1 FROM requests WHERE uuid = $1 AND account_id = $2`, id, accountID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check owner: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) List(ctx context.Context, accountID int64, limit, offset int) ([]document.Summary, error) {
	query := `
		SELECT r.uuid, r.created_at, r.updated_at, r.latest_rev, rr.content_type
		FROM requests r
		JOIN request_revisions rr
		  ON rr.request_uuid = r.uuid AND rr.rev_number = r.latest_rev
		WHERE r.account_id = $1
		ORDER BY r.created_at DESC, r.uuid
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	out := []document.Summary{}
	for rows.Next() {
		var it document.Summary
		if err := rows.Scan(&it.ID, &it.CreatedAt, &it.UpdatedAt, &it.LatestRev, &it.LatestContentType); err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListRevisions(ctx context.Context, id uuid.UUID) ([]document.Revision, error) {
	query := `
		SELECT rev_number, created_at, content_type, size_bytes, sha256, object_key
		FROM request_revisions
		WHERE request_uuid = $1
		ORDER BY rev_number DESC
	`
	rows, err := s.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	defer rows.Close()

	out := []document.Revision{}
	for rows.Next() {
		r := document.Revision{DocumentID: id}
		if err := rows.Scan(&r.Rev, &r.CreatedAt, &r.ContentType, &r.SizeBytes, &r.SHA256, &r.ObjectKey); err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetRevision(ctx context.Context, id uuid.UUID, rev int) (*document.Revision, error) {
	query := `
		SELECT rev_number, created_at, content_type, size_bytes, sha256, object_key
		FROM request_revisions
		WHERE request_uuid = $1 AND rev_number = $2
	`
	r := &document.Revision{DocumentID: id}
	err := s.db.QueryRow(ctx, query, id, rev).Scan(&r.Rev, &r.CreatedAt, &r.ContentType, &r.SizeBytes, &r.SHA256, &r.ObjectKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get revision: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) LatestObject(ctx context.Context, id uuid.UUID) (*document.Object, error) {
	query := `
		SELECT rr.object_key, rr.content_type
		FROM request_revisions rr
		JOIN requests r ON r.uuid = rr.request_uuid
		WHERE r.uuid = $1 AND rr.rev_number = r.latest_rev
	`
	return s.object(ctx, query, id)
}

func (s *PostgresStore) RevisionObject(ctx context.Context, id uuid.UUID, rev int) (*document.Object, error) {
	query := `
		SELECT object_key, content_type
		FROM request_revisions
		WHERE request_uuid = $1 AND rev_number = $2
	`
	return s.object(ctx, query, id, rev)
}

func (s *PostgresStore) object(ctx context.Context, query string, args ...any) (*document.Object, error) {
	var o document.Object
	if err := s.db.QueryRow(ctx, query, args...).Scan(&o.Key, &o.ContentType); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return &o, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) InsertDocument(ctx context.Context, d *document.Document) error {
	query := `
		INSERT INTO requests (uuid, account_id, latest_rev, rev_seq)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	if err := t.tx.QueryRow(ctx, query, d.ID, d.AccountID, d.LatestRev, d.RevSeq).Scan(&d.CreatedAt, &d.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

func (t *pgTx) InsertRevision(ctx context.Context, r *document.Revision) (time.Time, error) {
	query := `
		INSERT INTO request_revisions (request_uuid, rev_number, content_type, size_bytes, sha256, object_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	var createdAt time.Time
	err := t.tx.QueryRow(ctx, query, r.DocumentID, r.Rev, r.ContentType, r.SizeBytes, r.SHA256, r.ObjectKey).Scan(&createdAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to insert revision: %w", err)
	}
	r.CreatedAt = createdAt
	return createdAt, nil
}

func (t *pgTx) LockDocument(ctx context.Context, id uuid.UUID) (*document.Document, error) {
	query := `
		SELECT uuid, account_id, latest_rev, rev_seq, created_at, updated_at
		FROM requests
		WHERE uuid = $1
		FOR UPDATE
	`
	d := &document.Document{}
	err := t.tx.QueryRow(ctx, query, id).Scan(&d.ID, &d.AccountID, &d.LatestRev, &d.RevSeq, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock request: %w", err)
	}
	return d, nil
}

func (t *pgTx) AdvanceLatest(ctx context.Context, id uuid.UUID, rev int) error {
	_, err := t.tx.Exec(ctx, `UPDATE requests SET latest_rev = $1, rev_seq = $1, updated_at = now() WHERE uuid = $2`, rev, id)
	if err != nil {
		return fmt.Errorf("failed to advance latest revision: %w", err)
	}
	return nil
}

func (t *pgTx) RevisionObjectKey(ctx context.Context, id uuid.UUID, rev int) (string, bool, error) {
	var key string
	err := t.tx.QueryRow(ctx, `SELECT object_key FROM request_revisions WHERE request_uuid = $1 AND rev_number = $2`, id, rev).Scan(&key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get object key: %w", err)
	}
	return key, true, nil
}

func (t *pgTx) DeleteRevision(ctx context.Context, id uuid.UUID, rev int) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM request_revisions WHERE request_uuid = $1 AND rev_number = $2`, id, rev); err != nil {
		return fmt.Errorf("failed to delete revision: %w", err)
	}
	return nil
}

func (t *pgTx) MaxRevision(ctx context.Context, id uuid.UUID) (int, bool, error) {
	var maxRev *int
	if err := t.tx.QueryRow(ctx, `SELECT MAX(rev_number) FROM request_revisions WHERE request_uuid = $1`, id).Scan(&maxRev); err != nil {
		return 0, false, fmt.Errorf("failed to get max revision: %w", err)
	}
	if maxRev == nil {
		return 0, false, nil
	}
	return *maxRev, true, nil
}

func (t *pgTx) SetLatest(ctx context.Context, id uuid.UUID, rev int) error {
	if _, err := t.tx.Exec(ctx, `UPDATE requests SET latest_rev = $1, updated_at = now() WHERE uuid = $2`, rev, id); err != nil {
		return fmt.Errorf("failed to set latest revision: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM requests WHERE uuid = $1`, id); err != nil {
		return fmt.Errorf("failed to delete request: %w", err)
	}
	return nil
}

func (t *pgTx) ObjectKeys(ctx context.Context, id uuid.UUID) ([]string, error) {
	rows, err := t.tx.Query(ctx, `SELECT object_key FROM request_revisions WHERE request_uuid = $1 ORDER BY rev_number`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list object keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to list object keys: %w", err)
	}
	return keys, nil
}

func (t *pgTx) DeleteRevisions(ctx context.Context, id uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM request_revisions WHERE request_uuid = $1`, id); err != nil {
		return fmt.Errorf("failed to delete revisions: %w", err)
	}
	return nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback: %w", err)
	}
	return nil
}
