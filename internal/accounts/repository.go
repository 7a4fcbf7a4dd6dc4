package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository defines persistence operations for accounts
type Repository interface {
	Create(ctx context.Context, keyHash string) (int64, error)
	// FindByHash returns nil, nil when no account has the hash.
	FindByHash(ctx context.Context, keyHash string) (*Account, error)
	TouchLastUsed(ctx context.Context, id int64) error
}

// Querier is the subset of pgxpool.Pool used by PostgresRepository.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements Repository on the accounts table
type PostgresRepository struct {
	db Querier
}

func NewPostgresRepository(db Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, keyHash string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO accounts (api_key_hash) VALUES ($1) RETURNING id`, keyHash).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert account: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) FindByHash(ctx context.Context, keyHash string) (*Account, error) {
	var a Account
	err := r.db.QueryRow(ctx, `
		SELECT id, api_key_hash, created_at, last_used_at
		FROM accounts
		WHERE api_key_hash = $1
	`, keyHash).Scan(&a.ID, &a.KeyHash, &a.CreatedAt, &a.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return &a, nil
}

func (r *PostgresRepository) TouchLastUsed(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, `UPDATE accounts SET last_used_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to touch account: %w", err)
	}
	return nil
}
