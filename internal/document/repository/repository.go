package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prompt-request/go-services/internal/document"
)

var (
	ErrTxDone = errors.New("transaction already finished")
)

// Store is the metadata side of the dual write. Read methods run outside a
// transaction; mutations go through Begin.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	// OwnedBy reports whether the document exists and belongs to accountID.
	OwnedBy(ctx context.Context, id uuid.UUID, accountID int64) (bool, error)
	// List returns the account's documents, newest first.
	List(ctx context.Context, accountID int64, limit, offset int) ([]document.Summary, error)
	// ListRevisions returns every revision of the document, newest first.
	ListRevisions(ctx context.Context, id uuid.UUID) ([]document.Revision, error)
	// GetRevision returns nil when the revision does not exist.
	GetRevision(ctx context.Context, id uuid.UUID, rev int) (*document.Revision, error)
	// LatestObject returns the blob of the revision at latest_rev, nil when absent.
	LatestObject(ctx context.Context, id uuid.UUID) (*document.Object, error)
	// RevisionObject returns the blob of a pinned revision, nil when absent.
	RevisionObject(ctx context.Context, id uuid.UUID, rev int) (*document.Object, error)
}

// Tx is one metadata transaction. Rollback after Commit is a no-op.
type Tx interface {
	InsertDocument(ctx context.Context, d *document.Document) error
	// InsertRevision stores r and returns the revision's creation time.
	InsertRevision(ctx context.Context, r *document.Revision) (time.Time, error)
	// LockDocument row-locks the document until the transaction ends. It
	// returns nil when the document does not exist.
	LockDocument(ctx context.Context, id uuid.UUID) (*document.Document, error)
	// AdvanceLatest sets latest_rev and rev_seq to rev and bumps updated_at.
	AdvanceLatest(ctx context.Context, id uuid.UUID, rev int) error
	// RevisionObjectKey returns the blob key of a revision; ok is false when
	// the revision does not exist.
	RevisionObjectKey(ctx context.Context, id uuid.UUID, rev int) (key string, ok bool, err error)
	DeleteRevision(ctx context.Context, id uuid.UUID, rev int) error
	// MaxRevision returns the highest remaining revision number; ok is false
	// when no revision is left.
	MaxRevision(ctx context.Context, id uuid.UUID) (rev int, ok bool, err error)
	// SetLatest points latest_rev at rev and bumps updated_at.
	SetLatest(ctx context.Context, id uuid.UUID, rev int) error
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	ObjectKeys(ctx context.Context, id uuid.UUID) ([]string, error)
	DeleteRevisions(ctx context.Context, id uuid.UUID) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
