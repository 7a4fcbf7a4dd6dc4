//go:build integration

package repository

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/prompt-request/go-services/internal/config"
	"github.com/prompt-request/go-services/internal/database"
	"github.com/prompt-request/go-services/internal/document"
	"github.com/stretchr/testify/require"
)

// Run with: TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/document/repository/
func TestPostgresStoreAgainstDatabase(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.ConnectPostgres(ctx, config.DatabaseConfig{URL: url})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.EnsureSchema(ctx, pool))

	var accountID int64
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO accounts (api_key_hash) VALUES ($1) RETURNING id`, uuid.NewString()).Scan(&accountID))

	s := NewPostgresStore(pool)
	id := uuid.New()
	rev := func(n int) *document.Revision {
		return &document.Revision{DocumentID: id, Rev: n, ContentType: "text/markdown", SizeBytes: 1, SHA256: "00", ObjectKey: document.ObjectKey(id, n, document.Markdown)}
	}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertDocument(ctx, &document.Document{ID: id, AccountID: accountID, LatestRev: 1, RevSeq: 1}))
	_, err = tx.InsertRevision(ctx, rev(1))
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	for n := 2; n <= 3; n++ {
		tx, err = s.Begin(ctx)
		require.NoError(t, err)
		d, err := tx.LockDocument(ctx, id)
		require.NoError(t, err)
		require.Equal(t, n-1, d.RevSeq)
		_, err = tx.InsertRevision(ctx, rev(d.RevSeq+1))
		require.NoError(t, err)
		require.NoError(t, tx.AdvanceLatest(ctx, id, d.RevSeq+1))
		require.NoError(t, tx.Commit(ctx))
	}

	// drop the newest revision; the counter must not move back
	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.DeleteRevision(ctx, id, 3))
	maxRev, ok, err := tx.MaxRevision(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, maxRev)
	require.NoError(t, tx.SetLatest(ctx, id, maxRev))
	require.NoError(t, tx.Commit(ctx))

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	d, err := tx.LockDocument(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, d.LatestRev)
	require.Equal(t, 3, d.RevSeq)
	require.NoError(t, tx.Rollback(ctx))

	items, err := s.List(ctx, accountID, 10, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 2, items[0].LatestRev)
	require.Equal(t, "text/markdown", items[0].LatestContentType)

	revs, err := s.ListRevisions(ctx, id)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	require.Equal(t, 2, revs[0].Rev)

	obj, err := s.LatestObject(ctx, id)
	require.NoError(t, err)
	require.Equal(t, document.ObjectKey(id, 2, document.Markdown), obj.Key)

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	keys, err := tx.ObjectKeys(ctx, id)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.NoError(t, tx.DeleteRevisions(ctx, id))
	require.NoError(t, tx.DeleteDocument(ctx, id))
	require.NoError(t, tx.Commit(ctx))

	owned, err := s.OwnedBy(ctx, id, accountID)
	require.NoError(t, err)
	require.False(t, owned)
}
