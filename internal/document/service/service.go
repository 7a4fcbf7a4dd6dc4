package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/prompt-request/go-services/internal/apierror"
	"github.com/prompt-request/go-services/internal/document"
	"github.com/prompt-request/go-services/internal/document/repository"
	"github.com/prompt-request/go-services/internal/storage"
	"github.com/prompt-request/go-services/pkg/logger"
	"github.com/prompt-request/go-services/pkg/metrics"
	"golang.org/x/time/rate"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Service defines the document operations used by the handler layer. Every
// method acts on behalf of accountID; documents owned by someone else are
// reported as not found.
type Service interface {
	Create(ctx context.Context, accountID int64, contentType string, body []byte) (*document.Created, error)
	Update(ctx context.Context, accountID int64, id uuid.UUID, contentType string, body []byte) (*document.Created, error)
	List(ctx context.Context, accountID int64, limit, offset int) ([]document.Summary, error)
	ListRevisions(ctx context.Context, accountID int64, id uuid.UUID) ([]document.Revision, error)
	GetRevision(ctx context.Context, accountID int64, id uuid.UUID, rev int) (*document.Revision, error)
	DeleteRevision(ctx context.Context, accountID int64, id uuid.UUID, rev int) error
	DeleteAll(ctx context.Context, accountID int64, id uuid.UUID) error
}

// Coordinator keeps the blob store and the metadata store consistent: blobs
// are written before the metadata commit that references them and deleted
// after the commit that stops referencing them. A metadata failure after a
// blob write triggers a best-effort delete of that blob.
type Coordinator struct {
	store       repository.Store
	blobs       storage.ObjectStore
	deleteLimit rate.Limit
	deleteBurst int

	// purges tracks background blob purges started by DeleteAll
	purges sync.WaitGroup
}

var _ Service = (*Coordinator)(nil)

type Option func(*Coordinator)

// WithDeleteRate paces the blob purge of DeleteAll to rps deletions per
// second. rps <= 0 disables pacing.
func WithDeleteRate(rps float64) Option {
	return func(c *Coordinator) {
		if rps <= 0 {
			c.deleteLimit, c.deleteBurst = rate.Inf, 1
			return
		}
		c.deleteLimit = rate.Limit(rps)
		c.deleteBurst = max(1, int(rps))
	}
}

func NewCoordinator(store repository.Store, blobs storage.ObjectStore, opts ...Option) *Coordinator {
	c := &Coordinator{store: store, blobs: blobs, deleteLimit: rate.Inf, deleteBurst: 1}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NormalizePage applies the list defaults and bounds. nil means "not given".
func NormalizePage(limit, offset *int) (int, int) {
	l, o := DefaultLimit, 0
	if limit != nil {
		l = min(max(*limit, 1), MaxLimit)
	}
	if offset != nil {
		o = max(*offset, 0)
	}
	return l, o
}

func observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apierror.As(err).Kind)
	}
	metrics.RevisionOps.WithLabelValues(op, outcome).Inc()
}

func dbErr(err error) error {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return err
	}
	return apierror.Database(err)
}

func storageErr(err error) error {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return err
	}
	return apierror.Storage(err)
}

func validateUpload(contentType string, body []byte) (document.ContentKind, error) {
	if len(body) > document.MaxUploadBytes {
		return 0, apierror.PayloadTooLarge()
	}
	return document.ParseContentType(contentType)
}

// deleteBlob removes a blob that no committed metadata references. Failures
// are logged and counted, never returned.
func (c *Coordinator) deleteBlob(ctx context.Context, reason, key string) {
	if err := c.blobs.Delete(ctx, key); err != nil {
		metrics.BlobCleanups.WithLabelValues(reason, "error").Inc()
		logger.Warn("blob cleanup failed", "reason", reason, "key", key, "err", err)
		return
	}
	metrics.BlobCleanups.WithLabelValues(reason, "ok").Inc()
}

func (c *Coordinator) Create(ctx context.Context, accountID int64, contentType string, body []byte) (res *document.Created, err error) {
	defer func() { observe("create", err) }()

	kind, err := validateUpload(contentType, body)
	if err != nil {
		return nil, err
	}
	sum := document.Checksum(body)
	id := uuid.New()
	key := document.ObjectKey(id, 1, kind)

	if err := c.blobs.Put(ctx, key, body, kind.CanonicalType()); err != nil {
		return nil, storageErr(err)
	}

	rev := &document.Revision{
		DocumentID:  id,
		Rev:         1,
		ContentType: kind.CanonicalType(),
		SizeBytes:   len(body),
		SHA256:      sum,
		ObjectKey:   key,
	}
	if err := c.commitNew(ctx, accountID, rev); err != nil {
		c.deleteBlob(ctx, "create", key)
		return nil, dbErr(err)
	}
	return created(rev), nil
}

func (c *Coordinator) commitNew(ctx context.Context, accountID int64, rev *document.Revision) error {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	doc := &document.Document{ID: rev.DocumentID, AccountID: accountID, LatestRev: 1, RevSeq: 1}
	if err := tx.InsertDocument(ctx, doc); err != nil {
		return err
	}
	if _, err := tx.InsertRevision(ctx, rev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (c *Coordinator) Update(ctx context.Context, accountID int64, id uuid.UUID, contentType string, body []byte) (res *document.Created, err error) {
	defer func() { observe("update", err) }()

	kind, err := validateUpload(contentType, body)
	if err != nil {
		return nil, err
	}
	sum := document.Checksum(body)

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, dbErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	doc, err := tx.LockDocument(ctx, id)
	if err != nil {
		return nil, dbErr(err)
	}
	if doc == nil || doc.AccountID != accountID {
		return nil, apierror.NotFound()
	}

	// revision numbers come from rev_seq so a number freed by a delete is
	// never minted again
	next := doc.RevSeq + 1
	key := document.ObjectKey(id, next, kind)
	if err := c.blobs.Put(ctx, key, body, kind.CanonicalType()); err != nil {
		return nil, storageErr(err)
	}

	rev := &document.Revision{
		DocumentID:  id,
		Rev:         next,
		ContentType: kind.CanonicalType(),
		SizeBytes:   len(body),
		SHA256:      sum,
		ObjectKey:   key,
	}
	err = func() error {
		if _, err := tx.InsertRevision(ctx, rev); err != nil {
			return err
		}
		if err := tx.AdvanceLatest(ctx, id, next); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}()
	if err != nil {
		_ = tx.Rollback(ctx)
		c.deleteBlob(ctx, "update", key)
		return nil, dbErr(err)
	}
	return created(rev), nil
}

func created(r *document.Revision) *document.Created {
	return &document.Created{
		ID:          r.DocumentID,
		Rev:         r.Rev,
		ContentType: r.ContentType,
		SizeBytes:   r.SizeBytes,
		SHA256:      r.SHA256,
		CreatedAt:   r.CreatedAt,
	}
}

func (c *Coordinator) List(ctx context.Context, accountID int64, limit, offset int) ([]document.Summary, error) {
	limit, offset = NormalizePage(&limit, &offset)
	items, err := c.store.List(ctx, accountID, limit, offset)
	if err != nil {
		return nil, dbErr(err)
	}
	return items, nil
}

func (c *Coordinator) ensureOwner(ctx context.Context, accountID int64, id uuid.UUID) error {
	owned, err := c.store.OwnedBy(ctx, id, accountID)
	if err != nil {
		return dbErr(err)
	}
	if !owned {
		return apierror.NotFound()
	}
	return nil
}

func (c *Coordinator) ListRevisions(ctx context.Context, accountID int64, id uuid.UUID) ([]document.Revision, error) {
	if err := c.ensureOwner(ctx, accountID, id); err != nil {
		return nil, err
	}
	revs, err := c.store.ListRevisions(ctx, id)
	if err != nil {
		return nil, dbErr(err)
	}
	return revs, nil
}

func (c *Coordinator) GetRevision(ctx context.Context, accountID int64, id uuid.UUID, rev int) (*document.Revision, error) {
	if rev < 1 {
		return nil, apierror.BadRequest("rev must be >= 1")
	}
	if err := c.ensureOwner(ctx, accountID, id); err != nil {
		return nil, err
	}
	r, err := c.store.GetRevision(ctx, id, rev)
	if err != nil {
		return nil, dbErr(err)
	}
	if r == nil {
		return nil, apierror.NotFound()
	}
	return r, nil
}

func (c *Coordinator) DeleteRevision(ctx context.Context, accountID int64, id uuid.UUID, rev int) (err error) {
	defer func() { observe("delete_revision", err) }()

	if rev < 1 {
		return apierror.BadRequest("rev must be >= 1")
	}

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return dbErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	doc, err := tx.LockDocument(ctx, id)
	if err != nil {
		return dbErr(err)
	}
	if doc == nil || doc.AccountID != accountID {
		return apierror.NotFound()
	}
	key, ok, err := tx.RevisionObjectKey(ctx, id, rev)
	if err != nil {
		return dbErr(err)
	}
	if !ok {
		return apierror.NotFound()
	}
	if err := tx.DeleteRevision(ctx, id, rev); err != nil {
		return dbErr(err)
	}
	maxRev, remaining, err := tx.MaxRevision(ctx, id)
	if err != nil {
		return dbErr(err)
	}
	if remaining {
		err = tx.SetLatest(ctx, id, maxRev)
	} else {
		err = tx.DeleteDocument(ctx, id)
	}
	if err != nil {
		return dbErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return dbErr(err)
	}

	c.deleteBlob(ctx, "delete_revision", key)
	return nil
}

func (c *Coordinator) DeleteAll(ctx context.Context, accountID int64, id uuid.UUID) (err error) {
	defer func() { observe("delete_all", err) }()

	keys, err := c.detachAll(ctx, accountID, id)
	if err != nil {
		return err
	}
	// the metadata is gone; the paced purge must not hold the response
	c.purges.Add(1)
	go func() {
		defer c.purges.Done()
		if merr := c.purge(context.WithoutCancel(ctx), keys); merr != nil {
			logger.Warnf("request %s deleted but %d blob(s) remain: %v", id, len(merr.Errors), merr)
		}
	}()
	return nil
}

// Wait blocks until every background purge has finished or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.purges.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) detachAll(ctx context.Context, accountID int64, id uuid.UUID) ([]string, error) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, dbErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	doc, err := tx.LockDocument(ctx, id)
	if err != nil {
		return nil, dbErr(err)
	}
	if doc == nil || doc.AccountID != accountID {
		return nil, apierror.NotFound()
	}
	keys, err := tx.ObjectKeys(ctx, id)
	if err != nil {
		return nil, dbErr(err)
	}
	if err := tx.DeleteRevisions(ctx, id); err != nil {
		return nil, dbErr(err)
	}
	if err := tx.DeleteDocument(ctx, id); err != nil {
		return nil, dbErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, dbErr(err)
	}
	return keys, nil
}

// purge deletes every key, paced by the delete rate. It keeps going after a
// failure and returns all failures together, nil when there were none.
func (c *Coordinator) purge(ctx context.Context, keys []string) *multierror.Error {
	lim := rate.NewLimiter(c.deleteLimit, c.deleteBurst)
	var result *multierror.Error
	for _, key := range keys {
		if err := lim.Wait(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", key, err))
			continue
		}
		if err := c.blobs.Delete(ctx, key); err != nil {
			metrics.BlobCleanups.WithLabelValues("delete_all", "error").Inc()
			logger.Warn("blob cleanup failed", "reason", "delete_all", "key", key, "err", err)
			result = multierror.Append(result, fmt.Errorf("%s: %w", key, err))
			continue
		}
		metrics.BlobCleanups.WithLabelValues("delete_all", "ok").Inc()
	}
	return result
}
