package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prompt-request/go-services/internal/document"
)

// MemoryStore is an in-memory Store used by tests and the dev server.
// Transactions are serialized by a store-wide lock; a transaction works on a
// copy of the committed state which replaces it on Commit.
type MemoryStore struct {
	txMu sync.Mutex // held for the life of a transaction

	mu    sync.RWMutex
	state *memState
	fail  map[string]error
	nowFn func() time.Time
}

type memDoc struct {
	doc document.Document
	seq int64
}

type memState struct {
	seq  int64
	docs map[uuid.UUID]*memDoc
	revs map[uuid.UUID]map[int]document.Revision
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{docs: map[uuid.UUID]*memDoc{}, revs: map[uuid.UUID]map[int]document.Revision{}},
		fail:  map[string]error{},
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// FailOn makes the named operation (a Store or Tx method name, e.g.
// "InsertRevision" or "Commit") return err until cleared with a nil err.
func (m *MemoryStore) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, op)
		return
	}
	m.fail[op] = err
}

func (m *MemoryStore) failure(op string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err, ok := m.fail[op]; ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *memState) clone() *memState {
	out := &memState{
		seq:  s.seq,
		docs: make(map[uuid.UUID]*memDoc, len(s.docs)),
		revs: make(map[uuid.UUID]map[int]document.Revision, len(s.revs)),
	}
	for id, d := range s.docs {
		cp := *d
		out.docs[id] = &cp
	}
	for id, revs := range s.revs {
		m := make(map[int]document.Revision, len(revs))
		for n, r := range revs {
			m[n] = r
		}
		out.revs[id] = m
	}
	return out
}

// Documents returns the number of committed documents.
func (m *MemoryStore) Documents() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state.docs)
}

// Document returns a committed document row, nil when absent.
func (m *MemoryStore) Document(id uuid.UUID) *document.Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.state.docs[id]
	if !ok {
		return nil
	}
	cp := d.doc
	return &cp
}

func (m *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	if err := m.failure("Begin"); err != nil {
		return nil, err
	}
	m.txMu.Lock()
	if err := ctx.Err(); err != nil {
		m.txMu.Unlock()
		return nil, err
	}
	m.mu.RLock()
	work := m.state.clone()
	m.mu.RUnlock()
	return &memTx{store: m, work: work}, nil
}

func (m *MemoryStore) OwnedBy(_ context.Context, id uuid.UUID, accountID int64) (bool, error) {
	if err := m.failure("OwnedBy"); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.state.docs[id]
	return ok && d.doc.AccountID == accountID, nil
}

func (m *MemoryStore) List(_ context.Context, accountID int64, limit, offset int) ([]document.Summary, error) {
	if err := m.failure("List"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var owned []*memDoc
	for _, d := range m.state.docs {
		if d.doc.AccountID == accountID {
			owned = append(owned, d)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].doc.CreatedAt.Equal(owned[j].doc.CreatedAt) {
			return owned[i].doc.CreatedAt.After(owned[j].doc.CreatedAt)
		}
		return owned[i].seq > owned[j].seq
	})

	out := []document.Summary{}
	for i := offset; i < len(owned) && len(out) < limit; i++ {
		d := owned[i].doc
		latest, ok := m.state.revs[d.ID][d.LatestRev]
		if !ok {
			continue
		}
		out = append(out, document.Summary{
			ID:                d.ID,
			CreatedAt:         d.CreatedAt,
			UpdatedAt:         d.UpdatedAt,
			LatestRev:         d.LatestRev,
			LatestContentType: latest.ContentType,
		})
	}
	return out, nil
}

func (m *MemoryStore) ListRevisions(_ context.Context, id uuid.UUID) ([]document.Revision, error) {
	if err := m.failure("ListRevisions"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []document.Revision{}
	for _, r := range m.state.revs[id] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rev > out[j].Rev })
	return out, nil
}

func (m *MemoryStore) GetRevision(_ context.Context, id uuid.UUID, rev int) (*document.Revision, error) {
	if err := m.failure("GetRevision"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.state.revs[id][rev]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *MemoryStore) LatestObject(_ context.Context, id uuid.UUID) (*document.Object, error) {
	if err := m.failure("LatestObject"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.state.docs[id]
	if !ok {
		return nil, nil
	}
	r, ok := m.state.revs[id][d.doc.LatestRev]
	if !ok {
		return nil, nil
	}
	return &document.Object{Key: r.ObjectKey, ContentType: r.ContentType}, nil
}

func (m *MemoryStore) RevisionObject(_ context.Context, id uuid.UUID, rev int) (*document.Object, error) {
	if err := m.failure("RevisionObject"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.state.revs[id][rev]
	if !ok {
		return nil, nil
	}
	return &document.Object{Key: r.ObjectKey, ContentType: r.ContentType}, nil
}

type memTx struct {
	store *MemoryStore
	work  *memState
	done  bool
}

func (t *memTx) check(op string) error {
	if t.done {
		return ErrTxDone
	}
	return t.store.failure(op)
}

func (t *memTx) finish() {
	t.done = true
	t.work = nil
	t.store.txMu.Unlock()
}

func (t *memTx) InsertDocument(_ context.Context, d *document.Document) error {
	if err := t.check("InsertDocument"); err != nil {
		return err
	}
	if _, ok := t.work.docs[d.ID]; ok {
		return fmt.Errorf("duplicate request %s", d.ID)
	}
	now := t.store.nowFn()
	d.CreatedAt, d.UpdatedAt = now, now
	t.work.seq++
	t.work.docs[d.ID] = &memDoc{doc: *d, seq: t.work.seq}
	return nil
}

func (t *memTx) InsertRevision(_ context.Context, r *document.Revision) (time.Time, error) {
	if err := t.check("InsertRevision"); err != nil {
		return time.Time{}, err
	}
	if _, ok := t.work.docs[r.DocumentID]; !ok {
		return time.Time{}, fmt.Errorf("request %s does not exist", r.DocumentID)
	}
	revs := t.work.revs[r.DocumentID]
	if revs == nil {
		revs = map[int]document.Revision{}
		t.work.revs[r.DocumentID] = revs
	}
	if _, ok := revs[r.Rev]; ok {
		return time.Time{}, fmt.Errorf("duplicate revision %d of %s", r.Rev, r.DocumentID)
	}
	r.CreatedAt = t.store.nowFn()
	revs[r.Rev] = *r
	return r.CreatedAt, nil
}

func (t *memTx) LockDocument(_ context.Context, id uuid.UUID) (*document.Document, error) {
	if err := t.check("LockDocument"); err != nil {
		return nil, err
	}
	d, ok := t.work.docs[id]
	if !ok {
		return nil, nil
	}
	cp := d.doc
	return &cp, nil
}

func (t *memTx) AdvanceLatest(_ context.Context, id uuid.UUID, rev int) error {
	if err := t.check("AdvanceLatest"); err != nil {
		return err
	}
	if d, ok := t.work.docs[id]; ok {
		d.doc.LatestRev = rev
		d.doc.RevSeq = rev
		d.doc.UpdatedAt = t.store.nowFn()
	}
	return nil
}

func (t *memTx) RevisionObjectKey(_ context.Context, id uuid.UUID, rev int) (string, bool, error) {
	if err := t.check("RevisionObjectKey"); err != nil {
		return "", false, err
	}
	r, ok := t.work.revs[id][rev]
	return r.ObjectKey, ok, nil
}

func (t *memTx) DeleteRevision(_ context.Context, id uuid.UUID, rev int) error {
	if err := t.check("DeleteRevision"); err != nil {
		return err
	}
	delete(t.work.revs[id], rev)
	return nil
}

func (t *memTx) MaxRevision(_ context.Context, id uuid.UUID) (int, bool, error) {
	if err := t.check("MaxRevision"); err != nil {
		return 0, false, err
	}
	maxRev, found := 0, false
	for n := range t.work.revs[id] {
		if !found || n > maxRev {
			maxRev, found = n, true
		}
	}
	return maxRev, found, nil
}

func (t *memTx) SetLatest(_ context.Context, id uuid.UUID, rev int) error {
	if err := t.check("SetLatest"); err != nil {
		return err
	}
	if d, ok := t.work.docs[id]; ok {
		d.doc.LatestRev = rev
		d.doc.UpdatedAt = t.store.nowFn()
	}
	return nil
}

func (t *memTx) DeleteDocument(_ context.Context, id uuid.UUID) error {
	if err := t.check("DeleteDocument"); err != nil {
		return err
	}
	if len(t.work.revs[id]) > 0 {
		return fmt.Errorf("request %s still has revisions", id)
	}
	delete(t.work.docs, id)
	delete(t.work.revs, id)
	return nil
}

func (t *memTx) ObjectKeys(_ context.Context, id uuid.UUID) ([]string, error) {
	if err := t.check("ObjectKeys"); err != nil {
		return nil, err
	}
	revs := t.work.revs[id]
	nums := make([]int, 0, len(revs))
	for n := range revs {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	keys := make([]string, 0, len(nums))
	for _, n := range nums {
		keys = append(keys, revs[n].ObjectKey)
	}
	return keys, nil
}

func (t *memTx) DeleteRevisions(_ context.Context, id uuid.UUID) error {
	if err := t.check("DeleteRevisions"); err != nil {
		return err
	}
	delete(t.work.revs, id)
	return nil
}

func (t *memTx) Commit(_ context.Context) error {
	if t.done {
		return ErrTxDone
	}
	if err := t.store.failure("Commit"); err != nil {
		t.finish()
		return err
	}
	t.store.mu.Lock()
	t.store.state = t.work
	t.store.mu.Unlock()
	t.finish()
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}
