// Package memory provides an in-process Storage backend. It backs the
// test suite and single-process deployments; production deployments wire
// a SQL-backed implementation behind the same interface.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/schedcu/core/internal/storage"
	"github.com/schedcu/core/internal/types"
)

// Store is an in-memory implementation of storage.Storage. All entities
// are copied on read and write so callers can never alias internal state.
type Store struct {
	mu sync.RWMutex

	people        map[uuid.UUID]*types.Person
	rotations     map[uuid.UUID]*types.RotationTemplate
	blocks        map[uuid.UUID]*types.Block
	assignments   map[uuid.UUID]*types.Assignment
	assignByKey   map[types.AssignmentKey]uuid.UUID
	absences      map[uuid.UUID]*types.Absence
	batches       map[uuid.UUID]*types.ImportBatch
	stagedRows    map[uuid.UUID]*types.ImportStagedAssignment
	subscriptions map[string]*types.CalendarSubscription
	endpoints     map[string]*types.WebhookEndpoint
	deliveries    map[string]*types.WebhookDelivery

	batchLocks sync.Map // uuid.UUID -> *sync.Mutex
	txnID      atomic.Uint64
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		people:        make(map[uuid.UUID]*types.Person),
		rotations:     make(map[uuid.UUID]*types.RotationTemplate),
		blocks:        make(map[uuid.UUID]*types.Block),
		assignments:   make(map[uuid.UUID]*types.Assignment),
		assignByKey:   make(map[types.AssignmentKey]uuid.UUID),
		absences:      make(map[uuid.UUID]*types.Absence),
		batches:       make(map[uuid.UUID]*types.ImportBatch),
		stagedRows:    make(map[uuid.UUID]*types.ImportStagedAssignment),
		subscriptions: make(map[string]*types.CalendarSubscription),
		endpoints:     make(map[string]*types.WebhookEndpoint),
		deliveries:    make(map[string]*types.WebhookDelivery),
	}
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func inRange(t, start, end time.Time) bool {
	d := day(t)
	return !d.Before(day(start)) && !d.After(day(end))
}

// --- People ---

func (s *Store) GetPerson(_ context.Context, id uuid.UUID) (*types.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.people[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListPeople(_ context.Context) ([]*types.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Person, 0, len(s.people))
	for _, p := range s.people {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) PutPerson(_ context.Context, p *types.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.people[p.ID] = &cp
	return nil
}

// --- Rotation templates ---

func (s *Store) GetRotationTemplate(_ context.Context, id uuid.UUID) (*types.RotationTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rotations[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) ListRotationTemplates(_ context.Context, includeArchived bool) ([]*types.RotationTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.RotationTemplate, 0, len(s.rotations))
	for _, r := range s.rotations {
		if r.IsArchived && !includeArchived {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) PutRotationTemplate(_ context.Context, r *types.RotationTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rotations[r.ID] = &cp
	return nil
}

// --- Blocks ---

func (s *Store) GetBlock(_ context.Context, id uuid.UUID) (*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getBlockLocked(id)
}

func (s *Store) getBlockLocked(id uuid.UUID) (*types.Block, error) {
	b, ok := s.blocks[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *Store) GetBlockByDateSlot(_ context.Context, date time.Time, slot types.TimeOfDay) (*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getBlockByDateSlotLocked(date, slot)
}

func (s *Store) getBlockByDateSlotLocked(date time.Time, slot types.TimeOfDay) (*types.Block, error) {
	for _, b := range s.blocks {
		if day(b.Date).Equal(day(date)) && b.TimeOfDay == slot {
			cp := *b
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) ListBlocksInRange(_ context.Context, start, end time.Time) ([]*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Block
	for _, b := range s.blocks {
		if inRange(b.Date, start, end) {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].BlockNumber < out[j].BlockNumber
	})
	return out, nil
}

func (s *Store) PutBlock(_ context.Context, b *types.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putBlockLocked(b)
}

func (s *Store) putBlockLocked(b *types.Block) error {
	cp := *b
	s.blocks[b.ID] = &cp
	return nil
}

// --- Assignments ---

func (s *Store) CreateAssignment(_ context.Context, a *types.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createAssignmentLocked(a)
}

func (s *Store) createAssignmentLocked(a *types.Assignment) error {
	if _, exists := s.assignByKey[a.Key()]; exists {
		return storage.ErrConflict
	}
	cp := *a
	s.assignments[a.ID] = &cp
	s.assignByKey[a.Key()] = a.ID
	return nil
}

func (s *Store) GetAssignment(_ context.Context, id uuid.UUID) (*types.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) GetAssignmentByKey(_ context.Context, blockID, personID uuid.UUID) (*types.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAssignmentByKeyLocked(blockID, personID)
}

func (s *Store) getAssignmentByKeyLocked(blockID, personID uuid.UUID) (*types.Assignment, error) {
	id, ok := s.assignByKey[types.AssignmentKey{BlockID: blockID, PersonID: personID}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s.assignments[id]
	return &cp, nil
}

func (s *Store) ListAssignmentsInRange(_ context.Context, start, end time.Time) ([]*types.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Assignment
	for _, a := range s.assignments {
		b, ok := s.blocks[a.BlockID]
		if !ok || !inRange(b.Date, start, end) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *Store) ListAssignmentsByBlock(_ context.Context, blockID uuid.UUID) ([]*types.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Assignment
	for _, a := range s.assignments {
		if a.BlockID == blockID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) UpdateAssignment(_ context.Context, a *types.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateAssignmentLocked(a)
}

func (s *Store) updateAssignmentLocked(a *types.Assignment) error {
	old, ok := s.assignments[a.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if old.Key() != a.Key() {
		if _, taken := s.assignByKey[a.Key()]; taken {
			return storage.ErrConflict
		}
		delete(s.assignByKey, old.Key())
		s.assignByKey[a.Key()] = a.ID
	}
	cp := *a
	s.assignments[a.ID] = &cp
	return nil
}

func (s *Store) DeleteAssignment(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteAssignmentLocked(id)
}

func (s *Store) deleteAssignmentLocked(id uuid.UUID) error {
	a, ok := s.assignments[id]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.assignByKey, a.Key())
	delete(s.assignments, id)
	return nil
}

// --- Absences ---

func (s *Store) ListAbsencesByPerson(_ context.Context, personID uuid.UUID) ([]*types.Absence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Absence
	for _, a := range s.absences {
		if a.PersonID == personID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (s *Store) ListAbsencesInRange(_ context.Context, start, end time.Time) ([]*types.Absence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Absence
	for _, a := range s.absences {
		// Interval overlap: absence [start_date, end_date] intersects [start, end].
		if !day(a.EndDate).Before(day(start)) && !day(a.StartDate).After(day(end)) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (s *Store) PutAbsence(_ context.Context, a *types.Absence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.absences[a.ID] = &cp
	return nil
}

// --- Import batches ---

func (s *Store) GetImportBatch(_ context.Context, id uuid.UUID) (*types.ImportBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *Store) FindActiveBatchByHash(_ context.Context, fileHash string) (*types.ImportBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.batches {
		if b.FileHash == fileHash && b.Active() {
			cp := *b
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) ListStagedRows(_ context.Context, batchID uuid.UUID) ([]*types.ImportStagedAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listStagedRowsLocked(batchID)
}

func (s *Store) listStagedRowsLocked(batchID uuid.UUID) ([]*types.ImportStagedAssignment, error) {
	var out []*types.ImportStagedAssignment
	for _, r := range s.stagedRows {
		if r.BatchID == batchID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowNumber < out[j].RowNumber })
	return out, nil
}

// --- Calendar subscriptions ---

func (s *Store) PutSubscription(_ context.Context, sub *types.CalendarSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sub
	s.subscriptions[sub.Token] = &cp
	return nil
}

func (s *Store) GetSubscriptionByToken(_ context.Context, token string) (*types.CalendarSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[token]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

// --- Webhooks ---

func (s *Store) GetWebhookEndpoint(_ context.Context, id string) (*types.WebhookEndpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.endpoints[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *Store) PutWebhookEndpoint(_ context.Context, e *types.WebhookEndpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.endpoints[e.ID] = &cp
	return nil
}

func (s *Store) RecordWebhookDelivery(_ context.Context, d *types.WebhookDelivery) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.deliveries[d.DeliveryID]; seen {
		return true, nil
	}
	cp := *d
	s.deliveries[d.DeliveryID] = &cp
	return false, nil
}

// --- Transactional scope ---

// RunInTransaction holds the store's write lock for the whole scope and
// restores a snapshot of the mutable tables if fn returns an error.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshotLocked()
	tx := &memTx{store: s, ctx: ctx}
	if err := fn(tx); err != nil {
		s.restoreLocked(snap)
		return err
	}
	s.txnID.Add(1)
	return nil
}

type snapshot struct {
	blocks      map[uuid.UUID]*types.Block
	assignments map[uuid.UUID]*types.Assignment
	assignByKey map[types.AssignmentKey]uuid.UUID
	batches     map[uuid.UUID]*types.ImportBatch
	stagedRows  map[uuid.UUID]*types.ImportStagedAssignment
}

func (s *Store) snapshotLocked() *snapshot {
	snap := &snapshot{
		blocks:      make(map[uuid.UUID]*types.Block, len(s.blocks)),
		assignments: make(map[uuid.UUID]*types.Assignment, len(s.assignments)),
		assignByKey: make(map[types.AssignmentKey]uuid.UUID, len(s.assignByKey)),
		batches:     make(map[uuid.UUID]*types.ImportBatch, len(s.batches)),
		stagedRows:  make(map[uuid.UUID]*types.ImportStagedAssignment, len(s.stagedRows)),
	}
	for k, v := range s.blocks {
		cp := *v
		snap.blocks[k] = &cp
	}
	for k, v := range s.assignments {
		cp := *v
		snap.assignments[k] = &cp
	}
	for k, v := range s.assignByKey {
		snap.assignByKey[k] = v
	}
	for k, v := range s.batches {
		cp := *v
		snap.batches[k] = &cp
	}
	for k, v := range s.stagedRows {
		cp := *v
		snap.stagedRows[k] = &cp
	}
	return snap
}

func (s *Store) restoreLocked(snap *snapshot) {
	s.blocks = snap.blocks
	s.assignments = snap.assignments
	s.assignByKey = snap.assignByKey
	s.batches = snap.batches
	s.stagedRows = snap.stagedRows
}

// memTx operates on the already-locked store. Its methods must not take
// the store mutex again.
type memTx struct {
	store *Store
	ctx   context.Context
}

func (t *memTx) GetBlockByDateSlot(_ context.Context, date time.Time, slot types.TimeOfDay) (*types.Block, error) {
	return t.store.getBlockByDateSlotLocked(date, slot)
}

func (t *memTx) PutBlock(_ context.Context, b *types.Block) error {
	return t.store.putBlockLocked(b)
}

func (t *memTx) CreateAssignment(_ context.Context, a *types.Assignment) error {
	return t.store.createAssignmentLocked(a)
}

func (t *memTx) UpdateAssignment(_ context.Context, a *types.Assignment) error {
	return t.store.updateAssignmentLocked(a)
}

func (t *memTx) DeleteAssignment(_ context.Context, id uuid.UUID) error {
	return t.store.deleteAssignmentLocked(id)
}

func (t *memTx) GetAssignmentByKey(_ context.Context, blockID, personID uuid.UUID) (*types.Assignment, error) {
	return t.store.getAssignmentByKeyLocked(blockID, personID)
}

func (t *memTx) CreateImportBatch(_ context.Context, b *types.ImportBatch) error {
	cp := *b
	t.store.batches[b.ID] = &cp
	return nil
}

func (t *memTx) UpdateImportBatch(_ context.Context, b *types.ImportBatch) error {
	if _, ok := t.store.batches[b.ID]; !ok {
		return storage.ErrNotFound
	}
	cp := *b
	t.store.batches[b.ID] = &cp
	return nil
}

func (t *memTx) CreateStagedRows(_ context.Context, rows []*types.ImportStagedAssignment) error {
	for _, r := range rows {
		cp := *r
		t.store.stagedRows[r.ID] = &cp
	}
	return nil
}

func (t *memTx) UpdateStagedRow(_ context.Context, row *types.ImportStagedAssignment) error {
	if _, ok := t.store.stagedRows[row.ID]; !ok {
		return storage.ErrNotFound
	}
	cp := *row
	t.store.stagedRows[row.ID] = &cp
	return nil
}

func (t *memTx) DeleteStagedRows(_ context.Context, batchID uuid.UUID) error {
	for id, r := range t.store.stagedRows {
		if r.BatchID == batchID {
			delete(t.store.stagedRows, id)
		}
	}
	return nil
}

func (t *memTx) ListStagedRows(_ context.Context, batchID uuid.UUID) ([]*types.ImportStagedAssignment, error) {
	return t.store.listStagedRowsLocked(batchID)
}

// --- Locks and versioning ---

func (s *Store) LockBatch(_ context.Context, batchID uuid.UUID) (func(), error) {
	v, _ := s.batchLocks.LoadOrStore(batchID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock, nil
}

func (s *Store) TransactionID() uint64 {
	return s.txnID.Load()
}
