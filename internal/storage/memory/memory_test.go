package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/schedcu/core/internal/storage"
	"github.com/schedcu/core/internal/types"
)

func mkBlock(t *testing.T, s *Store, date time.Time, slot types.TimeOfDay) *types.Block {
	t.Helper()
	b := &types.Block{ID: uuid.New(), Date: date, TimeOfDay: slot}
	if err := s.PutBlock(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	return b
}

func TestAssignmentUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	block := mkBlock(t, s, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), types.TimeOfDayAM)
	personID := uuid.New()

	a := &types.Assignment{ID: uuid.New(), BlockID: block.ID, PersonID: personID, Role: types.RolePrimary}
	if err := s.CreateAssignment(ctx, a); err != nil {
		t.Fatal(err)
	}

	dup := &types.Assignment{ID: uuid.New(), BlockID: block.ID, PersonID: personID, Role: types.RoleSupervising}
	if err := s.CreateAssignment(ctx, dup); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("second assignment on the same (block, person) err = %v, want ErrConflict", err)
	}

	// Deleting frees the (block, person) slot.
	if err := s.DeleteAssignment(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateAssignment(ctx, dup); err != nil {
		t.Fatalf("recreate after delete: %v", err)
	}
}

func TestUpdateAssignmentKeyMove(t *testing.T) {
	ctx := context.Background()
	s := New()
	blockA := mkBlock(t, s, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), types.TimeOfDayAM)
	blockB := mkBlock(t, s, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), types.TimeOfDayPM)
	personID := uuid.New()

	a := &types.Assignment{ID: uuid.New(), BlockID: blockA.ID, PersonID: personID}
	if err := s.CreateAssignment(ctx, a); err != nil {
		t.Fatal(err)
	}
	other := &types.Assignment{ID: uuid.New(), BlockID: blockB.ID, PersonID: personID}
	if err := s.CreateAssignment(ctx, other); err != nil {
		t.Fatal(err)
	}

	// Moving a onto other's block collides.
	moved := *a
	moved.BlockID = blockB.ID
	if err := s.UpdateAssignment(ctx, &moved); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("move onto occupied key err = %v, want ErrConflict", err)
	}

	// After the failed move the original key still resolves.
	got, err := s.GetAssignmentByKey(ctx, blockA.ID, personID)
	if err != nil || got.ID != a.ID {
		t.Fatalf("GetAssignmentByKey = %v, %v", got, err)
	}
}

func TestCopyOnReadIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()
	p := &types.Person{ID: uuid.New(), Name: "Smith", Type: types.PersonTypeResident}
	if err := s.PutPerson(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetPerson(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	got.Name = "mutated"

	again, err := s.GetPerson(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Name != "Smith" {
		t.Fatalf("caller mutation leaked into store: %q", again.Name)
	}
}

func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	s := New()
	block := mkBlock(t, s, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), types.TimeOfDayAM)
	personID := uuid.New()
	before := s.TransactionID()

	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.CreateAssignment(ctx, &types.Assignment{
			ID: uuid.New(), BlockID: block.ID, PersonID: personID,
		}); err != nil {
			return err
		}
		if err := tx.PutBlock(ctx, &types.Block{
			ID: uuid.New(), Date: time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC), TimeOfDay: types.TimeOfDayAM,
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTransaction err = %v, want boom", err)
	}

	if _, err := s.GetAssignmentByKey(ctx, block.ID, personID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("assignment survived rollback: %v", err)
	}
	blocks, err := s.ListBlocksInRange(ctx,
		time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 1 {
		t.Fatalf("blocks after rollback = %d, want 1", len(blocks))
	}
	if s.TransactionID() != before {
		t.Fatal("failed transaction advanced the version")
	}
}

func TestTransactionCommitAdvancesVersion(t *testing.T) {
	ctx := context.Background()
	s := New()
	before := s.TransactionID()
	err := s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.PutBlock(ctx, &types.Block{
			ID: uuid.New(), Date: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), TimeOfDay: types.TimeOfDayAM,
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.TransactionID() != before+1 {
		t.Fatalf("TransactionID = %d, want %d", s.TransactionID(), before+1)
	}
}

func TestListAssignmentsInRangeFiltersByBlockDate(t *testing.T) {
	ctx := context.Background()
	s := New()
	in := mkBlock(t, s, time.Date(2025, 7, 3, 0, 0, 0, 0, time.UTC), types.TimeOfDayAM)
	out := mkBlock(t, s, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), types.TimeOfDayAM)
	for _, b := range []*types.Block{in, out} {
		if err := s.CreateAssignment(ctx, &types.Assignment{ID: uuid.New(), BlockID: b.ID, PersonID: uuid.New()}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListAssignmentsInRange(ctx,
		time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].BlockID != in.ID {
		t.Fatalf("ListAssignmentsInRange = %v", got)
	}
}

func TestListAbsencesInRangeOverlap(t *testing.T) {
	ctx := context.Background()
	s := New()
	personID := uuid.New()
	// Straddles the window start.
	if err := s.PutAbsence(ctx, &types.Absence{
		ID: uuid.New(), PersonID: personID,
		StartDate: time.Date(2025, 6, 28, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatal(err)
	}
	// Entirely before.
	if err := s.PutAbsence(ctx, &types.Absence{
		ID: uuid.New(), PersonID: personID,
		StartDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListAbsencesInRange(ctx,
		time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("overlapping absences = %d, want 1", len(got))
	}
}

func TestRecordWebhookDeliveryDedup(t *testing.T) {
	ctx := context.Background()
	s := New()
	d := &types.WebhookDelivery{DeliveryID: "evt-1", WebhookID: "mededtrack", ReceivedAt: time.Now()}

	seen, err := s.RecordWebhookDelivery(ctx, d)
	if err != nil || seen {
		t.Fatalf("first delivery seen = %v, %v", seen, err)
	}
	seen, err = s.RecordWebhookDelivery(ctx, d)
	if err != nil || !seen {
		t.Fatalf("second delivery seen = %v, %v, want true", seen, err)
	}
}

func TestLockBatchSerializes(t *testing.T) {
	s := New()
	batchID := uuid.New()

	release, err := s.LockBatch(context.Background(), batchID)
	if err != nil {
		t.Fatal(err)
	}

	acquired := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := s.LockBatch(context.Background(), batchID)
		if err != nil {
			t.Error(err)
			return
		}
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("second LockBatch acquired while held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second LockBatch never acquired after release")
	}
	wg.Wait()
}
