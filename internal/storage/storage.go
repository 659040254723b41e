// Package storage defines the persistence interface the core consumes.
// SQL dialects, schema migrations, and connection management live behind
// this boundary; the core only sees entity CRUD and transactional scopes.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/schedcu/core/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("entity not found")

// ErrConflict is returned on uniqueness violations, most importantly the
// (block_id, person_id) assignment constraint.
var ErrConflict = errors.New("entity conflict")

// ErrTransientBackend marks failures worth retrying (lock contention,
// serialization conflicts). Callers retry up to three times with backoff
// before surfacing the error.
var ErrTransientBackend = errors.New("transient backend failure")

// Transaction exposes the mutating subset of Storage inside a single
// transactional scope. If the callback returns an error every write in
// the scope is rolled back; on nil return the scope commits.
type Transaction interface {
	// Blocks
	GetBlockByDateSlot(ctx context.Context, date time.Time, slot types.TimeOfDay) (*types.Block, error)
	PutBlock(ctx context.Context, block *types.Block) error

	// Assignments
	CreateAssignment(ctx context.Context, a *types.Assignment) error
	UpdateAssignment(ctx context.Context, a *types.Assignment) error
	DeleteAssignment(ctx context.Context, id uuid.UUID) error
	GetAssignmentByKey(ctx context.Context, blockID, personID uuid.UUID) (*types.Assignment, error)

	// Import batches and staged rows
	CreateImportBatch(ctx context.Context, b *types.ImportBatch) error
	UpdateImportBatch(ctx context.Context, b *types.ImportBatch) error
	CreateStagedRows(ctx context.Context, rows []*types.ImportStagedAssignment) error
	UpdateStagedRow(ctx context.Context, row *types.ImportStagedAssignment) error
	DeleteStagedRows(ctx context.Context, batchID uuid.UUID) error
	ListStagedRows(ctx context.Context, batchID uuid.UUID) ([]*types.ImportStagedAssignment, error)
}

// Storage is the persistence interface for all core entities.
type Storage interface {
	// People (read-only reference data plus seeding)
	GetPerson(ctx context.Context, id uuid.UUID) (*types.Person, error)
	ListPeople(ctx context.Context) ([]*types.Person, error)
	PutPerson(ctx context.Context, p *types.Person) error

	// Rotation templates
	GetRotationTemplate(ctx context.Context, id uuid.UUID) (*types.RotationTemplate, error)
	ListRotationTemplates(ctx context.Context, includeArchived bool) ([]*types.RotationTemplate, error)
	PutRotationTemplate(ctx context.Context, r *types.RotationTemplate) error

	// Blocks (indexed by date)
	GetBlock(ctx context.Context, id uuid.UUID) (*types.Block, error)
	GetBlockByDateSlot(ctx context.Context, date time.Time, slot types.TimeOfDay) (*types.Block, error)
	ListBlocksInRange(ctx context.Context, start, end time.Time) ([]*types.Block, error)
	PutBlock(ctx context.Context, block *types.Block) error

	// Assignments (unique on (block_id, person_id))
	CreateAssignment(ctx context.Context, a *types.Assignment) error
	GetAssignment(ctx context.Context, id uuid.UUID) (*types.Assignment, error)
	GetAssignmentByKey(ctx context.Context, blockID, personID uuid.UUID) (*types.Assignment, error)
	ListAssignmentsInRange(ctx context.Context, start, end time.Time) ([]*types.Assignment, error)
	ListAssignmentsByBlock(ctx context.Context, blockID uuid.UUID) ([]*types.Assignment, error)
	UpdateAssignment(ctx context.Context, a *types.Assignment) error
	DeleteAssignment(ctx context.Context, id uuid.UUID) error

	// Absences (indexed by person, start date)
	ListAbsencesByPerson(ctx context.Context, personID uuid.UUID) ([]*types.Absence, error)
	ListAbsencesInRange(ctx context.Context, start, end time.Time) ([]*types.Absence, error)
	PutAbsence(ctx context.Context, a *types.Absence) error

	// Import batches
	GetImportBatch(ctx context.Context, id uuid.UUID) (*types.ImportBatch, error)
	FindActiveBatchByHash(ctx context.Context, fileHash string) (*types.ImportBatch, error)
	ListStagedRows(ctx context.Context, batchID uuid.UUID) ([]*types.ImportStagedAssignment, error)

	// Calendar subscriptions
	PutSubscription(ctx context.Context, s *types.CalendarSubscription) error
	GetSubscriptionByToken(ctx context.Context, token string) (*types.CalendarSubscription, error)

	// Webhook endpoints and replay log
	GetWebhookEndpoint(ctx context.Context, id string) (*types.WebhookEndpoint, error)
	PutWebhookEndpoint(ctx context.Context, e *types.WebhookEndpoint) error
	// RecordWebhookDelivery stores the delivery id and reports whether it
	// had been seen before.
	RecordWebhookDelivery(ctx context.Context, d *types.WebhookDelivery) (seen bool, err error)

	// RunInTransaction executes fn inside a transactional scope.
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// LockBatch takes a row-level lock on an import batch, serializing
	// concurrent apply/rollback attempts. The returned release function
	// must be called on every exit path.
	LockBatch(ctx context.Context, batchID uuid.UUID) (release func(), err error)

	// TransactionID returns a monotonic id incremented on every committed
	// transactional scope. Reports record it for staleness detection.
	TransactionID() uint64
}
