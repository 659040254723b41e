package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RollbackWindow is how long after apply a batch remains reversible.
const RollbackWindow = 24 * time.Hour

// BatchStatus is the lifecycle state of an import batch.
type BatchStatus string

const (
	BatchStaged     BatchStatus = "staged"
	BatchApproved   BatchStatus = "approved"
	BatchApplied    BatchStatus = "applied"
	BatchRolledBack BatchStatus = "rolled_back"
	BatchRejected   BatchStatus = "rejected"
	BatchFailed     BatchStatus = "failed"
)

// ConflictResolution selects how apply treats rows that collide with an
// existing assignment.
type ConflictResolution string

const (
	ResolutionUpsert  ConflictResolution = "upsert"
	ResolutionMerge   ConflictResolution = "merge"
	ResolutionReplace ConflictResolution = "replace"
)

// ImportBatch groups the staged rows of one uploaded workbook.
// file_hash is unique among batches in {staged, approved}.
type ImportBatch struct {
	ID                 uuid.UUID          `json:"id"`
	CreatedAt          time.Time          `json:"created_at"`
	CreatedBy          string             `json:"created_by"`
	Filename           string             `json:"filename"`
	FileHash           string             `json:"file_hash"` // SHA-256 of uploaded bytes
	FileSize           int64              `json:"file_size"`
	Status             BatchStatus        `json:"status"`
	ConflictResolution ConflictResolution `json:"conflict_resolution"`
	AppliedAt          *time.Time         `json:"applied_at,omitempty"`
	AppliedBy          string             `json:"applied_by,omitempty"`
	RollbackAvailable  bool               `json:"rollback_available"`
	RollbackExpiresAt  *time.Time         `json:"rollback_expires_at,omitempty"`
	RowCount           int                `json:"row_count"`
	ErrorCount         int                `json:"error_count"`
	WarningCount       int                `json:"warning_count"`
}

// Active reports whether the batch still holds its file-hash uniqueness
// slot (pre-apply states only).
func (b *ImportBatch) Active() bool {
	return b.Status == BatchStaged || b.Status == BatchApproved
}

// MarkApplied transitions the batch to applied and opens the rollback
// window. Only staged or approved batches may be applied.
func (b *ImportBatch) MarkApplied(by string, at time.Time) error {
	if !b.Active() {
		return fmt.Errorf("cannot apply batch in status %s", b.Status)
	}
	expires := at.Add(RollbackWindow)
	b.Status = BatchApplied
	b.AppliedAt = &at
	b.AppliedBy = by
	b.RollbackAvailable = true
	b.RollbackExpiresAt = &expires
	return nil
}

// RollbackEligible reports whether a rollback at the given instant is
// still inside the window. The expiry instant itself is eligible.
func (b *ImportBatch) RollbackEligible(now time.Time) bool {
	return b.Status == BatchApplied && b.RollbackExpiresAt != nil && !now.After(*b.RollbackExpiresAt)
}

// MarkRolledBack closes the rollback window after a successful rollback.
func (b *ImportBatch) MarkRolledBack() {
	b.Status = BatchRolledBack
	b.RollbackAvailable = false
}

// StagedRowStatus is the per-row lifecycle inside a batch.
type StagedRowStatus string

const (
	RowPending  StagedRowStatus = "pending"
	RowApproved StagedRowStatus = "approved"
	RowApplied  StagedRowStatus = "applied"
	RowSkipped  StagedRowStatus = "skipped"
	RowFailed   StagedRowStatus = "failed"
)

// ConflictType classifies a staged row's collision with existing data.
type ConflictType string

const (
	ConflictNone      ConflictType = "none"
	ConflictOverwrite ConflictType = "overwrite"
	ConflictDuplicate ConflictType = "duplicate"
)

// ImportStagedAssignment is one parsed workbook row owned by a batch.
type ImportStagedAssignment struct {
	ID                      uuid.UUID       `json:"id"`
	BatchID                 uuid.UUID       `json:"batch_id"`
	RowNumber               int             `json:"row_number"`
	PersonName              string          `json:"person_name"`
	RotationName            string          `json:"rotation_name,omitempty"`
	Date                    time.Time       `json:"date"`
	Slot                    TimeOfDay       `json:"slot,omitempty"`
	MatchedPersonID         *uuid.UUID      `json:"matched_person_id,omitempty"`
	PersonMatchConfidence   float64         `json:"person_match_confidence"`
	MatchedRotationID       *uuid.UUID      `json:"matched_rotation_id,omitempty"`
	RotationMatchConfidence float64         `json:"rotation_match_confidence"`
	ConflictType            ConflictType    `json:"conflict_type"`
	ExistingAssignmentID    *uuid.UUID      `json:"existing_assignment_id,omitempty"`
	Status                  StagedRowStatus `json:"status"`
	CreatedAssignmentID     *uuid.UUID      `json:"created_assignment_id,omitempty"`
	ValidationErrors        []string        `json:"validation_errors,omitempty"`
	ValidationWarnings      []string        `json:"validation_warnings,omitempty"`
}
