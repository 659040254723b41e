package types

import "github.com/google/uuid"

// AssignmentRole describes the capacity in which a person covers a block.
type AssignmentRole string

const (
	RolePrimary     AssignmentRole = "primary"
	RoleBackup      AssignmentRole = "backup"
	RoleSupervising AssignmentRole = "supervising"
)

// Assignment maps a person onto a block, optionally with a rotation.
// Invariant: at most one assignment exists per (block_id, person_id).
type Assignment struct {
	ID                 uuid.UUID      `json:"id"`
	BlockID            uuid.UUID      `json:"block_id"`
	PersonID           uuid.UUID      `json:"person_id"`
	RotationTemplateID *uuid.UUID     `json:"rotation_template_id,omitempty"`
	Role               AssignmentRole `json:"role"`
	Notes              string         `json:"notes,omitempty"`
}

// Key identifies the assignment's uniqueness slot.
func (a *Assignment) Key() AssignmentKey {
	return AssignmentKey{BlockID: a.BlockID, PersonID: a.PersonID}
}

// AssignmentKey is the (block, person) pair that must be unique.
type AssignmentKey struct {
	BlockID  uuid.UUID
	PersonID uuid.UUID
}
