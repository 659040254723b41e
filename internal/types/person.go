// Package types defines the core domain entities shared across the
// scheduling and resilience subsystems. Entities mirror the persistence
// layer row types; the core treats reference data (Person, Block,
// RotationTemplate) as read-only.
package types

import "github.com/google/uuid"

// PersonType distinguishes trainees from supervising staff.
type PersonType string

const (
	PersonTypeResident PersonType = "resident"
	PersonTypeFaculty  PersonType = "faculty"
)

// FacultyRole tags administrative or clinical roles on faculty members.
type FacultyRole string

const (
	RolePD         FacultyRole = "pd"
	RoleAPD        FacultyRole = "apd"
	RoleOIC        FacultyRole = "oic"
	RoleDeptChief  FacultyRole = "dept_chief"
	RoleSportsMed  FacultyRole = "sports_med"
	RoleCore       FacultyRole = "core"
)

// Person is a resident or faculty member. Externally managed reference
// data; the core never mutates people.
type Person struct {
	ID                 uuid.UUID   `json:"id"`
	Name               string      `json:"name"`
	Email              string      `json:"email"`
	Type               PersonType  `json:"type"`
	PGYLevel           int         `json:"pgy_level,omitempty"` // residents only: 1..3
	Role               FacultyRole `json:"role,omitempty"`      // faculty only
	PerformsProcedures bool        `json:"performs_procedures,omitempty"`
	Specialties        []string    `json:"specialties,omitempty"`
}

// IsResident reports whether the person is a trainee.
func (p *Person) IsResident() bool { return p.Type == PersonTypeResident }

// IsFaculty reports whether the person is supervising staff.
func (p *Person) IsFaculty() bool { return p.Type == PersonTypeFaculty }
