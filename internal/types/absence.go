package types

import (
	"time"

	"github.com/google/uuid"
)

// AbsenceType categorizes a leave interval.
type AbsenceType string

const (
	AbsenceVacation        AbsenceType = "vacation"
	AbsenceMedical         AbsenceType = "medical"
	AbsenceFamilyEmergency AbsenceType = "family_emergency"
	AbsenceDeployment      AbsenceType = "deployment"
	AbsenceMilitaryTDY     AbsenceType = "military_tdy"
	AbsenceConference      AbsenceType = "conference"
	AbsenceOther           AbsenceType = "other"
)

// Absence is a leave interval with inclusive endpoints. An assignment
// whose block date falls inside the interval is conflicted.
type Absence struct {
	ID               uuid.UUID   `json:"id"`
	PersonID         uuid.UUID   `json:"person_id"`
	StartDate        time.Time   `json:"start_date"`
	EndDate          time.Time   `json:"end_date"`
	Type             AbsenceType `json:"absence_type"`
	DeploymentOrders bool        `json:"deployment_orders,omitempty"`
}

// DurationDays returns the inclusive day count of the interval.
func (a *Absence) DurationDays() int {
	return int(a.EndDate.Sub(a.StartDate).Hours()/24) + 1
}

// Covers reports whether the given date falls inside the absence.
func (a *Absence) Covers(date time.Time) bool {
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	s := time.Date(a.StartDate.Year(), a.StartDate.Month(), a.StartDate.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(a.EndDate.Year(), a.EndDate.Month(), a.EndDate.Day(), 0, 0, 0, 0, time.UTC)
	return !d.Before(s) && !d.After(e)
}
