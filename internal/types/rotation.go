package types

import (
	"time"

	"github.com/google/uuid"
)

// CriticalServices are activity-type tags whose coverage loss is treated
// as patient-impacting by the contingency engine.
var CriticalServices = map[string]bool{
	"inpatient": true,
	"call":      true,
	"emergency": true,
	"procedure": true,
	"trauma":    true,
	"icu":       true,
}

// RotationTemplate describes a schedulable rotation or service.
type RotationTemplate struct {
	ID                  uuid.UUID  `json:"id"`
	Name                string     `json:"name"`
	ActivityType        string     `json:"activity_type"`
	Abbreviation        string     `json:"abbreviation,omitempty"`
	ClinicLocation      string     `json:"clinic_location,omitempty"`
	MaxResidents        int        `json:"max_residents"`
	SupervisionRequired bool       `json:"supervision_required"`
	MaxSupervisionRatio int        `json:"max_supervision_ratio"`
	IsArchived          bool       `json:"is_archived"`
	ArchivedAt          *time.Time `json:"archived_at,omitempty"`
	ArchivedBy          *uuid.UUID `json:"archived_by,omitempty"`
}

// IsCritical reports whether the template covers a critical service.
func (r *RotationTemplate) IsCritical() bool {
	return CriticalServices[r.ActivityType]
}

// Archive soft-deletes the template, stamping who archived it and when.
func (r *RotationTemplate) Archive(by uuid.UUID) {
	now := time.Now().UTC()
	r.IsArchived = true
	r.ArchivedAt = &now
	r.ArchivedBy = &by
}
