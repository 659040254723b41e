// Package compliance implements the ACGME rule validator: the 80-hour
// weekly average, the 1-in-7 duty-day rule, supervision ratios, and
// absence overlap checks.
package compliance

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Severity grades a violation.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Rule type identifiers used in violation records.
const (
	RuleWorkHours       = "80_hour_rule"
	RuleOneInSeven      = "1_in_7_rule"
	RuleSupervision     = "supervision_ratio"
	RuleAbsenceConflict = "absence_overlap"
)

// Violation is one detected rule breach.
type Violation struct {
	RuleType     string         `json:"rule_type"`
	Severity     Severity       `json:"severity"`
	PersonID     *uuid.UUID     `json:"person_id,omitempty"`
	StartDate    time.Time      `json:"start_date"`
	EndDate      time.Time      `json:"end_date"`
	Message      string         `json:"message"`
	Details      map[string]any `json:"details,omitempty"`
	SuggestedFix string         `json:"suggested_fix,omitempty"`
}

// Result is the outcome of a validation run. Empty inputs yield an
// empty violation list and a compliance rate of 1.0, never an error.
type Result struct {
	Violations       []Violation `json:"violations"`
	ComplianceRate   float64     `json:"compliance_rate"`   // [0,1]
	ScheduleCoverage float64     `json:"schedule_coverage"` // [0,1], weekday blocks only
	ChecksRun        int         `json:"checks_run"`
	StartDate        time.Time   `json:"start_date"`
	EndDate          time.Time   `json:"end_date"`
	GeneratedAt      time.Time   `json:"generated_at"`
}

// CriticalCount returns the number of critical violations.
func (r *Result) CriticalCount() int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == SeverityCritical {
			n++
		}
	}
	return n
}

// ComplianceRatePercent reports the rate as a percentage rounded to one
// decimal, the precision used on every reporting surface.
func (r *Result) ComplianceRatePercent() float64 {
	return math.Round(r.ComplianceRate*1000) / 10
}

// Messages flattens the violations into display strings, used by the
// import pipeline to attach forward compliance warnings.
func (r *Result) Messages() []string {
	out := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		out = append(out, v.Message)
	}
	return out
}
