// Package contingency quantifies schedule fragility: N-1 simulations
// (loss of any one faculty member), N-2 fatal pairs, centrality scoring,
// and a phase-transition risk assessment.
package contingency

import (
	"time"

	"github.com/google/uuid"
)

// Severity ladder for a single-faculty loss simulation.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for monotonicity comparisons.
func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is no less severe than other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank(s) >= severityRank(other)
}

// RiskLevel is the system-wide phase-transition tag.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// FacultySimulation is the outcome of removing one faculty member.
type FacultySimulation struct {
	FacultyID         uuid.UUID   `json:"faculty_id"`
	FacultyName       string      `json:"faculty_name"`
	TotalAssignments  int         `json:"total_assignments"`
	AffectedBlocks    []uuid.UUID `json:"affected_blocks"`
	UncoveredBlocks   []uuid.UUID `json:"uncovered_blocks"`
	CoverageRemaining float64     `json:"coverage_remaining"` // 1 - affected/total
	IsUniqueProvider  bool        `json:"is_unique_provider"`
	Severity          Severity    `json:"severity"`
}

// FatalPair is a pair of faculty whose simultaneous loss leaves at
// least one block with zero coverage.
type FatalPair struct {
	Faculty1        uuid.UUID   `json:"faculty_1"`
	Faculty2        uuid.UUID   `json:"faculty_2"`
	UncoveredBlocks []uuid.UUID `json:"uncovered_blocks"`
}

// CentralityScore blends graph metrics into a single importance score.
type CentralityScore struct {
	FacultyID             uuid.UUID `json:"faculty_id"`
	Betweenness           float64   `json:"betweenness"`
	Degree                float64   `json:"degree"`
	PageRank              float64   `json:"pagerank"`
	Eigenvector           float64   `json:"eigenvector"`
	ReplacementDifficulty float64   `json:"replacement_difficulty"`
	WorkloadShare         float64   `json:"workload_share"`
	Combined              float64   `json:"combined"`
}

// Report is the full contingency analysis output.
type Report struct {
	StartDate       time.Time                     `json:"start_date"`
	EndDate         time.Time                     `json:"end_date"`
	Simulations     []FacultySimulation           `json:"simulations"`
	N1Pass          bool                          `json:"n1_pass"`
	FatalPairs      []FatalPair                   `json:"fatal_pairs"`
	Centrality      map[uuid.UUID]CentralityScore `json:"centrality,omitempty"`
	RiskLevel       RiskLevel                     `json:"risk_level"`
	RiskIndicators  []string                      `json:"risk_indicators,omitempty"`
	Recommendations []string                      `json:"recommendations"`
	VersionID       uint64                        `json:"version_id"`
	GeneratedAt     time.Time                     `json:"generated_at"`
}

// CriticalSimulations returns the simulations at critical severity.
func (r *Report) CriticalSimulations() []FacultySimulation {
	var out []FacultySimulation
	for _, s := range r.Simulations {
		if s.Severity == SeverityCritical {
			out = append(out, s)
		}
	}
	return out
}
