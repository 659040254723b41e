// Package equilibrium models how an operating schedule absorbs stress.
// Applied stresses shift capacity and demand; compensation responses
// (overtime, cross-coverage, deferred leave) push coverage back toward
// equilibrium at a hidden cost that accumulates as compensation debt.
package equilibrium

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StressType categorizes an imposed stress.
type StressType string

const (
	StressFacultyLoss      StressType = "faculty_loss"
	StressDemandSurge      StressType = "demand_surge"
	StressQualityPressure  StressType = "quality_pressure"
	StressTimeCompression  StressType = "time_compression"
	StressResourceScarcity StressType = "resource_scarcity"
	StressExternalPressure StressType = "external_pressure"
)

// CompensationType categorizes a counteracting response.
type CompensationType string

const (
	CompOvertime         CompensationType = "overtime"
	CompCrossCoverage    CompensationType = "cross_coverage"
	CompDeferredLeave    CompensationType = "deferred_leave"
	CompServiceReduction CompensationType = "service_reduction"
	CompEfficiencyGain   CompensationType = "efficiency_gain"
	CompBackupActivation CompensationType = "backup_activation"
	CompQualityTrade     CompensationType = "quality_trade"
)

// State is the equilibrium classification ladder.
type State string

const (
	StateStable        State = "stable"
	StateStrained      State = "strained"
	StateCompensating  State = "compensating"
	StateStressed      State = "stressed"
	StateUnsustainable State = "unsustainable"
	StateCritical      State = "critical"
)

// capacityFloor is the modeling lower bound; the system cannot be
// represented below 10% capacity.
const capacityFloor = 0.1

// diminishingStep reduces each additional compensation on the same
// stress by 15%.
const diminishingStep = 0.15

// Stress is one applied pressure on the system.
type Stress struct {
	ID             uuid.UUID  `json:"id"`
	Type           StressType `json:"type"`
	Magnitude      float64    `json:"magnitude"`
	CapacityImpact float64    `json:"capacity_impact"` // additive, usually negative
	DemandImpact   float64    `json:"demand_impact"`   // multiplicative: demand *= 1+impact
	Acute          bool       `json:"acute"`
	Reversible     bool       `json:"reversible"`
	AppliedAt      time.Time  `json:"applied_at"`

	// appliedDelta is the capacity change that actually landed after
	// the floor clamp, so a reversal restores exactly that much.
	appliedDelta float64
}

// Compensation is one active counter-response linked to a stress.
type Compensation struct {
	ID                 uuid.UUID        `json:"id"`
	StressID           uuid.UUID        `json:"stress_id"`
	Type               CompensationType `json:"type"`
	Magnitude          float64          `json:"magnitude"`
	Effectiveness      float64          `json:"effectiveness"` // [0,1]
	HiddenCost         float64          `json:"hidden_cost"`
	SustainabilityDays int              `json:"sustainability_days"`
	StartedAt          time.Time        `json:"started_at"`
	Active             bool             `json:"active"`
	EndedAt            *time.Time       `json:"ended_at,omitempty"`
	EndReason          string           `json:"end_reason,omitempty"`
}

// Snapshot is the derived operating point after any mutation.
type Snapshot struct {
	Capacity             float64 `json:"capacity"`
	Demand               float64 `json:"demand"`
	EffectiveCapacity    float64 `json:"effective_capacity"` // capacity + compensation
	CoverageRate         float64 `json:"coverage_rate"`
	State                State   `json:"state"`
	CompensationDebt     float64 `json:"compensation_debt"`
	BurnoutRisk          float64 `json:"burnout_risk"`
	DaysUntilExhaustion  int     `json:"days_until_exhaustion"` // -1 when nothing active
	ActiveStresses       int     `json:"active_stresses"`
	ActiveCompensations  int     `json:"active_compensations"`
}

// Analyzer holds the mutable equilibrium state for one system.
type Analyzer struct {
	mu sync.Mutex

	capacity float64
	demand   float64
	debt     float64

	stresses      map[uuid.UUID]*Stress
	compensations []*Compensation
	now           func() time.Time
}

// New starts an analyzer at the given baseline operating point.
// Capacity is clamped to the modeling floor of 0.1.
func New(capacity, demand float64) *Analyzer {
	if capacity < capacityFloor {
		capacity = capacityFloor
	}
	if demand <= 0 {
		demand = 1.0
	}
	return &Analyzer{
		capacity: capacity,
		demand:   demand,
		stresses: make(map[uuid.UUID]*Stress),
		now:      time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (a *Analyzer) SetClock(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}

// ApplyStress shifts the operating point and tracks the stress for
// later compensation or resolution.
func (a *Analyzer) ApplyStress(s Stress) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.AppliedAt = a.now()
	before := a.capacity
	a.capacity = math.Max(capacityFloor, a.capacity+s.CapacityImpact)
	s.appliedDelta = a.capacity - before
	a.demand *= 1 + s.DemandImpact
	a.stresses[s.ID] = &s
	return a.snapshotLocked()
}

// ResolveStress reverses a reversible stress and ends every
// compensation linked to it with reason "stress_resolved". Returns
// false if the stress id is unknown.
func (a *Analyzer) ResolveStress(id uuid.UUID) (Snapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.stresses[id]
	if !ok {
		return a.snapshotLocked(), false
	}
	if s.Reversible {
		a.capacity = math.Max(capacityFloor, a.capacity-s.appliedDelta)
		if 1+s.DemandImpact != 0 {
			a.demand /= 1 + s.DemandImpact
		}
	}
	delete(a.stresses, id)

	now := a.now()
	for _, c := range a.compensations {
		if c.Active && c.StressID == id {
			c.Active = false
			c.EndedAt = &now
			c.EndReason = "stress_resolved"
		}
	}
	return a.snapshotLocked(), true
}

// InitiateCompensation starts a counter-response against an active
// stress. Returns nil if the stress id is unknown. The hidden cost is
// added to the compensation debt immediately.
func (a *Analyzer) InitiateCompensation(stressID uuid.UUID, c Compensation) *Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.stresses[stressID]; !ok {
		return nil
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.StressID = stressID
	c.StartedAt = a.now()
	c.Active = true
	a.compensations = append(a.compensations, &c)
	a.debt += c.HiddenCost

	snap := a.snapshotLocked()
	return &snap
}

// effectiveCompensationLocked applies diminishing returns per stress:
// the i-th compensation on a stress contributes
// magnitude * effectiveness * (1 - 0.15*(i-1)), clamped at zero.
func (a *Analyzer) effectiveCompensationLocked() float64 {
	perStress := make(map[uuid.UUID]int)
	total := 0.0
	for _, c := range a.compensations {
		if !c.Active {
			continue
		}
		perStress[c.StressID]++
		i := perStress[c.StressID]
		factor := 1 - diminishingStep*float64(i-1)
		if factor < 0 {
			factor = 0
		}
		total += c.Magnitude * c.Effectiveness * factor
	}
	return total
}

func (a *Analyzer) snapshotLocked() Snapshot {
	comp := a.effectiveCompensationLocked()
	effective := a.capacity + comp
	coverage := 1.0
	if a.demand > 0 {
		coverage = math.Min(1, effective/a.demand)
	}

	activeComps := 0
	exhaustion := -1
	for _, c := range a.compensations {
		if !c.Active {
			continue
		}
		activeComps++
		if exhaustion == -1 || c.SustainabilityDays < exhaustion {
			exhaustion = c.SustainabilityDays
		}
	}

	burnout := math.Min(1, a.debt/100+comp*0.3)

	return Snapshot{
		Capacity:            a.capacity,
		Demand:              a.demand,
		EffectiveCapacity:   effective,
		CoverageRate:        coverage,
		State:               classify(coverage, burnout, activeComps > 0),
		CompensationDebt:    a.debt,
		BurnoutRisk:         burnout,
		DaysUntilExhaustion: exhaustion,
		ActiveStresses:      len(a.stresses),
		ActiveCompensations: activeComps,
	}
}

// classify places a coverage rate on the equilibrium ladder. The
// "compensating" label requires an actual active compensation;
// coverage just under stable with nothing compensating is "strained".
func classify(coverage, burnout float64, compensating bool) State {
	switch {
	case coverage < 0.6:
		return StateCritical
	case coverage < 0.75 || burnout > 0.6:
		return StateUnsustainable
	case coverage < 0.9:
		return StateStressed
	case compensating:
		return StateCompensating
	case coverage < 0.95:
		return StateStrained
	default:
		return StateStable
	}
}

// Current returns the present operating point without mutating state.
func (a *Analyzer) Current() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Prediction is the simulated outcome of a hypothetical stress.
type Prediction struct {
	PredictedCapacity  float64  `json:"predicted_capacity"`
	PredictedCoverage  float64  `json:"predicted_coverage"`
	DailyCost          float64  `json:"daily_cost"`
	TotalCost          float64  `json:"total_cost"`
	Sustainability     string   `json:"sustainability"`
	RecommendedActions []string `json:"recommended_actions"`
}

// PredictStressResponse simulates applying a stress without mutating
// state. Cost is expressed in coverage-gap points per day.
func (a *Analyzer) PredictStressResponse(st StressType, magnitude float64, durationDays int, capacityImpact, demandImpact float64) Prediction {
	a.mu.Lock()
	defer a.mu.Unlock()

	capacity := math.Max(capacityFloor, a.capacity+capacityImpact)
	demand := a.demand * (1 + demandImpact)
	comp := a.effectiveCompensationLocked()
	coverage := 1.0
	if demand > 0 {
		coverage = math.Min(1, (capacity+comp)/demand)
	}

	gap := math.Max(0, 1-coverage)
	daily := gap * 100
	total := daily * float64(durationDays)

	return Prediction{
		PredictedCapacity:  capacity,
		PredictedCoverage:  coverage,
		DailyCost:          daily,
		TotalCost:          total,
		Sustainability:     sustainability(coverage, durationDays),
		RecommendedActions: recommend(st, coverage, durationDays),
	}
}

func sustainability(coverage float64, durationDays int) string {
	switch {
	case coverage >= 0.95:
		return "sustainable indefinitely"
	case coverage >= 0.9:
		return "sustainable with monitoring"
	case coverage >= 0.75:
		if durationDays > 30 {
			return "sustainable only with additional capacity"
		}
		return "sustainable short-term"
	case coverage >= 0.6:
		return fmt.Sprintf("unsustainable beyond a few days at %.0f%% coverage", coverage*100)
	default:
		return "immediate intervention required"
	}
}

// recommend ranks counter-actions by projected coverage and duration.
func recommend(st StressType, coverage float64, durationDays int) []string {
	var actions []string
	if coverage < 0.95 {
		actions = append(actions, "activate backup coverage pool")
	}
	if coverage < 0.9 {
		actions = append(actions, "initiate cross-coverage from adjacent services")
	}
	if coverage < 0.75 {
		if durationDays <= 14 {
			actions = append(actions, "authorize short-term overtime")
		} else {
			actions = append(actions, "reduce elective service load")
			actions = append(actions, "defer non-essential leave")
		}
	}
	if coverage < 0.6 {
		actions = append(actions, "escalate for external staffing (locum) support")
	}
	if st == StressFacultyLoss && durationDays > 30 {
		actions = append(actions, "begin replacement recruitment")
	}
	return actions
}
