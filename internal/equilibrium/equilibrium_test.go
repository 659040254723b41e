package equilibrium

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestApplyStressClampsCapacityFloor(t *testing.T) {
	a := New(1.0, 1.0)
	snap := a.ApplyStress(Stress{
		Type:           StressFacultyLoss,
		Magnitude:      1.0,
		CapacityImpact: -2.0,
		Reversible:     true,
	})
	if snap.Capacity != 0.1 {
		t.Fatalf("capacity = %v, want floor 0.1", snap.Capacity)
	}
	if snap.State != StateCritical {
		t.Fatalf("state = %v, want critical at %.0f%% coverage", snap.State, snap.CoverageRate*100)
	}
}

func TestDemandSurgeMultiplicative(t *testing.T) {
	a := New(1.0, 1.0)
	snap := a.ApplyStress(Stress{
		Type:         StressDemandSurge,
		Magnitude:    0.5,
		DemandImpact: 0.25,
	})
	if math.Abs(snap.Demand-1.25) > 1e-9 {
		t.Fatalf("demand = %v, want 1.25", snap.Demand)
	}
	if math.Abs(snap.CoverageRate-0.8) > 1e-9 {
		t.Fatalf("coverage = %v, want 0.8", snap.CoverageRate)
	}
	if snap.State != StateStressed {
		t.Fatalf("state = %v, want stressed", snap.State)
	}
}

func TestCompensationDiminishingReturns(t *testing.T) {
	a := New(1.0, 2.0)
	snap := a.ApplyStress(Stress{Type: StressDemandSurge, Magnitude: 1.0})
	stressID := findStressID(t, a)
	_ = snap

	for i := 0; i < 3; i++ {
		s := a.InitiateCompensation(stressID, Compensation{
			Type:          CompOvertime,
			Magnitude:     0.2,
			Effectiveness: 1.0,
			HiddenCost:    5,
		})
		if s == nil {
			t.Fatalf("compensation %d rejected for known stress", i)
		}
	}

	cur := a.Current()
	// 0.2*1.00 + 0.2*0.85 + 0.2*0.70 = 0.51
	wantEffective := 1.0 + 0.51
	if math.Abs(cur.EffectiveCapacity-wantEffective) > 1e-9 {
		t.Fatalf("effective capacity = %v, want %v", cur.EffectiveCapacity, wantEffective)
	}
	if cur.CompensationDebt != 15 {
		t.Fatalf("debt = %v, want 15", cur.CompensationDebt)
	}
	// debt/100 + effective compensation * 0.3 = 0.15 + 0.153
	wantBurnout := 0.15 + 0.51*0.3
	if math.Abs(cur.BurnoutRisk-wantBurnout) > 1e-9 {
		t.Fatalf("burnout = %v, want %v", cur.BurnoutRisk, wantBurnout)
	}
}

func TestInitiateCompensationUnknownStress(t *testing.T) {
	a := New(1.0, 1.0)
	if got := a.InitiateCompensation(mustUUID(t), Compensation{Type: CompOvertime}); got != nil {
		t.Fatalf("expected nil snapshot for unknown stress, got %+v", got)
	}
}

func TestResolveStressRestoresAndEndsCompensations(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := New(1.0, 1.0)
	a.SetClock(fixedClock(now))

	a.ApplyStress(Stress{
		Type:           StressFacultyLoss,
		Magnitude:      0.5,
		CapacityImpact: -0.3,
		Reversible:     true,
	})
	stressID := findStressID(t, a)
	a.InitiateCompensation(stressID, Compensation{
		Type:               CompCrossCoverage,
		Magnitude:          0.2,
		Effectiveness:      0.8,
		HiddenCost:         10,
		SustainabilityDays: 14,
	})

	snap, ok := a.ResolveStress(stressID)
	if !ok {
		t.Fatal("ResolveStress returned ok=false for known stress")
	}
	if math.Abs(snap.Capacity-1.0) > 1e-9 {
		t.Fatalf("capacity after resolve = %v, want 1.0 restored", snap.Capacity)
	}
	if snap.ActiveCompensations != 0 {
		t.Fatalf("active compensations = %d, want 0 after resolve", snap.ActiveCompensations)
	}
	// Debt is history; resolving the stress does not forgive it.
	if snap.CompensationDebt != 10 {
		t.Fatalf("debt = %v, want 10", snap.CompensationDebt)
	}
	if snap.DaysUntilExhaustion != -1 {
		t.Fatalf("exhaustion = %d, want -1 with nothing active", snap.DaysUntilExhaustion)
	}

	for _, c := range a.compensations {
		if c.Active || c.EndReason != "stress_resolved" || c.EndedAt == nil || !c.EndedAt.Equal(now) {
			t.Fatalf("compensation not closed out correctly: %+v", c)
		}
	}
}

func TestResolveUnknownStress(t *testing.T) {
	a := New(1.0, 1.0)
	if _, ok := a.ResolveStress(mustUUID(t)); ok {
		t.Fatal("ResolveStress returned ok=true for unknown id")
	}
}

func TestDaysUntilExhaustionIsMinimum(t *testing.T) {
	a := New(1.0, 1.5)
	a.ApplyStress(Stress{Type: StressDemandSurge, Magnitude: 0.5})
	stressID := findStressID(t, a)
	a.InitiateCompensation(stressID, Compensation{Type: CompOvertime, Magnitude: 0.1, Effectiveness: 1, SustainabilityDays: 21})
	a.InitiateCompensation(stressID, Compensation{Type: CompDeferredLeave, Magnitude: 0.1, Effectiveness: 1, SustainabilityDays: 7})

	if got := a.Current().DaysUntilExhaustion; got != 7 {
		t.Fatalf("exhaustion = %d, want 7 (tightest compensation)", got)
	}
}

func TestStateLadder(t *testing.T) {
	tests := []struct {
		name     string
		capacity float64
		demand   float64
		want     State
	}{
		{"stable", 1.0, 1.0, StateStable},
		{"strained band, nothing compensating", 0.92, 1.0, StateStrained},
		{"stressed", 0.85, 1.0, StateStressed},
		{"unsustainable", 0.7, 1.0, StateUnsustainable},
		{"critical", 0.5, 1.0, StateCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(tt.capacity, tt.demand)
			if got := a.Current().State; got != tt.want {
				t.Fatalf("state = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompensatingRequiresActiveCompensation(t *testing.T) {
	a := New(0.92, 1.0)
	a.ApplyStress(Stress{Type: StressDemandSurge, Magnitude: 0.1})
	stressID := findStressID(t, a)

	if got := a.Current().State; got != StateStrained {
		t.Fatalf("state = %v, want strained before any compensation", got)
	}

	a.InitiateCompensation(stressID, Compensation{
		Type:               CompCrossCoverage,
		Magnitude:          0.05,
		Effectiveness:      1,
		SustainabilityDays: 14,
	})
	if got := a.Current().State; got != StateCompensating {
		t.Fatalf("state = %v, want compensating with an active compensation", got)
	}
}

func TestResolveStressReversesOnlyEffectiveDelta(t *testing.T) {
	a := New(0.3, 1.0)

	// Nominal impact -0.5, but the floor clamp absorbs 0.3 of it.
	snap := a.ApplyStress(Stress{
		Type:           StressFacultyLoss,
		Magnitude:      0.5,
		CapacityImpact: -0.5,
		Reversible:     true,
	})
	if math.Abs(snap.Capacity-0.1) > 1e-9 {
		t.Fatalf("capacity after stress = %v, want clamped 0.1", snap.Capacity)
	}

	snap, ok := a.ResolveStress(findStressID(t, a))
	if !ok {
		t.Fatal("ResolveStress returned ok=false for known stress")
	}
	if math.Abs(snap.Capacity-0.3) > 1e-9 {
		t.Fatalf("capacity after resolve = %v, want 0.3, not over-restored", snap.Capacity)
	}
}

func TestPredictStressResponseDoesNotMutate(t *testing.T) {
	a := New(1.0, 1.0)
	before := a.Current()

	p := a.PredictStressResponse(StressFacultyLoss, 0.8, 45, -0.4, 0.0)
	if math.Abs(p.PredictedCapacity-0.6) > 1e-9 {
		t.Fatalf("predicted capacity = %v, want 0.6", p.PredictedCapacity)
	}
	if math.Abs(p.PredictedCoverage-0.6) > 1e-9 {
		t.Fatalf("predicted coverage = %v, want 0.6", p.PredictedCoverage)
	}
	if math.Abs(p.DailyCost-40) > 1e-9 {
		t.Fatalf("daily cost = %v, want 40", p.DailyCost)
	}
	if math.Abs(p.TotalCost-1800) > 1e-9 {
		t.Fatalf("total cost = %v, want 1800", p.TotalCost)
	}
	if len(p.RecommendedActions) == 0 {
		t.Fatal("expected recommended actions for a 60% coverage prediction")
	}
	found := false
	for _, action := range p.RecommendedActions {
		if action == "begin replacement recruitment" {
			found = true
		}
	}
	if !found {
		t.Fatal("long-duration faculty loss should recommend recruitment")
	}

	after := a.Current()
	if before != after {
		t.Fatalf("prediction mutated state: before=%+v after=%+v", before, after)
	}
}

func TestPredictionSevereGapClampsAtFloor(t *testing.T) {
	a := New(1.0, 1.0)
	p := a.PredictStressResponse(StressResourceScarcity, 1.0, 7, -2.0, 0.0)
	if p.PredictedCapacity != 0.1 {
		t.Fatalf("predicted capacity = %v, want floor 0.1", p.PredictedCapacity)
	}
	if p.Sustainability != "immediate intervention required" {
		t.Fatalf("sustainability = %q", p.Sustainability)
	}
}

func findStressID(t *testing.T, a *Analyzer) uuid.UUID {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	for k := range a.stresses {
		return k
	}
	t.Fatal("no active stress")
	return uuid.Nil
}

func mustUUID(t *testing.T) uuid.UUID {
	t.Helper()
	return uuid.MustParse("01020304-0000-0000-0000-000000000000")
}
