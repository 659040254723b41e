package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/schedcu/core/internal/storage/memory"
	"github.com/schedcu/core/internal/types"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// seedBlocks creates AM and PM blocks for each day in [start, end] and
// returns them keyed by day and slot.
func seedBlocks(t *testing.T, store *memory.Store, start, end time.Time) map[time.Time]map[types.TimeOfDay]*types.Block {
	t.Helper()
	ctx := context.Background()
	out := make(map[time.Time]map[types.TimeOfDay]*types.Block)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out[d] = make(map[types.TimeOfDay]*types.Block)
		for i, slot := range []types.TimeOfDay{types.TimeOfDayAM, types.TimeOfDayPM} {
			wd := d.Weekday()
			b := &types.Block{
				ID:          uuid.New(),
				Date:        d,
				TimeOfDay:   slot,
				BlockNumber: i + 1,
				IsWeekend:   wd == time.Saturday || wd == time.Sunday,
			}
			require.NoError(t, store.PutBlock(ctx, b))
			out[d][slot] = b
		}
	}
	return out
}

func assign(t *testing.T, store *memory.Store, block *types.Block, personID uuid.UUID) {
	t.Helper()
	require.NoError(t, store.CreateAssignment(context.Background(), &types.Assignment{
		ID:       uuid.New(),
		BlockID:  block.ID,
		PersonID: personID,
		Role:     types.RolePrimary,
	}))
}

func TestValidateEmptySchedule(t *testing.T) {
	store := memory.New()
	v := New(store, nil)

	res, err := v.Validate(context.Background(), date(2025, 1, 1), date(2025, 1, 31), DefaultOptions())
	require.NoError(t, err)
	require.Empty(t, res.Violations)
	require.Equal(t, 1.0, res.ComplianceRate)
}

// Fourteen consecutive full duty days at 12 hours/day averages 84 h/week
// and must trip both the 80-hour rule and the 1-in-7 rule.
func TestValidateEightyHourAndOneInSeven(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	resident := &types.Person{ID: uuid.New(), Name: "R. Chen", Type: types.PersonTypeResident, PGYLevel: 2}
	require.NoError(t, store.PutPerson(ctx, resident))

	start, end := date(2025, 1, 6), date(2025, 1, 19)
	blocks := seedBlocks(t, store, start, end)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		assign(t, store, blocks[d][types.TimeOfDayAM], resident.ID)
		assign(t, store, blocks[d][types.TimeOfDayPM], resident.ID)
	}

	v := New(store, nil)
	res, err := v.Validate(ctx, start, end, Options{CheckWorkHours: true, CheckConsecutiveDuty: true})
	require.NoError(t, err)

	var workHours, oneInSeven *Violation
	for i := range res.Violations {
		switch res.Violations[i].RuleType {
		case RuleWorkHours:
			workHours = &res.Violations[i]
		case RuleOneInSeven:
			oneInSeven = &res.Violations[i]
		}
	}

	require.NotNil(t, workHours, "expected an 80-hour violation")
	require.Equal(t, SeverityCritical, workHours.Severity)
	require.InDelta(t, 84.0, workHours.Details["average_weekly_hours"], 0.01)

	require.NotNil(t, oneInSeven, "expected a 1-in-7 violation")
	require.Equal(t, SeverityCritical, oneInSeven.Severity)
	require.Equal(t, 14, oneInSeven.Details["consecutive_days"])
}

func TestValidateWorkHoursWarningBand(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	resident := &types.Person{ID: uuid.New(), Name: "J. Ortiz", Type: types.PersonTypeResident, PGYLevel: 3}
	require.NoError(t, store.PutPerson(ctx, resident))

	// 13 blocks in one ISO week = 78 hours: above the 76-hour warning
	// threshold, below the 80-hour critical limit.
	start, end := date(2025, 1, 6), date(2025, 1, 12)
	blocks := seedBlocks(t, store, start, end)
	placed := 0
	for d := start; !d.After(end) && placed < 13; d = d.AddDate(0, 0, 1) {
		for _, slot := range []types.TimeOfDay{types.TimeOfDayAM, types.TimeOfDayPM} {
			if placed == 13 {
				break
			}
			assign(t, store, blocks[d][slot], resident.ID)
			placed++
		}
	}

	v := New(store, nil)
	res, err := v.Validate(ctx, start, end, Options{CheckWorkHours: true})
	require.NoError(t, err)
	require.Len(t, res.Violations, 1)
	require.Equal(t, RuleWorkHours, res.Violations[0].RuleType)
	require.Equal(t, SeverityWarning, res.Violations[0].Severity)
}

func TestValidateSupervisionRatio(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	// Three PGY-1s and five seniors on one block need
	// ceil(3/2) + ceil(5/4) = 2 + 2 = 4 faculty.
	var residents []*types.Person
	for i := 0; i < 3; i++ {
		residents = append(residents, &types.Person{ID: uuid.New(), Type: types.PersonTypeResident, PGYLevel: 1})
	}
	for i := 0; i < 5; i++ {
		residents = append(residents, &types.Person{ID: uuid.New(), Type: types.PersonTypeResident, PGYLevel: 2})
	}
	faculty := &types.Person{ID: uuid.New(), Type: types.PersonTypeFaculty, Role: types.RoleCore}
	for _, p := range residents {
		require.NoError(t, store.PutPerson(ctx, p))
	}
	require.NoError(t, store.PutPerson(ctx, faculty))

	d := date(2025, 2, 3)
	blocks := seedBlocks(t, store, d, d)
	block := blocks[d][types.TimeOfDayAM]
	for _, p := range residents {
		assign(t, store, block, p.ID)
	}
	assign(t, store, block, faculty.ID)

	v := New(store, nil)
	res, err := v.Validate(ctx, d, d, Options{CheckSupervision: true})
	require.NoError(t, err)
	require.Len(t, res.Violations, 1)

	viol := res.Violations[0]
	require.Equal(t, RuleSupervision, viol.RuleType)
	require.Equal(t, SeverityCritical, viol.Severity)
	require.Equal(t, 4, viol.Details["required_faculty"])
	require.Equal(t, 1, viol.Details["assigned_faculty"])
	require.Equal(t, 3, viol.Details["deficit"])
}

func TestValidateAbsenceOverlap(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	resident := &types.Person{ID: uuid.New(), Name: "A. Patel", Type: types.PersonTypeResident, PGYLevel: 1}
	require.NoError(t, store.PutPerson(ctx, resident))

	d := date(2025, 3, 10)
	blocks := seedBlocks(t, store, d, d)
	assign(t, store, blocks[d][types.TimeOfDayAM], resident.ID)

	require.NoError(t, store.PutAbsence(ctx, &types.Absence{
		ID:        uuid.New(),
		PersonID:  resident.ID,
		StartDate: date(2025, 3, 8),
		EndDate:   date(2025, 3, 12),
		Type:      types.AbsenceVacation,
	}))

	v := New(store, nil)
	res, err := v.Validate(ctx, d, d, Options{})
	require.NoError(t, err)
	require.Len(t, res.Violations, 1)
	require.Equal(t, RuleAbsenceConflict, res.Violations[0].RuleType)
	require.Equal(t, SeverityWarning, res.Violations[0].Severity)
}

func TestWeeklyHoursEquivalence(t *testing.T) {
	// For any window, weekly hours must equal assignment count times six.
	ctx := context.Background()
	store := memory.New()
	resident := &types.Person{ID: uuid.New(), Name: "T. Kim", Type: types.PersonTypeResident, PGYLevel: 2}
	require.NoError(t, store.PutPerson(ctx, resident))

	start, end := date(2025, 4, 7), date(2025, 4, 13)
	blocks := seedBlocks(t, store, start, end)
	count := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		assign(t, store, blocks[d][types.TimeOfDayAM], resident.ID)
		count++
	}

	assignments, err := store.ListAssignmentsInRange(ctx, start, end)
	require.NoError(t, err)
	require.Equal(t, count, len(assignments))
	require.Equal(t, float64(count*types.HoursPerBlock), float64(len(assignments)*6))
}
