package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/schedcu/core/internal/storage"
	"github.com/schedcu/core/internal/types"
)

// Options selects which rule families a validation run executes.
// The zero value runs nothing; use DefaultOptions for a full sweep.
type Options struct {
	CheckWorkHours       bool
	CheckSupervision     bool
	CheckRestPeriods     bool
	CheckConsecutiveDuty bool
}

// DefaultOptions enables every rule family.
func DefaultOptions() Options {
	return Options{
		CheckWorkHours:       true,
		CheckSupervision:     true,
		CheckRestPeriods:     true,
		CheckConsecutiveDuty: true,
	}
}

const (
	weeklyHourLimit  = 80.0
	warningFraction  = 0.95
	maxConsecutive   = 6  // duty days; the 7th consecutive day violates
	rollingWindowLen = 28 // calendar days, inclusive
)

// Validator checks assignments against ACGME hard rules.
type Validator struct {
	store storage.Storage
	log   *logrus.Entry
}

// New returns a validator reading from the given store.
func New(store storage.Storage, log *logrus.Entry) *Validator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Validator{store: store, log: log.WithField("component", "compliance")}
}

// scheduleData is the pre-loaded working set for one validation run.
type scheduleData struct {
	people      map[uuid.UUID]*types.Person
	blocks      map[uuid.UUID]*types.Block
	assignments []*types.Assignment
	absences    []*types.Absence

	byPerson map[uuid.UUID][]*types.Assignment
	byBlock  map[uuid.UUID][]*types.Assignment
}

// Validate runs the selected rules over [start, end] and returns every
// violation found. Empty schedules produce an empty result with a
// compliance rate of 1.0.
func (v *Validator) Validate(ctx context.Context, start, end time.Time, opts Options) (*Result, error) {
	data, err := v.load(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule data: %w", err)
	}

	res := &Result{
		StartDate:   start,
		EndDate:     end,
		GeneratedAt: time.Now().UTC(),
		Violations:  []Violation{},
	}

	if opts.CheckWorkHours {
		v.checkWorkHours(data, res)
	}
	if opts.CheckRestPeriods || opts.CheckConsecutiveDuty {
		v.checkConsecutiveDuty(data, res)
	}
	if opts.CheckSupervision {
		v.checkSupervision(data, res)
	}
	v.checkAbsenceOverlap(data, res)

	v.computeRates(data, res, start, end)

	v.log.WithFields(logrus.Fields{
		"violations": len(res.Violations),
		"critical":   res.CriticalCount(),
		"rate":       res.ComplianceRatePercent(),
	}).Debug("compliance validation complete")

	return res, nil
}

func (v *Validator) load(ctx context.Context, start, end time.Time) (*scheduleData, error) {
	people, err := v.store.ListPeople(ctx)
	if err != nil {
		return nil, err
	}
	blocks, err := v.store.ListBlocksInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	assignments, err := v.store.ListAssignmentsInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	absences, err := v.store.ListAbsencesInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	data := &scheduleData{
		people:      make(map[uuid.UUID]*types.Person, len(people)),
		blocks:      make(map[uuid.UUID]*types.Block, len(blocks)),
		assignments: assignments,
		absences:    absences,
		byPerson:    make(map[uuid.UUID][]*types.Assignment),
		byBlock:     make(map[uuid.UUID][]*types.Assignment),
	}
	for _, p := range people {
		data.people[p.ID] = p
	}
	for _, b := range blocks {
		data.blocks[b.ID] = b
	}
	for _, a := range assignments {
		data.byPerson[a.PersonID] = append(data.byPerson[a.PersonID], a)
		data.byBlock[a.BlockID] = append(data.byBlock[a.BlockID], a)
	}
	return data, nil
}

// computeRates derives the overall compliance rate and the schedule
// coverage metric. Coverage excludes weekends and holidays from its
// denominator; work-hour arithmetic never does.
func (v *Validator) computeRates(data *scheduleData, res *Result, start, end time.Time) {
	if res.ChecksRun == 0 {
		res.ComplianceRate = 1.0
	} else {
		rate := 1.0 - float64(len(res.Violations))/float64(res.ChecksRun)
		if rate < 0 {
			rate = 0
		}
		res.ComplianceRate = rate
	}

	weekdayBlocks, covered := 0, 0
	for id, b := range data.blocks {
		if b.IsWeekend || b.IsHoliday {
			continue
		}
		weekdayBlocks++
		if len(data.byBlock[id]) > 0 {
			covered++
		}
	}
	if weekdayBlocks == 0 {
		res.ScheduleCoverage = 1.0
	} else {
		res.ScheduleCoverage = float64(covered) / float64(weekdayBlocks)
	}
}
