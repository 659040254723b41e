package contingency

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/schedcu/core/internal/storage"
	"github.com/schedcu/core/internal/types"
)

// DefaultMaxN2Pairs bounds pairwise simulation work when the caller
// does not set a limit.
const DefaultMaxN2Pairs = 100

// Options configures one analysis run.
type Options struct {
	// CoverageRequirements overrides the required provider count per
	// block. Blocks absent from the map require one provider.
	CoverageRequirements map[uuid.UUID]int
	// CurrentUtilization feeds the phase-transition indicators; values
	// above 0.95 flag the critical zone.
	CurrentUtilization float64
	IncludeN2          bool
	MaxN2Pairs         int
}

// Analyzer runs contingency simulations over a date range.
type Analyzer struct {
	store storage.Storage
	log   *logrus.Entry
}

// New returns an analyzer reading from the given store.
func New(store storage.Storage, log *logrus.Entry) *Analyzer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Analyzer{store: store, log: log.WithField("component", "contingency")}
}

// lookup holds the O(1) tables built in a single pass over assignments.
// Every simulation afterward touches only the affected faculty's blocks.
type lookup struct {
	byFaculty   map[uuid.UUID][]*types.Assignment
	byBlock     map[uuid.UUID][]*types.Assignment
	counts      map[uuid.UUID]int
	faculty     map[uuid.UUID]*types.Person
	totalBlocks int
	totalAssign int
}

// facultyOnBlock counts faculty providers on a block, excluding the ids
// in skip.
func (l *lookup) facultyOnBlock(blockID uuid.UUID, skip ...uuid.UUID) int {
	n := 0
outer:
	for _, a := range l.byBlock[blockID] {
		if _, isFaculty := l.faculty[a.PersonID]; !isFaculty {
			continue
		}
		for _, s := range skip {
			if a.PersonID == s {
				continue outer
			}
		}
		n++
	}
	return n
}

// Analyze runs N-1 (and optionally N-2) simulations over [start, end].
func (a *Analyzer) Analyze(ctx context.Context, start, end time.Time, opts Options) (*Report, error) {
	tables, err := a.buildLookup(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to build lookup tables: %w", err)
	}

	report := &Report{
		StartDate:       start,
		EndDate:         end,
		N1Pass:          true,
		Recommendations: []string{},
		GeneratedAt:     time.Now().UTC(),
		VersionID:       a.store.TransactionID(),
	}

	if len(tables.faculty) == 0 {
		report.RiskLevel = RiskLow
		return report, nil
	}

	for _, f := range sortedFaculty(tables) {
		sim := a.simulateLoss(tables, f, opts)
		report.Simulations = append(report.Simulations, sim)
		if len(sim.UncoveredBlocks) > 0 {
			report.N1Pass = false
		}
	}

	if opts.IncludeN2 {
		maxPairs := opts.MaxN2Pairs
		if maxPairs <= 0 {
			maxPairs = DefaultMaxN2Pairs
		}
		report.FatalPairs = a.simulatePairs(tables, report.Simulations, opts, maxPairs)
	}

	report.Centrality = a.centrality(tables)
	a.assessRisk(report, opts)
	a.recommend(report, tables)

	a.log.WithFields(logrus.Fields{
		"faculty":     len(tables.faculty),
		"n1_pass":     report.N1Pass,
		"fatal_pairs": len(report.FatalPairs),
		"risk":        report.RiskLevel,
	}).Debug("contingency analysis complete")

	return report, nil
}

func (a *Analyzer) buildLookup(ctx context.Context, start, end time.Time) (*lookup, error) {
	people, err := a.store.ListPeople(ctx)
	if err != nil {
		return nil, err
	}
	blocks, err := a.store.ListBlocksInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	assignments, err := a.store.ListAssignmentsInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	tables := &lookup{
		byFaculty:   make(map[uuid.UUID][]*types.Assignment),
		byBlock:     make(map[uuid.UUID][]*types.Assignment),
		counts:      make(map[uuid.UUID]int),
		faculty:     make(map[uuid.UUID]*types.Person),
		totalBlocks: len(blocks),
		totalAssign: len(assignments),
	}
	for _, p := range people {
		if p.IsFaculty() {
			tables.faculty[p.ID] = p
		}
	}
	// Single pass; everything downstream is O(affected blocks).
	for _, asg := range assignments {
		tables.byBlock[asg.BlockID] = append(tables.byBlock[asg.BlockID], asg)
		if _, ok := tables.faculty[asg.PersonID]; ok {
			tables.byFaculty[asg.PersonID] = append(tables.byFaculty[asg.PersonID], asg)
			tables.counts[asg.PersonID]++
		}
	}
	return tables, nil
}

func sortedFaculty(tables *lookup) []*types.Person {
	out := make([]*types.Person, 0, len(tables.faculty))
	for _, f := range tables.faculty {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// simulateLoss removes one faculty member and measures the damage.
func (a *Analyzer) simulateLoss(tables *lookup, f *types.Person, opts Options) FacultySimulation {
	sim := FacultySimulation{
		FacultyID:         f.ID,
		FacultyName:       f.Name,
		TotalAssignments:  tables.counts[f.ID],
		CoverageRemaining: 1.0,
		Severity:          SeverityLow,
	}
	if sim.TotalAssignments == 0 {
		return sim
	}

	for _, asg := range tables.byFaculty[f.ID] {
		required := 1
		if opts.CoverageRequirements != nil {
			if req, ok := opts.CoverageRequirements[asg.BlockID]; ok {
				required = req
			}
		}
		remaining := tables.facultyOnBlock(asg.BlockID, f.ID)
		if remaining < required {
			sim.AffectedBlocks = append(sim.AffectedBlocks, asg.BlockID)
		}
		if remaining == 0 {
			sim.UncoveredBlocks = append(sim.UncoveredBlocks, asg.BlockID)
		}
	}

	total := tables.totalBlocks
	if total > 0 {
		sim.CoverageRemaining = 1.0 - float64(len(sim.AffectedBlocks))/float64(total)
	}
	sim.IsUniqueProvider = len(sim.UncoveredBlocks) > 0
	sim.Severity = classify(sim, total)
	return sim
}

// classify applies the severity ladder. Increasing affected-block counts
// never decrease severity.
func classify(sim FacultySimulation, totalBlocks int) Severity {
	if sim.IsUniqueProvider {
		return SeverityCritical
	}
	affected := len(sim.AffectedBlocks)
	var ratio float64
	if totalBlocks > 0 {
		ratio = float64(affected) / float64(totalBlocks)
	}
	switch {
	case ratio > 0.20:
		return SeverityCritical
	case ratio > 0.10 || affected > 10:
		return SeverityHigh
	case ratio > 0.05 || affected > 5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// simulatePairs evaluates N-2 over the union of critical and high N-1
// faculty, falling back to the ten busiest when that set is too small.
func (a *Analyzer) simulatePairs(tables *lookup, sims []FacultySimulation, opts Options, maxPairs int) []FatalPair {
	var candidates []uuid.UUID
	for _, s := range sims {
		if s.Severity == SeverityCritical || s.Severity == SeverityHigh {
			candidates = append(candidates, s.FacultyID)
		}
	}
	if len(candidates) < 2 {
		candidates = topByAssignments(tables, 10)
	}

	var pairs []FatalPair
	evaluated := 0
	for i := 0; i < len(candidates) && evaluated < maxPairs; i++ {
		for j := i + 1; j < len(candidates) && evaluated < maxPairs; j++ {
			evaluated++
			f1, f2 := candidates[i], candidates[j]

			blockSet := make(map[uuid.UUID]bool)
			for _, asg := range tables.byFaculty[f1] {
				blockSet[asg.BlockID] = true
			}
			for _, asg := range tables.byFaculty[f2] {
				blockSet[asg.BlockID] = true
			}

			var uncovered []uuid.UUID
			for blockID := range blockSet {
				if tables.facultyOnBlock(blockID, f1, f2) == 0 {
					uncovered = append(uncovered, blockID)
				}
			}
			if len(uncovered) > 0 {
				sort.Slice(uncovered, func(x, y int) bool {
					return uncovered[x].String() < uncovered[y].String()
				})
				pairs = append(pairs, FatalPair{Faculty1: f1, Faculty2: f2, UncoveredBlocks: uncovered})
			}
		}
	}
	return pairs
}

func topByAssignments(tables *lookup, n int) []uuid.UUID {
	type fc struct {
		id    uuid.UUID
		count int
	}
	all := make([]fc, 0, len(tables.faculty))
	for id := range tables.faculty {
		all = append(all, fc{id, tables.counts[id]})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].id.String() < all[j].id.String()
	})
	if len(all) > n {
		all = all[:n]
	}
	out := make([]uuid.UUID, len(all))
	for i, f := range all {
		out[i] = f.id
	}
	return out
}

// assessRisk tallies the phase-transition indicators and sets the tag.
func (a *Analyzer) assessRisk(report *Report, opts Options) {
	var indicators []string
	if opts.CurrentUtilization > 0.95 {
		indicators = append(indicators, "critical zone")
	}
	if len(report.CriticalSimulations()) >= 3 {
		indicators = append(indicators, "cascade risk")
	}
	if len(report.FatalPairs) >= 5 {
		indicators = append(indicators, "fragile")
	}
	report.RiskIndicators = indicators
	switch {
	case len(indicators) >= 3:
		report.RiskLevel = RiskCritical
	case len(indicators) >= 2:
		report.RiskLevel = RiskHigh
	case len(indicators) >= 1:
		report.RiskLevel = RiskMedium
	default:
		report.RiskLevel = RiskLow
	}
}

// recommend produces prioritized mitigation guidance.
func (a *Analyzer) recommend(report *Report, tables *lookup) {
	for _, sim := range report.CriticalSimulations() {
		report.Recommendations = append(report.Recommendations, fmt.Sprintf(
			"cross-train coverage for %s: sole provider on %d block(s)",
			sim.FacultyName, len(sim.UncoveredBlocks)))
	}
	if len(report.FatalPairs) > 0 {
		report.Recommendations = append(report.Recommendations, fmt.Sprintf(
			"%d faculty pair(s) are jointly irreplaceable; stagger their leave windows",
			len(report.FatalPairs)))
	}
	if !report.N1Pass && len(report.Recommendations) == 0 {
		report.Recommendations = append(report.Recommendations,
			"increase backup coverage: at least one block loses all coverage on a single faculty loss")
	}
}
