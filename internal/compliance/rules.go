package compliance

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/schedcu/core/internal/types"
)

// isoWeek keys a Monday-start ISO week.
type isoWeek struct {
	year int
	week int
}

// checkWorkHours enforces the 80-hour rule. Weekly hours are counted per
// ISO week; rolling 28-day windows anchored at every distinct duty date
// average across four weeks. One violation is emitted per resident,
// carrying the aggregate statistics.
func (v *Validator) checkWorkHours(data *scheduleData, res *Result) {
	for personID, assigns := range data.byPerson {
		p := data.people[personID]
		if p == nil || !p.IsResident() {
			continue
		}
		res.ChecksRun++

		weekly := make(map[isoWeek]float64)
		days := make(map[time.Time]int) // duty day -> block count
		var first, last time.Time
		for _, a := range assigns {
			b := data.blocks[a.BlockID]
			if b == nil {
				continue
			}
			y, w := b.Date.ISOWeek()
			weekly[isoWeek{y, w}] += types.HoursPerBlock
			d := b.Day()
			days[d]++
			if first.IsZero() || d.Before(first) {
				first = d
			}
			if last.IsZero() || d.After(last) {
				last = d
			}
		}
		if len(weekly) == 0 {
			continue
		}

		var maxWeekly, sumWeekly float64
		weeksOver := 0
		for _, h := range weekly {
			sumWeekly += h
			if h > maxWeekly {
				maxWeekly = h
			}
			if h > weeklyHourLimit {
				weeksOver++
			}
		}
		avgWeekly := sumWeekly / float64(len(weekly))

		// Rolling 28-day windows anchored at each distinct duty date.
		var maxRollingAvg float64
		for anchor := range days {
			var total float64
			for d, n := range days {
				offset := int(d.Sub(anchor).Hours() / 24)
				if offset >= 0 && offset < rollingWindowLen {
					total += float64(n) * types.HoursPerBlock
				}
			}
			if avg := total / 4; avg > maxRollingAvg {
				maxRollingAvg = avg
			}
		}

		warnLimit := weeklyHourLimit * warningFraction
		worst := math.Max(maxWeekly, maxRollingAvg)
		if worst <= warnLimit {
			continue
		}

		severity := SeverityWarning
		if worst > weeklyHourLimit {
			severity = SeverityCritical
		}
		pid := personID
		res.Violations = append(res.Violations, Violation{
			RuleType:  RuleWorkHours,
			Severity:  severity,
			PersonID:  &pid,
			StartDate: first,
			EndDate:   last,
			Message: fmt.Sprintf("%s averaged %.1f hours/week (limit %.0f)",
				p.Name, round1(avgWeekly), weeklyHourLimit),
			Details: map[string]any{
				"average_weekly_hours": round1(avgWeekly),
				"max_weekly_hours":     round1(maxWeekly),
				"max_rolling_average":  round1(maxRollingAvg),
				"weeks_over_limit":     weeksOver,
			},
			SuggestedFix: "reduce block assignments in the affected weeks or redistribute to other residents",
		})
	}
}

// checkConsecutiveDuty enforces the 1-in-7 rule: more than six
// consecutive calendar days with at least one assignment is critical.
func (v *Validator) checkConsecutiveDuty(data *scheduleData, res *Result) {
	for personID, assigns := range data.byPerson {
		p := data.people[personID]
		if p == nil || !p.IsResident() {
			continue
		}
		res.ChecksRun++

		daySet := make(map[time.Time]bool)
		for _, a := range assigns {
			if b := data.blocks[a.BlockID]; b != nil {
				daySet[b.Day()] = true
			}
		}
		if len(daySet) == 0 {
			continue
		}
		days := make([]time.Time, 0, len(daySet))
		for d := range daySet {
			days = append(days, d)
		}
		sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

		longest, runStart, bestStart := 1, days[0], days[0]
		run := 1
		var bestEnd time.Time = days[0]
		for i := 1; i < len(days); i++ {
			if days[i].Sub(days[i-1]) == 24*time.Hour {
				run++
			} else {
				run = 1
				runStart = days[i]
			}
			if run > longest {
				longest = run
				bestStart = runStart
				bestEnd = days[i]
			}
		}

		if longest <= maxConsecutive {
			continue
		}
		pid := personID
		res.Violations = append(res.Violations, Violation{
			RuleType:  RuleOneInSeven,
			Severity:  SeverityCritical,
			PersonID:  &pid,
			StartDate: bestStart,
			EndDate:   bestEnd,
			Message: fmt.Sprintf("%s worked %d consecutive duty days (maximum %d)",
				p.Name, longest, maxConsecutive),
			Details: map[string]any{
				"consecutive_days": longest,
			},
			SuggestedFix: "insert a day off within the run",
		})
	}
}

// checkSupervision enforces the faculty staffing ratio per block:
// ceil(pgy1/2) + ceil(other_residents/4), floored at one faculty.
func (v *Validator) checkSupervision(data *scheduleData, res *Result) {
	for blockID, assigns := range data.byBlock {
		b := data.blocks[blockID]
		if b == nil {
			continue
		}
		pgy1, others, faculty := 0, 0, 0
		for _, a := range assigns {
			p := data.people[a.PersonID]
			if p == nil {
				continue
			}
			switch {
			case p.IsFaculty():
				faculty++
			case p.PGYLevel == 1:
				pgy1++
			default:
				others++
			}
		}
		if pgy1+others == 0 {
			continue
		}
		res.ChecksRun++

		required := ceilDiv(pgy1, 2) + ceilDiv(others, 4)
		if required < 1 {
			required = 1
		}
		if faculty >= required {
			continue
		}
		res.Violations = append(res.Violations, Violation{
			RuleType:  RuleSupervision,
			Severity:  SeverityCritical,
			StartDate: b.Day(),
			EndDate:   b.Day(),
			Message: fmt.Sprintf("block %s %s has %d faculty for %d residents (requires %d)",
				b.Date.Format("2006-01-02"), b.TimeOfDay, faculty, pgy1+others, required),
			Details: map[string]any{
				"block_id":         blockID.String(),
				"required_faculty": required,
				"assigned_faculty": faculty,
				"deficit":          required - faculty,
				"pgy1_count":       pgy1,
				"other_residents":  others,
			},
			SuggestedFix: "assign additional supervising faculty to the block",
		})
	}
}

// checkAbsenceOverlap flags assignments whose block date falls inside an
// absence interval for the same person.
func (v *Validator) checkAbsenceOverlap(data *scheduleData, res *Result) {
	absencesByPerson := make(map[uuid.UUID][]*types.Absence)
	for _, ab := range data.absences {
		absencesByPerson[ab.PersonID] = append(absencesByPerson[ab.PersonID], ab)
	}

	for personID, assigns := range data.byPerson {
		abs := absencesByPerson[personID]
		if len(abs) == 0 {
			continue
		}
		res.ChecksRun++
		p := data.people[personID]
		name := personID.String()
		if p != nil {
			name = p.Name
		}
		for _, a := range assigns {
			b := data.blocks[a.BlockID]
			if b == nil {
				continue
			}
			for _, ab := range abs {
				if !ab.Covers(b.Date) {
					continue
				}
				pid := personID
				res.Violations = append(res.Violations, Violation{
					RuleType:  RuleAbsenceConflict,
					Severity:  SeverityWarning,
					PersonID:  &pid,
					StartDate: b.Day(),
					EndDate:   b.Day(),
					Message: fmt.Sprintf("%s is assigned on %s during %s absence",
						name, b.Date.Format("2006-01-02"), ab.Type),
					Details: map[string]any{
						"absence_type":  string(ab.Type),
						"absence_start": ab.StartDate.Format("2006-01-02"),
						"absence_end":   ab.EndDate.Format("2006-01-02"),
						"block_id":      b.ID.String(),
					},
					SuggestedFix: "reassign the block or adjust the absence",
				})
				break
			}
		}
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// round1 rounds to one decimal for reporting; internal math stays in
// full float64 precision.
func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
