package types

import (
	"time"

	"github.com/google/uuid"
)

// HoursPerBlock is the fixed work-hour contribution of a single half-day
// block toward ACGME tallies.
const HoursPerBlock = 6

// TimeOfDay identifies the half-day a block covers.
type TimeOfDay string

const (
	TimeOfDayAM TimeOfDay = "AM"
	TimeOfDayPM TimeOfDay = "PM"
)

// Block is the atomic half-day scheduling unit.
type Block struct {
	ID          uuid.UUID `json:"id"`
	Date        time.Time `json:"date"`
	TimeOfDay   TimeOfDay `json:"time_of_day"`
	BlockNumber int       `json:"block_number"` // 1-based within day
	IsWeekend   bool      `json:"is_weekend"`
	IsHoliday   bool      `json:"is_holiday"`
}

// Day returns the block's date truncated to midnight UTC, the canonical
// key for per-day grouping.
func (b *Block) Day() time.Time {
	return time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), 0, 0, 0, 0, time.UTC)
}

// StartEnd returns the local wall-clock span the block covers in the
// given location. AM blocks run 08:00-12:00, PM blocks 13:00-17:00.
func (b *Block) StartEnd(loc *time.Location) (time.Time, time.Time) {
	y, m, d := b.Date.Date()
	if b.TimeOfDay == TimeOfDayPM {
		return time.Date(y, m, d, 13, 0, 0, 0, loc), time.Date(y, m, d, 17, 0, 0, 0, loc)
	}
	return time.Date(y, m, d, 8, 0, 0, 0, loc), time.Date(y, m, d, 12, 0, 0, 0, loc)
}
