package ledger

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// Ledger is the per-(habit, date) completion counter. Records with a zero
// count never persist: the decrement that reaches zero deletes the record.
//
// Implementations must make Increment and Decrement atomic per
// (habit, date) so concurrent taps are never lost.
type Ledger interface {
	Increment(ctx context.Context, habitID uuid.UUID, date civil.Date) (int, error)
	Decrement(ctx context.Context, habitID uuid.UUID, date civil.Date) (int, error)
	CountFor(ctx context.Context, habitID uuid.UUID, date civil.Date) (int, error)
	RangeReader
}

// RangeReader is the batched read used by streaks, vitality and heatmaps.
type RangeReader interface {
	CountsForRange(ctx context.Context, habitIDs []uuid.UUID, r DateRange) (CountIndex, error)
}

type Key struct {
	HabitID uuid.UUID
	Date    civil.Date
}

// CountIndex is an in-memory snapshot of completion counts. Missing keys
// count as zero.
type CountIndex map[Key]int

func (c CountIndex) CountFor(habitID uuid.UUID, date civil.Date) int {
	return c[Key{HabitID: habitID, Date: date}]
}

func (c CountIndex) Set(habitID uuid.UUID, date civil.Date, count int) {
	k := Key{HabitID: habitID, Date: date}
	if count <= 0 {
		delete(c, k)
		return
	}
	c[k] = count
}

// DateRange is an inclusive calendar window.
type DateRange struct {
	Start civil.Date
	End   civil.Date
}

func NewDateRange(start, end civil.Date) (DateRange, error) {
	r := DateRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// TrailingDays is the n-day window ending at end.
func TrailingDays(end civil.Date, n int) DateRange {
	if n < 1 {
		n = 1
	}
	return DateRange{Start: end.AddDays(-(n - 1)), End: end}
}

func (r DateRange) Validate() error {
	if !r.Start.IsValid() || !r.End.IsValid() {
		return fmt.Errorf("invalid date range %s..%s", r.Start, r.End)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("date range end %s is before start %s", r.End, r.Start)
	}
	return nil
}

func (r DateRange) Contains(d civil.Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Len is the number of days in the range, zero when inverted.
func (r DateRange) Len() int {
	if r.End.Before(r.Start) {
		return 0
	}
	return r.End.DaysSince(r.Start) + 1
}

// Days lists every date in the range in ascending order.
func (r DateRange) Days() []civil.Date {
	days := make([]civil.Date, 0, r.Len())
	for d := r.Start; !d.After(r.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}
