package streak

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"habitPulseAPI/internal/habit"
	"habitPulseAPI/internal/ledger"
	"habitPulseAPI/utils"
)

const (
	// MaxLookbackDays bounds how far back a single walk may read.
	MaxLookbackDays = 3660
	// DefaultChunkDays is how many days each batched ledger read covers.
	DefaultChunkDays = 62
)

type Result struct {
	AsOf civil.Date `json:"as_of"`
	// Streak is the user-facing value, after the grace rule.
	Streak int `json:"streak"`
	// Raw is the walk from AsOf itself; zero when today is due and unmet.
	Raw          int  `json:"raw"`
	GraceApplied bool `json:"grace_applied"`
}

type Calculator struct {
	reader    ledger.RangeReader
	chunkDays int
}

func NewCalculator(reader ledger.RangeReader) *Calculator {
	return &Calculator{reader: reader, chunkDays: DefaultChunkDays}
}

// WithChunkDays changes the size of each batched read.
func (c *Calculator) WithChunkDays(n int) *Calculator {
	if n > 0 {
		c.chunkDays = n
	}
	return c
}

// Current is the streak shown to the user for asOf, the most recent date.
// A zero walk falls back to the walk from the day before, so a still
// correctable today does not hide yesterday's streak.
func (c *Calculator) Current(ctx context.Context, h habit.Habit, asOf civil.Date) (Result, error) {
	raw, err := c.AsOf(ctx, h, asOf)
	if err != nil {
		return Result{}, err
	}
	res := Result{AsOf: asOf, Streak: raw, Raw: raw}
	if raw > 0 {
		return res, nil
	}

	prev, err := c.AsOf(ctx, h, asOf.AddDays(-1))
	if err != nil {
		return Result{}, err
	}
	res.Streak = prev
	res.GraceApplied = true
	return res, nil
}

// AsOf is the historical streak ending at asOf, without the grace rule.
func (c *Calculator) AsOf(ctx context.Context, h habit.Habit, asOf civil.Date) (int, error) {
	floor := utils.MaxDate(h.StartDate, asOf.AddDays(-(MaxLookbackDays - 1)))
	if asOf.Before(floor) {
		return 0, nil
	}

	streak := 0
	end := asOf
	for {
		start := utils.MaxDate(floor, end.AddDays(-(c.chunkDays - 1)))
		window := ledger.DateRange{Start: start, End: end}

		counts, err := c.reader.CountsForRange(ctx, []uuid.UUID{h.ID}, window)
		if err != nil {
			return 0, fmt.Errorf("failed to read completions for streak: %w", err)
		}

		n, broken := Walk(h, window, counts)
		streak += n
		if broken || start == floor {
			return streak, nil
		}
		end = start.AddDays(-1)
	}
}

// Walk steps backward from r.End to r.Start. Non-due days are skipped; a
// due day under target stops the walk and reports broken.
func Walk(h habit.Habit, r ledger.DateRange, counts ledger.CountIndex) (streak int, broken bool) {
	for d := r.End; !d.Before(r.Start); d = d.AddDays(-1) {
		if !h.IsDue(d) {
			continue
		}
		if !h.Met(counts.CountFor(h.ID, d)) {
			return streak, true
		}
		streak++
	}
	return streak, false
}

// Longest is the longest run of met due days inside r, scanning forward.
func Longest(h habit.Habit, r ledger.DateRange, counts ledger.CountIndex) int {
	start := utils.MaxDate(r.Start, h.StartDate)
	best, run := 0, 0
	for d := start; !d.After(r.End); d = d.AddDays(1) {
		if !h.IsDue(d) {
			continue
		}
		if h.Met(counts.CountFor(h.ID, d)) {
			run++
			best = max(best, run)
			continue
		}
		run = 0
	}
	return best
}
