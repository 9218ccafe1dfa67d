package heatmap

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"habitPulseAPI/internal/habit"
	"habitPulseAPI/internal/ledger"
)

// Series maps each date of a window to a 0-100 completion percentage.
type Series map[civil.Date]int

type Result struct {
	Range      ledger.DateRange
	Overall    Series
	Categories map[uuid.UUID]Series
}

// Percentage is floor(completed*100/total); an empty set is 0.
func Percentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return completed * 100 / total
}

// Build computes the series for habits over r from an already loaded
// snapshot. Archived habits are ignored.
func Build(habits []habit.Habit, r ledger.DateRange, counts ledger.CountIndex) Series {
	habits = habit.Active(habits)
	series := make(Series, r.Len())
	for _, d := range r.Days() {
		completed := 0
		for _, h := range habits {
			if h.Met(counts.CountFor(h.ID, d)) {
				completed++
			}
		}
		series[d] = Percentage(completed, len(habits))
	}
	return series
}

// BuildByCategory runs Build once per category. Uncategorized habits and
// categories without active habits are left out.
func BuildByCategory(habits []habit.Habit, r ledger.DateRange, counts ledger.CountIndex) map[uuid.UUID]Series {
	groups := make(map[uuid.UUID][]habit.Habit)
	for _, h := range habit.Active(habits) {
		if h.CategoryID == nil {
			continue
		}
		groups[*h.CategoryID] = append(groups[*h.CategoryID], h)
	}

	out := make(map[uuid.UUID]Series, len(groups))
	for id, group := range groups {
		out[id] = Build(group, r, counts)
	}
	return out
}

// Aggregator serves heatmaps from a single batched ledger read.
type Aggregator struct {
	reader ledger.RangeReader
}

func NewAggregator(reader ledger.RangeReader) *Aggregator {
	return &Aggregator{reader: reader}
}

func (a *Aggregator) Build(ctx context.Context, habits []habit.Habit, start, end civil.Date) (*Result, error) {
	r, err := ledger.NewDateRange(start, end)
	if err != nil {
		return nil, err
	}

	habits = habit.Active(habits)
	counts := ledger.CountIndex{}
	if len(habits) > 0 {
		counts, err = a.reader.CountsForRange(ctx, habit.IDs(habits), r)
		if err != nil {
			return nil, fmt.Errorf("failed to read completions for heatmap: %w", err)
		}
	}

	return &Result{
		Range:      r,
		Overall:    Build(habits, r, counts),
		Categories: BuildByCategory(habits, r, counts),
	}, nil
}
