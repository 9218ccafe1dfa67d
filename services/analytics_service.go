package services

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"habitPulseAPI/internal/habit"
	"habitPulseAPI/internal/heatmap"
	"habitPulseAPI/internal/ledger"
	"habitPulseAPI/internal/store"
	"habitPulseAPI/internal/vitality"
)

const DefaultHeatmapDays = 90

// AnalyticsService is read-only: it never mutates the ledger or habit
// health.
type AnalyticsService struct {
	store      store.Store
	aggregator *heatmap.Aggregator
	days       int
}

func NewAnalyticsService(st store.Store, days int) *AnalyticsService {
	if days < 1 {
		days = DefaultHeatmapDays
	}
	return &AnalyticsService{
		store:      st,
		aggregator: heatmap.NewAggregator(st),
		days:       days,
	}
}

// GetHeatmap builds the trailing-window heatmap ending at end, overall and
// per category, with at-risk and due-today counts for today.
func (s *AnalyticsService) GetHeatmap(ctx context.Context, ownerID string, end, today civil.Date) (*habit.HeatmapResponse, error) {
	if end.After(today) {
		return nil, &habit.ValidationError{Field: "end", Reason: "must not be in the future"}
	}

	habits, err := s.store.ListActiveHabits(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	window := ledger.TrailingDays(end, s.days)
	result, err := s.aggregator.Build(ctx, habits, window.Start, window.End)
	if err != nil {
		return nil, err
	}

	resp := &habit.HeatmapResponse{
		Start:      result.Range.Start,
		End:        result.Range.End,
		Overall:    result.Overall,
		Categories: make(map[uuid.UUID]map[civil.Date]int, len(result.Categories)),
		HabitCount: len(habits),
	}
	for id, series := range result.Categories {
		resp.Categories[id] = series
	}
	for _, h := range habits {
		if vitality.AtRisk(h.Health) {
			resp.HabitsAtRisk++
		}
		if h.IsDue(today) {
			resp.DueToday++
		}
	}
	return resp, nil
}
