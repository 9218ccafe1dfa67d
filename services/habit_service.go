package services

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"habitPulseAPI/internal/habit"
	"habitPulseAPI/internal/ledger"
	"habitPulseAPI/internal/logger"
	"habitPulseAPI/internal/store"
	"habitPulseAPI/internal/streak"
	"habitPulseAPI/internal/vitality"
	"habitPulseAPI/utils"
)

const (
	// longestStreakWindow is how far back habit detail looks for the best run.
	longestStreakWindow = 365
	listConcurrency     = 4
)

// HabitService owns the completion flow: every ledger mutation is followed
// by a streak and vitality recompute for that habit within the same call.
type HabitService struct {
	store    store.Store
	streaks  *streak.Calculator
	vitality vitality.Model
	now      func() time.Time
}

func NewHabitService(st store.Store, model vitality.Model) *HabitService {
	return &HabitService{
		store:    st,
		streaks:  streak.NewCalculator(st),
		vitality: model,
		now:      time.Now,
	}
}

func (s *HabitService) CreateHabit(ctx context.Context, ownerID string, req *habit.CreateHabitRequest, today civil.Date) (*habit.HabitDetail, error) {
	h, err := habit.New(ownerID, *req, today, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateHabit(ctx, h); err != nil {
		return nil, err
	}

	logger.Info("Habit created", "habit", h.ID, "owner", ownerID, "mode", h.Schedule.Mode)

	// Nothing is recorded yet, so today adds nothing.
	return &habit.HabitDetail{
		HabitSummary: habit.HabitSummary{
			Habit:       h,
			IsDueToday:  h.IsDue(today),
			HealthState: string(vitality.StateOf(h.Health)),
		},
	}, nil
}

func (s *HabitService) GetHabit(ctx context.Context, ownerID string, id uuid.UUID, today civil.Date) (*habit.HabitDetail, error) {
	h, err := s.store.GetHabit(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, h, today)
}

// ListHabits returns the owner's active habits with their due flag, current
// streak and refreshed health.
func (s *HabitService) ListHabits(ctx context.Context, ownerID string, today civil.Date) ([]*habit.HabitSummary, error) {
	habits, err := s.store.ListActiveHabits(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	summaries := make([]*habit.HabitSummary, len(habits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, h := range habits {
		i, h := i, h
		g.Go(func() error {
			summary, err := s.summarize(gctx, h, today)
			if err != nil {
				return fmt.Errorf("habit %s: %w", h.ID, err)
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *HabitService) ArchiveHabit(ctx context.Context, ownerID string, id uuid.UUID) error {
	if err := s.store.ArchiveHabit(ctx, ownerID, id, s.now().UTC()); err != nil {
		return err
	}
	logger.Info("Habit archived", "habit", id, "owner", ownerID)
	return nil
}

func (s *HabitService) IncrementCompletion(ctx context.Context, ownerID string, id uuid.UUID, date, today civil.Date) (*habit.CompletionResponse, error) {
	return s.mutate(ctx, ownerID, id, date, today, s.store.Increment)
}

func (s *HabitService) DecrementCompletion(ctx context.Context, ownerID string, id uuid.UUID, date, today civil.Date) (*habit.CompletionResponse, error) {
	return s.mutate(ctx, ownerID, id, date, today, s.store.Decrement)
}

type ledgerMutation func(ctx context.Context, habitID uuid.UUID, date civil.Date) (int, error)

func (s *HabitService) mutate(ctx context.Context, ownerID string, id uuid.UUID, date, today civil.Date, apply ledgerMutation) (*habit.CompletionResponse, error) {
	h, err := s.store.GetHabit(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := h.CheckCompletionDate(date, today); err != nil {
		return nil, err
	}

	count, err := apply(ctx, h.ID, date)
	if err != nil {
		return nil, err
	}

	h, err = s.refreshHealth(ctx, h, today)
	if err != nil {
		return nil, err
	}
	current, err := s.streaks.Current(ctx, h, today)
	if err != nil {
		return nil, err
	}

	logger.Debug("Completion recorded", "habit", h.ID, "date", date, "count", count, "streak", current.Streak)

	return &habit.CompletionResponse{
		HabitID:     h.ID,
		Date:        date,
		Count:       count,
		Streak:      current.Streak,
		Health:      h.Health,
		HealthState: string(vitality.StateOf(h.Health)),
	}, nil
}

// StreakAsOf is the historical streak ending at asOf (no grace rule).
func (s *HabitService) StreakAsOf(ctx context.Context, ownerID string, id uuid.UUID, asOf, today civil.Date) (*habit.StreakResponse, error) {
	if asOf.After(today) {
		return nil, &habit.ValidationError{Field: "as_of", Reason: fmt.Sprintf("%s is in the future", asOf)}
	}
	h, err := s.store.GetHabit(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	n, err := s.streaks.AsOf(ctx, h, asOf)
	if err != nil {
		return nil, err
	}
	return &habit.StreakResponse{HabitID: h.ID, AsOf: asOf, Streak: n}, nil
}

func (s *HabitService) GetCalendar(ctx context.Context, ownerID string, id uuid.UUID, year int, month time.Month, today civil.Date) (*habit.CalendarResponse, error) {
	if month < time.January || month > time.December {
		return nil, &habit.ValidationError{Field: "month", Reason: "must be between 1 and 12"}
	}
	h, err := s.store.GetHabit(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	first, last := utils.MonthBounds(year, month)
	window := ledger.DateRange{Start: first, End: last}
	counts, err := s.store.CountsForRange(ctx, []uuid.UUID{h.ID}, window)
	if err != nil {
		return nil, err
	}

	days := make([]*habit.CalendarDay, 0, window.Len())
	for _, d := range window.Days() {
		count := counts.CountFor(h.ID, d)
		due := h.IsDue(d)
		days = append(days, &habit.CalendarDay{
			Date:  d,
			Count: count,
			Due:   due,
			Met:   due && h.Met(count),
			Today: d == today,
		})
	}

	return &habit.CalendarResponse{
		HabitID: h.ID,
		Year:    year,
		Month:   int(month),
		Days:    days,
	}, nil
}

// refreshHealth settles every day before today, persisting the result once
// per day, and returns the habit with the health to show for today. Today
// itself is never stamped, so a later completion still counts.
func (s *HabitService) refreshHealth(ctx context.Context, h habit.Habit, today civil.Date) (habit.Habit, error) {
	window, ok := s.vitality.Pending(h, today)
	if !ok {
		return h, nil
	}

	counts, err := s.store.CountsForRange(ctx, []uuid.UUID{h.ID}, window)
	if err != nil {
		return h, err
	}

	settled := s.vitality.Settle(h, today, counts)
	if stampMoved(h.LastHealthCheckAt, settled.LastHealthCheckAt) {
		if err := s.store.SaveHealth(ctx, settled.ID, settled.Health, *settled.LastHealthCheckAt); err != nil {
			return h, err
		}
	}

	shown := settled
	shown.Health = s.vitality.Current(settled, today, counts)
	if vitality.StateOf(shown.Health) != vitality.StateOf(h.Health) {
		logger.Info("Habit health state changed", "habit", h.ID,
			"from", vitality.StateOf(h.Health), "to", vitality.StateOf(shown.Health), "health", shown.Health)
	}
	return shown, nil
}

func stampMoved(before, after *civil.Date) bool {
	if after == nil {
		return false
	}
	return before == nil || *before != *after
}

func (s *HabitService) summarize(ctx context.Context, h habit.Habit, today civil.Date) (*habit.HabitSummary, error) {
	h, err := s.refreshHealth(ctx, h, today)
	if err != nil {
		return nil, err
	}
	current, err := s.streaks.Current(ctx, h, today)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountFor(ctx, h.ID, today)
	if err != nil {
		return nil, err
	}

	return &habit.HabitSummary{
		Habit:          h,
		IsDueToday:     h.IsDue(today),
		CompletedToday: h.Met(count),
		TodayCount:     count,
		CurrentStreak:  current.Streak,
		HealthState:    string(vitality.StateOf(h.Health)),
	}, nil
}

func (s *HabitService) detail(ctx context.Context, h habit.Habit, today civil.Date) (*habit.HabitDetail, error) {
	summary, err := s.summarize(ctx, h, today)
	if err != nil {
		return nil, err
	}

	window := ledger.TrailingDays(today, longestStreakWindow)
	counts, err := s.store.CountsForRange(ctx, []uuid.UUID{h.ID}, window)
	if err != nil {
		return nil, err
	}

	return &habit.HabitDetail{
		HabitSummary:  *summary,
		LongestStreak: streak.Longest(h, window, counts),
	}, nil
}
