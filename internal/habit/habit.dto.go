package habit

import (
	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"habitPulseAPI/internal/schedule"
)

type CreateHabitRequest struct {
	Name           string          `json:"name"`
	CategoryID     *uuid.UUID      `json:"category_id,omitempty"`
	TargetCount    int             `json:"target_count"`
	ScheduleMode   schedule.Mode   `json:"schedule_mode"`
	ScheduleConfig schedule.Config `json:"schedule_config"`
	StartDate      string          `json:"start_date,omitempty"`
}

// CompletionRequest targets the requester's today when Date is empty.
type CompletionRequest struct {
	Date string `json:"date,omitempty"`
}

type CompletionResponse struct {
	HabitID     uuid.UUID  `json:"habit_id"`
	Date        civil.Date `json:"date"`
	Count       int        `json:"count"`
	Streak      int        `json:"streak"`
	Health      float64    `json:"health"`
	HealthState string     `json:"health_state"`
}

type HabitSummary struct {
	Habit
	IsDueToday     bool   `json:"is_due_today"`
	CompletedToday bool   `json:"completed_today"`
	TodayCount     int    `json:"today_count"`
	CurrentStreak  int    `json:"current_streak"`
	HealthState    string `json:"health_state"`
}

type HabitDetail struct {
	HabitSummary
	LongestStreak int `json:"longest_streak"`
}

type StreakResponse struct {
	HabitID uuid.UUID  `json:"habit_id"`
	AsOf    civil.Date `json:"as_of"`
	Streak  int        `json:"streak"`
}

type CalendarDay struct {
	Date  civil.Date `json:"date"`
	Count int        `json:"count"`
	Due   bool       `json:"due"`
	Met   bool       `json:"met"`
	Today bool       `json:"is_today"`
}

type CalendarResponse struct {
	HabitID uuid.UUID      `json:"habit_id"`
	Year    int            `json:"year"`
	Month   int            `json:"month"`
	Days    []*CalendarDay `json:"days"`
}

type HeatmapResponse struct {
	Start        civil.Date                       `json:"start"`
	End          civil.Date                       `json:"end"`
	Overall      map[civil.Date]int               `json:"overall"`
	Categories   map[uuid.UUID]map[civil.Date]int `json:"categories"`
	HabitCount   int                              `json:"habit_count"`
	HabitsAtRisk int                              `json:"habits_at_risk"`
	DueToday     int                              `json:"due_today"`
}
