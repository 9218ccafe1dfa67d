package habit

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"habitPulseAPI/internal/schedule"
)

type Habit struct {
	ID                uuid.UUID           `json:"id" db:"id"`
	OwnerID           string              `json:"owner_id" db:"owner_id"`
	CategoryID        *uuid.UUID          `json:"category_id,omitempty" db:"category_id"`
	Name              string              `json:"name" db:"name"`
	TargetCount       int                 `json:"target_count" db:"target_count"`
	Schedule          schedule.Definition `json:"schedule"`
	StartDate         civil.Date          `json:"start_date" db:"start_date"`
	Health            float64             `json:"health" db:"health"`
	LastHealthCheckAt *civil.Date         `json:"last_health_check_at,omitempty" db:"last_health_check_at"`
	ArchivedAt        *time.Time          `json:"archived_at,omitempty" db:"archived_at"`
	CreatedAt         time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at" db:"updated_at"`
}

func (h Habit) Archived() bool {
	return h.ArchivedAt != nil
}

// IsDue applies the schedule; a habit is never due before its start date.
func (h Habit) IsDue(date civil.Date) bool {
	return !date.Before(h.StartDate) && schedule.IsDue(h.Schedule, date)
}

// Met reports whether count reaches the per-day target.
func (h Habit) Met(count int) bool {
	return count >= h.TargetCount
}

// Active drops archived habits; the engine never looks at them.
func Active(habits []Habit) []Habit {
	out := make([]Habit, 0, len(habits))
	for _, h := range habits {
		if !h.Archived() {
			out = append(out, h)
		}
	}
	return out
}

func IDs(habits []Habit) []uuid.UUID {
	ids := make([]uuid.UUID, len(habits))
	for i, h := range habits {
		ids[i] = h.ID
	}
	return ids
}
