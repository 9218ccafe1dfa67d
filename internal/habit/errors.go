package habit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"habitPulseAPI/internal/schedule"
	"habitPulseAPI/utils"
)

const (
	MaxNameLength = 120
	InitialHealth = 100
	// MaxBackdateDays bounds how far before today a habit may start, which
	// also bounds the first health update.
	MaxBackdateDays = 3660
)

var (
	ErrHabitNotFound = errors.New("habit not found")
	ErrHabitArchived = errors.New("habit is archived")
)

// ValidationError is a client mistake in a write request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// New validates req and builds the habit that will be persisted. The
// schedule is normalized here so readers never need to default anything.
func New(ownerID string, req CreateHabitRequest, today civil.Date, now time.Time) (Habit, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Habit{}, invalid("owner_id", "is required")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Habit{}, invalid("name", "is required")
	}
	if len(name) > MaxNameLength {
		return Habit{}, invalid("name", "must be at most %d characters", MaxNameLength)
	}
	if req.TargetCount < 1 {
		return Habit{}, invalid("target_count", "must be at least 1")
	}

	start, err := utils.ParseOptionalDate(req.StartDate, today)
	if err != nil {
		return Habit{}, invalid("start_date", "%v", err)
	}
	if earliest := today.AddDays(-MaxBackdateDays); start.Before(earliest) {
		return Habit{}, invalid("start_date", "must not be before %s", earliest)
	}

	def, err := schedule.Normalize(schedule.Definition{Mode: req.ScheduleMode, Config: req.ScheduleConfig}, start)
	if err != nil {
		return Habit{}, invalid("schedule_config", "%v", err)
	}

	return Habit{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		CategoryID:  req.CategoryID,
		Name:        name,
		TargetCount: req.TargetCount,
		Schedule:    def,
		StartDate:   start,
		Health:      InitialHealth,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CheckCompletionDate rejects dates the ledger must not record for h.
func (h Habit) CheckCompletionDate(date, today civil.Date) error {
	if h.Archived() {
		return ErrHabitArchived
	}
	if date.After(today) {
		return invalid("date", "%s is in the future", date)
	}
	if date.Before(h.StartDate) {
		return invalid("date", "%s is before the habit start date %s", date, h.StartDate)
	}
	return nil
}
