package store

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"habitPulseAPI/internal/config"
	"habitPulseAPI/internal/habit"
	"habitPulseAPI/internal/ledger"
	"habitPulseAPI/internal/schedule"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Store persists habits and their completion ledger. Every habit read is
// scoped to its owner.
type Store interface {
	ledger.Ledger

	CreateHabit(ctx context.Context, h habit.Habit) error
	GetHabit(ctx context.Context, ownerID string, id uuid.UUID) (habit.Habit, error)
	ListActiveHabits(ctx context.Context, ownerID string) ([]habit.Habit, error)
	ArchiveHabit(ctx context.Context, ownerID string, id uuid.UUID, at time.Time) error
	SaveHealth(ctx context.Context, id uuid.UUID, health float64, checkedAt civil.Date) error

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open connects the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.Database) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err = NewPostgresStore(ctx, cfg.URL)
	case config.DriverSQLite:
		s, err = NewSQLiteStore(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return s, nil
}

func schemaSQL(name string) (string, error) {
	b, err := schemaFS.ReadFile("schema/" + name)
	if err != nil {
		return "", fmt.Errorf("failed to read embedded schema %s: %w", name, err)
	}
	return string(b), nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// finishHabit fills the columns both backends store in encoded form. A
// stored schedule that no longer validates is an error, never a default.
func finishHabit(h habit.Habit, mode string, cfg []byte, start civil.Date, lastCheck *civil.Date) (habit.Habit, error) {
	h.Schedule.Mode = schedule.Mode(mode)
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &h.Schedule.Config); err != nil {
			return habit.Habit{}, fmt.Errorf("failed to decode schedule config: %w", err)
		}
	}
	if err := schedule.Validate(h.Schedule); err != nil {
		return habit.Habit{}, fmt.Errorf("stored habit %s: %w", h.ID, err)
	}
	h.StartDate = start
	h.LastHealthCheckAt = lastCheck
	return h, nil
}
