package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"habitPulseAPI/internal/habit"
	"habitPulseAPI/internal/ledger"
	"habitPulseAPI/utils"
)

// SQLiteStore is the single-node backend used for local runs and tests.
// It holds exactly one connection, which serializes every writer.
type SQLiteStore struct {
	db *sqlx.DB
}

type sqliteHabitRow struct {
	ID                string         `db:"id"`
	OwnerID           string         `db:"owner_id"`
	CategoryID        sql.NullString `db:"category_id"`
	Name              string         `db:"name"`
	TargetCount       int            `db:"target_count"`
	ScheduleMode      string         `db:"schedule_mode"`
	ScheduleConfig    string         `db:"schedule_config"`
	StartDate         string         `db:"start_date"`
	Health            float64        `db:"health"`
	LastHealthCheckAt sql.NullString `db:"last_health_check_at"`
	ArchivedAt        sql.NullString `db:"archived_at"`
	CreatedAt         string         `db:"created_at"`
	UpdatedAt         string         `db:"updated_at"`
}

// NewSQLiteStore opens (or creates) the database at path; ":memory:" gives
// a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	ddl, err := schemaSQL("sqlite.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("applying sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateHabit(ctx context.Context, h habit.Habit) error {
	cfg, err := json.Marshal(h.Schedule.Config)
	if err != nil {
		return fmt.Errorf("encoding schedule config: %w", err)
	}

	var categoryID, lastCheck, archivedAt *string
	if h.CategoryID != nil {
		v := h.CategoryID.String()
		categoryID = &v
	}
	if h.LastHealthCheckAt != nil {
		v := h.LastHealthCheckAt.String()
		lastCheck = &v
	}
	if h.ArchivedAt != nil {
		v := formatTime(*h.ArchivedAt)
		archivedAt = &v
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO habits (
			id, owner_id, category_id, name, target_count, schedule_mode, schedule_config,
			start_date, health, last_health_check_at, archived_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID.String(), h.OwnerID, categoryID, h.Name, h.TargetCount,
		string(h.Schedule.Mode), string(cfg),
		h.StartDate.String(), h.Health, lastCheck, archivedAt,
		formatTime(h.CreatedAt), formatTime(h.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("creating habit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetHabit(ctx context.Context, ownerID string, id uuid.UUID) (habit.Habit, error) {
	var row sqliteHabitRow
	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM habits WHERE id = ? AND owner_id = ?", id.String(), ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return habit.Habit{}, habit.ErrHabitNotFound
		}
		return habit.Habit{}, fmt.Errorf("getting habit: %w", err)
	}
	return row.toHabit()
}

func (s *SQLiteStore) ListActiveHabits(ctx context.Context, ownerID string) ([]habit.Habit, error) {
	var rows []sqliteHabitRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM habits
		WHERE owner_id = ? AND archived_at IS NULL
		ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing habits: %w", err)
	}

	habits := make([]habit.Habit, 0, len(rows))
	for _, row := range rows {
		h, err := row.toHabit()
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	return habits, nil
}

func (s *SQLiteStore) ArchiveHabit(ctx context.Context, ownerID string, id uuid.UUID, at time.Time) error {
	ts := formatTime(at)
	result, err := s.db.ExecContext(ctx, `
		UPDATE habits SET archived_at = COALESCE(archived_at, ?), updated_at = ?
		WHERE id = ? AND owner_id = ?`, ts, ts, id.String(), ownerID)
	if err != nil {
		return fmt.Errorf("archiving habit: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking archived rows: %w", err)
	}
	if n == 0 {
		return habit.ErrHabitNotFound
	}
	return nil
}

func (s *SQLiteStore) SaveHealth(ctx context.Context, id uuid.UUID, health float64, checkedAt civil.Date) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE habits SET health = ?, last_health_check_at = ?, updated_at = ?
		WHERE id = ? AND (last_health_check_at IS NULL OR last_health_check_at < ?)`,
		health, checkedAt.String(), formatTime(time.Now()), id.String(), checkedAt.String())
	if err != nil {
		return fmt.Errorf("saving habit health: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Increment(ctx context.Context, habitID uuid.UUID, date civil.Date) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		INSERT INTO habit_completions (habit_id, date, count, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (habit_id, date)
		DO UPDATE SET count = habit_completions.count + 1, updated_at = excluded.updated_at
		RETURNING count`,
		habitID.String(), date.String(), formatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("incrementing completion: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) Decrement(ctx context.Context, habitID uuid.UUID, date civil.Date) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.GetContext(ctx, &count,
		"SELECT count FROM habit_completions WHERE habit_id = ? AND date = ?",
		habitID.String(), date.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading completion: %w", err)
	}

	if count > 1 {
		count--
		_, err = tx.ExecContext(ctx, `
			UPDATE habit_completions SET count = ?, updated_at = ?
			WHERE habit_id = ? AND date = ?`,
			count, formatTime(time.Now()), habitID.String(), date.String())
	} else {
		count = 0
		_, err = tx.ExecContext(ctx,
			"DELETE FROM habit_completions WHERE habit_id = ? AND date = ?",
			habitID.String(), date.String())
	}
	if err != nil {
		return 0, fmt.Errorf("decrementing completion: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing decrement: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) CountFor(ctx context.Context, habitID uuid.UUID, date civil.Date) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT count FROM habit_completions WHERE habit_id = ? AND date = ?",
		habitID.String(), date.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading completion: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) CountsForRange(ctx context.Context, habitIDs []uuid.UUID, r ledger.DateRange) (ledger.CountIndex, error) {
	counts := ledger.CountIndex{}
	if len(habitIDs) == 0 {
		return counts, nil
	}

	query, args, err := sqlx.In(`
		SELECT habit_id, date, count FROM habit_completions
		WHERE habit_id IN (?) AND date >= ? AND date <= ?`,
		uuidStrings(habitIDs), r.Start.String(), r.End.String())
	if err != nil {
		return nil, fmt.Errorf("building completion query: %w", err)
	}

	var rows []struct {
		HabitID string `db:"habit_id"`
		Date    string `db:"date"`
		Count   int    `db:"count"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("fetching completions: %w", err)
	}

	for _, row := range rows {
		id, err := uuid.Parse(row.HabitID)
		if err != nil {
			return nil, fmt.Errorf("parsing habit id %q: %w", row.HabitID, err)
		}
		d, err := utils.ParseDate(row.Date)
		if err != nil {
			return nil, err
		}
		counts.Set(id, d, row.Count)
	}
	return counts, nil
}

func (row sqliteHabitRow) toHabit() (habit.Habit, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return habit.Habit{}, fmt.Errorf("parsing habit id %q: %w", row.ID, err)
	}
	h := habit.Habit{
		ID:          id,
		OwnerID:     row.OwnerID,
		Name:        row.Name,
		TargetCount: row.TargetCount,
		Health:      row.Health,
	}

	if row.CategoryID.Valid {
		c, err := uuid.Parse(row.CategoryID.String)
		if err != nil {
			return habit.Habit{}, fmt.Errorf("parsing category id: %w", err)
		}
		h.CategoryID = &c
	}
	if h.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return habit.Habit{}, err
	}
	if h.UpdatedAt, err = parseTime(row.UpdatedAt); err != nil {
		return habit.Habit{}, err
	}
	if row.ArchivedAt.Valid {
		t, err := parseTime(row.ArchivedAt.String)
		if err != nil {
			return habit.Habit{}, err
		}
		h.ArchivedAt = &t
	}

	start, err := utils.ParseDate(row.StartDate)
	if err != nil {
		return habit.Habit{}, fmt.Errorf("parsing start_date: %w", err)
	}
	var lastCheck *civil.Date
	if row.LastHealthCheckAt.Valid {
		d, err := utils.ParseDate(row.LastHealthCheckAt.String)
		if err != nil {
			return habit.Habit{}, fmt.Errorf("parsing last_health_check_at: %w", err)
		}
		lastCheck = &d
	}

	return finishHabit(h, row.ScheduleMode, []byte(row.ScheduleConfig), start, lastCheck)
}

// timestampLayout is fixed-width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
