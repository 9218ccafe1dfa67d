package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"habitPulseAPI/internal/habit"
	"habitPulseAPI/internal/ledger"
)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: pool}, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	ddl, err := schemaSQL("postgres.sql")
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, ddl)
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) CreateHabit(ctx context.Context, h habit.Habit) error {
	cfg, err := json.Marshal(h.Schedule.Config)
	if err != nil {
		return fmt.Errorf("failed to encode schedule config: %w", err)
	}

	query := `
	INSERT INTO habits (id, owner_id, category_id, name, target_count, schedule_mode, schedule_config,
		start_date, health, last_health_check_at, archived_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = s.db.Exec(ctx, query,
		h.ID,
		h.OwnerID,
		h.CategoryID,
		h.Name,
		h.TargetCount,
		string(h.Schedule.Mode),
		cfg,
		dateParam(h.StartDate),
		h.Health,
		optionalDateParam(h.LastHealthCheckAt),
		h.ArchivedAt,
		h.CreatedAt,
		h.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create habit: %w", err)
	}
	return nil
}

const pgHabitColumns = `id, owner_id, category_id, name, target_count, schedule_mode, schedule_config,
	start_date, health, last_health_check_at, archived_at, created_at, updated_at`

func scanPgHabit(row pgx.Row) (habit.Habit, error) {
	var (
		h         habit.Habit
		mode      string
		cfg       []byte
		start     time.Time
		lastCheck *time.Time
	)
	err := row.Scan(
		&h.ID,
		&h.OwnerID,
		&h.CategoryID,
		&h.Name,
		&h.TargetCount,
		&mode,
		&cfg,
		&start,
		&h.Health,
		&lastCheck,
		&h.ArchivedAt,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		return habit.Habit{}, err
	}
	return finishHabit(h, mode, cfg, civil.DateOf(start), optionalDate(lastCheck))
}

func (s *PostgresStore) GetHabit(ctx context.Context, ownerID string, id uuid.UUID) (habit.Habit, error) {
	query := `SELECT ` + pgHabitColumns + ` FROM habits WHERE id = $1 AND owner_id = $2`

	h, err := scanPgHabit(s.db.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return habit.Habit{}, habit.ErrHabitNotFound
		}
		return habit.Habit{}, fmt.Errorf("failed to get habit: %w", err)
	}
	return h, nil
}

func (s *PostgresStore) ListActiveHabits(ctx context.Context, ownerID string) ([]habit.Habit, error) {
	query := `SELECT ` + pgHabitColumns + `
	FROM habits
	WHERE owner_id = $1 AND archived_at IS NULL
	ORDER BY created_at, id`

	rows, err := s.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	defer rows.Close()

	var habits []habit.Habit
	for rows.Next() {
		h, err := scanPgHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan habit: %w", err)
		}
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	return habits, nil
}

func (s *PostgresStore) ArchiveHabit(ctx context.Context, ownerID string, id uuid.UUID, at time.Time) error {
	result, err := s.db.Exec(ctx, `
		UPDATE habits SET archived_at = COALESCE(archived_at, $3), updated_at = $3
		WHERE id = $1 AND owner_id = $2`, id, ownerID, at)
	if err != nil {
		return fmt.Errorf("failed to archive habit: %w", err)
	}
	if result.RowsAffected() == 0 {
		return habit.ErrHabitNotFound
	}
	return nil
}

// SaveHealth never moves last_health_check_at backwards, so two requests
// racing on the same day apply the daily update once.
func (s *PostgresStore) SaveHealth(ctx context.Context, id uuid.UUID, health float64, checkedAt civil.Date) error {
	_, err := s.db.Exec(ctx, `
		UPDATE habits SET health = $2, last_health_check_at = $3, updated_at = NOW()
		WHERE id = $1 AND (last_health_check_at IS NULL OR last_health_check_at < $3)`,
		id, health, dateParam(checkedAt))
	if err != nil {
		return fmt.Errorf("failed to save habit health: %w", err)
	}
	return nil
}

// Increment relies on the primary key upsert, which takes the row lock, so
// concurrent increments on the same day are all counted.
func (s *PostgresStore) Increment(ctx context.Context, habitID uuid.UUID, date civil.Date) (int, error) {
	query := `
	INSERT INTO habit_completions (habit_id, date, count, updated_at)
	VALUES ($1, $2, 1, NOW())
	ON CONFLICT (habit_id, date)
	DO UPDATE SET count = habit_completions.count + 1, updated_at = NOW()
	RETURNING count
	`

	var count int
	if err := s.db.QueryRow(ctx, query, habitID, dateParam(date)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to increment completion: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Decrement(ctx context.Context, habitID uuid.UUID, date civil.Date) (int, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var count int
	err = tx.QueryRow(ctx, `
		SELECT count FROM habit_completions
		WHERE habit_id = $1 AND date = $2
		FOR UPDATE`, habitID, dateParam(date)).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to lock completion: %w", err)
	}

	if count > 1 {
		err = tx.QueryRow(ctx, `
			UPDATE habit_completions SET count = count - 1, updated_at = NOW()
			WHERE habit_id = $1 AND date = $2
			RETURNING count`, habitID, dateParam(date)).Scan(&count)
		if err != nil {
			return 0, fmt.Errorf("failed to decrement completion: %w", err)
		}
	} else {
		if _, err := tx.Exec(ctx, `DELETE FROM habit_completions WHERE habit_id = $1 AND date = $2`,
			habitID, dateParam(date)); err != nil {
			return 0, fmt.Errorf("failed to delete completion: %w", err)
		}
		count = 0
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit decrement: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountFor(ctx context.Context, habitID uuid.UUID, date civil.Date) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT count FROM habit_completions WHERE habit_id = $1 AND date = $2`,
		habitID, dateParam(date)).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get completion count: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountsForRange(ctx context.Context, habitIDs []uuid.UUID, r ledger.DateRange) (ledger.CountIndex, error) {
	counts := ledger.CountIndex{}
	if len(habitIDs) == 0 {
		return counts, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT habit_id, date, count
		FROM habit_completions
		WHERE habit_id = ANY($1::uuid[])
			AND date >= $2
			AND date <= $3`,
		uuidStrings(habitIDs), dateParam(r.Start), dateParam(r.End))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch completions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    uuid.UUID
			date  time.Time
			count int
		)
		if err := rows.Scan(&id, &date, &count); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		counts.Set(id, civil.DateOf(date), count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch completions: %w", err)
	}
	return counts, nil
}

// DATE columns travel as UTC midnight.
func dateParam(d civil.Date) time.Time {
	return d.In(time.UTC)
}

func optionalDateParam(d *civil.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := dateParam(*d)
	return &t
}

func optionalDate(t *time.Time) *civil.Date {
	if t == nil {
		return nil
	}
	d := civil.DateOf(*t)
	return &d
}
