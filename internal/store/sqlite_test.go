package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitPulseAPI/internal/config"
	"habitPulseAPI/internal/habit"
	"habitPulseAPI/internal/ledger"
	"habitPulseAPI/internal/schedule"
	"habitPulseAPI/internal/store"
	"habitPulseAPI/internal/store/storetest"
)

var (
	jan1 = civil.Date{Year: 2024, Month: 1, Day: 1}
	now  = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
)

func createHabit(t *testing.T, s store.Store, owner string, def schedule.Definition) habit.Habit {
	t.Helper()
	h := habit.Habit{
		ID:          uuid.New(),
		OwnerID:     owner,
		Name:        "Meditate",
		TargetCount: 1,
		Schedule:    def,
		StartDate:   jan1,
		Health:      habit.InitialHealth,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.CreateHabit(context.Background(), h))
	return h
}

func TestHabitRoundTrip(t *testing.T) {
	s := storetest.NewSQLite(t)
	ctx := context.Background()

	category := uuid.New()
	h := habit.Habit{
		ID:          uuid.New(),
		OwnerID:     "user_1",
		CategoryID:  &category,
		Name:        "Run",
		TargetCount: 2,
		Schedule:    schedule.Interval(3, jan1),
		StartDate:   jan1,
		Health:      90,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.CreateHabit(ctx, h))

	got, err := s.GetHabit(ctx, "user_1", h.ID)
	require.NoError(t, err)
	assert.Equal(t, h.ID, got.ID)
	assert.Equal(t, &category, got.CategoryID)
	assert.Equal(t, schedule.ModeInterval, got.Schedule.Mode)
	assert.Equal(t, 3, got.Schedule.Config.IntervalDays)
	require.NotNil(t, got.Schedule.Config.AnchorDate)
	assert.Equal(t, jan1, *got.Schedule.Config.AnchorDate)
	assert.Equal(t, jan1, got.StartDate)
	assert.Equal(t, 90.0, got.Health)
	assert.Nil(t, got.LastHealthCheckAt)
	assert.True(t, now.Equal(got.CreatedAt))
}

func TestGetHabitRejectsInvalidStoredSchedule(t *testing.T) {
	s := storetest.NewSQLite(t)
	ctx := context.Background()

	tests := []struct {
		name string
		def  schedule.Definition
	}{
		{"interval without anchor", schedule.Definition{Mode: schedule.ModeInterval, Config: schedule.Config{IntervalDays: 3}}},
		{"interval of zero days", schedule.Interval(0, jan1)},
		{"specific days empty", schedule.Definition{Mode: schedule.ModeSpecificDays}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner := "user_" + tt.name
			h := createHabit(t, s, owner, tt.def)

			_, err := s.GetHabit(ctx, owner, h.ID)
			assert.ErrorIs(t, err, schedule.ErrInvalidConfig)

			_, err = s.ListActiveHabits(ctx, owner)
			assert.ErrorIs(t, err, schedule.ErrInvalidConfig)
		})
	}
}

func TestGetHabitIsOwnerScoped(t *testing.T) {
	s := storetest.NewSQLite(t)
	h := createHabit(t, s, "user_1", schedule.Flexible())

	_, err := s.GetHabit(context.Background(), "user_2", h.ID)
	assert.ErrorIs(t, err, habit.ErrHabitNotFound)

	_, err = s.GetHabit(context.Background(), "user_1", uuid.New())
	assert.ErrorIs(t, err, habit.ErrHabitNotFound)
}

func TestArchiveHabit(t *testing.T) {
	s := storetest.NewSQLite(t)
	ctx := context.Background()
	kept := createHabit(t, s, "user_1", schedule.Flexible())
	archived := createHabit(t, s, "user_1", schedule.SpecificDays(1, 3))
	createHabit(t, s, "user_2", schedule.Flexible())

	require.NoError(t, s.ArchiveHabit(ctx, "user_1", archived.ID, now.Add(time.Hour)))
	assert.ErrorIs(t, s.ArchiveHabit(ctx, "user_2", kept.ID, now), habit.ErrHabitNotFound)

	active, err := s.ListActiveHabits(ctx, "user_1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, kept.ID, active[0].ID)

	got, err := s.GetHabit(ctx, "user_1", archived.ID)
	require.NoError(t, err)
	assert.True(t, got.Archived())
}

func TestIncrementDecrement(t *testing.T) {
	s := storetest.NewSQLite(t)
	ctx := context.Background()
	h := createHabit(t, s, "user_1", schedule.Flexible())

	n, err := s.Decrement(ctx, h.ID, jan1)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "decrement without a record is a no-op")

	for want := 1; want <= 3; want++ {
		n, err = s.Increment(ctx, h.ID, jan1)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	n, err = s.Decrement(ctx, h.ID, jan1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Decrement(ctx, h.ID, jan1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.Decrement(ctx, h.ID, jan1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.CountFor(ctx, h.ID, jan1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	counts, err := s.CountsForRange(ctx, []uuid.UUID{h.ID}, ledger.DateRange{Start: jan1, End: jan1})
	require.NoError(t, err)
	assert.Empty(t, counts, "a record decremented to zero is deleted")
}

func TestConcurrentIncrementsAreNotLost(t *testing.T) {
	s := storetest.NewSQLite(t)
	ctx := context.Background()
	h := createHabit(t, s, "user_1", schedule.Flexible())

	const taps = 20
	var wg sync.WaitGroup
	for i := 0; i < taps; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Increment(ctx, h.ID, jan1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := s.CountFor(ctx, h.ID, jan1)
	require.NoError(t, err)
	assert.Equal(t, taps, n)
}

func TestCountsForRange(t *testing.T) {
	s := storetest.NewSQLite(t)
	ctx := context.Background()
	a := createHabit(t, s, "user_1", schedule.Flexible())
	b := createHabit(t, s, "user_1", schedule.Flexible())
	other := createHabit(t, s, "user_1", schedule.Flexible())

	for _, inc := range []struct {
		id   uuid.UUID
		date civil.Date
	}{
		{a.ID, jan1}, {a.ID, jan1}, {a.ID, jan1.AddDays(5)},
		{b.ID, jan1.AddDays(1)}, {b.ID, jan1.AddDays(40)},
		{other.ID, jan1},
	} {
		_, err := s.Increment(ctx, inc.id, inc.date)
		require.NoError(t, err)
	}

	counts, err := s.CountsForRange(ctx, []uuid.UUID{a.ID, b.ID}, ledger.DateRange{Start: jan1, End: jan1.AddDays(30)})
	require.NoError(t, err)
	assert.Len(t, counts, 3)
	assert.Equal(t, 2, counts.CountFor(a.ID, jan1))
	assert.Equal(t, 1, counts.CountFor(a.ID, jan1.AddDays(5)))
	assert.Equal(t, 1, counts.CountFor(b.ID, jan1.AddDays(1)))
	assert.Equal(t, 0, counts.CountFor(other.ID, jan1))

	empty, err := s.CountsForRange(ctx, nil, ledger.DateRange{Start: jan1, End: jan1})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSaveHealthOncePerDay(t *testing.T) {
	s := storetest.NewSQLite(t)
	ctx := context.Background()
	h := createHabit(t, s, "user_1", schedule.Flexible())
	day := jan1.AddDays(3)

	require.NoError(t, s.SaveHealth(ctx, h.ID, 70, day))
	require.NoError(t, s.SaveHealth(ctx, h.ID, 40, day))

	got, err := s.GetHabit(ctx, "user_1", h.ID)
	require.NoError(t, err)
	assert.Equal(t, 70.0, got.Health, "a second update for the same day is ignored")
	require.NotNil(t, got.LastHealthCheckAt)
	assert.Equal(t, day, *got.LastHealthCheckAt)

	require.NoError(t, s.SaveHealth(ctx, h.ID, 80, day.AddDays(1)))
	got, err = s.GetHabit(ctx, "user_1", h.ID)
	require.NoError(t, err)
	assert.Equal(t, 80.0, got.Health)
}

func TestIncrementRequiresHabit(t *testing.T) {
	s := storetest.NewSQLite(t)
	ctx := context.Background()

	_, err := s.Increment(ctx, uuid.New(), jan1)
	assert.Error(t, err, "completions cannot reference a missing habit")
}

func TestOpenSQLite(t *testing.T) {
	s, err := store.Open(context.Background(), config.Database{
		Driver:      config.DriverSQLite,
		SQLitePath:  ":memory:",
		AutoMigrate: true,
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(context.Background()))
	habits, err := s.ListActiveHabits(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, habits)

	_, err = store.Open(context.Background(), config.Database{Driver: "mysql"})
	assert.Error(t, err)
}
