package streak

import (
	"context"
	"errors"
	"slices"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitPulseAPI/internal/habit"
	"habitPulseAPI/internal/ledger"
	"habitPulseAPI/internal/schedule"
)

type fakeReader struct {
	counts ledger.CountIndex
	calls  []ledger.DateRange
	err    error
}

func (f *fakeReader) CountsForRange(_ context.Context, ids []uuid.UUID, r ledger.DateRange) (ledger.CountIndex, error) {
	f.calls = append(f.calls, r)
	if f.err != nil {
		return nil, f.err
	}
	out := ledger.CountIndex{}
	for k, v := range f.counts {
		if r.Contains(k.Date) && slices.Contains(ids, k.HabitID) {
			out[k] = v
		}
	}
	return out, nil
}

func day(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newHabit(def schedule.Definition, start string) habit.Habit {
	return habit.Habit{
		ID:          uuid.New(),
		OwnerID:     "owner-1",
		Name:        "Read",
		TargetCount: 1,
		Schedule:    def,
		StartDate:   day(start),
		Health:      100,
	}
}

func completed(h habit.Habit, dates ...string) *fakeReader {
	f := &fakeReader{counts: ledger.CountIndex{}}
	for _, d := range dates {
		f.counts.Set(h.ID, day(d), f.counts.CountFor(h.ID, day(d))+1)
	}
	return f
}

func TestCurrentConsecutiveDays(t *testing.T) {
	h := newHabit(schedule.Flexible(), "2024-01-01")
	calc := NewCalculator(completed(h, "2024-01-01", "2024-01-02", "2024-01-03"))

	res, err := calc.Current(context.Background(), h, day("2024-01-03"))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Streak)
	assert.Equal(t, 3, res.Raw)
	assert.False(t, res.GraceApplied)
}

func TestCurrentGraceKeepsYesterdaysStreak(t *testing.T) {
	h := newHabit(schedule.Flexible(), "2024-01-01")
	reader := completed(h, "2024-01-01", "2024-01-02", "2024-01-03")
	calc := NewCalculator(reader)

	res, err := calc.Current(context.Background(), h, day("2024-01-04"))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Streak)
	assert.Equal(t, 0, res.Raw)
	assert.True(t, res.GraceApplied)
	assert.Equal(t, 0, reader.counts.CountFor(h.ID, day("2024-01-04")))

	historical, err := calc.AsOf(context.Background(), h, day("2024-01-04"))
	require.NoError(t, err)
	assert.Equal(t, 0, historical)
}

func TestCurrentGraceDoesNotReachFurther(t *testing.T) {
	h := newHabit(schedule.Flexible(), "2024-01-01")
	calc := NewCalculator(completed(h, "2024-01-01", "2024-01-02"))

	res, err := calc.Current(context.Background(), h, day("2024-01-04"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Streak)
	assert.True(t, res.GraceApplied)
}

func TestSpecificDaysSkipsNonDueDays(t *testing.T) {
	h := newHabit(schedule.SpecificDays(1, 3, 5), "2024-01-01")
	// Mon, Wed, Fri; Tuesday and Thursday are never due.
	calc := NewCalculator(completed(h, "2024-01-01", "2024-01-03", "2024-01-05"))

	n, err := calc.AsOf(context.Background(), h, day("2024-01-05"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = calc.AsOf(context.Background(), h, day("2024-01-07"))
	require.NoError(t, err)
	assert.Equal(t, 3, n, "weekend is not due")

	n, err = calc.AsOf(context.Background(), h, day("2024-01-08"))
	require.NoError(t, err)
	assert.Equal(t, 0, n, "unmet Monday breaks the walk")
}

func TestIntervalSchedule(t *testing.T) {
	h := newHabit(schedule.Interval(2, day("2024-01-01")), "2024-01-01")
	calc := NewCalculator(completed(h, "2024-01-01", "2024-01-03", "2024-01-05"))

	n, err := calc.AsOf(context.Background(), h, day("2024-01-06"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestTargetCountMustBeReached(t *testing.T) {
	h := newHabit(schedule.Flexible(), "2024-01-01")
	h.TargetCount = 2
	calc := NewCalculator(completed(h,
		"2024-01-01", "2024-01-01",
		"2024-01-02", "2024-01-02",
		"2024-01-03",
	))

	n, err := calc.AsOf(context.Background(), h, day("2024-01-03"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = calc.AsOf(context.Background(), h, day("2024-01-02"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNoCompletionsEver(t *testing.T) {
	h := newHabit(schedule.Flexible(), "2024-01-01")
	calc := NewCalculator(&fakeReader{})

	res, err := calc.Current(context.Background(), h, day("2024-03-01"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Streak)
}

func TestAsOfBeforeStartReadsNothing(t *testing.T) {
	h := newHabit(schedule.Flexible(), "2024-01-10")
	reader := &fakeReader{}
	calc := NewCalculator(reader)

	n, err := calc.AsOf(context.Background(), h, day("2024-01-09"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, reader.calls)
}

func TestAsOfAcrossChunks(t *testing.T) {
	h := newHabit(schedule.Flexible(), "2024-01-01")
	dates := make([]string, 0, 30)
	for d := day("2024-01-01"); !d.After(day("2024-01-30")); d = d.AddDays(1) {
		dates = append(dates, d.String())
	}
	reader := completed(h, dates...)
	calc := NewCalculator(reader).WithChunkDays(7)

	n, err := calc.AsOf(context.Background(), h, day("2024-01-30"))
	require.NoError(t, err)
	assert.Equal(t, 30, n)
	require.Len(t, reader.calls, 5)
	assert.Equal(t, day("2024-01-24"), reader.calls[0].Start)
	assert.Equal(t, day("2024-01-01"), reader.calls[4].Start, "walk stops at the start date")
}

func TestAsOfStopsAtFirstBrokenChunk(t *testing.T) {
	h := newHabit(schedule.Flexible(), "2023-01-01")
	reader := completed(h, "2024-01-28", "2024-01-29", "2024-01-30")
	calc := NewCalculator(reader).WithChunkDays(7)

	n, err := calc.AsOf(context.Background(), h, day("2024-01-30"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, reader.calls, 1)
}

func TestAsOfLookbackIsBounded(t *testing.T) {
	h := newHabit(schedule.Flexible(), "2000-01-01")
	reader := &fakeReader{counts: ledger.CountIndex{}}
	asOf := day("2024-06-30")
	for d := asOf.AddDays(-(MaxLookbackDays + 10)); !d.After(asOf); d = d.AddDays(1) {
		reader.counts.Set(h.ID, d, 1)
	}
	calc := NewCalculator(reader).WithChunkDays(400)

	n, err := calc.AsOf(context.Background(), h, asOf)
	require.NoError(t, err)
	assert.Equal(t, MaxLookbackDays, n)
}

func TestAsOfPropagatesReadErrors(t *testing.T) {
	h := newHabit(schedule.Flexible(), "2024-01-01")
	boom := errors.New("connection reset")
	calc := NewCalculator(&fakeReader{err: boom})

	_, err := calc.Current(context.Background(), h, day("2024-01-05"))
	assert.ErrorIs(t, err, boom)
}

func TestLongest(t *testing.T) {
	h := newHabit(schedule.Flexible(), "2024-01-01")
	reader := completed(h,
		"2024-01-01", "2024-01-02", "2024-01-03",
		"2024-01-05", "2024-01-06", "2024-01-07", "2024-01-08", "2024-01-09",
		"2024-01-11",
	)
	window := ledger.DateRange{Start: day("2023-12-01"), End: day("2024-01-31")}

	assert.Equal(t, 5, Longest(h, window, reader.counts))
}

func TestLongestSkipsNonDueDays(t *testing.T) {
	h := newHabit(schedule.SpecificDays(1, 3, 5), "2024-01-01")
	reader := completed(h, "2024-01-01", "2024-01-03", "2024-01-05", "2024-01-08")
	window := ledger.DateRange{Start: day("2024-01-01"), End: day("2024-01-10")}

	assert.Equal(t, 4, Longest(h, window, reader.counts))
}
