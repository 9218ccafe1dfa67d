package ledger

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountIndex(t *testing.T) {
	id := uuid.New()
	d := civil.Date{Year: 2024, Month: 1, Day: 1}

	idx := CountIndex{}
	assert.Equal(t, 0, idx.CountFor(id, d))

	idx.Set(id, d, 2)
	assert.Equal(t, 2, idx.CountFor(id, d))
	assert.Equal(t, 0, idx.CountFor(uuid.New(), d))

	idx.Set(id, d, 0)
	assert.Equal(t, 0, idx.CountFor(id, d))
	assert.Empty(t, idx)
}

func TestDateRange(t *testing.T) {
	start := civil.Date{Year: 2024, Month: 2, Day: 27}
	end := civil.Date{Year: 2024, Month: 3, Day: 2}

	r, err := NewDateRange(start, end)
	require.NoError(t, err)
	assert.Equal(t, 5, r.Len())
	assert.Equal(t, []civil.Date{
		{Year: 2024, Month: 2, Day: 27},
		{Year: 2024, Month: 2, Day: 28},
		{Year: 2024, Month: 2, Day: 29},
		{Year: 2024, Month: 3, Day: 1},
		{Year: 2024, Month: 3, Day: 2},
	}, r.Days())
	assert.True(t, r.Contains(start))
	assert.True(t, r.Contains(end))
	assert.False(t, r.Contains(end.AddDays(1)))

	_, err = NewDateRange(end, start)
	assert.Error(t, err)

	_, err = NewDateRange(civil.Date{}, end)
	assert.Error(t, err)

	assert.Equal(t, 0, DateRange{Start: end, End: start}.Len())
}

func TestTrailingDays(t *testing.T) {
	end := civil.Date{Year: 2024, Month: 3, Day: 31}

	r := TrailingDays(end, 90)
	assert.Equal(t, 90, r.Len())
	assert.Equal(t, end, r.End)
	assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 2}, r.Start)

	assert.Equal(t, 1, TrailingDays(end, 0).Len())
}
