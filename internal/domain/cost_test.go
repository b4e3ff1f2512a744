package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokyo(t *testing.T) *time.Location {
	t.Helper()
	return time.FixedZone("JST", 9*60*60)
}

func TestParseClock(t *testing.T) {
	d, err := ParseClock("06:30")
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour+30*time.Minute, d)

	_, err = ParseClock("25:99")
	assert.Error(t, err)
}

func TestNightWindowOverlaps(t *testing.T) {
	loc := tokyo(t)
	w, err := NewNightWindow("00:00", "06:00", loc)
	require.NoError(t, err)

	at := func(day, h, m int) time.Time { return time.Date(2024, 5, day, h, m, 0, 0, loc) }

	assert.False(t, w.Overlaps(at(1, 20, 0), at(1, 22, 0)))
	assert.True(t, w.Overlaps(at(1, 23, 0), at(2, 1, 0)))
	assert.True(t, w.Overlaps(at(2, 5, 0), at(2, 7, 0)))
	assert.False(t, w.Overlaps(at(2, 6, 0), at(2, 8, 0)))
	assert.False(t, w.Overlaps(at(2, 8, 0), at(2, 8, 0)))

	utc := at(1, 23, 30).UTC()
	assert.True(t, w.Overlaps(utc, utc.Add(time.Hour)))
}

func TestNightWindowWrapsMidnight(t *testing.T) {
	loc := tokyo(t)
	w, err := NewNightWindow("22:00", "05:00", loc)
	require.NoError(t, err)
	assert.True(t, w.Overlaps(time.Date(2024, 5, 1, 21, 0, 0, 0, loc), time.Date(2024, 5, 1, 22, 30, 0, 0, loc)))
	assert.False(t, w.Overlaps(time.Date(2024, 5, 1, 12, 0, 0, 0, loc), time.Date(2024, 5, 1, 15, 0, 0, 0, loc)))
}

func TestComputeMeetingCost(t *testing.T) {
	loc := tokyo(t)
	night, err := NewNightWindow("00:00", "06:00", loc)
	require.NoError(t, err)
	start := time.Date(2024, 5, 1, 19, 0, 0, 0, loc)

	t.Run("on time", func(t *testing.T) {
		c := ComputeMeetingCost(CostInput{CostValue: 3000, CostExtended: 3500, NightFund: 4000, PeriodHours: 2,
			StartedAt: start, EndedAt: start.Add(2 * time.Hour), Night: night})
		assert.Equal(t, int64(12000), c.Base)
		assert.Zero(t, c.Extension)
		assert.Zero(t, c.Night)
		assert.Equal(t, int64(12000), c.Total)
	})

	t.Run("overtime rounds up to half hours", func(t *testing.T) {
		c := ComputeMeetingCost(CostInput{CostValue: 3000, CostExtended: 3500, PeriodHours: 1,
			StartedAt: start, EndedAt: start.Add(time.Hour + 31*time.Minute), Night: night})
		assert.Equal(t, 2, c.Overtime)
		assert.Equal(t, int64(7000), c.Extension)
		assert.Equal(t, int64(13000), c.Total)
	})

	t.Run("night fund", func(t *testing.T) {
		late := time.Date(2024, 5, 1, 23, 30, 0, 0, loc)
		c := ComputeMeetingCost(CostInput{CostValue: 3000, CostExtended: 3500, NightFund: 4000, PeriodHours: 1,
			StartedAt: late, EndedAt: late.Add(time.Hour), Night: night})
		assert.Equal(t, int64(4000), c.Night)
		assert.Equal(t, int64(10000), c.Total)
	})
}

func TestBackAmount(t *testing.T) {
	assert.Equal(t, int64(7000), BackAmount(10000, 70))
	assert.Equal(t, int64(0), BackAmount(10000, 0))
	assert.Equal(t, int64(10000), BackAmount(10000, 150))
}
