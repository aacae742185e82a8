package rationing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rationing-engine/rationing"
)

func TestWindowFor_Daily(t *testing.T) {
	d := rationing.NewDate(2026, time.March, 4)
	w := rationing.WindowFor(rationing.PeriodDaily, d)

	assert.Equal(t, d, w.Start)
	assert.Equal(t, d, w.End)

	assert.True(t, w.Contains(d.StartOfDay()))
	assert.True(t, w.Contains(d.EndOfDay()))
	assert.False(t, w.Contains(d.AddDays(1).StartOfDay()))
}

func TestWindowFor_Weekly(t *testing.T) {
	// Wednesday 2026-03-04 sits in the ISO week Mon 03-02 .. Sun 03-08.
	wednesday := rationing.NewDate(2026, time.March, 4)
	w := rationing.WindowFor(rationing.PeriodWeekly, wednesday)

	assert.Equal(t, rationing.NewDate(2026, time.March, 2), w.Start)
	assert.Equal(t, rationing.NewDate(2026, time.March, 8), w.End)

	// Every day of the week maps to the same window.
	for d := w.Start; d.BeforeOrEqual(w.End); d = d.AddDays(1) {
		assert.Equal(t, w, rationing.WindowFor(rationing.PeriodWeekly, d))
	}

	// Monday of the next week starts a fresh window.
	next := rationing.WindowFor(rationing.PeriodWeekly, w.End.AddDays(1))
	assert.Equal(t, rationing.NewDate(2026, time.March, 9), next.Start)
}

func TestWindowFor_WeeklyCrossesYearBoundary(t *testing.T) {
	// Thursday 2026-01-01 belongs to the ISO week starting Mon 2025-12-29.
	newYear := rationing.NewDate(2026, time.January, 1)
	require.Equal(t, 4, newYear.ISOWeekday())

	w := rationing.WindowFor(rationing.PeriodWeekly, newYear)
	assert.Equal(t, rationing.NewDate(2025, time.December, 29), w.Start)
	assert.Equal(t, rationing.NewDate(2026, time.January, 4), w.End)
}

func TestWindowFor_Monthly(t *testing.T) {
	d := rationing.NewDate(2026, time.February, 14)
	w := rationing.WindowFor(rationing.PeriodMonthly, d)

	assert.Equal(t, rationing.NewDate(2026, time.February, 1), w.Start)
	assert.Equal(t, rationing.NewDate(2026, time.February, 28), w.End)

	// Leap February.
	w = rationing.WindowFor(rationing.PeriodMonthly, rationing.NewDate(2028, time.February, 14))
	assert.Equal(t, rationing.NewDate(2028, time.February, 29), w.End)

	// December stays within the year.
	w = rationing.WindowFor(rationing.PeriodMonthly, rationing.NewDate(2026, time.December, 31))
	assert.Equal(t, rationing.NewDate(2026, time.December, 1), w.Start)
	assert.Equal(t, rationing.NewDate(2026, time.December, 31), w.End)
}

func TestWindowContains_Boundaries(t *testing.T) {
	w := rationing.WindowFor(rationing.PeriodWeekly, rationing.NewDate(2026, time.March, 4))

	assert.True(t, w.Contains(w.Start.StartOfDay()), "first instant of the window")
	assert.True(t, w.Contains(w.End.EndOfDay()), "last instant of the window")
	assert.False(t, w.Contains(w.Start.StartOfDay().Add(-time.Nanosecond)))
	assert.False(t, w.Contains(w.End.AddDays(1).StartOfDay()))
}
