package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCurrentWeekIsOpenEnded(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	week := CurrentWeek(now)

	require.True(t, week.Contains(now))
	require.True(t, week.Contains(now.Add(-Week)), "boundary is inclusive")
	require.False(t, week.Contains(now.Add(-Week-time.Second)))
	require.True(t, week.Contains(now.Add(time.Hour)))
}

func TestPriorWeekIsHalfOpen(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	prior := PriorWeek(now)

	require.True(t, prior.Contains(now.Add(-2*Week)))
	require.True(t, prior.Contains(now.Add(-Week-time.Nanosecond)))
	require.False(t, prior.Contains(now.Add(-Week)), "current week starts where prior ends")
	require.False(t, prior.Contains(now.Add(-2*Week-time.Nanosecond)))
}

func TestFixedClock(t *testing.T) {
	t.Parallel()

	at := time.Unix(1700000000, 0).UTC()
	require.Equal(t, at, Fixed(at).Now())
}
