package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Validate("0 9 * * 1"))
	require.Error(t, Validate("every monday"))
}

func TestStartRejectsBadExpression(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("not a cron", nil, nil)
	err := s.Start(context.Background(), func(time.Time) {})
	require.Error(t, err)
}

func TestStartAndStop(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("0 9 * * 1", time.UTC, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx, func(time.Time) {}))
	require.NoError(t, s.Start(ctx, func(time.Time) {}))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, s.Stop(stopCtx))
	require.NoError(t, s.Stop(stopCtx))
}

func TestNilJobIsIgnored(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("0 9 * * 1", nil, nil)
	require.NoError(t, s.Start(context.Background(), nil))
	require.Nil(t, s.cron)
}
