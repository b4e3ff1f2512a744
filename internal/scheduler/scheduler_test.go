package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsJobResult(t *testing.T) {
	n, err := Run(context.Background(), JobCallNotify, func(context.Context) (int, error) { return 3, nil })
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	boom := errors.New("boom")
	_, err = Run(context.Background(), JobCallControl, func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}

func TestAddRejectsBadSpec(t *testing.T) {
	s := New(context.Background(), time.UTC)
	err := s.Add(JobPresentCast, "not a spec", func(context.Context) (int, error) { return 0, nil })
	assert.Error(t, err)
}

func TestScheduledJobRuns(t *testing.T) {
	s := New(context.Background(), time.UTC)
	var calls int32
	require.NoError(t, s.Add(JobCallControl, "@every 1s", func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 1, nil
	}))
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) > 0 }, 3*time.Second, 50*time.Millisecond)
}
