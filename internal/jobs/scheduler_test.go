package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestScheduler_AddValidates(t *testing.T) {
	_, _, queue := setupMockDB(t)
	s := NewScheduler(queue, time.Second, nil)

	assert.Error(t, s.Add(&Schedule{Type: "x"}))
	assert.Error(t, s.Add(&Schedule{Interval: time.Minute}))

	sc := &Schedule{Type: "x", Interval: time.Minute}
	require.NoError(t, s.Add(sc))
	assert.NotEmpty(t, sc.ID)
	assert.True(t, sc.Enabled)
}

func TestScheduler_RunDue(t *testing.T) {
	_, mock, queue := setupMockDB(t)
	s := NewScheduler(queue, time.Second, nil)

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	purge := Every(time.Hour, TypePurgeCompleted, nil)
	require.NoError(t, s.Add(purge))

	// not due yet
	assert.Equal(t, 0, s.RunDue(context.Background()))

	now = now.Add(time.Hour)
	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(sqlmock.AnyArg(), "", DefaultQueue, TypePurgeCompleted, sqlmock.AnyArg(),
			JobStatusPending, PriorityNormal, 0, DefaultMaxAttempts, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.Equal(t, 1, s.RunDue(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())

	listed := s.List()
	require.Len(t, listed, 1)
	assert.Equal(t, now, listed[0].LastRun)
	assert.Equal(t, now.Add(time.Hour), listed[0].NextRun)
}

func TestScheduler_DisabledAndRemoved(t *testing.T) {
	_, _, queue := setupMockDB(t)
	s := NewScheduler(queue, time.Second, nil)
	now := time.Now()
	s.now = func() time.Time { return now }

	sc := Every(time.Minute, "x", nil)
	require.NoError(t, s.Add(sc))
	require.NoError(t, s.SetEnabled(sc.ID, false))

	now = now.Add(time.Hour)
	assert.Equal(t, 0, s.RunDue(context.Background()))

	require.NoError(t, s.Remove(sc.ID))
	assert.Error(t, s.Remove(sc.ID))
	assert.Error(t, s.SetEnabled(sc.ID, true))
	assert.Empty(t, s.List())
}

func TestScheduler_EnqueueFailureKeepsSchedule(t *testing.T) {
	_, mock, queue := setupMockDB(t)
	s := NewScheduler(queue, time.Second, nil)
	now := time.Now()
	s.now = func() time.Time { return now }

	sc := Every(time.Minute, "x", nil)
	require.NoError(t, s.Add(sc))
	next := sc.NextRun

	now = now.Add(2 * time.Minute)
	mock.ExpectExec(`INSERT INTO jobs`).WillReturnError(assert.AnError)

	assert.Equal(t, 0, s.RunDue(context.Background()))
	assert.Equal(t, next, s.List()[0].NextRun)
}

func TestScheduler_StartStop(t *testing.T) {
	_, _, queue := setupMockDB(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewScheduler(queue, 5*time.Millisecond, nil)
	s.Start(context.Background())
	time.Sleep(15 * time.Millisecond)
	s.Stop()
	s.Stop()
}
