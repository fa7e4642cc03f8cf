package jobs

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_Dispatch(t *testing.T) {
	_, mock, queue := setupMockDB(t)
	d := NewDispatcher(queue, nil)

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(sqlmock.AnyArg(), "studio", DefaultQueue, TypeNotifyStaff, []byte(`{"lead_id":"l-1"}`),
			JobStatusPending, PriorityNormal, 0, DefaultMaxAttempts, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job, err := d.Dispatch(context.Background(), nil, "studio", TypeNotifyStaff, map[string]any{"lead_id": "l-1"})
	require.NoError(t, err)
	assert.Equal(t, "studio", job.TenantID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatcher_InTransaction(t *testing.T) {
	db, mock, queue := setupMockDB(t)
	d := NewDispatcher(queue, nil)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(sqlmock.AnyArg(), "studio", DefaultQueue, TypeWelcomeEmail, sqlmock.AnyArg(),
			JobStatusPending, PriorityHigh, 0, DefaultMaxAttempts, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	_, err = d.DispatchWithPriority(context.Background(), tx, "studio", TypeWelcomeEmail, nil, PriorityHigh)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatcher_Error(t *testing.T) {
	_, mock, queue := setupMockDB(t)
	d := NewDispatcher(queue, nil)

	mock.ExpectExec(`INSERT INTO jobs`).WillReturnError(assert.AnError)

	_, err := d.Dispatch(context.Background(), nil, "studio", TypeNotifyStaff, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to dispatch lead.notify_staff")
}
