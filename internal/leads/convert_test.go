package leads

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/portal/internal/jobs"
	"github.com/conduit-lang/portal/internal/validate"
)

func expectLockLead(mock sqlmock.Sqlmock, l Lead) {
	mock.ExpectQuery(`SELECT .+ FROM leads WHERE tenant_id = \$1 AND id = \$2 FOR UPDATE`).
		WithArgs(l.TenantID, l.ID).
		WillReturnRows(leadRow(sqlmock.NewRows(leadRowCols), l))
}

func expectWelcomeJob(mock sqlmock.Sqlmock) {
	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(sqlmock.AnyArg(), "studio", jobs.DefaultQueue, jobs.TypeWelcomeEmail, sqlmock.AnyArg(),
			jobs.JobStatusPending, jobs.PriorityNormal, 0, jobs.DefaultMaxAttempts, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func TestConvert_ExistingClient(t *testing.T) {
	svc, mock := setupService(t)
	l := sampleLead(StatusQualified)
	clientID := uuid.New()
	due := testNow.Add(30 * 24 * time.Hour)

	mock.ExpectBegin()
	expectLockLead(mock, l)
	mock.ExpectQuery(`SELECT id FROM clients WHERE tenant_id = \$1 AND lower\(email\) = \$2`).
		WithArgs("studio", "ada@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(clientID.String()))
	mock.ExpectExec(`INSERT INTO projects`).
		WithArgs(sqlmock.AnyArg(), "studio", clientID, l.ID, "Brand refresh", ProjectStatusPlanning,
			int64(250000), due, testNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE leads SET status = \$1, project_id = \$2`).
		WithArgs(StatusConverted, sqlmock.AnyArg(), testNow, "studio", l.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO activities`).
		WithArgs(sqlmock.AnyArg(), "studio", "lead", l.ID, "converted", "staff-1", sqlmock.AnyArg(), testNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	expectWelcomeJob(mock)

	conv, err := svc.Convert(context.Background(), "studio", l.ID, ConvertInput{
		ProjectName: " Brand refresh ",
		BudgetCents: 250000,
		DueAt:       &due,
	}, "staff-1")
	require.NoError(t, err)

	assert.Equal(t, l.ID, conv.LeadID)
	assert.Equal(t, clientID, conv.ClientID)
	assert.NotEqual(t, uuid.Nil, conv.ProjectID)
	assert.False(t, conv.ClientCreated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConvert_CreatesClientAndDefaultsName(t *testing.T) {
	svc, mock := setupService(t)
	l := sampleLead(StatusQualified)
	l.Email = "Ada@Example.com"

	mock.ExpectBegin()
	expectLockLead(mock, l)
	mock.ExpectQuery(`SELECT id FROM clients`).
		WithArgs("studio", "ada@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO clients .+ ON CONFLICT \(tenant_id, email\) DO NOTHING`).
		WithArgs(sqlmock.AnyArg(), "studio", "Ada Lovelace", "ada@example.com", "", "Analytical Engines").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))
	mock.ExpectExec(`INSERT INTO projects`).
		WithArgs(sqlmock.AnyArg(), "studio", sqlmock.AnyArg(), l.ID, "Analytical Engines project", ProjectStatusPlanning,
			int64(0), nil, testNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE leads`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO activities`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	expectWelcomeJob(mock)

	conv, err := svc.Convert(context.Background(), "studio", l.ID, ConvertInput{}, "staff-1")
	require.NoError(t, err)
	assert.True(t, conv.ClientCreated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConvert_ClientInsertRace(t *testing.T) {
	svc, mock := setupService(t)
	l := sampleLead(StatusQualified)
	winner := uuid.New()

	mock.ExpectBegin()
	expectLockLead(mock, l)
	mock.ExpectQuery(`SELECT id FROM clients`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO clients`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT id FROM clients`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(winner.String()))
	mock.ExpectExec(`INSERT INTO projects`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE leads`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO activities`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	expectWelcomeJob(mock)

	conv, err := svc.Convert(context.Background(), "studio", l.ID, ConvertInput{}, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, winner, conv.ClientID)
	assert.False(t, conv.ClientCreated)
}

func TestConvert_StatusGuards(t *testing.T) {
	tests := []struct {
		status Status
		want   error
	}{
		{StatusConverted, ErrAlreadyConverted},
		{StatusNew, ErrNotQualified},
		{StatusContacted, ErrNotQualified},
		{StatusLost, ErrNotQualified},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			svc, mock := setupService(t)
			l := sampleLead(tt.status)

			mock.ExpectBegin()
			expectLockLead(mock, l)
			mock.ExpectRollback()

			_, err := svc.Convert(context.Background(), "studio", l.ID, ConvertInput{}, "staff-1")
			assert.ErrorIs(t, err, tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestConvert_NotFound(t *testing.T) {
	svc, mock := setupService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(sqlmock.NewRows(leadRowCols))
	mock.ExpectRollback()

	_, err := svc.Convert(context.Background(), "studio", uuid.New(), ConvertInput{}, "staff-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConvert_FailureRollsBackEverything(t *testing.T) {
	svc, mock := setupService(t)
	l := sampleLead(StatusQualified)

	mock.ExpectBegin()
	expectLockLead(mock, l)
	mock.ExpectQuery(`SELECT id FROM clients`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))
	mock.ExpectExec(`INSERT INTO projects`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE leads`).WillReturnError(errors.New("connection lost"))
	mock.ExpectRollback()

	_, err := svc.Convert(context.Background(), "studio", l.ID, ConvertInput{}, "staff-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark lead converted")
	// no welcome email is queued for a rolled back conversion
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConvert_RetriesDeadlock(t *testing.T) {
	svc, mock := setupService(t)
	l := sampleLead(StatusQualified)
	deadlock := &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}

	mock.ExpectBegin()
	expectLockLead(mock, l)
	mock.ExpectQuery(`SELECT id FROM clients`).WillReturnError(deadlock)
	mock.ExpectRollback()

	mock.ExpectBegin()
	expectLockLead(mock, l)
	mock.ExpectQuery(`SELECT id FROM clients`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))
	mock.ExpectExec(`INSERT INTO projects`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE leads`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO activities`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	expectWelcomeJob(mock)

	_, err := svc.Convert(context.Background(), "studio", l.ID, ConvertInput{}, "staff-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConvert_WelcomeJobFailureIsNotFatal(t *testing.T) {
	svc, mock := setupService(t)
	l := sampleLead(StatusQualified)

	mock.ExpectBegin()
	expectLockLead(mock, l)
	mock.ExpectQuery(`SELECT id FROM clients`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))
	mock.ExpectExec(`INSERT INTO projects`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE leads`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO activities`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`INSERT INTO jobs`).WillReturnError(errors.New("queue unavailable"))

	conv, err := svc.Convert(context.Background(), "studio", l.ID, ConvertInput{}, "staff-1")
	require.NoError(t, err)
	assert.NotNil(t, conv)
}

func TestConvert_InvalidInput(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.Convert(context.Background(), "studio", uuid.New(), ConvertInput{BudgetCents: -1}, "staff-1")
	var verr *validate.Error
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "budget_cents")
}
