package store

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_Embedded(t *testing.T) {
	migs, err := Migrations()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(migs), 2)
	assert.Equal(t, "0001_core.sql", migs[0].Name)
	assert.Contains(t, migs[0].SQL, "CREATE TABLE IF NOT EXISTS leads")
}

func TestLoadMigrations_SortsAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_b.sql": {Data: []byte("B")},
		"m/0001_a.sql": {Data: []byte("A")},
		"m/README.md":  {Data: []byte("x")},
		"m/sub/x.sql":  {Data: []byte("nested")},
	}

	migs, err := loadMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, migs, 2)
	assert.Equal(t, "0001_a.sql", migs[0].Name)
	assert.Equal(t, "B", migs[1].SQL)
}

func TestMigrator_UpAppliesPending(t *testing.T) {
	db, mock := setupMockDB(t)

	m := &Migrator{db: db, migrations: []Migration{
		{Name: "0001_a.sql", SQL: "CREATE TABLE a (id int)"},
		{Name: "0002_b.sql", SQL: "CREATE TABLE b (id int)"},
	}}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name, applied_at FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name", "applied_at"}).AddRow("0001_a.sql", time.Now()))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("0002_b.sql").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	done, err := m.Up(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_b.sql"}, done)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_UpStopsOnFailure(t *testing.T) {
	db, mock := setupMockDB(t)

	m := &Migrator{db: db, migrations: []Migration{
		{Name: "0001_a.sql", SQL: "CREATE TABLE a (id int)"},
		{Name: "0002_b.sql", SQL: "CREATE TABLE b (id int)"},
	}}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name, applied_at FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name", "applied_at"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE a").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	done, err := m.Up(context.Background())
	assert.ErrorContains(t, err, "migration 0001_a.sql failed")
	assert.Empty(t, done)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_Status(t *testing.T) {
	db, mock := setupMockDB(t)

	appliedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := &Migrator{db: db, migrations: []Migration{
		{Name: "0001_a.sql"}, {Name: "0002_b.sql"},
	}}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name, applied_at").
		WillReturnRows(sqlmock.NewRows([]string{"name", "applied_at"}).AddRow("0001_a.sql", appliedAt))

	status, err := m.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status, 2)
	require.NotNil(t, status[0].AppliedAt)
	assert.Equal(t, appliedAt, *status[0].AppliedAt)
	assert.Nil(t, status[1].AppliedAt)
}

func TestSeedTenants(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectExec("INSERT INTO tenants").WithArgs("board", "Board Portal").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO tenants").WithArgs("harbor", "Harbor").WillReturnResult(sqlmock.NewResult(0, 1))

	err := SeedTenants(context.Background(), db, map[string]string{"harbor": "Harbor", "board": "Board Portal"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
