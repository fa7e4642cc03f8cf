package auth

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/conduit-lang/portal/internal/store"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var userColumns = []string{"id", "tenant_id", "email", "name", "password_hash", "roles", "created_at"}

func TestUserStore_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	users := NewUserStore(db)

	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "studio", "ana@studio.test", "Ana", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u, err := users.Create(context.Background(), "studio", "  Ana@Studio.test ", "Ana", "hunter22", []string{RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, "ana@studio.test", u.Email)
	assert.True(t, CheckPassword("hunter22", u.PasswordHash))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStore_CreateDuplicate(t *testing.T) {
	db, mock := setupMockDB(t)
	users := NewUserStore(db)

	mock.ExpectExec("INSERT INTO users").WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := users.Create(context.Background(), "studio", "ana@studio.test", "Ana", "pw", nil)
	assert.ErrorIs(t, err, store.ErrUniqueViolation)
}

func TestAuthenticator_Login(t *testing.T) {
	db, mock := setupMockDB(t)
	tokens := newTestService(t)
	a := NewAuthenticator(NewUserStore(db), tokens)

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	id := uuid.New()

	row := func() *sqlmock.Rows {
		return sqlmock.NewRows(userColumns).
			AddRow(id.String(), "studio", "ana@studio.test", "Ana", hash, "{admin,staff}", time.Now())
	}

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, tenant_id, email").WithArgs("studio", "ana@studio.test").WillReturnRows(row())

		token, u, err := a.Login(context.Background(), "studio", "ANA@studio.test", "correct horse")
		require.NoError(t, err)
		assert.Equal(t, []string{"admin", "staff"}, u.Roles)

		claims, err := tokens.ValidateToken(token, "studio")
		require.NoError(t, err)
		assert.Equal(t, id.String(), claims.UserID)
		assert.True(t, claims.HasRole(RoleAdmin))
	})

	t.Run("wrong password", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, tenant_id, email").WillReturnRows(row())

		_, _, err := a.Login(context.Background(), "studio", "ana@studio.test", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, tenant_id, email").WillReturnError(sql.ErrNoRows)

		_, _, err := a.Login(context.Background(), "studio", "nobody@studio.test", "x")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticator_LoginUnknownEmailChecksPlaceholderHash(t *testing.T) {
	db, mock := setupMockDB(t)
	a := NewAuthenticator(NewUserStore(db), newTestService(t))

	var compared []string
	a.compare = func(password, hash string) bool {
		compared = append(compared, hash)
		return CheckPassword(password, hash)
	}

	mock.ExpectQuery("SELECT id, tenant_id, email").WillReturnError(sql.ErrNoRows)

	_, _, err := a.Login(context.Background(), "studio", "nobody@studio.test", "portal-unknown-user-guess")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.Len(t, compared, 1)
	assert.Equal(t, unknownUserHash(), compared[0])
	cost, err := bcrypt.Cost([]byte(compared[0]))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
	assert.NoError(t, mock.ExpectationsWereMet())
}
