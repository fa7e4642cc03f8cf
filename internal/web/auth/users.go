package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/conduit-lang/portal/internal/store"
)

// ErrInvalidCredentials is returned for an unknown email or a wrong password
var ErrInvalidCredentials = errors.New("invalid email or password")

// User is a staff, admin or client account of one tenant
type User struct {
	ID           uuid.UUID `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserStore persists users
type UserStore struct {
	db store.DBTX
}

// NewUserStore creates a user store
func NewUserStore(db store.DBTX) *UserStore {
	return &UserStore{db: db}
}

// Create hashes password and inserts the user
func (s *UserStore) Create(ctx context.Context, tenant, email, name, password string, roles []string) (*User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:           uuid.New(),
		TenantID:     tenant,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Name:         name,
		PasswordHash: hash,
		Roles:        roles,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, tenant_id, email, name, password_hash, roles, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.TenantID, u.Email, u.Name, u.PasswordHash, pq.Array(u.Roles), u.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", store.ConvertError(err))
	}

	return u, nil
}

// FindByEmail loads a user of tenant by email
func (s *UserStore) FindByEmail(ctx context.Context, tenant, email string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, name, password_hash, roles, created_at
		FROM users
		WHERE tenant_id = $1 AND email = $2`,
		tenant, strings.ToLower(strings.TrimSpace(email)),
	).Scan(&u.ID, &u.TenantID, &u.Email, &u.Name, &u.PasswordHash, pq.Array(&u.Roles), &u.CreatedAt)
	if err != nil {
		return nil, store.ConvertError(err)
	}
	return &u, nil
}

// unknownUserHash stands in for the stored hash when no account matches
var unknownUserHash = sync.OnceValue(func() string {
	hash, err := bcrypt.GenerateFromPassword([]byte("portal-unknown-user"), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("auth: failed to hash placeholder password: %v", err))
	}
	return string(hash)
})

// Authenticator checks credentials and issues tokens
type Authenticator struct {
	users   *UserStore
	tokens  *Service
	compare func(password, hash string) bool
}

// NewAuthenticator creates an authenticator
func NewAuthenticator(users *UserStore, tokens *Service) *Authenticator {
	return &Authenticator{users: users, tokens: tokens, compare: CheckPassword}
}

// Login verifies email and password for tenant and returns a signed token
func (a *Authenticator) Login(ctx context.Context, tenant, email, password string) (string, *User, error) {
	u, err := a.users.FindByEmail(ctx, tenant, email)
	if errors.Is(err, store.ErrNotFound) {
		a.compare(password, unknownUserHash())
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !a.compare(password, u.PasswordHash) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := a.tokens.GenerateToken(u.ID.String(), u.TenantID, u.Email, u.Roles)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return token, u, nil
}
