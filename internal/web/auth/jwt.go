package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles understood by the portal
const (
	RoleAdmin  = "admin"
	RoleStaff  = "staff"
	RoleClient = "client"
)

var (
	// ErrInvalidToken is returned for malformed, expired or mis-signed tokens
	ErrInvalidToken = errors.New("invalid token")
	// ErrTenantMismatch is returned when a token is presented to another tenant
	ErrTenantMismatch = errors.New("token issued for a different tenant")
)

// Claims are the portal's JWT claims
type Claims struct {
	UserID string   `json:"user_id"`
	Tenant string   `json:"tenant"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims carry role
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Service provides JWT token generation and validation
type Service struct {
	secretKey []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewService creates a new Service with the given secret key and token TTL
func NewService(secretKey string, tokenTTL time.Duration) (*Service, error) {
	if len(secretKey) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	if tokenTTL <= 0 {
		return nil, errors.New("token ttl must be greater than 0")
	}
	return &Service{
		secretKey: []byte(secretKey),
		tokenTTL:  tokenTTL,
		now:       time.Now,
	}, nil
}

// TTL returns the lifetime of issued tokens
func (s *Service) TTL() time.Duration {
	return s.tokenTTL
}

// GenerateToken issues a token for a user of a tenant
func (s *Service) GenerateToken(userID, tenant, email string, roles []string) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: userID,
		Tenant: tenant,
		Email:  email,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// ValidateToken parses a token and checks it belongs to tenant
func (s *Service) ValidateToken(tokenString, tenant string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	if claims.Tenant != tenant {
		return nil, ErrTenantMismatch
	}

	return &claims, nil
}
