package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"simple", "password123", false},
		{"symbols", "P@ssw0rd!2026#$%^&*()", false},
		{"at bcrypt limit", strings.Repeat("a", 72), false},
		{"over bcrypt limit", strings.Repeat("a", 73), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPasswordTooLong)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, tt.password, hash)
			assert.True(t, strings.HasPrefix(hash, "$2a$"))
			assert.True(t, CheckPassword(tt.password, hash))
			assert.False(t, CheckPassword(tt.password+"x", hash))
		})
	}
}

func TestCheckPassword_MalformedHash(t *testing.T) {
	assert.False(t, CheckPassword("secret", "not-a-bcrypt-hash"))
}
