package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Name    string `json:"name" validate:"required,max=5"`
	Email   string `json:"email" validate:"required,email"`
	Plan    string `json:"plan,omitempty" validate:"omitempty,oneof=basic pro"`
	Seats   int    `json:"seats" validate:"min=1"`
	Comment string `validate:"max=3"`
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(signup{Name: "Ada", Email: "ada@example.com", Seats: 1}))
}

func TestStruct_FieldMessages(t *testing.T) {
	err := Struct(signup{Name: strings.Repeat("x", 6), Email: "nope", Plan: "gold", Comment: "long"})
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"must be at most 5 characters"}, verr.Fields["name"])
	assert.Equal(t, []string{"must be a valid email address"}, verr.Fields["email"])
	assert.Equal(t, []string{"must be one of: basic pro"}, verr.Fields["plan"])
	assert.Equal(t, []string{"must be at least 1"}, verr.Fields["seats"])
	assert.Equal(t, []string{"must be at most 3 characters"}, verr.Fields["Comment"])
	assert.Equal(t, "validation failed: Comment, email, name, plan, seats", verr.Error())
}

func TestStruct_Required(t *testing.T) {
	err := Struct(signup{Seats: 1})

	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"is required"}, verr.Fields["name"])
	assert.Equal(t, []string{"is required"}, verr.Fields["email"])
}

func TestError_AddAndEmpty(t *testing.T) {
	var nilErr *Error
	assert.True(t, nilErr.Empty())

	e := &Error{}
	assert.True(t, e.Empty())
	e.Add("status", "is invalid")
	assert.False(t, e.Empty())
	assert.Equal(t, map[string][]string{"status": {"is invalid"}}, e.Fields)
}
