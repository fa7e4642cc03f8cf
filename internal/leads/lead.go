// Package leads is the prospect pipeline: public contact-form intake, the
// status workflow staff move leads through, and conversion of a qualified
// lead into a client and project.
package leads

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/conduit-lang/portal/internal/store"
)

// Status is a lead's position in the pipeline
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusQualified Status = "qualified"
	StatusConverted Status = "converted"
	StatusLost      Status = "lost"
)

var (
	// ErrNotFound is returned when a lead does not exist for the tenant
	ErrNotFound = store.ErrNotFound
	// ErrInvalidTransition is returned when the status table forbids a move
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrAlreadyConverted is returned when converting a converted lead
	ErrAlreadyConverted = errors.New("lead already converted")
	// ErrNotQualified is returned when converting a lead that is not qualified
	ErrNotQualified = errors.New("lead is not qualified")
	// ErrInvalidStatus is returned for a status name outside the pipeline
	ErrInvalidStatus = errors.New("invalid lead status")
)

// transitions lists the statuses reachable from each status. converted is
// terminal.
var transitions = map[Status][]Status{
	StatusNew:       {StatusContacted, StatusQualified, StatusLost},
	StatusContacted: {StatusQualified, StatusLost},
	StatusQualified: {StatusConverted, StatusLost, StatusContacted},
	StatusLost:      {StatusNew},
	StatusConverted: nil,
}

// Valid reports whether s is a pipeline status
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether the pipeline allows from -> to
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseStatus validates a status name
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}

// Lead is a prospect captured from a site's contact form
type Lead struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  string     `json:"tenant_id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone,omitempty"`
	Company   string     `json:"company,omitempty"`
	Source    string     `json:"source"`
	Message   string     `json:"message,omitempty"`
	Status    Status     `json:"status"`
	ProjectID *uuid.UUID `json:"project_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ContactForm is the public intake payload
type ContactForm struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email,max=320"`
	Phone   string `json:"phone,omitempty" validate:"max=50"`
	Company string `json:"company,omitempty" validate:"max=200"`
	Message string `json:"message,omitempty" validate:"max=5000"`
	Source  string `json:"source,omitempty" validate:"max=50"`
}

// DefaultSource is recorded when a form does not name its source
const DefaultSource = "contact_form"

// Filter narrows List
type Filter struct {
	Status Status
	Limit  int
	Offset int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Normalized applies the default and maximum page size
func (f Filter) Normalized() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// ConvertInput customises the project created by Convert
type ConvertInput struct {
	ProjectName string     `json:"project_name,omitempty" validate:"max=200"`
	BudgetCents int64      `json:"budget_cents,omitempty" validate:"min=0"`
	DueAt       *time.Time `json:"due_at,omitempty"`
}

// Conversion is the outcome of Convert
type Conversion struct {
	LeadID        uuid.UUID `json:"lead_id"`
	ClientID      uuid.UUID `json:"client_id"`
	ProjectID     uuid.UUID `json:"project_id"`
	ClientCreated bool      `json:"client_created"`
}

// defaultProjectName is "<company or name> project"
func defaultProjectName(l *Lead) string {
	if l.Company != "" {
		return l.Company + " project"
	}
	return l.Name + " project"
}
