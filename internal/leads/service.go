package leads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/portal/internal/jobs"
	"github.com/conduit-lang/portal/internal/metrics"
	"github.com/conduit-lang/portal/internal/store"
	"github.com/conduit-lang/portal/internal/validate"
)

const leadColumns = `id, tenant_id, name, email, phone, company, source, message, status,
		project_id, created_at, updated_at`

// ActorPublic is recorded for activities caused by anonymous visitors
const ActorPublic = "public"

// Service implements the lead pipeline for all tenants
type Service struct {
	tx         *store.TxManager
	dispatcher *jobs.Dispatcher
	logger     *zap.Logger
	metrics    *metrics.Metrics
	retry      store.RetryConfig
	now        func() time.Time
}

// NewService creates the lead service
func NewService(tx *store.TxManager, dispatcher *jobs.Dispatcher, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		tx:         tx,
		dispatcher: dispatcher,
		logger:     logger.Named("leads"),
		metrics:    m,
		retry:      store.DefaultRetryConfig(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates a contact form and stores it as a new lead. The lead, its
// activity row and the staff notification job commit together.
func (s *Service) Submit(ctx context.Context, tenantID string, form ContactForm) (*Lead, error) {
	form = normalizeForm(form)
	if err := validate.Struct(form); err != nil {
		return nil, err
	}

	now := s.now()
	lead := &Lead{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      form.Name,
		Email:     form.Email,
		Phone:     form.Phone,
		Company:   form.Company,
		Source:    form.Source,
		Message:   form.Message,
		Status:    StatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.tx.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO leads (id, tenant_id, name, email, phone, company, source, message, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			lead.ID, lead.TenantID, lead.Name, lead.Email, lead.Phone, lead.Company,
			lead.Source, lead.Message, lead.Status, lead.CreatedAt, lead.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert lead: %w", store.ConvertError(err))
		}

		if err := recordActivity(ctx, tx, activity{
			TenantID:  tenantID,
			Subject:   "lead",
			SubjectID: lead.ID,
			Action:    "submitted",
			Actor:     ActorPublic,
			Detail:    lead.Source,
			At:        now,
		}); err != nil {
			return err
		}

		_, err = s.dispatcher.Dispatch(ctx, tx, tenantID, jobs.TypeNotifyStaff, map[string]any{
			"lead_id": lead.ID.String(),
			"name":    lead.Name,
			"email":   lead.Email,
			"company": lead.Company,
			"source":  lead.Source,
			"message": lead.Message,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.LeadEvent(tenantID, "submitted")
	s.logger.Info("lead submitted",
		zap.String("tenant", tenantID),
		zap.String("lead_id", lead.ID.String()),
		zap.String("source", lead.Source),
	)
	return lead, nil
}

func normalizeForm(f ContactForm) ContactForm {
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.ToLower(strings.TrimSpace(f.Email))
	f.Phone = strings.TrimSpace(f.Phone)
	f.Company = strings.TrimSpace(f.Company)
	f.Message = strings.TrimSpace(f.Message)
	f.Source = strings.TrimSpace(f.Source)
	if f.Source == "" {
		f.Source = DefaultSource
	}
	return f
}

// List returns a page of the tenant's leads, newest first
func (s *Service) List(ctx context.Context, tenantID string, filter Filter) ([]Lead, error) {
	filter = filter.Normalized()
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, ErrInvalidStatus
	}

	rows, err := s.tx.DB().QueryContext(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`,
		tenantID, string(filter.Status), filter.Limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	leads := make([]Lead, 0, filter.Limit)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return leads, nil
}

// Get returns one lead
func (s *Service) Get(ctx context.Context, tenantID string, id uuid.UUID) (*Lead, error) {
	return getLead(ctx, s.tx.DB(), tenantID, id, false)
}

// UpdateStatus moves a lead along the pipeline. converted is only reachable
// through Convert.
func (s *Service) UpdateStatus(ctx context.Context, tenantID string, id uuid.UUID, to Status, actor string) (*Lead, error) {
	if !to.Valid() {
		return nil, ErrInvalidStatus
	}
	if to == StatusConverted {
		return nil, fmt.Errorf("%w: use convert", ErrInvalidTransition)
	}

	var updated *Lead
	err := s.tx.WithTransaction(ctx, func(tx *sql.Tx) error {
		lead, err := getLead(ctx, tx, tenantID, id, true)
		if err != nil {
			return err
		}

		from := lead.Status
		if !CanTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}

		now := s.now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE leads SET status = $1, updated_at = $2 WHERE tenant_id = $3 AND id = $4`,
			to, now, tenantID, id,
		); err != nil {
			return fmt.Errorf("update lead status: %w", store.ConvertError(err))
		}

		if err := recordActivity(ctx, tx, activity{
			TenantID:  tenantID,
			Subject:   "lead",
			SubjectID: id,
			Action:    "status_changed",
			Actor:     actor,
			Detail:    fmt.Sprintf("%s -> %s", from, to),
			At:        now,
		}); err != nil {
			return err
		}

		lead.Status = to
		lead.UpdatedAt = now
		updated = lead
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.LeadEvent(tenantID, "status_"+string(to))
	return updated, nil
}

func getLead(ctx context.Context, db store.DBTX, tenantID string, id uuid.UUID, forUpdate bool) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE tenant_id = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	lead, err := scanLead(db.QueryRowContext(ctx, query, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return lead, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*Lead, error) {
	var (
		l         Lead
		projectID uuid.NullUUID
	)
	err := row.Scan(
		&l.ID, &l.TenantID, &l.Name, &l.Email, &l.Phone, &l.Company, &l.Source, &l.Message,
		&l.Status, &projectID, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if projectID.Valid {
		id := projectID.UUID
		l.ProjectID = &id
	}
	return &l, nil
}
