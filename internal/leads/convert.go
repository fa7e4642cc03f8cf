package leads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/portal/internal/jobs"
	"github.com/conduit-lang/portal/internal/store"
	"github.com/conduit-lang/portal/internal/validate"
)

// ProjectStatusPlanning is the status of projects created by Convert
const ProjectStatusPlanning = "planning"

// Convert turns a qualified lead into a client and a project. The lead lock,
// client lookup or creation, project insert, lead update and activity row run
// in one transaction that is retried on deadlock; any failure rolls all of
// them back. The welcome email is enqueued after commit.
func (s *Service) Convert(ctx context.Context, tenantID string, id uuid.UUID, input ConvertInput, actor string) (*Conversion, error) {
	input.ProjectName = strings.TrimSpace(input.ProjectName)
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	var (
		result *Conversion
		lead   *Lead
		name   string
	)
	err := s.tx.WithRetry(ctx, s.retry, func(tx *sql.Tx) error {
		var err error
		lead, err = getLead(ctx, tx, tenantID, id, true)
		if err != nil {
			return err
		}

		switch lead.Status {
		case StatusQualified:
		case StatusConverted:
			return ErrAlreadyConverted
		default:
			return fmt.Errorf("%w: status is %s", ErrNotQualified, lead.Status)
		}

		clientID, created, err := findOrCreateClient(ctx, tx, lead)
		if err != nil {
			return err
		}

		name = input.ProjectName
		if name == "" {
			name = defaultProjectName(lead)
		}

		now := s.now()
		projectID := uuid.New()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO projects (id, tenant_id, client_id, lead_id, name, status, budget_cents, due_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			projectID, tenantID, clientID, lead.ID, name, ProjectStatusPlanning,
			input.BudgetCents, input.DueAt, now,
		)
		if err != nil {
			return fmt.Errorf("insert project: %w", store.ConvertError(err))
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE leads SET status = $1, project_id = $2, updated_at = $3 WHERE tenant_id = $4 AND id = $5`,
			StatusConverted, projectID, now, tenantID, lead.ID,
		)
		if err != nil {
			return fmt.Errorf("mark lead converted: %w", store.ConvertError(err))
		}

		if err := recordActivity(ctx, tx, activity{
			TenantID:  tenantID,
			Subject:   "lead",
			SubjectID: lead.ID,
			Action:    "converted",
			Actor:     actor,
			Detail:    "project " + projectID.String(),
			At:        now,
		}); err != nil {
			return err
		}

		result = &Conversion{
			LeadID:        lead.ID,
			ClientID:      clientID,
			ProjectID:     projectID,
			ClientCreated: created,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.LeadEvent(tenantID, "converted")
	log := s.logger.With(
		zap.String("tenant", tenantID),
		zap.String("lead_id", result.LeadID.String()),
		zap.String("project_id", result.ProjectID.String()),
	)
	log.Info("lead converted", zap.Bool("client_created", result.ClientCreated))

	// the conversion stands even if the welcome email cannot be queued
	_, err = s.dispatcher.Dispatch(ctx, nil, tenantID, jobs.TypeWelcomeEmail, map[string]any{
		"lead_id":      result.LeadID.String(),
		"client_id":    result.ClientID.String(),
		"client_name":  lead.Name,
		"client_email": lead.Email,
		"project_id":   result.ProjectID.String(),
		"project_name": name,
	})
	if err != nil {
		log.Warn("failed to enqueue welcome email", zap.Error(err))
		s.metrics.LeadEvent(tenantID, "welcome_enqueue_failed")
	}

	return result, nil
}

// findOrCreateClient matches clients on (tenant, lower(email)). A concurrent
// insert of the same client loses the ON CONFLICT race and re-reads.
func findOrCreateClient(ctx context.Context, tx *sql.Tx, lead *Lead) (uuid.UUID, bool, error) {
	email := strings.ToLower(lead.Email)

	id, err := selectClient(ctx, tx, lead.TenantID, email)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, fmt.Errorf("find client: %w", err)
	}

	id = uuid.New()
	err = tx.QueryRowContext(ctx, `
		INSERT INTO clients (id, tenant_id, name, email, phone, company)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, email) DO NOTHING
		RETURNING id`,
		id, lead.TenantID, lead.Name, email, lead.Phone, lead.Company,
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, fmt.Errorf("create client: %w", store.ConvertError(err))
	}

	id, err = selectClient(ctx, tx, lead.TenantID, email)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("find client: %w", err)
	}
	return id, false, nil
}

func selectClient(ctx context.Context, tx *sql.Tx, tenantID, email string) (uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM clients WHERE tenant_id = $1 AND lower(email) = $2`,
		tenantID, email,
	).Scan(&id)
	return id, err
}
