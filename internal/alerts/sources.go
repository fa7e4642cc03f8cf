package alerts

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/lib/pq"

	"github.com/conduit-lang/portal/internal/store"
)

// Thresholds used by the built-in sources
const (
	StaleLeadAge          = 48 * time.Hour
	CriticalInvoiceAge    = 30 * 24 * time.Hour
	FailedJobLookback     = 7 * 24 * time.Hour
	defaultSourceRowLimit = 500
)

// source loads one kind of alert for a tenant
type source struct {
	name string
	load func(ctx context.Context, db store.DBTX, tenantID string, now time.Time) ([]Alert, error)
}

func builtinSources() []source {
	return []source{
		{name: "invoices", load: overdueInvoices},
		{name: "leads", load: staleLeads},
		{name: "tickets", load: urgentTickets},
		{name: "projects", load: overdueProjects},
		{name: "jobs", load: failedJobs},
	}
}

func overdueInvoices(ctx context.Context, db store.DBTX, tenantID string, now time.Time) ([]Alert, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, number, amount_cents, due_at
		FROM invoices
		WHERE tenant_id = $1 AND status = 'sent' AND due_at < $2
		ORDER BY due_at ASC
		LIMIT $3`,
		tenantID, now, defaultSourceRowLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("query overdue invoices: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var (
			id, number string
			cents      int64
			dueAt      time.Time
		)
		if err := rows.Scan(&id, &number, &cents, &dueAt); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}

		overdue := now.Sub(dueAt)
		severity := SeverityHigh
		if overdue > CriticalInvoiceAge {
			severity = SeverityCritical
		}
		out = append(out, Alert{
			Kind:       KindOverdueInvoice,
			Severity:   severity,
			Title:      fmt.Sprintf("Invoice %s is overdue", number),
			Detail:     fmt.Sprintf("%s outstanding, %d days past due", formatCents(cents), days(overdue)),
			EntityID:   id,
			OccurredAt: dueAt,
		})
	}
	return out, rows.Err()
}

func staleLeads(ctx context.Context, db store.DBTX, tenantID string, now time.Time) ([]Alert, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, company, created_at
		FROM leads
		WHERE tenant_id = $1 AND status = 'new' AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3`,
		tenantID, now.Add(-StaleLeadAge), defaultSourceRowLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("query stale leads: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var (
			id, name, company string
			createdAt         time.Time
		)
		if err := rows.Scan(&id, &name, &company, &createdAt); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}

		who := name
		if company != "" {
			who = name + " (" + company + ")"
		}
		out = append(out, Alert{
			Kind:       KindStaleLead,
			Severity:   SeverityMedium,
			Title:      "New lead waiting for contact: " + who,
			Detail:     fmt.Sprintf("submitted %d days ago", days(now.Sub(createdAt))),
			EntityID:   id,
			OccurredAt: createdAt,
		})
	}
	return out, rows.Err()
}

func urgentTickets(ctx context.Context, db store.DBTX, tenantID string, now time.Time) ([]Alert, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, subject, priority, created_at
		FROM tickets
		WHERE tenant_id = $1 AND status = 'open' AND priority = ANY($2)
		ORDER BY created_at ASC
		LIMIT $3`,
		tenantID, pq.Array([]string{"urgent", "high"}), defaultSourceRowLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("query urgent tickets: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var (
			id, subject, priority string
			createdAt             time.Time
		)
		if err := rows.Scan(&id, &subject, &priority, &createdAt); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}

		severity := SeverityHigh
		if priority == "urgent" {
			severity = SeverityCritical
		}
		out = append(out, Alert{
			Kind:       KindUrgentTicket,
			Severity:   severity,
			Title:      fmt.Sprintf("Open %s ticket: %s", priority, subject),
			EntityID:   id,
			OccurredAt: createdAt,
		})
	}
	return out, rows.Err()
}

func overdueProjects(ctx context.Context, db store.DBTX, tenantID string, now time.Time) ([]Alert, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, status, due_at
		FROM projects
		WHERE tenant_id = $1 AND due_at < $2 AND status <> ALL($3)
		ORDER BY due_at ASC
		LIMIT $4`,
		tenantID, now, pq.Array([]string{"completed", "cancelled"}), defaultSourceRowLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("query overdue projects: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var (
			id, name, status string
			dueAt            time.Time
		)
		if err := rows.Scan(&id, &name, &status, &dueAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, Alert{
			Kind:       KindOverdueProject,
			Severity:   SeverityHigh,
			Title:      fmt.Sprintf("Project %s is past its due date", name),
			Detail:     fmt.Sprintf("status %s, %d days late", status, days(now.Sub(dueAt))),
			EntityID:   id,
			OccurredAt: dueAt,
		})
	}
	return out, rows.Err()
}

func failedJobs(ctx context.Context, db store.DBTX, tenantID string, now time.Time) ([]Alert, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, type, error, completed_at
		FROM jobs
		WHERE tenant_id = $1 AND status = 'failed' AND completed_at >= $2
		ORDER BY completed_at DESC
		LIMIT $3`,
		tenantID, now.Add(-FailedJobLookback), defaultSourceRowLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("query failed jobs: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var (
			id, jobType string
			lastErr     sql.NullString
			failedAt    time.Time
		)
		if err := rows.Scan(&id, &jobType, &lastErr, &failedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, Alert{
			Kind:       KindFailedJob,
			Severity:   SeverityLow,
			Title:      "Background job failed: " + jobType,
			Detail:     lastErr.String,
			EntityID:   id,
			OccurredAt: failedAt,
		})
	}
	return out, rows.Err()
}

func days(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
