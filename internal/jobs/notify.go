package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/portal/internal/tenant"
)

// Job types handled by the portal
const (
	TypeNotifyStaff    = "lead.notify_staff"
	TypeWelcomeEmail   = "project.welcome_email"
	TypePurgeCompleted = "jobs.purge_completed"
)

const notifyStaffSubject = `New enquiry from {{.Name}}{{with .Company}} ({{.}}){{end}}`

const notifyStaffBody = `A new enquiry arrived on {{.Site}}.

Name:    {{.Name}}
Email:   {{.Email}}
{{- with .Company}}
Company: {{.}}
{{- end}}
{{- with .Source}}
Source:  {{.}}
{{- end}}

{{.Message}}

Lead ID: {{.LeadID}}
`

const welcomeSubject = `Welcome to {{.Site}}: {{.ProjectName}}`

const welcomeBody = `Hi {{.ClientName}},

Thanks for choosing {{.Site}}. We have opened "{{.ProjectName}}" for you and
will be in touch shortly to plan the first steps.

Project reference: {{.ProjectID}}
`

var (
	notifyStaffTmpl = mailTemplate{
		subject: template.Must(template.New("notify_staff_subject").Parse(notifyStaffSubject)),
		body:    template.Must(template.New("notify_staff_body").Parse(notifyStaffBody)),
	}
	welcomeTmpl = mailTemplate{
		subject: template.Must(template.New("welcome_subject").Parse(welcomeSubject)),
		body:    template.Must(template.New("welcome_body").Parse(welcomeBody)),
	}
)

type mailTemplate struct {
	subject *template.Template
	body    *template.Template
}

func (t mailTemplate) render(data any) (subject, body string, err error) {
	var sb, bb bytes.Buffer
	if err := t.subject.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	if err := t.body.Execute(&bb, data); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return sb.String(), bb.String(), nil
}

// Notifier renders and sends the portal's notification emails
type Notifier struct {
	tenants *tenant.Registry
	mailer  Mailer
	logger  *zap.Logger
}

// NewNotifier creates a notifier resolving sender and staff addresses from tenants
func NewNotifier(tenants *tenant.Registry, mailer Mailer, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{tenants: tenants, mailer: mailer, logger: logger.Named("notify")}
}

// Register installs the notification handlers on pool
func (n *Notifier) Register(pool *WorkerPool) {
	pool.RegisterHandler(TypeNotifyStaff, n.NotifyStaff)
	pool.RegisterHandler(TypeWelcomeEmail, n.WelcomeEmail)
}

// NotifyStaff tells the tenant's staff inbox about a new lead. Tenants
// without a notify address are skipped.
func (n *Notifier) NotifyStaff(ctx context.Context, job *Job) error {
	site, err := n.tenants.Lookup(job.TenantID)
	if err != nil {
		return err
	}
	if site.NotifyEmail == "" {
		n.logger.Debug("no staff address, skipping", zap.String("tenant", site.Slug))
		return nil
	}

	data := struct {
		Site, LeadID, Name, Email, Company, Source, Message string
	}{
		Site:    site.Name,
		LeadID:  job.String("lead_id"),
		Name:    job.String("name"),
		Email:   job.String("email"),
		Company: job.String("company"),
		Source:  job.String("source"),
		Message: job.String("message"),
	}
	if data.LeadID == "" {
		return errors.New("payload missing lead_id")
	}

	subject, body, err := notifyStaffTmpl.render(data)
	if err != nil {
		return err
	}

	return n.mailer.Send(ctx, Message{
		From:    site.FromEmail,
		To:      site.NotifyEmail,
		Subject: subject,
		Body:    body,
	})
}

// WelcomeEmail greets the client of a freshly converted project
func (n *Notifier) WelcomeEmail(ctx context.Context, job *Job) error {
	site, err := n.tenants.Lookup(job.TenantID)
	if err != nil {
		return err
	}

	data := struct {
		Site, ClientName, ClientEmail, ProjectName, ProjectID string
	}{
		Site:        site.Name,
		ClientName:  job.String("client_name"),
		ClientEmail: job.String("client_email"),
		ProjectName: job.String("project_name"),
		ProjectID:   job.String("project_id"),
	}
	if data.ClientEmail == "" {
		return errors.New("payload missing client_email")
	}

	subject, body, err := welcomeTmpl.render(data)
	if err != nil {
		return err
	}

	return n.mailer.Send(ctx, Message{
		From:    site.FromEmail,
		To:      data.ClientEmail,
		Subject: subject,
		Body:    body,
	})
}

// PurgeHandler deletes completed jobs older than retention
func PurgeHandler(queue *Queue, retention time.Duration, logger *zap.Logger) Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, job *Job) error {
		n, err := queue.PurgeCompleted(ctx, retention)
		if err != nil {
			return err
		}
		logger.Info("purged completed jobs", zap.Int64("deleted", n), zap.Duration("retention", retention))
		return nil
	}
}
