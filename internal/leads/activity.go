package leads

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conduit-lang/portal/internal/store"
)

// activity is one row of the per-tenant audit trail
type activity struct {
	TenantID  string
	Subject   string
	SubjectID uuid.UUID
	Action    string
	Actor     string
	Detail    string
	At        time.Time
}

func recordActivity(ctx context.Context, db store.DBTX, a activity) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO activities (id, tenant_id, subject, subject_id, action, actor, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), a.TenantID, a.Subject, a.SubjectID, a.Action, a.Actor, a.Detail, a.At,
	)
	if err != nil {
		return fmt.Errorf("record activity %s: %w", a.Action, store.ConvertError(err))
	}
	return nil
}
