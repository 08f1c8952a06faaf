package signup

import (
	"context"

	"github.com/smallbiznis/warrantyhub/internal/events"
	orgdomain "github.com/smallbiznis/warrantyhub/internal/organization/domain"
	"github.com/smallbiznis/warrantyhub/internal/signup/domain"
	"gorm.io/gorm"
)

// EventProvisioner announces a new organization through the outbox so the
// event commits with the tenant rows.
type EventProvisioner struct {
	publisher events.Publisher
}

func NewEventProvisioner(publisher events.Publisher) domain.Provisioner {
	return &EventProvisioner{publisher: publisher}
}

func (p *EventProvisioner) Provision(ctx context.Context, tx *gorm.DB, org *orgdomain.Organization, owner *orgdomain.OrgUser) error {
	return p.publisher.WithTx(tx).Publish(ctx, events.OrganizationCreatedTopic, org.ID, map[string]any{
		"organization_id": org.ID.String(),
		"slug":            org.Slug,
		"plan_id":         org.PlanID,
		"owner_id":        owner.ID.String(),
		"trial_ends_at":   org.TrialEndsAt,
	})
}
