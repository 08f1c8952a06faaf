// Package events records domain events in an outbox table and relays them to NATS.
package events

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	OrganizationCreatedTopic       = "organization.created"
	UsageLimitExceededTopic        = "usage.limit_exceeded"
	SubscriptionStatusChangedTopic = "subscription.status_changed"
)

// Publisher records an event. WithTx binds the write to the caller's transaction
// so the event commits or rolls back with the state change it describes.
type Publisher interface {
	WithTx(tx *gorm.DB) Publisher
	Publish(ctx context.Context, topic string, orgID snowflake.ID, payload any) error
}

// DomainEvent is an outbox row waiting to be relayed.
type DomainEvent struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID   `gorm:"not null;index" json:"org_id"`
	Topic       string         `gorm:"type:text;not null" json:"topic"`
	Payload     datatypes.JSON `gorm:"not null" json:"payload"`
	Published   bool           `gorm:"not null;index" json:"published"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (DomainEvent) TableName() string { return "domain_events" }
