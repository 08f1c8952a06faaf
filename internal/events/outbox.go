package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warrantyhub/internal/clock"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrInvalidTopic = errors.New("invalid_event_topic")

type outboxPublisher struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
}

func NewOutboxPublisher(db *gorm.DB, genID *snowflake.Node, clk clock.Clock) Publisher {
	return &outboxPublisher{db: db, genID: genID, clock: clk}
}

func (p *outboxPublisher) WithTx(tx *gorm.DB) Publisher {
	return &outboxPublisher{db: tx, genID: p.genID, clock: p.clock}
}

func (p *outboxPublisher) Publish(ctx context.Context, topic string, orgID snowflake.ID, payload any) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ErrInvalidTopic
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := DomainEvent{
		ID:        p.genID.Generate(),
		OrgID:     orgID,
		Topic:     topic,
		Payload:   datatypes.JSON(data),
		CreatedAt: p.clock.Now(),
	}
	return p.db.WithContext(ctx).Create(&event).Error
}
