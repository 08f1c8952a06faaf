package events

import (
	"context"
	"strings"

	"github.com/smallbiznis/warrantyhub/internal/clock"
	"github.com/smallbiznis/warrantyhub/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultRelayBatch = 100

type RelayParams struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Config config.Config
	Sink   Sink `optional:"true"`
}

// Relay forwards unpublished outbox rows to the sink in id order.
type Relay struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	sink   Sink
	prefix string
}

func NewRelay(p RelayParams) *Relay {
	return &Relay{
		db:     p.DB,
		log:    p.Log.Named("events.relay"),
		clock:  p.Clock,
		sink:   p.Sink,
		prefix: strings.TrimSuffix(p.Config.NATS.SubjectPrefix, "."),
	}
}

// Dispatch relays at most batch events and returns how many were delivered.
// Without a sink events stay in the outbox.
func (r *Relay) Dispatch(ctx context.Context, batch int) (int, error) {
	if r == nil || r.sink == nil {
		return 0, nil
	}
	if batch <= 0 {
		batch = defaultRelayBatch
	}

	var pending []DomainEvent
	err := r.db.WithContext(ctx).
		Where("published = ?", false).
		Order("id ASC").
		Limit(batch).
		Find(&pending).Error
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, event := range pending {
		if err := r.sink.Publish(r.subject(event.Topic), event.Payload); err != nil {
			r.log.Warn("relay publish failed", zap.String("topic", event.Topic), zap.String("event_id", event.ID.String()), zap.Error(err))
			return delivered, err
		}

		now := r.clock.Now()
		err := r.db.WithContext(ctx).
			Model(&DomainEvent{}).
			Where("id = ?", event.ID).
			Updates(map[string]any{"published": true, "published_at": now}).Error
		if err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}

func (r *Relay) subject(topic string) string {
	if r.prefix == "" {
		return topic
	}
	return r.prefix + "." + topic
}
