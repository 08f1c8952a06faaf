package events

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/smallbiznis/warrantyhub/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Sink delivers relayed events. *nats.Conn satisfies it.
type Sink interface {
	Publish(subject string, data []byte) error
}

// NewNATSConn connects when NATS_URL is configured and returns nil otherwise.
func NewNATSConn(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*nats.Conn, error) {
	if cfg.NATS.URL == "" {
		return nil, nil
	}

	log = log.Named("events.nats")
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name(cfg.AppName),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return nc.Drain()
		},
	})
	return nc, nil
}

// NewSink keeps a missing connection as a nil interface.
func NewSink(nc *nats.Conn) Sink {
	if nc == nil {
		return nil
	}
	return nc
}
