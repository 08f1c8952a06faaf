package events

import "go.uber.org/fx"

var Module = fx.Module("events",
	fx.Provide(NewOutboxPublisher),
	fx.Provide(NewNATSConn),
	fx.Provide(NewSink),
	fx.Provide(NewRelay),
)
