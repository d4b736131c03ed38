package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBus fans change notifications out over a NATS subject so that every
// process attached to the same server sees writes made by the others.
type NATSBus struct {
	nc      *nats.Conn
	subject string
	owned   bool
	logger  *slog.Logger
}

// Connect dials NATS with reconnect settings suited to a long-lived feed.
// Extra options are applied after the defaults.
func Connect(url string, opts ...nats.Option) (*nats.Conn, error) {
	base := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
	}
	return nats.Connect(url, append(base, opts...)...)
}

// NewNATSBus publishes on "<prefix>.changed". The bus drains nc on Close only
// when owned is true.
func NewNATSBus(nc *nats.Conn, prefix string, owned bool, logger *slog.Logger) *NATSBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSBus{nc: nc, subject: prefix + ".changed", owned: owned, logger: logger}
}

func (b *NATSBus) Conn() *nats.Conn { return b.nc }

func (b *NATSBus) Publish(_ context.Context, c Change) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return b.nc.Publish(b.subject, data)
}

func (b *NATSBus) Subscribe(handler func(Change)) (func(), error) {
	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		var c Change
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			b.logger.Warn("dropping malformed change notification", "subject", msg.Subject, "error", err)
			return
		}
		handler(c)
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

func (b *NATSBus) Close() {
	if b.owned && b.nc != nil {
		_ = b.nc.Drain()
	}
}
