package bus

import (
	"errors"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/polgov/polgov/core/infra/logging"
)

const component = "bus"

var (
	errNilBus       = errors.New("nats bus not initialized")
	errEmptySubject = errors.New("empty subject")
)

// NatsBus publishes JSON events over a NATS connection.
type NatsBus struct {
	nc *nats.Conn
}

// NewNatsBus dials NATS at the provided URL.
func NewNatsBus(url string) (*NatsBus, error) {
	opts := []nats.Option{
		nats.Name("polgov-bus"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logging.Warn(component, "disconnected from nats", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info(component, "reconnected to nats", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logging.Info(component, "nats connection closed")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NatsBus{nc: nc}, nil
}

// Publish sends the event on its subject.
func (b *NatsBus) Publish(event Event) error {
	if b == nil || b.nc == nil {
		return errNilBus
	}
	if event.Subject == "" {
		return errEmptySubject
	}
	data, err := encode(event)
	if err != nil {
		return err
	}
	return b.nc.Publish(event.Subject, data)
}

// Subscribe attaches a handler that decodes events on the subject.
func (b *NatsBus) Subscribe(subject string, handler func(Event)) (*nats.Subscription, error) {
	if b == nil || b.nc == nil {
		return nil, errNilBus
	}
	if subject == "" {
		return nil, errEmptySubject
	}
	return b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var event Event
		if err := decode(msg.Data, &event); err != nil {
			logging.Warn(component, "dropping undecodable event", "subject", subject, "err", err)
			return
		}
		handler(event)
	})
}

// Close shuts down the underlying NATS connection.
func (b *NatsBus) Close() {
	if b != nil && b.nc != nil {
		b.nc.Close()
	}
}
