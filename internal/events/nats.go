package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is used when no NATS subject prefix is configured.
const DefaultSubjectPrefix = "taskvibe.events"

// Publisher is the part of *nats.Conn the forwarder needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSForwarder republishes bus events as JSON on "<prefix>.<event type>".
type NATSForwarder struct {
	pub    Publisher
	prefix string
	logger *log.Logger
}

func NewNATSForwarder(pub Publisher, prefix string, logger *log.Logger) *NATSForwarder {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSForwarder{pub: pub, prefix: prefix, logger: logger}
}

// Subject returns the subject an event type is published on.
func (f *NATSForwarder) Subject(t EventType) string {
	return f.prefix + "." + string(t)
}

// Forward is a bus Subscriber.
func (f *NATSForwarder) Forward(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		f.logger.Warn("marshal event for nats", "event", ev.Type, "err", err)
		return
	}
	if err := f.pub.Publish(f.Subject(ev.Type), data); err != nil {
		f.logger.Warn("publish event to nats", "subject", f.Subject(ev.Type), "err", err)
	}
}

// ConnectNATS dials url with reconnects enabled and a recognisable client
// name.
func ConnectNATS(url string, logger *log.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("taskvibe"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}
