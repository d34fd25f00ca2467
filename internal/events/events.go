// Package events publishes route resolutions so other workers and tools
// can follow cache activity live.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is used when none is configured.
const DefaultSubject = "flightboard.routes"

// RouteResolved is emitted after every upstream lookup written to the cache.
type RouteResolved struct {
	Key      string    `json:"key"`
	ICAO24   string    `json:"icao24,omitempty"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	NotFound bool      `json:"not_found"`
	Source   string    `json:"source"`
	At       time.Time `json:"at"`
}

// Publisher sends route events.
type Publisher interface {
	PublishRoute(ctx context.Context, ev RouteResolved) error
	Close() error
}

// Nop discards events. It is used when no broker is configured.
type Nop struct{}

// PublishRoute implements Publisher.
func (Nop) PublishRoute(context.Context, RouteResolved) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }

// natsConn is the part of *nats.Conn used here.
type natsConn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// NATSPublisher publishes events as JSON on a core NATS subject.
type NATSPublisher struct {
	conn    natsConn
	subject string
}

// Connect dials NATS. The connection reconnects on its own; publishes while
// disconnected are buffered by the client.
func Connect(url, subject string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("flightboard"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newNATSPublisher(nc, subject), nil
}

func newNATSPublisher(conn natsConn, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{conn: conn, subject: subject}
}

// PublishRoute implements Publisher.
func (p *NATSPublisher) PublishRoute(ctx context.Context, ev RouteResolved) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close flushes pending events and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// Subscribe calls handler for every route event on subject until ctx is
// done. Messages that do not decode are skipped.
func Subscribe(ctx context.Context, url, subject string, handler func(RouteResolved)) error {
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := nats.Connect(url, nats.Name("flightboard-watch"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		var ev RouteResolved
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		handler(ev)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	return nil
}
