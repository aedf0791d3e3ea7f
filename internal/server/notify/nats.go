package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the NATS subject share e-mails are published on.
const DefaultSubject = "clouddrive.mail.share"

type publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

type NATSDispatcher struct {
	conn    publisher
	subject string
}

// ConnectNATS dials url with reconnects enabled.
func ConnectNATS(url string) (*NATSDispatcher, error) {
	conn, err := nats.Connect(url,
		nats.Name("clouddrive"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSDispatcher{conn: conn, subject: DefaultSubject}, nil
}

func (d *NATSDispatcher) Send(ctx context.Context, msg ShareEmail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := encode(msg)
	if err != nil {
		return err
	}
	if err := d.conn.Publish(d.subject, b); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (d *NATSDispatcher) Close() error { return d.conn.Drain() }
