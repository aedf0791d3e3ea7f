// Package notify hands share e-mails to a delivery channel. The core never
// waits for delivery: Async wraps any Dispatcher into a fire-and-forget one.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/logging"
)

// ShareEmail asks for a share notification to be sent to To.
type ShareEmail struct {
	To        string    `json:"to"`
	From      string    `json:"from"`
	FileID    string    `json:"fileId"`
	FileName  string    `json:"fileName"`
	Link      string    `json:"link"`
	CreatedAt time.Time `json:"createdAt"`
}

type Dispatcher interface {
	Send(ctx context.Context, msg ShareEmail) error
	Close() error
}

func encode(msg ShareEmail) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal share email: %w", err)
	}
	return b, nil
}

// LogDispatcher only logs the request. It is the default when no broker is
// configured.
type LogDispatcher struct {
	logger logging.Logger
}

func NewLogDispatcher(logger logging.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Send(ctx context.Context, msg ShareEmail) error {
	d.logger.Info(ctx, "share email", "to", msg.To, "file_id", msg.FileID, "link", msg.Link)
	return nil
}

func (d *LogDispatcher) Close() error { return nil }

// AsyncDispatcher sends in the background with its own deadline and logs
// failures instead of returning them.
type AsyncDispatcher struct {
	next    Dispatcher
	logger  logging.Logger
	timeout time.Duration
	sem     chan struct{}
}

// Async wraps next. At most inflight sends run at once; further messages are
// dropped with a warning.
func Async(next Dispatcher, logger logging.Logger, timeout time.Duration, inflight int) *AsyncDispatcher {
	if inflight <= 0 {
		inflight = 16
	}
	return &AsyncDispatcher{next: next, logger: logger, timeout: timeout, sem: make(chan struct{}, inflight)}
}

func (d *AsyncDispatcher) Send(ctx context.Context, msg ShareEmail) error {
	select {
	case d.sem <- struct{}{}:
	default:
		d.logger.Warn(ctx, "share email dropped, dispatcher busy", "to", msg.To)
		return nil
	}

	go func() {
		defer func() { <-d.sem }()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		if err := d.next.Send(sctx, msg); err != nil {
			d.logger.Error(sctx, "share email failed", "to", msg.To, "error", err)
		}
	}()
	return nil
}

// Close waits for running sends and closes the wrapped dispatcher.
func (d *AsyncDispatcher) Close() error {
	for i := 0; i < cap(d.sem); i++ {
		d.sem <- struct{}{}
	}
	return d.next.Close()
}
