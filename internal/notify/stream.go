package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	EventNotification = "notification"
	EventPing         = "ping"

	DefaultKeepalive = 30 * time.Second
)

var pingData = []byte("{}")

// EventWriter emits one named event to the consumer.
type EventWriter func(event string, data []byte) error

// Stream pumps sub into write until ctx is done, the subscription is
// closed, or write fails. When nothing arrives for keepalive, a ping event
// is written instead and the wait starts over. The caller owns sub and must
// unregister it once Stream returns.
func Stream(ctx context.Context, sub *Subscription, keepalive time.Duration, write EventWriter) error {
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}

	for {
		data, err := sub.Next(ctx, keepalive)
		switch {
		case err == nil:
			if err := write(EventNotification, data); err != nil {
				return fmt.Errorf("write notification: %w", err)
			}
		case errors.Is(err, ErrIdle):
			if err := write(EventPing, pingData); err != nil {
				return fmt.Errorf("write keepalive: %w", err)
			}
		case errors.Is(err, ErrClosed):
			return nil
		default:
			return err
		}
	}
}

// WriteSSE writes one server-sent event frame.
func WriteSSE(w io.Writer, event string, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
