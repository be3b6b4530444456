package bridge

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"voice-bridge/internal/realtime"
)

// Conn is the subset of *websocket.Conn the bridge needs. Only the call's
// event loop writes; only the call's reader goroutine reads.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

const writeTimeout = 5 * time.Second

func writeText(c Conn, b []byte) error {
	if d, ok := c.(writeDeadliner); ok {
		if err := d.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return err
		}
	}
	return c.WriteMessage(websocket.TextMessage, b)
}

// ModelDialer opens the speech model connection for one call.
type ModelDialer interface {
	Dial(ctx context.Context, model string) (Conn, error)
}

// RealtimeDialer adapts realtime.Dialer to ModelDialer.
type RealtimeDialer struct {
	realtime.Dialer
}

func (d RealtimeDialer) Dial(ctx context.Context, model string) (Conn, error) {
	c, err := d.Dialer.Dial(ctx, model)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// readLoop pumps text frames from c into out until c fails or ctx ends.
// out is closed on exit; the read error is left in *errp.
func readLoop(ctx context.Context, c Conn, out chan<- []byte, errp *error) {
	defer close(out)
	for {
		mt, msg, err := c.ReadMessage()
		if err != nil {
			*errp = err
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}
