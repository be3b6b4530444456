package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Dialer opens model connections.
type Dialer struct {
	URL              string
	APIKey           string
	HandshakeTimeout time.Duration
}

// Dial connects to model and returns the raw connection. The handshake is
// bounded by both ctx and HandshakeTimeout.
func (d Dialer) Dial(ctx context.Context, model string) (*websocket.Conn, error) {
	if d.APIKey == "" {
		return nil, errors.New("realtime: api key is required")
	}
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("realtime: bad url: %w", err)
	}
	if model != "" {
		q := u.Query()
		q.Set("model", model)
		u.RawQuery = q.Encode()
	}

	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+d.APIKey)

	wd := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}
	conn, resp, err := wd.DialContext(dctx, u.String(), h)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: dial %s: %w (status %d)", u.Host, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("realtime: dial %s: %w", u.Host, err)
	}
	conn.SetReadLimit(1 << 20)
	return conn, nil
}
