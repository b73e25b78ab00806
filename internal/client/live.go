package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	errpkg "github.com/veranemoloko/download-panel/internal/errors"
)

// LiveConn is one open progress channel connection.
type LiveConn struct {
	ws *websocket.Conn
}

// Receive blocks until the next frame arrives and returns its payload.
func (l *LiveConn) Receive() ([]byte, error) {
	var data []byte
	if err := websocket.Message.Receive(l.ws, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// Close closes the underlying connection. It unblocks a pending Receive.
func (l *LiveConn) Close() error {
	return l.ws.Close()
}

// DialLive opens the websocket progress channel.
func (c *Client) DialLive(ctx context.Context) (*LiveConn, error) {
	cfg, err := websocket.NewConfig(c.liveURL, liveOrigin(c.baseURL))
	if err != nil {
		return nil, fmt.Errorf("dial live channel: invalid url %q: %w", c.liveURL, err)
	}
	cfg.Header.Set(requestIDHeader, uuid.NewString())
	cfg.Header.Set("User-Agent", userAgent)

	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, &errpkg.TransportError{Op: "dial live channel", Err: err}
	}

	c.logger.Debug("live channel connected", "url", c.liveURL)
	return &LiveConn{ws: ws}, nil
}

func liveOrigin(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return "http://localhost/"
	}
	return u.Scheme + "://" + u.Host + "/"
}
